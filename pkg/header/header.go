// Package header defines the fixed application header prepended to firmware
// images and a codec for its fields. Field placement is described by a
// versioned layout table rather than bare offsets, so an unknown header
// version fails as an unsupported layout lookup instead of silently
// misaddressing fields.
package header

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/fwtools/appsign/pkg/blob"
)

// Size is the total header size in bytes. The payload starts immediately
// after.
const Size = 256

// VersionOffset is the location of the header version byte. It is the one
// offset shared by all layouts, since it selects the layout itself.
const VersionOffset = 0x01

// SupportedVersion is the single header version this tool produces and
// consumes.
const SupportedVersion uint8 = 1

// Image types.
const (
	ImageTypeApplication uint8 = 0
	ImageTypeCustom      uint8 = 1
)

// Encryption types.
const (
	EncryptionNone   uint8 = 0
	EncryptionAESCTR uint8 = 1
)

// Signature types.
const (
	SignatureNone  uint8 = 0
	SignatureECDSA uint8 = 1
)

// ErrUnsupportedVersion is returned when the header version byte does not
// select any known layout.
var ErrUnsupportedVersion = errors.New("unsupported header version")

// FieldID names a header field independently of where a layout places it.
type FieldID int

const (
	FieldHeaderCRC FieldID = iota
	FieldVersion
	FieldImageType
	FieldSoftwareVersion
	FieldHardwareVersion
	FieldImageSize
	FieldImageStartAddr
	FieldImageCRC
	FieldEncryptionType
	FieldSignatureType
	FieldSignature
	FieldImageHash
	FieldGitSHA
	FieldEncryptedImageCRC
)

var fieldNames = map[FieldID]string{
	FieldHeaderCRC:         "header_crc8",
	FieldVersion:           "header_version",
	FieldImageType:         "image_type",
	FieldSoftwareVersion:   "software_version",
	FieldHardwareVersion:   "hardware_version",
	FieldImageSize:         "image_size",
	FieldImageStartAddr:    "image_start_addr",
	FieldImageCRC:          "image_crc32",
	FieldEncryptionType:    "encryption_type",
	FieldSignatureType:     "signature_type",
	FieldSignature:         "signature",
	FieldImageHash:         "image_hash",
	FieldGitSHA:            "git_sha",
	FieldEncryptedImageCRC: "encrypted_image_crc32",
}

func (f FieldID) String() string {
	if n, ok := fieldNames[f]; ok {
		return n
	}
	return fmt.Sprintf("field(%d)", int(f))
}

// Field describes where a layout places a field.
type Field struct {
	Offset int
	Size   int
}

// Layout maps fields to their byte positions for one header version.
type Layout struct {
	Version uint8
	Size    int
	fields  map[FieldID]Field
}

var layoutV1 = &Layout{
	Version: 1,
	Size:    Size,
	fields: map[FieldID]Field{
		FieldHeaderCRC:         {0x00, 1},
		FieldVersion:           {0x01, 1},
		FieldImageType:         {0x02, 1},
		FieldSoftwareVersion:   {0x08, 4},
		FieldHardwareVersion:   {0x0C, 4},
		FieldImageSize:         {0x10, 4},
		FieldImageStartAddr:    {0x14, 4},
		FieldImageCRC:          {0x18, 4},
		FieldEncryptionType:    {0x1C, 1},
		FieldSignatureType:     {0x1D, 1},
		FieldSignature:         {0x1E, 64},
		FieldImageHash:         {0x5E, 32},
		FieldGitSHA:            {0x7E, 8},
		FieldEncryptedImageCRC: {0x86, 4},
	},
}

var layouts = map[uint8]*Layout{
	1: layoutV1,
}

// ForVersion returns the layout for a header version byte.
func ForVersion(v uint8) (*Layout, error) {
	l, ok := layouts[v]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, v)
	}
	return l, nil
}

// ForBlob reads the version byte of b and returns the matching layout.
func ForBlob(b *blob.Blob) (*Layout, error) {
	if b.Len() < Size {
		return nil, fmt.Errorf("image shorter than header (%d < %d bytes)", b.Len(), Size)
	}
	return ForVersion(b.Read(VersionOffset, 1)[0])
}

// Field returns the placement of id in this layout.
func (l *Layout) Field(id FieldID) Field {
	return l.fields[id]
}

// PutUint8 writes a one-byte field.
func (l *Layout) PutUint8(b *blob.Blob, id FieldID, v uint8) {
	f := l.mustField(id, 1)
	b.Write(f.Offset, []byte{v})
}

// GetUint8 reads a one-byte field.
func (l *Layout) GetUint8(b *blob.Blob, id FieldID) uint8 {
	f := l.mustField(id, 1)
	return b.Read(f.Offset, 1)[0]
}

// PutUint32 writes a four-byte field, little endian.
func (l *Layout) PutUint32(b *blob.Blob, id FieldID, v uint32) {
	f := l.mustField(id, 4)
	var raw [4]byte
	binary.LittleEndian.PutUint32(raw[:], v)
	b.Write(f.Offset, raw[:])
}

// GetUint32 reads a four-byte field, little endian.
func (l *Layout) GetUint32(b *blob.Blob, id FieldID) uint32 {
	f := l.mustField(id, 4)
	return binary.LittleEndian.Uint32(b.Read(f.Offset, 4))
}

// PutBytes writes a fixed-width byte field. A value shorter than the field is
// zero padded at the end; a longer one is rejected.
func (l *Layout) PutBytes(b *blob.Blob, id FieldID, p []byte) error {
	f := l.fields[id]
	if len(p) > f.Size {
		return fmt.Errorf("value for %s is %d bytes, field holds %d", id, len(p), f.Size)
	}
	raw := make([]byte, f.Size)
	copy(raw, p)
	b.Write(f.Offset, raw)
	return nil
}

// GetBytes reads a fixed-width byte field.
func (l *Layout) GetBytes(b *blob.Blob, id FieldID) []byte {
	f := l.fields[id]
	return b.Read(f.Offset, f.Size)
}

func (l *Layout) mustField(id FieldID, size int) Field {
	f, ok := l.fields[id]
	if !ok || f.Size != size {
		panic(fmt.Sprintf("field %s is not a %d-byte field in layout v%d", id, size, l.Version))
	}
	return f
}

// Header is a decoded view of all fields, used for inspection and
// verification. The sealing pipeline writes fields through the layout
// directly and never goes through this struct.
type Header struct {
	HeaderCRC         uint8
	Version           uint8
	ImageType         uint8
	SoftwareVersion   uint32
	HardwareVersion   uint32
	ImageSize         uint32
	ImageStartAddr    uint32
	ImageCRC          uint32
	EncryptionType    uint8
	SignatureType     uint8
	Signature         [64]byte
	ImageHash         [32]byte
	GitSHA            [8]byte
	EncryptedImageCRC uint32
}

// Decode reads the header of b using the layout selected by its version
// byte.
func Decode(b *blob.Blob) (*Header, error) {
	l, err := ForBlob(b)
	if err != nil {
		return nil, err
	}
	h := &Header{
		HeaderCRC:         l.GetUint8(b, FieldHeaderCRC),
		Version:           l.GetUint8(b, FieldVersion),
		ImageType:         l.GetUint8(b, FieldImageType),
		SoftwareVersion:   l.GetUint32(b, FieldSoftwareVersion),
		HardwareVersion:   l.GetUint32(b, FieldHardwareVersion),
		ImageSize:         l.GetUint32(b, FieldImageSize),
		ImageStartAddr:    l.GetUint32(b, FieldImageStartAddr),
		ImageCRC:          l.GetUint32(b, FieldImageCRC),
		EncryptionType:    l.GetUint8(b, FieldEncryptionType),
		SignatureType:     l.GetUint8(b, FieldSignatureType),
		EncryptedImageCRC: l.GetUint32(b, FieldEncryptedImageCRC),
	}
	copy(h.Signature[:], l.GetBytes(b, FieldSignature))
	copy(h.ImageHash[:], l.GetBytes(b, FieldImageHash))
	copy(h.GitSHA[:], l.GetBytes(b, FieldGitSHA))
	return h, nil
}
