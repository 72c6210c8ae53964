package pipeline

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"

	"github.com/fwtools/appsign/pkg/blob"
	"github.com/fwtools/appsign/pkg/crc"
	"github.com/fwtools/appsign/pkg/fwcrypt"
	"github.com/fwtools/appsign/pkg/header"
	"github.com/fwtools/appsign/pkg/signing"
)

// newImage builds an unsealed input: a zeroed v1 header followed by payload.
func newImage(payload []byte) *blob.Blob {
	img := make([]byte, header.Size, header.Size+len(payload))
	img[header.VersionOffset] = 1
	return blob.New(append(img, payload...))
}

func seq(n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = byte(i)
	}
	return out
}

// reference CRC-8, written independently of pkg/crc (table-free, LSB loop
// unrolled differently) to cross-check the sealed header checksum.
func refCRC8(data []byte) uint8 {
	crc := uint8(0xB6)
	for _, b := range data {
		crc ^= b
		for i := 0; i < 8; i++ {
			hi := crc & 0x80
			crc <<= 1
			if hi != 0 {
				crc ^= 0x07
			}
		}
	}
	return crc
}

// Golden run, values pinned against the original tool: 10-byte payload,
// custom image at 0x08000000 with a commit token, no signing, no encryption.
func TestRunGolden(t *testing.T) {
	b := newImage(seq(10))
	err := Run(b, Config{
		ImageType: header.ImageTypeCustom,
		StartAddr: 0x08000000,
		GitSHA:    "abc12345",
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	h, err := header.Decode(b)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if h.ImageSize != 64 {
		t.Errorf("image_size: got %d, want 64", h.ImageSize)
	}
	if h.ImageCRC != 0x681b46cc {
		t.Errorf("image_crc32: got %08x, want 681b46cc", h.ImageCRC)
	}
	if h.HeaderCRC != 0x7e {
		t.Errorf("header_crc8: got %02x, want 7e", h.HeaderCRC)
	}
	if h.ImageType != header.ImageTypeCustom || h.ImageStartAddr != 0x08000000 {
		t.Errorf("static fields: %+v", h)
	}
	if !bytes.Equal(h.GitSHA[:], []byte("abc12345")) {
		t.Errorf("git_sha: %q", h.GitSHA)
	}
	if got := refCRC8(b.Read(1, header.Size-1)); got != h.HeaderCRC {
		t.Errorf("independent header CRC recomputation: got %02x", got)
	}
	if err := Verify(b, nil, nil); err != nil {
		t.Errorf("Verify of sealed image: %v", err)
	}
}

func TestRunAlignedPayloadNotPadded(t *testing.T) {
	b := newImage(nil)
	if err := Run(b, Config{}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if b.Len() != header.Size {
		t.Errorf("empty payload was padded to %d bytes", b.Len()-header.Size)
	}
	h, _ := header.Decode(b)
	if h.ImageSize != 0 {
		t.Errorf("image_size: got %d, want 0", h.ImageSize)
	}

	b = newImage(seq(128))
	if err := Run(b, Config{}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := b.Len() - header.Size; got != 128 {
		t.Errorf("aligned payload changed length: %d", got)
	}
}

func TestRunPadsToBlockMultiple(t *testing.T) {
	for _, n := range []int{1, 10, 63, 65, 100} {
		b := newImage(seq(n))
		if err := Run(b, Config{}); err != nil {
			t.Fatalf("Run(%d): %v", n, err)
		}
		want := (n + PadBlockSize - 1) / PadBlockSize * PadBlockSize
		if got := b.Len() - header.Size; got != want {
			t.Errorf("payload %d: padded to %d, want %d", n, got, want)
		}
		tail := b.Read(header.Size+n, -1)
		if !bytes.Equal(tail, make([]byte, len(tail))) {
			t.Errorf("payload %d: pad bytes not zero: %x", n, tail)
		}
	}
}

func TestRunUnsigned(t *testing.T) {
	b := newImage(seq(10))
	if err := Run(b, Config{}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	h, _ := header.Decode(b)
	if h.SignatureType != header.SignatureNone {
		t.Errorf("signature_type: got %d", h.SignatureType)
	}
	if h.Signature != [64]byte{} || h.ImageHash != [32]byte{} {
		t.Errorf("unsigned image has non-zero signature or hash")
	}
}

func TestRunSigned(t *testing.T) {
	key, err := signing.LoadPrivateKey(filepath.Join("testdata", "test_key.pem"))
	if err != nil {
		t.Fatalf("LoadPrivateKey: %v", err)
	}

	b := newImage(seq(10))
	if err := Run(b, Config{Sign: true, Key: key}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	h, _ := header.Decode(b)
	if h.SignatureType != header.SignatureECDSA {
		t.Errorf("signature_type: got %d", h.SignatureType)
	}
	payload := b.Read(header.Size, -1)
	if digest := signing.Digest(payload); !bytes.Equal(digest[:], h.ImageHash[:]) {
		t.Errorf("image_hash does not match payload digest")
	}
	if !signing.Verify(payload, h.Signature[:], &key.PublicKey) {
		t.Errorf("signature does not verify")
	}
	if err := Verify(b, &key.PublicKey, nil); err != nil {
		t.Errorf("Verify: %v", err)
	}

	// Same input, same key: byte-identical output.
	b2 := newImage(seq(10))
	if err := Run(b2, Config{Sign: true, Key: key}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !bytes.Equal(b.Bytes(), b2.Bytes()) {
		t.Errorf("signing is not deterministic")
	}
}

func TestRunMissingKey(t *testing.T) {
	b := newImage(seq(10))
	before := append([]byte(nil), b.Bytes()...)
	if err := Run(b, Config{Sign: true}); !errors.Is(err, ErrMissingSigningKey) {
		t.Fatalf("Run: got %v, want ErrMissingSigningKey", err)
	}
	if !bytes.Equal(b.Bytes(), before) {
		t.Errorf("image mutated despite missing key")
	}
}

func TestRunEncrypted(t *testing.T) {
	secrets := fwcrypt.Static{M: fwcrypt.DefaultMaterial()}
	b := newImage(seq(10))
	if err := Run(b, Config{Encrypt: true, Secrets: secrets}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	h, _ := header.Decode(b)
	if h.EncryptionType != header.EncryptionAESCTR {
		t.Errorf("encryption_type: got %d", h.EncryptionType)
	}

	// image_crc32 stays the plaintext CRC; the ciphertext CRC lives in its
	// own field. Values pinned against the original tool.
	if h.ImageCRC != 0x681b46cc {
		t.Errorf("image_crc32: got %08x, want plaintext CRC 681b46cc", h.ImageCRC)
	}
	if h.EncryptedImageCRC != 0x557b5b21 {
		t.Errorf("encrypted_image_crc32: got %08x, want 557b5b21", h.EncryptedImageCRC)
	}
	if h.ImageCRC == h.EncryptedImageCRC {
		t.Errorf("ciphertext CRC equals plaintext CRC")
	}

	ct := b.Read(header.Size, -1)
	pt := append(seq(10), make([]byte, 54)...)
	if bytes.Equal(ct, pt) {
		t.Errorf("payload was not encrypted")
	}
	if got := crc.CRC32(ct); got != h.EncryptedImageCRC {
		t.Errorf("encrypted_image_crc32 does not cover the ciphertext")
	}

	// Decrypting recovers the padded plaintext.
	if err := fwcrypt.Apply(fwcrypt.DefaultMaterial(), ct); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !bytes.Equal(ct, pt) {
		t.Errorf("decryption did not recover the padded plaintext")
	}

	if err := Verify(b, nil, secrets); err != nil {
		t.Errorf("Verify: %v", err)
	}
}

func TestRunEncryptedWithoutMaterial(t *testing.T) {
	b := newImage(seq(10))
	if err := Run(b, Config{Encrypt: true}); !errors.Is(err, ErrNoKeyMaterial) {
		t.Fatalf("Run: got %v, want ErrNoKeyMaterial", err)
	}
}

func TestRunUnsupportedVersion(t *testing.T) {
	img := make([]byte, header.Size+10)
	img[header.VersionOffset] = 2
	b := blob.New(img)
	before := append([]byte(nil), b.Bytes()...)

	err := Run(b, Config{ImageType: header.ImageTypeCustom, StartAddr: 0x1000})
	if !errors.Is(err, header.ErrUnsupportedVersion) {
		t.Fatalf("Run: got %v, want ErrUnsupportedVersion", err)
	}
	if !bytes.Equal(b.Bytes(), before) {
		t.Errorf("image mutated despite unsupported version")
	}
}

func TestRunRejectsOversizedCommitToken(t *testing.T) {
	b := newImage(seq(10))
	if err := Run(b, Config{GitSHA: "deadbeef0"}); err == nil {
		t.Errorf("Run accepted a 9-character commit token")
	}
}

func TestRunVersionOverrides(t *testing.T) {
	sw, hw := uint32(0x00010203), uint32(0x0a0b0c0d)
	b := newImage(seq(10))
	if err := Run(b, Config{SoftwareVersion: &sw, HardwareVersion: &hw}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	h, _ := header.Decode(b)
	if h.SoftwareVersion != sw || h.HardwareVersion != hw {
		t.Errorf("version overrides not applied: %+v", h)
	}

	// Without overrides the stamped values are untouched.
	img := make([]byte, header.Size)
	img[header.VersionOffset] = 1
	l, _ := header.ForVersion(1)
	pre := blob.New(img)
	l.PutUint32(pre, header.FieldSoftwareVersion, 0x11111111)
	if err := Run(pre, Config{}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	h, _ = header.Decode(pre)
	if h.SoftwareVersion != 0x11111111 {
		t.Errorf("stamped software_version overwritten: %08x", h.SoftwareVersion)
	}
}

func TestVerifyReportsAllBreakage(t *testing.T) {
	secrets := fwcrypt.Static{M: fwcrypt.DefaultMaterial()}
	b := newImage(seq(100))
	if err := Run(b, Config{Encrypt: true, Secrets: secrets}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	// Corrupt a payload byte: ciphertext CRC, plaintext CRC and header all
	// still match their fields except the two payload CRCs.
	raw := b.Bytes()
	raw[header.Size+3] ^= 0xff
	err := Verify(b, nil, secrets)
	if err == nil {
		t.Fatalf("Verify accepted a corrupted payload")
	}

	// Corrupt the header version instead.
	b2 := newImage(seq(100))
	if err := Run(b2, Config{}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	b2.Write(header.VersionOffset, []byte{3})
	if err := Verify(b2, nil, nil); !errors.Is(err, header.ErrUnsupportedVersion) {
		t.Errorf("Verify of unknown version: %v", err)
	}
}
