// Package pipeline seals application headers. Run is a single-pass state
// machine over an image blob: static fields, padding, sizes and checksums,
// optional signature, optional encryption, and finally the header checksum.
// The stage order is a format contract and must not be changed; in particular
// the plaintext image CRC is always computed before encryption, and the
// header CRC-8 is written strictly last.
package pipeline

import (
	"bytes"
	"crypto/ecdsa"
	"errors"
	"fmt"

	"github.com/golang/glog"

	"github.com/fwtools/appsign/pkg/blob"
	"github.com/fwtools/appsign/pkg/crc"
	"github.com/fwtools/appsign/pkg/fwcrypt"
	"github.com/fwtools/appsign/pkg/header"
	"github.com/fwtools/appsign/pkg/signing"
)

const (
	// PadBlockSize is the block multiple the payload is padded to.
	PadBlockSize = 64

	padFill = 0x00

	// GitSHASize is the maximum commit token length stored in the header.
	GitSHASize = 8
)

var (
	// ErrMissingSigningKey is returned when signing is requested without a
	// key, before the image is touched.
	ErrMissingSigningKey = errors.New("signing requested without a private key")

	// ErrNoKeyMaterial is returned when encryption is requested without a
	// key material provider.
	ErrNoKeyMaterial = errors.New("encryption requested without key material")
)

// Config selects the optional pipeline stages and carries the caller-supplied
// header values.
type Config struct {
	ImageType uint8
	StartAddr uint32

	// GitSHA is an opaque commit token, at most GitSHASize characters.
	// Empty leaves the field zeroed.
	GitSHA string

	// SoftwareVersion and HardwareVersion override the values stamped into
	// the input header by the build. Nil leaves them untouched.
	SoftwareVersion *uint32
	HardwareVersion *uint32

	Sign bool
	Key  *ecdsa.PrivateKey

	Encrypt bool
	Secrets fwcrypt.Provider
}

// Run seals the header of the image in b. The blob is mutated in place and
// must not be modified again afterwards. On error the blob may be left
// half-written; callers work on a copy of the input for that reason.
func Run(b *blob.Blob, cfg Config) error {
	if cfg.Sign && cfg.Key == nil {
		return ErrMissingSigningKey
	}
	if cfg.Encrypt && cfg.Secrets == nil {
		return ErrNoKeyMaterial
	}
	if len(cfg.GitSHA) > GitSHASize {
		return fmt.Errorf("commit token %q longer than %d characters", cfg.GitSHA, GitSHASize)
	}

	l, err := header.ForBlob(b)
	if err != nil {
		return err
	}

	// Static fields.
	l.PutUint8(b, header.FieldImageType, cfg.ImageType)
	l.PutUint32(b, header.FieldImageStartAddr, cfg.StartAddr)
	if cfg.GitSHA != "" {
		if err := l.PutBytes(b, header.FieldGitSHA, []byte(cfg.GitSHA)); err != nil {
			return err
		}
	}
	if cfg.SoftwareVersion != nil {
		l.PutUint32(b, header.FieldSoftwareVersion, *cfg.SoftwareVersion)
	}
	if cfg.HardwareVersion != nil {
		l.PutUint32(b, header.FieldHardwareVersion, *cfg.HardwareVersion)
	}

	// Pad the payload up to the next block boundary. An aligned payload is
	// left alone.
	if pad := PadBlockSize - b.Len()%PadBlockSize; pad < PadBlockSize {
		b.Write(b.Len(), bytes.Repeat([]byte{padFill}, pad))
		glog.Infof("Padded image with %d bytes.", pad)
	}

	// Image size excludes the header and is only valid after padding.
	l.PutUint32(b, header.FieldImageSize, uint32(b.Len()-l.Size))

	// Plaintext payload CRC. Always over the padded, unencrypted payload,
	// even when encryption runs later.
	payload := b.Read(l.Size, -1)
	l.PutUint32(b, header.FieldImageCRC, crc.CRC32(payload))

	if cfg.Sign {
		digest := signing.Digest(payload)
		sig, err := signing.Sign(payload, cfg.Key)
		if err != nil {
			return fmt.Errorf("could not sign image: %w", err)
		}
		if err := l.PutBytes(b, header.FieldImageHash, digest[:]); err != nil {
			return err
		}
		if err := l.PutBytes(b, header.FieldSignature, sig); err != nil {
			return err
		}
		l.PutUint8(b, header.FieldSignatureType, header.SignatureECDSA)
		glog.Infof("Image signed.")
	} else {
		l.PutUint8(b, header.FieldSignatureType, header.SignatureNone)
	}

	if cfg.Encrypt {
		m, err := cfg.Secrets.Material()
		if err != nil {
			return fmt.Errorf("could not get key material: %w", err)
		}
		l.PutUint8(b, header.FieldEncryptionType, header.EncryptionAESCTR)
		ct := b.Read(l.Size, -1)
		if err := fwcrypt.Apply(m, ct); err != nil {
			return fmt.Errorf("could not encrypt image: %w", err)
		}
		b.Write(l.Size, ct)
		l.PutUint32(b, header.FieldEncryptedImageCRC, crc.CRC32(ct))
		glog.Infof("Image encrypted.")
	} else {
		l.PutUint8(b, header.FieldEncryptionType, header.EncryptionNone)
	}

	// Header CRC covers everything after the CRC byte itself and seals the
	// image.
	l.PutUint8(b, header.FieldHeaderCRC, crc.CRC8(b.Read(1, l.Size-1)))

	glog.Infof("Application header filled, image sealed.")
	return nil
}
