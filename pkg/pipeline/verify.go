package pipeline

import (
	"bytes"
	"crypto/ecdsa"
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/fwtools/appsign/pkg/blob"
	"github.com/fwtools/appsign/pkg/crc"
	"github.com/fwtools/appsign/pkg/fwcrypt"
	"github.com/fwtools/appsign/pkg/header"
	"github.com/fwtools/appsign/pkg/signing"
)

// Verify re-checks a sealed image the way a bootloader would: header CRC,
// size consistency, payload CRCs, digest and signature. pub may be nil to
// skip signature verification, secrets may be nil when the image is known to
// be unencrypted. All failed checks are reported, not just the first one.
func Verify(b *blob.Blob, pub *ecdsa.PublicKey, secrets fwcrypt.Provider) error {
	h, err := header.Decode(b)
	if err != nil {
		return err
	}
	l, err := header.ForVersion(h.Version)
	if err != nil {
		return err
	}

	var errs *multierror.Error

	if got := crc.CRC8(b.Read(1, l.Size-1)); got != h.HeaderCRC {
		errs = multierror.Append(errs, fmt.Errorf("header CRC mismatch: header says %02x, computed %02x", h.HeaderCRC, got))
	}

	if got := uint32(b.Len() - l.Size); got != h.ImageSize {
		errs = multierror.Append(errs, fmt.Errorf("image size mismatch: header says %d, file has %d payload bytes", h.ImageSize, got))
	}
	if b.Len()%PadBlockSize != 0 {
		errs = multierror.Append(errs, fmt.Errorf("image length %d is not a multiple of %d", b.Len(), PadBlockSize))
	}

	payload := b.Read(l.Size, -1)
	plaintext := payload

	switch h.EncryptionType {
	case header.EncryptionNone:
	case header.EncryptionAESCTR:
		if got := crc.CRC32(payload); got != h.EncryptedImageCRC {
			errs = multierror.Append(errs, fmt.Errorf("ciphertext CRC mismatch: header says %08x, computed %08x", h.EncryptedImageCRC, got))
		}
		if secrets == nil {
			errs = multierror.Append(errs, fmt.Errorf("image is encrypted and no key material was given; plaintext checks skipped"))
			plaintext = nil
		} else {
			m, err := secrets.Material()
			if err != nil {
				return multierror.Append(errs, fmt.Errorf("could not get key material: %w", err)).ErrorOrNil()
			}
			plaintext = append([]byte(nil), payload...)
			if err := fwcrypt.Apply(m, plaintext); err != nil {
				return multierror.Append(errs, err).ErrorOrNil()
			}
		}
	default:
		errs = multierror.Append(errs, fmt.Errorf("unknown encryption type %d", h.EncryptionType))
		plaintext = nil
	}

	if plaintext != nil {
		if got := crc.CRC32(plaintext); got != h.ImageCRC {
			errs = multierror.Append(errs, fmt.Errorf("image CRC mismatch: header says %08x, computed %08x", h.ImageCRC, got))
		}
	}

	switch h.SignatureType {
	case header.SignatureNone:
		var zero [64]byte
		var zeroHash [32]byte
		if h.Signature != zero || h.ImageHash != zeroHash {
			errs = multierror.Append(errs, fmt.Errorf("unsigned image carries a non-zero signature or hash"))
		}
	case header.SignatureECDSA:
		if plaintext != nil {
			if digest := signing.Digest(plaintext); !bytes.Equal(digest[:], h.ImageHash[:]) {
				errs = multierror.Append(errs, fmt.Errorf("image hash mismatch"))
			}
			if pub != nil && !signing.Verify(plaintext, h.Signature[:], pub) {
				errs = multierror.Append(errs, fmt.Errorf("signature verification failed"))
			}
		}
	default:
		errs = multierror.Append(errs, fmt.Errorf("unknown signature type %d", h.SignatureType))
	}

	return errs.ErrorOrNil()
}
