// Package signing computes the payload digest and the deterministic ECDSA
// signature embedded in the application header.
package signing

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"os"

	"github.com/codahale/rfc6979"
)

// SignatureSize is the fixed width of the signature header field: r and s,
// 32 bytes each, big endian, no DER framing.
const SignatureSize = 64

// ErrKeyLoad wraps all failures to read or parse key material.
var ErrKeyLoad = errors.New("could not load key")

// Digest returns the SHA-256 digest of payload, as stored in the image_hash
// field.
func Digest(payload []byte) [sha256.Size]byte {
	return sha256.Sum256(payload)
}

// Sign produces a deterministic (RFC 6979) ECDSA signature over
// SHA-256(payload). Determinism matters here: re-signing the same image with
// the same key must produce a byte-identical output file.
func Sign(payload []byte, key *ecdsa.PrivateKey) ([]byte, error) {
	if key.Curve.Params().BitSize != 256 {
		return nil, fmt.Errorf("need a 256-bit curve key, got %s", key.Curve.Params().Name)
	}
	digest := Digest(payload)
	r, s, err := rfc6979.SignECDSA(key, digest[:], sha256.New)
	if err != nil {
		return nil, err
	}
	sig := make([]byte, SignatureSize)
	r.FillBytes(sig[:32])
	s.FillBytes(sig[32:])
	return sig, nil
}

// Verify checks a fixed-width r‖s signature over SHA-256(payload).
func Verify(payload []byte, sig []byte, pub *ecdsa.PublicKey) bool {
	if len(sig) != SignatureSize {
		return false
	}
	digest := Digest(payload)
	r := new(big.Int).SetBytes(sig[:32])
	s := new(big.Int).SetBytes(sig[32:])
	return ecdsa.Verify(pub, digest[:], r, s)
}

// LoadPrivateKey reads an EC private key from a PEM file. Both SEC1
// ("EC PRIVATE KEY") and PKCS#8 ("PRIVATE KEY") encodings are accepted.
func LoadPrivateKey(path string) (*ecdsa.PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyLoad, err)
	}
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block in %s", ErrKeyLoad, path)
	}
	switch block.Type {
	case "EC PRIVATE KEY":
		key, err := x509.ParseECPrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrKeyLoad, err)
		}
		return key, nil
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrKeyLoad, err)
		}
		ec, ok := key.(*ecdsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("%w: %s holds a %T, not an EC key", ErrKeyLoad, path, key)
		}
		return ec, nil
	default:
		return nil, fmt.Errorf("%w: unexpected PEM block %q in %s", ErrKeyLoad, block.Type, path)
	}
}

// LoadPublicKey reads an EC public key from a PKIX ("PUBLIC KEY") PEM file.
func LoadPublicKey(path string) (*ecdsa.PublicKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyLoad, err)
	}
	block, _ := pem.Decode(raw)
	if block == nil || block.Type != "PUBLIC KEY" {
		return nil, fmt.Errorf("%w: no PUBLIC KEY PEM block in %s", ErrKeyLoad, path)
	}
	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyLoad, err)
	}
	ec, ok := key.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: %s holds a %T, not an EC key", ErrKeyLoad, path, key)
	}
	return ec, nil
}
