// Package fwcrypt applies the AES-128-CTR payload encryption and manages the
// symmetric key material it needs. Key material is injected through the
// Provider interface; the historical compiled-in constants survive as the
// default provider so images stay verifiable against existing deployments.
package fwcrypt

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"
)

// KeySize is the AES key and counter width in bytes.
const KeySize = 16

// Material is one symmetric key/IV pair. The IV is the big-endian initial
// value of the CTR counter.
type Material struct {
	Key [KeySize]byte
	IV  [KeySize]byte
}

// Provider hands out the key material used for payload encryption.
type Provider interface {
	Material() (Material, error)
}

// Static is a Provider wrapping a fixed Material.
type Static struct {
	M Material
}

func (s Static) Material() (Material, error) {
	return s.M, nil
}

// DefaultMaterial returns the key/IV pair historically baked into the tool.
// Images encrypted with it are decryptable by all deployed bootloaders, which
// is the only reason it still exists.
func DefaultMaterial() Material {
	return Material{
		Key: [KeySize]byte{0x1b, 0x0e, 0x6c, 0x90, 0x34, 0xda, 0x00, 0x32, 0x33, 0xdd, 0x54, 0x54, 0x09, 0xcf, 0x23, 0x41},
		IV:  [KeySize]byte{0x45, 0xf2, 0x34, 0x12, 0xa3, 0x32, 0x34, 0xfd, 0xab, 0xcc, 0x1c, 0xed, 0x1c, 0x41, 0x20, 0x0f},
	}
}

// FileProvider loads Material from a YAML file:
//
//	key: 000102030405060708090a0b0c0d0e0f
//	iv:  0f0e0d0c0b0a09080706050403020100
type FileProvider struct {
	Path string
}

type materialFile struct {
	Key string `yaml:"key"`
	IV  string `yaml:"iv"`
}

func (f FileProvider) Material() (Material, error) {
	var m Material
	raw, err := os.ReadFile(f.Path)
	if err != nil {
		return m, fmt.Errorf("could not read key material: %w", err)
	}
	var mf materialFile
	if err := yaml.Unmarshal(raw, &mf); err != nil {
		return m, fmt.Errorf("could not parse key material: %w", err)
	}
	if err := decodeHex(m.Key[:], mf.Key, "key"); err != nil {
		return m, err
	}
	if err := decodeHex(m.IV[:], mf.IV, "iv"); err != nil {
		return m, err
	}
	return m, nil
}

func decodeHex(dst []byte, s, what string) error {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", what, err)
	}
	if len(raw) != len(dst) {
		return fmt.Errorf("invalid %s: got %d bytes, want %d", what, len(raw), len(dst))
	}
	copy(dst, raw)
	return nil
}

// DefaultConfigPath looks for key material in the XDG config directories
// (usually ~/.config/appsign/keymat.yaml). Returns an error when no file
// exists.
func DefaultConfigPath() (string, error) {
	return xdg.SearchConfigFile("appsign/keymat.yaml")
}

// Apply runs AES-128-CTR over data in place. CTR is its own inverse, so the
// same call both encrypts and decrypts.
func Apply(m Material, data []byte) error {
	block, err := aes.NewCipher(m.Key[:])
	if err != nil {
		return fmt.Errorf("could not init cipher: %w", err)
	}
	cipher.NewCTR(block, m.IV[:]).XORKeyStream(data, data)
	return nil
}
