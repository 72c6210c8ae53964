package fwcrypt

import (
	"bytes"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"
)

// Known-answer test for the default key/IV, cross-checked against the
// original tool's output.
func TestApplyKnownAnswer(t *testing.T) {
	pt := make([]byte, 64)
	for i := range pt {
		pt[i] = byte(i)
	}
	want, err := hex.DecodeString(
		"8f2d31d4bdd6e434600999af3708a4d0014a42890833984b358acadceae59fda" +
			"54ffd3bcee87a10c2a18ec611d7d64bffd97f390503f29535ac4f253220a0905")
	if err != nil {
		t.Fatal(err)
	}

	ct := append([]byte(nil), pt...)
	if err := Apply(DefaultMaterial(), ct); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !bytes.Equal(ct, want) {
		t.Errorf("ciphertext mismatch:\n got %x\nwant %x", ct, want)
	}
}

func TestApplyRoundTrip(t *testing.T) {
	m := DefaultMaterial()
	pt := []byte("not a multiple of the block size either")
	data := append([]byte(nil), pt...)

	if err := Apply(m, data); err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if bytes.Equal(data, pt) {
		t.Fatalf("ciphertext equals plaintext")
	}
	if err := Apply(m, data); err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if !bytes.Equal(data, pt) {
		t.Errorf("round trip did not recover plaintext: %q", data)
	}
}

func TestFileProvider(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keymat.yaml")
	content := "key: 000102030405060708090a0b0c0d0e0f\niv: 0f0e0d0c0b0a09080706050403020100\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	m, err := FileProvider{Path: path}.Material()
	if err != nil {
		t.Fatalf("Material: %v", err)
	}
	if m.Key[0] != 0x00 || m.Key[15] != 0x0f || m.IV[0] != 0x0f || m.IV[15] != 0x00 {
		t.Errorf("unexpected material: %+v", m)
	}
}

func TestFileProviderRejectsBadMaterial(t *testing.T) {
	for _, te := range []struct {
		name    string
		content string
	}{
		{"short key", "key: 0001\niv: 0f0e0d0c0b0a09080706050403020100\n"},
		{"bad hex", "key: zz0102030405060708090a0b0c0d0e0f\niv: 0f0e0d0c0b0a09080706050403020100\n"},
		{"not yaml", ": [\n"},
	} {
		path := filepath.Join(t.TempDir(), "keymat.yaml")
		if err := os.WriteFile(path, []byte(te.content), 0600); err != nil {
			t.Fatal(err)
		}
		if _, err := (FileProvider{Path: path}).Material(); err == nil {
			t.Errorf("%s: accepted", te.name)
		}
	}

	if _, err := (FileProvider{Path: filepath.Join(t.TempDir(), "missing.yaml")}).Material(); err == nil {
		t.Errorf("missing file: accepted")
	}
}

func TestStatic(t *testing.T) {
	want := DefaultMaterial()
	got, err := Static{M: want}.Material()
	if err != nil {
		t.Fatalf("Material: %v", err)
	}
	if got != want {
		t.Errorf("Static returned different material")
	}
}
