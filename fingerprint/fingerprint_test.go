package fingerprint

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func TestHashFile_KnownDigest(t *testing.T) {
	tests := []struct {
		name     string
		algo     Algorithm
		data     string
		expected string
	}{
		{
			name:     "sha256 abc",
			algo:     SHA256,
			data:     "abc",
			expected: "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad",
		},
		{
			name:     "sha256 empty",
			algo:     SHA256,
			data:     "",
			expected: "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		},
		{
			name:     "blake2b-256 empty",
			algo:     BLAKE2b,
			data:     "",
			expected: "0e5751c026e543b2e8ab2eb06099daa1d1e5df47778f7787faab45cdf12fe3a8",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := New(tt.algo)
			if err != nil {
				t.Fatalf("New(%q) error: %v", tt.algo, err)
			}
			path := writeFile(t, t.TempDir(), "f.bin", []byte(tt.data))
			got, err := h.HashFile(path)
			if err != nil {
				t.Fatalf("HashFile error: %v", err)
			}
			if got != tt.expected {
				t.Errorf("HashFile = %s, want %s", got, tt.expected)
			}
		})
	}
}

func TestHashFile_IdenticalBytesSameFingerprint(t *testing.T) {
	dir := t.TempDir()
	data := bytes.Repeat([]byte("photo-bytes-"), 20000) // larger than one buffer
	a := writeFile(t, dir, "a.jpg", data)
	b := writeFile(t, dir, "b.jpg", data)

	changed := append([]byte(nil), data...)
	changed[len(changed)/2] ^= 0x01
	c := writeFile(t, dir, "c.jpg", changed)

	h, _ := New(SHA256)
	ha, err := h.HashFile(a)
	if err != nil {
		t.Fatal(err)
	}
	hb, _ := h.HashFile(b)
	hc, _ := h.HashFile(c)

	if ha != hb {
		t.Errorf("identical files hashed differently: %s vs %s", ha, hb)
	}
	if ha == hc {
		t.Errorf("single byte change produced same fingerprint %s", ha)
	}
}

func TestHashFile_MissingFileIsIOError(t *testing.T) {
	h, _ := New(SHA256)
	_, err := h.HashFile(filepath.Join(t.TempDir(), "missing.jpg"))
	var ioErr *IOError
	if !errors.As(err, &ioErr) {
		t.Fatalf("expected *IOError, got %T (%v)", err, err)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected error to unwrap to os.ErrNotExist, got %v", err)
	}
}

func TestHashReader_MatchesHashFile(t *testing.T) {
	h, _ := New(BLAKE2b)
	data := "the same content"
	path := writeFile(t, t.TempDir(), "x", []byte(data))
	fromFile, _ := h.HashFile(path)
	fromReader, err := h.HashReader(strings.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if fromFile != fromReader {
		t.Errorf("HashReader = %s, HashFile = %s", fromReader, fromFile)
	}
}

func TestParseAlgorithm(t *testing.T) {
	tests := []struct {
		in      string
		want    Algorithm
		wantErr bool
	}{
		{"", SHA256, false},
		{"SHA256", SHA256, false},
		{" blake2b ", BLAKE2b, false},
		{"md5", "", true},
	}
	for _, tt := range tests {
		got, err := ParseAlgorithm(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseAlgorithm(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseAlgorithm(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
