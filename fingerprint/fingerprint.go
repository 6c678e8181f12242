// Package fingerprint computes content fingerprints used as photo identity.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// Algorithm names a digest function.
type Algorithm string

const (
	SHA256  Algorithm = "sha256"
	BLAKE2b Algorithm = "blake2b"
)

// bufferSize bounds the memory used per hashed file regardless of its size.
const bufferSize = 64 * 1024

// IOError reports a file that could not be read for hashing.
type IOError struct {
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("failed to read %s: %v", e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// ParseAlgorithm validates an algorithm name. Empty selects SHA256.
func ParseAlgorithm(name string) (Algorithm, error) {
	switch Algorithm(strings.ToLower(strings.TrimSpace(name))) {
	case "", SHA256:
		return SHA256, nil
	case BLAKE2b:
		return BLAKE2b, nil
	default:
		return "", fmt.Errorf("unknown hash algorithm '%s': must be %s or %s", name, SHA256, BLAKE2b)
	}
}

// Hasher produces hex encoded digests. It is safe for concurrent use.
type Hasher struct {
	algo Algorithm
}

func New(algo Algorithm) (*Hasher, error) {
	a, err := ParseAlgorithm(string(algo))
	if err != nil {
		return nil, err
	}
	return &Hasher{algo: a}, nil
}

func (h *Hasher) Algorithm() Algorithm {
	return h.algo
}

func (h *Hasher) newHash() hash.Hash {
	if h.algo == BLAKE2b {
		// only errors on an oversized key
		d, _ := blake2b.New256(nil)
		return d
	}
	return sha256.New()
}

// HashReader streams r through the digest.
func (h *Hasher) HashReader(r io.Reader) (string, error) {
	d := h.newHash()
	buf := make([]byte, bufferSize)
	if _, err := io.CopyBuffer(d, r, buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(d.Sum(nil)), nil
}

// HashFile fingerprints the file at path. Any failure to open or read it is
// returned as *IOError.
func (h *Hasher) HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", &IOError{Path: path, Err: err}
	}
	defer f.Close()

	sum, err := h.HashReader(f)
	if err != nil {
		return "", &IOError{Path: path, Err: err}
	}
	return sum, nil
}
