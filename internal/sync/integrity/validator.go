// Package integrity computes and compares content checksums.
package integrity

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"strings"

	"github.com/spf13/afero"
	"github.com/zeebo/blake3"
)

const (
	MD5    = "md5"
	SHA256 = "sha256"
	BLAKE3 = "blake3"
)

// Validator hashes content with one algorithm
type Validator struct {
	algorithm string
	newHash   func() hash.Hash
}

// New returns a validator for algorithm (md5, sha256 or blake3)
func New(algorithm string) (*Validator, error) {
	algorithm = strings.ToLower(strings.TrimSpace(algorithm))
	switch algorithm {
	case MD5, "":
		return &Validator{algorithm: MD5, newHash: md5.New}, nil
	case SHA256:
		return &Validator{algorithm: SHA256, newHash: sha256.New}, nil
	case BLAKE3:
		return &Validator{algorithm: BLAKE3, newHash: func() hash.Hash { return blake3.New() }}, nil
	}
	return nil, fmt.Errorf("unsupported checksum algorithm: %s", algorithm)
}

// MustNew is New for algorithms known to be valid
func MustNew(algorithm string) *Validator {
	v, err := New(algorithm)
	if err != nil {
		panic(err)
	}
	return v
}

func (v *Validator) Algorithm() string {
	return v.algorithm
}

// NewHash returns a fresh hasher, for hashing while copying
func (v *Validator) NewHash() hash.Hash {
	return v.newHash()
}

// Sum encodes a hasher's digest the way Compute does
func Sum(h hash.Hash) string {
	return hex.EncodeToString(h.Sum(nil))
}

// Compute returns the hex digest of everything read from r
func (v *Validator) Compute(r io.Reader) (string, error) {
	h := v.newHash()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return Sum(h), nil
}

// ComputeBytes returns the hex digest of data
func (v *Validator) ComputeBytes(data []byte) string {
	h := v.newHash()
	_, _ = h.Write(data)
	return Sum(h)
}

// ComputeFile hashes the file at path on fs
func (v *Validator) ComputeFile(fs afero.Fs, path string) (sum string, err error) {
	f, err := fs.Open(path)
	if err != nil {
		return "", err
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	return v.Compute(f)
}

// Verify reports whether actual satisfies expected. An empty expected
// checksum cannot be checked and is accepted.
func (v *Validator) Verify(expected, actual string) bool {
	if expected == "" {
		return true
	}
	return Equal(expected, actual)
}

// Equal compares two hex digests case-insensitively. Empty digests never match.
func Equal(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return strings.EqualFold(a, b)
}
