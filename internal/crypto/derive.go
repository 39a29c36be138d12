// Package crypto holds the key derivation and cipher framing used by the
// obfuscated storage backends.
//
// The storage key is derived from a seed that ships with the binary (or
// comes from configuration). Nothing secret is stored next to the data, and
// nothing is asked from the user, so anyone holding the binary and the seed
// can decrypt the file. This keeps casual readers and backup scanners out;
// it is not protection against a determined local attacker.
package crypto

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// KeySize is the length of the storage key (AES-192).
const KeySize = 24

// DefaultSeed is the built-in input keying material.
const DefaultSeed = "stash/default-seed/28539402405045607"

const keyInfo = "stash/storage-key/v1"

var ErrInvalidLength = errors.New("invalid key length")

// Deriver produces the storage key. Repeated calls with the same length
// return identical bytes, in this process and in any later one built with
// the same seed.
type Deriver struct {
	seed []byte
}

// NewDeriver returns a Deriver over seed; an empty seed selects DefaultSeed.
func NewDeriver(seed []byte) *Deriver {
	if len(seed) == 0 {
		seed = []byte(DefaultSeed)
	}
	return &Deriver{seed: append([]byte(nil), seed...)}
}

// Derive returns length bytes of HKDF-SHA256 output. The caller owns the
// returned slice and should Wipe it when done.
func (d *Deriver) Derive(length int) ([]byte, error) {
	if length <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLength, length)
	}
	r := hkdf.New(sha256.New, d.seed, nil, []byte(keyInfo))
	out := make([]byte, length)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, fmt.Errorf("derive storage key: %w", err)
	}
	return out, nil
}
