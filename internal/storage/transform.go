package storage

import (
	"errors"
	"fmt"

	"stash/internal/crypto"
)

// Transform is applied to the serialized payload on its way to and from
// the medium. key is the derived key material, nil when KeyLen is 0.
type Transform interface {
	Name() string
	// KeyLen is the key length Seal and Open expect; 0 means no key.
	KeyLen() int
	Seal(payload, key []byte) ([]byte, error)
	Open(frame, key []byte) ([]byte, error)
}

// Identity leaves the payload as is.
type Identity struct{}

func (Identity) Name() string { return "identity" }
func (Identity) KeyLen() int  { return 0 }

func (Identity) Seal(payload, _ []byte) ([]byte, error) {
	return append([]byte(nil), payload...), nil
}

func (Identity) Open(frame, _ []byte) ([]byte, error) {
	return append([]byte(nil), frame...), nil
}

// Encrypting frames the payload as IV || AES-192-CFB(payload).
type Encrypting struct{}

func (Encrypting) Name() string { return "aes-cfb" }
func (Encrypting) KeyLen() int  { return crypto.KeySize }

func (Encrypting) Seal(payload, key []byte) ([]byte, error) {
	return crypto.SealCFB(key, payload)
}

func (Encrypting) Open(frame, key []byte) ([]byte, error) {
	out, err := crypto.OpenCFB(key, frame)
	if errors.Is(err, crypto.ErrShortFrame) {
		return nil, fmt.Errorf("%w: %w", ErrBadFormat, err)
	}
	return out, err
}
