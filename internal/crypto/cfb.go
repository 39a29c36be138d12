package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"runtime"
)

// IVSize is the length of the IV that prefixes every frame.
const IVSize = aes.BlockSize

var ErrShortFrame = errors.New("frame shorter than iv")

// SealCFB encrypts payload with AES in CFB mode under a fresh random IV and
// returns IV || ciphertext. The ciphertext is exactly as long as payload.
func SealCFB(key, payload []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes key: %w", err)
	}
	frame := make([]byte, IVSize+len(payload))
	iv := frame[:IVSize]
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, fmt.Errorf("generate iv: %w", err)
	}
	// CFB is deprecated for new protocols; the frame layout depends on it.
	cipher.NewCFBEncrypter(block, iv).XORKeyStream(frame[IVSize:], payload)
	return frame, nil
}

// OpenCFB reverses SealCFB. There is no authentication: a modified
// ciphertext decrypts to different bytes without an error. Only a frame
// too short to hold the IV is rejected.
func OpenCFB(key, frame []byte) ([]byte, error) {
	if len(frame) < IVSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrShortFrame, len(frame))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes key: %w", err)
	}
	iv, ct := frame[:IVSize], frame[IVSize:]
	out := make([]byte, len(ct))
	cipher.NewCFBDecrypter(block, iv).XORKeyStream(out, ct)
	return out, nil
}

// Wipe zeroes b. Best effort only.
//
//go:noinline
func Wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
	runtime.KeepAlive(&b)
}
