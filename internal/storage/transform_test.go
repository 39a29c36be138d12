package storage

import (
	"bytes"
	"errors"
	"testing"

	"stash/internal/crypto"
)

func TestIdentityTransform(t *testing.T) {
	var tr Identity
	in := []byte("payload")
	out, err := tr.Seal(in, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out, in) {
		t.Fatalf("got %q", out)
	}
	out[0] = 'X'
	if in[0] != 'p' {
		t.Fatal("Seal should not alias its input")
	}
	back, err := tr.Open(in, nil)
	if err != nil || !bytes.Equal(back, in) {
		t.Fatalf("Open: %q, %v", back, err)
	}
}

func TestEncryptingTransform(t *testing.T) {
	var tr Encrypting
	if tr.KeyLen() != crypto.KeySize {
		t.Fatalf("KeyLen: got %d", tr.KeyLen())
	}
	key, err := crypto.NewDeriver(nil).Derive(tr.KeyLen())
	if err != nil {
		t.Fatal(err)
	}

	frame, err := tr.Seal([]byte("payload"), key)
	if err != nil {
		t.Fatal(err)
	}
	got, err := tr.Open(frame, key)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "payload" {
		t.Fatalf("got %q", got)
	}

	_, err = tr.Open(frame[:crypto.IVSize-1], key)
	if !errors.Is(err, ErrBadFormat) || !errors.Is(err, ErrShortFrame) {
		t.Fatalf("expected ErrBadFormat/ErrShortFrame, got %v", err)
	}
}
