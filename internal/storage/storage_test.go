package storage

import (
	"bytes"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"stash/internal/crypto"
	"stash/internal/logging"
	"stash/internal/store/file"
)

var credentials = []any{"alice@iot.example.net", "mYsEcret007"}

func tempFactory(t *testing.T, opts ...FactoryOption) *Factory {
	t.Helper()
	base := []FactoryOption{WithWorkDir(t.TempDir()), WithHomeDir(t.TempDir()), WithEmbedded()}
	f, err := NewFactory(append(base, opts...)...)
	if err != nil {
		t.Fatal(err)
	}
	return f
}

func mustGet(t *testing.T, f *Factory, kind Kind) *Backend {
	t.Helper()
	b, err := f.Get(string(kind))
	if err != nil {
		t.Fatalf("Get(%q): %v", kind, err)
	}
	return b
}

func TestRoundTrip(t *testing.T) {
	values := []any{
		credentials,
		map[string]any{"jid": "alice@iot.example.net", "port": int64(5222), "tls": true},
		"just a string",
		int64(-7),
		nil,
		[]any{[]byte{0, 1, 2}, 2.5, map[string]any{}},
	}
	for _, kind := range Kinds() {
		t.Run(string(kind), func(t *testing.T) {
			b := mustGet(t, tempFactory(t), kind)
			for _, v := range values {
				if err := b.Store(v); err != nil {
					t.Fatalf("Store(%#v): %v", v, err)
				}
				got, err := b.Retrieve()
				if err != nil {
					t.Fatalf("Retrieve: %v", err)
				}
				if !reflect.DeepEqual(got, v) {
					t.Fatalf("got %#v, want %#v", got, v)
				}
			}
		})
	}
}

func TestRetrieveReturnsFreshCopy(t *testing.T) {
	b := mustGet(t, tempFactory(t), KindAdvanced)
	if err := b.Store(credentials); err != nil {
		t.Fatal(err)
	}
	first, err := b.Retrieve()
	if err != nil {
		t.Fatal(err)
	}
	first.([]any)[0] = "mallory"

	second, err := b.Retrieve()
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(second, credentials) {
		t.Fatalf("mutation leaked into storage: %#v", second)
	}
}

func TestRetrieveInto(t *testing.T) {
	b := mustGet(t, tempFactory(t), KindAdvanced)
	if err := b.Store([]string{"alice@iot.example.net", "mYsEcret007"}); err != nil {
		t.Fatal(err)
	}

	var pair [2]string
	if err := b.RetrieveInto(&pair); err != nil {
		t.Fatal(err)
	}
	if pair != [2]string{"alice@iot.example.net", "mYsEcret007"} {
		t.Fatalf("got %v", pair)
	}

	var wrong struct{ JID string }
	if err := b.RetrieveInto(&wrong); !errors.Is(err, ErrBadFormat) {
		t.Fatalf("expected ErrBadFormat, got %v", err)
	}
}

func TestConfidentiality(t *testing.T) {
	for _, kind := range []Kind{KindAdvanced, KindEmbedded} {
		t.Run(string(kind), func(t *testing.T) {
			b := mustGet(t, tempFactory(t), kind)
			if err := b.Store(credentials); err != nil {
				t.Fatal(err)
			}
			raw, err := os.ReadFile(b.Path())
			if err != nil {
				t.Fatal(err)
			}
			for _, s := range []string{"alice@iot.example.net", "alice", "mYsEcret007", "Ecret"} {
				if bytes.Contains(raw, []byte(s)) {
					t.Fatalf("file contains plaintext %q", s)
				}
			}
		})
	}
}

func TestPlainIsPlain(t *testing.T) {
	b := mustGet(t, tempFactory(t), KindBasic)
	if err := b.Store(credentials); err != nil {
		t.Fatal(err)
	}
	raw, err := os.ReadFile(b.Path())
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(raw, []byte("alice@iot.example.net")) || !bytes.Contains(raw, []byte("mYsEcret007")) {
		t.Fatal("basic backend should store the payload unencrypted")
	}
}

func TestFrameLayout(t *testing.T) {
	b := mustGet(t, tempFactory(t), KindAdvanced)
	if err := b.Store(credentials); err != nil {
		t.Fatal(err)
	}
	raw, err := os.ReadFile(b.Path())
	if err != nil {
		t.Fatal(err)
	}
	plain := mustGet(t, tempFactory(t), KindBasic)
	if err := plain.Store(credentials); err != nil {
		t.Fatal(err)
	}
	payload, err := os.ReadFile(plain.Path())
	if err != nil {
		t.Fatal(err)
	}
	if len(raw) != crypto.IVSize+len(payload) {
		t.Fatalf("frame length: got %d, want IV + %d", len(raw), len(payload))
	}
}

func TestPermissions(t *testing.T) {
	for _, kind := range []Kind{KindAdvanced, KindEmbedded} {
		t.Run(string(kind), func(t *testing.T) {
			b := mustGet(t, tempFactory(t), kind)
			if err := b.Store(credentials); err != nil {
				t.Fatal(err)
			}
			info, err := os.Stat(b.Path())
			if err != nil {
				t.Fatal(err)
			}
			if perm := info.Mode().Perm(); perm != 0o600 {
				t.Fatalf("mode: got %o, want 600", perm)
			}
		})
	}
}

func TestShortFrameRejected(t *testing.T) {
	b := mustGet(t, tempFactory(t), KindAdvanced)
	for _, n := range []int{0, 1, crypto.IVSize - 1} {
		if err := os.WriteFile(b.Path(), bytes.Repeat([]byte{0xAA}, n), 0o600); err != nil {
			t.Fatal(err)
		}
		_, err := b.Retrieve()
		if !errors.Is(err, ErrBadFormat) {
			t.Errorf("%d bytes: expected ErrBadFormat, got %v", n, err)
		}
		if !errors.Is(err, ErrShortFrame) {
			t.Errorf("%d bytes: expected ErrShortFrame, got %v", n, err)
		}
	}
}

func TestIVOnlyFrame(t *testing.T) {
	b := mustGet(t, tempFactory(t), KindAdvanced)
	if err := os.WriteFile(b.Path(), make([]byte, crypto.IVSize), 0o600); err != nil {
		t.Fatal(err)
	}
	// Long enough to frame, decrypts to an empty payload.
	_, err := b.Retrieve()
	if !errors.Is(err, ErrBadFormat) || errors.Is(err, ErrShortFrame) {
		t.Fatalf("expected ErrBadFormat from the codec, got %v", err)
	}
}

func TestMissingFile(t *testing.T) {
	for _, kind := range Kinds() {
		t.Run(string(kind), func(t *testing.T) {
			b := mustGet(t, tempFactory(t), kind)
			if err := b.Store(credentials); err != nil {
				t.Fatal(err)
			}
			if err := os.Remove(b.Path()); err != nil {
				t.Fatal(err)
			}
			_, err := b.Retrieve()
			if !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
			if !errors.Is(err, fs.ErrNotExist) {
				t.Fatalf("expected fs.ErrNotExist in chain, got %v", err)
			}
		})
	}
}

func TestTamperIsSilent(t *testing.T) {
	b := mustGet(t, tempFactory(t), KindAdvanced)
	if err := b.Store(credentials); err != nil {
		t.Fatal(err)
	}
	raw, err := os.ReadFile(b.Path())
	if err != nil {
		t.Fatal(err)
	}
	// Offset 6 of the payload is the first byte of the JID string.
	raw[crypto.IVSize+6] ^= 0x01
	if err := os.WriteFile(b.Path(), raw, 0o600); err != nil {
		t.Fatal(err)
	}

	got, err := b.Retrieve()
	if errors.Is(err, ErrShortFrame) {
		t.Fatalf("tampering inside the ciphertext must not look like a framing error: %v", err)
	}
	if err == nil && reflect.DeepEqual(got, credentials) {
		t.Fatal("tampered ciphertext decoded to the original value")
	}
}

func TestTruncatedCiphertext(t *testing.T) {
	b := mustGet(t, tempFactory(t), KindAdvanced)
	if err := b.Store(credentials); err != nil {
		t.Fatal(err)
	}
	raw, err := os.ReadFile(b.Path())
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(b.Path(), raw[:len(raw)-3], 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Retrieve(); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}
}

func TestPlainCorrupt(t *testing.T) {
	b := mustGet(t, tempFactory(t), KindBasic)
	if err := os.WriteFile(b.Path(), []byte{0x42, 0x7f, 0x0a}, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Retrieve(); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}
}

func TestReproducibleAcrossInstances(t *testing.T) {
	home := t.TempDir()
	writer, err := NewFactory(WithHomeDir(home))
	if err != nil {
		t.Fatal(err)
	}
	if err := mustGet(t, writer, KindAdvanced).Store(credentials); err != nil {
		t.Fatal(err)
	}

	reader, err := NewFactory(WithHomeDir(home))
	if err != nil {
		t.Fatal(err)
	}
	got, err := mustGet(t, reader, KindAdvanced).Retrieve()
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, credentials) {
		t.Fatalf("got %#v", got)
	}
}

func TestSeedMismatch(t *testing.T) {
	home := t.TempDir()
	a, _ := NewFactory(WithHomeDir(home), WithSeed("seed-a"))
	bf, _ := NewFactory(WithHomeDir(home), WithSeed("seed-b"))

	if err := mustGet(t, a, KindAdvanced).Store(credentials); err != nil {
		t.Fatal(err)
	}
	got, err := mustGet(t, bf, KindAdvanced).Retrieve()
	if err == nil && reflect.DeepEqual(got, credentials) {
		t.Fatal("a different seed should not recover the value")
	}
}

type countingKeys struct {
	calls int
	d     *crypto.Deriver
}

func (c *countingKeys) Derive(n int) ([]byte, error) {
	c.calls++
	return c.d.Derive(n)
}

func TestKeyDerivedPerCall(t *testing.T) {
	keys := &countingKeys{d: crypto.NewDeriver(nil)}
	st := file.New(filepath.Join(t.TempDir(), ".store.lock"), file.PrivateMode)
	b := New(st, WithTransform(Encrypting{}), WithKeySource(keys))

	if err := b.Store(credentials); err != nil {
		t.Fatal(err)
	}
	for range 3 {
		if _, err := b.Retrieve(); err != nil {
			t.Fatal(err)
		}
	}
	if keys.calls != 4 {
		t.Fatalf("expected a derivation per call (4), got %d", keys.calls)
	}
}

func TestIdentityNeedsNoKey(t *testing.T) {
	keys := &countingKeys{d: crypto.NewDeriver(nil)}
	st := file.New(filepath.Join(t.TempDir(), "store.lock"), file.DefaultMode)
	b := New(st, WithKeySource(keys))

	if err := b.Store("x"); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Retrieve(); err != nil {
		t.Fatal(err)
	}
	if keys.calls != 0 {
		t.Fatalf("identity transform should not derive keys, got %d calls", keys.calls)
	}
	if b.Kind() != "" {
		t.Fatalf("hand-built backend kind: got %q", b.Kind())
	}
}

func TestStoreUnserializable(t *testing.T) {
	b := mustGet(t, tempFactory(t), KindBasic)
	if err := b.Store(make(chan int)); !errors.Is(err, ErrBadArgument) {
		t.Fatalf("expected ErrBadArgument, got %v", err)
	}
	if _, err := os.Stat(b.Path()); !errors.Is(err, fs.ErrNotExist) {
		t.Fatal("a failed store should not create the file")
	}
}

func TestStoreMissingDirectory(t *testing.T) {
	f, err := NewFactory(
		WithWorkDir(filepath.Join(t.TempDir(), "missing")),
		WithHomeDir(filepath.Join(t.TempDir(), "missing")),
		WithEmbedded(),
	)
	if err != nil {
		t.Fatal(err)
	}
	for _, kind := range Kinds() {
		if err := mustGet(t, f, kind).Store(credentials); !errors.Is(err, ErrIO) {
			t.Errorf("%s: expected ErrIO, got %v", kind, err)
		}
	}
}

func TestStorePermissionDenied(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root ignores directory permissions")
	}
	dir := t.TempDir()
	if err := os.Chmod(dir, 0o500); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chmod(dir, 0o700) })

	f, err := NewFactory(WithWorkDir(dir), WithHomeDir(dir))
	if err != nil {
		t.Fatal(err)
	}
	err = mustGet(t, f, KindAdvanced).Store(credentials)
	if !errors.Is(err, ErrIO) || !errors.Is(err, fs.ErrPermission) {
		t.Fatalf("expected ErrIO wrapping fs.ErrPermission, got %v", err)
	}
}

func TestRemove(t *testing.T) {
	b := mustGet(t, tempFactory(t), KindAdvanced)
	if err := b.Store(credentials); err != nil {
		t.Fatal(err)
	}
	if err := b.Remove(); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Retrieve(); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLogsNeverCarryValues(t *testing.T) {
	c := logging.CaptureForTest()
	defer c.Restore()

	b := mustGet(t, tempFactory(t), KindAdvanced)
	if err := b.Store(credentials); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Retrieve(); err != nil {
		t.Fatal(err)
	}

	if len(c.Records()) == 0 {
		t.Fatal("expected storage log records")
	}
	for _, s := range []string{"alice@iot.example.net", "mYsEcret007"} {
		if c.Mentions(s) {
			t.Errorf("logs mention %q", s)
		}
	}
	if v, ok := c.Attr("storing value", "path"); !ok || v.String() != b.Path() {
		t.Errorf("store log should carry the path, got %v", v)
	}
}
