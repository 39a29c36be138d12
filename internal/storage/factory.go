package storage

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"stash/internal/crypto"
	"stash/internal/logging"
	"stash/internal/store/bolt"
	"stash/internal/store/file"
)

// Kind names a backend flavour.
type Kind string

const (
	// KindBasic is the plain backend: store.lock in the working directory.
	KindBasic Kind = "basic"
	// KindAdvanced is the obfuscated backend: ~/.store.lock, encrypted, 0600.
	KindAdvanced Kind = "advanced"
	// KindEmbedded keeps the encrypted frame in a bbolt file, ~/.store.db.
	KindEmbedded Kind = "embedded"

	// DefaultKind is used when no kind is given.
	DefaultKind = KindAdvanced
)

const (
	plainFile    = "store.lock"
	hiddenFile   = ".store.lock"
	embeddedFile = ".store.db"
)

// Kinds lists every known kind. KindEmbedded is only built by a Factory
// that enables it.
func Kinds() []Kind { return []Kind{KindBasic, KindAdvanced, KindEmbedded} }

// ParseKind validates s, matching exactly. The empty string selects
// DefaultKind.
func ParseKind(s string) (Kind, error) {
	if s == "" {
		return DefaultKind, nil
	}
	for _, k := range Kinds() {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: unknown storage kind %q", ErrBadArgument, s)
}

// Factory builds backends. WorkDir anchors the plain file (empty means the
// process working directory); HomeDir anchors the hidden ones. Embedded
// must be set for KindEmbedded to be accepted.
type Factory struct {
	WorkDir  string
	HomeDir  string
	Embedded bool
	Keys     KeySource
	Logger   *slog.Logger
}

// FactoryOption configures a Factory.
type FactoryOption func(*Factory)

func WithWorkDir(dir string) FactoryOption {
	return func(f *Factory) { f.WorkDir = dir }
}

func WithHomeDir(dir string) FactoryOption {
	return func(f *Factory) { f.HomeDir = dir }
}

// WithSeed derives keys from seed instead of crypto.DefaultSeed.
func WithSeed(seed string) FactoryOption {
	return func(f *Factory) { f.Keys = crypto.NewDeriver([]byte(seed)) }
}

// WithEmbedded lets Get build KindEmbedded backends.
func WithEmbedded() FactoryOption {
	return func(f *Factory) { f.Embedded = true }
}

func WithFactoryLogger(l *slog.Logger) FactoryOption {
	return func(f *Factory) { f.Logger = l }
}

// NewFactory returns a Factory. HomeDir defaults to the user's home.
func NewFactory(opts ...FactoryOption) (*Factory, error) {
	f := &Factory{}
	for _, o := range opts {
		o(f)
	}
	if f.HomeDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("%w: resolving home directory: %w", ErrIO, err)
		}
		f.HomeDir = home
	}
	if f.Keys == nil {
		f.Keys = crypto.NewDeriver(nil)
	}
	if f.Logger == nil {
		f.Logger = logging.For("storage")
	}
	return f, nil
}

// Get returns a new backend of the given kind ("" selects DefaultKind).
func (f *Factory) Get(kind string) (*Backend, error) {
	k, err := ParseKind(kind)
	if err != nil {
		return nil, err
	}

	opts := []Option{withKind(k), WithKeySource(f.Keys), WithLogger(f.Logger)}
	switch k {
	case KindBasic:
		st := file.New(filepath.Join(f.WorkDir, plainFile), file.DefaultMode)
		return New(st, append(opts, WithTransform(Identity{}))...), nil
	case KindAdvanced:
		st := file.New(filepath.Join(f.HomeDir, hiddenFile), file.PrivateMode)
		return New(st, append(opts, WithTransform(Encrypting{}))...), nil
	case KindEmbedded:
		if !f.Embedded {
			return nil, fmt.Errorf("%w: storage kind %q is not enabled", ErrBadArgument, k)
		}
		st := bolt.New(filepath.Join(f.HomeDir, embeddedFile), file.PrivateMode)
		return New(st, append(opts, WithTransform(Encrypting{}))...), nil
	}
	return nil, fmt.Errorf("%w: unknown storage kind %q", ErrBadArgument, kind)
}

// Open builds a backend of the given kind with a default Factory, which
// knows only KindBasic and KindAdvanced.
func Open(kind string) (*Backend, error) {
	f, err := NewFactory()
	if err != nil {
		return nil, err
	}
	return f.Get(kind)
}
