package storage

import (
	"fmt"
	"log/slog"

	"stash/internal/codec"
	"stash/internal/crypto"
	"stash/internal/logging"
	"stash/internal/store"
)

// Serializer turns values into payload bytes and back.
type Serializer interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(b []byte) (any, error)
	Decode(b []byte, dst any) error
}

// KeySource yields the key material handed to a Transform.
type KeySource interface {
	Derive(length int) ([]byte, error)
}

// Backend persists one value to one store.Store. It keeps no state between
// calls besides its configuration: every Store and Retrieve goes to the
// medium, and the key is derived afresh each time.
type Backend struct {
	kind      Kind
	st        store.Store
	ser       Serializer
	transform Transform
	keys      KeySource
	log       *slog.Logger
}

// Option configures a Backend.
type Option func(*Backend)

// WithTransform sets the payload transform (default Identity).
func WithTransform(t Transform) Option {
	return func(b *Backend) { b.transform = t }
}

// WithKeySource sets where key material comes from (default: a Deriver
// over crypto.DefaultSeed).
func WithKeySource(k KeySource) Option {
	return func(b *Backend) { b.keys = k }
}

// WithSerializer replaces the codec.
func WithSerializer(s Serializer) Option {
	return func(b *Backend) { b.ser = s }
}

// WithLogger sets the logger (default logging.For("storage")).
func WithLogger(l *slog.Logger) Option {
	return func(b *Backend) { b.log = l }
}

func withKind(k Kind) Option {
	return func(b *Backend) { b.kind = k }
}

// New returns a Backend writing to st.
func New(st store.Store, opts ...Option) *Backend {
	b := &Backend{
		st:        st,
		ser:       codec.Codec{},
		transform: Identity{},
		log:       logging.For("storage"),
	}
	for _, o := range opts {
		o(b)
	}
	if b.keys == nil {
		b.keys = crypto.NewDeriver(nil)
	}
	return b
}

// Path returns the location of the storage file.
func (b *Backend) Path() string { return b.st.Path() }

// Kind returns the factory kind this backend was built as, or "" for a
// backend assembled with New.
func (b *Backend) Kind() Kind { return b.kind }

// Store serializes v and replaces the stored value with it.
func (b *Backend) Store(v any) error {
	b.log.Info("storing value", "path", b.Path(), "transform", b.transform.Name())

	payload, err := b.ser.Marshal(v)
	if err != nil {
		return fmt.Errorf("serializing value: %w", err)
	}
	frame, err := b.seal(payload)
	if err != nil {
		return err
	}
	b.log.Debug("writing payload", "payload_bytes", len(payload), "stored_bytes", len(frame))
	return b.st.Write(frame)
}

// Retrieve reads the stored value and returns a freshly decoded copy of it.
func (b *Backend) Retrieve() (any, error) {
	payload, err := b.load()
	if err != nil {
		return nil, err
	}
	v, err := b.ser.Unmarshal(payload)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", b.Path(), err)
	}
	return v, nil
}

// RetrieveInto reads the stored value into dst, which must be a non-nil
// pointer. A stored value whose shape does not fit dst is ErrBadFormat.
func (b *Backend) RetrieveInto(dst any) error {
	payload, err := b.load()
	if err != nil {
		return err
	}
	if err := b.ser.Decode(payload, dst); err != nil {
		return fmt.Errorf("decoding %s: %w", b.Path(), err)
	}
	return nil
}

// Remove deletes the stored value.
func (b *Backend) Remove() error {
	b.log.Info("removing value", "path", b.Path())
	return b.st.Remove()
}

func (b *Backend) load() ([]byte, error) {
	b.log.Info("retrieving value", "path", b.Path(), "transform", b.transform.Name())

	frame, err := b.st.Read()
	if err != nil {
		return nil, err
	}
	payload, err := b.open(frame)
	if err != nil {
		return nil, err
	}
	b.log.Debug("read payload", "stored_bytes", len(frame), "payload_bytes", len(payload))
	return payload, nil
}

func (b *Backend) seal(payload []byte) ([]byte, error) {
	key, err := b.key()
	if err != nil {
		return nil, err
	}
	defer crypto.Wipe(key)

	frame, err := b.transform.Seal(payload, key)
	if err != nil {
		return nil, fmt.Errorf("%s seal: %w", b.transform.Name(), err)
	}
	return frame, nil
}

func (b *Backend) open(frame []byte) ([]byte, error) {
	key, err := b.key()
	if err != nil {
		return nil, err
	}
	defer crypto.Wipe(key)

	payload, err := b.transform.Open(frame, key)
	if err != nil {
		return nil, fmt.Errorf("%s open %s: %w", b.transform.Name(), b.Path(), err)
	}
	return payload, nil
}

func (b *Backend) key() ([]byte, error) {
	n := b.transform.KeyLen()
	if n == 0 {
		return nil, nil
	}
	key, err := b.keys.Derive(n)
	if err != nil {
		return nil, fmt.Errorf("deriving key: %w", err)
	}
	return key, nil
}
