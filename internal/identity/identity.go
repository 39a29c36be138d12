package identity

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// ErrNoDomain is returned when an identifier is requested without a domain.
var ErrNoDomain = errors.New("identity: empty domain")

// Options selects the shape of a generated identifier.
type Options struct {
	Domain string
	// Prefix switches to the short form <prefix><time_low>@<domain>,
	// where time_low is the first 32 bits of a fresh random UUID in decimal.
	Prefix string
}

// New returns a fresh Jabber-style identifier. Without a prefix it is
// <uuid>@<domain>.
func New(opts Options) (string, error) {
	domain := strings.TrimSpace(opts.Domain)
	if domain == "" {
		return "", ErrNoDomain
	}

	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generating uuid: %w", err)
	}

	if opts.Prefix == "" {
		return id.String() + "@" + domain, nil
	}
	return opts.Prefix + strconv.FormatUint(uint64(timeLow(id)), 10) + "@" + domain, nil
}

func timeLow(id uuid.UUID) uint32 {
	return binary.BigEndian.Uint32(id[:4])
}
