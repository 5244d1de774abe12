// Package id provides ULID-based identifiers for TabWall.
//
// Identifiers are prefixed by kind so they read well in logs:
//   - bc_<ulid>: one broadcast run
//   - req_<ulid>: one API request
//
// ULIDs sort by creation time, so broadcast runs listed by id are also
// listed in the order they were started.
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// BroadcastID identifies a broadcast run
type BroadcastID string

// RequestID identifies an API request
type RequestID string

const (
	BroadcastPrefix = "bc"
	RequestPrefix   = "req"
)

// Generator generates ULIDs with optional prefixes
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the process-wide generator.
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a generator backed by crypto/rand.
func NewGenerator() *Generator {
	return &Generator{entropy: rand.Reader}
}

// NewGeneratorWithEntropy creates a generator with a custom entropy source,
// for deterministic tests.
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{entropy: entropy}
}

// Generate creates a new ULID
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateWithPrefix creates a prefixed ULID string
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.Generate().String())
}

// NewBroadcastID generates a broadcast run id.
func NewBroadcastID() BroadcastID {
	return BroadcastID(Default().GenerateWithPrefix(BroadcastPrefix))
}

// NewRequestID generates an API request id.
func NewRequestID() RequestID {
	return RequestID(Default().GenerateWithPrefix(RequestPrefix))
}

func (id BroadcastID) String() string { return string(id) }
func (id RequestID) String() string   { return string(id) }

// Timestamp extracts the creation time from a (possibly prefixed) id.
func Timestamp(s string) (time.Time, error) {
	if i := strings.LastIndexByte(s, '_'); i >= 0 {
		s = s[i+1:]
	}
	parsed, err := ulid.Parse(s)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}
