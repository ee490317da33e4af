// Package id provides ID generation for builds, requests and sessions.
//
// Build and request IDs are prefixed ULIDs (bld_*, req_*): lexicographically
// sortable by creation time, safe to use as directory names, and readable
// in logs. PIN session IDs are random UUIDs since their creation time must
// not be derivable from the token.
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// BuildID identifies one build attempt and its artifact directory.
type BuildID string

// RequestID identifies an API request.
type RequestID string

// SessionID identifies a PIN session.
type SessionID string

const (
	BuildPrefix   = "bld"
	RequestPrefix = "req"
)

// Generator generates ULIDs with optional prefixes.
type Generator struct {
	mu      sync.Mutex
	entropy io.Reader
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

// NewGenerator creates a generator backed by crypto/rand with monotonic
// ordering inside the same millisecond.
func NewGenerator() *Generator {
	return &Generator{entropy: ulid.Monotonic(rand.Reader, 0)}
}

// NewGeneratorWithEntropy creates a generator with a custom entropy source.
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{entropy: entropy}
}

// Generate creates a new ULID.
func (g *Generator) Generate() ulid.ULID {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateWithPrefix creates a prefixed ULID string.
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.Generate().String())
}

// NewBuildID generates a new build ID.
func NewBuildID() BuildID {
	return BuildID(Default().GenerateWithPrefix(BuildPrefix))
}

// NewRequestID generates a new request ID.
func NewRequestID() RequestID {
	return RequestID(Default().GenerateWithPrefix(RequestPrefix))
}

// NewSessionID generates a random PIN session ID.
func NewSessionID() SessionID {
	return SessionID(uuid.NewString())
}

func (id BuildID) String() string   { return string(id) }
func (id RequestID) String() string { return string(id) }
func (id SessionID) String() string { return string(id) }

// IsValid checks if s is a bare ULID.
func IsValid(s string) bool {
	_, err := ulid.Parse(s)
	return err == nil
}

// IsPrefixed reports whether s has the form <prefix>_<ulid>.
func IsPrefixed(s, prefix string) bool {
	rest, ok := strings.CutPrefix(s, prefix+"_")
	return ok && len(rest) == ulid.EncodedSize && IsValid(rest)
}

// ValidBuildID reports whether s is a well-formed build ID.
func ValidBuildID(s string) bool {
	return IsPrefixed(s, BuildPrefix)
}

// ValidSessionID reports whether s is a well-formed session ID.
func ValidSessionID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

// Timestamp extracts the creation time encoded in a (possibly prefixed) ULID.
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
