// Package idgen generates the identifiers wat stores in its run history.
//
// Run and result rows are keyed by UUIDv7 so that lexical order in SQLite
// matches creation order.
package idgen

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Generator produces unique string identifiers.
type Generator func() string

// UUIDv7 returns a Generator that produces RFC 9562 UUID v7 strings.
func UUIDv7() Generator {
	return func() string {
		return uuid.Must(uuid.NewV7()).String()
	}
}

// Prefixed wraps a Generator and prepends a fixed prefix to every ID.
func Prefixed(prefix string, gen Generator) Generator {
	return func() string {
		return prefix + gen()
	}
}

// Default is UUIDv7.
var Default Generator = UUIDv7()

// New produces an ID using the Default generator.
func New() string {
	return Default()
}

// RunPrefix marks run identifiers.
const RunPrefix = "run_"

// NewRunID returns a fresh run identifier ("run_<uuidv7>").
func NewRunID() string {
	return RunPrefix + Default()
}

// ParseRunID validates a run identifier as produced by NewRunID.
func ParseRunID(s string) (string, error) {
	rest, ok := strings.CutPrefix(s, RunPrefix)
	if !ok {
		return "", fmt.Errorf("idgen: run id %q lacks %q prefix", s, RunPrefix)
	}
	u, err := uuid.Parse(rest)
	if err != nil {
		return "", fmt.Errorf("idgen: invalid run id: %w", err)
	}
	return RunPrefix + u.String(), nil
}
