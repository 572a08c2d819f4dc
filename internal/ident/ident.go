// Package ident generates and validates human-readable fixing transaction
// ids of the form <prefix><digits>, e.g. PF482910 for a purchase fixing.
//
// Generation is an injectable abstraction so the retry-probe generator used
// against the store can be swapped for a strictly monotonic sequence without
// touching the lifecycle code.
package ident

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"regexp"
)

// ErrExhausted is returned when every probe attempt collided with an
// existing id.
var ErrExhausted = errors.New("ident: id generation exhausted retry attempts")

// idRegex matches <prefix><digits>: two or more uppercase letters followed
// by the numeric suffix. Example: PF482910.
var idRegex = regexp.MustCompile(`^([A-Z]{2,4})(\d{4,12})$`)

// ErrInvalidID is returned for ids that do not match <prefix><digits>.
var ErrInvalidID = errors.New("ident: invalid transaction id format")

// Parse splits a transaction id into its prefix and numeric suffix.
func Parse(id string) (prefix, digits string, err error) {
	m := idRegex.FindStringSubmatch(id)
	if m == nil {
		return "", "", fmt.Errorf("%w: %s (expected <PREFIX><digits>)", ErrInvalidID, id)
	}
	return m[1], m[2], nil
}

// ExistsFunc reports whether an id is already taken in the store.
type ExistsFunc func(ctx context.Context, id string) (bool, error)

// Generator produces unique transaction ids for a given prefix.
type Generator interface {
	Next(ctx context.Context, prefix string) (string, error)
}

// ProbeGenerator generates random-suffix ids and probes the store until it
// finds an unused one. Attempts are bounded: under heavy contention the
// caller receives ErrExhausted instead of looping forever.
type ProbeGenerator struct {
	exists   ExistsFunc
	digits   int
	attempts int
}

// NewProbeGenerator creates a generator with the given suffix width and
// attempt bound. digits < 4 defaults to 6; attempts < 1 defaults to 5.
func NewProbeGenerator(exists ExistsFunc, digits, attempts int) *ProbeGenerator {
	if digits < 4 {
		digits = 6
	}
	if attempts < 1 {
		attempts = 5
	}
	return &ProbeGenerator{exists: exists, digits: digits, attempts: attempts}
}

func (g *ProbeGenerator) Next(ctx context.Context, prefix string) (string, error) {
	max := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(g.digits)), nil)

	for i := 0; i < g.attempts; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("ident: random suffix: %w", err)
		}
		id := fmt.Sprintf("%s%0*d", prefix, g.digits, n)

		taken, err := g.exists(ctx, id)
		if err != nil {
			return "", err
		}
		if !taken {
			return id, nil
		}
	}
	return "", ErrExhausted
}

// SequenceGenerator produces strictly monotonic ids from an in-process
// counter. Used in tests and available for deployments that prefer
// deterministic ids over random probing.
type SequenceGenerator struct {
	next   int64
	digits int
}

// NewSequenceGenerator starts counting from `start`.
func NewSequenceGenerator(start int64, digits int) *SequenceGenerator {
	if digits < 4 {
		digits = 6
	}
	return &SequenceGenerator{next: start, digits: digits}
}

func (g *SequenceGenerator) Next(_ context.Context, prefix string) (string, error) {
	id := fmt.Sprintf("%s%0*d", prefix, g.digits, g.next)
	g.next++
	return id, nil
}
