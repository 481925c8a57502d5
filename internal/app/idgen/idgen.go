// Package idgen produces short, URL-safe identifiers for new records.
//
// Identifiers are random and therefore only probably unique. Callers must
// rely on the store's uniqueness constraint and retry on conflict.
package idgen

import (
	"fmt"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Alphabet is URL-safe and needs no escaping in a path segment.
const Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz_-"

const (
	MinLength     = 8
	MaxLength     = 10
	DefaultLength = 8

	// redraws bounds how often a candidate already issued by this process is
	// replaced before it is handed out anyway.
	redraws = 3

	filterCapacity = 1_000_000
	filterFPRate   = 0.001
)

// Generator hands out identifier candidates.
type Generator interface {
	Generate() (string, error)
}

// NanoID draws identifiers from Alphabet and remembers what it issued in a
// bloom filter so it rarely proposes the same candidate twice.
type NanoID struct {
	length int

	mu     sync.Mutex
	issued *bloom.BloomFilter
}

// NewNanoID returns a generator of fixed-length identifiers.
func NewNanoID(length int) (*NanoID, error) {
	if length < MinLength || length > MaxLength {
		return nil, fmt.Errorf("idgen: length must be between %d and %d, got %d", MinLength, MaxLength, length)
	}
	return &NanoID{
		length: length,
		issued: bloom.NewWithEstimates(filterCapacity, filterFPRate),
	}, nil
}

func (g *NanoID) Generate() (string, error) {
	var candidate string
	for i := 0; i <= redraws; i++ {
		id, err := gonanoid.Generate(Alphabet, g.length)
		if err != nil {
			return "", fmt.Errorf("idgen: generate: %w", err)
		}
		candidate = id

		g.mu.Lock()
		seen := g.issued.TestOrAddString(candidate)
		g.mu.Unlock()
		if !seen {
			break
		}
	}
	return candidate, nil
}

// Valid reports whether s could have been produced by a generator.
func Valid(s string) bool {
	if len(s) < MinLength || len(s) > MaxLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9', c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c == '_', c == '-':
		default:
			return false
		}
	}
	return true
}
