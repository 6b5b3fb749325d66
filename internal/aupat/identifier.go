package aupat

import (
	"fmt"
	"strings"
)

// Identifier scopes.
const (
	ScopeLocation    = "location"
	ScopeSubLocation = "sub_location"
	ScopeAsset       = "asset"
	ScopeJob         = "job"
)

const (
	// DefaultShortIDLength is the number of hex characters kept from a random
	// 128-bit value. 12 characters (48 bits) put the 50% collision point near
	// 16 million identifiers per scope.
	DefaultShortIDLength = 12

	// MinShortIDLength and MaxShortIDLength bound configured lengths.
	MinShortIDLength = 8
	MaxShortIDLength = 32

	// DefaultMaxIDAttempts bounds regeneration after collisions.
	DefaultMaxIDAttempts = 100
)

// IdentifierStore reserves identifiers atomically.
type IdentifierStore interface {
	ReserveIdentifier(scope, shortID string) (bool, error)
}

// IdentifierGenerator produces collision-checked short identifiers.
type IdentifierGenerator struct {
	store       IdentifierStore
	source      IDGenerator
	length      int
	maxAttempts int
	logger      Logger
}

// ValidateShortIDLength rejects lengths outside [MinShortIDLength, MaxShortIDLength].
func ValidateShortIDLength(n int) error {
	if n < MinShortIDLength || n > MaxShortIDLength {
		return fmt.Errorf("short id length %d out of range [%d, %d]", n, MinShortIDLength, MaxShortIDLength)
	}
	return nil
}

// NewIdentifierGenerator creates a generator. A zero length selects
// DefaultShortIDLength.
func NewIdentifierGenerator(store IdentifierStore, source IDGenerator, length int, logger Logger) (*IdentifierGenerator, error) {
	if length == 0 {
		length = DefaultShortIDLength
	}
	if err := ValidateShortIDLength(length); err != nil {
		return nil, err
	}
	return &IdentifierGenerator{
		store:       store,
		source:      source,
		length:      length,
		maxAttempts: DefaultMaxIDAttempts,
		logger:      logger,
	}, nil
}

// NewID returns a fresh short identifier reserved in scope. After
// DefaultMaxIDAttempts collisions it fails with ErrIdentifierSpaceExhausted.
func (g *IdentifierGenerator) NewID(scope string) (string, error) {
	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		id, err := g.shortID()
		if err != nil {
			return "", err
		}

		ok, err := g.store.ReserveIdentifier(scope, id)
		if err != nil {
			return "", fmt.Errorf("reserving %s identifier: %w", scope, err)
		}
		if ok {
			return id, nil
		}

		g.logger.Debug("identifier collision", "scope", scope, "id", id, "attempt", attempt)
	}

	g.logger.Error("identifier space exhausted", "scope", scope, "attempts", g.maxAttempts, "length", g.length)
	return "", fmt.Errorf("%w: scope %q after %d attempts", ErrIdentifierSpaceExhausted, scope, g.maxAttempts)
}

func (g *IdentifierGenerator) shortID() (string, error) {
	raw := strings.ToLower(strings.ReplaceAll(g.source.New(), "-", ""))
	if len(raw) < g.length {
		return "", fmt.Errorf("random source returned %d hex chars, need %d", len(raw), g.length)
	}
	for _, c := range raw[:g.length] {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return "", fmt.Errorf("random source returned non-hex value %q", raw)
		}
	}
	return raw[:g.length], nil
}
