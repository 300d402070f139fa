package port

import (
	"context"

	"github.com/rl1809/slabby/internal/core/domain"
)

type LookupKind int

const (
	// LookupUnknown means the backing store has to be asked.
	LookupUnknown LookupKind = iota
	// LookupTombstone is a cached confirmation that nothing sits at the coordinate.
	LookupTombstone
	// LookupHit carries a shop whose shop location or inventory location
	// matched the coordinate when it was stored. Callers verify which.
	LookupHit
)

type Lookup struct {
	Kind LookupKind
	Shop *domain.Shop
}

type LocationCache interface {
	Get(loc domain.Location) Lookup
	// Store records a hit, or a tombstone when shop is nil.
	Store(loc domain.Location, shop *domain.Shop)
	Delete(loc domain.Location)
}

type IdempotencyStore interface {
	// SetIdempotency sets a key for idempotency check, returns false if already exists
	SetIdempotency(ctx context.Context, key string) (bool, error)

	// ReleaseIdempotency drops a key so a failed request can be retried
	ReleaseIdempotency(ctx context.Context, key string) error
}
