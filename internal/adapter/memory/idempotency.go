package memory

import (
	"context"
	"sync"
	"time"

	"github.com/rl1809/slabby/internal/port"
)

// Idempotency is the in-process request deduplication store.
type Idempotency struct {
	mu   sync.Mutex
	ttl  time.Duration
	now  func() time.Time
	keys map[string]time.Time
}

func NewIdempotency(ttl time.Duration) *Idempotency {
	return &Idempotency{ttl: ttl, now: time.Now, keys: make(map[string]time.Time)}
}

func (i *Idempotency) SetIdempotency(_ context.Context, key string) (bool, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	now := i.now()
	if expires, ok := i.keys[key]; ok && now.Before(expires) {
		return false, nil
	}
	i.keys[key] = now.Add(i.ttl)
	return true, nil
}

func (i *Idempotency) ReleaseIdempotency(_ context.Context, key string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.keys, key)
	return nil
}

var _ port.IdempotencyStore = (*Idempotency)(nil)
