package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/rl1809/slabby/internal/core/domain"
	"github.com/rl1809/slabby/internal/port"
)

type placement struct {
	Handle   uuid.UUID
	Location domain.Location
}

// Markers records marker placements per shop instead of spawning entities.
type Markers struct {
	mu     sync.Mutex
	placed map[int64]placement
}

func NewMarkers() *Markers {
	return &Markers{placed: make(map[int64]placement)}
}

func (m *Markers) RemoveAndRespawn(_ context.Context, _ *domain.Location, shop *domain.Shop) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.placed, shop.ID)
	if shop.Location == nil {
		return uuid.Nil, domain.New(domain.CodeInvalidArgument, "shop has no location")
	}
	handle := uuid.New()
	m.placed[shop.ID] = placement{Handle: handle, Location: *shop.Location}
	return handle, nil
}

func (m *Markers) Remove(_ context.Context, shop *domain.Shop) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.placed, shop.ID)
	return nil
}

// Placed returns the marker handle and position of a shop.
func (m *Markers) Placed(shopID int64) (uuid.UUID, domain.Location, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.placed[shopID]
	return p.Handle, p.Location, ok
}

var _ port.Markers = (*Markers)(nil)
