package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/rl1809/slabby/internal/core/domain"
	"github.com/rl1809/slabby/internal/port"
)

// DefaultCapacity is the number of units an actor can carry.
const DefaultCapacity = 36 * 64

// Holdings tracks the items each actor carries, plus an optional container
// held in hand.
type Holdings struct {
	mu       sync.Mutex
	capacity int
	items    map[uuid.UUID]map[string]int
	hand     map[uuid.UUID]map[string]int
}

func NewHoldings(capacity int) *Holdings {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Holdings{
		capacity: capacity,
		items:    make(map[uuid.UUID]map[string]int),
		hand:     make(map[uuid.UUID]map[string]int),
	}
}

func (h *Holdings) Give(actor uuid.UUID, item domain.Item, quantity int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.bucket(h.items, actor)[string(item)] += quantity
}

func (h *Holdings) Count(actor uuid.UUID, item domain.Item) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.items[actor][string(item)]
}

// HoldContainer puts a container with the given contents in the actor's hand.
func (h *Holdings) HoldContainer(actor uuid.UUID, contents map[string]int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	box := make(map[string]int, len(contents))
	for k, v := range contents {
		box[k] = v
	}
	h.hand[actor] = box
}

func (h *Holdings) DropContainer(actor uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.hand, actor)
}

func (h *Holdings) HasSpace(_ context.Context, actor uuid.UUID, _ domain.Item, quantity int) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	total := 0
	for _, n := range h.items[actor] {
		total += n
	}
	return total+quantity <= h.capacity, nil
}

func (h *Holdings) ContainsAtLeast(_ context.Context, actor uuid.UUID, item domain.Item, quantity int) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.items[actor][string(item)] >= quantity, nil
}

func (h *Holdings) AddItems(_ context.Context, actor uuid.UUID, item domain.Item, quantity int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.bucket(h.items, actor)[string(item)] += quantity
	return nil
}

func (h *Holdings) RemoveItems(_ context.Context, actor uuid.UUID, item domain.Item, quantity int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return take(h.items[actor], item, quantity)
}

func (h *Holdings) ContainerInHand(_ context.Context, actor uuid.UUID, item domain.Item) (int, bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	box, ok := h.hand[actor]
	if !ok {
		return 0, false, nil
	}
	return box[string(item)], true, nil
}

func (h *Holdings) RemoveFromContainerInHand(_ context.Context, actor uuid.UUID, item domain.Item, quantity int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return take(h.hand[actor], item, quantity)
}

func (h *Holdings) bucket(m map[uuid.UUID]map[string]int, actor uuid.UUID) map[string]int {
	b, ok := m[actor]
	if !ok {
		b = make(map[string]int)
		m[actor] = b
	}
	return b
}

func take(bucket map[string]int, item domain.Item, quantity int) error {
	if quantity <= 0 {
		return nil
	}
	if bucket[string(item)] < quantity {
		return domain.ErrPlayerOutOfStock
	}
	bucket[string(item)] -= quantity
	if bucket[string(item)] == 0 {
		delete(bucket, string(item))
	}
	return nil
}

var _ port.Inventory = (*Holdings)(nil)
