package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/rl1809/slabby/internal/port"
)

// Permissions grants a default set to everyone plus per-actor grants.
type Permissions struct {
	mu       sync.RWMutex
	defaults map[string]bool
	granted  map[uuid.UUID]map[string]bool
	revoked  map[uuid.UUID]map[string]bool
}

func NewPermissions(defaults ...string) *Permissions {
	p := &Permissions{
		defaults: make(map[string]bool, len(defaults)),
		granted:  make(map[uuid.UUID]map[string]bool),
		revoked:  make(map[uuid.UUID]map[string]bool),
	}
	for _, d := range defaults {
		p.defaults[d] = true
	}
	return p
}

func (p *Permissions) Grant(id uuid.UUID, permission string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	set(p.granted, id, permission, true)
	set(p.revoked, id, permission, false)
}

func (p *Permissions) Revoke(id uuid.UUID, permission string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	set(p.granted, id, permission, false)
	set(p.revoked, id, permission, true)
}

func (p *Permissions) HasPermission(_ context.Context, id uuid.UUID, permission string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.revoked[id][permission] {
		return false
	}
	return p.granted[id][permission] || p.defaults[permission]
}

func set(m map[uuid.UUID]map[string]bool, id uuid.UUID, permission string, value bool) {
	perms, ok := m[id]
	if !ok {
		if !value {
			return
		}
		perms = make(map[string]bool)
		m[id] = perms
	}
	if value {
		perms[permission] = true
	} else {
		delete(perms, permission)
	}
}

var _ port.Permissions = (*Permissions)(nil)
