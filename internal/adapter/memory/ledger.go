// Package memory provides in-process collaborators for standalone mode and
// tests.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rl1809/slabby/internal/port"
)

// Ledger is an in-memory economy. Unknown accounts have a zero balance.
type Ledger struct {
	mu       sync.Mutex
	balances map[uuid.UUID]decimal.Decimal
}

func NewLedger() *Ledger {
	return &Ledger{balances: make(map[uuid.UUID]decimal.Decimal)}
}

func (l *Ledger) SetBalance(id uuid.UUID, amount decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[id] = amount
}

func (l *Ledger) Balance(_ context.Context, id uuid.UUID) (decimal.Decimal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[id], nil
}

func (l *Ledger) HasAmount(_ context.Context, id uuid.UUID, amount decimal.Decimal) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[id].GreaterThanOrEqual(amount), nil
}

func (l *Ledger) Withdraw(_ context.Context, id uuid.UUID, amount decimal.Decimal) (port.EconomyResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	balance := l.balances[id]
	if amount.IsNegative() || balance.LessThan(amount) {
		return port.EconomyResult{Success: false, Amount: decimal.Zero}, nil
	}
	l.balances[id] = balance.Sub(amount)
	return port.EconomyResult{Success: true, Amount: amount}, nil
}

func (l *Ledger) Deposit(_ context.Context, id uuid.UUID, amount decimal.Decimal) (port.EconomyResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if amount.IsNegative() {
		return port.EconomyResult{Success: false, Amount: decimal.Zero}, nil
	}
	l.balances[id] = l.balances[id].Add(amount)
	return port.EconomyResult{Success: true, Amount: amount}, nil
}

var _ port.Economy = (*Ledger)(nil)
