package service

import "context"

// Gate runs shop operations one at a time, the way a single main thread
// would. Waiting callers give up when their context ends.
type Gate struct {
	sem chan struct{}
}

func NewGate() *Gate {
	return &Gate{sem: make(chan struct{}, 1)}
}

func (g *Gate) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	select {
	case g.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-g.sem }()

	return fn(ctx)
}
