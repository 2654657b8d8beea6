package syncer

import (
	"context"

	"github.com/MKWorldWide/MKronoSphere/internal/event"
)

// Strategy is one pluggable delivery mechanism. Implementations must be
// stateless with respect to target identity so a single instance can serve
// any number of targets.
//
// Execute performs ONE delivery attempt; retry and timeout policy belong to
// the executor. Returned metadata (may be nil) is folded into the Result.
type Strategy interface {
	ID() string
	Priority() int
	CanHandle(t *Target) bool
	Execute(ctx context.Context, t *Target, ev *event.Event) (map[string]any, error)
}

// FuncStrategy adapts plain functions into a Strategy. It backs the
// "custom" connection method and is handy for tests.
type FuncStrategy struct {
	Name string
	Prio int
	Can  func(t *Target) bool
	Run  func(ctx context.Context, t *Target, ev *event.Event) (map[string]any, error)
}

func (f *FuncStrategy) ID() string    { return f.Name }
func (f *FuncStrategy) Priority() int { return f.Prio }

func (f *FuncStrategy) CanHandle(t *Target) bool {
	if f.Can == nil {
		return false
	}
	return f.Can(t)
}

func (f *FuncStrategy) Execute(ctx context.Context, t *Target, ev *event.Event) (map[string]any, error) {
	if f.Run == nil {
		return nil, ErrNoStrategy
	}
	return f.Run(ctx, t, ev)
}
