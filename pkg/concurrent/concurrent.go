package concurrent

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

// ErrGroupClosed is returned by TaskGroup.Go once Close has been called.
var ErrGroupClosed = errors.New("task group is closed")

// TaskGroup tracks fire-and-forget goroutines so that a component can wait for
// all of them during shutdown. Panics inside a task are recovered and handed to
// the panic handler instead of crashing the process.
type TaskGroup struct {
	mu      sync.Mutex
	wg      sync.WaitGroup
	closed  bool
	onPanic func(recovered any)
}

// NewTaskGroup creates an open TaskGroup. onPanic may be nil.
func NewTaskGroup(onPanic func(recovered any)) *TaskGroup {
	return &TaskGroup{onPanic: onPanic}
}

// Go runs task in a new goroutine unless the group is closed.
func (g *TaskGroup) Go(task func()) error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return ErrGroupClosed
	}
	g.wg.Add(1)
	g.mu.Unlock()

	go func() {
		defer g.wg.Done()
		defer func() {
			if r := recover(); r != nil && g.onPanic != nil {
				g.onPanic(r)
			}
		}()
		task()
	}()
	return nil
}

// Wait blocks until every task started so far has returned.
func (g *TaskGroup) Wait() {
	g.wg.Wait()
}

// Close rejects new tasks and waits for the running ones.
func (g *TaskGroup) Close() {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()
	g.wg.Wait()
}

// ForEachIndependent runs action for every item in its own goroutine and waits
// for all of them. A failing action does not cancel the others: every action
// gets ctx itself and all errors are joined.
func ForEachIndependent[T any](ctx context.Context, items []T, action func(context.Context, T) error) error {
	var (
		group errgroup.Group
		mu    sync.Mutex
		errs  []error
	)
	for i, item := range items {
		i, item := i, item // per-iteration copy (go.mod targets go1.21 loop semantics)
		group.Go(func() error {
			if err := action(ctx, item); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("item %d: %w", i, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = group.Wait()
	return errors.Join(errs...)
}
