package storage

import (
	"context"
	"fmt"
)

// Hook runs after a mutation has been applied to the in-flight copy of an
// entity and before the unit of work commits. before is nil for creations.
type Hook[T any] func(ctx context.Context, before, after *T) error

// HookChain is an ordered list of post-mutation hooks
type HookChain[T any] struct {
	names []string
	hooks []Hook[T]
}

// NewHookChain creates an empty chain
func NewHookChain[T any]() *HookChain[T] {
	return &HookChain[T]{}
}

// Use appends a named hook. Hooks run in registration order.
func (c *HookChain[T]) Use(name string, hook Hook[T]) *HookChain[T] {
	c.names = append(c.names, name)
	c.hooks = append(c.hooks, hook)
	return c
}

// Len returns the number of registered hooks
func (c *HookChain[T]) Len() int {
	return len(c.hooks)
}

// Run executes every hook in order and stops at the first failure
func (c *HookChain[T]) Run(ctx context.Context, before, after *T) error {
	for i, hook := range c.hooks {
		if err := hook(ctx, before, after); err != nil {
			return fmt.Errorf("hook %s failed: %w", c.names[i], err)
		}
	}
	return nil
}
