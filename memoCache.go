package main

import (
	"sync"

	"golang.org/x/sync/singleflight"
)

type memoEntry[V any] struct {
	value V
	err   error
}

// MemoCache stores the outcome of one computation per key. The first caller
// computes, concurrent callers for the same key wait for that in-flight
// computation, later callers get the stored result.
type MemoCache[V any] struct {
	mu      sync.RWMutex
	entries map[string]memoEntry[V]
	group   singleflight.Group
}

func NewMemoCache[V any]() *MemoCache[V] {
	return &MemoCache[V]{entries: map[string]memoEntry[V]{}}
}

func (c *MemoCache[V]) Get(key string, compute func() (V, error)) (V, error) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		return entry.value, entry.err
	}

	result, _, _ := c.group.Do(key, func() (interface{}, error) {
		// Double check
		c.mu.RLock()
		entry, ok := c.entries[key]
		c.mu.RUnlock()
		if ok {
			return entry, nil
		}
		value, err := compute()
		entry = memoEntry[V]{value: value, err: err}
		c.mu.Lock()
		c.entries[key] = entry
		c.mu.Unlock()
		return entry, nil
	})
	stored := result.(memoEntry[V])
	return stored.value, stored.err
}

func (c *MemoCache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
