// Package storage persists the inspector's settings blob per page group.
// The blob is opaque here: stores return exactly the bytes they were given.
package storage

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("storage: store closed")

// SettingsStore loads and saves one settings blob per page group. Load
// returns an empty string for a group that was never saved.
type SettingsStore interface {
	Load(ctx context.Context, group string) (string, error)
	Save(ctx context.Context, group, blob string) error
	Close() error
}

// Memory is a SettingsStore that keeps blobs in process memory.
type Memory struct {
	mu     sync.RWMutex
	blobs  map[string]string
	closed bool
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{blobs: make(map[string]string)}
}

// Load returns the blob saved for group.
func (m *Memory) Load(ctx context.Context, group string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return "", ErrClosed
	}
	return m.blobs[group], nil
}

// Save replaces the blob for group.
func (m *Memory) Save(ctx context.Context, group, blob string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.blobs[group] = blob
	return nil
}

// Close releases the store.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
