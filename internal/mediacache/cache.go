/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package mediacache stores fetched media bytes keyed by their normalised
// URL. A miss or a broken backend is never fatal to playback.
package mediacache

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
)

var ErrEmptyKey = errors.New("cache key must not be empty")

type Cache interface {
	// Get returns the bytes stored under key. A miss is (nil, false, nil).
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, data []byte) error
}

// NormalizeKey trims whitespace and trailing slashes so equivalent URLs
// share one entry.
func NormalizeKey(key string) string {
	return strings.TrimRight(strings.TrimSpace(key), "/")
}

// Memory is an in-process Cache, used when no directory or database is
// configured.
type Memory struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string][]byte),
	}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	key = NormalizeKey(key)
	if key == "" {
		return nil, false, ErrEmptyKey
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}

	return slices.Clone(data), true, nil
}

func (m *Memory) Put(_ context.Context, key string, data []byte) error {
	key = NormalizeKey(key)
	if key == "" {
		return ErrEmptyKey
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[key] = slices.Clone(data)

	return nil
}
