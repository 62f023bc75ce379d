// Package hintcache stores non-authoritative minting hints: the transaction
// hashes submitted for a mint id, and the block at which an id was first seen
// processed. Callers treat every operation as best-effort; a failing backend
// degrades status answers but never breaks them.
package hintcache

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Store abstracts hint persistence.
type Store interface {
	// PushHint prepends a submitted transaction hash to the hint list.
	PushHint(ctx context.Context, key []byte, txHash common.Hash) error
	// Hints returns the recorded hashes, most recent first.
	Hints(ctx context.Context, key []byte) ([]common.Hash, error)
	DeleteHints(ctx context.Context, key []byte) error
	// SetAnchor records the first-seen confirmation block. An existing
	// anchor is left untouched; confirmations stay monotonic across polls.
	SetAnchor(ctx context.Context, key []byte, block uint64, ttl time.Duration) error
	Anchor(ctx context.Context, key []byte) (block uint64, ok bool, err error)
}

type anchorEntry struct {
	block     uint64
	expiresAt time.Time
}

// MemoryStore is mostly for testing and cache-less deployments.
type MemoryStore struct {
	mu      sync.RWMutex
	hints   map[string][]common.Hash
	anchors map[string]anchorEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		hints:   make(map[string][]common.Hash),
		anchors: make(map[string]anchorEntry),
	}
}

func (m *MemoryStore) PushHint(_ context.Context, key []byte, txHash common.Hash) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := string(key)
	m.hints[k] = append([]common.Hash{txHash}, m.hints[k]...)
	return nil
}

func (m *MemoryStore) Hints(_ context.Context, key []byte) ([]common.Hash, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stored := m.hints[string(key)]
	out := make([]common.Hash, len(stored))
	copy(out, stored)
	return out, nil
}

func (m *MemoryStore) DeleteHints(_ context.Context, key []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.hints, string(key))
	return nil
}

func (m *MemoryStore) SetAnchor(_ context.Context, key []byte, block uint64, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := string(key)
	if entry, ok := m.anchors[k]; ok && time.Now().Before(entry.expiresAt) {
		return nil
	}
	m.anchors[k] = anchorEntry{block: block, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (m *MemoryStore) Anchor(_ context.Context, key []byte) (uint64, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.anchors[string(key)]
	if !ok || time.Now().After(entry.expiresAt) {
		return 0, false, nil
	}
	return entry.block, true, nil
}
