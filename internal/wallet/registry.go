package wallet

import (
	"context"
	"sync"

	"satroute/internal/logging"
)

// Registry holds the configured backends and a cached balance
// snapshot. Balances are only mutated by explicit refreshes; readers
// tolerate staleness between refreshes.
type Registry struct {
	mu       sync.RWMutex
	backends map[BackendID]Backend
	balances Balances
}

// NewRegistry creates a registry over the given backends.
func NewRegistry(backends ...Backend) *Registry {
	r := &Registry{
		backends: make(map[BackendID]Backend),
		balances: make(Balances),
	}
	for _, b := range backends {
		r.backends[b.ID()] = b
	}
	return r
}

// Get returns the backend with the given id.
func (r *Registry) Get(id BackendID) (Backend, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.backends[id]
	if !ok {
		return nil, ErrBackendNotFound
	}
	return b, nil
}

// RefreshBalances queries every backend independently. A backend that
// fails to answer keeps its last known value rather than zeroing out.
func (r *Registry) RefreshBalances(ctx context.Context) Balances {
	r.mu.RLock()
	ids := make([]BackendID, 0, len(r.backends))
	for id := range r.backends {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	for _, id := range ids {
		b, err := r.Get(id)
		if err != nil {
			continue
		}
		bal, err := b.Balance(ctx)
		if err != nil {
			logging.Internal.Printf("balance refresh failed for %s: %v", id, err)
			continue
		}
		if bal < 0 {
			bal = 0
		}
		r.mu.Lock()
		r.balances[id] = bal
		r.mu.Unlock()
	}

	return r.Balances()
}

// Balances returns a copy of the latest snapshot.
func (r *Registry) Balances() Balances {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(Balances, len(r.balances))
	for id, bal := range r.balances {
		out[id] = bal
	}
	return out
}

// Flags reports current backend readiness for Pick.
func (r *Registry) Flags() Flags {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var f Flags
	if b, ok := r.backends[BackendNWC]; ok {
		f.NWCConnected = b.Connected()
	}
	if b, ok := r.backends[BackendBreez]; ok {
		f.BreezProvisioned = b.Connected()
	}
	return f
}

// Close closes every backend.
func (r *Registry) Close() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for id, b := range r.backends {
		if err := b.Close(); err != nil {
			logging.Internal.Printf("failed to close backend %s: %v", id, err)
		}
	}
}
