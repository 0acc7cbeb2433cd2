package cache

import (
	"context"
	"sync"
	"time"

	"github.com/erp/invoicing/internal/domain/shared"
)

// claim represents a held key with expiration
type claim struct {
	expiresAt time.Time
}

// InMemoryDispatchGuard implements DispatchGuard using an in-memory map.
// Claims are only exclusive within one process.
type InMemoryDispatchGuard struct {
	mu        sync.Mutex
	claims    map[string]claim
	now       func() time.Time
	stopChan  chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewInMemoryDispatchGuard creates a new in-memory guard.
// It starts a background goroutine that sweeps expired claims every sweepInterval.
func NewInMemoryDispatchGuard(sweepInterval time.Duration) *InMemoryDispatchGuard {
	if sweepInterval <= 0 {
		sweepInterval = 5 * time.Minute
	}
	g := &InMemoryDispatchGuard{
		claims:   make(map[string]claim),
		now:      time.Now,
		stopChan: make(chan struct{}),
	}

	g.wg.Add(1)
	go g.sweepLoop(sweepInterval)

	return g
}

// Claim takes the key for ttl unless an unexpired claim exists
func (g *InMemoryDispatchGuard) Claim(_ context.Context, key string, ttl time.Duration) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if c, held := g.claims[key]; held && now.Before(c.expiresAt) {
		return false, nil
	}
	g.claims[key] = claim{expiresAt: now.Add(ttl)}
	return true, nil
}

// Release drops the claim on key; releasing an unheld key is a no-op
func (g *InMemoryDispatchGuard) Release(_ context.Context, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.claims, key)
	return nil
}

// Close stops the sweep goroutine. Safe to call multiple times.
func (g *InMemoryDispatchGuard) Close() error {
	g.closeOnce.Do(func() {
		close(g.stopChan)
		g.wg.Wait()
	})
	return nil
}

// Size returns the number of claims held, expired ones included until swept
func (g *InMemoryDispatchGuard) Size() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.claims)
}

func (g *InMemoryDispatchGuard) sweepLoop(interval time.Duration) {
	defer g.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-g.stopChan:
			return
		case <-ticker.C:
			g.sweep()
		}
	}
}

func (g *InMemoryDispatchGuard) sweep() {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	for key, c := range g.claims {
		if !now.Before(c.expiresAt) {
			delete(g.claims, key)
		}
	}
}

// Ensure InMemoryDispatchGuard implements DispatchGuard
var _ shared.DispatchGuard = (*InMemoryDispatchGuard)(nil)
