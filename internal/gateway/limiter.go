package gateway

import (
	"github.com/mandalnilabja/streamgate/internal/catalog"
)

// Limiter bounds in-flight upstream calls per provider, shared across all
// connections: the limit protects the upstream, not any one client, so it
// must never be per-connection state. Implemented as one semaphore per tag.
type Limiter struct {
	sems map[catalog.ProviderTag]chan struct{}
}

// NewLimiter creates a limiter allowing perProvider concurrent streams for
// each given tag. A non-positive limit disables limiting.
func NewLimiter(perProvider int, tags ...catalog.ProviderTag) *Limiter {
	if perProvider <= 0 {
		return &Limiter{}
	}
	sems := make(map[catalog.ProviderTag]chan struct{}, len(tags))
	for _, tag := range tags {
		sems[tag] = make(chan struct{}, perProvider)
	}
	return &Limiter{sems: sems}
}

// Acquire attempts to reserve an upstream slot without blocking. Callers
// reject the request with a capacity error on false rather than queueing.
func (l *Limiter) Acquire(tag catalog.ProviderTag) bool {
	if l == nil || l.sems == nil {
		return true
	}
	sem, ok := l.sems[tag]
	if !ok {
		return true
	}
	select {
	case sem <- struct{}{}:
		return true
	default:
		return false
	}
}

// Release frees a previously acquired slot.
func (l *Limiter) Release(tag catalog.ProviderTag) {
	if l == nil || l.sems == nil {
		return
	}
	if sem, ok := l.sems[tag]; ok {
		select {
		case <-sem:
		default:
		}
	}
}
