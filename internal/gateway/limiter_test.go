package gateway

import (
	"testing"

	"github.com/mandalnilabja/streamgate/internal/catalog"
)

func TestLimiterBoundsPerProvider(t *testing.T) {
	l := NewLimiter(2, catalog.ProviderOpenAI, catalog.ProviderGroq)

	if !l.Acquire(catalog.ProviderOpenAI) || !l.Acquire(catalog.ProviderOpenAI) {
		t.Fatal("first two acquires should succeed")
	}
	if l.Acquire(catalog.ProviderOpenAI) {
		t.Error("third acquire should fail at limit 2")
	}

	// Limits are per provider, not global.
	if !l.Acquire(catalog.ProviderGroq) {
		t.Error("groq should have its own budget")
	}

	l.Release(catalog.ProviderOpenAI)
	if !l.Acquire(catalog.ProviderOpenAI) {
		t.Error("acquire should succeed after release")
	}
}

func TestLimiterUnlimited(t *testing.T) {
	l := NewLimiter(0, catalog.ProviderOpenAI)
	for i := 0; i < 100; i++ {
		if !l.Acquire(catalog.ProviderOpenAI) {
			t.Fatal("zero limit should disable limiting")
		}
	}

	var nilLimiter *Limiter
	if !nilLimiter.Acquire(catalog.ProviderOpenAI) {
		t.Error("nil limiter should allow everything")
	}
	nilLimiter.Release(catalog.ProviderOpenAI)
}

func TestLimiterUnknownTag(t *testing.T) {
	l := NewLimiter(1, catalog.ProviderOpenAI)
	if !l.Acquire(catalog.ProviderLorem) {
		t.Error("tags without a semaphore are not limited")
	}
	l.Release(catalog.ProviderLorem)
}
