package tutor

import (
	"testing"
	"time"
)

func TestPendingStoreOfferResolve(t *testing.T) {
	p := NewPendingStore(10 * time.Minute)

	p.Offer("sess-1", "PCA", "what is PCA?", CapExplain)
	pf, ok := p.Peek("sess-1")
	if !ok || pf.Concept != "PCA" {
		t.Fatalf("Peek = %+v, %t", pf, ok)
	}

	pf, ok = p.Resolve("sess-1")
	if !ok || pf.Concept != "PCA" {
		t.Fatalf("Resolve = %+v, %t", pf, ok)
	}
	if _, ok := p.Peek("sess-1"); ok {
		t.Fatal("offer survived Resolve")
	}
}

func TestPendingStoreReplaces(t *testing.T) {
	p := NewPendingStore(10 * time.Minute)
	p.Offer("sess-1", "PCA", "what is PCA?", CapExplain)
	p.Offer("sess-1", "SVM", "what is SVM?", CapExplain)
	pf, ok := p.Peek("sess-1")
	if !ok || pf.Concept != "SVM" {
		t.Fatalf("Peek after replace = %+v, %t", pf, ok)
	}
}

func TestPendingStoreSessionIsolation(t *testing.T) {
	p := NewPendingStore(10 * time.Minute)
	p.Offer("sess-1", "PCA", "what is PCA?", CapExplain)
	if _, ok := p.Peek("sess-2"); ok {
		t.Fatal("offer leaked across sessions")
	}
}

func TestPendingStoreExpiry(t *testing.T) {
	p := NewPendingStore(10 * time.Minute)
	base := time.Now()
	p.now = func() time.Time { return base }
	p.Offer("sess-1", "PCA", "what is PCA?", CapExplain)

	p.now = func() time.Time { return base.Add(9 * time.Minute) }
	if _, ok := p.Peek("sess-1"); !ok {
		t.Fatal("offer expired early")
	}

	p.now = func() time.Time { return base.Add(11 * time.Minute) }
	if _, ok := p.Peek("sess-1"); ok {
		t.Fatal("offer outlived its TTL")
	}
}
