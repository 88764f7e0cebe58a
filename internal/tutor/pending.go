package tutor

import (
	"sync"
	"time"
)

// PendingStore tracks at most one open follow-up offer per session.
// Entries are session-scoped and expire after the configured TTL; a new
// offer replaces whatever was pending.
type PendingStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]PendingFollowup
	now     func() time.Time
}

func NewPendingStore(ttl time.Duration) *PendingStore {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &PendingStore{
		ttl:     ttl,
		entries: make(map[string]PendingFollowup),
		now:     time.Now,
	}
}

// Offer records a follow-up offer for the session, replacing any prior
// one. The message is the question that earned the offer; target is
// the capability an acceptance resolves to.
func (p *PendingStore) Offer(sessionID, concept, message string, target Capability) {
	if target == "" {
		target = CapExplain
	}
	now := p.now()
	p.mu.Lock()
	p.entries[sessionID] = PendingFollowup{
		Concept:   concept,
		Message:   message,
		Target:    target,
		CreatedAt: now,
		ExpiresAt: now.Add(p.ttl),
	}
	p.mu.Unlock()
}

// Peek returns the live offer for the session without consuming it.
// Expired offers are dropped on access.
func (p *PendingStore) Peek(sessionID string) (PendingFollowup, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pf, ok := p.entries[sessionID]
	if !ok {
		return PendingFollowup{}, false
	}
	if p.now().After(pf.ExpiresAt) {
		delete(p.entries, sessionID)
		return PendingFollowup{}, false
	}
	return pf, true
}

// Resolve consumes and returns the live offer for the session.
func (p *PendingStore) Resolve(sessionID string) (PendingFollowup, bool) {
	pf, ok := p.Peek(sessionID)
	if ok {
		p.mu.Lock()
		delete(p.entries, sessionID)
		p.mu.Unlock()
	}
	return pf, ok
}

// Clear drops any offer for the session.
func (p *PendingStore) Clear(sessionID string) {
	p.mu.Lock()
	delete(p.entries, sessionID)
	p.mu.Unlock()
}
