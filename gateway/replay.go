package gateway

import (
	"fmt"
	"sync"
)

// DelegatedReplayGuard rejects a delegated-authorization nonce once it
// has been seen for a given (caller, service, job_index) scope, keeping
// the same nonce valid across unrelated scopes (so a wallet doesn't
// need a fresh nonce per service). Entries are not pinned by a fixed
// TTL: each is stored against the expiry carried on its own signature,
// and pruned lazily, on the next reservation, once that expiry has
// passed — a delegated authorization can never be replayed past the
// window it was signed for, so there is nothing left to protect once
// its expiry elapses.
type DelegatedReplayGuard struct {
	mu   sync.Mutex
	seen map[string]int64 // key -> expiry (unix seconds)
}

// NewDelegatedReplayGuard returns an empty guard.
func NewDelegatedReplayGuard() *DelegatedReplayGuard {
	return &DelegatedReplayGuard{seen: make(map[string]int64)}
}

func replayKey(caller string, serviceID uint64, jobIndex uint8, nonce string) string {
	return fmt.Sprintf("%s:%d:%d:%s", caller, serviceID, jobIndex, nonce)
}

// Reserve atomically checks whether (caller, serviceID, jobIndex,
// nonce) has been used before and, if not, reserves it through expiry
// (unix seconds). It returns true if this call is the first use (the
// request should proceed). Every call also prunes any tracked entry
// whose own expiry has already passed, so the guard never grows
// unbounded across a long operator lifetime.
func (g *DelegatedReplayGuard) Reserve(caller string, serviceID uint64, jobIndex uint8, nonce string, expiry int64, now int64) bool {
	key := replayKey(caller, serviceID, jobIndex, nonce)

	g.mu.Lock()
	defer g.mu.Unlock()

	for k, exp := range g.seen {
		if exp <= now {
			delete(g.seen, k)
		}
	}

	if exp, used := g.seen[key]; used && exp > now {
		return false
	}
	g.seen[key] = expiry
	return true
}

// Len reports how many nonces are currently tracked.
func (g *DelegatedReplayGuard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.seen)
}
