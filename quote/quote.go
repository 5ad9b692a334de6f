// Package quote implements the x402 gateway's price-quote registry:
// quotes are minted Open, consumed exactly once on a matching payment,
// and expire on their own TTL if never redeemed — the lifecycle
// gateway.rs's quote map implements in-process.
package quote

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is a quote's position in its lifecycle.
type Status uint8

const (
	Open Status = iota
	Consumed
	Expired
)

// Quote is a price commitment for one (service, job_index) invocation,
// valid until Expiry.
type Quote struct {
	ID        string
	ServiceID uint64
	JobIndex  uint8
	AmountWei string
	Token     string
	Expiry    time.Time
	Status    Status
}

func (q Quote) liveAt(now time.Time) bool {
	return q.Status == Open && now.Before(q.Expiry)
}

// Registry is a concurrency-safe in-memory quote store with a
// background sweep for expired entries.
type Registry struct {
	ttl time.Duration
	now func() time.Time

	mu     sync.Mutex
	quotes map[string]Quote
}

// New builds a Registry whose quotes live for ttl unless consumed or
// explicitly expired first.
func New(ttl time.Duration) *Registry {
	return &Registry{
		ttl:    ttl,
		now:    time.Now,
		quotes: make(map[string]Quote),
	}
}

// Mint creates a new Open quote and returns it.
func (r *Registry) Mint(serviceID uint64, jobIndex uint8, amountWei, token string) Quote {
	q := Quote{
		ID:        uuid.NewString(),
		ServiceID: serviceID,
		JobIndex:  jobIndex,
		AmountWei: amountWei,
		Token:     token,
		Expiry:    r.now().Add(r.ttl),
		Status:    Open,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.quotes[q.ID] = q
	return q
}

// ErrNotFound is returned by Get/Consume when a quote id is unknown.
var ErrNotFound = errNotFound{}

type errNotFound struct{}

func (errNotFound) Error() string { return "quote: not found" }

// ErrNotOpen is returned by Consume when a quote exists but is no
// longer in the Open state — already consumed, expired by sweep, or
// past its TTL but not yet swept.
var ErrNotOpen = errNotOpen{}

type errNotOpen struct{}

func (errNotOpen) Error() string { return "quote: not open" }

// Get returns the current state of a quote, lazily expiring it first if
// its TTL has elapsed since Mint.
func (r *Registry) Get(id string) (Quote, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.getLocked(id)
}

func (r *Registry) getLocked(id string) (Quote, error) {
	q, ok := r.quotes[id]
	if !ok {
		return Quote{}, ErrNotFound
	}
	if q.Status == Open && !r.now().Before(q.Expiry) {
		q.Status = Expired
		r.quotes[id] = q
	}
	return q, nil
}

// Consume atomically transitions a quote from Open to Consumed,
// failing if it is already consumed, expired, or unknown. This is the
// single-use guarantee the gateway's settlement path depends on: two
// concurrent requests racing to redeem the same quote can never both
// succeed.
func (r *Registry) Consume(id string) (Quote, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	q, err := r.getLocked(id)
	if err != nil {
		return Quote{}, err
	}
	if q.Status != Open {
		return Quote{}, ErrNotOpen
	}

	q.Status = Consumed
	r.quotes[id] = q
	return q, nil
}

// Sweep removes every quote that is Consumed or has been Expired for
// longer than grace, bounding the registry's memory footprint. It
// should be run periodically alongside the gateway, not on every request.
func (r *Registry) Sweep(grace time.Duration) int {
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, q := range r.quotes {
		if q.Status == Open && !now.Before(q.Expiry) {
			q.Status = Expired
			r.quotes[id] = q
		}
		if q.Status == Consumed || (q.Status == Expired && now.Sub(q.Expiry) > grace) {
			delete(r.quotes, id)
			removed++
		}
	}
	return removed
}

// Len reports the number of quotes currently tracked, live or not;
// used by tests and gateway stats.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.quotes)
}
