package gateway

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Counters tracks the gateway's request-outcome taxonomy, both as
// plain in-process counters (for the JSON /stats endpoint) and as
// Prometheus metrics (for /metrics). The field names are the stable
// outcome vocabulary clients and dashboards key on.
type Counters struct {
	Accepted         atomic.Uint64
	PolicyDenied     atomic.Uint64
	PolicyError      atomic.Uint64
	ReplayDenied     atomic.Uint64
	EnqueueFailed    atomic.Uint64
	JobNotFound      atomic.Uint64
	QuoteConflict    atomic.Uint64
	AuthDryRunAllowed atomic.Uint64
	AuthDryRunDenied  atomic.Uint64
	AuthDryRunError   atomic.Uint64

	prom map[string]prometheus.Counter
}

var counterNames = []string{
	"accepted", "policy_denied", "policy_error", "replay_denied",
	"enqueue_failed", "job_not_found", "quote_conflict",
	"auth_dry_run_allowed", "auth_dry_run_denied", "auth_dry_run_error",
}

// NewCounters builds a Counters and registers its Prometheus series
// against reg.
func NewCounters(reg prometheus.Registerer) *Counters {
	c := &Counters{prom: make(map[string]prometheus.Counter, len(counterNames))}
	for _, name := range counterNames {
		pc := prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "x402_gateway",
			Name:      name + "_total",
			Help:      "x402 gateway outcome count: " + name,
		})
		reg.MustRegister(pc)
		c.prom[name] = pc
	}
	return c
}

func (c *Counters) inc(field *atomic.Uint64, name string) {
	field.Add(1)
	c.prom[name].Inc()
}

func (c *Counters) incAccepted()         { c.inc(&c.Accepted, "accepted") }
func (c *Counters) incPolicyDenied()     { c.inc(&c.PolicyDenied, "policy_denied") }
func (c *Counters) incPolicyError()      { c.inc(&c.PolicyError, "policy_error") }
func (c *Counters) incReplayDenied()     { c.inc(&c.ReplayDenied, "replay_denied") }
func (c *Counters) incEnqueueFailed()    { c.inc(&c.EnqueueFailed, "enqueue_failed") }
func (c *Counters) incJobNotFound()      { c.inc(&c.JobNotFound, "job_not_found") }
func (c *Counters) incQuoteConflict()    { c.inc(&c.QuoteConflict, "quote_conflict") }
func (c *Counters) incAuthDryRunAllowed() { c.inc(&c.AuthDryRunAllowed, "auth_dry_run_allowed") }
func (c *Counters) incAuthDryRunDenied()  { c.inc(&c.AuthDryRunDenied, "auth_dry_run_denied") }
func (c *Counters) incAuthDryRunError()   { c.inc(&c.AuthDryRunError, "auth_dry_run_error") }

// Snapshot is the JSON-serializable view returned by GET /x402/stats.
type Snapshot struct {
	Accepted          uint64 `json:"accepted"`
	PolicyDenied      uint64 `json:"policy_denied"`
	PolicyError       uint64 `json:"policy_error"`
	ReplayDenied      uint64 `json:"replay_denied"`
	EnqueueFailed     uint64 `json:"enqueue_failed"`
	JobNotFound       uint64 `json:"job_not_found"`
	QuoteConflict     uint64 `json:"quote_conflict"`
	AuthDryRunAllowed uint64 `json:"auth_dry_run_allowed"`
	AuthDryRunDenied  uint64 `json:"auth_dry_run_denied"`
	AuthDryRunError   uint64 `json:"auth_dry_run_error"`
}

// Snapshot reads the current counter values.
func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		Accepted:          c.Accepted.Load(),
		PolicyDenied:      c.PolicyDenied.Load(),
		PolicyError:       c.PolicyError.Load(),
		ReplayDenied:      c.ReplayDenied.Load(),
		EnqueueFailed:     c.EnqueueFailed.Load(),
		JobNotFound:       c.JobNotFound.Load(),
		QuoteConflict:     c.QuoteConflict.Load(),
		AuthDryRunAllowed: c.AuthDryRunAllowed.Load(),
		AuthDryRunDenied:  c.AuthDryRunDenied.Load(),
		AuthDryRunError:   c.AuthDryRunError.Load(),
	}
}
