// Package dispatcher routes a jobcall.Call to the handler registered
// for its (service_id, job_index) pair and turns the handler's return
// into a jobcall.Result. It is the one component every Call, chain- or
// gateway-originated, passes through before reaching the consumer.
package dispatcher

import (
	"context"
	"fmt"
	"sync"

	"github.com/tangle-network/avs-operator/jobcall"
)

// Handler implements one job's business logic. It receives the raw
// call body plus a read-only metadata view and returns the bytes to
// submit on-chain.
type Handler func(ctx context.Context, call jobcall.Call) ([]byte, error)

type routeKey struct {
	serviceID uint64
	jobIndex  uint8
}

// Dispatcher is a concurrency-safe registry of job handlers.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[routeKey]Handler
}

// New returns an empty Dispatcher.
func New() *Dispatcher {
	return &Dispatcher{handlers: make(map[routeKey]Handler)}
}

// Register binds handler to (serviceID, jobIndex), replacing any
// previous registration.
func (d *Dispatcher) Register(serviceID uint64, jobIndex uint8, handler Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[routeKey{serviceID, jobIndex}] = handler
}

// Unregister removes any handler bound to (serviceID, jobIndex).
func (d *Dispatcher) Unregister(serviceID uint64, jobIndex uint8) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.handlers, routeKey{serviceID, jobIndex})
}

// ErrNoHandler is wrapped into the Result when no handler is bound for
// a call's (service_id, job_index).
var ErrNoHandler = fmt.Errorf("dispatcher: no handler registered")

// Dispatch routes call to its handler and returns the resulting
// jobcall.Result. It never returns a Go error itself — failures are
// carried in the Result's Err field so callers can always submit or log
// uniformly.
func (d *Dispatcher) Dispatch(ctx context.Context, call jobcall.Call) jobcall.Result {
	d.mu.RLock()
	handler, ok := d.handlers[routeKey{call.ServiceID, call.JobIndex}]
	d.mu.RUnlock()

	if !ok {
		return jobcall.NewErrResult(call, fmt.Errorf("%w: service %d job %d", ErrNoHandler, call.ServiceID, call.JobIndex))
	}

	body, err := handler(ctx, call)
	if err != nil {
		return jobcall.NewErrResult(call, err)
	}
	return jobcall.NewOKResult(call, body)
}

// Run reads calls from in until it's closed or ctx is cancelled,
// dispatching each one and sending its Result to out. Run closes out
// when it returns.
func (d *Dispatcher) Run(ctx context.Context, in <-chan jobcall.Call, out chan<- jobcall.Result) {
	defer close(out)
	for {
		select {
		case <-ctx.Done():
			return
		case call, ok := <-in:
			if !ok {
				return
			}
			result := d.Dispatch(ctx, call)
			select {
			case out <- result:
			case <-ctx.Done():
				return
			}
		}
	}
}
