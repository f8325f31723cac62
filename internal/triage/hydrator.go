package triage

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"remotetriage/internal/logging"
	"remotetriage/internal/telemetry"
)

// Reader is the transport collaborator that performs the read call.
type Reader interface {
	Read(ctx context.Context, req *ReadRequest) (*Envelope, error)
}

// ReaderFunc adapts a function to Reader.
type ReaderFunc func(ctx context.Context, req *ReadRequest) (*Envelope, error)

// Read calls f.
func (f ReaderFunc) Read(ctx context.Context, req *ReadRequest) (*Envelope, error) {
	return f(ctx, req)
}

// Observer receives fetch lifecycle notifications, e.g. for metrics.
type Observer interface {
	FetchStarted(host string)
	FetchFinished(host string, elapsed time.Duration, err error)
	StaleDropped(host string)
	FetchCancelled(host string)
}

type nopObserver struct{}

func (nopObserver) FetchStarted(string)                        {}
func (nopObserver) FetchFinished(string, time.Duration, error) {}
func (nopObserver) StaleDropped(string)                        {}
func (nopObserver) FetchCancelled(string)                      {}

// HydrationState is the observable state of one fetch cycle.
type HydrationState struct {
	Generation uint64
	Address    HostAddress
	Loading    bool
	Value      *Result
	Err        error
}

// Hydrator runs the read call for the most recent request and exposes its
// loading, error and value state. Only the latest fetch may write state.
type Hydrator struct {
	reader    Reader
	transform func(*Envelope) *Result
	observer  Observer
	notify    func(HydrationState)
	now       func() time.Time

	mu       sync.RWMutex
	state    HydrationState
	cancel   context.CancelFunc
	stopping bool
	wg       sync.WaitGroup
}

// NewHydrator creates a hydrator over reader. notify, when set, is called
// with every state change while the hydrator lock is held, so it must not
// call back into the hydrator.
func NewHydrator(reader Reader, observer Observer, notify func(HydrationState)) *Hydrator {
	if observer == nil {
		observer = nopObserver{}
	}
	return &Hydrator{
		reader:    reader,
		transform: FirstResult,
		observer:  observer,
		notify:    notify,
		now:       time.Now,
	}
}

// Hydrate starts a fetch for req and returns its generation. A fetch still in
// flight is cancelled and its outcome discarded.
func (h *Hydrator) Hydrate(ctx context.Context, req *ReadRequest) uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.cancel != nil {
		h.cancel()
	}
	fetchCtx, cancel := context.WithCancel(ctx)
	h.cancel = cancel
	h.stopping = false

	h.state.Generation++
	h.state.Loading = true
	h.state.Err = nil
	if len(req.Operations) > 0 {
		h.state.Address = req.Operations[0].Address
	}
	gen := h.state.Generation
	h.emitLocked()

	h.wg.Add(1)
	go h.fetch(fetchCtx, gen, req)
	return gen
}

// State returns a copy of the current state.
func (h *Hydrator) State() HydrationState {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state
}

// Stop cancels any in-flight fetch and waits for it to return. The cancelled
// fetch settles without an error.
func (h *Hydrator) Stop() {
	h.mu.Lock()
	h.stopping = true
	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
	h.mu.Unlock()
	h.wg.Wait()
}

func (h *Hydrator) fetch(ctx context.Context, gen uint64, req *ReadRequest) {
	defer h.wg.Done()

	host := ""
	if len(req.Operations) > 0 {
		host = req.Operations[0].Address.Host
	}

	ctx, span := telemetry.StartSpan(ctx, "triage.hydrate")
	defer span.End()
	span.SetAttributes(
		attribute.String("triage.host", host),
		attribute.Int64("triage.generation", int64(gen)),
	)

	h.observer.FetchStarted(host)
	started := h.now()
	env, err := h.reader.Read(ctx, req)
	elapsed := h.now().Sub(started)

	h.mu.Lock()
	defer h.mu.Unlock()

	if gen != h.state.Generation {
		span.SetAttributes(attribute.Bool("triage.stale", true))
		h.observer.StaleDropped(host)
		logging.Debug("Dropping stale triage response for %s (generation %d, current %d)", host, gen, h.state.Generation)
		return
	}

	if h.stopping && errors.Is(err, context.Canceled) {
		h.observer.FetchCancelled(host)
		h.state.Loading = false
		logging.Debug("Triage fetch for %s abandoned on stop", host)
		return
	}

	h.observer.FetchFinished(host, elapsed, err)
	h.state.Loading = false
	h.cancel = nil
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if errors.Is(err, context.Canceled) {
			logging.Debug("Triage fetch for %s cancelled", host)
		} else {
			logging.Warning("Triage fetch for %s failed: %v", host, err)
		}
		h.state.Err = asRequestError(err)
		h.emitLocked()
		return
	}

	h.state.Value = h.transform(env)
	h.state.Err = nil
	if h.state.Value == nil {
		logging.Info("Backend returned no results for %s", host)
	}
	h.emitLocked()
}

func (h *Hydrator) emitLocked() {
	if h.notify != nil {
		h.notify(h.state)
	}
}
