package triage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"remotetriage/internal/logging"
)

// State is the triage session lifecycle state.
type State string

const (
	StateIdle    State = "idle"
	StateLoading State = "loading"
	StateReady   State = "ready"
)

// Options configures a session.
type Options struct {
	// InitialHost is submitted on construction when non-empty, the way a
	// workflow launched with a ?_q= parameter skips the lookup step.
	InitialHost string
	Observer    Observer
	Clock       func() time.Time
}

// Snapshot is what presentation reads: the current state, the raw result and
// the summary derived from it.
type Snapshot struct {
	State      State        `json:"state"`
	Generation uint64       `json:"generation"`
	Address    *HostAddress `json:"address,omitempty"`
	Value      *Result      `json:"value,omitempty"`
	Err        error        `json:"-"`
	Summary    Summary      `json:"summary"`
}

// StateChange is published on every session transition.
type StateChange struct {
	State      State       `json:"state"`
	Generation uint64      `json:"generation"`
	Address    HostAddress `json:"address"`
	Error      string      `json:"error,omitempty"`
}

// Session orchestrates one triage workflow: it owns the data layout, the
// hydrator and the submitted address.
type Session struct {
	ctx      context.Context
	cancel   context.CancelFunc
	layout   *Layout
	hydrator *Hydrator
	clock    func() time.Time

	mu      sync.RWMutex
	address *HostAddress
	closed  bool

	subMu   sync.Mutex
	subs    map[uint64]chan StateChange
	nextSub uint64
}

// NewSession creates an idle session reading through reader. Fetches run
// under ctx until Close.
func NewSession(ctx context.Context, reader Reader, opts Options) *Session {
	ctx, cancel := context.WithCancel(ctx)
	s := &Session{
		ctx:    ctx,
		cancel: cancel,
		layout: TriageLayout(),
		clock:  opts.Clock,
		subs:   make(map[uint64]chan StateChange),
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	s.hydrator = NewHydrator(reader, opts.Observer, s.publish)

	if opts.InitialHost != "" {
		s.Submit(opts.InitialHost)
	}
	return s
}

// Submit looks up host. It returns false, leaving the session untouched,
// when host is empty.
func (s *Session) Submit(host string) bool {
	return s.SubmitAddress(HostAddress{Host: host})
}

// SubmitAddress looks up addr. Every submission refetches, even for an
// address queried before.
func (s *Session) SubmitAddress(addr HostAddress) bool {
	if addr.Host == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}

	submitted := addr
	s.address = &submitted
	ready, err := s.layout.Set(NodeResource, addressKey(addr))
	if err != nil {
		logging.Error("Triage layout rejected submission: %v", err)
		return false
	}
	for _, node := range ready {
		if node != NodeRemote {
			continue
		}
		gen := s.hydrator.Hydrate(s.ctx, NewReadRequestFor(addr))
		s.layout.MarkHydrated(node)
		logging.Debug("Triage lookup for %s started (generation %d)", addr.Host, gen)
	}
	return true
}

// Snapshot returns the current state with the summary derived from the
// current value.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	hs := s.hydrator.State()
	snap := Snapshot{
		State:      stateOf(s.address != nil, hs),
		Generation: hs.Generation,
		Value:      hs.Value,
		Summary:    SummarizeResult(hs.Value),
	}
	if hs.Err != nil {
		snap.Err = hs.Err
	}
	if s.address != nil {
		addr := *s.address
		snap.Address = &addr
	}
	return snap
}

// State returns the lifecycle state.
func (s *Session) State() State {
	return s.Snapshot().State
}

// Wait blocks until the latest submission has settled and returns the
// resulting snapshot. An idle session returns immediately.
func (s *Session) Wait(ctx context.Context) (Snapshot, error) {
	changes, unsubscribe := s.Subscribe()
	defer unsubscribe()

	for {
		snap := s.Snapshot()
		if snap.State != StateLoading {
			return snap, nil
		}
		select {
		case <-ctx.Done():
			return snap, ctx.Err()
		case _, ok := <-changes:
			if !ok {
				return s.Snapshot(), ErrSessionClosed
			}
		}
	}
}

// Subscribe registers for state changes. The returned func unsubscribes; the
// channel is also closed when the session closes. Slow subscribers miss
// intermediate changes rather than blocking the session.
func (s *Session) Subscribe() (<-chan StateChange, func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	ch := make(chan StateChange, 16)
	if s.subs == nil {
		close(ch)
		return ch, func() {}
	}
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subMu.Lock()
			defer s.subMu.Unlock()
			if c, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(c)
			}
		})
	}
}

// ExportConfigDump prepares the config dump hand-off for the current result.
func (s *Session) ExportConfigDump() (ExportRequest, error) {
	snap := s.Snapshot()
	if snap.Value == nil {
		return ExportRequest{}, ErrNoResult
	}
	if snap.Value.Output == nil || snap.Value.Output.ConfigDump == nil {
		return ExportRequest{}, ErrNoConfigDump
	}

	host := snap.Value.Address.Host
	if host == "" && snap.Address != nil {
		host = snap.Address.Host
	}
	return ExportRequest{
		Host:     host,
		Filename: ConfigDumpFilename(host, s.clock()),
		Data:     snap.Value.Output.ConfigDump.Value,
	}, nil
}

// Export hands the config dump to exporter and returns where it was saved.
func (s *Session) Export(ctx context.Context, exporter Exporter) (string, error) {
	req, err := s.ExportConfigDump()
	if err != nil {
		return "", err
	}
	location, err := exporter.Export(ctx, req)
	if err != nil {
		return "", fmt.Errorf("export config dump: %w", err)
	}
	return location, nil
}

// Close stops any in-flight fetch and closes all subscriptions.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.hydrator.Stop()
	s.cancel()

	s.subMu.Lock()
	for id, ch := range s.subs {
		close(ch)
		delete(s.subs, id)
	}
	s.subs = nil
	s.subMu.Unlock()
}

func (s *Session) publish(hs HydrationState) {
	change := StateChange{
		State:      stateOf(true, hs),
		Generation: hs.Generation,
		Address:    hs.Address,
	}
	if hs.Err != nil {
		change.Error = hs.Err.Error()
	}

	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- change:
		default:
		}
	}
}

func stateOf(submitted bool, hs HydrationState) State {
	switch {
	case !submitted:
		return StateIdle
	case hs.Loading:
		return StateLoading
	default:
		return StateReady
	}
}

func addressKey(addr HostAddress) string {
	return fmt.Sprintf("%s:%d", addr.Host, addr.Port)
}
