package triage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stateLog struct {
	mu     sync.Mutex
	states []HydrationState
}

func (l *stateLog) record(hs HydrationState) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.states = append(l.states, hs)
}

func (l *stateLog) last() HydrationState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.states[len(l.states)-1]
}

func waitSettled(t *testing.T, h *Hydrator) HydrationState {
	t.Helper()
	require.Eventually(t, func() bool { return !h.State().Loading }, 2*time.Second, time.Millisecond)
	return h.State()
}

func TestHydrateSuccess(t *testing.T) {
	reader := newGatedReader()
	log := &stateLog{}
	h := NewHydrator(reader, nil, log.record)
	defer h.Stop()

	gen := h.Hydrate(context.Background(), NewReadRequest("127.0.0.1"))
	assert.Equal(t, uint64(1), gen)
	assert.True(t, h.State().Loading)
	assert.Equal(t, "127.0.0.1", h.State().Address.Host)

	call := reader.next(t)
	call.reply <- readReply{env: envelopeOf(scenarioResult("127.0.0.1"))}

	st := waitSettled(t, h)
	require.NotNil(t, st.Value)
	assert.Equal(t, "127.0.0.1", st.Value.Address.Host)
	assert.NoError(t, st.Err)
	assert.False(t, log.last().Loading)
}

func TestHydrateStaleResponseDropped(t *testing.T) {
	reader := newGatedReader()
	reader.ignoreCancel = true
	obs := &recordingObserver{}
	h := NewHydrator(reader, obs, nil)
	defer h.Stop()

	h.Hydrate(context.Background(), NewReadRequest("first"))
	first := reader.next(t)
	h.Hydrate(context.Background(), NewReadRequest("second"))
	second := reader.next(t)

	// The older request answers first and must not land.
	first.reply <- readReply{env: envelopeOf(scenarioResult("first"))}
	require.Eventually(t, func() bool {
		_, _, _, stale := obs.counts()
		return stale == 1
	}, 2*time.Second, time.Millisecond)
	assert.True(t, h.State().Loading)
	assert.Nil(t, h.State().Value)

	second.reply <- readReply{env: envelopeOf(scenarioResult("second"))}
	st := waitSettled(t, h)
	require.NotNil(t, st.Value)
	assert.Equal(t, "second", st.Value.Address.Host)
	assert.Equal(t, uint64(2), st.Generation)

	started, finished, failed, stale := obs.counts()
	assert.Equal(t, 2, started)
	assert.Equal(t, 1, finished)
	assert.Equal(t, 0, failed)
	assert.Equal(t, 1, stale)
}

func TestHydrateLateStaleAfterNewerSettled(t *testing.T) {
	reader := newGatedReader()
	reader.ignoreCancel = true
	h := NewHydrator(reader, nil, nil)
	defer h.Stop()

	h.Hydrate(context.Background(), NewReadRequest("first"))
	first := reader.next(t)
	h.Hydrate(context.Background(), NewReadRequest("second"))
	second := reader.next(t)

	second.reply <- readReply{env: envelopeOf(scenarioResult("second"))}
	waitSettled(t, h)

	first.reply <- readReply{err: errNetwork}
	h.Stop()
	st := h.State()
	assert.Equal(t, "second", st.Value.Address.Host)
	assert.NoError(t, st.Err)
}

func TestHydrateErrorKeepsValue(t *testing.T) {
	reader := newGatedReader()
	h := NewHydrator(reader, nil, nil)
	defer h.Stop()

	h.Hydrate(context.Background(), NewReadRequest("10.0.0.5"))
	reader.next(t).reply <- readReply{env: envelopeOf(scenarioResult("10.0.0.5"))}
	before := waitSettled(t, h).Value

	h.Hydrate(context.Background(), NewReadRequest("10.0.0.5"))
	assert.NoError(t, h.State().Err, "a new fetch clears the previous error")
	reader.next(t).reply <- readReply{err: errNetwork}
	st := waitSettled(t, h)

	assert.Same(t, before, st.Value)
	var re *RequestError
	require.True(t, errors.As(st.Err, &re))
	assert.ErrorIs(t, st.Err, errNetwork)
}

func TestHydratePreservesRequestError(t *testing.T) {
	want := &RequestError{StatusCode: 502, Body: "bad gateway"}
	h := NewHydrator(ReaderFunc(func(context.Context, *ReadRequest) (*Envelope, error) {
		return nil, want
	}), nil, nil)
	defer h.Stop()

	h.Hydrate(context.Background(), NewReadRequest("h"))
	st := waitSettled(t, h)
	assert.Same(t, want, st.Err)
	assert.Equal(t, "backend returned 502: bad gateway", st.Err.Error())
}

func TestStopCancelsInFlight(t *testing.T) {
	reader := newGatedReader()
	obs := &recordingObserver{}
	h := NewHydrator(reader, obs, nil)

	h.Hydrate(context.Background(), NewReadRequest("h"))
	reader.next(t)

	done := make(chan struct{})
	go func() {
		h.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}

	st := h.State()
	assert.False(t, st.Loading)
	assert.NoError(t, st.Err, "a fetch abandoned on stop is not a failure")

	_, finished, failed, _ := obs.counts()
	assert.Zero(t, finished)
	assert.Zero(t, failed)
	assert.Equal(t, 1, obs.cancelledCount())
}

func TestCallerCancellationIsAnError(t *testing.T) {
	reader := newGatedReader()
	h := NewHydrator(reader, nil, nil)
	defer h.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	h.Hydrate(ctx, NewReadRequest("h"))
	reader.next(t)
	cancel()

	st := waitSettled(t, h)
	assert.ErrorIs(t, st.Err, context.Canceled)
}
