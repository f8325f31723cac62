package triage

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"
)

func host(h string, healthy bool) HostStatus {
	return HostStatus{Address: HostAddress{Host: h, Port: 80}, Healthy: healthy}
}

// scenarioResult is one result with three clusters, two of them failing.
func scenarioResult(addr string) Result {
	return Result{
		Address:      HostAddress{Host: addr, Port: 9901},
		NodeMetadata: &NodeMetadata{ServiceNode: "ingress-1", ServiceZone: "us-east-1a", ServiceCluster: "ingress"},
		Output: &Output{
			Clusters: &Clusters{ClusterStatuses: []ClusterStatus{
				{Name: "auth", HostStatuses: []HostStatus{host("10.1.0.1", true), host("10.1.0.2", true)}},
				{Name: "billing", HostStatuses: []HostStatus{host("10.2.0.1", false)}},
				{Name: "api", HostStatuses: []HostStatus{host("10.3.0.1", true), host("10.3.0.2", false)}},
			}},
			ConfigDump: &ConfigDump{Value: json.RawMessage(`{"foo":"bar"}`)},
			Listeners:  &Listeners{ListenerStatuses: []ListenerStatus{{Name: "http"}, {Name: "admin"}}},
			Runtime:    &Runtime{Entries: []RuntimeEntry{{Key: "a", Value: "1"}}},
			Stats:      &Stats{Stats: []Stat{{Key: "x", Value: 1}, {Key: "y", Value: 2}, {Key: "z", Value: 3}, {Key: "w", Value: 4}}},
			ServerInfo: &ServerInfo{Value: json.RawMessage(`{"state":"LIVE"}`)},
		},
	}
}

func envelopeOf(results ...Result) *Envelope {
	if results == nil {
		results = []Result{}
	}
	return &Envelope{Data: ReadResponse{Results: results}}
}

type readCall struct {
	req   *ReadRequest
	reply chan readReply
}

type readReply struct {
	env *Envelope
	err error
}

// gatedReader blocks every Read until the test replies to it, so tests
// control the order in which responses arrive. With ignoreCancel set a
// cancelled read still waits for its reply, standing in for a backend whose
// answer arrives after the caller has moved on.
type gatedReader struct {
	calls        chan readCall
	ignoreCancel bool
}

func newGatedReader() *gatedReader {
	return &gatedReader{calls: make(chan readCall, 8)}
}

func (r *gatedReader) Read(ctx context.Context, req *ReadRequest) (*Envelope, error) {
	call := readCall{req: req, reply: make(chan readReply, 1)}
	r.calls <- call
	if r.ignoreCancel {
		rep := <-call.reply
		return rep.env, rep.err
	}
	select {
	case rep := <-call.reply:
		return rep.env, rep.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *gatedReader) next(t *testing.T) readCall {
	t.Helper()
	select {
	case c := <-r.calls:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a read call")
		return readCall{}
	}
}

// recordingObserver counts observer callbacks.
type recordingObserver struct {
	mu        sync.Mutex
	started   int
	finished  int
	failed    int
	stale     int
	cancelled int
}

func (o *recordingObserver) FetchStarted(string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started++
}

func (o *recordingObserver) FetchFinished(_ string, _ time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.finished++
	if err != nil {
		o.failed++
	}
}

func (o *recordingObserver) StaleDropped(string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stale++
}

func (o *recordingObserver) FetchCancelled(string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.cancelled++
}

func (o *recordingObserver) cancelledCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.cancelled
}

func (o *recordingObserver) counts() (started, finished, failed, stale int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.started, o.finished, o.failed, o.stale
}

var errNetwork = errors.New("connection refused")

type captureExporter struct {
	got ExportRequest
	err error
}

func (c *captureExporter) Export(_ context.Context, req ExportRequest) (string, error) {
	c.got = req
	if c.err != nil {
		return "", c.err
	}
	return "/tmp/" + req.Filename, nil
}
