// Package server exposes triage sessions over HTTP, one session per browser.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/felixge/httpsnoop"
	"github.com/google/uuid"
	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"remotetriage/internal/cache"
	"remotetriage/internal/logging"
	"remotetriage/internal/metrics"
	"remotetriage/internal/triage"
)

const (
	cookieName        = "remotetriage-session"
	sessionIDKey      = "sid"
	shutdownTimeout   = 10 * time.Second
	keepaliveInterval = 30 * time.Second
)

// Config holds the server settings
type Config struct {
	ListenAddr    string
	SessionKey    string
	SessionTTL    time.Duration
	SweepInterval time.Duration
	ExportFormat  string
	SecureCookies bool
}

// Server represents the HTTP server
type Server struct {
	config       Config
	reader       triage.Reader
	metrics      *metrics.Metrics
	sessionStore *sessions.CookieStore
	registry     *cache.Registry[*liveSession]
	sseManager   *SSEManager

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a new server instance
func New(cfg Config, reader triage.Reader, m *metrics.Metrics) *Server {
	if m == nil {
		m = metrics.New()
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Minute
	}

	sessionKey := []byte(cfg.SessionKey)
	if len(sessionKey) == 0 {
		logging.Warning("No session_key configured, generating an ephemeral one; sessions will not survive a restart")
		sessionKey = securecookie.GenerateRandomKey(32)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		config:       cfg,
		reader:       reader,
		metrics:      m,
		sessionStore: sessions.NewCookieStore(sessionKey),
		registry:     cache.New[*liveSession](cfg.SessionTTL),
		sseManager:   NewSSEManager(),
		ctx:          ctx,
		cancel:       cancel,
	}

	s.sessionStore.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int(cfg.SessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	}
	s.registry.OnEvict = s.closeSession

	return s
}

// Handler returns the instrumented route tree
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", s.metrics.Handler())

	mux.HandleFunc("GET /api/v1/triage", s.handleTriage)
	mux.HandleFunc("POST /api/v1/triage/lookup", s.handleLookup)
	mux.HandleFunc("GET /api/v1/triage/view", s.handleView)
	mux.HandleFunc("GET /api/v1/triage/export", s.handleExport)
	mux.HandleFunc("GET /api/v1/triage/events", s.handleEvents)

	return otelhttp.NewHandler(requestLogger(mux), "remotetriage",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	baseCtx, cancelRequests := context.WithCancel(context.Background())
	defer cancelRequests()

	srv := &http.Server{
		Addr:              s.config.ListenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logging.Info("Triage API listening on %s", s.config.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		// Streaming handlers only return once their request context ends.
		cancelRequests()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return s.registry.Run(gctx, s.config.SweepInterval)
	})

	err := g.Wait()
	s.Close()
	logging.Info("Triage API stopped")
	return err
}

// Close ends every triage session
func (s *Server) Close() {
	s.registry.Clear()
	s.cancel()
}

// liveSession is a triage session held for one browser. streamID keys its SSE
// clients, so a replacement session under the same cookie never shares them.
type liveSession struct {
	*triage.Session
	id       string
	streamID string
}

// session resolves the caller's triage session, creating one on first use.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (*liveSession, error) {
	cookie, err := s.sessionStore.Get(r, cookieName)
	if err != nil {
		logging.Debug("Discarding unreadable session cookie: %v", err)
	}

	sid, _ := cookie.Values[sessionIDKey].(string)
	if sid == "" {
		sid = newSessionID()
		cookie.Values[sessionIDKey] = sid
		if err := cookie.Save(r, w); err != nil {
			return nil, err
		}
	}

	ls, created := s.registry.GetOrCreate(sid, func() *liveSession {
		return s.openSession(sid)
	})
	if created {
		logging.Info("Opened triage session %s", sid)
	}
	return ls, nil
}

func (s *Server) openSession(sid string) *liveSession {
	ls := &liveSession{
		Session:  triage.NewSession(s.ctx, s.reader, triage.Options{Observer: s.metrics}),
		id:       sid,
		streamID: uuid.NewString(),
	}
	s.metrics.SessionOpened()

	changes, _ := ls.Subscribe()
	go func() {
		for change := range changes {
			s.sseManager.BroadcastMessage(ls.streamID, "state", change)
		}
	}()
	return ls
}

func (s *Server) closeSession(sid string, ls *liveSession) {
	ls.Close()
	s.sseManager.CloseSession(ls.streamID)
	s.metrics.SessionClosed()
	logging.Info("Closed triage session %s", sid)
}

// requestLogger logs one line per request with its status and latency
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(next, w, r)
		logging.Debug("%s %s %d %s", r.Method, r.URL.Path, m.Code, m.Duration)
	})
}
