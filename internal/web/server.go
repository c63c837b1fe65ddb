// Package web serves the current dashboard snapshot and refresh status as
// read-only JSON for other tooling on the range network.
package web

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/Ashfaaq98/range-console/internal/dashboard"
	"github.com/Ashfaaq98/range-console/internal/telemetry"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Refresher is the scheduler surface the server needs.
type Refresher interface {
	Status() dashboard.Status
	Refresh() bool
}

// Options controls the view server.
type Options struct {
	// Bind address, e.g. "127.0.0.1:8090"
	Bind string
	// RPS is max requests per second (approximate). 0 disables rate limiting.
	RPS int
	// Burst is the token bucket size. If 0 and RPS>0, defaults to RPS.
	Burst  int
	Logger *log.Logger
}

// Server exposes /api/snapshot, /api/status and /api/refresh.
type Server struct {
	srv       *http.Server
	opts      Options
	scheduler Refresher
	store     *dashboard.Store
	limiter   *simpleLimiter
	logger    *log.Logger
	started   int32
	addr      string
	addrMu    sync.Mutex
}

// SnapshotResponse is the body of GET /api/snapshot.
type SnapshotResponse struct {
	State       string              `json:"state"`
	LastUpdated time.Time           `json:"last_updated"`
	Stale       bool                `json:"stale"`
	Message     string              `json:"message,omitempty"`
	Snapshot    *telemetry.Snapshot `json:"snapshot"`
}

// NewServer constructs the view server. Nothing listens until Start.
func NewServer(scheduler Refresher, store *dashboard.Store, opts Options) *Server {
	if opts.Bind == "" {
		opts.Bind = "127.0.0.1:8090"
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[web] ", log.LstdFlags)
	}
	var lim *simpleLimiter
	if opts.RPS > 0 {
		if opts.Burst <= 0 {
			opts.Burst = opts.RPS
		}
		lim = newSimpleLimiter(opts.RPS, opts.Burst)
	}
	s := &Server{
		opts:      opts,
		scheduler: scheduler,
		store:     store,
		limiter:   lim,
		logger:    logger,
	}
	s.srv = &http.Server{
		Addr:         opts.Bind,
		Handler:      s.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler returns the routed handler, rate limited when configured.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/snapshot", s.handleSnapshot)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/refresh", s.handleRefresh)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		if !s.limiter.Allow() {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		mux.ServeHTTP(w, r)
		s.logger.Printf("%s %s remote=%s dur=%s", r.Method, r.URL.Path, remoteIP(r.RemoteAddr), time.Since(start))
	})
}

// Start binds the listener and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.started, 0, 1) {
		return errors.New("web server already started")
	}
	// Bind early to surface errors synchronously
	ln, err := net.Listen("tcp", s.opts.Bind)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.opts.Bind, err)
	}
	s.addrMu.Lock()
	s.addr = ln.Addr().String()
	s.addrMu.Unlock()
	s.logger.Printf("Dashboard API listening on http://%s rps=%d burst=%d", s.Addr(), s.opts.RPS, s.opts.Burst)

	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Printf("server error: %v", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Printf("graceful shutdown failed: %v", err)
		}
		s.limiter.Close()
	}()
	return nil
}

// Addr is the bound listen address once Start has returned.
func (s *Server) Addr() string {
	s.addrMu.Lock()
	defer s.addrMu.Unlock()
	if s.addr == "" {
		return s.opts.Bind
	}
	return s.addr
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	st := s.scheduler.Status()
	snap, at, ok := s.store.Load()
	if !ok {
		resp := map[string]string{"state": "loading"}
		if st.State == dashboard.StateError {
			resp["state"] = "error"
			resp["message"] = st.Message
		}
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	writeJSON(w, http.StatusOK, SnapshotResponse{
		State:       st.State.String(),
		LastUpdated: at,
		Stale:       st.State == dashboard.StateError,
		Message:     st.Message,
		Snapshot:    snap,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, s.scheduler.Status())
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if !s.scheduler.Refresh() {
		writeJSON(w, http.StatusConflict, map[string]string{"result": "ignored", "state": s.scheduler.Status().State.String()})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"result": "started"})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// remoteIP extracts ip from host:port
func remoteIP(addr string) string {
	if i := strings.LastIndex(addr, ":"); i != -1 {
		return addr[:i]
	}
	return addr
}
