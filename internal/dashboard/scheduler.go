package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Ashfaaq98/range-console/internal/telemetry"
)

// Defaults for the refresh cadence. The fetch timeout stays below the
// interval so a hung source cannot stall the cadence.
const (
	DefaultInterval     = 10 * time.Second
	DefaultFetchTimeout = 8 * time.Second
)

// ErrBusy is returned by RunOnce when a cycle is already in flight.
var ErrBusy = errors.New("refresh already in progress")

// ErrStopped is returned for cycles that finish after Stop.
var ErrStopped = errors.New("scheduler stopped")

// Readers are the four independent source reads of a cycle.
type Readers interface {
	Summary(ctx context.Context) (telemetry.SummaryMetrics, error)
	InterceptEvents(ctx context.Context) ([]telemetry.InterceptEvent, error)
	IntrusionEvents(ctx context.Context) ([]telemetry.IntrusionEvent, error)
	Timeline(ctx context.Context) ([]telemetry.TimelineMark, error)
}

// State is the scheduler lifecycle state.
type State int

const (
	StateIdle State = iota
	StateFetching
	StateReady
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetching:
		return "fetching"
	case StateReady:
		return "ready"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText renders the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Status is what presentation shows about the refresh loop.
type Status struct {
	State       State     `json:"state"`
	Message     string    `json:"message,omitempty"`
	CycleID     string    `json:"cycle_id,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
	LastSuccess time.Time `json:"last_success"`
	// Failures counts consecutive failed cycles.
	Failures int `json:"failures"`
}

// Duration of the last finished cycle, zero while fetching.
func (st Status) Duration() time.Duration {
	if st.FinishedAt.IsZero() || st.FinishedAt.Before(st.StartedAt) {
		return 0
	}
	return st.FinishedAt.Sub(st.StartedAt)
}

// Observer is notified after every state transition.
type Observer func(Status)

// Options configures a Scheduler.
type Options struct {
	Interval     time.Duration
	FetchTimeout time.Duration
	Logger       *log.Logger
	Debug        bool

	// Test hooks.
	Now   func() time.Time
	NewID func() string
}

// Scheduler drives refresh cycles: a cycle on start, one per interval, and
// one per manual Refresh. At most one cycle is in flight; triggers that
// arrive while fetching are dropped.
type Scheduler struct {
	readers Readers
	store   *Store
	opts    Options
	logger  *log.Logger

	busy atomic.Bool
	wg   sync.WaitGroup

	mu        sync.Mutex
	status    Status
	observers []Observer
	runCtx    context.Context
	cancel    context.CancelFunc
	stopped   bool
}

// NewScheduler wires readers to store.
func NewScheduler(readers Readers, store *Store, opts Options) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = DefaultFetchTimeout
	}
	if opts.Logger == nil {
		opts.Logger = log.New(log.Writer(), "[scheduler] ", log.LstdFlags)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = func() string { return uuid.New().String() }
	}
	return &Scheduler{
		readers: readers,
		store:   store,
		opts:    opts,
		logger:  opts.Logger,
		status:  Status{State: StateIdle},
	}
}

// Subscribe registers an observer. Observers run on the cycle goroutine
// and must not block for long.
func (s *Scheduler) Subscribe(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, o)
}

// Status returns the current status.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Interval returns the configured cadence.
func (s *Scheduler) Interval() time.Duration { return s.opts.Interval }

// Run starts a cycle immediately and then every interval until ctx is
// cancelled or Stop is called.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.runCtx != nil {
		s.mu.Unlock()
		return errors.New("scheduler already running")
	}
	if s.stopped {
		s.mu.Unlock()
		return ErrStopped
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.runCtx, s.cancel = runCtx, cancel
	s.mu.Unlock()
	defer s.Stop()

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	s.logger.Printf("Refreshing every %s (fetch timeout %s)", s.opts.Interval, s.opts.FetchTimeout)
	s.start(runCtx)

	for {
		select {
		case <-runCtx.Done():
			return nil
		case <-ticker.C:
			if !s.start(runCtx) {
				s.debugf("tick skipped: cycle still in flight")
			}
		}
	}
}

// Refresh requests an immediate cycle. It returns false when the request
// was dropped because a cycle is already in flight or Run is not active.
func (s *Scheduler) Refresh() bool {
	s.mu.Lock()
	ctx, stopped := s.runCtx, s.stopped
	s.mu.Unlock()
	if ctx == nil || stopped || ctx.Err() != nil {
		return false
	}
	if !s.start(ctx) {
		s.debugf("manual refresh swallowed: cycle still in flight")
		return false
	}
	return true
}

// RunOnce performs one cycle on the calling goroutine.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	if !s.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer s.busy.Store(false)
	return s.cycle(ctx)
}

// Stop cancels the timer and any in-flight cycle. A cycle that completes
// after Stop neither commits nor notifies.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.stopped = true
	if s.cancel != nil {
		s.cancel()
	}
}

// Wait blocks until background cycles started by Run or Refresh have returned.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) start(ctx context.Context) bool {
	if !s.busy.CompareAndSwap(false, true) {
		return false
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.busy.Store(false)
		_ = s.cycle(ctx)
	}()
	return true
}

func (s *Scheduler) cycle(ctx context.Context) error {
	id := s.opts.NewID()
	started := s.opts.Now()

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrStopped
	}
	s.status.State = StateFetching
	s.status.CycleID = id
	s.status.StartedAt = started
	s.status.FinishedAt = time.Time{}
	s.status.Message = ""
	st, obs := s.status, s.snapshotObservers()
	s.mu.Unlock()
	notify(obs, st)

	cctx, cancel := context.WithTimeout(ctx, s.opts.FetchTimeout)
	defer cancel()

	in, err := s.fetchAll(cctx)
	var snap *telemetry.Snapshot
	if err == nil {
		snap = Build(id, in)
	}
	finished := s.opts.Now()

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		s.debugf("cycle %s finished after stop; discarded", id)
		return ErrStopped
	}
	s.status.FinishedAt = finished
	if err != nil {
		s.status.State = StateError
		s.status.Message = "Failed to load data: " + err.Error()
		s.status.Failures++
	} else {
		s.store.Replace(snap, finished)
		s.status.State = StateReady
		s.status.Message = ""
		s.status.LastSuccess = finished
		s.status.Failures = 0
	}
	st, obs = s.status, s.snapshotObservers()
	s.mu.Unlock()

	if err != nil {
		s.logger.Printf("cycle %s failed after %s (streak=%d): %v", id, st.Duration(), st.Failures, err)
	} else {
		s.logger.Printf("cycle %s ready in %s: intercepted=%d intrusion=%d timeline=%d methods=%d",
			id, st.Duration(), len(snap.InterceptEvents), len(snap.IntrusionEvents), len(snap.Timeline), len(snap.MethodDistribution))
	}
	notify(obs, st)
	return err
}

// fetchAll reads the four sources concurrently. The first failure cancels
// the remaining reads.
func (s *Scheduler) fetchAll(ctx context.Context) (Inputs, error) {
	var in Inputs
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		v, err := s.readers.Summary(gctx)
		in.Summary = v
		return err
	})
	g.Go(func() error {
		v, err := s.readers.InterceptEvents(gctx)
		in.InterceptEvents = v
		return err
	})
	g.Go(func() error {
		v, err := s.readers.IntrusionEvents(gctx)
		in.IntrusionEvents = v
		return err
	})
	g.Go(func() error {
		v, err := s.readers.Timeline(gctx)
		in.Timeline = v
		return err
	})
	if err := g.Wait(); err != nil {
		return Inputs{}, err
	}
	return in, nil
}

func (s *Scheduler) snapshotObservers() []Observer {
	out := make([]Observer, len(s.observers))
	copy(out, s.observers)
	return out
}

func notify(obs []Observer, st Status) {
	for _, o := range obs {
		o(st)
	}
}

func (s *Scheduler) debugf(format string, args ...interface{}) {
	if s.opts.Debug {
		s.logger.Printf("DEBUG: "+format, args...)
	}
}
