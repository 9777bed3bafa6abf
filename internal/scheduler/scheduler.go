package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"smart-mail-assistant-go/internal/config"
)

// Job names
const (
	JobIngestion  = "ingestion"
	JobProcessing = "processing"
)

// ErrAlreadyRunning is returned by Start when a handle is live
var ErrAlreadyRunning = errors.New("scheduler is already running")

// Job is one periodic unit of work
type Job func(ctx context.Context) error

// Scheduler owns the ingestion and processing timers
type Scheduler struct {
	cfg     config.SchedulerConfig
	jobs    map[string]Job
	order   []string
	now     func() time.Time
	mu      sync.RWMutex
	handle  *Handle
	lastRun map[string]time.Time
	lastErr map[string]error
}

// Option customizes a Scheduler
type Option func(*Scheduler)

// WithClock replaces the wall clock used for run bookkeeping
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// NewScheduler creates a scheduler for the ingestion and processing jobs
func NewScheduler(cfg config.SchedulerConfig, ingest, process Job, opts ...Option) *Scheduler {
	s := &Scheduler{
		cfg:     cfg,
		jobs:    map[string]Job{JobIngestion: ingest, JobProcessing: process},
		order:   []string{JobIngestion, JobProcessing},
		now:     time.Now,
		lastRun: make(map[string]time.Time),
		lastErr: make(map[string]error),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handle controls one running instance of the scheduler
type Handle struct {
	cron     *cron.Cron
	cancel   context.CancelFunc
	entries  map[string]cron.EntryID
	done     chan struct{}
	initial  sync.WaitGroup
	stopOnce sync.Once
	release  func(*Handle)
}

// Stop cancels in-flight jobs, including the initial runs, and waits up to 30s for them to return
func (h *Handle) Stop() {
	h.stopOnce.Do(func() {
		h.cancel()
		ctx := h.cron.Stop()
		finished := make(chan struct{})
		go func() {
			<-ctx.Done()
			h.initial.Wait()
			close(finished)
		}()
		select {
		case <-finished:
			logrus.Info("Scheduler stopped gracefully")
		case <-time.After(30 * time.Second):
			logrus.Warn("Scheduler stop timeout, forcing shutdown")
		}
		h.release(h)
		close(h.done)
	})
}

// Wait blocks until the handle is stopped
func (h *Handle) Wait() {
	<-h.done
}

// Start schedules both jobs, runs each once immediately and returns a handle.
// Cancelling ctx stops the scheduler.
func (s *Scheduler) Start(ctx context.Context) (*Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.handle != nil {
		return nil, ErrAlreadyRunning
	}

	logger := cron.PrintfLogger(logrus.StandardLogger())
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	runCtx, cancel := context.WithCancel(ctx)

	intervals := map[string]time.Duration{
		JobIngestion:  s.cfg.IngestionInterval,
		JobProcessing: s.cfg.ProcessingInterval,
	}
	h := &Handle{
		cron:    c,
		cancel:  cancel,
		entries: make(map[string]cron.EntryID),
		done:    make(chan struct{}),
		release: s.release,
	}
	for _, name := range s.order {
		if s.jobs[name] == nil {
			continue
		}
		name := name
		id, err := c.AddFunc(fmt.Sprintf("@every %s", intervals[name]), func() { s.run(runCtx, name) })
		if err != nil {
			cancel()
			return nil, fmt.Errorf("failed to add %s job: %w", name, err)
		}
		h.entries[name] = id
	}

	c.Start()
	s.handle = h
	for _, id := range h.entries {
		job := c.Entry(id).WrappedJob
		h.initial.Add(1)
		go func() {
			defer h.initial.Done()
			job.Run()
		}()
	}
	go func() {
		select {
		case <-runCtx.Done():
			h.Stop()
		case <-h.done:
		}
	}()

	logrus.Infof("Scheduler started: ingestion every %s, processing every %s", s.cfg.IngestionInterval, s.cfg.ProcessingInterval)
	return h, nil
}

func (s *Scheduler) release(h *Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handle == h {
		s.handle = nil
	}
}

// Stop stops the running handle, if any
func (s *Scheduler) Stop() {
	s.mu.RLock()
	h := s.handle
	s.mu.RUnlock()
	if h != nil {
		h.Stop()
	}
}

// RunOnce runs ingestion then processing synchronously
func (s *Scheduler) RunOnce(ctx context.Context) error {
	logrus.Info("Running ingestion and processing once")
	var errs []error
	for _, name := range s.order {
		if s.jobs[name] == nil {
			continue
		}
		if err := s.run(ctx, name); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

func (s *Scheduler) run(ctx context.Context, name string) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	start := s.now()
	err := s.jobs[name](ctx)

	s.mu.Lock()
	s.lastRun[name] = start
	s.lastErr[name] = err
	s.mu.Unlock()

	if err != nil {
		logrus.Errorf("%s job failed: %v", name, err)
	}
	return err
}

// IsRunning returns whether the timers are active
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.handle != nil
}

// JobStatus describes one timer
type JobStatus struct {
	Interval  string    `json:"interval"`
	NextRun   time.Time `json:"next_run,omitempty"`
	LastRun   time.Time `json:"last_run,omitempty"`
	LastError string    `json:"last_error,omitempty"`
}

// Status reports both timers
type Status struct {
	Running bool                 `json:"running"`
	Jobs    map[string]JobStatus `json:"jobs"`
}

// Status returns the timer state
func (s *Scheduler) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Status{Running: s.handle != nil, Jobs: make(map[string]JobStatus)}
	intervals := map[string]time.Duration{
		JobIngestion:  s.cfg.IngestionInterval,
		JobProcessing: s.cfg.ProcessingInterval,
	}
	for _, name := range s.order {
		js := JobStatus{Interval: intervals[name].String(), LastRun: s.lastRun[name]}
		if err := s.lastErr[name]; err != nil {
			js.LastError = err.Error()
		}
		if s.handle != nil {
			if id, ok := s.handle.entries[name]; ok {
				js.NextRun = s.handle.cron.Entry(id).Next
			}
		}
		st.Jobs[name] = js
	}
	return st
}

// NextRun returns when the named job fires next, or the zero time when stopped
func (s *Scheduler) NextRun(name string) time.Time {
	return s.Status().Jobs[name].NextRun
}

// LastRun returns when the named job last started
func (s *Scheduler) LastRun(name string) time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastRun[name]
}
