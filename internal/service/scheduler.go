package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/community-pulse/internal/errors"
	"github.com/community-pulse/internal/logging"
)

// CycleRunner is the work a Scheduler triggers
type CycleRunner interface {
	RunCycle(ctx context.Context, date time.Time) (*CycleResult, error)
}

// Cleaner is the optional retention pass run after each cycle
type Cleaner interface {
	Cleanup(ctx context.Context) (*CleanupResult, error)
}

// Scheduler triggers the daily cycle at a fixed wall-clock time
type Scheduler struct {
	runner   CycleRunner
	cleaner  Cleaner
	hour     int
	minute   int
	location *time.Location
	now      Clock

	mu      sync.RWMutex
	running bool
	lastRun time.Time
	lastErr error
	nextRun time.Time
	stopCh  chan struct{}
	doneCh  chan struct{}
	logger  *logging.Logger
}

// SchedulerStatus represents the scheduler state
type SchedulerStatus struct {
	Running   bool      `json:"running"`
	NextRun   time.Time `json:"nextRun"`
	LastRun   time.Time `json:"lastRun,omitempty"`
	LastError string    `json:"lastError,omitempty"`
}

// NewScheduler runs runner every day at hour:minute in loc. cleaner may be nil.
func NewScheduler(runner CycleRunner, cleaner Cleaner, hour, minute int, loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{
		runner:   runner,
		cleaner:  cleaner,
		hour:     hour,
		minute:   minute,
		location: loc,
		now:      time.Now,
		logger:   logging.WithComponent("scheduler"),
	}
}

// NextRun returns the first trigger strictly after from
func (s *Scheduler) NextRun(from time.Time) time.Time {
	local := from.In(s.location)
	next := time.Date(local.Year(), local.Month(), local.Day(), s.hour, s.minute, 0, 0, s.location)
	if !next.After(local) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// Start launches the schedule loop
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("scheduler is already running")
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.nextRun = s.NextRun(s.now())

	s.logger.WithField("nextRun", s.nextRun.Format(time.RFC3339)).Info("Scheduler started")
	go s.loop(ctx, s.stopCh, s.doneCh)
	return nil
}

// Stop signals the loop and waits for an in-flight cycle to finish
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler is not running")
	}
	close(s.stopCh)
	done := s.doneCh
	s.mu.Unlock()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	s.logger.Info("Scheduler stopped")
	return nil
}

// loop clears running when it exits, whether via Stop or ctx
func (s *Scheduler) loop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		close(done)
	}()

	for {
		s.mu.RLock()
		next := s.nextRun
		s.mu.RUnlock()

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-stop:
			timer.Stop()
			return
		case <-timer.C:
			s.RunOnce(ctx, next)
			s.mu.Lock()
			s.nextRun = s.NextRun(next)
			s.mu.Unlock()
		}
	}
}

// RunOnce runs the cycle for the day containing at (in the schedule's
// timezone) and then the retention pass. An already running cycle is
// skipped rather than queued.
func (s *Scheduler) RunOnce(ctx context.Context, at time.Time) {
	local := at.In(s.location)
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)

	_, err := s.runner.RunCycle(ctx, day)
	switch {
	case errors.IsConflict(err):
		s.logger.WithError(err).Warn("Previous cycle still running, skipping")
	case err != nil:
		s.logger.WithError(err).Error("Scheduled cycle failed")
	}

	if s.cleaner != nil && err == nil {
		if _, cerr := s.cleaner.Cleanup(ctx); cerr != nil {
			s.logger.WithError(cerr).Error("Retention cleanup failed")
		}
	}

	s.mu.Lock()
	s.lastRun = s.now()
	s.lastErr = err
	s.mu.Unlock()
}

// GetStatus returns the scheduler state
func (s *Scheduler) GetStatus() *SchedulerStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := &SchedulerStatus{
		Running: s.running,
		NextRun: s.nextRun,
		LastRun: s.lastRun,
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}
