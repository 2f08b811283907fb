package aicontext

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/creastat/aicontext/record"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// DefaultSweepSchedule runs the retention sweep hourly.
const DefaultSweepSchedule = "@every 1h"

// Sweeper deletes records outside the retention windows.
type Sweeper struct {
	store         record.Store
	log           logrus.FieldLogger
	now           func() time.Time
	staleAfter    time.Duration
	inactiveAfter time.Duration
	schedule      string

	mu     sync.Mutex
	cron   *cron.Cron
	cancel context.CancelFunc
}

// SweeperOption configures a Sweeper.
type SweeperOption func(*Sweeper)

// WithSweepLogger sets the sweeper logger.
func WithSweepLogger(log logrus.FieldLogger) SweeperOption {
	return func(s *Sweeper) {
		s.log = log
	}
}

// WithSweepClock replaces time.Now as the sweep reference time.
func WithSweepClock(now func() time.Time) SweeperOption {
	return func(s *Sweeper) {
		s.now = now
	}
}

// WithRetention overrides the stale and inactive windows. Non-positive
// values keep the defaults.
func WithRetention(staleAfter, inactiveAfter time.Duration) SweeperOption {
	return func(s *Sweeper) {
		s.staleAfter = staleAfter
		s.inactiveAfter = inactiveAfter
	}
}

// WithSchedule sets the cron spec used by Start.
func WithSchedule(spec string) SweeperOption {
	return func(s *Sweeper) {
		s.schedule = spec
	}
}

// NewSweeper creates a Sweeper over store.
func NewSweeper(store record.Store, opts ...SweeperOption) *Sweeper {
	s := &Sweeper{
		store:    store,
		log:      logrus.StandardLogger(),
		now:      time.Now,
		schedule: DefaultSweepSchedule,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sweep removes every record that is stale, inactive past its window or
// past ExpiresAt, and returns how many were removed.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	policy := record.NewRetentionPolicy(s.now(), s.staleAfter, s.inactiveAfter)
	removed, err := s.store.DeleteExpired(ctx, policy)
	if err != nil {
		return removed, storageError("sweep", err)
	}

	s.log.WithFields(logrus.Fields{
		"removed":         removed,
		"stale_before":    policy.StaleBefore,
		"inactive_before": policy.InactiveBefore,
	}).Info("context retention sweep finished")
	return removed, nil
}

// Start runs Sweep on the configured schedule until Stop is called or ctx
// is done. A sweep still running when the next one is due is skipped.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return fmt.Errorf("sweeper already started")
	}

	ctx, cancel := context.WithCancel(ctx)
	logger := cronLogger{log: s.log}
	c := cron.New(cron.WithLogger(logger), cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)))
	_, err := c.AddFunc(s.schedule, func() {
		if _, err := s.Sweep(ctx); err != nil {
			s.log.WithError(err).Error("context retention sweep failed")
		}
	})
	if err != nil {
		cancel()
		return fmt.Errorf("invalid sweep schedule %q: %w", s.schedule, err)
	}

	s.cron = c
	s.cancel = cancel
	c.Start()
	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	s.log.WithField("schedule", s.schedule).Info("context retention sweeper started")
	return nil
}

// Stop halts the schedule and waits for a running sweep to return.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	c, cancel := s.cron, s.cancel
	s.cron, s.cancel = nil, nil
	s.mu.Unlock()

	if c == nil {
		return
	}
	<-c.Stop().Done()
	cancel()
	s.log.Info("context retention sweeper stopped")
}

// cronLogger routes cron's own logging through logrus.
type cronLogger struct {
	log logrus.FieldLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.WithFields(kvFields(keysAndValues)).Debug(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.WithFields(kvFields(keysAndValues)).WithError(err).Error(msg)
}

func kvFields(keysAndValues []any) logrus.Fields {
	fields := make(logrus.Fields, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return fields
}
