package health

import (
	"context"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Check is an active health probe for a single service key.
type Check interface {
	Key() string
	Probe(ctx context.Context) error
}

// CheckRunner polls a set of Checks on an interval and feeds their results
// into a Tracker as active-check state, in the style of the teacher's
// internal/pally.pusher ticker loop.
type CheckRunner struct {
	tracker  *Tracker
	interval time.Duration
	timeout  time.Duration
	logger   *zap.Logger

	mu     sync.Mutex
	checks []Check

	stop chan struct{}
	done chan struct{}
}

// NewCheckRunner constructs a CheckRunner feeding into tracker.
func NewCheckRunner(tracker *Tracker, interval, timeout time.Duration, logger *zap.Logger) *CheckRunner {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if timeout <= 0 {
		timeout = interval / 2
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CheckRunner{tracker: tracker, interval: interval, timeout: timeout, logger: logger}
}

// Register adds a Check to the polling set.
func (r *CheckRunner) Register(c Check) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checks = append(r.checks, c)
}

// Start begins polling in a background goroutine. It is a no-op if already
// started.
func (r *CheckRunner) Start() {
	r.mu.Lock()
	if r.stop != nil {
		r.mu.Unlock()
		return
	}
	r.stop = make(chan struct{})
	r.done = make(chan struct{})
	stop, done := r.stop, r.done
	r.mu.Unlock()

	go r.run(stop, done)
}

func (r *CheckRunner) run(stop, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			r.pollAll()
		}
	}
}

// pollAll runs every registered Check concurrently and aggregates their
// independent failures with multierr, so one slow or failing probe never
// delays another and a single poll cycle still yields one combined error
// for logging.
func (r *CheckRunner) pollAll() {
	r.mu.Lock()
	checks := make([]Check, len(r.checks))
	copy(checks, r.checks)
	r.mu.Unlock()

	var (
		wg       sync.WaitGroup
		errMu    sync.Mutex
		combined error
	)

	for _, c := range checks {
		c := c
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
			err := c.Probe(ctx)
			cancel()
			healthy := err == nil
			r.tracker.RecordActiveCheck(c.Key(), healthy)
			if !healthy {
				errMu.Lock()
				combined = multierr.Append(combined, err)
				errMu.Unlock()
			}
		}()
	}
	wg.Wait()

	if combined != nil {
		r.logger.Debug("active health checks reported failures", zap.Error(combined))
	}
}

// Stop halts polling and waits for the in-flight poll, if any, to finish.
func (r *CheckRunner) Stop() {
	r.mu.Lock()
	stop, done := r.stop, r.done
	r.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
}
