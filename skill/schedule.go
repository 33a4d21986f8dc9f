package skill

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// schedule is a backoff.BackOff that follows RetryConfig.Delay exactly and
// stops once MaxAttempts attempts have been made.
type schedule struct {
	cfg     RetryConfig
	attempt int
}

func newSchedule(cfg RetryConfig) *schedule {
	return &schedule{cfg: cfg}
}

// NextBackOff is called by backoff after each failed attempt.
func (s *schedule) NextBackOff() time.Duration {
	s.attempt++
	if s.attempt >= s.cfg.MaxAttempts {
		return backoff.Stop
	}
	return s.cfg.Delay(s.attempt)
}

func (s *schedule) Reset() {
	s.attempt = 0
}

var _ backoff.BackOff = (*schedule)(nil)

// TimerFactory creates the timer used to wait between attempts.
type TimerFactory func() backoff.Timer

// realTimer is a backoff.Timer over time.Timer; backoff's own default is unexported.
type realTimer struct {
	timer *time.Timer
}

func newRealTimer() backoff.Timer {
	return &realTimer{}
}

func (t *realTimer) C() <-chan time.Time {
	return t.timer.C
}

func (t *realTimer) Start(d time.Duration) {
	if t.timer == nil {
		t.timer = time.NewTimer(d)
	} else {
		t.timer.Reset(d)
	}
}

func (t *realTimer) Stop() {
	if t.timer != nil {
		t.timer.Stop()
	}
}
