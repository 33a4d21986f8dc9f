package skill

import (
	"testing"
	"time"
)

func TestRetryConfig_Delay(t *testing.T) {
	cfg := RetryConfig{BaseDelay: 500 * time.Millisecond, BackoffMultiplier: 2}

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{0, 0},
		{1, 500 * time.Millisecond},
		{2, time.Second},
		{3, 2 * time.Second},
		{5, 8 * time.Second},
	}
	for _, tt := range tests {
		if got := cfg.Delay(tt.attempt); got != tt.expected {
			t.Errorf("Delay(%d) = %s, want %s", tt.attempt, got, tt.expected)
		}
	}

	// Pure: the same input always yields the same output.
	if cfg.Delay(3) != cfg.Delay(3) {
		t.Error("Delay is not deterministic")
	}
}

func TestRetryConfig_DelayOverflow(t *testing.T) {
	cfg := RetryConfig{BaseDelay: time.Hour, BackoffMultiplier: 10}
	if got := cfg.Delay(40); got <= 0 {
		t.Errorf("expected saturated positive delay, got %s", got)
	}
}

func TestRetryConfig_Validate(t *testing.T) {
	valid := DefaultRetryConfig()
	if err := valid.Validate(); err != nil {
		t.Fatalf("default config should be valid: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*RetryConfig)
	}{
		{"zero attempts", func(c *RetryConfig) { c.MaxAttempts = 0 }},
		{"negative delay", func(c *RetryConfig) { c.BaseDelay = -time.Second }},
		{"shrinking multiplier", func(c *RetryConfig) { c.BackoffMultiplier = 0.5 }},
		{"no timeout", func(c *RetryConfig) { c.PerAttemptTimeout = 0 }},
		{"retrying validation", func(c *RetryConfig) { c.RetryableKinds = []Kind{KindValidation} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultRetryConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestRetryConfig_ShouldRetry(t *testing.T) {
	cfg := DefaultRetryConfig()

	tests := []struct {
		name     string
		err      *Error
		expected bool
	}{
		{"nil", nil, false},
		{"connection", &Error{Kind: KindConnection}, true},
		{"timeout", &Error{Kind: KindTimeout}, true},
		{"server error", &Error{Kind: KindAPIStatus, StatusCode: 503}, true},
		{"client error", &Error{Kind: KindAPIStatus, StatusCode: 404}, false},
		{"rate limited", &Error{Kind: KindAPIStatus, StatusCode: 429}, false},
		{"validation", &Error{Kind: KindValidation}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cfg.ShouldRetry(tt.err); got != tt.expected {
				t.Errorf("ShouldRetry(%+v) = %v, want %v", tt.err, got, tt.expected)
			}
		})
	}
}

func TestSchedule_StopsAtMaxAttempts(t *testing.T) {
	s := newSchedule(RetryConfig{MaxAttempts: 3, BaseDelay: 100 * time.Millisecond, BackoffMultiplier: 3})

	if d := s.NextBackOff(); d != 100*time.Millisecond {
		t.Errorf("first wait = %s", d)
	}
	if d := s.NextBackOff(); d != 300*time.Millisecond {
		t.Errorf("second wait = %s", d)
	}
	if d := s.NextBackOff(); d >= 0 {
		t.Errorf("expected stop after third attempt, got %s", d)
	}

	s.Reset()
	if d := s.NextBackOff(); d != 100*time.Millisecond {
		t.Errorf("expected schedule to restart after reset, got %s", d)
	}
}
