package auth

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"time"
)

// TimingConfig holds the failure padding for credential checks
type TimingConfig struct {
	BaseDelay   time.Duration
	RandomDelay time.Duration // upper bound of the jitter added to BaseDelay
}

// TimingDelay pads failed credential checks so that an unknown account, a
// wrong password and a wrong second factor take about the same time.
type TimingDelay struct {
	config TimingConfig
}

// NewTimingDelay creates a new TimingDelay instance
func NewTimingDelay(config TimingConfig) *TimingDelay {
	return &TimingDelay{
		config: config,
	}
}

// NewTimingDelayMs is NewTimingDelay taking millisecond settings from config
func NewTimingDelayMs(baseMs, randomMs int) *TimingDelay {
	return NewTimingDelay(TimingConfig{
		BaseDelay:   time.Duration(baseMs) * time.Millisecond,
		RandomDelay: time.Duration(randomMs) * time.Millisecond,
	})
}

// target returns base delay plus crypto-random jitter. Jitter is dropped if
// the random source fails.
func (td *TimingDelay) target() time.Duration {
	if td.config.RandomDelay <= 0 {
		return td.config.BaseDelay
	}

	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return td.config.BaseDelay
	}
	jitter := time.Duration(binary.BigEndian.Uint64(b[:]) % uint64(td.config.RandomDelay))
	return td.config.BaseDelay + jitter
}

// PadFailure sleeps until at least the padding target has elapsed since start.
// It returns early when ctx is cancelled.
func (td *TimingDelay) PadFailure(ctx context.Context, start time.Time) {
	remaining := td.target() - time.Since(start)
	if remaining <= 0 {
		return
	}

	timer := time.NewTimer(remaining)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
