package services

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/BradenHooton/gatekeeper/internal/models"
	"github.com/BradenHooton/gatekeeper/internal/repositories"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testEngine wires the defense components over the memory backend with a
// controllable clock.
type testEngine struct {
	clock    *fakeClock
	attempts *repositories.MemoryLoginAttemptRepository
	blockDB  *repositories.MemoryBlockedIdentityRepository
	logDB    *repositories.MemorySecurityLogRepository
	csrfDB   *repositories.MemoryCSRFTokenRepository

	events *SecurityEventLog
	blocks *BlockList
	ledger *AttemptLedger
	csrf   *CSRFTokenManager
	gate   *AccessGate
}

type engineOptions struct {
	gate     AccessGateConfig
	notifier AlertNotifier
	blockDB  BlockedIdentityRepository
}

func newTestEngine(t *testing.T, opts ...func(*engineOptions)) *testEngine {
	t.Helper()

	o := engineOptions{gate: AccessGateConfig{LogPageAccess: true}}
	for _, opt := range opts {
		opt(&o)
	}

	e := &testEngine{
		clock:    newFakeClock(),
		attempts: repositories.NewMemoryLoginAttemptRepository(),
		blockDB:  repositories.NewMemoryBlockedIdentityRepository(),
		logDB:    repositories.NewMemorySecurityLogRepository(),
		csrfDB:   repositories.NewMemoryCSRFTokenRepository(),
	}

	var blockRepo BlockedIdentityRepository = e.blockDB
	if o.blockDB != nil {
		blockRepo = o.blockDB
	}

	logger := discardLogger()
	e.events = NewSecurityEventLog(e.logDB, logger)
	e.blocks = NewBlockList(blockRepo, e.events, o.notifier, BlockListConfig{BlockDuration: 24 * time.Hour}, logger)
	e.ledger = NewAttemptLedger(e.attempts, e.blocks, e.events, AttemptLedgerConfig{
		MaxAttempts:     5,
		LockoutDuration: 15 * time.Minute,
	}, logger)
	e.csrf = NewCSRFTokenManager(e.csrfDB, e.events, logger)
	e.gate = NewAccessGate(e.ledger, e.blocks, e.csrf, e.events, o.gate, logger)

	e.events.SetClock(e.clock.Now)
	e.blocks.SetClock(e.clock.Now)
	e.ledger.SetClock(e.clock.Now)
	e.csrf.SetClock(e.clock.Now)

	return e
}

func (e *testEngine) allEvents(t *testing.T) []*models.SecurityEvent {
	t.Helper()
	events, err := e.logDB.Recent(context.Background(), 10000)
	require.NoError(t, err)
	return events
}

func (e *testEngine) countEvents(t *testing.T, action models.Action) int {
	t.Helper()
	n := 0
	for _, event := range e.allEvents(t) {
		if event.Action == action {
			n++
		}
	}
	return n
}

func (e *testEngine) fail(t *testing.T, identity models.Identity, times int) {
	t.Helper()
	for i := 0; i < times; i++ {
		_, err := e.ledger.RecordFailure(context.Background(), identity)
		require.NoError(t, err)
	}
}
