package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/BradenHooton/gatekeeper/internal/models"
)

// AccessGateConfig holds the admission policy
type AccessGateConfig struct {
	// FailClosed denies when storage cannot be read. The default admits
	// and records STORAGE_UNAVAILABLE.
	FailClosed    bool
	LogPageAccess bool
}

// AccessGate is what the front end calls: admission before credentials are
// compared, outcome reporting after.
type AccessGate struct {
	ledger *AttemptLedger
	blocks *BlockList
	csrf   *CSRFTokenManager
	events *SecurityEventLog
	config AccessGateConfig
	logger *slog.Logger
}

// NewAccessGate creates a new AccessGate
func NewAccessGate(ledger *AttemptLedger, blocks *BlockList, csrf *CSRFTokenManager, events *SecurityEventLog, config AccessGateConfig, logger *slog.Logger) *AccessGate {
	return &AccessGate{
		ledger: ledger,
		blocks: blocks,
		csrf:   csrf,
		events: events,
		config: config,
		logger: logger,
	}
}

// Admit decides whether identity may attempt to authenticate
func (g *AccessGate) Admit(ctx context.Context, identity models.Identity) models.Decision {
	blocked, err := g.blocks.IsBlocked(ctx, identity)
	if err != nil {
		return g.storageFailure(ctx, identity, "admit", err)
	}
	if blocked {
		return models.Deny(models.DenyReasonBlocked)
	}

	locked, err := g.ledger.IsLocked(ctx, identity)
	if err != nil {
		return g.storageFailure(ctx, identity, "admit", err)
	}
	if locked {
		return models.Deny(models.DenyReasonLocked)
	}

	return models.Allow()
}

// CheckRequest is the per-request admission: it records the access and
// turns away blocked identities.
func (g *AccessGate) CheckRequest(ctx context.Context, identity models.Identity, path string) models.Decision {
	if g.config.LogPageAccess {
		g.events.Append(ctx, identity, models.ActionPageAccess, "Accessed: "+path)
	}

	blocked, err := g.blocks.IsBlocked(ctx, identity)
	if err != nil {
		return g.storageFailure(ctx, identity, "request", err)
	}
	if blocked {
		g.events.Append(ctx, identity, models.ActionBlockedIdentityAccess, "Blocked IP tried to access site")
		return models.Deny(models.DenyReasonBlocked)
	}

	return models.Allow()
}

// OnAuthFailure records a failed credential check
func (g *AccessGate) OnAuthFailure(ctx context.Context, identity models.Identity) error {
	_, err := g.ledger.RecordFailure(ctx, identity)
	return err
}

// OnAuthSuccess clears the ledger. An active block stays in force.
func (g *AccessGate) OnAuthSuccess(ctx context.Context, identity models.Identity) error {
	return g.ledger.Reset(ctx, identity)
}

// CSRFToken returns the session's anti-forgery token
func (g *AccessGate) CSRFToken(ctx context.Context, sessionID string) (string, error) {
	return g.csrf.TokenFor(ctx, sessionID)
}

// CSRFValidate checks a submitted anti-forgery token
func (g *AccessGate) CSRFValidate(ctx context.Context, sessionID, token string) bool {
	return g.csrf.Validate(ctx, sessionID, token)
}

// State reports where identity sits in the lockout state machine
func (g *AccessGate) State(ctx context.Context, identity models.Identity) (models.DefenseState, error) {
	blocked, err := g.blocks.IsBlocked(ctx, identity)
	if err != nil {
		return "", err
	}
	if blocked {
		return models.StateBlocked, nil
	}

	rec, err := g.ledger.Lookup(ctx, identity)
	if err != nil {
		return "", err
	}
	if rec == nil {
		return models.StateClean, nil
	}
	if rec.DeniesAuthentication(g.ledger.now(), g.ledger.MaxAttempts()) {
		return models.StateTemporarilyLocked, nil
	}
	return models.StateWarned, nil
}

// IdentityReport is the admin view of one identity
type IdentityReport struct {
	Identity models.Identity               `json:"identity"`
	State    models.DefenseState           `json:"state"`
	Ledger   *models.LoginAttemptRecord    `json:"ledger,omitempty"`
	Block    *models.BlockedIdentityRecord `json:"block,omitempty"`
}

// Inspect gathers the state, ledger record and block row of identity
func (g *AccessGate) Inspect(ctx context.Context, identity models.Identity) (*IdentityReport, error) {
	state, err := g.State(ctx, identity)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect identity: %w", err)
	}

	report := &IdentityReport{Identity: identity, State: state}

	if report.Ledger, err = g.ledger.Lookup(ctx, identity); err != nil {
		return nil, fmt.Errorf("failed to inspect identity: %w", err)
	}

	block, err := g.blocks.Lookup(ctx, identity)
	switch {
	case err == nil:
		report.Block = block
	case isNotFound(err):
	default:
		return nil, fmt.Errorf("failed to inspect identity: %w", err)
	}

	return report, nil
}

func (g *AccessGate) storageFailure(ctx context.Context, identity models.Identity, check string, err error) models.Decision {
	g.logger.ErrorContext(ctx, "defense storage unavailable",
		slog.String("identity", identity.String()),
		slog.String("check", check),
		slog.Bool("fail_closed", g.config.FailClosed),
		slog.Any("error", err),
	)
	g.events.Append(ctx, identity, models.ActionStorageUnavailable, fmt.Sprintf("%s check could not read storage", check))

	if g.config.FailClosed {
		return models.Deny(models.DenyReasonStorageUnavailable)
	}
	return models.Allow()
}
