package repositories

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/BradenHooton/gatekeeper/internal/models"
)

// MemoryLoginAttemptRepository is a process-local ledger for single-node
// deployments and tests.
type MemoryLoginAttemptRepository struct {
	mu      sync.Mutex
	records map[models.Identity]models.LoginAttemptRecord
}

// NewMemoryLoginAttemptRepository creates a new MemoryLoginAttemptRepository
func NewMemoryLoginAttemptRepository() *MemoryLoginAttemptRepository {
	return &MemoryLoginAttemptRepository{records: make(map[models.Identity]models.LoginAttemptRecord)}
}

// RecordFailure records one failed attempt and sets the lock once the count reaches threshold
func (r *MemoryLoginAttemptRepository) RecordFailure(ctx context.Context, identity models.Identity, now time.Time, threshold int, lockUntil time.Time) (*models.LoginAttemptRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[identity]
	if !ok {
		rec = models.LoginAttemptRecord{Identity: identity}
	}
	rec.Attempts++
	rec.LastAttemptAt = now
	if rec.Attempts >= threshold {
		lock := lockUntil
		rec.LockedUntil = &lock
	}
	r.records[identity] = rec

	out := rec
	return &out, nil
}

// Get returns the attempt record for identity
func (r *MemoryLoginAttemptRepository) Get(ctx context.Context, identity models.Identity) (*models.LoginAttemptRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[identity]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &rec, nil
}

// Delete clears the attempt record for identity
func (r *MemoryLoginAttemptRepository) Delete(ctx context.Context, identity models.Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.records, identity)
	return nil
}

// CountActiveSince counts identities with a failure at or after since
func (r *MemoryLoginAttemptRepository) CountActiveSince(ctx context.Context, since time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var count int64
	for _, rec := range r.records {
		if !rec.LastAttemptAt.Before(since) {
			count++
		}
	}
	return count, nil
}

// MemoryBlockedIdentityRepository is a process-local block list
type MemoryBlockedIdentityRepository struct {
	mu     sync.Mutex
	blocks map[models.Identity]models.BlockedIdentityRecord
}

// NewMemoryBlockedIdentityRepository creates a new MemoryBlockedIdentityRepository
func NewMemoryBlockedIdentityRepository() *MemoryBlockedIdentityRepository {
	return &MemoryBlockedIdentityRepository{blocks: make(map[models.Identity]models.BlockedIdentityRecord)}
}

// Upsert creates or replaces the block for rec.Identity
func (r *MemoryBlockedIdentityRepository) Upsert(ctx context.Context, rec *models.BlockedIdentityRecord) (*models.BlockedIdentityRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := *rec
	if rec.BlockedUntil != nil {
		until := *rec.BlockedUntil
		stored.BlockedUntil = &until
	}
	r.blocks[rec.Identity] = stored

	out := stored
	return &out, nil
}

// Get returns the block for identity
func (r *MemoryBlockedIdentityRepository) Get(ctx context.Context, identity models.Identity) (*models.BlockedIdentityRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.blocks[identity]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &rec, nil
}

// Delete removes the block for identity
func (r *MemoryBlockedIdentityRepository) Delete(ctx context.Context, identity models.Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.blocks[identity]; !ok {
		return models.ErrNotFound
	}
	delete(r.blocks, identity)
	return nil
}

// ListLive returns blocks in force at now, newest first; limit <= 0 returns all
func (r *MemoryBlockedIdentityRepository) ListLive(ctx context.Context, now time.Time, limit int) ([]*models.BlockedIdentityRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	blocks := make([]*models.BlockedIdentityRecord, 0)
	for _, rec := range r.blocks {
		if rec.IsLive(now) {
			rec := rec
			blocks = append(blocks, &rec)
		}
	}

	sort.Slice(blocks, func(i, j int) bool {
		return blocks[i].CreatedAt.After(blocks[j].CreatedAt)
	})
	if limit > 0 && len(blocks) > limit {
		blocks = blocks[:limit]
	}
	return blocks, nil
}

// CountLive counts blocks in force at now
func (r *MemoryBlockedIdentityRepository) CountLive(ctx context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var count int64
	for _, rec := range r.blocks {
		if rec.IsLive(now) {
			count++
		}
	}
	return count, nil
}

// DeleteExpired removes blocks whose expiry is at or before now
func (r *MemoryBlockedIdentityRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var deleted int64
	for id, rec := range r.blocks {
		if !rec.IsLive(now) {
			delete(r.blocks, id)
			deleted++
		}
	}
	return deleted, nil
}

// MemorySecurityLogRepository keeps events in insertion order
type MemorySecurityLogRepository struct {
	mu     sync.Mutex
	events []models.SecurityEvent
	nextID int64
}

// NewMemorySecurityLogRepository creates a new MemorySecurityLogRepository
func NewMemorySecurityLogRepository() *MemorySecurityLogRepository {
	return &MemorySecurityLogRepository{}
}

// Append stores one security event
func (r *MemorySecurityLogRepository) Append(ctx context.Context, event *models.SecurityEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	event.ID = r.nextID
	r.events = append(r.events, *event)
	return nil
}

// Count returns the number of stored events
func (r *MemorySecurityLogRepository) Count(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return int64(len(r.events)), nil
}

// Recent returns up to limit events, newest first; limit <= 0 returns none
func (r *MemorySecurityLogRepository) Recent(ctx context.Context, limit int) ([]*models.SecurityEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if limit < 0 {
		limit = 0
	}
	events := make([]*models.SecurityEvent, 0, limit)
	for i := len(r.events) - 1; i >= 0 && len(events) < limit; i-- {
		event := r.events[i]
		events = append(events, &event)
	}
	return events, nil
}

// CountByActionsSince counts events with one of actions at or after since
func (r *MemorySecurityLogRepository) CountByActionsSince(ctx context.Context, actions []models.Action, since time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var count int64
	for _, event := range r.events {
		if event.OccurredAt.Before(since) {
			continue
		}
		for _, a := range actions {
			if event.Action == a {
				count++
				break
			}
		}
	}
	return count, nil
}

// DeleteOlderThan removes events recorded before cutoff
func (r *MemorySecurityLogRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.events[:0]
	for _, event := range r.events {
		if !event.OccurredAt.Before(cutoff) {
			kept = append(kept, event)
		}
	}
	deleted := int64(len(r.events) - len(kept))
	r.events = kept
	return deleted, nil
}

type memoryCSRFEntry struct {
	token     string
	createdAt time.Time
}

// MemoryCSRFTokenRepository holds one token per session
type MemoryCSRFTokenRepository struct {
	mu     sync.Mutex
	tokens map[string]memoryCSRFEntry
}

// NewMemoryCSRFTokenRepository creates a new MemoryCSRFTokenRepository
func NewMemoryCSRFTokenRepository() *MemoryCSRFTokenRepository {
	return &MemoryCSRFTokenRepository{tokens: make(map[string]memoryCSRFEntry)}
}

// GetOrCreate returns the token for sessionID, storing candidate if none exists
func (r *MemoryCSRFTokenRepository) GetOrCreate(ctx context.Context, sessionID, candidate string, now time.Time) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry, ok := r.tokens[sessionID]; ok {
		return entry.token, nil
	}
	r.tokens[sessionID] = memoryCSRFEntry{token: candidate, createdAt: now}
	return candidate, nil
}

// Get returns the token stored for sessionID
func (r *MemoryCSRFTokenRepository) Get(ctx context.Context, sessionID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.tokens[sessionID]
	if !ok {
		return "", models.ErrNotFound
	}
	return entry.token, nil
}

// Delete removes the token for sessionID
func (r *MemoryCSRFTokenRepository) Delete(ctx context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.tokens, sessionID)
	return nil
}

// DeleteOlderThan removes tokens created before cutoff
func (r *MemoryCSRFTokenRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var deleted int64
	for id, entry := range r.tokens {
		if entry.createdAt.Before(cutoff) {
			delete(r.tokens, id)
			deleted++
		}
	}
	return deleted, nil
}

// MemorySessionRevocationRepository maps session IDs to their expiry
type MemorySessionRevocationRepository struct {
	mu      sync.Mutex
	revoked map[string]time.Time
}

// NewMemorySessionRevocationRepository creates a new MemorySessionRevocationRepository
func NewMemorySessionRevocationRepository() *MemorySessionRevocationRepository {
	return &MemorySessionRevocationRepository{revoked: make(map[string]time.Time)}
}

// Revoke marks sessionID revoked until expiresAt
func (r *MemorySessionRevocationRepository) Revoke(ctx context.Context, sessionID string, revokedAt, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.revoked[sessionID]; !ok {
		r.revoked[sessionID] = expiresAt
	}
	return nil
}

// IsRevoked reports whether sessionID has been revoked
func (r *MemorySessionRevocationRepository) IsRevoked(ctx context.Context, sessionID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.revoked[sessionID]
	return ok, nil
}

// DeleteExpired removes revocations whose session has expired
func (r *MemorySessionRevocationRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var deleted int64
	for id, expiresAt := range r.revoked {
		if expiresAt.Before(now) {
			delete(r.revoked, id)
			deleted++
		}
	}
	return deleted, nil
}
