package store

import (
	"context"
	"database/sql"
	"time"

	"checkout-engine/internal/idempotency"
)

// CallbackStore persists processed provider request ids in Postgres
type CallbackStore struct {
	store *Store
}

var _ idempotency.Store = (*CallbackStore)(nil)

// NewCallbackStore wraps the store's processed_callbacks table
func NewCallbackStore(s *Store) *CallbackStore {
	return &CallbackStore{store: s}
}

// Claim inserts the request id if absent, or takes over an expired record
func (c *CallbackStore) Claim(ctx context.Context, key string, now time.Time, inFlightTTL time.Duration) (idempotency.ClaimState, error) {
	if inFlightTTL <= 0 {
		inFlightTTL = idempotency.DefaultInFlightTTL
	}

	var claimed string
	err := c.store.db.GetContext(ctx, &claimed, `
		INSERT INTO processed_callbacks (request_id, state, claimed_at, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (request_id) DO UPDATE
		SET state = EXCLUDED.state, claimed_at = EXCLUDED.claimed_at, expires_at = EXCLUDED.expires_at
		WHERE processed_callbacks.expires_at <= EXCLUDED.claimed_at
		RETURNING request_id`,
		key, idempotency.StateProcessing, now, now.Add(inFlightTTL))
	if err == nil {
		return idempotency.ClaimAcquired, nil
	}
	if err != sql.ErrNoRows {
		return idempotency.ClaimUnknown, mapError(err)
	}

	var state string
	err = c.store.db.GetContext(ctx, &state,
		"SELECT state FROM processed_callbacks WHERE request_id = $1", key)
	if err != nil {
		return idempotency.ClaimUnknown, err
	}
	if state == idempotency.StateCompleted {
		return idempotency.ClaimCompleted, nil
	}
	return idempotency.ClaimInFlight, nil
}

// Complete marks the request id processed for the retention window
func (c *CallbackStore) Complete(ctx context.Context, key string, now time.Time, retention time.Duration) error {
	if retention <= 0 {
		retention = idempotency.DefaultRetention
	}

	_, err := c.store.db.ExecContext(ctx, `
		INSERT INTO processed_callbacks (request_id, state, claimed_at, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (request_id) DO UPDATE
		SET state = EXCLUDED.state, expires_at = EXCLUDED.expires_at`,
		key, idempotency.StateCompleted, now, now.Add(retention))
	return err
}

// Abandon drops an in-flight claim so a redelivery can process the event
func (c *CallbackStore) Abandon(ctx context.Context, key string) error {
	_, err := c.store.db.ExecContext(ctx,
		"DELETE FROM processed_callbacks WHERE request_id = $1 AND state = $2",
		key, idempotency.StateProcessing)
	return err
}

// CleanupExpired evicts records past their retention
func (c *CallbackStore) CleanupExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := c.store.db.ExecContext(ctx,
		"DELETE FROM processed_callbacks WHERE expires_at <= $1", now)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}
