package redisclient

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"checkout-engine/internal/idempotency"

	"github.com/go-redis/redis/v8"
)

//go:embed scripts/claim.lua
var claimScript string

//go:embed scripts/abandon.lua
var abandonScript string

const keyPrefix = "callback:"

// Client keeps processed callback claims in Redis so that every engine
// instance shares one registry. Expiry is left to Redis key TTLs.
type Client struct {
	rdb           *redis.Client
	claimScript   *redis.Script
	abandonScript *redis.Script
}

var _ idempotency.Store = (*Client)(nil)

// NewClient creates a new Redis client with Lua scripts loaded
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return NewFromClient(rdb), nil
}

// NewFromClient wraps an existing connection
func NewFromClient(rdb *redis.Client) *Client {
	return &Client{
		rdb:           rdb,
		claimScript:   redis.NewScript(claimScript),
		abandonScript: redis.NewScript(abandonScript),
	}
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Ping checks the connection, used by the readiness probe
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

func claimKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("idempotency: key is required")
	}
	return keyPrefix + key, nil
}

// Claim atomically takes the key for processing
func (c *Client) Claim(ctx context.Context, key string, _ time.Time, inFlightTTL time.Duration) (idempotency.ClaimState, error) {
	k, err := claimKey(key)
	if err != nil {
		return idempotency.ClaimUnknown, err
	}
	if inFlightTTL <= 0 {
		inFlightTTL = idempotency.DefaultInFlightTTL
	}

	result, err := c.claimScript.Run(ctx, c.rdb, []string{k}, inFlightTTL.Milliseconds()).Result()
	if err != nil {
		return idempotency.ClaimUnknown, fmt.Errorf("claim script failed: %w", err)
	}

	code, ok := result.(int64)
	if !ok {
		return idempotency.ClaimUnknown, fmt.Errorf("unexpected script result type")
	}

	switch code {
	case 0:
		return idempotency.ClaimAcquired, nil
	case 1:
		return idempotency.ClaimInFlight, nil
	default:
		return idempotency.ClaimCompleted, nil
	}
}

// Complete marks the key processed for the retention window
func (c *Client) Complete(ctx context.Context, key string, _ time.Time, retention time.Duration) error {
	k, err := claimKey(key)
	if err != nil {
		return err
	}
	if retention <= 0 {
		retention = idempotency.DefaultRetention
	}
	return c.rdb.Set(ctx, k, idempotency.StateCompleted, retention).Err()
}

// Abandon drops an in-flight claim
func (c *Client) Abandon(ctx context.Context, key string) error {
	k, err := claimKey(key)
	if err != nil {
		return err
	}
	if err := c.abandonScript.Run(ctx, c.rdb, []string{k}).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("abandon script failed: %w", err)
	}
	return nil
}

// CleanupExpired is a no-op, Redis evicts expired keys itself
func (c *Client) CleanupExpired(context.Context, time.Time) (int, error) {
	return 0, nil
}
