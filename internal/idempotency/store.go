package idempotency

import (
	"context"
	"time"
)

const (
	// DefaultRetention is how long a processed provider request id is remembered.
	DefaultRetention = 24 * time.Hour
	// DefaultInFlightTTL bounds how long a claim may stay in processing before
	// another delivery may take it over.
	DefaultInFlightTTL = 2 * time.Minute
)

// ClaimState describes the outcome of claiming a key.
type ClaimState int

const (
	// ClaimUnknown accompanies an error; the caller owns nothing.
	ClaimUnknown ClaimState = iota
	// ClaimAcquired means the caller owns the key and must process the event.
	ClaimAcquired
	// ClaimInFlight means a concurrent delivery of the same event is being processed.
	ClaimInFlight
	// ClaimCompleted means the event was already processed.
	ClaimCompleted
)

func (s ClaimState) String() string {
	switch s {
	case ClaimUnknown:
		return "unknown"
	case ClaimAcquired:
		return "acquired"
	case ClaimInFlight:
		return "in_flight"
	case ClaimCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// Record states as persisted by the backends
const (
	StateProcessing = "processing"
	StateCompleted  = "completed"
)

// Store is the processed-callback registry. Claim must be an atomic
// insert-if-absent: two concurrent claims of the same key never both
// return ClaimAcquired.
type Store interface {
	Claim(ctx context.Context, key string, now time.Time, inFlightTTL time.Duration) (ClaimState, error)
	Complete(ctx context.Context, key string, now time.Time, retention time.Duration) error
	Abandon(ctx context.Context, key string) error
	CleanupExpired(ctx context.Context, now time.Time) (int, error)
}
