package worker

import (
	"context"
	"testing"
	"time"

	"checkout-engine/internal/idempotency"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweepWorker_EvictsExpired(t *testing.T) {
	ctx := context.Background()
	claims := idempotency.NewMemoryStore()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, claims.Complete(ctx, "ws_CO_old", start, time.Hour))
	require.NoError(t, claims.Complete(ctx, "ws_CO_new", start.Add(2*time.Hour), time.Hour))

	w := NewSweepWorker(claims, time.Minute)
	w.now = func() time.Time { return start.Add(90 * time.Minute) }

	assert.Equal(t, 1, w.Sweep(ctx))
	assert.Equal(t, 1, claims.Len())

	state, err := claims.Claim(ctx, "ws_CO_new", w.now(), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, idempotency.ClaimCompleted, state)
}

func TestSweepWorker_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	w := NewSweepWorker(idempotency.NewMemoryStore(), 10*time.Millisecond)

	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("sweep worker did not stop")
	}
}
