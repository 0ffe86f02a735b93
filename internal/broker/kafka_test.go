package broker

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"checkout-engine/internal/apperr"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func newTestConsumer() *Consumer {
	return &Consumer{logger: zap.NewNop()}
}

func TestConsumerHandle_RetryableFailureKeepsRetrying(t *testing.T) {
	calls := 0
	handler := func(context.Context, kafka.Message) error {
		calls++
		if calls <= 6 {
			return fmt.Errorf("%w: claim callback: connection refused", apperr.ErrRetryable)
		}
		return nil
	}

	err := newTestConsumer().handle(context.Background(), handler, kafka.Message{}, 2, time.Millisecond)
	assert.NoError(t, err)
	assert.Equal(t, 7, calls)
}

func TestConsumerHandle_PermanentFailureStopsAfterMaxRetries(t *testing.T) {
	calls := 0
	handler := func(context.Context, kafka.Message) error {
		calls++
		return errors.New("boom")
	}

	err := newTestConsumer().handle(context.Background(), handler, kafka.Message{}, 2, time.Millisecond)
	assert.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestConsumerHandle_StopsWhenContextDone(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	handler := func(context.Context, kafka.Message) error {
		return fmt.Errorf("%w: database unavailable", apperr.ErrRetryable)
	}

	err := newTestConsumer().handle(ctx, handler, kafka.Message{}, 1, time.Millisecond)
	assert.ErrorIs(t, err, apperr.ErrRetryable)
	assert.Error(t, ctx.Err())
}
