package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapperTripsAfterFailures(t *testing.T) {
	w := NewWrapper(Settings("test-transport", 1, time.Minute, time.Minute, 0.5, 2))
	failing := func() (interface{}, error) { return nil, errors.New("503") }

	for i := 0; i < 2; i++ {
		_, err := w.Execute(context.Background(), failing)
		require.Error(t, err)
	}

	assert.True(t, w.IsOpen())
	_, err := w.Execute(context.Background(), func() (interface{}, error) { return "ok", nil })
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
}

func TestWrapperPassesResult(t *testing.T) {
	w := NewWrapper(DefaultConfig("test-ok"))
	res, err := w.Execute(context.Background(), func() (interface{}, error) { return 42, nil })
	require.NoError(t, err)
	assert.Equal(t, 42, res)
	assert.Equal(t, gobreaker.StateClosed, w.State())
	assert.Equal(t, "test-ok", w.Name())
}

func TestWrapperHonoursCancelledContext(t *testing.T) {
	w := NewWrapper(DefaultConfig("test-ctx"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	_, err := w.Execute(ctx, func() (interface{}, error) { called = true; return nil, nil })
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}
