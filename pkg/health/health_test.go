package health

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestCheckerRegistryHealthy(t *testing.T) {
	r := NewCheckerRegistry()
	r.Register(NewPingChecker("queue_store", pingFunc(func(context.Context) error { return nil })))

	h := r.Check(context.Background())
	assert.Equal(t, StatusHealthy, h.Status)
	assert.Equal(t, StatusHealthy, h.Checks["queue_store"].Status)
}

func TestCheckerRegistryUnhealthy(t *testing.T) {
	r := NewCheckerRegistry()
	r.Register(NewPingChecker("ok", pingFunc(func(context.Context) error { return nil })))
	r.Register(NewPingChecker("queue_store", pingFunc(func(context.Context) error { return errors.New("disk full") })))

	h := r.Check(context.Background())
	assert.Equal(t, StatusUnhealthy, h.Status)
	assert.Contains(t, h.Checks["queue_store"].Message, "disk full")
	assert.Equal(t, StatusHealthy, h.Checks["ok"].Status)
}

func TestPingCheckerHasDeadline(t *testing.T) {
	c := NewPingChecker("queue_store", pingFunc(func(ctx context.Context) error {
		_, ok := ctx.Deadline()
		assert.True(t, ok)
		return nil
	}))
	assert.Equal(t, "queue_store", c.Name())
	assert.NoError(t, c.Check(context.Background()))
}
