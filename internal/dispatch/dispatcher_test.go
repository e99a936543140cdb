package dispatch

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hitqueue/internal/logger"
	"hitqueue/internal/pipeline"
	"hitqueue/internal/request"
	"hitqueue/internal/store"
	apperrors "hitqueue/pkg/errors"
)

const engineID = "UA-1-1"

type recordingSender struct {
	mu       sync.Mutex
	attempts []time.Time
	payloads []request.Payload
	respond  func(attempt int) error
}

func (s *recordingSender) Send(ctx context.Context, payload request.Payload) error {
	s.mu.Lock()
	s.attempts = append(s.attempts, time.Now())
	s.payloads = append(s.payloads, payload)
	n := len(s.attempts)
	s.mu.Unlock()

	if s.respond == nil {
		return nil
	}
	return s.respond(n)
}

func (s *recordingSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.attempts)
}

type harness struct {
	d        *Dispatcher
	pipeline *pipeline.Pipeline
	store    *store.MemoryStore
	sender   *recordingSender
	cfg      Config
}

func newHarness(t *testing.T, cfg Config, sender *recordingSender) *harness {
	t.Helper()
	cfg.EngineID = engineID

	st := store.NewMemoryStore(0, logger.NopLogger())
	p := pipeline.New(pipeline.Options{}, logger.NopLogger())
	d := New(cfg, st, p, sender, request.DefaultFinalizers(), logger.NopLogger())

	_, err := p.Subscribe(engineID, pipeline.ForEngine(engineID), d.Handle, 2)
	require.NoError(t, err)

	t.Cleanup(func() {
		d.Stop()
		p.Close()
		st.Close()
	})

	return &harness{d: d, pipeline: p, store: st, sender: sender, cfg: d.cfg}
}

// track mirrors what an engine does: persist, acquire, publish.
func (h *harness) track(t *testing.T, created time.Time, persist bool) *request.Prepared {
	t.Helper()
	var p request.Payload
	p.Endpoint = "http://example.invalid/collect"
	p.Set("v", "1")
	r := request.New(engineID, p, []string{request.FinalizerQueueTime}, created)

	if persist {
		require.NoError(t, h.store.Put(context.Background(), r, r.ExpiresAt(h.cfg.QueueLifeSpan)))
		r.Persisted = true
	}
	require.True(t, h.pipeline.Acquire(r.ID))
	h.pipeline.Publish(r)
	return r
}

func (h *harness) stored(id string) bool {
	for r := range h.store.All(context.Background()) {
		if r.ID == id {
			return true
		}
	}
	return false
}

func TestSuccessRemovesAndReleases(t *testing.T) {
	h := newHarness(t, Config{RetryInterval: time.Hour}, &recordingSender{})
	r := h.track(t, time.Now(), true)

	require.NoError(t, h.pipeline.Wait(withTimeout(t, time.Second)))
	assert.Equal(t, 1, h.sender.count())
	assert.False(t, h.stored(r.ID))
	assert.False(t, h.pipeline.IsLive(r.ID))
}

func TestRetryEventuallySucceeds(t *testing.T) {
	interval := 50 * time.Millisecond
	sender := &recordingSender{respond: func(n int) error {
		if n <= 2 {
			return apperrors.ErrTransmission.WithMessage("endpoint returned status: 503")
		}
		return nil
	}}
	h := newHarness(t, Config{RetryInterval: interval}, sender)
	r := h.track(t, time.Now(), true)

	require.NoError(t, h.pipeline.Wait(withTimeout(t, 2*time.Second)))

	sender.mu.Lock()
	attempts := append([]time.Time(nil), sender.attempts...)
	sender.mu.Unlock()

	require.Len(t, attempts, 3)
	assert.GreaterOrEqual(t, attempts[2].Sub(attempts[0]), 2*interval)
	assert.False(t, h.stored(r.ID))
	assert.Zero(t, h.d.Pending())
}

func TestStoreEntryKeptWhileRetrying(t *testing.T) {
	sender := &recordingSender{respond: func(int) error { return apperrors.ErrTransmission }}
	h := newHarness(t, Config{RetryInterval: time.Hour}, sender)
	r := h.track(t, time.Now(), true)

	assert.Eventually(t, func() bool { return h.d.Pending() == 1 }, time.Second, 5*time.Millisecond)
	assert.True(t, h.stored(r.ID))
	assert.True(t, h.pipeline.IsLive(r.ID))
}

func TestExpiredRequestIsEvictedAndNotRetried(t *testing.T) {
	sender := &recordingSender{respond: func(int) error { return apperrors.ErrTransmission }}
	h := newHarness(t, Config{QueueLifeSpan: time.Second, RetryInterval: 100 * time.Millisecond}, sender)
	r := h.track(t, time.Now(), true)

	time.Sleep(1200 * time.Millisecond)

	assert.False(t, h.stored(r.ID))
	assert.False(t, h.pipeline.IsLive(r.ID))
	assert.Zero(t, h.d.Pending())

	attempts := sender.count()
	assert.LessOrEqual(t, attempts, 11)
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, attempts, sender.count(), "no attempts after expiry")
}

func TestAlreadyExpiredRequestIsNeverSent(t *testing.T) {
	sender := &recordingSender{}
	h := newHarness(t, Config{QueueLifeSpan: time.Minute}, sender)
	r := h.track(t, time.Now().Add(-2*time.Minute), true)

	require.NoError(t, h.pipeline.Wait(withTimeout(t, time.Second)))
	assert.Zero(t, sender.count())
	assert.False(t, h.stored(r.ID))
}

func TestFatalFailureDropsRequest(t *testing.T) {
	sender := &recordingSender{respond: func(int) error { return apperrors.ErrPayloadTooLarge }}
	h := newHarness(t, Config{RetryInterval: 10 * time.Millisecond}, sender)
	r := h.track(t, time.Now(), true)

	require.NoError(t, h.pipeline.Wait(withTimeout(t, time.Second)))
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 1, sender.count())
	assert.False(t, h.stored(r.ID))
}

func TestUnpersistedRequestIsAttemptedOnce(t *testing.T) {
	sender := &recordingSender{respond: func(int) error { return apperrors.ErrTransmission }}
	h := newHarness(t, Config{RetryInterval: 10 * time.Millisecond}, sender)
	r := h.track(t, time.Now(), false)

	require.NoError(t, h.pipeline.Wait(withTimeout(t, time.Second)))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, sender.count())
	assert.False(t, h.pipeline.IsLive(r.ID))
	assert.Zero(t, h.d.Pending())
}

func TestQueueTimeIsRelativeToCreation(t *testing.T) {
	interval := 30 * time.Millisecond
	sender := &recordingSender{respond: func(n int) error {
		if n == 1 {
			return apperrors.ErrTransmission
		}
		return nil
	}}
	h := newHarness(t, Config{RetryInterval: interval}, sender)
	created := time.Now().Add(-500 * time.Millisecond)
	h.track(t, created, true)

	require.NoError(t, h.pipeline.Wait(withTimeout(t, time.Second)))

	sender.mu.Lock()
	defer sender.mu.Unlock()
	require.Len(t, sender.payloads, 2)
	for i, p := range sender.payloads {
		qt, ok := p.Get("qt")
		require.True(t, ok)
		ms, err := strconv.ParseInt(qt, 10, 64)
		require.NoError(t, err)

		elapsed := sender.attempts[i].Sub(created).Milliseconds()
		assert.InDelta(t, elapsed, ms, 20, "attempt %d", i)
	}
}

func TestFinalizerPanicDropsRequest(t *testing.T) {
	sender := &recordingSender{}
	cfg := Config{EngineID: engineID, RetryInterval: time.Hour}
	st := store.NewMemoryStore(0, logger.NopLogger())
	defer st.Close()
	p := pipeline.New(pipeline.Options{}, logger.NopLogger())
	defer p.Close()

	fins := request.NewFinalizers()
	fins.Register("explode", func(*request.Payload, time.Time, time.Time) error { panic("boom") })
	d := New(cfg, st, p, sender, fins, logger.NopLogger())
	defer d.Stop()

	r := request.New(engineID, request.Payload{}, []string{"explode"}, time.Now())
	require.NoError(t, st.Put(context.Background(), r, r.ExpiresAt(time.Hour)))
	r.Persisted = true
	p.Acquire(r.ID)

	d.Handle(context.Background(), r)

	assert.Zero(t, sender.count())
	assert.False(t, p.IsLive(r.ID))
	assert.Zero(t, st.Len())
}

func TestSenderPanicDropsRequest(t *testing.T) {
	cfg := Config{EngineID: engineID, RetryInterval: time.Hour}
	st := store.NewMemoryStore(0, logger.NopLogger())
	defer st.Close()
	p := pipeline.New(pipeline.Options{}, logger.NopLogger())
	defer p.Close()

	sender := SenderFunc(func(context.Context, request.Payload) error { panic("boom") })
	d := New(cfg, st, p, sender, request.NewFinalizers(), logger.NopLogger())
	defer d.Stop()

	_, err := p.Subscribe(engineID, pipeline.ForEngine(engineID), d.Handle, 1)
	require.NoError(t, err)

	r := request.New(engineID, request.Payload{}, nil, time.Now())
	require.NoError(t, st.Put(context.Background(), r, r.ExpiresAt(time.Hour)))
	r.Persisted = true
	require.True(t, p.Acquire(r.ID))
	require.Equal(t, 1, p.Publish(r))

	require.NoError(t, p.Wait(withTimeout(t, 2*time.Second)))
	assert.False(t, p.IsLive(r.ID))
	assert.Zero(t, d.Pending())
	assert.Zero(t, st.Len())
}

func TestStopCancelsScheduledRetries(t *testing.T) {
	var sent atomic.Int32
	sender := &recordingSender{respond: func(int) error {
		sent.Add(1)
		return apperrors.ErrTransmission
	}}
	h := newHarness(t, Config{RetryInterval: 50 * time.Millisecond}, sender)
	r := h.track(t, time.Now(), true)

	assert.Eventually(t, func() bool { return h.d.Pending() == 1 }, time.Second, 5*time.Millisecond)
	h.d.Stop()

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), sent.Load())
	assert.False(t, h.pipeline.IsLive(r.ID))
	assert.True(t, h.stored(r.ID), "stored copy is left for recovery")
}

func withTimeout(t *testing.T, d time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	t.Cleanup(cancel)
	return ctx
}
