package recovery

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hitqueue/internal/logger"
	"hitqueue/internal/request"
	"hitqueue/internal/store"
)

type fakeLive map[string]bool

func (f fakeLive) IsLive(id string) bool { return f[id] }

type fakeResumer struct {
	mu      sync.Mutex
	engines map[string]bool
	resumed []string
	// live simulates what a real engine does: acquire in the live set.
	live fakeLive
}

func (f *fakeResumer) Resume(r *request.Prepared) Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.engines[r.EngineID] {
		return Deferred
	}
	f.resumed = append(f.resumed, r.ID)
	f.live[r.ID] = true
	return Resumed
}

func put(t *testing.T, st store.QueueStore, engineID string, created time.Time, lifeSpan time.Duration) *request.Prepared {
	t.Helper()
	r := request.New(engineID, request.Payload{}, nil, created)
	require.NoError(t, st.Put(context.Background(), r, r.ExpiresAt(lifeSpan)))
	return r
}

func TestLoadEmptyStore(t *testing.T) {
	st := store.NewMemoryStore(0, logger.NopLogger())
	defer st.Close()

	l := NewLoader(st, fakeLive{}, &fakeResumer{live: fakeLive{}}, logger.NopLogger())
	res, err := l.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{}, res)
}

func TestLoadResumesDefersAndSkips(t *testing.T) {
	st := store.NewMemoryStore(0, logger.NopLogger())
	defer st.Close()

	now := time.Now()
	a := put(t, st, "UA-1", now, time.Hour)
	b := put(t, st, "UA-1", now, time.Hour)
	c := put(t, st, "UA-2", now, time.Hour)
	put(t, st, "UA-1", now.Add(-2*time.Hour), time.Hour)

	live := fakeLive{b.ID: true}
	resumer := &fakeResumer{engines: map[string]bool{"UA-1": true}, live: live}
	l := NewLoader(st, live, resumer, logger.NopLogger())

	res, err := l.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Scanned: 3, SkippedLive: 1, Resumed: 1, Deferred: 1}, res)
	assert.Equal(t, []string{a.ID}, resumer.resumed)
	assert.False(t, live[c.ID])
}

func TestLoadIsIdempotent(t *testing.T) {
	st := store.NewMemoryStore(0, logger.NopLogger())
	defer st.Close()

	for i := 0; i < 5; i++ {
		put(t, st, "UA-1", time.Now(), time.Hour)
	}

	live := fakeLive{}
	resumer := &fakeResumer{engines: map[string]bool{"UA-1": true}, live: live}
	l := NewLoader(st, live, resumer, logger.NopLogger())

	first, err := l.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, first.Resumed)

	second, err := l.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, second.Resumed)
	assert.Equal(t, 5, second.SkippedLive)
	assert.Len(t, resumer.resumed, 5)
}

func TestLoadCanceled(t *testing.T) {
	st := store.NewMemoryStore(0, logger.NopLogger())
	defer st.Close()
	put(t, st, "UA-1", time.Now(), time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	l := NewLoader(st, fakeLive{}, &fakeResumer{live: fakeLive{}}, logger.NopLogger())
	_, err := l.Load(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
