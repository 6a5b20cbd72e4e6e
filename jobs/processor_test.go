package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tracketl/api/models"
	"tracketl/api/sessions"
	"tracketl/api/store"
)

var day = time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC)

type mockEventSource struct {
	mu       sync.Mutex
	events   map[string][]models.Event
	failUser string
	listErr  error
	loads    int
	dates    []time.Time
}

func (m *mockEventSource) ListUsers(ctx context.Context, date time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dates = append(m.dates, date)
	if m.listErr != nil {
		return nil, m.listErr
	}
	users := make([]string, 0, len(m.events))
	for u := range m.events {
		users = append(users, u)
	}
	return users, nil
}

func (m *mockEventSource) LoadUserEvents(ctx context.Context, userID string, date time.Time) ([]models.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loads++
	if userID == m.failUser {
		return nil, errors.New("clickhouse unavailable")
	}
	return m.events[userID], nil
}

func (m *mockEventSource) listedDates() []time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]time.Time(nil), m.dates...)
}

type mockSink struct {
	mu     sync.Mutex
	stored map[string]models.Sessions
}

func newMockSink() *mockSink {
	return &mockSink{stored: map[string]models.Sessions{}}
}

func (m *mockSink) ReplaceUserSessions(ctx context.Context, userID string, date time.Time, s models.Sessions) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stored[userID] = s
	return nil
}

type mockCache struct {
	mu      sync.Mutex
	entries map[string]models.Sessions
	getErr  error
}

func newMockCache() *mockCache {
	return &mockCache{entries: map[string]models.Sessions{}}
}

func (m *mockCache) Get(ctx context.Context, userID string, date time.Time) (models.Sessions, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	s, ok := m.entries[userID]
	if !ok {
		return nil, store.ErrCacheMiss
	}
	return s, nil
}

func (m *mockCache) Set(ctx context.Context, userID string, date time.Time, s models.Sessions) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[userID] = s
	return nil
}

func pageView(group string, at time.Time) models.Event {
	return models.Event{Time: at, GroupID: group, PixelID: group, CleanedURL: "/", ForPage: true}
}

func sampleEvents() map[string][]models.Event {
	at := day.Add(10 * time.Hour)
	return map[string][]models.Event{
		"u1": {pageView("G", at), pageView("G", at.Add(time.Minute))},
		"u2": {pageView("G", at), pageView("G", at.Add(time.Hour)), pageView("", at)},
		"u3": {pageView("G", at), pageView("H", at)},
	}
}

func newTestProcessor(src EventSource, sink SessionSink, cache SessionCache) *Processor {
	return NewProcessor(src, sink, cache, sessions.NewBuilder(sessions.DefaultPeriod, false), 2, 1, 0)
}

func TestProcessor_Run(t *testing.T) {
	t.Run("processes every user", func(t *testing.T) {
		src := &mockEventSource{events: sampleEvents()}
		sink := newMockSink()
		cache := newMockCache()
		p := newTestProcessor(src, sink, cache)

		summary, err := p.Run(context.Background(), day.Add(15*time.Hour))
		require.NoError(t, err)

		assert.Equal(t, models.ProcessSummary{
			Date:     "2024-03-09",
			Users:    3,
			Events:   7,
			Sessions: 5,
		}, summary)
		assert.Len(t, sink.stored, 3)
		assert.Len(t, sink.stored["u2"]["G"], 2)
		assert.NotContains(t, sink.stored["u2"], "")
		assert.Len(t, cache.entries, 3)
		assert.Equal(t, []time.Time{day}, src.listedDates())
	})

	t.Run("failed user does not stop the others", func(t *testing.T) {
		src := &mockEventSource{events: sampleEvents(), failUser: "u2"}
		sink := newMockSink()
		p := newTestProcessor(src, sink, newMockCache())

		summary, err := p.Run(context.Background(), day)
		require.NoError(t, err)

		assert.Equal(t, 1, summary.Failed)
		assert.Equal(t, 3, summary.Users)
		assert.Equal(t, 3, summary.Sessions)
		assert.NotContains(t, sink.stored, "u2")
		assert.Len(t, sink.stored, 2)
	})

	t.Run("list failure is returned", func(t *testing.T) {
		src := &mockEventSource{listErr: errors.New("timeout")}
		p := newTestProcessor(src, newMockSink(), newMockCache())

		_, err := p.Run(context.Background(), day)
		assert.ErrorContains(t, err, "list users for 2024-03-09")
	})

	t.Run("cancelled context", func(t *testing.T) {
		src := &mockEventSource{events: sampleEvents()}
		p := newTestProcessor(src, newMockSink(), newMockCache())
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := p.Run(ctx, day)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("no users", func(t *testing.T) {
		src := &mockEventSource{events: map[string][]models.Event{}}
		p := newTestProcessor(src, newMockSink(), newMockCache())

		summary, err := p.Run(context.Background(), day)
		require.NoError(t, err)
		assert.Zero(t, summary.Users)
		assert.Zero(t, summary.Sessions)
	})
}

func TestProcessor_UserSessions(t *testing.T) {
	t.Run("serves cached sessions", func(t *testing.T) {
		src := &mockEventSource{events: sampleEvents()}
		cache := newMockCache()
		cached := models.Sessions{"X": {{Landing: "/cached"}}}
		cache.entries["u1"] = cached
		p := newTestProcessor(src, newMockSink(), cache)

		got, err := p.UserSessions(context.Background(), "u1", day)
		require.NoError(t, err)
		assert.Equal(t, cached, got)
		assert.Zero(t, src.loads)
	})

	t.Run("builds and caches on miss", func(t *testing.T) {
		src := &mockEventSource{events: sampleEvents()}
		cache := newMockCache()
		p := newTestProcessor(src, newMockSink(), cache)

		got, err := p.UserSessions(context.Background(), "u3", day)
		require.NoError(t, err)
		assert.Len(t, got, 2)
		assert.Equal(t, got, cache.entries["u3"])
		assert.Equal(t, 1, src.loads)
	})

	t.Run("builds when the cache errors", func(t *testing.T) {
		src := &mockEventSource{events: sampleEvents()}
		cache := newMockCache()
		cache.getErr = errors.New("redis down")
		p := newTestProcessor(src, newMockSink(), cache)

		got, err := p.UserSessions(context.Background(), "u1", day)
		require.NoError(t, err)
		require.Len(t, got["G"], 1)
		assert.Equal(t, 2, got["G"][0].PageCount)
	})

	t.Run("load failure", func(t *testing.T) {
		src := &mockEventSource{events: sampleEvents(), failUser: "u1"}
		p := newTestProcessor(src, newMockSink(), newMockCache())

		_, err := p.UserSessions(context.Background(), "u1", day)
		assert.ErrorContains(t, err, "load events")
	})
}

func TestProcessor_Schedule(t *testing.T) {
	t.Run("zero interval does not start", func(t *testing.T) {
		src := &mockEventSource{events: sampleEvents()}
		p := newTestProcessor(src, newMockSink(), newMockCache())
		p.Start()
		p.Stop()
		p.Stop()
		assert.Empty(t, src.listedDates())
	})

	t.Run("processes the previous day on tick", func(t *testing.T) {
		src := &mockEventSource{events: sampleEvents()}
		p := NewProcessor(src, newMockSink(), newMockCache(),
			sessions.NewBuilder(sessions.DefaultPeriod, false), 1, 4, 10*time.Millisecond)
		p.now = func() time.Time { return day.Add(24*time.Hour + 2*time.Hour) }

		p.Start()
		defer p.Stop()

		require.Eventually(t, func() bool {
			return len(src.listedDates()) > 0
		}, time.Second, 5*time.Millisecond)
		assert.Equal(t, day, src.listedDates()[0])
	})
}

func TestWorkerPool(t *testing.T) {
	t.Run("processes all submitted jobs", func(t *testing.T) {
		var mu sync.Mutex
		seen := map[int]bool{}
		pool := newWorkerPool(context.Background(), 3, 2, func(ctx context.Context, n int) {
			mu.Lock()
			seen[n] = true
			mu.Unlock()
		})

		for i := 0; i < 20; i++ {
			require.True(t, pool.Submit(context.Background(), i))
		}
		pool.Drain()
		assert.Len(t, seen, 20)
		assert.Equal(t, 2, pool.QueueCap())
	})

	t.Run("submit gives up when context ends", func(t *testing.T) {
		block := make(chan struct{})
		pool := newWorkerPool(context.Background(), 1, 1, func(ctx context.Context, n int) {
			<-block
		})

		require.True(t, pool.Submit(context.Background(), 1))
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		// One job is running, one fills the queue, the third cannot be placed.
		pool.Submit(ctx, 2)
		assert.False(t, pool.Submit(ctx, 3))

		close(block)
		pool.Drain()
	})
}
