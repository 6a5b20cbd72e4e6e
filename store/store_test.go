package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tracketl/api/models"
)

var day = time.Date(2015, 11, 24, 0, 0, 0, 0, time.UTC)

func TestEventRecord(t *testing.T) {
	t.Run("keeps order info through a row", func(t *testing.T) {
		e := models.Event{
			EventID:    "evt-1",
			UserID:     "user-1",
			Time:       day.Add(10 * time.Hour),
			GroupID:    "G",
			PixelID:    "CONV",
			CleanedURL: "https://shop.example.com/thanks",
			UTMs:       models.UTMs{Source: "newsletter"},
			OrderInfo:  &models.OrderInfo{ID: "A", Sum: decimal.RequireFromString("1.2")},
			ForPage:    true,
		}

		rec := recordFromEvent(e)
		require.NotNil(t, rec.OrderID)
		assert.Equal(t, "A", *rec.OrderID)
		assert.Equal(t, "newsletter", rec.UTMSource)

		got := rec.event()
		require.NotNil(t, got.OrderInfo)
		assert.Equal(t, "A", got.OrderInfo.ID)
		assert.True(t, decimal.RequireFromString("1.2").Equal(got.OrderInfo.Sum))
		assert.Equal(t, e.UTMs, got.UTMs)
		assert.True(t, got.ForPage)
	})

	t.Run("no order info stays nil", func(t *testing.T) {
		rec := recordFromEvent(models.Event{GroupID: "G", PixelID: "G"})
		assert.Nil(t, rec.OrderID)
		assert.Nil(t, rec.OrderSum)
		assert.Nil(t, rec.event().OrderInfo)
	})

	t.Run("stores times in UTC", func(t *testing.T) {
		loc := time.FixedZone("UTC-5", -5*60*60)
		rec := recordFromEvent(models.Event{Time: time.Date(2015, 11, 24, 5, 0, 0, 0, loc)})
		assert.Equal(t, time.UTC, rec.Time.Location())
		assert.Equal(t, 10, rec.Time.Hour())
	})
}

func TestDayBounds(t *testing.T) {
	from, to := dayBounds(day.Add(13 * time.Hour))
	assert.Equal(t, day, from)
	assert.Equal(t, day.AddDate(0, 0, 1), to)
}

func TestSessionRecords(t *testing.T) {
	start := day.Add(9 * time.Hour)
	sessions := models.Sessions{
		"B": {
			{Start: start, Last: start, Landing: "/b", PageCount: 1,
				Conversions: map[string]models.Conversion{}, Pages: models.Pages{}},
		},
		"A": {
			{Start: start, Last: start.Add(time.Minute), Landing: "/a1", PageCount: 3,
				Conversions: map[string]models.Conversion{
					"Z": {PageCount: 1, OrdersInfo: []models.OrderInfo{}},
					"Y": {PageCount: 2, OrdersInfo: []models.OrderInfo{
						{ID: "o1", Sum: decimal.RequireFromString("1.2")},
						{ID: "o1", Sum: decimal.RequireFromString("2.1")},
					}},
				},
				Pages: models.Pages{{PixelID: "A", CleanedURL: "/a1"}: 1}},
			{Start: start.Add(time.Hour), Last: start.Add(time.Hour), Landing: "/a2", PageCount: 1,
				Conversions: map[string]models.Conversion{}, Pages: models.Pages{}},
		},
	}
	processedAt := day.Add(24 * time.Hour)

	rows, convs, err := sessionRecords("user-1", day, processedAt, sessions)
	require.NoError(t, err)

	require.Len(t, rows, 3)
	assert.Equal(t, []string{"A", "A", "B"}, []string{rows[0].GroupID, rows[1].GroupID, rows[2].GroupID})
	assert.Equal(t, []uint32{0, 1, 0}, []uint32{rows[0].Seq, rows[1].Seq, rows[2].Seq})
	assert.Equal(t, "/a1", rows[0].Landing)
	assert.Equal(t, uint32(3), rows[0].PageCount)
	assert.JSONEq(t, `[{"pixel_id":"A","cleaned_url":"/a1","count":1}]`, rows[0].Pages)
	assert.Equal(t, processedAt, rows[2].ProcessedAt)

	require.Len(t, convs, 2)
	assert.Equal(t, "Y", convs[0].PixelID)
	assert.Equal(t, uint32(2), convs[0].Orders)
	assert.True(t, decimal.RequireFromString("3.3").Equal(convs[0].Revenue))
	assert.Equal(t, "Z", convs[1].PixelID)
	assert.True(t, convs[1].Revenue.IsZero())
}

func TestClampUint32(t *testing.T) {
	assert.Equal(t, uint32(0), clampUint32(-1))
	assert.Equal(t, uint32(7), clampUint32(7))
}

type fakeRedis struct {
	data map[string]string
	ttl  time.Duration
	err  error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: map[string]string{}}
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	if f.err != nil {
		return redis.NewStringResult("", f.err)
	}
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	if f.err != nil {
		return redis.NewStatusResult("", f.err)
	}
	f.data[key] = string(value.([]byte))
	f.ttl = expiration
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	for _, k := range keys {
		delete(f.data, k)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

func TestSessionCache(t *testing.T) {
	ctx := context.Background()
	start := day.Add(9 * time.Hour)
	sessions := models.Sessions{
		"G": {{
			Start: start, Last: start, Landing: "/", PageCount: 2,
			UTMs: models.UTMs{Source: "ads"},
			Conversions: map[string]models.Conversion{
				"CONV": {PageCount: 1, OrdersInfo: []models.OrderInfo{{ID: "A", Sum: decimal.NewFromInt(5)}}},
			},
			Pages: models.Pages{{PixelID: "G", CleanedURL: "/"}: 2},
		}},
	}

	t.Run("miss on empty cache", func(t *testing.T) {
		cache := NewSessionCache(newFakeRedis(), time.Hour)
		_, err := cache.Get(ctx, "user-1", day)
		assert.ErrorIs(t, err, ErrCacheMiss)
	})

	t.Run("set then get", func(t *testing.T) {
		fake := newFakeRedis()
		cache := NewSessionCache(fake, time.Hour)
		require.NoError(t, cache.Set(ctx, "user-1", day, sessions))
		assert.Equal(t, time.Hour, fake.ttl)
		assert.Contains(t, fake.data, "sessions:2015-11-24:user-1")

		got, err := cache.Get(ctx, "user-1", day)
		require.NoError(t, err)
		require.Len(t, got["G"], 1)
		s := got["G"][0]
		assert.True(t, start.Equal(s.Start))
		assert.Equal(t, 2, s.PageCount)
		assert.Equal(t, models.UTMs{Source: "ads"}, s.UTMs)
		assert.Equal(t, 2, s.Pages[models.PageKey{PixelID: "G", CleanedURL: "/"}])
		assert.Equal(t, "A", s.Conversions["CONV"].OrdersInfo[0].ID)
	})

	t.Run("delete", func(t *testing.T) {
		fake := newFakeRedis()
		cache := NewSessionCache(fake, time.Hour)
		require.NoError(t, cache.Set(ctx, "user-1", day, sessions))
		require.NoError(t, cache.Delete(ctx, "user-1", day))

		_, err := cache.Get(ctx, "user-1", day)
		assert.ErrorIs(t, err, ErrCacheMiss)
	})

	t.Run("corrupt entry is dropped", func(t *testing.T) {
		fake := newFakeRedis()
		fake.data["sessions:2015-11-24:user-1"] = "{not json"
		cache := NewSessionCache(fake, time.Hour)

		_, err := cache.Get(ctx, "user-1", day)
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrCacheMiss)
		assert.NotContains(t, fake.data, "sessions:2015-11-24:user-1")
	})

	t.Run("redis failure is not a miss", func(t *testing.T) {
		fake := newFakeRedis()
		fake.err = errors.New("connection refused")
		cache := NewSessionCache(fake, time.Hour)

		_, err := cache.Get(ctx, "user-1", day)
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrCacheMiss)
	})
}
