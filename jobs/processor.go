package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"tracketl/api/config"
	"tracketl/api/metrics"
	"tracketl/api/models"
	"tracketl/api/sessions"
	"tracketl/api/store"
	"tracketl/api/utils"
)

// EventSource loads stored events.
type EventSource interface {
	ListUsers(ctx context.Context, date time.Time) ([]string, error)
	LoadUserEvents(ctx context.Context, userID string, date time.Time) ([]models.Event, error)
}

// SessionSink persists built sessions.
type SessionSink interface {
	ReplaceUserSessions(ctx context.Context, userID string, date time.Time, sessions models.Sessions) error
}

// SessionCache holds recently built sessions.
type SessionCache interface {
	Get(ctx context.Context, userID string, date time.Time) (models.Sessions, error)
	Set(ctx context.Context, userID string, date time.Time, sessions models.Sessions) error
}

// Processor builds sessions for every user of a processing date. Users are
// independent, so they are spread over a worker pool.
type Processor struct {
	events     EventSource
	sink       SessionSink
	cache      SessionCache
	builder    *sessions.Builder
	workers    int
	queueDepth int
	interval   time.Duration
	now        func() time.Time
	done       chan struct{}
	stopOnce   sync.Once
}

func NewProcessor(
	events EventSource,
	sink SessionSink,
	cache SessionCache,
	builder *sessions.Builder,
	workers, queueDepth int,
	interval time.Duration,
) *Processor {
	return &Processor{
		events:     events,
		sink:       sink,
		cache:      cache,
		builder:    builder,
		workers:    max(workers, 1),
		queueDepth: max(queueDepth, 1),
		interval:   interval,
		now:        time.Now,
		done:       make(chan struct{}),
	}
}

// Builder returns the session builder used by the processor.
func (p *Processor) Builder() *sessions.Builder {
	return p.builder
}

// UserSessions returns the sessions of one user and date, serving them from
// the cache when possible and building them from stored events otherwise.
func (p *Processor) UserSessions(ctx context.Context, userID string, date time.Time) (models.Sessions, error) {
	cached, err := p.cache.Get(ctx, userID, date)
	switch {
	case err == nil:
		metrics.CacheLookups.WithLabelValues("hit").Inc()
		return cached, nil
	case errors.Is(err, store.ErrCacheMiss):
		metrics.CacheLookups.WithLabelValues("miss").Inc()
	default:
		metrics.CacheLookups.WithLabelValues("error").Inc()
		log.Warn().Err(err).Str("user_id", userID).Msg("session cache lookup failed")
	}

	built, _, err := p.buildUser(ctx, userID, date)
	if err != nil {
		return nil, err
	}
	p.storeInCache(ctx, userID, date, built)
	return built, nil
}

func (p *Processor) buildUser(ctx context.Context, userID string, date time.Time) (models.Sessions, int, error) {
	events, err := p.events.LoadUserEvents(ctx, userID, date)
	if err != nil {
		return nil, 0, fmt.Errorf("load events: %w", err)
	}

	ungrouped := 0
	for _, e := range events {
		if e.GroupID == "" {
			ungrouped++
		}
	}
	built := p.builder.Build(events)

	metrics.EventsProcessed.Add(float64(len(events) - ungrouped))
	metrics.EventsUngrouped.Add(float64(ungrouped))
	metrics.SessionsBuilt.Add(float64(built.Count()))
	return built, len(events), nil
}

func (p *Processor) storeInCache(ctx context.Context, userID string, date time.Time, built models.Sessions) {
	if err := p.cache.Set(ctx, userID, date, built); err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("failed to cache sessions")
	}
}

// ProcessUser builds and stores the sessions of one user and date.
func (p *Processor) ProcessUser(ctx context.Context, userID string, date time.Time) (models.Sessions, int, error) {
	start := time.Now()
	defer func() {
		metrics.UserProcessingDuration.Observe(float64(time.Since(start).Milliseconds()))
	}()

	built, n, err := p.buildUser(ctx, userID, date)
	if err != nil {
		return nil, 0, err
	}
	if err := p.sink.ReplaceUserSessions(ctx, userID, date, built); err != nil {
		return nil, 0, fmt.Errorf("store sessions: %w", err)
	}
	p.storeInCache(ctx, userID, date, built)
	return built, n, nil
}

// Run processes every user with events on date. A failing user is logged and
// counted; it does not stop the others. Cancelling ctx stops dispatching.
func (p *Processor) Run(ctx context.Context, date time.Time) (models.ProcessSummary, error) {
	date = utils.StartOfDay(date)
	summary := models.ProcessSummary{Date: utils.FormatDate(date)}

	users, err := p.events.ListUsers(ctx, date)
	if err != nil {
		return summary, fmt.Errorf("list users for %s: %w", summary.Date, err)
	}
	summary.Users = len(users)

	var mu sync.Mutex
	pool := newWorkerPool(ctx, p.workers, p.queueDepth, func(ctx context.Context, userID string) {
		uctx, cancel := context.WithTimeout(ctx, config.ProcessUserTimeout)
		defer cancel()

		built, n, err := p.ProcessUser(uctx, userID, date)

		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			summary.Failed++
			metrics.UsersProcessed.WithLabelValues("failed").Inc()
			log.Error().Err(err).Str("user_id", userID).Str("date", summary.Date).Msg("failed to process user")
			return
		}
		summary.Events += n
		summary.Sessions += built.Count()
		metrics.UsersProcessed.WithLabelValues("ok").Inc()
	})

	for _, userID := range users {
		if !pool.Submit(ctx, userID) {
			break
		}
		metrics.QueueUtilization.Set(float64(pool.QueueLen()) / float64(pool.QueueCap()))
	}
	pool.Drain()
	metrics.QueueUtilization.Set(0)

	mu.Lock()
	defer mu.Unlock()
	if err := ctx.Err(); err != nil {
		return summary, fmt.Errorf("processing %s interrupted: %w", summary.Date, err)
	}

	log.Info().
		Str("date", summary.Date).
		Int("users", summary.Users).
		Int("events", summary.Events).
		Int("sessions", summary.Sessions).
		Int("failed", summary.Failed).
		Msg("processed sessions")
	return summary, nil
}

// Start runs the previous UTC day on every tick of the configured interval.
// It does nothing when the interval is not positive.
func (p *Processor) Start() {
	if p.interval <= 0 {
		return
	}
	go p.loop()
	log.Info().Dur("interval", p.interval).Msg("session processor started")
}

func (p *Processor) Stop() {
	p.stopOnce.Do(func() {
		close(p.done)
	})
}

func (p *Processor) loop() {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.done:
			log.Info().Msg("session processor stopped")
			return
		case <-ticker.C:
			p.runScheduled()
		}
	}
}

func (p *Processor) runScheduled() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-p.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	yesterday := utils.StartOfDay(p.now()).AddDate(0, 0, -1)
	if _, err := p.Run(ctx, yesterday); err != nil {
		log.Error().Err(err).Msg("scheduled session processing failed")
	}
}
