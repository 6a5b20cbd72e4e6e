package store

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"tracketl/api/database"
	"tracketl/api/models"
)

// EventStore reads and writes raw pixel fires in ClickHouse.
type EventStore struct {
	DB *database.ClickHouseClient
}

func NewEventStore(chClient *database.ClickHouseClient) *EventStore {
	return &EventStore{DB: chClient}
}

// eventRecord mirrors a track_events row.
type eventRecord struct {
	EventID     string           `ch:"event_id"`
	UserID      string           `ch:"user_id"`
	Time        time.Time        `ch:"time"`
	GroupID     string           `ch:"group_id"`
	PixelID     string           `ch:"pixel_id"`
	URL         string           `ch:"url"`
	CleanedURL  string           `ch:"cleaned_url"`
	UTMSource   string           `ch:"utm_source"`
	UTMMedium   string           `ch:"utm_medium"`
	UTMCampaign string           `ch:"utm_campaign"`
	UTMTerm     string           `ch:"utm_term"`
	UTMContent  string           `ch:"utm_content"`
	OrderID     *string          `ch:"order_id"`
	OrderSum    *decimal.Decimal `ch:"order_sum"`
	ForPage     bool             `ch:"for_page"`
	UserAgent   string           `ch:"user_agent"`
	IPAddress   string           `ch:"ip_address"`
}

func recordFromEvent(e models.Event) eventRecord {
	rec := eventRecord{
		EventID:     e.EventID,
		UserID:      e.UserID,
		Time:        e.Time.UTC(),
		GroupID:     e.GroupID,
		PixelID:     e.PixelID,
		URL:         e.URL,
		CleanedURL:  e.CleanedURL,
		UTMSource:   e.UTMs.Source,
		UTMMedium:   e.UTMs.Medium,
		UTMCampaign: e.UTMs.Campaign,
		UTMTerm:     e.UTMs.Term,
		UTMContent:  e.UTMs.Content,
		ForPage:     e.ForPage,
		UserAgent:   e.UserAgent,
		IPAddress:   e.IPAddress,
	}
	if e.OrderInfo != nil {
		id, sum := e.OrderInfo.ID, e.OrderInfo.Sum
		rec.OrderID = &id
		rec.OrderSum = &sum
	}
	return rec
}

func (r eventRecord) event() models.Event {
	e := models.Event{
		EventID:    r.EventID,
		UserID:     r.UserID,
		Time:       r.Time.UTC(),
		GroupID:    r.GroupID,
		PixelID:    r.PixelID,
		URL:        r.URL,
		CleanedURL: r.CleanedURL,
		UTMs: models.UTMs{
			Source:   r.UTMSource,
			Medium:   r.UTMMedium,
			Campaign: r.UTMCampaign,
			Term:     r.UTMTerm,
			Content:  r.UTMContent,
		},
		ForPage:   r.ForPage,
		UserAgent: r.UserAgent,
		IPAddress: r.IPAddress,
	}
	if r.OrderID != nil {
		info := models.OrderInfo{ID: *r.OrderID}
		if r.OrderSum != nil {
			info.Sum = *r.OrderSum
		}
		e.OrderInfo = &info
	}
	return e
}

func (s *EventStore) InsertEvents(ctx context.Context, events []models.Event) error {
	if len(events) == 0 {
		return nil
	}

	batch, err := s.DB.Conn.PrepareBatch(ctx, `INSERT INTO track_events`)
	if err != nil {
		return fmt.Errorf("failed to prepare batch insert: %w", err)
	}

	for _, event := range events {
		rec := recordFromEvent(event)
		if err := batch.AppendStruct(&rec); err != nil {
			batch.Abort()
			return fmt.Errorf("failed to append event %s to batch: %w", event.EventID, err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}

	log.Debug().Int("count", len(events)).Msg("inserted track events")
	return nil
}

// LoadUserEvents returns a user's events on the given UTC date in stored order.
func (s *EventStore) LoadUserEvents(ctx context.Context, userID string, date time.Time) ([]models.Event, error) {
	from, to := dayBounds(date)
	rows, err := s.DB.Conn.Query(ctx, `
		SELECT event_id, user_id, time, group_id, pixel_id, url, cleaned_url,
			utm_source, utm_medium, utm_campaign, utm_term, utm_content,
			order_id, order_sum, for_page, user_agent, ip_address
		FROM track_events
		WHERE user_id = ? AND time >= ? AND time < ?
		ORDER BY time ASC
	`, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query events for user %s: %w", userID, err)
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		var rec eventRecord
		if err := rows.ScanStruct(&rec); err != nil {
			return nil, fmt.Errorf("failed to scan event row for user %s: %w", userID, err)
		}
		events = append(events, rec.event())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row error loading events for user %s: %w", userID, err)
	}
	return events, nil
}

// ListUsers returns the distinct users with at least one event on date.
func (s *EventStore) ListUsers(ctx context.Context, date time.Time) ([]string, error) {
	from, to := dayBounds(date)
	rows, err := s.DB.Conn.Query(ctx, `
		SELECT DISTINCT user_id
		FROM track_events
		WHERE time >= ? AND time < ?
		ORDER BY user_id
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, fmt.Errorf("failed to scan user id: %w", err)
		}
		users = append(users, userID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}
	return users, nil
}

func dayBounds(date time.Time) (time.Time, time.Time) {
	y, m, d := date.UTC().Date()
	from := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return from, from.AddDate(0, 0, 1)
}
