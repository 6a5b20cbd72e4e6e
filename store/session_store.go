package store

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"tracketl/api/database"
	"tracketl/api/models"
	"tracketl/api/utils"
)

// SessionStore persists built sessions and serves aggregate stats over them.
type SessionStore struct {
	DB *database.ClickHouseClient
}

func NewSessionStore(chClient *database.ClickHouseClient) *SessionStore {
	return &SessionStore{DB: chClient}
}

type sessionRecord struct {
	UserID      string    `ch:"user_id"`
	Date        time.Time `ch:"date"`
	GroupID     string    `ch:"group_id"`
	Seq         uint32    `ch:"seq"`
	Start       time.Time `ch:"start"`
	Last        time.Time `ch:"last"`
	Landing     string    `ch:"landing"`
	UTMSource   string    `ch:"utm_source"`
	UTMMedium   string    `ch:"utm_medium"`
	UTMCampaign string    `ch:"utm_campaign"`
	UTMTerm     string    `ch:"utm_term"`
	UTMContent  string    `ch:"utm_content"`
	PageCount   uint32    `ch:"page_count"`
	Conversions string    `ch:"conversions"`
	Pages       string    `ch:"pages"`
	ProcessedAt time.Time `ch:"processed_at"`
}

type conversionRecord struct {
	UserID      string          `ch:"user_id"`
	Date        time.Time       `ch:"date"`
	GroupID     string          `ch:"group_id"`
	Seq         uint32          `ch:"seq"`
	Start       time.Time       `ch:"start"`
	PixelID     string          `ch:"pixel_id"`
	PageCount   uint32          `ch:"page_count"`
	Orders      uint32          `ch:"orders"`
	Revenue     decimal.Decimal `ch:"revenue"`
	ProcessedAt time.Time       `ch:"processed_at"`
}

// sessionRecords flattens sessions into rows ordered by group id, then by
// position within the group.
func sessionRecords(userID string, date, processedAt time.Time, sessions models.Sessions) ([]sessionRecord, []conversionRecord, error) {
	groups := make([]string, 0, len(sessions))
	for groupID := range sessions {
		groups = append(groups, groupID)
	}
	slices.Sort(groups)

	var (
		rows  []sessionRecord
		convs []conversionRecord
	)
	for _, groupID := range groups {
		for i, sess := range sessions[groupID] {
			conversions, err := json.Marshal(sess.Conversions)
			if err != nil {
				return nil, nil, fmt.Errorf("failed to encode conversions: %w", err)
			}
			pages, err := json.Marshal(sess.Pages)
			if err != nil {
				return nil, nil, fmt.Errorf("failed to encode pages: %w", err)
			}
			seq := uint32(i)
			rows = append(rows, sessionRecord{
				UserID:      userID,
				Date:        date,
				GroupID:     groupID,
				Seq:         seq,
				Start:       sess.Start.UTC(),
				Last:        sess.Last.UTC(),
				Landing:     sess.Landing,
				UTMSource:   sess.UTMs.Source,
				UTMMedium:   sess.UTMs.Medium,
				UTMCampaign: sess.UTMs.Campaign,
				UTMTerm:     sess.UTMs.Term,
				UTMContent:  sess.UTMs.Content,
				PageCount:   clampUint32(sess.PageCount),
				Conversions: string(conversions),
				Pages:       string(pages),
				ProcessedAt: processedAt,
			})

			pixels := make([]string, 0, len(sess.Conversions))
			for pixelID := range sess.Conversions {
				pixels = append(pixels, pixelID)
			}
			slices.Sort(pixels)
			for _, pixelID := range pixels {
				conv := sess.Conversions[pixelID]
				revenue := decimal.Zero
				for _, order := range conv.OrdersInfo {
					revenue = revenue.Add(order.Sum)
				}
				convs = append(convs, conversionRecord{
					UserID:      userID,
					Date:        date,
					GroupID:     groupID,
					Seq:         seq,
					Start:       sess.Start.UTC(),
					PixelID:     pixelID,
					PageCount:   clampUint32(conv.PageCount),
					Orders:      clampUint32(len(conv.OrdersInfo)),
					Revenue:     revenue,
					ProcessedAt: processedAt,
				})
			}
		}
	}
	return rows, convs, nil
}

func clampUint32(n int) uint32 {
	if n < 0 {
		return 0
	}
	if uint64(n) > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(n)
}

// ReplaceUserSessions swaps the stored sessions of one user and date for the
// given ones, so reprocessing a date is idempotent. New rows are written
// before older runs are deleted: a failed insert leaves the previous run in
// place.
func (s *SessionStore) ReplaceUserSessions(ctx context.Context, userID string, date time.Time, sessions models.Sessions) error {
	date = utils.StartOfDay(date)
	processedAt := time.Now().UTC().Truncate(time.Millisecond)
	rows, convs, err := sessionRecords(userID, date, processedAt, sessions)
	if err != nil {
		return err
	}

	if err := insertRows(ctx, s.DB.Conn, "user_sessions", rows); err != nil {
		return err
	}
	if err := insertRows(ctx, s.DB.Conn, "session_conversions", convs); err != nil {
		return err
	}

	for _, table := range []string{"user_sessions", "session_conversions"} {
		query := fmt.Sprintf(`DELETE FROM %s WHERE user_id = ? AND date = ? AND processed_at < ?`, table)
		if err := s.DB.Conn.Exec(ctx, query, userID, date, processedAt); err != nil {
			return fmt.Errorf("failed to clear previous %s for user %s: %w", table, userID, err)
		}
	}

	log.Debug().Str("user_id", userID).Int("sessions", len(rows)).Int("conversions", len(convs)).Msg("stored sessions")
	return nil
}

func insertRows[T any](ctx context.Context, conn clickhouse.Conn, table string, rows []T) error {
	if len(rows) == 0 {
		return nil
	}
	batch, err := conn.PrepareBatch(ctx, "INSERT INTO "+table)
	if err != nil {
		return fmt.Errorf("failed to prepare %s batch: %w", table, err)
	}
	for i := range rows {
		if err := batch.AppendStruct(&rows[i]); err != nil {
			batch.Abort()
			return fmt.Errorf("failed to append %s row: %w", table, err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send %s batch: %w", table, err)
	}
	return nil
}

func (s *SessionStore) GetTopLandings(ctx context.Context, start, end time.Time, limit uint64) ([]models.LandingResult, error) {
	if limit == 0 {
		limit = 10
	}

	rows, err := s.DB.Conn.Query(ctx, `
		SELECT landing, count() AS sessions
		FROM user_sessions FINAL
		WHERE start >= ? AND start <= ?
		GROUP BY landing
		ORDER BY sessions DESC, landing ASC
		LIMIT ?
	`, start, end, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query top landings: %w", err)
	}
	defer rows.Close()

	var results []models.LandingResult
	for rows.Next() {
		var r models.LandingResult
		if err := rows.Scan(&r.Landing, &r.Sessions); err != nil {
			return nil, fmt.Errorf("failed to scan landing row: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows for top landings: %w", err)
	}
	return results, nil
}

func (s *SessionStore) GetConversionStats(ctx context.Context, start, end time.Time) ([]models.ConversionResult, error) {
	rows, err := s.DB.Conn.Query(ctx, `
		SELECT pixel_id, count() AS sessions, sum(page_count), sum(orders), sum(revenue)
		FROM session_conversions FINAL
		WHERE start >= ? AND start <= ?
		GROUP BY pixel_id
		ORDER BY pixel_id ASC
	`, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversion stats: %w", err)
	}
	defer rows.Close()

	var results []models.ConversionResult
	for rows.Next() {
		var r models.ConversionResult
		if err := rows.Scan(&r.PixelID, &r.Sessions, &r.PageCount, &r.Orders, &r.Revenue); err != nil {
			return nil, fmt.Errorf("failed to scan conversion row: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows for conversion stats: %w", err)
	}
	return results, nil
}

func (s *SessionStore) GetSessionCountsOverTime(ctx context.Context, interval string, start, end time.Time) ([]models.SessionCountByTime, error) {
	if !utils.IsValidInterval(interval) {
		return nil, fmt.Errorf("invalid interval: %s", interval)
	}

	query := fmt.Sprintf(`
		SELECT toStartOf%s(start) AS time_bucket, count() AS sessions
		FROM user_sessions FINAL
		WHERE start >= ? AND start <= ?
		GROUP BY time_bucket
		ORDER BY time_bucket ASC
	`, interval)

	rows, err := s.DB.Conn.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query session counts over time: %w", err)
	}
	defer rows.Close()

	var results []models.SessionCountByTime
	for rows.Next() {
		var r models.SessionCountByTime
		if err := rows.Scan(&r.Time, &r.Count); err != nil {
			return nil, fmt.Errorf("failed to scan session count row: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows for session counts: %w", err)
	}
	return results, nil
}
