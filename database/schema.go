package database

import (
	"context"
	"fmt"
)

var clickHouseSchema = []string{
	`CREATE TABLE IF NOT EXISTS track_events (
		event_id     String,
		user_id      String,
		time         DateTime64(3, 'UTC'),
		group_id     String,
		pixel_id     String,
		url          String,
		cleaned_url  String,
		utm_source   String,
		utm_medium   String,
		utm_campaign String,
		utm_term     String,
		utm_content  String,
		order_id     Nullable(String),
		order_sum    Nullable(Decimal(18, 4)),
		for_page     Bool,
		user_agent   String,
		ip_address   String
	) ENGINE = MergeTree
	PARTITION BY toYYYYMM(time)
	ORDER BY (user_id, time)`,

	`CREATE TABLE IF NOT EXISTS user_sessions (
		user_id      String,
		date         Date,
		group_id     String,
		seq          UInt32,
		start        DateTime64(3, 'UTC'),
		last         DateTime64(3, 'UTC'),
		landing      String,
		utm_source   String,
		utm_medium   String,
		utm_campaign String,
		utm_term     String,
		utm_content  String,
		page_count   UInt32,
		conversions  String,
		pages        String,
		processed_at DateTime64(3, 'UTC')
	) ENGINE = ReplacingMergeTree(processed_at)
	PARTITION BY toYYYYMM(date)
	ORDER BY (date, user_id, group_id, seq)`,

	`CREATE TABLE IF NOT EXISTS session_conversions (
		user_id      String,
		date         Date,
		group_id     String,
		seq          UInt32,
		start        DateTime64(3, 'UTC'),
		pixel_id     String,
		page_count   UInt32,
		orders       UInt32,
		revenue      Decimal(18, 4),
		processed_at DateTime64(3, 'UTC')
	) ENGINE = ReplacingMergeTree(processed_at)
	PARTITION BY toYYYYMM(date)
	ORDER BY (date, user_id, group_id, seq, pixel_id)`,
}

// EnsureSchema creates the event and session tables when missing.
func (c *ClickHouseClient) EnsureSchema(ctx context.Context) error {
	for _, ddl := range clickHouseSchema {
		if err := c.Conn.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("failed to apply clickhouse schema: %w", err)
		}
	}
	return nil
}
