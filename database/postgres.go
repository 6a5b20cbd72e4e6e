package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

// DB holds the operator accounts database.
type DB struct {
	*sqlx.DB
}

func NewPostgresDB(ctx context.Context, databaseURL string) (*DB, error) {
	db, err := sqlx.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("error opening database connection: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("error connecting to the database (ping failed): %w", err)
	}

	log.Info().Msg("postgres connected")
	return &DB{db}, nil
}

func (db *DB) Close() {
	if db.DB == nil {
		return
	}
	if err := db.DB.Close(); err != nil {
		log.Error().Err(err).Msg("error closing postgres connection")
		return
	}
	log.Info().Msg("postgres connection closed")
}
