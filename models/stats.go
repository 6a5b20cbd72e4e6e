package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// UserSessions is the read API payload for one user and date.
type UserSessions struct {
	UserID   string   `json:"user_id"`
	Date     string   `json:"date"`
	Sessions Sessions `json:"sessions"`
}

// ProcessSummary reports a batch run over one processing date.
type ProcessSummary struct {
	Date     string `json:"date"`
	Users    int    `json:"users"`
	Events   int    `json:"events"`
	Sessions int    `json:"sessions"`
	Failed   int    `json:"failed"`
}

type LandingResult struct {
	Landing  string `json:"landing"`
	Sessions uint64 `json:"sessions"`
}

type ConversionResult struct {
	PixelID   string          `json:"pixel_id"`
	Sessions  uint64          `json:"sessions"`
	PageCount uint64          `json:"page_count"`
	Orders    uint64          `json:"orders"`
	Revenue   decimal.Decimal `json:"revenue"`
}

type SessionCountByTime struct {
	Time  time.Time `json:"time"`
	Count uint64    `json:"count"`
}
