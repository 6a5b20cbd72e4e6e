package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// UTMs holds the five campaign attribution fields captured from a landing URL.
// It is compared by value.
type UTMs struct {
	Source   string `json:"utm_source"`
	Medium   string `json:"utm_medium"`
	Campaign string `json:"utm_campaign"`
	Term     string `json:"utm_term"`
	Content  string `json:"utm_content"`
}

// IsEmpty reports whether every UTM field is blank.
func (u UTMs) IsEmpty() bool {
	return u == UTMs{}
}

// OrderInfo is the order payload carried by a conversion fire for a completed order.
type OrderInfo struct {
	ID  string          `json:"oid"`
	Sum decimal.Decimal `json:"osum"`
}

// Event is a single parsed pixel fire for one user.
type Event struct {
	EventID    string     `json:"eventId,omitempty"`
	UserID     string     `json:"userId"`
	Time       time.Time  `json:"time"`
	GroupID    string     `json:"group_id"`
	PixelID    string     `json:"pixel_id"`
	URL        string     `json:"url,omitempty"`
	CleanedURL string     `json:"cleaned_url"`
	UTMs       UTMs       `json:"utms"`
	OrderInfo  *OrderInfo `json:"order_info,omitempty"`
	ForPage    bool       `json:"for_page,omitempty"`
	UserAgent  string     `json:"userAgent,omitempty"`
	IPAddress  string     `json:"ipAddress,omitempty"`
}

// IsConversion reports whether the fire came from a conversion pixel rather
// than the group's own landing pixel.
func (e Event) IsConversion() bool {
	return e.PixelID != e.GroupID
}
