package models

import (
	"cmp"
	"encoding/json"
	"slices"
	"time"
)

// Conversion aggregates the fires of one conversion pixel within a session.
type Conversion struct {
	PageCount  int         `json:"page_count"`
	OrdersInfo []OrderInfo `json:"orders_info"`
}

// PageKey identifies a page tally bucket.
type PageKey struct {
	PixelID    string `json:"pixel_id"`
	CleanedURL string `json:"cleaned_url"`
}

// Pages counts for_page fires per (pixel, url).
type Pages map[PageKey]int

type pageCount struct {
	PageKey
	Count int `json:"count"`
}

// MarshalJSON encodes pages as a list ordered by pixel then url, since the
// tuple key cannot be a JSON object key.
func (p Pages) MarshalJSON() ([]byte, error) {
	out := make([]pageCount, 0, len(p))
	for k, n := range p {
		out = append(out, pageCount{PageKey: k, Count: n})
	}
	slices.SortFunc(out, func(a, b pageCount) int {
		if c := cmp.Compare(a.PixelID, b.PixelID); c != 0 {
			return c
		}
		return cmp.Compare(a.CleanedURL, b.CleanedURL)
	})
	return json.Marshal(out)
}

func (p *Pages) UnmarshalJSON(data []byte) error {
	var in []pageCount
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	pages := make(Pages, len(in))
	for _, pc := range in {
		pages[pc.PageKey] += pc.Count
	}
	*p = pages
	return nil
}

// Session is one contiguous burst of activity for a group.
type Session struct {
	Start       time.Time             `json:"start"`
	Last        time.Time             `json:"last"`
	Landing     string                `json:"landing"`
	UTMs        UTMs                  `json:"utms"`
	PageCount   int                   `json:"page_count"`
	Conversions map[string]Conversion `json:"conversions"`
	Pages       Pages                 `json:"pages"`
}

// Sessions maps a group id to its sessions ordered by start time.
type Sessions map[string][]Session

// Tail returns the most recent session of a group, if any.
func (s Sessions) Tail(groupID string) (Session, bool) {
	group := s[groupID]
	if len(group) == 0 {
		return Session{}, false
	}
	return group[len(group)-1], true
}

// Count returns the total number of sessions across all groups.
func (s Sessions) Count() int {
	n := 0
	for _, group := range s {
		n += len(group)
	}
	return n
}
