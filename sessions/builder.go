// Package sessions groups one user's tracking events into per-group sessions.
//
// A session for a group starts when there is none yet, when the gap since its
// last event exceeds the session period, or when an event carries non-empty
// UTMs that differ from the session's. Only the tail session of each group is
// ever updated. The exported step functions never modify their input.
package sessions

import (
	"cmp"
	"maps"
	"slices"
	"time"

	"tracketl/api/models"
)

// DefaultPeriod is the maximum inactivity gap inside one session.
const DefaultPeriod = 30 * time.Minute

// Builder folds events into sessions.
type Builder struct {
	// Period is the maximum allowed gap between consecutive events of a session.
	Period time.Duration
	// SplitOnDateChange also starts a new session when the UTC calendar date
	// changes. Off by default: input normally covers a single processing date.
	SplitOnDateChange bool
}

// NewBuilder returns a Builder with the given period, falling back to
// DefaultPeriod for non-positive values.
func NewBuilder(period time.Duration, splitOnDateChange bool) *Builder {
	if period <= 0 {
		period = DefaultPeriod
	}
	return &Builder{Period: period, SplitOnDateChange: splitOnDateChange}
}

var defaultBuilder = NewBuilder(DefaultPeriod, false)

// BuildSessions groups events with the default 30 minute period.
func BuildSessions(events []models.Event) models.Sessions {
	return defaultBuilder.Build(events)
}

// Build sorts a copy of events by time and folds them into sessions keyed by
// group id. Events without a group id are dropped.
func (b *Builder) Build(events []models.Event) models.Sessions {
	sorted := slices.Clone(events)
	slices.SortStableFunc(sorted, compareEvents)

	acc := make(models.Sessions)
	for _, e := range sorted {
		if e.GroupID == "" {
			continue
		}
		acc = b.fold(acc, e)
	}
	return acc
}

// compareEvents orders by time, then by every field that affects the built
// sessions, so the result does not depend on input order. Only events that
// are identical in all of those fields keep arrival order.
func compareEvents(a, b models.Event) int {
	if c := a.Time.Compare(b.Time); c != 0 {
		return c
	}
	if c := cmp.Compare(a.GroupID, b.GroupID); c != 0 {
		return c
	}
	if c := cmp.Compare(a.PixelID, b.PixelID); c != 0 {
		return c
	}
	if c := cmp.Compare(a.CleanedURL, b.CleanedURL); c != 0 {
		return c
	}
	if c := compareUTMs(a.UTMs, b.UTMs); c != 0 {
		return c
	}
	if a.ForPage != b.ForPage {
		if !a.ForPage {
			return -1
		}
		return 1
	}
	return compareOrders(a.OrderInfo, b.OrderInfo)
}

func compareUTMs(a, b models.UTMs) int {
	return cmp.Or(
		cmp.Compare(a.Source, b.Source),
		cmp.Compare(a.Medium, b.Medium),
		cmp.Compare(a.Campaign, b.Campaign),
		cmp.Compare(a.Term, b.Term),
		cmp.Compare(a.Content, b.Content),
	)
}

// compareOrders sorts nil before any order, then by id and sum.
func compareOrders(a, b *models.OrderInfo) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	if c := cmp.Compare(a.ID, b.ID); c != 0 {
		return c
	}
	return a.Sum.Cmp(b.Sum)
}

// fold applies e to the tail session of its group. acc and every session in
// it belong to a single Build call, so the tail is updated in place.
func (b *Builder) fold(acc models.Sessions, e models.Event) models.Sessions {
	group := acc[e.GroupID]

	var last *models.Session
	if n := len(group); n > 0 {
		last = &group[n-1]
	}
	if b.ShouldStartNewSession(last, e) {
		group = append(group, CreateSession(e))
	}

	cur := &group[len(group)-1]
	applyEvent(cur, e)
	applyConversion(cur, e)
	applyPage(cur, e)

	acc[e.GroupID] = group
	return acc
}

// ShouldStartNewSession reports whether e opens a new session after last.
// A nil last means the group has no session yet. Only last is inspected:
// e is assumed not to precede anything already folded into the group.
func (b *Builder) ShouldStartNewSession(last *models.Session, e models.Event) bool {
	if last == nil {
		return true
	}
	if e.Time.After(last.Last.Add(b.Period)) {
		return true
	}
	if !e.UTMs.IsEmpty() && e.UTMs != last.UTMs {
		return true
	}
	if b.SplitOnDateChange && !sameUTCDate(e.Time, last.Last) {
		return true
	}
	return false
}

// ShouldStartNewSession applies the default rules.
func ShouldStartNewSession(last *models.Session, e models.Event) bool {
	return defaultBuilder.ShouldStartNewSession(last, e)
}

func sameUTCDate(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

// CreateSession opens an empty session landing on e.
func CreateSession(e models.Event) models.Session {
	return models.Session{
		Start:       e.Time,
		Last:        e.Time,
		Landing:     e.CleanedURL,
		UTMs:        e.UTMs,
		Conversions: map[string]models.Conversion{},
		Pages:       models.Pages{},
	}
}

// UpdateSession advances Last and counts e as a page view.
func UpdateSession(s models.Session, e models.Event) models.Session {
	applyEvent(&s, e)
	return s
}

// UpdateSessionConversions attributes a conversion fire to s. Fires of the
// group's own pixel are not conversions. s is not modified.
func UpdateSessionConversions(s models.Session, e models.Event) models.Session {
	if !e.IsConversion() {
		return s
	}
	s.Conversions = maps.Clone(s.Conversions)
	if conv, ok := s.Conversions[e.PixelID]; ok {
		conv.OrdersInfo = slices.Clone(conv.OrdersInfo)
		s.Conversions[e.PixelID] = conv
	}
	applyConversion(&s, e)
	return s
}

// UpdateSessionPages tallies e under (pixel, url) when it is marked for_page.
// s is not modified.
func UpdateSessionPages(s models.Session, e models.Event) models.Session {
	if !e.ForPage {
		return s
	}
	s.Pages = maps.Clone(s.Pages)
	applyPage(&s, e)
	return s
}

func applyEvent(s *models.Session, e models.Event) {
	if s.Last.Before(e.Time) {
		s.Last = e.Time
	}
	s.PageCount++
}

func applyConversion(s *models.Session, e models.Event) {
	if !e.IsConversion() {
		return
	}
	if s.Conversions == nil {
		s.Conversions = map[string]models.Conversion{}
	}
	conv := s.Conversions[e.PixelID]
	conv.PageCount++
	if conv.OrdersInfo == nil {
		conv.OrdersInfo = []models.OrderInfo{}
	}
	if hasOrder(e.OrderInfo) {
		conv.OrdersInfo = append(conv.OrdersInfo, *e.OrderInfo)
	}
	s.Conversions[e.PixelID] = conv
}

func applyPage(s *models.Session, e models.Event) {
	if !e.ForPage {
		return
	}
	if s.Pages == nil {
		s.Pages = models.Pages{}
	}
	s.Pages[models.PageKey{PixelID: e.PixelID, CleanedURL: e.CleanedURL}]++
}

// hasOrder reports whether a conversion carries order data. An empty
// order_info object is treated like a missing one.
func hasOrder(o *models.OrderInfo) bool {
	return o != nil && (o.ID != "" || !o.Sum.IsZero())
}
