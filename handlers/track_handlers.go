package handlers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"tracketl/api/config"
	apperrors "tracketl/api/errors"
	"tracketl/api/httputil"
	"tracketl/api/metrics"
	"tracketl/api/models"
)

// EventWriter stores incoming pixel fires.
type EventWriter interface {
	InsertEvents(ctx context.Context, events []models.Event) error
}

type TrackHandlers struct {
	events EventWriter
}

func NewTrackHandlers(events EventWriter) *TrackHandlers {
	return &TrackHandlers{events: events}
}

// validateEvents checks the fields the session builder relies on being set by
// the tracker. group_id may be empty: such events are stored but never sessionized.
func validateEvents(events []models.Event) error {
	for i, e := range events {
		if e.UserID == "" {
			return apperrors.MissingRequired("userId").WithDetails(gin.H{"index": i})
		}
		if e.Time.IsZero() {
			return apperrors.MissingRequired("time").WithDetails(gin.H{"index": i})
		}
		if e.GroupID != "" && e.PixelID == "" {
			return apperrors.InvalidInput("pixel_id", "required when group_id is set").WithDetails(gin.H{"index": i})
		}
	}
	return nil
}

// TrackEvent accepts a JSON array of events and batch inserts them.
func (h *TrackHandlers) TrackEvent(c *gin.Context) {
	var incoming []models.Event
	if err := c.ShouldBindJSON(&incoming); err != nil {
		httputil.RespondError(c, apperrors.InvalidInput("request body", err.Error()))
		return
	}

	if len(incoming) == 0 {
		c.Status(http.StatusOK)
		return
	}

	if err := validateEvents(incoming); err != nil {
		httputil.RespondError(c, err)
		return
	}

	for i := range incoming {
		incoming[i].EventID = uuid.New().String()
		if incoming[i].IPAddress == "" {
			incoming[i].IPAddress = c.ClientIP()
		}
		if incoming[i].UserAgent == "" {
			incoming[i].UserAgent = c.Request.UserAgent()
		}
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), config.TrackInsertTimeout)
	defer cancel()

	if err := h.events.InsertEvents(ctx, incoming); err != nil {
		httputil.RespondError(c, apperrors.Database(fmt.Errorf("insert %d events: %w", len(incoming), err)))
		return
	}

	metrics.EventsTracked.Add(float64(len(incoming)))
	log.Debug().Int("count", len(incoming)).Msg("tracked events")
	c.JSON(http.StatusOK, gin.H{"accepted": len(incoming)})
}
