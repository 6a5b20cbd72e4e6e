package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"tracketl/api/config"
	apperrors "tracketl/api/errors"
	"tracketl/api/httputil"
	"tracketl/api/models"
	"tracketl/api/sessions"
	"tracketl/api/utils"
)

// SessionService builds, caches and persists sessions.
type SessionService interface {
	Builder() *sessions.Builder
	UserSessions(ctx context.Context, userID string, date time.Time) (models.Sessions, error)
	Run(ctx context.Context, date time.Time) (models.ProcessSummary, error)
}

type SessionHandlers struct {
	service SessionService
	now     func() time.Time
}

func NewSessionHandlers(service SessionService) *SessionHandlers {
	return &SessionHandlers{service: service, now: time.Now}
}

func (h *SessionHandlers) parseDate(c *gin.Context) (time.Time, bool) {
	date, err := utils.ParseDate(c.Query("date"), h.now())
	if err != nil {
		httputil.RespondError(c, apperrors.InvalidInput("date", err.Error()))
		return time.Time{}, false
	}
	return date, true
}

// BuildSessions groups the posted events of one user without touching storage.
func (h *SessionHandlers) BuildSessions(c *gin.Context) {
	var events []models.Event
	if err := c.ShouldBindJSON(&events); err != nil {
		httputil.RespondError(c, apperrors.InvalidInput("request body", err.Error()))
		return
	}

	c.JSON(http.StatusOK, h.service.Builder().Build(events))
}

// GetUserSessions returns one user's sessions for ?date (default today, UTC).
func (h *SessionHandlers) GetUserSessions(c *gin.Context) {
	userID := c.Param("userID")
	if userID == "" {
		httputil.RespondError(c, apperrors.MissingRequired("userID"))
		return
	}
	date, ok := h.parseDate(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), config.QueryTimeout)
	defer cancel()

	result, err := h.service.UserSessions(ctx, userID, date)
	if err != nil {
		httputil.RespondError(c, apperrors.Database(fmt.Errorf("sessions for user %s: %w", userID, err)))
		return
	}

	c.JSON(http.StatusOK, models.UserSessions{
		UserID:   userID,
		Date:     utils.FormatDate(date),
		Sessions: result,
	})
}

// ProcessDate runs the batch processor for ?date and reports its summary.
func (h *SessionHandlers) ProcessDate(c *gin.Context) {
	date, ok := h.parseDate(c)
	if !ok {
		return
	}

	summary, err := h.service.Run(c.Request.Context(), date)
	if err != nil {
		httputil.RespondError(c, apperrors.Database(fmt.Errorf("process %s: %w", utils.FormatDate(date), err)))
		return
	}

	c.JSON(http.StatusOK, summary)
}
