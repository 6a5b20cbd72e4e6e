package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"tracketl/api/config"
	apperrors "tracketl/api/errors"
	"tracketl/api/httputil"
	"tracketl/api/models"
	"tracketl/api/utils"
)

// StatsReader aggregates stored sessions.
type StatsReader interface {
	GetTopLandings(ctx context.Context, start, end time.Time, limit uint64) ([]models.LandingResult, error)
	GetConversionStats(ctx context.Context, start, end time.Time) ([]models.ConversionResult, error)
	GetSessionCountsOverTime(ctx context.Context, interval string, start, end time.Time) ([]models.SessionCountByTime, error)
}

type StatsHandlers struct {
	stats StatsReader
	now   func() time.Time
}

func NewStatsHandlers(stats StatsReader) *StatsHandlers {
	return &StatsHandlers{stats: stats, now: time.Now}
}

func (h *StatsHandlers) parseRange(c *gin.Context) (time.Time, time.Time, bool) {
	start, end, err := utils.ParseRange(c.Query("start"), c.Query("end"), h.now())
	if err != nil {
		httputil.RespondError(c, apperrors.InvalidInput("range", err.Error()))
		return time.Time{}, time.Time{}, false
	}
	return start, end, true
}

func (h *StatsHandlers) GetTopLandings(c *gin.Context) {
	start, end, ok := h.parseRange(c)
	if !ok {
		return
	}

	var limit uint64 = 10
	if limitParam := c.Query("limit"); limitParam != "" {
		parsed, err := strconv.ParseUint(limitParam, 10, 64)
		if err != nil || parsed == 0 {
			httputil.RespondError(c, apperrors.InvalidInput("limit", "must be a positive integer"))
			return
		}
		limit = parsed
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), config.QueryTimeout)
	defer cancel()

	results, err := h.stats.GetTopLandings(ctx, start, end, limit)
	if err != nil {
		httputil.RespondError(c, apperrors.Database(fmt.Errorf("top landings: %w", err)))
		return
	}
	c.JSON(http.StatusOK, results)
}

func (h *StatsHandlers) GetConversionStats(c *gin.Context) {
	start, end, ok := h.parseRange(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), config.QueryTimeout)
	defer cancel()

	results, err := h.stats.GetConversionStats(ctx, start, end)
	if err != nil {
		httputil.RespondError(c, apperrors.Database(fmt.Errorf("conversion stats: %w", err)))
		return
	}
	c.JSON(http.StatusOK, results)
}

func (h *StatsHandlers) GetSessionCounts(c *gin.Context) {
	interval := c.Query("interval")
	if interval == "" {
		httputil.RespondError(c, apperrors.MissingRequired("interval"))
		return
	}
	if !utils.IsValidInterval(interval) {
		httputil.RespondError(c, apperrors.InvalidInput("interval", "use one of Minute, Hour, Day, Week, Month, Quarter, Year"))
		return
	}
	start, end, ok := h.parseRange(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), config.QueryTimeout)
	defer cancel()

	results, err := h.stats.GetSessionCountsOverTime(ctx, interval, start, end)
	if err != nil {
		httputil.RespondError(c, apperrors.Database(fmt.Errorf("session counts: %w", err)))
		return
	}
	c.JSON(http.StatusOK, results)
}
