package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// periodWindow reads the half-open [start, end) query window, defaulting to
// the current calendar month when absent.
func periodWindow(c *gin.Context) (time.Time, time.Time, bool) {
	now := time.Now().UTC()
	periodStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	periodEnd := periodStart.AddDate(0, 1, 0)

	if raw := strings.TrimSpace(c.Query("period_start")); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			AbortWithError(c, newValidationError("period_start", "invalid_time", "period_start must be RFC3339"))
			return time.Time{}, time.Time{}, false
		}
		periodStart = parsed.UTC()
	}
	if raw := strings.TrimSpace(c.Query("period_end")); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			AbortWithError(c, newValidationError("period_end", "invalid_time", "period_end must be RFC3339"))
			return time.Time{}, time.Time{}, false
		}
		periodEnd = parsed.UTC()
	}
	return periodStart, periodEnd, true
}

func (s *Server) GetEarnings(c *gin.Context) {
	reviewerID, ok := parseID(c, c.Param("id"), "id")
	if !ok {
		return
	}
	periodStart, periodEnd, ok := periodWindow(c)
	if !ok {
		return
	}

	summary, err := s.earningsSvc.Earnings(c.Request.Context(), reviewerID, periodStart, periodEnd)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (s *Server) GetEarningsBreakdown(c *gin.Context) {
	reviewerID, ok := parseID(c, c.Param("id"), "id")
	if !ok {
		return
	}
	periodStart, periodEnd, ok := periodWindow(c)
	if !ok {
		return
	}

	breakdown, err := s.earningsSvc.EarningsBreakdown(c.Request.Context(), reviewerID, periodStart, periodEnd)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"breakdown": breakdown})
}

func (s *Server) RefreshReviewerStats(c *gin.Context) {
	reviewerID, ok := parseID(c, c.Param("id"), "id")
	if !ok {
		return
	}

	stats, err := s.earningsSvc.UpdateStats(c.Request.Context(), reviewerID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
