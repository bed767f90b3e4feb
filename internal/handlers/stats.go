// internal/handlers/stats.go
package handlers

import (
	"context"
	"net/http"
	"time"

	"teampulse-backend/internal/services"

	"github.com/gin-gonic/gin"
)

// StatsHandler exposes aggregated results to admins.
type StatsHandler struct {
	aggregation *services.AggregationService
}

func NewStatsHandler(aggregation *services.AggregationService) *StatsHandler {
	return &StatsHandler{aggregation: aggregation}
}

// GetSurveyResults returns per-question statistics. The cached incremental
// counters serve by default; ?recompute=true forces a batch pass over the
// raw responses.
func (h *StatsHandler) GetSurveyResults(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var (
		results *services.SurveyResults
		err     error
	)
	if c.Query("recompute") == "true" {
		results, err = h.aggregation.ComputeSurveyStats(ctx, id)
	} else {
		results, err = h.aggregation.CachedSurveyStats(ctx, id)
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, results)
}

// GetTextAnswers returns the raw free-text entries for one question.
// Anonymous surveys refuse this endpoint.
func (h *StatsHandler) GetTextAnswers(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	questionID, ok := pathID(c, "questionId")
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	answers, err := h.aggregation.TextAnswers(ctx, id, questionID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"answers": answers})
}
