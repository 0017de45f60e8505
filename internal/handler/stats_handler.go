package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sentra-platform/incident-api/internal/service"
	appErrors "github.com/sentra-platform/incident-api/pkg/errors"
	"github.com/sentra-platform/incident-api/pkg/response"
)

// StatsHandler exposes the admin dashboard counters.
type StatsHandler struct {
	service *service.StatsService
}

// NewStatsHandler creates a new handler.
func NewStatsHandler(svc *service.StatsService) *StatsHandler {
	return &StatsHandler{service: svc}
}

// Overview godoc
// @Summary Incident statistics
// @Description Aggregate incident counters for the admin dashboard
// @Tags Statistics
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /stats/incidents [get]
func (h *StatsHandler) Overview(c *gin.Context) {
	actor, ok := principalFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	stats, err := h.service.Overview(c.Request.Context(), actor)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, stats, nil)
}
