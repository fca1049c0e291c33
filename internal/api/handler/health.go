// Package handler provides the HTTP handlers of the health server.
package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/holdtrack/holdtrack/internal/api/middleware"
	"github.com/holdtrack/holdtrack/internal/api/models"
	"github.com/holdtrack/holdtrack/internal/api/response"
	"github.com/holdtrack/holdtrack/internal/health"
)

// SystemErrorDetail is the 500 detail sent when the aggregate cannot be produced.
const SystemErrorDetail = "health check system error"

// Aggregator produces a fresh health report.
type Aggregator interface {
	Aggregate(ctx context.Context) (*health.Report, error)
}

// ReadinessFlag reports whether startup has finished.
type ReadinessFlag interface {
	Ready() bool
}

// HealthHandler serves the liveness, readiness and aggregate health endpoints.
type HealthHandler struct {
	checker   Aggregator
	readiness ReadinessFlag
	log       zerolog.Logger
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(checker Aggregator, readiness ReadinessFlag, log zerolog.Logger) *HealthHandler {
	return &HealthHandler{
		checker:   checker,
		readiness: readiness,
		log:       log,
	}
}

// Live handles GET / and GET /health/simple. It answers as long as the process
// serves HTTP, whatever the state of the subsystems.
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	response.Text(w, r, http.StatusOK, "OK")
}

// Ready handles GET /health/ready.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.readiness == nil || !h.readiness.Ready() {
		response.Text(w, r, http.StatusServiceUnavailable, "NOT_READY")
		return
	}
	response.Text(w, r, http.StatusOK, "READY")
}

// Health handles GET /health with the full aggregate. The status code mirrors
// the report: 200 when healthy, 503 when any service is unhealthy and 500 when
// the report itself could not be built.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	defer func() {
		if rec := recover(); rec != nil {
			h.systemError(w, r, fmt.Errorf("panic: %v", rec))
		}
	}()

	if h.checker == nil {
		h.systemError(w, r, health.ErrAggregation)
		return
	}

	report, err := h.checker.Aggregate(r.Context())
	if err != nil {
		h.systemError(w, r, err)
		return
	}
	if report == nil {
		h.systemError(w, r, health.ErrAggregation)
		return
	}

	if err := response.JSON(w, r, report.HTTPStatus, toHealthModel(report)); err != nil {
		h.systemError(w, r, err)
	}
}

func (h *HealthHandler) systemError(w http.ResponseWriter, r *http.Request, err error) {
	h.log.Error().
		Err(err).
		Str("request_id", middleware.GetRequestID(r.Context())).
		Msg("health aggregation failed")
	response.InternalError(w, r, SystemErrorDetail)
}

func toHealthModel(report *health.Report) models.Health {
	services := make(map[string]models.ServiceHealth, len(report.Services))
	for name, st := range report.Services {
		sh := models.ServiceHealth{
			Status:      string(st.State),
			Message:     st.Message,
			BotUsername: st.BotUsername,
		}
		if st.BotID != 0 {
			id := st.BotID
			sh.BotID = &id
		}
		services[name] = sh
	}

	return models.Health{
		Status:     string(report.Status),
		Timestamp:  models.EpochSeconds(report.Timestamp),
		Services:   services,
		HTTPStatus: report.HTTPStatus,
	}
}
