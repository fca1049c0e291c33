package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holdtrack/holdtrack/internal/api/handler"
	"github.com/holdtrack/holdtrack/internal/api/models"
	"github.com/holdtrack/holdtrack/internal/health"
)

type stubAggregator struct {
	report *health.Report
	err    error
	panics bool
}

func (s stubAggregator) Aggregate(context.Context) (*health.Report, error) {
	if s.panics {
		panic("aggregator bug")
	}
	return s.report, s.err
}

type staticReadiness bool

func (r staticReadiness) Ready() bool { return bool(r) }

func serve(h http.HandlerFunc, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, path, http.NoBody))
	return rec
}

func TestLive(t *testing.T) {
	h := handler.NewHealthHandler(nil, nil, zerolog.Nop())

	rec := serve(h.Live, "/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestReady(t *testing.T) {
	tests := []struct {
		name      string
		readiness handler.ReadinessFlag
		wantCode  int
		wantBody  string
	}{
		{"not ready", staticReadiness(false), http.StatusServiceUnavailable, "NOT_READY"},
		{"ready", staticReadiness(true), http.StatusOK, "READY"},
		{"no readiness flag", nil, http.StatusServiceUnavailable, "NOT_READY"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := handler.NewHealthHandler(nil, tt.readiness, zerolog.Nop())
			rec := serve(h.Ready, "/health/ready")
			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, tt.wantBody, rec.Body.String())
		})
	}
}

func TestHealth_Healthy(t *testing.T) {
	report := &health.Report{
		Status:    health.StateHealthy,
		Timestamp: time.Unix(1772366400, 500_000_000),
		Services: map[string]health.ServiceStatus{
			health.ServiceDatabase:          {State: health.StateHealthy, Message: "database connection successful"},
			health.ServiceBot:               {State: health.StateHealthy, Message: "bot API connection successful", BotID: 4242, BotUsername: "holdtrack_bot"},
			health.ServiceDispatcher:        {State: health.StateHealthy, Message: "dispatcher is running"},
			health.ServiceBlockchainMonitor: {State: health.StateHealthy, Message: "blockchain monitor is running"},
		},
		HTTPStatus: http.StatusOK,
	}
	h := handler.NewHealthHandler(stubAggregator{report: report}, nil, zerolog.Nop())

	rec := serve(h.Health, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body models.Health
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, http.StatusOK, body.HTTPStatus)
	assert.Equal(t, 1772366400.5, float64(body.Timestamp.Time().UnixMilli())/1000)
	require.Len(t, body.Services, 4)

	bot := body.Services[health.ServiceBot]
	require.NotNil(t, bot.BotID)
	assert.Equal(t, int64(4242), *bot.BotID)
	assert.Equal(t, "holdtrack_bot", bot.BotUsername)
	assert.Nil(t, body.Services[health.ServiceDatabase].BotID)
}

func TestHealth_UnhealthyMirrorsStatus(t *testing.T) {
	report := &health.Report{
		Status:    health.StateUnhealthy,
		Timestamp: time.Now(),
		Services: map[string]health.ServiceStatus{
			health.ServiceDatabase: {State: health.StateUnhealthy, Message: "database connection failed: connection refused"},
		},
		HTTPStatus: http.StatusServiceUnavailable,
	}
	h := handler.NewHealthHandler(stubAggregator{report: report}, nil, zerolog.Nop())

	rec := serve(h.Health, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body models.Health
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "unhealthy", body.Status)
	assert.Equal(t, http.StatusServiceUnavailable, body.HTTPStatus)
	assert.Equal(t, "unhealthy", body.Services[health.ServiceDatabase].Status)
}

func TestHealth_SystemError(t *testing.T) {
	tests := []struct {
		name    string
		checker handler.Aggregator
	}{
		{"aggregation error", stubAggregator{err: health.ErrAggregation}},
		{"other error", stubAggregator{err: errors.New("boom")}},
		{"nil report", stubAggregator{}},
		{"panic", stubAggregator{panics: true}},
		{"no checker", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := handler.NewHealthHandler(tt.checker, nil, zerolog.Nop())

			rec := serve(h.Health, "/health")
			assert.Equal(t, http.StatusInternalServerError, rec.Code)
			assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

			var problem models.Problem
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
			assert.Equal(t, handler.SystemErrorDetail, problem.Detail)
		})
	}
}
