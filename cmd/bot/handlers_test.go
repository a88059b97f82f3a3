package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/azure/danmaku-digest-bot/internal/analysis"
	"github.com/azure/danmaku-digest-bot/internal/models"
	"github.com/azure/danmaku-digest-bot/internal/sources"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockTrigger struct {
	mock.Mock
	called chan struct{}
}

func (m *MockTrigger) RunNow(ctx context.Context) error {
	args := m.Called(ctx)
	close(m.called)
	return args.Error(0)
}

func writeDump(t *testing.T, dir, id string, dump sources.Dump) {
	t.Helper()
	data, err := json.Marshal(dump)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, id+".json"), data, 0o644))
}

func newTestRouter(t *testing.T, trigger watchlistTrigger) http.Handler {
	t.Helper()
	dir := t.TempDir()

	var messages []models.ReactionMessage
	for _, start := range []int{0, 15, 90, 105} {
		for i := 0; i < 10; i++ {
			messages = append(messages, models.ReactionMessage{TimestampSec: start + i, Text: "boss fight"})
		}
	}
	writeDump(t, dir, "BV1ok", sources.Dump{
		DurationSec: 120,
		Messages:    messages,
		Comments:    []models.Comment{{Text: "the boss fight was insane", LikeCount: 50}},
	})
	writeDump(t, dir, "BV1empty", sources.Dump{DurationSec: 120})

	svc := analysis.NewService(analysis.Options{}, sources.NewFileSource(dir), nil, nil, nil)
	return newRouter(svc, trigger)
}

func serve(h http.Handler, method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestHealthCheckHandler(t *testing.T) {
	rec := serve(newTestRouter(t, &MockTrigger{}), "GET", "/health")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"healthy"`)
}

func TestAnalyzeHandler_JSON(t *testing.T) {
	router := newTestRouter(t, &MockTrigger{})

	rec := serve(router, "GET", "/analyze/BV1ok")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp analyzeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.RunID)
	assert.True(t, strings.HasPrefix(resp.Report, "[Danmaku segments] BV1ok"))
	require.NotNil(t, resp.Artifact)
	assert.Equal(t, 40, resp.Artifact.MessageCount)
	assert.Empty(t, resp.Location)

	rec = serve(router, "GET", "/metrics")
	assert.Contains(t, rec.Body.String(), `"analyses_run": 1`)
}

func TestAnalyzeHandler_Text(t *testing.T) {
	rec := serve(newTestRouter(t, &MockTrigger{}), "GET", "/analyze/BV1empty?format=text")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "No danmaku found for BV1empty, cannot analyze.\n", rec.Body.String())
}

func TestAnalyzeHandler_Errors(t *testing.T) {
	tests := []struct {
		name   string
		target string
		status int
		body   string
	}{
		{"bad parameter", "/analyze/BV1ok?window=wide", http.StatusBadRequest, "window must be an integer"},
		{"no danmaku", "/analyze/BV1empty", http.StatusUnprocessableEntity, "no danmaku to analyze"},
		{"unknown video", "/analyze/BV1missing", http.StatusBadGateway, "failed to fetch danmaku"},
	}

	router := newTestRouter(t, &MockTrigger{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(router, "GET", tt.target)
			assert.Equal(t, tt.status, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.body)
		})
	}
}

func TestListingHandlers(t *testing.T) {
	router := newTestRouter(t, &MockTrigger{})

	rec := serve(router, "GET", "/messages/BV1ok?limit=2&from=90&to=120")
	assert.Equal(t, "Danmaku (BV1ok, first 2 of 20):\n1. [01:30] boss fight\n2. [01:31] boss fight\n", rec.Body.String())

	rec = serve(router, "GET", "/comments/BV1ok?n=5")
	assert.Equal(t, "Top comments (BV1ok, 1):\n1. [likes 50] the boss fight was insane\n", rec.Body.String())

	rec = serve(router, "GET", "/highlights/BV1ok")
	assert.True(t, strings.HasPrefix(rec.Body.String(), "Highlights: top 5 danmaku-dense windows (BV1ok)\n"))

	rec = serve(router, "GET", "/highlights/BV1ok?top=many")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTriggerHandler(t *testing.T) {
	trigger := &MockTrigger{called: make(chan struct{})}
	trigger.On("RunNow", mock.Anything).Return(nil)

	rec := serve(newTestRouter(t, trigger), "POST", "/trigger")
	assert.Equal(t, http.StatusAccepted, rec.Code)

	select {
	case <-trigger.called:
	case <-time.After(time.Second):
		t.Fatal("watchlist run was not started")
	}
	trigger.AssertExpectations(t)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusUnprocessableEntity, statusFor(analysis.ErrTooSparse))
	assert.Equal(t, http.StatusGatewayTimeout, statusFor(context.DeadlineExceeded))
	assert.Equal(t, http.StatusInternalServerError, statusFor(assert.AnError))
}
