package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/azure/danmaku-digest-bot/internal/analysis"
	"github.com/azure/danmaku-digest-bot/internal/config"
	"github.com/azure/danmaku-digest-bot/internal/models"
	"github.com/azure/danmaku-digest-bot/internal/scheduler"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// analyzeTimeout bounds one synchronous /analyze request
const analyzeTimeout = 10 * time.Minute

// watchlistTrigger starts a watchlist run
type watchlistTrigger interface {
	RunNow(ctx context.Context) error
}

type analyzeResponse struct {
	RunID    string                 `json:"run_id"`
	Report   string                 `json:"report"`
	Location string                 `json:"location,omitempty"`
	Artifact *models.ExportArtifact `json:"artifact"`
}

func newRouter(svc *analysis.Service, trigger watchlistTrigger) *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/health", healthCheckHandler).Methods("GET")
	router.HandleFunc("/metrics", metricsHandler(svc)).Methods("GET")
	router.HandleFunc("/trigger", triggerHandler(trigger)).Methods("POST")

	router.HandleFunc("/analyze/{id}", analyzeHandler(svc)).Methods("GET", "POST")
	router.HandleFunc("/messages/{id}", messagesHandler(svc)).Methods("GET")
	router.HandleFunc("/comments/{id}", commentsHandler(svc)).Methods("GET")
	router.HandleFunc("/highlights/{id}", highlightsHandler(svc)).Methods("GET")

	return router
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy","timestamp":"` + time.Now().Format(time.RFC3339) + `"}`))
}

func metricsHandler(svc *analysis.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(svc.GetMetrics()))
	}
}

func triggerHandler(trigger watchlistTrigger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		go func() {
			err := trigger.RunNow(context.Background())
			if errors.Is(err, scheduler.ErrRunInProgress) {
				logrus.Warn("Manual trigger ignored, a watchlist run is in progress")
				return
			}
			if err != nil {
				logrus.Errorf("Manual watchlist trigger failed: %v", err)
			}
		}()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte(`{"message":"Watchlist run triggered"}`))
	}
}

func analyzeHandler(svc *analysis.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		params, err := paramsFromQuery(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), analyzeTimeout)
		defer cancel()

		if r.URL.Query().Get("format") == "text" {
			writeText(w, svc.AnalyzeText(ctx, id, params))
			return
		}

		result, err := svc.Analyze(ctx, id, params)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(analyzeResponse{
			RunID:    result.RunID,
			Report:   analysis.FormatReport(result),
			Location: result.Location,
			Artifact: result.Artifact,
		})
	}
}

func messagesHandler(svc *analysis.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, err := intQuery(r, "limit", "from", "to")
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeText(w, svc.ListMessages(r.Context(), mux.Vars(r)["id"], q["limit"], q["from"], q["to"]))
	}
}

func commentsHandler(svc *analysis.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, err := intQuery(r, "n")
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeText(w, svc.ListComments(r.Context(), mux.Vars(r)["id"], q["n"]))
	}
}

func highlightsHandler(svc *analysis.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, err := intQuery(r, "window", "top")
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeText(w, svc.Highlights(r.Context(), mux.Vars(r)["id"], q["window"], q["top"]))
	}
}

// paramsFromQuery reads analysis parameters; absent ones stay zero and fall
// back to the service defaults
func paramsFromQuery(r *http.Request) (config.Params, error) {
	q, err := intQuery(r, "window", "step", "min_segment", "max_segment", "max_duration", "top_comments", "merge_threshold", "batch_size")
	if err != nil {
		return config.Params{}, err
	}
	return config.Params{
		WindowSec:      q["window"],
		StepSec:        q["step"],
		MinSegmentSec:  q["min_segment"],
		MaxSegmentSec:  q["max_segment"],
		MaxDurationSec: q["max_duration"],
		TopComments:    q["top_comments"],
		MergeThreshold: q["merge_threshold"],
		BatchSize:      q["batch_size"],
	}, nil
}

func intQuery(r *http.Request, keys ...string) (map[string]int, error) {
	out := make(map[string]int, len(keys))
	for _, k := range keys {
		raw := r.URL.Query().Get(k)
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("query parameter %s must be an integer", k)
		}
		out[k] = v
	}
	return out, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, analysis.ErrInsufficientData), errors.Is(err, analysis.ErrTooSparse):
		return http.StatusUnprocessableEntity
	case errors.Is(err, analysis.ErrSourceFetch):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeText(w http.ResponseWriter, text string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(text + "\n"))
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
