/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package api is the HTTP control surface for smart lists.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/friendsincode/smartlists/internal/audit"
	"github.com/friendsincode/smartlists/internal/engine"
	"github.com/friendsincode/smartlists/internal/events"
	"github.com/friendsincode/smartlists/internal/integrity"
	"github.com/friendsincode/smartlists/internal/logbuffer"
	"github.com/friendsincode/smartlists/internal/models"
	"github.com/friendsincode/smartlists/internal/refresh"
	"github.com/friendsincode/smartlists/internal/scheduler"
	"github.com/friendsincode/smartlists/internal/status"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// Lists is the list management service.
type Lists interface {
	Get(ctx context.Context, id string) (*models.ListSpec, error)
	List(ctx context.Context) ([]*models.ListSpec, error)
	Validate(spec *models.ListSpec) []error
	Create(ctx context.Context, spec *models.ListSpec) (*models.ListSpec, error)
	Update(ctx context.Context, spec *models.ListSpec) (*models.ListSpec, error)
	Delete(ctx context.Context, id string, removeArtifacts bool) error
	Refresh(ctx context.Context, id string, trigger models.Trigger) error
	Preview(ctx context.Context, spec *models.ListSpec, userID string, limit int) (engine.FilterResult, error)
}

// Batches runs and reports on batch refreshes.
type Batches interface {
	BatchRefresh(ctx context.Context, trigger models.Trigger) ([]models.RefreshResult, error)
	BatchRunning() bool
	QueueLen() int
}

// Schedule describes the cron trigger.
type Schedule interface {
	LastRun() (scheduler.RunInfo, bool)
	Next(t time.Time) time.Time
}

// Leadership reports scheduler leadership.
type Leadership interface {
	IsLeader() bool
	InstanceID() string
}

// AuditTrail answers audit log queries.
type AuditTrail interface {
	Query(ctx context.Context, filters audit.QueryFilters) ([]models.AuditLog, int64, error)
}

// Integrity scans and repairs list mapping drift.
type Integrity interface {
	Scan(ctx context.Context) (*integrity.Report, error)
	Repair(ctx context.Context, input integrity.RepairInput) (integrity.RepairResult, error)
}

// Deps wires the API to the services it exposes. Schedule, Leader, Audit,
// Logs and Integrity are optional; their routes are only mounted when set.
type Deps struct {
	Lists     Lists
	Batches   Batches
	Tracker   *status.Tracker
	Engine    *engine.Engine
	Bus       *events.Bus
	Schedule  Schedule
	Leader    Leadership
	Audit     AuditTrail
	Logs      *logbuffer.Buffer
	Integrity Integrity
}

// API exposes HTTP handlers.
type API struct {
	lists    Lists
	batches  Batches
	tracker  *status.Tracker
	engine   *engine.Engine
	bus      *events.Bus
	schedule Schedule
	leader   Leadership
	audit    AuditTrail
	logs     *logbuffer.Buffer
	checks   Integrity
	logger   zerolog.Logger
}

// New creates the API.
func New(deps Deps, logger zerolog.Logger) *API {
	return &API{
		lists:    deps.Lists,
		batches:  deps.Batches,
		tracker:  deps.Tracker,
		engine:   deps.Engine,
		bus:      deps.Bus,
		schedule: deps.Schedule,
		leader:   deps.Leader,
		audit:    deps.Audit,
		logs:     deps.Logs,
		checks:   deps.Integrity,
		logger:   logger.With().Str("component", "api").Logger(),
	}
}

// Routes mounts the API under /api/v1.
func (a *API) Routes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", a.handleHealth)
		r.Get("/fields", a.handleFields)
		r.Get("/status", a.handleStatus)
		r.Get("/events", a.handleEvents)
		r.Post("/refresh", a.handleBatchRefresh)

		if a.audit != nil {
			r.Get("/audit", a.handleAudit)
		}
		if a.logs != nil {
			r.Get("/logs", a.handleLogs)
		}
		if a.checks != nil {
			r.Get("/integrity", a.handleIntegrityScan)
			r.Post("/integrity/repair", a.handleIntegrityRepair)
		}

		r.Route("/lists", func(r chi.Router) {
			r.Get("/", a.handleListsList)
			r.Post("/", a.handleListsCreate)
			r.Post("/validate", a.handleListsValidate)
			r.Post("/preview", a.handleListsPreview)
			r.Route("/{listID}", func(r chi.Router) {
				r.Get("/", a.handleListsGet)
				r.Put("/", a.handleListsUpdate)
				r.Delete("/", a.handleListsDelete)
				r.Post("/refresh", a.handleListsRefresh)
				r.Post("/preview", a.handleListsPreviewStored)
			})
		})
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) handleFields(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.engine.FieldCatalog())
}

type schedulerStatus struct {
	NextRun time.Time          `json:"nextRun"`
	LastRun *scheduler.RunInfo `json:"lastRun,omitempty"`
}

type statusResponse struct {
	status.Snapshot
	QueueLength  int              `json:"queueLength"`
	BatchRunning bool             `json:"batchRunning"`
	Scheduler    *schedulerStatus `json:"scheduler,omitempty"`
	Leader       *bool            `json:"leader,omitempty"`
	InstanceID   string           `json:"instanceId,omitempty"`
}

func (a *API) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Snapshot:     a.tracker.Snapshot(),
		QueueLength:  a.batches.QueueLen(),
		BatchRunning: a.batches.BatchRunning(),
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "invalid_limit")
			return
		}
		resp.History = a.tracker.History(limit)
	}
	if a.schedule != nil {
		s := &schedulerStatus{NextRun: a.schedule.Next(time.Now())}
		if last, ok := a.schedule.LastRun(); ok {
			s.LastRun = &last
		}
		resp.Scheduler = s
	}
	if a.leader != nil {
		leader := a.leader.IsLeader()
		resp.Leader = &leader
		resp.InstanceID = a.leader.InstanceID()
	}
	writeJSON(w, http.StatusOK, resp)
}

type batchSummary struct {
	Lists     int                    `json:"lists"`
	Succeeded int                    `json:"succeeded"`
	Failed    int                    `json:"failed"`
	Results   []models.RefreshResult `json:"results"`
}

// handleBatchRefresh runs a manual batch. With ?async=true it returns 202
// immediately and the batch continues in the background.
func (a *API) handleBatchRefresh(w http.ResponseWriter, r *http.Request) {
	// A client disconnect must not abort a batch half way.
	ctx := context.WithoutCancel(r.Context())

	if r.URL.Query().Get("async") == "true" {
		if a.batches.BatchRunning() {
			writeError(w, http.StatusConflict, "batch_running")
			return
		}
		go func() {
			if _, err := a.batches.BatchRefresh(ctx, models.TriggerManual); err != nil {
				a.logger.Warn().Err(err).Msg("background batch refresh failed")
			}
		}()
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
		return
	}

	results, err := a.batches.BatchRefresh(ctx, models.TriggerManual)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	summary := batchSummary{Lists: len(results), Results: results}
	for _, res := range results {
		if res.Success {
			summary.Succeeded++
		} else {
			summary.Failed++
		}
	}
	writeJSON(w, http.StatusOK, summary)
}

// writeServiceError maps service errors onto HTTP responses.
func (a *API) writeServiceError(w http.ResponseWriter, err error) {
	var verr *engine.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, validationResponse{Valid: false, Issues: issueStrings(verr.Issues)})
	case errors.Is(err, refresh.ErrListNotFound):
		writeError(w, http.StatusNotFound, "not_found")
	case errors.Is(err, refresh.ErrListExists):
		writeError(w, http.StatusConflict, "list_exists")
	case errors.Is(err, refresh.ErrBatchConflict):
		writeError(w, http.StatusConflict, "batch_running")
	case errors.Is(err, refresh.ErrQueueClosed):
		writeError(w, http.StatusServiceUnavailable, "shutting_down")
	default:
		a.logger.Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal_error")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
