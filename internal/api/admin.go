/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/friendsincode/smartlists/internal/audit"
	"github.com/friendsincode/smartlists/internal/integrity"
	"github.com/friendsincode/smartlists/internal/logbuffer"
	"github.com/friendsincode/smartlists/internal/models"
)

const (
	defaultAuditLimit = 50
	maxAuditLimit     = 500
	defaultLogLimit   = 200
)

type auditResponse struct {
	Entries []models.AuditLog `json:"entries"`
	Total   int64             `json:"total"`
	Limit   int               `json:"limit"`
	Offset  int               `json:"offset"`
}

func (a *API) handleAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit, ok := intParam(w, q.Get("limit"), defaultAuditLimit, "invalid_limit")
	if !ok {
		return
	}
	if limit > maxAuditLimit {
		limit = maxAuditLimit
	}
	offset, ok := intParam(w, q.Get("offset"), 0, "invalid_offset")
	if !ok {
		return
	}

	filters := audit.QueryFilters{Limit: limit, Offset: offset}
	if v := q.Get("listId"); v != "" {
		filters.ResourceID = &v
	}
	if v := q.Get("action"); v != "" {
		action := models.AuditAction(v)
		filters.Action = &action
	}
	if v := q.Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_since")
			return
		}
		filters.StartTime = &since
	}

	entries, total, err := a.audit.Query(r.Context(), filters)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	if entries == nil {
		entries = []models.AuditLog{}
	}
	writeJSON(w, http.StatusOK, auditResponse{Entries: entries, Total: total, Limit: limit, Offset: offset})
}

func (a *API) handleLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit, ok := intParam(w, q.Get("limit"), defaultLogLimit, "invalid_limit")
	if !ok {
		return
	}
	query := logbuffer.Query{
		Level:     q.Get("level"),
		Component: q.Get("component"),
		ListID:    q.Get("listId"),
		Search:    q.Get("search"),
		Limit:     limit,
		Newest:    true,
	}
	if v := q.Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_since")
			return
		}
		query.Since = since
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entries": a.logs.Query(query),
		"stats":   a.logs.Stats(),
	})
}

func (a *API) handleIntegrityScan(w http.ResponseWriter, r *http.Request) {
	report, err := a.checks.Scan(r.Context())
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (a *API) handleIntegrityRepair(w http.ResponseWriter, r *http.Request) {
	var input integrity.RepairInput
	if err := decodeJSON(w, r, &input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if input.Type == "" || input.ResourceID == "" {
		writeError(w, http.StatusBadRequest, "type_and_resource_required")
		return
	}

	res, err := a.checks.Repair(r.Context(), input)
	if err != nil {
		a.logger.Warn().Err(err).Str("type", string(input.Type)).Msg("integrity repair failed")
		writeError(w, http.StatusBadRequest, "repair_failed")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// intParam parses an optional non-negative integer query value.
func intParam(w http.ResponseWriter, raw string, def int, code string) (int, bool) {
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		writeError(w, http.StatusBadRequest, code)
		return 0, false
	}
	return v, true
}
