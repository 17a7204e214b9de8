/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/friendsincode/smartlists/internal/catalog"
	"github.com/friendsincode/smartlists/internal/engine"
	"github.com/friendsincode/smartlists/internal/models"
)

// defaultPreviewLimit caps preview responses when the caller sets no limit.
const defaultPreviewLimit = 100

type validationResponse struct {
	Valid  bool     `json:"valid"`
	Issues []string `json:"issues,omitempty"`
}

type previewRequest struct {
	Spec   *models.ListSpec `json:"spec"`
	UserID string           `json:"userId"`
	Limit  int              `json:"limit"`
}

type previewItem struct {
	ID             string            `json:"id"`
	Name           string            `json:"name"`
	Type           catalog.MediaType `json:"type"`
	ProductionYear int               `json:"productionYear,omitempty"`
	RuntimeMinutes float64           `json:"runtimeMinutes"`
}

type previewResponse struct {
	Matched        int           `json:"matched"`
	Count          int           `json:"count"`
	RuntimeMinutes float64       `json:"runtimeMinutes"`
	Items          []previewItem `json:"items"`
}

// decodeSpec reads a list body. Lists are enabled unless the body says otherwise.
func decodeSpec(w http.ResponseWriter, r *http.Request) (*models.ListSpec, bool) {
	spec := &models.ListSpec{Enabled: true}
	if err := decodeJSON(w, r, spec); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return nil, false
	}
	return spec, true
}

func (a *API) handleListsList(w http.ResponseWriter, r *http.Request) {
	lists, err := a.lists.List(r.Context())
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	if lists == nil {
		lists = []*models.ListSpec{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"lists": lists})
}

func (a *API) handleListsGet(w http.ResponseWriter, r *http.Request) {
	spec, err := a.lists.Get(r.Context(), chi.URLParam(r, "listID"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, spec)
}

func (a *API) handleListsCreate(w http.ResponseWriter, r *http.Request) {
	spec, ok := decodeSpec(w, r)
	if !ok {
		return
	}
	created, err := a.lists.Create(r.Context(), spec)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (a *API) handleListsUpdate(w http.ResponseWriter, r *http.Request) {
	spec, ok := decodeSpec(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "listID")
	if spec.ID != "" && spec.ID != id {
		writeError(w, http.StatusBadRequest, "id_mismatch")
		return
	}
	spec.ID = id

	updated, err := a.lists.Update(r.Context(), spec)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (a *API) handleListsDelete(w http.ResponseWriter, r *http.Request) {
	removeArtifacts := false
	if raw := r.URL.Query().Get("removeArtifacts"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_remove_artifacts")
			return
		}
		removeArtifacts = v
	}
	if err := a.lists.Delete(r.Context(), chi.URLParam(r, "listID"), removeArtifacts); err != nil {
		a.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleListsRefresh(w http.ResponseWriter, r *http.Request) {
	if err := a.lists.Refresh(r.Context(), chi.URLParam(r, "listID"), models.TriggerManual); err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

func (a *API) handleListsValidate(w http.ResponseWriter, r *http.Request) {
	spec, ok := decodeSpec(w, r)
	if !ok {
		return
	}
	issues := a.lists.Validate(spec)
	writeJSON(w, http.StatusOK, validationResponse{Valid: len(issues) == 0, Issues: issueStrings(issues)})
}

func (a *API) handleListsPreview(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.Spec == nil {
		writeError(w, http.StatusBadRequest, "spec_required")
		return
	}
	a.preview(w, r, req.Spec, req.UserID, req.Limit)
}

func (a *API) handleListsPreviewStored(w http.ResponseWriter, r *http.Request) {
	spec, err := a.lists.Get(r.Context(), chi.URLParam(r, "listID"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_limit")
			return
		}
	}
	a.preview(w, r, spec, r.URL.Query().Get("userId"), limit)
}

func (a *API) preview(w http.ResponseWriter, r *http.Request, spec *models.ListSpec, userID string, limit int) {
	if limit <= 0 {
		limit = defaultPreviewLimit
	}
	res, err := a.lists.Preview(r.Context(), spec, userID, limit)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPreviewResponse(res))
}

func toPreviewResponse(res engine.FilterResult) previewResponse {
	out := previewResponse{
		Matched: res.Matched,
		Count:   len(res.Items),
		Items:   make([]previewItem, 0, len(res.Items)),
	}
	for _, it := range res.Items {
		minutes := it.RuntimeMinutes()
		out.RuntimeMinutes += minutes
		out.Items = append(out.Items, previewItem{
			ID:             it.ID,
			Name:           it.Name,
			Type:           it.Type,
			ProductionYear: it.ProductionYear,
			RuntimeMinutes: minutes,
		})
	}
	return out
}

func issueStrings(issues []error) []string {
	if len(issues) == 0 {
		return nil
	}
	out := make([]string, len(issues))
	for i, err := range issues {
		out[i] = err.Error()
	}
	return out
}
