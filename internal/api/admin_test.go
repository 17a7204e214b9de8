/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/friendsincode/smartlists/internal/audit"
	"github.com/friendsincode/smartlists/internal/integrity"
	"github.com/friendsincode/smartlists/internal/logbuffer"
	"github.com/friendsincode/smartlists/internal/models"
)

type fakeAudit struct {
	got audit.QueryFilters
}

func (f *fakeAudit) Query(_ context.Context, filters audit.QueryFilters) ([]models.AuditLog, int64, error) {
	f.got = filters
	return []models.AuditLog{{ID: "a1", Action: models.AuditActionListCreate, ResourceID: "l1"}}, 7, nil
}

type fakeIntegrity struct {
	repaired []integrity.RepairInput
}

func (f *fakeIntegrity) Scan(context.Context) (*integrity.Report, error) {
	return &integrity.Report{
		Total:    1,
		ByType:   map[integrity.FindingType]int{integrity.FindingOrphanMembers: 1},
		Findings: []integrity.Finding{{ID: "orphan_members|x", Type: integrity.FindingOrphanMembers, ResourceID: "x"}},
	}, nil
}

func (f *fakeIntegrity) Repair(_ context.Context, input integrity.RepairInput) (integrity.RepairResult, error) {
	if input.Type == "bogus" {
		return integrity.RepairResult{}, errors.New("unsupported finding type")
	}
	f.repaired = append(f.repaired, input)
	return integrity.RepairResult{Changed: true, Message: "deleted orphan member rows"}, nil
}

func adminRouter(deps Deps) http.Handler {
	r := chi.NewRouter()
	New(deps, zerolog.Nop()).Routes(r)
	return r
}

func serve(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(method, target, strings.NewReader(body)))
	return rr
}

func TestAdminRoutesOnlyMountedWhenConfigured(t *testing.T) {
	h := adminRouter(Deps{})
	for _, path := range []string{"/api/v1/audit", "/api/v1/logs", "/api/v1/integrity"} {
		if rr := serve(h, http.MethodGet, path, ""); rr.Code != http.StatusNotFound {
			t.Errorf("GET %s = %d, want 404", path, rr.Code)
		}
	}
}

func TestAuditEndpoint(t *testing.T) {
	fa := &fakeAudit{}
	h := adminRouter(Deps{Audit: fa})

	rr := serve(h, http.MethodGet, "/api/v1/audit?listId=l1&action=list.create&limit=1000&offset=5&since=2026-01-02T03:04:05Z", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
	if fa.got.ResourceID == nil || *fa.got.ResourceID != "l1" {
		t.Fatalf("resource filter = %v", fa.got.ResourceID)
	}
	if fa.got.Action == nil || *fa.got.Action != models.AuditActionListCreate {
		t.Fatalf("action filter = %v", fa.got.Action)
	}
	if fa.got.Limit != maxAuditLimit || fa.got.Offset != 5 {
		t.Fatalf("limit/offset = %d/%d", fa.got.Limit, fa.got.Offset)
	}
	if fa.got.StartTime == nil || !fa.got.StartTime.Equal(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)) {
		t.Fatalf("since = %v", fa.got.StartTime)
	}

	var resp auditResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Total != 7 || len(resp.Entries) != 1 || resp.Entries[0].ID != "a1" {
		t.Fatalf("response = %+v", resp)
	}
}

func TestAuditEndpointRejectsBadParams(t *testing.T) {
	h := adminRouter(Deps{Audit: &fakeAudit{}})
	tests := []struct {
		query string
		code  string
	}{
		{"limit=abc", "invalid_limit"},
		{"limit=-1", "invalid_limit"},
		{"offset=x", "invalid_offset"},
		{"since=yesterday", "invalid_since"},
	}
	for _, tt := range tests {
		rr := serve(h, http.MethodGet, "/api/v1/audit?"+tt.query, "")
		if rr.Code != http.StatusBadRequest || !strings.Contains(rr.Body.String(), tt.code) {
			t.Errorf("%s: status = %d body=%s", tt.query, rr.Code, rr.Body.String())
		}
	}
}

func TestLogsEndpoint(t *testing.T) {
	buf := logbuffer.New(10)
	buf.Add(logbuffer.Entry{Timestamp: time.Now(), Level: "info", Message: "batch started", Component: "refresh"})
	buf.Add(logbuffer.Entry{Timestamp: time.Now(), Level: "warn", Message: "regex timed out", Component: "engine", ListID: "l1"})
	buf.Add(logbuffer.Entry{Timestamp: time.Now(), Level: "info", Message: "list refreshed", Component: "refresh", ListID: "l1"})
	h := adminRouter(Deps{Logs: buf})

	rr := serve(h, http.MethodGet, "/api/v1/logs?listId=l1&limit=1", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var resp struct {
		Entries []logbuffer.Entry `json:"entries"`
		Stats   logbuffer.Stats   `json:"stats"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Entries) != 1 || resp.Entries[0].Message != "list refreshed" {
		t.Fatalf("entries = %+v", resp.Entries)
	}
	if resp.Stats.Count != 3 {
		t.Fatalf("stats = %+v", resp.Stats)
	}

	if rr := serve(h, http.MethodGet, "/api/v1/logs?since=nope", ""); rr.Code != http.StatusBadRequest {
		t.Fatalf("bad since status = %d", rr.Code)
	}
}

func TestIntegrityEndpoints(t *testing.T) {
	fi := &fakeIntegrity{}
	h := adminRouter(Deps{Integrity: fi})

	rr := serve(h, http.MethodGet, "/api/v1/integrity", "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"orphan_members"`) {
		t.Fatalf("scan status = %d body=%s", rr.Code, rr.Body.String())
	}

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"repaired", `{"type":"orphan_members","resourceId":"x"}`, http.StatusOK},
		{"missing resource", `{"type":"orphan_members"}`, http.StatusBadRequest},
		{"bad json", `{`, http.StatusBadRequest},
		{"unsupported", `{"type":"bogus","resourceId":"x"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := serve(h, http.MethodPost, "/api/v1/integrity/repair", tt.body)
			if rr.Code != tt.status {
				t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
			}
		})
	}
	if len(fi.repaired) != 1 || fi.repaired[0].ResourceID != "x" {
		t.Fatalf("repaired = %+v", fi.repaired)
	}
}
