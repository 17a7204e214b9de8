/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/friendsincode/smartlists/internal/integrity"
)

type stubChecker struct {
	findings  []integrity.Finding
	repairErr error
	repaired  []string
}

func (s *stubChecker) Scan(context.Context) (*integrity.Report, error) {
	return &integrity.Report{Total: len(s.findings), Findings: s.findings}, nil
}

func (s *stubChecker) Repair(_ context.Context, input integrity.RepairInput) (integrity.RepairResult, error) {
	if s.repairErr != nil {
		return integrity.RepairResult{}, s.repairErr
	}
	s.repaired = append(s.repaired, input.ResourceID)
	return integrity.RepairResult{Changed: true, Message: "fixed"}, nil
}

func TestCheckIntegrity(t *testing.T) {
	finding := integrity.Finding{Type: integrity.FindingOrphanMembers, Severity: "low", ResourceID: "a1", Repairable: true}

	tests := []struct {
		name      string
		findings  []integrity.Finding
		repair    bool
		repairErr error
		wantErr   bool
		wantOut   string
		repaired  int
	}{
		{name: "clean", wantOut: "no findings"},
		{name: "report only", findings: []integrity.Finding{finding}, wantErr: true, wantOut: "orphan_members"},
		{name: "repair", findings: []integrity.Finding{finding}, repair: true, wantOut: "fixed", repaired: 1},
		{name: "repair fails", findings: []integrity.Finding{finding}, repair: true, repairErr: errors.New("boom"), wantErr: true, wantOut: "repair failed: boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &stubChecker{findings: tt.findings, repairErr: tt.repairErr}
			var out bytes.Buffer
			err := checkIntegrity(context.Background(), &out, stub, tt.repair)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !strings.Contains(out.String(), tt.wantOut) {
				t.Fatalf("output %q missing %q", out.String(), tt.wantOut)
			}
			if len(stub.repaired) != tt.repaired {
				t.Fatalf("repaired = %v", stub.repaired)
			}
		})
	}
}
