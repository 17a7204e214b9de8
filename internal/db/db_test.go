/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package db

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/friendsincode/smartlists/internal/config"
	"github.com/friendsincode/smartlists/internal/models"
	"github.com/friendsincode/smartlists/internal/store"
	"github.com/friendsincode/smartlists/internal/telemetry"
)

func connectMemory(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{DBBackend: config.DatabaseSQLite, DBDSN: "file:" + t.Name() + "?mode=memory&cache=shared"}
}

func TestConnectRejectsUnknownBackend(t *testing.T) {
	if _, err := Connect(&config.Config{DBBackend: "oracle", DBDSN: "x"}); err == nil {
		t.Fatal("expected error")
	}
}

func TestMigrateCreatesTablesAndPrunesOrphans(t *testing.T) {
	database, err := Connect(connectMemory(t))
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer Close(database)

	if err := Migrate(database); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	for _, table := range []string{"catalog_items", "catalog_user_data", "smart_lists", "smart_list_artifacts", "artifacts", "artifact_members", "audit_logs"} {
		if !database.Migrator().HasTable(table) {
			t.Errorf("missing table %s", table)
		}
	}

	st := store.New(database, zerolog.Nop())
	ctx := context.Background()
	if err := st.Save(ctx, &models.ListSpec{
		ID: "kept", Name: "Kept", Kind: models.ListKindPlaylist, Enabled: true,
		Artifacts: map[string]string{"u1": "a1"},
	}); err != nil {
		t.Fatal(err)
	}
	orphan := store.ArtifactRecord{ListID: "gone", UserID: "u1", ArtifactID: "a2"}
	if err := database.Create(&orphan).Error; err != nil {
		t.Fatal(err)
	}

	if err := Migrate(database); err != nil {
		t.Fatalf("second migrate: %v", err)
	}

	var count int64
	database.Model(&store.ArtifactRecord{}).Count(&count)
	if count != 1 {
		t.Fatalf("expected only the kept mapping, got %d rows", count)
	}
}

func TestCallbacksRecordQueries(t *testing.T) {
	database, err := Connect(connectMemory(t))
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer Close(database)
	if err := Migrate(database); err != nil {
		t.Fatal(err)
	}

	before := testutil.CollectAndCount(telemetry.DatabaseQueryDuration)
	var recs []store.ListRecord
	if err := database.Find(&recs).Error; err != nil {
		t.Fatal(err)
	}
	if after := testutil.CollectAndCount(telemetry.DatabaseQueryDuration); after < before || after == 0 {
		t.Fatalf("expected query duration series, got %d", after)
	}

	UpdateConnectionMetrics(database)
	if got := testutil.ToFloat64(telemetry.DatabaseConnectionsActive); got < 1 {
		t.Fatalf("active connections = %v", got)
	}
}
