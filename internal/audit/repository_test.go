package audit

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/astroconsole/internal/infrastructure/database"
	"github.com/nerrad567/astroconsole/migrations"
)

func openRepo(t *testing.T) *SQLiteRepository {
	t.Helper()

	db, err := database.Open(context.Background(), database.Config{
		Path:        filepath.Join(t.TempDir(), "audit.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if err := db.Migrate(context.Background(), migrations.FS); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return NewSQLiteRepository(db.DB)
}

func TestRecord_GeneratesIDAndTimestamp(t *testing.T) {
	repo := openRepo(t)

	log := &CommandLog{
		SessionID: "s1",
		Source:    SourceWebSocket,
		Command:   "switch",
		Device:    "Telescope Simulator",
		Property:  "TELESCOPE_PARK",
		Keys:      json.RawMessage(`[{"key":"PARK","value":true}]`),
		Result:    ResultSent,
	}
	if err := repo.Record(context.Background(), log); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if !strings.HasPrefix(log.ID, "cmd-") {
		t.Errorf("ID = %q, want cmd- prefix", log.ID)
	}
	if log.CreatedAt.IsZero() {
		t.Error("CreatedAt not set")
	}

	res, err := repo.List(context.Background(), Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if res.Total != 1 || len(res.Logs) != 1 {
		t.Fatalf("List() total = %d, logs = %d, want 1", res.Total, len(res.Logs))
	}
	got := res.Logs[0]
	if got.Device != "Telescope Simulator" || got.Result != ResultSent {
		t.Errorf("stored log = %+v", got)
	}
	if string(got.Keys) != `[{"key":"PARK","value":true}]` {
		t.Errorf("Keys = %s", got.Keys)
	}
}

func TestRecord_EmptyKeysStoredAsArray(t *testing.T) {
	repo := openRepo(t)

	if err := repo.Record(context.Background(), &CommandLog{
		SessionID: "s1", Source: SourceWebSocket, Command: "config", Result: ResultSent,
	}); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	res, err := repo.List(context.Background(), Filter{Command: "config"})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(res.Logs) != 1 || string(res.Logs[0].Keys) != "[]" {
		t.Errorf("List() = %+v, want one log with [] keys", res.Logs)
	}
}

func TestList_FilterOrderAndPaging(t *testing.T) {
	repo := openRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 10, 16, 20, 0, 0, 0, time.UTC)

	entries := []CommandLog{
		{Device: "CCD Simulator", Command: "number", Source: SourceWebSocket},
		{Device: "Telescope Simulator", Command: "switch", Source: SourceMQTT},
		{Device: "Telescope Simulator", Command: "number", Source: SourceWebSocket},
	}
	for i := range entries {
		e := entries[i]
		e.SessionID = "s1"
		e.Result = ResultSent
		e.CreatedAt = base.Add(time.Duration(i) * time.Second)
		if err := repo.Record(ctx, &e); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	tests := []struct {
		name      string
		filter    Filter
		wantTotal int
		wantFirst string
	}{
		{"all newest first", Filter{}, 3, "number"},
		{"by device", Filter{Device: "Telescope Simulator"}, 2, "number"},
		{"by source", Filter{Source: SourceMQTT}, 1, "switch"},
		{"by command", Filter{Command: "number"}, 2, "number"},
		{"offset", Filter{Offset: 1, Limit: 1}, 3, "switch"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := repo.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if res.Total != tt.wantTotal {
				t.Errorf("Total = %d, want %d", res.Total, tt.wantTotal)
			}
			if len(res.Logs) == 0 || res.Logs[0].Command != tt.wantFirst {
				t.Errorf("first log = %+v, want command %q", res.Logs, tt.wantFirst)
			}
		})
	}
}

func TestList_ClampsLimit(t *testing.T) {
	repo := openRepo(t)

	res, err := repo.List(context.Background(), Filter{Limit: 10000, Offset: -5})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if res.Limit != 200 || res.Offset != 0 {
		t.Errorf("Limit = %d, Offset = %d, want 200, 0", res.Limit, res.Offset)
	}
}
