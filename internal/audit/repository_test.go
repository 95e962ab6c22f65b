package audit_test

import (
	"context"
	"testing"
	"time"

	"github.com/nerrad567/wa-gateway/internal/audit"
	"github.com/nerrad567/wa-gateway/internal/infrastructure/config"
	"github.com/nerrad567/wa-gateway/internal/infrastructure/database"
	"github.com/nerrad567/wa-gateway/migrations"
)

func newRepo(t *testing.T) *audit.SQLiteRepository {
	t.Helper()
	ctx := context.Background()
	db, err := database.Open(ctx, config.DatabaseConfig{Path: database.MemoryPath})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := db.Migrate(ctx, migrations.Source()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return audit.NewSQLiteRepository(db.DB)
}

func TestCreate_FillsDefaults(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	e := &audit.Entry{Action: audit.ActionProvision, TenantID: "t1", Source: audit.SourceAPI}
	if err := repo.Create(ctx, e); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if len(e.ID) != len("aud-")+8 || e.ID[:4] != "aud-" {
		t.Errorf("ID = %q", e.ID)
	}
	if e.Outcome != audit.OutcomeOK {
		t.Errorf("Outcome = %q, want ok", e.Outcome)
	}
	if e.CreatedAt.IsZero() {
		t.Error("CreatedAt not set")
	}

	res, err := repo.List(ctx, audit.Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if res.Total != 1 || len(res.Entries) != 1 {
		t.Fatalf("List() = %+v", res)
	}
	got := res.Entries[0]
	if got.ID != e.ID || got.TenantID != "t1" || got.Subject != "" || got.Details != nil {
		t.Errorf("entry = %+v", got)
	}
}

func TestList_FiltersAndOrder(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	seed := []audit.Entry{
		{Action: audit.ActionSendText, TenantID: "t1", Subject: "62811@s.whatsapp.net", Source: audit.SourceAPI, CreatedAt: base},
		{Action: audit.ActionSendText, TenantID: "t2", Source: audit.SourceAPI, Outcome: audit.OutcomeFailed,
			Details: map[string]any{"error": "recipient_not_found"}, CreatedAt: base.Add(time.Minute)},
		{Action: audit.ActionLogout, TenantID: "t1", Source: audit.SourceMQTT, CreatedAt: base.Add(2 * time.Minute)},
		{Action: audit.ActionCleanup, Source: audit.SourceSystem, CreatedAt: base.Add(3 * time.Minute)},
	}
	for i := range seed {
		if err := repo.Create(ctx, &seed[i]); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		name    string
		filter  audit.Filter
		wantIDs []string
	}{
		{"all newest first", audit.Filter{}, []string{seed[3].ID, seed[2].ID, seed[1].ID, seed[0].ID}},
		{"by tenant", audit.Filter{TenantID: "t1"}, []string{seed[2].ID, seed[0].ID}},
		{"by action", audit.Filter{Action: audit.ActionSendText}, []string{seed[1].ID, seed[0].ID}},
		{"by outcome", audit.Filter{Outcome: audit.OutcomeFailed}, []string{seed[1].ID}},
		{"since", audit.Filter{Since: base.Add(2 * time.Minute)}, []string{seed[3].ID, seed[2].ID}},
		{"paged", audit.Filter{Limit: 1, Offset: 1}, []string{seed[2].ID}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := repo.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if len(res.Entries) != len(tt.wantIDs) {
				t.Fatalf("got %d entries, want %d", len(res.Entries), len(tt.wantIDs))
			}
			for i, id := range tt.wantIDs {
				if res.Entries[i].ID != id {
					t.Errorf("entry[%d] = %s, want %s", i, res.Entries[i].ID, id)
				}
			}
		})
	}

	res, err := repo.List(ctx, audit.Filter{Outcome: audit.OutcomeFailed})
	if err != nil {
		t.Fatal(err)
	}
	if res.Entries[0].Details["error"] != "recipient_not_found" {
		t.Errorf("details = %v", res.Entries[0].Details)
	}
}

func TestList_ClampsLimit(t *testing.T) {
	repo := newRepo(t)

	tests := []struct {
		in, want int
	}{
		{0, 50},
		{-3, 50},
		{500, 200},
		{20, 20},
	}
	for _, tt := range tests {
		res, err := repo.List(context.Background(), audit.Filter{Limit: tt.in, Offset: -1})
		if err != nil {
			t.Fatal(err)
		}
		if res.Limit != tt.want || res.Offset != 0 {
			t.Errorf("Limit %d -> %d (offset %d), want %d", tt.in, res.Limit, res.Offset, tt.want)
		}
		if res.Entries == nil {
			t.Error("Entries = nil, want empty slice")
		}
	}
}

func TestPrune(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for _, age := range []time.Duration{48 * time.Hour, 25 * time.Hour, time.Hour} {
		e := &audit.Entry{Action: audit.ActionSendText, Source: audit.SourceAPI, CreatedAt: now.Add(-age)}
		if err := repo.Create(ctx, e); err != nil {
			t.Fatal(err)
		}
	}

	n, err := repo.Prune(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if n != 2 {
		t.Errorf("Prune() removed %d, want 2", n)
	}

	res, err := repo.List(ctx, audit.Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Total != 1 {
		t.Errorf("remaining = %d, want 1", res.Total)
	}
}
