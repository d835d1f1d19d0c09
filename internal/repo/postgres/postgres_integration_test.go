//go:build integration

package postgres

// go test -tags=integration ./internal/repo/postgres -count=1

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/uptimemonitor/internal/domain"
	"github.com/hamed0406/uptimemonitor/internal/repo"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set; skipping Postgres integration test")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	store, err := New(ctx, dsn, zap.NewNop())
	if err != nil {
		t.Fatalf("New store: %v", err)
	}
	t.Cleanup(store.Close)
	if err := store.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	return store
}

func TestPostgresStore_DomainLifecycle(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	// Unique name per run to avoid UNIQUE(name) collisions with previous runs.
	name := fmt.Sprintf("test-%d.example.com", time.Now().UTC().UnixNano())
	d := &domain.Domain{Name: name, IsUp: true, CertEnabled: true}
	if err := store.UpsertDomain(ctx, d); err != nil {
		t.Fatalf("UpsertDomain: %v", err)
	}
	if d.ID == 0 {
		t.Fatalf("expected ID to be set")
	}
	t.Cleanup(func() { _ = store.DeleteDomain(context.Background(), d.ID) })

	dup := &domain.Domain{Name: name}
	if err := store.UpsertDomain(ctx, dup); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("duplicate name: got %v, want ErrConflict", err)
	}

	days := 12
	d.IsUp = false
	d.Cert.DaysUntilExpiry = &days
	if err := store.UpsertDomain(ctx, d); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := store.GetDomainByName(ctx, name)
	if err != nil || got == nil {
		t.Fatalf("GetDomainByName: %v %v", got, err)
	}
	if got.IsUp || got.Cert.DaysUntilExpiry == nil || *got.Cert.DaysUntilExpiry != 12 {
		t.Fatalf("update not persisted: %+v", got)
	}

	missing, err := store.GetDomain(ctx, -1)
	if err != nil || missing != nil {
		t.Fatalf("missing domain: got %v %v", missing, err)
	}
}

func TestPostgresStore_IncidentTxRollback(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	id := domain.DomainID(time.Now().UnixNano() % 1_000_000_000)

	boom := errors.New("boom")
	err := store.InTx(ctx, func(tx repo.Tx) error {
		inc := &domain.Incident{DomainID: id, Start: time.Now().UTC()}
		if err := tx.UpsertIncident(ctx, inc); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("InTx: got %v, want boom", err)
	}
	open, err := store.OpenIncident(ctx, id)
	if err != nil {
		t.Fatalf("OpenIncident: %v", err)
	}
	if open != nil {
		t.Fatalf("rolled back incident is visible: %+v", open)
	}

	start := time.Now().UTC().Add(-time.Minute).Truncate(time.Microsecond)
	inc := &domain.Incident{DomainID: id, Start: start}
	if err := store.UpsertIncident(ctx, inc); err != nil {
		t.Fatalf("insert: %v", err)
	}
	t.Cleanup(func() { _ = store.DeleteIncident(context.Background(), inc.ID) })

	second := &domain.Incident{DomainID: id, Start: start}
	if err := store.UpsertIncident(ctx, second); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("second open incident: got %v, want ErrConflict", err)
	}

	inc.Close(start.Add(90 * time.Second))
	if err := store.UpsertIncident(ctx, inc); err != nil {
		t.Fatalf("close: %v", err)
	}
	list, err := store.Incidents(ctx, repo.IncidentQuery{DomainID: id, From: start.Add(-time.Second)})
	if err != nil {
		t.Fatalf("Incidents: %v", err)
	}
	if len(list) != 1 || !list[0].Resolved || list[0].Duration() != 90 {
		t.Fatalf("unexpected incidents: %+v", list)
	}
}

func TestPostgresStore_ReceiversAndStats(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	tok := fmt.Sprintf("tok-%d", time.Now().UnixNano())
	created, err := store.AddReceiver(ctx, &domain.Receiver{Token: tok, Platform: "android"})
	if err != nil || !created {
		t.Fatalf("AddReceiver: created=%v err=%v", created, err)
	}
	created, err = store.AddReceiver(ctx, &domain.Receiver{Token: tok, Platform: "ios"})
	if err != nil || created {
		t.Fatalf("AddReceiver again: created=%v err=%v", created, err)
	}

	id := domain.DomainID(time.Now().UnixNano()%1_000_000_000 + 1_000_000_000)
	day := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 2; i++ {
		if err := store.AddDailyStat(ctx, domain.DailyStat{DomainID: id, Day: day, Incidents: 1, DowntimeSeconds: 30}); err != nil {
			t.Fatalf("AddDailyStat: %v", err)
		}
	}
	stats, err := store.ListDailyStats(ctx, id)
	if err != nil {
		t.Fatalf("ListDailyStats: %v", err)
	}
	if len(stats) != 1 || stats[0].Incidents != 2 || stats[0].DowntimeSeconds != 60 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}
