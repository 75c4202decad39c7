package server

import (
	"context"
	"testing"
	"time"

	"voluna/internal/config"
	"voluna/internal/db"
	"voluna/internal/domain"
	"voluna/internal/engine"
	"voluna/internal/migrate"
)

func newCounterEngine(t *testing.T) (engine.Engine, context.Context) {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, config.Default("org-1"))
	e.Now = func() time.Time { return time.Date(2026, 6, 6, 10, 0, 0, 0, time.UTC) }
	ctx := context.Background()
	if _, err := e.CreateOrganization(ctx, "org-1", ""); err != nil {
		t.Fatal(err)
	}
	return e, ctx
}

func TestApplicantCounterDrain(t *testing.T) {
	e, ctx := newCounterEngine(t)
	a, err := e.CreateActivity(ctx, engine.ActivityCreateOptions{OrgID: "org-1", Type: domain.ActivityTypeLocal, Title: "Cleanup"})
	if err != nil {
		t.Fatal(err)
	}
	for _, id := range []string{"m1", "m2"} {
		if _, err := e.CreateMember(ctx, id, id); err != nil {
			t.Fatal(err)
		}
		if _, err := e.CreateApplication(ctx, a.ID, id, ""); err != nil {
			t.Fatal(err)
		}
	}

	if err := DrainApplicantCounter(ctx, e); err != nil {
		t.Fatalf("drain: %v", err)
	}
	got, err := e.Repo.GetActivity(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ApplicantCount != 2 {
		t.Fatalf("expected applicant count 2, got %d", got.ApplicantCount)
	}

	// the cursor is durable: a second drain applies nothing
	if err := DrainApplicantCounter(ctx, e); err != nil {
		t.Fatalf("re-drain: %v", err)
	}
	got, _ = e.Repo.GetActivity(ctx, a.ID)
	if got.ApplicantCount != 2 {
		t.Fatalf("re-drain moved the count: %d", got.ApplicantCount)
	}
}

func TestApplicantCounterToleratesDeletedActivity(t *testing.T) {
	e, ctx := newCounterEngine(t)
	a, err := e.CreateActivity(ctx, engine.ActivityCreateOptions{OrgID: "org-1", Type: domain.ActivityTypeEvent, Title: "Gala"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.CreateMember(ctx, "m1", "m1"); err != nil {
		t.Fatal(err)
	}
	if _, err := e.CreateApplication(ctx, a.ID, "m1", ""); err != nil {
		t.Fatal(err)
	}
	// cascade delete before the counter ever ran: the created and deleted
	// events both target a row that no longer exists
	if err := e.DeleteActivity(ctx, a.ID, "staff-1"); err != nil {
		t.Fatal(err)
	}
	if err := DrainApplicantCounter(ctx, e); err != nil {
		t.Fatalf("drain over deleted activity: %v", err)
	}
}
