package engine_test

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

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default("org-1")
	eng := engine.New(conn, cfg)
	eng.Now = func() time.Time { return time.Date(2026, 6, 6, 10, 0, 0, 0, time.UTC) }
	ctx := context.Background()
	if _, err := eng.CreateOrganization(ctx, "org-1", "Helping Hands"); err != nil {
		t.Fatalf("create org: %v", err)
	}
	if err := eng.SeedBadgeCatalog(ctx); err != nil {
		t.Fatalf("seed badges: %v", err)
	}
	if _, err := eng.CreateMember(ctx, "mem-1", "Ada"); err != nil {
		t.Fatalf("create member: %v", err)
	}
	return testEnv{Engine: eng, Ctx: ctx}
}

// mustOpenActivity creates an activity and moves it to open.
func (env testEnv) mustOpenActivity(t *testing.T, opts engine.ActivityCreateOptions) domain.Activity {
	t.Helper()
	if opts.OrgID == "" {
		opts.OrgID = "org-1"
	}
	if opts.Title == "" {
		opts.Title = "Beach cleanup"
	}
	a, err := env.Engine.CreateActivity(env.Ctx, opts)
	if err != nil {
		t.Fatalf("create activity: %v", err)
	}
	a, err = env.Engine.SetStatus(env.Ctx, a.ID, domain.ActivityStatusOpen, "staff-1")
	if err != nil {
		t.Fatalf("open activity: %v", err)
	}
	return a
}

func (env testEnv) mustMember(t *testing.T, id string) domain.Member {
	t.Helper()
	m, err := env.Engine.CreateMember(env.Ctx, id, id)
	if err != nil {
		t.Fatalf("create member %s: %v", id, err)
	}
	return m
}
