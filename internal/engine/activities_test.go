package engine_test

import (
	"errors"
	"testing"

	"voluna/internal/domain"
	"voluna/internal/engine"
)

func TestActivityLifecycle(t *testing.T) {
	env := newTestEnv(t)
	a, err := env.Engine.CreateActivity(env.Ctx, engine.ActivityCreateOptions{
		OrgID: "org-1", Type: domain.ActivityTypeLocal, Title: "Park day", StartDate: "2026-06-06",
	})
	if err != nil {
		t.Fatal(err)
	}
	if a.Status != domain.ActivityStatusDraft {
		t.Fatalf("expected draft, got %s", a.Status)
	}
	// draft and open swap freely
	a, err = env.Engine.SetStatus(env.Ctx, a.ID, domain.ActivityStatusOpen, "staff-1")
	if err != nil || a.Status != domain.ActivityStatusOpen {
		t.Fatalf("to open: %v", err)
	}
	a, err = env.Engine.SetStatus(env.Ctx, a.ID, domain.ActivityStatusDraft, "staff-1")
	if err != nil || a.Status != domain.ActivityStatusDraft {
		t.Fatalf("back to draft: %v", err)
	}
	// closing only works from open
	_, err = env.Engine.SetStatus(env.Ctx, a.ID, domain.ActivityStatusClosed, "staff-1")
	var transition engine.InvalidTransitionError
	if !errors.As(err, &transition) {
		t.Fatalf("expected InvalidTransitionError, got %v", err)
	}
	a, _ = env.Engine.SetStatus(env.Ctx, a.ID, domain.ActivityStatusOpen, "staff-1")
	a, err = env.Engine.SetStatus(env.Ctx, a.ID, domain.ActivityStatusClosed, "staff-1")
	if err != nil || a.Status != domain.ActivityStatusClosed {
		t.Fatalf("to closed: %v", err)
	}
	// closed is final
	_, err = env.Engine.SetStatus(env.Ctx, a.ID, domain.ActivityStatusOpen, "staff-1")
	if !errors.As(err, &transition) {
		t.Fatalf("expected closed to be final, got %v", err)
	}
	// same-status set is a no-op, not an error
	if _, err := env.Engine.SetStatus(env.Ctx, a.ID, domain.ActivityStatusClosed, "staff-1"); err != nil {
		t.Fatalf("same-status set: %v", err)
	}
}

func TestCreateActivityValidation(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.CreateActivity(env.Ctx, engine.ActivityCreateOptions{OrgID: "org-1", Type: "hybrid", Title: "x"})
	if err == nil {
		t.Fatalf("expected invalid type error")
	}
	_, err = env.Engine.CreateActivity(env.Ctx, engine.ActivityCreateOptions{OrgID: "org-1", Type: domain.ActivityTypeLocal, Title: "x", StartDate: "06/06/2026"})
	if err == nil {
		t.Fatalf("expected invalid date error")
	}
	_, err = env.Engine.CreateActivity(env.Ctx, engine.ActivityCreateOptions{OrgID: "nope", Type: domain.ActivityTypeLocal, Title: "x"})
	if !errors.Is(err, engine.ErrOrganizationNotFound) {
		t.Fatalf("expected ErrOrganizationNotFound, got %v", err)
	}
}

func TestCompletionTokenByType(t *testing.T) {
	env := newTestEnv(t)
	local, err := env.Engine.CreateActivity(env.Ctx, engine.ActivityCreateOptions{OrgID: "org-1", Type: domain.ActivityTypeLocal, Title: "x"})
	if err != nil {
		t.Fatal(err)
	}
	if local.CompletionToken == "" {
		t.Fatalf("local activity should carry a token")
	}
	online, err := env.Engine.CreateActivity(env.Ctx, engine.ActivityCreateOptions{OrgID: "org-1", Type: domain.ActivityTypeOnline, Title: "x"})
	if err != nil {
		t.Fatal(err)
	}
	if online.CompletionToken != "" {
		t.Fatalf("online activity must not carry a token")
	}
}

func TestStrictCloseBlocksOnPending(t *testing.T) {
	env := newTestEnv(t)
	env.Engine.Config.Validation.StrictClose = true
	a := env.mustOpenActivity(t, engine.ActivityCreateOptions{Type: domain.ActivityTypeLocal, StartDate: "2026-06-06"})
	app, err := env.Engine.CreateApplication(env.Ctx, a.ID, "mem-1", "")
	if err != nil {
		t.Fatal(err)
	}
	_, err = env.Engine.SetStatus(env.Ctx, a.ID, domain.ActivityStatusClosed, "staff-1")
	if !errors.Is(err, engine.ErrPendingApplications) {
		t.Fatalf("expected ErrPendingApplications, got %v", err)
	}
	if _, err := env.Engine.UpdateApplicationStatus(env.Ctx, a.ID, app.ID, domain.ApplicationStatusRejected, "", "staff-1"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.SetStatus(env.Ctx, a.ID, domain.ActivityStatusClosed, "staff-1"); err != nil {
		t.Fatalf("close after settling: %v", err)
	}
}

func TestPermissiveCloseIgnoresPending(t *testing.T) {
	env := newTestEnv(t)
	a := env.mustOpenActivity(t, engine.ActivityCreateOptions{Type: domain.ActivityTypeLocal, StartDate: "2026-06-06"})
	if _, err := env.Engine.CreateApplication(env.Ctx, a.ID, "mem-1", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.SetStatus(env.Ctx, a.ID, domain.ActivityStatusClosed, "staff-1"); err != nil {
		t.Fatalf("permissive close: %v", err)
	}
}

func TestDuplicateActivity(t *testing.T) {
	env := newTestEnv(t)
	sdg := 13
	a := env.mustOpenActivity(t, engine.ActivityCreateOptions{
		Type:         domain.ActivityTypeEvent,
		Title:        "Gala",
		StartDate:    "2026-06-06",
		RewardPoints: 30,
		SDG:          &sdg,
	})
	if _, err := env.Engine.CreateApplication(env.Ctx, a.ID, "mem-1", ""); err != nil {
		t.Fatal(err)
	}

	clone, err := env.Engine.DuplicateActivity(env.Ctx, a.ID, "staff-1")
	if err != nil {
		t.Fatalf("duplicate: %v", err)
	}
	if clone.ID == a.ID {
		t.Fatalf("clone kept the source id")
	}
	if clone.Status != domain.ActivityStatusDraft {
		t.Fatalf("expected draft clone, got %s", clone.Status)
	}
	if clone.Title != a.Title || clone.RewardPoints != a.RewardPoints || clone.SDG == nil || *clone.SDG != sdg {
		t.Fatalf("clone lost fields: %+v", clone)
	}
	if clone.CompletionToken == "" || clone.CompletionToken == a.CompletionToken {
		t.Fatalf("clone must mint a fresh token")
	}
	if clone.ApplicantCount != 0 {
		t.Fatalf("clone carried applicants: %d", clone.ApplicantCount)
	}
	apps, err := env.Engine.Repo.ListActivityApplications(env.Ctx, clone.ID, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(apps) != 0 {
		t.Fatalf("clone carried applications: %d", len(apps))
	}
}
