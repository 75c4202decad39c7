package engine_test

import (
	"errors"
	"fmt"
	"testing"

	"voluna/internal/domain"
	"voluna/internal/engine"
	"voluna/internal/repo"
)

func TestCreateApplicationWritesAllMirrors(t *testing.T) {
	env := newTestEnv(t)
	a := env.mustOpenActivity(t, engine.ActivityCreateOptions{Type: domain.ActivityTypeLocal, StartDate: "2026-06-06"})

	app, err := env.Engine.CreateApplication(env.Ctx, a.ID, "mem-1", "count me in")
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if app.Status != domain.ApplicationStatusPending {
		t.Fatalf("expected pending, got %s", app.Status)
	}
	for _, mirror := range []string{repo.MirrorActivity, repo.MirrorMember, repo.MirrorOrg} {
		got, err := env.Engine.Repo.GetApplicationMirror(env.Ctx, mirror, app.ID)
		if err != nil {
			t.Fatalf("mirror %s: %v", mirror, err)
		}
		if got.Status != domain.ApplicationStatusPending || got.MemberID != "mem-1" {
			t.Fatalf("mirror %s diverged: %+v", mirror, got)
		}
	}
	org, err := env.Engine.Repo.GetOrganization(env.Ctx, "org-1")
	if err != nil {
		t.Fatal(err)
	}
	if org.TotalNewApplications != 1 {
		t.Fatalf("expected counter 1, got %d", org.TotalNewApplications)
	}
}

func TestCreateApplicationRejectsDuplicate(t *testing.T) {
	env := newTestEnv(t)
	a := env.mustOpenActivity(t, engine.ActivityCreateOptions{Type: domain.ActivityTypeLocal, StartDate: "2026-06-06"})
	if _, err := env.Engine.CreateApplication(env.Ctx, a.ID, "mem-1", ""); err != nil {
		t.Fatal(err)
	}
	_, err := env.Engine.CreateApplication(env.Ctx, a.ID, "mem-1", "again")
	if !errors.Is(err, engine.ErrDuplicateApplication) {
		t.Fatalf("expected ErrDuplicateApplication, got %v", err)
	}
}

func TestCreateApplicationUnknownTargets(t *testing.T) {
	env := newTestEnv(t)
	a := env.mustOpenActivity(t, engine.ActivityCreateOptions{Type: domain.ActivityTypeLocal, StartDate: "2026-06-06"})
	_, err := env.Engine.CreateApplication(env.Ctx, "missing", "mem-1", "")
	if !errors.Is(err, engine.ErrActivityNotFound) {
		t.Fatalf("expected ErrActivityNotFound, got %v", err)
	}
	_, err = env.Engine.CreateApplication(env.Ctx, a.ID, "ghost", "")
	if !errors.Is(err, engine.ErrMemberNotFound) {
		t.Fatalf("expected ErrMemberNotFound, got %v", err)
	}
}

func TestFirstApplicationBadge(t *testing.T) {
	env := newTestEnv(t)
	a := env.mustOpenActivity(t, engine.ActivityCreateOptions{Type: domain.ActivityTypeLocal, StartDate: "2026-06-06"})
	b := env.mustOpenActivity(t, engine.ActivityCreateOptions{Type: domain.ActivityTypeEvent, StartDate: "2026-06-07", Title: "Food drive"})

	if _, err := env.Engine.CreateApplication(env.Ctx, a.ID, "mem-1", ""); err != nil {
		t.Fatal(err)
	}
	badges, err := env.Engine.Repo.ListMemberBadges(env.Ctx, "mem-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(badges) != 1 || badges[0].BadgeID != "first-application" {
		t.Fatalf("expected first-application badge, got %+v", badges)
	}
	// second application does not grant it again
	if _, err := env.Engine.CreateApplication(env.Ctx, b.ID, "mem-1", ""); err != nil {
		t.Fatal(err)
	}
	badges, _ = env.Engine.Repo.ListMemberBadges(env.Ctx, "mem-1")
	if len(badges) != 1 {
		t.Fatalf("expected badge set unchanged, got %+v", badges)
	}
}

func TestUpdateApplicationStatusSettlesCounter(t *testing.T) {
	env := newTestEnv(t)
	a := env.mustOpenActivity(t, engine.ActivityCreateOptions{Type: domain.ActivityTypeLocal, StartDate: "2026-06-06"})
	app, err := env.Engine.CreateApplication(env.Ctx, a.ID, "mem-1", "")
	if err != nil {
		t.Fatal(err)
	}

	updated, err := env.Engine.UpdateApplicationStatus(env.Ctx, a.ID, app.ID, domain.ApplicationStatusAccepted, "welcome", "staff-1")
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if updated.Status != domain.ApplicationStatusAccepted || updated.Note != "welcome" {
		t.Fatalf("unexpected application: %+v", updated)
	}
	org, _ := env.Engine.Repo.GetOrganization(env.Ctx, "org-1")
	if org.TotalNewApplications != 0 {
		t.Fatalf("expected counter back to 0, got %d", org.TotalNewApplications)
	}
	// terminal states are final for this operation
	_, err = env.Engine.UpdateApplicationStatus(env.Ctx, a.ID, app.ID, domain.ApplicationStatusRejected, "", "staff-1")
	var transition engine.InvalidTransitionError
	if !errors.As(err, &transition) {
		t.Fatalf("expected InvalidTransitionError, got %v", err)
	}
}

func TestCascadeDeleteRemovesEverything(t *testing.T) {
	env := newTestEnv(t)
	a := env.mustOpenActivity(t, engine.ActivityCreateOptions{Type: domain.ActivityTypeLocal, StartDate: "2026-06-06"})

	var apps []domain.Application
	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("mem-cascade-%d", i)
		env.mustMember(t, id)
		app, err := env.Engine.CreateApplication(env.Ctx, a.ID, id, "")
		if err != nil {
			t.Fatal(err)
		}
		apps = append(apps, app)
	}
	// accept two, leave three pending
	for _, app := range apps[:2] {
		if _, err := env.Engine.UpdateApplicationStatus(env.Ctx, a.ID, app.ID, domain.ApplicationStatusAccepted, "", "staff-1"); err != nil {
			t.Fatal(err)
		}
	}
	org, _ := env.Engine.Repo.GetOrganization(env.Ctx, "org-1")
	if org.TotalNewApplications != 3 {
		t.Fatalf("expected 3 pending before delete, got %d", org.TotalNewApplications)
	}

	if err := env.Engine.DeleteActivity(env.Ctx, a.ID, "staff-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := env.Engine.Repo.GetActivity(env.Ctx, a.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected activity gone, got %v", err)
	}
	for _, app := range apps {
		for _, mirror := range []string{repo.MirrorActivity, repo.MirrorMember, repo.MirrorOrg} {
			if _, err := env.Engine.Repo.GetApplicationMirror(env.Ctx, mirror, app.ID); !errors.Is(err, repo.ErrNotFound) {
				t.Fatalf("mirror %s of %s survived: %v", mirror, app.ID, err)
			}
		}
	}
	org, _ = env.Engine.Repo.GetOrganization(env.Ctx, "org-1")
	if org.TotalNewApplications != 0 {
		t.Fatalf("expected counter 0 after cascade, got %d", org.TotalNewApplications)
	}
}

func TestPendingCounterNeverNegative(t *testing.T) {
	env := newTestEnv(t)
	a := env.mustOpenActivity(t, engine.ActivityCreateOptions{Type: domain.ActivityTypeLocal, StartDate: "2026-06-06"})
	app, err := env.Engine.CreateApplication(env.Ctx, a.ID, "mem-1", "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.UpdateApplicationStatus(env.Ctx, a.ID, app.ID, domain.ApplicationStatusCancelled, "", "mem-1"); err != nil {
		t.Fatal(err)
	}
	// drive the counter down past zero through the repo clamp
	tx, err := env.Engine.DB.BeginTx(env.Ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := env.Engine.Repo.AdjustPendingCounterTx(env.Ctx, tx, "org-1", -5); err != nil {
		t.Fatal(err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}
	org, _ := env.Engine.Repo.GetOrganization(env.Ctx, "org-1")
	if org.TotalNewApplications != 0 {
		t.Fatalf("counter went negative: %d", org.TotalNewApplications)
	}
}

func TestApplicationConsistencyCheck(t *testing.T) {
	env := newTestEnv(t)
	a := env.mustOpenActivity(t, engine.ActivityCreateOptions{Type: domain.ActivityTypeLocal, StartDate: "2026-06-06"})
	app, err := env.Engine.CreateApplication(env.Ctx, a.ID, "mem-1", "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.UpdateApplicationStatus(env.Ctx, a.ID, app.ID, domain.ApplicationStatusAccepted, "ok", "staff-1"); err != nil {
		t.Fatal(err)
	}
	if err := env.Engine.CheckApplicationConsistency(env.Ctx, a.ID); err != nil {
		t.Fatalf("expected mirrors consistent: %v", err)
	}

	// skew one mirror behind the engine's back
	if _, err := env.Engine.DB.Exec(`UPDATE member_applications SET status='pending' WHERE application_id=?`, app.ID); err != nil {
		t.Fatal(err)
	}
	err = env.Engine.CheckApplicationConsistency(env.Ctx, a.ID)
	var fault engine.ConsistencyFaultError
	if !errors.As(err, &fault) {
		t.Fatalf("expected ConsistencyFaultError, got %v", err)
	}
	if fault.Mirror != repo.MirrorMember {
		t.Fatalf("expected member mirror flagged, got %s", fault.Mirror)
	}
}
