package engine_test

import (
	"errors"
	"testing"

	"voluna/internal/domain"
	"voluna/internal/engine"
)

func TestValidateByTokenHappyPath(t *testing.T) {
	env := newTestEnv(t)
	a := env.mustOpenActivity(t, engine.ActivityCreateOptions{
		Type:         domain.ActivityTypeLocal,
		StartDate:    "2026-06-06",
		RewardPoints: 20,
	})
	if _, err := env.Engine.CreateApplication(env.Ctx, a.ID, "mem-1", ""); err != nil {
		t.Fatal(err)
	}

	res, err := env.Engine.ValidateByToken(env.Ctx, a.ID, "mem-1", a.CompletionToken)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if res.PointsAwarded != 20 {
		t.Fatalf("expected 20 points, got %d", res.PointsAwarded)
	}
	if res.Validation.Status != domain.ValidationStatusValidated || res.Validation.ActorKind != domain.ActorKindMember {
		t.Fatalf("unexpected validation: %+v", res.Validation)
	}

	// the pending application flipped to accepted on all mirrors
	app, err := env.Engine.Repo.GetActivityApplicationByMember(env.Ctx, a.ID, "mem-1")
	if err != nil {
		t.Fatal(err)
	}
	if app.Status != domain.ApplicationStatusAccepted {
		t.Fatalf("expected accepted, got %s", app.Status)
	}
	if err := env.Engine.CheckApplicationConsistency(env.Ctx, a.ID); err != nil {
		t.Fatalf("mirrors diverged: %v", err)
	}

	// history records the token path
	history, err := env.Engine.Repo.ListMemberHistory(env.Ctx, "mem-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 1 || history[0].Via != domain.HistoryViaToken {
		t.Fatalf("unexpected history: %+v", history)
	}

	// first-application badge (5) + activity points (20)
	m, _ := env.Engine.Repo.GetMember(env.Ctx, "mem-1")
	if m.Points != 25 {
		t.Fatalf("expected 25 points total, got %d", m.Points)
	}
}

func TestValidateByTokenSecondScan(t *testing.T) {
	env := newTestEnv(t)
	a := env.mustOpenActivity(t, engine.ActivityCreateOptions{
		Type:         domain.ActivityTypeLocal,
		StartDate:    "2026-06-06",
		RewardPoints: 10,
	})
	if _, err := env.Engine.ValidateByToken(env.Ctx, a.ID, "mem-1", a.CompletionToken); err != nil {
		t.Fatal(err)
	}
	_, err := env.Engine.ValidateByToken(env.Ctx, a.ID, "mem-1", a.CompletionToken)
	if !errors.Is(err, engine.ErrAlreadyValidated) {
		t.Fatalf("expected ErrAlreadyValidated, got %v", err)
	}
	m, _ := env.Engine.Repo.GetMember(env.Ctx, "mem-1")
	if m.Points != 10 {
		t.Fatalf("second scan changed points: %d", m.Points)
	}
}

func TestValidateByTokenGuardOrder(t *testing.T) {
	env := newTestEnv(t)
	local := env.mustOpenActivity(t, engine.ActivityCreateOptions{
		Type:      domain.ActivityTypeLocal,
		StartDate: "2026-06-06",
	})
	online := env.mustOpenActivity(t, engine.ActivityCreateOptions{
		Type:      domain.ActivityTypeOnline,
		StartDate: "2026-06-06",
		Title:     "Remote tutoring",
	})
	wrongDay := env.mustOpenActivity(t, engine.ActivityCreateOptions{
		Type:      domain.ActivityTypeEvent,
		StartDate: "2026-06-07",
		Title:     "Tomorrow's gala",
	})

	_, err := env.Engine.ValidateByToken(env.Ctx, "missing", "mem-1", "whatever")
	if !errors.Is(err, engine.ErrActivityNotFound) {
		t.Fatalf("expected ErrActivityNotFound, got %v", err)
	}
	_, err = env.Engine.ValidateByToken(env.Ctx, local.ID, "mem-1", "wrong-token")
	if !errors.Is(err, engine.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
	_, err = env.Engine.ValidateByToken(env.Ctx, local.ID, "mem-1", "")
	if !errors.Is(err, engine.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for empty token, got %v", err)
	}
	// online activities never validate by token, whatever the token looks
	// like: the type guard fires before the token is even compared
	_, err = env.Engine.ValidateByToken(env.Ctx, online.ID, "mem-1", "anything")
	if !errors.Is(err, engine.ErrInvalidActivityType) {
		t.Fatalf("expected ErrInvalidActivityType for online activity, got %v", err)
	}
	_, err = env.Engine.ValidateByToken(env.Ctx, online.ID, "mem-1", "")
	if !errors.Is(err, engine.ErrInvalidActivityType) {
		t.Fatalf("expected ErrInvalidActivityType for empty token too, got %v", err)
	}
	_, err = env.Engine.ValidateByToken(env.Ctx, wrongDay.ID, "mem-1", wrongDay.CompletionToken)
	if !errors.Is(err, engine.ErrInvalidDate) {
		t.Fatalf("expected ErrInvalidDate, got %v", err)
	}

	// a validated record outranks every other guard
	if _, err := env.Engine.ValidateByToken(env.Ctx, local.ID, "mem-1", local.CompletionToken); err != nil {
		t.Fatal(err)
	}
	_, err = env.Engine.ValidateByToken(env.Ctx, local.ID, "mem-1", "garbage")
	if !errors.Is(err, engine.ErrAlreadyValidated) {
		t.Fatalf("expected ErrAlreadyValidated to win over bad token, got %v", err)
	}
}

func TestValidateManuallySkipsTokenGuards(t *testing.T) {
	env := newTestEnv(t)
	// online activity on a different day: every token guard would fail
	a := env.mustOpenActivity(t, engine.ActivityCreateOptions{
		Type:         domain.ActivityTypeOnline,
		StartDate:    "2026-01-15",
		RewardPoints: 15,
	})
	res, err := env.Engine.ValidateManually(env.Ctx, a.ID, "mem-1", "staff-1")
	if err != nil {
		t.Fatalf("manual validate: %v", err)
	}
	if res.Validation.ActorKind != domain.ActorKindStaff || res.PointsAwarded != 15 {
		t.Fatalf("unexpected result: %+v", res)
	}
	history, _ := env.Engine.Repo.ListMemberHistory(env.Ctx, "mem-1")
	if len(history) != 1 || history[0].Via != domain.HistoryViaManual {
		t.Fatalf("unexpected history: %+v", history)
	}
	_, err = env.Engine.ValidateManually(env.Ctx, a.ID, "mem-1", "staff-1")
	if !errors.Is(err, engine.ErrAlreadyValidated) {
		t.Fatalf("expected ErrAlreadyValidated, got %v", err)
	}
}

func TestValidateBackfillsWalkUpApplication(t *testing.T) {
	env := newTestEnv(t)
	a := env.mustOpenActivity(t, engine.ActivityCreateOptions{
		Type:      domain.ActivityTypeLocal,
		StartDate: "2026-06-06",
	})
	// walk-up: no prior application, member unknown to the registry
	if _, err := env.Engine.ValidateByToken(env.Ctx, a.ID, "walkup-1", a.CompletionToken); err != nil {
		t.Fatal(err)
	}
	app, err := env.Engine.Repo.GetActivityApplicationByMember(env.Ctx, a.ID, "walkup-1")
	if err != nil {
		t.Fatalf("expected backfilled application: %v", err)
	}
	if app.Status != domain.ApplicationStatusAccepted {
		t.Fatalf("expected accepted, got %s", app.Status)
	}
	// the backfill bypasses the pending state, so the counter is untouched
	org, _ := env.Engine.Repo.GetOrganization(env.Ctx, "org-1")
	if org.TotalNewApplications != 0 {
		t.Fatalf("counter moved on walk-up: %d", org.TotalNewApplications)
	}
}

func TestTaxonomyBadgesOnValidation(t *testing.T) {
	env := newTestEnv(t)
	sdg := 13
	a := env.mustOpenActivity(t, engine.ActivityCreateOptions{
		Type:      domain.ActivityTypeEvent,
		StartDate: "2026-06-06",
		SDG:       &sdg,
	})
	res, err := env.Engine.ValidateByToken(env.Ctx, a.ID, "mem-1", a.CompletionToken)
	if err != nil {
		t.Fatal(err)
	}
	// default taxonomy: sdg 13 -> climate-action, type event -> event-goer
	got := map[string]bool{}
	for _, b := range res.BadgesGranted {
		got[b] = true
	}
	if !got["climate-action"] || !got["event-goer"] {
		t.Fatalf("expected taxonomy badges, got %v", res.BadgesGranted)
	}
}

func TestRejectApplicant(t *testing.T) {
	env := newTestEnv(t)
	a := env.mustOpenActivity(t, engine.ActivityCreateOptions{
		Type:         domain.ActivityTypeLocal,
		StartDate:    "2026-06-06",
		RewardPoints: 20,
	})
	if _, err := env.Engine.ValidateByToken(env.Ctx, a.ID, "mem-1", a.CompletionToken); err != nil {
		t.Fatal(err)
	}
	v, err := env.Engine.RejectApplicant(env.Ctx, a.ID, "mem-1", "staff-1")
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if v.Status != domain.ValidationStatusRejected {
		t.Fatalf("expected rejected, got %s", v.Status)
	}
	// points already paid out stay paid
	m, _ := env.Engine.Repo.GetMember(env.Ctx, "mem-1")
	if m.Points < 20 {
		t.Fatalf("rejection clawed back points: %d", m.Points)
	}
	// rejection is reversible through a manual validation, but the
	// completion payout stays deduped
	res, err := env.Engine.ValidateManually(env.Ctx, a.ID, "mem-1", "staff-1")
	if err != nil {
		t.Fatalf("re-validate after reject: %v", err)
	}
	if res.Validation.Status != domain.ValidationStatusValidated {
		t.Fatalf("expected validated, got %s", res.Validation.Status)
	}
	after, _ := env.Engine.Repo.GetMember(env.Ctx, "mem-1")
	if after.Points != m.Points {
		t.Fatalf("re-validation double paid: %d -> %d", m.Points, after.Points)
	}
}

func TestValidateAllSkipsAlreadyValidated(t *testing.T) {
	env := newTestEnv(t)
	a := env.mustOpenActivity(t, engine.ActivityCreateOptions{
		Type:         domain.ActivityTypeLocal,
		StartDate:    "2026-06-06",
		RewardPoints: 5,
	})
	members := []string{"batch-1", "batch-2", "batch-3"}
	for _, id := range members {
		env.mustMember(t, id)
		app, err := env.Engine.CreateApplication(env.Ctx, a.ID, id, "")
		if err != nil {
			t.Fatal(err)
		}
		if _, err := env.Engine.UpdateApplicationStatus(env.Ctx, a.ID, app.ID, domain.ApplicationStatusAccepted, "", "staff-1"); err != nil {
			t.Fatal(err)
		}
	}
	// pre-validate one; the batch must treat it as done, not failed
	if _, err := env.Engine.ValidateManually(env.Ctx, a.ID, "batch-2", "staff-1"); err != nil {
		t.Fatal(err)
	}

	res, err := env.Engine.ValidateAll(env.Ctx, a.ID, nil, "staff-1")
	if err != nil {
		t.Fatalf("validate all: %v", err)
	}
	if len(res.Processed) != 3 || len(res.Failed) != 0 {
		t.Fatalf("unexpected batch result: %+v", res)
	}
	for _, id := range members {
		v, err := env.Engine.Repo.GetValidation(env.Ctx, a.ID, id)
		if err != nil || v.Status != domain.ValidationStatusValidated {
			t.Fatalf("member %s not validated: %v %+v", id, err, v)
		}
	}
}

func TestValidateAllMemberSubset(t *testing.T) {
	env := newTestEnv(t)
	a := env.mustOpenActivity(t, engine.ActivityCreateOptions{
		Type:         domain.ActivityTypeLocal,
		StartDate:    "2026-06-06",
		RewardPoints: 5,
	})
	members := []string{"sub-1", "sub-2", "sub-3"}
	for _, id := range members {
		env.mustMember(t, id)
		app, err := env.Engine.CreateApplication(env.Ctx, a.ID, id, "")
		if err != nil {
			t.Fatal(err)
		}
		if _, err := env.Engine.UpdateApplicationStatus(env.Ctx, a.ID, app.ID, domain.ApplicationStatusAccepted, "", "staff-1"); err != nil {
			t.Fatal(err)
		}
	}

	res, err := env.Engine.ValidateAll(env.Ctx, a.ID, []string{"sub-1", "sub-3"}, "staff-1")
	if err != nil {
		t.Fatalf("validate subset: %v", err)
	}
	if len(res.Processed) != 2 {
		t.Fatalf("unexpected batch result: %+v", res)
	}
	// the member left out of the list stays untouched
	if _, err := env.Engine.Repo.GetValidation(env.Ctx, a.ID, "sub-2"); err == nil {
		t.Fatal("sub-2 was validated despite not being listed")
	}
	for _, id := range []string{"sub-1", "sub-3"} {
		v, err := env.Engine.Repo.GetValidation(env.Ctx, a.ID, id)
		if err != nil || v.Status != domain.ValidationStatusValidated {
			t.Fatalf("member %s not validated: %v %+v", id, err, v)
		}
	}

	rej, err := env.Engine.RejectAll(env.Ctx, a.ID, []string{"sub-2"}, "staff-1")
	if err != nil {
		t.Fatalf("reject subset: %v", err)
	}
	if len(rej.Processed) != 1 {
		t.Fatalf("unexpected batch result: %+v", rej)
	}
	v, err := env.Engine.Repo.GetValidation(env.Ctx, a.ID, "sub-2")
	if err != nil || v.Status != domain.ValidationStatusRejected {
		t.Fatalf("sub-2 not rejected: %v %+v", err, v)
	}
}

func TestEffectiveParticipantCount(t *testing.T) {
	env := newTestEnv(t)
	a := env.mustOpenActivity(t, engine.ActivityCreateOptions{
		Type:      domain.ActivityTypeLocal,
		StartDate: "2026-06-06",
	})
	for _, id := range []string{"p-1", "p-2", "p-3"} {
		env.mustMember(t, id)
		app, err := env.Engine.CreateApplication(env.Ctx, a.ID, id, "")
		if err != nil {
			t.Fatal(err)
		}
		if _, err := env.Engine.UpdateApplicationStatus(env.Ctx, a.ID, app.ID, domain.ApplicationStatusAccepted, "", "staff-1"); err != nil {
			t.Fatal(err)
		}
	}
	n, err := env.Engine.EffectiveParticipantCount(env.Ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Fatalf("expected 3, got %d", n)
	}
	if _, err := env.Engine.RejectApplicant(env.Ctx, a.ID, "p-2", "staff-1"); err != nil {
		t.Fatal(err)
	}
	n, err = env.Engine.EffectiveParticipantCount(env.Ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("expected 2 after rejection, got %d", n)
	}
}
