package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"voluna/internal/config"
	"voluna/internal/db"
	"voluna/internal/engine"
	"voluna/internal/migrate"
)

type testServer struct {
	URL      string
	StaffKey string
	client   *http.Client
	close    func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default("org-1")
	e := engine.New(conn, cfg)
	e.Now = func() time.Time { return time.Date(2026, 6, 6, 10, 0, 0, 0, time.UTC) }
	ctx := context.Background()
	if _, err := e.CreateOrganization(ctx, "org-1", "Helping Hands"); err != nil {
		t.Fatalf("create org: %v", err)
	}
	if err := e.SeedBadgeCatalog(ctx); err != nil {
		t.Fatalf("seed badges: %v", err)
	}
	if _, err := e.CreateMember(ctx, "mem-1", "Ada"); err != nil {
		t.Fatalf("create member: %v", err)
	}
	staffKey, _, err := e.MintAPIKey(ctx, "staff-1", "staff", "org-1", "test")
	if err != nil {
		t.Fatalf("mint staff key: %v", err)
	}
	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v0",
		Auth:     AuthConfig{JWTSecret: "test-secret", AllowLegacyActorHeader: true},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:      "http://" + ln.Addr().String(),
		StaffKey: staffKey,
		client:   &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

type errorEnvelope struct {
	Error apiErrorBody `json:"error"`
}

func staffHeaders(srv *testServer) map[string]string {
	return map[string]string{"X-Api-Key": srv.StaffKey}
}

func memberHeaders(id string) map[string]string {
	return map[string]string{"X-Actor-Id": id}
}

func TestHealthOpenRestRequiresAuth(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, _ := doJSON(t, client, http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d", res.StatusCode)
	}

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/activities", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", res.StatusCode, string(data))
	}
	var env errorEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if env.Error.Code != "unauthorized" {
		t.Fatalf("expected unauthorized code, got %q", env.Error.Code)
	}
}

func TestApplyAndValidateByToken(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/activities", map[string]any{
		"type":          "local",
		"title":         "Beach cleanup",
		"reward_points": 20,
		"start_date":    "2026-06-06",
	}, staffHeaders(srv))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create activity %d: %s", res.StatusCode, string(data))
	}
	var activity ActivityResponse
	if err := json.Unmarshal(data, &activity); err != nil {
		t.Fatalf("unmarshal activity: %v", err)
	}

	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v0/activities/"+activity.ID+"/status", map[string]any{
		"status": "open",
	}, staffHeaders(srv))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("open activity %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/activities/"+activity.ID+"/applications", map[string]any{
		"message": "count me in",
	}, memberHeaders("mem-1"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("apply %d: %s", res.StatusCode, string(data))
	}
	var app ApplicationResponse
	_ = json.Unmarshal(data, &app)
	if app.Status != "pending" || app.MemberID != "mem-1" {
		t.Fatalf("unexpected application: %+v", app)
	}

	// same member applying again conflicts
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/activities/"+activity.ID+"/applications", map[string]any{}, memberHeaders("mem-1"))
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected duplicate conflict, got %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/activities/"+activity.ID+"/token", nil, staffHeaders(srv))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get token %d: %s", res.StatusCode, string(data))
	}
	var token ActivityTokenResponse
	if err := json.Unmarshal(data, &token); err != nil {
		t.Fatalf("unmarshal token: %v", err)
	}
	if token.CompletionToken == "" {
		t.Fatalf("no completion token returned")
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/activities/"+activity.ID+"/validate", map[string]any{
		"token": token.CompletionToken,
	}, memberHeaders("mem-1"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("validate %d: %s", res.StatusCode, string(data))
	}
	var result ValidationResultResponse
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if result.PointsAwarded != 20 {
		t.Fatalf("expected 20 points, got %d", result.PointsAwarded)
	}

	// scanning the code a second time conflicts
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/activities/"+activity.ID+"/validate", map[string]any{
		"token": token.CompletionToken,
	}, memberHeaders("mem-1"))
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 on rescan, got %d: %s", res.StatusCode, string(data))
	}
	var env errorEnvelope
	_ = json.Unmarshal(data, &env)
	if env.Error.Code != "already_validated" {
		t.Fatalf("expected already_validated, got %q", env.Error.Code)
	}
}

func TestValidateAllMemberSubset(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/activities", map[string]any{
		"type":          "local",
		"title":         "Park tidy-up",
		"reward_points": 5,
		"start_date":    "2026-06-06",
	}, staffHeaders(srv))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create activity %d: %s", res.StatusCode, string(data))
	}
	var activity ActivityResponse
	_ = json.Unmarshal(data, &activity)
	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v0/activities/"+activity.ID+"/status", map[string]any{"status": "open"}, staffHeaders(srv))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("open %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/members", map[string]any{
		"id": "mem-2", "name": "Grace",
	}, staffHeaders(srv))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create member %d: %s", res.StatusCode, string(data))
	}
	for _, id := range []string{"mem-1", "mem-2"} {
		res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/activities/"+activity.ID+"/applications", map[string]any{}, memberHeaders(id))
		if res.StatusCode != http.StatusCreated {
			t.Fatalf("apply %s: %d: %s", id, res.StatusCode, string(data))
		}
		var app ApplicationResponse
		_ = json.Unmarshal(data, &app)
		res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v0/activities/"+activity.ID+"/applications/"+app.ID, map[string]any{
			"status": "accepted",
		}, staffHeaders(srv))
		if res.StatusCode != http.StatusOK {
			t.Fatalf("accept %s: %d: %s", id, res.StatusCode, string(data))
		}
	}

	// only the listed member gets validated
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/activities/"+activity.ID+"/validations/validate-all", map[string]any{
		"member_ids": []string{"mem-2"},
	}, staffHeaders(srv))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("validate subset %d: %s", res.StatusCode, string(data))
	}
	var batch BatchValidationResponse
	if err := json.Unmarshal(data, &batch); err != nil {
		t.Fatalf("unmarshal batch: %v", err)
	}
	if len(batch.Processed) != 1 || batch.Processed[0] != "mem-2" {
		t.Fatalf("unexpected batch result: %+v", batch)
	}

	// an empty body still sweeps every accepted applicant
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/activities/"+activity.ID+"/validations/validate-all", map[string]any{}, staffHeaders(srv))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("validate all %d: %s", res.StatusCode, string(data))
	}
	batch = BatchValidationResponse{}
	_ = json.Unmarshal(data, &batch)
	if len(batch.Processed) != 2 {
		t.Fatalf("expected both members processed, got %+v", batch)
	}
}

func TestStaffGate(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/activities", map[string]any{
		"type":  "local",
		"title": "Nope",
	}, memberHeaders("mem-1"))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", res.StatusCode, string(data))
	}
	var env errorEnvelope
	_ = json.Unmarshal(data, &env)
	if env.Error.Code != "forbidden" {
		t.Fatalf("expected forbidden code, got %q", env.Error.Code)
	}
}

func TestActivityNotFoundEnvelope(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/activities/nope", nil, memberHeaders("mem-1"))
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", res.StatusCode, string(data))
	}
}

func TestDecideApplicationTwice(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/activities", map[string]any{
		"type":  "event",
		"title": "Gala",
	}, staffHeaders(srv))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create activity %d: %s", res.StatusCode, string(data))
	}
	var activity ActivityResponse
	_ = json.Unmarshal(data, &activity)
	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v0/activities/"+activity.ID+"/status", map[string]any{"status": "open"}, staffHeaders(srv))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("open %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/activities/"+activity.ID+"/applications", map[string]any{}, memberHeaders("mem-1"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("apply %d: %s", res.StatusCode, string(data))
	}
	var app ApplicationResponse
	_ = json.Unmarshal(data, &app)

	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v0/activities/"+activity.ID+"/applications/"+app.ID, map[string]any{
		"status": "accepted",
	}, staffHeaders(srv))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("accept %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v0/activities/"+activity.ID+"/applications/"+app.ID, map[string]any{
		"status": "rejected",
	}, staffHeaders(srv))
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 on re-decide, got %d: %s", res.StatusCode, string(data))
	}
	var env errorEnvelope
	_ = json.Unmarshal(data, &env)
	if env.Error.Code != "invalid_transition" {
		t.Fatalf("expected invalid_transition, got %q", env.Error.Code)
	}
}
