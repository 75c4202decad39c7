package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"voluna/internal/engine"
	"voluna/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"already_validated"`
	Message string         `json:"message" example:"member already validated for this activity"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"member_id\":\"m1\"}"`
}

type requestKey struct{}
type bodyBytesKey struct{}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Voluna API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the envelope.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors should be 400 bad_request
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			ctx := context.WithValue(r.Context(), requestKey{}, r)
			ctx = context.WithValue(ctx, bodyBytesKey{}, bodyBytes)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo))
	hcfg := huma.DefaultConfig("Voluna API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerStatus(group, cfg.Engine)
	registerOrganizations(group, cfg.Engine)
	registerMembers(group, cfg.Engine)
	registerBadges(group, cfg.Engine)
	registerActivities(group, cfg.Engine)
	registerApplications(group, cfg.Engine)
	registerValidations(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerAPIKeys(group, cfg.Engine)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var se huma.StatusError
	if errors.As(err, &se) {
		return se
	}
	var te engine.InvalidTransitionError
	if errors.As(err, &te) {
		return newAPIError(http.StatusUnprocessableEntity, "invalid_transition", err.Error(), map[string]any{
			"entity": te.Entity, "from": te.From, "to": te.To,
		})
	}
	var ce engine.ConsistencyFaultError
	if errors.As(err, &ce) {
		return newAPIError(http.StatusInternalServerError, "consistency_fault", err.Error(), map[string]any{
			"application_id": ce.ApplicationID, "mirror": ce.Mirror,
		})
	}
	var pe engine.PartialFailureError
	if errors.As(err, &pe) {
		details := make(map[string]any, len(pe.Failed))
		for id, reason := range pe.Failed {
			details[id] = reason
		}
		return newAPIError(http.StatusUnprocessableEntity, "partial_failure", err.Error(), map[string]any{"failed": details})
	}
	switch {
	case errors.Is(err, engine.ErrDuplicateApplication):
		return newAPIError(http.StatusConflict, "duplicate_application", err.Error(), nil)
	case errors.Is(err, engine.ErrAlreadyValidated):
		return newAPIError(http.StatusConflict, "already_validated", err.Error(), nil)
	case errors.Is(err, engine.ErrInvalidToken):
		return newAPIError(http.StatusUnprocessableEntity, "invalid_token", err.Error(), nil)
	case errors.Is(err, engine.ErrInvalidActivityType):
		return newAPIError(http.StatusUnprocessableEntity, "invalid_activity_type", err.Error(), nil)
	case errors.Is(err, engine.ErrInvalidDate):
		return newAPIError(http.StatusUnprocessableEntity, "invalid_date", err.Error(), nil)
	case errors.Is(err, engine.ErrPendingApplications):
		return newAPIError(http.StatusConflict, "pending_applications", err.Error(), nil)
	case errors.Is(err, engine.ErrActivityNotFound),
		errors.Is(err, engine.ErrMemberNotFound),
		errors.Is(err, engine.ErrBadgeNotFound),
		errors.Is(err, engine.ErrApplicationNotFound),
		errors.Is(err, engine.ErrOrganizationNotFound),
		errors.Is(err, repo.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	if strings.Contains(lowered, "invalid") || strings.Contains(lowered, "missing") || strings.Contains(lowered, "required") {
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func bodyBytes(ctx context.Context) []byte {
	b, _ := ctx.Value(bodyBytesKey{}).([]byte)
	return b
}

// defaultOrg resolves the organization an operation targets: explicit input
// wins, then the configured workspace org.
func defaultOrg(e engine.Engine, orgID string) string {
	if orgID != "" {
		return orgID
	}
	if e.Config != nil {
		return e.Config.Org.ID
	}
	return ""
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	oas.Components.SecuritySchemes["apiKeyAuth"] = &huma.SecurityScheme{
		Type: "apiKey",
		In:   "header",
		Name: "X-Api-Key",
	}
	security := []map[string][]string{
		{"bearerAuth": {}},
		{"apiKeyAuth": {}},
	}
	oas.Security = security
	healthPath := path.Join(basePath, "health")
	if !strings.HasPrefix(healthPath, "/") {
		healthPath = "/" + healthPath
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if route == healthPath {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Voluna API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt; or X-Api-Key.
    </p>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerStatus(api huma.API, e engine.Engine) {
	type orgPath struct {
		OrgID string `path:"org_id"`
	}
	huma.Register(api, huma.Operation{
		OperationID: "org-status",
		Method:      http.MethodGet,
		Path:        "/orgs/{org_id}/status",
		Summary:     "Organization status",
	}, func(ctx context.Context, input *orgPath) (*struct {
		Body map[string]any `json:"body"`
	}, error) {
		org, err := e.Repo.GetOrganization(ctx, input.OrgID)
		if err != nil {
			return nil, handleError(err)
		}
		counts, err := e.Repo.CountActivitiesByStatus(ctx, org.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]any `json:"body"`
		}{Body: map[string]any{
			"org_id":                 org.ID,
			"total_new_applications": org.TotalNewApplications,
			"activity_counts":        counts,
		}}, nil
	})
}

func registerOrganizations(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-org",
		Method:        http.MethodPost,
		Path:          "/orgs",
		Summary:       "Create organization",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateOrganizationRequest `json:"body"`
	}) (*struct {
		Body OrganizationResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if input.Body.ID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "id is required", nil)
		}
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		org, err := e.CreateOrganization(ctx, input.Body.ID, input.Body.Name)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body OrganizationResponse `json:"body"`
		}{Body: organizationResponse(org)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-orgs",
		Method:      http.MethodGet,
		Path:        "/orgs",
		Summary:     "List organizations",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []OrganizationResponse `json:"body"`
	}, error) {
		items, err := e.Repo.ListOrganizations(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]OrganizationResponse, 0, len(items))
		for _, o := range items {
			res = append(res, organizationResponse(o))
		}
		return &struct {
			Body []OrganizationResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-org",
		Method:      http.MethodGet,
		Path:        "/orgs/{org_id}",
		Summary:     "Get organization",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		OrgID string `path:"org_id"`
	}) (*struct {
		Body OrganizationResponse `json:"body"`
	}, error) {
		o, err := e.Repo.GetOrganization(ctx, input.OrgID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body OrganizationResponse `json:"body"`
		}{Body: organizationResponse(o)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-org-applications",
		Method:      http.MethodGet,
		Path:        "/orgs/{org_id}/applications",
		Summary:     "List organization applications",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		OrgID  string `path:"org_id"`
		Status string `query:"status" enum:"pending,accepted,rejected,cancelled"`
	}) (*struct {
		Body []ApplicationResponse `json:"body"`
	}, error) {
		if err := requireStaff(ctx, e, input.OrgID); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListOrgApplications(ctx, input.OrgID, input.Status)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []ApplicationResponse `json:"body"`
		}{Body: mapApplications(items)}, nil
	})
}

func registerMembers(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-member",
		Method:        http.MethodPost,
		Path:          "/members",
		Summary:       "Create member",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body CreateMemberRequest `json:"body"`
	}) (*struct {
		Body MemberResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if input.Body.Name == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "name is required", nil)
		}
		m, err := e.CreateMember(ctx, input.Body.ID, input.Body.Name)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MemberResponse `json:"body"`
		}{Body: memberResponse(m)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-members",
		Method:      http.MethodGet,
		Path:        "/members",
		Summary:     "List members",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []MemberResponse `json:"body"`
	}, error) {
		items, err := e.Repo.ListMembers(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]MemberResponse, 0, len(items))
		for _, m := range items {
			res = append(res, memberResponse(m))
		}
		return &struct {
			Body []MemberResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-member",
		Method:      http.MethodGet,
		Path:        "/members/{id}",
		Summary:     "Get member",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body MemberResponse `json:"body"`
	}, error) {
		m, err := e.Repo.GetMember(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MemberResponse `json:"body"`
		}{Body: memberResponse(m)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-member-applications",
		Method:      http.MethodGet,
		Path:        "/members/{id}/applications",
		Summary:     "List member applications",
	}, func(ctx context.Context, input *struct {
		ID     string `path:"id"`
		Status string `query:"status" enum:"pending,accepted,rejected,cancelled"`
	}) (*struct {
		Body []ApplicationResponse `json:"body"`
	}, error) {
		items, err := e.Repo.ListMemberApplications(ctx, input.ID, input.Status)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []ApplicationResponse `json:"body"`
		}{Body: mapApplications(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "member-history",
		Method:      http.MethodGet,
		Path:        "/members/{id}/history",
		Summary:     "Member activity history",
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body []HistoryEntryResponse `json:"body"`
	}, error) {
		items, err := e.Repo.ListMemberHistory(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]HistoryEntryResponse, 0, len(items))
		for _, h := range items {
			res = append(res, HistoryEntryResponse{ID: h.ID, MemberID: h.MemberID, ActivityID: h.ActivityID, Via: h.Via, AddedAt: h.AddedAt})
		}
		return &struct {
			Body []HistoryEntryResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "member-badges",
		Method:      http.MethodGet,
		Path:        "/members/{id}/badges",
		Summary:     "Member badges",
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body []BadgeGrantResponse `json:"body"`
	}, error) {
		items, err := e.Repo.ListMemberBadges(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]BadgeGrantResponse, 0, len(items))
		for _, g := range items {
			res = append(res, BadgeGrantResponse{MemberID: g.MemberID, BadgeID: g.BadgeID, Granted: true, EarnedAt: g.EarnedAt})
		}
		return &struct {
			Body []BadgeGrantResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "member-points",
		Method:      http.MethodGet,
		Path:        "/members/{id}/points",
		Summary:     "Member point ledger",
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body []PointEntryResponse `json:"body"`
	}, error) {
		items, err := e.Repo.ListPointEntries(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]PointEntryResponse, 0, len(items))
		for _, p := range items {
			res = append(res, PointEntryResponse{ID: p.ID, MemberID: p.MemberID, Amount: p.Amount, Reason: p.Reason, SourceKind: p.SourceKind, CreatedAt: p.CreatedAt})
		}
		return &struct {
			Body []PointEntryResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "award-points",
		Method:      http.MethodPost,
		Path:        "/members/{id}/points",
		Summary:     "Award points",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ID   string             `path:"id"`
		Body AwardPointsRequest `json:"body"`
	}) (*struct {
		Body MemberResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if err := requireStaff(ctx, e, defaultOrg(e, "")); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.AwardPoints(ctx, input.ID, input.Body.Amount, input.Body.Reason, engine.SourceManual, input.Body.EventKey, actorID); err != nil {
			return nil, handleError(err)
		}
		m, err := e.Repo.GetMember(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MemberResponse `json:"body"`
		}{Body: memberResponse(m)}, nil
	})
}

func registerBadges(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-badge",
		Method:        http.MethodPost,
		Path:          "/badges",
		Summary:       "Create or update badge",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Body CreateBadgeRequest `json:"body"`
	}) (*struct {
		Body BadgeResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if input.Body.ID == "" || input.Body.Name == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "id and name are required", nil)
		}
		if err := requireStaff(ctx, e, defaultOrg(e, "")); err != nil {
			return nil, handleError(err)
		}
		b, err := e.DefineBadge(ctx, input.Body.ID, input.Body.Name, input.Body.Points)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body BadgeResponse `json:"body"`
		}{Body: badgeResponse(b)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-badges",
		Method:      http.MethodGet,
		Path:        "/badges",
		Summary:     "List badges",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []BadgeResponse `json:"body"`
	}, error) {
		items, err := e.Repo.ListBadges(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]BadgeResponse, 0, len(items))
		for _, b := range items {
			res = append(res, badgeResponse(b))
		}
		return &struct {
			Body []BadgeResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "grant-badge",
		Method:      http.MethodPost,
		Path:        "/badges/{id}/grant",
		Summary:     "Grant badge to member",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ID   string            `path:"id"`
		Body GrantBadgeRequest `json:"body"`
	}) (*struct {
		Body BadgeGrantResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if input.Body.MemberID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "member_id is required", nil)
		}
		if err := requireStaff(ctx, e, defaultOrg(e, "")); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		granted, err := e.GrantBadge(ctx, input.Body.MemberID, input.ID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body BadgeGrantResponse `json:"body"`
		}{Body: BadgeGrantResponse{MemberID: input.Body.MemberID, BadgeID: input.ID, Granted: granted}}, nil
	})
}

func registerActivities(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-activity",
		Method:        http.MethodPost,
		Path:          "/activities",
		Summary:       "Create activity",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateActivityRequest `json:"body"`
	}) (*struct {
		Body ActivityResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if input.Body.Title == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "title is required", nil)
		}
		if input.Body.Type == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "type is required", nil)
		}
		orgID := defaultOrg(e, input.Body.OrgID)
		if err := requireStaff(ctx, e, orgID); err != nil {
			return nil, handleError(err)
		}
		a, err := e.CreateActivity(ctx, engine.ActivityCreateOptions{
			OrgID:        orgID,
			Type:         input.Body.Type,
			Title:        input.Body.Title,
			Description:  input.Body.Description,
			RewardPoints: input.Body.RewardPoints,
			StartDate:    input.Body.StartDate,
			EndDate:      input.Body.EndDate,
			StartTime:    input.Body.StartTime,
			EndTime:      input.Body.EndTime,
			SDG:          input.Body.SDG,
			Continent:    input.Body.Continent,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ActivityResponse `json:"body"`
		}{Body: activityResponse(a)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-activities",
		Method:      http.MethodGet,
		Path:        "/activities",
		Summary:     "List activities",
	}, func(ctx context.Context, input *struct {
		OrgID  string `query:"org_id"`
		Status string `query:"status" enum:"draft,open,closed"`
		Type   string `query:"type" enum:"online,local,event"`
		Limit  int    `query:"limit" default:"50"`
	}) (*struct {
		Body []ActivityResponse `json:"body"`
	}, error) {
		items, err := e.Repo.ListActivities(ctx, repo.ActivityFilters{
			OrgID:  input.OrgID,
			Status: input.Status,
			Type:   input.Type,
			Limit:  input.Limit,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []ActivityResponse `json:"body"`
		}{Body: mapActivities(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-activity",
		Method:      http.MethodGet,
		Path:        "/activities/{id}",
		Summary:     "Get activity",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body ActivityResponse `json:"body"`
	}, error) {
		a, err := e.Repo.GetActivity(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ActivityResponse `json:"body"`
		}{Body: activityResponse(a)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-activity-token",
		Method:      http.MethodGet,
		Path:        "/activities/{id}/token",
		Summary:     "Get activity completion token",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body ActivityTokenResponse `json:"body"`
	}, error) {
		a, err := e.Repo.GetActivity(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		if err := requireStaff(ctx, e, a.OrgID); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ActivityTokenResponse `json:"body"`
		}{Body: ActivityTokenResponse{ActivityID: a.ID, CompletionToken: a.CompletionToken}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-activity-status",
		Method:      http.MethodPatch,
		Path:        "/activities/{id}/status",
		Summary:     "Update activity status",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		ID   string                   `path:"id"`
		Body SetActivityStatusRequest `json:"body"`
	}) (*struct {
		Body ActivityResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if input.Body.Status == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "status is required", nil)
		}
		a, err := e.Repo.GetActivity(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		if err := requireStaff(ctx, e, a.OrgID); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		updated, err := e.SetStatus(ctx, input.ID, input.Body.Status, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ActivityResponse `json:"body"`
		}{Body: activityResponse(updated)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-activity",
		Method:      http.MethodDelete,
		Path:        "/activities/{id}",
		Summary:     "Delete activity",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		a, err := e.Repo.GetActivity(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		if err := requireStaff(ctx, e, a.OrgID); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteActivity(ctx, input.ID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "duplicate-activity",
		Method:        http.MethodPost,
		Path:          "/activities/{id}/duplicate",
		Summary:       "Duplicate activity",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body ActivityResponse `json:"body"`
	}, error) {
		a, err := e.Repo.GetActivity(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		if err := requireStaff(ctx, e, a.OrgID); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		clone, err := e.DuplicateActivity(ctx, input.ID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ActivityResponse `json:"body"`
		}{Body: activityResponse(clone)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "activity-participants",
		Method:      http.MethodGet,
		Path:        "/activities/{id}/participants",
		Summary:     "Effective participant count",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body ParticipantCountResponse `json:"body"`
	}, error) {
		n, err := e.EffectiveParticipantCount(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ParticipantCountResponse `json:"body"`
		}{Body: ParticipantCountResponse{ActivityID: input.ID, Effective: n}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "activity-consistency",
		Method:      http.MethodGet,
		Path:        "/activities/{id}/consistency",
		Summary:     "Check application mirror consistency",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		a, err := e.Repo.GetActivity(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		if err := requireStaff(ctx, e, a.OrgID); err != nil {
			return nil, handleError(err)
		}
		if err := e.CheckApplicationConsistency(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "consistent"}}, nil
	})
}

func registerApplications(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-application",
		Method:        http.MethodPost,
		Path:          "/activities/{id}/applications",
		Summary:       "Apply to activity",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		ID   string                   `path:"id"`
		Body CreateApplicationRequest `json:"body"`
	}) (*struct {
		Body ApplicationResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		memberID := input.Body.MemberID
		if memberID == "" {
			memberID = actorID
		}
		app, err := e.CreateApplication(ctx, input.ID, memberID, input.Body.Message)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ApplicationResponse `json:"body"`
		}{Body: applicationResponse(app)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-activity-applications",
		Method:      http.MethodGet,
		Path:        "/activities/{id}/applications",
		Summary:     "List activity applications",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID     string `path:"id"`
		Status string `query:"status" enum:"pending,accepted,rejected,cancelled"`
	}) (*struct {
		Body []ApplicationResponse `json:"body"`
	}, error) {
		a, err := e.Repo.GetActivity(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		if err := requireStaff(ctx, e, a.OrgID); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListActivityApplications(ctx, input.ID, input.Status)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []ApplicationResponse `json:"body"`
		}{Body: mapApplications(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "decide-application",
		Method:      http.MethodPatch,
		Path:        "/activities/{id}/applications/{application_id}",
		Summary:     "Decide application",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		ID            string                   `path:"id"`
		ApplicationID string                   `path:"application_id"`
		Body          DecideApplicationRequest `json:"body"`
	}) (*struct {
		Body ApplicationResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if input.Body.Status == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "status is required", nil)
		}
		a, err := e.Repo.GetActivity(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		if err := requireStaff(ctx, e, a.OrgID); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		app, err := e.UpdateApplicationStatus(ctx, input.ID, input.ApplicationID, input.Body.Status, input.Body.Note, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ApplicationResponse `json:"body"`
		}{Body: applicationResponse(app)}, nil
	})
}

func registerValidations(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "validate-by-token",
		Method:      http.MethodPost,
		Path:        "/activities/{id}/validate",
		Summary:     "Validate attendance by completion token",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		ID   string                 `path:"id"`
		Body TokenValidationRequest `json:"body"`
	}) (*struct {
		Body ValidationResultResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		memberID := input.Body.MemberID
		if memberID == "" {
			memberID = actorID
		}
		res, err := e.ValidateByToken(ctx, input.ID, memberID, input.Body.Token)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ValidationResultResponse `json:"body"`
		}{Body: validationResultResponse(res)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "validate-manually",
		Method:      http.MethodPost,
		Path:        "/activities/{id}/validations/manual",
		Summary:     "Validate attendance manually",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		ID   string                  `path:"id"`
		Body ManualValidationRequest `json:"body"`
	}) (*struct {
		Body ValidationResultResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if input.Body.MemberID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "member_id is required", nil)
		}
		a, err := e.Repo.GetActivity(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		if err := requireStaff(ctx, e, a.OrgID); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := e.ValidateManually(ctx, input.ID, input.Body.MemberID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ValidationResultResponse `json:"body"`
		}{Body: validationResultResponse(res)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reject-applicant",
		Method:      http.MethodPost,
		Path:        "/activities/{id}/validations/reject",
		Summary:     "Reject applicant attendance",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ID   string                  `path:"id"`
		Body ManualValidationRequest `json:"body"`
	}) (*struct {
		Body ValidationResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if input.Body.MemberID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "member_id is required", nil)
		}
		a, err := e.Repo.GetActivity(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		if err := requireStaff(ctx, e, a.OrgID); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		v, err := e.RejectApplicant(ctx, input.ID, input.Body.MemberID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ValidationResponse `json:"body"`
		}{Body: validationResponse(v)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "validate-all",
		Method:      http.MethodPost,
		Path:        "/activities/{id}/validations/validate-all",
		Summary:     "Validate all accepted applicants",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		ID   string                 `path:"id"`
		Body BatchValidationRequest `required:"false"`
	}) (*struct {
		Body BatchValidationResponse `json:"body"`
	}, error) {
		a, err := e.Repo.GetActivity(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		if err := requireStaff(ctx, e, a.OrgID); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := e.ValidateAll(ctx, input.ID, input.Body.MemberIDs, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body BatchValidationResponse `json:"body"`
		}{Body: BatchValidationResponse{Processed: res.Processed, Failed: res.Failed}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reject-all",
		Method:      http.MethodPost,
		Path:        "/activities/{id}/validations/reject-all",
		Summary:     "Reject all accepted applicants",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		ID   string                 `path:"id"`
		Body BatchValidationRequest `required:"false"`
	}) (*struct {
		Body BatchValidationResponse `json:"body"`
	}, error) {
		a, err := e.Repo.GetActivity(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		if err := requireStaff(ctx, e, a.OrgID); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := e.RejectAll(ctx, input.ID, input.Body.MemberIDs, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body BatchValidationResponse `json:"body"`
		}{Body: BatchValidationResponse{Processed: res.Processed, Failed: res.Failed}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-validations",
		Method:      http.MethodGet,
		Path:        "/activities/{id}/validations",
		Summary:     "List activity validations",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body []ValidationResponse `json:"body"`
	}, error) {
		a, err := e.Repo.GetActivity(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		if err := requireStaff(ctx, e, a.OrgID); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListActivityValidations(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []ValidationResponse `json:"body"`
		}{Body: mapValidations(items)}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List events",
	}, func(ctx context.Context, input *struct {
		Limit      int    `query:"limit" default:"50"`
		Cursor     int64  `query:"cursor"`
		OrgID      string `query:"org_id"`
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind"`
		EntityID   string `query:"entity_id"`
	}) (*struct {
		Body []EventResponse `json:"body"`
	}, error) {
		limit := input.Limit
		if limit <= 0 || limit > 500 {
			limit = 50
		}
		items, err := e.Repo.LatestEventsFrom(ctx, limit, input.Cursor, input.OrgID, input.Type, input.EntityKind, input.EntityID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []EventResponse `json:"body"`
		}{Body: mapEvents(items)}, nil
	})
}

func registerAPIKeys(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-apikey",
		Method:        http.MethodPost,
		Path:          "/apikeys",
		Summary:       "Create API key",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateAPIKeyRequest `json:"body"`
	}) (*struct {
		Body APIKeyResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if input.Body.ActorID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "actor_id is required", nil)
		}
		if err := requireStaff(ctx, e, defaultOrg(e, input.Body.OrgID)); err != nil {
			return nil, handleError(err)
		}
		key, record, err := e.MintAPIKey(ctx, input.Body.ActorID, input.Body.Role, input.Body.OrgID, input.Body.Name)
		if err != nil {
			return nil, handleError(err)
		}
		res := apiKeyResponse(record)
		res.Key = key
		return &struct {
			Body APIKeyResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-apikeys",
		Method:      http.MethodGet,
		Path:        "/apikeys",
		Summary:     "List API keys",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		ActorID string `query:"actor_id"`
	}) (*struct {
		Body []APIKeyResponse `json:"body"`
	}, error) {
		if err := requireStaff(ctx, e, defaultOrg(e, "")); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListAPIKeys(ctx, input.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]APIKeyResponse, 0, len(items))
		for _, k := range items {
			res = append(res, apiKeyResponse(k))
		}
		return &struct {
			Body []APIKeyResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-apikey",
		Method:      http.MethodDelete,
		Path:        "/apikeys/{id}",
		Summary:     "Delete API key",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		if err := requireStaff(ctx, e, defaultOrg(e, "")); err != nil {
			return nil, handleError(err)
		}
		if err := e.Repo.DeleteAPIKey(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}
