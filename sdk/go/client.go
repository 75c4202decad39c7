package volunasdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Voluna HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Activity represents the API activity model (partial).
type Activity struct {
	ID             string `json:"id"`
	OrgID          string `json:"org_id"`
	Type           string `json:"type"`
	Status         string `json:"status"`
	Title          string `json:"title"`
	RewardPoints   int    `json:"reward_points"`
	StartDate      string `json:"start_date"`
	ApplicantCount int    `json:"applicant_count"`
}

// Application represents a member's application to an activity.
type Application struct {
	ID         string `json:"id"`
	ActivityID string `json:"activity_id"`
	MemberID   string `json:"member_id"`
	OrgID      string `json:"org_id"`
	Status     string `json:"status"`
	Message    string `json:"message,omitempty"`
	Note       string `json:"note,omitempty"`
	CreatedAt  string `json:"created_at"`
	UpdatedAt  string `json:"updated_at"`
}

// ValidationResult is returned by validation calls.
type ValidationResult struct {
	ActivityID    string   `json:"activity_id"`
	MemberID      string   `json:"member_id"`
	PointsAwarded int      `json:"points_awarded"`
	BadgesGranted []string `json:"badges_granted,omitempty"`
}

// Event represents a log entry.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	OrgID      string `json:"org_id"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// Member represents a volunteer account.
type Member struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Points int    `json:"points"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateActivity creates a draft activity.
func (c *Client) CreateActivity(ctx context.Context, activityType, title string, rewardPoints int, startDate string) (Activity, error) {
	body := map[string]any{
		"type":          activityType,
		"title":         title,
		"reward_points": rewardPoints,
		"start_date":    startDate,
	}
	var resp Activity
	err := c.do(ctx, http.MethodPost, "v0/activities", body, &resp)
	return resp, err
}

// Activities lists activities, optionally filtered by status.
func (c *Client) Activities(ctx context.Context, status string) ([]Activity, error) {
	endpoint := "v0/activities"
	if status != "" {
		endpoint += "?status=" + url.QueryEscape(status)
	}
	var resp []Activity
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Apply submits an application for the authenticated member.
func (c *Client) Apply(ctx context.Context, activityID, message string) (Application, error) {
	body := map[string]any{"message": message}
	var resp Application
	endpoint := fmt.Sprintf("v0/activities/%s/applications", url.PathEscape(activityID))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// ValidateToken submits a scanned completion token.
func (c *Client) ValidateToken(ctx context.Context, activityID, memberID, token string) (ValidationResult, error) {
	body := map[string]any{
		"member_id": memberID,
		"token":     token,
	}
	var resp ValidationResult
	endpoint := fmt.Sprintf("v0/activities/%s/validate", url.PathEscape(activityID))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// ValidateManually validates a member without a token (staff only).
func (c *Client) ValidateManually(ctx context.Context, activityID, memberID string) (ValidationResult, error) {
	body := map[string]any{"member_id": memberID}
	var resp ValidationResult
	endpoint := fmt.Sprintf("v0/activities/%s/validations/manual", url.PathEscape(activityID))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// Member fetches a member profile.
func (c *Client) Member(ctx context.Context, memberID string) (Member, error) {
	var resp Member
	endpoint := fmt.Sprintf("v0/members/%s", url.PathEscape(memberID))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	endpoint := "v0/events"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp []Event
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
