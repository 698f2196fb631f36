package hazardlinesdk

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

// Client is a minimal Hazardline HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "v0",
		Timeout:  10 * time.Second,
	}
}

// Slot is one PACE assignment.
type Slot struct {
	ID                 string `json:"id,omitempty"`
	AssigneeType       string `json:"assignee_type,omitempty"`
	AssigneeRef        string `json:"assignee_ref,omitempty"`
	CustomName         string `json:"custom_name,omitempty"`
	CustomEmail        string `json:"custom_email,omitempty"`
	CustomInstructions string `json:"custom_instructions,omitempty"`
	Status             string `json:"status,omitempty"`
	Response           string `json:"response,omitempty"`
}

type Pace struct {
	ProcessOwner Slot   `json:"process_owner"`
	Approver     Slot   `json:"approver"`
	Contributors []Slot `json:"contributors"`
	Executers    []Slot `json:"executers"`
}

type HistoryEntry struct {
	Stage     string `json:"stage"`
	Timestamp string `json:"timestamp"`
	Actor     string `json:"actor"`
	Action    string `json:"action"`
}

// Hazard represents the API hazard model (partial).
type Hazard struct {
	ID                    string         `json:"id"`
	Title                 string         `json:"title"`
	Description           string         `json:"description"`
	Severity              string         `json:"severity"`
	ReportedBy            string         `json:"reported_by"`
	Stage                 string         `json:"workflow_stage"`
	WhyAnalysis           []string       `json:"why_analysis"`
	Pace                  *Pace          `json:"pace_assignments,omitempty"`
	FinalCorrectiveAction string         `json:"final_corrective_action,omitempty"`
	History               []HistoryEntry `json:"workflow_history,omitempty"`
	Version               int64          `json:"version"`
}

// SubmitRequest is the body of a new hazard report.
type SubmitRequest struct {
	Title                string `json:"title"`
	Description          string `json:"description"`
	Severity             string `json:"severity"`
	ReportedBy           string `json:"reported_by,omitempty"`
	Location             string `json:"location,omitempty"`
	ImmediateActions     string `json:"immediate_actions,omitempty"`
	SubmitterLineManager string `json:"submitter_line_manager,omitempty"`
	IsAnonymous          bool   `json:"is_anonymous,omitempty"`
}

type Feedback struct {
	Role     string `json:"role"`
	Name     string `json:"name,omitempty"`
	Response string `json:"response"`
	Pending  bool   `json:"pending"`
}

// Report is the corrective-action report preview.
type Report struct {
	HazardID string     `json:"hazard_id"`
	Stage    string     `json:"stage"`
	Feedback []Feedback `json:"feedback"`
	Plan     string     `json:"plan"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	EntityID   string         `json:"entity_id"`
	EntityKind string         `json:"entity_kind"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d code=%s body=%s", e.StatusCode, e.Code, e.Body)
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// PaginatedHazards wraps hazard listings with cursors.
type PaginatedHazards struct {
	Items      []Hazard `json:"items"`
	NextCursor string   `json:"next_cursor"`
}

func (c *Client) Submit(ctx context.Context, req SubmitRequest) (Hazard, error) {
	var resp Hazard
	err := c.do(ctx, http.MethodPost, c.path("hazards"), req, &resp)
	return resp, err
}

func (c *Client) Get(ctx context.Context, id string) (Hazard, error) {
	var resp Hazard
	err := c.do(ctx, http.MethodGet, c.hazardPath(id, ""), nil, &resp)
	return resp, err
}

// List returns one page of hazards, optionally filtered by stage.
func (c *Client) List(ctx context.Context, stage string, limit int, cursor string) (PaginatedHazards, error) {
	q := url.Values{}
	if stage != "" {
		q.Set("stage", stage)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	var resp PaginatedHazards
	err := c.do(ctx, http.MethodGet, withQuery(c.path("hazards"), q), nil, &resp)
	return resp, err
}

// Advance moves the hazard to its next stage.
func (c *Client) Advance(ctx context.Context, id, stage string) (Hazard, error) {
	var resp Hazard
	err := c.do(ctx, http.MethodPost, c.hazardPath(id, "advance"), map[string]string{"stage": stage}, &resp)
	return resp, err
}

func (c *Client) Navigate(ctx context.Context, id, stage string) (Hazard, error) {
	var resp Hazard
	err := c.do(ctx, http.MethodPost, c.hazardPath(id, "navigate"), map[string]string{"stage": stage}, &resp)
	return resp, err
}

// Decide approves or rejects the plan at the current approval stage.
func (c *Client) Decide(ctx context.Context, id string, approved bool, comments string) (Hazard, error) {
	op := "approve"
	if !approved {
		op = "reject"
	}
	var resp Hazard
	err := c.do(ctx, http.MethodPost, c.hazardPath(id, op), map[string]string{"comments": comments}, &resp)
	return resp, err
}

func (c *Client) RecordRisk(ctx context.Context, id string, severity, likelihood int) (Hazard, error) {
	var resp Hazard
	err := c.do(ctx, http.MethodPut, c.hazardPath(id, "risk"), map[string]int{"severity": severity, "likelihood": likelihood}, &resp)
	return resp, err
}

// SetProcessOwner assigns a platform user as Process Owner.
func (c *Client) SetProcessOwner(ctx context.Context, id string, slot Slot) (Hazard, error) {
	var resp Hazard
	err := c.do(ctx, http.MethodPut, c.hazardPath(id, "pace/process-owner"), slot, &resp)
	return resp, err
}

// AddContributor returns the updated hazard and the new slot id.
func (c *Client) AddContributor(ctx context.Context, id string, slot Slot) (Hazard, string, error) {
	var resp struct {
		Hazard Hazard `json:"hazard"`
		SlotID string `json:"slot_id"`
	}
	err := c.do(ctx, http.MethodPost, c.hazardPath(id, "pace/contributors"), slot, &resp)
	return resp.Hazard, resp.SlotID, err
}

// Respond records an assignee response; slot is "processOwner",
// "contributor:<id>" and so on.
func (c *Client) Respond(ctx context.Context, id, slot, text string) (Hazard, error) {
	var resp Hazard
	err := c.do(ctx, http.MethodPost, c.hazardPath(id, "responses"), map[string]string{"slot": slot, "text": text}, &resp)
	return resp, err
}

func (c *Client) SynthesizePlan(ctx context.Context, id, text string) (Hazard, error) {
	var resp Hazard
	err := c.do(ctx, http.MethodPut, c.hazardPath(id, "plan"), map[string]string{"text": text}, &resp)
	return resp, err
}

func (c *Client) Report(ctx context.Context, id string) (Report, error) {
	var resp Report
	err := c.do(ctx, http.MethodGet, c.hazardPath(id, "report"), nil, &resp)
	return resp, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, limit, "")
	return page.Items, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, withQuery(c.path("events"), q), nil, &resp)
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
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var envelope struct {
			Error struct {
				Code string `json:"code"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &envelope) == nil {
			apiErr.Code = envelope.Error.Code
		}
		return apiErr
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) path(p string) string {
	return strings.Trim(c.BasePath, "/") + "/" + strings.TrimLeft(p, "/")
}

func (c *Client) hazardPath(id, sub string) string {
	p := "hazards/" + url.PathEscape(id)
	if sub != "" {
		p += "/" + sub
	}
	return c.path(p)
}

func withQuery(endpoint string, q url.Values) string {
	if len(q) == 0 {
		return endpoint
	}
	return endpoint + "?" + q.Encode()
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
