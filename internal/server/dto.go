package server

import (
	"encoding/json"

	"hazardline/internal/domain"
	"hazardline/internal/pace"
	"hazardline/internal/risk"
	"hazardline/internal/stage"
)

// Request payloads

type StageRequest struct {
	Stage string `json:"stage" doc:"target workflow stage"`
}

type RiskRequest struct {
	Severity   int `json:"severity" minimum:"1" maximum:"5"`
	Likelihood int `json:"likelihood" minimum:"0" maximum:"4"`
}

type WhysRequest struct {
	Whys []string `json:"whys" maxItems:"5"`
}

type TextRequest struct {
	Text string `json:"text"`
}

type DecisionRequest struct {
	Comments string `json:"comments,omitempty"`
}

type SlotRequest struct {
	AssigneeType       string `json:"assignee_type,omitempty" enum:"user,custom"`
	AssigneeRef        string `json:"assignee_ref,omitempty"`
	CustomName         string `json:"custom_name,omitempty"`
	CustomEmail        string `json:"custom_email,omitempty"`
	CustomInstructions string `json:"custom_instructions,omitempty"`
}

func (r SlotRequest) fields() pace.Fields {
	return pace.Fields{
		AssigneeType:       domain.AssigneeType(r.AssigneeType),
		AssigneeRef:        r.AssigneeRef,
		CustomName:         r.CustomName,
		CustomEmail:        r.CustomEmail,
		CustomInstructions: r.CustomInstructions,
	}
}

type ComponentsRequest struct {
	Communications bool `json:"communications"`
	Training       bool `json:"training"`
	Policy         bool `json:"policy"`
	Equipment      bool `json:"equipment"`
}

type AttachmentRequest struct {
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
	Size int64  `json:"size,omitempty"`
	URL  string `json:"url,omitempty"`
}

type DevLoginRequest struct {
	ActorID string `json:"actor_id"`
}

type CreateAPIKeyRequest struct {
	Name string `json:"name,omitempty"`
}

// Responses

type StageResponse struct {
	Stage stage.Stage `json:"stage"`
	Label string      `json:"label"`
	Phase stage.Phase `json:"phase"`
}

type MemberResponse struct {
	Hazard domain.Hazard `json:"hazard"`
	SlotID string        `json:"slot_id"`
}

type AttachmentResponse struct {
	Hazard       domain.Hazard `json:"hazard"`
	AttachmentID string        `json:"attachment_id"`
}

type RootCausesResponse struct {
	HazardID   string           `json:"hazard_id"`
	Whys       domain.Whys      `json:"whys"`
	RootCauses []risk.RootCause `json:"root_causes"`
}

type RiskResponse struct {
	HazardID string        `json:"hazard_id"`
	Summary  *risk.Summary `json:"summary,omitempty"`
}

type ReportMarkdownResponse struct {
	HazardID string `json:"hazard_id"`
	Markdown string `json:"markdown"`
}

type RecipientsResponse struct {
	HazardID   string      `json:"hazard_id"`
	Stage      stage.Stage `json:"stage"`
	Recipients []string    `json:"recipients"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

type WhoAmIResponse struct {
	ActorID     string   `json:"actor_id"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
	Source      string   `json:"source,omitempty"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

type APIKeyResponse struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
	// Key is only returned once, on creation.
	Key string `json:"key,omitempty"`
}

type paginatedHazards struct {
	Items      []domain.Hazard `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

// Conversion helpers

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    decodeJSONMap(e.Payload),
	}
}

func apiKeyResponse(k domain.APIKey) APIKeyResponse {
	return APIKeyResponse{ID: k.ID, ActorID: k.ActorID, Name: k.Name, CreatedAt: k.CreatedAt}
}

func decodeJSONMap(raw string) map[string]any {
	if raw == "" {
		return nil
	}
	var tmp any
	if err := json.Unmarshal([]byte(raw), &tmp); err != nil {
		return nil
	}
	if obj, ok := tmp.(map[string]any); ok {
		return obj
	}
	return nil
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
