// Package validate enforces correctness of Autotask write requests before
// any network call.
//
// Validation runs in two stages: structural (presence, type, length,
// allow-listed enumerations, positive identifiers) and business-rule
// (membership checks against the metadata cache snapshot). All violations
// across all fields are aggregated into one error list; the validator never
// stops at the first failing field. Output is a sanitized draft holding
// only fields that passed, from which the capitalized transport payload is
// built. No field reaches the payload without being explicitly
// allow-listed here.
package validate

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/psabridge/internal/metadata"
)

// Validation limits.
const (
	// MaxNoteLength is the ceiling for note bodies, in characters.
	MaxNoteLength = 32000

	// MaxTitleLength is the ceiling for titles, in characters.
	MaxTitleLength = 255
)

// Note visibility codes. This is a closed two-value set; nothing else is
// accepted or forwarded.
const (
	PublishInternal = 1
	PublishExternal = 3
)

// Reference is the metadata cache snapshot view the business stage reads.
// *metadata.Cache satisfies this.
type Reference interface {
	IsValidStatus(id int) bool
	IsValidPriority(id int) bool
	IsValidResource(id int64) bool
	Statuses() []metadata.Entry
	Priorities() []metadata.Entry
}

// NullableID distinguishes an absent field from an explicit JSON null.
// For assignedResourceID, null is the always-valid "unassign" sentinel and
// must never be confused with an unknown id.
type NullableID struct {
	Present bool
	Null    bool
	ID      int64
}

// UnmarshalJSON implements json.Unmarshaler. It only runs when the field is
// present, so Present is always true here.
func (n *NullableID) UnmarshalJSON(data []byte) error {
	n.Present = true
	if string(data) == "null" {
		n.Null = true
		return nil
	}
	return json.Unmarshal(data, &n.ID)
}

// Assigned returns a NullableID carrying an id.
func Assigned(id int64) NullableID {
	return NullableID{Present: true, ID: id}
}

// Unassigned returns the explicit unassign sentinel.
func Unassigned() NullableID {
	return NullableID{Present: true, Null: true}
}

// Result is the outcome of one validation pass.
type Result struct {
	Valid  bool     `json:"isValid"`
	Errors []string `json:"errors"`
}

// TicketUpdateRequest is the flat argument object for a ticket update. Nil
// pointers mean the field was not named.
type TicketUpdateRequest struct {
	TicketID         int64
	Status           *int
	Priority         *int
	QueueID          *int64
	AssignedResource NullableID
	Title            *string
	Description      *string
	Resolution       *string
	DueDateTime      *string
}

// NoteCreateRequest is the flat argument object for ticket note creation.
type NoteCreateRequest struct {
	TicketID    int64
	Title       *string
	Description string
	Publish     int
}

// TicketUpdateDraft holds the sanitized field subset that passed
// validation.
type TicketUpdateDraft struct {
	TicketID         int64
	Status           *int
	Priority         *int
	QueueID          *int64
	AssignedResource NullableID
	Title            *string
	Description      *string
	Resolution       *string
	DueDateTime      *string
}

// Fields lists the logical field names the draft will change, in payload
// order.
func (d *TicketUpdateDraft) Fields() []string {
	var fields []string
	if d.Status != nil {
		fields = append(fields, "status")
	}
	if d.Priority != nil {
		fields = append(fields, "priority")
	}
	if d.QueueID != nil {
		fields = append(fields, "queueID")
	}
	if d.AssignedResource.Present {
		fields = append(fields, "assignedResourceID")
	}
	if d.Title != nil {
		fields = append(fields, "title")
	}
	if d.Description != nil {
		fields = append(fields, "description")
	}
	if d.Resolution != nil {
		fields = append(fields, "resolution")
	}
	if d.DueDateTime != nil {
		fields = append(fields, "dueDateTime")
	}
	return fields
}

// Payload builds the capitalized transport payload exclusively from the
// draft. An unassign sentinel becomes an explicit null AssignedResourceID.
func (d *TicketUpdateDraft) Payload() map[string]any {
	payload := map[string]any{}
	if d.Status != nil {
		payload["Status"] = *d.Status
	}
	if d.Priority != nil {
		payload["Priority"] = *d.Priority
	}
	if d.QueueID != nil {
		payload["QueueID"] = *d.QueueID
	}
	if d.AssignedResource.Present {
		if d.AssignedResource.Null {
			payload["AssignedResourceID"] = nil
		} else {
			payload["AssignedResourceID"] = d.AssignedResource.ID
		}
	}
	if d.Title != nil {
		payload["Title"] = *d.Title
	}
	if d.Description != nil {
		payload["Description"] = *d.Description
	}
	if d.Resolution != nil {
		payload["Resolution"] = *d.Resolution
	}
	if d.DueDateTime != nil {
		payload["DueDateTime"] = *d.DueDateTime
	}
	return payload
}

// NoteDraft holds the sanitized note fields that passed validation.
type NoteDraft struct {
	TicketID    int64
	Title       string
	Description string
	Publish     int
}

// Payload builds the capitalized transport payload for note creation.
func (d *NoteDraft) Payload() map[string]any {
	payload := map[string]any{
		"TicketID":    d.TicketID,
		"Description": d.Description,
		"Publish":     d.Publish,
	}
	if d.Title != "" {
		payload["Title"] = d.Title
	}
	return payload
}

// Validator performs two-stage request validation against a reference
// snapshot.
type Validator struct {
	ref    Reference
	logger *zap.Logger
}

// NewValidator creates a validator reading the given reference snapshot.
func NewValidator(ref Reference, logger *zap.Logger) (*Validator, error) {
	if ref == nil {
		return nil, fmt.Errorf("reference snapshot is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Validator{ref: ref, logger: logger.Named("validate")}, nil
}

// TicketUpdate validates an update request. On success it returns the
// sanitized draft and a valid Result; on failure the draft is nil and the
// Result aggregates every violation found.
func (v *Validator) TicketUpdate(req *TicketUpdateRequest) (*TicketUpdateDraft, *Result) {
	var errs []string

	if req.TicketID <= 0 {
		errs = append(errs, "ticketId must be a positive integer")
	}

	if !namesMutableField(req) {
		errs = append(errs, "update names no field to change; provide at least one of status, priority, queueID, assignedResourceID, title, description, resolution, dueDateTime")
	}

	draft := &TicketUpdateDraft{TicketID: req.TicketID}

	if req.Status != nil {
		if *req.Status <= 0 {
			errs = append(errs, "status must be a positive integer")
		} else if !v.ref.IsValidStatus(*req.Status) {
			errs = append(errs, fmt.Sprintf("status %d is not a valid status; valid statuses: %s",
				*req.Status, enumerate(v.ref.Statuses())))
		} else {
			draft.Status = req.Status
		}
	}

	if req.Priority != nil {
		if *req.Priority <= 0 {
			errs = append(errs, "priority must be a positive integer")
		} else if !v.ref.IsValidPriority(*req.Priority) {
			errs = append(errs, fmt.Sprintf("priority %d is not a valid priority; valid priorities: %s",
				*req.Priority, enumerate(v.ref.Priorities())))
		} else {
			draft.Priority = req.Priority
		}
	}

	if req.QueueID != nil {
		if *req.QueueID <= 0 {
			errs = append(errs, "queueID must be a positive integer")
		} else {
			draft.QueueID = req.QueueID
		}
	}

	if req.AssignedResource.Present {
		switch {
		case req.AssignedResource.Null:
			// Explicit unassign: always valid.
			draft.AssignedResource = req.AssignedResource
		case req.AssignedResource.ID <= 0:
			errs = append(errs, "assignedResourceID must be a positive integer or null to unassign")
		case !v.ref.IsValidResource(req.AssignedResource.ID):
			errs = append(errs, fmt.Sprintf("assignedResourceID %d is not an active resource; refresh the resource list or use null to unassign",
				req.AssignedResource.ID))
		default:
			draft.AssignedResource = req.AssignedResource
		}
	}

	if req.Title != nil {
		title := NormalizeText(*req.Title)
		if title == "" {
			errs = append(errs, "title must not be empty when provided")
		} else if n := utf8.RuneCountInString(title); n > MaxTitleLength {
			errs = append(errs, fmt.Sprintf("title exceeds maximum length of %d characters (got %d)", MaxTitleLength, n))
		} else {
			draft.Title = &title
		}
	}

	if text, msg := optionalText(req.Description, "description", MaxNoteLength); msg != "" {
		errs = append(errs, msg)
	} else if text != nil {
		draft.Description = text
	}

	if text, msg := optionalText(req.Resolution, "resolution", MaxNoteLength); msg != "" {
		errs = append(errs, msg)
	} else if text != nil {
		draft.Resolution = text
	}

	if req.DueDateTime != nil {
		due := strings.TrimSpace(*req.DueDateTime)
		if due == "" {
			errs = append(errs, "dueDateTime must not be empty when provided")
		} else {
			draft.DueDateTime = &due
		}
	}

	if len(errs) > 0 {
		return nil, &Result{Valid: false, Errors: errs}
	}
	return draft, &Result{Valid: true}
}

// NoteCreate validates a note creation request.
func (v *Validator) NoteCreate(req *NoteCreateRequest) (*NoteDraft, *Result) {
	var errs []string

	if req.TicketID <= 0 {
		errs = append(errs, "ticketId must be a positive integer")
	}

	description := NormalizeText(req.Description)
	if description == "" {
		errs = append(errs, "description is required")
	} else if n := utf8.RuneCountInString(description); n > MaxNoteLength {
		errs = append(errs, fmt.Sprintf("description exceeds maximum length of %d characters (got %d)", MaxNoteLength, n))
	}

	var title string
	if req.Title != nil {
		title = NormalizeText(*req.Title)
		if n := utf8.RuneCountInString(title); n > MaxTitleLength {
			errs = append(errs, fmt.Sprintf("title exceeds maximum length of %d characters (got %d)", MaxTitleLength, n))
		}
	}

	if req.Publish != PublishInternal && req.Publish != PublishExternal {
		errs = append(errs, fmt.Sprintf("publish must be %d (internal) or %d (external), got %d",
			PublishInternal, PublishExternal, req.Publish))
	}

	if len(errs) > 0 {
		return nil, &Result{Valid: false, Errors: errs}
	}
	return &NoteDraft{
		TicketID:    req.TicketID,
		Title:       title,
		Description: description,
		Publish:     req.Publish,
	}, &Result{Valid: true}
}

// namesMutableField reports whether the request names at least one field
// beyond the identifying key.
func namesMutableField(req *TicketUpdateRequest) bool {
	return req.Status != nil ||
		req.Priority != nil ||
		req.QueueID != nil ||
		req.AssignedResource.Present ||
		req.Title != nil ||
		req.Description != nil ||
		req.Resolution != nil ||
		req.DueDateTime != nil
}

// optionalText sanitizes an optional free-text field and checks its length.
func optionalText(s *string, name string, max int) (*string, string) {
	if s == nil {
		return nil, ""
	}
	text := NormalizeText(*s)
	if n := utf8.RuneCountInString(text); n > max {
		return nil, fmt.Sprintf("%s exceeds maximum length of %d characters (got %d)", name, max, n)
	}
	return &text, ""
}

// enumerate renders reference entries as "id (name)" for error messages.
func enumerate(entries []metadata.Entry) string {
	if len(entries) == 0 {
		return "none (reference cache is empty)"
	}
	parts := make([]string, len(entries))
	for i, e := range entries {
		parts[i] = fmt.Sprintf("%d (%s)", e.ID, e.Name)
	}
	return strings.Join(parts, ", ")
}
