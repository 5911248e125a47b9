package mcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/psabridge/internal/autotask"
	"github.com/fyrsmithlabs/psabridge/internal/metadata"
	"github.com/fyrsmithlabs/psabridge/internal/psaerr"
	"github.com/fyrsmithlabs/psabridge/internal/validate"
)

// Tool names.
const (
	toolUpdateTicket     = "autotask_update_ticket"
	toolCreateTicketNote = "autotask_create_ticket_note"
	toolGetTicket        = "autotask_get_ticket"
	toolSearchResources  = "autotask_search_resources"
	toolTestConnection   = "autotask_test_connection"
)

// ToolError is the structured failure payload every tool returns. It never
// carries raw upstream response text.
type ToolError struct {
	Code          string `json:"code"`
	Message       string `json:"message"`
	Guidance      string `json:"guidance"`
	CorrelationID string `json:"correlationId"`
}

// UpdateTicketInput is the argument object for autotask_update_ticket.
// assignedResourceID is tri-state: absent leaves the assignment alone, an
// id reassigns, and an explicit null unassigns.
type UpdateTicketInput struct {
	TicketID           int64               `json:"ticketId"`
	Status             *int                `json:"status,omitempty"`
	Priority           *int                `json:"priority,omitempty"`
	QueueID            *int64              `json:"queueID,omitempty"`
	AssignedResourceID validate.NullableID `json:"assignedResourceID,omitempty"`
	Title              *string             `json:"title,omitempty"`
	Description        *string             `json:"description,omitempty"`
	Resolution         *string             `json:"resolution,omitempty"`
	DueDateTime        *string             `json:"dueDateTime,omitempty"`
}

// TicketOutput is the result payload for ticket tools.
type TicketOutput struct {
	Message       string           `json:"message,omitempty"`
	Ticket        *autotask.Ticket `json:"ticket,omitempty"`
	UpdatedFields []string         `json:"updatedFields,omitempty"`
	Error         *ToolError       `json:"error,omitempty"`
}

// CreateTicketNoteInput is the argument object for autotask_create_ticket_note.
type CreateTicketNoteInput struct {
	TicketID    int64   `json:"ticketId"`
	Title       *string `json:"title,omitempty"`
	Description string  `json:"description"`
	Publish     int     `json:"publish"`
}

// NoteOutput is the result payload for autotask_create_ticket_note.
type NoteOutput struct {
	Message string               `json:"message,omitempty"`
	Note    *autotask.TicketNote `json:"note,omitempty"`
	Error   *ToolError           `json:"error,omitempty"`
}

// GetTicketInput is the argument object for autotask_get_ticket.
type GetTicketInput struct {
	TicketID int64 `json:"ticketId" jsonschema:"id of the ticket to fetch"`
}

// SearchResourcesInput is the argument object for autotask_search_resources.
type SearchResourcesInput struct {
	Query string `json:"query,omitempty" jsonschema:"optional case-insensitive substring to match against resource names"`
}

// SearchResourcesOutput lists the cached active resources.
type SearchResourcesOutput struct {
	Resources   []metadata.Entry `json:"resources"`
	Count       int              `json:"count"`
	LastRefresh string           `json:"lastRefresh,omitempty"`
	Stale       bool             `json:"stale,omitempty"`
}

// TestConnectionInput is the (empty) argument object for
// autotask_test_connection.
type TestConnectionInput struct{}

// TestConnectionOutput reports connection and cache health.
type TestConnectionOutput struct {
	Status           string     `json:"status"`
	Message          string     `json:"message,omitempty"`
	CacheLastRefresh string     `json:"cacheLastRefresh,omitempty"`
	CacheError       string     `json:"cacheError,omitempty"`
	Error            *ToolError `json:"error,omitempty"`
}

// registerTools registers all Autotask tools on the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        toolUpdateTicket,
		Description: "Update fields on an Autotask ticket. Only the fields named in the request are changed. Set assignedResourceID to null to unassign the ticket.",
		InputSchema: updateTicketSchema(),
	}, s.handleUpdateTicket)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        toolCreateTicketNote,
		Description: "Create a note on an Autotask ticket. publish must be 1 (internal only) or 3 (visible to the customer).",
		InputSchema: createTicketNoteSchema(),
	}, s.handleCreateTicketNote)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        toolGetTicket,
		Description: "Fetch an Autotask ticket by id.",
	}, s.handleGetTicket)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        toolSearchResources,
		Description: "List the active Autotask resources known to the bridge, optionally filtered by name. Assignment requests are validated against this set.",
	}, s.handleSearchResources)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        toolTestConnection,
		Description: "Verify that the bridge can reach the Autotask API and report reference cache freshness.",
	}, s.handleTestConnection)
}

// updateTicketSchema is written by hand because assignedResourceID accepts
// both an integer and an explicit null, which schema inference from the
// input struct cannot express.
func updateTicketSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:     "object",
		Required: []string{"ticketId"},
		Properties: map[string]*jsonschema.Schema{
			"ticketId": {
				Type:        "integer",
				Description: "id of the ticket to update",
				Minimum:     jsonPtr(1),
			},
			"status": {
				Type:        "integer",
				Description: "new ticket status id",
			},
			"priority": {
				Type:        "integer",
				Description: "new ticket priority id",
			},
			"queueID": {
				Type:        "integer",
				Description: "id of the queue to move the ticket to",
			},
			"assignedResourceID": {
				Types:       []string{"integer", "null"},
				Description: "id of the resource to assign, or null to unassign",
			},
			"title": {
				Type:        "string",
				Description: "new ticket title",
			},
			"description": {
				Type:        "string",
				Description: "new ticket description",
			},
			"resolution": {
				Type:        "string",
				Description: "new ticket resolution text",
			},
			"dueDateTime": {
				Type:        "string",
				Description: "new due date in ISO 8601 form",
			},
		},
		AdditionalProperties: &jsonschema.Schema{Not: &jsonschema.Schema{}},
	}
}

// createTicketNoteSchema pins publish to the closed {1, 3} visibility set.
func createTicketNoteSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:     "object",
		Required: []string{"ticketId", "description", "publish"},
		Properties: map[string]*jsonschema.Schema{
			"ticketId": {
				Type:        "integer",
				Description: "id of the ticket to attach the note to",
				Minimum:     jsonPtr(1),
			},
			"title": {
				Type:        "string",
				Description: "optional note title; a dated default is used when omitted",
			},
			"description": {
				Type:        "string",
				Description: "note body",
			},
			"publish": {
				Type:        "integer",
				Description: "note visibility: 1 = internal only, 3 = visible to the customer",
				Enum:        []any{1, 3},
			},
		},
		AdditionalProperties: &jsonschema.Schema{Not: &jsonschema.Schema{}},
	}
}

func jsonPtr(v float64) *float64 { return &v }

func (s *Server) handleUpdateTicket(ctx context.Context, req *mcp.CallToolRequest, in UpdateTicketInput) (*mcp.CallToolResult, TicketOutput, error) {
	var toolErr error
	start := time.Now()
	s.metrics.IncrementActive(ctx, toolUpdateTicket)
	defer func() {
		s.metrics.DecrementActive(ctx, toolUpdateTicket)
		s.metrics.RecordInvocation(ctx, toolUpdateTicket, time.Since(start), toolErr)
	}()

	result := s.orch.UpdateTicket(ctx, &validate.TicketUpdateRequest{
		TicketID:         in.TicketID,
		Status:           in.Status,
		Priority:         in.Priority,
		QueueID:          in.QueueID,
		AssignedResource: in.AssignedResourceID,
		Title:            in.Title,
		Description:      in.Description,
		Resolution:       in.Resolution,
		DueDateTime:      in.DueDateTime,
	})
	if result.IsError {
		toolErr = result.Err
		s.logger.Warn("update ticket failed",
			zap.Int64("ticket_id", in.TicketID),
			zap.String("code", string(result.Err.Code)),
			zap.String("correlation_id", result.Err.CorrelationID))
		return failureResult(result.Err), TicketOutput{Error: toolError(result.Err)}, nil
	}

	out := TicketOutput{
		Message:       result.Message,
		UpdatedFields: result.Data.UpdatedFields,
	}
	if ticket, ok := result.Data.Entity.(*autotask.Ticket); ok {
		out.Ticket = ticket
	}
	return successResult(result.Message), out, nil
}

func (s *Server) handleCreateTicketNote(ctx context.Context, req *mcp.CallToolRequest, in CreateTicketNoteInput) (*mcp.CallToolResult, NoteOutput, error) {
	var toolErr error
	start := time.Now()
	s.metrics.IncrementActive(ctx, toolCreateTicketNote)
	defer func() {
		s.metrics.DecrementActive(ctx, toolCreateTicketNote)
		s.metrics.RecordInvocation(ctx, toolCreateTicketNote, time.Since(start), toolErr)
	}()

	result := s.orch.CreateTicketNote(ctx, &validate.NoteCreateRequest{
		TicketID:    in.TicketID,
		Title:       in.Title,
		Description: in.Description,
		Publish:     in.Publish,
	})
	if result.IsError {
		toolErr = result.Err
		s.logger.Warn("create ticket note failed",
			zap.Int64("ticket_id", in.TicketID),
			zap.String("code", string(result.Err.Code)),
			zap.String("correlation_id", result.Err.CorrelationID))
		return failureResult(result.Err), NoteOutput{Error: toolError(result.Err)}, nil
	}

	out := NoteOutput{Message: result.Message}
	if note, ok := result.Data.Entity.(*autotask.TicketNote); ok {
		out.Note = note
	}
	return successResult(result.Message), out, nil
}

func (s *Server) handleGetTicket(ctx context.Context, req *mcp.CallToolRequest, in GetTicketInput) (*mcp.CallToolResult, TicketOutput, error) {
	var toolErr error
	start := time.Now()
	s.metrics.IncrementActive(ctx, toolGetTicket)
	defer func() {
		s.metrics.DecrementActive(ctx, toolGetTicket)
		s.metrics.RecordInvocation(ctx, toolGetTicket, time.Since(start), toolErr)
	}()

	result := s.orch.GetTicket(ctx, in.TicketID)
	if result.IsError {
		toolErr = result.Err
		return failureResult(result.Err), TicketOutput{Error: toolError(result.Err)}, nil
	}

	out := TicketOutput{Message: result.Message}
	if ticket, ok := result.Data.Entity.(*autotask.Ticket); ok {
		out.Ticket = ticket
	}
	return successResult(result.Message), out, nil
}

func (s *Server) handleSearchResources(ctx context.Context, req *mcp.CallToolRequest, in SearchResourcesInput) (*mcp.CallToolResult, SearchResourcesOutput, error) {
	start := time.Now()
	s.metrics.IncrementActive(ctx, toolSearchResources)
	defer func() {
		s.metrics.DecrementActive(ctx, toolSearchResources)
		s.metrics.RecordInvocation(ctx, toolSearchResources, time.Since(start), nil)
	}()

	// Served entirely from the cache snapshot; no Autotask round trip.
	resources := s.cache.Resources()
	if q := strings.ToLower(strings.TrimSpace(in.Query)); q != "" {
		filtered := resources[:0]
		for _, r := range resources {
			if strings.Contains(strings.ToLower(r.Name), q) {
				filtered = append(filtered, r)
			}
		}
		resources = filtered
	}
	if resources == nil {
		resources = []metadata.Entry{}
	}

	out := SearchResourcesOutput{
		Resources: resources,
		Count:     len(resources),
	}
	lastRefresh, lastErr := s.cache.LastRefresh()
	if !lastRefresh.IsZero() {
		out.LastRefresh = lastRefresh.UTC().Format(time.RFC3339)
	}
	out.Stale = lastErr != nil

	msg := fmt.Sprintf("%d active resources", out.Count)
	if out.Stale {
		msg += " (reference cache is stale; assignment validation is failing closed)"
	}
	return successResult(msg), out, nil
}

func (s *Server) handleTestConnection(ctx context.Context, req *mcp.CallToolRequest, in TestConnectionInput) (*mcp.CallToolResult, TestConnectionOutput, error) {
	var toolErr error
	start := time.Now()
	s.metrics.IncrementActive(ctx, toolTestConnection)
	defer func() {
		s.metrics.DecrementActive(ctx, toolTestConnection)
		s.metrics.RecordInvocation(ctx, toolTestConnection, time.Since(start), toolErr)
	}()

	out := TestConnectionOutput{}
	lastRefresh, lastErr := s.cache.LastRefresh()
	if !lastRefresh.IsZero() {
		out.CacheLastRefresh = lastRefresh.UTC().Format(time.RFC3339)
	}
	if lastErr != nil {
		out.CacheError = lastErr.Error()
	}

	result := s.orch.TestConnection(ctx)
	if result.IsError {
		toolErr = result.Err
		out.Status = "error"
		out.Error = toolError(result.Err)
		return failureResult(result.Err), out, nil
	}

	out.Status = "ok"
	out.Message = result.Message
	return successResult(result.Message), out, nil
}

// toolError converts a mapped error to the wire payload.
func toolError(m *psaerr.MappedError) *ToolError {
	return &ToolError{
		Code:          string(m.Code),
		Message:       m.Message,
		Guidance:      m.Guidance,
		CorrelationID: m.CorrelationID,
	}
}

// failureResult renders a mapped error as an MCP tool failure. The text
// carries the same closed vocabulary as the structured payload.
func failureResult(m *psaerr.MappedError) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{
			Text: fmt.Sprintf("%s: %s %s (correlation id %s)", m.Code, m.Message, m.Guidance, m.CorrelationID),
		}},
	}
}

func successResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: msg}},
	}
}
