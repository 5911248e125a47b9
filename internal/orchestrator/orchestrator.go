// Package orchestrator composes validation, the connection gate, and error
// translation for single logical Autotask writes.
//
// Every operation follows the same path: validate against the current
// metadata snapshot (rejections cost no network round trip), build the
// minimal capitalized payload from the sanitized draft, invoke the shared
// client, and shape a uniform success or failure result. The orchestrator
// performs no retries and does not deduplicate concurrent identical calls;
// conflicting writes are resolved upstream and surface as CONFLICT.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/psabridge/internal/autotask"
	"github.com/fyrsmithlabs/psabridge/internal/psaerr"
	"github.com/fyrsmithlabs/psabridge/internal/validate"
)

// ClientSource hands out the shared Autotask client. *autotask.Gate
// satisfies this.
type ClientSource interface {
	Acquire(ctx context.Context) (autotask.Client, error)
}

// Data is the success payload of a Result.
type Data struct {
	Entity        any      `json:"entity"`
	UpdatedFields []string `json:"updatedFields,omitempty"`
}

// Result is the uniform operation outcome: either Message+Data or
// IsError+Err, never both.
type Result struct {
	Message string              `json:"message,omitempty"`
	Data    *Data               `json:"data,omitempty"`
	IsError bool                `json:"isError,omitempty"`
	Err     *psaerr.MappedError `json:"error,omitempty"`
}

// Orchestrator executes validated writes against Autotask.
type Orchestrator struct {
	source     ClientSource
	validator  *validate.Validator
	translator *psaerr.Translator
	logger     *zap.Logger
}

// New creates an orchestrator.
func New(source ClientSource, validator *validate.Validator, translator *psaerr.Translator, logger *zap.Logger) (*Orchestrator, error) {
	if source == nil {
		return nil, fmt.Errorf("client source is required")
	}
	if validator == nil {
		return nil, fmt.Errorf("validator is required")
	}
	if translator == nil {
		return nil, fmt.Errorf("translator is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		source:     source,
		validator:  validator,
		translator: translator,
		logger:     logger.Named("orchestrator"),
	}, nil
}

// UpdateTicket validates and applies a ticket update. Validation failures
// return before any network call.
func (o *Orchestrator) UpdateTicket(ctx context.Context, req *validate.TicketUpdateRequest) *Result {
	draft, vres := o.validator.TicketUpdate(req)
	if !vres.Valid {
		return failure(o.translator.Validation(vres.Errors))
	}

	fields := draft.Fields()
	o.logger.Debug("updating ticket",
		zap.Int64("ticket_id", draft.TicketID),
		zap.Strings("fields", fields))

	client, err := o.source.Acquire(ctx)
	if err != nil {
		return failure(o.translator.Translate(err))
	}

	ticket, err := client.UpdateTicket(ctx, draft.TicketID, draft.Payload())
	if err != nil {
		return failure(o.translator.Translate(err))
	}

	return &Result{
		Message: fmt.Sprintf("Ticket %d updated: %s", draft.TicketID, strings.Join(fields, ", ")),
		Data:    &Data{Entity: ticket, UpdatedFields: fields},
	}
}

// CreateTicketNote validates and creates a ticket note. A missing title
// gets a dated default, matching how the bridge has always labeled
// assistant-created notes.
func (o *Orchestrator) CreateTicketNote(ctx context.Context, req *validate.NoteCreateRequest) *Result {
	draft, vres := o.validator.NoteCreate(req)
	if !vres.Valid {
		return failure(o.translator.Validation(vres.Errors))
	}

	if draft.Title == "" {
		draft.Title = "Ticket note " + time.Now().UTC().Format("2006-01-02")
	}

	client, err := o.source.Acquire(ctx)
	if err != nil {
		return failure(o.translator.Translate(err))
	}

	note, err := client.CreateTicketNote(ctx, draft.TicketID, draft.Payload())
	if err != nil {
		return failure(o.translator.Translate(err))
	}

	return &Result{
		Message: fmt.Sprintf("Note %d created on ticket %d", note.ID, draft.TicketID),
		Data:    &Data{Entity: note},
	}
}

// GetTicket fetches a ticket, routing failures through the translator.
func (o *Orchestrator) GetTicket(ctx context.Context, id int64) *Result {
	if id <= 0 {
		return failure(o.translator.Validation([]string{"ticketId must be a positive integer"}))
	}

	client, err := o.source.Acquire(ctx)
	if err != nil {
		return failure(o.translator.Translate(err))
	}

	ticket, err := client.GetTicket(ctx, id)
	if err != nil {
		return failure(o.translator.Translate(err))
	}

	return &Result{
		Message: fmt.Sprintf("Ticket %d (%s)", ticket.ID, ticket.TicketNumber),
		Data:    &Data{Entity: ticket},
	}
}

// TestConnection verifies the gate can produce a working client.
func (o *Orchestrator) TestConnection(ctx context.Context) *Result {
	client, err := o.source.Acquire(ctx)
	if err != nil {
		return failure(o.translator.Translate(err))
	}
	if err := client.Ping(ctx); err != nil {
		return failure(o.translator.Translate(err))
	}
	return &Result{Message: "Autotask connection OK"}
}

func failure(err *psaerr.MappedError) *Result {
	return &Result{IsError: true, Err: err}
}
