package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/psabridge/internal/autotask"
	"github.com/fyrsmithlabs/psabridge/internal/metadata"
	"github.com/fyrsmithlabs/psabridge/internal/psaerr"
	"github.com/fyrsmithlabs/psabridge/internal/validate"
)

// stubClient records calls and returns scripted results.
type stubClient struct {
	ticket      *autotask.Ticket
	note        *autotask.TicketNote
	err         error
	lastPayload map[string]any
	lastID      int64
	calls       int
}

func (s *stubClient) GetTicket(ctx context.Context, id int64) (*autotask.Ticket, error) {
	s.calls++
	s.lastID = id
	return s.ticket, s.err
}

func (s *stubClient) UpdateTicket(ctx context.Context, id int64, fields map[string]any) (*autotask.Ticket, error) {
	s.calls++
	s.lastID = id
	s.lastPayload = fields
	return s.ticket, s.err
}

func (s *stubClient) CreateTicketNote(ctx context.Context, ticketID int64, fields map[string]any) (*autotask.TicketNote, error) {
	s.calls++
	s.lastID = ticketID
	s.lastPayload = fields
	return s.note, s.err
}

func (s *stubClient) QueryResources(ctx context.Context, activeOnly bool) ([]autotask.Resource, error) {
	s.calls++
	return nil, s.err
}

func (s *stubClient) Ping(ctx context.Context) error {
	s.calls++
	return s.err
}

// stubSource hands out a fixed client or fails.
type stubSource struct {
	client autotask.Client
	err    error
}

func (s *stubSource) Acquire(ctx context.Context) (autotask.Client, error) {
	return s.client, s.err
}

// staticRef is a minimal reference fixture: one status (5 Complete), one
// priority (4 Critical), one active resource (100).
type staticRef struct{}

func (staticRef) IsValidStatus(id int) bool     { return id == 5 }
func (staticRef) IsValidPriority(id int) bool   { return id == 4 }
func (staticRef) IsValidResource(id int64) bool { return id == 100 }
func (staticRef) Statuses() []metadata.Entry {
	return []metadata.Entry{{ID: 5, Name: "Complete", Active: true}}
}
func (staticRef) Priorities() []metadata.Entry {
	return []metadata.Entry{{ID: 4, Name: "Critical", Active: true}}
}

func newOrchestrator(t *testing.T, client *stubClient) (*Orchestrator, *stubSource) {
	t.Helper()
	v, err := validate.NewValidator(staticRef{}, zap.NewNop())
	require.NoError(t, err)

	src := &stubSource{client: client}
	o, err := New(src, v, psaerr.NewTranslator(zap.NewNop()), zap.NewNop())
	require.NoError(t, err)
	return o, src
}

func intPtr(v int) *int       { return &v }
func int64Ptr(v int64) *int64 { return &v }

func TestUpdateTicketScenario(t *testing.T) {
	client := &stubClient{ticket: &autotask.Ticket{ID: 42, Status: 5, Priority: 4, QueueID: 12}}
	o, _ := newOrchestrator(t, client)

	result := o.UpdateTicket(context.Background(), &validate.TicketUpdateRequest{
		TicketID: 42,
		Status:   intPtr(5),
		Priority: intPtr(4),
		QueueID:  int64Ptr(12),
	})

	require.False(t, result.IsError)
	require.NotNil(t, result.Data)

	assert.Equal(t, map[string]any{
		"Status":   5,
		"Priority": 4,
		"QueueID":  int64(12),
	}, client.lastPayload)
	assert.Equal(t, []string{"status", "priority", "queueID"}, result.Data.UpdatedFields)
	assert.Equal(t, client.ticket, result.Data.Entity)
	assert.Contains(t, result.Message, "Ticket 42 updated")
}

func TestUpdateTicketNoOpMakesNoNetworkCall(t *testing.T) {
	client := &stubClient{}
	o, _ := newOrchestrator(t, client)

	result := o.UpdateTicket(context.Background(), &validate.TicketUpdateRequest{TicketID: 42})

	require.True(t, result.IsError)
	assert.Equal(t, psaerr.CodeValidationError, result.Err.Code)
	assert.Zero(t, client.calls, "validation failures must not reach the network")
}

func TestUpdateTicketInvalidStatusMakesNoNetworkCall(t *testing.T) {
	client := &stubClient{}
	o, _ := newOrchestrator(t, client)

	result := o.UpdateTicket(context.Background(), &validate.TicketUpdateRequest{
		TicketID: 42,
		Status:   intPtr(99),
	})

	require.True(t, result.IsError)
	assert.Contains(t, result.Err.Message, "5 (Complete)")
	assert.Zero(t, client.calls)
}

func TestUpdateTicketConflictTranslated(t *testing.T) {
	client := &stubClient{err: &autotask.APIError{StatusCode: 409}}
	o, _ := newOrchestrator(t, client)

	result := o.UpdateTicket(context.Background(), &validate.TicketUpdateRequest{
		TicketID: 42,
		Status:   intPtr(5),
	})

	require.True(t, result.IsError)
	assert.Equal(t, psaerr.CodeConflict, result.Err.Code)
	assert.Contains(t, result.Err.Guidance, "Refresh the ticket state and retry")
}

func TestUpdateTicketGateFailureTranslated(t *testing.T) {
	o, src := newOrchestrator(t, &stubClient{})
	src.client = nil
	src.err = errors.New("connect to autotask: bad credentials")

	result := o.UpdateTicket(context.Background(), &validate.TicketUpdateRequest{
		TicketID: 42,
		Status:   intPtr(5),
	})

	require.True(t, result.IsError)
	assert.Equal(t, psaerr.CodeUnknownError, result.Err.Code)
}

func TestCreateTicketNotePublishRejectedBeforeNetwork(t *testing.T) {
	client := &stubClient{}
	o, _ := newOrchestrator(t, client)

	result := o.CreateTicketNote(context.Background(), &validate.NoteCreateRequest{
		TicketID:    7,
		Description: "body",
		Publish:     2,
	})

	require.True(t, result.IsError)
	assert.Contains(t, result.Err.Message, "publish must be 1 (internal) or 3 (external)")
	assert.Zero(t, client.calls)
}

func TestCreateTicketNoteDefaultsTitle(t *testing.T) {
	client := &stubClient{note: &autotask.TicketNote{ID: 99, TicketID: 7}}
	o, _ := newOrchestrator(t, client)

	result := o.CreateTicketNote(context.Background(), &validate.NoteCreateRequest{
		TicketID:    7,
		Description: "body",
		Publish:     validate.PublishInternal,
	})

	require.False(t, result.IsError)
	title, ok := client.lastPayload["Title"].(string)
	require.True(t, ok)
	assert.Contains(t, title, "Ticket note")
	assert.Equal(t, validate.PublishInternal, client.lastPayload["Publish"])
	assert.Contains(t, result.Message, "Note 99 created on ticket 7")
}

func TestGetTicket(t *testing.T) {
	client := &stubClient{ticket: &autotask.Ticket{ID: 42, TicketNumber: "T20260831.0001"}}
	o, _ := newOrchestrator(t, client)

	result := o.GetTicket(context.Background(), 42)
	require.False(t, result.IsError)
	assert.Equal(t, int64(42), client.lastID)
	assert.Contains(t, result.Message, "T20260831.0001")

	result = o.GetTicket(context.Background(), 0)
	require.True(t, result.IsError)
	assert.Equal(t, psaerr.CodeValidationError, result.Err.Code)
}

func TestGetTicketNotFound(t *testing.T) {
	client := &stubClient{err: &autotask.APIError{StatusCode: 404}}
	o, _ := newOrchestrator(t, client)

	result := o.GetTicket(context.Background(), 42)
	require.True(t, result.IsError)
	assert.Equal(t, psaerr.CodeResourceNotFound, result.Err.Code)
}

func TestTestConnection(t *testing.T) {
	client := &stubClient{}
	o, _ := newOrchestrator(t, client)

	result := o.TestConnection(context.Background())
	require.False(t, result.IsError)
	assert.Equal(t, "Autotask connection OK", result.Message)

	client.err = &autotask.APIError{StatusCode: 401}
	result = o.TestConnection(context.Background())
	require.True(t, result.IsError)
	assert.Equal(t, psaerr.CodeAuthenticationFailed, result.Err.Code)
}

func TestNewRequiresDeps(t *testing.T) {
	v, err := validate.NewValidator(staticRef{}, zap.NewNop())
	require.NoError(t, err)
	tr := psaerr.NewTranslator(zap.NewNop())

	_, err = New(nil, v, tr, nil)
	assert.Error(t, err)
	_, err = New(&stubSource{}, nil, tr, nil)
	assert.Error(t, err)
	_, err = New(&stubSource{}, v, nil, nil)
	assert.Error(t, err)
}
