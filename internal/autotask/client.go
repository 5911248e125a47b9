// Package autotask provides a typed REST client for the Kaseya Autotask PSA
// API and the connection gate that shares one authenticated client across
// all callers.
package autotask

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/psabridge/internal/config"
)

// maxResponseBody caps how much of an API response is read into memory.
const maxResponseBody = 4 * 1024 * 1024 // 4MB

// Ticket is the subset of Autotask ticket fields psabridge reads and writes.
type Ticket struct {
	ID                 int64  `json:"id"`
	TicketNumber       string `json:"ticketNumber,omitempty"`
	Title              string `json:"title,omitempty"`
	Description        string `json:"description,omitempty"`
	Status             int    `json:"status,omitempty"`
	Priority           int    `json:"priority,omitempty"`
	QueueID            int64  `json:"queueID,omitempty"`
	AssignedResourceID *int64 `json:"assignedResourceID,omitempty"`
	CompanyID          int64  `json:"companyID,omitempty"`
	Resolution         string `json:"resolution,omitempty"`
	DueDateTime        string `json:"dueDateTime,omitempty"`
	LastActivityDate   string `json:"lastActivityDate,omitempty"`
}

// TicketNote is a note attached to a ticket.
type TicketNote struct {
	ID          int64  `json:"id"`
	TicketID    int64  `json:"ticketID"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description"`
	Publish     int    `json:"publish"`
	NoteType    int    `json:"noteType,omitempty"`
}

// Resource is an Autotask resource (assignable agent).
type Resource struct {
	ID        int64  `json:"id"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	UserName  string `json:"userName,omitempty"`
	Email     string `json:"email,omitempty"`
	IsActive  bool   `json:"isActive"`
}

// Name returns the resource's display name.
func (r Resource) Name() string {
	name := strings.TrimSpace(r.FirstName + " " + r.LastName)
	if name == "" {
		return r.UserName
	}
	return name
}

// Client is the authenticated Autotask handle the gate hands out. It covers
// exactly the operations the bridge needs: update-by-id for tickets, create
// for notes, list-with-filter for resources, plus read-only lookups.
type Client interface {
	// GetTicket fetches a ticket by id.
	GetTicket(ctx context.Context, id int64) (*Ticket, error)

	// UpdateTicket applies the given field payload to a ticket and returns
	// the resulting entity. Field names must already be in Autotask's
	// capitalized wire form (Status, Priority, QueueID, ...).
	UpdateTicket(ctx context.Context, id int64, fields map[string]any) (*Ticket, error)

	// CreateTicketNote creates a note on a ticket from a capitalized field
	// payload and returns the created note.
	CreateTicketNote(ctx context.Context, ticketID int64, fields map[string]any) (*TicketNote, error)

	// QueryResources lists resources, optionally restricted to active ones.
	QueryResources(ctx context.Context, activeOnly bool) ([]Resource, error)

	// Ping issues a trivial request to verify credentials and reachability.
	Ping(ctx context.Context) error
}

// RESTClient implements Client against the Autotask REST API.
type RESTClient struct {
	baseURL         string
	username        string
	secret          string
	integrationCode string
	http            *http.Client
	limiter         *rate.Limiter
	logger          *zap.Logger
}

// NewRESTClient creates a client from config. The limiter enforces the
// configured sustained request rate; Autotask meters API usage per hour and
// throttled integrations are locked out, so the limiter is not optional.
func NewRESTClient(cfg config.AutotaskConfig, logger *zap.Logger) (*RESTClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if cfg.Username == "" || cfg.Secret == "" || cfg.IntegrationCode == "" {
		return nil, fmt.Errorf("username, secret, and integration code are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RESTClient{
		baseURL:         strings.TrimRight(cfg.BaseURL, "/"),
		username:        cfg.Username,
		secret:          cfg.Secret.Value(),
		integrationCode: cfg.IntegrationCode.Value(),
		http:            &http.Client{Timeout: cfg.RequestTimeout.Duration()},
		limiter:         rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
		logger:          logger.Named("autotask"),
	}, nil
}

// GetTicket implements Client.
func (c *RESTClient) GetTicket(ctx context.Context, id int64) (*Ticket, error) {
	var out struct {
		Item *Ticket `json:"item"`
	}
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/Tickets/%d", id), nil, &out); err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, &APIError{StatusCode: http.StatusNotFound}
	}
	return out.Item, nil
}

// UpdateTicket implements Client. Autotask's PATCH endpoint takes the entity
// id inside the body and returns only an item id, so the updated entity is
// re-fetched afterwards.
func (c *RESTClient) UpdateTicket(ctx context.Context, id int64, fields map[string]any) (*Ticket, error) {
	body := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		body[k] = v
	}
	body["id"] = id

	var out struct {
		ItemID int64 `json:"itemId"`
	}
	if err := c.do(ctx, http.MethodPatch, "/Tickets", body, &out); err != nil {
		return nil, err
	}
	return c.GetTicket(ctx, id)
}

// CreateTicketNote implements Client.
func (c *RESTClient) CreateTicketNote(ctx context.Context, ticketID int64, fields map[string]any) (*TicketNote, error) {
	var out struct {
		ItemID int64 `json:"itemId"`
	}
	path := fmt.Sprintf("/Tickets/%d/Notes", ticketID)
	if err := c.do(ctx, http.MethodPost, path, fields, &out); err != nil {
		return nil, err
	}

	note := &TicketNote{
		ID:       out.ItemID,
		TicketID: ticketID,
	}
	if title, ok := fields["Title"].(string); ok {
		note.Title = title
	}
	if desc, ok := fields["Description"].(string); ok {
		note.Description = desc
	}
	switch p := fields["Publish"].(type) {
	case int:
		note.Publish = p
	case int64:
		note.Publish = int(p)
	}
	return note, nil
}

// QueryResources implements Client.
func (c *RESTClient) QueryResources(ctx context.Context, activeOnly bool) ([]Resource, error) {
	type filter struct {
		Op    string `json:"op"`
		Field string `json:"field"`
		Value any    `json:"value,omitempty"`
	}
	body := struct {
		Filter []filter `json:"filter"`
	}{}
	if activeOnly {
		body.Filter = []filter{{Op: "eq", Field: "isActive", Value: true}}
	} else {
		body.Filter = []filter{{Op: "gte", Field: "id", Value: 0}}
	}

	var out struct {
		Items []Resource `json:"items"`
	}
	if err := c.do(ctx, http.MethodPost, "/Resources/query", body, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// Ping implements Client.
func (c *RESTClient) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/Version", nil, nil)
}

// do performs one rate-limited JSON request. Failure responses become
// *APIError; the raw body is logged at debug level and retained on the error
// for the translator, never surfaced to callers directly.
func (c *RESTClient) do(ctx context.Context, method, path string, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("UserName", c.username)
	req.Header.Set("Secret", c.secret)
	req.Header.Set("ApiIntegrationCode", c.integrationCode)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(data)}
		var parsed struct {
			Errors []string `json:"errors"`
		}
		if jsonErr := json.Unmarshal(data, &parsed); jsonErr == nil {
			apiErr.Errors = parsed.Errors
		}
		c.logger.Debug("autotask api error",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(data)))
		return apiErr
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
