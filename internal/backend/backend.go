// Package backend wraps the persistence collaborator's REST API.
//
// Flow steps never talk to storage directly; they call these endpoints, which
// in a hosted deployment are served by the managed backend and in a
// self-contained deployment by this repository's own api package. Non-success
// responses are surfaced as PersistenceError carrying the collaborator's
// message when one was returned.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/ClinicPipe/ClinicPipe/internal/models"
)

// DefaultRequestTimeout bounds each collaborator call. The flow engine has no
// cancellation of its own; per-call timeouts live here in the HTTP client.
const DefaultRequestTimeout = 15 * time.Second

// Opts holds configuration options for the collaborator client.
type Opts struct {
	BaseURL    string
	HTTPClient *http.Client
}

// Option defines a configuration option for the collaborator client.
type Option func(*Opts)

// WithBaseURL sets the collaborator's base URL.
func WithBaseURL(u string) Option {
	return func(o *Opts) { o.BaseURL = u }
}

// WithHTTPClient overrides the HTTP client (tests inject httptest clients here).
func WithHTTPClient(c *http.Client) Option {
	return func(o *Opts) { o.HTTPClient = c }
}

// Client calls the persistence collaborator endpoints.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a collaborator client. Falls back to $BACKEND_BASE_URL
// when no base URL option is provided.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = os.Getenv("BACKEND_BASE_URL")
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("collaborator base URL must be provided")
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: DefaultRequestTimeout}
	}
	slog.Debug("backend.NewClient: collaborator client configured", "base_url", cfg.BaseURL)
	return &Client{baseURL: cfg.BaseURL, http: cfg.HTTPClient}, nil
}

// envelope mirrors the collaborator's APIResponse shape with a raw result so
// each call can decode its own payload type.
type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
}

// doJSON performs one collaborator request. out may be nil when the caller
// has no payload to decode.
func (c *Client) doJSON(ctx context.Context, op, method, path string, query url.Values, body interface{}, out interface{}) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reqBody *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return &models.PersistenceError{Operation: op, Err: err}
		}
		reqBody = bytes.NewReader(data)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return &models.PersistenceError{Operation: op, Err: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		slog.Error("backend.doJSON: request failed", "operation", op, "url", u, "error", err)
		return &models.PersistenceError{Operation: op, Err: err}
	}
	defer resp.Body.Close()

	var env envelope
	decodeErr := json.NewDecoder(resp.Body).Decode(&env)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := ""
		if decodeErr == nil {
			msg = env.Message
		}
		slog.Warn("backend.doJSON: collaborator returned non-success", "operation", op, "status", resp.StatusCode, "message", msg)
		return &models.PersistenceError{Operation: op, StatusCode: resp.StatusCode, Message: msg}
	}
	if out == nil {
		return nil
	}
	if decodeErr != nil {
		return &models.PersistenceError{Operation: op, Err: decodeErr}
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return &models.PersistenceError{Operation: op, Err: fmt.Errorf("failed to decode result: %w", err)}
	}
	return nil
}

// QueryAvailability returns the provider's free slot start times for the date.
func (c *Client) QueryAvailability(ctx context.Context, tenantID, providerID, date string, durationMinutes int) ([]string, error) {
	q := url.Values{}
	q.Set("tenant_id", tenantID)
	q.Set("provider_id", providerID)
	q.Set("date", date)
	q.Set("duration", strconv.Itoa(durationMinutes))
	var slots []string
	if err := c.doJSON(ctx, "query availability", http.MethodGet, "/availability", q, nil, &slots); err != nil {
		return nil, err
	}
	return slots, nil
}

// CreateAppointment persists a new appointment and returns the created record.
func (c *Client) CreateAppointment(ctx context.Context, appt models.Appointment) (models.Appointment, error) {
	var created models.Appointment
	if err := c.doJSON(ctx, "create appointment", http.MethodPost, "/appointments", nil, appt, &created); err != nil {
		return models.Appointment{}, err
	}
	return created, nil
}

// AppointmentUpdate carries the partial fields a PATCH may set.
type AppointmentUpdate struct {
	Status     models.AppointmentStatus `json:"status,omitempty"`
	Date       string                   `json:"date,omitempty"`
	StartTime  string                   `json:"start_time,omitempty"`
	EndTime    string                   `json:"end_time,omitempty"`
	ProviderID string                   `json:"provider_id,omitempty"`
}

// UpdateAppointment applies a partial update to an appointment.
func (c *Client) UpdateAppointment(ctx context.Context, id string, update AppointmentUpdate) error {
	return c.doJSON(ctx, "update appointment", http.MethodPatch, "/appointments/"+url.PathEscape(id), nil, update, nil)
}

// CancelAppointment marks an appointment cancelled. Used by the booking
// flow's rollback path.
func (c *Client) CancelAppointment(ctx context.Context, id string) error {
	return c.UpdateAppointment(ctx, id, AppointmentUpdate{Status: models.AppointmentStatusCancelled})
}

// CreateService persists a new catalog service.
func (c *Client) CreateService(ctx context.Context, svc models.Service) (models.Service, error) {
	var created models.Service
	if err := c.doJSON(ctx, "create service", http.MethodPost, "/services", nil, svc, &created); err != nil {
		return models.Service{}, err
	}
	return created, nil
}

// UpdateService replaces a catalog service's fields.
func (c *Client) UpdateService(ctx context.Context, svc models.Service) error {
	return c.doJSON(ctx, "update service", http.MethodPatch, "/services/"+url.PathEscape(svc.ID), nil, svc, nil)
}

// DeleteService removes a catalog service.
func (c *Client) DeleteService(ctx context.Context, id string) error {
	return c.doJSON(ctx, "delete service", http.MethodDelete, "/services/"+url.PathEscape(id), nil, nil, nil)
}

// ListServices returns all services for a tenant.
func (c *Client) ListServices(ctx context.Context, tenantID string) ([]models.Service, error) {
	q := url.Values{}
	q.Set("tenant_id", tenantID)
	var svcs []models.Service
	if err := c.doJSON(ctx, "list services", http.MethodGet, "/services", q, nil, &svcs); err != nil {
		return nil, err
	}
	return svcs, nil
}

// ListServicesByCategory returns the services referencing a category. Used by
// the delete-dependency check.
func (c *Client) ListServicesByCategory(ctx context.Context, categoryID string) ([]models.Service, error) {
	var svcs []models.Service
	path := "/categories/" + url.PathEscape(categoryID) + "/services"
	if err := c.doJSON(ctx, "list services by category", http.MethodGet, path, nil, nil, &svcs); err != nil {
		return nil, err
	}
	return svcs, nil
}

// CreateCategory persists a new catalog category.
func (c *Client) CreateCategory(ctx context.Context, cat models.Category) (models.Category, error) {
	var created models.Category
	if err := c.doJSON(ctx, "create category", http.MethodPost, "/categories", nil, cat, &created); err != nil {
		return models.Category{}, err
	}
	return created, nil
}

// UpdateCategory replaces a catalog category's fields.
func (c *Client) UpdateCategory(ctx context.Context, cat models.Category) error {
	return c.doJSON(ctx, "update category", http.MethodPatch, "/categories/"+url.PathEscape(cat.ID), nil, cat, nil)
}

// DeleteCategory removes a catalog category.
func (c *Client) DeleteCategory(ctx context.Context, id string) error {
	return c.doJSON(ctx, "delete category", http.MethodDelete, "/categories/"+url.PathEscape(id), nil, nil, nil)
}

// GetCategory fetches one category, or nil when it does not exist.
func (c *Client) GetCategory(ctx context.Context, id string) (*models.Category, error) {
	var cat models.Category
	err := c.doJSON(ctx, "get category", http.MethodGet, "/categories/"+url.PathEscape(id), nil, nil, &cat)
	if err != nil {
		var pe *models.PersistenceError
		if errors.As(err, &pe) && pe.StatusCode == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &cat, nil
}

// ListCategories returns all categories for a tenant.
func (c *Client) ListCategories(ctx context.Context, tenantID string) ([]models.Category, error) {
	q := url.Values{}
	q.Set("tenant_id", tenantID)
	var cats []models.Category
	if err := c.doJSON(ctx, "list categories", http.MethodGet, "/categories", q, nil, &cats); err != nil {
		return nil, err
	}
	return cats, nil
}
