// Package wisphub wraps the WispHub CRM/billing API for WispFlow.
//
// It provides customer lookup, invoice listing, payment registration and
// support ticket creation. "Not found" is a normal business outcome and is
// returned as a nil result, never as an error; errors are reserved for
// transport, auth and server failures.
package wisphub

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Conecta2Tel/WispFlow/internal/models"
)

// Default configuration for the WispHub client.
const (
	DefaultBaseURL = "https://api.wisphub.app"
	SandboxBaseURL = "https://sandbox-api.wisphub.net"
	// DefaultTimeout bounds every CRM request.
	DefaultTimeout = 10 * time.Second
)

// InvoiceFilter narrows an invoice listing.
type InvoiceFilter struct {
	Status models.InvoiceStatus
}

// API is the collaborator contract the flow handlers consume. Implemented by
// Client in production and MockAPI in tests.
type API interface {
	FindCustomerByCedula(ctx context.Context, cedula string) (*models.Customer, error)
	ValidateCustomer(ctx context.Context, customerID string) (*models.Customer, error)
	ListInvoices(ctx context.Context, customerID string, filter InvoiceFilter) ([]models.Invoice, error)
	RegisterPayment(ctx context.Context, customerID string, req models.PaymentRequest) (*models.Payment, error)
	CreateTicket(ctx context.Context, customerID string, req models.TicketRequest) (*models.Ticket, error)
}

// Opts holds configuration options for the WispHub client.
type Opts struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
	HTTP    *http.Client
}

// Option defines a configuration option for the WispHub client.
type Option func(*Opts)

// WithAPIKey sets the WispHub API key.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithBaseURL overrides the API base URL (e.g. the sandbox).
func WithBaseURL(u string) Option {
	return func(o *Opts) { o.BaseURL = u }
}

// WithTimeout overrides the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *Opts) { o.Timeout = d }
}

// WithHTTPClient injects a custom HTTP client (used in tests).
func WithHTTPClient(c *http.Client) Option {
	return func(o *Opts) { o.HTTP = c }
}

// Client talks to the WispHub REST API.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewClient creates a WispHub client. The API key is required.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("wisphub API key not set")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	httpClient := cfg.HTTP
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	slog.Debug("WispHub client created", "base_url", cfg.BaseURL, "timeout", cfg.Timeout)
	return &Client{baseURL: strings.TrimRight(cfg.BaseURL, "/"), apiKey: cfg.APIKey, http: httpClient}, nil
}

// wire types

type customerWire struct {
	ID             string            `json:"id"`
	DocumentNumber string            `json:"document_number"`
	FirstName      string            `json:"first_name"`
	LastName       string            `json:"last_name"`
	Email          string            `json:"email"`
	Phone          string            `json:"phone"`
	Address        string            `json:"address"`
	Status         string            `json:"status"`
	Plan           string            `json:"plan"`
	Services       []serviceWire     `json:"services"`
}

type serviceWire struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Plan   string `json:"plan"`
	Status string `json:"status"`
}

type invoiceWire struct {
	ID        string `json:"id"`
	Number    string `json:"number"`
	Amount    string `json:"amount"`
	Status    string `json:"status"`
	DueDate   string `json:"due_date"`
	CreatedAt string `json:"created_at"`
	PDFURL    string `json:"pdf_url"`
}

func (w customerWire) toModel() models.Customer {
	servicios := make([]models.Service, 0, len(w.Services))
	for _, s := range w.Services {
		servicios = append(servicios, models.Service{ID: s.ID, Nombre: s.Name, Plan: s.Plan, Estado: s.Status})
	}
	return models.Customer{
		ID:             w.ID,
		Cedula:         w.DocumentNumber,
		NombreCompleto: strings.TrimSpace(w.FirstName + " " + w.LastName),
		Email:          w.Email,
		Telefono:       w.Phone,
		Direccion:      w.Address,
		Estado:         w.Status,
		Plan:           w.Plan,
		Servicios:      servicios,
	}
}

func (w invoiceWire) toModel() models.Invoice {
	inv := models.Invoice{
		ID:     w.ID,
		Number: w.Number,
		Amount: w.Amount,
		Status: models.InvoiceStatus(w.Status),
		PDFURL: w.PDFURL,
	}
	if t, err := time.Parse(time.RFC3339, w.DueDate); err == nil {
		inv.DueDate = t
	} else if t, err := time.Parse("2006-01-02", w.DueDate); err == nil {
		inv.DueDate = t
	}
	if t, err := time.Parse(time.RFC3339, w.CreatedAt); err == nil {
		inv.CreatedAt = t
	}
	return inv
}

// FindCustomerByCedula looks up a customer by national ID. Returns nil, nil
// when no customer matches.
func (c *Client) FindCustomerByCedula(ctx context.Context, cedula string) (*models.Customer, error) {
	q := url.Values{"document_number": {cedula}}
	var out struct {
		Data []customerWire `json:"data"`
	}
	if err := c.get(ctx, "/v1/customers?"+q.Encode(), &out); err != nil {
		return nil, fmt.Errorf("wisphub customer lookup failed: %w", err)
	}
	if len(out.Data) == 0 {
		slog.Debug("WispHub customer not found", "cedula_digits", len(cedula))
		return nil, nil
	}
	cust := out.Data[0].toModel()
	slog.Debug("WispHub customer resolved", "customer_id", cust.ID)
	return &cust, nil
}

// ValidateCustomer fetches a customer by internal id. Returns nil, nil when
// the id is unknown.
func (c *Client) ValidateCustomer(ctx context.Context, customerID string) (*models.Customer, error) {
	if customerID == "" {
		return nil, models.ErrMissingCustomerID
	}
	var out struct {
		Data customerWire `json:"data"`
	}
	err := c.get(ctx, "/v1/customers/"+url.PathEscape(customerID), &out)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("wisphub customer validation failed: %w", err)
	}
	cust := out.Data.toModel()
	return &cust, nil
}

// ListInvoices lists a customer's invoices, optionally filtered by status.
func (c *Client) ListInvoices(ctx context.Context, customerID string, filter InvoiceFilter) ([]models.Invoice, error) {
	if customerID == "" {
		return nil, models.ErrMissingCustomerID
	}
	path := "/v1/customers/" + url.PathEscape(customerID) + "/invoices"
	if filter.Status != "" {
		path += "?" + url.Values{"status": {string(filter.Status)}}.Encode()
	}
	var out struct {
		Data []invoiceWire `json:"data"`
	}
	if err := c.get(ctx, path, &out); err != nil {
		return nil, fmt.Errorf("wisphub invoice listing failed: %w", err)
	}
	invoices := make([]models.Invoice, 0, len(out.Data))
	for _, w := range out.Data {
		invoices = append(invoices, w.toModel())
	}
	slog.Debug("WispHub invoices listed", "customer_id", customerID, "status", filter.Status, "count", len(invoices))
	return invoices, nil
}

// RegisterPayment registers a payment against one or more invoices.
func (c *Client) RegisterPayment(ctx context.Context, customerID string, req models.PaymentRequest) (*models.Payment, error) {
	if customerID == "" {
		return nil, models.ErrMissingCustomerID
	}
	body := map[string]any{
		"amount":         fmt.Sprintf("%d.%02d", req.AmountCents/100, req.AmountCents%100),
		"payment_method": req.Method,
		"payment_date":   time.Now().UTC().Format(time.RFC3339),
		"reference":      req.Reference,
		"notes":          req.Notes,
		"invoice_ids":    req.InvoiceIDs,
	}
	var out struct {
		Data models.Payment `json:"data"`
	}
	if err := c.post(ctx, "/v1/customers/"+url.PathEscape(customerID)+"/payments", body, &out); err != nil {
		return nil, fmt.Errorf("wisphub payment registration failed: %w", err)
	}
	slog.Info("WispHub payment registered", "customer_id", customerID, "payment_id", out.Data.ID, "invoices", len(req.InvoiceIDs))
	return &out.Data, nil
}

// CreateTicket opens a support ticket on the customer's account.
func (c *Client) CreateTicket(ctx context.Context, customerID string, req models.TicketRequest) (*models.Ticket, error) {
	if customerID == "" {
		return nil, models.ErrMissingCustomerID
	}
	priority := req.Priority
	if priority == "" {
		priority = "medium"
	}
	category := req.Category
	if category == "" {
		category = "technical"
	}
	body := map[string]any{
		"customer_id": customerID,
		"subject":     req.Subject,
		"description": req.Description,
		"priority":    priority,
		"category":    category,
		"status":      "open",
	}
	var out struct {
		Data models.Ticket `json:"data"`
	}
	if err := c.post(ctx, "/v1/tickets", body, &out); err != nil {
		return nil, fmt.Errorf("wisphub ticket creation failed: %w", err)
	}
	slog.Info("WispHub ticket created", "customer_id", customerID, "ticket_id", out.Data.ID)
	return &out.Data, nil
}

// statusError carries the HTTP status of a failed CRM call.
type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("wisphub API returned status %d: %s", e.status, e.body)
}

func isNotFound(err error) bool {
	se, ok := err.(*statusError)
	return ok && se.status == http.StatusNotFound
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, path, body, out)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Api-Key "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("wisphub request failed: %w", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		slog.Error("WispHub API error", "method", method, "path", path, "status", resp.StatusCode)
		return &statusError{status: resp.StatusCode, body: strings.TrimSpace(string(data))}
	}
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
