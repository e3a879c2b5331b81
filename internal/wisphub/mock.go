package wisphub

import (
	"context"

	"github.com/Conecta2Tel/WispFlow/internal/models"
)

// MockAPI implements API for tests. Each operation delegates to the
// corresponding function field when set and records its invocations.
type MockAPI struct {
	FindCustomerFn    func(ctx context.Context, cedula string) (*models.Customer, error)
	ValidateFn        func(ctx context.Context, customerID string) (*models.Customer, error)
	ListInvoicesFn    func(ctx context.Context, customerID string, filter InvoiceFilter) ([]models.Invoice, error)
	RegisterPaymentFn func(ctx context.Context, customerID string, req models.PaymentRequest) (*models.Payment, error)
	CreateTicketFn    func(ctx context.Context, customerID string, req models.TicketRequest) (*models.Ticket, error)

	Payments []models.PaymentRequest
	Tickets  []models.TicketRequest
}

// NewMockAPI creates an empty mock; unset operations return zero values.
func NewMockAPI() *MockAPI {
	return &MockAPI{}
}

func (m *MockAPI) FindCustomerByCedula(ctx context.Context, cedula string) (*models.Customer, error) {
	if m.FindCustomerFn != nil {
		return m.FindCustomerFn(ctx, cedula)
	}
	return nil, nil
}

func (m *MockAPI) ValidateCustomer(ctx context.Context, customerID string) (*models.Customer, error) {
	if m.ValidateFn != nil {
		return m.ValidateFn(ctx, customerID)
	}
	return nil, nil
}

func (m *MockAPI) ListInvoices(ctx context.Context, customerID string, filter InvoiceFilter) ([]models.Invoice, error) {
	if m.ListInvoicesFn != nil {
		return m.ListInvoicesFn(ctx, customerID, filter)
	}
	return nil, nil
}

func (m *MockAPI) RegisterPayment(ctx context.Context, customerID string, req models.PaymentRequest) (*models.Payment, error) {
	m.Payments = append(m.Payments, req)
	if m.RegisterPaymentFn != nil {
		return m.RegisterPaymentFn(ctx, customerID, req)
	}
	return &models.Payment{ID: "mock-payment"}, nil
}

func (m *MockAPI) CreateTicket(ctx context.Context, customerID string, req models.TicketRequest) (*models.Ticket, error) {
	m.Tickets = append(m.Tickets, req)
	if m.CreateTicketFn != nil {
		return m.CreateTicketFn(ctx, customerID, req)
	}
	return &models.Ticket{ID: "mock-ticket", Status: "open"}, nil
}
