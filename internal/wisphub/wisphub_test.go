package wisphub

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Conecta2Tel/WispFlow/internal/models"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := NewClient(WithAPIKey("test-key"), WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return client
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	if _, err := NewClient(); err == nil {
		t.Fatal("expected error without API key")
	}
}

func TestFindCustomerByCedula(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Api-Key test-key" {
			t.Errorf("Authorization = %q", got)
		}
		if r.URL.Path != "/v1/customers" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("document_number"); got != "12345678" {
			t.Errorf("document_number = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[{
			"id":"cust-1","document_number":"12345678",
			"first_name":"Laura","last_name":"Gómez",
			"status":"active","plan":"Hogar 100 Mbps",
			"services":[{"id":"s1","name":"Internet Hogar","plan":"100 Mbps","status":"active"}]
		}]}`))
	})

	cust, err := client.FindCustomerByCedula(context.Background(), "12345678")
	if err != nil {
		t.Fatalf("FindCustomerByCedula failed: %v", err)
	}
	if cust == nil {
		t.Fatal("expected a customer")
	}
	if cust.NombreCompleto != "Laura Gómez" {
		t.Errorf("name = %q", cust.NombreCompleto)
	}
	if len(cust.Servicios) != 1 || cust.Servicios[0].Nombre != "Internet Hogar" {
		t.Errorf("servicios = %+v", cust.Servicios)
	}
}

func TestFindCustomerByCedulaNotFoundIsNil(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[]}`))
	})

	cust, err := client.FindCustomerByCedula(context.Background(), "99999999")
	if err != nil {
		t.Fatalf("expected nil error for empty result, got %v", err)
	}
	if cust != nil {
		t.Errorf("expected nil customer, got %+v", cust)
	}
}

func TestFindCustomerServerErrorIsError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	if _, err := client.FindCustomerByCedula(context.Background(), "12345678"); err == nil {
		t.Fatal("expected error on 500")
	}
}

func TestValidateCustomerNotFoundIsNil(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	})

	cust, err := client.ValidateCustomer(context.Background(), "cust-404")
	if err != nil {
		t.Fatalf("404 must map to nil, nil; got error %v", err)
	}
	if cust != nil {
		t.Errorf("expected nil customer, got %+v", cust)
	}
}

func TestListInvoicesWithStatusFilter(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/customers/cust-1/invoices" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("status"); got != "unpaid" {
			t.Errorf("status = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[
			{"id":"f1","number":"0001","amount":"59900.00","status":"unpaid","due_date":"2026-09-01"},
			{"id":"f2","number":"0002","amount":"59900.00","status":"unpaid","due_date":"2026-09-15T00:00:00Z"}
		]}`))
	})

	invoices, err := client.ListInvoices(context.Background(), "cust-1", InvoiceFilter{Status: models.InvoiceStatusUnpaid})
	if err != nil {
		t.Fatalf("ListInvoices failed: %v", err)
	}
	if len(invoices) != 2 {
		t.Fatalf("invoices = %d", len(invoices))
	}
	if invoices[0].DueDate.IsZero() || invoices[1].DueDate.IsZero() {
		t.Error("both date formats should parse")
	}
}

func TestListInvoicesRequiresCustomerID(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("request must not be sent without a customer id")
	})
	if _, err := client.ListInvoices(context.Background(), "", InvoiceFilter{}); err != models.ErrMissingCustomerID {
		t.Errorf("err = %v, want ErrMissingCustomerID", err)
	}
}

func TestRegisterPaymentBody(t *testing.T) {
	var body map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/customers/cust-1/payments" {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("body decode failed: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"id":"pay-9","status":"registered"}}`))
	})

	payment, err := client.RegisterPayment(context.Background(), "cust-1", models.PaymentRequest{
		AmountCents: 4500050,
		InvoiceIDs:  []string{"f1"},
		Method:      "whatsapp",
		Reference:   "ref-1",
	})
	if err != nil {
		t.Fatalf("RegisterPayment failed: %v", err)
	}
	if payment.ID != "pay-9" {
		t.Errorf("payment id = %q", payment.ID)
	}
	if body["amount"] != "45000.50" {
		t.Errorf("amount = %v", body["amount"])
	}
	if body["payment_method"] != "whatsapp" || body["reference"] != "ref-1" {
		t.Errorf("body = %v", body)
	}
}

func TestCreateTicketDefaults(t *testing.T) {
	var body map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/tickets" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("body decode failed: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"id":"tick-3","status":"open"}}`))
	})

	ticket, err := client.CreateTicket(context.Background(), "cust-1", models.TicketRequest{
		Subject:     "Sin internet",
		Description: "se cae la conexión",
	})
	if err != nil {
		t.Fatalf("CreateTicket failed: %v", err)
	}
	if ticket.ID != "tick-3" {
		t.Errorf("ticket id = %q", ticket.ID)
	}
	if body["priority"] != "medium" || body["category"] != "technical" {
		t.Errorf("defaults not applied: %v", body)
	}
	if !strings.Contains(body["description"].(string), "se cae") {
		t.Errorf("description = %v", body["description"])
	}
}
