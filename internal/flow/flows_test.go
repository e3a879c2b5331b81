package flow

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/Conecta2Tel/WispFlow/internal/genai"
	"github.com/Conecta2Tel/WispFlow/internal/models"
	"github.com/Conecta2Tel/WispFlow/internal/wisphub"
)

func seedPagoScratch(h *harness, t *testing.T, step string) {
	h.seed(t, func(conv *models.Conversation) {
		authenticate(conv)
		conv.CurrentFlow = models.FlowPagos
		conv.CurrentStep = step
		conv.UserData.Pago = &models.PagoScratch{
			Invoices:         []models.Invoice{{ID: "f1", Number: "0001", Amount: "50000.00", Status: models.InvoiceStatusUnpaid}},
			InvoiceID:        "f1",
			InvoiceNumber:    "0001",
			OutstandingCents: 5000000,
		}
	})
}

func TestPagosStartsWithInvoiceSelection(t *testing.T) {
	h := newHarness(t)
	h.crm.ListInvoicesFn = func(ctx context.Context, customerID string, filter wisphub.InvoiceFilter) ([]models.Invoice, error) {
		if filter.Status != models.InvoiceStatusUnpaid {
			t.Errorf("filter = %q, want unpaid", filter.Status)
		}
		return []models.Invoice{
			{ID: "f1", Number: "0001", Amount: "50000.00", DueDate: h.now.Add(72 * time.Hour)},
			{ID: "f2", Number: "0002", Amount: "30000.00", DueDate: h.now.Add(240 * time.Hour)},
		}, nil
	}
	h.seed(t, authenticate)

	h.process(t, listReply(menuPagosID))

	conv := h.conversation(t)
	if conv.CurrentFlow != models.FlowPagos || conv.CurrentStep != pagosStepSeleccionar {
		t.Fatalf("expected pagos/seleccionar_factura, got %s/%s", conv.CurrentFlow, conv.CurrentStep)
	}
	if got := len(conv.UserData.Pago.Invoices); got != 2 {
		t.Errorf("scratch invoices = %d", got)
	}
	sent := h.rec.Last()
	if sent.Kind != "list" || len(sent.Sections[0].Rows) != 2 {
		t.Errorf("expected two-row invoice list, got %+v", sent)
	}
}

func TestPagosAmountOverBalanceRePromptsWithoutCRM(t *testing.T) {
	h := newHarness(t)
	seedPagoScratch(h, t, pagosStepMonto)

	h.process(t, text("60000"))

	if len(h.crm.Payments) != 0 {
		t.Fatal("over-balance amount must not reach the CRM")
	}
	conv := h.conversation(t)
	if conv.CurrentStep != pagosStepMonto {
		t.Errorf("expected to stay in ingresar_monto, got %s", conv.CurrentStep)
	}
	if sent := h.rec.Last(); !strings.Contains(sent.Body, "supera el saldo") {
		t.Errorf("reply = %q", sent.Body)
	}
}

func TestPagosInvalidAmountRePrompts(t *testing.T) {
	h := newHarness(t)
	seedPagoScratch(h, t, pagosStepMonto)

	h.process(t, text("cincuenta mil"))

	conv := h.conversation(t)
	if conv.CurrentStep != pagosStepMonto {
		t.Errorf("expected to stay in ingresar_monto, got %s", conv.CurrentStep)
	}
	if len(h.crm.Payments) != 0 {
		t.Error("invalid amount must not reach the CRM")
	}
}

func TestPagosConfirmRegistersPayment(t *testing.T) {
	h := newHarness(t)
	seedPagoScratch(h, t, pagosStepConfirmar)
	conv := h.conversation(t)
	conv.UserData.Pago.AmountCents = 4500000
	if err := h.store.SaveConversation(conv); err != nil {
		t.Fatal(err)
	}

	h.process(t, buttonReply(pagoConfirmarID))

	if len(h.crm.Payments) != 1 {
		t.Fatalf("payments = %d, want 1", len(h.crm.Payments))
	}
	req := h.crm.Payments[0]
	if req.AmountCents != 4500000 || len(req.InvoiceIDs) != 1 || req.InvoiceIDs[0] != "f1" {
		t.Errorf("payment request = %+v", req)
	}
	if req.Reference == "" {
		t.Error("payment reference must be set")
	}

	after := h.conversation(t)
	if after.UserData.Pago != nil {
		t.Error("payment scratch must be cleared after confirmation")
	}
	if after.CurrentFlow != models.FlowAuth || after.CurrentStep != authStepMenu {
		t.Errorf("expected return to menu, got %s/%s", after.CurrentFlow, after.CurrentStep)
	}
}

func TestPagosCancelClearsScratch(t *testing.T) {
	h := newHarness(t)
	seedPagoScratch(h, t, pagosStepConfirmar)
	conv := h.conversation(t)
	conv.UserData.Pago.AmountCents = 100000
	if err := h.store.SaveConversation(conv); err != nil {
		t.Fatal(err)
	}

	h.process(t, buttonReply(pagoCancelarID))

	if len(h.crm.Payments) != 0 {
		t.Error("cancelled payment must not reach the CRM")
	}
	if h.conversation(t).UserData.Pago != nil {
		t.Error("payment scratch must be cleared after cancel")
	}
}

func TestSoporteCreatesTicketWithFallbackSubject(t *testing.T) {
	h := newHarness(t)
	h.seed(t, func(conv *models.Conversation) {
		authenticate(conv)
		conv.CurrentFlow = models.FlowSoporte
		conv.CurrentStep = soporteStepTipo
	})

	h.process(t, buttonReply(soporteSinInternetID))
	h.process(t, text("se me cae la conexión todas las noches"))

	if len(h.crm.Tickets) != 1 {
		t.Fatalf("tickets = %d, want 1", len(h.crm.Tickets))
	}
	req := h.crm.Tickets[0]
	if req.Subject != "Sin servicio de internet" {
		t.Errorf("subject = %q", req.Subject)
	}
	if req.Priority != "alta" {
		t.Errorf("priority = %q", req.Priority)
	}
	if !strings.Contains(req.Description, "todas las noches") {
		t.Errorf("description = %q", req.Description)
	}

	conv := h.conversation(t)
	if conv.UserData.Soporte != nil {
		t.Error("support scratch must be cleared")
	}
	if conv.CurrentFlow != models.FlowAuth || conv.CurrentStep != authStepMenu {
		t.Errorf("expected return to menu, got %s/%s", conv.CurrentFlow, conv.CurrentStep)
	}
}

func TestSoporteUsesSummarizedSubject(t *testing.T) {
	h := newHarness(t)
	sum := &genai.MockSummarizer{Summary: "Caídas nocturnas de conexión"}
	soporte := NewSoporteFlow(h.out, h.crm, sum, h.handover)

	conv := models.NewConversation(testPhone, "Laura", h.now)
	authenticate(conv)
	conv.CurrentFlow = models.FlowSoporte
	conv.CurrentStep = soporteStepDescripcion
	conv.UserData.Soporte = &models.SoporteScratch{TipoProblema: "Internet lento o intermitente"}

	trans, err := soporte.HandleFlow(context.Background(), conv, text("se pone lento de noche"))
	if err != nil {
		t.Fatalf("HandleFlow failed: %v", err)
	}
	if trans == nil || trans.Flow != models.FlowAuth {
		t.Errorf("transition = %+v", trans)
	}
	if sum.Calls != 1 {
		t.Errorf("summarizer calls = %d", sum.Calls)
	}
	if h.crm.Tickets[0].Subject != "Caídas nocturnas de conexión" {
		t.Errorf("subject = %q", h.crm.Tickets[0].Subject)
	}
	if h.crm.Tickets[0].Priority != "media" {
		t.Errorf("priority = %q", h.crm.Tickets[0].Priority)
	}
}

func TestSoporteSummarizerFailureFallsBack(t *testing.T) {
	h := newHarness(t)
	sum := &genai.MockSummarizer{Err: context.DeadlineExceeded}
	soporte := NewSoporteFlow(h.out, h.crm, sum, h.handover)

	conv := models.NewConversation(testPhone, "Laura", h.now)
	authenticate(conv)
	conv.CurrentStep = soporteStepDescripcion
	conv.UserData.Soporte = &models.SoporteScratch{TipoProblema: "Otro problema"}

	if _, err := soporte.HandleFlow(context.Background(), conv, text("no funciona el router")); err != nil {
		t.Fatalf("HandleFlow failed: %v", err)
	}
	if h.crm.Tickets[0].Subject != "Otro problema" {
		t.Errorf("subject = %q", h.crm.Tickets[0].Subject)
	}
}

func TestSoporteUnauthenticatedHandsOverWithoutTicket(t *testing.T) {
	h := newHarness(t)
	h.seed(t, func(conv *models.Conversation) {
		conv.CurrentFlow = models.FlowSoporte
		conv.CurrentStep = soporteStepTipo
	})

	h.process(t, buttonReply(soporteSinInternetID))
	h.process(t, text("no tengo señal desde ayer"))

	if len(h.crm.Tickets) != 0 {
		t.Fatalf("tickets = %d, want none without a customer identity", len(h.crm.Tickets))
	}
	conv := h.conversation(t)
	if !conv.IsHandedOverToHuman {
		t.Fatal("anonymous support request should reach a human agent")
	}
	if conv.UserData.Soporte != nil {
		t.Error("support scratch must be cleared")
	}
	if len(h.tc.PassedTo) != 1 {
		t.Errorf("thread control passes = %v", h.tc.PassedTo)
	}
}

func TestRegistroCapturesLeadAndHandsOver(t *testing.T) {
	h := newHarness(t)
	h.seed(t, func(conv *models.Conversation) {
		conv.CurrentFlow = models.FlowRegistro
		conv.CurrentStep = registroStepPlan
	})

	h.process(t, listReply("plan_hogar_100"))
	h.process(t, text("Calle 10 # 5-32, Barrio Centro"))
	h.process(t, buttonReply(registroConfirmarID))

	conv := h.conversation(t)
	if !conv.IsHandedOverToHuman {
		t.Fatal("confirmed registration should hand over to an agent")
	}
	if conv.UserData.Registro != nil {
		t.Error("registration scratch must be cleared")
	}
	if len(h.tc.PassedTo) != 1 {
		t.Errorf("thread control passes = %v", h.tc.PassedTo)
	}
}

func TestRegistroCancelReturnsToMainMenu(t *testing.T) {
	h := newHarness(t)
	h.seed(t, func(conv *models.Conversation) {
		conv.CurrentFlow = models.FlowRegistro
		conv.CurrentStep = registroStepConfirmar
		conv.UserData.Registro = &models.RegistroScratch{Plan: "Hogar 30 Mbps", Direccion: "Calle 1"}
	})

	h.process(t, buttonReply(registroCancelarID))

	conv := h.conversation(t)
	if conv.IsHandedOverToHuman {
		t.Error("cancelled registration must not hand over")
	}
	if conv.CurrentFlow != models.FlowMain || conv.CurrentStep != mainStepMenu {
		t.Errorf("expected main/menu, got %s/%s", conv.CurrentFlow, conv.CurrentStep)
	}
	if conv.UserData.Registro != nil {
		t.Error("registration scratch must be cleared")
	}
}

func TestFacturacionDeudaSummary(t *testing.T) {
	h := newHarness(t)
	h.crm.ListInvoicesFn = func(ctx context.Context, customerID string, filter wisphub.InvoiceFilter) ([]models.Invoice, error) {
		return []models.Invoice{
			{ID: "f1", Number: "0001", Amount: "59900.00", DueDate: h.now.Add(48 * time.Hour)},
			{ID: "f2", Number: "0002", Amount: "59900.50", DueDate: h.now.Add(96 * time.Hour)},
		}, nil
	}
	h.seed(t, func(conv *models.Conversation) {
		authenticate(conv)
		conv.CurrentFlow = models.FlowFacturacion
		conv.CurrentStep = facturacionStepMenu
	})

	h.process(t, listReply(facturacionDeudaID))

	sent := h.rec.Last()
	if !strings.Contains(sent.Body, "$119,800.50") {
		t.Errorf("debt summary = %q", sent.Body)
	}
	if h.conversation(t).CurrentStep != facturacionStepMenu {
		t.Error("debt query should stay in the account menu")
	}
}

func TestFacturacionPDFSendsLatestDocument(t *testing.T) {
	h := newHarness(t)
	h.crm.ListInvoicesFn = func(ctx context.Context, customerID string, filter wisphub.InvoiceFilter) ([]models.Invoice, error) {
		return []models.Invoice{
			{ID: "f1", Number: "0001", Amount: "59900.00", CreatedAt: h.now.Add(-60 * 24 * time.Hour), PDFURL: "https://crm.example/f1.pdf"},
			{ID: "f2", Number: "0002", Amount: "59900.00", CreatedAt: h.now.Add(-30 * 24 * time.Hour), PDFURL: "https://crm.example/f2.pdf"},
			{ID: "f3", Number: "0003", Amount: "59900.00", CreatedAt: h.now.Add(-1 * 24 * time.Hour)},
		}, nil
	}
	h.seed(t, func(conv *models.Conversation) {
		authenticate(conv)
		conv.CurrentFlow = models.FlowFacturacion
		conv.CurrentStep = facturacionStepMenu
	})

	h.process(t, listReply(facturacionPDFID))

	sent := h.rec.Last()
	if sent.Kind != "document" {
		t.Fatalf("expected document, got %q", sent.Kind)
	}
	if sent.URL != "https://crm.example/f2.pdf" || sent.Filename != "factura-0002.pdf" {
		t.Errorf("document = %+v", sent)
	}
}

func TestFacturacionMenuKeywordReturns(t *testing.T) {
	h := newHarness(t)
	h.seed(t, func(conv *models.Conversation) {
		authenticate(conv)
		conv.CurrentFlow = models.FlowFacturacion
		conv.CurrentStep = facturacionStepMenu
	})

	h.process(t, text("MENU"))

	conv := h.conversation(t)
	if conv.CurrentFlow != models.FlowAuth || conv.CurrentStep != authStepMenu {
		t.Errorf("expected return to menu, got %s/%s", conv.CurrentFlow, conv.CurrentStep)
	}
}

func TestCerrarSesionClearsAuth(t *testing.T) {
	h := newHarness(t)
	h.seed(t, authenticate)

	h.process(t, listReply(menuCerrarID))

	conv := h.conversation(t)
	if conv.UserData.Authenticated {
		t.Error("session should be closed")
	}
	if conv.UserData.NombreCompleto != "Laura Gómez" {
		t.Error("display name should survive logout")
	}
	if conv.CurrentFlow != models.FlowMain {
		t.Errorf("expected main flow, got %s", conv.CurrentFlow)
	}
}
