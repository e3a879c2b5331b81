package flow

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/Conecta2Tel/WispFlow/internal/messaging"
	"github.com/Conecta2Tel/WispFlow/internal/models"
	"github.com/Conecta2Tel/WispFlow/internal/wisphub"
)

const (
	pagosStepSeleccionar = "seleccionar_factura"
	pagosStepMonto       = "ingresar_monto"
	pagosStepConfirmar   = "confirmar_pago"
)

const (
	pagoConfirmarID = "pago_confirmar"
	pagoCancelarID  = "pago_cancelar"
)

// PagosFlow registers a payment against one of the customer's pending
// invoices. Requires an authenticated session. The amount is validated against
// the invoice's outstanding balance before the CRM is touched.
type PagosFlow struct {
	out *Outbox
	crm wisphub.API
}

// NewPagosFlow creates the payment flow handler.
func NewPagosFlow(out *Outbox, crm wisphub.API) *PagosFlow {
	return &PagosFlow{out: out, crm: crm}
}

func (f *PagosFlow) HandleFlow(ctx context.Context, conv *models.Conversation, msg models.InboundMessage) (*models.Transition, error) {
	switch conv.CurrentStep {
	case pagosStepSeleccionar:
		return f.handleSeleccion(ctx, conv, msg)
	case pagosStepMonto:
		return f.handleMonto(ctx, conv, msg)
	case pagosStepConfirmar:
		return f.handleConfirmacion(ctx, conv, msg)
	default:
		return f.start(ctx, conv)
	}
}

func (f *PagosFlow) start(ctx context.Context, conv *models.Conversation) (*models.Transition, error) {
	invoices, err := f.crm.ListInvoices(ctx, conv.UserData.CustomerID, wisphub.InvoiceFilter{Status: models.InvoiceStatusUnpaid})
	if err != nil {
		return nil, fmt.Errorf("invoice lookup failed: %w", err)
	}
	if len(invoices) == 0 {
		if err := f.out.Text(ctx, conv, "✅ No tienes facturas pendientes de pago."); err != nil {
			return nil, err
		}
		return &models.Transition{Flow: models.FlowAuth}, nil
	}

	conv.UserData.Pago = &models.PagoScratch{Invoices: invoices}
	return nil, f.sendSeleccion(ctx, conv)
}

func (f *PagosFlow) sendSeleccion(ctx context.Context, conv *models.Conversation) error {
	invoices := conv.UserData.Pago.Invoices
	rows := make([]messaging.ListRow, len(invoices))
	for i, inv := range invoices {
		rows[i] = messaging.ListRow{
			ID:          "pago_factura_" + inv.ID,
			Title:       "Factura " + inv.Number,
			Description: fmt.Sprintf("%s, vence %s", models.FormatAmount(inv.Amount), models.FormatDate(inv.DueDate)),
		}
	}
	sections := []messaging.ListSection{{Title: "Facturas pendientes", Rows: rows}}
	err := f.out.List(ctx, conv, "Registrar pago", "¿Qué factura deseas pagar? 💳", "Elegir factura", sections)
	if err != nil {
		return err
	}
	conv.CurrentStep = pagosStepSeleccionar
	return nil
}

func (f *PagosFlow) handleSeleccion(ctx context.Context, conv *models.Conversation, msg models.InboundMessage) (*models.Transition, error) {
	scratch := conv.UserData.Pago
	if scratch == nil || len(scratch.Invoices) == 0 {
		// Scratch lost (e.g. admin reset mid-flow); start over.
		return f.start(ctx, conv)
	}
	if text, ok := msg.FreeText(); ok && isMenuKeyword(text) {
		conv.UserData.Pago = nil
		return &models.Transition{Flow: models.FlowAuth}, nil
	}

	ids := make([]string, len(scratch.Invoices))
	for i, inv := range scratch.Invoices {
		ids[i] = "pago_factura_" + inv.ID
	}
	choice, ok := selectOption(msg, ids...)
	if !ok {
		return nil, f.sendSeleccion(ctx, conv)
	}

	var selected *models.Invoice
	for i := range scratch.Invoices {
		if "pago_factura_"+scratch.Invoices[i].ID == choice {
			selected = &scratch.Invoices[i]
			break
		}
	}
	outstanding, err := selected.AmountCents()
	if err != nil {
		return nil, fmt.Errorf("invoice %s has unparseable amount: %w", selected.ID, err)
	}

	scratch.InvoiceID = selected.ID
	scratch.InvoiceNumber = selected.Number
	scratch.OutstandingCents = outstanding

	prompt := fmt.Sprintf("La factura %s tiene un saldo de %s.\n\n¿Qué monto deseas abonar? Escribe el valor, por ejemplo: 45000",
		selected.Number, models.FormatCents(outstanding))
	if err := f.out.Text(ctx, conv, prompt); err != nil {
		return nil, err
	}
	conv.CurrentStep = pagosStepMonto
	return nil, nil
}

func (f *PagosFlow) handleMonto(ctx context.Context, conv *models.Conversation, msg models.InboundMessage) (*models.Transition, error) {
	scratch := conv.UserData.Pago
	if scratch == nil || scratch.InvoiceID == "" {
		return f.start(ctx, conv)
	}
	text, ok := msg.FreeText()
	if !ok {
		return nil, f.out.Text(ctx, conv, "Escribe el monto a abonar, por ejemplo: 45000")
	}
	if isMenuKeyword(text) {
		conv.UserData.Pago = nil
		return &models.Transition{Flow: models.FlowAuth}, nil
	}

	cents, err := models.ParseCents(text)
	if err != nil || cents <= 0 {
		return nil, f.out.Text(ctx, conv, "Ese monto no es válido. 🤔 Escribe solo el valor, por ejemplo: 45000")
	}
	if cents > scratch.OutstandingCents {
		return nil, f.out.Text(ctx, conv, fmt.Sprintf(
			"El monto supera el saldo de la factura (%s). Escribe un valor menor o igual.",
			models.FormatCents(scratch.OutstandingCents)))
	}

	scratch.AmountCents = cents
	body := fmt.Sprintf("Vas a registrar un abono de %s a la factura %s. ¿Confirmas?",
		models.FormatCents(cents), scratch.InvoiceNumber)
	err = f.out.Buttons(ctx, conv, "Confirmar pago", body, []messaging.Button{
		{ID: pagoConfirmarID, Title: "Confirmar"},
		{ID: pagoCancelarID, Title: "Cancelar"},
	})
	if err != nil {
		return nil, err
	}
	conv.CurrentStep = pagosStepConfirmar
	return nil, nil
}

func (f *PagosFlow) handleConfirmacion(ctx context.Context, conv *models.Conversation, msg models.InboundMessage) (*models.Transition, error) {
	scratch := conv.UserData.Pago
	if scratch == nil || scratch.AmountCents == 0 {
		return f.start(ctx, conv)
	}
	choice, ok := selectOption(msg, pagoConfirmarID, pagoCancelarID)
	if !ok {
		return nil, f.out.Text(ctx, conv, "Por favor confirma o cancela el pago con los botones. 🙂")
	}
	if choice == pagoCancelarID {
		conv.UserData.Pago = nil
		if err := f.out.Text(ctx, conv, "Pago cancelado. No se registró ningún abono."); err != nil {
			return nil, err
		}
		return &models.Transition{Flow: models.FlowAuth}, nil
	}

	req := models.PaymentRequest{
		AmountCents: scratch.AmountCents,
		InvoiceIDs:  []string{scratch.InvoiceID},
		Method:      "whatsapp",
		Reference:   uuid.NewString(),
		Notes:       fmt.Sprintf("Abono reportado por WhatsApp a la factura %s", scratch.InvoiceNumber),
	}
	payment, err := f.crm.RegisterPayment(ctx, conv.UserData.CustomerID, req)
	if err != nil {
		// Scratch survives so the user can retry the confirmation.
		return nil, fmt.Errorf("payment registration failed: %w", err)
	}
	if payment == nil {
		return nil, errors.New("payment registration returned no payment")
	}

	confirmation := fmt.Sprintf("✅ Tu abono de %s a la factura %s quedó registrado.\n\nReferencia: %s",
		models.FormatCents(scratch.AmountCents), scratch.InvoiceNumber, payment.ID)
	conv.UserData.Pago = nil
	if err := f.out.Text(ctx, conv, confirmation); err != nil {
		return nil, err
	}
	return &models.Transition{Flow: models.FlowAuth}, nil
}
