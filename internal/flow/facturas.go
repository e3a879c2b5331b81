package flow

import (
	"context"
	"fmt"
	"strings"

	"github.com/Conecta2Tel/WispFlow/internal/models"
	"github.com/Conecta2Tel/WispFlow/internal/wisphub"
)

const facturasStepListado = "listado"

// FacturasFlow lists the customer's pending invoices. Requires an
// authenticated session.
type FacturasFlow struct {
	out *Outbox
	crm wisphub.API
}

// NewFacturasFlow creates the invoice listing flow handler.
func NewFacturasFlow(out *Outbox, crm wisphub.API) *FacturasFlow {
	return &FacturasFlow{out: out, crm: crm}
}

func (f *FacturasFlow) HandleFlow(ctx context.Context, conv *models.Conversation, msg models.InboundMessage) (*models.Transition, error) {
	switch conv.CurrentStep {
	case facturasStepListado:
		if text, ok := msg.FreeText(); ok && isMenuKeyword(text) {
			return &models.Transition{Flow: models.FlowAuth}, nil
		}
		return nil, f.out.Text(ctx, conv, "Escribe *MENU* para volver al menú principal.")
	default:
		return f.sendListing(ctx, conv)
	}
}

func (f *FacturasFlow) sendListing(ctx context.Context, conv *models.Conversation) (*models.Transition, error) {
	invoices, err := f.crm.ListInvoices(ctx, conv.UserData.CustomerID, wisphub.InvoiceFilter{Status: models.InvoiceStatusUnpaid})
	if err != nil {
		return nil, fmt.Errorf("invoice listing failed: %w", err)
	}
	conv.UserData.FacturasPendientes = invoices

	if len(invoices) == 0 {
		if err := f.out.Text(ctx, conv, "✅ No tienes facturas pendientes. ¡Estás al día!"); err != nil {
			return nil, err
		}
		return &models.Transition{Flow: models.FlowAuth}, nil
	}

	now := f.out.now()
	var b strings.Builder
	fmt.Fprintf(&b, "📄 Tienes %d factura(s) pendiente(s):\n", len(invoices))
	var totalCents int64
	for i, inv := range invoices {
		fmt.Fprintf(&b, "\n%d. Factura %s\n   Monto: %s\n   Vence: %s", i+1, inv.Number, models.FormatAmount(inv.Amount), models.FormatDate(inv.DueDate))
		if inv.Overdue(now) {
			b.WriteString(" ⚠️ vencida")
		} else if inv.NearDue(now) {
			b.WriteString(" 📅 próxima a vencer")
		}
		if cents, err := inv.AmountCents(); err == nil {
			totalCents += cents
		}
	}
	fmt.Fprintf(&b, "\n\nTotal pendiente: %s", models.FormatCents(totalCents))
	b.WriteString("\n\nEscribe *MENU* para volver al menú principal.")

	if err := f.out.Text(ctx, conv, b.String()); err != nil {
		return nil, err
	}
	conv.CurrentStep = facturasStepListado
	return nil, nil
}
