package flow

import (
	"context"
	"fmt"
	"strings"

	"github.com/Conecta2Tel/WispFlow/internal/messaging"
	"github.com/Conecta2Tel/WispFlow/internal/models"
	"github.com/Conecta2Tel/WispFlow/internal/wisphub"
)

const facturacionStepMenu = "menu"

const (
	facturacionDeudaID  = "facturacion_deuda"
	facturacionPDFID    = "facturacion_pdf"
	facturacionDatosID  = "facturacion_datos"
	facturacionVolverID = "facturacion_volver"
)

// FacturacionFlow is the "Mi cuenta" section: current debt, account details
// and invoice PDF download. Requires an authenticated session.
type FacturacionFlow struct {
	out *Outbox
	crm wisphub.API
}

// NewFacturacionFlow creates the account section flow handler.
func NewFacturacionFlow(out *Outbox, crm wisphub.API) *FacturacionFlow {
	return &FacturacionFlow{out: out, crm: crm}
}

func (f *FacturacionFlow) HandleFlow(ctx context.Context, conv *models.Conversation, msg models.InboundMessage) (*models.Transition, error) {
	switch conv.CurrentStep {
	case facturacionStepMenu:
		return f.handleMenu(ctx, conv, msg)
	default:
		return nil, f.sendMenu(ctx, conv)
	}
}

func facturacionRows() ([]messaging.ListRow, []string) {
	rows := []messaging.ListRow{
		{ID: facturacionDeudaID, Title: "Consultar mi deuda", Description: "Saldo pendiente actual"},
		{ID: facturacionPDFID, Title: "Descargar factura", Description: "Tu última factura en PDF"},
		{ID: facturacionDatosID, Title: "Mis datos y plan", Description: "Información de tu cuenta"},
		{ID: facturacionVolverID, Title: "Volver al menú", Description: ""},
	}
	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}
	return rows, ids
}

func (f *FacturacionFlow) sendMenu(ctx context.Context, conv *models.Conversation) error {
	rows, _ := facturacionRows()
	sections := []messaging.ListSection{{Title: "Mi cuenta", Rows: rows}}
	err := f.out.List(ctx, conv, "Mi cuenta", "¿Qué deseas consultar? 📋", "Ver opciones", sections)
	if err != nil {
		return err
	}
	conv.CurrentStep = facturacionStepMenu
	return nil
}

func (f *FacturacionFlow) handleMenu(ctx context.Context, conv *models.Conversation, msg models.InboundMessage) (*models.Transition, error) {
	if text, ok := msg.FreeText(); ok && isMenuKeyword(text) {
		return &models.Transition{Flow: models.FlowAuth}, nil
	}
	_, ids := facturacionRows()
	choice, ok := selectOption(msg, ids...)
	if !ok {
		return nil, f.sendMenu(ctx, conv)
	}
	switch choice {
	case facturacionDeudaID:
		return nil, f.sendDeuda(ctx, conv)
	case facturacionPDFID:
		return nil, f.sendPDF(ctx, conv)
	case facturacionDatosID:
		return nil, f.sendDatos(ctx, conv)
	case facturacionVolverID:
		return &models.Transition{Flow: models.FlowAuth}, nil
	}
	return nil, f.sendMenu(ctx, conv)
}

func (f *FacturacionFlow) sendDeuda(ctx context.Context, conv *models.Conversation) error {
	invoices, err := f.crm.ListInvoices(ctx, conv.UserData.CustomerID, wisphub.InvoiceFilter{Status: models.InvoiceStatusUnpaid})
	if err != nil {
		return fmt.Errorf("debt lookup failed: %w", err)
	}
	conv.UserData.FacturasPendientes = invoices

	if len(invoices) == 0 {
		return f.out.Text(ctx, conv, "✅ No tienes deuda pendiente. ¡Estás al día!")
	}
	var total int64
	for _, inv := range invoices {
		if cents, err := inv.AmountCents(); err == nil {
			total += cents
		}
	}
	var b strings.Builder
	fmt.Fprintf(&b, "💰 Tu deuda actual es %s en %d factura(s):\n", models.FormatCents(total), len(invoices))
	for _, inv := range invoices {
		fmt.Fprintf(&b, "\n• Factura %s: %s (vence %s)", inv.Number, models.FormatAmount(inv.Amount), models.FormatDate(inv.DueDate))
	}
	return f.out.Text(ctx, conv, b.String())
}

func (f *FacturacionFlow) sendPDF(ctx context.Context, conv *models.Conversation) error {
	invoices, err := f.crm.ListInvoices(ctx, conv.UserData.CustomerID, wisphub.InvoiceFilter{})
	if err != nil {
		return fmt.Errorf("invoice lookup failed: %w", err)
	}
	// Most recent invoice that has a PDF attached.
	var latest *models.Invoice
	for i := range invoices {
		inv := &invoices[i]
		if inv.PDFURL == "" {
			continue
		}
		if latest == nil || inv.CreatedAt.After(latest.CreatedAt) {
			latest = inv
		}
	}
	if latest == nil {
		return f.out.Text(ctx, conv, "No encontré una factura con PDF disponible. 😕")
	}
	filename := fmt.Sprintf("factura-%s.pdf", latest.Number)
	caption := fmt.Sprintf("Factura %s por %s", latest.Number, models.FormatAmount(latest.Amount))
	return f.out.Document(ctx, conv, latest.PDFURL, filename, caption)
}

func (f *FacturacionFlow) sendDatos(ctx context.Context, conv *models.Conversation) error {
	u := conv.UserData
	var b strings.Builder
	fmt.Fprintf(&b, "👤 *%s*\n", u.NombreCompleto)
	if u.Plan != "" {
		fmt.Fprintf(&b, "\nPlan: %s", u.Plan)
	}
	if u.Estado != "" {
		fmt.Fprintf(&b, "\nEstado: %s", u.Estado)
	}
	if u.Direccion != "" {
		fmt.Fprintf(&b, "\nDirección: %s", u.Direccion)
	}
	if u.Email != "" {
		fmt.Fprintf(&b, "\nCorreo: %s", u.Email)
	}
	for _, s := range u.Servicios {
		fmt.Fprintf(&b, "\nServicio: %s", s.Nombre)
		if s.Plan != "" {
			fmt.Fprintf(&b, " (%s)", s.Plan)
		}
	}
	return f.out.Text(ctx, conv, b.String())
}
