package flow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Conecta2Tel/WispFlow/internal/messaging"
	"github.com/Conecta2Tel/WispFlow/internal/models"
	"github.com/Conecta2Tel/WispFlow/internal/wisphub"
)

const (
	authStepInicio  = "inicio"
	authStepConsent = "solicitar_consentimiento"
	authStepCedula  = "cedula"
	authStepMenu    = "menu_autenticado"
)

const (
	authClienteSiID = "auth_cliente_si"
	authClienteNoID = "auth_cliente_no"
	authConsentSiID = "auth_consent_si"
	authConsentNoID = "auth_consent_no"

	authRetryID = "auth_cedula_reintentar"
	authSkipID  = "auth_cedula_omitir"

	menuPagosID       = "registrar_pago"
	menuFacturasID    = "ver_facturas"
	menuSoporteID     = "soporte_tecnico"
	menuFacturacionID = "mi_cuenta"
	menuAgenteID      = "hablar_agente"
	menuCerrarID      = "cerrar_sesion"
)

const authConsentBody = "Para consultar tu información necesito validar tu identidad con tu número de cédula.\n\n" +
	"¿Autorizas la consulta de tus datos en nuestro sistema?"

const authCedulaPrompt = "Perfecto. 🪪 Escribe tu número de cédula, sin puntos ni espacios."

const authConsentDeniedBody = "Entendido, no consultaré tus datos. 👍\n\n" +
	"Aún puedo ayudarte con información general."

// AuthFlow validates the user's identity against the CRM and serves the
// authenticated menu. It owns the cedula capture and the session identity.
type AuthFlow struct {
	out      *Outbox
	crm      wisphub.API
	handover *Handover
}

// NewAuthFlow creates the authentication flow handler.
func NewAuthFlow(out *Outbox, crm wisphub.API, h *Handover) *AuthFlow {
	return &AuthFlow{out: out, crm: crm, handover: h}
}

func (f *AuthFlow) HandleFlow(ctx context.Context, conv *models.Conversation, msg models.InboundMessage) (*models.Transition, error) {
	switch conv.CurrentStep {
	case authStepInicio:
		return f.handleInicio(ctx, conv, msg)
	case authStepConsent:
		return f.handleConsent(ctx, conv, msg)
	case authStepCedula:
		return f.handleCedula(ctx, conv, msg)
	case authStepMenu:
		return f.handleMenu(ctx, conv, msg)
	default:
		if conv.UserData.Authenticated {
			return nil, f.sendMenu(ctx, conv)
		}
		return nil, f.sendGreeting(ctx, conv)
	}
}

func (f *AuthFlow) sendGreeting(ctx context.Context, conv *models.Conversation) error {
	greeting := "¡Hola! 👋"
	if conv.UserName != "" {
		greeting = fmt.Sprintf("¡Hola, %s! 👋", conv.UserName)
	}
	body := greeting + " Para ayudarte mejor, cuéntame: ¿ya eres cliente de Conecta2?"
	err := f.out.Buttons(ctx, conv, "", body, []messaging.Button{
		{ID: authClienteSiID, Title: "Sí, soy cliente"},
		{ID: authClienteNoID, Title: "Aún no soy cliente"},
	})
	if err != nil {
		return err
	}
	conv.CurrentStep = authStepInicio
	return nil
}

func (f *AuthFlow) handleInicio(ctx context.Context, conv *models.Conversation, msg models.InboundMessage) (*models.Transition, error) {
	choice, ok := selectOption(msg, authClienteSiID, authClienteNoID)
	if !ok {
		return nil, f.sendGreeting(ctx, conv)
	}
	if choice == authClienteNoID {
		return &models.Transition{Flow: models.FlowRegistro}, nil
	}
	err := f.out.Buttons(ctx, conv, "", authConsentBody, []messaging.Button{
		{ID: authConsentSiID, Title: "Sí, autorizo"},
		{ID: authConsentNoID, Title: "No autorizo"},
	})
	if err != nil {
		return nil, err
	}
	conv.CurrentStep = authStepConsent
	return nil, nil
}

func (f *AuthFlow) handleConsent(ctx context.Context, conv *models.Conversation, msg models.InboundMessage) (*models.Transition, error) {
	choice, ok := selectOption(msg, authConsentSiID, authConsentNoID)
	if !ok {
		return nil, f.out.Text(ctx, conv, "Por favor responde con una de las opciones. 🙂")
	}
	if choice == authConsentNoID {
		if err := f.out.Text(ctx, conv, authConsentDeniedBody); err != nil {
			return nil, err
		}
		return &models.Transition{Flow: models.FlowMain}, nil
	}
	if err := f.out.Text(ctx, conv, authCedulaPrompt); err != nil {
		return nil, err
	}
	conv.CurrentStep = authStepCedula
	return nil, nil
}

func (f *AuthFlow) handleCedula(ctx context.Context, conv *models.Conversation, msg models.InboundMessage) (*models.Transition, error) {
	// Button replies only: a typed digit here is a cedula attempt, not a choice.
	if choice, ok := msg.Reply(); ok {
		if choice == authSkipID {
			if err := f.out.Text(ctx, conv, authConsentDeniedBody); err != nil {
				return nil, err
			}
			return &models.Transition{Flow: models.FlowMain}, nil
		}
		return nil, f.out.Text(ctx, conv, authCedulaPrompt)
	}
	text, ok := msg.FreeText()
	if !ok {
		return nil, f.out.Text(ctx, conv, authCedulaPrompt)
	}
	cedula := digitsOnly(text)
	if len(cedula) < models.MinCedulaDigits || len(cedula) > models.MaxCedulaDigits {
		return nil, f.out.Text(ctx, conv, fmt.Sprintf(
			"Ese número no parece una cédula válida. 🤔 Debe tener entre %d y %d dígitos. Inténtalo de nuevo.",
			models.MinCedulaDigits, models.MaxCedulaDigits))
	}

	cust, err := f.crm.FindCustomerByCedula(ctx, cedula)
	if err != nil {
		return nil, fmt.Errorf("customer lookup failed: %w", err)
	}
	if cust == nil {
		return nil, f.out.Buttons(ctx, conv, "",
			"No encontré un cliente con esa cédula. 🔍 Verifica el número e inténtalo de nuevo.",
			[]messaging.Button{
				{ID: authRetryID, Title: "Reintentar"},
				{ID: authSkipID, Title: "Continuar sin validar"},
			})
	}

	pendientes, err := f.crm.ListInvoices(ctx, cust.ID, wisphub.InvoiceFilter{Status: models.InvoiceStatusUnpaid})
	if err != nil {
		return nil, fmt.Errorf("invoice lookup failed: %w", err)
	}

	conv.UserData.Identify(*cust, cedula, pendientes)
	conv.UserName = cust.NombreCompleto

	welcome := fmt.Sprintf("✅ ¡Bienvenido, %s! Tu identidad fue verificada.", cust.NombreCompleto)
	if warning := dueWarning(pendientes, f.out.now()); warning != "" {
		welcome += "\n\n" + warning
	}
	if err := f.out.Text(ctx, conv, welcome); err != nil {
		return nil, err
	}
	return nil, f.sendMenu(ctx, conv)
}

// menuOptions returns the authenticated menu in display order. The payment
// shortcut only appears while there are pending invoices.
func (f *AuthFlow) menuOptions(conv *models.Conversation) ([]messaging.ListRow, []string) {
	var rows []messaging.ListRow
	if len(conv.UserData.FacturasPendientes) > 0 {
		rows = append(rows, messaging.ListRow{ID: menuPagosID, Title: "Registrar un pago", Description: "Reporta el pago de una factura"})
	}
	rows = append(rows,
		messaging.ListRow{ID: menuFacturasID, Title: "Consultar facturas", Description: "Tus facturas pendientes"},
		messaging.ListRow{ID: menuSoporteID, Title: "Soporte técnico", Description: "Reporta un problema con tu servicio"},
		messaging.ListRow{ID: menuFacturacionID, Title: "Mi cuenta", Description: "Deuda, datos y descarga de facturas"},
		messaging.ListRow{ID: menuAgenteID, Title: "Hablar con un agente", Description: "Atención personalizada"},
		messaging.ListRow{ID: menuCerrarID, Title: "Cerrar sesión", Description: "Salir de tu cuenta"},
	)
	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}
	return rows, ids
}

func (f *AuthFlow) sendMenu(ctx context.Context, conv *models.Conversation) error {
	rows, _ := f.menuOptions(conv)
	sections := []messaging.ListSection{{Title: "Opciones", Rows: rows}}
	err := f.out.List(ctx, conv, "Menú principal", "¿En qué puedo ayudarte? 🙂", "Ver opciones", sections)
	if err != nil {
		return err
	}
	conv.CurrentStep = authStepMenu
	return nil
}

// sendWelcomeBack greets a returning authenticated user and repeats the
// due-date reminder from the cached pending invoices before the menu.
func (f *AuthFlow) sendWelcomeBack(ctx context.Context, conv *models.Conversation) error {
	greeting := fmt.Sprintf("¡Hola de nuevo, %s! 👋", conv.UserData.NombreCompleto)
	if warning := dueWarning(conv.UserData.FacturasPendientes, f.out.now()); warning != "" {
		greeting += "\n\n" + warning
	}
	if err := f.out.Text(ctx, conv, greeting); err != nil {
		return err
	}
	return f.sendMenu(ctx, conv)
}

func (f *AuthFlow) handleMenu(ctx context.Context, conv *models.Conversation, msg models.InboundMessage) (*models.Transition, error) {
	_, ids := f.menuOptions(conv)
	choice, ok := selectOption(msg, ids...)
	if !ok {
		// Free text means the user came back talking, not pressing a stale
		// button; greet them again before re-showing the menu.
		if _, isText := msg.FreeText(); isText {
			return nil, f.sendWelcomeBack(ctx, conv)
		}
		return nil, f.sendMenu(ctx, conv)
	}
	switch choice {
	case menuFacturasID:
		return &models.Transition{Flow: models.FlowFacturas}, nil
	case menuPagosID:
		return &models.Transition{Flow: models.FlowPagos}, nil
	case menuSoporteID:
		return &models.Transition{Flow: models.FlowSoporte}, nil
	case menuFacturacionID:
		return &models.Transition{Flow: models.FlowFacturacion}, nil
	case menuAgenteID:
		return nil, f.handover.Execute(ctx, conv, "menu")
	case menuCerrarID:
		conv.UserData.ClearAuth()
		if err := f.out.Text(ctx, conv, "Tu sesión quedó cerrada. 👋 ¡Hasta pronto!"); err != nil {
			return nil, err
		}
		return &models.Transition{Flow: models.FlowMain}, nil
	}
	return nil, f.sendMenu(ctx, conv)
}

// digitsOnly strips everything but digits (dots, spaces, dashes).
func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// dueWarning builds the post-login reminder about invoices that are overdue or
// close to their due date. Empty when there is nothing to warn about.
func dueWarning(invoices []models.Invoice, now time.Time) string {
	var overdue, near int
	for _, inv := range invoices {
		switch {
		case inv.Overdue(now):
			overdue++
		case inv.NearDue(now):
			near++
		}
	}
	var parts []string
	if overdue > 0 {
		parts = append(parts, fmt.Sprintf("⚠️ Tienes %d factura(s) vencida(s).", overdue))
	}
	if near > 0 {
		parts = append(parts, fmt.Sprintf("📅 Tienes %d factura(s) próxima(s) a vencer en los próximos %d días.", near, models.NearDueWindowDays))
	}
	return strings.Join(parts, "\n")
}
