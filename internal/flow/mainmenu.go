package flow

import (
	"context"

	"github.com/Conecta2Tel/WispFlow/internal/messaging"
	"github.com/Conecta2Tel/WispFlow/internal/models"
)

const (
	mainStepMenu = "menu"
)

// MainFlow serves the general menu shown to users without an authenticated
// session. Account options route through the auth gate; the orchestrator
// redirects them to identity validation first.
type MainFlow struct {
	out      *Outbox
	handover *Handover
}

// NewMainFlow creates the main menu flow handler.
func NewMainFlow(out *Outbox, h *Handover) *MainFlow {
	return &MainFlow{out: out, handover: h}
}

func (f *MainFlow) HandleFlow(ctx context.Context, conv *models.Conversation, msg models.InboundMessage) (*models.Transition, error) {
	switch conv.CurrentStep {
	case mainStepMenu:
		return f.handleMenu(ctx, conv, msg)
	default:
		return nil, f.sendMenu(ctx, conv)
	}
}

func mainMenuRows() ([]messaging.ListRow, []string) {
	rows := []messaging.ListRow{
		{ID: menuFacturasID, Title: "Consultar facturas", Description: "Requiere validar tu identidad"},
		{ID: menuPagosID, Title: "Registrar un pago", Description: "Requiere validar tu identidad"},
		{ID: menuSoporteID, Title: "Soporte técnico", Description: "Reporta un problema con tu servicio"},
		{ID: menuFacturacionID, Title: "Mi cuenta", Description: "Deuda, datos y descarga de facturas"},
		{ID: menuAgenteID, Title: "Hablar con un agente", Description: "Atención personalizada"},
	}
	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}
	return rows, ids
}

func (f *MainFlow) sendMenu(ctx context.Context, conv *models.Conversation) error {
	rows, _ := mainMenuRows()
	sections := []messaging.ListSection{{Title: "Opciones", Rows: rows}}
	err := f.out.List(ctx, conv, "Menú", "¿En qué puedo ayudarte hoy? 🙂", "Ver opciones", sections)
	if err != nil {
		return err
	}
	conv.CurrentStep = mainStepMenu
	return nil
}

func (f *MainFlow) handleMenu(ctx context.Context, conv *models.Conversation, msg models.InboundMessage) (*models.Transition, error) {
	_, ids := mainMenuRows()
	choice, ok := selectOption(msg, ids...)
	if !ok {
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
	}
	return nil, f.sendMenu(ctx, conv)
}
