package flow

import (
	"context"
	"fmt"

	"github.com/Conecta2Tel/WispFlow/internal/messaging"
	"github.com/Conecta2Tel/WispFlow/internal/models"
)

const (
	registroStepPlan      = "plan"
	registroStepDireccion = "direccion"
	registroStepConfirmar = "confirmar"
)

const (
	registroConfirmarID = "registro_confirmar"
	registroCancelarID  = "registro_cancelar"
)

// planCatalog is the commercial offer shown to prospects. Static for now; the
// CRM has no public plans endpoint.
var planCatalog = []messaging.ListRow{
	{ID: "plan_hogar_30", Title: "Hogar 30 Mbps", Description: "$59,900/mes, ideal para streaming"},
	{ID: "plan_hogar_100", Title: "Hogar 100 Mbps", Description: "$79,900/mes, para toda la familia"},
	{ID: "plan_pyme_200", Title: "Pyme 200 Mbps", Description: "$129,900/mes, para tu negocio"},
}

// RegistroFlow captures a prospect's plan and address and hands the lead to a
// human agent to finish the sale.
type RegistroFlow struct {
	out      *Outbox
	handover *Handover
}

// NewRegistroFlow creates the registration flow handler.
func NewRegistroFlow(out *Outbox, h *Handover) *RegistroFlow {
	return &RegistroFlow{out: out, handover: h}
}

func (f *RegistroFlow) HandleFlow(ctx context.Context, conv *models.Conversation, msg models.InboundMessage) (*models.Transition, error) {
	switch conv.CurrentStep {
	case registroStepPlan:
		return f.handlePlan(ctx, conv, msg)
	case registroStepDireccion:
		return f.handleDireccion(ctx, conv, msg)
	case registroStepConfirmar:
		return f.handleConfirmacion(ctx, conv, msg)
	default:
		return nil, f.sendPlanes(ctx, conv)
	}
}

func (f *RegistroFlow) sendPlanes(ctx context.Context, conv *models.Conversation) error {
	body := "¡Nos encantaría tenerte como cliente! 🎉 Estos son nuestros planes:"
	sections := []messaging.ListSection{{Title: "Planes disponibles", Rows: planCatalog}}
	if err := f.out.List(ctx, conv, "Nuevo servicio", body, "Ver planes", sections); err != nil {
		return err
	}
	conv.CurrentStep = registroStepPlan
	return nil
}

func (f *RegistroFlow) handlePlan(ctx context.Context, conv *models.Conversation, msg models.InboundMessage) (*models.Transition, error) {
	ids := make([]string, len(planCatalog))
	for i, row := range planCatalog {
		ids[i] = row.ID
	}
	choice, ok := selectOption(msg, ids...)
	if !ok {
		if text, has := msg.FreeText(); has && isMenuKeyword(text) {
			return &models.Transition{Flow: models.FlowMain}, nil
		}
		return nil, f.sendPlanes(ctx, conv)
	}
	var title string
	for _, row := range planCatalog {
		if row.ID == choice {
			title = row.Title
			break
		}
	}
	conv.UserData.Registro = &models.RegistroScratch{Plan: title}
	if err := f.out.Text(ctx, conv, "¡Excelente elección! 🏡 ¿En qué dirección instalaríamos el servicio?"); err != nil {
		return nil, err
	}
	conv.CurrentStep = registroStepDireccion
	return nil, nil
}

func (f *RegistroFlow) handleDireccion(ctx context.Context, conv *models.Conversation, msg models.InboundMessage) (*models.Transition, error) {
	scratch := conv.UserData.Registro
	if scratch == nil {
		return nil, f.sendPlanes(ctx, conv)
	}
	text, ok := msg.FreeText()
	if !ok {
		return nil, f.out.Text(ctx, conv, "Escribe la dirección donde instalaríamos el servicio, por favor.")
	}
	scratch.Direccion = text

	body := fmt.Sprintf("Resumen de tu solicitud:\n\nPlan: %s\nDirección: %s\n\n¿Confirmas para que un asesor te contacte?",
		scratch.Plan, scratch.Direccion)
	err := f.out.Buttons(ctx, conv, "Confirmar solicitud", body, []messaging.Button{
		{ID: registroConfirmarID, Title: "Confirmar"},
		{ID: registroCancelarID, Title: "Cancelar"},
	})
	if err != nil {
		return nil, err
	}
	conv.CurrentStep = registroStepConfirmar
	return nil, nil
}

func (f *RegistroFlow) handleConfirmacion(ctx context.Context, conv *models.Conversation, msg models.InboundMessage) (*models.Transition, error) {
	scratch := conv.UserData.Registro
	if scratch == nil {
		return nil, f.sendPlanes(ctx, conv)
	}
	choice, ok := selectOption(msg, registroConfirmarID, registroCancelarID)
	if !ok {
		return nil, f.out.Text(ctx, conv, "Por favor confirma o cancela la solicitud con los botones. 🙂")
	}
	if choice == registroCancelarID {
		conv.UserData.Registro = nil
		if err := f.out.Text(ctx, conv, "Solicitud cancelada. Cuando quieras, aquí estaré. 👋"); err != nil {
			return nil, err
		}
		return &models.Transition{Flow: models.FlowMain}, nil
	}

	reason := fmt.Sprintf("registro: plan=%s direccion=%s", scratch.Plan, scratch.Direccion)
	conv.UserData.Registro = nil
	if err := f.out.Text(ctx, conv, "¡Gracias! 🎉 Un asesor comercial te contactará para completar tu registro."); err != nil {
		return nil, err
	}
	return nil, f.handover.Execute(ctx, conv, reason)
}
