package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Conecta2Tel/WispFlow/internal/genai"
	"github.com/Conecta2Tel/WispFlow/internal/messaging"
	"github.com/Conecta2Tel/WispFlow/internal/models"
	"github.com/Conecta2Tel/WispFlow/internal/wisphub"
)

const (
	soporteStepTipo        = "tipo_problema"
	soporteStepDescripcion = "descripcion"
)

const (
	soporteSinInternetID = "soporte_sin_internet"
	soporteLentoID       = "soporte_lento"
	soporteOtroID        = "soporte_otro"
)

var soporteTipos = map[string]string{
	soporteSinInternetID: "Sin servicio de internet",
	soporteLentoID:       "Internet lento o intermitente",
	soporteOtroID:        "Otro problema",
}

// SoporteFlow captures a technical problem. Authenticated users get a CRM
// ticket; anonymous users are handed to a human agent once they describe the
// problem, since a ticket needs a customer identity. The summarizer condenses
// the description into the ticket subject; when it is unavailable or fails
// the subject falls back to the problem category.
type SoporteFlow struct {
	out        *Outbox
	crm        wisphub.API
	summarizer genai.Summarizer // nil disables summarization
	handover   *Handover
}

// NewSoporteFlow creates the technical support flow handler.
func NewSoporteFlow(out *Outbox, crm wisphub.API, summarizer genai.Summarizer, h *Handover) *SoporteFlow {
	return &SoporteFlow{out: out, crm: crm, summarizer: summarizer, handover: h}
}

func (f *SoporteFlow) HandleFlow(ctx context.Context, conv *models.Conversation, msg models.InboundMessage) (*models.Transition, error) {
	switch conv.CurrentStep {
	case soporteStepTipo:
		return f.handleTipo(ctx, conv, msg)
	case soporteStepDescripcion:
		return f.handleDescripcion(ctx, conv, msg)
	default:
		return nil, f.sendTipo(ctx, conv)
	}
}

func (f *SoporteFlow) sendTipo(ctx context.Context, conv *models.Conversation) error {
	body := "Lamento que tengas problemas con tu servicio. 🛠️ ¿Cuál de estos describe mejor tu situación?"
	err := f.out.Buttons(ctx, conv, "Soporte técnico", body, []messaging.Button{
		{ID: soporteSinInternetID, Title: "Sin internet"},
		{ID: soporteLentoID, Title: "Internet lento"},
		{ID: soporteOtroID, Title: "Otro problema"},
	})
	if err != nil {
		return err
	}
	conv.CurrentStep = soporteStepTipo
	return nil
}

func (f *SoporteFlow) handleTipo(ctx context.Context, conv *models.Conversation, msg models.InboundMessage) (*models.Transition, error) {
	choice, ok := selectOption(msg, soporteSinInternetID, soporteLentoID, soporteOtroID)
	if !ok {
		if text, has := msg.FreeText(); has && isMenuKeyword(text) {
			return &models.Transition{Flow: models.FlowAuth}, nil
		}
		return nil, f.sendTipo(ctx, conv)
	}
	conv.UserData.Soporte = &models.SoporteScratch{TipoProblema: soporteTipos[choice]}
	if err := f.out.Text(ctx, conv, "Cuéntame un poco más. 📝 Describe el problema en un mensaje."); err != nil {
		return nil, err
	}
	conv.CurrentStep = soporteStepDescripcion
	return nil, nil
}

func (f *SoporteFlow) handleDescripcion(ctx context.Context, conv *models.Conversation, msg models.InboundMessage) (*models.Transition, error) {
	scratch := conv.UserData.Soporte
	if scratch == nil {
		return nil, f.sendTipo(ctx, conv)
	}
	text, ok := msg.FreeText()
	if !ok {
		return nil, f.out.Text(ctx, conv, "Escribe una breve descripción del problema, por favor.")
	}
	scratch.Descripcion = text

	if !conv.UserData.Authenticated {
		conv.UserData.Soporte = nil
		reason := fmt.Sprintf("soporte: %s: %s", scratch.TipoProblema, text)
		return nil, f.handover.Execute(ctx, conv, reason)
	}

	req := models.TicketRequest{
		Subject:     f.subject(ctx, scratch),
		Description: fmt.Sprintf("%s\n\nReportado por WhatsApp.", text),
		Priority:    f.priority(scratch.TipoProblema),
		Category:    "soporte_tecnico",
	}
	ticket, err := f.crm.CreateTicket(ctx, conv.UserData.CustomerID, req)
	if err != nil {
		return nil, fmt.Errorf("ticket creation failed: %w", err)
	}
	if ticket == nil {
		return nil, errors.New("ticket creation returned no ticket")
	}

	conv.UserData.Soporte = nil
	confirmation := fmt.Sprintf("✅ Tu reporte quedó registrado con el ticket #%s.\n\nUn técnico te contactará pronto.", ticket.ID)
	if err := f.out.Text(ctx, conv, confirmation); err != nil {
		return nil, err
	}
	return &models.Transition{Flow: models.FlowAuth}, nil
}

// subject builds the ticket subject, preferring the LLM summary and falling
// back to the problem category.
func (f *SoporteFlow) subject(ctx context.Context, scratch *models.SoporteScratch) string {
	if f.summarizer != nil {
		if summary, err := f.summarizer.Summarize(ctx, scratch.Descripcion); err == nil && summary != "" {
			return summary
		} else if err != nil {
			slog.Warn("ticket subject summarization failed, using fallback", "error", err)
		}
	}
	return scratch.TipoProblema
}

func (f *SoporteFlow) priority(tipo string) string {
	if tipo == soporteTipos[soporteSinInternetID] {
		return "alta"
	}
	return "media"
}
