package flow

import (
	"context"

	"github.com/Conecta2Tel/WispFlow/internal/messaging"
	"github.com/Conecta2Tel/WispFlow/internal/models"
)

const (
	privacyStepNotice  = "notice"
	privacyStepWaiting = "waiting_response"
)

const (
	privacyAcceptID = "accept"
	privacyRejectID = "reject"
)

const privacyNoticeBody = "¡Hola! 👋 Soy el asistente virtual de Conecta2 Telecomunicaciones.\n\n" +
	"Antes de continuar necesito tu autorización para tratar tus datos personales conforme a " +
	"nuestra política de privacidad: https://conecta2tel.com/privacidad\n\n" +
	"¿Aceptas nuestra política de tratamiento de datos?"

const privacyAcceptedBody = "¡Gracias! ✅ Tu autorización quedó registrada."

const privacyRejectedBody = "Entendido. Sin tu autorización no puedo atenderte por este medio. 😔\n\n" +
	"Si cambias de opinión, escríbenos de nuevo. También puedes llamarnos a nuestra línea de atención."

// PrivacyFlow runs the data-privacy consent gate. Every new conversation
// starts here and nothing else runs until the notice is accepted.
type PrivacyFlow struct {
	out *Outbox
}

// NewPrivacyFlow creates the privacy flow handler.
func NewPrivacyFlow(out *Outbox) *PrivacyFlow {
	return &PrivacyFlow{out: out}
}

func (f *PrivacyFlow) HandleFlow(ctx context.Context, conv *models.Conversation, msg models.InboundMessage) (*models.Transition, error) {
	switch conv.CurrentStep {
	case privacyStepWaiting:
		return f.handleResponse(ctx, conv, msg)
	default:
		return nil, f.sendNotice(ctx, conv)
	}
}

func (f *PrivacyFlow) sendNotice(ctx context.Context, conv *models.Conversation) error {
	err := f.out.Buttons(ctx, conv, "Política de privacidad", privacyNoticeBody, []messaging.Button{
		{ID: privacyAcceptID, Title: "Acepto"},
		{ID: privacyRejectID, Title: "No acepto"},
	})
	if err != nil {
		return err
	}
	conv.CurrentStep = privacyStepWaiting
	return nil
}

func (f *PrivacyFlow) handleResponse(ctx context.Context, conv *models.Conversation, msg models.InboundMessage) (*models.Transition, error) {
	choice, ok := selectOption(msg, privacyAcceptID, privacyRejectID)
	if !ok {
		if text, has := msg.FreeText(); has {
			switch normalizeText(text) {
			case "acepto", "si", "aceptar":
				choice, ok = privacyAcceptID, true
			case "no", "no acepto":
				choice, ok = privacyRejectID, true
			}
		}
	}
	if !ok {
		// Re-send the notice untouched; the gate stays closed.
		conv.CurrentStep = privacyStepNotice
		return nil, f.sendNotice(ctx, conv)
	}

	now := f.out.now()
	if choice == privacyRejectID {
		if err := f.out.Text(ctx, conv, privacyRejectedBody); err != nil {
			return nil, err
		}
		conv.End("privacy_rejected", now)
		return nil, nil
	}

	conv.HasAcceptedPrivacy = true
	conv.AcceptedPrivacyAt = &now
	if err := f.out.Text(ctx, conv, privacyAcceptedBody); err != nil {
		return nil, err
	}
	return &models.Transition{Flow: models.FlowAuth}, nil
}
