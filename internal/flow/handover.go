package flow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Conecta2Tel/WispFlow/internal/meta"
	"github.com/Conecta2Tel/WispFlow/internal/models"
	"github.com/Conecta2Tel/WispFlow/internal/wisphub"
)

const handoverConfirmation = "Entendido. Te comunicaré con uno de nuestros asesores. 👤\n\n" +
	"Un agente te atenderá en breve. El asistente virtual quedará en pausa mientras tanto."

// Handover coordinates transferring a conversation to a human agent and taking
// it back. Thread control is best-effort: the conversation is muted locally
// even when the Cloud API transfer fails, so the bot never talks over an agent.
type Handover struct {
	out *Outbox
	tc  meta.ThreadControl // nil when the transport has no thread control
	crm wisphub.API
	now func() time.Time
}

// NewHandover creates a handover coordinator. tc may be nil.
func NewHandover(out *Outbox, tc meta.ThreadControl, crm wisphub.API) *Handover {
	return &Handover{out: out, tc: tc, crm: crm, now: time.Now}
}

// Execute confirms the handover to the user, transfers thread control and
// mutes the conversation. Authenticated users get a support ticket filed
// first so the agent has context; ticket failures are logged, not fatal.
// The returned error reports the confirmation send only; the conversation is
// handed over regardless.
func (h *Handover) Execute(ctx context.Context, conv *models.Conversation, reason string) error {
	if conv.UserData.Authenticated && h.crm != nil {
		req := models.TicketRequest{
			Subject:     "Solicitud de atención humana",
			Description: fmt.Sprintf("El cliente pidió hablar con un agente (%s).", reason),
			Priority:    "alta",
			Category:    "atencion_cliente",
		}
		if _, err := h.crm.CreateTicket(ctx, conv.UserData.CustomerID, req); err != nil {
			slog.Error("handover ticket creation failed", "error", err, "phone", conv.PhoneNumber)
		}
	}
	sendErr := h.out.Text(ctx, conv, handoverConfirmation)
	if h.tc != nil {
		if err := h.tc.PassThreadControl(ctx, conv.PhoneNumber, reason); err != nil {
			slog.Error("pass thread control failed", "error", err, "phone", conv.PhoneNumber, "reason", reason)
		}
	}
	conv.HandOver(h.now())
	slog.Info("conversation handed over to human", "phone", conv.PhoneNumber, "reason", reason)
	return sendErr
}

// Release takes thread control back and resumes the bot at the main menu.
func (h *Handover) Release(ctx context.Context, conv *models.Conversation) error {
	if !conv.IsHandedOverToHuman {
		return fmt.Errorf("conversation %s is not handed over", conv.PhoneNumber)
	}
	if h.tc != nil {
		if err := h.tc.TakeThreadControl(ctx, conv.PhoneNumber, "released"); err != nil {
			slog.Error("take thread control failed", "error", err, "phone", conv.PhoneNumber)
		}
	}
	conv.Release()
	slog.Info("conversation released back to bot", "phone", conv.PhoneNumber)
	return nil
}
