package flow

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Conecta2Tel/WispFlow/internal/models"
	"github.com/Conecta2Tel/WispFlow/internal/store"
)

// maxRedirects bounds the flow transition chain for a single inbound message.
const maxRedirects = 3

const apologyMessage = "Lo siento, estoy teniendo problemas técnicos en este momento. " +
	"Por favor intenta de nuevo en unos minutos. 🙏"

const sessionExpiredMessage = "Tu sesión expiró por inactividad. 🔐 Validemos tu identidad de nuevo."

// protectedFlows require an authenticated session. The orchestrator redirects
// unauthenticated conversations that land here to the auth flow. Soporte is
// open to anonymous users; it hands them to an agent instead of filing a
// ticket.
var protectedFlows = map[models.FlowID]bool{
	models.FlowFacturas:    true,
	models.FlowFacturacion: true,
	models.FlowPagos:       true,
}

// Orchestrator routes inbound messages through the gates and flow handlers.
// It owns the load-dispatch-save cycle: the conversation is loaded once,
// mutated in memory by the handlers, and persisted exactly once at the end.
type Orchestrator struct {
	store    store.Store
	registry *Registry
	out      *Outbox
	handover *Handover
	locks    *keyedMutex
	now      func() time.Time
}

// NewOrchestrator wires the orchestrator's collaborators.
func NewOrchestrator(st store.Store, reg *Registry, out *Outbox, h *Handover) *Orchestrator {
	return &Orchestrator{
		store:    st,
		registry: reg,
		out:      out,
		handover: h,
		locks:    newKeyedMutex(),
		now:      time.Now,
	}
}

// LockPhone acquires the per-phone mutex used for message processing, so
// administrative load-modify-save operations do not race with an inbound
// message for the same number. The returned function releases the lock.
func (o *Orchestrator) LockPhone(phoneNumber string) func() {
	return o.locks.Lock(phoneNumber)
}

// Process handles one inbound message for a phone number. Processing for the
// same number is serialized; different numbers proceed concurrently.
func (o *Orchestrator) Process(ctx context.Context, phoneNumber, displayName string, msg models.InboundMessage) error {
	canonical, err := o.out.svc.ValidateAndCanonicalizeRecipient(phoneNumber)
	if err != nil {
		return err
	}

	unlock := o.locks.Lock(canonical)
	defer unlock()

	now := o.now()
	conv, err := o.store.GetConversation(canonical)
	if err != nil {
		return err
	}
	if conv == nil {
		conv = models.NewConversation(canonical, displayName, now)
		slog.Info("new conversation", "phone", canonical)
	}
	if conv.UserName == "" && displayName != "" {
		conv.UserName = displayName
	}
	conv.RecordInbound(msg, now)

	// Muted and terminal conversations consume the message silently. The
	// activity timestamp still moves so the idle sweep sees them as alive.
	if conv.IsHandedOverToHuman || conv.CurrentFlow == models.FlowEnded {
		conv.LastActivity = now
		return o.store.SaveConversation(conv)
	}

	// Expiry is evaluated against the previous activity, before the bump.
	expired := conv.UserData.Authenticated && conv.SessionExpired(now)
	conv.LastActivity = now
	if expired {
		conv.UserData.ClearAuth()
		conv.CurrentFlow = models.FlowAuth
		conv.CurrentStep = ""
		if err := o.out.Text(ctx, conv, sessionExpiredMessage); err != nil {
			slog.Error("session expiry notice failed", "error", err, "phone", canonical)
		}
		slog.Info("authenticated session expired", "phone", canonical)
	}

	// Privacy gate: nothing proceeds until the notice is accepted.
	if !conv.HasAcceptedPrivacy && conv.CurrentFlow != models.FlowPrivacy {
		conv.CurrentFlow = models.FlowPrivacy
		conv.CurrentStep = privacyStepNotice
	}

	// Keyword interrupt: a free-text request for a human overrides the current
	// flow. Only once the privacy notice has been accepted.
	if text, ok := msg.FreeText(); ok && conv.HasAcceptedPrivacy && RequiresHumanAttention(text) {
		if err := o.handover.Execute(ctx, conv, "keyword"); err != nil {
			slog.Error("handover confirmation failed", "error", err, "phone", canonical)
		}
		return o.store.SaveConversation(conv)
	}

	procErr := o.dispatch(ctx, conv, msg)
	if procErr != nil {
		slog.Error("flow processing failed", "error", procErr, "phone", canonical, "flow", conv.CurrentFlow, "step", conv.CurrentStep)
		if sendErr := o.out.Text(ctx, conv, apologyMessage); sendErr != nil {
			slog.Error("apology message failed", "error", sendErr, "phone", canonical)
		}
	}
	if err := o.store.SaveConversation(conv); err != nil {
		return errors.Join(procErr, err)
	}
	return procErr
}

// dispatch runs the trampoline: invoke the current flow's handler, follow its
// transition directives, and stop after a bounded number of redirects.
func (o *Orchestrator) dispatch(ctx context.Context, conv *models.Conversation, msg models.InboundMessage) error {
	for depth := 0; ; depth++ {
		if depth > maxRedirects {
			return models.ErrRedirectLoop
		}

		// Auth gate: protected flows need an authenticated session, whether
		// reached by resumption or by a transition in this same cycle.
		if protectedFlows[conv.CurrentFlow] && !conv.UserData.Authenticated {
			slog.Debug("auth gate redirect", "phone", conv.PhoneNumber, "from", conv.CurrentFlow)
			conv.CurrentFlow = models.FlowAuth
			conv.CurrentStep = ""
		}

		handler, ok := o.registry.Lookup(conv.CurrentFlow)
		if !ok {
			slog.Warn("no handler for flow, falling back to main menu", "flow", conv.CurrentFlow, "phone", conv.PhoneNumber)
			conv.CurrentFlow = models.FlowMain
			conv.CurrentStep = ""
			if handler, ok = o.registry.Lookup(models.FlowMain); !ok {
				return models.ErrUnknownFlow
			}
		}

		t, err := handler.HandleFlow(ctx, conv, msg)
		if err != nil {
			return err
		}
		if t == nil {
			return nil
		}
		slog.Debug("flow transition", "phone", conv.PhoneNumber, "from", conv.CurrentFlow, "to", t.Flow)
		conv.CurrentFlow = t.Flow
		conv.CurrentStep = ""
	}
}
