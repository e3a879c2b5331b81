// Package flow implements the conversation orchestration core of WispFlow.
//
// Each inbound message is routed to the handler of the conversation's current
// flow. Handlers are resumable state machines: all state between webhook
// deliveries lives on the Conversation aggregate, never in memory. A handler
// may return a Transition to move the conversation to another flow, in which
// case the orchestrator re-invokes the new flow's handler with the same
// message.
package flow

import (
	"context"
	"strconv"
	"strings"

	"github.com/Conecta2Tel/WispFlow/internal/genai"
	"github.com/Conecta2Tel/WispFlow/internal/models"
	"github.com/Conecta2Tel/WispFlow/internal/wisphub"
)

// Flow is the contract every conversation flow handler implements. A nil
// Transition means the message was fully consumed; a non-nil one asks the
// orchestrator to switch flows and re-dispatch.
type Flow interface {
	HandleFlow(ctx context.Context, conv *models.Conversation, msg models.InboundMessage) (*models.Transition, error)
}

// Registry maps flow ids to their handlers. Handlers are registered once at
// startup; lookups are read-only afterwards.
type Registry struct {
	flows map[models.FlowID]Flow
}

// NewRegistry creates an empty flow registry.
func NewRegistry() *Registry {
	return &Registry{flows: make(map[models.FlowID]Flow)}
}

// Register binds a handler to a flow id, replacing any previous binding.
func (r *Registry) Register(id models.FlowID, f Flow) {
	r.flows[id] = f
}

// Lookup returns the handler for a flow id.
func (r *Registry) Lookup(id models.FlowID) (Flow, bool) {
	f, ok := r.flows[id]
	return f, ok
}

// DefaultRegistry wires every flow handler with its collaborators. summarizer
// may be nil to disable LLM ticket subjects.
func DefaultRegistry(out *Outbox, crm wisphub.API, h *Handover, summarizer genai.Summarizer) *Registry {
	r := NewRegistry()
	r.Register(models.FlowPrivacy, NewPrivacyFlow(out))
	r.Register(models.FlowAuth, NewAuthFlow(out, crm, h))
	r.Register(models.FlowMain, NewMainFlow(out, h))
	r.Register(models.FlowFacturas, NewFacturasFlow(out, crm))
	r.Register(models.FlowFacturacion, NewFacturacionFlow(out, crm))
	r.Register(models.FlowPagos, NewPagosFlow(out, crm))
	r.Register(models.FlowSoporte, NewSoporteFlow(out, crm, summarizer, h))
	r.Register(models.FlowRegistro, NewRegistroFlow(out, h))
	return r
}

// humanAttentionKeywords trigger an immediate handover when they appear in a
// free-text message, regardless of the current flow. Matched on normalized
// (lowercased, unaccented) text.
var humanAttentionKeywords = []string{
	"asesor",
	"humano",
	"persona",
	"agente",
	"hablar con alguien",
	"atencion humana",
	"hablar con un agente",
	"necesito ayuda humana",
	"persona real",
}

var accentReplacer = strings.NewReplacer(
	"á", "a", "é", "e", "í", "i", "ó", "o", "ú", "u", "ü", "u", "ñ", "n",
)

// normalizeText lowercases and strips Spanish accents for keyword matching.
func normalizeText(s string) string {
	return accentReplacer.Replace(strings.ToLower(strings.TrimSpace(s)))
}

// RequiresHumanAttention reports whether a free-text message asks for a human
// agent.
func RequiresHumanAttention(text string) bool {
	t := normalizeText(text)
	for _, kw := range humanAttentionKeywords {
		if strings.Contains(t, kw) {
			return true
		}
	}
	return false
}

// isMenuKeyword reports whether the text is the "back to menu" escape word.
func isMenuKeyword(text string) bool {
	return normalizeText(text) == "menu"
}

// selectOption resolves a menu choice against the ordered option ids. It
// accepts either an interactive reply carrying one of the ids or a typed
// 1-based menu number.
func selectOption(msg models.InboundMessage, ids ...string) (string, bool) {
	if id, ok := msg.Reply(); ok {
		for _, candidate := range ids {
			if id == candidate {
				return id, true
			}
		}
		return "", false
	}
	text, ok := msg.FreeText()
	if !ok {
		return "", false
	}
	n, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil || n < 1 || n > len(ids) {
		return "", false
	}
	return ids[n-1], true
}
