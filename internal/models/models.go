// Package models defines the core data structures for WispFlow.
//
// It includes the conversation aggregate, normalized inbound messages, and the
// customer/invoice views shared between the flow handlers and the WispHub client.
package models

import (
	"errors"
	"time"
)

// FlowID identifies a conversation flow. Every value except FlowEnded and
// FlowHuman has a registered handler; those two are terminal/suspended markers.
type FlowID string

const (
	FlowNew         FlowID = "new"
	FlowPrivacy     FlowID = "privacy"
	FlowAuth        FlowID = "auth"
	FlowMain        FlowID = "main"
	FlowRegistro    FlowID = "registro"
	FlowSoporte     FlowID = "soporte"
	FlowFacturas    FlowID = "facturas"
	FlowFacturacion FlowID = "facturacion"
	FlowPagos       FlowID = "pagos"
	FlowEnded       FlowID = "ended"
	FlowHuman       FlowID = "human"
)

// MessageType classifies a normalized inbound channel payload.
type MessageType string

const (
	MessageTypeText        MessageType = "text"
	MessageTypeButtonReply MessageType = "button_reply"
	MessageTypeListReply   MessageType = "list_reply"
	MessageTypeUnsupported MessageType = "unsupported"
)

// Validation constants shared across flows.
const (
	// MinCedulaDigits and MaxCedulaDigits bound the national ID format.
	MinCedulaDigits = 8
	MaxCedulaDigits = 12
	// NearDueWindowDays is the inclusive upper bound of the "próximas a vencer" window.
	NearDueWindowDays = 5
	// SessionMaxIdle is the idle window after which an authenticated session expires.
	SessionMaxIdle = 24 * time.Hour
	// MaxButtonsPerMessage is the WhatsApp Cloud API limit for reply buttons.
	MaxButtonsPerMessage = 3
)

// Error variables for better error handling and testability.
var (
	ErrEmptyPhoneNumber   = errors.New("phone number cannot be empty")
	ErrEmptyMessageBody   = errors.New("message body cannot be empty")
	ErrInvalidAmount      = errors.New("invalid monetary amount")
	ErrUnknownFlow        = errors.New("no handler registered for flow")
	ErrRedirectLoop       = errors.New("flow redirect chain exceeded maximum depth")
	ErrConversationEnded  = errors.New("conversation has ended")
	ErrMissingCustomerID  = errors.New("customer id is required")
	ErrTooManyButtons     = errors.New("too many reply buttons for one message")
	ErrEmptyRecipient     = errors.New("recipient cannot be empty")
	ErrInvalidPhoneNumber = errors.New("invalid phone number")
)

// InboundMessage is the canonical form of one inbound channel payload after
// normalization. Exactly one of the payload groups is populated depending on Type.
type InboundMessage struct {
	Type       MessageType `json:"type"`
	Text       string      `json:"text,omitempty"`        // free text body
	ReplyID    string      `json:"reply_id,omitempty"`    // button or list reply id
	ReplyTitle string      `json:"reply_title,omitempty"` // human label of the reply
	WAMessageID string     `json:"wa_message_id,omitempty"`
	Timestamp  time.Time   `json:"timestamp,omitempty"`
}

// FreeText returns the trimmed text body and whether the message carries one.
func (m InboundMessage) FreeText() (string, bool) {
	if m.Type != MessageTypeText || m.Text == "" {
		return "", false
	}
	return m.Text, true
}

// Reply returns the interactive reply id and whether the message carries one.
func (m InboundMessage) Reply() (string, bool) {
	if m.Type != MessageTypeButtonReply && m.Type != MessageTypeListReply {
		return "", false
	}
	return m.ReplyID, m.ReplyID != ""
}

// Transition is a flow handler's request that the orchestrator switch flows and
// re-invoke the new handler with the same inbound message. A nil *Transition
// means the handler fully consumed the message.
type Transition struct {
	Flow FlowID `json:"flow"`
}

// Sender distinguishes log entries by origin.
type Sender string

const (
	SenderUser Sender = "user"
	SenderBot  Sender = "bot"
)

// MessageContent is the tagged union stored in the conversation log.
type MessageContent struct {
	Type    string `json:"type"` // text, interactive, template, document, unknown
	Body    string `json:"body,omitempty"`
	ReplyID string `json:"reply_id,omitempty"`
	Title   string `json:"title,omitempty"`
}

// Message is one entry in a conversation's append-only log.
type Message struct {
	From      Sender         `json:"from"`
	Content   MessageContent `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
}
