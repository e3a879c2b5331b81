package flow

import (
	"context"
	"time"

	"github.com/Conecta2Tel/WispFlow/internal/messaging"
	"github.com/Conecta2Tel/WispFlow/internal/models"
)

// Outbox sends bot messages through the configured transport and mirrors each
// one into the conversation's message log. Flow handlers send exclusively
// through it so the log stays complete.
type Outbox struct {
	svc messaging.Service
	now func() time.Time
}

// NewOutbox wraps a messaging service.
func NewOutbox(svc messaging.Service) *Outbox {
	return &Outbox{svc: svc, now: time.Now}
}

// Service exposes the underlying transport.
func (o *Outbox) Service() messaging.Service {
	return o.svc
}

// Text sends a plain text message and records it.
func (o *Outbox) Text(ctx context.Context, conv *models.Conversation, body string) error {
	if err := o.svc.SendText(ctx, conv.PhoneNumber, body); err != nil {
		return err
	}
	conv.RecordOutbound(models.MessageContent{Type: "text", Body: body}, o.now())
	return nil
}

// Buttons sends an interactive reply-button message and records it.
func (o *Outbox) Buttons(ctx context.Context, conv *models.Conversation, header, body string, buttons []messaging.Button) error {
	if err := o.svc.SendButtons(ctx, conv.PhoneNumber, header, body, buttons); err != nil {
		return err
	}
	conv.RecordOutbound(models.MessageContent{Type: "interactive", Body: body}, o.now())
	return nil
}

// List sends an interactive list message and records it.
func (o *Outbox) List(ctx context.Context, conv *models.Conversation, header, body, buttonText string, sections []messaging.ListSection) error {
	if err := o.svc.SendList(ctx, conv.PhoneNumber, header, body, buttonText, sections); err != nil {
		return err
	}
	conv.RecordOutbound(models.MessageContent{Type: "interactive", Body: body}, o.now())
	return nil
}

// Document sends a document by URL and records it.
func (o *Outbox) Document(ctx context.Context, conv *models.Conversation, url, filename, caption string) error {
	if err := o.svc.SendDocument(ctx, conv.PhoneNumber, url, filename, caption); err != nil {
		return err
	}
	conv.RecordOutbound(models.MessageContent{Type: "document", Body: caption}, o.now())
	return nil
}
