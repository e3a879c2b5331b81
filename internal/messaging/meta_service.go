package messaging

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Conecta2Tel/WispFlow/internal/meta"
	"github.com/Conecta2Tel/WispFlow/internal/models"
)

// MetaService implements Service over the WhatsApp Business Cloud API. It is
// the only transport with native interactive, document and template support.
type MetaService struct {
	client meta.Sender
}

// NewMetaService creates a MetaService wrapping the given Cloud API sender.
func NewMetaService(client meta.Sender) *MetaService {
	slog.Debug("MetaService created")
	return &MetaService{client: client}
}

// ValidateAndCanonicalizeRecipient strips formatting and checks length.
func (s *MetaService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return canonicalizePhone(recipient)
}

// Start is a no-op; inbound traffic arrives through the webhook layer.
func (s *MetaService) Start(ctx context.Context) error { return nil }

// Stop is a no-op.
func (s *MetaService) Stop() error { return nil }

// SendText sends a plain text message.
func (s *MetaService) SendText(ctx context.Context, to, body string) error {
	if body == "" {
		return models.ErrEmptyMessageBody
	}
	to, err := canonicalizePhone(to)
	if err != nil {
		return err
	}
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "text",
		"text":              map[string]any{"body": body},
	}
	if err := s.client.SendPayload(ctx, payload); err != nil {
		slog.Error("MetaService SendText failed", "to", to, "error", err)
		return err
	}
	slog.Debug("MetaService text sent", "to", to, "body_length", len(body))
	return nil
}

// SendButtons sends an interactive reply-button message.
func (s *MetaService) SendButtons(ctx context.Context, to, header, body string, buttons []Button) error {
	if len(buttons) == 0 || len(buttons) > models.MaxButtonsPerMessage {
		return fmt.Errorf("%w: got %d", models.ErrTooManyButtons, len(buttons))
	}
	to, err := canonicalizePhone(to)
	if err != nil {
		return err
	}
	wireButtons := make([]map[string]any, 0, len(buttons))
	for _, b := range buttons {
		wireButtons = append(wireButtons, map[string]any{
			"type":  "reply",
			"reply": map[string]any{"id": b.ID, "title": b.Title},
		})
	}
	interactive := map[string]any{
		"type":   "button",
		"body":   map[string]any{"text": body},
		"action": map[string]any{"buttons": wireButtons},
	}
	if header != "" {
		interactive["header"] = map[string]any{"type": "text", "text": header}
	}
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "interactive",
		"interactive":       interactive,
	}
	if err := s.client.SendPayload(ctx, payload); err != nil {
		slog.Error("MetaService SendButtons failed", "to", to, "error", err)
		return err
	}
	slog.Debug("MetaService buttons sent", "to", to, "buttons", len(buttons))
	return nil
}

// SendList sends an interactive list message.
func (s *MetaService) SendList(ctx context.Context, to, header, body, buttonText string, sections []ListSection) error {
	to, err := canonicalizePhone(to)
	if err != nil {
		return err
	}
	wireSections := make([]map[string]any, 0, len(sections))
	for _, sec := range sections {
		rows := make([]map[string]any, 0, len(sec.Rows))
		for _, row := range sec.Rows {
			wireRow := map[string]any{"id": row.ID, "title": row.Title}
			if row.Description != "" {
				wireRow["description"] = row.Description
			}
			rows = append(rows, wireRow)
		}
		wireSections = append(wireSections, map[string]any{"title": sec.Title, "rows": rows})
	}
	interactive := map[string]any{
		"type":   "list",
		"body":   map[string]any{"text": body},
		"action": map[string]any{"button": buttonText, "sections": wireSections},
	}
	if header != "" {
		interactive["header"] = map[string]any{"type": "text", "text": header}
	}
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "interactive",
		"interactive":       interactive,
	}
	if err := s.client.SendPayload(ctx, payload); err != nil {
		slog.Error("MetaService SendList failed", "to", to, "error", err)
		return err
	}
	slog.Debug("MetaService list sent", "to", to, "sections", len(sections))
	return nil
}

// SendDocument sends a document message by link.
func (s *MetaService) SendDocument(ctx context.Context, to, url, filename, caption string) error {
	to, err := canonicalizePhone(to)
	if err != nil {
		return err
	}
	document := map[string]any{"link": url}
	if filename != "" {
		document["filename"] = filename
	}
	if caption != "" {
		document["caption"] = caption
	}
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "document",
		"document":          document,
	}
	if err := s.client.SendPayload(ctx, payload); err != nil {
		slog.Error("MetaService SendDocument failed", "to", to, "error", err)
		return err
	}
	slog.Debug("MetaService document sent", "to", to, "filename", filename)
	return nil
}

// SendTemplate sends a pre-approved template message.
func (s *MetaService) SendTemplate(ctx context.Context, to, name, languageCode string, components []TemplateComponent) error {
	to, err := canonicalizePhone(to)
	if err != nil {
		return err
	}
	template := map[string]any{
		"name":     name,
		"language": map[string]any{"code": languageCode},
	}
	if len(components) > 0 {
		template["components"] = components
	}
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "template",
		"template":          template,
	}
	if err := s.client.SendPayload(ctx, payload); err != nil {
		slog.Error("MetaService SendTemplate failed", "to", to, "template", name, "error", err)
		return err
	}
	slog.Debug("MetaService template sent", "to", to, "template", name)
	return nil
}
