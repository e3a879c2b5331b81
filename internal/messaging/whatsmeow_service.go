package messaging

import (
	"context"
	"log/slog"
	"time"

	"github.com/Conecta2Tel/WispFlow/internal/models"
	"github.com/Conecta2Tel/WispFlow/internal/whatsapp"
)

// InboundHandler receives normalized inbound messages from a transport that
// delivers events directly instead of through the webhook layer.
type InboundHandler func(ctx context.Context, phoneNumber string, msg models.InboundMessage, displayName string)

// WhatsmeowService implements Service over a WhatsApp Web session. Interactive
// payloads are degraded to numbered text menus; users answer with digits,
// which the flows already accept as free text.
type WhatsmeowService struct {
	client  whatsapp.TextSender
	wa      *whatsapp.Client // nil when constructed with a mock sender
	inbound InboundHandler
}

// NewWhatsmeowService creates a WhatsmeowService wrapping the given sender.
func NewWhatsmeowService(client whatsapp.TextSender) *WhatsmeowService {
	s := &WhatsmeowService{client: client}
	if wa, ok := client.(*whatsapp.Client); ok {
		s.wa = wa
		slog.Debug("WhatsmeowService created with live client")
	} else {
		slog.Debug("WhatsmeowService created with mock sender")
	}
	return s
}

// SetInboundHandler wires inbound session messages into the orchestrator.
// Must be called before Start.
func (s *WhatsmeowService) SetInboundHandler(h InboundHandler) {
	s.inbound = h
}

// ValidateAndCanonicalizeRecipient strips formatting and checks length.
func (s *WhatsmeowService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return canonicalizePhone(recipient)
}

// Start subscribes to session events when a live client and handler are wired.
func (s *WhatsmeowService) Start(ctx context.Context) error {
	if s.wa == nil || s.inbound == nil {
		slog.Debug("WhatsmeowService Start: no live client or inbound handler, skipping event subscription")
		return nil
	}
	s.wa.OnTextMessage(func(from, pushName, body string, at time.Time) {
		msg := models.InboundMessage{Type: models.MessageTypeText, Text: body, Timestamp: at}
		go s.inbound(ctx, from, msg, pushName)
	})
	slog.Debug("WhatsmeowService subscribed to session events")
	return nil
}

// Stop disconnects the live session if any.
func (s *WhatsmeowService) Stop() error {
	if s.wa != nil {
		s.wa.Disconnect()
	}
	return nil
}

func (s *WhatsmeowService) SendText(ctx context.Context, to, body string) error {
	to, err := canonicalizePhone(to)
	if err != nil {
		return err
	}
	return s.client.SendMessage(ctx, to, body)
}

func (s *WhatsmeowService) SendButtons(ctx context.Context, to, header, body string, buttons []Button) error {
	return s.SendText(ctx, to, renderButtonsAsText(header, body, buttons))
}

func (s *WhatsmeowService) SendList(ctx context.Context, to, header, body, buttonText string, sections []ListSection) error {
	return s.SendText(ctx, to, renderListAsText(header, body, sections))
}

func (s *WhatsmeowService) SendDocument(ctx context.Context, to, url, filename, caption string) error {
	text := caption
	if text != "" {
		text += "\n"
	}
	return s.SendText(ctx, to, text+url)
}

func (s *WhatsmeowService) SendTemplate(ctx context.Context, to, name, languageCode string, components []TemplateComponent) error {
	// Templates only exist on the Cloud API; render the parameters as text.
	var body string
	for _, comp := range components {
		for _, p := range comp.Parameters {
			if p.Text != "" {
				if body != "" {
					body += "\n"
				}
				body += p.Text
			}
		}
	}
	if body == "" {
		body = name
	}
	return s.SendText(ctx, to, body)
}
