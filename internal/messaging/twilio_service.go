package messaging

import (
	"context"

	"github.com/Conecta2Tel/WispFlow/internal/twiliowhatsapp"
)

// TwilioService implements Service over Twilio's WhatsApp API. Twilio's Go SDK
// only supports text bodies, so interactive payloads degrade to numbered text.
type TwilioService struct {
	client twiliowhatsapp.TextSender
}

// NewTwilioService creates a TwilioService wrapping the given sender.
func NewTwilioService(client twiliowhatsapp.TextSender) *TwilioService {
	return &TwilioService{client: client}
}

// ValidateAndCanonicalizeRecipient strips formatting and checks length.
func (s *TwilioService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return canonicalizePhone(recipient)
}

// Start is a no-op; Twilio inbound traffic arrives through webhooks.
func (s *TwilioService) Start(ctx context.Context) error { return nil }

// Stop is a no-op.
func (s *TwilioService) Stop() error { return nil }

func (s *TwilioService) SendText(ctx context.Context, to, body string) error {
	to, err := canonicalizePhone(to)
	if err != nil {
		return err
	}
	return s.client.SendMessage(ctx, to, body)
}

func (s *TwilioService) SendButtons(ctx context.Context, to, header, body string, buttons []Button) error {
	return s.SendText(ctx, to, renderButtonsAsText(header, body, buttons))
}

func (s *TwilioService) SendList(ctx context.Context, to, header, body, buttonText string, sections []ListSection) error {
	return s.SendText(ctx, to, renderListAsText(header, body, sections))
}

func (s *TwilioService) SendDocument(ctx context.Context, to, url, filename, caption string) error {
	text := caption
	if text != "" {
		text += "\n"
	}
	return s.SendText(ctx, to, text+url)
}

func (s *TwilioService) SendTemplate(ctx context.Context, to, name, languageCode string, components []TemplateComponent) error {
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
