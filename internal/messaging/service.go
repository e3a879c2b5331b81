// Package messaging provides the pluggable outbound message transport for
// WispFlow.
//
// The flow handlers speak this interface only; the concrete channel (Cloud
// API, whatsmeow session, Twilio) is selected at startup. Channels that cannot
// render interactive messages degrade them to numbered text menus.
package messaging

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/Conecta2Tel/WispFlow/internal/models"
)

// Constants shared by the transport implementations.
const (
	// MinPhoneDigits is the minimum length of a canonical recipient.
	MinPhoneDigits = 6
)

var phoneNumberRegex = regexp.MustCompile(`[^0-9]`)

// Button is one reply button on an interactive message (≤3 per message).
type Button struct {
	ID    string
	Title string
}

// ListRow is one selectable row of an interactive list message.
type ListRow struct {
	ID          string
	Title       string
	Description string
}

// ListSection groups rows of an interactive list message.
type ListSection struct {
	Title string
	Rows  []ListRow
}

// TemplateParameter is one substitution value in a template component.
type TemplateParameter struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// TemplateComponent is one component of a pre-approved message template.
type TemplateComponent struct {
	Type       string              `json:"type"`
	Parameters []TemplateParameter `json:"parameters,omitempty"`
}

// Service defines the outbound message delivery abstraction.
type Service interface {
	// ValidateAndCanonicalizeRecipient validates and canonicalizes a recipient
	// identifier. Each transport owns its recipient rules.
	ValidateAndCanonicalizeRecipient(recipient string) (string, error)

	// SendText sends a plain text message.
	SendText(ctx context.Context, to, body string) error

	// SendButtons sends an interactive message with up to three reply buttons.
	SendButtons(ctx context.Context, to, header, body string, buttons []Button) error

	// SendList sends an interactive list message.
	SendList(ctx context.Context, to, header, body, buttonText string, sections []ListSection) error

	// SendDocument sends a document by URL with a filename and caption.
	SendDocument(ctx context.Context, to, url, filename, caption string) error

	// SendTemplate sends a pre-approved message template.
	SendTemplate(ctx context.Context, to, name, languageCode string, components []TemplateComponent) error

	// Start begins any background processing (e.g. event polling).
	Start(ctx context.Context) error

	// Stop stops background processing and cleans up resources.
	Stop() error
}

// canonicalizePhone strips non-digits and validates the minimum length. All
// three transports share WhatsApp's numeric recipient format.
func canonicalizePhone(recipient string) (string, error) {
	if recipient == "" {
		return "", models.ErrEmptyRecipient
	}
	canonical := phoneNumberRegex.ReplaceAllString(recipient, "")
	if canonical == "" {
		return "", fmt.Errorf("%w: no digits found in %q", models.ErrInvalidPhoneNumber, recipient)
	}
	if len(canonical) < MinPhoneDigits {
		return "", fmt.Errorf("%w: %q is too short", models.ErrInvalidPhoneNumber, canonical)
	}
	return canonical, nil
}

// renderButtonsAsText degrades an interactive button message to numbered text
// for transports without button support.
func renderButtonsAsText(header, body string, buttons []Button) string {
	var b strings.Builder
	if header != "" {
		b.WriteString(header)
		b.WriteString("\n\n")
	}
	b.WriteString(body)
	b.WriteString("\n")
	for i, btn := range buttons {
		fmt.Fprintf(&b, "\n%d. %s", i+1, btn.Title)
	}
	b.WriteString("\n\nResponde con el número de la opción.")
	return b.String()
}

// renderListAsText degrades an interactive list message to numbered text.
func renderListAsText(header, body string, sections []ListSection) string {
	var b strings.Builder
	if header != "" {
		b.WriteString(header)
		b.WriteString("\n\n")
	}
	b.WriteString(body)
	b.WriteString("\n")
	n := 0
	for _, sec := range sections {
		if sec.Title != "" {
			fmt.Fprintf(&b, "\n*%s*", sec.Title)
		}
		for _, row := range sec.Rows {
			n++
			fmt.Fprintf(&b, "\n%d. %s", n, row.Title)
			if row.Description != "" {
				fmt.Fprintf(&b, " — %s", row.Description)
			}
		}
	}
	b.WriteString("\n\nResponde con el número de la opción.")
	return b.String()
}
