package messaging

import (
	"context"
	"sync"
)

// SentMessage is one recorded outbound message.
type SentMessage struct {
	Kind     string // text, buttons, list, document, template
	To       string
	Header   string
	Body     string
	Buttons  []Button
	Sections []ListSection
	URL      string
	Filename string
	Template string
}

// Recorder implements Service by recording every send. Used across the flow
// and API tests in place of a real transport.
type Recorder struct {
	mu   sync.Mutex
	Sent []SentMessage
	// Err, when set, is returned by every send.
	Err error
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) record(m SentMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.Sent = append(r.Sent, m)
	return nil
}

// Last returns the most recent send, or a zero value if none.
func (r *Recorder) Last() SentMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.Sent) == 0 {
		return SentMessage{}
	}
	return r.Sent[len(r.Sent)-1]
}

// Count returns the number of recorded sends.
func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Sent)
}

func (r *Recorder) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return canonicalizePhone(recipient)
}

func (r *Recorder) Start(ctx context.Context) error { return nil }
func (r *Recorder) Stop() error                     { return nil }

func (r *Recorder) SendText(ctx context.Context, to, body string) error {
	return r.record(SentMessage{Kind: "text", To: to, Body: body})
}

func (r *Recorder) SendButtons(ctx context.Context, to, header, body string, buttons []Button) error {
	return r.record(SentMessage{Kind: "buttons", To: to, Header: header, Body: body, Buttons: buttons})
}

func (r *Recorder) SendList(ctx context.Context, to, header, body, buttonText string, sections []ListSection) error {
	return r.record(SentMessage{Kind: "list", To: to, Header: header, Body: body, Sections: sections})
}

func (r *Recorder) SendDocument(ctx context.Context, to, url, filename, caption string) error {
	return r.record(SentMessage{Kind: "document", To: to, URL: url, Filename: filename, Body: caption})
}

func (r *Recorder) SendTemplate(ctx context.Context, to, name, languageCode string, components []TemplateComponent) error {
	return r.record(SentMessage{Kind: "template", To: to, Template: name})
}
