package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Conecta2Tel/WispFlow/internal/models"
)

// Cloud API webhook payload. Only the fields WispFlow consumes are declared.
type webhookPayload struct {
	Object string `json:"object"`
	Entry  []struct {
		ID      string `json:"id"`
		Changes []struct {
			Field string       `json:"field"`
			Value webhookValue `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type webhookValue struct {
	Contacts []struct {
		WaID    string `json:"wa_id"`
		Profile struct {
			Name string `json:"name"`
		} `json:"profile"`
	} `json:"contacts"`
	Messages []webhookMessage `json:"messages"`
}

type webhookMessage struct {
	From      string `json:"from"`
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Text      struct {
		Body string `json:"body"`
	} `json:"text"`
	Interactive struct {
		Type        string `json:"type"`
		ButtonReply struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"button_reply"`
		ListReply struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"list_reply"`
	} `json:"interactive"`
}

// handleWebhookVerify answers Meta's subscription handshake: echo the
// challenge when the verify token matches.
func (s *Server) handleWebhookVerify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode := q.Get("hub.mode")
	token := q.Get("hub.verify_token")
	challenge := q.Get("hub.challenge")

	if mode != "subscribe" || s.opts.VerifyToken == "" || token != s.opts.VerifyToken {
		slog.Warn("webhook verification rejected", "mode", mode)
		w.WriteHeader(http.StatusForbidden)
		return
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(challenge)); err != nil {
		slog.Error("webhook verification write failed", "error", err)
	}
}

// handleWebhook acknowledges the delivery immediately and processes each
// message asynchronously. The Cloud API retries deliveries that do not get a
// fast 200, which would duplicate messages.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	var payload webhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		slog.Warn("webhook payload decode failed", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusOK)

	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			if change.Field != "messages" {
				continue
			}
			names := contactNames(change.Value)
			for _, wm := range change.Value.Messages {
				msg := normalizeMessage(wm)
				phone := wm.From
				name := names[phone]
				go func() {
					ctx, cancel := context.WithTimeout(context.Background(), s.opts.ProcessTimeout)
					defer cancel()
					if err := s.orch.Process(ctx, phone, name, msg); err != nil {
						slog.Error("webhook message processing failed", "error", err, "phone", phone)
					}
				}()
			}
		}
	}
}

func contactNames(v webhookValue) map[string]string {
	names := make(map[string]string, len(v.Contacts))
	for _, c := range v.Contacts {
		names[c.WaID] = c.Profile.Name
	}
	return names
}

// normalizeMessage converts a Cloud API message into the canonical inbound
// form. Unknown message kinds become MessageTypeUnsupported so flows can
// re-prompt instead of crashing.
func normalizeMessage(wm webhookMessage) models.InboundMessage {
	msg := models.InboundMessage{
		Type:        models.MessageTypeUnsupported,
		WAMessageID: wm.ID,
	}
	if unix, err := strconv.ParseInt(wm.Timestamp, 10, 64); err == nil {
		msg.Timestamp = time.Unix(unix, 0)
	}
	switch wm.Type {
	case "text":
		msg.Type = models.MessageTypeText
		msg.Text = wm.Text.Body
	case "interactive":
		switch wm.Interactive.Type {
		case "button_reply":
			msg.Type = models.MessageTypeButtonReply
			msg.ReplyID = wm.Interactive.ButtonReply.ID
			msg.ReplyTitle = wm.Interactive.ButtonReply.Title
		case "list_reply":
			msg.Type = models.MessageTypeListReply
			msg.ReplyID = wm.Interactive.ListReply.ID
			msg.ReplyTitle = wm.Interactive.ListReply.Title
		}
	}
	return msg
}
