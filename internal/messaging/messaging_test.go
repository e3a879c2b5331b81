package messaging

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/Conecta2Tel/WispFlow/internal/meta"
	"github.com/Conecta2Tel/WispFlow/internal/models"
	"github.com/Conecta2Tel/WispFlow/internal/whatsapp"
)

func TestCanonicalizePhone(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"+57 300 111 2233", "573001112233", false},
		{"(57) 300-111-2233", "573001112233", false},
		{"573001112233", "573001112233", false},
		{"", "", true},
		{"abc", "", true},
		{"12345", "", true},
	}
	for _, tc := range cases {
		got, err := canonicalizePhone(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("canonicalizePhone(%q) expected error, got %q", tc.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("canonicalizePhone(%q) failed: %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("canonicalizePhone(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestMetaServiceSendTextPayload(t *testing.T) {
	mock := meta.NewMockClient()
	svc := NewMetaService(mock)

	if err := svc.SendText(context.Background(), "+57 300 111 2233", "hola"); err != nil {
		t.Fatalf("SendText failed: %v", err)
	}
	if len(mock.Payloads) != 1 {
		t.Fatalf("payloads = %d", len(mock.Payloads))
	}
	p := mock.Payloads[0]
	if p["messaging_product"] != "whatsapp" || p["type"] != "text" || p["to"] != "573001112233" {
		t.Errorf("payload = %v", p)
	}
	if p["text"].(map[string]any)["body"] != "hola" {
		t.Errorf("text = %v", p["text"])
	}
}

func TestMetaServiceSendTextRejectsEmptyBody(t *testing.T) {
	svc := NewMetaService(meta.NewMockClient())
	if err := svc.SendText(context.Background(), "573001112233", ""); !errors.Is(err, models.ErrEmptyMessageBody) {
		t.Errorf("err = %v, want ErrEmptyMessageBody", err)
	}
}

func TestMetaServiceSendButtonsPayload(t *testing.T) {
	mock := meta.NewMockClient()
	svc := NewMetaService(mock)

	buttons := []Button{{ID: "yes", Title: "Sí"}, {ID: "no", Title: "No"}}
	if err := svc.SendButtons(context.Background(), "573001112233", "Encabezado", "¿Confirmas?", buttons); err != nil {
		t.Fatalf("SendButtons failed: %v", err)
	}
	p := mock.Payloads[0]
	interactive := p["interactive"].(map[string]any)
	if interactive["type"] != "button" {
		t.Errorf("interactive type = %v", interactive["type"])
	}
	if interactive["header"].(map[string]any)["text"] != "Encabezado" {
		t.Errorf("header = %v", interactive["header"])
	}
	wire := interactive["action"].(map[string]any)["buttons"].([]map[string]any)
	if len(wire) != 2 || wire[0]["reply"].(map[string]any)["id"] != "yes" {
		t.Errorf("buttons = %v", wire)
	}
}

func TestMetaServiceButtonLimit(t *testing.T) {
	svc := NewMetaService(meta.NewMockClient())
	four := []Button{{ID: "a"}, {ID: "b"}, {ID: "c"}, {ID: "d"}}
	if err := svc.SendButtons(context.Background(), "573001112233", "", "x", four); !errors.Is(err, models.ErrTooManyButtons) {
		t.Errorf("err = %v, want ErrTooManyButtons", err)
	}
	if err := svc.SendButtons(context.Background(), "573001112233", "", "x", nil); !errors.Is(err, models.ErrTooManyButtons) {
		t.Errorf("err = %v, want ErrTooManyButtons for zero buttons", err)
	}
}

func TestMetaServiceSendListPayload(t *testing.T) {
	mock := meta.NewMockClient()
	svc := NewMetaService(mock)

	sections := []ListSection{{Title: "Opciones", Rows: []ListRow{
		{ID: "r1", Title: "Primera", Description: "desc"},
		{ID: "r2", Title: "Segunda"},
	}}}
	if err := svc.SendList(context.Background(), "573001112233", "", "Elige", "Ver", sections); err != nil {
		t.Fatalf("SendList failed: %v", err)
	}
	interactive := mock.Payloads[0]["interactive"].(map[string]any)
	if interactive["type"] != "list" {
		t.Errorf("interactive type = %v", interactive["type"])
	}
	action := interactive["action"].(map[string]any)
	if action["button"] != "Ver" {
		t.Errorf("button = %v", action["button"])
	}
	rows := action["sections"].([]map[string]any)[0]["rows"].([]map[string]any)
	if len(rows) != 2 {
		t.Fatalf("rows = %d", len(rows))
	}
	if _, hasDesc := rows[1]["description"]; hasDesc {
		t.Error("empty description must be omitted")
	}
}

func TestMetaServiceSendDocumentPayload(t *testing.T) {
	mock := meta.NewMockClient()
	svc := NewMetaService(mock)

	if err := svc.SendDocument(context.Background(), "573001112233", "https://crm.example/f.pdf", "factura.pdf", "Tu factura"); err != nil {
		t.Fatalf("SendDocument failed: %v", err)
	}
	doc := mock.Payloads[0]["document"].(map[string]any)
	if doc["link"] != "https://crm.example/f.pdf" || doc["filename"] != "factura.pdf" || doc["caption"] != "Tu factura" {
		t.Errorf("document = %v", doc)
	}
}

func TestWhatsmeowServiceDegradesButtonsToNumberedText(t *testing.T) {
	mock := whatsapp.NewMockClient()
	svc := NewWhatsmeowService(mock)

	buttons := []Button{{ID: "yes", Title: "Acepto"}, {ID: "no", Title: "No acepto"}}
	if err := svc.SendButtons(context.Background(), "573001112233", "Privacidad", "¿Aceptas?", buttons); err != nil {
		t.Fatalf("SendButtons failed: %v", err)
	}
	if len(mock.Sent) != 1 {
		t.Fatalf("sent = %d", len(mock.Sent))
	}
	body := mock.Sent[0].Body
	for _, want := range []string{"Privacidad", "¿Aceptas?", "1. Acepto", "2. No acepto", "Responde con el número"} {
		if !strings.Contains(body, want) {
			t.Errorf("degraded body missing %q:\n%s", want, body)
		}
	}
}

func TestWhatsmeowServiceDegradesListNumberingAcrossSections(t *testing.T) {
	mock := whatsapp.NewMockClient()
	svc := NewWhatsmeowService(mock)

	sections := []ListSection{
		{Title: "A", Rows: []ListRow{{ID: "r1", Title: "Uno"}}},
		{Title: "B", Rows: []ListRow{{ID: "r2", Title: "Dos"}, {ID: "r3", Title: "Tres"}}},
	}
	if err := svc.SendList(context.Background(), "573001112233", "", "Elige", "Ver", sections); err != nil {
		t.Fatalf("SendList failed: %v", err)
	}
	body := mock.Sent[0].Body
	for _, want := range []string{"1. Uno", "2. Dos", "3. Tres"} {
		if !strings.Contains(body, want) {
			t.Errorf("list numbering missing %q:\n%s", want, body)
		}
	}
}

func TestRecorderErrPropagates(t *testing.T) {
	rec := NewRecorder()
	rec.Err = errors.New("transport down")
	if err := rec.SendText(context.Background(), "573001112233", "hola"); err == nil {
		t.Fatal("expected injected error")
	}
	if rec.Count() != 0 {
		t.Error("failed send must not be recorded")
	}
}
