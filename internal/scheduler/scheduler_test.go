package scheduler

import (
	"testing"
	"time"

	"github.com/Conecta2Tel/WispFlow/internal/models"
	"github.com/Conecta2Tel/WispFlow/internal/store"
)

func authenticatedConversation(phone string, lastActivity time.Time) *models.Conversation {
	conv := models.NewConversation(phone, "Laura", lastActivity)
	conv.HasAcceptedPrivacy = true
	conv.CurrentFlow = models.FlowAuth
	conv.CurrentStep = "menu_autenticado"
	conv.UserData.Identify(models.Customer{ID: "cust-1", NombreCompleto: "Laura Gómez"}, "12345678", nil)
	conv.LastActivity = lastActivity
	return conv
}

func TestSessionSweepExpiresIdleSessions(t *testing.T) {
	st := store.NewInMemoryStore()
	now := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)

	idle := authenticatedConversation("573001110001", now.Add(-25*time.Hour))
	fresh := authenticatedConversation("573001110002", now.Add(-1*time.Hour))
	for _, c := range []*models.Conversation{idle, fresh} {
		if err := st.SaveConversation(c); err != nil {
			t.Fatal(err)
		}
	}

	sweep := NewSessionSweep(st)
	sweep.now = func() time.Time { return now }
	sweep.Run()

	swept, err := st.GetConversation("573001110001")
	if err != nil {
		t.Fatal(err)
	}
	if swept.UserData.Authenticated {
		t.Error("idle session still authenticated after sweep")
	}
	if swept.UserData.NombreCompleto != "Laura Gómez" {
		t.Errorf("name = %q, want retained", swept.UserData.NombreCompleto)
	}
	if swept.CurrentFlow != models.FlowAuth || swept.CurrentStep != "" {
		t.Errorf("state = %s/%s, want auth entry", swept.CurrentFlow, swept.CurrentStep)
	}

	kept, err := st.GetConversation("573001110002")
	if err != nil {
		t.Fatal(err)
	}
	if !kept.UserData.Authenticated {
		t.Error("fresh session must survive the sweep")
	}

	// The sweep expires in place; it never rewrites conversation documents.
	if st.SaveCount != 2 {
		t.Errorf("saves = %d, want only the two seeds", st.SaveCount)
	}
}

func TestSessionSweepEmptyStoreIsNoOp(t *testing.T) {
	st := store.NewInMemoryStore()
	sweep := NewSessionSweep(st)
	sweep.Run()
	if st.SaveCount != 0 {
		t.Errorf("saves = %d, want 0", st.SaveCount)
	}
}

func TestSchedulerRunsJob(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()

	if err := s.AddJob("* * * * *", func() {}); err != nil {
		t.Fatalf("AddJob failed: %v", err)
	}
	if err := s.AddJob("not a cron expr", func() {}); err == nil {
		t.Error("expected error for invalid expression")
	}
}
