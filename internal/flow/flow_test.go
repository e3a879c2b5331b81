package flow

import (
	"sync"
	"testing"

	"github.com/Conecta2Tel/WispFlow/internal/models"
)

func TestRequiresHumanAttention(t *testing.T) {
	cases := []struct {
		text string
		want bool
	}{
		{"quiero hablar con un asesor", true},
		{"ASESOR", true},
		{"necesito atención humana", true},
		{"pásame con una persona real", true},
		{"hablar con alguien por favor", true},
		{"quiero un agente ya", true},
		{"hola", false},
		{"cuánto debo", false},
		{"1", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := RequiresHumanAttention(tc.text); got != tc.want {
			t.Errorf("RequiresHumanAttention(%q) = %v, want %v", tc.text, got, tc.want)
		}
	}
}

func TestIsMenuKeyword(t *testing.T) {
	for _, s := range []string{"menu", "MENU", " Menú "} {
		if !isMenuKeyword(s) {
			t.Errorf("isMenuKeyword(%q) = false", s)
		}
	}
	if isMenuKeyword("menu principal") {
		t.Error("partial match must not count as the menu keyword")
	}
}

func TestSelectOption(t *testing.T) {
	ids := []string{"opt_a", "opt_b", "opt_c"}

	if got, ok := selectOption(listReply("opt_b"), ids...); !ok || got != "opt_b" {
		t.Errorf("reply selection = %q, %v", got, ok)
	}
	if _, ok := selectOption(listReply("opt_x"), ids...); ok {
		t.Error("unknown reply id must not select")
	}
	if got, ok := selectOption(text("2"), ids...); !ok || got != "opt_b" {
		t.Errorf("numeric selection = %q, %v", got, ok)
	}
	if _, ok := selectOption(text("4"), ids...); ok {
		t.Error("out-of-range number must not select")
	}
	if _, ok := selectOption(text("dos"), ids...); ok {
		t.Error("non-numeric text must not select")
	}
	if _, ok := selectOption(models.InboundMessage{Type: models.MessageTypeUnsupported}, ids...); ok {
		t.Error("unsupported message must not select")
	}
}

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	km := newKeyedMutex()
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.Lock("573001112233")
			defer unlock()
			counter++
		}()
	}
	wg.Wait()
	if counter != 100 {
		t.Errorf("counter = %d, want 100", counter)
	}
	km.mu.Lock()
	if len(km.entries) != 0 {
		t.Errorf("entries not cleaned up: %d", len(km.entries))
	}
	km.mu.Unlock()
}

func TestKeyedMutexIndependentKeys(t *testing.T) {
	km := newKeyedMutex()
	unlockA := km.Lock("a")
	done := make(chan struct{})
	go func() {
		unlockB := km.Lock("b")
		unlockB()
		close(done)
	}()
	<-done // would deadlock if keys shared one lock
	unlockA()
}
