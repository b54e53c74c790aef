package auth

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/oriys/logid/internal/region"
)

func TestNewToken_Expiry(t *testing.T) {
	issued := time.Unix(1_700_000_000, 0)

	tok := newToken("v", issued, time.Hour, time.Time{}, "")
	if !tok.ExpiresAt.Equal(issued.Add(time.Hour)) {
		t.Errorf("no jwt exp: expires %v", tok.ExpiresAt)
	}

	later := issued.Add(2 * time.Hour)
	tok = newToken("v", issued, time.Hour, later, "")
	if !tok.ExpiresAt.Equal(issued.Add(time.Hour)) {
		t.Errorf("jwt exp must never extend the ttl: expires %v", tok.ExpiresAt)
	}

	if !tok.ValidAt(issued.Add(59*time.Minute), 0) {
		t.Error("token should be valid before expiry")
	}
	if tok.ValidAt(issued.Add(time.Hour), 0) {
		t.Error("token must be invalid at exactly its expiry")
	}
	if tok.Remaining(issued.Add(2*time.Hour)) != 0 {
		t.Error("remaining should clamp to zero")
	}
}

func TestToken_StringMasksValue(t *testing.T) {
	tok := newToken("very-secret-bearer", time.Now(), time.Hour, time.Time{}, "")
	for _, s := range []string{tok.String(), fmt.Sprintf("%v", tok), fmt.Sprintf("%#v", tok)} {
		if strings.Contains(s, "very-secret-bearer") {
			t.Errorf("formatted token leaks value: %s", s)
		}
	}
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	if _, ok := s.Load(region.US); ok {
		t.Fatal("empty store returned a token")
	}

	s.Store(region.US, Token{Value: "a"})
	s.Store(region.US, Token{Value: "b"})
	if tok, _ := s.Load(region.US); tok.Value != "b" {
		t.Errorf("value = %q, want b", tok.Value)
	}
	if _, ok := s.Load(region.I18N); ok {
		t.Error("regions must not share entries")
	}

	s.Delete(region.US)
	if _, ok := s.Load(region.US); ok {
		t.Error("token still present after delete")
	}
}
