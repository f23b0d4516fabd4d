package session

import (
	"bytes"
	"testing"
	"time"
)

func TestCacheSecret_StablePerSession(t *testing.T) {
	s := New()
	a, err := s.CacheSecret()
	if err != nil {
		t.Fatalf("CacheSecret: %v", err)
	}
	b, err := s.CacheSecret()
	if err != nil {
		t.Fatalf("CacheSecret: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Fatalf("secret must be stable within a session")
	}

	other, _ := New().CacheSecret()
	if bytes.Equal(a, other) {
		t.Fatalf("secrets must differ across sessions")
	}
}

func TestSignOut_ClearsEverything(t *testing.T) {
	s := New()
	_, _ = s.CacheSecret()
	s.SetEncryptedPII([]byte("envelope"))
	s.SetUnconfirmedPhone("+1 202 555 0100")
	s.MarkSecondFactorSatisfied(time.Now(), "token")
	s.SetIDVPhoneConfirmedAt(time.Now())

	s.SignOut()

	if _, ok := s.EncryptedPII(); ok {
		t.Fatalf("pii cache must be cleared")
	}
	if s.UnconfirmedPhone() != "" || s.SecondFactorSatisfied() || s.Token() != "" || s.IDVPhoneConfirmedAt() != nil {
		t.Fatalf("session state must be cleared")
	}
}
