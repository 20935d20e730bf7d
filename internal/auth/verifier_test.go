package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestVerifyRoundTrip(t *testing.T) {
	v := NewJWTVerifier("test-secret")
	token, err := v.IssueToken("user-1", "user-1@example.com", time.Hour)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	id, err := v.Verify(context.Background(), token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if id.UserID != "user-1" || id.Email != "user-1@example.com" {
		t.Errorf("identity: got %+v", id)
	}
}

func TestVerifyRejectsBadTokens(t *testing.T) {
	v := NewJWTVerifier("test-secret")
	other := NewJWTVerifier("other-secret")

	wrongKey, _ := other.IssueToken("user-1", "", time.Hour)
	expired, _ := v.IssueToken("user-1", "", -time.Minute)

	for name, token := range map[string]string{
		"garbage":   "not.a.jwt",
		"empty":     "",
		"wrong key": wrongKey,
		"expired":   expired,
	} {
		if _, err := v.Verify(context.Background(), token); !errors.Is(err, ErrUnauthenticated) {
			t.Errorf("%s: expected ErrUnauthenticated, got %v", name, err)
		}
	}
}
