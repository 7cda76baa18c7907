package auth

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestIssueAndVerify(t *testing.T) {
	v := NewHMACVerifier("secret")
	token, err := v.Issue("user_1", time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	userID, err := v.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if userID != "user_1" {
		t.Fatalf("unexpected user id %q", userID)
	}
}

func TestVerifyRejectsTamperedToken(t *testing.T) {
	v := NewHMACVerifier("secret")
	token, err := v.Issue("user_1", time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	tampered := strings.Replace(token, "user_1", "user_2", 1)
	if _, err := v.Verify(tampered); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}

	other := NewHMACVerifier("different")
	if _, err := other.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for wrong secret, got %v", err)
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	v := NewHMACVerifier("secret")
	v.now = func() time.Time { return time.Unix(1000, 0) }
	token, err := v.Issue("user_1", time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	v.now = func() time.Time { return time.Unix(2000, 0) }
	if _, err := v.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}
}

func TestIssueRejectsMalformedUserID(t *testing.T) {
	v := NewHMACVerifier("secret")
	if _, err := v.Issue("a.b", time.Hour); err == nil {
		t.Fatalf("expected error for user id containing separator")
	}
	if _, err := v.Issue("  ", time.Hour); err == nil {
		t.Fatalf("expected error for blank user id")
	}
}
