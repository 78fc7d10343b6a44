package auth

import (
	"context"
	"testing"
	"time"
)

func TestManagerIssueAndRefresh(t *testing.T) {
	store := NewInMemorySessionStore()
	manager := NewManager(time.Minute, time.Hour, store)

	tokens, err := manager.Issue(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if tokens.AccessToken == "" || tokens.RefreshToken == "" {
		t.Fatalf("expected non-empty tokens: %+v", tokens)
	}

	refreshed, err := manager.Refresh(context.Background(), tokens.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if refreshed.RefreshToken == tokens.RefreshToken {
		t.Fatal("expected new refresh token")
	}
	if store.Has(tokens.RefreshToken) {
		t.Fatal("old token should have been removed")
	}
}

func TestManagerIssueValidation(t *testing.T) {
	manager := NewManager(time.Minute, time.Hour, NewInMemorySessionStore())
	if _, err := manager.Issue(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty user id")
	}
}

func TestManagerVerify(t *testing.T) {
	manager := NewManager(time.Minute, time.Hour, NewInMemorySessionStore())

	tokens, err := manager.Issue(context.Background(), "user-7")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	userID, err := manager.Verify(context.Background(), tokens.AccessToken)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if userID != "user-7" {
		t.Fatalf("expected user-7 got %q", userID)
	}

	if _, err := manager.Verify(context.Background(), ""); err != ErrSessionNotFound {
		t.Fatalf("expected session not found for empty token got %v", err)
	}
	if _, err := manager.Verify(context.Background(), "bogus"); err != ErrSessionNotFound {
		t.Fatalf("expected session not found for unknown token got %v", err)
	}
}

func TestManagerVerifyExpiredAccessToken(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	manager := NewManager(time.Minute, time.Hour, NewInMemorySessionStore()).
		WithNowFunc(func() time.Time { return now })

	tokens, err := manager.Issue(context.Background(), "user-7")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	now = now.Add(2 * time.Minute)

	if _, err := manager.Verify(context.Background(), tokens.AccessToken); err != ErrAccessTokenExpired {
		t.Fatalf("expected access token expired got %v", err)
	}
}

func TestManagerRefreshFailures(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	manager := NewManager(time.Minute, time.Hour, NewInMemorySessionStore()).
		WithNowFunc(func() time.Time { return now })

	if _, err := manager.Refresh(context.Background(), ""); err != ErrSessionNotFound {
		t.Fatalf("expected session not found got %v", err)
	}

	tokens, err := manager.Issue(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	now = now.Add(2 * time.Hour)

	if _, err := manager.Refresh(context.Background(), tokens.RefreshToken); err != ErrRefreshTokenExpired {
		t.Fatalf("expected refresh expired got %v", err)
	}

	now = now.Add(-2 * time.Hour)

	tokens, err = manager.Issue(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	manager.Revoke(context.Background(), tokens.RefreshToken)
	if _, err := manager.Refresh(context.Background(), tokens.RefreshToken); err != ErrSessionNotFound {
		t.Fatalf("expected session not found after revoke got %v", err)
	}
}
