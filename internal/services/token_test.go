package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vidtube/apiserver/config"
)

func TestIssueAndVerifyAccessToken(t *testing.T) {
	t.Parallel()

	repo := newFakeUserRepo()
	user := seedUser(repo, "ana", "secret1")
	svc := NewTokenService(repo, testAuthConfig())

	token, err := svc.IssueAccessToken(user)
	if err != nil {
		t.Fatalf("IssueAccessToken error: %v", err)
	}

	claims, err := svc.VerifyAccessToken(token)
	if err != nil {
		t.Fatalf("VerifyAccessToken error: %v", err)
	}

	id, err := SubjectID(claims)
	if err != nil {
		t.Fatalf("SubjectID error: %v", err)
	}
	if id != user.ID {
		t.Fatalf("subject mismatch: got %d want %d", id, user.ID)
	}
	if claims.Username != "ana" || claims.Email != user.Email || claims.FullName != user.FullName {
		t.Fatalf("identity claims mismatch: %+v", claims)
	}
}

func TestVerifyAccessToken_Expired(t *testing.T) {
	t.Parallel()

	repo := newFakeUserRepo()
	user := seedUser(repo, "bob", "secret1")

	cfg := testAuthConfig()
	cfg.AccessTokenTTL = -time.Second
	svc := NewTokenService(repo, cfg)

	token, err := svc.IssueAccessToken(user)
	if err != nil {
		t.Fatalf("IssueAccessToken error: %v", err)
	}
	if _, err := svc.VerifyAccessToken(token); err == nil {
		t.Fatal("expected error for expired token, got nil")
	}
}

func TestVerifyAccessToken_WrongSecret(t *testing.T) {
	t.Parallel()

	repo := newFakeUserRepo()
	user := seedUser(repo, "carl", "secret1")
	svc := NewTokenService(repo, testAuthConfig())

	token, err := svc.IssueAccessToken(user)
	if err != nil {
		t.Fatalf("IssueAccessToken error: %v", err)
	}

	other := testAuthConfig()
	other.AccessTokenSecret = "completely-different"
	if _, err := NewTokenService(repo, other).VerifyAccessToken(token); err == nil {
		t.Fatal("expected error for wrong secret, got nil")
	}
}

func TestVerifyAccessToken_RefreshSecretRejected(t *testing.T) {
	t.Parallel()

	repo := newFakeUserRepo()
	user := seedUser(repo, "dina", "secret1")
	svc := NewTokenService(repo, testAuthConfig())

	refresh, err := svc.IssueRefreshToken(user)
	if err != nil {
		t.Fatalf("IssueRefreshToken error: %v", err)
	}
	if _, err := svc.VerifyAccessToken(refresh); err == nil {
		t.Fatal("refresh token must not verify as access token")
	}
}

func TestIssueTokenPair_PersistsRefreshToken(t *testing.T) {
	t.Parallel()

	repo := newFakeUserRepo()
	user := seedUser(repo, "ana", "secret1")
	svc := NewTokenService(repo, testAuthConfig())

	pair, err := svc.IssueTokenPair(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("IssueTokenPair error: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatal("expected both tokens to be issued")
	}

	stored, err := repo.GetByID(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("GetByID error: %v", err)
	}
	if stored.RefreshToken != pair.RefreshToken {
		t.Fatal("refresh token not mirrored onto the user record")
	}
}

func TestRotate_ReplacesAndInvalidatesOldToken(t *testing.T) {
	t.Parallel()

	repo := newFakeUserRepo()
	user := seedUser(repo, "ana", "secret1")
	svc := NewTokenService(repo, testAuthConfig())

	first, err := svc.IssueTokenPair(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("IssueTokenPair error: %v", err)
	}

	second, err := svc.Rotate(context.Background(), first.RefreshToken)
	if err != nil {
		t.Fatalf("Rotate error: %v", err)
	}
	if second.RefreshToken == first.RefreshToken {
		t.Fatal("rotation must issue a new refresh token")
	}

	// Reusing the superseded token must fail even though its signature
	// and expiry are still valid.
	if _, err := svc.Rotate(context.Background(), first.RefreshToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected ErrInvalidRefreshToken for reused token, got %v", err)
	}

	// The replacement token still works.
	if _, err := svc.Rotate(context.Background(), second.RefreshToken); err != nil {
		t.Fatalf("Rotate with current token error: %v", err)
	}
}

func TestRotate_UnstoredTokenRejected(t *testing.T) {
	t.Parallel()

	repo := newFakeUserRepo()
	user := seedUser(repo, "ana", "secret1")
	svc := NewTokenService(repo, testAuthConfig())

	// Valid signature and expiry, but never persisted to the slot.
	token, err := svc.IssueRefreshToken(user)
	if err != nil {
		t.Fatalf("IssueRefreshToken error: %v", err)
	}
	if _, err := svc.Rotate(context.Background(), token); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected ErrInvalidRefreshToken, got %v", err)
	}
}

func TestRotate_TamperedAndExpiredTokensRejected(t *testing.T) {
	t.Parallel()

	repo := newFakeUserRepo()
	user := seedUser(repo, "ana", "secret1")
	svc := NewTokenService(repo, testAuthConfig())

	if _, err := svc.Rotate(context.Background(), "not.a.jwt"); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected ErrInvalidRefreshToken for malformed token, got %v", err)
	}

	expired := config.AuthConfig{
		AccessTokenSecret:  testAuthConfig().AccessTokenSecret,
		RefreshTokenSecret: testAuthConfig().RefreshTokenSecret,
		AccessTokenTTL:     time.Minute,
		RefreshTokenTTL:    -time.Second,
	}
	token, err := NewTokenService(repo, expired).IssueRefreshToken(user)
	if err != nil {
		t.Fatalf("IssueRefreshToken error: %v", err)
	}
	_ = repo.UpdateRefreshToken(context.Background(), user.ID, token)

	if _, err := svc.Rotate(context.Background(), token); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected ErrInvalidRefreshToken for expired token, got %v", err)
	}
}

func TestRevoke_BlocksSubsequentRotation(t *testing.T) {
	t.Parallel()

	repo := newFakeUserRepo()
	user := seedUser(repo, "ana", "secret1")
	svc := NewTokenService(repo, testAuthConfig())

	pair, err := svc.IssueTokenPair(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("IssueTokenPair error: %v", err)
	}

	if err := svc.Revoke(context.Background(), user.ID); err != nil {
		t.Fatalf("Revoke error: %v", err)
	}

	if _, err := svc.Rotate(context.Background(), pair.RefreshToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected ErrInvalidRefreshToken after revoke, got %v", err)
	}
}
