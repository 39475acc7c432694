package httpapi

import (
	"context"
	"testing"
	"time"

	"kokopos/backend/internal/domain"
	"kokopos/backend/internal/store/memory"
)

func seedUser(t *testing.T, repo *memory.Store, username string, password string, role string) {
	t.Helper()
	hash, err := hashPassword(password)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	users, _ := repo.GetUsers(context.Background())
	users = append(users, domain.UserAccount{
		Username: username, Password: hash, Role: role, Active: true, CreatedAt: time.Now().UTC(),
	})
	if err := repo.PutUsers(context.Background(), users); err != nil {
		t.Fatalf("seed user: %v", err)
	}
}

func TestLoginAndParseTokenRoundTrip(t *testing.T) {
	repo := memory.New()
	seedUser(t, repo, "owner", "owner-pass", domain.RoleOwner)
	auth := NewAuthManager(testSecret, time.Hour, repo)

	resp, err := auth.Login(domain.LoginRequest{Username: "owner", Password: "owner-pass"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if resp.Role != domain.RoleOwner || resp.AccessToken == "" {
		t.Fatalf("unexpected response %+v", resp)
	}

	actor, err := auth.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token failed: %v", err)
	}
	if actor.Username != "owner" || actor.Role != domain.RoleOwner {
		t.Fatalf("unexpected actor %+v", actor)
	}
}

func TestParseTokenRejectsWrongSecret(t *testing.T) {
	repo := memory.New()
	seedUser(t, repo, "owner", "owner-pass", domain.RoleOwner)
	auth := NewAuthManager(testSecret, time.Hour, repo)
	other := NewAuthManager("another-secret-another-secret-another", time.Hour, repo)

	resp, err := auth.Login(domain.LoginRequest{Username: "owner", Password: "owner-pass"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if _, err := other.ParseToken(resp.AccessToken); err == nil {
		t.Fatalf("expected token signed with a different secret to be rejected")
	}
}

func TestLoginRejectsInactiveAccount(t *testing.T) {
	repo := memory.New()
	hash, _ := hashPassword("pass-word")
	_ = repo.PutUsers(context.Background(), []domain.UserAccount{
		{Username: "ghost", Password: hash, Role: domain.RoleClerk, Active: false},
	})
	auth := NewAuthManager(testSecret, time.Hour, repo)

	if _, err := auth.Login(domain.LoginRequest{Username: "ghost", Password: "pass-word"}); err == nil {
		t.Fatalf("expected inactive account to be rejected")
	}
}

func TestBootstrapUpgradesPlaintextPasswords(t *testing.T) {
	repo := memory.New()
	_ = repo.PutUsers(context.Background(), []domain.UserAccount{
		{Username: "legacy", Password: "plain-text-pass", Role: domain.RoleClerk, Active: true},
	})

	auth := NewAuthManager(testSecret, time.Hour, repo)

	users, _ := repo.GetUsers(context.Background())
	if !isPasswordHash(users[0].Password) {
		t.Fatalf("expected stored password upgraded to a hash, got %q", users[0].Password)
	}

	if _, err := auth.Login(domain.LoginRequest{Username: "legacy", Password: "plain-text-pass"}); err != nil {
		t.Fatalf("expected login with the original password to still work: %v", err)
	}
}

func TestLoginIsCaseInsensitiveOnUsername(t *testing.T) {
	repo := memory.New()
	seedUser(t, repo, "owner", "owner-pass", domain.RoleOwner)
	auth := NewAuthManager(testSecret, time.Hour, repo)

	if _, err := auth.Login(domain.LoginRequest{Username: "  Owner ", Password: "owner-pass"}); err != nil {
		t.Fatalf("expected trimmed, lowercased lookup to succeed: %v", err)
	}
}
