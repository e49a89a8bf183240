package httpapi

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"mystore/backend/internal/domain"
)

type userStoreStub struct {
	mu      sync.Mutex
	users   map[string]domain.UserAccount
	updates int
}

func (s *userStoreStub) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.users == nil {
		s.users = make(map[string]domain.UserAccount)
	}
	s.users[user.Username] = user
	return nil
}

func (s *userStoreStub) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.UserAccount, 0, len(s.users))
	for _, user := range s.users {
		out = append(out, user)
	}
	return out, nil
}

func (s *userStoreStub) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user := s.users[username]
	user.Password = password
	s.users[username] = user
	s.updates++
	return nil
}

func TestAuthManagerUpgradesLegacyPlainPassword(t *testing.T) {
	store := &userStoreStub{
		users: map[string]domain.UserAccount{
			"adaeze": {Username: "adaeze", Password: "okafor-2019", Role: "md", Active: true, CreatedAt: time.Now().UTC()},
		},
	}

	manager := NewAuthManager("test-secret", time.Hour, store)
	if _, err := manager.Login(context.Background(), domain.LoginRequest{Username: "adaeze", Password: "okafor-2019"}); err != nil {
		t.Fatalf("login failed: %v", err)
	}

	users, _ := store.ListUsers(context.Background())
	if len(users) != 1 {
		t.Fatalf("expected 1 user, got %d", len(users))
	}
	if !strings.HasPrefix(users[0].Password, "$2") {
		t.Fatalf("expected bcrypt password hash, got %s", users[0].Password)
	}
	if store.updates == 0 {
		t.Fatalf("expected the upgraded hash to be written back")
	}
}

func TestCreateUserStoresHashAndRole(t *testing.T) {
	store := &userStoreStub{users: map[string]domain.UserAccount{}}
	manager := NewAuthManager("test-secret", time.Hour, store)

	user, err := manager.CreateUser(context.Background(), domain.UserCreateRequest{Username: "Bisola", Password: "till-0042", Role: "accountant"})
	if err != nil {
		t.Fatalf("create user failed: %v", err)
	}
	if user.Username != "bisola" || user.Role != "accountant" {
		t.Fatalf("unexpected user %+v", user)
	}
	if user.Password != "" {
		t.Fatalf("expected password hash not to be returned")
	}
	if !strings.HasPrefix(store.users["bisola"].Password, "$2") {
		t.Fatalf("expected stored password to be a bcrypt hash")
	}

	resp, err := manager.Login(context.Background(), domain.LoginRequest{Username: "bisola", Password: "till-0042"})
	if err != nil {
		t.Fatalf("login with new user failed: %v", err)
	}
	actor, err := manager.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token failed: %v", err)
	}
	if actor.Username != "bisola" || actor.Role != "accountant" {
		t.Fatalf("unexpected actor %+v", actor)
	}
}

func TestCreateUserRejectsUnknownRole(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, &userStoreStub{})
	_, err := manager.CreateUser(context.Background(), domain.UserCreateRequest{Username: "intern1", Password: "secret12", Role: "intern"})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestParseTokenRejectsOtherSecret(t *testing.T) {
	store := &userStoreStub{users: map[string]domain.UserAccount{}}
	issuer := NewAuthManager("secret-a", time.Hour, store)
	if _, err := issuer.CreateUser(context.Background(), domain.UserCreateRequest{Username: "tunde", Password: "cash-desk", Role: "cashier"}); err != nil {
		t.Fatalf("create user failed: %v", err)
	}
	resp, err := issuer.Login(context.Background(), domain.LoginRequest{Username: "tunde", Password: "cash-desk"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	verifier := NewAuthManager("secret-b", time.Hour, store)
	if _, err := verifier.ParseToken(resp.AccessToken); err == nil {
		t.Fatalf("expected token signed with another secret to be rejected")
	}
}
