package identity

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medportal/portal/internal/platform/apperr"
	"github.com/medportal/portal/internal/platform/auth"
)

// -- Mock Repository --

type mockUserRepo struct {
	mu      sync.Mutex
	users   map[uuid.UUID]*User
	lookups int
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{users: make(map[uuid.UUID]*User)}
}

func (m *mockUserRepo) Create(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookups++
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return apperr.Conflict("email already registered")
		}
	}
	u.ID = uuid.New()
	u.CreatedAt = time.Now()
	u.UpdatedAt = u.CreatedAt
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *mockUserRepo) GetByID(_ context.Context, id uuid.UUID) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookups++
	u, ok := m.users[id]
	if !ok {
		return nil, apperr.NotFound("user not found")
	}
	cp := *u
	return &cp, nil
}

func (m *mockUserRepo) GetByEmail(_ context.Context, email string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookups++
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, apperr.NotFound("user not found")
}

func (m *mockUserRepo) Update(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.ID]; !ok {
		return apperr.NotFound("user not found")
	}
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

var testIssuer = auth.NewTokenIssuer([]byte("test-secret-key-for-unit-tests-only"), time.Hour)

func newTestService() (*Service, *mockUserRepo) {
	repo := newMockUserRepo()
	return NewService(repo, testIssuer, nil, zerolog.Nop()), repo
}

func validSignup() SignupRequest {
	return SignupRequest{Name: "Jane Doe", Email: "Jane@Example.com", Password: "secret1", ConfirmPassword: "secret1"}
}

func TestSignup_CreatesUserAndToken(t *testing.T) {
	svc, _ := newTestService()

	resp, err := svc.Signup(context.Background(), validSignup())
	if err != nil {
		t.Fatalf("Signup: %v", err)
	}
	if resp.User.Email != "jane@example.com" {
		t.Errorf("expected normalized email, got %s", resp.User.Email)
	}
	if resp.User.PasswordHash == "secret1" || resp.User.PasswordHash == "" {
		t.Error("expected password to be hashed")
	}
	claims, err := testIssuer.Parse(resp.Token)
	if err != nil {
		t.Fatalf("token does not parse: %v", err)
	}
	if claims.Subject != resp.User.ID.String() || claims.Role != auth.RolePatient {
		t.Errorf("unexpected claims %+v", claims)
	}
}

func TestSignup_ValidationHappensBeforeStore(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *SignupRequest)
	}{
		{"missing name", func(r *SignupRequest) { r.Name = " " }},
		{"bad email", func(r *SignupRequest) { r.Email = "not-an-email" }},
		{"short password", func(r *SignupRequest) { r.Password = "abc"; r.ConfirmPassword = "abc" }},
		{"mismatch", func(r *SignupRequest) { r.ConfirmPassword = "different" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo := newTestService()
			req := validSignup()
			tt.mutate(&req)
			_, err := svc.Signup(context.Background(), req)
			if !errors.Is(err, apperr.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if repo.lookups != 0 {
				t.Errorf("store was called %d times before validation passed", repo.lookups)
			}
		})
	}
}

func TestSignup_DuplicateEmail(t *testing.T) {
	svc, _ := newTestService()
	svc.Signup(context.Background(), validSignup())
	_, err := svc.Signup(context.Background(), validSignup())
	if !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("expected conflict, got %v", err)
	}
}

func TestSignin(t *testing.T) {
	svc, _ := newTestService()
	svc.Signup(context.Background(), validSignup())

	resp, err := svc.Signin(context.Background(), SigninRequest{Email: "JANE@example.com ", Password: "secret1"})
	if err != nil {
		t.Fatalf("Signin: %v", err)
	}
	if resp.Token == "" || resp.User.Name != "Jane Doe" {
		t.Errorf("unexpected response %+v", resp)
	}

	for _, bad := range []SigninRequest{
		{Email: "jane@example.com", Password: "wrong-pass"},
		{Email: "nobody@example.com", Password: "secret1"},
	} {
		_, err := svc.Signin(context.Background(), bad)
		if !errors.Is(err, apperr.ErrUnauthorized) {
			t.Errorf("expected unauthorized for %s, got %v", bad.Email, err)
		}
		if apperr.Message(err) != "invalid email or password" {
			t.Errorf("unexpected message %q", apperr.Message(err))
		}
	}
}

func TestUpdateProfile(t *testing.T) {
	svc, _ := newTestService()
	resp, _ := svc.Signup(context.Background(), validSignup())

	name, avatar := "Jane Q. Doe", "https://cdn.example.com/j.png"
	u, err := svc.UpdateProfile(context.Background(), resp.User.ID, ProfileUpdate{Name: &name, Avatar: &avatar})
	if err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}
	if u.Name != name || u.Avatar != avatar {
		t.Errorf("profile not updated: %+v", u)
	}

	empty := " "
	if _, err := svc.UpdateProfile(context.Background(), resp.User.ID, ProfileUpdate{Name: &empty}); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation error for blank name, got %v", err)
	}
	if _, err := svc.UpdateProfile(context.Background(), uuid.New(), ProfileUpdate{}); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}
