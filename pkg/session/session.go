// Package session keeps a signed-in account's token and profile in a Storage,
// one pair of keys per role, so a client can restore the session on restart.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
)

type Role string

const (
	Patient  Role = "patient"
	Hospital Role = "hospital"
	Doctor   Role = "doctor"
	Lab      Role = "lab"
)

var (
	ErrUnknownRole = errors.New("unknown role")
	ErrEmptyToken  = errors.New("token is required")
)

type keys struct{ token, profile string }

var roleKeys = map[Role]keys{
	Patient:  {"token", "user"},
	Hospital: {"hospitalToken", "hospital"},
	Doctor:   {"doctorToken", "doctorInfo"},
	Lab:      {"labToken", "lab"},
}

// Roles lists every role in a fixed order.
func Roles() []Role { return []Role{Patient, Hospital, Doctor, Lab} }

func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := roleKeys[r]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
	}
	return r, nil
}

// Keys returns the storage keys holding r's token and profile.
func (r Role) Keys() (token, profile string) {
	k := roleKeys[r]
	return k.token, k.profile
}

// Session is a restored or freshly created sign-in.
type Session[P any] struct {
	Role    Role
	Token   string
	Profile P
}

// Validator is implemented by profiles that can reject malformed data.
type Validator interface {
	Validate() error
}

// Verifier confirms a token is still accepted by the server.
type Verifier interface {
	Verify(ctx context.Context, token string) error
}

// Auth manages one role's session in a Storage.
type Auth[P any] struct {
	store    Storage
	role     Role
	verifier Verifier

	mu      sync.Mutex
	current *Session[P]
}

type Option[P any] func(*Auth[P])

// WithVerifier makes RestoreVerified check the token with v.
func WithVerifier[P any](v Verifier) Option[P] {
	return func(a *Auth[P]) { a.verifier = v }
}

func New[P any](store Storage, role Role, opts ...Option[P]) (*Auth[P], error) {
	if _, ok := roleKeys[role]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}
	a := &Auth[P]{store: store, role: role}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

func (a *Auth[P]) Role() Role { return a.role }

func validate(profile any) error {
	if v, ok := profile.(Validator); ok {
		return v.Validate()
	}
	return nil
}

// Restore loads the stored session. Missing or malformed data, or a profile
// that fails validation, clears the role's keys and reports logged out.
func (a *Auth[P]) Restore() (Session[P], bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.restoreLocked()
}

func (a *Auth[P]) restoreLocked() (Session[P], bool, error) {
	tokenKey, profileKey := a.role.Keys()
	token, hasToken, err := a.store.GetItem(tokenKey)
	if err != nil {
		return Session[P]{}, false, err
	}
	raw, hasProfile, err := a.store.GetItem(profileKey)
	if err != nil {
		return Session[P]{}, false, err
	}
	if !hasToken && !hasProfile {
		a.current = nil
		return Session[P]{}, false, nil
	}

	var profile P
	ok := hasToken && hasProfile && strings.TrimSpace(token) != "" &&
		json.Unmarshal([]byte(raw), &profile) == nil && validate(profile) == nil
	if !ok {
		return Session[P]{}, false, a.clearLocked()
	}
	a.current = &Session[P]{Role: a.role, Token: token, Profile: profile}
	return *a.current, true, nil
}

// RestoreVerified restores the session and, when a Verifier is set, checks the
// token once. Any verification error logs the role out.
func (a *Auth[P]) RestoreVerified(ctx context.Context) (Session[P], bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, ok, err := a.restoreLocked()
	if err != nil || !ok || a.verifier == nil {
		return s, ok, err
	}
	if verr := a.verifier.Verify(ctx, s.Token); verr != nil {
		if err := a.clearLocked(); err != nil {
			return Session[P]{}, false, err
		}
		return Session[P]{}, false, nil
	}
	return s, true, nil
}

func (a *Auth[P]) Login(profile P, token string) (Session[P], error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Session[P]{}, ErrEmptyToken
	}
	if err := validate(profile); err != nil {
		return Session[P]{}, fmt.Errorf("invalid profile: %w", err)
	}
	data, err := json.Marshal(profile)
	if err != nil {
		return Session[P]{}, fmt.Errorf("encode profile: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	tokenKey, profileKey := a.role.Keys()
	if err := a.store.SetItem(profileKey, string(data)); err != nil {
		return Session[P]{}, err
	}
	if err := a.store.SetItem(tokenKey, token); err != nil {
		return Session[P]{}, err
	}
	a.current = &Session[P]{Role: a.role, Token: token, Profile: profile}
	return *a.current, nil
}

// Logout removes this role's two keys and nothing else.
func (a *Auth[P]) Logout() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.clearLocked()
}

func (a *Auth[P]) clearLocked() error {
	a.current = nil
	tokenKey, profileKey := a.role.Keys()
	if err := a.store.RemoveItem(tokenKey); err != nil {
		return err
	}
	return a.store.RemoveItem(profileKey)
}

// Current returns the session held in memory since the last Restore or Login.
func (a *Auth[P]) Current() (Session[P], bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current == nil {
		return Session[P]{}, false
	}
	return *a.current, true
}
