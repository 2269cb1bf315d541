package session

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type profile struct {
	ID    string `json:"_id"`
	Email string `json:"email"`
}

func (p profile) Validate() error {
	if p.ID == "" {
		return errors.New("missing id")
	}
	return nil
}

type mockVerifier struct {
	mock.Mock
}

func (m *mockVerifier) Verify(ctx context.Context, token string) error {
	return m.Called(ctx, token).Error(0)
}

func newAuth(t *testing.T, store Storage, role Role, opts ...Option[profile]) *Auth[profile] {
	t.Helper()
	a, err := New[profile](store, role, opts...)
	require.NoError(t, err)
	return a
}

func TestRoleKeys(t *testing.T) {
	cases := map[Role][2]string{
		Patient:  {"token", "user"},
		Hospital: {"hospitalToken", "hospital"},
		Doctor:   {"doctorToken", "doctorInfo"},
		Lab:      {"labToken", "lab"},
	}
	for role, want := range cases {
		tok, prof := role.Keys()
		assert.Equal(t, want[0], tok, role)
		assert.Equal(t, want[1], prof, role)
	}

	r, err := ParseRole(" Lab ")
	require.NoError(t, err)
	assert.Equal(t, Lab, r)
	_, err = ParseRole("admin")
	assert.ErrorIs(t, err, ErrUnknownRole)
	_, err = New[profile](NewMemoryStorage(), "admin")
	assert.ErrorIs(t, err, ErrUnknownRole)
}

func TestLoginRestoreIsIdempotent(t *testing.T) {
	store := NewMemoryStorage()
	a := newAuth(t, store, Patient)
	_, err := a.Login(profile{ID: "u1", Email: "ana@example.com"}, "tok-1")
	require.NoError(t, err)

	fresh := newAuth(t, store, Patient)
	first, ok, err := fresh.Restore()
	require.NoError(t, err)
	require.True(t, ok)
	second, ok, err := fresh.Restore()
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, first, second)
	assert.Equal(t, "tok-1", first.Token)
	assert.Equal(t, "u1", first.Profile.ID)

	cur, ok := fresh.Current()
	assert.True(t, ok)
	assert.Equal(t, first, cur)
}

func TestRestore_MalformedClearsKeys(t *testing.T) {
	cases := map[string]map[string]string{
		"bad json":        {"token": "t", "user": "{not json"},
		"invalid profile": {"token": "t", "user": `{"email":"x@example.com"}`},
		"token only":      {"token": "t"},
		"profile only":    {"user": `{"_id":"u1"}`},
		"blank token":     {"token": "  ", "user": `{"_id":"u1"}`},
	}
	for name, items := range cases {
		t.Run(name, func(t *testing.T) {
			store := NewMemoryStorage()
			for k, v := range items {
				require.NoError(t, store.SetItem(k, v))
			}
			store.SetItem("labToken", "keep")

			_, ok, err := newAuth(t, store, Patient).Restore()
			require.NoError(t, err)
			assert.False(t, ok)

			keys, _ := store.Keys()
			assert.Equal(t, []string{"labToken"}, keys)
		})
	}
}

func TestLogout_ClearsOnlyOwnRole(t *testing.T) {
	store := NewMemoryStorage()
	patient := newAuth(t, store, Patient)
	lab := newAuth(t, store, Lab)
	_, err := patient.Login(profile{ID: "u1"}, "p-tok")
	require.NoError(t, err)
	_, err = lab.Login(profile{ID: "l1"}, "l-tok")
	require.NoError(t, err)

	require.NoError(t, lab.Logout())
	_, ok := lab.Current()
	assert.False(t, ok)

	keys, _ := store.Keys()
	assert.ElementsMatch(t, []string{"token", "user"}, keys)
	_, ok, _ = newAuth(t, store, Patient).Restore()
	assert.True(t, ok)
}

func TestLogin_Rejects(t *testing.T) {
	a := newAuth(t, NewMemoryStorage(), Doctor)
	_, err := a.Login(profile{ID: "d1"}, " ")
	assert.ErrorIs(t, err, ErrEmptyToken)
	_, err = a.Login(profile{}, "tok")
	assert.Error(t, err)
	_, ok := a.Current()
	assert.False(t, ok)
}

func TestRestoreVerified(t *testing.T) {
	store := NewMemoryStorage()
	v := &mockVerifier{}
	a := newAuth(t, store, Hospital, WithVerifier[profile](v))
	_, err := a.Login(profile{ID: "h1"}, "h-tok")
	require.NoError(t, err)

	v.On("Verify", mock.Anything, "h-tok").Return(nil).Once()
	s, ok, err := a.RestoreVerified(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "h1", s.Profile.ID)

	v.On("Verify", mock.Anything, "h-tok").Return(errors.New("connection refused")).Once()
	_, ok, err = a.RestoreVerified(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)

	keys, _ := store.Keys()
	assert.Empty(t, keys)
	v.AssertNumberOfCalls(t, "Verify", 2)

	// Nothing stored: the verifier is not consulted.
	_, ok, err = a.RestoreVerified(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	v.AssertNumberOfCalls(t, "Verify", 2)
}
