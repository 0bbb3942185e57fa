package httpapi

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"garmentpos/backend/internal/domain"
	"garmentpos/backend/internal/store"
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
	if _, ok := s.users[user.Username]; ok {
		return store.ErrConflict
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

func newStubStore() *userStoreStub {
	return &userStoreStub{
		users: map[string]domain.UserAccount{
			"admin": {
				Username:  "admin",
				Password:  "admin123",
				Role:      domain.RoleAdmin,
				Active:    true,
				CreatedAt: time.Now().UTC(),
			},
		},
	}
}

func TestAuthManagerUpgradesLegacyPlainPassword(t *testing.T) {
	ctx := context.Background()
	users := newStubStore()

	manager := NewAuthManager(ctx, "test-secret", time.Hour, users)
	_, err := manager.Login(ctx, domain.LoginRequest{Username: "admin", Password: "admin123"})
	require.NoError(t, err)

	stored, err := users.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.NotEqual(t, "admin123", stored[0].Password)
	assert.True(t, strings.HasPrefix(stored[0].Password, "$2"), "expected bcrypt hash, got %s", stored[0].Password)
	assert.Equal(t, 1, users.updates)
}

func TestLoginIssuesTokenCarryingRole(t *testing.T) {
	ctx := context.Background()
	manager := NewAuthManager(ctx, "test-secret", time.Hour, newStubStore())

	resp, err := manager.Login(ctx, domain.LoginRequest{Username: "  ADMIN ", Password: "admin123"})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, resp.Role)
	assert.NotEmpty(t, resp.ExpiresAt)

	actor, err := manager.ParseToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, domain.Actor{Username: "admin", Role: domain.RoleAdmin}, actor)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	ctx := context.Background()
	manager := NewAuthManager(ctx, "test-secret", time.Hour, newStubStore())

	_, err := manager.Login(ctx, domain.LoginRequest{Username: "admin", Password: "wrong"})
	assert.ErrorIs(t, err, errInvalidCredentials)

	_, err = manager.Login(ctx, domain.LoginRequest{Username: "ghost", Password: "admin123"})
	assert.ErrorIs(t, err, errInvalidCredentials)
}

func TestLoginRejectsInactiveAccount(t *testing.T) {
	ctx := context.Background()
	users := newStubStore()
	users.users["retired"] = domain.UserAccount{Username: "retired", Password: "retired1", Role: domain.RoleStaff}

	manager := NewAuthManager(ctx, "test-secret", time.Hour, users)
	_, err := manager.Login(ctx, domain.LoginRequest{Username: "retired", Password: "retired1"})
	assert.ErrorIs(t, err, errInactiveAccount)
}

func TestParseTokenRejectsForeignSecretAndExpiry(t *testing.T) {
	ctx := context.Background()
	manager := NewAuthManager(ctx, "test-secret", time.Hour, newStubStore())
	other := NewAuthManager(ctx, "another-secret", time.Hour, newStubStore())

	resp, err := other.Login(ctx, domain.LoginRequest{Username: "admin", Password: "admin123"})
	require.NoError(t, err)
	_, err = manager.ParseToken(resp.AccessToken)
	assert.Error(t, err)

	expired, err := manager.sign("admin", domain.RoleAdmin, time.Now().Add(-time.Minute))
	require.NoError(t, err)
	_, err = manager.ParseToken(expired)
	assert.Error(t, err)

	badRole, err := manager.sign("admin", "owner", time.Now().Add(time.Minute))
	require.NoError(t, err)
	_, err = manager.ParseToken(badRole)
	assert.Error(t, err)
}

func TestCreateStaffStoresPasswordHash(t *testing.T) {
	ctx := context.Background()
	users := newStubStore()
	manager := NewAuthManager(ctx, "test-secret", time.Hour, users)

	created, err := manager.CreateStaff(ctx, domain.StaffCreateRequest{Username: "Counter1", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, "counter1", created.Username)
	assert.Equal(t, domain.RoleStaff, created.Role)

	stored := users.users["counter1"]
	assert.True(t, strings.HasPrefix(stored.Password, "$2"))

	resp, err := manager.Login(ctx, domain.LoginRequest{Username: "counter1", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleStaff, resp.Role)

	staff := manager.ListStaff(ctx)
	require.Len(t, staff, 1)
	assert.Equal(t, "counter1", staff[0].Username)
}

func TestCreateStaffValidation(t *testing.T) {
	ctx := context.Background()
	manager := NewAuthManager(ctx, "test-secret", time.Hour, newStubStore())

	cases := []struct {
		name string
		req  domain.StaffCreateRequest
		want error
	}{
		{"short username", domain.StaffCreateRequest{Username: "abc", Password: "secret1"}, store.ErrValidation},
		{"spaces", domain.StaffCreateRequest{Username: "front desk", Password: "secret1"}, store.ErrValidation},
		{"short password", domain.StaffCreateRequest{Username: "counter2", Password: "12345"}, store.ErrValidation},
		{"duplicate", domain.StaffCreateRequest{Username: "admin", Password: "secret1"}, store.ErrConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := manager.CreateStaff(ctx, tc.req)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.want), "got %v", err)
		})
	}
}
