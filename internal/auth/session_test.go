package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"go-mangadex-upload/internal/api"
	"go-mangadex-upload/internal/database"
	"go-mangadex-upload/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	login   func(username, password string) (models.Credential, error)
	refresh func(token string) (models.Credential, error)
	check   func(token string) (bool, error)

	token string
	calls []string
}

func (f *fakeAPI) Login(ctx context.Context, username, password string) (models.Credential, error) {
	f.calls = append(f.calls, "login")
	if f.login == nil {
		return models.Credential{Session: "login-session", Refresh: "login-refresh"}, nil
	}
	return f.login(username, password)
}

func (f *fakeAPI) Refresh(ctx context.Context, token string) (models.Credential, error) {
	f.calls = append(f.calls, "refresh:"+token)
	if f.refresh == nil {
		return models.Credential{Session: "refreshed-session"}, nil
	}
	return f.refresh(token)
}

func (f *fakeAPI) CheckAuth(ctx context.Context) (bool, error) {
	f.calls = append(f.calls, "check")
	if f.check == nil {
		return true, nil
	}
	return f.check(f.token)
}

func (f *fakeAPI) SetSessionToken(token string) { f.token = token }

type memoryStore struct {
	cred  *models.Credential
	saves int
}

func (m *memoryStore) LoadCredential() (models.Credential, error) {
	if m.cred == nil {
		return models.Credential{}, database.ErrNotFound
	}
	return *m.cred, nil
}

func (m *memoryStore) SaveCredential(cred models.Credential) error {
	m.saves++
	m.cred = &cred
	return nil
}

func (m *memoryStore) ClearCredential() error {
	m.cred = nil
	return nil
}

func noSleep(ctx context.Context, d time.Duration) error { return ctx.Err() }

func newTestSession(client *fakeAPI, store *memoryStore, username string) *Session {
	cfg := models.Config{Username: username, Password: "pw"}
	if username == "" {
		cfg.Password = ""
	}
	policy := api.RetryPolicy{MaxAttempts: 3, Sleep: noSleep}
	return NewSession(client, store, cfg, policy)
}

func unauthorized() error { return &api.APIError{Status: 401, Kind: api.KindUnauthorized} }
func serverError() error  { return &api.APIError{Status: 503, Kind: api.KindServer} }

func TestFirstLoginUsesStoredRefresh(t *testing.T) {
	client := &fakeAPI{}
	store := &memoryStore{cred: &models.Credential{Session: "old", Refresh: "stored-refresh"}}
	s := newTestSession(client, store, "reader")

	require.NoError(t, s.EnsureLoggedIn(context.Background(), false))
	assert.Equal(t, []string{"refresh:stored-refresh"}, client.calls)
	assert.Equal(t, "refreshed-session", client.token)
	assert.True(t, s.Authenticated())
	// Refresh token kept when the platform omits it
	assert.Equal(t, models.Credential{Session: "refreshed-session", Refresh: "stored-refresh"}, *store.cred)

	// Already authenticated, nothing happens
	require.NoError(t, s.EnsureLoggedIn(context.Background(), false))
	assert.Len(t, client.calls, 1)
}

func TestFirstLoginWithoutStoredCredential(t *testing.T) {
	client := &fakeAPI{}
	store := &memoryStore{}
	s := newTestSession(client, store, "reader")

	require.NoError(t, s.EnsureLoggedIn(context.Background(), false))
	assert.Equal(t, []string{"login"}, client.calls)
	assert.Equal(t, "login-session", client.token)
	assert.Equal(t, 1, store.saves)
}

func TestRejectedRefreshFallsBackToCredentials(t *testing.T) {
	client := &fakeAPI{refresh: func(string) (models.Credential, error) { return models.Credential{}, unauthorized() }}
	store := &memoryStore{cred: &models.Credential{Session: "old", Refresh: "stale"}}
	s := newTestSession(client, store, "reader")

	require.NoError(t, s.EnsureLoggedIn(context.Background(), false))
	assert.Equal(t, []string{"refresh:stale", "login"}, client.calls)
	assert.Equal(t, "login-refresh", store.cred.Refresh)
}

func TestTransientRefreshFailureIsNotFatal(t *testing.T) {
	client := &fakeAPI{refresh: func(string) (models.Credential, error) { return models.Credential{}, serverError() }}
	store := &memoryStore{cred: &models.Credential{Session: "old", Refresh: "r"}}
	s := newTestSession(client, store, "reader")

	err := s.EnsureLoggedIn(context.Background(), false)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotLoggedIn)
	assert.NotErrorIs(t, err, ErrUnrecoverableAuth)
	assert.False(t, s.Authenticated())
	// Retried by the policy, no credential login attempted
	assert.Equal(t, []string{"refresh:r", "refresh:r", "refresh:r"}, client.calls)
}

func TestForcedCheckKeepsValidSession(t *testing.T) {
	client := &fakeAPI{}
	store := &memoryStore{}
	s := newTestSession(client, store, "reader")
	require.NoError(t, s.EnsureLoggedIn(context.Background(), false))

	client.calls = nil
	require.NoError(t, s.EnsureLoggedIn(context.Background(), true))
	assert.Equal(t, []string{"check"}, client.calls)
}

func TestForcedCheckRefreshesExpiredSession(t *testing.T) {
	client := &fakeAPI{check: func(string) (bool, error) { return false, nil }}
	store := &memoryStore{}
	s := newTestSession(client, store, "reader")
	require.NoError(t, s.EnsureLoggedIn(context.Background(), false))

	client.calls = nil
	require.NoError(t, s.EnsureLoggedIn(context.Background(), true))
	assert.Equal(t, []string{"check", "refresh:login-refresh"}, client.calls)
	assert.Equal(t, "refreshed-session", client.token)
}

func TestReauthenticateSkipsCheck(t *testing.T) {
	client := &fakeAPI{}
	store := &memoryStore{}
	s := newTestSession(client, store, "reader")
	require.NoError(t, s.EnsureLoggedIn(context.Background(), false))

	client.calls = nil
	s.Invalidate()
	assert.False(t, s.Authenticated())
	require.NoError(t, s.Reauthenticate(context.Background()))
	assert.Equal(t, []string{"refresh:login-refresh"}, client.calls)
	assert.True(t, s.Authenticated())
}

func TestCredentialLoginForgetsStoredSession(t *testing.T) {
	client := &fakeAPI{login: func(string, string) (models.Credential, error) { return models.Credential{}, unauthorized() }}
	store := &memoryStore{cred: &models.Credential{Session: "old", Refresh: "stored-refresh"}}
	s := newTestSession(client, store, "reader")

	err := s.CredentialLogin(context.Background())
	require.Error(t, err)
	assert.Equal(t, []string{"login"}, client.calls)
	assert.Nil(t, store.cred)
	assert.False(t, s.Authenticated())

	client.login = nil
	require.NoError(t, s.CredentialLogin(context.Background()))
	assert.Equal(t, models.Credential{Session: "login-session", Refresh: "login-refresh"}, *store.cred)
}

func TestInvalidatedSessionIsCheckedOnNextLogin(t *testing.T) {
	client := &fakeAPI{}
	store := &memoryStore{}
	s := newTestSession(client, store, "reader")
	require.NoError(t, s.EnsureLoggedIn(context.Background(), false))

	client.calls = nil
	s.Invalidate()
	require.NoError(t, s.EnsureLoggedIn(context.Background(), false))
	assert.Equal(t, []string{"check"}, client.calls)
	assert.True(t, s.Authenticated())
}

func TestAllPathsExhausted(t *testing.T) {
	client := &fakeAPI{
		refresh: func(string) (models.Credential, error) { return models.Credential{}, unauthorized() },
		login:   func(string, string) (models.Credential, error) { return models.Credential{}, unauthorized() },
	}
	store := &memoryStore{cred: &models.Credential{Refresh: "r"}}
	s := newTestSession(client, store, "reader")

	err := s.EnsureLoggedIn(context.Background(), false)
	assert.ErrorIs(t, err, ErrUnrecoverableAuth)
	assert.ErrorIs(t, err, api.ErrUnauthorized)
	// Auth errors are not retried
	assert.Equal(t, []string{"refresh:r", "login"}, client.calls)
}

func TestMissingCredentials(t *testing.T) {
	client := &fakeAPI{}
	s := newTestSession(client, &memoryStore{}, "")

	err := s.CredentialLogin(context.Background())
	assert.ErrorIs(t, err, ErrConfiguration)
	assert.Empty(t, client.calls)

	err = s.EnsureLoggedIn(context.Background(), false)
	assert.ErrorIs(t, err, ErrUnrecoverableAuth)
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestCancelledContextIsNotUnrecoverable(t *testing.T) {
	client := &fakeAPI{}
	s := newTestSession(client, &memoryStore{}, "reader")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.EnsureLoggedIn(ctx, false)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, errors.Is(err, ErrUnrecoverableAuth))
}

func TestRedact(t *testing.T) {
	assert.Equal(t, "****", Redact("short"))
	assert.Equal(t, "abcd****yz", Redact("abcdefghijklmnopqrstuvwxyz"))
}
