// Package auth keeps a bearer session with the platform alive across jobs.
package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go-mangadex-upload/internal/api"
	"go-mangadex-upload/internal/database"
	"go-mangadex-upload/internal/models"

	log "github.com/sirupsen/logrus"
)

var (
	ErrConfiguration     = errors.New("username and password are not configured")
	ErrNotLoggedIn       = errors.New("not logged in, try again later")
	ErrUnrecoverableAuth = errors.New("could not log in with any available method")
)

// API is the part of the platform client the session needs.
type API interface {
	Login(ctx context.Context, username, password string) (models.Credential, error)
	Refresh(ctx context.Context, refreshToken string) (models.Credential, error)
	CheckAuth(ctx context.Context) (bool, error)
	SetSessionToken(token string)
}

// CredentialStore persists the token pair between runs.
type CredentialStore interface {
	LoadCredential() (models.Credential, error)
	SaveCredential(cred models.Credential) error
	ClearCredential() error
}

// Session owns the credential. Nothing else writes it.
type Session struct {
	client   API
	store    CredentialStore
	username string
	password string
	policy   api.RetryPolicy

	mu            sync.Mutex
	started       bool
	authenticated bool
	cred          models.Credential
}

// NewSession builds a session. Transient login failures are retried with
// policy; 4xx answers from the auth endpoints are not.
func NewSession(client API, store CredentialStore, cfg models.Config, policy api.RetryPolicy) *Session {
	policy = policy.Named("auth")
	policy.OnAuthError = nil
	policy.OnAuthRejected = nil
	policy.Retryable = func(err error) bool {
		return !api.IsAuthError(err) && !errors.Is(err, api.ErrBadRequest)
	}
	return &Session{
		client:   client,
		store:    store,
		username: cfg.Username,
		password: cfg.Password,
		policy:   policy,
	}
}

// Authenticated reports whether the last login or check succeeded.
func (s *Session) Authenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authenticated
}

// Invalidate marks the session unauthenticated after a 401/403 elsewhere.
func (s *Session) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authenticated = false
}

// EnsureLoggedIn makes sure a usable bearer token is set on the client.
// The first call tries the stored refresh token before credentials. Later
// calls check the current token, then refresh, then log in. forceCheck
// re-validates even when already authenticated.
func (s *Session) EnsureLoggedIn(ctx context.Context, forceCheck bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.authenticated && !forceCheck {
		return nil
	}
	if !s.started {
		s.started = true
		return s.firstLogin(ctx)
	}
	return s.relogin(ctx, true)
}

// Reauthenticate replaces a token the platform just rejected.
func (s *Session) Reauthenticate(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	log.Info("Session rejected by the platform, logging in again")
	s.authenticated = false
	s.started = true
	return s.relogin(ctx, false)
}

// CredentialLogin forgets the stored session and logs in with the configured
// username and password.
func (s *Session) CredentialLogin(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = true
	s.cred = models.Credential{}
	if err := s.store.ClearCredential(); err != nil {
		log.WithError(err).Warn("Could not clear the stored session")
	}
	return s.credentialLogin(ctx)
}

func (s *Session) firstLogin(ctx context.Context) error {
	stored, err := s.store.LoadCredential()
	switch {
	case errors.Is(err, database.ErrNotFound):
		log.Debug("No stored session, logging in with credentials")
	case err != nil:
		log.WithError(err).Warn("Could not read stored session, logging in with credentials")
	case stored.Refresh == "":
		log.Debug("Stored session has no refresh token, logging in with credentials")
	default:
		s.cred = stored
		s.client.SetSessionToken(stored.Session)
		refreshErr := s.refresh(ctx)
		if refreshErr == nil {
			return nil
		}
		if !api.IsAuthError(refreshErr) {
			log.WithError(refreshErr).Error("Refreshing the stored session failed")
			return fmt.Errorf("%w: %w", ErrNotLoggedIn, refreshErr)
		}
		log.WithError(refreshErr).Warn("Stored refresh token rejected, logging in with credentials")
	}
	return s.unrecoverable(s.credentialLogin(ctx))
}

func (s *Session) relogin(ctx context.Context, check bool) error {
	if check && s.cred.Session != "" {
		ok, err := s.client.CheckAuth(ctx)
		if err == nil && ok {
			log.Debug("Current session is still valid")
			s.authenticated = true
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		log.WithError(err).Debug("Session check failed, refreshing")
	}

	if s.cred.Refresh != "" {
		err := s.refresh(ctx)
		if err == nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		log.WithError(err).Warn("Refresh failed, logging in with credentials")
	}
	return s.unrecoverable(s.credentialLogin(ctx))
}

func (s *Session) unrecoverable(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrUnrecoverableAuth, err)
}

func (s *Session) refresh(ctx context.Context) error {
	var cred models.Credential
	err := s.policy.Named("auth refresh").Do(ctx, func(ctx context.Context, attempt int) error {
		var err error
		cred, err = s.client.Refresh(ctx, s.cred.Refresh)
		return err
	})
	if err != nil {
		s.authenticated = false
		return err
	}
	s.accept(cred)
	log.Info("Refreshed session")
	return nil
}

func (s *Session) credentialLogin(ctx context.Context) error {
	if s.username == "" || s.password == "" {
		return ErrConfiguration
	}
	var cred models.Credential
	err := s.policy.Named("auth login").Do(ctx, func(ctx context.Context, attempt int) error {
		var err error
		cred, err = s.client.Login(ctx, s.username, s.password)
		return err
	})
	if err != nil {
		s.authenticated = false
		return fmt.Errorf("login as %s failed: %w", s.username, err)
	}
	s.accept(cred)
	log.WithField("user", s.username).Info("Logged in")
	return nil
}

func (s *Session) accept(cred models.Credential) {
	if cred.Refresh == "" {
		cred.Refresh = s.cred.Refresh
	}
	s.cred = cred
	s.authenticated = true
	s.client.SetSessionToken(cred.Session)
	log.Debugf("Session token %s", Redact(cred.Session))
	if err := s.store.SaveCredential(cred); err != nil {
		log.WithError(err).Warn("Could not persist session, the next run will log in again")
	}
}

// Redact shortens a token for log output.
func Redact(token string) string {
	if len(token) <= 8 {
		return "****"
	}
	return token[:4] + "****" + token[len(token)-2:]
}
