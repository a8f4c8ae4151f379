package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/prn-tf/pixtube/internal/domain"
	"github.com/prn-tf/pixtube/internal/metrics"
	"github.com/prn-tf/pixtube/internal/pkg/crypto"
	"github.com/prn-tf/pixtube/internal/repository"
)

// SessionService maps opaque session tokens to accounts.
// Tokens live in a repository.Cache, so a Redis-backed cache shares sessions between instances.
type SessionService struct {
	accounts *AccountService
	cache    repository.Cache
	ttl      time.Duration
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

// NewSessionService creates a new SessionService.
func NewSessionService(accounts *AccountService, cache repository.Cache, ttl time.Duration, m *metrics.Metrics, logger zerolog.Logger) *SessionService {
	return &SessionService{
		accounts: accounts,
		cache:    cache,
		ttl:      ttl,
		metrics:  m,
		logger:   logger.With().Str("service", "session").Logger(),
	}
}

// Session is a started login session.
type Session struct {
	Token     string
	AccountID int64
	ExpiresAt time.Time
}

// LoginInput contains the credentials submitted on the login form.
type LoginInput struct {
	Handle   string
	Password string
}

// Login authenticates the credentials and starts a session.
func (s *SessionService) Login(ctx context.Context, input LoginInput) (*Session, error) {
	account, err := s.accounts.Authenticate(ctx, input.Handle, input.Password)
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		s.metrics.RecordLogin("invalid")
		return nil, err
	case errors.Is(err, ErrAccountBanned):
		s.metrics.RecordLogin("banned")
		return nil, err
	case err != nil:
		return nil, err
	}

	session, err := s.Start(ctx, account.ID)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordLogin("success")
	return session, nil
}

// Start issues a new session token for the account.
func (s *SessionService) Start(ctx context.Context, accountID int64) (*Session, error) {
	token, err := crypto.GenerateSessionToken()
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to generate session token")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	key := repository.CacheKey{}.Session(token)
	if err := s.cache.Set(ctx, key, []byte(strconv.FormatInt(accountID, 10)), s.ttl); err != nil {
		s.logger.Error().Err(err).Int64("account_id", accountID).Msg("failed to store session")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	s.logger.Debug().Int64("account_id", accountID).Msg("session started")

	return &Session{
		Token:     token,
		AccountID: accountID,
		ExpiresAt: time.Now().Add(s.ttl),
	}, nil
}

// Resolve returns the account behind a session token.
// Unknown, malformed or expired tokens, and tokens whose account is gone,
// resolve to an anonymous viewer (nil, nil).
func (s *SessionService) Resolve(ctx context.Context, token string) (*domain.Account, error) {
	if !crypto.IsSessionToken(token) {
		return nil, nil
	}

	value, err := s.cache.Get(ctx, repository.CacheKey{}.Session(token))
	if err != nil {
		if errors.Is(err, repository.ErrCacheMiss) {
			return nil, nil
		}
		s.logger.Error().Err(err).Msg("failed to read session")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	accountID, err := strconv.ParseInt(string(value), 10, 64)
	if err != nil {
		s.logger.Warn().Str("value", string(value)).Msg("corrupt session entry")
		return nil, nil
	}

	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return account, nil
}

// Logout destroys a session. Unknown tokens are ignored.
func (s *SessionService) Logout(ctx context.Context, token string) error {
	if !crypto.IsSessionToken(token) {
		return nil
	}
	if err := s.cache.Delete(ctx, repository.CacheKey{}.Session(token)); err != nil {
		s.logger.Error().Err(err).Msg("failed to delete session")
		return fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	return nil
}
