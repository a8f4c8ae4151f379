package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/prn-tf/pixtube/internal/domain"
	"github.com/prn-tf/pixtube/internal/metrics"
	"github.com/prn-tf/pixtube/internal/repository"
)

// AccountService handles registration, credential checks and account lookups.
type AccountService struct {
	accountRepo repository.AccountRepository
	metrics     *metrics.Metrics
	logger      zerolog.Logger
	bcryptCost  int
}

// NewAccountService creates a new AccountService.
func NewAccountService(accountRepo repository.AccountRepository, m *metrics.Metrics, logger zerolog.Logger) *AccountService {
	return &AccountService{
		accountRepo: accountRepo,
		metrics:     m,
		logger:      logger.With().Str("service", "account").Logger(),
		bcryptCost:  bcrypt.DefaultCost,
	}
}

// RegisterInput contains the data needed to register an account.
type RegisterInput struct {
	Handle   string
	Password string
}

// Register creates a new standard, active account.
// Handles are compared case-sensitively; "Alice" and "alice" are different accounts.
func (s *AccountService) Register(ctx context.Context, input RegisterInput) (*domain.Account, error) {
	if err := validateCredentials(input.Handle, input.Password); err != nil {
		return nil, err
	}

	exists, err := s.accountRepo.ExistsByHandle(ctx, input.Handle)
	if err != nil {
		s.logger.Error().Err(err).Str("handle", input.Handle).Msg("failed to check handle existence")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	if exists {
		return nil, domain.NewDomainError(domain.ErrHandleTaken, "cannot register", input.Handle)
	}

	account, err := s.newAccount(input.Handle, input.Password)
	if err != nil {
		return nil, err
	}

	if err := s.accountRepo.Create(ctx, account); err != nil {
		// Lost a race with a concurrent registration of the same handle.
		if errors.Is(err, domain.ErrHandleTaken) {
			return nil, err
		}
		s.logger.Error().Err(err).Str("handle", input.Handle).Msg("failed to create account")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	s.metrics.RecordRegistration()
	s.logger.Info().
		Int64("account_id", account.ID).
		Str("handle", account.Handle).
		Msg("account registered")

	return account, nil
}

// Authenticate verifies credentials and returns the account.
// Unknown handles and wrong passwords both yield ErrInvalidCredentials.
// A banned account with the right password yields ErrAccountBanned.
func (s *AccountService) Authenticate(ctx context.Context, handle, password string) (*domain.Account, error) {
	account, err := s.accountRepo.GetByHandle(ctx, handle)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			s.logger.Debug().Str("handle", handle).Msg("account not found during authentication")
			return nil, ErrInvalidCredentials
		}
		s.logger.Error().Err(err).Str("handle", handle).Msg("failed to load account")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		s.logger.Debug().Str("handle", handle).Msg("invalid password during authentication")
		return nil, ErrInvalidCredentials
	}

	if account.IsBanned() {
		s.logger.Info().Int64("account_id", account.ID).Msg("banned account refused at login")
		return nil, ErrAccountBanned
	}

	return account, nil
}

// GetByID retrieves an account by ID.
func (s *AccountService) GetByID(ctx context.Context, id int64) (*domain.Account, error) {
	account, err := s.accountRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return nil, err
		}
		s.logger.Error().Err(err).Int64("account_id", id).Msg("failed to get account")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	return account, nil
}

// GetByHandle retrieves an account by its exact handle.
func (s *AccountService) GetByHandle(ctx context.Context, handle string) (*domain.Account, error) {
	account, err := s.accountRepo.GetByHandle(ctx, handle)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return nil, err
		}
		s.logger.Error().Err(err).Str("handle", handle).Msg("failed to get account")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	return account, nil
}

// List returns every account in registration order.
func (s *AccountService) List(ctx context.Context) ([]*domain.Account, error) {
	accounts, err := s.accountRepo.List(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list accounts")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	return accounts, nil
}

// EnsureBootstrapAdmin creates the administrator account when none exists.
// It reports whether an account was created; later calls are no-ops.
func (s *AccountService) EnsureBootstrapAdmin(ctx context.Context, handle, password string) (bool, error) {
	if err := validateCredentials(handle, password); err != nil {
		return false, err
	}

	count, err := s.accountRepo.CountByRole(ctx, domain.RoleAdministrator)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to count administrators")
		return false, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	if count > 0 {
		return false, nil
	}

	account, err := s.newAccount(handle, password)
	if err != nil {
		return false, err
	}
	account.Role = domain.RoleAdministrator

	if err := s.accountRepo.Create(ctx, account); err != nil {
		if errors.Is(err, domain.ErrHandleTaken) {
			return false, fmt.Errorf("bootstrap administrator: %w", err)
		}
		s.logger.Error().Err(err).Str("handle", handle).Msg("failed to create administrator")
		return false, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	s.logger.Info().
		Int64("account_id", account.ID).
		Str("handle", account.Handle).
		Msg("bootstrap administrator created")

	return true, nil
}

func (s *AccountService) newAccount(handle, password string) (*domain.Account, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to hash password")
		return nil, fmt.Errorf("%w: failed to hash password", ErrInternalError)
	}
	return domain.NewAccount(handle, string(hash)), nil
}

func validateCredentials(handle, password string) error {
	if strings.TrimSpace(handle) == "" || utf8.RuneCountInString(handle) > domain.MaxHandleLength {
		return ErrInvalidHandle
	}
	// bcrypt only looks at the first 72 bytes.
	if password == "" || len(password) > 72 {
		return ErrInvalidPassword
	}
	return nil
}
