package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/prn-tf/pixtube/internal/domain"
	"github.com/prn-tf/pixtube/internal/repository"
)

// accountRepository implements repository.AccountRepository.
type accountRepository struct {
	db *DB
}

// NewAccountRepository creates a new PostgreSQL account repository.
func NewAccountRepository(db *DB) repository.AccountRepository {
	return &accountRepository{db: db}
}

const accountColumns = `id, handle, password_hash, role, standing, created_at, updated_at`

// Create creates a new account.
func (r *accountRepository) Create(ctx context.Context, account *domain.Account) error {
	query := `
		INSERT INTO accounts (handle, password_hash, role, standing, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	err := r.db.conn(ctx).QueryRow(ctx, query,
		account.Handle,
		account.PasswordHash,
		string(account.Role),
		string(account.Standing),
		account.CreatedAt,
		account.UpdatedAt,
	).Scan(&account.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.NewDomainError(domain.ErrHandleTaken, "cannot register", account.Handle)
		}
		return fmt.Errorf("failed to create account: %w", err)
	}

	return nil
}

// GetByID retrieves an account by ID.
func (r *accountRepository) GetByID(ctx context.Context, id int64) (*domain.Account, error) {
	account, err := scanAccount(r.db.conn(ctx).QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account by ID: %w", err)
	}
	return account, nil
}

// GetByHandle retrieves an account by handle.
func (r *accountRepository) GetByHandle(ctx context.Context, handle string) (*domain.Account, error) {
	account, err := scanAccount(r.db.conn(ctx).QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE handle = $1`, handle))
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account by handle: %w", err)
	}
	return account, nil
}

// List returns all accounts.
func (r *accountRepository) List(ctx context.Context) ([]*domain.Account, error) {
	rows, err := r.db.conn(ctx).Query(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*domain.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, account)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accounts: %w", err)
	}

	return accounts, nil
}

// ExistsByHandle checks if an account with the given handle exists.
func (r *accountRepository) ExistsByHandle(ctx context.Context, handle string) (bool, error) {
	var exists bool
	err := r.db.conn(ctx).QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM accounts WHERE handle = $1)`, handle).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check handle existence: %w", err)
	}
	return exists, nil
}

// UpdateStanding sets the moderation standing of an account.
func (r *accountRepository) UpdateStanding(ctx context.Context, id int64, standing domain.Standing) error {
	result, err := r.db.conn(ctx).Exec(ctx,
		`UPDATE accounts SET standing = $1, updated_at = $2 WHERE id = $3`,
		string(standing), time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update account standing: %w", err)
	}

	if result.RowsAffected() == 0 {
		return domain.ErrAccountNotFound
	}

	return nil
}

// CountByRole returns the number of accounts holding the role.
func (r *accountRepository) CountByRole(ctx context.Context, role domain.Role) (int64, error) {
	var count int64
	err := r.db.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM accounts WHERE role = $1`, string(role)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count accounts by role: %w", err)
	}
	return count, nil
}

// rowScanner is satisfied by pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*domain.Account, error) {
	account := &domain.Account{}
	var role, standing string

	err := row.Scan(
		&account.ID,
		&account.Handle,
		&account.PasswordHash,
		&role,
		&standing,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	account.Role = domain.Role(role)
	account.Standing = domain.Standing(standing)
	return account, nil
}

// Ensure accountRepository implements repository.AccountRepository.
var _ repository.AccountRepository = (*accountRepository)(nil)
