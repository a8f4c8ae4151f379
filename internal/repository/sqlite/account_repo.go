package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/prn-tf/pixtube/internal/domain"
	"github.com/prn-tf/pixtube/internal/repository"
)

// accountRepository implements repository.AccountRepository for SQLite.
type accountRepository struct {
	db *DB
}

// NewAccountRepository creates a new SQLite account repository.
func NewAccountRepository(db *DB) repository.AccountRepository {
	return &accountRepository{db: db}
}

const accountColumns = `id, handle, password_hash, role, standing, created_at, updated_at`

// Create creates a new account.
func (r *accountRepository) Create(ctx context.Context, account *domain.Account) error {
	query := `
		INSERT INTO accounts (handle, password_hash, role, standing, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.conn(ctx).ExecContext(ctx, query,
		account.Handle,
		account.PasswordHash,
		string(account.Role),
		string(account.Standing),
		account.CreatedAt.Format(time.RFC3339),
		account.UpdatedAt.Format(time.RFC3339),
	)

	if err != nil {
		if isUniqueViolation(err) {
			return domain.NewDomainError(domain.ErrHandleTaken, "cannot register", account.Handle)
		}
		return fmt.Errorf("failed to create account: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert ID: %w", err)
	}
	account.ID = id

	return nil
}

// GetByID retrieves an account by ID.
func (r *accountRepository) GetByID(ctx context.Context, id int64) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = ?`

	account, err := scanAccount(r.db.conn(ctx).QueryRowContext(ctx, query, id))
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
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE handle = ?`

	account, err := scanAccount(r.db.conn(ctx).QueryRowContext(ctx, query, handle))
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
	query := `SELECT ` + accountColumns + ` FROM accounts ORDER BY id ASC`

	rows, err := r.db.conn(ctx).QueryContext(ctx, query)
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
	var count int
	err := r.db.conn(ctx).QueryRowContext(ctx, `SELECT COUNT(*) FROM accounts WHERE handle = ?`, handle).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check handle existence: %w", err)
	}
	return count > 0, nil
}

// UpdateStanding sets the moderation standing of an account.
func (r *accountRepository) UpdateStanding(ctx context.Context, id int64, standing domain.Standing) error {
	query := `UPDATE accounts SET standing = ?, updated_at = ? WHERE id = ?`

	result, err := r.db.conn(ctx).ExecContext(ctx, query,
		string(standing),
		time.Now().UTC().Format(time.RFC3339),
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to update account standing: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return domain.ErrAccountNotFound
	}

	return nil
}

// CountByRole returns the number of accounts holding the role.
func (r *accountRepository) CountByRole(ctx context.Context, role domain.Role) (int64, error) {
	var count int64
	err := r.db.conn(ctx).QueryRowContext(ctx, `SELECT COUNT(*) FROM accounts WHERE role = ?`, string(role)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count accounts by role: %w", err)
	}
	return count, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

var (
	_ rowScanner = (*sql.Row)(nil)
	_ rowScanner = (*sql.Rows)(nil)
)

func scanAccount(row rowScanner) (*domain.Account, error) {
	account := &domain.Account{}
	var role, standing, createdAt, updatedAt string

	err := row.Scan(
		&account.ID,
		&account.Handle,
		&account.PasswordHash,
		&role,
		&standing,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	account.Role = domain.Role(role)
	account.Standing = domain.Standing(standing)
	account.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	account.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)

	return account, nil
}

// Ensure accountRepository implements repository.AccountRepository.
var _ repository.AccountRepository = (*accountRepository)(nil)
