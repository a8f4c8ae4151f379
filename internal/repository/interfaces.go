// Package repository defines data access interfaces for PixTube.
// These interfaces abstract database operations, allowing for different implementations
// (SQLite, PostgreSQL, in-memory for testing) while keeping the service layer clean.
//
// Every listing is returned in insertion order (ascending id).
package repository

import (
	"context"

	"github.com/prn-tf/pixtube/internal/domain"
)

// =============================================================================
// Account Repository
// =============================================================================

// AccountRepository defines the interface for account data access.
type AccountRepository interface {
	// Create creates a new account and sets its ID.
	// Returns domain.ErrHandleTaken if the handle is already registered.
	Create(ctx context.Context, account *domain.Account) error

	// GetByID retrieves an account by ID.
	GetByID(ctx context.Context, id int64) (*domain.Account, error)

	// GetByHandle retrieves an account by its exact handle.
	GetByHandle(ctx context.Context, handle string) (*domain.Account, error)

	// List returns all accounts.
	List(ctx context.Context) ([]*domain.Account, error)

	// ExistsByHandle checks if an account with the given handle exists.
	ExistsByHandle(ctx context.Context, handle string) (bool, error)

	// UpdateStanding sets the moderation standing of an account.
	UpdateStanding(ctx context.Context, id int64, standing domain.Standing) error

	// CountByRole returns the number of accounts holding the role.
	CountByRole(ctx context.Context, role domain.Role) (int64, error)
}

// =============================================================================
// Video Repository
// =============================================================================

// VideoRepository defines the interface for video data access.
type VideoRepository interface {
	// Create creates a new video and sets its ID.
	Create(ctx context.Context, video *domain.Video) error

	// GetByID retrieves a video by ID.
	GetByID(ctx context.Context, id int64) (*domain.Video, error)

	// ListVisible returns every video that is not blocked.
	ListVisible(ctx context.Context) ([]*domain.Video, error)

	// ListAll returns every video regardless of visibility.
	ListAll(ctx context.Context) ([]*domain.Video, error)

	// ListByOwner returns the videos uploaded by an account.
	ListByOwner(ctx context.Context, ownerID int64) ([]*domain.Video, error)

	// IncrementViews atomically adds one to the view counter and returns the new value.
	IncrementViews(ctx context.Context, id int64) (int64, error)

	// UpdateVisibility sets the moderation flag of a video.
	UpdateVisibility(ctx context.Context, id int64, visibility domain.Visibility) error

	// DeleteByOwner removes every video owned by the account and returns the removed rows.
	DeleteByOwner(ctx context.Context, ownerID int64) ([]*domain.Video, error)

	// ExistsByContentHandle reports whether any video references the stored file.
	ExistsByContentHandle(ctx context.Context, handle string) (bool, error)
}

// =============================================================================
// Comment Repository
// =============================================================================

// CommentRepository defines the interface for comment data access.
type CommentRepository interface {
	// Create creates a new comment and sets its ID.
	Create(ctx context.Context, comment *domain.Comment) error

	// GetByID retrieves a comment by ID.
	GetByID(ctx context.Context, id int64) (*domain.Comment, error)

	// ListVisibleByVideo returns the visible comments of a video.
	ListVisibleByVideo(ctx context.Context, videoID int64) ([]*domain.Comment, error)

	// ListAll returns every comment regardless of visibility.
	ListAll(ctx context.Context) ([]*domain.Comment, error)

	// UpdateVisibility sets the moderation flag of a comment.
	UpdateVisibility(ctx context.Context, id int64, visibility domain.Visibility) error

	// DeleteByVideoOwner removes every comment left on videos owned by the account.
	// Returns the number of removed rows.
	DeleteByVideoOwner(ctx context.Context, ownerID int64) (int64, error)
}

// =============================================================================
// Transactions
// =============================================================================

// TxManager runs a function inside a database transaction.
// Repository calls made with the context passed to fn join the transaction.
// If fn returns an error, the transaction is rolled back.
type TxManager interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// =============================================================================
// Aggregates
// =============================================================================

// Repositories holds all repository instances for one database.
type Repositories struct {
	Account AccountRepository
	Video   VideoRepository
	Comment CommentRepository
	Tx      TxManager
}

// DatabaseHealth is the lifecycle surface shared by both database backends.
// It satisfies handler.DatabaseChecker.
type DatabaseHealth interface {
	Health(ctx context.Context) error
	Close() error
}
