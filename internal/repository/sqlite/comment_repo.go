package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/prn-tf/pixtube/internal/domain"
	"github.com/prn-tf/pixtube/internal/repository"
)

// commentRepository implements repository.CommentRepository for SQLite.
type commentRepository struct {
	db *DB
}

// NewCommentRepository creates a new SQLite comment repository.
func NewCommentRepository(db *DB) repository.CommentRepository {
	return &commentRepository{db: db}
}

const commentColumns = `id, body, author_id, video_id, visibility, created_at`

// Create creates a new comment.
func (r *commentRepository) Create(ctx context.Context, comment *domain.Comment) error {
	query := `
		INSERT INTO comments (body, author_id, video_id, visibility, created_at)
		VALUES (?, ?, ?, ?, ?)
	`

	result, err := r.db.conn(ctx).ExecContext(ctx, query,
		comment.Body,
		comment.AuthorID,
		comment.VideoID,
		string(comment.Visibility),
		comment.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.ErrVideoNotFound
		}
		return fmt.Errorf("failed to create comment: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert ID: %w", err)
	}
	comment.ID = id

	return nil
}

// GetByID retrieves a comment by ID.
func (r *commentRepository) GetByID(ctx context.Context, id int64) (*domain.Comment, error) {
	query := `SELECT ` + commentColumns + ` FROM comments WHERE id = ?`

	comment, err := scanComment(r.db.conn(ctx).QueryRowContext(ctx, query, id))
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrCommentNotFound
		}
		return nil, fmt.Errorf("failed to get comment by ID: %w", err)
	}

	return comment, nil
}

// ListVisibleByVideo returns the visible comments of a video.
func (r *commentRepository) ListVisibleByVideo(ctx context.Context, videoID int64) ([]*domain.Comment, error) {
	query := `SELECT ` + commentColumns + ` FROM comments WHERE video_id = ? AND visibility = ? ORDER BY id ASC`
	return r.list(ctx, query, videoID, string(domain.VisibilityVisible))
}

// ListAll returns every comment.
func (r *commentRepository) ListAll(ctx context.Context) ([]*domain.Comment, error) {
	query := `SELECT ` + commentColumns + ` FROM comments ORDER BY id ASC`
	return r.list(ctx, query)
}

func (r *commentRepository) list(ctx context.Context, query string, args ...any) ([]*domain.Comment, error) {
	rows, err := r.db.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}
	defer rows.Close()

	var comments []*domain.Comment
	for rows.Next() {
		comment, err := scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan comment: %w", err)
		}
		comments = append(comments, comment)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating comments: %w", err)
	}

	return comments, nil
}

// UpdateVisibility sets the moderation flag of a comment.
func (r *commentRepository) UpdateVisibility(ctx context.Context, id int64, visibility domain.Visibility) error {
	result, err := r.db.conn(ctx).ExecContext(ctx, `UPDATE comments SET visibility = ? WHERE id = ?`, string(visibility), id)
	if err != nil {
		return fmt.Errorf("failed to update comment visibility: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return domain.ErrCommentNotFound
	}

	return nil
}

// DeleteByVideoOwner removes every comment on videos owned by the account.
func (r *commentRepository) DeleteByVideoOwner(ctx context.Context, ownerID int64) (int64, error) {
	query := `DELETE FROM comments WHERE video_id IN (SELECT id FROM videos WHERE owner_id = ?)`

	result, err := r.db.conn(ctx).ExecContext(ctx, query, ownerID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete comments by video owner: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	return rowsAffected, nil
}

func scanComment(row rowScanner) (*domain.Comment, error) {
	comment := &domain.Comment{}
	var visibility, createdAt string

	err := row.Scan(
		&comment.ID,
		&comment.Body,
		&comment.AuthorID,
		&comment.VideoID,
		&visibility,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	comment.Visibility = domain.Visibility(visibility)
	comment.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)

	return comment, nil
}

// Ensure commentRepository implements repository.CommentRepository.
var _ repository.CommentRepository = (*commentRepository)(nil)
