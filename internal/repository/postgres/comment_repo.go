package postgres

import (
	"context"
	"fmt"

	"github.com/prn-tf/pixtube/internal/domain"
	"github.com/prn-tf/pixtube/internal/repository"
)

// commentRepository implements repository.CommentRepository.
type commentRepository struct {
	db *DB
}

// NewCommentRepository creates a new PostgreSQL comment repository.
func NewCommentRepository(db *DB) repository.CommentRepository {
	return &commentRepository{db: db}
}

const commentColumns = `id, body, author_id, video_id, visibility, created_at`

// Create creates a new comment.
func (r *commentRepository) Create(ctx context.Context, comment *domain.Comment) error {
	query := `
		INSERT INTO comments (body, author_id, video_id, visibility, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	err := r.db.conn(ctx).QueryRow(ctx, query,
		comment.Body,
		comment.AuthorID,
		comment.VideoID,
		string(comment.Visibility),
		comment.CreatedAt,
	).Scan(&comment.ID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.ErrVideoNotFound
		}
		return fmt.Errorf("failed to create comment: %w", err)
	}

	return nil
}

// GetByID retrieves a comment by ID.
func (r *commentRepository) GetByID(ctx context.Context, id int64) (*domain.Comment, error) {
	comment, err := scanComment(r.db.conn(ctx).QueryRow(ctx, `SELECT `+commentColumns+` FROM comments WHERE id = $1`, id))
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
	return r.list(ctx,
		`SELECT `+commentColumns+` FROM comments WHERE video_id = $1 AND visibility = $2 ORDER BY id ASC`,
		videoID, string(domain.VisibilityVisible),
	)
}

// ListAll returns every comment.
func (r *commentRepository) ListAll(ctx context.Context) ([]*domain.Comment, error) {
	return r.list(ctx, `SELECT `+commentColumns+` FROM comments ORDER BY id ASC`)
}

func (r *commentRepository) list(ctx context.Context, query string, args ...any) ([]*domain.Comment, error) {
	rows, err := r.db.conn(ctx).Query(ctx, query, args...)
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
	result, err := r.db.conn(ctx).Exec(ctx, `UPDATE comments SET visibility = $1 WHERE id = $2`, string(visibility), id)
	if err != nil {
		return fmt.Errorf("failed to update comment visibility: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrCommentNotFound
	}
	return nil
}

// DeleteByVideoOwner removes every comment on videos owned by the account.
func (r *commentRepository) DeleteByVideoOwner(ctx context.Context, ownerID int64) (int64, error) {
	result, err := r.db.conn(ctx).Exec(ctx,
		`DELETE FROM comments WHERE video_id IN (SELECT id FROM videos WHERE owner_id = $1)`,
		ownerID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete comments by video owner: %w", err)
	}
	return result.RowsAffected(), nil
}

func scanComment(row rowScanner) (*domain.Comment, error) {
	comment := &domain.Comment{}
	var visibility string

	err := row.Scan(
		&comment.ID,
		&comment.Body,
		&comment.AuthorID,
		&comment.VideoID,
		&visibility,
		&comment.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	comment.Visibility = domain.Visibility(visibility)
	return comment, nil
}

// Ensure commentRepository implements repository.CommentRepository.
var _ repository.CommentRepository = (*commentRepository)(nil)
