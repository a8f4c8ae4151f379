package postgres

import (
	"context"
	"fmt"

	"github.com/prn-tf/pixtube/internal/domain"
	"github.com/prn-tf/pixtube/internal/repository"
)

// videoRepository implements repository.VideoRepository.
type videoRepository struct {
	db *DB
}

// NewVideoRepository creates a new PostgreSQL video repository.
func NewVideoRepository(db *DB) repository.VideoRepository {
	return &videoRepository{db: db}
}

const videoColumns = `id, title, content_handle, original_name, size, checksum, owner_id, views, visibility, created_at`

// Create creates a new video.
func (r *videoRepository) Create(ctx context.Context, video *domain.Video) error {
	query := `
		INSERT INTO videos (title, content_handle, original_name, size, checksum, owner_id, views, visibility, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`

	err := r.db.conn(ctx).QueryRow(ctx, query,
		video.Title,
		video.ContentHandle,
		video.OriginalName,
		video.Size,
		video.Checksum,
		video.OwnerID,
		video.Views,
		string(video.Visibility),
		video.CreatedAt,
	).Scan(&video.ID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.ErrAccountNotFound
		}
		return fmt.Errorf("failed to create video: %w", err)
	}

	return nil
}

// GetByID retrieves a video by ID.
func (r *videoRepository) GetByID(ctx context.Context, id int64) (*domain.Video, error) {
	video, err := scanVideo(r.db.conn(ctx).QueryRow(ctx, `SELECT `+videoColumns+` FROM videos WHERE id = $1`, id))
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrVideoNotFound
		}
		return nil, fmt.Errorf("failed to get video by ID: %w", err)
	}
	return video, nil
}

// ListVisible returns every video that is not blocked.
func (r *videoRepository) ListVisible(ctx context.Context) ([]*domain.Video, error) {
	return r.list(ctx, `SELECT `+videoColumns+` FROM videos WHERE visibility = $1 ORDER BY id ASC`, string(domain.VisibilityVisible))
}

// ListAll returns every video.
func (r *videoRepository) ListAll(ctx context.Context) ([]*domain.Video, error) {
	return r.list(ctx, `SELECT `+videoColumns+` FROM videos ORDER BY id ASC`)
}

// ListByOwner returns the videos uploaded by an account.
func (r *videoRepository) ListByOwner(ctx context.Context, ownerID int64) ([]*domain.Video, error) {
	return r.list(ctx, `SELECT `+videoColumns+` FROM videos WHERE owner_id = $1 ORDER BY id ASC`, ownerID)
}

func (r *videoRepository) list(ctx context.Context, query string, args ...any) ([]*domain.Video, error) {
	rows, err := r.db.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list videos: %w", err)
	}
	defer rows.Close()

	var videos []*domain.Video
	for rows.Next() {
		video, err := scanVideo(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan video: %w", err)
		}
		videos = append(videos, video)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating videos: %w", err)
	}

	return videos, nil
}

// IncrementViews atomically increments the view counter.
func (r *videoRepository) IncrementViews(ctx context.Context, id int64) (int64, error) {
	var views int64
	err := r.db.conn(ctx).QueryRow(ctx, `UPDATE videos SET views = views + 1 WHERE id = $1 RETURNING views`, id).Scan(&views)
	if err != nil {
		if isNoRows(err) {
			return 0, domain.ErrVideoNotFound
		}
		return 0, fmt.Errorf("failed to increment views: %w", err)
	}
	return views, nil
}

// UpdateVisibility sets the moderation flag of a video.
func (r *videoRepository) UpdateVisibility(ctx context.Context, id int64, visibility domain.Visibility) error {
	result, err := r.db.conn(ctx).Exec(ctx, `UPDATE videos SET visibility = $1 WHERE id = $2`, string(visibility), id)
	if err != nil {
		return fmt.Errorf("failed to update video visibility: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrVideoNotFound
	}
	return nil
}

// DeleteByOwner removes every video owned by the account and returns the removed rows.
func (r *videoRepository) DeleteByOwner(ctx context.Context, ownerID int64) ([]*domain.Video, error) {
	videos, err := r.list(ctx, `DELETE FROM videos WHERE owner_id = $1 RETURNING `+videoColumns, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to delete videos by owner: %w", err)
	}
	return videos, nil
}

// ExistsByContentHandle reports whether any video references the stored file.
func (r *videoRepository) ExistsByContentHandle(ctx context.Context, handle string) (bool, error) {
	var exists bool
	err := r.db.conn(ctx).QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM videos WHERE content_handle = $1)`, handle).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check content handle: %w", err)
	}
	return exists, nil
}

func scanVideo(row rowScanner) (*domain.Video, error) {
	video := &domain.Video{}
	var visibility string

	err := row.Scan(
		&video.ID,
		&video.Title,
		&video.ContentHandle,
		&video.OriginalName,
		&video.Size,
		&video.Checksum,
		&video.OwnerID,
		&video.Views,
		&visibility,
		&video.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	video.Visibility = domain.Visibility(visibility)
	return video, nil
}

// Ensure videoRepository implements repository.VideoRepository.
var _ repository.VideoRepository = (*videoRepository)(nil)
