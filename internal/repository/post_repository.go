package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"
	"github.com/maheshrc27/autopost/internal/models"
)

type PostRepository interface {
	CreateWithClaimedAsset(ctx context.Context, post *models.Post, themeID int64) (*models.Post, error)
	GetByID(ctx context.Context, id int64) (*models.Post, error)
	Transition(ctx context.Context, id int64, to string) (bool, error)
	MarkPublished(ctx context.Context, id int64, remoteMediaID string, publishedAt time.Time) error
	RecordFailure(ctx context.Context, id int64, to, message string) error
	Requeue(ctx context.Context, id int64) (bool, error)
	ListPublishedSince(ctx context.Context, since time.Time, limit int) ([]*models.Post, error)
	LatestBySchedule(ctx context.Context, scheduleID int64) (*models.Post, error)
}

type postRepository struct {
	db *sql.DB
}

func NewPostRepository(db *sql.DB) PostRepository {
	return &postRepository{db: db}
}

const postColumns = `id, schedule_id, account_id, media_asset_id, post_type, caption, hashtags, status,
	COALESCE(remote_media_id, ''), error_message, retry_count, scheduled_for, published_at, created_at, updated_at`

func scanPost(row scanner) (*models.Post, error) {
	var p models.Post
	err := row.Scan(&p.ID, &p.ScheduleID, &p.AccountID, &p.MediaAssetID, &p.PostType, &p.Caption,
		pq.Array(&p.Hashtags), &p.Status, &p.RemoteMediaID, &p.ErrorMessage, &p.RetryCount,
		&p.ScheduledFor, &p.PublishedAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// CreateWithClaimedAsset flips the oldest unused asset of the theme to used
// and inserts a QUEUED post bound to it, in one statement. Concurrent
// callers never claim the same asset; ErrNoUnusedMedia is returned when
// nothing is left.
func (r *postRepository) CreateWithClaimedAsset(ctx context.Context, post *models.Post, themeID int64) (*models.Post, error) {
	query := `
		WITH asset AS (
			UPDATE media_assets
			SET is_used = TRUE,
				last_used_at = NOW()
			WHERE id = (
				SELECT id FROM media_assets
				WHERE theme_id = $1 AND is_used = FALSE
				ORDER BY created_at, id
				LIMIT 1
				FOR UPDATE SKIP LOCKED
			)
			RETURNING id
		)
		INSERT INTO posts (schedule_id, account_id, media_asset_id, post_type, caption, hashtags, status, scheduled_for)
		SELECT $2, $3, asset.id, $4, $5, $6, $7, $8 FROM asset
		RETURNING id, media_asset_id, created_at
	`

	created := *post
	created.Status = models.PostStatusQueued
	err := r.db.QueryRowContext(ctx, query,
		themeID,
		post.ScheduleID,
		post.AccountID,
		post.PostType,
		post.Caption,
		pq.Array(post.Hashtags),
		models.PostStatusQueued,
		post.ScheduledFor,
	).Scan(&created.ID, &created.MediaAssetID, &created.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNoUnusedMedia
		}
		return nil, err
	}

	created.UpdatedAt = created.CreatedAt
	return &created, nil
}

func (r *postRepository) GetByID(ctx context.Context, id int64) (*models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE id = $1`

	p, err := scanPost(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return p, nil
}

// Transition moves a post to status `to` if its current status allows it.
func (r *postRepository) Transition(ctx context.Context, id int64, to string) (bool, error) {
	query := `
		UPDATE posts
		SET status = $1,
			updated_at = NOW()
		WHERE id = $2 AND status = ANY($3)
	`
	result, err := r.db.ExecContext(ctx, query, to, id, pq.Array(models.AllowedPostSources(to)))
	if err != nil {
		return false, err
	}
	return affectedOne(result)
}

func (r *postRepository) MarkPublished(ctx context.Context, id int64, remoteMediaID string, publishedAt time.Time) error {
	query := `
		UPDATE posts
		SET status = $1,
			remote_media_id = $2,
			published_at = $3,
			error_message = '',
			updated_at = NOW()
		WHERE id = $4 AND status = ANY($5)
	`
	_, err := r.db.ExecContext(ctx, query, models.PostStatusPublished, remoteMediaID, publishedAt, id,
		pq.Array(models.AllowedPostSources(models.PostStatusPublished)))
	return err
}

// RecordFailure stores the error text, bumps retry_count and moves the post
// to `to` (FAILED, or QUEUED when the queue will retry).
func (r *postRepository) RecordFailure(ctx context.Context, id int64, to, message string) error {
	query := `
		UPDATE posts
		SET status = CASE WHEN status = ANY($1) THEN $2 ELSE status END,
			error_message = $3,
			retry_count = retry_count + 1,
			updated_at = NOW()
		WHERE id = $4
	`
	_, err := r.db.ExecContext(ctx, query, pq.Array(models.AllowedPostSources(to)), to, message, id)
	return err
}

// Requeue is the manual retry path: only FAILED posts go back to QUEUED.
func (r *postRepository) Requeue(ctx context.Context, id int64) (bool, error) {
	query := `
		UPDATE posts
		SET status = $1,
			updated_at = NOW()
		WHERE id = $2 AND status = $3
	`
	result, err := r.db.ExecContext(ctx, query, models.PostStatusQueued, id, models.PostStatusFailed)
	if err != nil {
		return false, err
	}
	return affectedOne(result)
}

func (r *postRepository) ListPublishedSince(ctx context.Context, since time.Time, limit int) ([]*models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts
		WHERE status = $1 AND published_at >= $2 AND remote_media_id IS NOT NULL AND remote_media_id <> ''
		ORDER BY published_at DESC
		LIMIT $3`

	rows, err := r.db.QueryContext(ctx, query, models.PostStatusPublished, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var posts []*models.Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return posts, nil
}

func (r *postRepository) LatestBySchedule(ctx context.Context, scheduleID int64) (*models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE schedule_id = $1 ORDER BY created_at DESC LIMIT 1`

	p, err := scanPost(r.db.QueryRowContext(ctx, query, scheduleID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return p, nil
}
