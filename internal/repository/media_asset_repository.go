package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/maheshrc27/autopost/internal/models"
)

type MediaAssetRepository interface {
	GetByID(ctx context.Context, id int64) (*models.MediaAsset, error)
	MarkUsed(ctx context.Context, id int64, at time.Time) error
}

type mediaAssetRepository struct {
	db *sql.DB
}

func NewMediaAssetRepository(db *sql.DB) MediaAssetRepository {
	return &mediaAssetRepository{db: db}
}

func (r *mediaAssetRepository) GetByID(ctx context.Context, id int64) (*models.MediaAsset, error) {
	query := `
		SELECT id, theme_id, source_kind, source_ref, file_name, mime_type, file_size, is_used, last_used_at, created_at
		FROM media_assets
		WHERE id = $1
	`

	var ma models.MediaAsset
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&ma.ID,
		&ma.ThemeID,
		&ma.SourceKind,
		&ma.SourceRef,
		&ma.FileName,
		&ma.MimeType,
		&ma.FileSize,
		&ma.IsUsed,
		&ma.LastUsedAt,
		&ma.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	return &ma, nil
}

// MarkUsed records a successful publish. The asset was already claimed when
// its post was created, so this only refreshes last_used_at.
func (r *mediaAssetRepository) MarkUsed(ctx context.Context, id int64, at time.Time) error {
	query := `
		UPDATE media_assets
		SET is_used = TRUE,
			last_used_at = $1
		WHERE id = $2
	`
	_, err := r.db.ExecContext(ctx, query, at, id)
	return err
}
