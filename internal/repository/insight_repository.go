package repository

import (
	"context"
	"database/sql"

	"github.com/maheshrc27/autopost/internal/models"
)

type InsightRepository interface {
	Upsert(ctx context.Context, insight *models.Insight) error
}

type insightRepository struct {
	db *sql.DB
}

func NewInsightRepository(db *sql.DB) InsightRepository {
	return &insightRepository{db: db}
}

// Upsert writes one snapshot; (remote_media_id, collected_at) is unique.
func (r *insightRepository) Upsert(ctx context.Context, in *models.Insight) error {
	query := `
		INSERT INTO insights (account_id, remote_media_id, impressions, reach, engagement, likes,
			comments, saves, shares, video_views, raw_data, collected_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (remote_media_id, collected_at) DO UPDATE SET
			impressions = EXCLUDED.impressions,
			reach = EXCLUDED.reach,
			engagement = EXCLUDED.engagement,
			likes = EXCLUDED.likes,
			comments = EXCLUDED.comments,
			saves = EXCLUDED.saves,
			shares = EXCLUDED.shares,
			video_views = EXCLUDED.video_views,
			raw_data = EXCLUDED.raw_data
		RETURNING id
	`

	var raw any
	if len(in.RawData) > 0 {
		raw = []byte(in.RawData)
	}

	return r.db.QueryRowContext(ctx, query,
		in.AccountID,
		in.RemoteMediaID,
		in.Impressions,
		in.Reach,
		in.Engagement,
		in.Likes,
		in.Comments,
		in.Saves,
		in.Shares,
		in.VideoViews,
		raw,
		in.CollectedAt,
	).Scan(&in.ID)
}
