package models

import (
	"encoding/json"
	"time"
)

type Insight struct {
	ID            int64           `db:"id" json:"id"`
	AccountID     int64           `db:"account_id" json:"account_id"`
	RemoteMediaID string          `db:"remote_media_id" json:"remote_media_id"`
	Impressions   int64           `db:"impressions" json:"impressions"`
	Reach         int64           `db:"reach" json:"reach"`
	Engagement    int64           `db:"engagement" json:"engagement"`
	Likes         int64           `db:"likes" json:"likes"`
	Comments      int64           `db:"comments" json:"comments"`
	Saves         int64           `db:"saves" json:"saves"`
	Shares        int64           `db:"shares" json:"shares"`
	VideoViews    *int64          `db:"video_views" json:"video_views,omitempty"`
	RawData       json.RawMessage `db:"raw_data" json:"raw_data,omitempty"`
	CollectedAt   time.Time       `db:"collected_at" json:"collected_at"`
}
