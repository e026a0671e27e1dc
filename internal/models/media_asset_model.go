package models

import "time"

type MediaAsset struct {
	ID         int64      `db:"id" json:"id"`
	ThemeID    int64      `db:"theme_id" json:"theme_id"`
	SourceKind string     `db:"source_kind" json:"source_kind"`
	SourceRef  string     `db:"source_ref" json:"source_ref"`
	FileName   string     `db:"file_name" json:"file_name"`
	MimeType   string     `db:"mime_type" json:"mime_type"`
	FileSize   int64      `db:"file_size" json:"file_size"`
	IsUsed     bool       `db:"is_used" json:"is_used"`
	LastUsedAt *time.Time `db:"last_used_at" json:"last_used_at,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
}

const (
	SourceKindDrive = "drive"
	SourceKindLocal = "local"
)
