package models

import (
	"time"
)

type SocialAccount struct {
	ID            int64      `db:"id" json:"id"`
	UserID        int64      `db:"user_id" json:"user_id"`
	RemoteUserID  string     `db:"remote_user_id" json:"remote_user_id"`
	Username      string     `db:"username" json:"username"`
	AccessToken   string     `db:"access_token" json:"-"`
	IsActive      bool       `db:"is_active" json:"is_active"`
	LastSyncAt    *time.Time `db:"last_sync_at" json:"last_sync_at,omitempty"`
	DeactivatedAt *time.Time `db:"deactivated_at" json:"deactivated_at,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}
