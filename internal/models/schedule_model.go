package models

import "time"

type Schedule struct {
	ID               int64     `db:"id" json:"id"`
	UserID           int64     `db:"user_id" json:"user_id"`
	Name             string    `db:"name" json:"name"`
	ThemeID          int64     `db:"theme_id" json:"theme_id"`
	TargetAccounts   []int64   `db:"target_accounts" json:"target_accounts"`
	PostType         string    `db:"post_type" json:"post_type"`
	Caption          string    `db:"caption" json:"caption"`
	Hashtags         []string  `db:"hashtags" json:"hashtags"`
	ScheduledTime    time.Time `db:"scheduled_time" json:"scheduled_time"`
	IsRecurring      bool      `db:"is_recurring" json:"is_recurring"`
	RecurringPattern string    `db:"recurring_pattern" json:"recurring_pattern,omitempty"`
	Status           string    `db:"status" json:"status"`
	LastError        string    `db:"last_error" json:"last_error,omitempty"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

const (
	ScheduleStatusPending    = "PENDING"
	ScheduleStatusProcessing = "PROCESSING"
	ScheduleStatusCompleted  = "COMPLETED"
	ScheduleStatusFailed     = "FAILED"
	ScheduleStatusCancelled  = "CANCELLED"
)
