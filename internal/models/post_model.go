package models

import (
	"strings"
	"time"
)

type Post struct {
	ID            int64      `db:"id" json:"id"`
	ScheduleID    int64      `db:"schedule_id" json:"schedule_id"`
	AccountID     int64      `db:"account_id" json:"account_id"`
	MediaAssetID  int64      `db:"media_asset_id" json:"media_asset_id"`
	PostType      string     `db:"post_type" json:"post_type"`
	Caption       string     `db:"caption" json:"caption"`
	Hashtags      []string   `db:"hashtags" json:"hashtags"`
	Status        string     `db:"status" json:"status"`
	RemoteMediaID string     `db:"remote_media_id" json:"remote_media_id,omitempty"`
	ErrorMessage  string     `db:"error_message" json:"error_message,omitempty"`
	RetryCount    int        `db:"retry_count" json:"retry_count"`
	ScheduledFor  time.Time  `db:"scheduled_for" json:"scheduled_for"`
	PublishedAt   *time.Time `db:"published_at" json:"published_at,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

const (
	PostStatusQueued     = "QUEUED"
	PostStatusProcessing = "PROCESSING"
	PostStatusPublished  = "PUBLISHED"
	PostStatusFailed     = "FAILED"
)

const (
	PostTypeImage = "IMAGE"
	PostTypeVideo = "VIDEO"
	PostTypeReel  = "REEL"
)

// postTransitions lists, for every target status, the statuses a post may
// move from. PROCESSING -> QUEUED is a retry scheduled by the job queue;
// FAILED -> QUEUED only happens on a manual retry.
var postTransitions = map[string][]string{
	PostStatusProcessing: {PostStatusQueued, PostStatusProcessing},
	PostStatusPublished:  {PostStatusProcessing},
	PostStatusFailed:     {PostStatusProcessing},
	PostStatusQueued:     {PostStatusProcessing, PostStatusFailed},
}

// AllowedPostSources returns the statuses from which a post may move to status.
func AllowedPostSources(status string) []string {
	return postTransitions[status]
}

func CanTransitionPost(from, to string) bool {
	for _, s := range postTransitions[to] {
		if s == from {
			return true
		}
	}
	return false
}

// IsVideoMime reports whether the MIME type denotes video content.
func IsVideoMime(mimeType string) bool {
	return strings.HasPrefix(mimeType, "video/")
}

// IsVideoPostType reports whether the post publishes through a video container.
func IsVideoPostType(postType string) bool {
	return postType == PostTypeReel || postType == PostTypeVideo
}

// DetectPostType picks the publish kind from the asset MIME type. Plain
// VIDEO is deprecated on the platform, so every video goes out as a reel.
func DetectPostType(mimeType string) string {
	if IsVideoMime(mimeType) {
		return PostTypeReel
	}
	return PostTypeImage
}

// BuildCaption appends hashtags to the caption, separated by a blank line.
func BuildCaption(caption string, hashtags []string) string {
	if len(hashtags) == 0 {
		return caption
	}

	tags := make([]string, 0, len(hashtags))
	for _, tag := range hashtags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if !strings.HasPrefix(tag, "#") {
			tag = "#" + tag
		}
		tags = append(tags, tag)
	}
	if len(tags) == 0 {
		return caption
	}

	joined := strings.Join(tags, " ")
	if caption == "" {
		return joined
	}
	return caption + "\n\n" + joined
}
