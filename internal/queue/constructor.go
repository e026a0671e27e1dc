package queue

import (
	"fmt"
	"time"
)

// Job kinds. Each kind is served from its own asynq queue of the same name.
const (
	KindPublish  = "publish"
	KindInsights = "insights"
)

const (
	TaskTypePublishPost     = "publish:post"
	TaskTypeCollectInsights = "insights:collect"
)

type PublishPayload struct {
	PostID int64 `json:"post_id"`
}

type InsightTarget struct {
	PostID        int64  `json:"post_id"`
	RemoteMediaID string `json:"remote_media_id"`
}

type InsightsPayload struct {
	AccountID int64           `json:"account_id"`
	Targets   []InsightTarget `json:"targets"`
}

// PublishJobID keys publish jobs by post so a post is never enqueued twice.
func PublishJobID(postID int64) string {
	return fmt.Sprintf("publish:%d", postID)
}

var policies = map[string]Policy{
	KindPublish: {
		MaxAttempts: 3,
		Backoff:     Backoff{Initial: 5 * time.Second, Multiplier: 2, Max: 5 * time.Minute},
		Retention:   7 * 24 * time.Hour,
	},
	KindInsights: {
		MaxAttempts: 2,
		Backoff:     Backoff{Initial: 10 * time.Second, Multiplier: 2, Max: 5 * time.Minute},
		Retention:   7 * 24 * time.Hour,
	},
}

var taskTypes = map[string]string{
	KindPublish:  TaskTypePublishPost,
	KindInsights: TaskTypeCollectInsights,
}

// PolicyFor returns the retry policy of kind. Unknown kinds get a single
// attempt.
func PolicyFor(kind string) Policy {
	if p, ok := policies[kind]; ok {
		return p
	}
	return Policy{MaxAttempts: 1}
}

func TaskType(kind string) (string, error) {
	t, ok := taskTypes[kind]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return t, nil
}
