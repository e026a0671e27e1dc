package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	config "github.com/maheshrc27/autopost/configs"
	"github.com/maheshrc27/autopost/internal/models"
	"github.com/maheshrc27/autopost/internal/transfer"
)

// Container status codes reported by the Graph API.
const (
	ContainerFinished   = "FINISHED"
	ContainerInProgress = "IN_PROGRESS"
	ContainerError      = "ERROR"
	ContainerExpired    = "EXPIRED"
	ContainerPublished  = "PUBLISHED"
)

// InsightMetrics is the metric set requested for every published media.
var InsightMetrics = []string{
	"impressions",
	"reach",
	"engagement",
	"likes",
	"comments",
	"saved",
	"shares",
	"video_views",
}

type ContainerRequest struct {
	IGUserID    string
	AccessToken string
	MediaURL    string
	PostType    string
	Caption     string
}

type InstagramService interface {
	CreateContainer(ctx context.Context, req ContainerRequest) (string, error)
	ContainerStatus(ctx context.Context, containerID, accessToken string) (*transfer.ContainerStatus, error)
	PublishContainer(ctx context.Context, igUserID, containerID, accessToken string) (string, error)
	MediaInsights(ctx context.Context, mediaID, accessToken string) (*transfer.MediaInsights, error)
}

type instagramService struct {
	baseURL string
	client  *http.Client
}

func NewInstagramService(cfg config.Instagram, client *http.Client) InstagramService {
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &instagramService{
		baseURL: strings.TrimRight(cfg.APIBase, "/") + "/" + cfg.APIVersion,
		client:  client,
	}
}

func (ig *instagramService) CreateContainer(ctx context.Context, req ContainerRequest) (string, error) {
	form := url.Values{}
	if models.IsVideoPostType(req.PostType) {
		form.Set("media_type", "REELS")
		form.Set("video_url", req.MediaURL)
	} else {
		form.Set("image_url", req.MediaURL)
	}
	form.Set("caption", req.Caption)
	form.Set("access_token", req.AccessToken)

	var result transfer.InstagramID
	endpoint := fmt.Sprintf("%s/%s/media", ig.baseURL, req.IGUserID)
	if err := ig.do(ctx, "create container", http.MethodPost, endpoint, form, &result); err != nil {
		return "", err
	}
	if result.ID == "" {
		return "", Transient("create container", errors.New("no container id returned"))
	}
	return result.ID, nil
}

func (ig *instagramService) ContainerStatus(ctx context.Context, containerID, accessToken string) (*transfer.ContainerStatus, error) {
	query := url.Values{}
	query.Set("fields", "id,status_code,status")
	query.Set("access_token", accessToken)

	var status transfer.ContainerStatus
	endpoint := fmt.Sprintf("%s/%s?%s", ig.baseURL, containerID, query.Encode())
	if err := ig.do(ctx, "container status", http.MethodGet, endpoint, nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

func (ig *instagramService) PublishContainer(ctx context.Context, igUserID, containerID, accessToken string) (string, error) {
	form := url.Values{}
	form.Set("creation_id", containerID)
	form.Set("access_token", accessToken)

	var result transfer.InstagramID
	endpoint := fmt.Sprintf("%s/%s/media_publish", ig.baseURL, igUserID)
	if err := ig.do(ctx, "publish container", http.MethodPost, endpoint, form, &result); err != nil {
		return "", err
	}
	if result.ID == "" {
		return "", Transient("publish container", errors.New("no media id returned"))
	}
	return result.ID, nil
}

func (ig *instagramService) MediaInsights(ctx context.Context, mediaID, accessToken string) (*transfer.MediaInsights, error) {
	query := url.Values{}
	query.Set("metric", strings.Join(InsightMetrics, ","))
	query.Set("access_token", accessToken)

	var raw json.RawMessage
	endpoint := fmt.Sprintf("%s/%s/insights?%s", ig.baseURL, mediaID, query.Encode())
	if err := ig.do(ctx, "media insights", http.MethodGet, endpoint, nil, &raw); err != nil {
		return nil, err
	}

	var resp transfer.InsightsResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, Transient("media insights", fmt.Errorf("decode response: %w", err))
	}

	insights := &transfer.MediaInsights{Raw: raw}
	for _, metric := range resp.Data {
		value, ok := metricValue(metric)
		if !ok {
			continue
		}
		switch metric.Name {
		case "impressions":
			insights.Impressions = value
		case "reach":
			insights.Reach = value
		case "engagement":
			insights.Engagement = value
		case "likes":
			insights.Likes = value
		case "comments":
			insights.Comments = value
		case "saved":
			insights.Saved = value
		case "shares":
			insights.Shares = value
		case "video_views":
			v := value
			insights.VideoViews = &v
		}
	}
	return insights, nil
}

// metricValue reads the first numeric value of a metric. Newer API versions
// report lifetime metrics under total_value.
func metricValue(metric transfer.InsightMetric) (int64, bool) {
	var candidate *transfer.InsightValue
	if len(metric.Values) > 0 {
		candidate = &metric.Values[0]
	} else if metric.TotalValue != nil {
		candidate = metric.TotalValue
	}
	if candidate == nil || len(candidate.Value) == 0 {
		return 0, false
	}

	var n int64
	if err := json.Unmarshal(candidate.Value, &n); err != nil {
		var f float64
		if err := json.Unmarshal(candidate.Value, &f); err != nil {
			return 0, false
		}
		n = int64(f)
	}
	return n, true
}

func (ig *instagramService) do(ctx context.Context, op, method, endpoint string, form url.Values, out any) error {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("%s: error creating request: %w", op, err)
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := ig.client.Do(req)
	if err != nil {
		return classifyNetwork(op, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return classifyNetwork(op, fmt.Errorf("error reading response body: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return classifyGraphError(op, resp.StatusCode, respBody)
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return Transient(op, fmt.Errorf("error parsing response: %w", err))
	}
	return nil
}

// Graph API error codes that signal throttling.
var rateLimitCodes = map[int]bool{4: true, 17: true, 32: true, 613: true}

const (
	graphCodeInvalidToken = 190
	graphCodePermission   = 10
)

func classifyGraphError(op string, status int, body []byte) error {
	var apiErr transfer.InstagramErrorResponse
	_ = json.Unmarshal(body, &apiErr)

	detail := apiErr.Error.Message
	if apiErr.Error.ErrorUserMsg != "" {
		detail = fmt.Sprintf("%s (%s)", detail, apiErr.Error.ErrorUserMsg)
	}
	if detail == "" {
		detail = strings.TrimSpace(string(body))
	}
	err := fmt.Errorf("graph api status %d code %d: %s", status, apiErr.Error.Code, detail)

	code := apiErr.Error.Code
	switch {
	case status == http.StatusTooManyRequests || rateLimitCodes[code]:
		return RateLimited(op, err)
	case code == graphCodeInvalidToken || code == graphCodePermission || status == http.StatusUnauthorized:
		return InvalidCredential(op, err)
	case apiErr.Error.IsTransient || status >= http.StatusInternalServerError:
		return Transient(op, err)
	case status == http.StatusRequestEntityTooLarge || status == http.StatusBadRequest:
		return MediaRejected(op, err)
	}
	return Transient(op, err)
}
