package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	cfg "github.com/maheshrc27/autopost/configs"
	"github.com/maheshrc27/autopost/internal/models"
	"github.com/maheshrc27/autopost/internal/transfer"
)

// FallbackUploader posts media to an anonymous image host when the primary
// bucket is unavailable.
type FallbackUploader struct {
	endpoint string
	clientID string
	client   *http.Client
}

func NewFallbackUploader(fb cfg.Fallback, client *http.Client) *FallbackUploader {
	if client == nil {
		client = &http.Client{}
	}
	return &FallbackUploader{endpoint: fb.UploadURL, clientID: fb.ClientID, client: client}
}

func (f *FallbackUploader) Name() string { return "fallback" }

// Lookup always misses: the host has no search by content.
func (f *FallbackUploader) Lookup(ctx context.Context, hash string) (string, bool, error) {
	return "", false, nil
}

func (f *FallbackUploader) Upload(ctx context.Context, req UploadRequest) (string, error) {
	field := "image"
	if models.IsVideoMime(req.MimeType) {
		field = "video"
	}
	payload, err := json.Marshal(map[string]string{
		field:   base64.StdEncoding.EncodeToString(req.Body),
		"type":  "base64",
		"name":  req.Hash + "." + req.Ext,
		"title": req.Hash,
	})
	if err != nil {
		return "", fmt.Errorf("error marshalling payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, f.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("error creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if f.clientID != "" {
		httpReq.Header.Set("Authorization", "Client-ID "+f.clientID)
	}

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("fallback upload: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("error reading response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fallback upload: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var result transfer.FallbackUploadResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("error parsing response: %w", err)
	}
	if !result.Success || result.Data.Link == "" {
		if result.Data.Error != "" {
			return "", fmt.Errorf("fallback upload: %s", result.Data.Error)
		}
		return "", errors.New("fallback upload: no link returned")
	}
	return result.Data.Link, nil
}
