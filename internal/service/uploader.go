package service

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var ErrNoUploader = errors.New("no upload provider configured")

type UploadRequest struct {
	Body     []byte
	MimeType string
	// Hash identifies the source content and names the stored object.
	Hash string
	Ext  string
}

// Uploader stores media on a public host.
type Uploader interface {
	Name() string
	// Lookup searches the provider for an object previously stored under
	// hash. Providers without search support return false.
	Lookup(ctx context.Context, hash string) (string, bool, error)
	Upload(ctx context.Context, req UploadRequest) (string, error)
}

// uploadWithTimeout runs one upload under a single deadline regardless of
// how the provider transfers the bytes.
func uploadWithTimeout(ctx context.Context, u Uploader, req UploadRequest, timeout time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		url string
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		url, err := u.Upload(ctx, req)
		done <- outcome{url: url, err: err}
	}()

	select {
	case res := <-done:
		return res.url, res.err
	case <-ctx.Done():
		return "", fmt.Errorf("%s upload: %w", u.Name(), ctx.Err())
	}
}
