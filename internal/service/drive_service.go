package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/maheshrc27/autopost/internal/models"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// DriveStore downloads asset bytes from Google Drive by file id.
type DriveStore struct {
	srv *drive.Service
}

func NewDriveStore(srv *drive.Service) *DriveStore {
	return &DriveStore{srv: srv}
}

// NewDriveService authenticates with a service account key file.
func NewDriveService(ctx context.Context, credentialsFile string) (*drive.Service, error) {
	data, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read google credentials: %w", err)
	}
	creds, err := google.CredentialsFromJSON(ctx, data, drive.DriveReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("parse google credentials: %w", err)
	}
	srv, err := drive.NewService(ctx, option.WithCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}
	return srv, nil
}

func (d *DriveStore) Fetch(ctx context.Context, asset *models.MediaAsset) ([]byte, error) {
	resp, err := d.srv.Files.Get(asset.SourceRef).SupportsAllDrives(true).Context(ctx).Download()
	if err != nil {
		var gErr *googleapi.Error
		if errors.As(err, &gErr) && (gErr.Code == http.StatusNotFound || gErr.Code == http.StatusForbidden) {
			return nil, MediaRejected("fetch drive", err)
		}
		return nil, fmt.Errorf("fetch drive: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("fetch drive: read body: %w", err)
	}
	return data, nil
}
