package service

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"
	"time"

	"github.com/maheshrc27/autopost/internal/models"
	"github.com/maheshrc27/autopost/internal/transfer"
)

type fakeAccountRepo struct {
	mu          sync.Mutex
	accounts    map[int64]*models.SocialAccount
	deactivated []int64
}

func newFakeAccountRepo(accounts ...*models.SocialAccount) *fakeAccountRepo {
	r := &fakeAccountRepo{accounts: map[int64]*models.SocialAccount{}}
	for _, a := range accounts {
		r.accounts[a.ID] = a
	}
	return r
}

func (r *fakeAccountRepo) GetByID(ctx context.Context, id int64) (*models.SocialAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.accounts[id], nil
}

func (r *fakeAccountRepo) ListActive(ctx context.Context) ([]*models.SocialAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.SocialAccount
	for _, a := range r.accounts {
		if a.IsActive {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *fakeAccountRepo) Deactivate(ctx context.Context, id int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deactivated = append(r.deactivated, id)
	if a, ok := r.accounts[id]; ok && a.IsActive {
		a.IsActive = false
		return true, nil
	}
	return false, nil
}

func (r *fakeAccountRepo) TouchLastSync(ctx context.Context, id int64, at time.Time) error {
	return nil
}

type fakeInstagram struct {
	mu          sync.Mutex
	containers  []ContainerRequest
	statuses    []string
	statusCalls int
	publishErr  error
	createErr   error
	published   []string
}

func (f *fakeInstagram) CreateContainer(ctx context.Context, req ContainerRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	f.containers = append(f.containers, req)
	return "container-1", nil
}

// ContainerStatus replays statuses and repeats the last one once exhausted.
func (f *fakeInstagram) ContainerStatus(ctx context.Context, containerID, accessToken string) (*transfer.ContainerStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	code := ContainerInProgress
	if len(f.statuses) > 0 {
		i := min(f.statusCalls, len(f.statuses)-1)
		code = f.statuses[i]
	}
	f.statusCalls++
	return &transfer.ContainerStatus{ID: containerID, StatusCode: code}, nil
}

func (f *fakeInstagram) PublishContainer(ctx context.Context, igUserID, containerID, accessToken string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return "", f.publishErr
	}
	f.published = append(f.published, containerID)
	return "media-" + containerID, nil
}

func (f *fakeInstagram) MediaInsights(ctx context.Context, mediaID, accessToken string) (*transfer.MediaInsights, error) {
	return &transfer.MediaInsights{}, nil
}

type recordingSleeper struct {
	mu    sync.Mutex
	calls []time.Duration
}

func (s *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, d)
	return ctx.Err()
}

// fakeUploader stores objects in memory keyed by hash.
type fakeUploader struct {
	mu      sync.Mutex
	name    string
	objects map[string]string
	uploads int
	err     error
}

func newFakeUploader(name string) *fakeUploader {
	return &fakeUploader{name: name, objects: map[string]string{}}
}

func (u *fakeUploader) Name() string { return u.name }

func (u *fakeUploader) Lookup(ctx context.Context, hash string) (string, bool, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	url, ok := u.objects[hash]
	return url, ok, nil
}

func (u *fakeUploader) Upload(ctx context.Context, req UploadRequest) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.uploads++
	if u.err != nil {
		return "", u.err
	}
	url := "https://" + u.name + ".example.com/media/" + req.Hash + "." + req.Ext
	u.objects[req.Hash] = url
	return url, nil
}

func (u *fakeUploader) uploadCount() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.uploads
}

var errUploadDown = errors.New("provider unavailable")

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}
