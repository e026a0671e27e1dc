package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/h2non/filetype"
	"github.com/maheshrc27/autopost/internal/models"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var (
	ErrEmptyMedia       = errors.New("media is empty")
	ErrUnsupportedMedia = errors.New("unsupported media type")
	ErrVideoTooLarge    = errors.New("video exceeds maximum size")
)

var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/bmp":  true,
	"image/tiff": true,
	"image/webp": true,
	// HEIF/HEIC stays rejected: there is no pure-Go decoder to normalize it.
}

type MediaConfig struct {
	ChunkThreshold int
	ChunkedTimeout time.Duration
	StreamTimeout  time.Duration
	ProbeTimeout   time.Duration
	ProbeSettle    time.Duration
	MaxVideoBytes  int
	// PrepareTimeout bounds the shared work for one content hash, which
	// outlives any single caller.
	PrepareTimeout time.Duration
}

func DefaultMediaConfig() MediaConfig {
	return MediaConfig{
		ChunkThreshold: ChunkThreshold,
		ChunkedTimeout: 10 * time.Minute,
		StreamTimeout:  5 * time.Minute,
		ProbeTimeout:   5 * time.Second,
		ProbeSettle:    time.Second,
		MaxVideoBytes:  100 * 1024 * 1024,
		PrepareTimeout: 15 * time.Minute,
	}
}

type PreparedMedia struct {
	URL      string
	MimeType string
	Hash     string
	// Reused is set when the content was already hosted.
	Reused bool
}

// MediaPipeline turns source bytes into a publicly fetchable URL.
type MediaPipeline interface {
	Prepare(ctx context.Context, src []byte, mimeType string) (*PreparedMedia, error)
}

type mediaPipeline struct {
	uploaders  []Uploader
	index      HashIndex
	transcoder Transcoder
	normalizer ImageNormalizer
	probe      *http.Client
	sleep      Sleeper
	cfg        MediaConfig
	logger     *zap.Logger
	inflight   singleflight.Group
}

type MediaPipelineDeps struct {
	// Uploaders are tried in order.
	Uploaders  []Uploader
	Index      HashIndex
	Transcoder Transcoder
	Normalizer ImageNormalizer
	Probe      *http.Client
	Sleep      Sleeper
}

func NewMediaPipeline(deps MediaPipelineDeps, cfg MediaConfig, logger *zap.Logger) MediaPipeline {
	if deps.Probe == nil {
		deps.Probe = &http.Client{}
	}
	if deps.Sleep == nil {
		deps.Sleep = ContextSleep
	}
	if deps.Normalizer == nil {
		deps.Normalizer = NewImageNormalizer()
	}
	return &mediaPipeline{
		uploaders:  deps.Uploaders,
		index:      deps.Index,
		transcoder: deps.Transcoder,
		normalizer: deps.Normalizer,
		probe:      deps.Probe,
		sleep:      deps.Sleep,
		cfg:        cfg,
		logger:     logger,
	}
}

func (m *mediaPipeline) Prepare(ctx context.Context, src []byte, mimeType string) (*PreparedMedia, error) {
	if len(src) == 0 {
		return nil, MediaRejected("prepare media", ErrEmptyMedia)
	}

	mimeType, err := sniffMime(src, mimeType)
	if err != nil {
		return nil, err
	}

	sum := sha256.Sum256(src)
	hash := hex.EncodeToString(sum[:])

	// Concurrent jobs fanned out from one asset share a single upload. The
	// shared call is detached from the caller that started it so one
	// cancelled job does not fail the others waiting on the same hash.
	ch := m.inflight.DoChan(hash, func() (any, error) {
		shared, cancel := m.sharedContext(ctx)
		defer cancel()
		return m.prepare(shared, src, mimeType, hash)
	})

	select {
	case <-ctx.Done():
		return nil, Transient("prepare media", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		prepared := *res.Val.(*PreparedMedia)
		return &prepared, nil
	}
}

func (m *mediaPipeline) sharedContext(ctx context.Context) (context.Context, context.CancelFunc) {
	detached := context.WithoutCancel(ctx)
	if m.cfg.PrepareTimeout > 0 {
		return context.WithTimeout(detached, m.cfg.PrepareTimeout)
	}
	return context.WithCancel(detached)
}

func (m *mediaPipeline) prepare(ctx context.Context, src []byte, mimeType, hash string) (*PreparedMedia, error) {
	log := m.logger.With(zap.String("hash", hash), zap.String("mime_type", mimeType))

	if url, ok := m.findExisting(ctx, log, hash); ok {
		log.Info("reusing hosted media", zap.String("url", url))
		return &PreparedMedia{URL: url, MimeType: mimeType, Hash: hash, Reused: true}, nil
	}

	req, err := m.transform(ctx, src, mimeType, hash)
	if err != nil {
		return nil, err
	}

	url, err := m.upload(ctx, log, req)
	if err != nil {
		return nil, err
	}

	if m.index != nil {
		if err := m.index.Put(ctx, hash, url); err != nil {
			log.Warn("failed to record media hash", zap.Error(err))
		}
	}

	m.awaitReadable(ctx, log, url)

	return &PreparedMedia{URL: url, MimeType: req.MimeType, Hash: hash}, nil
}

func sniffMime(src []byte, declared string) (string, error) {
	mimeType := declared
	if kind, err := filetype.Match(src); err == nil && kind != filetype.Unknown {
		mimeType = kind.MIME.Value
	}

	switch {
	case models.IsVideoMime(mimeType):
		return mimeType, nil
	case allowedImageTypes[mimeType]:
		return mimeType, nil
	}
	return "", MediaRejected("prepare media", fmt.Errorf("%w: %q", ErrUnsupportedMedia, mimeType))
}

func (m *mediaPipeline) findExisting(ctx context.Context, log *zap.Logger, hash string) (string, bool) {
	if m.index != nil {
		url, ok, err := m.index.Get(ctx, hash)
		if err != nil {
			log.Warn("hash index lookup failed", zap.Error(err))
		} else if ok {
			return url, true
		}
	}

	for _, u := range m.uploaders {
		url, ok, err := u.Lookup(ctx, hash)
		if err != nil {
			log.Warn("provider lookup failed", zap.String("provider", u.Name()), zap.Error(err))
			continue
		}
		if ok {
			if m.index != nil {
				if err := m.index.Put(ctx, hash, url); err != nil {
					log.Warn("failed to record media hash", zap.Error(err))
				}
			}
			return url, true
		}
	}
	return "", false
}

func (m *mediaPipeline) transform(ctx context.Context, src []byte, mimeType, hash string) (UploadRequest, error) {
	if models.IsVideoMime(mimeType) {
		if len(src) > m.cfg.MaxVideoBytes {
			return UploadRequest{}, MediaRejected("prepare media",
				fmt.Errorf("%w: %d bytes", ErrVideoTooLarge, len(src)))
		}
		if m.transcoder == nil {
			return UploadRequest{}, MediaRejected("prepare media", errors.New("video transcoding is not configured"))
		}
		out, err := m.transcoder.Transcode(ctx, src)
		if err != nil {
			return UploadRequest{}, err
		}
		return UploadRequest{Body: out, MimeType: "video/mp4", Hash: hash, Ext: "mp4"}, nil
	}

	out, err := m.normalizer.Normalize(src)
	if err != nil {
		return UploadRequest{}, err
	}
	return UploadRequest{Body: out, MimeType: "image/jpeg", Hash: hash, Ext: "jpg"}, nil
}

func (m *mediaPipeline) upload(ctx context.Context, log *zap.Logger, req UploadRequest) (string, error) {
	if len(m.uploaders) == 0 {
		return "", Transient("upload media", ErrNoUploader)
	}

	timeout := m.cfg.StreamTimeout
	if len(req.Body) > m.cfg.ChunkThreshold {
		timeout = m.cfg.ChunkedTimeout
	}

	var errs []error
	for _, u := range m.uploaders {
		url, err := uploadWithTimeout(ctx, u, req, timeout)
		if err == nil {
			log.Info("uploaded media", zap.String("provider", u.Name()), zap.Int("bytes", len(req.Body)))
			return url, nil
		}
		log.Warn("upload provider failed", zap.String("provider", u.Name()), zap.Error(err))
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
	}
	return "", Transient("upload media", errors.Join(errs...))
}

// awaitReadable checks that the CDN serves the object before the platform is
// asked to fetch it. Failures only delay the caller.
func (m *mediaPipeline) awaitReadable(ctx context.Context, log *zap.Logger, url string) {
	probeCtx, cancel := context.WithTimeout(ctx, m.cfg.ProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodHead, url, nil)
	if err == nil {
		var resp *http.Response
		resp, err = m.probe.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode >= http.StatusBadRequest {
				err = fmt.Errorf("status %d", resp.StatusCode)
			}
		}
	}
	if err != nil {
		log.Warn("media not yet readable", zap.String("url", url), zap.Error(err))
	}

	if err := m.sleep(ctx, m.cfg.ProbeSettle); err != nil {
		log.Debug("settle interrupted", zap.Error(err))
	}
}
