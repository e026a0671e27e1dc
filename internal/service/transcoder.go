package service

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"go.uber.org/zap"
)

// Transcoder re-encodes a video into the platform's reel profile.
type Transcoder interface {
	Transcode(ctx context.Context, src []byte) ([]byte, error)
}

type ffmpegTranscoder struct {
	binary  string
	tempDir string
	logger  *zap.Logger
}

func NewFFmpegTranscoder(binary, tempDir string, logger *zap.Logger) Transcoder {
	return &ffmpegTranscoder{binary: binary, tempDir: tempDir, logger: logger}
}

// reelArgs targets 1080x1920 H.264 main at 30fps with stereo AAC, capped at
// 60 seconds and with the moov atom up front for progressive fetch.
func reelArgs(in, out string) []string {
	return []string{
		"-y",
		"-i", in,
		"-t", "60",
		"-vf", "scale=1080:1920:force_original_aspect_ratio=decrease,pad=1080:1920:(ow-iw)/2:(oh-ih)/2,setsar=1",
		"-r", "30",
		"-c:v", "libx264",
		"-profile:v", "main",
		"-level", "4.0",
		"-pix_fmt", "yuv420p",
		"-b:v", "5000k",
		"-maxrate", "5000k",
		"-bufsize", "10000k",
		"-c:a", "aac",
		"-b:a", "128k",
		"-ar", "44100",
		"-ac", "2",
		"-movflags", "+faststart",
		out,
	}
}

func (t *ffmpegTranscoder) Transcode(ctx context.Context, src []byte) ([]byte, error) {
	id, err := gonanoid.New()
	if err != nil {
		return nil, fmt.Errorf("transcode: %w", err)
	}
	in := filepath.Join(t.tempDir, "in_"+id)
	out := filepath.Join(t.tempDir, "out_"+id+".mp4")
	defer os.Remove(in)
	defer os.Remove(out)

	if err := os.WriteFile(in, src, 0o600); err != nil {
		return nil, fmt.Errorf("transcode: write input: %w", err)
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, t.binary, reelArgs(in, out)...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, Transient("transcode", ctx.Err())
		}
		t.logger.Warn("ffmpeg failed", zap.String("stderr", tail(stderr.String(), 2048)), zap.Error(err))
		return nil, MediaRejected("transcode", fmt.Errorf("ffmpeg: %w", err))
	}

	data, err := os.ReadFile(out)
	if err != nil {
		return nil, fmt.Errorf("transcode: read output: %w", err)
	}
	return data, nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
