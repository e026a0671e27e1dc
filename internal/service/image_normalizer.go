package service

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	// Registers the WebP decoder with image.Decode, which imaging uses.
	_ "golang.org/x/image/webp"
)

const (
	minAspectRatio = 0.8
	maxAspectRatio = 1.91
	minImageSide   = 320
	jpegQuality    = 90
)

// ImageNormalizer brings an image inside the feed's accepted aspect ratio
// range and minimum resolution and re-encodes it as JPEG.
type ImageNormalizer interface {
	Normalize(src []byte) ([]byte, error)
}

type imagingNormalizer struct{}

func NewImageNormalizer() ImageNormalizer {
	return imagingNormalizer{}
}

func (imagingNormalizer) Normalize(src []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(src), imaging.AutoOrientation(true))
	if err != nil {
		return nil, MediaRejected("normalize image", fmt.Errorf("decode: %w", err))
	}

	img = fitImage(img)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(jpegQuality)); err != nil {
		return nil, fmt.Errorf("normalize image: encode: %w", err)
	}
	return buf.Bytes(), nil
}

// fitImage center-crops to the nearest accepted aspect ratio and then
// upscales so the shorter side reaches minImageSide.
func fitImage(img image.Image) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return img
	}

	ratio := float64(w) / float64(h)
	switch {
	case ratio < minAspectRatio:
		h = int(float64(w) / minAspectRatio)
		img = imaging.CropCenter(img, w, h)
	case ratio > maxAspectRatio:
		w = int(float64(h) * maxAspectRatio)
		img = imaging.CropCenter(img, w, h)
	}

	short := min(w, h)
	if short < minImageSide {
		scale := float64(minImageSide) / float64(short)
		w = int(float64(w)*scale + 0.5)
		h = int(float64(h)*scale + 0.5)
		img = imaging.Resize(img, w, h, imaging.Lanczos)
	}
	return img
}
