package integrations

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"

	"github.com/disintegration/imaging"
)

const (
	BannerWidth     = 1200
	BannerHeight    = 630
	ThumbnailWidth  = 400
	ThumbnailHeight = 210
	MaxBannerBytes  = 5 << 20
)

var ErrUnsupportedImage = errors.New("unsupported image type")

var allowedBannerTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
}

// ProcessedBanner holds JPEG encodings of an uploaded banner.
type ProcessedBanner struct {
	Banner    []byte
	Thumbnail []byte
	Width     int
	Height    int
}

// ProcessBanner sniffs, decodes and resizes an uploaded banner: the cover is
// fitted inside 1200x630 and the thumbnail is cropped to fill 400x210.
func ProcessBanner(r io.Reader) (ProcessedBanner, error) {
	var out ProcessedBanner
	data, err := io.ReadAll(io.LimitReader(r, MaxBannerBytes+1))
	if err != nil {
		return out, err
	}
	if len(data) > MaxBannerBytes {
		return out, fmt.Errorf("banner exceeds %d bytes", MaxBannerBytes)
	}
	if !allowedBannerTypes[http.DetectContentType(data)] {
		return out, ErrUnsupportedImage
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return out, fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}

	cover := imaging.Fit(img, BannerWidth, BannerHeight, imaging.Lanczos)
	out.Banner, err = encodeJPEG(cover)
	if err != nil {
		return out, err
	}
	thumb := imaging.Fill(img, ThumbnailWidth, ThumbnailHeight, imaging.Center, imaging.Lanczos)
	out.Thumbnail, err = encodeJPEG(thumb)
	if err != nil {
		return out, err
	}
	bounds := cover.Bounds()
	out.Width, out.Height = bounds.Dx(), bounds.Dy()
	return out, nil
}

func encodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
