package photo

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	stddraw "image/draw"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"net/http"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/webp"
)

const (
	// MaxUploadBytes is the largest accepted upload (exclusive).
	MaxUploadBytes = 10 << 20
	// TargetSize is the edge of the stored square photo.
	TargetSize = 512
	// MaxSide and MaxPixels bound the decoded image, whatever its byte size.
	MaxSide   = 8192
	MaxPixels = 40_000_000
)

var (
	ErrEmpty       = errors.New("photo is empty")
	ErrTooLarge    = errors.New("photo must be smaller than 10MB")
	ErrUnsupported = errors.New("photo must be png, jpeg, gif, or webp")
	ErrUndecodable = errors.New("unable to decode photo")
	ErrDimensions  = errors.New("photo must be at most 8192 pixels per side and 40 megapixels")
)

// Process validates an uploaded image and returns a centre-cropped square
// PNG no larger than TargetSize on each side. maxBytes <= 0 uses
// MaxUploadBytes.
func Process(raw []byte, maxBytes int) ([]byte, string, error) {
	if maxBytes <= 0 {
		maxBytes = MaxUploadBytes
	}
	if len(raw) == 0 {
		return nil, "", ErrEmpty
	}
	if len(raw) >= maxBytes {
		return nil, "", ErrTooLarge
	}

	switch http.DetectContentType(raw) {
	case "image/png", "image/jpeg", "image/gif", "image/webp":
	default:
		return nil, "", ErrUnsupported
	}

	if err := checkDimensions(raw); err != nil {
		return nil, "", err
	}

	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		decoded, werr := webp.Decode(bytes.NewReader(raw))
		if werr != nil {
			return nil, "", ErrUndecodable
		}
		img = decoded
	}

	b := img.Bounds()
	side := min(b.Dx(), b.Dy())
	if side <= 0 {
		return nil, "", ErrUndecodable
	}

	crop := image.NewRGBA(image.Rect(0, 0, side, side))
	origin := image.Point{X: b.Min.X + (b.Dx()-side)/2, Y: b.Min.Y + (b.Dy()-side)/2}
	stddraw.Draw(crop, crop.Bounds(), img, origin, stddraw.Src)

	var out image.Image = crop
	if side > TargetSize {
		resized := image.NewRGBA(image.Rect(0, 0, TargetSize, TargetSize))
		xdraw.CatmullRom.Scale(resized, resized.Bounds(), crop, crop.Bounds(), xdraw.Over, nil)
		out = resized
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, out); err != nil {
		return nil, "", fmt.Errorf("encode photo: %w", err)
	}
	return buf.Bytes(), "image/png", nil
}

// checkDimensions reads only the image header so oversized images are
// rejected before any pixel buffer is allocated.
func checkDimensions(raw []byte) error {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		cfg, err = webp.DecodeConfig(bytes.NewReader(raw))
		if err != nil {
			return ErrUndecodable
		}
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return ErrUndecodable
	}
	if cfg.Width > MaxSide || cfg.Height > MaxSide || cfg.Width*cfg.Height > MaxPixels {
		return ErrDimensions
	}
	return nil
}
