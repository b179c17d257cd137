// Package imagesrc turns the polymorphic image input accepted by the API
// (inline bytes, a URL, an optional resize directive) into decoded pixels.
package imagesrc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	"github.com/gabriel-vasile/mimetype"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/your-org/faceapi/internal/resultcode"
)

const defaultJPEGQuality = 90

// DefaultMaxPixels bounds width*height of a decoded image.
const DefaultMaxPixels = 50_000_000

// Resize is the resize directive applied before detection. A zero Width or
// Height keeps the aspect ratio of the other dimension.
type Resize struct {
	Width   int
	Height  int
	Quality int
}

// Source is an unresolved image: exactly one of Content or URL is set.
type Source struct {
	Content     []byte
	URL         string
	ContentType string
	Resize      *Resize
}

// Resolved is a decoded image together with the bytes it was decoded from.
type Resolved struct {
	Data        []byte
	ContentType string
	Image       image.Image
}

// Fetcher downloads remote images.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, string, error)
}

type Normalizer struct {
	fetcher   Fetcher
	maxPixels int64
}

// NewNormalizer returns a Normalizer. fetcher may be nil, in which case URL
// sources are rejected.
func NewNormalizer(fetcher Fetcher) *Normalizer {
	return &Normalizer{fetcher: fetcher, maxPixels: DefaultMaxPixels}
}

// SetMaxPixels changes the decode budget. Non-positive values restore the default.
func (n *Normalizer) SetMaxPixels(limit int64) {
	if limit <= 0 {
		limit = DefaultMaxPixels
	}
	n.maxPixels = limit
}

// Resolve fetches, decodes and resizes src.
func (n *Normalizer) Resolve(ctx context.Context, src Source) (*Resolved, error) {
	hasContent := len(src.Content) > 0
	hasURL := src.URL != ""
	switch {
	case hasContent && hasURL:
		return nil, resultcode.Validationf("image must carry either content or url, not both")
	case !hasContent && !hasURL:
		return nil, resultcode.Validationf("image content or url is required")
	}

	data := src.Content
	contentType := src.ContentType
	if hasURL {
		if n.fetcher == nil {
			return nil, resultcode.Validationf("image urls are not supported")
		}
		fetched, fetchedType, err := n.fetcher.Fetch(ctx, src.URL)
		if err != nil {
			return nil, err
		}
		data = fetched
		if contentType == "" {
			contentType = fetchedType
		}
	}

	img, err := Decode(data, n.maxPixels)
	if err != nil {
		return nil, err
	}
	if contentType == "" {
		contentType = DetectContentType(data)
	}

	res := &Resolved{Data: data, ContentType: contentType, Image: img}
	if src.Resize != nil {
		if err := applyResize(res, *src.Resize); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// Decode decodes any registered image format. The header is checked against
// maxPixels before any pixel buffer is allocated; maxPixels <= 0 disables the check.
func Decode(data []byte, maxPixels int64) (image.Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty image", resultcode.ErrDecode)
	}
	if maxPixels > 0 {
		cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", resultcode.ErrDecode, err)
		}
		if cfg.Width <= 0 || cfg.Height <= 0 {
			return nil, fmt.Errorf("%w: empty bounds", resultcode.ErrDecode)
		}
		if int64(cfg.Width)*int64(cfg.Height) > maxPixels {
			return nil, resultcode.Validationf("image is %dx%d, exceeds %d pixels", cfg.Width, cfg.Height, maxPixels)
		}
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", resultcode.ErrDecode, err)
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, fmt.Errorf("%w: empty bounds", resultcode.ErrDecode)
	}
	return img, nil
}

// DetectContentType sniffs the MIME type from the leading bytes.
func DetectContentType(data []byte) string {
	return mimetype.Detect(data).String()
}

// EncodeJPEG encodes img at the given quality (1..100; 0 selects the default).
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	if quality <= 0 || quality > 100 {
		quality = defaultJPEGQuality
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// Scale resizes img to exactly w x h with Catmull-Rom resampling.
func Scale(img image.Image, w, h int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)
	return dst
}

func applyResize(res *Resolved, r Resize) error {
	if r.Width < 0 || r.Height < 0 {
		return resultcode.Validationf("resize dimensions must be positive")
	}
	if r.Quality < 0 || r.Quality > 100 {
		return resultcode.Validationf("resize quality must be within [1, 100]")
	}
	if r.Width == 0 && r.Height == 0 {
		return nil
	}

	b := res.Image.Bounds()
	w, h := r.Width, r.Height
	if w == 0 {
		w = max(1, b.Dx()*h/b.Dy())
	}
	if h == 0 {
		h = max(1, b.Dy()*w/b.Dx())
	}

	scaled := Scale(res.Image, w, h)
	data, err := EncodeJPEG(scaled, r.Quality)
	if err != nil {
		return err
	}

	res.Image = scaled
	res.Data = data
	res.ContentType = "image/jpeg"
	return nil
}

// IsDecodeError reports whether err means the input could not be turned into pixels.
func IsDecodeError(err error) bool {
	return errors.Is(err, resultcode.ErrDecode)
}
