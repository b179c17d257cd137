package imagesrc

import (
	"bytes"
	"context"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/faceapi/internal/resultcode"
)

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestResolveContent(t *testing.T) {
	n := NewNormalizer(nil)
	res, err := n.Resolve(context.Background(), Source{Content: testPNG(t, 40, 30)})
	require.NoError(t, err)

	assert.Equal(t, "image/png", res.ContentType)
	assert.Equal(t, 40, res.Image.Bounds().Dx())
	assert.Equal(t, 30, res.Image.Bounds().Dy())
}

func TestResolveKeepsDeclaredContentType(t *testing.T) {
	n := NewNormalizer(nil)
	res, err := n.Resolve(context.Background(), Source{Content: testPNG(t, 4, 4), ContentType: "image/x-custom"})
	require.NoError(t, err)
	assert.Equal(t, "image/x-custom", res.ContentType)
}

func TestResolveValidation(t *testing.T) {
	n := NewNormalizer(nil)

	_, err := n.Resolve(context.Background(), Source{})
	assert.Equal(t, resultcode.ValidationError, resultcode.Of(err))

	_, err = n.Resolve(context.Background(), Source{Content: []byte{1}, URL: "http://example.com/a.jpg"})
	assert.Equal(t, resultcode.ValidationError, resultcode.Of(err))

	_, err = n.Resolve(context.Background(), Source{URL: "http://example.com/a.jpg"})
	assert.Equal(t, resultcode.ValidationError, resultcode.Of(err))
}

func TestResolveUndecodable(t *testing.T) {
	n := NewNormalizer(nil)
	_, err := n.Resolve(context.Background(), Source{Content: []byte("definitely not an image")})
	assert.Equal(t, resultcode.DecodeError, resultcode.Of(err))
	assert.True(t, IsDecodeError(err))
}

// oversizedPNG rewrites the IHDR of a tiny PNG to claim w x h pixels.
func oversizedPNG(t *testing.T, w, h uint32) []byte {
	t.Helper()
	data := testPNG(t, 2, 2)
	// signature(8) length(4) "IHDR"(4) width(4) height(4) ... crc at 29.
	binary.BigEndian.PutUint32(data[16:20], w)
	binary.BigEndian.PutUint32(data[20:24], h)
	binary.BigEndian.PutUint32(data[29:33], crc32.ChecksumIEEE(data[12:29]))
	return data
}

func TestResolveRejectsOversizedImage(t *testing.T) {
	n := NewNormalizer(nil)
	start := time.Now()
	_, err := n.Resolve(context.Background(), Source{Content: oversizedPNG(t, 16000, 16000)})
	require.Error(t, err)
	assert.Equal(t, resultcode.ValidationError, resultcode.Of(err))
	assert.Less(t, time.Since(start), time.Second)
}

func TestResolveMaxPixels(t *testing.T) {
	n := NewNormalizer(nil)
	n.SetMaxPixels(40 * 30)
	_, err := n.Resolve(context.Background(), Source{Content: testPNG(t, 40, 30)})
	require.NoError(t, err)

	_, err = n.Resolve(context.Background(), Source{Content: testPNG(t, 41, 30)})
	assert.Equal(t, resultcode.ValidationError, resultcode.Of(err))

	n.SetMaxPixels(0)
	_, err = n.Resolve(context.Background(), Source{Content: testPNG(t, 41, 30)})
	assert.NoError(t, err)
}

func TestResolveResize(t *testing.T) {
	n := NewNormalizer(nil)

	tests := []struct {
		name         string
		resize       Resize
		wantW, wantH int
	}{
		{"both dimensions", Resize{Width: 20, Height: 10, Quality: 99}, 20, 10},
		{"width only keeps aspect", Resize{Width: 20}, 20, 15},
		{"height only keeps aspect", Resize{Height: 60}, 80, 60},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := tt.resize
			res, err := n.Resolve(context.Background(), Source{Content: testPNG(t, 40, 30), Resize: &r})
			require.NoError(t, err)
			assert.Equal(t, tt.wantW, res.Image.Bounds().Dx())
			assert.Equal(t, tt.wantH, res.Image.Bounds().Dy())
			assert.Equal(t, "image/jpeg", res.ContentType)
		})
	}
}

func TestResolveResizeRejectsBadQuality(t *testing.T) {
	n := NewNormalizer(nil)
	_, err := n.Resolve(context.Background(), Source{Content: testPNG(t, 4, 4), Resize: &Resize{Width: 2, Quality: 101}})
	assert.Equal(t, resultcode.ValidationError, resultcode.Of(err))
}

func TestHTTPFetcher(t *testing.T) {
	body := testPNG(t, 8, 8)
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.png" {
			http.NotFound(w, r)
			return
		}
		hits.Add(1)
		w.Header().Set("Content-Type", "image/png; charset=binary")
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	f := NewHTTPFetcher(time.Second, 1<<20, time.Minute)
	n := NewNormalizer(f)

	res, err := n.Resolve(context.Background(), Source{URL: srv.URL + "/face.png"})
	require.NoError(t, err)
	assert.Equal(t, "image/png", res.ContentType)

	_, err = n.Resolve(context.Background(), Source{URL: srv.URL + "/face.png"})
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load(), "second fetch should be served from cache")

	_, err = n.Resolve(context.Background(), Source{URL: srv.URL + "/missing.png"})
	assert.Equal(t, resultcode.DecodeError, resultcode.Of(err))

	_, err = n.Resolve(context.Background(), Source{URL: "ftp://example.com/face.png"})
	assert.Equal(t, resultcode.ValidationError, resultcode.Of(err))
}

func TestHTTPFetcherSizeLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(make([]byte, 2048))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(time.Second, 1024, time.Minute)
	_, _, err := f.Fetch(context.Background(), srv.URL+"/big.jpg")
	assert.Equal(t, resultcode.ValidationError, resultcode.Of(err))
}
