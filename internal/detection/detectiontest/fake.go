// Package detectiontest provides a deterministic oracle and synthetic images
// for tests. Every solid non-white block drawn on a white canvas is one face;
// its embedding is derived from the block color, so identical colors yield
// identical embeddings. Colors are quantized to multiples of 32 so blocks
// survive lossy re-encoding.
package detectiontest

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	"math/rand"
	"sort"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/your-org/faceapi/internal/detection"
)

const Dims = 512

// Block is a colored square standing in for a face.
type Block struct {
	Rect  image.Rectangle
	Color color.RGBA
}

var (
	Red    = color.RGBA{R: 192, G: 32, B: 32, A: 255}
	Green  = color.RGBA{R: 32, G: 160, B: 32, A: 255}
	Blue   = color.RGBA{R: 32, G: 32, B: 192, A: 255}
	Gray   = color.RGBA{R: 96, G: 96, B: 96, A: 255}
	Yellow = color.RGBA{R: 192, G: 192, B: 32, A: 255}
	Purple = color.RGBA{R: 128, G: 32, B: 160, A: 255}
)

// Image draws blocks onto a white w x h canvas.
func Image(w, h int, blocks ...Block) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	for _, b := range blocks {
		draw.Draw(img, b.Rect, image.NewUniform(b.Color), image.Point{}, draw.Src)
	}
	return img
}

// PNG encodes Image(w, h, blocks...).
func PNG(t testing.TB, w, h int, blocks ...Block) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, Image(w, h, blocks...)))
	return buf.Bytes()
}

// Portrait is a single centered face of color c on a 100x100 canvas.
func Portrait(t testing.TB, c color.RGBA) []byte {
	return PNG(t, 100, 100, Block{Rect: image.Rect(30, 30, 70, 70), Color: c})
}

// Oracle is a fake detection.Oracle.
type Oracle struct {
	// Err, when set, is returned from every call.
	Err error
	// Delay blocks each call until it elapses or the context ends.
	Delay time.Duration
	// DimsByColor overrides the embedding length per block color.
	DimsByColor map[color.RGBA]int

	calls atomic.Int32
}

func (o *Oracle) Version() string { return "fake-v1" }

// Calls returns how many times Faces ran.
func (o *Oracle) Calls() int { return int(o.calls.Load()) }

func (o *Oracle) Faces(ctx context.Context, img image.Image, opts detection.OracleOptions) ([]detection.Face, error) {
	o.calls.Add(1)
	if o.Delay > 0 {
		select {
		case <-time.After(o.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if o.Err != nil {
		return nil, o.Err
	}

	boxes := map[color.RGBA]image.Rectangle{}
	counts := map[color.RGBA]int{}
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := quantize(img.At(x, y))
			if c.R >= 224 && c.G >= 224 && c.B >= 224 {
				continue
			}
			px := image.Rect(x, y, x+1, y+1)
			if r, ok := boxes[c]; ok {
				boxes[c] = r.Union(px)
			} else {
				boxes[c] = px
			}
			counts[c]++
		}
	}

	faces := make([]detection.Face, 0, len(boxes))
	for c, r := range boxes {
		// Anti-aliased block edges form sparse rings of stray colors.
		if r.Dx() < 4 || r.Dy() < 4 || counts[c]*2 < r.Dx()*r.Dy() {
			continue
		}
		dims := Dims
		if n, ok := o.DimsByColor[c]; ok {
			dims = n
		}
		f := detection.Face{
			Box:        [4]float32{float32(r.Min.X), float32(r.Min.Y), float32(r.Max.X), float32(r.Max.Y)},
			Confidence: 0.99,
			Landmarks:  landmarks(r),
			Embedding:  Embedding(c, dims),
		}
		if opts.Attributes {
			f.Attributes = &detection.FaceAttributes{Age: 20 + float32(c.R%40), Gender: "male", GenderConfidence: 0.9}
		}
		faces = append(faces, f)
	}
	sort.Slice(faces, func(i, j int) bool { return faces[i].Box[0] < faces[j].Box[0] })
	return faces, nil
}

// Embedding is the unit vector the fake oracle assigns to color c.
func Embedding(c color.RGBA, dims int) []float32 {
	rng := rand.New(rand.NewSource(int64(c.R)<<16 | int64(c.G)<<8 | int64(c.B)))
	v := make([]float32, dims)
	var norm float64
	for i := range v {
		x := rng.NormFloat64()
		v[i] = float32(x)
		norm += x * x
	}
	norm = math.Sqrt(norm)
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
	return v
}

func quantize(c color.Color) color.RGBA {
	r, g, b, _ := c.RGBA()
	q := func(v uint32) uint8 {
		return uint8(min(255, math.Round(float64(v>>8)/32)*32))
	}
	return color.RGBA{R: q(r), G: q(g), B: q(b), A: 255}
}

// landmarks places a frontal five-point layout inside r.
func landmarks(r image.Rectangle) [5][2]float32 {
	x, y := float32(r.Min.X), float32(r.Min.Y)
	w, h := float32(r.Dx()), float32(r.Dy())
	return [5][2]float32{
		{x + 0.3*w, y + 0.4*h},
		{x + 0.7*w, y + 0.4*h},
		{x + 0.5*w, y + 0.596*h},
		{x + 0.35*w, y + 0.8*h},
		{x + 0.65*w, y + 0.8*h},
	}
}
