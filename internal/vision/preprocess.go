package vision

import (
	"image"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

var (
	detMean  = [3]float32{127.5, 127.5, 127.5}
	detStd   = [3]float32{128, 128, 128}
	embMean  = [3]float32{127.5, 127.5, 127.5}
	embStd   = [3]float32{127.5, 127.5, 127.5}
	attrMean = [3]float32{0, 0, 0}
	attrStd  = [3]float32{1, 1, 1}
)

// arcfaceTemplate is the canonical 5-point landmark layout of a 112x112
// ArcFace input.
var arcfaceTemplate = [5][2]float64{
	{38.2946, 51.6963},
	{73.5318, 51.5014},
	{56.0252, 71.7366},
	{41.5493, 92.3655},
	{70.7299, 92.2041},
}

// toCHW writes img into dst as planar RGB: (pixel - mean) / std.
func toCHW(dst []float32, img *image.RGBA, mean, std [3]float32) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	plane := w * h
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride:]
		for x := 0; x < w; x++ {
			p := row[x*4:]
			i := y*w + x
			dst[i] = (float32(p[0]) - mean[0]) / std[0]
			dst[plane+i] = (float32(p[1]) - mean[1]) / std[1]
			dst[2*plane+i] = (float32(p[2]) - mean[2]) / std[2]
		}
	}
}

// scaleInto resamples src into the r region of dst.
func scaleInto(dst *image.RGBA, r image.Rectangle, src image.Image) {
	draw.BiLinear.Scale(dst, r, src, src.Bounds(), draw.Src, nil)
}

// alignFace warps img so the five landmarks land on the ArcFace template.
func alignFace(img image.Image, landmarks [5][2]float32, size int) *image.RGBA {
	s := float64(size) / 112
	var dst [5][2]float64
	for i, p := range arcfaceTemplate {
		dst[i] = [2]float64{p[0] * s, p[1] * s}
	}

	out := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.BiLinear.Transform(out, similarity(landmarks, dst), img, img.Bounds(), draw.Src, nil)
	return out
}

// similarity returns the least-squares rotation, uniform scale and
// translation mapping src points onto dst.
func similarity(src [5][2]float32, dst [5][2]float64) f64.Aff3 {
	var msx, msy, mdx, mdy float64
	for i := range src {
		msx += float64(src[i][0])
		msy += float64(src[i][1])
		mdx += dst[i][0]
		mdy += dst[i][1]
	}
	n := float64(len(src))
	msx, msy, mdx, mdy = msx/n, msy/n, mdx/n, mdy/n

	var num1, num2, den float64
	for i := range src {
		sx, sy := float64(src[i][0])-msx, float64(src[i][1])-msy
		dx, dy := dst[i][0]-mdx, dst[i][1]-mdy
		num1 += sx*dx + sy*dy
		num2 += sx*dy - sy*dx
		den += sx*sx + sy*sy
	}
	if den == 0 {
		return f64.Aff3{1, 0, mdx - msx, 0, 1, mdy - msy}
	}
	a, b := num1/den, num2/den
	return f64.Aff3{
		a, -b, mdx - (a*msx - b*msy),
		b, a, mdy - (b*msx + a*msy),
	}
}

// cropBox cuts the box out of img with 10% padding on each side, resized to w x h.
func cropBox(img image.Image, box [4]float32, w, h int) *image.RGBA {
	bw, bh := box[2]-box[0], box[3]-box[1]
	r := image.Rect(
		int(box[0]-bw*0.1), int(box[1]-bh*0.1),
		int(box[2]+bw*0.1), int(box[3]+bh*0.1),
	).Intersect(img.Bounds())

	out := image.NewRGBA(image.Rect(0, 0, w, h))
	if r.Empty() {
		return out
	}
	draw.BiLinear.Scale(out, out.Bounds(), img, r, draw.Src, nil)
	return out
}
