package detection

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"

	"github.com/your-org/faceapi/internal/imagesrc"
	"github.com/your-org/faceapi/internal/models"
)

const (
	cropJPEGQuality = 95
	// A portrait crop spans this many face heights vertically.
	cropHeightFactor = 2.0
	// and at least this many face widths horizontally.
	cropMinWidthFactor = 1.6
	// The crop center sits below the box center to include the chin and neck.
	cropCenterShift = 0.1
)

var black = RGB{0, 0, 0}

// renderCrop cuts an aligned portrait around face. Regions outside the source
// image are filled with the pad color; when an output size is requested the
// crop is fit into it and the remainder filled with background.
func renderCrop(img image.Image, face models.Rect, p CropParams, background *RGB) ([]byte, models.Rect, error) {
	ratio := cropRatios[p.Type]
	fw, fh := float64(face.Width), float64(face.Height)
	h := fh * cropHeightFactor
	w := h * ratio
	if w < fw*cropMinWidthFactor {
		w = fw * cropMinWidthFactor
		h = w / ratio
	}
	cx, cy := face.Center()
	cy += fh * cropCenterShift

	region := image.Rect(
		int(math.Round(cx-w/2)), int(math.Round(cy-h/2)),
		int(math.Round(cx+w/2)), int(math.Round(cy+h/2)),
	)
	if region.Empty() {
		return nil, models.Rect{}, fmt.Errorf("empty crop region for face %+v", face)
	}

	pad := black
	if p.PadColor != nil {
		pad = *p.PadColor
	}
	canvas := image.NewRGBA(image.Rect(0, 0, region.Dx(), region.Dy()))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(pad.color()), image.Point{}, draw.Src)
	if inter := region.Intersect(img.Bounds()); !inter.Empty() {
		draw.Draw(canvas, inter.Sub(region.Min), img, inter.Min, draw.Src)
	}

	var out image.Image = canvas
	if p.Size != nil {
		bg := pad
		if background != nil {
			bg = *background
		}
		out = letterbox(canvas, p.Size[0], p.Size[1], bg.color())
	}

	data, err := imagesrc.EncodeJPEG(out, cropJPEGQuality)
	if err != nil {
		return nil, models.Rect{}, fmt.Errorf("encode crop: %w", err)
	}
	orig := models.Rect{X: region.Min.X, Y: region.Min.Y, Width: region.Dx(), Height: region.Dy()}
	return data, orig, nil
}

// letterbox scales src to fit within w x h keeping its aspect ratio and
// centers it on a canvas filled with bg.
func letterbox(src image.Image, w, h int, bg color.RGBA) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(bg), image.Point{}, draw.Src)

	sb := src.Bounds()
	scale := math.Min(float64(w)/float64(sb.Dx()), float64(h)/float64(sb.Dy()))
	sw := max(1, int(math.Round(float64(sb.Dx())*scale)))
	sh := max(1, int(math.Round(float64(sb.Dy())*scale)))
	ox, oy := (w-sw)/2, (h-sh)/2
	draw.CatmullRom.Scale(dst, image.Rect(ox, oy, ox+sw, oy+sh), src, sb, draw.Over, nil)
	return dst
}
