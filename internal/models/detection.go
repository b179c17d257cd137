package models

// Rect is a pixel-space bounding box.
type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Center returns the rectangle center in pixels.
func (r Rect) Center() (float64, float64) {
	return float64(r.X) + float64(r.Width)/2, float64(r.Y) + float64(r.Height)/2
}

func (r Rect) Area() int {
	return r.Width * r.Height
}

// Detection is one resolved face instance.
type Detection struct {
	FaceIndex    int           `json:"faceIndex"`
	Rect         Rect          `json:"rect"`
	Confidence   float32       `json:"confidence"`
	Landmarks    [5][2]float32 `json:"landmarks"`
	Embedding    []float32     `json:"-"`
	Quality      *Quality      `json:"quality,omitempty"`
	Attributes   *Attributes   `json:"attributes,omitempty"`
	Crop         []byte        `json:"crop,omitempty"`
	OriginalRect *Rect         `json:"originalRect,omitempty"`
}

type Quality struct {
	Compliant bool            `json:"compliant"`
	Details   []QualityDetail `json:"details"`
}

type QualityDetail struct {
	Name   string     `json:"name"`
	Value  float64    `json:"value"`
	Range  [2]float64 `json:"range"`
	Status bool       `json:"status"`
}

type Attributes struct {
	Details []AttributeDetail `json:"details"`
}

type AttributeDetail struct {
	Name       string      `json:"name"`
	Value      any         `json:"value"`
	Range      *[2]float64 `json:"range,omitempty"`
	Confidence float32     `json:"confidence,omitempty"`
}
