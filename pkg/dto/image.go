package dto

// ImageInput carries exactly one of Content (base64 in JSON) or ImageURL.
type ImageInput struct {
	Content       []byte         `json:"content,omitempty"`
	ImageURL      string         `json:"imageUrl,omitempty"`
	ContentType   string         `json:"contentType,omitempty"`
	ResizeOptions *ResizeOptions `json:"resizeOptions,omitempty"`
}

type ResizeOptions struct {
	Width   int `json:"width,omitempty"`
	Height  int `json:"height,omitempty"`
	Quality int `json:"quality,omitempty"`
}

type OutputImageParams struct {
	Crop            *Crop     `json:"crop,omitempty"`
	BackgroundColor *[3]uint8 `json:"backgroundColor,omitempty"`
}

// Crop type: 0=3x4, 1=4x5, 2=2x3, 3=1x1, 4=7x9.
type Crop struct {
	Type               int       `json:"type"`
	PadColor           *[3]uint8 `json:"padColor,omitempty"`
	Size               *[2]int   `json:"size,omitempty"`
	ReturnOriginalRect bool      `json:"returnOriginalRect,omitempty"`
}

// Detection is one face. Roi and OriginalRect are [x, y, width, height].
type Detection struct {
	FaceIndex    int           `json:"faceIndex"`
	Roi          [4]int        `json:"roi"`
	Confidence   float32       `json:"confidence"`
	Landmarks    [5][2]float32 `json:"landmarks"`
	Crop         []byte        `json:"crop,omitempty"`
	OriginalRect *[4]int       `json:"originalRect,omitempty"`
	Quality      *Quality      `json:"quality,omitempty"`
	Attributes   *Attributes   `json:"attributes,omitempty"`
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
