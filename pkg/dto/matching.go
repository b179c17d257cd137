package dto

type DetectRequest struct {
	Image        ImageInput   `json:"image"`
	ProcessParam ProcessParam `json:"processParam"`
}

type ProcessParam struct {
	Scenario          string             `json:"scenario,omitempty"`
	OnlyCentralFace   *bool              `json:"onlyCentralFace,omitempty"`
	OutputImageParams *OutputImageParams `json:"outputImageParams,omitempty"`
	Quality           *QualityRequest    `json:"quality,omitempty"`
	Attributes        *AttributesRequest `json:"attributes,omitempty"`
}

type QualityRequest struct {
	Config []ConfigItem `json:"config,omitempty"`
}

type AttributesRequest struct {
	Config []ConfigItem `json:"config"`
}

type ConfigItem struct {
	Name  string      `json:"name"`
	Range *[2]float64 `json:"range,omitempty"`
}

type DetectResponse struct {
	Code    int            `json:"code"`
	Message string         `json:"message,omitempty"`
	Results *DetectResults `json:"results,omitempty"`
}

type DetectResults struct {
	Scenario   string      `json:"scenario"`
	Detections []Detection `json:"detections"`
}

type MatchRequest struct {
	Images            []MatchImage       `json:"images"`
	OutputImageParams *OutputImageParams `json:"outputImageParams,omitempty"`
}

// MatchImage is one typed input; Type is the image source code (1..6).
type MatchImage struct {
	Index       int    `json:"index"`
	Type        int    `json:"type"`
	Data        []byte `json:"data,omitempty"`
	ImageURL    string `json:"imageUrl,omitempty"`
	ContentType string `json:"contentType,omitempty"`
}

type MatchResponse struct {
	Code       int              `json:"code"`
	Message    string           `json:"message,omitempty"`
	Detections []MatchDetection `json:"detections,omitempty"`
	Results    []MatchResult    `json:"results,omitempty"`
}

type MatchDetection struct {
	ImageIndex int         `json:"imageIndex"`
	Type       int         `json:"type"`
	Code       int         `json:"code"`
	Message    string      `json:"message,omitempty"`
	Faces      []Detection `json:"faces,omitempty"`
}

type MatchResult struct {
	First       int     `json:"first"`
	FirstIndex  int     `json:"firstIndex"`
	Second      *int    `json:"second,omitempty"`
	SecondIndex *int    `json:"secondIndex,omitempty"`
	Similarity  float64 `json:"similarity"`
	Score       float64 `json:"score"`
	Code        int     `json:"code"`
}
