package detection

import (
	"image/color"
	"strings"

	"github.com/your-org/faceapi/internal/resultcode"
)

// Scenario is a named policy bundle controlling which sub-analyses run.
type Scenario string

const (
	ScenarioDefault         Scenario = ""
	ScenarioQualityFull     Scenario = "QualityFull"
	ScenarioCropCentralFace Scenario = "CropCentralFace"
	ScenarioCropAllFaces    Scenario = "CropAllFaces"
	ScenarioThumbnail       Scenario = "Thumbnail"
)

// CropType selects the aspect ratio (width:height) of rendered crops.
type CropType int

const (
	CropAlign3x4 CropType = iota
	CropAlign4x5
	CropAlign2x3
	CropAlign1x1
	CropAlign7x9
)

var cropRatios = map[CropType]float64{
	CropAlign3x4: 3.0 / 4.0,
	CropAlign4x5: 4.0 / 5.0,
	CropAlign2x3: 2.0 / 3.0,
	CropAlign1x1: 1.0,
	CropAlign7x9: 7.0 / 9.0,
}

const thumbnailSize = 150

type RGB [3]uint8

func (c RGB) color() color.RGBA {
	return color.RGBA{R: c[0], G: c[1], B: c[2], A: 255}
}

type CropParams struct {
	Type               CropType
	PadColor           *RGB
	Size               *[2]int
	ReturnOriginalRect bool
}

type OutputImageParams struct {
	Crop            *CropParams
	BackgroundColor *RGB
}

// MetricConfig requests one quality metric, optionally with a caller range.
type MetricConfig struct {
	Name  string
	Range *[2]float64
}

type QualityParams struct {
	Config []MetricConfig
}

type AttributeConfig struct {
	Name  string
	Range *[2]float64
}

type AttributeParams struct {
	Config []AttributeConfig
}

// Params are the per-request processing parameters.
type Params struct {
	Scenario        Scenario
	OnlyCentralFace *bool
	Output          *OutputImageParams
	Quality         *QualityParams
	Attributes      *AttributeParams
}

// CentralOnly returns params that reduce the result to the most central face.
func CentralOnly() Params {
	t := true
	return Params{OnlyCentralFace: &t}
}

type plan struct {
	scenario   Scenario
	central    bool
	crop       *CropParams
	background *RGB
	metrics    []metricSpec
	attributes []AttributeConfig
}

func (p plan) wantsAttributes() bool {
	return len(p.attributes) > 0
}

// resolve validates params and expands the scenario into a concrete plan.
func resolve(params Params) (plan, error) {
	pl := plan{scenario: params.Scenario}

	switch params.Scenario {
	case ScenarioDefault, ScenarioQualityFull, ScenarioCropAllFaces:
	case ScenarioCropCentralFace, ScenarioThumbnail:
		if params.OnlyCentralFace != nil && !*params.OnlyCentralFace {
			return plan{}, resultcode.Validationf("scenario %s conflicts with onlyCentralFace=false", params.Scenario)
		}
		pl.central = true
	default:
		return plan{}, resultcode.Validationf("unknown scenario %q", params.Scenario)
	}
	if params.OnlyCentralFace != nil && *params.OnlyCentralFace {
		pl.central = true
	}

	if params.Output != nil {
		pl.background = params.Output.BackgroundColor
		if params.Output.Crop != nil {
			c := *params.Output.Crop
			pl.crop = &c
		}
	}
	switch params.Scenario {
	case ScenarioCropCentralFace, ScenarioCropAllFaces:
		if pl.crop == nil {
			pl.crop = &CropParams{Type: CropAlign3x4}
		}
	case ScenarioThumbnail:
		if pl.crop == nil {
			pl.crop = &CropParams{Type: CropAlign1x1, Size: &[2]int{thumbnailSize, thumbnailSize}}
		}
	}
	if pl.crop != nil {
		if _, ok := cropRatios[pl.crop.Type]; !ok {
			return plan{}, resultcode.Validationf("unknown crop type %d", pl.crop.Type)
		}
		if s := pl.crop.Size; s != nil && (s[0] <= 0 || s[1] <= 0 || s[0] > 4096 || s[1] > 4096) {
			return plan{}, resultcode.Validationf("crop size must be within [1, 4096], got %v", *s)
		}
	}

	metrics, err := resolveMetrics(params.Scenario, params.Quality)
	if err != nil {
		return plan{}, err
	}
	pl.metrics = metrics

	if params.Attributes != nil {
		for _, a := range params.Attributes.Config {
			name, ok := canonicalAttribute(a.Name)
			if !ok {
				return plan{}, resultcode.Validationf("unknown attribute %q", a.Name)
			}
			if a.Range != nil && a.Range[0] > a.Range[1] {
				return plan{}, resultcode.Validationf("attribute %s range is inverted", name)
			}
			pl.attributes = append(pl.attributes, AttributeConfig{Name: name, Range: a.Range})
		}
	}

	return pl, nil
}

const (
	AttributeAge    = "Age"
	AttributeGender = "Gender"
)

func canonicalAttribute(name string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "age":
		return AttributeAge, true
	case "gender":
		return AttributeGender, true
	}
	return "", false
}
