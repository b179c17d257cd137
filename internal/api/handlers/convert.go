package handlers

import (
	"github.com/google/uuid"

	"github.com/your-org/faceapi/internal/detection"
	"github.com/your-org/faceapi/internal/imagesrc"
	"github.com/your-org/faceapi/internal/models"
	"github.com/your-org/faceapi/pkg/dto"
)

func toSource(in dto.ImageInput) imagesrc.Source {
	src := imagesrc.Source{Content: in.Content, URL: in.ImageURL, ContentType: in.ContentType}
	if r := in.ResizeOptions; r != nil {
		src.Resize = &imagesrc.Resize{Width: r.Width, Height: r.Height, Quality: r.Quality}
	}
	return src
}

func toOutputParams(in *dto.OutputImageParams) *detection.OutputImageParams {
	if in == nil {
		return nil
	}
	out := &detection.OutputImageParams{}
	if in.BackgroundColor != nil {
		bg := detection.RGB(*in.BackgroundColor)
		out.BackgroundColor = &bg
	}
	if c := in.Crop; c != nil {
		out.Crop = &detection.CropParams{
			Type:               detection.CropType(c.Type),
			Size:               c.Size,
			ReturnOriginalRect: c.ReturnOriginalRect,
		}
		if c.PadColor != nil {
			pad := detection.RGB(*c.PadColor)
			out.Crop.PadColor = &pad
		}
	}
	return out
}

func toDetectParams(p dto.ProcessParam) detection.Params {
	out := detection.Params{
		Scenario:        detection.Scenario(p.Scenario),
		OnlyCentralFace: p.OnlyCentralFace,
		Output:          toOutputParams(p.OutputImageParams),
	}
	if p.Quality != nil {
		out.Quality = &detection.QualityParams{}
		for _, item := range p.Quality.Config {
			out.Quality.Config = append(out.Quality.Config, detection.MetricConfig{Name: item.Name, Range: item.Range})
		}
	}
	if p.Attributes != nil {
		out.Attributes = &detection.AttributeParams{}
		for _, item := range p.Attributes.Config {
			out.Attributes.Config = append(out.Attributes.Config, detection.AttributeConfig{Name: item.Name, Range: item.Range})
		}
	}
	return out
}

func rect4(r models.Rect) [4]int {
	return [4]int{r.X, r.Y, r.Width, r.Height}
}

func toDetection(d models.Detection) dto.Detection {
	out := dto.Detection{
		FaceIndex:  d.FaceIndex,
		Roi:        rect4(d.Rect),
		Confidence: d.Confidence,
		Landmarks:  d.Landmarks,
		Crop:       d.Crop,
	}
	if d.OriginalRect != nil {
		r := rect4(*d.OriginalRect)
		out.OriginalRect = &r
	}
	if q := d.Quality; q != nil {
		out.Quality = &dto.Quality{Compliant: q.Compliant, Details: make([]dto.QualityDetail, len(q.Details))}
		for i, qd := range q.Details {
			out.Quality.Details[i] = dto.QualityDetail{Name: qd.Name, Value: qd.Value, Range: qd.Range, Status: qd.Status}
		}
	}
	if a := d.Attributes; a != nil {
		out.Attributes = &dto.Attributes{Details: make([]dto.AttributeDetail, len(a.Details))}
		for i, ad := range a.Details {
			out.Attributes.Details[i] = dto.AttributeDetail{Name: ad.Name, Value: ad.Value, Range: ad.Range, Confidence: ad.Confidence}
		}
	}
	return out
}

func toDetections(dets []models.Detection) []dto.Detection {
	out := make([]dto.Detection, len(dets))
	for i, d := range dets {
		out[i] = toDetection(d)
	}
	return out
}

func toGroup(g models.Group) dto.GroupResponse {
	return dto.GroupResponse{ID: g.ID, Name: g.Name, Metadata: metadataOrEmpty(g.Metadata), CreatedAt: g.CreatedAt}
}

func toPerson(p models.Person) dto.PersonResponse {
	groups := p.Groups
	if groups == nil {
		groups = []uuid.UUID{}
	}
	return dto.PersonResponse{
		ID:        p.ID,
		Name:      p.Name,
		Groups:    groups,
		Metadata:  metadataOrEmpty(p.Metadata),
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

func toImage(img models.EnrolledImage) dto.ImageResponse {
	return dto.ImageResponse{
		ID:            img.ID,
		Path:          img.Path,
		ContentType:   img.ContentType,
		URL:           "/v1/persons/" + img.PersonID.String() + "/images/" + img.ID.String(),
		OracleVersion: img.OracleVersion,
		Detections:    toDetections(img.Detections),
		CreatedAt:     img.CreatedAt,
	}
}

func metadataOrEmpty(m models.Metadata) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
