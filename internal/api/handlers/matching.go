package handlers

import (
	"context"
	"image"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/your-org/faceapi/internal/detection"
	"github.com/your-org/faceapi/internal/imagesrc"
	"github.com/your-org/faceapi/internal/matching"
	"github.com/your-org/faceapi/internal/resultcode"
	"github.com/your-org/faceapi/pkg/dto"
)

type Resolver interface {
	Resolve(ctx context.Context, src imagesrc.Source) (*imagesrc.Resolved, error)
}

type Detector interface {
	Detect(ctx context.Context, img image.Image, params detection.Params) (*detection.Result, error)
}

type MatchingHandler struct {
	resolver Resolver
	detector Detector
	engine   *matching.Engine
}

func NewMatchingHandler(resolver Resolver, detector Detector, engine *matching.Engine) *MatchingHandler {
	return &MatchingHandler{resolver: resolver, detector: detector, engine: engine}
}

func (h *MatchingHandler) Detect(c *gin.Context) {
	var req dto.DetectRequest
	if !bindJSON(c, &req) {
		return
	}

	res, err := h.detect(c.Request.Context(), req)
	code := resultcode.Of(err)
	resp := dto.DetectResponse{Code: int(code), Message: errorMessage(err)}
	if err == nil {
		resp.Results = &dto.DetectResults{
			Scenario:   string(res.Scenario),
			Detections: toDetections(res.Detections),
		}
	}
	c.JSON(processingStatus(code), resp)
}

func (h *MatchingHandler) detect(ctx context.Context, req dto.DetectRequest) (*detection.Result, error) {
	resolved, err := h.resolver.Resolve(ctx, toSource(req.Image))
	if err != nil {
		return nil, err
	}
	return h.detector.Detect(ctx, resolved.Image, toDetectParams(req.ProcessParam))
}

func (h *MatchingHandler) Match(c *gin.Context) {
	var req dto.MatchRequest
	if !bindJSON(c, &req) {
		return
	}

	images := make([]matching.Image, len(req.Images))
	for i, img := range req.Images {
		images[i] = matching.Image{
			Index: img.Index,
			Type:  matching.ImageSource(img.Type),
			Source: imagesrc.Source{
				Content:     img.Data,
				URL:         img.ImageURL,
				ContentType: img.ContentType,
			},
		}
	}

	res, err := h.engine.Match(c.Request.Context(), images, matching.Params{Output: toOutputParams(req.OutputImageParams)})
	if err != nil {
		code := resultcode.Of(err)
		c.JSON(processingStatus(code), dto.MatchResponse{Code: int(code), Message: err.Error()})
		return
	}

	resp := dto.MatchResponse{
		Code:       int(resultcode.OK),
		Detections: make([]dto.MatchDetection, len(res.Images)),
		Results:    make([]dto.MatchResult, len(res.Pairs)),
	}
	for i, img := range res.Images {
		d := dto.MatchDetection{
			ImageIndex: img.Index,
			Type:       int(img.Type),
			Code:       int(img.Code),
			Message:    errorMessage(img.Err),
		}
		if img.Detection != nil {
			d.Faces = []dto.Detection{toDetection(*img.Detection)}
		}
		resp.Detections[i] = d
	}
	for i, p := range res.Pairs {
		r := dto.MatchResult{
			First:       int(p.First),
			FirstIndex:  p.FirstIndex,
			SecondIndex: p.SecondIndex,
			Similarity:  p.Similarity,
			Score:       p.Similarity,
			Code:        int(p.Code),
		}
		if p.Second != nil {
			second := int(*p.Second)
			r.Second = &second
		}
		resp.Results[i] = r
	}
	c.JSON(http.StatusOK, resp)
}
