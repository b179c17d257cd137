package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/your-org/faceapi/internal/resultcode"
	"github.com/your-org/faceapi/internal/search"
	"github.com/your-org/faceapi/pkg/dto"
)

type SearchHandler struct {
	engine *search.Engine
}

func NewSearchHandler(engine *search.Engine) *SearchHandler {
	return &SearchHandler{engine: engine}
}

func (h *SearchHandler) Search(c *gin.Context) {
	var req dto.SearchRequest
	if !bindJSON(c, &req) {
		return
	}

	res, err := h.engine.Search(c.Request.Context(), search.Request{
		Image:     toSource(req.Image),
		GroupIDs:  req.GroupIDs,
		Limit:     req.Limit,
		Threshold: req.Threshold,
		Output:    toOutputParams(req.OutputImageParams),
	})
	if err != nil {
		code := resultcode.Of(err)
		c.JSON(processingStatus(code), dto.SearchResponse{Code: int(code), Message: err.Error(), Persons: []dto.SearchPerson{}})
		return
	}

	resp := dto.SearchResponse{Code: int(resultcode.OK), Persons: make([]dto.SearchPerson, 0, len(res.Persons))}
	var det *dto.Detection
	if res.Detection != nil {
		d := toDetection(*res.Detection)
		det = &d
	}
	for _, cand := range res.Persons {
		p := toPerson(cand.Person)
		resp.Persons = append(resp.Persons, dto.SearchPerson{
			ID:        p.ID,
			Name:      p.Name,
			Groups:    p.Groups,
			Metadata:  p.Metadata,
			Detection: det,
			Images: []dto.SearchImage{{
				ID:          cand.ImageID,
				Path:        cand.Path,
				ContentType: cand.ContentType,
				Similarity:  cand.Similarity,
			}},
		})
	}
	c.JSON(http.StatusOK, resp)
}
