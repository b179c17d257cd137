package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/faceapi/internal/models"
	"github.com/your-org/faceapi/internal/resultcode"
	"github.com/your-org/faceapi/pkg/dto"
)

const defaultPageSize = 20

// abortError writes a CRUD error: the HTTP status follows the result code.
func abortError(c *gin.Context, err error) {
	code := resultcode.Of(err)
	if code == resultcode.Internal {
		slog.Error("request failed", "path", c.FullPath(), "error", err)
	}
	c.AbortWithStatusJSON(code.HTTPStatus(), dto.ErrorResponse{Code: int(code), Error: err.Error()})
}

// processingStatus is the HTTP status of a detect/match/search outcome. Domain
// failures are reported in the body with 200; malformed requests and
// infrastructure failures keep their HTTP status.
func processingStatus(code resultcode.Code) int {
	switch code {
	case resultcode.ValidationError, resultcode.Timeout, resultcode.Internal:
		return code.HTTPStatus()
	default:
		return http.StatusOK
	}
}

func errorMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func bindJSON(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			abortError(c, resultcode.Validationf("request body exceeds %d bytes", maxErr.Limit))
			return false
		}
		abortError(c, resultcode.Validationf("invalid request body: %v", err))
		return false
	}
	return true
}

func paramID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		abortError(c, resultcode.Validationf("invalid %s %q", name, c.Param(name)))
		return uuid.Nil, false
	}
	return id, true
}

// pageRequest reads ?page=&size=; range checks happen in the service.
func pageRequest(c *gin.Context) (models.PageRequest, bool) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil {
		abortError(c, resultcode.Validationf("invalid page %q", c.Query("page")))
		return models.PageRequest{}, false
	}
	size, err := strconv.Atoi(c.DefaultQuery("size", strconv.Itoa(defaultPageSize)))
	if err != nil {
		abortError(c, resultcode.Validationf("invalid size %q", c.Query("size")))
		return models.PageRequest{}, false
	}
	return models.PageRequest{Page: page, Size: size}, true
}

func toPage[T, U any](p models.Page[T], conv func(T) U) dto.Page[U] {
	out := dto.Page[U]{Items: make([]U, 0, len(p.Items)), Page: p.Page, Size: p.Size, Total: p.Total}
	for _, item := range p.Items {
		out.Items = append(out.Items, conv(item))
	}
	return out
}
