package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/your-org/faceapi/internal/identity"
	"github.com/your-org/faceapi/pkg/dto"
)

type AdminHandler struct {
	svc   *identity.Service
	tasks identity.TaskPublisher
}

// NewAdminHandler returns an AdminHandler. tasks may be nil when no queue is
// configured; re-indexing is then unavailable.
func NewAdminHandler(svc *identity.Service, tasks identity.TaskPublisher) *AdminHandler {
	return &AdminHandler{svc: svc, tasks: tasks}
}

// Reindex queues every enrolled image produced by another oracle version.
func (h *AdminHandler) Reindex(c *gin.Context) {
	if h.tasks == nil {
		c.JSON(http.StatusServiceUnavailable, dto.ErrorResponse{Code: -1, Error: "re-index queue is not configured"})
		return
	}

	n, err := h.svc.EnqueueReindex(c.Request.Context(), h.tasks)
	if err != nil {
		abortError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, dto.ReindexResponse{Queued: n})
}
