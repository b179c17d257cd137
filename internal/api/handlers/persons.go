package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/your-org/faceapi/internal/identity"
	"github.com/your-org/faceapi/internal/models"
	"github.com/your-org/faceapi/pkg/dto"
)

type PersonHandler struct {
	svc *identity.Service
}

func NewPersonHandler(svc *identity.Service) *PersonHandler {
	return &PersonHandler{svc: svc}
}

func (h *PersonHandler) Create(c *gin.Context) {
	var req dto.CreatePersonRequest
	if !bindJSON(c, &req) {
		return
	}

	p, err := h.svc.CreatePerson(c.Request.Context(), req.Name, req.Groups, req.Metadata)
	if err != nil {
		abortError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toPerson(*p))
}

func (h *PersonHandler) Get(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	p, err := h.svc.GetPerson(c.Request.Context(), id)
	if err != nil {
		abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, toPerson(*p))
}

func (h *PersonHandler) Update(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req dto.UpdatePersonRequest
	if !bindJSON(c, &req) {
		return
	}

	p, err := h.svc.UpdatePerson(c.Request.Context(), id, models.PersonUpdate{
		Name:     req.Name,
		Metadata: req.Metadata,
		Groups:   req.Groups,
	})
	if err != nil {
		abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, toPerson(*p))
}

func (h *PersonHandler) Delete(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	if err := h.svc.DeletePerson(c.Request.Context(), id); err != nil {
		abortError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *PersonHandler) ListGroups(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	req, ok := pageRequest(c)
	if !ok {
		return
	}

	page, err := h.svc.ListGroupsByPerson(c.Request.Context(), id, req)
	if err != nil {
		abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, toPage(page, toGroup))
}

// --- Images ---

func (h *PersonHandler) AddImage(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req dto.ImageInput
	if !bindJSON(c, &req) {
		return
	}

	img, err := h.svc.AddImage(c.Request.Context(), id, toSource(req))
	if err != nil {
		abortError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toImage(*img))
}

func (h *PersonHandler) ListImages(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	req, ok := pageRequest(c)
	if !ok {
		return
	}

	page, err := h.svc.ListImagesByPerson(c.Request.Context(), id, req)
	if err != nil {
		abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, toPage(page, toImage))
}

// GetImage streams the stored bytes of an enrolled image.
func (h *PersonHandler) GetImage(c *gin.Context) {
	personID, ok := paramID(c, "id")
	if !ok {
		return
	}
	imageID, ok := paramID(c, "imageId")
	if !ok {
		return
	}

	data, contentType, err := h.svc.GetImageContent(c.Request.Context(), personID, imageID)
	if err != nil {
		abortError(c, err)
		return
	}
	c.Data(http.StatusOK, contentType, data)
}

func (h *PersonHandler) DeleteImage(c *gin.Context) {
	personID, ok := paramID(c, "id")
	if !ok {
		return
	}
	imageID, ok := paramID(c, "imageId")
	if !ok {
		return
	}

	if err := h.svc.DeleteImage(c.Request.Context(), personID, imageID); err != nil {
		abortError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
