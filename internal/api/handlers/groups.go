package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/your-org/faceapi/internal/identity"
	"github.com/your-org/faceapi/internal/models"
	"github.com/your-org/faceapi/pkg/dto"
)

type GroupHandler struct {
	svc *identity.Service
}

func NewGroupHandler(svc *identity.Service) *GroupHandler {
	return &GroupHandler{svc: svc}
}

func (h *GroupHandler) Create(c *gin.Context) {
	var req dto.GroupRequest
	if !bindJSON(c, &req) {
		return
	}

	g, err := h.svc.CreateGroup(c.Request.Context(), req.Name, req.Metadata)
	if err != nil {
		abortError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toGroup(*g))
}

func (h *GroupHandler) List(c *gin.Context) {
	req, ok := pageRequest(c)
	if !ok {
		return
	}

	page, err := h.svc.ListGroups(c.Request.Context(), req)
	if err != nil {
		abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, toPage(page, toGroup))
}

func (h *GroupHandler) Get(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	g, err := h.svc.GetGroup(c.Request.Context(), id)
	if err != nil {
		abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, toGroup(*g))
}

func (h *GroupHandler) Update(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req dto.GroupRequest
	if !bindJSON(c, &req) {
		return
	}

	g, err := h.svc.UpdateGroup(c.Request.Context(), id, req.Name, req.Metadata)
	if err != nil {
		abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, toGroup(*g))
}

func (h *GroupHandler) Delete(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	if err := h.svc.DeleteGroup(c.Request.Context(), id); err != nil {
		abortError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *GroupHandler) ListPersons(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	req, ok := pageRequest(c)
	if !ok {
		return
	}

	page, err := h.svc.ListPersonsByGroup(c.Request.Context(), id, req)
	if err != nil {
		abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, toPage(page, toPerson))
}

func (h *GroupHandler) UpdateMembership(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req dto.MembershipRequest
	if !bindJSON(c, &req) {
		return
	}

	err := h.svc.UpdateGroupMembership(c.Request.Context(), id, models.GroupMembership{
		Add:    req.AddItems,
		Remove: req.RemoveItems,
	})
	if err != nil {
		abortError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
