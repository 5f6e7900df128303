package handlers

import (
	"apartel/internal/services"
	"apartel/pkg/response"

	"github.com/gin-gonic/gin"
)

type PortfolioHandler struct {
	service *services.PortfolioService
}

func NewPortfolioHandler(service *services.PortfolioService) *PortfolioHandler {
	return &PortfolioHandler{
		service: service,
	}
}

// Get 分组与单元
func (h *PortfolioHandler) Get(c *gin.Context) {
	groups, err := h.service.ListGroups(c.Request.Context(), tenantID(c))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, groups)
}

// Save 保存分组与单元
func (h *PortfolioHandler) Save(c *gin.Context) {
	var req []services.GroupInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body.")
		return
	}

	groups, err := h.service.SaveGroups(c.Request.Context(), tenantID(c), req)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, groups)
}

// RemoveUnit 删除单元
func (h *PortfolioHandler) RemoveUnit(c *gin.Context) {
	if err := h.service.RemoveUnit(c.Request.Context(), tenantID(c), c.Param("id")); err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, nil)
}
