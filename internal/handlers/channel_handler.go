package handlers

import (
	"apartel/internal/services"
	"apartel/pkg/response"

	"github.com/gin-gonic/gin"
)

type ChannelHandler struct {
	service *services.ChannelService
}

func NewChannelHandler(service *services.ChannelService) *ChannelHandler {
	return &ChannelHandler{
		service: service,
	}
}

// GetMappings 渠道映射列表
func (h *ChannelHandler) GetMappings(c *gin.Context) {
	mappings, err := h.service.ListMappings(c.Request.Context(), tenantID(c))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, mappings)
}

// SaveMappings 批量保存渠道映射
func (h *ChannelHandler) SaveMappings(c *gin.Context) {
	var req []services.MappingInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body.")
		return
	}

	mappings, err := h.service.SaveMappings(c.Request.Context(), tenantID(c), req)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, mappings)
}

// GetICal 日历连接列表
func (h *ChannelHandler) GetICal(c *gin.Context) {
	feeds, err := h.service.ListFeeds(c.Request.Context(), tenantID(c))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, feeds)
}

// SaveICal 批量保存日历连接
func (h *ChannelHandler) SaveICal(c *gin.Context) {
	var req []services.FeedInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body.")
		return
	}

	feeds, err := h.service.SaveFeeds(c.Request.Context(), tenantID(c), req)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, feeds)
}

// GetOta OTA 配置
func (h *ChannelHandler) GetOta(c *gin.Context) {
	configs, err := h.service.GetOtaConfigs(c.Request.Context(), tenantID(c))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, configs)
}

// SaveOta 合并 OTA 配置
func (h *ChannelHandler) SaveOta(c *gin.Context) {
	var req map[string]interface{}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body.")
		return
	}

	configs, err := h.service.MergeOtaConfigs(c.Request.Context(), tenantID(c), req)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, configs)
}

// Sync 立即对账
func (h *ChannelHandler) Sync(c *gin.Context) {
	result, err := h.service.Reconcile(c.Request.Context(), tenantID(c))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, result)
}
