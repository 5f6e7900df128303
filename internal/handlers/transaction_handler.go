package handlers

import (
	"apartel/internal/services"
	"apartel/internal/store"
	"apartel/pkg/pagination"
	"apartel/pkg/response"

	"github.com/gin-gonic/gin"
)

type TransactionHandler struct {
	service *services.TransactionService
}

func NewTransactionHandler(service *services.TransactionService) *TransactionHandler {
	return &TransactionHandler{
		service: service,
	}
}

// RenameRequest 重命名请求
type RenameRequest struct {
	Name string `json:"name" binding:"required"`
}

// List 流水列表
func (h *TransactionHandler) List(c *gin.Context) {
	filter := store.TransactionFilter{
		UnitID: c.Query("unitId"),
		Type:   c.Query("type"),
	}
	txs, err := h.service.List(c.Request.Context(), tenantID(c), filter)
	if err != nil {
		response.FromError(c, err)
		return
	}

	page, info := pagination.Slice(txs, pagination.FromQuery(c))
	response.SuccessWithPage(c, page, info)
}

// Create 手工录入流水
func (h *TransactionHandler) Create(c *gin.Context) {
	var req services.TransactionInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body.")
		return
	}

	tx, err := h.service.Create(c.Request.Context(), tenantID(c), req)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, tx)
}

// SyncUnitIncome 为单元补齐预订收入，币种可通过 ?currency= 指定
func (h *TransactionHandler) SyncUnitIncome(c *gin.Context) {
	opts := services.IncomeSyncOptions{Currency: c.Query("currency")}

	result, err := h.service.SyncUnitIncome(c.Request.Context(), tenantID(c), c.Param("unitId"), opts)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, result)
}

// ListCategories 分类列表
func (h *TransactionHandler) ListCategories(c *gin.Context) {
	categories, err := h.service.ListCategories(c.Request.Context(), tenantID(c))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, categories)
}

// CreateCategory 新建分类
func (h *TransactionHandler) CreateCategory(c *gin.Context) {
	var req services.CategoryInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body.")
		return
	}

	category, err := h.service.CreateCategory(c.Request.Context(), tenantID(c), req)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, category)
}

// UpdateCategory 修改分类
func (h *TransactionHandler) UpdateCategory(c *gin.Context) {
	var req services.CategoryInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body.")
		return
	}

	category, err := h.service.UpdateCategory(c.Request.Context(), tenantID(c), c.Param("id"), req)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, category)
}

// DeleteCategory 删除分类
func (h *TransactionHandler) DeleteCategory(c *gin.Context) {
	if err := h.service.DeleteCategory(c.Request.Context(), tenantID(c), c.Param("id")); err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, nil)
}

// CreateSubCategory 新建子分类
func (h *TransactionHandler) CreateSubCategory(c *gin.Context) {
	var req services.SubCategoryInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body.")
		return
	}

	sub, err := h.service.CreateSubCategory(c.Request.Context(), tenantID(c), req)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, sub)
}

// UpdateSubCategory 重命名子分类
func (h *TransactionHandler) UpdateSubCategory(c *gin.Context) {
	var req RenameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body.")
		return
	}

	sub, err := h.service.UpdateSubCategory(c.Request.Context(), tenantID(c), c.Param("id"), req.Name)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, sub)
}

// DeleteSubCategory 删除子分类
func (h *TransactionHandler) DeleteSubCategory(c *gin.Context) {
	if err := h.service.DeleteSubCategory(c.Request.Context(), tenantID(c), c.Param("id")); err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, nil)
}
