package handlers

import (
	"time"

	"apartel/internal/services"
	"apartel/internal/store"
	"apartel/pkg/pagination"
	"apartel/pkg/response"

	"github.com/gin-gonic/gin"
)

type BookingHandler struct {
	service *services.BookingService
}

func NewBookingHandler(service *services.BookingService) *BookingHandler {
	return &BookingHandler{
		service: service,
	}
}

// List 预订列表，支持 unitId/status/from/to 过滤
func (h *BookingHandler) List(c *gin.Context) {
	filter := store.BookingFilter{
		UnitID: c.Query("unitId"),
		Status: c.Query("status"),
	}
	if from := c.Query("from"); from != "" {
		t, err := time.Parse("2006-01-02", from)
		if err != nil {
			response.BadRequest(c, "Invalid from date.")
			return
		}
		filter.From = &t
	}
	if to := c.Query("to"); to != "" {
		t, err := time.Parse("2006-01-02", to)
		if err != nil {
			response.BadRequest(c, "Invalid to date.")
			return
		}
		filter.To = &t
	}

	bookings, err := h.service.List(c.Request.Context(), tenantID(c), filter)
	if err != nil {
		response.FromError(c, err)
		return
	}

	page, info := pagination.Slice(bookings, pagination.FromQuery(c))
	response.SuccessWithPage(c, page, info)
}

// Get 预订详情
func (h *BookingHandler) Get(c *gin.Context) {
	booking, err := h.service.Get(c.Request.Context(), tenantID(c), c.Param("id"))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, booking)
}

// Create 新建预订
func (h *BookingHandler) Create(c *gin.Context) {
	var req services.BookingDraft
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body.")
		return
	}

	booking, err := h.service.Create(c.Request.Context(), tenantID(c), req)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, booking)
}

// Update 部分更新预订
func (h *BookingHandler) Update(c *gin.Context) {
	var req services.BookingPatch
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body.")
		return
	}

	booking, err := h.service.Update(c.Request.Context(), tenantID(c), c.Param("id"), req)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, booking)
}
