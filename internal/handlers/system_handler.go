package handlers

import (
	"context"
	"net/http"
	"time"

	"apartel/pkg/errors"
	"apartel/pkg/response"

	"github.com/gin-gonic/gin"
)

// HealthCheck 依赖探活
type HealthCheck func(ctx context.Context) error

// SystemHandler 系统处理器
type SystemHandler struct {
	checks map[string]HealthCheck
}

// NewSystemHandler 创建系统处理器
func NewSystemHandler(checks map[string]HealthCheck) *SystemHandler {
	return &SystemHandler{
		checks: checks,
	}
}

// Health 健康检查
func (h *SystemHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	status := make(map[string]string, len(h.checks))
	healthy := true
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			status[name] = err.Error()
			healthy = false
			continue
		}
		status[name] = "ok"
	}

	if !healthy {
		c.JSON(http.StatusOK, response.Response{
			Code:    errors.CodeServerError,
			Message: "unhealthy",
			Data:    status,
		})
		return
	}
	response.Success(c, gin.H{"status": "ok", "checks": status})
}
