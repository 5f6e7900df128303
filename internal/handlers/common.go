package handlers

import (
	"github.com/gin-gonic/gin"
)

// tenantID 由 AuthMiddleware.RequireTenant 写入上下文
func tenantID(c *gin.Context) string {
	return c.GetString("tenant_id")
}
