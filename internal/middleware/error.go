package middleware

import (
	"fmt"

	apperrors "apartel/pkg/errors"
	"apartel/pkg/logger"
	"apartel/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// ErrorHandler 捕获 panic 并按统一响应格式返回 persistence_failure
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.GetLogger().WithFields(logrus.Fields{
					"tenant_id": c.GetString("tenant_id"),
					"path":      c.FullPath(),
				}).Errorf("Panic recovered: %v", rec)
				response.FromError(c, apperrors.Wrap(apperrors.KindPersistence, "Internal server error.", fmt.Errorf("%v", rec)))
				c.Abort()
			}
		}()

		c.Next()
	}
}
