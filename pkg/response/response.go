package response

import (
	stderrors "errors"
	"net/http"

	"apartel/pkg/errors"
	"apartel/pkg/logger"
	"apartel/pkg/pagination"

	"github.com/gin-gonic/gin"
)

// Response 统一返回格式
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Kind    string      `json:"kind,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// ========== 基础返回方法 ==========

// Success 成功返回
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    errors.CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

// SuccessWithPage 分页成功返回
func SuccessWithPage(c *gin.Context, data interface{}, pageInfo *pagination.PageInfo) {
	c.JSON(http.StatusOK, gin.H{
		"code":      errors.CodeSuccess,
		"message":   "success",
		"data":      data,
		"page_info": pageInfo,
	})
}

// Error 通用错误返回
func Error(c *gin.Context, code int, message string) {
	c.JSON(http.StatusOK, Response{
		Code:    code,
		Message: message,
	})
}

// FromError 按业务错误分类返回；未分类错误统一视为服务端错误且不暴露细节
func FromError(c *gin.Context, err error) {
	kind := errors.KindOf(err)
	if kind == "" || kind == errors.KindPersistence {
		logger.GetLogger().WithError(err).Error("request failed")
		c.JSON(http.StatusOK, Response{
			Code:    errors.CodeServerError,
			Message: "internal server error",
			Kind:    string(errors.KindPersistence),
		})
		return
	}

	message := err.Error()
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		message = appErr.Message
	}

	c.JSON(http.StatusOK, Response{
		Code:    errors.CodeOf(kind),
		Message: message,
		Kind:    string(kind),
	})
}

// ========== HTTP错误快捷方法 ==========

func BadRequest(c *gin.Context, message string) {
	Error(c, errors.CodeInvalidParam, message)
}

func Unauthorized(c *gin.Context, message string) {
	Error(c, errors.CodeUnauthorized, message)
}
