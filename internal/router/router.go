package router

import (
	"time"

	"apartel/internal/handlers"
	"apartel/internal/middleware"
	"apartel/pkg/response"

	"github.com/gin-gonic/gin"
)

// Handlers 路由依赖
type Handlers struct {
	Auth        *middleware.AuthMiddleware
	Booking     *handlers.BookingHandler
	Channel     *handlers.ChannelHandler
	Transaction *handlers.TransactionHandler
	Portfolio   *handlers.PortfolioHandler
	System      *handlers.SystemHandler
}

// SetupRouter 设置路由
func SetupRouter(h *Handlers) *gin.Engine {
	router := gin.New()

	// 中间件
	router.Use(gin.Logger())
	router.Use(middleware.ErrorHandler())
	router.Use(middleware.SetupCORS())

	// 注册路由
	registerRoutes(router, h)
	return router
}

// 注册所有路由
func registerRoutes(router *gin.Engine, h *Handlers) {
	api := router.Group("/api/v1")
	{
		// 健康检查接口
		if h.System != nil {
			api.GET("/health", h.System.Health)
		} else {
			api.GET("/health", healthCheck)
		}
		api.GET("/ping", ping)

		tenant := api.Group("", h.Auth.RequireTenant())

		// 预订
		bookings := tenant.Group("/bookings")
		{
			bookings.GET("", h.Booking.List)
			bookings.POST("", h.Booking.Create)
			bookings.GET("/:id", h.Booking.Get)
			bookings.PATCH("/:id", h.Booking.Update)
		}

		// 渠道
		channels := tenant.Group("/channels")
		{
			channels.GET("/mappings", h.Channel.GetMappings)
			channels.PUT("/mappings", h.Channel.SaveMappings)
			channels.GET("/ical", h.Channel.GetICal)
			channels.PUT("/ical", h.Channel.SaveICal)
			channels.GET("/ota", h.Channel.GetOta)
			channels.PUT("/ota", h.Channel.SaveOta)
			channels.POST("/sync", h.Channel.Sync)
		}

		// 账本
		transactions := tenant.Group("/transactions")
		{
			transactions.GET("", h.Transaction.List)
			transactions.POST("", h.Transaction.Create)
			transactions.POST("/sync-unit-income/:unitId", h.Transaction.SyncUnitIncome)

			transactions.GET("/categories", h.Transaction.ListCategories)
			transactions.POST("/categories", h.Transaction.CreateCategory)
			transactions.PUT("/categories/:id", h.Transaction.UpdateCategory)
			transactions.DELETE("/categories/:id", h.Transaction.DeleteCategory)

			transactions.POST("/subcategories", h.Transaction.CreateSubCategory)
			transactions.PUT("/subcategories/:id", h.Transaction.UpdateSubCategory)
			transactions.DELETE("/subcategories/:id", h.Transaction.DeleteSubCategory)
		}

		// 房源
		portfolio := tenant.Group("/portfolio")
		{
			portfolio.GET("", h.Portfolio.Get)
			portfolio.PUT("", h.Portfolio.Save)
			portfolio.DELETE("/units/:id", h.Portfolio.RemoveUnit)
		}
	}
}

func healthCheck(c *gin.Context) {
	data := map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now(),
		"service":   "apartel",
	}
	response.Success(c, data)
}

func ping(c *gin.Context) {
	response.Success(c, "pong")
}
