package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"apartel/internal/app"
	"apartel/internal/handlers"
	"apartel/internal/middleware"
	"apartel/internal/router"
	"apartel/pkg/config"
	"apartel/pkg/jwt"
	"apartel/pkg/logger"

	"github.com/gin-gonic/gin"
)

func main() {
	// 加载配置
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化日志
	if err := logger.Initialize(cfg); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	appLogger := logger.GetLogger()
	appLogger.Info("Starting Apartel property management service...")

	// 初始化存储、锁与事件出站
	a, err := app.New(cfg)
	if err != nil {
		appLogger.Fatalf("Failed to initialize application: %v", err)
	}
	defer a.Close()

	// 执行种子数据初始化
	if err := seedData(context.Background(), a, jwt.GetJWTManager()); err != nil {
		appLogger.Fatalf("Failed to initialize seed data: %v", err)
	}

	// 设置Gin模式
	gin.SetMode(cfg.Server.Mode)

	// 启动渠道对账调度器
	reconcileScheduler := a.ChannelReconcileScheduler()
	if err := reconcileScheduler.Start(); err != nil {
		appLogger.Errorf("Failed to start channel reconcile scheduler: %v", err)
		// 不影响主服务启动
	}
	defer reconcileScheduler.Stop()

	// 启动日历同步调度器
	icalScheduler := a.ICalSyncScheduler()
	if err := icalScheduler.Start(); err != nil {
		appLogger.Errorf("Failed to start iCal sync scheduler: %v", err)
	}
	defer icalScheduler.Stop()

	// 设置路由
	r := router.SetupRouter(&router.Handlers{
		Auth:        middleware.NewAuthMiddleware(jwt.GetJWTManager()),
		Booking:     handlers.NewBookingHandler(a.Bookings),
		Channel:     handlers.NewChannelHandler(a.Channels),
		Transaction: handlers.NewTransactionHandler(a.Transactions),
		Portfolio:   handlers.NewPortfolioHandler(a.Portfolio),
		System:      a.SystemHandler(),
	})

	// 启动服务器
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Fatalf("Failed to start server: %v", err)
		}
	}()

	appLogger.Infof("Server started on port %s", cfg.Server.Port)

	// 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		appLogger.Error("Server forced to shutdown:", err)
	}
	appLogger.Info("Server exited")
}
