package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/cbc3929/bi_agent_server/internal/config"
	"github.com/cbc3929/bi_agent_server/internal/handlers"
	"github.com/cbc3929/bi_agent_server/internal/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// HTTPServer 包装 gin 引擎和底层 http.Server。
type HTTPServer struct {
	config     *config.Config
	engine     *gin.Engine
	httpServer *http.Server
}

// NewHTTPServer 创建 HTTP API 服务器并挂载全部路由。
func NewHTTPServer(cfg *config.Config, deps *handlers.Deps) *HTTPServer {
	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger())

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	handlers.Register(engine, deps)

	return &HTTPServer{
		config: cfg,
		engine: engine,
		httpServer: &http.Server{
			Addr:              cfg.ServerAddr,
			Handler:           engine,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Run 启动服务器并阻塞直到关闭。正常关闭不算错误。
func (s *HTTPServer) Run() error {
	utils.DefaultLogger.Info("启动 HTTP 服务器...", zap.String("address", s.config.ServerAddr))
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		utils.DefaultLogger.Info("HTTP 服务器已停止。")
		return nil
	}
	return err
}

// Shutdown 优雅关闭：等待进行中的请求完成或超时。
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	utils.DefaultLogger.Info("正在关闭 HTTP 服务器...")
	return s.httpServer.Shutdown(ctx)
}

// requestLogger 用 zap 记录每个请求的方法、路径、状态与耗时。
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		utils.DefaultLogger.Info("http 请求",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
