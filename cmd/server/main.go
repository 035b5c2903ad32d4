// cmd/server/main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cbc3929/bi_agent_server/internal/config"
	"github.com/cbc3929/bi_agent_server/internal/core/agent"
	"github.com/cbc3929/bi_agent_server/internal/core/charts"
	"github.com/cbc3929/bi_agent_server/internal/core/databases"
	"github.com/cbc3929/bi_agent_server/internal/core/llm"
	"github.com/cbc3929/bi_agent_server/internal/core/structure"
	"github.com/cbc3929/bi_agent_server/internal/handlers"
	"github.com/cbc3929/bi_agent_server/internal/server"
	"github.com/cbc3929/bi_agent_server/internal/store"
	"github.com/cbc3929/bi_agent_server/internal/utils"
	"go.uber.org/zap"
)

func main() {
	// 1. 先用默认级别初始化日志，加载配置后再按配置调整
	utils.SetupLogger("info")
	cfg := config.LoadConfig()
	if cfg.LogLevel != "info" {
		utils.SetupLogger(cfg.LogLevel)
	}

	defer func() { _ = utils.DefaultLogger.Sync() }() // 程序退出前同步日志

	utils.DefaultLogger.Info("应用程序启动...")

	// 2. 创建核心服务
	dbService := databases.NewService(cfg)
	structureManager := structure.NewManager(dbService)

	initCtx, initCancel := context.WithTimeout(context.Background(), 30*time.Second)
	llmClient, err := llm.NewClient(initCtx, cfg)
	initCancel()
	if err != nil {
		utils.DefaultLogger.Fatal("创建 LLM 客户端失败", zap.Error(err))
		return
	}

	// 3. 图表知识 + 合成/编译
	knowledgeManager := charts.NewKnowledgeManager(cfg.ChartKnowledgeDir)
	if err := knowledgeManager.LoadKnowledge(); err != nil {
		// 知识缺失不致命，提示词中将不含图表族知识
		utils.DefaultLogger.Warn("加载图表知识失败，继续启动", zap.Error(err))
	}
	synthesizer := charts.NewSynthesizer(llmClient, knowledgeManager)
	compiler := charts.NewCompiler(charts.NewRegistry())

	// 4. 持久化存储
	chartStore, err := store.NewChartStore(cfg.DataDir)
	if err != nil {
		utils.DefaultLogger.Fatal("初始化图表存储失败", zap.Error(err))
		return
	}
	dashboardStore, err := store.NewDashboardStore(cfg.DataDir)
	if err != nil {
		utils.DefaultLogger.Fatal("初始化看板存储失败", zap.Error(err))
		return
	}
	chatStore, err := store.NewChatStore(cfg.DataDir)
	if err != nil {
		utils.DefaultLogger.Fatal("初始化会话存储失败", zap.Error(err))
		return
	}

	// 5. 编排器与 HTTP 服务器
	orchestrator := agent.NewOrchestrator(cfg, dbService, structureManager, llmClient, synthesizer, compiler)
	deps := handlers.NewDeps(cfg, dbService, structureManager, llmClient, orchestrator, compiler,
		chartStore, dashboardStore, chatStore)
	httpServer := server.NewHTTPServer(cfg, deps)

	runErrChan := make(chan error, 2)
	go func() {
		runErrChan <- httpServer.Run()
	}()

	// 6. 可选的 MCP 机器接口，与 HTTP API 并行
	if cfg.MCPEnabled {
		mcpServer, err := server.NewMCPServer(cfg, dbService, orchestrator)
		if err != nil {
			utils.DefaultLogger.Fatal("创建 MCP 服务器失败", zap.Error(err))
			return
		}
		go func() {
			runErrChan <- mcpServer.Run()
		}()
	}

	// 7. 监听退出信号，实现优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-runErrChan:
		if err != nil {
			utils.DefaultLogger.Error("服务器运行提前退出", zap.Error(err))
		}
	case sig := <-quit:
		utils.DefaultLogger.Info("收到退出信号", zap.String("signal", sig.String()))

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			utils.DefaultLogger.Error("HTTP 服务器优雅关闭失败", zap.Error(err))
		}
		shutdownCancel()
	}

	// 8. 关闭全部数据库连接池
	closeCtx, closeCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := dbService.CloseAll(closeCtx); err != nil {
		utils.DefaultLogger.Error("关闭数据库连接池时出错", zap.Error(err))
	}
	closeCancel()

	utils.DefaultLogger.Info("应用程序退出。")
}
