// Package handlers 实现 HTTP API 的全部 gin 处理器。
// 状态都挂在显式的 Deps 上，处理器不访问任何包级单例。
package handlers

import (
	"github.com/cbc3929/bi_agent_server/internal/config"
	"github.com/cbc3929/bi_agent_server/internal/core/agent"
	"github.com/cbc3929/bi_agent_server/internal/core/charts"
	"github.com/cbc3929/bi_agent_server/internal/core/databases"
	"github.com/cbc3929/bi_agent_server/internal/core/llm"
	"github.com/cbc3929/bi_agent_server/internal/core/structure"
	"github.com/cbc3929/bi_agent_server/internal/store"

	"github.com/gin-gonic/gin"
	cmap "github.com/orcaman/concurrent-map/v2"
)

// Deps 聚合处理器需要的全部服务。
type Deps struct {
	Cfg          *config.Config
	DBService    databases.Service
	Structures   structure.Manager
	LLMClient    llm.Client
	Orchestrator *agent.Orchestrator
	Compiler     *charts.Compiler
	ChartStore   *store.ChartStore
	Dashboards   *store.DashboardStore
	ChatStore    *store.ChatStore

	// editors 按图表 ID 维护进行中的编辑会话
	editors cmap.ConcurrentMap[string, *agent.EditorState]
}

// NewDeps 装配处理器依赖。
func NewDeps(
	cfg *config.Config,
	dbService databases.Service,
	structures structure.Manager,
	llmClient llm.Client,
	orchestrator *agent.Orchestrator,
	compiler *charts.Compiler,
	chartStore *store.ChartStore,
	dashboards *store.DashboardStore,
	chatStore *store.ChatStore,
) *Deps {
	return &Deps{
		Cfg:          cfg,
		DBService:    dbService,
		Structures:   structures,
		LLMClient:    llmClient,
		Orchestrator: orchestrator,
		Compiler:     compiler,
		ChartStore:   chartStore,
		Dashboards:   dashboards,
		ChatStore:    chatStore,
		editors:      cmap.New[*agent.EditorState](),
	}
}

// Register 把全部路由挂到 gin 引擎上。
func Register(router *gin.Engine, deps *Deps) {
	api := router.Group("/api")

	conns := api.Group("/connections")
	conns.POST("", deps.handleRegisterConnection)
	conns.DELETE("/:connID", deps.handleDisconnect)
	conns.GET("/:connID/structure", deps.handleGetStructure)
	conns.POST("/:connID/structure/refresh", deps.handleRefreshStructure)

	chats := api.Group("/chats")
	chats.POST("", deps.handleCreateChat)
	chats.GET("", deps.handleListChats)
	chats.GET("/:chatID", deps.handleGetChat)
	chats.DELETE("/:chatID", deps.handleDeleteChat)
	chats.POST("/:chatID/messages", deps.handleChatMessage)

	chartsGroup := api.Group("/charts")
	chartsGroup.POST("", deps.handleCreateChart)
	chartsGroup.GET("", deps.handleListCharts)
	chartsGroup.GET("/:chartID", deps.handleGetChart)
	chartsGroup.PUT("/:chartID", deps.handleUpdateChart)
	chartsGroup.DELETE("/:chartID", deps.handleDeleteChart)
	chartsGroup.GET("/:chartID/render", deps.handleRenderChart)
	chartsGroup.POST("/:chartID/edit", deps.handleEditChart)
	chartsGroup.POST("/:chartID/edit/accept", deps.handleAcceptEdit)
	chartsGroup.POST("/:chartID/edit/reject", deps.handleRejectEdit)

	dashboards := api.Group("/dashboards")
	dashboards.POST("", deps.handleCreateDashboard)
	dashboards.GET("", deps.handleListDashboards)
	dashboards.GET("/:dashboardID", deps.handleGetDashboard)
	dashboards.PUT("/:dashboardID", deps.handleUpdateDashboard)
	dashboards.DELETE("/:dashboardID", deps.handleDeleteDashboard)
	dashboards.GET("/:dashboardID/render", deps.handleRenderDashboard)
}

// userID 从请求头解析调用者身份。
// 鉴权由前置网关完成，这里只做所有权隔离用的标识提取。
func userID(c *gin.Context) string {
	if id := c.GetHeader("X-User-ID"); id != "" {
		return id
	}
	return "default"
}
