package server

import (
	"context"
	"fmt"
	"time"

	"github.com/ThinkInAIXYZ/go-mcp/protocol"
	mcpserver "github.com/ThinkInAIXYZ/go-mcp/server" // 使用别名避免与包名冲突
	"github.com/ThinkInAIXYZ/go-mcp/transport"
	"github.com/bytedance/sonic"
	"github.com/cbc3929/bi_agent_server/internal/config"
	"github.com/cbc3929/bi_agent_server/internal/core/agent"
	"github.com/cbc3929/bi_agent_server/internal/core/databases"
	"github.com/cbc3929/bi_agent_server/internal/utils"
	"go.uber.org/zap"
)

// --- Tool 输入参数的结构体 ---

type connectToolArgs struct {
	ConnectionString string `json:"connection_string"`
	DBType           string `json:"db_type"`
}
type runQueryToolArgs struct {
	ConnID string `json:"conn_id"`
	Query  string `json:"query"`
	Params []any  `json:"params,omitempty"`
}
type askToolArgs struct {
	ConnID  string `json:"conn_id"`
	Message string `json:"message"`
}

// MCPServer 是面向机器调用方 (LLM 客户端、自动化) 的接口，
// 与 HTTP API 并行运行，暴露 connect / run_query / ask 三个工具。
type MCPServer struct {
	config       *config.Config
	mcpServer    *mcpserver.Server
	dbService    databases.Service
	orchestrator *agent.Orchestrator
}

// NewMCPServer 创建、配置并返回一个新的 MCPServer 实例。
func NewMCPServer(
	cfg *config.Config,
	dbService databases.Service,
	orchestrator *agent.Orchestrator,
) (*MCPServer, error) {
	utils.DefaultLogger.Info("正在创建 MCP 服务器实例...")

	transportLayer, err := transport.NewSSEServerTransport(cfg.MCPServerAddr)
	if err != nil {
		return nil, fmt.Errorf("创建 SSE 传输层失败: %w", err)
	}
	utils.DefaultLogger.Info("SSE 传输层已创建", zap.String("configuredAddress", cfg.MCPServerAddr))

	mcpServerInstance, err := mcpserver.NewServer(transportLayer,
		mcpserver.WithServerInfo(protocol.Implementation{
			Name:    "bi-agent-server-go",
			Version: "0.1.0",
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("创建 MCP 服务器失败: %w", err)
	}

	s := &MCPServer{
		config:       cfg,
		mcpServer:    mcpServerInstance,
		dbService:    dbService,
		orchestrator: orchestrator,
	}
	if err := s.registerTools(); err != nil {
		return nil, fmt.Errorf("注册 MCP 工具失败: %w", err)
	}

	utils.DefaultLogger.Info("MCP 服务器初始化完成，准备运行。")
	return s, nil
}

// registerTools 注册全部工具处理器。
func (s *MCPServer) registerTools() error {
	// 'connect' 工具
	connectTool, err := protocol.NewTool("connect", "注册数据库连接字符串并返回连接 ID", connectToolArgs{})
	if err != nil {
		return fmt.Errorf("创建 'connect' 工具定义失败: %w", err)
	}
	s.mcpServer.RegisterTool(connectTool, func(request *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		args := new(connectToolArgs)
		if err := protocol.VerifyAndUnmarshal(request.RawArguments, args); err != nil {
			return nil, fmt.Errorf("参数解析错误: %w", err)
		}
		if args.ConnectionString == "" || args.DBType == "" {
			return nil, fmt.Errorf("缺少 'connection_string' 或 'db_type' 参数")
		}

		connID, err := s.dbService.RegisterConnection(ctx, args.ConnectionString, args.DBType)
		if err != nil {
			return toolError(fmt.Sprintf("注册连接失败: %v", err)), nil
		}
		return toolJSON(map[string]string{"conn_id": connID})
	})
	utils.DefaultLogger.Info("Tool 'connect' 已注册")

	// 'run_query' 工具
	runQueryTool, err := protocol.NewTool("run_query", "执行只读 SQL 查询并返回统一结果集", runQueryToolArgs{})
	if err != nil {
		return fmt.Errorf("创建 'run_query' 工具定义失败: %w", err)
	}
	s.mcpServer.RegisterTool(runQueryTool, func(request *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()

		args := new(runQueryToolArgs)
		if err := protocol.VerifyAndUnmarshal(request.RawArguments, args); err != nil {
			return nil, fmt.Errorf("参数解析错误: %w", err)
		}
		if args.ConnID == "" || args.Query == "" {
			return nil, fmt.Errorf("缺少 'conn_id' 或 'query' 参数")
		}
		if !utils.IsReadOnlyQuery(args.Query) {
			return toolError("只允许只读查询"), nil
		}

		result, err := s.dbService.ExecuteQuery(ctx, args.ConnID, args.Query, args.Params...)
		if err != nil {
			return toolError(fmt.Sprintf("查询执行失败: %v", err)), nil
		}
		return toolJSON(result)
	})
	utils.DefaultLogger.Info("Tool 'run_query' 已注册")

	// 'ask' 工具：完整跑一轮取数管线，返回结果包
	askTool, err := protocol.NewTool("ask", "用自然语言提问，返回数据、查询与图表规格", askToolArgs{})
	if err != nil {
		return fmt.Errorf("创建 'ask' 工具定义失败: %w", err)
	}
	s.mcpServer.RegisterTool(askTool, func(request *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
		defer cancel()

		args := new(askToolArgs)
		if err := protocol.VerifyAndUnmarshal(request.RawArguments, args); err != nil {
			return nil, fmt.Errorf("参数解析错误: %w", err)
		}
		if args.ConnID == "" || args.Message == "" {
			return nil, fmt.Errorf("缺少 'conn_id' 或 'message' 参数")
		}

		// 机器调用方不消费流式进度，事件直接丢弃
		result := s.orchestrator.RunTurn(ctx, agent.TurnRequest{
			ConnID:  args.ConnID,
			Message: args.Message,
		}, nil)
		return toolJSON(result)
	})
	utils.DefaultLogger.Info("Tool 'ask' 已注册")

	return nil
}

// Run 启动 MCP 服务器并开始监听连接。阻塞直到服务器停止。
func (s *MCPServer) Run() error {
	utils.DefaultLogger.Info("启动 MCP 服务器运行...", zap.String("address", s.config.MCPServerAddr))
	err := s.mcpServer.Run()
	if err != nil {
		utils.DefaultLogger.Error("MCP 服务器运行出错", zap.Error(err))
	} else {
		utils.DefaultLogger.Info("MCP 服务器已停止。")
	}
	return err
}

// --- 工具结果辅助函数 ---

func toolJSON(v any) (*protocol.CallToolResult, error) {
	encoded, err := sonic.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("序列化工具结果失败: %w", err)
	}
	return &protocol.CallToolResult{
		Content: []protocol.Content{protocol.TextContent{Type: "text", Text: string(encoded)}},
	}, nil
}

func toolError(message string) *protocol.CallToolResult {
	message = utils.ScrubCredentials(message)
	return &protocol.CallToolResult{
		Content: []protocol.Content{protocol.TextContent{Type: "text", Text: fmt.Sprintf(`{"error": %q}`, message)}},
		IsError: true,
	}
}
