package config

import (
	"os"      // 用于读取环境变量
	"strconv" // 用于将字符串转换为数字等
	"time"    // 用于时间相关的配置，如超时

	"github.com/cbc3929/bi_agent_server/internal/utils"
	"github.com/joho/godotenv" // 用于加载 .env 文件
	"go.uber.org/zap"
)

// Config 结构体定义了应用的所有配置项
type Config struct {
	ServerAddr        string // HTTP API 监听地址 (例如: ":8080")
	MCPServerAddr     string // MCP 机器接口监听地址 (例如: ":8181")
	MCPEnabled        bool   // 是否同时启动 MCP 接口
	LogLevel          string // 日志级别 (例如: "debug", "info", "warn", "error")
	DataDir           string // 图表/看板/会话 JSON 存储目录
	ChartKnowledgeDir string // 存放图表族用法知识 YAML 文件的目录路径
	// --- LLM 相关配置 ---
	LLMProvider string        // LLM 提供方标识（目前为 OpenAI 兼容接口）
	LLMAPIKey   string        // LLM API Key
	LLMBaseURL  string        // LLM API 地址（为空时使用官方默认）
	LLMModel    string        // 模型名称
	LLMTimeout  time.Duration // 单次补全调用超时
	// --- Agent 管线相关配置 ---
	QueryMaxRetries int           // 修复循环的最大重试次数（总尝试次数 = 重试 + 1）
	HistoryWindow   int           // 组装提示词时引用的最近会话轮数
	QueryTimeout    time.Duration // 单条 SQL 的执行超时（层级限制）
	QueryMaxRows    int           // 单条 SQL 返回行数上限（层级限制）
	// --- 数据库连接池相关配置 ---
	DBConnMaxLifetime time.Duration // 连接池中连接的最大生命周期
	DBConnMaxIdleTime time.Duration // 连接池中连接的最大空闲时间
	DBMaxOpenConns    int           // 连接池最大打开连接数
	DBMinOpenConns    int           // 连接池最小空闲连接数
}

// LoadConfig 加载配置信息
// 它首先尝试加载项目根目录下的 .env 文件（如果存在），
// 然后从环境变量中读取配置项。如果环境变量未设置，则使用默认值。
func LoadConfig() *Config {
	// 尝试加载 .env 文件，忽略错误（可能文件不存在）
	err := godotenv.Load()
	if err != nil {
		utils.DefaultLogger.Warn("未找到 .env 配置文件或读取失败", zap.Error(err))
	}

	cfg := &Config{
		// 设置默认值
		ServerAddr:        getEnv("SERVER_ADDR", ":8080"),
		MCPServerAddr:     getEnv("MCP_SERVER_ADDR", ":8181"),
		MCPEnabled:        getEnvBool("MCP_ENABLED", false),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		DataDir:           getEnv("DATA_DIR", "./data"),
		ChartKnowledgeDir: getEnv("CHART_KNOWLEDGE_DIR", "./chart_knowledge"),
		LLMProvider:       getEnv("LLM_PROVIDER", "openai"),
		LLMAPIKey:         getEnv("LLM_API_KEY", ""),
		LLMBaseURL:        getEnv("LLM_BASE_URL", ""),
		LLMModel:          getEnv("LLM_MODEL", "gpt-4o-mini"),
		LLMTimeout:        getEnvDuration("LLM_TIMEOUT", 60*time.Second),
		QueryMaxRetries:   getEnvInt("QUERY_MAX_RETRIES", 1),
		HistoryWindow:     getEnvInt("HISTORY_WINDOW", 10),
		QueryTimeout:      getEnvDuration("QUERY_TIMEOUT", 30*time.Second),
		QueryMaxRows:      getEnvInt("QUERY_MAX_ROWS", 5000),
		DBConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 1*time.Hour),
		DBConnMaxIdleTime: getEnvDuration("DB_CONN_MAX_IDLE_TIME", 30*time.Minute),
		DBMaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 10),
		DBMinOpenConns:    getEnvInt("DB_MIN_OPEN_CONNS", 2),
	}

	// 配置项验证
	if cfg.DBMinOpenConns > cfg.DBMaxOpenConns {
		utils.DefaultLogger.Info("警告: DB_MIN_OPEN_CONNS 大于 DB_MAX_OPEN_CONNS, 将使用 DB_MAX_OPEN_CONNS 作为最小值。")
		cfg.DBMinOpenConns = cfg.DBMaxOpenConns
	}
	if cfg.QueryMaxRetries < 0 {
		utils.DefaultLogger.Info("警告: QUERY_MAX_RETRIES 不能为负数，将使用 0。")
		cfg.QueryMaxRetries = 0
	}
	if cfg.LLMAPIKey == "" {
		utils.DefaultLogger.Warn("LLM_API_KEY 未设置，LLM 调用将会失败。")
	}

	utils.DefaultLogger.Info("配置加载完成",
		zap.String("ServerAddr", cfg.ServerAddr),
		zap.Bool("MCPEnabled", cfg.MCPEnabled),
		zap.String("LogLevel", cfg.LogLevel),
		zap.String("LLMModel", cfg.LLMModel),
		zap.Int("QueryMaxRetries", cfg.QueryMaxRetries),
	)
	return cfg
}

// --- 辅助函数 ---

// getEnv 读取环境变量，如果未设置则返回默认值
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvInt 读取环境变量并解析为整数，如果未设置或解析失败则返回默认值
func getEnvInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		utils.DefaultLogger.Warn("警告: 无法将环境变量解析为整数, 将使用默认值",
			zap.String("key", key),
			zap.String("value", valueStr),
			zap.Error(err),
			zap.Int("defaultValue", defaultValue),
		)
		return defaultValue
	}
	return value
}

// getEnvBool 读取环境变量并解析为布尔值，如果未设置或解析失败则返回默认值
func getEnvBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		utils.DefaultLogger.Warn("警告: 无法将环境变量解析为布尔值, 将使用默认值",
			zap.String("key", key),
			zap.String("value", valueStr),
			zap.Error(err),
			zap.Bool("defaultValue", defaultValue),
		)
		return defaultValue
	}
	return value
}

// getEnvDuration 读取环境变量并解析为时间段，如果未设置或解析失败则返回默认值
// 期望格式如 "1h", "30m", "10s"
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		utils.DefaultLogger.Warn("警告: 无法将环境变量解析为时间段, 将使用默认值",
			zap.String("key", key),
			zap.String("value", valueStr),
			zap.Error(err),
			zap.Duration("defaultValue", defaultValue),
		)
		return defaultValue
	}
	return value
}
