package databases

import (
	"context"
	"errors"
	"fmt"
	"net/url" // 用于解析连接字符串，确保格式正确
	"strings" // 字符串操作
	"sync"    // 用于并发控制 (Mutex)
	"time"

	"github.com/cbc3929/bi_agent_server/internal/config"
	"github.com/cbc3929/bi_agent_server/internal/utils"
	"github.com/go-sql-driver/mysql" // MySQL DSN 解析
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx" // MySQL 侧连接池
	"go.uber.org/zap"
)

// registeredConn 记录一条已注册连接的元信息。
type registeredConn struct {
	connString string // 规范化后的连接字符串
	dbType     string // "postgres" 或 "mysql"
}

// connService 是 Service 接口的双后端实现。
// Postgres 走 pgxpool，MySQL 走 sqlx + go-sql-driver，
// 两者统一通过 connID 寻址。
type connService struct {
	config     *config.Config            // 应用配置
	connMap    map[string]registeredConn // connID -> 连接元信息
	reverseMap map[string]string         // 规范化连接字符串 -> connID
	pgPools    map[string]*pgxpool.Pool  // connID -> pgx 连接池 (仅 postgres)
	myDBs      map[string]*sqlx.DB       // connID -> sqlx 连接池 (仅 mysql)
	mapMutex   sync.RWMutex              // 保护 connMap 和 reverseMap 的读写锁
	poolMutex  sync.Mutex                // 保护池映射的互斥锁 (主要用于创建/删除)
}

// NewService 创建一个新的双后端数据库服务实例。
func NewService(cfg *config.Config) Service {
	utils.DefaultLogger.Info("初始化数据库服务 (postgres + mysql)...")
	return &connService{
		config:     cfg,
		connMap:    make(map[string]registeredConn),
		reverseMap: make(map[string]string),
		pgPools:    make(map[string]*pgxpool.Pool),
		myDBs:      make(map[string]*sqlx.DB),
		// mapMutex 和 poolMutex 默认是零值可用
	}
}

// RegisterConnection 实现 Service 接口。
func (s *connService) RegisterConnection(ctx context.Context, connString, dbType string) (string, error) {
	// 规范化连接字符串并校验基本格式
	normalized, err := normalizeConnectionString(connString, dbType)
	if err != nil {
		return "", fmt.Errorf("无效的连接字符串格式: %w", err)
	}

	// --- 读锁保护检查是否存在 ---
	s.mapMutex.RLock()
	existingConnID, ok := s.reverseMap[normalized]
	s.mapMutex.RUnlock()
	// --- 读锁结束 ---

	if ok {
		utils.DefaultLogger.Info("连接字符串已注册，返回现有 connID", zap.String("connID", existingConnID))
		return existingConnID, nil
	}

	// --- 写锁保护创建新映射 ---
	s.mapMutex.Lock()
	defer s.mapMutex.Unlock()

	// 双重检查，防止在获取写锁期间其他 goroutine 已经注册
	if existingConnID, ok = s.reverseMap[normalized]; ok {
		return existingConnID, nil
	}

	// 生成新的确定性 connID
	newConnID, err := utils.ConnectionStringToUUID(normalized, dbType)
	if err != nil {
		return "", fmt.Errorf("生成连接 ID 失败: %w", err)
	}
	s.connMap[newConnID] = registeredConn{connString: normalized, dbType: dbType}
	s.reverseMap[normalized] = newConnID
	utils.DefaultLogger.Info("注册新连接",
		zap.String("connID", newConnID),
		zap.String("dbType", dbType),
		zap.String("connString", utils.ScrubCredentials(normalized)), // 日志中不暴露凭证
	)

	return newConnID, nil
}

// DisconnectConnection 实现 Service 接口。
func (s *connService) DisconnectConnection(ctx context.Context, connID string) error {
	s.mapMutex.Lock() // 获取写锁，因为要修改映射
	meta, ok := s.connMap[connID]
	if ok {
		delete(s.connMap, connID)
		delete(s.reverseMap, meta.connString) // 清理反向映射
	}
	s.mapMutex.Unlock()

	if !ok {
		utils.DefaultLogger.Warn("尝试断开未注册的连接", zap.String("connID", connID))
		return errors.New("未知的 connID")
	}

	utils.DefaultLogger.Info("正在断开连接", zap.String("connID", connID))

	// --- 锁保护关闭和删除连接池 ---
	s.poolMutex.Lock()
	defer s.poolMutex.Unlock()

	if pool, exists := s.pgPools[connID]; exists {
		pool.Close() // pgxpool.Close() 是同步的
		delete(s.pgPools, connID)
		utils.DefaultLogger.Info("pgx 连接池已关闭并移除", zap.String("connID", connID))
	}
	if db, exists := s.myDBs[connID]; exists {
		if err := db.Close(); err != nil {
			utils.DefaultLogger.Warn("关闭 mysql 连接池时出错", zap.String("connID", connID), zap.Error(err))
		}
		delete(s.myDBs, connID)
		utils.DefaultLogger.Info("mysql 连接池已关闭并移除", zap.String("connID", connID))
	}

	return nil
}

// ConnectionType 实现 Service 接口。
func (s *connService) ConnectionType(connID string) (string, bool) {
	s.mapMutex.RLock()
	defer s.mapMutex.RUnlock()
	meta, ok := s.connMap[connID]
	if !ok {
		return "", false
	}
	return meta.dbType, true
}

// ExecuteQuery 实现 Service 接口。
// 按连接类型分发给对应的后端执行器，统一施加超时与行数上限。
func (s *connService) ExecuteQuery(ctx context.Context, connID string, sql string, args ...any) (*QueryResult, error) {
	s.mapMutex.RLock()
	meta, ok := s.connMap[connID]
	s.mapMutex.RUnlock()
	if !ok {
		return nil, fmt.Errorf("未知的 connID: %s", connID)
	}

	// 层级限制: 执行超时在分发前统一施加
	queryCtx, cancel := context.WithTimeout(ctx, s.config.QueryTimeout)
	defer cancel()

	switch meta.dbType {
	case TypeMySQL:
		db, err := s.getMySQLDB(connID, meta.connString)
		if err != nil {
			return nil, err
		}
		return executeMySQLQuery(queryCtx, db, sql, s.config.QueryMaxRows, args...)
	default:
		pool, err := s.getPgxPool(connID, meta.connString)
		if err != nil {
			return nil, err
		}
		return executePgxQuery(queryCtx, pool, sql, s.config.QueryMaxRows, args...)
	}
}

// CloseAll 实现 Service 接口。
func (s *connService) CloseAll(ctx context.Context) error {
	utils.DefaultLogger.Info("关闭所有数据库连接池...")

	s.poolMutex.Lock()
	s.mapMutex.Lock()
	defer s.poolMutex.Unlock()
	defer s.mapMutex.Unlock()

	for connID, pool := range s.pgPools {
		utils.DefaultLogger.Info("关闭 pgx 连接池", zap.String("connID", connID))
		pool.Close() // 同步关闭
	}
	for connID, db := range s.myDBs {
		utils.DefaultLogger.Info("关闭 mysql 连接池", zap.String("connID", connID))
		_ = db.Close()
	}

	// 清空所有映射
	s.pgPools = make(map[string]*pgxpool.Pool)
	s.myDBs = make(map[string]*sqlx.DB)
	s.connMap = make(map[string]registeredConn)
	s.reverseMap = make(map[string]string)
	utils.DefaultLogger.Info("所有数据库连接池已关闭。")
	return nil
}

// getPgxPool 获取或惰性创建 connID 对应的 pgx 连接池。
func (s *connService) getPgxPool(connID, connString string) (*pgxpool.Pool, error) {
	// --- 读锁检查池是否已存在 ---
	s.mapMutex.RLock()
	pool, exists := s.pgPools[connID]
	s.mapMutex.RUnlock()
	if exists {
		return pool, nil
	}

	// --- 池不存在，需要创建，获取 poolMutex ---
	s.poolMutex.Lock()
	defer s.poolMutex.Unlock()

	// 双重检查，防止在等待 poolMutex 期间池已被其他 goroutine 创建
	s.mapMutex.RLock()
	pool, exists = s.pgPools[connID]
	s.mapMutex.RUnlock()
	if exists {
		return pool, nil
	}

	utils.DefaultLogger.Info("pgx 连接池不存在，正在创建...", zap.String("connID", connID))
	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("解析连接字符串失败 (connID: %s): %w", connID, err)
	}

	// 应用配置中的连接池设置
	poolConfig.MaxConns = int32(s.config.DBMaxOpenConns)
	poolConfig.MinConns = int32(s.config.DBMinOpenConns)
	poolConfig.MaxConnLifetime = s.config.DBConnMaxLifetime
	poolConfig.MaxConnIdleTime = s.config.DBConnMaxIdleTime

	// 使用 context.Background() 创建，池的生命周期与应用相关，不应被单个请求取消
	newPool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("创建 pgx 连接池失败 (connID: %s): %s", connID, utils.ScrubCredentials(err.Error()))
	}

	// --- 写锁保护添加新池到映射 ---
	s.mapMutex.Lock()
	s.pgPools[connID] = newPool
	s.mapMutex.Unlock()

	return newPool, nil
}

// getMySQLDB 获取或惰性创建 connID 对应的 sqlx 连接池。
func (s *connService) getMySQLDB(connID, connString string) (*sqlx.DB, error) {
	s.mapMutex.RLock()
	db, exists := s.myDBs[connID]
	s.mapMutex.RUnlock()
	if exists {
		return db, nil
	}

	s.poolMutex.Lock()
	defer s.poolMutex.Unlock()

	s.mapMutex.RLock()
	db, exists = s.myDBs[connID]
	s.mapMutex.RUnlock()
	if exists {
		return db, nil
	}

	utils.DefaultLogger.Info("mysql 连接池不存在，正在创建...", zap.String("connID", connID))
	newDB, err := sqlx.Open("mysql", connString)
	if err != nil {
		return nil, fmt.Errorf("创建 mysql 连接池失败 (connID: %s): %w", connID, err)
	}

	// 应用配置中的连接池设置
	newDB.SetMaxOpenConns(s.config.DBMaxOpenConns)
	newDB.SetMaxIdleConns(s.config.DBMinOpenConns)
	newDB.SetConnMaxLifetime(s.config.DBConnMaxLifetime)
	newDB.SetConnMaxIdleTime(s.config.DBConnMaxIdleTime)

	// 首次创建时探活
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := newDB.PingContext(pingCtx); err != nil {
		_ = newDB.Close()
		return nil, NewExecutionError("mysql 连接探活失败: %v", err)
	}

	s.mapMutex.Lock()
	s.myDBs[connID] = newDB
	s.mapMutex.Unlock()

	return newDB, nil
}

// --- 内部辅助函数 ---

// normalizeConnectionString 按数据库类型规范化连接字符串。
// Postgres 确保带有 "postgresql://" 前缀；MySQL 用驱动的 ParseDSN 校验。
func normalizeConnectionString(connString, dbType string) (string, error) {
	trimmed := strings.TrimSpace(connString)
	if trimmed == "" {
		return "", errors.New("连接字符串不能为空")
	}

	if dbType == TypeMySQL {
		if _, err := mysql.ParseDSN(trimmed); err != nil {
			return "", fmt.Errorf("MySQL DSN 格式无效: %w", err)
		}
		return trimmed, nil
	}

	if !strings.HasPrefix(trimmed, "postgresql://") && !strings.HasPrefix(trimmed, "postgres://") {
		// 尝试添加协议后解析以验证基本格式
		if _, err := url.Parse("postgresql://" + trimmed); err != nil {
			return "", fmt.Errorf("连接字符串格式无效: %w", err)
		}
		return "postgresql://" + trimmed, nil
	}
	// 本身就带有协议前缀，直接验证
	if _, err := url.Parse(trimmed); err != nil {
		return "", fmt.Errorf("连接字符串格式无效: %w", err)
	}
	return trimmed, nil
}
