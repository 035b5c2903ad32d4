package databases

import (
	"context"
)

// 支持的数据库类型。
const (
	TypePostgres = "postgres"
	TypeMySQL    = "mysql"
)

// Service 定义了数据库服务的接口契约
// 这允许我们将具体的实现（pgx / sqlx）与使用它的代码（Agent、Handlers）解耦。
type Service interface {
	// RegisterConnection 注册一个数据库连接字符串，为其生成并返回一个唯一的 connID。
	// 如果该连接字符串已注册，则返回现有的 connID。
	// dbType: "postgres" 或 "mysql"。
	RegisterConnection(ctx context.Context, connString, dbType string) (string, error)

	// DisconnectConnection 关闭与指定 connID 关联的连接池并移除相关映射。
	DisconnectConnection(ctx context.Context, connID string) error

	// ConnectionType 返回已注册连接的数据库类型。
	// 未注册的 connID 返回 found=false。
	ConnectionType(connID string) (dbType string, found bool)

	// ExecuteQuery 在指定连接上以只读事务执行一条 SQL 查询，
	// 并把两种后端的结果统一为 QueryResult。
	// 执行受配置的超时与行数上限约束，超限以 *ExecutionError 报告。
	// sql 的占位符语法由各自后端决定（Postgres: $1..., MySQL: ?）。
	ExecuteQuery(ctx context.Context, connID string, sql string, args ...any) (*QueryResult, error)

	// CloseAll 关闭所有由该服务管理的连接池。通常在服务器关闭时调用。
	CloseAll(ctx context.Context) error
}
