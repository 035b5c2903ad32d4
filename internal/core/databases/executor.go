package databases

import (
	"context"
	"errors"

	"github.com/cbc3929/bi_agent_server/internal/utils"
	"go.uber.org/zap"

	"github.com/jackc/pgx/v5"        // pgx 核心
	"github.com/jackc/pgx/v5/pgconn" // 用于错误类型检查
	"github.com/jackc/pgx/v5/pgxpool"
)

// executePgxQuery 在 Postgres 上以只读事务执行查询并统一为 QueryResult。
// maxRows 为结果行数上限，超限报告 *ExecutionError。
func executePgxQuery(ctx context.Context, pool *pgxpool.Pool, sql string, maxRows int, args ...any) (*QueryResult, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, NewExecutionError("获取数据库连接失败: %v", err)
	}
	defer conn.Release() // 确保连接在使用后返回池中

	// BI 管线只读，全部走只读事务
	txOptions := pgx.TxOptions{AccessMode: pgx.ReadOnly}
	utils.DefaultLogger.Debug("数据库操作: 只读模式", zap.String("sql", sql))

	tx, err := conn.BeginTx(ctx, txOptions)
	if err != nil {
		return nil, NewExecutionError("开始数据库事务失败: %v", err)
	}
	// 确保未提交的事务最终被回滚
	defer func() {
		_ = tx.Rollback(ctx) // 忽略回滚错误
	}()

	rows, err := tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, pgxExecutionError(err)
	}
	defer rows.Close() // 确保 rows 被关闭

	result, err := pgxRowsToResult(rows, maxRows)
	if err != nil {
		return nil, err
	}

	// 提交事务（只读事务提交开销可忽略）
	if err := tx.Commit(ctx); err != nil {
		return nil, NewExecutionError("提交数据库事务失败: %v", err)
	}

	return result, nil
}

// pgxExecutionError 把 pgx 的错误转换为带细节的 ExecutionError。
func pgxExecutionError(err error) *ExecutionError {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// PgError 携带 SQLSTATE，修复提示词会用到完整信息
		return NewExecutionError("数据库查询执行错误: %s (Code: %s, Detail: %s)", pgErr.Message, pgErr.Code, pgErr.Detail)
	}
	return NewExecutionError("数据库查询执行错误: %v", err)
}

// pgxRowsToResult 将 pgx.Rows 转换为 QueryResult。
// 列类型名通过连接的 TypeMap 按 OID 解析。
func pgxRowsToResult(rows pgx.Rows, maxRows int) (*QueryResult, error) {
	fieldDescriptions := rows.FieldDescriptions()
	if len(fieldDescriptions) == 0 {
		// 有行但没有列（或驱动返回非表格响应）按执行错误处理
		return nil, NewExecutionError("查询未返回任何列，无法作为结果集处理")
	}

	types := make([]ColumnType, 0, len(fieldDescriptions))
	typeMap := rows.Conn().TypeMap()
	for _, fd := range fieldDescriptions {
		typeName := "unknown"
		if t, ok := typeMap.TypeForOID(fd.DataTypeOID); ok {
			typeName = t.Name
		}
		types = append(types, ColumnType{Name: fd.Name, Type: typeName})
	}

	result := &QueryResult{Rows: []map[string]any{}, Types: types}
	for rows.Next() {
		if maxRows > 0 && len(result.Rows) >= maxRows {
			return nil, NewExecutionError("查询结果超出行数上限 (%d 行)，请在查询中使用 LIMIT", maxRows)
		}
		values, err := rows.Values()
		if err != nil {
			return nil, NewExecutionError("读取行数据失败: %v", err)
		}

		rowMap := make(map[string]any, len(fieldDescriptions))
		for i, fd := range fieldDescriptions {
			rowMap[fd.Name] = NormalizeValue(values[i])
		}
		result.Rows = append(result.Rows, rowMap)
	}

	// 显式检查迭代过程中是否有错误
	if err := rows.Err(); err != nil {
		return nil, pgxExecutionError(err)
	}

	return result, nil
}
