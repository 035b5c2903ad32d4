package databases

import (
	"context"
	"database/sql"
	"strings"

	"github.com/cbc3929/bi_agent_server/internal/utils"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// executeMySQLQuery 在 MySQL 上以只读事务执行查询并统一为 QueryResult。
// 与 pgx 侧保持完全相同的结果形态与错误语义。
func executeMySQLQuery(ctx context.Context, db *sqlx.DB, sqlText string, maxRows int, args ...any) (*QueryResult, error) {
	tx, err := db.BeginTxx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, NewExecutionError("开始数据库事务失败: %v", err)
	}
	// 只读事务，结束时回滚即可
	defer func() {
		_ = tx.Rollback()
	}()

	utils.DefaultLogger.Debug("数据库操作: 只读模式 (mysql)", zap.String("sql", sqlText))

	rows, err := tx.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, NewExecutionError("数据库查询执行错误: %v", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, NewExecutionError("读取结果列失败: %v", err)
	}
	if len(columns) == 0 {
		// 有行但没有列按执行错误处理
		return nil, NewExecutionError("查询未返回任何列，无法作为结果集处理")
	}

	// database/sql 的列类型元数据。MySQL 驱动报告的类型名是大写的
	// (VARCHAR, DATETIME...)，为与 Postgres 侧统一，这里归一为小写。
	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, NewExecutionError("读取列类型失败: %v", err)
	}
	types := make([]ColumnType, 0, len(columns))
	for i, name := range columns {
		typeName := "unknown"
		if i < len(columnTypes) && columnTypes[i] != nil {
			typeName = normalizeMySQLTypeName(columnTypes[i].DatabaseTypeName())
		}
		types = append(types, ColumnType{Name: name, Type: typeName})
	}

	result := &QueryResult{Rows: []map[string]any{}, Types: types}
	for rows.Next() {
		if maxRows > 0 && len(result.Rows) >= maxRows {
			return nil, NewExecutionError("查询结果超出行数上限 (%d 行)，请在查询中使用 LIMIT", maxRows)
		}

		// 扫描到 any 切片，再逐列规范化
		values := make([]any, len(columns))
		pointers := make([]any, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, NewExecutionError("读取行数据失败: %v", err)
		}

		rowMap := make(map[string]any, len(columns))
		for i, name := range columns {
			rowMap[name] = NormalizeValue(values[i])
		}
		result.Rows = append(result.Rows, rowMap)
	}

	if err := rows.Err(); err != nil {
		return nil, NewExecutionError("迭代结果行时出错: %v", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, NewExecutionError("提交数据库事务失败: %v", err)
	}

	return result, nil
}

// normalizeMySQLTypeName 把 MySQL 驱动的大写类型名归一为小写。
// information_schema 的系统目录在 MySQL 里同样是大写字段名，
// 结构探查 (structure 包) 依赖这里统一之后的小写形态。
func normalizeMySQLTypeName(name string) string {
	if name == "" {
		return "unknown"
	}
	return strings.ToLower(name)
}
