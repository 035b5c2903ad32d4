package databases

import (
	"fmt"
	"time"

	"github.com/cbc3929/bi_agent_server/internal/utils"
)

// ColumnType 描述结果集中一列的名称与推断类型。
type ColumnType struct {
	Name string `json:"name"` // 列名
	Type string `json:"type"` // 驱动报告的类型名 (例如: int4, varchar, DATETIME)
}

// QueryResult 是两种后端统一之后的查询结果形态。
// 不变量: Types 的长度等于任意一行的键数量；Rows 为空是合法结果，
// 与执行错误是两种不同的状态。所有值都是 JSON 安全的标量或 nil。
type QueryResult struct {
	Rows  []map[string]any `json:"rows"`
	Types []ColumnType     `json:"types"`
}

// RowCount 返回结果行数。
func (r *QueryResult) RowCount() int {
	if r == nil {
		return 0
	}
	return len(r.Rows)
}

// ColumnNames 按列顺序返回所有列名。
func (r *QueryResult) ColumnNames() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.Types))
	for _, t := range r.Types {
		names = append(names, t.Name)
	}
	return names
}

// HasColumn 判断结果集中是否存在指定列。
func (r *QueryResult) HasColumn(name string) bool {
	if r == nil {
		return false
	}
	for _, t := range r.Types {
		if t.Name == name {
			return true
		}
	}
	return false
}

// SampleRows 返回前 n 行（用于提示词中的样例数据）。
func (r *QueryResult) SampleRows(n int) []map[string]any {
	if r == nil || n <= 0 {
		return nil
	}
	if n > len(r.Rows) {
		n = len(r.Rows)
	}
	return r.Rows[:n]
}

// ExecutionError 表示驱动层面的执行失败（语法、权限、超时、行数上限等）。
// Message 已经过凭证清洗，可以直接透传给 UI。
type ExecutionError struct {
	Message string
}

// Error 实现 error 接口。
func (e *ExecutionError) Error() string {
	return e.Message
}

// NewExecutionError 创建一个凭证已清洗的 ExecutionError。
func NewExecutionError(format string, args ...any) *ExecutionError {
	return &ExecutionError{Message: utils.ScrubCredentials(fmt.Sprintf(format, args...))}
}

// NormalizeValue 将驱动返回的值规范化为 JSON 安全的标量。
// 时间转为 RFC3339 字符串，字节串转为字符串，基础标量原样保留，
// 其余未知类型退化为其字符串表示。
func NormalizeValue(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case bool, string, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64, float32, float64:
		return val
	case time.Time:
		return val.Format(time.RFC3339)
	case []byte:
		return string(val)
	case []string:
		return val
	case []any:
		// 数组列 (如 pg 的 array_agg) 逐元素规范化
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = NormalizeValue(item)
		}
		return out
	default:
		// pgx 的 numeric、数组等复合类型走字符串兜底
		return fmt.Sprintf("%v", val)
	}
}
