package databases

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestQueryResultAccessors(t *testing.T) {
	result := &QueryResult{
		Rows: []map[string]any{
			{"month": "2026-01", "amount": 100.0},
			{"month": "2026-02", "amount": 80.0},
		},
		Types: []ColumnType{
			{Name: "month", Type: "varchar"},
			{Name: "amount", Type: "numeric"},
		},
	}

	assert.Equal(t, 2, result.RowCount())
	assert.Equal(t, []string{"month", "amount"}, result.ColumnNames())
	assert.True(t, result.HasColumn("amount"))
	assert.False(t, result.HasColumn("profit"))
	assert.Len(t, result.SampleRows(1), 1)
	assert.Len(t, result.SampleRows(10), 2)

	// nil 结果所有访问器都安全
	var nilResult *QueryResult
	assert.Equal(t, 0, nilResult.RowCount())
	assert.Nil(t, nilResult.ColumnNames())
	assert.False(t, nilResult.HasColumn("month"))
	assert.Nil(t, nilResult.SampleRows(3))
}

func TestNormalizeValue(t *testing.T) {
	assert.Nil(t, NormalizeValue(nil))
	assert.Equal(t, int64(7), NormalizeValue(int64(7)))
	assert.Equal(t, "hello", NormalizeValue([]byte("hello")))

	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	assert.Equal(t, "2026-01-02T03:04:05Z", NormalizeValue(ts))

	// 数组列 (如 pg 的 array_agg) 逐元素规范化
	assert.Equal(t, []any{"a", "b"}, NormalizeValue([]any{[]byte("a"), "b"}))
	assert.Equal(t, []string{"x", "y"}, NormalizeValue([]string{"x", "y"}))
}
