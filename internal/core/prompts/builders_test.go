package prompts

import (
	"fmt"
	"strings"
	"testing"

	"github.com/cbc3929/bi_agent_server/internal/core/databases"
	"github.com/stretchr/testify/assert"
)

func TestBuildSQLPrompt(t *testing.T) {
	history := []HistoryTurn{
		{Role: "user", Content: "上个月卖得怎么样"},
		{Role: "assistant", Content: "已生成销售汇总"},
	}
	system, user := BuildSQLPrompt("Table: public.orders", history, "按月统计订单金额", "postgres")

	assert.Equal(t, sqlSystemPrompt, system)
	assert.Contains(t, user, "Target database dialect: postgres")
	assert.Contains(t, user, "Table: public.orders")
	assert.Contains(t, user, "[user] 上个月卖得怎么样")
	assert.Contains(t, user, "[assistant] 已生成销售汇总")
	assert.Contains(t, user, "User question: 按月统计订单金额")
}

func TestBuildSQLPrompt_EmptyInputsStillProduceText(t *testing.T) {
	system, user := BuildSQLPrompt("", nil, "", "")
	assert.NotEmpty(t, system)
	assert.Contains(t, user, "unknown (assume standard SQL)")
	assert.Contains(t, user, "(schema information is unavailable)")
	assert.NotContains(t, user, "Recent conversation")
}

func TestBuildRepairPrompt_EmptyResultUsesSentinel(t *testing.T) {
	_, user := BuildRepairPrompt("Table: public.orders", "SELECT 1", "", "统计订单", "postgres")
	// 空结果与执行错误共用修复路径，靠哨兵文本区分
	assert.Contains(t, user, "What happened: "+EmptyResultSentinel)
	assert.Contains(t, user, "Failing query:\nSELECT 1")
}

func TestBuildRepairPrompt_EmbedsDriverError(t *testing.T) {
	_, user := BuildRepairPrompt("", "SELECT * FROM ordres", `relation "ordres" does not exist`, "统计订单", "postgres")
	assert.Contains(t, user, `relation "ordres" does not exist`)
	assert.Contains(t, user, "SELECT * FROM ordres")
}

func TestBuildChartPrompt(t *testing.T) {
	result := &databases.QueryResult{
		Rows: []map[string]any{
			{"month": "2026-01", "amount": 100.5},
			{"month": "2026-02", "amount": 88.0},
			{"month": "2026-03", "amount": 120.0},
			{"month": "2026-04", "amount": 95.0},
		},
		Types: []databases.ColumnType{
			{Name: "month", Type: "varchar"},
			{Name: "amount", Type: "numeric"},
		},
	}
	_, user := BuildChartPrompt("按月看销售额趋势", result, "line: best for trends over time")

	assert.Contains(t, user, "- month (varchar)")
	assert.Contains(t, user, "Total rows: 4")
	assert.Contains(t, user, "line: best for trends over time")
	assert.Contains(t, user, "User intent: 按月看销售额趋势")

	// 样例行不超过上限
	assert.Contains(t, user, "2026-03")
	assert.NotContains(t, user, "2026-04")
}

func TestBuildChartPrompt_NilResult(t *testing.T) {
	_, user := BuildChartPrompt("随便画点什么", nil, "")
	assert.Contains(t, user, "(no columns)")
	assert.Contains(t, user, "Total rows: 0")
	assert.Contains(t, user, "(no rows)")
}

func TestBuildIntentPrompt_HistoryBounded(t *testing.T) {
	history := make([]HistoryTurn, 0, 20)
	for i := 0; i < 20; i++ {
		history = append(history, HistoryTurn{Role: "user", Content: fmt.Sprintf("问题 %d", i)})
	}
	_, user := BuildIntentPrompt("最新的问题", history)

	// 只保留最近 15 轮
	assert.NotContains(t, user, "问题 4")
	assert.Contains(t, user, "问题 5")
	assert.Contains(t, user, "问题 19")
	assert.Equal(t, 15, strings.Count(user, "[user] 问题"))
	assert.Contains(t, user, "Latest user message: 最新的问题")
}

func TestBuildTitlePrompt(t *testing.T) {
	_, user := BuildTitlePrompt("按月看销售额", `{"family":"line"}`)
	assert.Contains(t, user, "User question: 按月看销售额")
	assert.Contains(t, user, `{"family":"line"}`)
}

func TestBuildEditPrompt(t *testing.T) {
	columns := []databases.ColumnType{{Name: "month", Type: "varchar"}, {Name: "amount", Type: "numeric"}}
	_, user := BuildEditPrompt(`{"family":"bar"}`, columns, "改成折线图")
	assert.Contains(t, user, `{"family":"bar"}`)
	assert.Contains(t, user, "- amount (numeric)")
	assert.Contains(t, user, "Edit instruction: 改成折线图")

	_, user = BuildEditPrompt("", nil, "改成折线图")
	assert.Contains(t, user, "(none)")
	assert.Contains(t, user, "(no columns)")
}
