package prompts

import (
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/cbc3929/bi_agent_server/internal/core/databases"
)

// HistoryTurn 是提示词中引用的一轮历史对话。
type HistoryTurn struct {
	Role    string `json:"role"`    // "user" 或 "assistant"
	Content string `json:"content"` // 该轮的文本内容
}

// maxHistoryTurns 是提示词中引用历史的硬上限。
// 调用方通常已经按配置窗口截断过，这里兜底防止提示词无限膨胀。
const maxHistoryTurns = 15

// sampleRowCount 图表提示词中嵌入的样例行数。
const sampleRowCount = 3

// BuildSQLPrompt 组装 SQL 生成提示词。
// structureText 为空时提示词中会如实标注 schema 缺失，由模型自行应对。
func BuildSQLPrompt(structureText string, history []HistoryTurn, request, dbType string) (system, user string) {
	var b strings.Builder

	b.WriteString("Target database dialect: ")
	if dbType == "" {
		b.WriteString("unknown (assume standard SQL)")
	} else {
		b.WriteString(dbType)
	}
	b.WriteString("\n\nDatabase schema:\n")
	if structureText == "" {
		b.WriteString("(schema information is unavailable)\n")
	} else {
		b.WriteString(structureText)
		b.WriteString("\n")
	}

	writeHistory(&b, history)

	b.WriteString("\nUser question: ")
	b.WriteString(request)

	return sqlSystemPrompt, b.String()
}

// BuildRepairPrompt 组装 SQL 修复提示词。
// errorMessage 传 EmptyResultSentinel 表示查询成功但没有返回任何行。
// schema 使用详细模式文本，修复比生成更需要索引和默认值信息。
func BuildRepairPrompt(structureText, failedSQL, errorMessage, request, dbType string) (system, user string) {
	var b strings.Builder

	b.WriteString("Target database dialect: ")
	if dbType == "" {
		b.WriteString("unknown (assume standard SQL)")
	} else {
		b.WriteString(dbType)
	}
	b.WriteString("\n\nDatabase schema (verbose):\n")
	if structureText == "" {
		b.WriteString("(schema information is unavailable)\n")
	} else {
		b.WriteString(structureText)
		b.WriteString("\n")
	}

	b.WriteString("\nUser question: ")
	b.WriteString(request)

	b.WriteString("\n\nFailing query:\n")
	b.WriteString(failedSQL)

	b.WriteString("\n\nWhat happened: ")
	if errorMessage == "" {
		b.WriteString(EmptyResultSentinel)
	} else {
		b.WriteString(errorMessage)
	}

	return repairSystemPrompt, b.String()
}

// BuildChartPrompt 组装图表规格生成提示词。
// knowledge 是图表族用法知识文本 (可为空)，result 为 nil 时按空结果处理。
func BuildChartPrompt(request string, result *databases.QueryResult, knowledge string) (system, user string) {
	var b strings.Builder

	b.WriteString("Result columns:\n")
	if result == nil || len(result.Types) == 0 {
		b.WriteString("(no columns)\n")
	} else {
		for _, t := range result.Types {
			fmt.Fprintf(&b, "- %s (%s)\n", t.Name, t.Type)
		}
	}

	fmt.Fprintf(&b, "\nTotal rows: %d\n", result.RowCount())

	b.WriteString("\nSample rows (first ")
	fmt.Fprintf(&b, "%d):\n", sampleRowCount)
	sample := result.SampleRows(sampleRowCount)
	if len(sample) == 0 {
		b.WriteString("(no rows)\n")
	} else {
		for _, row := range sample {
			if encoded, err := sonic.MarshalString(row); err == nil {
				b.WriteString(encoded)
				b.WriteString("\n")
			}
		}
	}

	if knowledge != "" {
		b.WriteString("\nChart family usage notes:\n")
		b.WriteString(knowledge)
		b.WriteString("\n")
	}

	b.WriteString("\nUser intent: ")
	b.WriteString(request)

	return chartSystemPrompt, b.String()
}

// BuildTitlePrompt 组装图表标题生成提示词。
func BuildTitlePrompt(request, chartSpecJSON string) (system, user string) {
	var b strings.Builder
	b.WriteString("User question: ")
	b.WriteString(request)
	b.WriteString("\n\nChart specification:\n")
	b.WriteString(chartSpecJSON)
	return titleSystemPrompt, b.String()
}

// BuildIntentPrompt 组装意图分类提示词。
func BuildIntentPrompt(request string, history []HistoryTurn) (system, user string) {
	var b strings.Builder
	writeHistory(&b, history)
	b.WriteString("\nLatest user message: ")
	b.WriteString(request)
	return intentSystemPrompt, b.String()
}

// BuildEditPrompt 组装图表编辑提示词。
// columns 是底层数据的列清单，instruction 是用户的自然语言修改指令。
func BuildEditPrompt(currentSpecJSON string, columns []databases.ColumnType, instruction string) (system, user string) {
	var b strings.Builder

	b.WriteString("Current chart specification:\n")
	if currentSpecJSON == "" {
		b.WriteString("(none)\n")
	} else {
		b.WriteString(currentSpecJSON)
		b.WriteString("\n")
	}

	b.WriteString("\nUnderlying data columns:\n")
	if len(columns) == 0 {
		b.WriteString("(no columns)\n")
	} else {
		for _, t := range columns {
			fmt.Fprintf(&b, "- %s (%s)\n", t.Name, t.Type)
		}
	}

	b.WriteString("\nEdit instruction: ")
	b.WriteString(instruction)

	return editSystemPrompt, b.String()
}

// writeHistory 把有界的历史对话写入提示词。
func writeHistory(b *strings.Builder, history []HistoryTurn) {
	if len(history) == 0 {
		return
	}
	if len(history) > maxHistoryTurns {
		history = history[len(history)-maxHistoryTurns:]
	}
	b.WriteString("\nRecent conversation:\n")
	for _, turn := range history {
		role := turn.Role
		if role == "" {
			role = "user"
		}
		fmt.Fprintf(b, "[%s] %s\n", role, turn.Content)
	}
}
