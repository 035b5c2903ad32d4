package agent

import "fmt"

// GenerationError 表示 LLM 未能产出可用的 SQL 或分类结果。
// SQL 生成失败由修复循环兜底一次，其余场景直接带部分结果上浮。
type GenerationError struct {
	Message string
}

func (e *GenerationError) Error() string {
	return e.Message
}

// EmptyResultError 表示查询执行成功但没有任何行。
// 修复循环对它和 ExecutionError 的处理一致，但对用户的措辞不同：
// "没有匹配的数据" 而不是 "查询失败"。
type EmptyResultError struct {
	Query string // 最后一次执行的查询
}

func (e *EmptyResultError) Error() string {
	return fmt.Sprintf("查询没有返回任何匹配的数据: %s", e.Query)
}
