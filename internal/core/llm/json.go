package llm

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// ExtractJSON 从 LLM 输出中剥离出 JSON 对象文本。
// 模型经常把 JSON 包在 ```json 代码块里，或在前后追加说明文字，
// 这里取第一个 '{' 到最后一个 '}' 之间的内容并校验合法性。
func ExtractJSON(text string) (string, error) {
	trimmed := strings.TrimSpace(text)

	// 剥离代码块围栏
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```")
		if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
			trimmed = trimmed[:idx]
		}
		trimmed = strings.TrimSpace(trimmed)
	}

	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start < 0 || end < start {
		return "", fmt.Errorf("输出中未找到 JSON 对象")
	}
	candidate := trimmed[start : end+1]

	if !gjson.Valid(candidate) {
		return "", fmt.Errorf("输出中的 JSON 对象无法解析")
	}
	return candidate, nil
}
