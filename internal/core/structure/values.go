package structure

import (
	"fmt"
	"strings"

	"github.com/cbc3929/bi_agent_server/internal/utils"
	"go.uber.org/zap"
)

// --- 数据库 NULL 值处理辅助函数 ---

// dbString 安全地从 map[string]any 中获取字符串，处理 nil
func dbString(v any) string {
	if v == nil {
		return ""
	}
	if str, ok := v.(string); ok {
		return str
	}
	utils.DefaultLogger.Warn("预期数据库返回字符串，但类型不匹配", zap.Any("value", v))
	return ""
}

// dbStringPtr 安全地从 map[string]any 中获取字符串指针，处理 nil
func dbStringPtr(v any) *string {
	if v == nil {
		return nil
	}
	if str, ok := v.(string); ok {
		return &str
	}
	utils.DefaultLogger.Warn("预期数据库返回字符串（用于指针），但类型不匹配", zap.Any("value", v))
	return nil
}

// dbInt64 安全地从 map[string]any 中获取 int64，处理 nil 和类型转换
func dbInt64(v any) int64 {
	if v == nil {
		return 0
	}
	switch val := v.(type) {
	case int64:
		return val
	case int32:
		return int64(val)
	case int:
		return int64(val)
	case uint64:
		return int64(val)
	case float64: // reltuples 返回 float8
		return int64(val)
	case float32:
		return int64(val)
	case string:
		// MySQL 驱动在某些模式下把数字列以文本返回
		var n int64
		if _, err := fmt.Sscanf(val, "%d", &n); err == nil {
			return n
		}
		return 0
	default:
		utils.DefaultLogger.Warn("预期数据库返回整数类型，但类型不匹配",
			zap.Any("value", v), zap.String("type", fmt.Sprintf("%T", v)))
		return 0
	}
}

// dbBool 安全地从 map[string]any 中获取布尔值，处理 nil 和数值形式
func dbBool(v any) bool {
	if v == nil {
		return false
	}
	switch val := v.(type) {
	case bool:
		return val
	case int64:
		return val != 0
	case int:
		return val != 0
	case string:
		return val == "t" || val == "true" || val == "1" || val == "YES"
	default:
		return false
	}
}

// stringInSlice 检查字符串是否在字符串切片中
func stringInSlice(a string, list []string) bool {
	for _, b := range list {
		if b == a {
			return true
		}
	}
	return false
}

// interfaceSliceToStringSlice 将 []any (通常来自数据库驱动) 转换为 []string
func interfaceSliceToStringSlice(slice any) []string {
	if slice == nil {
		return nil
	}
	if interfaceSlice, ok := slice.([]any); ok {
		stringSlice := make([]string, 0, len(interfaceSlice))
		for _, item := range interfaceSlice {
			if item == nil {
				continue
			}
			if str, ok := item.(string); ok {
				stringSlice = append(stringSlice, str)
			} else {
				utils.DefaultLogger.Warn("数组元素类型不是字符串", zap.Any("value", item))
			}
		}
		return stringSlice
	} else if stringSlice, ok := slice.([]string); ok {
		return stringSlice
	}

	utils.DefaultLogger.Warn("预期数据库返回数组类型，但类型不匹配",
		zap.Any("value", slice), zap.String("type", fmt.Sprintf("%T", slice)))
	return nil
}

// splitCommaList 拆分 GROUP_CONCAT 产生的逗号分隔列表
func splitCommaList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
