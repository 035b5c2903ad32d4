// Package charts 实现图表规格的解析、校验、编译与合成。
// LLM 产出的不是任意代码，而是一份受限的声明式图表规格 (ChartSpec)，
// 编译器只解释这份受限形式，渲染失败被隔离为可恢复的 RenderError。
package charts

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/bytedance/sonic"
)

// Family 是固定的图表族枚举。
type Family string

// 支持的图表族。渲染注册表以此为键，合成器的决策表也只能产出这些值。
const (
	FamilyLine          Family = "line"
	FamilyBar           Family = "bar"
	FamilyHorizontalBar Family = "horizontal_bar"
	FamilyPie           Family = "pie"
	FamilyDoughnut      Family = "doughnut"
	FamilyScatter       Family = "scatter"
	FamilyRadar         Family = "radar"
	FamilyPolar         Family = "polar"
)

// AllFamilies 按固定顺序列出全部图表族。
func AllFamilies() []Family {
	return []Family{
		FamilyLine, FamilyBar, FamilyHorizontalBar,
		FamilyPie, FamilyDoughnut, FamilyScatter,
		FamilyRadar, FamilyPolar,
	}
}

// Valid 判断图表族是否在支持范围内。
func (f Family) Valid() bool {
	switch f {
	case FamilyLine, FamilyBar, FamilyHorizontalBar,
		FamilyPie, FamilyDoughnut, FamilyScatter,
		FamilyRadar, FamilyPolar:
		return true
	}
	return false
}

// ChartSpec 是 LLM 产出的声明式图表规格。
// 所有字段绑定都是字面值：字段名必须存在于查询结果的列中，
// 颜色必须是具体的十六进制字符串，不允许引用任何函数或表达式。
type ChartSpec struct {
	Family      Family   `json:"family"`                 // 图表族
	XField      string   `json:"x_field"`                // X 轴 / 分类标签列
	YFields     []string `json:"y_fields"`               // 数值列 (至少一个)
	SeriesField string   `json:"series_field,omitempty"` // 可选: 按该列的值拆分序列
	Colors      []string `json:"colors,omitempty"`       // 可选: 字面十六进制颜色
	Stacked     bool     `json:"stacked,omitempty"`      // 可选: 柱状图堆叠
}

// hexColorPattern 匹配 #RGB / #RRGGBB / #RRGGBBAA 形式的字面颜色。
var hexColorPattern = regexp.MustCompile(`^#[0-9a-fA-F]{3,8}$`)

// ParseSpec 解析并做结构级校验。
// 这里只校验规格自身的合法性，字段与数据列的匹配在编译阶段完成。
func ParseSpec(jsonText string) (*ChartSpec, error) {
	var spec ChartSpec
	if err := sonic.UnmarshalString(jsonText, &spec); err != nil {
		return nil, fmt.Errorf("图表规格 JSON 解析失败: %w", err)
	}

	if !spec.Family.Valid() {
		return nil, fmt.Errorf("不支持的图表族: %q", spec.Family)
	}
	if strings.TrimSpace(spec.XField) == "" {
		return nil, fmt.Errorf("图表规格缺少 x_field")
	}
	if len(spec.YFields) == 0 {
		return nil, fmt.Errorf("图表规格缺少 y_fields")
	}
	for _, y := range spec.YFields {
		if strings.TrimSpace(y) == "" {
			return nil, fmt.Errorf("y_fields 中包含空列名")
		}
	}
	for _, c := range spec.Colors {
		if !hexColorPattern.MatchString(c) {
			// 颜色必须是预采样后的字面值，函数引用一律拒绝
			return nil, fmt.Errorf("非法颜色值 %q: 只接受字面十六进制颜色", c)
		}
	}

	return &spec, nil
}

// JSON 返回规格的规范化 JSON 文本。
func (s *ChartSpec) JSON() string {
	encoded, err := sonic.MarshalString(s)
	if err != nil {
		return ""
	}
	return encoded
}

// RenderError 表示规格编译或渲染阶段的失败。
// SourceText 携带出错的规格原文，随错误一起展示给用户便于手动修正。
type RenderError struct {
	Message    string
	SourceText string
}

func (e *RenderError) Error() string {
	return e.Message
}
