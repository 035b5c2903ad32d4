package charts

import (
	"fmt"
	"strings"

	"github.com/cbc3929/bi_agent_server/internal/core/databases"
)

// Series 是渲染载荷中的一条数据序列。
type Series struct {
	Name  string    `json:"name"`            // 序列名 (图例)
	Data  []float64 `json:"data"`            // 与 Labels 对齐的数值
	Color string    `json:"color,omitempty"` // 字面十六进制颜色
}

// RenderPayload 是编译产物：前端拿到后可以直接绘制，
// 不需要再执行任何代码或访问除载荷以外的状态。
type RenderPayload struct {
	Family  Family      `json:"family"`
	Title   string      `json:"title,omitempty"`
	Labels  []string    `json:"labels,omitempty"` // 分类 / 时间标签
	Series  []Series    `json:"series,omitempty"`
	Points  [][]float64 `json:"points,omitempty"` // 散点图: [x, y] 对
	XAxis   string      `json:"x_axis,omitempty"`
	YAxis   []string    `json:"y_axis,omitempty"`
	Stacked bool        `json:"stacked,omitempty"`
}

// Renderer 把校验过的规格和查询结果转换为渲染载荷。
// 实现不得访问规格与结果以外的任何状态。
type Renderer interface {
	Render(spec *ChartSpec, result *databases.QueryResult) (*RenderPayload, error)
}

// defaultPalette 是预采样好的字面颜色序列，循环取用。
var defaultPalette = []string{
	"#5470c6", "#91cc75", "#fac858", "#ee6666",
	"#73c0de", "#3ba272", "#fc8452", "#9a60b4", "#ea7ccc",
}

// Registry 是图表族到渲染实现的固定映射。
// 这是生成规格能触达的全部渲染面，不提供任何注册以外的扩展点。
type Registry struct {
	renderers map[Family]Renderer
	palette   []string
}

// NewRegistry 创建带全部内置渲染器的注册表。
func NewRegistry() *Registry {
	r := &Registry{
		renderers: make(map[Family]Renderer),
		palette:   defaultPalette,
	}
	cartesian := &cartesianRenderer{palette: r.palette}
	circular := &circularRenderer{palette: r.palette}
	r.renderers[FamilyLine] = cartesian
	r.renderers[FamilyBar] = cartesian
	r.renderers[FamilyHorizontalBar] = cartesian
	r.renderers[FamilyPie] = circular
	r.renderers[FamilyDoughnut] = circular
	r.renderers[FamilyPolar] = circular
	r.renderers[FamilyScatter] = &scatterRenderer{}
	r.renderers[FamilyRadar] = &radarRenderer{palette: r.palette}
	return r
}

// Lookup 返回指定图表族的渲染器。
func (r *Registry) Lookup(family Family) (Renderer, bool) {
	renderer, ok := r.renderers[family]
	return renderer, ok
}

// colorAt 从规格颜色或默认调色板中取第 i 个颜色。
func colorAt(specColors, palette []string, i int) string {
	if i < len(specColors) {
		return specColors[i]
	}
	if len(palette) == 0 {
		return ""
	}
	return palette[i%len(palette)]
}

// labelString 把任意单元格值转成标签文本。
func labelString(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

// numericValue 尝试把单元格值解释为数值。
func numericValue(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int8:
		return float64(val), true
	case int16:
		return float64(val), true
	case int32:
		return float64(val), true
	case int64:
		return float64(val), true
	case uint:
		return float64(val), true
	case uint8:
		return float64(val), true
	case uint16:
		return float64(val), true
	case uint32:
		return float64(val), true
	case uint64:
		return float64(val), true
	case string:
		// pg 的 numeric 在规范化后是字符串形式
		var f float64
		if _, err := fmt.Sscanf(strings.TrimSpace(val), "%g", &f); err == nil {
			return f, true
		}
		return 0, false
	default:
		return 0, false
	}
}

// --- 直角坐标系渲染器 (line / bar / horizontal_bar) ---

type cartesianRenderer struct {
	palette []string
}

func (r *cartesianRenderer) Render(spec *ChartSpec, result *databases.QueryResult) (*RenderPayload, error) {
	payload := &RenderPayload{
		Family:  spec.Family,
		XAxis:   spec.XField,
		YAxis:   spec.YFields,
		Stacked: spec.Stacked,
	}

	if spec.SeriesField != "" {
		// 按 series_field 的取值拆分序列，只使用第一个 y 列
		yField := spec.YFields[0]
		labelIndex := map[string]int{}
		seriesIndex := map[string]int{}
		var seriesOrder []string

		for _, row := range result.Rows {
			label := labelString(row[spec.XField])
			if _, ok := labelIndex[label]; !ok {
				labelIndex[label] = len(payload.Labels)
				payload.Labels = append(payload.Labels, label)
			}
			seriesName := labelString(row[spec.SeriesField])
			if _, ok := seriesIndex[seriesName]; !ok {
				seriesIndex[seriesName] = len(seriesOrder)
				seriesOrder = append(seriesOrder, seriesName)
			}
		}

		matrix := make([][]float64, len(seriesOrder))
		for i := range matrix {
			matrix[i] = make([]float64, len(payload.Labels))
		}
		for _, row := range result.Rows {
			li := labelIndex[labelString(row[spec.XField])]
			si := seriesIndex[labelString(row[spec.SeriesField])]
			if v, ok := numericValue(row[yField]); ok {
				matrix[si][li] = v
			}
		}
		for i, name := range seriesOrder {
			payload.Series = append(payload.Series, Series{
				Name:  name,
				Data:  matrix[i],
				Color: colorAt(spec.Colors, r.palette, i),
			})
		}
		return payload, nil
	}

	// 每个 y 列一条序列
	for _, row := range result.Rows {
		payload.Labels = append(payload.Labels, labelString(row[spec.XField]))
	}
	for i, yField := range spec.YFields {
		data := make([]float64, 0, len(result.Rows))
		for _, row := range result.Rows {
			v, _ := numericValue(row[yField])
			data = append(data, v)
		}
		payload.Series = append(payload.Series, Series{
			Name:  yField,
			Data:  data,
			Color: colorAt(spec.Colors, r.palette, i),
		})
	}
	return payload, nil
}

// --- 环形渲染器 (pie / doughnut / polar) ---

type circularRenderer struct {
	palette []string
}

func (r *circularRenderer) Render(spec *ChartSpec, result *databases.QueryResult) (*RenderPayload, error) {
	payload := &RenderPayload{Family: spec.Family, XAxis: spec.XField, YAxis: spec.YFields[:1]}

	yField := spec.YFields[0]
	data := make([]float64, 0, len(result.Rows))
	for _, row := range result.Rows {
		payload.Labels = append(payload.Labels, labelString(row[spec.XField]))
		v, _ := numericValue(row[yField])
		data = append(data, v)
	}

	// 每个扇区一个颜色，序列颜色留空
	payload.Series = append(payload.Series, Series{Name: yField, Data: data})
	return payload, nil
}

// --- 散点渲染器 ---

type scatterRenderer struct{}

func (r *scatterRenderer) Render(spec *ChartSpec, result *databases.QueryResult) (*RenderPayload, error) {
	payload := &RenderPayload{Family: spec.Family, XAxis: spec.XField, YAxis: spec.YFields[:1]}

	yField := spec.YFields[0]
	for _, row := range result.Rows {
		x, okX := numericValue(row[spec.XField])
		y, okY := numericValue(row[yField])
		if !okX || !okY {
			// 散点图的两个轴都必须是数值
			return nil, fmt.Errorf("散点图要求 %q 与 %q 均为数值列", spec.XField, yField)
		}
		payload.Points = append(payload.Points, []float64{x, y})
	}
	return payload, nil
}

// --- 雷达渲染器 ---

// radarRenderer 把每行当成一个实体序列，y 列作为雷达轴。
type radarRenderer struct {
	palette []string
}

func (r *radarRenderer) Render(spec *ChartSpec, result *databases.QueryResult) (*RenderPayload, error) {
	payload := &RenderPayload{Family: spec.Family, XAxis: spec.XField, YAxis: spec.YFields}
	payload.Labels = append(payload.Labels, spec.YFields...)

	for i, row := range result.Rows {
		data := make([]float64, 0, len(spec.YFields))
		for _, yField := range spec.YFields {
			v, _ := numericValue(row[yField])
			data = append(data, v)
		}
		payload.Series = append(payload.Series, Series{
			Name:  labelString(row[spec.XField]),
			Data:  data,
			Color: colorAt(spec.Colors, r.palette, i),
		})
	}
	return payload, nil
}
