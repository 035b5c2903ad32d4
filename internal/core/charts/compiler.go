package charts

import (
	"fmt"

	"github.com/cbc3929/bi_agent_server/internal/core/databases"
	"github.com/cbc3929/bi_agent_server/internal/utils"

	cmap "github.com/orcaman/concurrent-map/v2"
	"go.uber.org/zap"
)

// Compiler 把声明式图表规格编译为渲染载荷。
// 渲染器只拿到规格与查询结果两份输入，任何失败 (校验、渲染错误、
// 渲染器内部 panic) 都被收敛为 *RenderError，绝不向上传播 panic。
type Compiler struct {
	registry *Registry

	// specCache 按规格原文缓存解析校验过的规格。
	// 渲染载荷携带查询数据，每次调用都重新渲染，绝不缓存：
	// 同一规格在数据变化后复用缓存载荷会把旧数据端给用户。
	specCache cmap.ConcurrentMap[string, *ChartSpec]
}

// NewCompiler 创建编译器。
func NewCompiler(registry *Registry) *Compiler {
	return &Compiler{
		registry:  registry,
		specCache: cmap.New[*ChartSpec](),
	}
}

// Compile 编译规格 JSON。规格的解析与结构校验按原文缓存复用，
// 字段绑定校验和渲染依赖查询结果，每次调用都重新执行。
// 返回的载荷归调用方所有，调用方可以安全地修改 (如补上标题)。
func (c *Compiler) Compile(specJSON string, result *databases.QueryResult) (*RenderPayload, error) {
	spec, ok := c.specCache.Get(specJSON)
	if !ok {
		parsed, err := ParseSpec(specJSON)
		if err != nil {
			return nil, &RenderError{
				Message:    fmt.Sprintf("图表规格不合法: %v", err),
				SourceText: specJSON,
			}
		}
		c.specCache.Set(specJSON, parsed)
		spec = parsed
	}

	if err := validateBindings(spec, result); err != nil {
		return nil, &RenderError{
			Message:    fmt.Sprintf("图表规格与数据不匹配: %v", err),
			SourceText: specJSON,
		}
	}

	renderer, ok := c.registry.Lookup(spec.Family)
	if !ok {
		return nil, &RenderError{
			Message:    fmt.Sprintf("没有可用的渲染器: %s", spec.Family),
			SourceText: specJSON,
		}
	}

	return c.renderIsolated(renderer, spec, result, specJSON)
}

// renderIsolated 在恢复边界内调用渲染器。
// 渲染器实现里的任何 panic 都被捕获并转为 *RenderError。
func (c *Compiler) renderIsolated(renderer Renderer, spec *ChartSpec, result *databases.QueryResult, specJSON string) (payload *RenderPayload, err error) {
	defer func() {
		if r := recover(); r != nil {
			utils.DefaultLogger.Error("渲染器 panic 已被隔离",
				zap.String("family", string(spec.Family)), zap.Any("panic", r))
			payload = nil
			err = &RenderError{
				Message:    fmt.Sprintf("渲染图表时发生内部错误: %v", r),
				SourceText: specJSON,
			}
		}
	}()

	payload, renderErr := renderer.Render(spec, result)
	if renderErr != nil {
		return nil, &RenderError{
			Message:    fmt.Sprintf("渲染图表失败: %v", renderErr),
			SourceText: specJSON,
		}
	}
	return payload, nil
}

// validateBindings 校验规格引用的字段确实存在于结果列中，
// 并执行各图表族的结构约束。
func validateBindings(spec *ChartSpec, result *databases.QueryResult) error {
	if result == nil {
		return fmt.Errorf("没有可渲染的数据")
	}
	if !result.HasColumn(spec.XField) {
		return fmt.Errorf("x_field %q 不在结果列中", spec.XField)
	}
	for _, y := range spec.YFields {
		if !result.HasColumn(y) {
			return fmt.Errorf("y_fields 中的 %q 不在结果列中", y)
		}
	}
	if spec.SeriesField != "" && !result.HasColumn(spec.SeriesField) {
		return fmt.Errorf("series_field %q 不在结果列中", spec.SeriesField)
	}

	switch spec.Family {
	case FamilyPie, FamilyDoughnut, FamilyPolar:
		if len(spec.YFields) != 1 {
			return fmt.Errorf("%s 图只接受一个 y 列", spec.Family)
		}
	case FamilyScatter:
		if len(spec.YFields) != 1 {
			return fmt.Errorf("散点图只接受一个 y 列")
		}
	}
	return nil
}
