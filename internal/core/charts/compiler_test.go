package charts

import (
	"errors"
	"testing"

	"github.com/cbc3929/bi_agent_server/internal/core/databases"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func monthlyResult() *databases.QueryResult {
	return &databases.QueryResult{
		Rows: []map[string]any{
			{"month": "2026-01", "amount": 100.0},
			{"month": "2026-02", "amount": 80.0},
		},
		Types: []databases.ColumnType{
			{Name: "month", Type: "varchar"},
			{Name: "amount", Type: "numeric"},
		},
	}
}

func TestCompile_Success(t *testing.T) {
	compiler := NewCompiler(NewRegistry())
	payload, err := compiler.Compile(`{"family":"line","x_field":"month","y_fields":["amount"]}`, monthlyResult())

	require.NoError(t, err)
	assert.Equal(t, FamilyLine, payload.Family)
	assert.Equal(t, []string{"2026-01", "2026-02"}, payload.Labels)
	require.Len(t, payload.Series, 1)
	assert.Equal(t, []float64{100, 80}, payload.Series[0].Data)
}

func TestCompile_InvalidSpecIsRenderError(t *testing.T) {
	compiler := NewCompiler(NewRegistry())
	specJSON := `{"family":"unknown","x_field":"month","y_fields":["amount"]}`
	_, err := compiler.Compile(specJSON, monthlyResult())

	var renderErr *RenderError
	require.ErrorAs(t, err, &renderErr)
	// 出错规格的原文随错误返回，供用户手动修正
	assert.Equal(t, specJSON, renderErr.SourceText)
}

func TestCompile_FieldBindingMismatch(t *testing.T) {
	compiler := NewCompiler(NewRegistry())
	_, err := compiler.Compile(`{"family":"bar","x_field":"region","y_fields":["amount"]}`, monthlyResult())

	var renderErr *RenderError
	require.ErrorAs(t, err, &renderErr)
	assert.Contains(t, renderErr.Message, "region")
}

func TestCompile_FamilyStructureConstraints(t *testing.T) {
	compiler := NewCompiler(NewRegistry())
	result := &databases.QueryResult{
		Rows: []map[string]any{{"a": "x", "b": 1.0, "c": 2.0}},
		Types: []databases.ColumnType{
			{Name: "a", Type: "varchar"}, {Name: "b", Type: "numeric"}, {Name: "c", Type: "numeric"},
		},
	}

	// 饼图和散点图都只接受一个 y 列
	for _, specJSON := range []string{
		`{"family":"pie","x_field":"a","y_fields":["b","c"]}`,
		`{"family":"scatter","x_field":"a","y_fields":["b","c"]}`,
	} {
		_, err := compiler.Compile(specJSON, result)
		var renderErr *RenderError
		require.ErrorAs(t, err, &renderErr, specJSON)
	}
}

type panickingRenderer struct{}

func (panickingRenderer) Render(*ChartSpec, *databases.QueryResult) (*RenderPayload, error) {
	panic("渲染器内部越界")
}

type failingRenderer struct{}

func (failingRenderer) Render(*ChartSpec, *databases.QueryResult) (*RenderPayload, error) {
	return nil, errors.New("渲染失败")
}

func TestCompile_RendererPanicIsIsolated(t *testing.T) {
	registry := &Registry{renderers: map[Family]Renderer{FamilyLine: panickingRenderer{}}}
	compiler := NewCompiler(registry)
	specJSON := `{"family":"line","x_field":"month","y_fields":["amount"]}`

	var payload *RenderPayload
	var err error
	assert.NotPanics(t, func() {
		payload, err = compiler.Compile(specJSON, monthlyResult())
	})

	assert.Nil(t, payload)
	var renderErr *RenderError
	require.ErrorAs(t, err, &renderErr)
	assert.Contains(t, renderErr.Message, "渲染器内部越界")
	assert.Equal(t, specJSON, renderErr.SourceText)
}

func TestCompile_RendererErrorIsRenderError(t *testing.T) {
	registry := &Registry{renderers: map[Family]Renderer{FamilyLine: failingRenderer{}}}
	compiler := NewCompiler(registry)
	_, err := compiler.Compile(`{"family":"line","x_field":"month","y_fields":["amount"]}`, monthlyResult())

	var renderErr *RenderError
	require.ErrorAs(t, err, &renderErr)
	assert.Contains(t, renderErr.Message, "渲染失败")
}

func TestCompile_FreshDataOnEveryCall(t *testing.T) {
	compiler := NewCompiler(NewRegistry())
	specJSON := `{"family":"line","x_field":"month","y_fields":["amount"]}`

	first, err := compiler.Compile(specJSON, monthlyResult())
	require.NoError(t, err)
	assert.Equal(t, []float64{100, 80}, first.Series[0].Data)

	// 同一规格、同样的行列形态、不同的数据值：必须渲染出新数据
	changed := &databases.QueryResult{
		Rows: []map[string]any{
			{"month": "2026-01", "amount": 1.0},
			{"month": "2026-02", "amount": 2.0},
		},
		Types: monthlyResult().Types,
	}
	second, err := compiler.Compile(specJSON, changed)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2}, second.Series[0].Data)

	// 规格的解析结果被缓存复用
	assert.Equal(t, 1, compiler.specCache.Count())
}

func TestCompile_ReturnedPayloadIsCallerOwned(t *testing.T) {
	compiler := NewCompiler(NewRegistry())
	specJSON := `{"family":"line","x_field":"month","y_fields":["amount"]}`

	first, err := compiler.Compile(specJSON, monthlyResult())
	require.NoError(t, err)
	first.Title = "甲的图表"

	// 调用方修改自己的载荷不会渗透到后续编译
	second, err := compiler.Compile(specJSON, monthlyResult())
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.Empty(t, second.Title)
}
