package charts

import (
	"testing"

	"github.com/cbc3929/bi_agent_server/internal/core/databases"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryCoversAllFamilies(t *testing.T) {
	registry := NewRegistry()
	for _, f := range AllFamilies() {
		_, ok := registry.Lookup(f)
		assert.True(t, ok, string(f))
	}
	_, ok := registry.Lookup(Family("gauge"))
	assert.False(t, ok)
}

func TestCartesianRenderer_SeriesFieldPivot(t *testing.T) {
	result := &databases.QueryResult{
		Rows: []map[string]any{
			{"month": "2026-01", "region": "north", "amount": 10.0},
			{"month": "2026-01", "region": "south", "amount": 20.0},
			{"month": "2026-02", "region": "north", "amount": 30.0},
			// south 在 2026-02 缺数据，矩阵应补 0
		},
		Types: []databases.ColumnType{
			{Name: "month", Type: "varchar"}, {Name: "region", Type: "varchar"}, {Name: "amount", Type: "numeric"},
		},
	}
	spec := &ChartSpec{Family: FamilyBar, XField: "month", YFields: []string{"amount"}, SeriesField: "region"}

	payload, err := (&cartesianRenderer{palette: defaultPalette}).Render(spec, result)
	require.NoError(t, err)

	assert.Equal(t, []string{"2026-01", "2026-02"}, payload.Labels)
	require.Len(t, payload.Series, 2)
	assert.Equal(t, "north", payload.Series[0].Name)
	assert.Equal(t, []float64{10, 30}, payload.Series[0].Data)
	assert.Equal(t, "south", payload.Series[1].Name)
	assert.Equal(t, []float64{20, 0}, payload.Series[1].Data)
}

func TestCartesianRenderer_MultipleYFields(t *testing.T) {
	result := &databases.QueryResult{
		Rows: []map[string]any{
			{"month": "2026-01", "amount": 10.0, "profit": 3.0},
			{"month": "2026-02", "amount": "15.5", "profit": 4.0}, // pg numeric 规范化后是字符串
		},
		Types: []databases.ColumnType{
			{Name: "month", Type: "varchar"}, {Name: "amount", Type: "numeric"}, {Name: "profit", Type: "numeric"},
		},
	}
	spec := &ChartSpec{Family: FamilyLine, XField: "month", YFields: []string{"amount", "profit"}}

	payload, err := (&cartesianRenderer{palette: defaultPalette}).Render(spec, result)
	require.NoError(t, err)

	require.Len(t, payload.Series, 2)
	assert.Equal(t, []float64{10, 15.5}, payload.Series[0].Data)
	assert.Equal(t, []float64{3, 4}, payload.Series[1].Data)
	// 没有指定颜色时循环使用默认调色板
	assert.Equal(t, defaultPalette[0], payload.Series[0].Color)
	assert.Equal(t, defaultPalette[1], payload.Series[1].Color)
}

func TestScatterRenderer_RequiresNumericAxes(t *testing.T) {
	spec := &ChartSpec{Family: FamilyScatter, XField: "age", YFields: []string{"income"}}

	numeric := &databases.QueryResult{
		Rows:  []map[string]any{{"age": 30.0, "income": 5000.0}},
		Types: []databases.ColumnType{{Name: "age", Type: "int4"}, {Name: "income", Type: "numeric"}},
	}
	payload, err := (&scatterRenderer{}).Render(spec, numeric)
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{30, 5000}}, payload.Points)

	nonNumeric := &databases.QueryResult{
		Rows:  []map[string]any{{"age": "三十", "income": 5000.0}},
		Types: numeric.Types,
	}
	_, err = (&scatterRenderer{}).Render(spec, nonNumeric)
	assert.Error(t, err)
}

func TestRadarRenderer_RowsBecomeSeries(t *testing.T) {
	result := &databases.QueryResult{
		Rows: []map[string]any{
			{"player": "甲", "speed": 80.0, "power": 60.0},
			{"player": "乙", "speed": 70.0, "power": 90.0},
		},
		Types: []databases.ColumnType{
			{Name: "player", Type: "varchar"}, {Name: "speed", Type: "numeric"}, {Name: "power", Type: "numeric"},
		},
	}
	spec := &ChartSpec{Family: FamilyRadar, XField: "player", YFields: []string{"speed", "power"}}

	payload, err := (&radarRenderer{palette: defaultPalette}).Render(spec, result)
	require.NoError(t, err)

	// y 列作为雷达轴，每行是一条序列
	assert.Equal(t, []string{"speed", "power"}, payload.Labels)
	require.Len(t, payload.Series, 2)
	assert.Equal(t, "甲", payload.Series[0].Name)
	assert.Equal(t, []float64{80, 60}, payload.Series[0].Data)
}

func TestCircularRenderer(t *testing.T) {
	result := &databases.QueryResult{
		Rows: []map[string]any{
			{"status": "paid", "cnt": int64(12)},
			{"status": "pending", "cnt": int64(5)},
		},
		Types: []databases.ColumnType{{Name: "status", Type: "varchar"}, {Name: "cnt", Type: "int8"}},
	}
	spec := &ChartSpec{Family: FamilyPie, XField: "status", YFields: []string{"cnt"}}

	payload, err := (&circularRenderer{palette: defaultPalette}).Render(spec, result)
	require.NoError(t, err)
	assert.Equal(t, []string{"paid", "pending"}, payload.Labels)
	require.Len(t, payload.Series, 1)
	assert.Equal(t, []float64{12, 5}, payload.Series[0].Data)
}
