package charts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSpec_Valid(t *testing.T) {
	spec, err := ParseSpec(`{
		"family": "line",
		"x_field": "month",
		"y_fields": ["amount", "profit"],
		"colors": ["#5470c6", "#91cc75"],
		"stacked": false
	}`)
	require.NoError(t, err)
	assert.Equal(t, FamilyLine, spec.Family)
	assert.Equal(t, "month", spec.XField)
	assert.Equal(t, []string{"amount", "profit"}, spec.YFields)
	assert.Equal(t, []string{"#5470c6", "#91cc75"}, spec.Colors)
}

func TestParseSpec_Invalid(t *testing.T) {
	cases := []struct {
		name string
		json string
	}{
		{"JSON 损坏", `{"family": "line"`},
		{"未知图表族", `{"family": "treemap", "x_field": "a", "y_fields": ["b"]}`},
		{"缺少 x_field", `{"family": "bar", "y_fields": ["b"]}`},
		{"缺少 y_fields", `{"family": "bar", "x_field": "a"}`},
		{"y_fields 含空列名", `{"family": "bar", "x_field": "a", "y_fields": [" "]}`},
		{"颜色不是字面十六进制", `{"family": "bar", "x_field": "a", "y_fields": ["b"], "colors": ["red"]}`},
		{"颜色是函数引用", `{"family": "bar", "x_field": "a", "y_fields": ["b"], "colors": ["rgb(1,2,3)"]}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseSpec(tc.json)
			assert.Error(t, err)
		})
	}
}

func TestChartSpecJSONRoundTrip(t *testing.T) {
	spec := &ChartSpec{Family: FamilyBar, XField: "region", YFields: []string{"sales"}, Stacked: true}
	parsed, err := ParseSpec(spec.JSON())
	require.NoError(t, err)
	assert.Equal(t, spec, parsed)
}

func TestFamilyValid(t *testing.T) {
	for _, f := range AllFamilies() {
		assert.True(t, f.Valid(), string(f))
	}
	assert.False(t, Family("gauge").Valid())
	assert.False(t, Family("").Valid())
}
