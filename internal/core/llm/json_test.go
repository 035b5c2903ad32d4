package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"裸 JSON", `{"intent": "query"}`, `{"intent": "query"}`},
		{"json 代码块", "```json\n{\"intent\": \"query\"}\n```", `{"intent": "query"}`},
		{"无语言标记的代码块", "```\n{\"a\": 1}\n```", `{"a": 1}`},
		{"前后带说明文字", "好的，结果如下:\n{\"a\": 1}\n希望有帮助。", `{"a": 1}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ExtractJSON(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestExtractJSON_Invalid(t *testing.T) {
	for _, in := range []string{
		"",
		"这里没有任何 JSON",
		`{"broken": `,
	} {
		_, err := ExtractJSON(in)
		assert.Error(t, err, in)
	}
}
