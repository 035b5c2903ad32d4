package charts

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedLLM 按顺序返回脚本化应答。
type scriptedLLM struct {
	responses []string
	errs      []error
	calls     int
}

func (s *scriptedLLM) Complete(_ context.Context, _, _ string) (string, error) {
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return "", s.errs[i]
	}
	if i < len(s.responses) {
		return s.responses[i], nil
	}
	return "", fmt.Errorf("脚本中没有第 %d 次应答", i+1)
}

func TestSynthesize_SpecAndTitle(t *testing.T) {
	llmFake := &scriptedLLM{responses: []string{
		"```json\n{\"family\":\"line\",\"x_field\":\"month\",\"y_fields\":[\"amount\"]}\n```",
		`"月度销售额趋势"`,
	}}
	s := NewSynthesizer(llmFake, nil)

	synthesis, err := s.Synthesize(context.Background(), monthlyResult(), "按月看销售额")
	require.NoError(t, err)
	assert.Equal(t, FamilyLine, synthesis.Spec.Family)
	assert.NotEmpty(t, synthesis.SpecJSON)
	// 标题两侧的引号被剥掉
	assert.Equal(t, "月度销售额趋势", synthesis.Title)
}

func TestSynthesize_SpecFailureIsVisualizationError(t *testing.T) {
	llmFake := &scriptedLLM{responses: []string{"这不是 JSON"}}
	s := NewSynthesizer(llmFake, nil)

	synthesis, err := s.Synthesize(context.Background(), monthlyResult(), "按月看销售额")
	assert.Nil(t, synthesis)
	var vizErr *VisualizationError
	require.ErrorAs(t, err, &vizErr)
}

func TestSynthesize_InvalidSpecIsVisualizationError(t *testing.T) {
	llmFake := &scriptedLLM{responses: []string{`{"family":"treemap","x_field":"a","y_fields":["b"]}`}}
	s := NewSynthesizer(llmFake, nil)

	_, err := s.Synthesize(context.Background(), monthlyResult(), "按月看销售额")
	var vizErr *VisualizationError
	require.ErrorAs(t, err, &vizErr)
}

func TestSynthesize_TitleFailureReturnsPartialSynthesis(t *testing.T) {
	llmFake := &scriptedLLM{
		responses: []string{`{"family":"line","x_field":"month","y_fields":["amount"]}`},
		errs:      []error{nil, errors.New("标题调用超时")},
	}
	s := NewSynthesizer(llmFake, nil)

	synthesis, err := s.Synthesize(context.Background(), monthlyResult(), "按月看销售额")

	// 规格已就绪，标题失败以 *TitleError 上浮，调用方据此降级
	var titleErr *TitleError
	require.ErrorAs(t, err, &titleErr)
	require.NotNil(t, synthesis)
	assert.NotEmpty(t, synthesis.SpecJSON)
	assert.Empty(t, synthesis.Title)
}
