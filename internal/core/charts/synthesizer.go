package charts

import (
	"context"
	"fmt"
	"strings"

	"github.com/cbc3929/bi_agent_server/internal/core/databases"
	"github.com/cbc3929/bi_agent_server/internal/core/llm"
	"github.com/cbc3929/bi_agent_server/internal/core/prompts"
	"github.com/cbc3929/bi_agent_server/internal/utils"

	"go.uber.org/zap"
)

// VisualizationError 表示图表规格生成失败。
// 对整轮对话不致命：数据和查询仍然返回给用户。
type VisualizationError struct {
	Message string
}

func (e *VisualizationError) Error() string {
	return e.Message
}

// TitleError 表示标题生成失败。同样不致命，图表仍可带默认标题展示。
type TitleError struct {
	Message string
}

func (e *TitleError) Error() string {
	return e.Message
}

// Synthesis 是合成器的产物。
type Synthesis struct {
	Spec     *ChartSpec // 校验过的图表规格
	SpecJSON string     // 规格的规范化 JSON 文本
	Title    string     // 人类可读标题 (标题生成失败时为空)
}

// Synthesizer 通过两次顺序的 LLM 调用把查询结果变成图表规格和标题。
type Synthesizer struct {
	llmClient llm.Client
	knowledge KnowledgeManager
}

// NewSynthesizer 创建合成器。knowledge 允许为 nil (提示词中不含知识)。
func NewSynthesizer(llmClient llm.Client, knowledge KnowledgeManager) *Synthesizer {
	return &Synthesizer{llmClient: llmClient, knowledge: knowledge}
}

// Synthesize 先生成图表规格，再生成标题。
// 规格失败返回 (nil, *VisualizationError)；规格成功而标题失败时
// 返回 (部分 Synthesis, *TitleError)，调用方据此决定降级方式。
func (s *Synthesizer) Synthesize(ctx context.Context, result *databases.QueryResult, intent string) (*Synthesis, error) {
	spec, specJSON, err := s.generateSpec(ctx, result, intent)
	if err != nil {
		return nil, err
	}

	synthesis := &Synthesis{Spec: spec, SpecJSON: specJSON}

	title, err := s.generateTitle(ctx, intent, specJSON)
	if err != nil {
		utils.DefaultLogger.Warn("图表标题生成失败", zap.Error(err))
		return synthesis, &TitleError{Message: fmt.Sprintf("标题生成失败: %v", err)}
	}
	synthesis.Title = title
	return synthesis, nil
}

// generateSpec 调用 LLM 产出图表规格并做结构校验。
func (s *Synthesizer) generateSpec(ctx context.Context, result *databases.QueryResult, intent string) (*ChartSpec, string, error) {
	knowledgeNotes := ""
	if s.knowledge != nil {
		knowledgeNotes = s.knowledge.PromptNotes()
	}

	system, user := prompts.BuildChartPrompt(intent, result, knowledgeNotes)
	raw, err := s.llmClient.Complete(ctx, system, user)
	if err != nil {
		return nil, "", &VisualizationError{Message: fmt.Sprintf("图表规格生成失败: %v", err)}
	}

	jsonText, err := llm.ExtractJSON(raw)
	if err != nil {
		return nil, "", &VisualizationError{Message: fmt.Sprintf("图表规格输出无法解析: %v", err)}
	}

	spec, err := ParseSpec(jsonText)
	if err != nil {
		return nil, "", &VisualizationError{Message: fmt.Sprintf("图表规格不合法: %v", err)}
	}

	utils.DefaultLogger.Info("图表规格生成完成",
		zap.String("family", string(spec.Family)),
		zap.String("xField", spec.XField),
		zap.Int("yFieldCount", len(spec.YFields)))
	return spec, spec.JSON(), nil
}

// generateTitle 调用 LLM 产出人类可读标题。
func (s *Synthesizer) generateTitle(ctx context.Context, intent, specJSON string) (string, error) {
	system, user := prompts.BuildTitlePrompt(intent, specJSON)
	raw, err := s.llmClient.Complete(ctx, system, user)
	if err != nil {
		return "", err
	}

	title := strings.TrimSpace(strings.Trim(strings.TrimSpace(raw), `"`))
	if title == "" {
		return "", fmt.Errorf("模型返回了空标题")
	}
	return title, nil
}
