package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cbc3929/bi_agent_server/internal/config"
	"github.com/cbc3929/bi_agent_server/internal/utils"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"
)

// Client 是 LLM 补全的最小接口。
// Agent 管线只依赖这个接口，测试时用假实现替换。
type Client interface {
	// Complete 执行一次补全，返回模型输出的纯文本。
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// retryDelay 传输层失败后的固定等待时间，只重试一次。
const retryDelay = 1 * time.Second

// einoClient 基于 eino 的 OpenAI 兼容实现。
type einoClient struct {
	chatModel model.ChatModel
	modelName string
}

// NewClient 根据配置创建 LLM 客户端。
func NewClient(ctx context.Context, cfg *config.Config) (Client, error) {
	chatModel, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		APIKey:  cfg.LLMAPIKey,
		BaseURL: cfg.LLMBaseURL,
		Model:   cfg.LLMModel,
		Timeout: cfg.LLMTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("创建 LLM 客户端失败: %w", err)
	}
	utils.DefaultLogger.Info("LLM 客户端初始化完成",
		zap.String("model", cfg.LLMModel), zap.String("baseURL", cfg.LLMBaseURL))
	return &einoClient{chatModel: chatModel, modelName: cfg.LLMModel}, nil
}

// Complete 实现 Client 接口。
// 传输层失败时等待固定 1 秒后重试一次，仍失败则把错误返回给调用方，
// 由修复循环的尝试计数统一兜底，不做指数退避或熔断。
func (c *einoClient) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	messages := []*schema.Message{
		schema.SystemMessage(systemPrompt),
		schema.UserMessage(userPrompt),
	}

	resp, err := c.chatModel.Generate(ctx, messages)
	if err != nil {
		utils.DefaultLogger.Warn("LLM 调用失败，等待后重试一次",
			zap.String("model", c.modelName), zap.Error(err))
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(retryDelay):
		}
		resp, err = c.chatModel.Generate(ctx, messages)
		if err != nil {
			return "", fmt.Errorf("LLM 调用失败: %w", err)
		}
	}

	content := strings.TrimSpace(resp.Content)
	if content == "" {
		return "", fmt.Errorf("LLM 返回了空内容")
	}
	return content, nil
}
