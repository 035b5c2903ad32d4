package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/cbc3929/bi_agent_server/internal/core/databases"
	"github.com/cbc3929/bi_agent_server/internal/core/llm"
	"github.com/cbc3929/bi_agent_server/internal/core/prompts"
	"github.com/cbc3929/bi_agent_server/internal/utils"

	"go.uber.org/zap"
)

// RepairLoop 执行查询并在失败或零行时请求 LLM 改写，重试受固定上限约束。
// 总尝试次数 = maxRetries + 1，无论 LLM 改写是否成功每轮都消耗一次尝试。
type RepairLoop struct {
	dbService  databases.Service
	llmClient  llm.Client
	maxRetries int
}

// NewRepairLoop 创建修复循环。maxRetries 为负时按 0 处理。
func NewRepairLoop(dbService databases.Service, llmClient llm.Client, maxRetries int) *RepairLoop {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &RepairLoop{dbService: dbService, llmClient: llmClient, maxRetries: maxRetries}
}

// RepairOutcome 是修复循环的成功产物。
type RepairOutcome struct {
	Query    string                 // 最终成功的查询 (可能与初始查询不同)
	Result   *databases.QueryResult // 非空结果
	Attempts int                    // 实际消耗的尝试次数
}

// Run 从初始查询开始循环执行。
// 成功且至少一行 -> 返回 RepairOutcome。
// 耗尽尝试后：最后一次是零行 -> *EmptyResultError；否则 -> *databases.ExecutionError。
// 每次状态变化都会向 sink 发送事件，这是流式 UI 依赖的可观测契约。
func (l *RepairLoop) Run(ctx context.Context, connID, dbType, structureText, request, initialQuery string, sink EventSink) (*RepairOutcome, error) {
	query := initialQuery
	maxAttempts := l.maxRetries + 1

	var lastExecErr *databases.ExecutionError
	lastEmpty := false

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		emitTo(sink, StatusEvent{Status: StatusExecutingQuery, Attempt: attempt,
			Message: fmt.Sprintf("正在执行查询 (第 %d 次尝试)", attempt)})

		result, err := l.dbService.ExecuteQuery(ctx, connID, query)

		emitTo(sink, StatusEvent{Status: StatusValidatingQuery, Attempt: attempt})

		if err == nil && result.RowCount() > 0 {
			utils.DefaultLogger.Info("查询执行成功",
				zap.Int("attempt", attempt), zap.Int("rowCount", result.RowCount()))
			return &RepairOutcome{Query: query, Result: result, Attempts: attempt}, nil
		}

		// 失败或零行，记录本轮状态
		errorMessage := ""
		if err != nil {
			var execErr *databases.ExecutionError
			if !errors.As(err, &execErr) {
				// 非执行类错误 (如 context 取消) 不进入修复循环
				return nil, err
			}
			lastExecErr = execErr
			lastEmpty = false
			errorMessage = execErr.Message
			utils.DefaultLogger.Warn("查询执行失败",
				zap.Int("attempt", attempt), zap.String("error", execErr.Message))
		} else {
			lastExecErr = nil
			lastEmpty = true
			utils.DefaultLogger.Info("查询执行成功但没有返回任何行", zap.Int("attempt", attempt))
		}

		if attempt == maxAttempts {
			break
		}

		// 还有尝试机会，请求 LLM 改写
		emitTo(sink, StatusEvent{Status: StatusRepairingQuery, Attempt: attempt,
			Message: "正在修复查询"})

		system, user := prompts.BuildRepairPrompt(structureText, query, errorMessage, request, dbType)
		repaired, llmErr := l.llmClient.Complete(ctx, system, user)
		if llmErr != nil {
			// LLM 改写失败时保留原查询，尝试计数照常前进，避免空转
			utils.DefaultLogger.Warn("修复查询的 LLM 调用失败，保留原查询重试",
				zap.Int("attempt", attempt), zap.Error(llmErr))
			continue
		}

		repaired = utils.StripSQLFences(repaired)
		if repaired == "" || !utils.IsReadOnlyQuery(repaired) {
			utils.DefaultLogger.Warn("修复产出的查询不可用，保留原查询重试",
				zap.Int("attempt", attempt))
			continue
		}
		query = repaired
	}

	if lastEmpty {
		return nil, &EmptyResultError{Query: query}
	}
	if lastExecErr != nil {
		return nil, lastExecErr
	}
	// 不应到达：maxAttempts >= 1 保证上面至少执行一轮
	return nil, databases.NewExecutionError("查询未能执行")
}
