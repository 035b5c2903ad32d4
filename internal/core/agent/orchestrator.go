package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/cbc3929/bi_agent_server/internal/config"
	"github.com/cbc3929/bi_agent_server/internal/core/charts"
	"github.com/cbc3929/bi_agent_server/internal/core/databases"
	"github.com/cbc3929/bi_agent_server/internal/core/llm"
	"github.com/cbc3929/bi_agent_server/internal/core/prompts"
	"github.com/cbc3929/bi_agent_server/internal/core/structure"
	"github.com/cbc3929/bi_agent_server/internal/utils"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// 意图分类结果。
const (
	IntentQuery     = "query"     // 需要取数和可视化
	IntentDirect    = "direct"    // 直接文本回答
	IntentAmbiguous = "ambiguous" // 信息不足，反问澄清
)

// 错误种类标识，随 TurnResult 和 error 事件传给客户端。
const (
	ErrKindSchemaUnavailable = "schema_unavailable"
	ErrKindGeneration        = "generation_error"
	ErrKindExecution         = "execution_error"
	ErrKindEmptyResult       = "empty_result"
	ErrKindVisualization     = "visualization_error"
	ErrKindTitle             = "title_error"
	ErrKindRender            = "render_error"
)

// TurnRequest 是一轮对话的输入。
type TurnRequest struct {
	ConnID  string                // 已注册的数据库连接
	Message string                // 用户的最新消息
	History []prompts.HistoryTurn // 最近的会话历史 (调用方已按窗口截断)
}

// TurnResult 是一轮对话的产物。
// 管线局部失败时尽量保留已有的部分结果：数据和查询在可视化失败时
// 依然返回，用户永远不会两手空空。
type TurnResult struct {
	Intent       string                 `json:"intent"`
	Answer       string                 `json:"answer,omitempty"`        // direct / ambiguous 的文本回复
	Query        string                 `json:"query,omitempty"`         // 最终执行的查询
	Result       *databases.QueryResult `json:"result,omitempty"`        // 查询结果
	ChartSpec    string                 `json:"chart_spec,omitempty"`    // 图表规格 JSON
	ChartTitle   string                 `json:"chart_title,omitempty"`   // 图表标题
	Render       *charts.RenderPayload  `json:"render,omitempty"`        // 编译后的渲染载荷
	ErrorKind    string                 `json:"error_kind,omitempty"`
	ErrorMessage string                 `json:"error_message,omitempty"` // 用户可读、凭证已清洗
	FailedText   string                 `json:"failed_text,omitempty"`   // 失败的查询或规格原文
}

// Orchestrator 是会话控制器：分类意图，必要时驱动
// 取数 -> 修复 -> 可视化管线，并把每个阶段以事件形式推给客户端。
type Orchestrator struct {
	cfg         *config.Config
	dbService   databases.Service
	structures  structure.Manager
	llmClient   llm.Client
	synthesizer *charts.Synthesizer
	compiler    *charts.Compiler
	repairLoop  *RepairLoop
}

// NewOrchestrator 装配编排器。
func NewOrchestrator(
	cfg *config.Config,
	dbService databases.Service,
	structures structure.Manager,
	llmClient llm.Client,
	synthesizer *charts.Synthesizer,
	compiler *charts.Compiler,
) *Orchestrator {
	return &Orchestrator{
		cfg:         cfg,
		dbService:   dbService,
		structures:  structures,
		llmClient:   llmClient,
		synthesizer: synthesizer,
		compiler:    compiler,
		repairLoop:  NewRepairLoop(dbService, llmClient, cfg.QueryMaxRetries),
	}
}

// RunTurn 处理一轮对话。错误被收敛进 TurnResult 和 error 事件，
// 不向传输层抛出；completed 或 error 一定是最后一个事件。
func (o *Orchestrator) RunTurn(ctx context.Context, req TurnRequest, sink EventSink) *TurnResult {
	emitTo(sink, StatusEvent{Status: StatusClassifying, Message: "正在理解问题"})

	intent, answer := o.classifyIntent(ctx, req)

	switch intent {
	case IntentDirect, IntentAmbiguous:
		// 澄清问题和直接回答走同一条返回路径，intent 字段区分
		result := &TurnResult{Intent: intent, Answer: answer}
		emitTo(sink, StatusEvent{Status: StatusAnswering})
		emitTo(sink, StatusEvent{Status: StatusCompleted, Data: result})
		return result
	}

	return o.runDataPipeline(ctx, req, sink)
}

// classifyIntent 委托 LLM 做意图分类。
// 分类调用失败时按 query 处理：取数管线自身的错误路径更可观测。
func (o *Orchestrator) classifyIntent(ctx context.Context, req TurnRequest) (intent, answer string) {
	system, user := prompts.BuildIntentPrompt(req.Message, req.History)
	raw, err := o.llmClient.Complete(ctx, system, user)
	if err != nil {
		utils.DefaultLogger.Warn("意图分类调用失败，按取数处理", zap.Error(err))
		return IntentQuery, ""
	}

	jsonText, err := llm.ExtractJSON(raw)
	if err != nil {
		utils.DefaultLogger.Warn("意图分类输出无法解析，按取数处理", zap.Error(err))
		return IntentQuery, ""
	}

	intent = gjson.Get(jsonText, "intent").String()
	answer = gjson.Get(jsonText, "answer").String()

	switch intent {
	case IntentDirect, IntentAmbiguous:
		if answer == "" {
			// 没有给出回复文本的 direct/ambiguous 没有意义，按取数处理
			return IntentQuery, ""
		}
		return intent, answer
	default:
		return IntentQuery, ""
	}
}

// runDataPipeline 执行取数 + 可视化管线。
func (o *Orchestrator) runDataPipeline(ctx context.Context, req TurnRequest, sink EventSink) *TurnResult {
	result := &TurnResult{Intent: IntentQuery}

	// 1. 结构快照。拿不到结构直接终止，不进入生成阶段。
	ds, err := o.structures.EnsureStructure(ctx, req.ConnID)
	if err != nil {
		return o.failTurn(result, sink, ErrKindSchemaUnavailable,
			fmt.Sprintf("无法获取数据库结构: %v", err), "")
	}
	dbType := ds.DBType
	structureCompact := structure.FormatStructure(ds, false)
	structureVerbose := structure.FormatStructure(ds, true)

	// 2. 生成 SQL。
	emitTo(sink, StatusEvent{Status: StatusGeneratingQuery, Message: "正在生成查询"})
	system, user := prompts.BuildSQLPrompt(structureCompact, req.History, req.Message, dbType)
	raw, err := o.llmClient.Complete(ctx, system, user)
	if err != nil {
		return o.failTurn(result, sink, ErrKindGeneration,
			fmt.Sprintf("生成查询失败: %v", err), "")
	}
	query := utils.StripSQLFences(raw)
	if query == "" || !utils.IsReadOnlyQuery(query) {
		return o.failTurn(result, sink, ErrKindGeneration,
			"生成的查询不是只读查询，已拒绝执行", query)
	}

	// 3. 执行 + 修复循环。
	outcome, err := o.repairLoop.Run(ctx, req.ConnID, dbType, structureVerbose, req.Message, query, sink)
	if err != nil {
		var emptyErr *EmptyResultError
		var execErr *databases.ExecutionError
		switch {
		case errors.As(err, &emptyErr):
			result.Query = emptyErr.Query
			return o.failTurn(result, sink, ErrKindEmptyResult,
				"没有找到匹配的数据，请尝试换一种问法", emptyErr.Query)
		case errors.As(err, &execErr):
			result.Query = query
			return o.failTurn(result, sink, ErrKindExecution,
				fmt.Sprintf("查询执行失败: %s", execErr.Message), query)
		default:
			return o.failTurn(result, sink, ErrKindExecution,
				fmt.Sprintf("查询执行失败: %v", err), query)
		}
	}
	result.Query = outcome.Query
	result.Result = outcome.Result

	// 4. 可视化合成。失败不丢弃数据，降级为部分结果。
	emitTo(sink, StatusEvent{Status: StatusGeneratingVisualization, Message: "正在生成图表"})
	synthesis, err := o.synthesizer.Synthesize(ctx, outcome.Result, req.Message)
	if err != nil {
		var titleErr *charts.TitleError
		if errors.As(err, &titleErr) && synthesis != nil {
			// 标题失败不影响图表本身
			result.ChartSpec = synthesis.SpecJSON
			result.ErrorKind = ErrKindTitle
			result.ErrorMessage = titleErr.Message
		} else {
			result.ErrorKind = ErrKindVisualization
			result.ErrorMessage = utils.ScrubCredentials(err.Error())
			emitTo(sink, StatusEvent{Status: StatusCompleted, Data: result})
			return result
		}
	} else {
		result.ChartSpec = synthesis.SpecJSON
		result.ChartTitle = synthesis.Title
		emitTo(sink, StatusEvent{Status: StatusGeneratingTitle})
	}

	// 5. 编译渲染载荷。失败时保留规格原文供手动修正。
	if result.ChartSpec != "" {
		payload, err := o.compiler.Compile(result.ChartSpec, outcome.Result)
		if err != nil {
			var renderErr *charts.RenderError
			if errors.As(err, &renderErr) {
				result.ErrorKind = ErrKindRender
				result.ErrorMessage = utils.ScrubCredentials(renderErr.Message)
				result.FailedText = renderErr.SourceText
			} else {
				result.ErrorKind = ErrKindRender
				result.ErrorMessage = utils.ScrubCredentials(err.Error())
			}
		} else {
			payload.Title = result.ChartTitle
			result.Render = payload
		}
	}

	emitTo(sink, StatusEvent{Status: StatusCompleted, Data: result})
	return result
}

// failTurn 统一的终止路径：记录错误，发 error 事件并返回。
func (o *Orchestrator) failTurn(result *TurnResult, sink EventSink, kind, message, failedText string) *TurnResult {
	message = utils.ScrubCredentials(message)
	result.ErrorKind = kind
	result.ErrorMessage = message
	result.FailedText = failedText
	utils.DefaultLogger.Warn("对话轮终止",
		zap.String("kind", kind), zap.String("message", message))
	emitTo(sink, StatusEvent{Status: StatusError, Message: message, Data: result})
	return result
}
