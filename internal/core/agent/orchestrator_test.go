package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/cbc3929/bi_agent_server/internal/config"
	"github.com/cbc3929/bi_agent_server/internal/core/charts"
	"github.com/cbc3929/bi_agent_server/internal/core/databases"
	"github.com/cbc3929/bi_agent_server/internal/core/structure"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestOrchestrator 用测试替身装配一个完整的编排器。
func newTestOrchestrator(db *fakeDBService, llmFake *fakeLLM, structures structure.Manager) *Orchestrator {
	cfg := &config.Config{QueryMaxRetries: 1}
	synthesizer := charts.NewSynthesizer(llmFake, nil)
	compiler := charts.NewCompiler(charts.NewRegistry())
	return NewOrchestrator(cfg, db, structures, llmFake, synthesizer, compiler)
}

func TestRunTurn_FullPipelineWithRepair(t *testing.T) {
	driverErr := `relation "ordres" does not exist`
	db := &fakeDBService{steps: []queryStep{
		{err: databases.NewExecutionError("%s", driverErr)},
		{result: salesResult()},
	}}
	llmFake := &fakeLLM{responses: []string{
		`{"intent": "query"}`,
		"SELECT month, amount FROM ordres",
		"SELECT month, amount FROM orders",
		"```json\n{\"family\":\"line\",\"x_field\":\"month\",\"y_fields\":[\"amount\"]}\n```",
		"月度销售额趋势",
	}}
	o := newTestOrchestrator(db, llmFake, &fakeStructureManager{ds: salesStructure()})

	sink, events := collectEvents()
	result := o.RunTurn(context.Background(), TurnRequest{ConnID: "conn-1", Message: "按月看销售额"}, sink)

	assert.Equal(t, IntentQuery, result.Intent)
	assert.Empty(t, result.ErrorKind)
	assert.Equal(t, "SELECT month, amount FROM orders", result.Query)
	assert.Equal(t, 2, result.Result.RowCount())
	assert.Equal(t, "月度销售额趋势", result.ChartTitle)
	require.NotNil(t, result.Render)
	assert.Equal(t, charts.FamilyLine, result.Render.Family)
	assert.Equal(t, "月度销售额趋势", result.Render.Title)

	// 修复提示词里携带驱动错误原文
	require.Len(t, llmFake.calls, 5)
	assert.Contains(t, llmFake.calls[2].User, driverErr)

	// 事件按阶段顺序产生，completed 是最后一个
	assert.Equal(t, []Status{
		StatusClassifying, StatusGeneratingQuery,
		StatusExecutingQuery, StatusValidatingQuery, StatusRepairingQuery,
		StatusExecutingQuery, StatusValidatingQuery,
		StatusGeneratingVisualization, StatusGeneratingTitle,
		StatusCompleted,
	}, statusSequence(*events))
}

func TestRunTurn_DirectAnswer(t *testing.T) {
	llmFake := &fakeLLM{responses: []string{`{"intent": "direct", "answer": "数据分析是从数据中提取结论的过程。"}`}}
	db := &fakeDBService{}
	o := newTestOrchestrator(db, llmFake, &fakeStructureManager{ds: salesStructure()})

	sink, events := collectEvents()
	result := o.RunTurn(context.Background(), TurnRequest{ConnID: "conn-1", Message: "什么是数据分析"}, sink)

	assert.Equal(t, IntentDirect, result.Intent)
	assert.Equal(t, "数据分析是从数据中提取结论的过程。", result.Answer)
	assert.Empty(t, result.Query)
	assert.Equal(t, []Status{StatusClassifying, StatusAnswering, StatusCompleted}, statusSequence(*events))
	// 直接回答不触碰数据库
	assert.Empty(t, db.executed)
}

func TestRunTurn_AmbiguousAsksForClarification(t *testing.T) {
	llmFake := &fakeLLM{responses: []string{`{"intent": "ambiguous", "answer": "请问你指的是哪个时间段?"}`}}
	o := newTestOrchestrator(&fakeDBService{}, llmFake, &fakeStructureManager{ds: salesStructure()})

	result := o.RunTurn(context.Background(), TurnRequest{ConnID: "conn-1", Message: "看一下销量"}, nil)
	assert.Equal(t, IntentAmbiguous, result.Intent)
	assert.Equal(t, "请问你指的是哪个时间段?", result.Answer)
}

func TestRunTurn_ClassificationFailureFallsBackToQuery(t *testing.T) {
	// 分类调用失败时按取数处理，而不是整轮报错
	db := &fakeDBService{steps: []queryStep{{result: salesResult()}}}
	llmFake := &fakeLLM{
		errs: []error{errors.New("LLM 超时")},
		responses: []string{
			"",
			"SELECT month, amount FROM orders",
			`{"family":"bar","x_field":"month","y_fields":["amount"]}`,
			"月度销售额",
		},
	}
	o := newTestOrchestrator(db, llmFake, &fakeStructureManager{ds: salesStructure()})

	result := o.RunTurn(context.Background(), TurnRequest{ConnID: "conn-1", Message: "按月看销售额"}, nil)
	assert.Equal(t, IntentQuery, result.Intent)
	assert.Empty(t, result.ErrorKind)
	require.NotNil(t, result.Render)
}

func TestRunTurn_SchemaUnavailableTerminatesEarly(t *testing.T) {
	llmFake := &fakeLLM{responses: []string{`{"intent": "query"}`}}
	structures := &fakeStructureManager{err: &structure.SchemaUnavailableError{Message: "连接已断开"}}
	db := &fakeDBService{}
	o := newTestOrchestrator(db, llmFake, structures)

	sink, events := collectEvents()
	result := o.RunTurn(context.Background(), TurnRequest{ConnID: "conn-1", Message: "按月看销售额"}, sink)

	assert.Equal(t, ErrKindSchemaUnavailable, result.ErrorKind)
	assert.Contains(t, result.ErrorMessage, "连接已断开")
	// 结构拿不到就不进入生成阶段
	assert.Len(t, llmFake.calls, 1)
	assert.Empty(t, db.executed)
	assert.Equal(t, StatusError, statusSequence(*events)[len(*events)-1])
}

func TestRunTurn_NonReadOnlyGenerationIsRejected(t *testing.T) {
	llmFake := &fakeLLM{responses: []string{
		`{"intent": "query"}`,
		"DELETE FROM orders",
	}}
	db := &fakeDBService{}
	o := newTestOrchestrator(db, llmFake, &fakeStructureManager{ds: salesStructure()})

	result := o.RunTurn(context.Background(), TurnRequest{ConnID: "conn-1", Message: "清空订单"}, nil)

	assert.Equal(t, ErrKindGeneration, result.ErrorKind)
	assert.Equal(t, "DELETE FROM orders", result.FailedText)
	// 写语句不会被执行
	assert.Empty(t, db.executed)
}

func TestRunTurn_EmptyResultAfterRetries(t *testing.T) {
	empty := &databases.QueryResult{Types: []databases.ColumnType{{Name: "month", Type: "varchar"}}}
	db := &fakeDBService{steps: []queryStep{{result: empty}, {result: empty}}}
	llmFake := &fakeLLM{responses: []string{
		`{"intent": "query"}`,
		"SELECT month FROM orders WHERE amount > 99999",
		"SELECT month FROM orders",
	}}
	o := newTestOrchestrator(db, llmFake, &fakeStructureManager{ds: salesStructure()})

	sink, events := collectEvents()
	result := o.RunTurn(context.Background(), TurnRequest{ConnID: "conn-1", Message: "超高额订单"}, sink)

	assert.Equal(t, ErrKindEmptyResult, result.ErrorKind)
	assert.Contains(t, result.ErrorMessage, "没有找到匹配的数据")
	assert.Equal(t, "SELECT month FROM orders", result.Query)
	assert.Equal(t, StatusError, statusSequence(*events)[len(*events)-1])
}

func TestRunTurn_VisualizationFailureKeepsDataAndQuery(t *testing.T) {
	db := &fakeDBService{steps: []queryStep{{result: salesResult()}}}
	llmFake := &fakeLLM{responses: []string{
		`{"intent": "query"}`,
		"SELECT month, amount FROM orders",
		"这不是一份 JSON 规格",
	}}
	o := newTestOrchestrator(db, llmFake, &fakeStructureManager{ds: salesStructure()})

	sink, events := collectEvents()
	result := o.RunTurn(context.Background(), TurnRequest{ConnID: "conn-1", Message: "按月看销售额"}, sink)

	// 可视化失败不丢数据：查询和结果照常返回
	assert.Equal(t, ErrKindVisualization, result.ErrorKind)
	assert.Equal(t, "SELECT month, amount FROM orders", result.Query)
	require.NotNil(t, result.Result)
	assert.Equal(t, 2, result.Result.RowCount())
	assert.Empty(t, result.ChartSpec)
	assert.Nil(t, result.Render)
	// 局部失败以 completed 收尾，不是 error
	assert.Equal(t, StatusCompleted, statusSequence(*events)[len(*events)-1])
}

func TestRunTurn_TitleFailureKeepsChart(t *testing.T) {
	db := &fakeDBService{steps: []queryStep{{result: salesResult()}}}
	llmFake := &fakeLLM{
		responses: []string{
			`{"intent": "query"}`,
			"SELECT month, amount FROM orders",
			`{"family":"line","x_field":"month","y_fields":["amount"]}`,
		},
		errs: []error{nil, nil, nil, errors.New("标题调用超时")},
	}
	o := newTestOrchestrator(db, llmFake, &fakeStructureManager{ds: salesStructure()})

	result := o.RunTurn(context.Background(), TurnRequest{ConnID: "conn-1", Message: "按月看销售额"}, nil)

	// 标题失败不影响图表本身
	assert.Equal(t, ErrKindTitle, result.ErrorKind)
	assert.NotEmpty(t, result.ChartSpec)
	assert.Empty(t, result.ChartTitle)
	require.NotNil(t, result.Render)
	assert.Equal(t, charts.FamilyLine, result.Render.Family)
}

func TestRunTurn_RenderErrorCarriesSpecSource(t *testing.T) {
	db := &fakeDBService{steps: []queryStep{{result: salesResult()}}}
	// 规格本身合法，但引用了结果中不存在的列
	llmFake := &fakeLLM{responses: []string{
		`{"intent": "query"}`,
		"SELECT month, amount FROM orders",
		`{"family":"line","x_field":"month","y_fields":["profit"]}`,
		"月度利润",
	}}
	o := newTestOrchestrator(db, llmFake, &fakeStructureManager{ds: salesStructure()})

	result := o.RunTurn(context.Background(), TurnRequest{ConnID: "conn-1", Message: "按月看利润"}, nil)

	assert.Equal(t, ErrKindRender, result.ErrorKind)
	assert.Nil(t, result.Render)
	// 出错规格的原文随结果返回，供用户手动修正
	assert.Equal(t, result.ChartSpec, result.FailedText)
	assert.Contains(t, result.ErrorMessage, "profit")
	// 数据不受影响
	require.NotNil(t, result.Result)
}
