package agent

import (
	"context"
	"fmt"

	"github.com/cbc3929/bi_agent_server/internal/core/databases"
	"github.com/cbc3929/bi_agent_server/internal/core/structure"
)

// --- 测试替身 ---

// llmCall 记录一次 LLM 调用的提示词。
type llmCall struct {
	System string
	User   string
}

// fakeLLM 按脚本顺序返回应答，并记录每次调用的提示词。
type fakeLLM struct {
	responses []string
	errs      []error
	calls     []llmCall
}

func (f *fakeLLM) Complete(_ context.Context, system, user string) (string, error) {
	f.calls = append(f.calls, llmCall{System: system, User: user})
	i := len(f.calls) - 1
	if i < len(f.errs) && f.errs[i] != nil {
		return "", f.errs[i]
	}
	if i < len(f.responses) {
		return f.responses[i], nil
	}
	return "", fmt.Errorf("脚本中没有第 %d 次应答", i+1)
}

// queryStep 是一次查询执行的脚本化结果。
type queryStep struct {
	result *databases.QueryResult
	err    error
}

// fakeDBService 按脚本顺序返回查询结果，并记录实际执行的 SQL。
type fakeDBService struct {
	steps    []queryStep
	executed []string
}

func (f *fakeDBService) RegisterConnection(_ context.Context, _, _ string) (string, error) {
	return "conn-1", nil
}

func (f *fakeDBService) DisconnectConnection(_ context.Context, _ string) error { return nil }

func (f *fakeDBService) ConnectionType(_ string) (string, bool) { return databases.TypePostgres, true }

func (f *fakeDBService) ExecuteQuery(_ context.Context, _ string, sql string, _ ...any) (*databases.QueryResult, error) {
	f.executed = append(f.executed, sql)
	i := len(f.executed) - 1
	if i < len(f.steps) {
		return f.steps[i].result, f.steps[i].err
	}
	return nil, databases.NewExecutionError("脚本中没有第 %d 次执行结果", i+1)
}

func (f *fakeDBService) CloseAll(_ context.Context) error { return nil }

// fakeStructureManager 返回固定的结构快照。
type fakeStructureManager struct {
	ds  *structure.DatabaseStructure
	err error
}

func (f *fakeStructureManager) LoadStructure(_ context.Context, _ string) error { return f.err }

func (f *fakeStructureManager) GetStructure(_ string) (*structure.DatabaseStructure, bool) {
	return f.ds, f.ds != nil
}

func (f *fakeStructureManager) EnsureStructure(_ context.Context, _ string) (*structure.DatabaseStructure, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.ds, nil
}

func (f *fakeStructureManager) Invalidate(_ string) {}

// salesResult 构造一份两行的销售结果集。
func salesResult() *databases.QueryResult {
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

// salesStructure 构造取数管线使用的结构快照。
func salesStructure() *structure.DatabaseStructure {
	return &structure.DatabaseStructure{
		DBType: "postgres",
		Schemas: []structure.SchemaInfo{
			{
				Name: "public",
				Tables: []structure.TableInfo{
					{
						Name: "orders",
						Columns: []structure.ColumnInfo{
							{Name: "month", Type: "varchar"},
							{Name: "amount", Type: "numeric"},
						},
					},
				},
			},
		},
	}
}

// collectEvents 返回一个 sink 和指向事件列表的指针。
func collectEvents() (EventSink, *[]StatusEvent) {
	events := &[]StatusEvent{}
	return func(e StatusEvent) { *events = append(*events, e) }, events
}

// statusSequence 提取事件的状态序列。
func statusSequence(events []StatusEvent) []Status {
	out := make([]Status, 0, len(events))
	for _, e := range events {
		out = append(out, e.Status)
	}
	return out
}
