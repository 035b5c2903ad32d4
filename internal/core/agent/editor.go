package agent

import (
	"fmt"
	"sync"
)

// EditorPhase 是图表编辑会话的状态枚举。
type EditorPhase string

const (
	PhaseClean       EditorPhase = "clean"        // 与已保存快照一致
	PhaseEditing     EditorPhase = "editing"      // 本地有未保存修改
	PhaseStreaming   EditorPhase = "streaming"    // LLM 改写进行中，编辑面板只读
	PhaseDiffPending EditorPhase = "diff_pending" // 改写完成，等待接受或拒绝
)

// EditorState 是一个图表的编辑会话状态机。
// 不变量：ProposedSpec 仅在 diff_pending 阶段非空；接受把当前规格
// 替换为提议并清空提议；拒绝只清空提议，当前规格不动。
// 流式改写期间预览始终渲染最后一份稳定规格，永远不渲染半成品。
type EditorState struct {
	mu sync.Mutex

	ChartID string

	savedSpec  string // 最后一次持久化的规格
	savedTitle string

	currentSpec  string
	currentTitle string

	proposedSpec string
	phase        EditorPhase
}

// NewEditorState 以已保存的图表内容初始化编辑会话。
func NewEditorState(chartID, spec, title string) *EditorState {
	return &EditorState{
		ChartID:      chartID,
		savedSpec:    spec,
		savedTitle:   title,
		currentSpec:  spec,
		currentTitle: title,
		phase:        PhaseClean,
	}
}

// Phase 返回当前阶段。
func (s *EditorState) Phase() EditorPhase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Snapshot 返回 (当前规格, 当前标题, 提议规格)。
func (s *EditorState) Snapshot() (spec, title, proposed string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentSpec, s.currentTitle, s.proposedSpec
}

// SetSpec 直接编辑当前规格。流式改写期间拒绝。
func (s *EditorState) SetSpec(spec string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == PhaseStreaming || s.phase == PhaseDiffPending {
		return fmt.Errorf("当前阶段 %s 不允许直接编辑", s.phase)
	}
	s.currentSpec = spec
	s.recomputePhase()
	return nil
}

// SetTitle 直接编辑标题，约束与 SetSpec 相同。
func (s *EditorState) SetTitle(title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == PhaseStreaming || s.phase == PhaseDiffPending {
		return fmt.Errorf("当前阶段 %s 不允许直接编辑", s.phase)
	}
	s.currentTitle = title
	s.recomputePhase()
	return nil
}

// BeginStreaming 进入流式改写阶段。只能从 clean / editing 进入。
func (s *EditorState) BeginStreaming() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseClean && s.phase != PhaseEditing {
		return fmt.Errorf("当前阶段 %s 不允许发起改写", s.phase)
	}
	s.phase = PhaseStreaming
	return nil
}

// CompleteStreaming 以提议的新规格结束流式改写，进入 diff_pending。
func (s *EditorState) CompleteStreaming(proposedSpec string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseStreaming {
		return fmt.Errorf("当前阶段 %s 没有进行中的改写", s.phase)
	}
	if proposedSpec == "" {
		// 空提议视作改写失败
		s.recomputePhase()
		return fmt.Errorf("改写没有产出新规格")
	}
	s.proposedSpec = proposedSpec
	s.phase = PhaseDiffPending
	return nil
}

// FailStreaming 改写失败，回到改写前的状态。
func (s *EditorState) FailStreaming() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == PhaseStreaming {
		s.recomputePhase()
	}
}

// Accept 接受提议：当前规格替换为提议，提议清空。
func (s *EditorState) Accept() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseDiffPending {
		return fmt.Errorf("当前阶段 %s 没有待处理的提议", s.phase)
	}
	s.currentSpec = s.proposedSpec
	s.proposedSpec = ""
	s.recomputePhase()
	return nil
}

// Reject 拒绝提议：只清空提议，当前规格保持不变。
func (s *EditorState) Reject() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseDiffPending {
		return fmt.Errorf("当前阶段 %s 没有待处理的提议", s.phase)
	}
	s.proposedSpec = ""
	s.recomputePhase()
	return nil
}

// ShowDiff 仅在提议非空且流式已完成时为 true。
func (s *EditorState) ShowDiff() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase == PhaseDiffPending && s.proposedSpec != ""
}

// HasUnsavedChanges 比较当前内容与最后持久化的快照。
// 只有为 true 时保存操作才有意义。
func (s *EditorState) HasUnsavedChanges() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentSpec != s.savedSpec || s.currentTitle != s.savedTitle
}

// MarkSaved 在持久化成功后把当前内容记为已保存快照。
func (s *EditorState) MarkSaved() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.savedSpec = s.currentSpec
	s.savedTitle = s.currentTitle
	s.phase = PhaseClean
}

// recomputePhase 依据当前内容与快照的差异落在 clean 或 editing。
// 调用方必须已持有锁。
func (s *EditorState) recomputePhase() {
	if s.currentSpec != s.savedSpec || s.currentTitle != s.savedTitle {
		s.phase = PhaseEditing
	} else {
		s.phase = PhaseClean
	}
}
