package agent

// Status 是管线阶段的枚举，按发生顺序流式推送给客户端。
type Status string

// 管线状态。顺序契约：一轮对话内事件按阶段顺序产生，
// completed 或 error 一定是最后一个事件。
const (
	StatusClassifying             Status = "classifying"
	StatusGeneratingQuery         Status = "generating_query"
	StatusExecutingQuery          Status = "executing_query"
	StatusValidatingQuery         Status = "validating_query"
	StatusRepairingQuery          Status = "repairing_query"
	StatusGeneratingVisualization Status = "generating_visualization"
	StatusGeneratingTitle         Status = "generating_title"
	StatusAnswering               Status = "answering"
	StatusCompleted               Status = "completed"
	StatusError                   Status = "error"
)

// StatusEvent 是推给客户端的一条进度事件。
type StatusEvent struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"` // 用户可读的说明 (凭证已清洗)
	Attempt int    `json:"attempt,omitempty"` // 修复循环的尝试序号 (从 1 开始)
	Data    any    `json:"data,omitempty"`    // completed 事件携带的结果载荷
}

// EventSink 消费状态事件。写失败由实现自行吞掉，管线不等待确认。
type EventSink func(event StatusEvent)

// emitTo 安全地向 sink 发送事件，sink 为 nil 时丢弃。
func emitTo(sink EventSink, event StatusEvent) {
	if sink != nil {
		sink(event)
	}
}
