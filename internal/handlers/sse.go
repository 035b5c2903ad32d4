package handlers

import (
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/cbc3929/bi_agent_server/internal/core/agent"
	"github.com/cbc3929/bi_agent_server/internal/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// sseWriter 把管线状态事件以 Server-Sent Events 推给客户端。
// 写入是 fire-and-forget：单条事件写失败只记日志，管线照常推进，
// 不存在确认或背压协议。
type sseWriter struct {
	ctx     *gin.Context
	flusher http.Flusher
}

// newSSEWriter 在 gin 上下文上初始化 SSE 响应头。
// 底层 ResponseWriter 不支持 flush 时返回 nil (调用方降级为普通 JSON)。
func newSSEWriter(c *gin.Context) *sseWriter {
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		return nil
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &sseWriter{ctx: c, flusher: flusher}
}

// send 写出一条事件并立即 flush。
func (w *sseWriter) send(event agent.StatusEvent) {
	encoded, err := sonic.Marshal(event)
	if err != nil {
		utils.DefaultLogger.Warn("序列化状态事件失败", zap.Error(err))
		return
	}

	if _, err := w.ctx.Writer.Write([]byte("data: ")); err != nil {
		utils.DefaultLogger.Debug("SSE 写入失败 (客户端可能已断开)", zap.Error(err))
		return
	}
	if _, err := w.ctx.Writer.Write(encoded); err != nil {
		return
	}
	if _, err := w.ctx.Writer.Write([]byte("\n\n")); err != nil {
		return
	}
	w.flusher.Flush()
}

// sink 返回可交给编排器的事件接收函数。
func (w *sseWriter) sink() agent.EventSink {
	return func(event agent.StatusEvent) {
		w.send(event)
	}
}
