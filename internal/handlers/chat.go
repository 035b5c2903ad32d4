package handlers

import (
	"errors"
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/cbc3929/bi_agent_server/internal/core/agent"
	"github.com/cbc3929/bi_agent_server/internal/store"
	"github.com/cbc3929/bi_agent_server/internal/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// createChatRequest 开启会话的请求体。
type createChatRequest struct {
	ConnID string `json:"conn_id" binding:"required"`
}

// chatMessageRequest 发送消息的请求体。
type chatMessageRequest struct {
	Message string `json:"message" binding:"required"`
}

// handleCreateChat 开启一个绑定到数据库连接的新会话。
func (d *Deps) handleCreateChat(c *gin.Context) {
	var req createChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求参数不合法: " + err.Error()})
		return
	}
	if _, found := d.DBService.ConnectionType(req.ConnID); !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "连接未注册: " + req.ConnID})
		return
	}

	session, err := d.ChatStore.Create(userID(c), req.ConnID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, session)
}

// handleListChats 列出当前用户的会话。
func (d *Deps) handleListChats(c *gin.Context) {
	c.JSON(http.StatusOK, d.ChatStore.List(userID(c)))
}

// handleGetChat 返回单个会话及其消息。
func (d *Deps) handleGetChat(c *gin.Context) {
	session, err := d.ChatStore.Get(c.Param("chatID"), userID(c))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "会话不存在"})
		return
	}
	c.JSON(http.StatusOK, session)
}

// handleDeleteChat 删除会话。
func (d *Deps) handleDeleteChat(c *gin.Context) {
	if err := d.ChatStore.Delete(c.Param("chatID"), userID(c)); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "会话不存在"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// handleChatMessage 处理一条用户消息并以 SSE 流式返回管线进度。
// completed / error 一定是流上的最后一个事件；客户端不支持 SSE 时
// 降级为一次性 JSON 返回最终结果。
func (d *Deps) handleChatMessage(c *gin.Context) {
	uid := userID(c)
	chatID := c.Param("chatID")

	var req chatMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求参数不合法: " + err.Error()})
		return
	}

	session, err := d.ChatStore.Get(chatID, uid)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "会话不存在"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	// 历史窗口在追加本条消息之前截取
	history := d.ChatStore.HistoryWindow(chatID, uid, d.Cfg.HistoryWindow)
	if _, err := d.ChatStore.AppendMessage(chatID, uid, "user", req.Message); err != nil {
		utils.DefaultLogger.Error("保存用户消息失败", zap.Error(err))
	}

	turnReq := agent.TurnRequest{
		ConnID:  session.ConnID,
		Message: req.Message,
		History: history,
	}

	writer := newSSEWriter(c)
	var sink agent.EventSink
	if writer != nil {
		sink = writer.sink()
	}

	result := d.Orchestrator.RunTurn(c.Request.Context(), turnReq, sink)

	// 助手回复落库：文本回答直接存，取数轮存结果摘要
	assistantContent := result.Answer
	if assistantContent == "" {
		if encoded, err := sonic.MarshalString(result); err == nil {
			assistantContent = encoded
		}
	}
	if _, err := d.ChatStore.AppendMessage(chatID, uid, "assistant", assistantContent); err != nil {
		utils.DefaultLogger.Error("保存助手消息失败", zap.Error(err))
	}

	if writer == nil {
		c.JSON(http.StatusOK, result)
	}
}
