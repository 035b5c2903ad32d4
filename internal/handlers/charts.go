package handlers

import (
	"net/http"

	"github.com/cbc3929/bi_agent_server/internal/core/agent"
	"github.com/cbc3929/bi_agent_server/internal/core/charts"
	"github.com/cbc3929/bi_agent_server/internal/core/databases"
	"github.com/cbc3929/bi_agent_server/internal/core/llm"
	"github.com/cbc3929/bi_agent_server/internal/core/prompts"
	"github.com/cbc3929/bi_agent_server/internal/store"
	"github.com/cbc3929/bi_agent_server/internal/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// createChartRequest 保存图表的请求体，通常来自一次完成的对话轮。
type createChartRequest struct {
	Title    string                 `json:"title" binding:"required"`
	SpecJSON string                 `json:"spec_json" binding:"required"`
	Data     *databases.QueryResult `json:"data"`
	Query    string                 `json:"query"`
	ConnID   string                 `json:"conn_id"`
}

// updateChartRequest 更新图表的请求体，零值字段表示不修改。
type updateChartRequest struct {
	Title    string                 `json:"title"`
	SpecJSON string                 `json:"spec_json"`
	Data     *databases.QueryResult `json:"data"`
	Query    string                 `json:"query"`
}

// editChartRequest 自然语言编辑指令。
type editChartRequest struct {
	Instruction string `json:"instruction" binding:"required"`
}

// handleCreateChart 保存一张新图表。规格必须能通过结构校验。
func (d *Deps) handleCreateChart(c *gin.Context) {
	var req createChartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求参数不合法: " + err.Error()})
		return
	}

	if _, err := charts.ParseSpec(req.SpecJSON); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "图表规格不合法: " + err.Error()})
		return
	}

	chart, err := d.ChartStore.Create(&store.Chart{
		UserID:   userID(c),
		Title:    req.Title,
		SpecJSON: req.SpecJSON,
		Data:     req.Data,
		Query:    req.Query,
		ConnID:   req.ConnID,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, chart)
}

// handleListCharts 列出当前用户的图表。
func (d *Deps) handleListCharts(c *gin.Context) {
	c.JSON(http.StatusOK, d.ChartStore.List(userID(c)))
}

// handleGetChart 返回单张图表。
func (d *Deps) handleGetChart(c *gin.Context) {
	chart, err := d.ChartStore.Get(c.Param("chartID"), userID(c))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "图表不存在"})
		return
	}
	c.JSON(http.StatusOK, chart)
}

// handleUpdateChart 显式保存：更新规格、标题或数据快照。
// 有进行中的编辑会话时同步其已保存快照。
func (d *Deps) handleUpdateChart(c *gin.Context) {
	uid := userID(c)
	chartID := c.Param("chartID")

	var req updateChartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求参数不合法: " + err.Error()})
		return
	}
	if req.SpecJSON != "" {
		if _, err := charts.ParseSpec(req.SpecJSON); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "图表规格不合法: " + err.Error()})
			return
		}
	}

	chart, err := d.ChartStore.Update(chartID, uid, func(chart *store.Chart) {
		if req.Title != "" {
			chart.Title = req.Title
		}
		if req.SpecJSON != "" {
			chart.SpecJSON = req.SpecJSON
		}
		if req.Data != nil {
			chart.Data = req.Data
		}
		if req.Query != "" {
			chart.Query = req.Query
		}
	})
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "图表不存在"})
		return
	}

	if editor, ok := d.editors.Get(editorKey(uid, chartID)); ok {
		editor.MarkSaved()
	}
	c.JSON(http.StatusOK, chart)
}

// handleDeleteChart 删除图表并丢弃其编辑会话。
func (d *Deps) handleDeleteChart(c *gin.Context) {
	uid := userID(c)
	chartID := c.Param("chartID")

	if err := d.ChartStore.Delete(chartID, uid); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "图表不存在"})
		return
	}
	d.editors.Remove(editorKey(uid, chartID))
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// handleRenderChart 用保存的数据快照编译渲染载荷。
func (d *Deps) handleRenderChart(c *gin.Context) {
	chart, err := d.ChartStore.Get(c.Param("chartID"), userID(c))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "图表不存在"})
		return
	}

	payload, err := d.Compiler.Compile(chart.SpecJSON, chart.Data)
	if err != nil {
		if renderErr, ok := err.(*charts.RenderError); ok {
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"error":       renderErr.Message,
				"source_text": renderErr.SourceText,
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	payload.Title = chart.Title
	c.JSON(http.StatusOK, payload)
}

// handleEditChart 用自然语言指令请求 LLM 改写图表规格。
// 改写结果进入 diff_pending，等待 accept / reject。
func (d *Deps) handleEditChart(c *gin.Context) {
	uid := userID(c)
	chartID := c.Param("chartID")

	var req editChartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求参数不合法: " + err.Error()})
		return
	}

	chart, err := d.ChartStore.Get(chartID, uid)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "图表不存在"})
		return
	}

	editor := d.editorFor(uid, chart)
	if err := editor.BeginStreaming(); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}

	currentSpec, _, _ := editor.Snapshot()
	var columns []databases.ColumnType
	if chart.Data != nil {
		columns = chart.Data.Types
	}

	system, user := prompts.BuildEditPrompt(currentSpec, columns, req.Instruction)
	raw, err := d.LLMClient.Complete(c.Request.Context(), system, user)
	if err != nil {
		editor.FailStreaming()
		utils.DefaultLogger.Warn("图表编辑调用失败", zap.String("chartID", chartID), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "图表编辑失败: " + utils.ScrubCredentials(err.Error())})
		return
	}

	jsonText, err := llm.ExtractJSON(raw)
	if err == nil {
		if _, parseErr := charts.ParseSpec(jsonText); parseErr != nil {
			err = parseErr
		}
	}
	if err != nil {
		editor.FailStreaming()
		c.JSON(http.StatusBadGateway, gin.H{"error": "改写产出的规格不可用: " + err.Error()})
		return
	}

	if err := editor.CompleteStreaming(jsonText); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"phase":         editor.Phase(),
		"proposed_spec": jsonText,
		"show_diff":     editor.ShowDiff(),
	})
}

// handleAcceptEdit 接受提议的改写。当前规格变为提议内容，
// 显式保存 (PUT) 之前仍处于未保存状态。
func (d *Deps) handleAcceptEdit(c *gin.Context) {
	uid := userID(c)
	chartID := c.Param("chartID")

	editor, ok := d.editors.Get(editorKey(uid, chartID))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "没有进行中的编辑会话"})
		return
	}
	if err := editor.Accept(); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}

	spec, title, _ := editor.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"phase":               editor.Phase(),
		"current_spec":        spec,
		"current_title":       title,
		"has_unsaved_changes": editor.HasUnsavedChanges(),
	})
}

// handleRejectEdit 拒绝提议的改写，当前规格保持不变。
func (d *Deps) handleRejectEdit(c *gin.Context) {
	uid := userID(c)
	chartID := c.Param("chartID")

	editor, ok := d.editors.Get(editorKey(uid, chartID))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "没有进行中的编辑会话"})
		return
	}
	if err := editor.Reject(); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}

	spec, title, _ := editor.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"phase":               editor.Phase(),
		"current_spec":        spec,
		"current_title":       title,
		"has_unsaved_changes": editor.HasUnsavedChanges(),
	})
}

// editorFor 取出或创建图表的编辑会话。
func (d *Deps) editorFor(uid string, chart *store.Chart) *agent.EditorState {
	key := editorKey(uid, chart.ID)
	if editor, ok := d.editors.Get(key); ok {
		return editor
	}
	editor := agent.NewEditorState(chart.ID, chart.SpecJSON, chart.Title)
	d.editors.Set(key, editor)
	return editor
}

// editorKey 编辑会话按 (用户, 图表) 隔离。
func editorKey(uid, chartID string) string {
	return uid + ":" + chartID
}
