package handlers

import (
	"net/http"
	"sync"

	"github.com/cbc3929/bi_agent_server/internal/core/charts"
	"github.com/cbc3929/bi_agent_server/internal/store"

	"github.com/gin-gonic/gin"
)

// createDashboardRequest 创建看板的请求体。
type createDashboardRequest struct {
	Name     string   `json:"name" binding:"required"`
	ChartIDs []string `json:"chart_ids"`
}

// updateDashboardRequest 更新看板的请求体，nil 字段表示不修改。
type updateDashboardRequest struct {
	Name     *string   `json:"name"`
	ChartIDs *[]string `json:"chart_ids"`
}

// dashboardItem 是看板渲染结果中的一项。
// 单项失败 (图表被删、规格失效) 只影响该项，其余照常渲染。
type dashboardItem struct {
	ChartID string                `json:"chart_id"`
	Title   string                `json:"title,omitempty"`
	Render  *charts.RenderPayload `json:"render,omitempty"`
	Error   string                `json:"error,omitempty"`
}

// handleCreateDashboard 创建看板。引用的图表必须属于当前用户。
func (d *Deps) handleCreateDashboard(c *gin.Context) {
	uid := userID(c)

	var req createDashboardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求参数不合法: " + err.Error()})
		return
	}
	for _, chartID := range req.ChartIDs {
		if _, err := d.ChartStore.Get(chartID, uid); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "图表不存在: " + chartID})
			return
		}
	}

	dashboard, err := d.Dashboards.Create(&store.Dashboard{
		UserID:   uid,
		Name:     req.Name,
		ChartIDs: req.ChartIDs,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, dashboard)
}

// handleListDashboards 列出当前用户的看板。
func (d *Deps) handleListDashboards(c *gin.Context) {
	c.JSON(http.StatusOK, d.Dashboards.List(userID(c)))
}

// handleGetDashboard 返回单个看板。
func (d *Deps) handleGetDashboard(c *gin.Context) {
	dashboard, err := d.Dashboards.Get(c.Param("dashboardID"), userID(c))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "看板不存在"})
		return
	}
	c.JSON(http.StatusOK, dashboard)
}

// handleUpdateDashboard 更新看板名称或图表引用列表。
func (d *Deps) handleUpdateDashboard(c *gin.Context) {
	uid := userID(c)

	var req updateDashboardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求参数不合法: " + err.Error()})
		return
	}
	if req.ChartIDs != nil {
		for _, chartID := range *req.ChartIDs {
			if _, err := d.ChartStore.Get(chartID, uid); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "图表不存在: " + chartID})
				return
			}
		}
	}

	dashboard, err := d.Dashboards.Update(c.Param("dashboardID"), uid, func(dashboard *store.Dashboard) {
		if req.Name != nil {
			dashboard.Name = *req.Name
		}
		if req.ChartIDs != nil {
			dashboard.ChartIDs = *req.ChartIDs
		}
	})
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "看板不存在"})
		return
	}
	c.JSON(http.StatusOK, dashboard)
}

// handleDeleteDashboard 删除看板，被引用的图表不受影响。
func (d *Deps) handleDeleteDashboard(c *gin.Context) {
	if err := d.Dashboards.Delete(c.Param("dashboardID"), userID(c)); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "看板不存在"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// handleRenderDashboard 并发编译看板引用的全部图表。
// 每一项的失败被隔离在该项内，整体请求始终成功返回。
func (d *Deps) handleRenderDashboard(c *gin.Context) {
	uid := userID(c)

	dashboard, err := d.Dashboards.Get(c.Param("dashboardID"), uid)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "看板不存在"})
		return
	}

	items := make([]dashboardItem, len(dashboard.ChartIDs))
	var wg sync.WaitGroup
	for i, chartID := range dashboard.ChartIDs {
		wg.Add(1)
		go func(i int, chartID string) {
			defer wg.Done()
			items[i] = d.renderDashboardItem(uid, chartID)
		}(i, chartID)
	}
	wg.Wait()

	c.JSON(http.StatusOK, gin.H{
		"id":    dashboard.ID,
		"name":  dashboard.Name,
		"items": items,
	})
}

// renderDashboardItem 编译单项，错误收敛进该项。
func (d *Deps) renderDashboardItem(uid, chartID string) dashboardItem {
	item := dashboardItem{ChartID: chartID}

	chart, err := d.ChartStore.Get(chartID, uid)
	if err != nil {
		item.Error = "图表不存在"
		return item
	}
	item.Title = chart.Title

	payload, err := d.Compiler.Compile(chart.SpecJSON, chart.Data)
	if err != nil {
		item.Error = err.Error()
		return item
	}
	payload.Title = chart.Title
	item.Render = payload
	return item
}
