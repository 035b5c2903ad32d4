package handlers

import (
	"net/http"

	"github.com/cbc3929/bi_agent_server/internal/core/structure"
	"github.com/cbc3929/bi_agent_server/internal/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// registerConnectionRequest 注册连接的请求体。
type registerConnectionRequest struct {
	ConnectionString string `json:"connection_string" binding:"required"`
	DBType           string `json:"db_type" binding:"required,oneof=postgres mysql"`
}

// handleRegisterConnection 注册数据库连接并返回 conn_id。
// 相同连接字符串重复注册返回同一个 ID。
func (d *Deps) handleRegisterConnection(c *gin.Context) {
	var req registerConnectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求参数不合法: " + err.Error()})
		return
	}

	connID, err := d.DBService.RegisterConnection(c.Request.Context(), req.ConnectionString, req.DBType)
	if err != nil {
		utils.DefaultLogger.Error("注册数据库连接失败", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": utils.ScrubCredentials(err.Error())})
		return
	}

	c.JSON(http.StatusOK, gin.H{"conn_id": connID, "db_type": req.DBType})
}

// handleDisconnect 断开连接并丢弃其结构缓存。
func (d *Deps) handleDisconnect(c *gin.Context) {
	connID := c.Param("connID")

	if err := d.DBService.DisconnectConnection(c.Request.Context(), connID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": utils.ScrubCredentials(err.Error())})
		return
	}
	d.Structures.Invalidate(connID)

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// handleGetStructure 返回连接的结构快照。
// ?format=text 返回提示词用的文本形式，?verbose=true 包含索引与默认值。
func (d *Deps) handleGetStructure(c *gin.Context) {
	connID := c.Param("connID")

	ds, err := d.Structures.EnsureStructure(c.Request.Context(), connID)
	if err != nil {
		status := http.StatusBadGateway
		if _, ok := err.(*structure.SchemaUnavailableError); ok {
			if _, found := d.DBService.ConnectionType(connID); !found {
				status = http.StatusNotFound
			}
		}
		c.JSON(status, gin.H{"error": utils.ScrubCredentials(err.Error())})
		return
	}

	if c.Query("format") == "text" {
		verbose := c.Query("verbose") == "true"
		c.String(http.StatusOK, structure.FormatStructure(ds, verbose))
		return
	}
	c.JSON(http.StatusOK, ds)
}

// handleRefreshStructure 强制重新探查结构。
func (d *Deps) handleRefreshStructure(c *gin.Context) {
	connID := c.Param("connID")

	d.Structures.Invalidate(connID)
	if err := d.Structures.LoadStructure(c.Request.Context(), connID); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": utils.ScrubCredentials(err.Error())})
		return
	}

	ds, _ := d.Structures.GetStructure(connID)
	c.JSON(http.StatusOK, ds)
}
