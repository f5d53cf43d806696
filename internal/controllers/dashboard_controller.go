package controllers

import (
	"net/http"

	"merchantcrm/internal/dashboard"
	"merchantcrm/internal/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type DashboardController struct {
	Dashboard *dashboard.Service
	Logger    *zap.Logger
}

// Widgets handles GET /api/dashboard/widgets
func (dc *DashboardController) Widgets(c *gin.Context) {
	items, err := dc.Dashboard.Layout(c.Request.Context(), middleware.CurrentUser(c))
	if err != nil {
		fail(c, dc.Logger, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"widgets": items})
}

type layoutRequest struct {
	Widgets []dashboard.SaveItem `json:"widgets" binding:"required,dive"`
}

// SaveWidgets handles PUT /api/dashboard/widgets
func (dc *DashboardController) SaveWidgets(c *gin.Context) {
	var req layoutRequest
	if err := bindJSON(c, &req); err != nil {
		fail(c, dc.Logger, err)
		return
	}
	items, err := dc.Dashboard.SaveLayout(c.Request.Context(), middleware.CurrentUser(c), req.Widgets)
	if err != nil {
		fail(c, dc.Logger, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"widgets": items})
}

// WidgetData handles GET /api/dashboard/widgets/:key
func (dc *DashboardController) WidgetData(c *gin.Context) {
	key := c.Param("key")
	data, err := dc.Dashboard.Data(c.Request.Context(), middleware.CurrentUser(c), key)
	if err != nil {
		fail(c, dc.Logger, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"key": key, "data": data})
}
