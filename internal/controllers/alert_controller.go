package controllers

import (
	"net/http"

	"merchantcrm/internal/alerts"
	"merchantcrm/internal/apperr"
	"merchantcrm/internal/middleware"
	"merchantcrm/internal/models"
	"merchantcrm/internal/scope"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type AlertController struct {
	DB     *gorm.DB
	Alerts *alerts.Notifier
	Logger *zap.Logger
}

// List handles GET /api/alerts: the user's own alerts and their role's
// broadcasts. ?unread=true hides read ones.
func (ac *AlertController) List(c *gin.Context) {
	ctx := c.Request.Context()
	p := pageFrom(c)
	s := scope.For(middleware.CurrentUser(c))
	unreadOnly := c.Query("unread") == "true"
	query := func() *gorm.DB {
		q := ac.DB.WithContext(ctx).Model(&models.Alert{}).Scopes(s.Alerts, p.filter("alerts", "title", "message"))
		if unreadOnly {
			q = q.Where("alerts.read_at IS NULL")
		}
		if sev := c.Query("severity"); sev != "" {
			q = q.Where("alerts.severity = ?", sev)
		}
		return q
	}

	var list []models.Alert
	total, err := p.list(query, "alerts.created_at DESC, alerts.id DESC", &list)
	if err != nil {
		fail(c, ac.Logger, apperr.Wrap(err, "list alerts"))
		return
	}
	unread, err := ac.Alerts.Unread(ctx, s)
	if err != nil {
		fail(c, ac.Logger, apperr.Wrap(err, "count unread alerts"))
		return
	}

	body := p.body("alerts", list, total)
	body["unread"] = unread
	ok(c, http.StatusOK, body)
}

type alertRequest struct {
	UserID     *uint  `json:"user_id"`
	Role       string `json:"role" binding:"omitempty,oneof=admin agent merchant"`
	Severity   string `json:"severity" binding:"omitempty,oneof=info warning critical"`
	Title      string `json:"title" binding:"required,max=255"`
	Message    string `json:"message"`
	Link       string `json:"link" binding:"max=512"`
	EntityType string `json:"entity_type" binding:"max=50"`
	EntityID   *uint  `json:"entity_id"`
}

// Create handles POST /api/alerts (admin).
func (ac *AlertController) Create(c *gin.Context) {
	ctx := c.Request.Context()
	var req alertRequest
	if err := bindJSON(c, &req); err != nil {
		fail(c, ac.Logger, err)
		return
	}
	if req.UserID != nil {
		found, err := exists[models.User](ctx, ac.DB, req.UserID)
		if err != nil {
			fail(c, ac.Logger, apperr.Wrap(err, "check user"))
			return
		}
		if !found {
			fail(c, ac.Logger, apperr.InvalidFields("Please fix the highlighted fields", map[string]string{"user_id": "does not exist"}))
			return
		}
		req.Role = ""
	}

	alert := models.Alert{
		UserID:     req.UserID,
		Role:       req.Role,
		Severity:   req.Severity,
		Title:      req.Title,
		Message:    req.Message,
		Link:       req.Link,
		EntityType: req.EntityType,
		EntityID:   req.EntityID,
	}
	if err := ac.Alerts.Notify(ctx, &alert); err != nil {
		fail(c, ac.Logger, err)
		return
	}
	ok(c, http.StatusCreated, gin.H{"alert": alert})
}

// Read handles POST /api/alerts/:id/read
func (ac *AlertController) Read(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		fail(c, ac.Logger, err)
		return
	}
	alert, err := ac.Alerts.MarkRead(c.Request.Context(), scope.For(middleware.CurrentUser(c)), id)
	if err != nil {
		fail(c, ac.Logger, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"alert": alert})
}

// ReadAll handles POST /api/alerts/read-all
func (ac *AlertController) ReadAll(c *gin.Context) {
	n, err := ac.Alerts.MarkAllRead(c.Request.Context(), scope.For(middleware.CurrentUser(c)))
	if err != nil {
		fail(c, ac.Logger, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"updated": n})
}

// Delete handles DELETE /api/alerts/:id (admin).
func (ac *AlertController) Delete(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		fail(c, ac.Logger, err)
		return
	}
	n, err := gorm.G[models.Alert](ac.DB).Where("id = ?", id).Delete(c.Request.Context())
	if err != nil {
		fail(c, ac.Logger, apperr.Wrap(err, "delete alert"))
		return
	}
	if n == 0 {
		fail(c, ac.Logger, apperr.NotFoundf("Alert not found"))
		return
	}
	ok(c, http.StatusOK, gin.H{"message": "Alert deleted"})
}
