package controllers

import (
	"net/http"

	"merchantcrm/internal/apperr"
	"merchantcrm/internal/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type AgentController struct {
	DB     *gorm.DB
	Logger *zap.Logger
}

type agentRequest struct {
	FirstName       string  `json:"first_name" binding:"required,max=100"`
	LastName        string  `json:"last_name" binding:"required,max=100"`
	Email           string  `json:"email" binding:"required,email"`
	Phone           string  `json:"phone" binding:"max=32"`
	Status          string  `json:"status" binding:"omitempty,oneof=active inactive"`
	CommissionSplit float64 `json:"commission_split" binding:"gte=0,lte=100"`
}

func (r agentRequest) apply(a *models.Agent) {
	a.FirstName = r.FirstName
	a.LastName = r.LastName
	a.Email = models.NormalizeEmail(r.Email)
	a.Phone = r.Phone
	a.CommissionSplit = r.CommissionSplit
	a.Status = r.Status
	if a.Status == "" {
		a.Status = models.AgentStatusActive
	}
}

func (ac *AgentController) load(c *gin.Context) (*models.Agent, error) {
	id, err := paramID(c, "id")
	if err != nil {
		return nil, err
	}
	var agent models.Agent
	if err := first(ac.DB.WithContext(c.Request.Context()).Where("id = ?", id), &agent, "Agent"); err != nil {
		return nil, err
	}
	return &agent, nil
}

func (ac *AgentController) List(c *gin.Context) {
	p := pageFrom(c)
	query := func() *gorm.DB {
		return ac.DB.WithContext(c.Request.Context()).Model(&models.Agent{}).
			Scopes(p.filter("agents", "first_name", "last_name", "email"))
	}

	var agents []models.Agent
	total, err := p.list(query, "last_name ASC, first_name ASC", &agents)
	if err != nil {
		fail(c, ac.Logger, apperr.Wrap(err, "list agents"))
		return
	}
	ok(c, http.StatusOK, p.body("agents", agents, total))
}

func (ac *AgentController) Get(c *gin.Context) {
	agent, err := ac.load(c)
	if err != nil {
		fail(c, ac.Logger, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"agent": agent})
}

func (ac *AgentController) Create(c *gin.Context) {
	var req agentRequest
	if err := bindJSON(c, &req); err != nil {
		fail(c, ac.Logger, err)
		return
	}

	var agent models.Agent
	req.apply(&agent)
	if err := gorm.G[models.Agent](ac.DB).Create(c.Request.Context(), &agent); err != nil {
		fail(c, ac.Logger, translate(err, "An agent with this email already exists"))
		return
	}
	ok(c, http.StatusCreated, gin.H{"agent": agent})
}

func (ac *AgentController) Update(c *gin.Context) {
	agent, err := ac.load(c)
	if err != nil {
		fail(c, ac.Logger, err)
		return
	}
	var req agentRequest
	if err := bindJSON(c, &req); err != nil {
		fail(c, ac.Logger, err)
		return
	}

	req.apply(agent)
	err = ac.DB.WithContext(c.Request.Context()).Model(agent).
		Select("first_name", "last_name", "email", "phone", "status", "commission_split").Updates(agent).Error
	if err != nil {
		fail(c, ac.Logger, translate(err, "An agent with this email already exists"))
		return
	}
	ok(c, http.StatusOK, gin.H{"agent": agent})
}

// Delete removes an agent without merchants, prospects or users.
func (ac *AgentController) Delete(c *gin.Context) {
	ctx := c.Request.Context()
	agent, err := ac.load(c)
	if err != nil {
		fail(c, ac.Logger, err)
		return
	}

	for _, ref := range []any{&models.Merchant{}, &models.Prospect{}, &models.User{}} {
		var n int64
		if err := ac.DB.WithContext(ctx).Model(ref).Where("agent_id = ?", agent.ID).Count(&n).Error; err != nil {
			fail(c, ac.Logger, apperr.Wrap(err, "count agent references"))
			return
		}
		if n > 0 {
			fail(c, ac.Logger, apperr.Conflictf("Agent still has merchants, prospects or users assigned"))
			return
		}
	}

	if _, err := gorm.G[models.Agent](ac.DB).Where("id = ?", agent.ID).Delete(ctx); err != nil {
		fail(c, ac.Logger, apperr.Wrap(err, "delete agent"))
		return
	}
	ok(c, http.StatusOK, gin.H{"message": "Agent deleted"})
}
