package controllers

import (
	"net/http"
	"strings"

	"merchantcrm/internal/apperr"
	"merchantcrm/internal/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type AcquirerController struct {
	DB     *gorm.DB
	Logger *zap.Logger
}

type acquirerRequest struct {
	Name         string `json:"name" binding:"required,max=255"`
	Code         string `json:"code" binding:"required,max=32"`
	Active       *bool  `json:"active"`
	SupportEmail string `json:"support_email" binding:"omitempty,email"`
}

func (r acquirerRequest) apply(a *models.Acquirer) {
	a.Name = strings.TrimSpace(r.Name)
	a.Code = strings.ToUpper(strings.TrimSpace(r.Code))
	a.SupportEmail = r.SupportEmail
	a.Active = r.Active == nil || *r.Active
}

func (ac *AcquirerController) load(c *gin.Context) (*models.Acquirer, error) {
	id, err := paramID(c, "id")
	if err != nil {
		return nil, err
	}
	var acquirer models.Acquirer
	if err := first(ac.DB.WithContext(c.Request.Context()).Where("id = ?", id), &acquirer, "Acquirer"); err != nil {
		return nil, err
	}
	return &acquirer, nil
}

func (ac *AcquirerController) List(c *gin.Context) {
	p := pageFrom(c)
	query := func() *gorm.DB {
		q := ac.DB.WithContext(c.Request.Context()).Model(&models.Acquirer{}).
			Scopes(p.filter("acquirers", "name", "code"))
		if c.Query("active") == "true" {
			q = q.Where("active = ?", true)
		}
		return q
	}

	var acquirers []models.Acquirer
	total, err := p.list(query, "name ASC", &acquirers)
	if err != nil {
		fail(c, ac.Logger, apperr.Wrap(err, "list acquirers"))
		return
	}
	ok(c, http.StatusOK, p.body("acquirers", acquirers, total))
}

func (ac *AcquirerController) Get(c *gin.Context) {
	acquirer, err := ac.load(c)
	if err != nil {
		fail(c, ac.Logger, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"acquirer": acquirer})
}

func (ac *AcquirerController) Create(c *gin.Context) {
	var req acquirerRequest
	if err := bindJSON(c, &req); err != nil {
		fail(c, ac.Logger, err)
		return
	}

	var acquirer models.Acquirer
	req.apply(&acquirer)
	if err := gorm.G[models.Acquirer](ac.DB).Create(c.Request.Context(), &acquirer); err != nil {
		fail(c, ac.Logger, translate(err, "An acquirer with this name or code already exists"))
		return
	}
	ok(c, http.StatusCreated, gin.H{"acquirer": acquirer})
}

func (ac *AcquirerController) Update(c *gin.Context) {
	acquirer, err := ac.load(c)
	if err != nil {
		fail(c, ac.Logger, err)
		return
	}
	var req acquirerRequest
	if err := bindJSON(c, &req); err != nil {
		fail(c, ac.Logger, err)
		return
	}

	req.apply(acquirer)
	err = ac.DB.WithContext(c.Request.Context()).Model(acquirer).
		Select("name", "code", "active", "support_email").Updates(acquirer).Error
	if err != nil {
		fail(c, ac.Logger, translate(err, "An acquirer with this name or code already exists"))
		return
	}
	ok(c, http.StatusOK, gin.H{"acquirer": acquirer})
}

func (ac *AcquirerController) Delete(c *gin.Context) {
	ctx := c.Request.Context()
	acquirer, err := ac.load(c)
	if err != nil {
		fail(c, ac.Logger, err)
		return
	}

	for _, ref := range []any{&models.Merchant{}, &models.Campaign{}, &models.PdfForm{}} {
		var n int64
		if err := ac.DB.WithContext(ctx).Model(ref).Where("acquirer_id = ?", acquirer.ID).Count(&n).Error; err != nil {
			fail(c, ac.Logger, apperr.Wrap(err, "count acquirer references"))
			return
		}
		if n > 0 {
			fail(c, ac.Logger, apperr.Conflictf("Acquirer is still used by merchants, campaigns or forms"))
			return
		}
	}

	if _, err := gorm.G[models.Acquirer](ac.DB).Where("id = ?", acquirer.ID).Delete(ctx); err != nil {
		fail(c, ac.Logger, apperr.Wrap(err, "delete acquirer"))
		return
	}
	ok(c, http.StatusOK, gin.H{"message": "Acquirer deleted"})
}
