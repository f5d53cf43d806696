package controllers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"merchantcrm/internal/alerts"
	"merchantcrm/internal/apperr"
	"merchantcrm/internal/middleware"
	"merchantcrm/internal/models"
	"merchantcrm/internal/scope"
	"merchantcrm/internal/spreadsheet"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type MerchantController struct {
	DB     *gorm.DB
	Alerts *alerts.Notifier
	Logger *zap.Logger
}

type merchantRequest struct {
	LegalName  string `json:"legal_name" binding:"required,max=255"`
	DBAName    string `json:"dba_name" binding:"max=255"`
	Email      string `json:"email" binding:"omitempty,email"`
	Phone      string `json:"phone" binding:"max=32"`
	TaxID      string `json:"tax_id" binding:"max=32"`
	AgentID    *uint  `json:"agent_id"`
	AcquirerID *uint  `json:"acquirer_id"`
	CampaignID *uint  `json:"campaign_id"`
}

var merchantColumns = []string{"legal_name", "dba_name", "email", "phone", "tax_id", "agent_id", "acquirer_id", "campaign_id"}

func (r merchantRequest) apply(m *models.Merchant) {
	m.LegalName = r.LegalName
	m.DBAName = r.DBAName
	m.Email = models.NormalizeEmail(r.Email)
	m.Phone = r.Phone
	m.TaxID = r.TaxID
	m.AgentID = r.AgentID
	m.AcquirerID = r.AcquirerID
	m.CampaignID = r.CampaignID
}

// exists reports whether a row of T with the given id is present.
func exists[T any](ctx context.Context, db *gorm.DB, id *uint) (bool, error) {
	if id == nil {
		return true, nil
	}
	n, err := gorm.G[T](db).Where("id = ?", *id).Count(ctx, "id")
	return n > 0, err
}

// references checks the foreign keys a merchant request carries.
func references(ctx context.Context, db *gorm.DB, agentID, acquirerID, campaignID *uint) error {
	errs := map[string]string{}
	checks := []struct {
		field string
		fn    func() (bool, error)
	}{
		{"agent_id", func() (bool, error) { return exists[models.Agent](ctx, db, agentID) }},
		{"acquirer_id", func() (bool, error) { return exists[models.Acquirer](ctx, db, acquirerID) }},
		{"campaign_id", func() (bool, error) { return exists[models.Campaign](ctx, db, campaignID) }},
	}
	for _, chk := range checks {
		found, err := chk.fn()
		if err != nil {
			return apperr.Wrap(err, "check "+chk.field)
		}
		if !found {
			errs[chk.field] = "does not exist"
		}
	}
	if len(errs) > 0 {
		return apperr.InvalidFields("Please fix the highlighted fields", errs)
	}
	return nil
}

func (mc *MerchantController) load(c *gin.Context, preload bool) (*models.Merchant, error) {
	id, err := paramID(c, "id")
	if err != nil {
		return nil, err
	}
	sc := scope.For(middleware.CurrentUser(c))
	q := mc.DB.WithContext(c.Request.Context()).Scopes(sc.Merchants).Where("merchants.id = ?", id)
	if preload {
		q = q.Preload("Agent").Preload("Acquirer").Preload("Campaign").Preload("Locations.Address")
	}
	var merchant models.Merchant
	if err := first(q, &merchant, "Merchant"); err != nil {
		return nil, err
	}
	return &merchant, nil
}

func (mc *MerchantController) query(c *gin.Context, p page) func() *gorm.DB {
	sc := scope.For(middleware.CurrentUser(c))
	return func() *gorm.DB {
		q := mc.DB.WithContext(c.Request.Context()).Model(&models.Merchant{}).
			Scopes(sc.Merchants, p.filter("merchants", "legal_name", "dba_name", "email"))
		if agent := c.Query("agent_id"); agent != "" {
			q = q.Where("merchants.agent_id = ?", agent)
		}
		return q
	}
}

func (mc *MerchantController) List(c *gin.Context) {
	p := pageFrom(c)
	var merchants []models.Merchant
	total, err := p.list(mc.query(c, p), "merchants.id DESC", &merchants)
	if err != nil {
		fail(c, mc.Logger, apperr.Wrap(err, "list merchants"))
		return
	}
	ok(c, http.StatusOK, p.body("merchants", merchants, total))
}

func (mc *MerchantController) Get(c *gin.Context) {
	merchant, err := mc.load(c, true)
	if err != nil {
		fail(c, mc.Logger, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"merchant": merchant})
}

func (mc *MerchantController) Create(c *gin.Context) {
	ctx := c.Request.Context()
	user := middleware.CurrentUser(c)

	var req merchantRequest
	if err := bindJSON(c, &req); err != nil {
		fail(c, mc.Logger, err)
		return
	}
	if user.Role == models.RoleAgent {
		req.AgentID = user.AgentID
	}
	if err := references(ctx, mc.DB, req.AgentID, req.AcquirerID, req.CampaignID); err != nil {
		fail(c, mc.Logger, err)
		return
	}

	merchant := models.Merchant{Status: models.MerchantStatusPending}
	req.apply(&merchant)
	if err := gorm.G[models.Merchant](mc.DB).Create(ctx, &merchant); err != nil {
		fail(c, mc.Logger, translate(err, "Merchant conflicts with an existing one"))
		return
	}

	mc.Logger.Info("merchant created", zap.Uint("merchant_id", merchant.ID), zap.Uint("by", user.ID))
	ok(c, http.StatusCreated, gin.H{"merchant": merchant})
}

func (mc *MerchantController) Update(c *gin.Context) {
	ctx := c.Request.Context()
	user := middleware.CurrentUser(c)
	merchant, err := mc.load(c, false)
	if err != nil {
		fail(c, mc.Logger, err)
		return
	}

	var req merchantRequest
	if err := bindJSON(c, &req); err != nil {
		fail(c, mc.Logger, err)
		return
	}
	if user.Role != models.RoleAdmin {
		req.AgentID = merchant.AgentID
	}
	if err := references(ctx, mc.DB, req.AgentID, req.AcquirerID, req.CampaignID); err != nil {
		fail(c, mc.Logger, err)
		return
	}

	req.apply(merchant)
	if err := mc.DB.WithContext(ctx).Model(merchant).Select(merchantColumns).Updates(merchant).Error; err != nil {
		fail(c, mc.Logger, translate(err, "Merchant conflicts with an existing one"))
		return
	}
	ok(c, http.StatusOK, gin.H{"merchant": merchant})
}

type statusRequest struct {
	Status string `json:"status" binding:"required,oneof=pending active suspended closed"`
	Reason string `json:"reason" binding:"max=500"`
}

// ChangeStatus handles POST /api/merchants/:id/status
func (mc *MerchantController) ChangeStatus(c *gin.Context) {
	ctx := c.Request.Context()
	merchant, err := mc.load(c, false)
	if err != nil {
		fail(c, mc.Logger, err)
		return
	}

	var req statusRequest
	if err := bindJSON(c, &req); err != nil {
		fail(c, mc.Logger, err)
		return
	}
	if !models.CanTransition(merchant.Status, req.Status) {
		fail(c, mc.Logger, apperr.Conflictf("Cannot move a %s merchant to %s", merchant.Status, req.Status))
		return
	}

	from := merchant.Status
	n, err := gorm.G[models.Merchant](mc.DB).
		Where("id = ? AND status = ?", merchant.ID, from).
		Update(ctx, "status", req.Status)
	if err != nil {
		fail(c, mc.Logger, apperr.Wrap(err, "update merchant status"))
		return
	}
	if n == 0 {
		fail(c, mc.Logger, apperr.Conflictf("Merchant status changed in the meantime, reload and try again"))
		return
	}
	merchant.Status = req.Status

	if merchant.AgentID != nil {
		severity := models.SeverityInfo
		if req.Status == models.MerchantStatusSuspended || req.Status == models.MerchantStatusClosed {
			severity = models.SeverityWarning
		}
		msg := fmt.Sprintf("%s moved from %s to %s.", merchant.LegalName, from, req.Status)
		if req.Reason != "" {
			msg += " Reason: " + req.Reason
		}
		if err := mc.Alerts.NotifyAgent(ctx, *merchant.AgentID, severity, "Merchant status changed", msg, fmt.Sprintf("/merchants/%d", merchant.ID)); err != nil {
			mc.Logger.Warn("failed to alert agent", zap.Uint("merchant_id", merchant.ID), zap.Error(err))
		}
	}

	mc.Logger.Info("merchant status changed",
		zap.Uint("merchant_id", merchant.ID),
		zap.String("from", from),
		zap.String("to", req.Status),
	)
	ok(c, http.StatusOK, gin.H{"merchant": merchant})
}

func (mc *MerchantController) Delete(c *gin.Context) {
	ctx := c.Request.Context()
	merchant, err := mc.load(c, false)
	if err != nil {
		fail(c, mc.Logger, err)
		return
	}

	users, err := gorm.G[models.User](mc.DB).Where("merchant_id = ?", merchant.ID).Count(ctx, "id")
	if err != nil {
		fail(c, mc.Logger, apperr.Wrap(err, "count merchant users"))
		return
	}
	if users > 0 {
		fail(c, mc.Logger, apperr.Conflictf("Merchant still has user accounts; close it instead"))
		return
	}
	submissions, err := gorm.G[models.PdfFormSubmission](mc.DB).Where("merchant_id = ?", merchant.ID).Count(ctx, "id")
	if err != nil {
		fail(c, mc.Logger, apperr.Wrap(err, "count merchant applications"))
		return
	}
	if submissions > 0 {
		fail(c, mc.Logger, apperr.Conflictf("Merchant has applications on file; close it instead"))
		return
	}

	// Locations go with their addresses; converted prospects keep their status.
	err = mc.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var addressIDs []uint
		if err := tx.Model(&models.Location{}).Where("merchant_id = ? AND address_id IS NOT NULL", merchant.ID).
			Pluck("address_id", &addressIDs).Error; err != nil {
			return err
		}
		if _, err := gorm.G[models.Location](tx).Where("merchant_id = ?", merchant.ID).Delete(ctx); err != nil {
			return err
		}
		if len(addressIDs) > 0 {
			if _, err := gorm.G[models.Address](tx).Where("id IN ?", addressIDs).Delete(ctx); err != nil {
				return err
			}
		}
		if _, err := gorm.G[models.Prospect](tx).Where("converted_merchant_id = ?", merchant.ID).
			Update(ctx, "converted_merchant_id", nil); err != nil {
			return err
		}
		_, err := gorm.G[models.Merchant](tx).Where("id = ?", merchant.ID).Delete(ctx)
		return err
	})
	if err != nil {
		fail(c, mc.Logger, apperr.Wrap(err, "delete merchant"))
		return
	}
	ok(c, http.StatusOK, gin.H{"message": "Merchant deleted"})
}

// Export handles GET /api/merchants/export, honouring the list filters.
func (mc *MerchantController) Export(c *gin.Context) {
	p := pageFrom(c)
	var merchants []models.Merchant
	err := mc.query(c, p)().Preload("Agent").Preload("Acquirer").Preload("Locations").
		Order("merchants.id ASC").Find(&merchants).Error
	if err != nil {
		fail(c, mc.Logger, apperr.Wrap(err, "load merchants"))
		return
	}

	content, err := spreadsheet.ExportMerchants(merchants)
	if err != nil {
		fail(c, mc.Logger, apperr.Wrap(err, "export merchants"))
		return
	}

	filename := fmt.Sprintf("merchants-%s.xlsx", time.Now().UTC().Format("20060102"))
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(http.StatusOK, xlsxContentType, content)
}
