package controllers

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

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

type ProspectController struct {
	DB             *gorm.DB
	Alerts         *alerts.Notifier
	Logger         *zap.Logger
	UploadMaxBytes int64
}

type prospectRequest struct {
	BusinessName string `json:"business_name" binding:"required,max=255"`
	ContactName  string `json:"contact_name" binding:"max=255"`
	Email        string `json:"email" binding:"omitempty,email"`
	Phone        string `json:"phone" binding:"max=32"`
	Source       string `json:"source" binding:"max=64"`
	Status       string `json:"status" binding:"omitempty,oneof=new contacted qualified lost"`
	Notes        string `json:"notes"`
	AgentID      *uint  `json:"agent_id"`
}

func (r prospectRequest) apply(p *models.Prospect) {
	p.BusinessName = r.BusinessName
	p.ContactName = r.ContactName
	p.Email = models.NormalizeEmail(r.Email)
	p.Phone = r.Phone
	p.Source = r.Source
	p.Notes = r.Notes
	p.AgentID = r.AgentID
	if r.Status != "" {
		p.Status = r.Status
	}
	if p.Status == "" {
		p.Status = models.ProspectStatusNew
	}
}

func (pc *ProspectController) load(c *gin.Context) (*models.Prospect, error) {
	id, err := paramID(c, "id")
	if err != nil {
		return nil, err
	}
	sc := scope.For(middleware.CurrentUser(c))
	var prospect models.Prospect
	if err := first(pc.DB.WithContext(c.Request.Context()).Scopes(sc.Prospects).Where("prospects.id = ?", id), &prospect, "Prospect"); err != nil {
		return nil, err
	}
	return &prospect, nil
}

// owner decides the agent of a prospect: agents always own what they enter.
func owner(user *models.User, requested *uint) *uint {
	if user.Role == models.RoleAgent {
		return user.AgentID
	}
	return requested
}

func (pc *ProspectController) List(c *gin.Context) {
	p := pageFrom(c)
	sc := scope.For(middleware.CurrentUser(c))
	query := func() *gorm.DB {
		return pc.DB.WithContext(c.Request.Context()).Model(&models.Prospect{}).
			Scopes(sc.Prospects, p.filter("prospects", "business_name", "contact_name", "email"))
	}

	var prospects []models.Prospect
	total, err := p.list(query, "prospects.id DESC", &prospects)
	if err != nil {
		fail(c, pc.Logger, apperr.Wrap(err, "list prospects"))
		return
	}
	ok(c, http.StatusOK, p.body("prospects", prospects, total))
}

func (pc *ProspectController) Get(c *gin.Context) {
	prospect, err := pc.load(c)
	if err != nil {
		fail(c, pc.Logger, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"prospect": prospect})
}

func (pc *ProspectController) Create(c *gin.Context) {
	ctx := c.Request.Context()
	var req prospectRequest
	if err := bindJSON(c, &req); err != nil {
		fail(c, pc.Logger, err)
		return
	}
	req.AgentID = owner(middleware.CurrentUser(c), req.AgentID)
	if err := references(ctx, pc.DB, req.AgentID, nil, nil); err != nil {
		fail(c, pc.Logger, err)
		return
	}

	var prospect models.Prospect
	req.apply(&prospect)
	if err := gorm.G[models.Prospect](pc.DB).Create(ctx, &prospect); err != nil {
		fail(c, pc.Logger, translate(err, "Prospect conflicts with an existing one"))
		return
	}
	ok(c, http.StatusCreated, gin.H{"prospect": prospect})
}

func (pc *ProspectController) Update(c *gin.Context) {
	ctx := c.Request.Context()
	prospect, err := pc.load(c)
	if err != nil {
		fail(c, pc.Logger, err)
		return
	}
	if prospect.Converted() {
		fail(c, pc.Logger, apperr.Conflictf("Converted prospects can no longer be edited"))
		return
	}

	var req prospectRequest
	if err := bindJSON(c, &req); err != nil {
		fail(c, pc.Logger, err)
		return
	}
	user := middleware.CurrentUser(c)
	if user.Role == models.RoleAgent {
		req.AgentID = prospect.AgentID
	}
	if err := references(ctx, pc.DB, req.AgentID, nil, nil); err != nil {
		fail(c, pc.Logger, err)
		return
	}

	req.apply(prospect)
	err = pc.DB.WithContext(ctx).Model(prospect).
		Select("business_name", "contact_name", "email", "phone", "source", "status", "notes", "agent_id").
		Updates(prospect).Error
	if err != nil {
		fail(c, pc.Logger, translate(err, "Prospect conflicts with an existing one"))
		return
	}
	ok(c, http.StatusOK, gin.H{"prospect": prospect})
}

func (pc *ProspectController) Delete(c *gin.Context) {
	prospect, err := pc.load(c)
	if err != nil {
		fail(c, pc.Logger, err)
		return
	}
	if prospect.Converted() {
		fail(c, pc.Logger, apperr.Conflictf("Converted prospects are kept for history"))
		return
	}
	if _, err := gorm.G[models.Prospect](pc.DB).Where("id = ?", prospect.ID).Delete(c.Request.Context()); err != nil {
		fail(c, pc.Logger, apperr.Wrap(err, "delete prospect"))
		return
	}
	ok(c, http.StatusOK, gin.H{"message": "Prospect deleted"})
}

type convertRequest struct {
	LegalName  string `json:"legal_name" binding:"max=255"`
	DBAName    string `json:"dba_name" binding:"max=255"`
	TaxID      string `json:"tax_id" binding:"max=32"`
	AcquirerID *uint  `json:"acquirer_id"`
	CampaignID *uint  `json:"campaign_id"`
}

var errAlreadyConverted = apperr.Conflictf("Prospect was already converted")

// Convert handles POST /api/prospects/:id/convert. It creates the merchant and
// marks the prospect in one transaction; a second attempt gets 409.
func (pc *ProspectController) Convert(c *gin.Context) {
	ctx := c.Request.Context()
	prospect, err := pc.load(c)
	if err != nil {
		fail(c, pc.Logger, err)
		return
	}
	if prospect.Converted() {
		fail(c, pc.Logger, errAlreadyConverted)
		return
	}

	var req convertRequest
	if c.Request.ContentLength > 0 {
		if err := bindJSON(c, &req); err != nil {
			fail(c, pc.Logger, err)
			return
		}
	}
	if err := references(ctx, pc.DB, nil, req.AcquirerID, req.CampaignID); err != nil {
		fail(c, pc.Logger, err)
		return
	}

	merchant := models.Merchant{
		LegalName:  req.LegalName,
		DBAName:    req.DBAName,
		Email:      prospect.Email,
		Phone:      prospect.Phone,
		TaxID:      req.TaxID,
		Status:     models.MerchantStatusPending,
		AgentID:    prospect.AgentID,
		AcquirerID: req.AcquirerID,
		CampaignID: req.CampaignID,
		ProspectID: &prospect.ID,
	}
	if merchant.LegalName == "" {
		merchant.LegalName = prospect.BusinessName
	}

	err = pc.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := gorm.G[models.Merchant](tx).Create(ctx, &merchant); err != nil {
			return err
		}
		n, err := gorm.G[models.Prospect](tx).
			Where("id = ? AND converted_merchant_id IS NULL", prospect.ID).
			Updates(ctx, models.Prospect{Status: models.ProspectStatusConverted, ConvertedMerchantID: &merchant.ID})
		if err != nil {
			return err
		}
		if n == 0 {
			return errAlreadyConverted
		}
		return nil
	})
	if err != nil {
		fail(c, pc.Logger, translate(err, "Merchant conflicts with an existing one"))
		return
	}

	if prospect.AgentID != nil {
		msg := fmt.Sprintf("%s is now a merchant and awaits boarding.", prospect.BusinessName)
		if err := pc.Alerts.NotifyAgent(ctx, *prospect.AgentID, models.SeverityInfo, "Prospect converted", msg, fmt.Sprintf("/merchants/%d", merchant.ID)); err != nil {
			pc.Logger.Warn("failed to alert agent", zap.Uint("prospect_id", prospect.ID), zap.Error(err))
		}
	}

	pc.Logger.Info("prospect converted", zap.Uint("prospect_id", prospect.ID), zap.Uint("merchant_id", merchant.ID))
	ok(c, http.StatusCreated, gin.H{"merchant": merchant})
}

// Import handles POST /api/prospects/import with a CSV or XLSX upload.
func (pc *ProspectController) Import(c *gin.Context) {
	ctx := c.Request.Context()
	user := middleware.CurrentUser(c)

	header, err := c.FormFile("file")
	if err != nil {
		fail(c, pc.Logger, apperr.InvalidFields("A file is required", map[string]string{"file": "is required"}))
		return
	}
	if header.Size > pc.UploadMaxBytes {
		fail(c, pc.Logger, apperr.InvalidFields("File is too large", map[string]string{"file": "is too large"}))
		return
	}
	f, err := header.Open()
	if err != nil {
		fail(c, pc.Logger, apperr.Wrap(err, "open upload"))
		return
	}
	defer f.Close()
	content, err := io.ReadAll(io.LimitReader(f, pc.UploadMaxBytes+1))
	if err != nil {
		fail(c, pc.Logger, apperr.Wrap(err, "read upload"))
		return
	}

	rows, err := spreadsheet.ReadRows(header.Filename, content)
	if err != nil {
		fail(c, pc.Logger, apperr.InvalidFields("File could not be read", map[string]string{"file": err.Error()}))
		return
	}
	prospects, rowErrs, err := spreadsheet.ParseProspects(rows)
	if err != nil {
		fail(c, pc.Logger, apperr.InvalidFields("File could not be read", map[string]string{"file": err.Error()}))
		return
	}

	var requested *uint
	if raw := c.PostForm("agent_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			fail(c, pc.Logger, apperr.InvalidFields("Please fix the highlighted fields", map[string]string{"agent_id": "must be a number"}))
			return
		}
		v := uint(id)
		requested = &v
	}
	agentID := owner(user, requested)
	if err := references(ctx, pc.DB, agentID, nil, nil); err != nil {
		fail(c, pc.Logger, err)
		return
	}
	for i := range prospects {
		prospects[i].AgentID = agentID
	}

	if len(prospects) > 0 {
		if err := pc.DB.WithContext(ctx).CreateInBatches(&prospects, 100).Error; err != nil {
			fail(c, pc.Logger, translate(err, "Import conflicts with existing prospects"))
			return
		}
	}
	if rowErrs == nil {
		rowErrs = []spreadsheet.RowError{}
	}

	pc.Logger.Info("prospects imported",
		zap.String("file", header.Filename),
		zap.Int("imported", len(prospects)),
		zap.Int("rejected", len(rowErrs)),
	)
	ok(c, http.StatusOK, gin.H{"imported": len(prospects), "errors": rowErrs})
}
