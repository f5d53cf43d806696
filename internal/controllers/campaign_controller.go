package controllers

import (
	"net/http"
	"time"

	"merchantcrm/internal/apperr"
	"merchantcrm/internal/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type CampaignController struct {
	DB     *gorm.DB
	Logger *zap.Logger
	Now    func() time.Time
}

type campaignRequest struct {
	Name                string     `json:"name" binding:"required,max=255"`
	Description         string     `json:"description"`
	AcquirerID          *uint      `json:"acquirer_id"`
	PricingType         string     `json:"pricing_type" binding:"required,oneof=interchange_plus tiered flat_rate"`
	DiscountRateBps     int        `json:"discount_rate_bps"`
	PerTransactionCents int        `json:"per_transaction_cents"`
	MonthlyFeeCents     int        `json:"monthly_fee_cents"`
	QualifiedRateBps    int        `json:"qualified_rate_bps"`
	MidQualifiedRateBps int        `json:"mid_qualified_rate_bps"`
	NonQualifiedRateBps int        `json:"non_qualified_rate_bps"`
	Active              *bool      `json:"active"`
	StartsAt            *time.Time `json:"starts_at"`
	EndsAt              *time.Time `json:"ends_at"`
}

func (r campaignRequest) apply(m *models.Campaign) {
	m.Name = r.Name
	m.Description = r.Description
	m.AcquirerID = r.AcquirerID
	m.PricingType = r.PricingType
	m.DiscountRateBps = r.DiscountRateBps
	m.PerTransactionCents = r.PerTransactionCents
	m.MonthlyFeeCents = r.MonthlyFeeCents
	m.QualifiedRateBps = r.QualifiedRateBps
	m.MidQualifiedRateBps = r.MidQualifiedRateBps
	m.NonQualifiedRateBps = r.NonQualifiedRateBps
	m.Active = r.Active == nil || *r.Active
	m.StartsAt = r.StartsAt
	m.EndsAt = r.EndsAt
}

var campaignColumns = []string{
	"name", "description", "acquirer_id", "pricing_type", "discount_rate_bps", "per_transaction_cents",
	"monthly_fee_cents", "qualified_rate_bps", "mid_qualified_rate_bps", "non_qualified_rate_bps",
	"active", "starts_at", "ends_at",
}

// check validates pricing, the date window and the acquirer reference.
func (cc *CampaignController) check(c *gin.Context, m *models.Campaign) error {
	if err := m.ValidatePricing(); err != nil {
		return apperr.InvalidFields("Pricing is invalid", map[string]string{"pricing_type": err.Error()})
	}
	if err := m.ValidateWindow(); err != nil {
		return apperr.InvalidFields("Campaign dates are invalid", map[string]string{"ends_at": err.Error()})
	}
	if m.AcquirerID != nil {
		if _, err := gorm.G[models.Acquirer](cc.DB).Where("id = ?", *m.AcquirerID).First(c.Request.Context()); err != nil {
			return apperr.InvalidFields("Acquirer does not exist", map[string]string{"acquirer_id": "does not exist"})
		}
	}
	return nil
}

func (cc *CampaignController) load(c *gin.Context) (*models.Campaign, error) {
	id, err := paramID(c, "id")
	if err != nil {
		return nil, err
	}
	var campaign models.Campaign
	if err := first(cc.DB.WithContext(c.Request.Context()).Where("id = ?", id), &campaign, "Campaign"); err != nil {
		return nil, err
	}
	return &campaign, nil
}

func (cc *CampaignController) List(c *gin.Context) {
	p := pageFrom(c)
	query := func() *gorm.DB {
		q := cc.DB.WithContext(c.Request.Context()).Model(&models.Campaign{}).Scopes(p.filter("campaigns", "name"))
		if acq := c.Query("acquirer_id"); acq != "" {
			q = q.Where("acquirer_id = ?", acq)
		}
		return q
	}

	var campaigns []models.Campaign
	total, err := p.list(query, "name ASC", &campaigns)
	if err != nil {
		fail(c, cc.Logger, apperr.Wrap(err, "list campaigns"))
		return
	}
	ok(c, http.StatusOK, p.body("campaigns", campaigns, total))
}

// Active handles GET /api/campaigns/active: campaigns inside their date window.
func (cc *CampaignController) Active(c *gin.Context) {
	all, err := gorm.G[models.Campaign](cc.DB).Where("active = ?", true).Order("name ASC").Find(c.Request.Context())
	if err != nil {
		fail(c, cc.Logger, apperr.Wrap(err, "list campaigns"))
		return
	}

	now := cc.Now().UTC()
	live := []models.Campaign{}
	for _, m := range all {
		if m.LiveAt(now) {
			live = append(live, m)
		}
	}
	ok(c, http.StatusOK, gin.H{"campaigns": live})
}

func (cc *CampaignController) Get(c *gin.Context) {
	campaign, err := cc.load(c)
	if err != nil {
		fail(c, cc.Logger, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"campaign": campaign})
}

func (cc *CampaignController) Create(c *gin.Context) {
	var req campaignRequest
	if err := bindJSON(c, &req); err != nil {
		fail(c, cc.Logger, err)
		return
	}

	var campaign models.Campaign
	req.apply(&campaign)
	if err := cc.check(c, &campaign); err != nil {
		fail(c, cc.Logger, err)
		return
	}
	if err := gorm.G[models.Campaign](cc.DB).Create(c.Request.Context(), &campaign); err != nil {
		fail(c, cc.Logger, translate(err, "Campaign conflicts with an existing one"))
		return
	}
	ok(c, http.StatusCreated, gin.H{"campaign": campaign})
}

func (cc *CampaignController) Update(c *gin.Context) {
	campaign, err := cc.load(c)
	if err != nil {
		fail(c, cc.Logger, err)
		return
	}
	var req campaignRequest
	if err := bindJSON(c, &req); err != nil {
		fail(c, cc.Logger, err)
		return
	}

	req.apply(campaign)
	if err := cc.check(c, campaign); err != nil {
		fail(c, cc.Logger, err)
		return
	}
	if err := cc.DB.WithContext(c.Request.Context()).Model(campaign).Select(campaignColumns).Updates(campaign).Error; err != nil {
		fail(c, cc.Logger, translate(err, "Campaign conflicts with an existing one"))
		return
	}
	ok(c, http.StatusOK, gin.H{"campaign": campaign})
}

func (cc *CampaignController) Delete(c *gin.Context) {
	ctx := c.Request.Context()
	campaign, err := cc.load(c)
	if err != nil {
		fail(c, cc.Logger, err)
		return
	}

	var n int64
	if err := cc.DB.WithContext(ctx).Model(&models.Merchant{}).Where("campaign_id = ?", campaign.ID).Count(&n).Error; err != nil {
		fail(c, cc.Logger, apperr.Wrap(err, "count campaign merchants"))
		return
	}
	if n > 0 {
		fail(c, cc.Logger, apperr.Conflictf("Campaign is assigned to %d merchant(s); deactivate it instead", n))
		return
	}

	if _, err := gorm.G[models.Campaign](cc.DB).Where("id = ?", campaign.ID).Delete(ctx); err != nil {
		fail(c, cc.Logger, apperr.Wrap(err, "delete campaign"))
		return
	}
	ok(c, http.StatusOK, gin.H{"message": "Campaign deleted"})
}
