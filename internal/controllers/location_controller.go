package controllers

import (
	"net/http"
	"regexp"
	"strings"

	"merchantcrm/internal/apperr"
	"merchantcrm/internal/middleware"
	"merchantcrm/internal/models"
	"merchantcrm/internal/scope"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var midPattern = regexp.MustCompile(`^\d{8,20}$`)

type LocationController struct {
	DB     *gorm.DB
	Logger *zap.Logger
}

type addressRequest struct {
	Street1    string `json:"street1" binding:"max=255"`
	Street2    string `json:"street2" binding:"max=255"`
	City       string `json:"city" binding:"max=100"`
	State      string `json:"state" binding:"max=50"`
	PostalCode string `json:"postal_code" binding:"max=20"`
	Country    string `json:"country" binding:"omitempty,len=2"`
}

func (r *addressRequest) apply(a *models.Address) {
	a.Street1, a.Street2, a.City, a.State, a.PostalCode = r.Street1, r.Street2, r.City, r.State, r.PostalCode
	a.Country = strings.ToUpper(r.Country)
	if a.Country == "" {
		a.Country = "US"
	}
}

type locationRequest struct {
	Name    string          `json:"name" binding:"required,max=255"`
	Status  string          `json:"status" binding:"omitempty,oneof=active inactive"`
	Address *addressRequest `json:"address"`
}

func (lc *LocationController) load(c *gin.Context) (*models.Location, error) {
	id, err := paramID(c, "id")
	if err != nil {
		return nil, err
	}
	sc := scope.For(middleware.CurrentUser(c))
	var location models.Location
	q := lc.DB.WithContext(c.Request.Context()).Scopes(sc.Locations).Preload("Address").Where("locations.id = ?", id)
	if err := first(q, &location, "Location"); err != nil {
		return nil, err
	}
	return &location, nil
}

func (lc *LocationController) merchant(c *gin.Context) (*models.Merchant, error) {
	id, err := paramID(c, "id")
	if err != nil {
		return nil, err
	}
	sc := scope.For(middleware.CurrentUser(c))
	var merchant models.Merchant
	q := lc.DB.WithContext(c.Request.Context()).Scopes(sc.Merchants).Where("merchants.id = ?", id)
	if err := first(q, &merchant, "Merchant"); err != nil {
		return nil, err
	}
	return &merchant, nil
}

// List handles GET /api/merchants/:id/locations
func (lc *LocationController) List(c *gin.Context) {
	merchant, err := lc.merchant(c)
	if err != nil {
		fail(c, lc.Logger, err)
		return
	}

	p := pageFrom(c)
	query := func() *gorm.DB {
		return lc.DB.WithContext(c.Request.Context()).Model(&models.Location{}).
			Where("merchant_id = ?", merchant.ID).
			Scopes(p.filter("locations", "name", "mid"))
	}
	var locations []models.Location
	total, err := p.list(query, "id ASC", &locations, "Address")
	if err != nil {
		fail(c, lc.Logger, apperr.Wrap(err, "list locations"))
		return
	}
	ok(c, http.StatusOK, p.body("locations", locations, total))
}

func (lc *LocationController) Create(c *gin.Context) {
	merchant, err := lc.merchant(c)
	if err != nil {
		fail(c, lc.Logger, err)
		return
	}
	var req locationRequest
	if err := bindJSON(c, &req); err != nil {
		fail(c, lc.Logger, err)
		return
	}

	location := models.Location{MerchantID: merchant.ID, Name: req.Name, Status: req.Status}
	if location.Status == "" {
		location.Status = models.LocationStatusActive
	}
	if req.Address != nil {
		location.Address = &models.Address{}
		req.Address.apply(location.Address)
	}

	if err := lc.DB.WithContext(c.Request.Context()).Create(&location).Error; err != nil {
		fail(c, lc.Logger, translate(err, "Location conflicts with an existing one"))
		return
	}
	ok(c, http.StatusCreated, gin.H{"location": location})
}

func (lc *LocationController) Get(c *gin.Context) {
	location, err := lc.load(c)
	if err != nil {
		fail(c, lc.Logger, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"location": location})
}

func (lc *LocationController) Update(c *gin.Context) {
	ctx := c.Request.Context()
	location, err := lc.load(c)
	if err != nil {
		fail(c, lc.Logger, err)
		return
	}
	var req locationRequest
	if err := bindJSON(c, &req); err != nil {
		fail(c, lc.Logger, err)
		return
	}

	location.Name = req.Name
	if req.Status != "" {
		location.Status = req.Status
	}

	err = lc.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if req.Address != nil {
			if location.Address == nil {
				location.Address = &models.Address{}
			}
			req.Address.apply(location.Address)
			if err := tx.Save(location.Address).Error; err != nil {
				return err
			}
			location.AddressID = &location.Address.ID
		}
		return tx.Model(location).Select("name", "status", "address_id").Updates(location).Error
	})
	if err != nil {
		fail(c, lc.Logger, translate(err, "Location conflicts with an existing one"))
		return
	}
	ok(c, http.StatusOK, gin.H{"location": location})
}

func (lc *LocationController) Delete(c *gin.Context) {
	ctx := c.Request.Context()
	location, err := lc.load(c)
	if err != nil {
		fail(c, lc.Logger, err)
		return
	}

	err = lc.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := gorm.G[models.Location](tx).Where("id = ?", location.ID).Delete(ctx); err != nil {
			return err
		}
		if location.AddressID != nil {
			_, err := gorm.G[models.Address](tx).Where("id = ?", *location.AddressID).Delete(ctx)
			return err
		}
		return nil
	})
	if err != nil {
		fail(c, lc.Logger, apperr.Wrap(err, "delete location"))
		return
	}
	ok(c, http.StatusOK, gin.H{"message": "Location deleted"})
}

type midRequest struct {
	MID string `json:"mid"`
}

// AssignMID handles PUT /api/locations/:id/mid. An empty MID clears it.
func (lc *LocationController) AssignMID(c *gin.Context) {
	ctx := c.Request.Context()
	location, err := lc.load(c)
	if err != nil {
		fail(c, lc.Logger, err)
		return
	}
	var req midRequest
	if err := bindJSON(c, &req); err != nil {
		fail(c, lc.Logger, err)
		return
	}

	var mid *string
	if value := strings.TrimSpace(req.MID); value != "" {
		if !midPattern.MatchString(value) {
			fail(c, lc.Logger, apperr.InvalidFields("MID is invalid", map[string]string{"mid": "must be 8 to 20 digits"}))
			return
		}
		mid = &value
	}

	if _, err := gorm.G[models.Location](lc.DB).Where("id = ?", location.ID).Update(ctx, "mid", mid); err != nil {
		fail(c, lc.Logger, translate(err, "This MID is already assigned to another location"))
		return
	}
	location.MID = mid

	lc.Logger.Info("mid assigned", zap.Uint("location_id", location.ID), zap.Bool("cleared", mid == nil))
	ok(c, http.StatusOK, gin.H{"location": location})
}
