package db

import (
	"context"
	"errors"
	"fmt"

	"merchantcrm/internal/models"

	"gorm.io/gorm"
)

var defaultAcquirers = []models.Acquirer{
	{Name: "First Data", Code: "FDMS", Active: true, SupportEmail: "support@firstdata.example"},
	{Name: "TSYS", Code: "TSYS", Active: true, SupportEmail: "support@tsys.example"},
	{Name: "Worldpay", Code: "WPAY", Active: true, SupportEmail: "support@worldpay.example"},
}

// SeedResult reports how many rows Seed inserted.
type SeedResult struct {
	Acquirers int
	Campaigns int
}

// Seed inserts reference data when it is missing. Running it twice is a no-op.
func Seed(ctx context.Context, db *gorm.DB) (SeedResult, error) {
	var res SeedResult

	err := db.Transaction(func(tx *gorm.DB) error {
		var first *models.Acquirer
		for _, a := range defaultAcquirers {
			existing, err := gorm.G[models.Acquirer](tx).Where("code = ?", a.Code).First(ctx)
			if err == nil {
				if first == nil {
					first = &existing
				}
				continue
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}

			acquirer := a
			if err := gorm.G[models.Acquirer](tx).Create(ctx, &acquirer); err != nil {
				return fmt.Errorf("seed acquirer %s: %w", a.Code, err)
			}
			res.Acquirers++
			if first == nil {
				first = &acquirer
			}
		}

		count, err := gorm.G[models.Campaign](tx).Where("name = ?", "Standard Flat Rate").Count(ctx, "id")
		if err != nil {
			return err
		}
		if count > 0 {
			return nil
		}

		campaign := models.Campaign{
			Name:                "Standard Flat Rate",
			Description:         "Default flat-rate pricing for new merchants",
			AcquirerID:          &first.ID,
			PricingType:         models.PricingFlatRate,
			DiscountRateBps:     275,
			PerTransactionCents: 10,
			MonthlyFeeCents:     995,
			Active:              true,
		}
		if err := gorm.G[models.Campaign](tx).Create(ctx, &campaign); err != nil {
			return fmt.Errorf("seed campaign: %w", err)
		}
		res.Campaigns++
		return nil
	})

	return res, err
}
