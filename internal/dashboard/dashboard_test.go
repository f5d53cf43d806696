package dashboard_test

import (
	"context"
	"time"

	"merchantcrm/internal/apperr"
	"merchantcrm/internal/dashboard"
	"merchantcrm/internal/models"
	"merchantcrm/internal/testhelpers"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"
)

func keys(items []dashboard.LayoutItem) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Key
	}
	return out
}

var _ = Describe("Registry", func() {
	It("filters widgets by role", func() {
		r := dashboard.DefaultRegistry()
		var merchantKeys []string
		for _, w := range r.Allowed(models.RoleMerchant) {
			merchantKeys = append(merchantKeys, w.Key)
		}
		Expect(merchantKeys).To(Equal([]string{"recent_alerts", "my_applications", "location_summary"}))
		Expect(r.Permits(models.RoleAgent, "agent_leaderboard")).To(BeFalse())
		Expect(r.Permits(models.RoleAdmin, "agent_leaderboard")).To(BeTrue())
		Expect(r.Permits(models.RoleAdmin, "weather")).To(BeFalse())
	})

	It("rejects duplicate keys", func() {
		_, err := dashboard.LoadRegistry([]byte("widgets:\n  - key: a\n    roles: [admin]\n  - key: a\n    roles: [agent]\n"))
		Expect(err).To(MatchError(ContainSubstring("defined twice")))
	})

	It("rejects unknown roles", func() {
		_, err := dashboard.LoadRegistry([]byte("widgets:\n  - key: a\n    roles: [owner]\n"))
		Expect(err).To(MatchError(ContainSubstring("unknown role")))
	})
})

var _ = Describe("Service", func() {
	var (
		ctx    context.Context
		dbConn *gorm.DB
		svc    *dashboard.Service
		now    time.Time
	)

	BeforeEach(func() {
		ctx = context.Background()
		dbConn = testhelpers.NewTestDB()
		now = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
		svc = dashboard.NewService(dbConn, dashboard.DefaultRegistry()).WithClock(func() time.Time { return now })
	})

	Describe("layouts", func() {
		It("defaults to every permitted widget", func() {
			user := testhelpers.CreateUser(dbConn, &models.User{Role: models.RoleMerchant})

			items, err := svc.Layout(ctx, user)
			Expect(err).NotTo(HaveOccurred())
			Expect(keys(items)).To(Equal([]string{"recent_alerts", "my_applications", "location_summary"}))
			Expect(items[2].Position).To(Equal(2))
			Expect(items[2].Visible).To(BeTrue())
		})

		It("puts saved widgets first and keeps hidden ones", func() {
			user := testhelpers.CreateUser(dbConn, &models.User{Role: models.RoleMerchant})

			items, err := svc.SaveLayout(ctx, user, []dashboard.SaveItem{
				{Key: "location_summary", Visible: true},
				{Key: "recent_alerts", Visible: false},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(keys(items)).To(Equal([]string{"location_summary", "recent_alerts", "my_applications"}))
			Expect(items[1].Visible).To(BeFalse())

			items, err = svc.SaveLayout(ctx, user, []dashboard.SaveItem{{Key: "my_applications", Visible: true}})
			Expect(err).NotTo(HaveOccurred())
			Expect(items[0].Key).To(Equal("my_applications"))

			count, err := gorm.G[models.DashboardWidgetPreference](dbConn).Where("user_id = ?", user.ID).Count(ctx, "id")
			Expect(err).NotTo(HaveOccurred())
			Expect(count).To(Equal(int64(1)))
		})

		It("refuses widgets outside the role", func() {
			user := testhelpers.CreateUser(dbConn, &models.User{Role: models.RoleAgent})
			_, err := svc.SaveLayout(ctx, user, []dashboard.SaveItem{{Key: "security_overview"}})
			Expect(apperr.KindOf(err)).To(Equal(apperr.Forbidden))
		})

		It("refuses duplicates", func() {
			user := testhelpers.CreateUser(dbConn, &models.User{Role: models.RoleAgent})
			_, err := svc.SaveLayout(ctx, user, []dashboard.SaveItem{{Key: "recent_alerts"}, {Key: "recent_alerts"}})
			Expect(apperr.KindOf(err)).To(Equal(apperr.Invalid))
		})
	})

	Describe("data", func() {
		var agentUser *models.User

		BeforeEach(func() {
			mine := testhelpers.CreateAgent(dbConn, &models.Agent{})
			theirs := testhelpers.CreateAgent(dbConn, &models.Agent{})
			agentUser = testhelpers.CreateUser(dbConn, &models.User{Role: models.RoleAgent, AgentID: &mine.ID})

			testhelpers.CreateMerchant(dbConn, &models.Merchant{AgentID: &mine.ID})
			testhelpers.CreateMerchant(dbConn, &models.Merchant{AgentID: &mine.ID, Status: models.MerchantStatusActive})
			testhelpers.CreateMerchant(dbConn, &models.Merchant{AgentID: &theirs.ID, Status: models.MerchantStatusActive})
		})

		It("scopes counts to the agent", func() {
			data, err := svc.Data(ctx, agentUser, "merchant_status")
			Expect(err).NotTo(HaveOccurred())
			counts := data.(*dashboard.StatusCounts)
			Expect(counts.Total).To(Equal(int64(2)))
			Expect(counts.ByStatus).To(Equal(map[string]int64{"pending": 1, "active": 1}))
		})

		It("shows admins everything", func() {
			admin := testhelpers.CreateUser(dbConn, &models.User{Role: models.RoleAdmin})

			data, err := svc.Data(ctx, admin, "merchant_status")
			Expect(err).NotTo(HaveOccurred())
			Expect(data.(*dashboard.StatusCounts).Total).To(Equal(int64(3)))

			data, err = svc.Data(ctx, admin, "agent_leaderboard")
			Expect(err).NotTo(HaveOccurred())
			board := data.([]dashboard.LeaderboardEntry)
			Expect(board).To(HaveLen(2))
			Expect(board[0].Merchants).To(Equal(int64(2)))
		})

		It("lists only live campaigns", func() {
			past := now.Add(-48 * time.Hour)
			yesterday := now.Add(-24 * time.Hour)
			Expect(gorm.G[models.Campaign](dbConn).Create(ctx, &models.Campaign{Name: "Live", PricingType: models.PricingFlatRate, DiscountRateBps: 250, Active: true})).To(Succeed())
			Expect(gorm.G[models.Campaign](dbConn).Create(ctx, &models.Campaign{Name: "Over", PricingType: models.PricingFlatRate, DiscountRateBps: 250, Active: true, StartsAt: &past, EndsAt: &yesterday})).To(Succeed())
			Expect(gorm.G[models.Campaign](dbConn).Create(ctx, &models.Campaign{Name: "Off", PricingType: models.PricingFlatRate, DiscountRateBps: 250})).To(Succeed())

			data, err := svc.Data(ctx, agentUser, "active_campaigns")
			Expect(err).NotTo(HaveOccurred())
			campaigns := data.([]models.Campaign)
			Expect(campaigns).To(HaveLen(1))
			Expect(campaigns[0].Name).To(Equal("Live"))
		})

		It("refuses widgets outside the role", func() {
			_, err := svc.Data(ctx, agentUser, "security_overview")
			Expect(apperr.KindOf(err)).To(Equal(apperr.Forbidden))

			_, err = svc.Data(ctx, agentUser, "weather")
			Expect(apperr.KindOf(err)).To(Equal(apperr.NotFound))
		})
	})
})
