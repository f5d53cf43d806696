package scope_test

import (
	"merchantcrm/internal/models"
	"merchantcrm/internal/scope"
	"merchantcrm/internal/testhelpers"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"
)

var _ = Describe("Scope", func() {
	var (
		db                 *gorm.DB
		agent              *models.Agent
		mine, theirs       *models.Merchant
		admin, agentUser   *models.User
		merchantUser       *models.User
		ownLoc, theirLoc   models.Location
		ownProspect, other *models.Prospect
	)

	merchantIDs := func(s scope.Scope) []uint {
		var ids []uint
		Expect(db.Model(&models.Merchant{}).Scopes(s.Merchants).Order("id").Pluck("merchants.id", &ids).Error).To(Succeed())
		return ids
	}
	locationIDs := func(s scope.Scope) []uint {
		var ids []uint
		Expect(db.Model(&models.Location{}).Scopes(s.Locations).Order("id").Pluck("locations.id", &ids).Error).To(Succeed())
		return ids
	}
	prospectIDs := func(s scope.Scope) []uint {
		var ids []uint
		Expect(db.Model(&models.Prospect{}).Scopes(s.Prospects).Order("id").Pluck("prospects.id", &ids).Error).To(Succeed())
		return ids
	}

	BeforeEach(func() {
		db = testhelpers.NewTestDB()
		agent = testhelpers.CreateAgent(db, &models.Agent{})
		mine = testhelpers.CreateMerchant(db, &models.Merchant{AgentID: &agent.ID})
		theirs = testhelpers.CreateMerchant(db, &models.Merchant{})

		admin = testhelpers.CreateUser(db, &models.User{Role: models.RoleAdmin})
		agentUser = testhelpers.CreateUser(db, &models.User{Role: models.RoleAgent, AgentID: &agent.ID})
		merchantUser = testhelpers.CreateUser(db, &models.User{Role: models.RoleMerchant, MerchantID: &theirs.ID})

		ownLoc = models.Location{MerchantID: mine.ID, Name: "Mine", Status: models.LocationStatusActive}
		theirLoc = models.Location{MerchantID: theirs.ID, Name: "Theirs", Status: models.LocationStatusActive}
		Expect(db.Create(&ownLoc).Error).To(Succeed())
		Expect(db.Create(&theirLoc).Error).To(Succeed())

		ownProspect = testhelpers.CreateProspect(db, &models.Prospect{AgentID: &agent.ID})
		other = testhelpers.CreateProspect(db, &models.Prospect{})
	})

	It("lets admins see everything", func() {
		s := scope.For(admin)
		Expect(merchantIDs(s)).To(ConsistOf(mine.ID, theirs.ID))
		Expect(locationIDs(s)).To(ConsistOf(ownLoc.ID, theirLoc.ID))
		Expect(prospectIDs(s)).To(ConsistOf(ownProspect.ID, other.ID))
	})

	It("limits agents to their book of business", func() {
		s := scope.For(agentUser)
		Expect(merchantIDs(s)).To(Equal([]uint{mine.ID}))
		Expect(locationIDs(s)).To(Equal([]uint{ownLoc.ID}))
		Expect(prospectIDs(s)).To(Equal([]uint{ownProspect.ID}))

		owned, err := s.OwnsMerchant(db, theirs.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(owned).To(BeFalse())
	})

	It("limits merchant users to their merchant and hides prospects", func() {
		s := scope.For(merchantUser)
		Expect(merchantIDs(s)).To(Equal([]uint{theirs.ID}))
		Expect(locationIDs(s)).To(Equal([]uint{theirLoc.ID}))
		Expect(prospectIDs(s)).To(BeEmpty())
	})

	It("shows nothing to an agent user without an agent", func() {
		s := scope.For(&models.User{ID: 99, Role: models.RoleAgent})
		Expect(merchantIDs(s)).To(BeEmpty())
		Expect(locationIDs(s)).To(BeEmpty())
	})

	It("shows submissions a user started or that belong to their merchants", func() {
		form := testhelpers.CreatePdfForm(db, models.PdfFormField{Name: "legal_name", FieldType: models.FieldText, Step: 1})
		started := models.PdfFormSubmission{PdfFormID: form.ID, CreatedByID: agentUser.ID, Status: models.SubmissionDraft, CurrentStep: 1, Version: 1}
		forMine := models.PdfFormSubmission{PdfFormID: form.ID, CreatedByID: admin.ID, MerchantID: &mine.ID, Status: models.SubmissionDraft, CurrentStep: 1, Version: 1}
		unrelated := models.PdfFormSubmission{PdfFormID: form.ID, CreatedByID: admin.ID, MerchantID: &theirs.ID, Status: models.SubmissionDraft, CurrentStep: 1, Version: 1}
		for _, sub := range []*models.PdfFormSubmission{&started, &forMine, &unrelated} {
			Expect(db.Create(sub).Error).To(Succeed())
		}

		var ids []uint
		Expect(db.Model(&models.PdfFormSubmission{}).Scopes(scope.For(agentUser).Submissions).Pluck("pdf_form_submissions.id", &ids).Error).To(Succeed())
		Expect(ids).To(ConsistOf(started.ID, forMine.ID))

		ids = nil
		Expect(db.Model(&models.PdfFormSubmission{}).Scopes(scope.For(merchantUser).Submissions).Pluck("pdf_form_submissions.id", &ids).Error).To(Succeed())
		Expect(ids).To(ConsistOf(unrelated.ID))
	})
})
