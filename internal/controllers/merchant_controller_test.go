package controllers_test

import (
	"net/http"

	"merchantcrm/internal/models"
	"merchantcrm/internal/tasks"
	"merchantcrm/internal/testhelpers"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"
)

var _ = Describe("MerchantController", func() {
	var (
		h           *harness
		adminCookie *http.Cookie
		agent       *models.Agent
		agentUser   *models.User
		agentCookie *http.Cookie
		own, other  *models.Merchant
	)

	BeforeEach(func() {
		h = newHarness()
		adminCookie = h.login(testhelpers.CreateUser(h.db, &models.User{Role: models.RoleAdmin}))

		agent = testhelpers.CreateAgent(h.db, &models.Agent{})
		agentUser = testhelpers.CreateUser(h.db, &models.User{Role: models.RoleAgent, AgentID: &agent.ID})
		agentCookie = h.login(agentUser)

		own = testhelpers.CreateMerchant(h.db, &models.Merchant{LegalName: "Own Shop LLC", AgentID: &agent.ID})
		other = testhelpers.CreateMerchant(h.db, &models.Merchant{LegalName: "Other Shop LLC"})
	})

	It("limits agents to their own merchants", func() {
		w := h.do(http.MethodGet, "/api/merchants", nil, agentCookie)
		Expect(w.Code).To(Equal(http.StatusOK))
		body := decode(w)
		Expect(body).To(HaveKeyWithValue("total", BeNumerically("==", 1)))
		Expect(body["merchants"]).To(HaveLen(1))

		expectFailure(h.do(http.MethodGet, "/api/merchants/"+itoa(other.ID), nil, agentCookie), http.StatusNotFound)
		Expect(h.do(http.MethodGet, "/api/merchants/"+itoa(own.ID), nil, agentCookie).Code).To(Equal(http.StatusOK))
	})

	It("lets admins see every merchant and search by name", func() {
		w := h.do(http.MethodGet, "/api/merchants?search=other", nil, adminCookie)
		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(decode(w)["merchants"]).To(HaveLen(1))
	})

	It("matches wildcard characters in a search literally", func() {
		testhelpers.CreateMerchant(h.db, &models.Merchant{LegalName: "100%_Pure Juice Co"})

		for _, term := range []string{"%25", "_", "0%25_p"} {
			w := h.do(http.MethodGet, "/api/merchants?search="+term, nil, adminCookie)
			Expect(w.Code).To(Equal(http.StatusOK))
			body := decode(w)
			Expect(body["merchants"]).To(HaveLen(1), term)
			Expect(body["merchants"].([]any)[0]).To(HaveKeyWithValue("legal_name", "100%_Pure Juice Co"))
		}
	})

	It("assigns merchants created by an agent to that agent", func() {
		otherAgent := testhelpers.CreateAgent(h.db, &models.Agent{})
		w := h.do(http.MethodPost, "/api/merchants", gin.H{"legal_name": "Fresh Start Inc", "agent_id": otherAgent.ID}, agentCookie)
		Expect(w.Code).To(Equal(http.StatusCreated), w.Body.String())
		Expect(decode(w)["merchant"]).To(HaveKeyWithValue("agent_id", BeNumerically("==", agent.ID)))
	})

	It("validates merchant input", func() {
		w := h.do(http.MethodPost, "/api/merchants", gin.H{"email": "not-an-email"}, adminCookie)
		body := expectFailure(w, http.StatusUnprocessableEntity)
		Expect(body["errors"]).To(HaveKey("legal_name"))
		Expect(body["errors"]).To(HaveKey("email"))
	})

	Describe("status changes", func() {
		It("follows the lifecycle and alerts the agent", func() {
			w := h.do(http.MethodPost, "/api/merchants/"+itoa(own.ID)+"/status", gin.H{"status": "active"}, adminCookie)
			Expect(w.Code).To(Equal(http.StatusOK), w.Body.String())
			Expect(decode(w)["merchant"]).To(HaveKeyWithValue("status", "active"))

			alerts, err := gorm.G[models.Alert](h.db).Where("user_id = ?", agentUser.ID).Find(ctx())
			Expect(err).NotTo(HaveOccurred())
			Expect(alerts).To(HaveLen(1))
			Expect(alerts[0].Title).To(Equal("Merchant status changed"))
			Expect(h.queue.OfType(tasks.TypeNotifyAlert)).To(HaveLen(1))
		})

		It("rejects transitions the lifecycle does not allow", func() {
			w := h.do(http.MethodPost, "/api/merchants/"+itoa(own.ID)+"/status", gin.H{"status": "suspended"}, adminCookie)
			expectFailure(w, http.StatusConflict)
		})

		It("is admin only", func() {
			w := h.do(http.MethodPost, "/api/merchants/"+itoa(own.ID)+"/status", gin.H{"status": "active"}, agentCookie)
			expectFailure(w, http.StatusForbidden)
		})
	})

	It("exports the visible merchants as a spreadsheet", func() {
		w := h.do(http.MethodGet, "/api/merchants/export", nil, agentCookie)
		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(w.Header().Get("Content-Type")).To(ContainSubstring("spreadsheetml"))
		Expect(w.Header().Get("Content-Disposition")).To(ContainSubstring("attachment"))
		Expect(w.Body.Len()).To(BeNumerically(">", 0))
	})

	It("deletes a merchant with its locations and their addresses", func() {
		w := h.do(http.MethodPost, "/api/merchants/"+itoa(other.ID)+"/locations", gin.H{"name": "Main"}, adminCookie)
		Expect(w.Code).To(Equal(http.StatusCreated), w.Body.String())
		w = h.do(http.MethodPost, "/api/merchants/"+itoa(other.ID)+"/locations", gin.H{
			"name":    "Annex",
			"address": gin.H{"street1": "2 Side St", "city": "Springfield"},
		}, adminCookie)
		Expect(w.Code).To(Equal(http.StatusCreated), w.Body.String())
		prospect := testhelpers.CreateProspect(h.db, &models.Prospect{Status: models.ProspectStatusConverted, ConvertedMerchantID: &other.ID})

		w = h.do(http.MethodDelete, "/api/merchants/"+itoa(other.ID), nil, adminCookie)
		Expect(w.Code).To(Equal(http.StatusOK), w.Body.String())

		n, err := gorm.G[models.Location](h.db).Where("merchant_id = ?", other.ID).Count(ctx(), "id")
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(BeZero())
		n, err = gorm.G[models.Address](h.db).Count(ctx(), "id")
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(BeZero())

		stored, err := gorm.G[models.Prospect](h.db).Where("id = ?", prospect.ID).First(ctx())
		Expect(err).NotTo(HaveOccurred())
		Expect(stored.ConvertedMerchantID).To(BeNil())
		Expect(stored.Converted()).To(BeTrue())
	})

	It("keeps a merchant that has applications on file", func() {
		form := testhelpers.CreatePdfForm(h.db, models.PdfFormField{Name: "legal_name", FieldType: models.FieldText, Step: 1})
		sub := models.PdfFormSubmission{PdfFormID: form.ID, CreatedByID: agentUser.ID, MerchantID: &other.ID, Status: models.SubmissionDraft, CurrentStep: 1}
		Expect(h.db.Create(&sub).Error).To(Succeed())

		expectFailure(h.do(http.MethodDelete, "/api/merchants/"+itoa(other.ID), nil, adminCookie), http.StatusConflict)
	})
})

var _ = Describe("LocationController", func() {
	var (
		h        *harness
		cookie   *http.Cookie
		merchant *models.Merchant
	)

	createLocation := func(name string) uint {
		w := h.do(http.MethodPost, "/api/merchants/"+itoa(merchant.ID)+"/locations", gin.H{
			"name":    name,
			"address": gin.H{"street1": "1 Main St", "city": "Springfield", "state": "IL", "postal_code": "62701", "country": "US"},
		}, cookie)
		ExpectWithOffset(1, w.Code).To(Equal(http.StatusCreated), w.Body.String())
		return idOf(decode(w), "location")
	}

	BeforeEach(func() {
		h = newHarness()
		cookie = h.login(testhelpers.CreateUser(h.db, &models.User{Role: models.RoleAdmin}))
		merchant = testhelpers.CreateMerchant(h.db, &models.Merchant{})
	})

	It("stores the location with its address", func() {
		id := createLocation("Downtown")

		w := h.do(http.MethodGet, "/api/locations/"+itoa(id), nil, cookie)
		Expect(w.Code).To(Equal(http.StatusOK))
		location := decode(w)["location"].(map[string]any)
		Expect(location).To(HaveKeyWithValue("name", "Downtown"))
		Expect(location["address"]).To(HaveKeyWithValue("city", "Springfield"))
	})

	It("validates MIDs", func() {
		id := createLocation("Downtown")
		body := expectFailure(h.do(http.MethodPut, "/api/locations/"+itoa(id)+"/mid", gin.H{"mid": "12ab"}, cookie), http.StatusUnprocessableEntity)
		Expect(body["errors"]).To(HaveKey("mid"))
	})

	It("keeps MIDs unique and allows clearing them", func() {
		first := createLocation("Downtown")
		second := createLocation("Uptown")

		w := h.do(http.MethodPut, "/api/locations/"+itoa(first)+"/mid", gin.H{"mid": "123456789012"}, cookie)
		Expect(w.Code).To(Equal(http.StatusOK), w.Body.String())
		Expect(decode(w)["location"]).To(HaveKeyWithValue("mid", "123456789012"))

		expectFailure(h.do(http.MethodPut, "/api/locations/"+itoa(second)+"/mid", gin.H{"mid": "123456789012"}, cookie), http.StatusConflict)

		w = h.do(http.MethodPut, "/api/locations/"+itoa(first)+"/mid", gin.H{"mid": ""}, cookie)
		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(h.do(http.MethodPut, "/api/locations/"+itoa(second)+"/mid", gin.H{"mid": "123456789012"}, cookie).Code).To(Equal(http.StatusOK))
	})
})

var _ = Describe("ProspectController", func() {
	var (
		h           *harness
		agent       *models.Agent
		agentUser   *models.User
		agentCookie *http.Cookie
	)

	BeforeEach(func() {
		h = newHarness()
		agent = testhelpers.CreateAgent(h.db, &models.Agent{})
		agentUser = testhelpers.CreateUser(h.db, &models.User{Role: models.RoleAgent, AgentID: &agent.ID})
		agentCookie = h.login(agentUser)
	})

	It("converts a prospect exactly once", func() {
		prospect := testhelpers.CreateProspect(h.db, &models.Prospect{BusinessName: "Harbor Coffee", AgentID: &agent.ID})
		path := "/api/prospects/" + itoa(prospect.ID) + "/convert"

		w := h.do(http.MethodPost, path, nil, agentCookie)
		Expect(w.Code).To(Equal(http.StatusCreated), w.Body.String())
		merchant := decode(w)["merchant"].(map[string]any)
		Expect(merchant).To(HaveKeyWithValue("legal_name", "Harbor Coffee"))
		Expect(merchant).To(HaveKeyWithValue("status", "pending"))

		stored, err := gorm.G[models.Prospect](h.db).Where("id = ?", prospect.ID).First(ctx())
		Expect(err).NotTo(HaveOccurred())
		Expect(stored.Status).To(Equal(models.ProspectStatusConverted))
		Expect(stored.ConvertedMerchantID).NotTo(BeNil())

		expectFailure(h.do(http.MethodPost, path, nil, agentCookie), http.StatusConflict)
		expectFailure(h.do(http.MethodPut, "/api/prospects/"+itoa(prospect.ID), gin.H{"business_name": "Renamed"}, agentCookie), http.StatusConflict)
	})

	It("hides other agents' prospects", func() {
		prospect := testhelpers.CreateProspect(h.db, &models.Prospect{})
		expectFailure(h.do(http.MethodGet, "/api/prospects/"+itoa(prospect.ID), nil, agentCookie), http.StatusNotFound)
	})

	It("imports prospects from a CSV file and reports bad rows", func() {
		content, err := testhelpers.LoadFixture("prospects.csv")
		Expect(err).NotTo(HaveOccurred())

		w := h.upload("/api/prospects/import", "prospects.csv", content, nil, agentCookie)
		Expect(w.Code).To(Equal(http.StatusOK), w.Body.String())
		body := decode(w)
		Expect(body).To(HaveKeyWithValue("imported", BeNumerically("==", 3)))
		Expect(body["errors"]).To(HaveLen(1))

		n, err := gorm.G[models.Prospect](h.db).Where("agent_id = ?", agent.ID).Count(ctx(), "id")
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(BeEquivalentTo(3))
	})

	It("refuses files it cannot read", func() {
		w := h.upload("/api/prospects/import", "prospects.txt", []byte("hello"), nil, agentCookie)
		expectFailure(w, http.StatusUnprocessableEntity)
	})
})
