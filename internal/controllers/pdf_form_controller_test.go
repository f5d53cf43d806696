package controllers_test

import (
	"errors"
	"net/http"

	"merchantcrm/internal/forms"
	"merchantcrm/internal/models"
	"merchantcrm/internal/testhelpers"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"
)

var samplePDF = []byte("%PDF-1.7\n1 0 obj\n<< /Type /Catalog >>\nendobj\n%%EOF\n")

var _ = Describe("PdfFormController", func() {
	var (
		h           *harness
		admin       *models.User
		adminCookie *http.Cookie
		agent       *models.Agent
		agentUser   *models.User
		agentCookie *http.Cookie
	)

	BeforeEach(func() {
		h = newHarness()
		admin = testhelpers.CreateUser(h.db, &models.User{Role: models.RoleAdmin})
		adminCookie = h.login(admin)
		agent = testhelpers.CreateAgent(h.db, &models.Agent{})
		agentUser = testhelpers.CreateUser(h.db, &models.User{Role: models.RoleAgent, AgentID: &agent.ID})
		agentCookie = h.login(agentUser)

		h.extractor.fields = []forms.ExtractedField{
			{Name: "legal_name", Type: models.FieldText, Page: 1},
			{Name: "contact_email", Type: models.FieldText, Page: 1},
			{Name: "owner_signature", Type: models.FieldText, Page: 2},
		}
	})

	uploadForm := func() uint {
		w := h.upload("/api/pdf-forms", "merchant-application.pdf", samplePDF, map[string]string{"name": "Merchant Application"}, adminCookie)
		ExpectWithOffset(1, w.Code).To(Equal(http.StatusCreated), w.Body.String())
		return idOf(decode(w), "form")
	}

	Describe("upload", func() {
		It("rejects files that are not PDFs", func() {
			w := h.upload("/api/pdf-forms", "notes.pdf", []byte("just text"), nil, adminCookie)
			body := expectFailure(w, http.StatusUnprocessableEntity)
			Expect(body["errors"]).To(HaveKey("file"))
		})

		It("stores a draft with labelled fields split into steps", func() {
			w := h.upload("/api/pdf-forms", "merchant-application.pdf", samplePDF, nil, adminCookie)
			Expect(w.Code).To(Equal(http.StatusCreated), w.Body.String())

			body := decode(w)
			form := body["form"].(map[string]any)
			Expect(form).To(HaveKeyWithValue("name", "merchant-application"))
			Expect(form).To(HaveKeyWithValue("status", models.FormStatusDraft))
			Expect(body["steps"]).To(HaveLen(2))

			fields := form["fields"].([]any)
			Expect(fields).To(HaveLen(3))
			Expect(fields[0]).To(HaveKeyWithValue("label", "Legal Name"))
			Expect(fields[0]).To(HaveKeyWithValue("required", true))
			Expect(fields[1]).To(HaveKeyWithValue("field_type", models.FieldEmail))
		})

		It("refuses the same PDF twice", func() {
			uploadForm()
			w := h.upload("/api/pdf-forms", "again.pdf", samplePDF, nil, adminCookie)
			expectFailure(w, http.StatusConflict)
		})

		It("reports PDFs without a readable form", func() {
			h.extractor.err = errors.New("no AcroForm")
			w := h.upload("/api/pdf-forms", "flat.pdf", samplePDF, nil, adminCookie)
			expectFailure(w, http.StatusUnprocessableEntity)
		})

		It("is admin only", func() {
			w := h.upload("/api/pdf-forms", "merchant-application.pdf", samplePDF, nil, agentCookie)
			expectFailure(w, http.StatusForbidden)
		})
	})

	It("hides drafts from non-admins", func() {
		id := uploadForm()
		expectFailure(h.do(http.MethodGet, "/api/pdf-forms/"+itoa(id), nil, agentCookie), http.StatusNotFound)

		w := h.do(http.MethodGet, "/api/pdf-forms/"+itoa(id)+"/file", nil, adminCookie)
		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(w.Header().Get("Content-Type")).To(Equal("application/pdf"))
		Expect(w.Body.Bytes()).To(Equal(samplePDF))
	})

	It("rejects an invalid field configuration", func() {
		id := uploadForm()
		w := h.do(http.MethodPut, "/api/pdf-forms/"+itoa(id)+"/fields", gin.H{"fields": []gin.H{
			{"name": "plan", "field_type": "select", "step": 1},
		}}, adminCookie)
		body := expectFailure(w, http.StatusUnprocessableEntity)
		Expect(body["errors"]).To(HaveKey("fields[0].options"))
	})

	It("walks an application from draft to approval", func() {
		id := uploadForm()

		w := h.do(http.MethodPut, "/api/pdf-forms/"+itoa(id), gin.H{"name": "Merchant Application", "status": "published"}, adminCookie)
		Expect(w.Code).To(Equal(http.StatusOK), w.Body.String())

		w = h.do(http.MethodGet, "/api/pdf-forms/"+itoa(id)+"/wizard", nil, agentCookie)
		Expect(w.Code).To(Equal(http.StatusOK), w.Body.String())
		Expect(decode(w)).To(HaveKeyWithValue("total_steps", BeNumerically("==", 2)))

		w = h.do(http.MethodPost, "/api/pdf-forms/"+itoa(id)+"/submissions", nil, agentCookie)
		Expect(w.Code).To(Equal(http.StatusCreated), w.Body.String())
		subID := idOf(decode(w), "submission")
		base := "/api/submissions/" + itoa(subID)

		By("refusing to leave step 1 while it is incomplete")
		body := expectFailure(h.do(http.MethodPost, base+"/step", gin.H{"action": "next"}, agentCookie), http.StatusUnprocessableEntity)
		Expect(body["errors"]).To(HaveKey("legal_name"))

		By("auto-saving partial data without validation")
		w = h.do(http.MethodPatch, base+"/autosave", gin.H{"data": gin.H{"legal_name": "Harbor Coffee LLC", "contact_email": "bad", "unknown": 1}, "version": 1}, agentCookie)
		Expect(w.Code).To(Equal(http.StatusOK), w.Body.String())
		body = decode(w)
		Expect(body).To(HaveKeyWithValue("changed", true))
		Expect(body["ignored"]).To(ConsistOf("unknown"))

		By("rejecting a stale version")
		expectFailure(h.do(http.MethodPatch, base+"/autosave", gin.H{"data": gin.H{"legal_name": "Old"}, "version": 1}, agentCookie), http.StatusConflict)

		By("validating field formats on navigation")
		body = expectFailure(h.do(http.MethodPost, base+"/step", gin.H{"action": "next"}, agentCookie), http.StatusUnprocessableEntity)
		Expect(body["errors"]).To(HaveKey("contact_email"))

		w = h.do(http.MethodPatch, base+"/autosave", gin.H{"data": gin.H{"contact_email": "dana@harbor.example"}}, agentCookie)
		Expect(w.Code).To(Equal(http.StatusOK))
		w = h.do(http.MethodPost, base+"/step", gin.H{"action": "next"}, agentCookie)
		Expect(w.Code).To(Equal(http.StatusOK), w.Body.String())
		Expect(decode(w)["submission"]).To(HaveKeyWithValue("current_step", BeNumerically("==", 2)))

		By("requiring every field on submit")
		body = expectFailure(h.do(http.MethodPost, base+"/submit", nil, agentCookie), http.StatusUnprocessableEntity)
		Expect(body["errors"]).To(HaveKey("owner_signature"))

		h.do(http.MethodPatch, base+"/autosave", gin.H{"data": gin.H{"owner_signature": "Dana Lee"}}, agentCookie)
		w = h.do(http.MethodPost, base+"/submit", nil, agentCookie)
		Expect(w.Code).To(Equal(http.StatusOK), w.Body.String())
		Expect(decode(w)["submission"]).To(HaveKeyWithValue("status", models.SubmissionSubmitted))

		adminAlerts, err := gorm.G[models.Alert](h.db).Where("role = ?", models.RoleAdmin).Find(ctx())
		Expect(err).NotTo(HaveOccurred())
		Expect(adminAlerts).To(HaveLen(1))

		By("locking the submission")
		expectFailure(h.do(http.MethodPatch, base+"/autosave", gin.H{"data": gin.H{"legal_name": "Late"}}, agentCookie), http.StatusConflict)
		expectFailure(h.do(http.MethodPost, base+"/review", gin.H{"approve": true}, agentCookie), http.StatusForbidden)

		By("approving it")
		w = h.do(http.MethodPost, base+"/review", gin.H{"approve": true}, adminCookie)
		Expect(w.Code).To(Equal(http.StatusOK), w.Body.String())
		Expect(decode(w)["submission"]).To(HaveKeyWithValue("status", models.SubmissionApproved))

		mine, err := gorm.G[models.Alert](h.db).Where("user_id = ?", agentUser.ID).Find(ctx())
		Expect(err).NotTo(HaveOccurred())
		Expect(mine).To(HaveLen(1))

		By("blocking deletion of a form with submissions")
		expectFailure(h.do(http.MethodDelete, "/api/pdf-forms/"+itoa(id), nil, adminCookie), http.StatusConflict)
	})

	It("keeps other agents out of a submission", func() {
		form := testhelpers.CreatePdfForm(h.db, models.PdfFormField{Name: "legal_name", Label: "Legal Name", FieldType: models.FieldText, Step: 1})
		w := h.do(http.MethodPost, "/api/pdf-forms/"+itoa(form.ID)+"/submissions", nil, agentCookie)
		Expect(w.Code).To(Equal(http.StatusCreated), w.Body.String())
		subID := idOf(decode(w), "submission")

		otherAgent := testhelpers.CreateAgent(h.db, &models.Agent{})
		otherCookie := h.login(testhelpers.CreateUser(h.db, &models.User{Role: models.RoleAgent, AgentID: &otherAgent.ID}))
		expectFailure(h.do(http.MethodGet, "/api/submissions/"+itoa(subID), nil, otherCookie), http.StatusNotFound)
	})
})
