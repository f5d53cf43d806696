package controllers

import (
	"fmt"
	"net/http"

	"merchantcrm/internal/alerts"
	"merchantcrm/internal/apperr"
	"merchantcrm/internal/forms"
	"merchantcrm/internal/metrics"
	"merchantcrm/internal/middleware"
	"merchantcrm/internal/models"
	"merchantcrm/internal/scope"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SubmissionController drives application wizards.
type SubmissionController struct {
	DB      *gorm.DB
	Wizard  *forms.Wizard
	Alerts  *alerts.Notifier
	Metrics *metrics.Metrics
	Logger  *zap.Logger
}

// load returns a submission in scope together with its form.
func (sc *SubmissionController) load(c *gin.Context) (*models.PdfFormSubmission, *models.PdfForm, error) {
	id, err := paramID(c, "id")
	if err != nil {
		return nil, nil, err
	}
	s := scope.For(middleware.CurrentUser(c))
	var sub models.PdfFormSubmission
	q := sc.DB.WithContext(c.Request.Context()).Scopes(s.Submissions).Where("pdf_form_submissions.id = ?", id)
	if err := first(q, &sub, "Submission"); err != nil {
		return nil, nil, err
	}
	form, err := sc.Wizard.LoadForm(c.Request.Context(), sub.PdfFormID)
	if err != nil {
		return nil, nil, err
	}
	return &sub, form, nil
}

func (sc *SubmissionController) respond(c *gin.Context, status int, sub *models.PdfFormSubmission, form *models.PdfForm, extra gin.H) {
	body := gin.H{
		"submission":  sub,
		"total_steps": forms.StepCount(form.Fields),
	}
	for k, v := range extra {
		body[k] = v
	}
	ok(c, status, body)
}

type startRequest struct {
	MerchantID *uint `json:"merchant_id"`
	ProspectID *uint `json:"prospect_id"`
}

// Start handles POST /api/pdf-forms/:id/submissions
func (sc *SubmissionController) Start(c *gin.Context) {
	ctx := c.Request.Context()
	user := middleware.CurrentUser(c)
	s := scope.For(user)

	id, err := paramID(c, "id")
	if err != nil {
		fail(c, sc.Logger, err)
		return
	}
	var req startRequest
	if c.Request.ContentLength > 0 {
		if err := bindJSON(c, &req); err != nil {
			fail(c, sc.Logger, err)
			return
		}
	}

	if user.Role == models.RoleMerchant {
		req.MerchantID, req.ProspectID = user.MerchantID, nil
	}
	if req.MerchantID != nil {
		owned, err := s.OwnsMerchant(sc.DB.WithContext(ctx), *req.MerchantID)
		if err != nil {
			fail(c, sc.Logger, apperr.Wrap(err, "check merchant"))
			return
		}
		if !owned {
			fail(c, sc.Logger, apperr.InvalidFields("Please fix the highlighted fields", map[string]string{"merchant_id": "does not exist"}))
			return
		}
	}
	if req.ProspectID != nil {
		var n int64
		if err := sc.DB.WithContext(ctx).Model(&models.Prospect{}).Scopes(s.Prospects).Where("prospects.id = ?", *req.ProspectID).Count(&n).Error; err != nil {
			fail(c, sc.Logger, apperr.Wrap(err, "check prospect"))
			return
		}
		if n == 0 {
			fail(c, sc.Logger, apperr.InvalidFields("Please fix the highlighted fields", map[string]string{"prospect_id": "does not exist"}))
			return
		}
	}

	form, err := sc.Wizard.LoadForm(ctx, id)
	if err != nil {
		fail(c, sc.Logger, err)
		return
	}
	if form.Status != models.FormStatusPublished && user.Role != models.RoleAdmin {
		fail(c, sc.Logger, apperr.NotFoundf("Form not found"))
		return
	}
	sub, err := sc.Wizard.Start(ctx, form, user.ID, req.MerchantID, req.ProspectID)
	if err != nil {
		fail(c, sc.Logger, err)
		return
	}

	sc.Metrics.Wizard("started")
	sc.respond(c, http.StatusCreated, sub, form, gin.H{"steps": forms.Steps(form.Fields)})
}

func (sc *SubmissionController) List(c *gin.Context) {
	p := pageFrom(c)
	s := scope.For(middleware.CurrentUser(c))
	query := func() *gorm.DB {
		q := sc.DB.WithContext(c.Request.Context()).Model(&models.PdfFormSubmission{}).
			Scopes(s.Submissions, p.filter("pdf_form_submissions"))
		if formID := c.Query("pdf_form_id"); formID != "" {
			q = q.Where("pdf_form_submissions.pdf_form_id = ?", formID)
		}
		if merchantID := c.Query("merchant_id"); merchantID != "" {
			q = q.Where("pdf_form_submissions.merchant_id = ?", merchantID)
		}
		return q
	}

	var subs []models.PdfFormSubmission
	total, err := p.list(query, "pdf_form_submissions.updated_at DESC, pdf_form_submissions.id DESC", &subs)
	if err != nil {
		fail(c, sc.Logger, apperr.Wrap(err, "list submissions"))
		return
	}
	ok(c, http.StatusOK, p.body("submissions", subs, total))
}

func (sc *SubmissionController) Get(c *gin.Context) {
	sub, form, err := sc.load(c)
	if err != nil {
		fail(c, sc.Logger, err)
		return
	}
	sc.respond(c, http.StatusOK, sub, form, gin.H{"steps": forms.Steps(form.Fields)})
}

// AutoSave handles PATCH /api/submissions/:id/autosave
func (sc *SubmissionController) AutoSave(c *gin.Context) {
	sub, form, err := sc.load(c)
	if err != nil {
		fail(c, sc.Logger, err)
		return
	}
	var req forms.AutoSaveInput
	if err := bindJSON(c, &req); err != nil {
		fail(c, sc.Logger, err)
		return
	}

	res, err := sc.Wizard.AutoSave(c.Request.Context(), sub, form.Fields, req)
	if err != nil {
		if apperr.KindOf(err) == apperr.Conflict {
			sc.Metrics.Wizard("autosave_conflict")
		}
		fail(c, sc.Logger, err)
		return
	}
	if res.Changed {
		sc.Metrics.Wizard("autosaved")
	}
	sc.respond(c, http.StatusOK, sub, form, gin.H{"changed": res.Changed, "ignored": res.Ignored})
}

type stepRequest struct {
	Action string `json:"action" binding:"required,oneof=next back goto"`
	Step   int    `json:"step"`
}

// Step handles POST /api/submissions/:id/step
func (sc *SubmissionController) Step(c *gin.Context) {
	sub, form, err := sc.load(c)
	if err != nil {
		fail(c, sc.Logger, err)
		return
	}
	var req stepRequest
	if err := bindJSON(c, &req); err != nil {
		fail(c, sc.Logger, err)
		return
	}

	if err := sc.Wizard.Navigate(c.Request.Context(), sub, form.Fields, req.Action, req.Step); err != nil {
		fail(c, sc.Logger, err)
		return
	}
	sc.Metrics.Wizard("step_" + req.Action)
	sc.respond(c, http.StatusOK, sub, form, nil)
}

// Submit handles POST /api/submissions/:id/submit
func (sc *SubmissionController) Submit(c *gin.Context) {
	ctx := c.Request.Context()
	sub, form, err := sc.load(c)
	if err != nil {
		fail(c, sc.Logger, err)
		return
	}
	if err := sc.Wizard.Submit(ctx, sub, form.Fields); err != nil {
		fail(c, sc.Logger, err)
		return
	}
	sc.Metrics.Wizard("submitted")

	user := middleware.CurrentUser(c)
	msg := fmt.Sprintf("%s submitted an application on %s.", user.FullName(), form.Name)
	if err := sc.Alerts.NotifyRole(ctx, models.RoleAdmin, models.SeverityInfo, "Application submitted", msg, fmt.Sprintf("/submissions/%d", sub.ID)); err != nil {
		sc.Logger.Warn("failed to alert admins", zap.Uint("submission_id", sub.ID), zap.Error(err))
	}
	sc.respond(c, http.StatusOK, sub, form, nil)
}

type reviewRequest struct {
	Approve bool   `json:"approve"`
	Note    string `json:"note" binding:"max=2000"`
}

// Review handles POST /api/submissions/:id/review
func (sc *SubmissionController) Review(c *gin.Context) {
	ctx := c.Request.Context()
	sub, form, err := sc.load(c)
	if err != nil {
		fail(c, sc.Logger, err)
		return
	}
	var req reviewRequest
	if err := bindJSON(c, &req); err != nil {
		fail(c, sc.Logger, err)
		return
	}
	if err := sc.Wizard.Review(ctx, sub, req.Approve, req.Note); err != nil {
		fail(c, sc.Logger, err)
		return
	}
	sc.Metrics.Wizard(sub.Status)

	severity, title := models.SeverityInfo, "Application approved"
	if !req.Approve {
		severity, title = models.SeverityWarning, "Application needs changes"
	}
	msg := fmt.Sprintf("Your %s application was %s.", form.Name, sub.Status)
	if req.Note != "" {
		msg += " Note: " + req.Note
	}
	if err := sc.Alerts.NotifyUser(ctx, sub.CreatedByID, severity, title, msg, fmt.Sprintf("/submissions/%d", sub.ID)); err != nil {
		sc.Logger.Warn("failed to alert applicant", zap.Uint("submission_id", sub.ID), zap.Error(err))
	}
	sc.respond(c, http.StatusOK, sub, form, nil)
}

// Delete discards a draft. Only its creator or an admin may do so.
func (sc *SubmissionController) Delete(c *gin.Context) {
	sub, _, err := sc.load(c)
	if err != nil {
		fail(c, sc.Logger, err)
		return
	}
	user := middleware.CurrentUser(c)
	if user.Role != models.RoleAdmin && sub.CreatedByID != user.ID {
		fail(c, sc.Logger, apperr.Forbiddenf("Only the creator can discard this draft"))
		return
	}
	if sub.Status != models.SubmissionDraft {
		fail(c, sc.Logger, apperr.Conflictf("Only drafts can be deleted"))
		return
	}

	n, err := gorm.G[models.PdfFormSubmission](sc.DB).
		Where("id = ? AND status = ?", sub.ID, models.SubmissionDraft).Delete(c.Request.Context())
	if err != nil {
		fail(c, sc.Logger, apperr.Wrap(err, "delete submission"))
		return
	}
	if n == 0 {
		fail(c, sc.Logger, apperr.Conflictf("Only drafts can be deleted"))
		return
	}
	ok(c, http.StatusOK, gin.H{"message": "Draft deleted"})
}
