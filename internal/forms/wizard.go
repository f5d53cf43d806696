package forms

import (
	"context"
	"errors"
	"reflect"
	"sort"
	"time"

	"merchantcrm/internal/apperr"
	"merchantcrm/internal/models"

	"gorm.io/gorm"
)

// Navigation actions.
const (
	ActionNext = "next"
	ActionBack = "back"
	ActionGoto = "goto"
)

const invalidStepMessage = "Please fix the highlighted fields"

// Wizard moves submissions through a form's steps.
type Wizard struct {
	DB  *gorm.DB
	now func() time.Time
}

func NewWizard(db *gorm.DB) *Wizard {
	return &Wizard{DB: db, now: time.Now}
}

func (w *Wizard) WithClock(now func() time.Time) *Wizard {
	w.now = now
	return w
}

func (w *Wizard) clock() time.Time {
	return w.now().UTC()
}

// LoadForm returns a form with its fields in wizard order.
func (w *Wizard) LoadForm(ctx context.Context, id uint) (*models.PdfForm, error) {
	var form models.PdfForm
	err := w.DB.WithContext(ctx).Omit("file_data").Preload("Fields").Where("id = ?", id).First(&form).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFoundf("Form not found")
		}
		return nil, apperr.Wrap(err, "load form")
	}
	SortFields(form.Fields)
	return &form, nil
}

// Start opens a draft for a published form, pre-filled with default values.
func (w *Wizard) Start(ctx context.Context, form *models.PdfForm, createdBy uint, merchantID, prospectID *uint) (*models.PdfFormSubmission, error) {
	if form.Status != models.FormStatusPublished {
		return nil, apperr.Invalidf("Only published forms accept applications")
	}

	data := models.JSONMap{}
	for _, f := range form.Fields {
		if f.DefaultValue != "" {
			data[f.Name] = f.DefaultValue
		}
	}

	sub := models.PdfFormSubmission{
		PdfFormID:   form.ID,
		MerchantID:  merchantID,
		ProspectID:  prospectID,
		CreatedByID: createdBy,
		Status:      models.SubmissionDraft,
		CurrentStep: 1,
		Data:        data,
		Version:     1,
	}
	if err := gorm.G[models.PdfFormSubmission](w.DB).Create(ctx, &sub); err != nil {
		return nil, apperr.Wrap(err, "create submission")
	}
	return &sub, nil
}

type AutoSaveInput struct {
	Data    map[string]any `json:"data"`
	Step    *int           `json:"current_step"`
	Version *int           `json:"version"`
}

type AutoSaveResult struct {
	Changed bool     `json:"changed"`
	Ignored []string `json:"ignored,omitempty"`
}

// AutoSave merges partial data into a draft without validating it. Keys that
// are not fields of the form are ignored; a null value clears a field.
// When Version is given it must match, so a stale tab cannot overwrite newer
// data.
func (w *Wizard) AutoSave(ctx context.Context, sub *models.PdfFormSubmission, fields []models.PdfFormField, in AutoSaveInput) (*AutoSaveResult, error) {
	if sub.Status != models.SubmissionDraft {
		return nil, apperr.Conflictf("Submission is no longer editable")
	}
	if in.Version != nil && *in.Version != sub.Version {
		return nil, apperr.Conflictf("Submission was changed elsewhere, reload to continue")
	}

	known := make(map[string]bool, len(fields))
	for _, f := range fields {
		known[f.Name] = true
	}

	merged := sub.Data.Clone()
	res := &AutoSaveResult{}
	for k, v := range in.Data {
		if !known[k] {
			res.Ignored = append(res.Ignored, k)
			continue
		}
		if v == nil {
			delete(merged, k)
		} else {
			merged[k] = v
		}
	}
	sort.Strings(res.Ignored)

	step := sub.CurrentStep
	if in.Step != nil && *in.Step >= 1 && *in.Step < sub.CurrentStep {
		step = *in.Step
	}

	if reflect.DeepEqual(map[string]any(merged), map[string]any(sub.Data.Clone())) && step == sub.CurrentStep {
		return res, nil
	}

	now := w.clock()
	if err := w.save(ctx, sub, map[string]any{"data": merged, "current_step": step, "last_saved_at": now}); err != nil {
		return nil, err
	}
	sub.Data = merged
	sub.CurrentStep = step
	sub.LastSavedAt = &now
	res.Changed = true
	return res, nil
}

// save applies changes only if nobody bumped the version in between.
func (w *Wizard) save(ctx context.Context, sub *models.PdfFormSubmission, changes map[string]any) error {
	changes["version"] = sub.Version + 1
	result := w.DB.WithContext(ctx).Model(&models.PdfFormSubmission{}).
		Where("id = ? AND version = ?", sub.ID, sub.Version).
		Updates(changes)
	if result.Error != nil {
		return apperr.Wrap(result.Error, "save submission")
	}
	if result.RowsAffected == 0 {
		return apperr.Conflictf("Submission was changed elsewhere, reload to continue")
	}
	sub.Version++
	return nil
}

// Navigate moves between steps. Moving forward validates every step being
// left behind; moving back never validates.
func (w *Wizard) Navigate(ctx context.Context, sub *models.PdfFormSubmission, fields []models.PdfFormField, action string, target int) error {
	if sub.Status != models.SubmissionDraft {
		return apperr.Conflictf("Submission is no longer editable")
	}

	last := StepCount(fields)
	switch action {
	case ActionNext:
		target = sub.CurrentStep + 1
	case ActionBack:
		target = sub.CurrentStep - 1
		if target < 1 {
			target = 1
		}
	case ActionGoto:
	default:
		return apperr.Invalidf("Unknown action %q", action)
	}

	if target < 1 || target > last {
		return apperr.Invalidf("Step %d does not exist", target)
	}

	for step := sub.CurrentStep; step < target; step++ {
		if errs := Validate(fields, sub.Data, step); len(errs) > 0 {
			return &apperr.Error{Kind: apperr.Invalid, Message: invalidStepMessage, Fields: errs}
		}
	}

	if target == sub.CurrentStep {
		return nil
	}
	if err := w.save(ctx, sub, map[string]any{"current_step": target}); err != nil {
		return err
	}
	sub.CurrentStep = target
	return nil
}

// Submit validates every step and hands the application over for review.
func (w *Wizard) Submit(ctx context.Context, sub *models.PdfFormSubmission, fields []models.PdfFormField) error {
	if sub.Status != models.SubmissionDraft {
		return apperr.Conflictf("Submission was already submitted")
	}

	if errs := Validate(fields, sub.Data, 0); len(errs) > 0 {
		return &apperr.Error{Kind: apperr.Invalid, Message: invalidStepMessage, Fields: errs}
	}

	now := w.clock()
	if err := w.save(ctx, sub, map[string]any{"status": models.SubmissionSubmitted, "submitted_at": now}); err != nil {
		return err
	}
	sub.Status = models.SubmissionSubmitted
	sub.SubmittedAt = &now
	return nil
}

// Review approves or rejects a submitted application.
func (w *Wizard) Review(ctx context.Context, sub *models.PdfFormSubmission, approve bool, note string) error {
	if sub.Status != models.SubmissionSubmitted {
		return apperr.Conflictf("Only submitted applications can be reviewed")
	}

	status := models.SubmissionRejected
	if approve {
		status = models.SubmissionApproved
	}
	if !approve && note == "" {
		return apperr.InvalidFields("A note is required when rejecting", map[string]string{"note": "is required"})
	}

	now := w.clock()
	if err := w.save(ctx, sub, map[string]any{"status": status, "reviewed_at": now, "review_note": note}); err != nil {
		return err
	}
	sub.Status = status
	sub.ReviewedAt = &now
	sub.ReviewNote = note
	return nil
}
