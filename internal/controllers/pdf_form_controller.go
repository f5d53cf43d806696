package controllers

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"merchantcrm/internal/apperr"
	"merchantcrm/internal/forms"
	"merchantcrm/internal/middleware"
	"merchantcrm/internal/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var pdfMagic = []byte("%PDF-")

// PdfFormController manages uploaded application PDFs and their field
// configuration.
type PdfFormController struct {
	DB             *gorm.DB
	Wizard         *forms.Wizard
	Extractor      forms.FieldExtractor
	Labeler        forms.Labeler
	Logger         *zap.Logger
	UploadMaxBytes int64
}

// visible limits non-admins to published forms.
func visible(c *gin.Context) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if middleware.CurrentUser(c).Role == models.RoleAdmin {
			return db
		}
		return db.Where("pdf_forms.status = ?", models.FormStatusPublished)
	}
}

func (fc *PdfFormController) load(c *gin.Context) (*models.PdfForm, error) {
	id, err := paramID(c, "id")
	if err != nil {
		return nil, err
	}
	form, err := fc.Wizard.LoadForm(c.Request.Context(), id)
	if err != nil {
		return nil, err
	}
	if middleware.CurrentUser(c).Role != models.RoleAdmin && form.Status != models.FormStatusPublished {
		return nil, apperr.NotFoundf("Form not found")
	}
	return form, nil
}

func (fc *PdfFormController) List(c *gin.Context) {
	p := pageFrom(c)
	query := func() *gorm.DB {
		return fc.DB.WithContext(c.Request.Context()).Model(&models.PdfForm{}).Omit("file_data").
			Scopes(visible(c), p.filter("pdf_forms", "name", "file_name"))
	}

	var pdfForms []models.PdfForm
	total, err := p.list(query, "pdf_forms.id DESC", &pdfForms)
	if err != nil {
		fail(c, fc.Logger, apperr.Wrap(err, "list forms"))
		return
	}
	ok(c, http.StatusOK, p.body("forms", pdfForms, total))
}

func (fc *PdfFormController) Get(c *gin.Context) {
	form, err := fc.load(c)
	if err != nil {
		fail(c, fc.Logger, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"form": form})
}

// Upload handles POST /api/pdf-forms. The PDF is stored, its AcroForm fields
// extracted and labelled, and the form starts as a draft.
func (fc *PdfFormController) Upload(c *gin.Context) {
	ctx := c.Request.Context()

	header, err := c.FormFile("file")
	if err != nil {
		fail(c, fc.Logger, apperr.InvalidFields("A PDF file is required", map[string]string{"file": "is required"}))
		return
	}
	if header.Size > fc.UploadMaxBytes {
		fail(c, fc.Logger, apperr.InvalidFields("File is too large", map[string]string{"file": fmt.Sprintf("must be at most %d bytes", fc.UploadMaxBytes)}))
		return
	}

	f, err := header.Open()
	if err != nil {
		fail(c, fc.Logger, apperr.Wrap(err, "open upload"))
		return
	}
	defer f.Close()
	content, err := io.ReadAll(io.LimitReader(f, fc.UploadMaxBytes+1))
	if err != nil {
		fail(c, fc.Logger, apperr.Wrap(err, "read upload"))
		return
	}
	if int64(len(content)) > fc.UploadMaxBytes {
		fail(c, fc.Logger, apperr.InvalidFields("File is too large", map[string]string{"file": fmt.Sprintf("must be at most %d bytes", fc.UploadMaxBytes)}))
		return
	}
	if !bytes.HasPrefix(content, pdfMagic) {
		fail(c, fc.Logger, apperr.InvalidFields("File is not a PDF", map[string]string{"file": "must be a PDF document"}))
		return
	}

	sum := sha256.Sum256(content)
	checksum := hex.EncodeToString(sum[:])
	dup, err := gorm.G[models.PdfForm](fc.DB).Where("checksum = ?", checksum).Count(ctx, "id")
	if err != nil {
		fail(c, fc.Logger, apperr.Wrap(err, "check checksum"))
		return
	}
	if dup > 0 {
		fail(c, fc.Logger, apperr.Conflictf("This PDF was already uploaded"))
		return
	}

	extracted, err := fc.Extractor.Extract(ctx, bytes.NewReader(content))
	if err != nil {
		fc.Logger.Warn("pdf field extraction failed", zap.String("file", header.Filename), zap.Error(err))
		fail(c, fc.Logger, apperr.InvalidFields("Could not read form fields from the PDF", map[string]string{"file": "has no readable form"}))
		return
	}

	names := make([]string, len(extracted))
	for i, ef := range extracted {
		names[i] = ef.Name
	}
	suggestions, err := fc.Labeler.Suggest(ctx, names)
	if err != nil {
		fc.Logger.Warn("field labelling failed", zap.Error(err))
		suggestions = nil
	}

	name := strings.TrimSpace(c.PostForm("name"))
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(header.Filename), filepath.Ext(header.Filename))
	}
	form := models.PdfForm{
		Name:        name,
		Description: c.PostForm("description"),
		FileName:    filepath.Base(header.Filename),
		FileSize:    len(content),
		Checksum:    checksum,
		FileData:    content,
		Status:      models.FormStatusDraft,
		Fields:      forms.BuildFields(extracted, suggestions, 0),
	}
	if raw := c.PostForm("acquirer_id"); raw != "" {
		var id uint
		if _, err := fmt.Sscan(raw, &id); err != nil || id == 0 {
			fail(c, fc.Logger, apperr.InvalidFields("Please fix the highlighted fields", map[string]string{"acquirer_id": "must be a number"}))
			return
		}
		if err := references(ctx, fc.DB, nil, &id, nil); err != nil {
			fail(c, fc.Logger, err)
			return
		}
		form.AcquirerID = &id
	}

	if err := gorm.G[models.PdfForm](fc.DB).Create(ctx, &form); err != nil {
		fail(c, fc.Logger, translate(err, "This PDF was already uploaded"))
		return
	}

	fc.Logger.Info("pdf form uploaded",
		zap.Uint("form_id", form.ID),
		zap.String("file", form.FileName),
		zap.Int("fields", len(form.Fields)),
		zap.Uint("by", middleware.CurrentUser(c).ID),
	)
	ok(c, http.StatusCreated, gin.H{"form": form, "steps": forms.Steps(form.Fields)})
}

type pdfFormRequest struct {
	Name        string `json:"name" binding:"required,max=255"`
	Description string `json:"description"`
	Status      string `json:"status" binding:"omitempty,oneof=draft published archived"`
	AcquirerID  *uint  `json:"acquirer_id"`
}

func (fc *PdfFormController) Update(c *gin.Context) {
	ctx := c.Request.Context()
	form, err := fc.load(c)
	if err != nil {
		fail(c, fc.Logger, err)
		return
	}
	var req pdfFormRequest
	if err := bindJSON(c, &req); err != nil {
		fail(c, fc.Logger, err)
		return
	}
	if err := references(ctx, fc.DB, nil, req.AcquirerID, nil); err != nil {
		fail(c, fc.Logger, err)
		return
	}

	if req.Status == models.FormStatusPublished && form.Status != models.FormStatusPublished {
		if err := forms.ValidateConfig(form.Fields); err != nil {
			fail(c, fc.Logger, err)
			return
		}
	}

	form.Name = req.Name
	form.Description = req.Description
	form.AcquirerID = req.AcquirerID
	if req.Status != "" {
		form.Status = req.Status
	}
	err = fc.DB.WithContext(ctx).Model(form).Select("name", "description", "status", "acquirer_id").Updates(form).Error
	if err != nil {
		fail(c, fc.Logger, translate(err, "Form conflicts with an existing one"))
		return
	}
	ok(c, http.StatusOK, gin.H{"form": form})
}

func (fc *PdfFormController) Delete(c *gin.Context) {
	ctx := c.Request.Context()
	form, err := fc.load(c)
	if err != nil {
		fail(c, fc.Logger, err)
		return
	}

	n, err := gorm.G[models.PdfFormSubmission](fc.DB).Where("pdf_form_id = ?", form.ID).Count(ctx, "id")
	if err != nil {
		fail(c, fc.Logger, apperr.Wrap(err, "count submissions"))
		return
	}
	if n > 0 {
		fail(c, fc.Logger, apperr.Conflictf("Form has %d application(s); archive it instead", n))
		return
	}

	err = fc.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := gorm.G[models.PdfFormField](tx).Where("pdf_form_id = ?", form.ID).Delete(ctx); err != nil {
			return err
		}
		_, err := gorm.G[models.PdfForm](tx).Where("id = ?", form.ID).Delete(ctx)
		return err
	})
	if err != nil {
		fail(c, fc.Logger, apperr.Wrap(err, "delete form"))
		return
	}
	ok(c, http.StatusOK, gin.H{"message": "Form deleted"})
}

// File handles GET /api/pdf-forms/:id/file
func (fc *PdfFormController) File(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		fail(c, fc.Logger, err)
		return
	}
	var form models.PdfForm
	q := fc.DB.WithContext(c.Request.Context()).Scopes(visible(c)).Where("id = ?", id)
	if err := first(q, &form, "Form"); err != nil {
		fail(c, fc.Logger, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`inline; filename="%s"`, form.FileName))
	c.Data(http.StatusOK, "application/pdf", form.FileData)
}

type fieldRequest struct {
	Name         string   `json:"name"`
	Label        string   `json:"label"`
	FieldType    string   `json:"field_type"`
	Step         int      `json:"step"`
	Position     int      `json:"position"`
	Page         int      `json:"page"`
	Required     bool     `json:"required"`
	Options      []string `json:"options"`
	Rules        string   `json:"rules"`
	Placeholder  string   `json:"placeholder"`
	DefaultValue string   `json:"default_value"`
}

type fieldsRequest struct {
	Fields []fieldRequest `json:"fields" binding:"required"`
}

// UpdateFields handles PUT /api/pdf-forms/:id/fields and replaces the whole
// field configuration.
func (fc *PdfFormController) UpdateFields(c *gin.Context) {
	ctx := c.Request.Context()
	form, err := fc.load(c)
	if err != nil {
		fail(c, fc.Logger, err)
		return
	}
	var req fieldsRequest
	if err := bindJSON(c, &req); err != nil {
		fail(c, fc.Logger, err)
		return
	}

	fields := make([]models.PdfFormField, len(req.Fields))
	for i, f := range req.Fields {
		fields[i] = models.PdfFormField{
			PdfFormID:    form.ID,
			Name:         strings.TrimSpace(f.Name),
			Label:        f.Label,
			FieldType:    f.FieldType,
			Step:         f.Step,
			Position:     f.Position,
			Page:         f.Page,
			Required:     f.Required,
			Options:      f.Options,
			Rules:        f.Rules,
			Placeholder:  f.Placeholder,
			DefaultValue: f.DefaultValue,
		}
		if fields[i].Label == "" {
			fields[i].Label = forms.Humanize(fields[i].Name)
		}
		if fields[i].Page == 0 {
			fields[i].Page = 1
		}
	}
	if err := forms.ValidateConfig(fields); err != nil {
		fail(c, fc.Logger, err)
		return
	}
	forms.Renumber(fields)

	err = fc.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := gorm.G[models.PdfFormField](tx).Where("pdf_form_id = ?", form.ID).Delete(ctx); err != nil {
			return err
		}
		return tx.Create(&fields).Error
	})
	if err != nil {
		fail(c, fc.Logger, translate(err, "Field names must be unique"))
		return
	}

	form.Fields = fields
	ok(c, http.StatusOK, gin.H{"form": form, "steps": forms.Steps(fields)})
}

// Wizard handles GET /api/pdf-forms/:id/wizard: the form split into steps.
func (fc *PdfFormController) Wizard(c *gin.Context) {
	form, err := fc.load(c)
	if err != nil {
		fail(c, fc.Logger, err)
		return
	}
	ok(c, http.StatusOK, gin.H{
		"form":        gin.H{"id": form.ID, "name": form.Name, "description": form.Description, "status": form.Status},
		"steps":       forms.Steps(form.Fields),
		"total_steps": forms.StepCount(form.Fields),
		"field_types": forms.FieldTypes,
	})
}
