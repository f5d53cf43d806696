package forms

import (
	"context"
	"fmt"
	"io"
	"strings"

	"merchantcrm/internal/models"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/form"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// ExtractedField is an AcroForm field as found in the PDF.
type ExtractedField struct {
	Name    string
	Type    string
	Page    int
	Options []string
	Default string
}

type FieldExtractor interface {
	Extract(ctx context.Context, rs io.ReadSeeker) ([]ExtractedField, error)
}

// PDFExtractor reads AcroForm fields with pdfcpu.
type PDFExtractor struct{}

func (PDFExtractor) Extract(ctx context.Context, rs io.ReadSeeker) ([]ExtractedField, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	fields, err := api.FormFields(rs, conf)
	if err != nil {
		return nil, fmt.Errorf("read form fields: %w", err)
	}

	out := make([]ExtractedField, 0, len(fields))
	for _, f := range fields {
		name := strings.TrimSpace(f.Name)
		if name == "" {
			name = strings.TrimSpace(f.ID)
		}
		if name == "" {
			continue
		}

		page := 1
		if len(f.Pages) > 0 && f.Pages[0] > 0 {
			page = f.Pages[0]
		}

		out = append(out, ExtractedField{
			Name:    name,
			Type:    fieldType(f.Typ),
			Page:    page,
			Options: splitOptions(f.Opts),
			Default: f.Dv,
		})
	}
	return out, nil
}

func fieldType(t form.FieldType) string {
	switch t {
	case form.FTDate:
		return models.FieldDate
	case form.FTCheckBox:
		return models.FieldCheckbox
	case form.FTComboBox, form.FTListBox:
		return models.FieldSelect
	case form.FTRadioButtonGroup:
		return models.FieldRadio
	}
	return models.FieldText
}

func splitOptions(raw string) []string {
	var out []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

const defaultFieldsPerStep = 8

// BuildFields turns extracted fields into a wizard configuration. Fields keep
// PDF order; a step ends at a page break or after perStep fields.
func BuildFields(extracted []ExtractedField, suggestions map[string]Suggestion, perStep int) []models.PdfFormField {
	if perStep <= 0 {
		perStep = defaultFieldsPerStep
	}

	fields := make([]models.PdfFormField, 0, len(extracted))
	step, pos, page := 1, 0, 0
	seen := map[string]bool{}

	for i, ef := range extracted {
		if seen[ef.Name] {
			continue
		}
		seen[ef.Name] = true

		if i > 0 && (ef.Page != page || pos >= perStep) {
			step++
			pos = 0
		}
		page = ef.Page

		f := models.PdfFormField{
			Name:         ef.Name,
			Label:        ef.Name,
			FieldType:    ef.Type,
			Step:         step,
			Position:     pos,
			Page:         ef.Page,
			Options:      ef.Options,
			DefaultValue: ef.Default,
		}
		if s, ok := suggestions[ef.Name]; ok {
			if s.Label != "" {
				f.Label = s.Label
			}
			// only plain text fields take a guessed type
			if ef.Type == models.FieldText && s.Type != "" && knownType(s.Type) &&
				s.Type != models.FieldSelect && s.Type != models.FieldRadio {
				f.FieldType = s.Type
			}
			f.Required = s.Required
		}
		if (f.FieldType == models.FieldSelect || f.FieldType == models.FieldRadio) && len(f.Options) == 0 {
			f.FieldType = models.FieldText
		}

		fields = append(fields, f)
		pos++
	}
	return fields
}
