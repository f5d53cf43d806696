package forms

import (
	"fmt"
	"sort"
	"strings"

	"merchantcrm/internal/apperr"
	"merchantcrm/internal/models"
)

// Step is one wizard page.
type Step struct {
	Number int                   `json:"step"`
	Title  string                `json:"title"`
	Fields []models.PdfFormField `json:"fields"`
}

// SortFields orders fields by step, then position, then name.
func SortFields(fields []models.PdfFormField) {
	sort.SliceStable(fields, func(i, j int) bool {
		a, b := fields[i], fields[j]
		if a.Step != b.Step {
			return a.Step < b.Step
		}
		if a.Position != b.Position {
			return a.Position < b.Position
		}
		return a.Name < b.Name
	})
}

// Steps groups fields into wizard steps.
func Steps(fields []models.PdfFormField) []Step {
	sorted := append([]models.PdfFormField(nil), fields...)
	SortFields(sorted)

	var steps []Step
	for _, f := range sorted {
		if len(steps) == 0 || steps[len(steps)-1].Number != f.Step {
			steps = append(steps, Step{Number: f.Step, Title: fmt.Sprintf("Step %d", f.Step)})
		}
		last := &steps[len(steps)-1]
		last.Fields = append(last.Fields, f)
	}
	return steps
}

// StepCount is the highest step number.
func StepCount(fields []models.PdfFormField) int {
	n := 0
	for _, f := range fields {
		if f.Step > n {
			n = f.Step
		}
	}
	return n
}

// Renumber makes step numbers contiguous from 1 and positions contiguous
// within each step, keeping the existing order.
func Renumber(fields []models.PdfFormField) {
	SortFields(fields)
	step, prev, pos := 0, -1, 0
	for i := range fields {
		if fields[i].Step != prev {
			prev = fields[i].Step
			step++
			pos = 0
		}
		fields[i].Step = step
		fields[i].Position = pos
		pos++
	}
}

// ValidateConfig checks a field configuration before it is stored.
func ValidateConfig(fields []models.PdfFormField) error {
	errs := map[string]string{}
	seen := map[string]bool{}

	if len(fields) == 0 {
		return apperr.Invalidf("A form needs at least one field")
	}

	for i, f := range fields {
		key := fmt.Sprintf("fields[%d]", i)
		name := strings.TrimSpace(f.Name)
		switch {
		case name == "":
			errs[key+".name"] = "is required"
		case seen[name]:
			errs[key+".name"] = "is duplicated"
		}
		seen[name] = true

		if !knownType(f.FieldType) {
			errs[key+".field_type"] = "is not a known field type"
		}
		if f.Step < 1 {
			errs[key+".step"] = "must be at least 1"
		}
		if (f.FieldType == models.FieldSelect || f.FieldType == models.FieldRadio) && len(f.Options) == 0 {
			errs[key+".options"] = "are required for this field type"
		}
		if err := checkRules(f.Rules); err != nil {
			errs[key+".rules"] = "are not valid validation rules"
		}
	}

	if len(errs) > 0 {
		return apperr.InvalidFields("Field configuration is invalid", errs)
	}
	return nil
}
