package forms

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"merchantcrm/internal/models"

	"github.com/go-playground/validator/v10"
)

var (
	validate    = newValidator()
	phoneDigits = regexp.MustCompile(`\d`)
	phoneChars  = regexp.MustCompile(`^\+?[0-9 ().-]+$`)
)

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		n := len(phoneDigits.FindAllString(s, -1))
		return phoneChars.MatchString(s) && n >= 7 && n <= 15
	})
	return v
}

var typeRules = map[string]string{
	models.FieldText:     "max=255",
	models.FieldTextarea: "max=5000",
	models.FieldEmail:    "email",
	models.FieldPhone:    "phone",
	models.FieldNumber:   "numeric",
	models.FieldDate:     "datetime=2006-01-02",
}

// FieldTypes lists every renderable field type.
var FieldTypes = []string{
	models.FieldText, models.FieldTextarea, models.FieldEmail, models.FieldPhone, models.FieldNumber,
	models.FieldDate, models.FieldCheckbox, models.FieldSelect, models.FieldRadio,
}

func knownType(t string) bool {
	for _, ft := range FieldTypes {
		if ft == t {
			return true
		}
	}
	return false
}

// stringValue flattens a decoded JSON value for validation.
func stringValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}

func checked(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "on", "yes", "1":
			return true
		}
	}
	return false
}

// tagFor builds the validator tag for a field.
func tagFor(f *models.PdfFormField) string {
	parts := []string{"omitempty"}
	if f.Required {
		parts[0] = "required"
	}
	if rule := typeRules[f.FieldType]; rule != "" {
		parts = append(parts, rule)
	}
	if f.Rules != "" {
		parts = append(parts, f.Rules)
	}
	return strings.Join(parts, ",")
}

// ValidateField returns a message for an invalid value, or "".
func ValidateField(f *models.PdfFormField, value any) (msg string) {
	switch f.FieldType {
	case models.FieldCheckbox:
		if f.Required && !checked(value) {
			return "must be checked"
		}
		return ""
	case models.FieldSelect, models.FieldRadio:
		s := stringValue(value)
		if s == "" {
			if f.Required {
				return "is required"
			}
			return ""
		}
		for _, opt := range f.Options {
			if opt == s {
				return ""
			}
		}
		return "must be one of the listed options"
	}

	defer func() {
		if r := recover(); r != nil {
			msg = "cannot be checked against this field's rules"
		}
	}()
	err := validate.Var(stringValue(value), tagFor(f))
	if err == nil {
		return ""
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok || len(verrs) == 0 {
		return "is invalid"
	}
	return message(verrs[0])
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "phone":
		return "must be a valid phone number"
	case "numeric", "number":
		return "must be a number"
	case "datetime":
		return "must be a date (YYYY-MM-DD)"
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "len":
		return fmt.Sprintf("must be exactly %s characters", fe.Param())
	}
	return fmt.Sprintf("failed %s validation", fe.Tag())
}

// Validate checks data against the fields of one step, or every step when
// step is 0. The result maps field names to messages.
func Validate(fields []models.PdfFormField, data map[string]any, step int) map[string]string {
	errs := map[string]string{}
	for i := range fields {
		f := &fields[i]
		if step != 0 && f.Step != step {
			continue
		}
		if msg := ValidateField(f, data[f.Name]); msg != "" {
			errs[f.Name] = msg
		}
	}
	return errs
}

// ruleSamples exercise every tag's parameter parsing. The validator only
// parses a parameter once a value reaches the tag.
var ruleSamples = []string{"0", "x", "2026-01-01"}

// checkRules reports whether extra rules parse. The validator panics on
// unknown tags and on malformed parameters.
func checkRules(rules string) (err error) {
	if rules == "" {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
	}()
	for _, sample := range ruleSamples {
		_ = validate.Var(sample, rules)
	}
	return nil
}
