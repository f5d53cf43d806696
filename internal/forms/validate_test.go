package forms_test

import (
	"merchantcrm/internal/apperr"
	"merchantcrm/internal/forms"
	"merchantcrm/internal/models"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("ValidateField", func() {
	DescribeTable("values",
		func(f models.PdfFormField, value any, msg string) {
			Expect(forms.ValidateField(&f, value)).To(Equal(msg))
		},
		Entry("required text missing", models.PdfFormField{FieldType: models.FieldText, Required: true}, "  ", "is required"),
		Entry("optional text missing", models.PdfFormField{FieldType: models.FieldText}, nil, ""),
		Entry("bad email", models.PdfFormField{FieldType: models.FieldEmail}, "not-an-email", "must be a valid email address"),
		Entry("good email", models.PdfFormField{FieldType: models.FieldEmail}, "owner@shop.example", ""),
		Entry("us phone", models.PdfFormField{FieldType: models.FieldPhone}, "(555) 010-2030", ""),
		Entry("short phone", models.PdfFormField{FieldType: models.FieldPhone}, "12-34", "must be a valid phone number"),
		Entry("number from json", models.PdfFormField{FieldType: models.FieldNumber}, 1250.5, ""),
		Entry("number as text", models.PdfFormField{FieldType: models.FieldNumber}, "twelve", "must be a number"),
		Entry("date", models.PdfFormField{FieldType: models.FieldDate}, "2026-02-30", "must be a date (YYYY-MM-DD)"),
		Entry("required checkbox", models.PdfFormField{FieldType: models.FieldCheckbox, Required: true}, "on", ""),
		Entry("unchecked checkbox", models.PdfFormField{FieldType: models.FieldCheckbox, Required: true}, false, "must be checked"),
		Entry("select option", models.PdfFormField{FieldType: models.FieldSelect, Options: models.Strings{"LLC", "Corporation"}}, "LLC", ""),
		Entry("select stranger", models.PdfFormField{FieldType: models.FieldSelect, Options: models.Strings{"LLC"}}, "Trust", "must be one of the listed options"),
		Entry("extra rules", models.PdfFormField{FieldType: models.FieldText, Rules: "len=9"}, "12345", "must be exactly 9 characters"),
		Entry("stored rules that do not parse", models.PdfFormField{FieldType: models.FieldText, Rules: "max=abc"}, "Acme", "cannot be checked against this field's rules"),
	)
})

var _ = Describe("Validate", func() {
	fields := []models.PdfFormField{
		{Name: "legal_name", FieldType: models.FieldText, Required: true, Step: 1},
		{Name: "email", FieldType: models.FieldEmail, Step: 1},
		{Name: "volume", FieldType: models.FieldNumber, Required: true, Step: 2},
	}

	It("only checks the requested step", func() {
		errs := forms.Validate(fields, map[string]any{"email": "bad"}, 1)
		Expect(errs).To(HaveLen(2))
		Expect(errs).To(HaveKey("legal_name"))
		Expect(errs).NotTo(HaveKey("volume"))
	})

	It("checks everything for step 0", func() {
		errs := forms.Validate(fields, map[string]any{"legal_name": "Acme"}, 0)
		Expect(errs).To(Equal(map[string]string{"volume": "is required"}))
	})
})

var _ = Describe("ValidateConfig", func() {
	It("accepts a sane configuration", func() {
		Expect(forms.ValidateConfig([]models.PdfFormField{
			{Name: "a", FieldType: models.FieldText, Step: 1, Rules: "min=2"},
			{Name: "b", FieldType: models.FieldRadio, Step: 2, Options: models.Strings{"yes", "no"}},
		})).To(Succeed())
	})

	It("reports every problem by field index", func() {
		err := forms.ValidateConfig([]models.PdfFormField{
			{Name: "a", FieldType: models.FieldText, Step: 1},
			{Name: "a", FieldType: "slider", Step: 0},
			{Name: "c", FieldType: models.FieldSelect, Step: 1, Rules: "bogus_rule"},
			{Name: "d", FieldType: models.FieldText, Step: 1, Rules: "max=abc"},
			{Name: "e", FieldType: models.FieldText, Step: 1, Rules: "min="},
			{Name: "f", FieldType: models.FieldText, Step: 1, Rules: "len=x"},
			{Name: "g", FieldType: models.FieldText, Step: 1, Rules: "min=2,max=40"},
		})
		e, ok := apperr.As(err)
		Expect(ok).To(BeTrue())
		Expect(e.Fields).To(HaveKey("fields[1].name"))
		Expect(e.Fields).To(HaveKey("fields[1].field_type"))
		Expect(e.Fields).To(HaveKey("fields[1].step"))
		Expect(e.Fields).To(HaveKey("fields[2].options"))
		Expect(e.Fields).To(HaveKey("fields[2].rules"))
		Expect(e.Fields).To(HaveKey("fields[3].rules"))
		Expect(e.Fields).To(HaveKey("fields[4].rules"))
		Expect(e.Fields).To(HaveKey("fields[5].rules"))
		Expect(e.Fields).NotTo(HaveKey("fields[6].rules"))
	})

	It("rejects an empty configuration", func() {
		Expect(forms.ValidateConfig(nil)).NotTo(Succeed())
	})
})
