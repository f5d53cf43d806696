package spreadsheet_test

import (
	"time"

	"merchantcrm/internal/models"
	"merchantcrm/internal/spreadsheet"
	"merchantcrm/internal/testhelpers"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("ExportMerchants", func() {
	It("writes a header and one row per merchant", func() {
		created := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
		merchants := []models.Merchant{
			{
				ID: 7, LegalName: "Harbor Coffee LLC", DBAName: "Harbor Coffee", Status: models.MerchantStatusActive,
				Agent:     &models.Agent{FirstName: "Alex", LastName: "Agent"},
				Acquirer:  &models.Acquirer{Name: "TSYS"},
				Locations: []models.Location{{Name: "Pier"}, {Name: "Downtown"}},
				CreatedAt: created,
			},
			{ID: 8, LegalName: "Blue Door Bakery", Status: models.MerchantStatusPending, CreatedAt: created},
		}

		content, err := spreadsheet.ExportMerchants(merchants)
		Expect(err).NotTo(HaveOccurred())

		rows, err := spreadsheet.ReadRows("merchants.xlsx", content)
		Expect(err).NotTo(HaveOccurred())
		Expect(rows).To(HaveLen(3))
		Expect(rows[0][:3]).To(Equal([]string{"ID", "Legal Name", "DBA Name"}))
		Expect(rows[1]).To(Equal([]string{"7", "Harbor Coffee LLC", "Harbor Coffee", "", "", "active", "Alex Agent", "TSYS", "2", "2026-03-14"}))
		Expect(rows[2][1]).To(Equal("Blue Door Bakery"))
	})
})

var _ = Describe("ReadRows", func() {
	It("rejects other formats", func() {
		_, err := spreadsheet.ReadRows("prospects.pdf", []byte("%PDF-"))
		Expect(err).To(MatchError(spreadsheet.ErrUnsupportedFormat))
	})

	It("rejects empty files", func() {
		_, err := spreadsheet.ReadRows("prospects.csv", nil)
		Expect(err).To(MatchError(spreadsheet.ErrEmptyFile))
	})
})

var _ = Describe("ParseProspects", func() {
	It("imports rows and reports the ones without a business name", func() {
		content, err := testhelpers.LoadFixture("prospects.csv")
		Expect(err).NotTo(HaveOccurred())

		rows, err := spreadsheet.ReadRows("prospects.CSV", content)
		Expect(err).NotTo(HaveOccurred())

		prospects, rowErrs, err := spreadsheet.ParseProspects(rows)
		Expect(err).NotTo(HaveOccurred())
		Expect(prospects).To(HaveLen(3))
		Expect(prospects[0].BusinessName).To(Equal("Harbor Coffee"))
		Expect(prospects[0].Email).To(Equal("dana@harborcoffee.example"))
		Expect(prospects[0].Status).To(Equal(models.ProspectStatusNew))
		Expect(prospects[1].Notes).To(BeEmpty())
		Expect(rowErrs).To(Equal([]spreadsheet.RowError{{Row: 4, Message: "business name is required"}}))
	})

	It("matches headers case-insensitively and defaults the source", func() {
		prospects, _, err := spreadsheet.ParseProspects([][]string{
			{"COMPANY", "email"},
			{"Acme", "OPS@Acme.Example"},
			{"", ""},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(prospects).To(HaveLen(1))
		Expect(prospects[0].Email).To(Equal("ops@acme.example"))
		Expect(prospects[0].Source).To(Equal("import"))
	})

	It("needs a business name column", func() {
		_, _, err := spreadsheet.ParseProspects([][]string{{"Email"}, {"a@b.example"}})
		Expect(err).To(HaveOccurred())
	})
})
