// Package spreadsheet exports merchants to XLSX and imports prospects from
// CSV or XLSX uploads.
package spreadsheet

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"merchantcrm/internal/models"

	"github.com/xuri/excelize/v2"
)

const merchantSheet = "Merchants"

var (
	ErrUnsupportedFormat = errors.New("only .csv and .xlsx files are supported")
	ErrEmptyFile         = errors.New("file has no rows")
)

var merchantHeader = []any{"ID", "Legal Name", "DBA Name", "Email", "Phone", "Status", "Agent", "Acquirer", "Locations", "Created"}

// ExportMerchants writes merchants to a single-sheet workbook. Agent, Acquirer
// and Locations are used when preloaded.
func ExportMerchants(merchants []models.Merchant) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), merchantSheet); err != nil {
		return nil, err
	}
	if err := f.SetSheetRow(merchantSheet, "A1", &merchantHeader); err != nil {
		return nil, err
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}
	last, _ := excelize.CoordinatesToCellName(len(merchantHeader), 1)
	if err := f.SetCellStyle(merchantSheet, "A1", last, bold); err != nil {
		return nil, err
	}

	for i, m := range merchants {
		agent := ""
		if m.Agent != nil {
			agent = strings.TrimSpace(m.Agent.FirstName + " " + m.Agent.LastName)
		}
		acquirer := ""
		if m.Acquirer != nil {
			acquirer = m.Acquirer.Name
		}

		row := []any{m.ID, m.LegalName, m.DBAName, m.Email, m.Phone, m.Status, agent, acquirer, len(m.Locations), m.CreatedAt.Format("2006-01-02")}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(merchantSheet, cell, &row); err != nil {
			return nil, err
		}
	}

	if err := f.SetColWidth(merchantSheet, "B", "D", 28); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ReadRows returns the rows of a CSV file or of the first sheet of a workbook.
func ReadRows(filename string, content []byte) ([][]string, error) {
	var rows [][]string
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		r := csv.NewReader(bytes.NewReader(content))
		r.FieldsPerRecord = -1
		r.TrimLeadingSpace = true
		all, err := r.ReadAll()
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		rows = all
	case ".xlsx":
		f, err := excelize.OpenReader(bytes.NewReader(content))
		if err != nil {
			return nil, fmt.Errorf("open workbook: %w", err)
		}
		defer f.Close()

		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, ErrEmptyFile
		}
		rs, err := f.Rows(sheets[0])
		if err != nil {
			return nil, err
		}
		defer rs.Close()
		for rs.Next() {
			cols, err := rs.Columns()
			if err != nil {
				return nil, err
			}
			rows = append(rows, cols)
		}
	default:
		return nil, ErrUnsupportedFormat
	}

	if len(rows) == 0 {
		return nil, ErrEmptyFile
	}
	return rows, nil
}

// RowError describes a row that could not be imported. Row is 1-based and
// counts the header.
type RowError struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

var prospectColumns = map[string]string{
	"business name": "business_name",
	"business":      "business_name",
	"company":       "business_name",
	"contact name":  "contact_name",
	"contact":       "contact_name",
	"email":         "email",
	"phone":         "phone",
	"source":        "source",
	"notes":         "notes",
}

// ParseProspects maps rows with a header line onto prospects. Blank rows are
// skipped; rows without a business name are reported.
func ParseProspects(rows [][]string) ([]models.Prospect, []RowError, error) {
	if len(rows) == 0 {
		return nil, nil, ErrEmptyFile
	}

	index := map[string]int{}
	for i, h := range rows[0] {
		key := strings.ToLower(strings.TrimSpace(h))
		if col, ok := prospectColumns[key]; ok {
			if _, dup := index[col]; !dup {
				index[col] = i
			}
		}
	}
	if _, ok := index["business_name"]; !ok {
		return nil, nil, errors.New(`header must include a "Business Name" column`)
	}

	get := func(row []string, col string) string {
		i, ok := index[col]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var (
		out  []models.Prospect
		errs []RowError
	)
	for n, row := range rows[1:] {
		if blank(row) {
			continue
		}
		p := models.Prospect{
			BusinessName: get(row, "business_name"),
			ContactName:  get(row, "contact_name"),
			Email:        models.NormalizeEmail(get(row, "email")),
			Phone:        get(row, "phone"),
			Source:       get(row, "source"),
			Notes:        get(row, "notes"),
			Status:       models.ProspectStatusNew,
		}
		if p.BusinessName == "" {
			errs = append(errs, RowError{Row: n + 2, Message: "business name is required"})
			continue
		}
		if p.Source == "" {
			p.Source = "import"
		}
		out = append(out, p)
	}
	return out, errs, nil
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
