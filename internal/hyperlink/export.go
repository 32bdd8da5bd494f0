package hyperlink

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/xuri/excelize/v2"

	"github.com/hyperjump/ectd/internal/models"
)

// CSVHeader is the first row of the CSV report.
var CSVHeader = []string{"Source File", "Page", "Link Type", "Target", "Status", "Error"}

func (e Entry) row() []string {
	return []string{e.SourceFile, strconv.Itoa(e.Page), string(e.LinkType), e.Target, e.Status, e.Error}
}

// SummaryRows returns the label/value pairs appended after the link rows.
func (r *Report) SummaryRows() [][]string {
	return [][]string{
		{"Summary"},
		{"Files Scanned", strconv.Itoa(r.TotalFiles)},
		{"Total Links", strconv.Itoa(r.TotalLinks)},
		{"Valid Links", strconv.Itoa(r.ValidLinks)},
		{"Broken Links", strconv.Itoa(len(r.BrokenLinks))},
		{"External Links", strconv.Itoa(len(r.ExternalLinks))},
		{"Internal", strconv.Itoa(r.ByType[models.LinkInternal])},
		{"Cross-Document", strconv.Itoa(r.ByType[models.LinkCrossDocument])},
		{"External", strconv.Itoa(r.ByType[models.LinkExternal])},
		{"Unknown", strconv.Itoa(r.ByType[models.LinkUnknown])},
	}
}

// WriteCSV writes one row per broken link and per external link, then a summary block.
func (r *Report) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return err
	}
	for _, e := range r.BrokenLinks {
		if err := cw.Write(e.row()); err != nil {
			return err
		}
	}
	for _, e := range r.ExternalLinks {
		if err := cw.Write(e.row()); err != nil {
			return err
		}
	}
	if err := cw.Write([]string{}); err != nil {
		return err
	}
	for _, row := range r.SummaryRows() {
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteXLSX saves the report as a workbook with Summary, Broken Links and External Links
// sheets.
func (r *Report) WriteXLSX(path string) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", "Summary"); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	for i, row := range r.SummaryRows() {
		if err := setRow(f, "Summary", i+1, row); err != nil {
			return err
		}
	}
	sheets := []struct {
		name    string
		entries []Entry
	}{
		{"Broken Links", r.BrokenLinks},
		{"External Links", r.ExternalLinks},
	}
	for _, s := range sheets {
		if _, err := f.NewSheet(s.name); err != nil {
			return fmt.Errorf("create sheet %q: %w", s.name, err)
		}
		if err := setRow(f, s.name, 1, CSVHeader); err != nil {
			return err
		}
		for i, e := range s.entries {
			if err := setRow(f, s.name, i+2, e.row()); err != nil {
				return err
			}
		}
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	vals := make([]any, len(values))
	for i, v := range values {
		vals[i] = v
	}
	if err := f.SetSheetRow(sheet, cell, &vals); err != nil {
		return fmt.Errorf("write %s row %d: %w", sheet, row, err)
	}
	return nil
}
