// Package export writes validation results to spreadsheet files.
package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	bserrors "github.com/botscope/botscope/pkg/errors"
	"github.com/botscope/botscope/pkg/validate"
)

const summarySheet = "Summary"

// maxSheetName is Excel's sheet name length limit.
const maxSheetName = 31

// WriteReportsXLSX writes one summary sheet and one sheet per table to path.
// The file is written next to path and renamed into place.
func WriteReportsXLSX(path string, reports []validate.Report) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return fmt.Errorf("failed to rename sheet: %w", err)
	}

	header, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#EEEEEE"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("failed to create style: %w", err)
	}

	if err := writeRows(f, summarySheet, header,
		[]any{"table", "rows", "columns", "invalid_cells", "missing_columns", "valid"},
		summaryRows(reports)); err != nil {
		return err
	}

	for _, r := range reports {
		name := sheetName(r.Table)
		if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("failed to add sheet %s: %w", name, err)
		}
		rows := make([][]any, 0, len(r.Columns)+len(r.Missing))
		for _, c := range r.Columns {
			rows = append(rows, []any{c.Name, string(c.Kind), c.Checked, c.Invalid, c.InvalidPct()})
		}
		for _, m := range r.Missing {
			rows = append(rows, []any{m, "missing"})
		}
		if err := writeRows(f, name, header,
			[]any{"column", "kind", "checked", "invalid", "invalid_pct"}, rows); err != nil {
			return err
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return bserrors.FileSystem(err, "mkdir", filepath.Dir(path))
	}
	// SaveAs picks the format from the extension, so the temp file keeps .xlsx.
	tmp := strings.TrimSuffix(path, filepath.Ext(path)) + ".tmp.xlsx"
	if err := f.SaveAs(tmp); err != nil {
		os.Remove(tmp)
		return bserrors.Wrap(err, bserrors.CodeWriteFailed, "write xlsx").WithContext("path", path)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return bserrors.FileSystem(err, "rename", path)
	}
	return nil
}

func summaryRows(reports []validate.Report) [][]any {
	rows := make([][]any, 0, len(reports))
	for _, r := range reports {
		rows = append(rows, []any{
			r.Table, r.Rows, len(r.Columns), r.InvalidCells(),
			strings.Join(r.Missing, ","), yesNo(r.Valid()),
		})
	}
	return rows
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func writeRows(f *excelize.File, sheet string, headerStyle int, header []any, rows [][]any) error {
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	last, _ := excelize.CoordinatesToCellName(len(header), 1)
	if err := f.SetCellStyle(sheet, "A1", last, headerStyle); err != nil {
		return fmt.Errorf("failed to style header: %w", err)
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}
	return nil
}

// sheetName maps a table name to a valid, bounded sheet name.
func sheetName(table string) string {
	name := strings.Map(func(r rune) rune {
		switch r {
		case ':', '\\', '/', '?', '*', '[', ']':
			return '_'
		}
		return r
	}, table)
	if len([]rune(name)) > maxSheetName {
		name = string([]rune(name)[:maxSheetName])
	}
	if name == summarySheet || name == "" {
		name = "_" + name
	}
	return name
}
