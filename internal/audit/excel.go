package audit

import (
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
)

const maxSheetName = 31

// workbook appends rows sheet by sheet. The first sheet reuses excelize's
// default "Sheet1".
type workbook struct {
	file        *excelize.File
	headerStyle int
	sheet       string
	next        int
}

func newWorkbook() (*workbook, error) {
	f := excelize.NewFile()
	style, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"DDEBF7"}},
	})
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("header style: %w", err)
	}
	return &workbook{file: f, headerStyle: style}, nil
}

// startSheet opens a sheet named after a table and writes its header row.
func (b *workbook) startSheet(table string, columns []string) error {
	name := sheetName(table)
	if b.sheet == "" {
		if err := b.file.SetSheetName("Sheet1", name); err != nil {
			return fmt.Errorf("rename sheet %s: %w", name, err)
		}
	} else if _, err := b.file.NewSheet(name); err != nil {
		return fmt.Errorf("create sheet %s: %w", name, err)
	}
	b.sheet, b.next = name, 1

	if len(columns) == 0 {
		return nil
	}
	header := make([]interface{}, len(columns))
	for i, c := range columns {
		header[i] = c
	}
	if err := b.appendRow(header); err != nil {
		return err
	}
	if err := b.file.SetRowStyle(name, 1, 1, b.headerStyle); err != nil {
		return err
	}

	last, err := excelize.ColumnNumberToName(len(columns))
	if err != nil {
		return err
	}
	if err := b.file.SetColWidth(name, "A", last, 18); err != nil {
		return err
	}
	return b.file.SetPanes(name, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}

func (b *workbook) appendRow(values []interface{}) error {
	if b.sheet == "" {
		return fmt.Errorf("no active sheet")
	}
	cell, err := excelize.CoordinatesToCellName(1, b.next)
	if err != nil {
		return err
	}
	if err := b.file.SetSheetRow(b.sheet, cell, &values); err != nil {
		return fmt.Errorf("write %s row %d: %w", b.sheet, b.next, err)
	}
	b.next++
	return nil
}

// finish adds an autofilter over the rows written to the current sheet.
func (b *workbook) finish(columns int) error {
	if b.sheet == "" || columns == 0 || b.next <= 2 {
		return nil
	}
	end, err := excelize.CoordinatesToCellName(columns, b.next-1)
	if err != nil {
		return err
	}
	return b.file.AutoFilter(b.sheet, "A1:"+end, nil)
}

func (b *workbook) writeTo(w io.Writer) error {
	return b.file.Write(w)
}

func (b *workbook) close() error {
	return b.file.Close()
}

func sheetName(table string) string {
	if utf8.RuneCountInString(table) <= maxSheetName {
		return table
	}
	return string([]rune(table)[:maxSheetName])
}
