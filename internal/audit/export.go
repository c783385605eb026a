// Package audit exports every stored record, soft-deleted ones included, to an Excel workbook.
package audit

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// TableSource provides access to stored tables for export.
type TableSource interface {
	TableNames(ctx context.Context) ([]string, error)
	TableData(ctx context.Context, tableName string) ([]map[string]interface{}, []string, error)
}

// Exporter writes one sheet per table.
type Exporter struct {
	src    TableSource
	logger zerolog.Logger
}

func NewExporter(src TableSource, logger *zerolog.Logger) *Exporter {
	return &Exporter{
		src:    src,
		logger: logger.With().Str("component", "audit").Logger(),
	}
}

// Filename names the workbook for the month containing t.
func Filename(t time.Time) string {
	return fmt.Sprintf("schedulease_audit_%s.xlsx", t.Format("2006-01"))
}

// Export writes the workbook to w and returns the number of data rows written.
func (e *Exporter) Export(ctx context.Context, w io.Writer) (int, error) {
	tables, err := e.src.TableNames(ctx)
	if err != nil {
		return 0, fmt.Errorf("get table names: %w", err)
	}
	if len(tables) == 0 {
		return 0, fmt.Errorf("no tables to export")
	}

	book, err := newWorkbook()
	if err != nil {
		return 0, err
	}
	defer book.close()

	rows := 0
	for _, table := range tables {
		data, columns, err := e.src.TableData(ctx, table)
		if err != nil {
			return rows, fmt.Errorf("get %s data: %w", table, err)
		}
		if err := book.startSheet(table, columns); err != nil {
			return rows, err
		}
		for _, record := range data {
			values := make([]interface{}, len(columns))
			for i, col := range columns {
				values[i] = record[col]
			}
			if err := book.appendRow(values); err != nil {
				return rows, err
			}
		}
		if err := book.finish(len(columns)); err != nil {
			return rows, fmt.Errorf("filter %s: %w", table, err)
		}
		rows += len(data)
		e.logger.Debug().Str("table", table).Int("rows", len(data)).Msg("exported table")
	}

	if err := book.writeTo(w); err != nil {
		return rows, fmt.Errorf("save workbook: %w", err)
	}
	return rows, nil
}

// ExportToFile writes the workbook to path.
func (e *Exporter) ExportToFile(ctx context.Context, path string) (int, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", path, err)
	}
	rows, err := e.Export(ctx, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return rows, err
	}
	e.logger.Info().Str("path", path).Int("rows", rows).Msg("audit workbook written")
	return rows, nil
}
