package alerts

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"
)

// TimestampLayout is ISO-8601 in UTC with milliseconds.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

var exportHeader = []string{"ID", "Type", "Message", "Timestamp", "Severity", "Location", "Resolved"}

// CSVFilename is the download name for an export taken at t.
func CSVFilename(t time.Time) string {
	return fmt.Sprintf("alerts_%s.csv", t.Format("2006-01-02"))
}

// XLSXFilename is the workbook download name for an export taken at t.
func XLSXFilename(t time.Time) string {
	return fmt.Sprintf("alerts_%s.xlsx", t.Format("2006-01-02"))
}

func record(a Alert) []string {
	return []string{
		a.ID,
		string(a.Type),
		a.Message,
		a.Timestamp.UTC().Format(TimestampLayout),
		string(a.Severity),
		a.Location,
		strconv.FormatBool(a.Resolved),
	}
}

// WriteCSV writes every alert in ledger order. Fields containing commas,
// quotes or newlines are quoted per RFC 4180; other rows are plain.
func WriteCSV(w io.Writer, list []Alert) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return err
	}
	for _, a := range list {
		if err := cw.Write(record(a)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV parses an export produced by WriteCSV.
func ReadCSV(r io.Reader) ([]Alert, error) {
	rows, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("csv: missing header")
	}
	out := make([]Alert, 0, len(rows)-1)
	for i, row := range rows[1:] {
		if len(row) != len(exportHeader) {
			return nil, fmt.Errorf("csv: row %d has %d fields", i+2, len(row))
		}
		ts, err := time.Parse(TimestampLayout, row[3])
		if err != nil {
			return nil, fmt.Errorf("csv: row %d timestamp: %w", i+2, err)
		}
		resolved, err := strconv.ParseBool(row[6])
		if err != nil {
			return nil, fmt.Errorf("csv: row %d resolved: %w", i+2, err)
		}
		out = append(out, Alert{
			ID:        row[0],
			Type:      Type(row[1]),
			Message:   row[2],
			Timestamp: ts,
			Severity:  Severity(row[4]),
			Location:  row[5],
			Resolved:  resolved,
		})
	}
	return out, nil
}

// ExportCSV writes the full ledger regardless of any view filter.
func (l *Ledger) ExportCSV(ctx context.Context, w io.Writer) error {
	all, err := l.store.List(ctx)
	if err != nil {
		return fmt.Errorf("list alerts: %w", err)
	}
	return WriteCSV(w, all)
}

// ExportXLSX renders the full ledger as a workbook with the CSV columns.
func (l *Ledger) ExportXLSX(ctx context.Context) (*bytes.Buffer, error) {
	all, err := l.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}

	const sheet = "Alerts"
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}
	header := make([]any, len(exportHeader))
	for i, h := range exportHeader {
		header[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return nil, err
	}
	if style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		_ = f.SetRowStyle(sheet, 1, 1, style)
	}
	_ = f.SetColWidth(sheet, "C", "C", 44)
	_ = f.SetColWidth(sheet, "D", "D", 26)

	for i, a := range all {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		rec := record(a)
		row := make([]any, len(rec))
		for j, v := range rec {
			row[j] = v
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return nil, err
		}
	}
	return f.WriteToBuffer()
}
