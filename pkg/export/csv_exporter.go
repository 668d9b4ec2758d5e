package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
)

// Sheet is an ordered table of string cells with a header line.
type Sheet struct {
	Headers []string
	Records [][]string
}

// CSVExporter renders sheets as RFC 4180 CSV.
type CSVExporter struct {
	// CRLF switches the line terminator to \r\n.
	CRLF bool
}

// NewCSVExporter builds a CSV exporter.
func NewCSVExporter() *CSVExporter {
	return &CSVExporter{}
}

// Render produces CSV encoded bytes for the sheet. Short records are padded
// to the header width and long ones rejected.
func (e *CSVExporter) Render(sheet Sheet) ([]byte, error) {
	if len(sheet.Headers) == 0 {
		return nil, fmt.Errorf("csv requires at least one header")
	}
	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)
	writer.UseCRLF = e.CRLF
	if err := writer.Write(sheet.Headers); err != nil {
		return nil, fmt.Errorf("write csv headers: %w", err)
	}
	for i, rec := range sheet.Records {
		if len(rec) > len(sheet.Headers) {
			return nil, fmt.Errorf("record %d has %d cells, header has %d", i+1, len(rec), len(sheet.Headers))
		}
		record := make([]string, len(sheet.Headers))
		copy(record, rec)
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}
