// Package importer turns uploaded roster files into header-keyed rows.
package importer

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// FileType is the detected format of an uploaded file.
type FileType string

const (
	FileTypeCSV     FileType = "csv"
	FileTypeXLSX    FileType = "xlsx"
	FileTypeUnknown FileType = "unknown"
)

var (
	// ErrSpreadsheetNotSupported is returned for xlsx/xls payloads.
	ErrSpreadsheetNotSupported = errors.New("Excel file parsing not yet implemented. Please use CSV format.")
	// ErrUnknownFileType is returned when the file extension is not recognised.
	ErrUnknownFileType = errors.New("unsupported file type")
	// ErrInvalidEncoding is returned for CSV payloads that are not UTF-8.
	ErrInvalidEncoding = errors.New("file is not valid UTF-8 text")
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// DetectFileType maps a filename extension to a FileType, case-insensitively.
func DetectFileType(filename string) FileType {
	switch strings.ToLower(filepath.Ext(strings.TrimSpace(filename))) {
	case ".csv":
		return FileTypeCSV
	case ".xlsx", ".xls":
		return FileTypeXLSX
	default:
		return FileTypeUnknown
	}
}

// Row is one data line keyed by lower-cased header name.
type Row map[string]string

// Get returns the trimmed value for key, matched case-insensitively.
func (r Row) Get(key string) string {
	return strings.TrimSpace(r[strings.ToLower(key)])
}

// Parse decodes data according to fileType. It keeps no state between calls,
// so the same input always yields the same rows.
func Parse(data []byte, fileType FileType) ([]Row, error) {
	switch fileType {
	case FileTypeCSV:
		return parseCSV(data)
	case FileTypeXLSX:
		return nil, ErrSpreadsheetNotSupported
	default:
		return nil, ErrUnknownFileType
	}
}

func parseCSV(data []byte) ([]Row, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if !utf8.Valid(data) {
		return nil, ErrInvalidEncoding
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return []Row{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	keys := make([]string, len(header))
	for i, h := range header {
		keys[i] = strings.ToLower(strings.TrimSpace(h))
	}

	rows := make([]Row, 0)
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row: %w", err)
		}
		row := make(Row, len(keys))
		for i, key := range keys {
			if key == "" {
				continue
			}
			if _, seen := row[key]; seen {
				continue
			}
			if i < len(record) {
				row[key] = record[i]
			} else {
				row[key] = ""
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}
