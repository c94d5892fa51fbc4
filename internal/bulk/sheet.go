package bulk

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ParseSheet splits an uploaded spreadsheet into a header row and data rows.
// The filename extension picks the parser: .xlsx/.xls via excelize, .csv via
// encoding/csv. Data rows are padded to the header width so short rows never
// drop trailing columns.
func ParseSheet(filename string, data []byte) ([]string, [][]string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".xlsx", ".xls":
		return parseExcel(data)
	case ".csv":
		return parseCSV(data)
	default:
		return nil, nil, fmt.Errorf("unsupported file type: %s", ext)
	}
}

func parseExcel(data []byte) ([]string, [][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse excel file: %w", err)
	}
	defer f.Close()

	sheetName := f.GetSheetName(0)
	rows, err := f.GetRows(sheetName)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read rows: %w", err)
	}
	if len(rows) < 1 {
		return nil, nil, fmt.Errorf("excel file is empty")
	}

	headers := rows[0]
	dataRows := make([][]string, 0, len(rows)-1)
	for _, row := range rows[1:] {
		dataRows = append(dataRows, padRow(row, len(headers)))
	}

	return headers, dataRows, nil
}

func parseCSV(data []byte) ([]string, [][]string, error) {
	data = bytes.TrimPrefix(data, utf8BOM)

	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1 // ragged rows are padded below

	allRows, err := reader.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read csv file: %w", err)
	}
	if len(allRows) < 1 {
		return nil, nil, fmt.Errorf("csv file is empty")
	}

	headers := allRows[0]
	dataRows := make([][]string, 0, len(allRows)-1)
	for _, row := range allRows[1:] {
		dataRows = append(dataRows, padRow(row, len(headers)))
	}

	return headers, dataRows, nil
}

func padRow(row []string, width int) []string {
	if len(row) >= width {
		return row[:width]
	}
	padded := make([]string, width)
	copy(padded, row)
	return padded
}

// rowToMap pairs header names with a data row's cells.
func rowToMap(headers []string, row []string) map[string]string {
	m := make(map[string]string, len(headers))
	for i, h := range headers {
		val := ""
		if i < len(row) {
			val = row[i]
		}
		m[h] = val
	}
	return m
}

func contentTypeFor(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx", ".xls":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case ".csv":
		return "text/csv; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}
