// Package importer stages Excel schedule uploads through a reviewed
// five-state pipeline: staged, approved, applied, rolled back or
// rejected. Apply mutates assignments inside one transactional scope
// and stays reversible for 24 hours.
package importer

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/schedcu/core/internal/types"
)

// Normalized header names the parser understands. person_name and
// assignment_date are required.
var headerAliases = map[string]string{
	"person_name":     "person_name",
	"name":            "person_name",
	"provider":        "person_name",
	"resident":        "person_name",
	"assignment_date": "assignment_date",
	"date":            "assignment_date",
	"rotation_name":   "rotation_name",
	"rotation":        "rotation_name",
	"activity":        "rotation_name",
	"slot":            "slot",
	"time":            "slot",
	"session":         "slot",
}

// parsedRow is one data row lifted out of the workbook.
type parsedRow struct {
	RowNumber    int // 1-based workbook row
	PersonName   string
	RotationName string
	Date         time.Time
	DateErr      string
	Slot         types.TimeOfDay
}

// parseWorkbook reads the first sheet. Row 1 is headers; merged cells
// contribute empty values.
func parseWorkbook(data []byte) ([]parsedRow, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("opening workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("reading sheet %s: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("workbook is empty")
	}

	columns := make(map[string]int) // normalized field -> column index
	for i, h := range rows[0] {
		if field, ok := headerAliases[normalizeHeader(h)]; ok {
			if _, taken := columns[field]; !taken {
				columns[field] = i
			}
		}
	}
	for _, required := range []string{"person_name", "assignment_date"} {
		if _, ok := columns[required]; !ok {
			return nil, fmt.Errorf("required column %q not found in headers", required)
		}
	}

	var out []parsedRow
	for i, cells := range rows[1:] {
		row := parsedRow{RowNumber: i + 2}
		row.PersonName = strings.TrimSpace(cell(cells, columns, "person_name"))
		row.RotationName = strings.TrimSpace(cell(cells, columns, "rotation_name"))
		row.Slot = parseSlot(cell(cells, columns, "slot"))

		if row.PersonName == "" && row.RotationName == "" && cell(cells, columns, "assignment_date") == "" {
			continue // fully blank row
		}

		raw := strings.TrimSpace(cell(cells, columns, "assignment_date"))
		date, err := parseDate(raw)
		if err != nil {
			row.DateErr = err.Error()
		} else {
			row.Date = date
		}
		out = append(out, row)
	}
	return out, nil
}

// normalizeHeader lowercases and replaces spaces with underscores.
func normalizeHeader(h string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(h)), " ", "_")
}

func cell(cells []string, columns map[string]int, field string) string {
	idx, ok := columns[field]
	if !ok || idx >= len(cells) {
		return ""
	}
	return cells[idx]
}

func parseSlot(raw string) types.TimeOfDay {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "PM", "AFTERNOON", "P":
		return types.TimeOfDayPM
	default:
		return types.TimeOfDayAM
	}
}

// parseDate accepts ISO 8601 strings, common workbook date renderings,
// and raw Excel serial numbers.
func parseDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, fmt.Errorf("date is empty")
	}
	layouts := []string{
		"2006-01-02",
		time.RFC3339,
		"01-02-06", // excelize default short date rendering
		"1/2/06",
		"01/02/2006",
		"1/2/2006",
		"2006-01-02 15:04:05",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	if serial, err := strconv.ParseFloat(raw, 64); err == nil {
		t, err := excelize.ExcelDateToTime(serial, false)
		if err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", raw)
}
