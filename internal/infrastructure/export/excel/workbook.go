package excel

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"

	"github.com/xuri/excelize/v2"

	"github.com/vkurennov/medarchive/internal/core/catalog"
	"github.com/vkurennov/medarchive/internal/core/domain"
)

// Workbook renders measurement series as an XLSX file, one sheet per
// metric, points in chronological order. When the metric is known to the
// catalog its normal range goes into the value column header.
func Workbook(series map[string][]domain.Measurement, specs map[string]catalog.Spec) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	names := make([]string, 0, len(series))
	for name := range series {
		names = append(names, name)
	}
	sort.Strings(names)

	for idx, name := range names {
		sheet := sheetName(name)
		if idx == 0 {
			if err := f.SetSheetName("Sheet1", sheet); err != nil {
				return nil, fmt.Errorf("rename sheet: %w", err)
			}
		} else {
			if _, err := f.NewSheet(sheet); err != nil {
				return nil, fmt.Errorf("create sheet %q: %w", sheet, err)
			}
		}

		headers := []any{"Дата", valueHeader(specs[name]), "Единицы"}
		if err := f.SetSheetRow(sheet, "A1", &headers); err != nil {
			return nil, fmt.Errorf("write header: %w", err)
		}
		for i, m := range series[name] {
			row := []any{m.Date.Format("2006-01-02"), m.Value, m.Unit}
			cell := fmt.Sprintf("A%d", i+2)
			if err := f.SetSheetRow(sheet, cell, &row); err != nil {
				return nil, fmt.Errorf("write row %d: %w", i+2, err)
			}
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("serialize workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func valueHeader(spec catalog.Spec) string {
	if spec.NormalMin == 0 && spec.NormalMax == 0 {
		return "Значение"
	}
	header := fmt.Sprintf("Значение (норма %s-%s",
		strconv.FormatFloat(spec.NormalMin, 'f', -1, 64),
		strconv.FormatFloat(spec.NormalMax, 'f', -1, 64),
	)
	if spec.Unit != "" {
		header += " " + spec.Unit
	}
	return header + ")"
}

// Sheet names are capped at 31 chars by the format.
func sheetName(name string) string {
	runes := []rune(name)
	if len(runes) > 31 {
		runes = runes[:31]
	}
	return string(runes)
}
