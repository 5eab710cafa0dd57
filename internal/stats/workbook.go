package stats

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"rescap/internal/benchmark"
	"rescap/internal/model"
)

const WorkbookFile = "memory_capacity.xlsx"

const (
	seriesSheet = "Series"
	scoresSheet = "Scores"
	configSheet = "Config"
)

// WriteMemoryWorkbook writes the per-delay table, every trial score and the
// configuration fields into one spreadsheet.
func WriteMemoryWorkbook(path string, fields []benchmark.Field, series []model.DelayMemory, scores []benchmark.TrialScore) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", seriesSheet); err != nil {
		return fmt.Errorf("rename workbook sheet: %w", err)
	}
	seriesRows := make([][]any, 0, len(series))
	for _, row := range series {
		seriesRows = append(seriesRows, []any{row.Delay, row.Train, row.Valid, row.Test})
	}
	if err := writeSheet(f, seriesSheet, []string{"delay", "train", "valid", "test"}, seriesRows); err != nil {
		return err
	}

	scoreRows := make([][]any, 0, len(scores))
	for _, s := range scores {
		scoreRows = append(scoreRows, []any{s.Trial, s.Delay, string(s.Split), s.Memory, s.NRMSE})
	}
	if err := writeSheet(f, scoresSheet, []string{"trial", "delay", "split", "memory", "nrmse"}, scoreRows); err != nil {
		return err
	}

	configRows := make([][]any, 0, len(fields))
	for _, field := range fields {
		configRows = append(configRows, []any{field.Key, field.Value})
	}
	if err := writeSheet(f, configSheet, []string{"key", "value"}, configRows); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}

func writeSheet(f *excelize.File, sheet string, header []string, rows [][]any) error {
	if idx, err := f.GetSheetIndex(sheet); err != nil || idx == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return fmt.Errorf("create sheet %s: %w", sheet, err)
		}
	}
	for i, h := range header {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return fmt.Errorf("write %s header: %w", sheet, err)
		}
	}
	for r, row := range rows {
		for c, v := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, r+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return fmt.Errorf("write %s row %d: %w", sheet, r+1, err)
			}
		}
	}
	return nil
}

// ReadMemoryWorkbookSeries reads the per-delay table back from a workbook.
func ReadMemoryWorkbookSeries(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return f.GetRows(seriesSheet)
}
