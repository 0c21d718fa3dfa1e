package report

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/tracecheck/tracecheck/pkg/checker"
	"github.com/tracecheck/tracecheck/pkg/errors"
)

// WriteXLSX writes a violation workbook: a summary sheet plus one sheet
// per checker with its violations and evidence line numbers.
func WriteXLSX(report *checker.RunReport, path string) error {
	f := excelize.NewFile()
	defer f.Close()

	const summary = "Summary"
	f.SetSheetName("Sheet1", summary)

	setRow(f, summary, 1, "Checker", "Passed", "Events", "Violations")
	for i, res := range report.Results {
		setRow(f, summary, i+2, res.Checker, res.Passed, res.EventsMatched, len(res.Violations))
	}

	for _, res := range report.Results {
		if err := writeCheckerSheet(f, res); err != nil {
			return err
		}
	}

	if err := f.SaveAs(path); err != nil {
		return errors.Wrap(err, errors.CodeReportFailed, "failed to write workbook").
			WithContext("path", path)
	}
	return nil
}

func writeCheckerSheet(f *excelize.File, res checker.Result) error {
	if _, err := f.NewSheet(res.Checker); err != nil {
		return errors.Wrap(err, errors.CodeReportFailed, "failed to create sheet").
			WithContext("sheet", res.Checker)
	}

	setRow(f, res.Checker, 1, "Kind", "Line", "Message", "Evidence lines")
	for i, v := range res.Violations {
		evidence := ""
		for j, line := range v.Evidence {
			if j > 0 {
				evidence += ", "
			}
			evidence += fmt.Sprintf("%d", line.Number)
		}
		setRow(f, res.Checker, i+2, v.Kind.String(), v.Line.Number, v.Message(), evidence)
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values ...interface{}) {
	for col, v := range values {
		cell, err := excelize.CoordinatesToCellName(col+1, row)
		if err != nil {
			continue
		}
		f.SetCellValue(sheet, cell, v)
	}
}
