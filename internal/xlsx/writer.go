package xlsx

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/avelichko/defect-classifier/constants"
	"github.com/avelichko/defect-classifier/internal/common"
	"github.com/avelichko/defect-classifier/internal/entity"
)

const outputSheet = "Sheet1"

// WriteResult produces the processed workbook: the source headers plus the
// appended category column, then one row per classified defect in source
// order. Any write failure is a persistence error.
func WriteResult(path string, headers []string, rows []entity.ExpandedRow) error {
	f := excelize.NewFile()
	defer f.Close()

	header := make([]interface{}, 0, len(headers)+1)
	for _, h := range headers {
		header = append(header, h)
	}
	header = append(header, constants.CategoryColumnName)
	if err := f.SetSheetRow(outputSheet, "A1", &header); err != nil {
		return common.PersistenceError("writing header row", err)
	}

	for i, row := range rows {
		cells := make([]interface{}, 0, len(row.Cells)+1)
		for _, c := range row.Cells {
			cells = append(cells, c)
		}
		cells = append(cells, row.Category)

		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return common.PersistenceError(fmt.Sprintf("addressing row %d", i+2), err)
		}
		if err := f.SetSheetRow(outputSheet, cell, &cells); err != nil {
			return common.PersistenceError(fmt.Sprintf("writing row %d", i+2), err)
		}
	}

	if err := f.SaveAs(path); err != nil {
		return common.PersistenceError(fmt.Sprintf("saving workbook %s", path), err)
	}
	return nil
}
