package table

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/extrame/xls"
)

type xlsReader struct{}

func (xlsReader) CanRead(filename string) bool { return hasExt(filename, ".xls") }

func (xlsReader) Read(path string, opt Options) (*Table, error) {
	return ReadXLS(path, opt.Sheet)
}

// ReadXLS extracts the rows of one sheet of a legacy BIFF workbook.
func ReadXLS(path, sheetName string) (*Table, error) {
	wb, err := xls.Open(path, "utf-8")
	if err != nil {
		return nil, fmt.Errorf("open xls: %w", err)
	}
	var sheet *xls.WorkSheet
	var names []string
	for i := 0; i < wb.NumSheets(); i++ {
		s := wb.GetSheet(i)
		if s == nil {
			continue
		}
		names = append(names, s.Name)
		if sheetName == "" || strings.EqualFold(s.Name, sheetName) {
			sheet = s
			break
		}
	}
	if sheet == nil {
		if sheetName != "" {
			return nil, fmt.Errorf("sheet '%s' not found in workbook '%s'. Available sheets: %s",
				sheetName, filepath.Base(path), strings.Join(names, ", "))
		}
		return nil, fmt.Errorf("xls %s: no sheets", filepath.Base(path))
	}

	var grid [][]string
	for i := 0; i <= int(sheet.MaxRow); i++ {
		row := sheet.Row(i)
		if row == nil {
			grid = append(grid, nil)
			continue
		}
		cells := make([]string, 0, row.LastCol()+1)
		for j := 0; j <= row.LastCol(); j++ {
			cells = append(cells, row.Col(j))
		}
		grid = append(grid, cells)
	}
	if len(grid) == 0 {
		return nil, fmt.Errorf("xls %s: sheet has no header row", filepath.Base(path))
	}
	return New(filepath.Base(path), trimTrailingEmpty(grid[0]), grid[1:]), nil
}
