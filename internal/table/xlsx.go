package table

import (
	"archive/zip"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
)

type xlsxReader struct{}

func (xlsxReader) CanRead(filename string) bool { return hasExt(filename, ".xlsx", ".xlsm") }

func (xlsxReader) Read(path string, opt Options) (*Table, error) {
	return ReadXLSX(path, opt.Sheet)
}

type xlsxWorkbook struct {
	Sheets []struct {
		Name string `xml:"name,attr"`
		RID  string `xml:"id,attr"`
	} `xml:"sheets>sheet"`
}

type xlsxRelationships struct {
	Items []struct {
		ID     string `xml:"Id,attr"`
		Target string `xml:"Target,attr"`
	} `xml:"Relationship"`
}

// xlsxText is a plain or rich-text string item.
type xlsxText struct {
	T    string `xml:"t"`
	Runs []struct {
		T string `xml:"t"`
	} `xml:"r"`
}

func (x xlsxText) String() string {
	if len(x.Runs) == 0 {
		return x.T
	}
	var b strings.Builder
	b.WriteString(x.T)
	for _, r := range x.Runs {
		b.WriteString(r.T)
	}
	return b.String()
}

type xlsxSharedStrings struct {
	Items []xlsxText `xml:"si"`
}

type xlsxCell struct {
	Ref    string   `xml:"r,attr"`
	Type   string   `xml:"t,attr"`
	Value  string   `xml:"v"`
	Inline xlsxText `xml:"is"`
}

// ReadXLSX extracts the rows of one sheet of a .xlsx workbook. An empty
// sheetName selects the first sheet. Date cells keep their serial number.
func ReadXLSX(path, sheetName string) (*Table, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer zr.Close()
	name := filepath.Base(path)

	var wb xlsxWorkbook
	if err := decodePart(&zr.Reader, "xl/workbook.xml", &wb); err != nil {
		return nil, fmt.Errorf("xlsx %s: %w", name, err)
	}
	var rels xlsxRelationships
	if err := decodePart(&zr.Reader, "xl/_rels/workbook.xml.rels", &rels); err != nil && !errors.Is(err, errPartMissing) {
		return nil, fmt.Errorf("xlsx %s: %w", name, err)
	}
	target, err := sheetTarget(wb, rels, sheetName, name)
	if err != nil {
		return nil, err
	}
	var sst xlsxSharedStrings
	if err := decodePart(&zr.Reader, "xl/sharedStrings.xml", &sst); err != nil && !errors.Is(err, errPartMissing) {
		return nil, fmt.Errorf("xlsx %s: %w", name, err)
	}
	shared := make([]string, len(sst.Items))
	for i, it := range sst.Items {
		shared[i] = it.String()
	}

	f, err := openPart(&zr.Reader, target)
	if err != nil {
		return nil, fmt.Errorf("xlsx %s: %w", name, err)
	}
	defer f.Close()
	all, err := readSheetRows(f, shared)
	if err != nil {
		return nil, fmt.Errorf("xlsx %s: %w", name, err)
	}
	if len(all) == 0 || len(trimTrailingEmpty(all[0])) == 0 {
		return nil, fmt.Errorf("xlsx %s: sheet has no header row", name)
	}
	return New(name, trimTrailingEmpty(all[0]), all[1:]), nil
}

var errPartMissing = errors.New("part not found")

func openPart(zr *zip.Reader, part string) (io.ReadCloser, error) {
	for _, f := range zr.File {
		if f.Name == part {
			return f.Open()
		}
	}
	return nil, fmt.Errorf("%s: %w", part, errPartMissing)
}

func decodePart(zr *zip.Reader, part string, v any) error {
	f, err := openPart(zr, part)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := xml.NewDecoder(f).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", part, err)
	}
	return nil
}

// sheetTarget resolves the worksheet entry. Names match case-insensitively.
func sheetTarget(wb xlsxWorkbook, rels xlsxRelationships, sheetName, file string) (string, error) {
	byID := make(map[string]string, len(rels.Items))
	for _, r := range rels.Items {
		byID[r.ID] = r.Target
	}
	if sheetName == "" {
		if len(wb.Sheets) > 0 {
			if t, ok := byID[wb.Sheets[0].RID]; ok {
				return zipEntry(t), nil
			}
		}
		return "xl/worksheets/sheet1.xml", nil
	}
	names := make([]string, 0, len(wb.Sheets))
	for _, s := range wb.Sheets {
		if strings.EqualFold(s.Name, sheetName) {
			if t, ok := byID[s.RID]; ok {
				return zipEntry(t), nil
			}
		}
		names = append(names, s.Name)
	}
	return "", fmt.Errorf("sheet '%s' not found in workbook '%s'. Available sheets: %s",
		sheetName, file, strings.Join(names, ", "))
}

// readSheetRows streams <row> elements, placing cells by their A1 reference.
func readSheetRows(r io.Reader, shared []string) ([][]string, error) {
	dec := xml.NewDecoder(r)
	var rows [][]string
	var row []string
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read sheet: %w", err)
		}
		switch el := tok.(type) {
		case xml.StartElement:
			switch el.Name.Local {
			case "row":
				row = []string{}
			case "c":
				var c xlsxCell
				if err := dec.DecodeElement(&c, &el); err != nil {
					return nil, fmt.Errorf("read cell: %w", err)
				}
				col := columnIndex(c.Ref)
				if col < 0 {
					col = len(row)
				}
				for len(row) <= col {
					row = append(row, "")
				}
				row[col] = c.text(shared)
			}
		case xml.EndElement:
			if el.Name.Local == "row" && row != nil {
				rows = append(rows, row)
				row = nil
			}
		}
	}
}

func (c xlsxCell) text(shared []string) string {
	switch c.Type {
	case "s":
		i, err := strconv.Atoi(strings.TrimSpace(c.Value))
		if err != nil || i < 0 || i >= len(shared) {
			return ""
		}
		return shared[i]
	case "inlineStr":
		return c.Inline.String()
	case "b":
		if c.Value == "1" {
			return "TRUE"
		}
		return "FALSE"
	}
	return c.Value
}

// columnIndex maps "AB12" to 27. It returns -1 when ref has no column letters.
func columnIndex(ref string) int {
	n := 0
	for _, ch := range ref {
		switch {
		case ch >= 'A' && ch <= 'Z':
			n = n*26 + int(ch-'A') + 1
		case ch >= 'a' && ch <= 'z':
			n = n*26 + int(ch-'a') + 1
		default:
			return n - 1
		}
	}
	return n - 1
}

func trimTrailingEmpty(row []string) []string {
	n := len(row)
	for n > 0 && strings.TrimSpace(row[n-1]) == "" {
		n--
	}
	return row[:n]
}

// zipEntry converts a relationship target to a zip entry name.
func zipEntry(target string) string {
	target = strings.TrimPrefix(target, "/")
	if strings.HasPrefix(target, "xl/") {
		return target
	}
	return "xl/" + target
}
