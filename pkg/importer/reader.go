package importer

import (
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

type FileType string

const (
	FileTypeExcel FileType = "xlsx"
	FileTypeCSV   FileType = "csv"
)

// 连续空行超过该值时停止读取
const maxEmptyRows = 10

func DetectFileType(name string) (FileType, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".xlsm":
		return FileTypeExcel, nil
	case ".csv", ".txt":
		return FileTypeCSV, nil
	}
	return "", fmt.Errorf("unsupported file type %q", filepath.Ext(name))
}

// Row is one data line keyed by normalized header name. Line is 1-based and
// counts the header.
type Row struct {
	Line   int
	Values map[string]string
}

func (r Row) Get(column string) string {
	return strings.TrimSpace(r.Values[column])
}

type rowSource interface {
	Header() []string
	Rows() func(yield func(Row) bool)
	Err() error
}

func openSource(fd io.Reader, ft FileType) (rowSource, error) {
	var (
		src rowSource
		err error
	)
	switch ft {
	case FileTypeExcel:
		src, err = openExcel(fd)
	case FileTypeCSV:
		src, err = openCSV(fd)
	default:
		return nil, fmt.Errorf("unsupported file type %q", ft)
	}
	if err != nil {
		return nil, err
	}
	return src, nil
}

func normalizeHeader(cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		c = strings.ToLower(strings.TrimSpace(c))
		out[i] = strings.ReplaceAll(c, " ", "_")
	}
	return out
}

func isEmptyRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func toRow(header, cells []string, line int) Row {
	values := make(map[string]string, len(header))
	for i, name := range header {
		if name == "" || i >= len(cells) {
			continue
		}
		values[name] = cells[i]
	}
	return Row{Line: line, Values: values}
}

type excelSource struct {
	header []string
	rows   [][]string
}

// openExcel 读取第一个工作表，第一行为表头
func openExcel(fd io.Reader) (*excelSource, error) {
	f, err := excelize.OpenReader(fd)
	if err != nil {
		return nil, fmt.Errorf("open excel: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("excel file has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("sheet %s is empty", sheets[0])
	}
	return &excelSource{header: normalizeHeader(rows[0]), rows: rows[1:]}, nil
}

func (s *excelSource) Header() []string { return s.header }
func (s *excelSource) Err() error       { return nil }

func (s *excelSource) Rows() func(yield func(Row) bool) {
	return func(yield func(Row) bool) {
		emptyRowCount := 0
		for i, cells := range s.rows {
			if isEmptyRow(cells) {
				emptyRowCount++
				if emptyRowCount >= maxEmptyRows {
					return
				}
				continue
			}
			emptyRowCount = 0
			if !yield(toRow(s.header, cells, i+2)) {
				return
			}
		}
	}
}

type csvSource struct {
	header []string
	reader *csv.Reader
	err    error
}

func openCSV(fd io.Reader) (*csvSource, error) {
	r := csv.NewReader(fd)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	if len(header) > 0 {
		// 去掉 Excel 导出的 BOM
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	return &csvSource{header: normalizeHeader(header), reader: r}, nil
}

func (s *csvSource) Header() []string { return s.header }
func (s *csvSource) Err() error       { return s.err }

func (s *csvSource) Rows() func(yield func(Row) bool) {
	return func(yield func(Row) bool) {
		emptyRowCount := 0
		for {
			cells, err := s.reader.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				// csv.ParseError 自带行号
				s.err = fmt.Errorf("read csv: %w", err)
				return
			}
			// 空行会被csv跳过，引号内字段可跨行，以记录起始行为准
			line, _ := s.reader.FieldPos(0)

			if isEmptyRow(cells) {
				emptyRowCount++
				if emptyRowCount >= maxEmptyRows {
					return
				}
				continue
			}
			emptyRowCount = 0
			if !yield(toRow(s.header, cells, line)) {
				return
			}
		}
	}
}
