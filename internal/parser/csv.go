package parser

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/dgallion1/docchunk/internal/doctree"
)

const (
	csvRowsPerPage     = 20
	csvHeadingFontSize = 16.0
)

// CSVParser handles CSV files. Each batch of rows becomes a page headed by a
// "Rows a-b" span, with one "header: value" span per row.
type CSVParser struct{}

func (p *CSVParser) Parse(r io.Reader, filename string) (*doctree.Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyInput
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}

	headers := records[0]
	dataRows := records[1:]

	var l layout
	if len(dataRows) == 0 {
		l.body("Headers: " + strings.Join(headers, ", "))
	}
	for i := 0; i < len(dataRows); i += csvRowsPerPage {
		end := min(i+csvRowsPerPage, len(dataRows))

		l.newPage()
		// 1-indexed line numbers, header is line 1.
		l.add(fmt.Sprintf("Rows %d-%d", i+2, end+1), csvHeadingFontSize, headingFont)
		l.body("Headers: " + strings.Join(headers, ", "))
		for _, row := range dataRows[i:end] {
			l.body(formatRow(headers, row))
		}
	}

	pages := l.result()
	return newDocument(filename, pages, len(pages), nil)
}

func formatRow(headers, row []string) string {
	var b strings.Builder
	for j, cell := range row {
		if j > 0 {
			b.WriteString(", ")
		}
		if j < len(headers) {
			b.WriteString(headers[j] + ": " + cell)
		} else {
			b.WriteString(cell)
		}
	}
	return b.String()
}
