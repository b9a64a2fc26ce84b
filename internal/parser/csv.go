package parser

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/dgallion1/docoutline/internal/doctree"
)

// CSVParser handles CSV files. The whole file becomes one table titled
// after the file; the header row is kept as the first row.
type CSVParser struct{}

func (p *CSVParser) Parse(r io.Reader, filename string) (*doctree.Document, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}

	title := titleFromFilename(filename)
	doc := &doctree.Document{Title: title}
	if len(records) == 0 {
		return doc, nil
	}
	doc.Blocks = []doctree.Block{{Table: &doctree.Table{Title: title, Rows: records}}}
	return doc, nil
}
