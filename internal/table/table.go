// Package table converts exported database tables (CSV) into Markdown tables
// whose first column links to the cleaned row pages.
package table

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/starford/notionclean/internal/pathclean"
)

const (
	bom       = "\ufeff"
	lineBreak = "<br />"
)

// ToMarkdown reads CSV records from r and renders them as a Markdown table.
// The first record is the header row. The first cell of every data row is
// rendered as a reference to tableName/<cleaned cell>.md, which is where the
// export keeps the page of that row.
func ToMarkdown(r io.Reader, tableName string) ([]byte, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("table: read header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], bom)
	}

	var b bytes.Buffer
	writeRow(&b, header)
	sep := make([]string, len(header))
	for i := range sep {
		sep[i] = "---"
	}
	writeRow(&b, sep)

	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("table: read row: %w", err)
		}
		for len(rec) < len(header) {
			rec = append(rec, "")
		}
		if len(rec) > 0 {
			rec[0] = RowLink(tableName, rec[0])
		}
		writeRow(&b, rec)
	}
	return b.Bytes(), nil
}

// RowLink renders the reference to the page of a row named value.
// Empty names have no page and render as an empty cell.
func RowLink(tableName, value string) string {
	if strings.TrimSpace(value) == "" {
		return ""
	}
	return fmt.Sprintf("[%s](%s/%s.md)", value, tableName, pathclean.Clean(value))
}

func writeRow(b *bytes.Buffer, cells []string) {
	row := strings.Join(cells, " | ")
	row = strings.ReplaceAll(row, "\r\n", lineBreak)
	row = strings.ReplaceAll(row, "\n", lineBreak)
	b.WriteString("| ")
	b.WriteString(row)
	b.WriteString(" |\n")
}
