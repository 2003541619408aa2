package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"
)

// Dataset defines tabular export content.
type Dataset struct {
	Headers []string
	Rows    []map[string]string
}

// CSVExporter renders Dataset records into CSV bytes.
type CSVExporter struct {
	quoteAll bool
}

// CSVOption customises a CSVExporter.
type CSVOption func(*CSVExporter)

// WithQuotedFields wraps every data field in double quotes, doubling embedded
// quotes. The header row is left bare.
func WithQuotedFields() CSVOption {
	return func(e *CSVExporter) { e.quoteAll = true }
}

// NewCSVExporter builds a CSV exporter.
func NewCSVExporter(opts ...CSVOption) *CSVExporter {
	e := &CSVExporter{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Render produces CSV encoded bytes for the dataset.
func (e *CSVExporter) Render(data Dataset) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("csv requires at least one header")
	}
	if e.quoteAll {
		return e.renderQuoted(data), nil
	}

	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)
	if err := writer.Write(data.Headers); err != nil {
		return nil, fmt.Errorf("write csv headers: %w", err)
	}
	for _, row := range data.Rows {
		if err := writer.Write(record(data.Headers, row)); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

// encoding/csv only quotes fields that need it, so forced quoting is written by hand.
func (e *CSVExporter) renderQuoted(data Dataset) []byte {
	buf := &bytes.Buffer{}
	buf.WriteString(strings.Join(data.Headers, ","))
	for _, row := range data.Rows {
		buf.WriteByte('\n')
		for i, value := range record(data.Headers, row) {
			if i > 0 {
				buf.WriteByte(',')
			}
			buf.WriteByte('"')
			buf.WriteString(strings.ReplaceAll(value, `"`, `""`))
			buf.WriteByte('"')
		}
	}
	buf.WriteByte('\n')
	return buf.Bytes()
}

func record(headers []string, row map[string]string) []string {
	out := make([]string, len(headers))
	for i, header := range headers {
		out[i] = row[header]
	}
	return out
}
