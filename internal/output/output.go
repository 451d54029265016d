// Package output renders CLI results as a table, YAML or JSON.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"gopkg.in/yaml.v3"
)

// Format defines the output format for CLI commands.
type Format string

const (
	FormatTable Format = "table"
	FormatYAML  Format = "yaml"
	FormatJSON  Format = "json"
)

// Default is the format used when none is set.
var Default = FormatTable

// globalFormat is set by the root command's --output flag.
var globalFormat = Default

// ParseFormat maps a flag value onto a Format.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "":
		return Default, nil
	case FormatTable, FormatYAML, FormatJSON:
		return Format(s), nil
	default:
		return "", fmt.Errorf("unknown output format %q (want table, yaml or json)", s)
	}
}

// SetFormat sets the global output format.
func SetFormat(f Format) {
	globalFormat = f
}

// CurrentFormat returns the global output format.
func CurrentFormat() Format {
	return globalFormat
}

// IsStructured reports whether the global format is YAML or JSON.
func IsStructured() bool {
	return globalFormat == FormatJSON || globalFormat == FormatYAML
}

// Tabular is implemented by results that have a table rendering.
type Tabular interface {
	Table() (headers []string, rows [][]string)
}

// Print writes data to stdout in the global format.
func Print(data any) error {
	return To(os.Stdout, globalFormat, data)
}

// To writes data to w in the given format. Table output falls back to
// YAML for values that are not Tabular.
func To(w io.Writer, format Format, data any) error {
	switch format {
	case FormatTable:
		t, ok := data.(Tabular)
		if !ok {
			return To(w, FormatYAML, data)
		}
		headers, rows := t.Table()
		_, err := fmt.Fprintln(w, RenderTable(headers, rows))
		return err
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(data)
	default:
		return fmt.Errorf("unknown output format: %s", format)
	}
}

// RenderTable draws rows under headers with rounded borders. Short rows
// are padded with empty cells.
func RenderTable(headers []string, rows [][]string) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := range headers {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := 0; i < columns; i++ {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, columns)
	for i := 0; i < columns; i++ {
		configs = append(configs, table.ColumnConfig{
			Number:      i + 1,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}
