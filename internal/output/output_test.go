package output

import (
	"bytes"
	"strings"
	"testing"
)

type rowsResult struct {
	Name  string `json:"name" yaml:"name"`
	Count int    `json:"count" yaml:"count"`
}

func (r rowsResult) Table() ([]string, [][]string) {
	return []string{"Name", "Count"}, [][]string{{r.Name, "3"}}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatTable, false},
		{"table", FormatTable, false},
		{"yaml", FormatYAML, false},
		{"json", FormatJSON, false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseFormat(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseFormat(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestTo(t *testing.T) {
	data := rowsResult{Name: "TT-1", Count: 3}

	t.Run("table", func(t *testing.T) {
		var buf bytes.Buffer
		if err := To(&buf, FormatTable, data); err != nil {
			t.Fatalf("To() error = %v", err)
		}
		out := buf.String()
		if !strings.Contains(out, "Name") || !strings.Contains(out, "TT-1") {
			t.Errorf("table output missing cells:\n%s", out)
		}
	})

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		if err := To(&buf, FormatJSON, data); err != nil {
			t.Fatalf("To() error = %v", err)
		}
		if !strings.Contains(buf.String(), `"name": "TT-1"`) {
			t.Errorf("json output = %s", buf.String())
		}
	})

	t.Run("yaml", func(t *testing.T) {
		var buf bytes.Buffer
		if err := To(&buf, FormatYAML, data); err != nil {
			t.Fatalf("To() error = %v", err)
		}
		if !strings.Contains(buf.String(), "name: TT-1") {
			t.Errorf("yaml output = %s", buf.String())
		}
	})

	t.Run("table falls back to yaml", func(t *testing.T) {
		var buf bytes.Buffer
		if err := To(&buf, FormatTable, map[string]int{"segments": 6}); err != nil {
			t.Fatalf("To() error = %v", err)
		}
		if !strings.Contains(buf.String(), "segments: 6") {
			t.Errorf("fallback output = %s", buf.String())
		}
	})
}

func TestRenderTablePadsShortRows(t *testing.T) {
	out := RenderTable([]string{"A", "B"}, [][]string{{"only"}})
	if !strings.Contains(out, "only") {
		t.Errorf("RenderTable() = %s", out)
	}
	if RenderTable(nil, nil) != "" {
		t.Error("RenderTable() with no headers should be empty")
	}
}
