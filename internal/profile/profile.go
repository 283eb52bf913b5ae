// Package profile imports answers from profile documents (JSON, YAML or a
// spreadsheet) and exports the knowledge store to a spreadsheet.
package profile

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// Row is one profile entry.
type Row struct {
	Type     string   `json:"type" yaml:"type"`
	Value    string   `json:"value" yaml:"value"`
	Display  string   `json:"display,omitempty" yaml:"display,omitempty"`
	Aliases  []string `json:"aliases,omitempty" yaml:"aliases,omitempty"`
	Priority int      `json:"priority,omitempty" yaml:"priority,omitempty"`
}

// Document is the JSON and YAML profile layout.
type Document struct {
	Answers []Row `json:"answers" yaml:"answers"`
}

// Spreadsheet column headers, in export order.
var columns = []string{"type", "value", "display", "aliases", "priority", "sensitive", "autofill"}

// ReadFile parses a profile by extension: .json (comments allowed),
// .yaml/.yml or .xlsx.
func ReadFile(path string) ([]Row, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, eris.Wrap(err, "profile: read file")
		}
		return ParseJSON(data)
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, eris.Wrap(err, "profile: read file")
		}
		return ParseYAML(data)
	case ".xlsx":
		return ReadXLSX(path)
	default:
		return nil, eris.Errorf("profile: unsupported file type %q", filepath.Ext(path))
	}
}

// ParseJSON accepts either a Document or a bare array of rows.
func ParseJSON(data []byte) ([]Row, error) {
	data = jsonc.ToJSON(data)
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var rows []Row
		if err := json.Unmarshal(data, &rows); err != nil {
			return nil, eris.Wrap(err, "profile: decode json")
		}
		return rows, nil
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, eris.Wrap(err, "profile: decode json")
	}
	return doc.Answers, nil
}

// ParseYAML accepts either a Document or a bare list of rows.
func ParseYAML(data []byte) ([]Row, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, eris.Wrap(err, "profile: decode yaml")
	}
	if len(node.Content) == 0 {
		return nil, nil
	}
	if node.Content[0].Kind == yaml.SequenceNode {
		var rows []Row
		if err := node.Decode(&rows); err != nil {
			return nil, eris.Wrap(err, "profile: decode yaml rows")
		}
		return rows, nil
	}
	var doc Document
	if err := node.Decode(&doc); err != nil {
		return nil, eris.Wrap(err, "profile: decode yaml document")
	}
	return doc.Answers, nil
}

// ReadXLSX reads the first sheet. The first row is a header naming at
// least the type and value columns; aliases are separated by ';'.
func ReadXLSX(path string) ([]Row, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "profile: open xlsx")
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("profile: workbook has no sheets")
	}
	sheet := f.Sheets[0]
	if len(sheet.Rows) == 0 {
		return nil, nil
	}

	idx := map[string]int{}
	for i, c := range rowToStrings(sheet.Rows[0]) {
		idx[strings.ToLower(strings.TrimSpace(c))] = i
	}
	ti, okT := idx["type"]
	vi, okV := idx["value"]
	if !okT || !okV {
		return nil, eris.New("profile: header must name type and value columns")
	}
	col := func(cells []string, name string) string {
		i, ok := idx[name]
		if !ok || i >= len(cells) {
			return ""
		}
		return strings.TrimSpace(cells[i])
	}

	var rows []Row
	for _, r := range sheet.Rows[1:] {
		cells := rowToStrings(r)
		if ti >= len(cells) || vi >= len(cells) || strings.TrimSpace(cells[ti]) == "" {
			continue
		}
		row := Row{Type: strings.TrimSpace(cells[ti]), Value: strings.TrimSpace(cells[vi]), Display: col(cells, "display")}
		for _, a := range strings.Split(col(cells, "aliases"), ";") {
			if a = strings.TrimSpace(a); a != "" {
				row.Aliases = append(row.Aliases, a)
			}
		}
		if p := col(cells, "priority"); p != "" {
			row.Priority, _ = strconv.Atoi(p)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = cell.String()
	}
	return cells
}
