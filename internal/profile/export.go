package profile

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/formpilot/internal/model"
)

// ExportOptions controls what leaves the store.
type ExportOptions struct {
	// IncludeSensitive writes the values of sensitive answers instead of
	// leaving them blank.
	IncludeSensitive bool
}

// Answers lists the answers to export.
type Answers interface {
	Answers(ctx context.Context) []model.AnswerValue
}

// ExportXLSX writes every answer to one sheet, grouped by type and
// ordered by priority. It returns the number of rows written.
func ExportXLSX(ctx context.Context, src Answers, path string, opts ExportOptions) (int, error) {
	answers := src.Answers(ctx)
	sort.SliceStable(answers, func(i, j int) bool {
		if answers[i].Type != answers[j].Type {
			return answers[i].Type < answers[j].Type
		}
		return answers[i].Priority < answers[j].Priority
	})

	f := xlsx.NewFile()
	sheet, err := f.AddSheet("answers")
	if err != nil {
		return 0, eris.Wrap(err, "profile: add sheet")
	}
	addRow(sheet, columns)

	for _, a := range answers {
		value, display, aliases := a.Value, a.Display, strings.Join(a.Aliases, ";")
		if a.IsSensitive() && !opts.IncludeSensitive {
			value, display, aliases = "", "", ""
		}
		addRow(sheet, []string{
			string(a.Type),
			value,
			display,
			aliases,
			strconv.Itoa(a.Priority),
			strconv.FormatBool(a.IsSensitive()),
			strconv.FormatBool(a.AutofillAllowed),
		})
	}

	if err := f.Save(path); err != nil {
		return 0, eris.Wrap(err, "profile: save xlsx")
	}
	return len(answers), nil
}

func addRow(sheet *xlsx.Sheet, values []string) {
	row := sheet.AddRow()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}
