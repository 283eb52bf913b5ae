package profile

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/sells-group/formpilot/internal/knowledge"
	"github.com/sells-group/formpilot/internal/model"
	"github.com/sells-group/formpilot/internal/normalize"
)

// Normalizer standardizes imported values.
type Normalizer interface {
	Normalize(ctx context.Context, kind normalize.Kind, raw string) normalize.Result
}

// Skipped is a row that was not imported.
type Skipped struct {
	Row    Row    `json:"row"`
	Reason string `json:"reason"`
}

// Report summarizes an import.
type Report struct {
	Added   int       `json:"added"`
	Merged  int       `json:"merged"`
	Skipped []Skipped `json:"skipped,omitempty"`
}

// Importer stages profile rows as answers.
type Importer struct {
	kb   *knowledge.Store
	norm Normalizer
}

// NewImporter returns an importer. norm may be nil to keep values as given.
func NewImporter(kb *knowledge.Store, norm Normalizer) *Importer {
	return &Importer{kb: kb, norm: norm}
}

// Import normalizes and stores rows. A value that matches an existing
// answer of the same type is merged as an alias instead of duplicated. A
// full name also yields first and last name answers when none exist.
func (im *Importer) Import(ctx context.Context, rows []Row) (Report, error) {
	var rep Report
	for _, row := range rows {
		t, ok := model.ParseTaxonomy(row.Type)
		if !ok || t == model.TaxonomyUnknown {
			rep.Skipped = append(rep.Skipped, Skipped{Row: row, Reason: fmt.Sprintf("unknown type %q", row.Type)})
			continue
		}
		if row.Value == "" {
			rep.Skipped = append(rep.Skipped, Skipped{Row: row, Reason: "empty value"})
			continue
		}

		res := im.normalize(ctx, t, row.Value)
		value := row.Value
		if res.OK() {
			value = res.Value
		}
		aliases := row.Aliases
		if value != row.Value {
			aliases = append([]string{row.Value}, aliases...)
		}

		merged, err := im.upsert(ctx, t, value, row.Display, aliases, row.Priority)
		if err != nil {
			return rep, err
		}
		if merged {
			rep.Merged++
		} else {
			rep.Added++
		}

		if t == model.TaxonomyFullName {
			for taxonomy, part := range map[model.Taxonomy]string{
				model.TaxonomyFirstName:  res.Parts["first"],
				model.TaxonomyMiddleName: res.Parts["middle"],
				model.TaxonomyLastName:   res.Parts["last"],
			} {
				if part == "" || len(im.kb.AnswersByType(ctx, taxonomy)) > 0 {
					continue
				}
				if _, err := im.kb.AddAnswer(ctx, knowledge.AnswerInput{Type: taxonomy, Value: part}); err != nil {
					return rep, err
				}
				rep.Added++
			}
		}
	}
	zap.L().Info("profile: import finished",
		zap.Int("added", rep.Added),
		zap.Int("merged", rep.Merged),
		zap.Int("skipped", len(rep.Skipped)),
	)
	return rep, nil
}

func (im *Importer) normalize(ctx context.Context, t model.Taxonomy, raw string) normalize.Result {
	kind := normalize.KindFor(t)
	if im.norm == nil {
		return normalize.Local(kind, raw)
	}
	return im.norm.Normalize(ctx, kind, raw)
}

func (im *Importer) upsert(ctx context.Context, t model.Taxonomy, value, display string, aliases []string, priority int) (bool, error) {
	existing := im.kb.AnswersByType(ctx, t)
	for _, a := range existing {
		if !a.Matches(value) {
			continue
		}
		var err error
		for _, alias := range aliases {
			if a, err = im.kb.MergeAnswer(ctx, a, alias); err != nil {
				return true, err
			}
		}
		return true, nil
	}
	if t.IsExperienceGroup() && priority == 0 {
		priority = len(existing)
	}
	_, err := im.kb.AddAnswer(ctx, knowledge.AnswerInput{
		Type:     t,
		Value:    value,
		Display:  display,
		Aliases:  aliases,
		Priority: priority,
	})
	return false, err
}
