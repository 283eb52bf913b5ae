package fill

import (
	"strconv"
	"strings"
	"time"

	"github.com/sells-group/formpilot/internal/model"
	"github.com/sells-group/formpilot/internal/normalize"
)

// Target is the text to write plus alternate spellings used when the
// control offers options.
type Target struct {
	Value   string
	Aliases []string
}

func (t Target) withAliases(more ...string) Target {
	for _, m := range more {
		if m != "" && m != t.Value {
			t.Aliases = append(t.Aliases, m)
		}
	}
	return t
}

// Transformer adapts an answer to what a specific control accepts.
type Transformer interface {
	Name() string
	CanTransform(f model.FieldContext, a model.AnswerValue) bool
	Transform(f model.FieldContext, a model.AnswerValue, t Target) Target
}

// DefaultTransformers returns the built-in transformers in application order.
func DefaultTransformers() []Transformer {
	return []Transformer{
		DateTransformer{},
		PhoneTransformer{},
		BooleanTransformer{},
		RegionTransformer{},
	}
}

// TargetFor runs every applicable transformer over the plan's value.
func TargetFor(transformers []Transformer, plan model.FillPlan) Target {
	t := Target{Value: plan.TargetValue()}
	t = t.withAliases(plan.Answer.Display)
	t = t.withAliases(plan.Answer.Aliases...)
	for _, tr := range transformers {
		if tr.CanTransform(plan.Field, plan.Answer) {
			t = tr.Transform(plan.Field, plan.Answer, t)
		}
	}
	return t
}

// DateTransformer formats dates for the control's input type or the
// layout its placeholder shows.
type DateTransformer struct{}

func (DateTransformer) Name() string { return "date" }

func (DateTransformer) CanTransform(_ model.FieldContext, a model.AnswerValue) bool {
	return normalize.KindFor(a.Type) == normalize.KindDate
}

var placeholderLayouts = []struct {
	pattern string
	layout  string
}{
	{"MM/DD/YYYY", "01/02/2006"},
	{"DD/MM/YYYY", "02/01/2006"},
	{"YYYY-MM-DD", "2006-01-02"},
	{"MM-DD-YYYY", "01-02-2006"},
	{"MM/YYYY", "01/2006"},
	{"MM-YYYY", "01-2006"},
	{"YYYY-MM", "2006-01"},
	{"YYYY", "2006"},
}

func (DateTransformer) Transform(f model.FieldContext, _ model.AnswerValue, t Target) Target {
	r := normalize.Local(normalize.KindDate, t.Value)
	if !r.OK() || r.Value == "present" {
		return t
	}
	year, _ := strconv.Atoi(r.Parts["year"])
	month, _ := strconv.Atoi(r.Parts["month"])
	day, _ := strconv.Atoi(r.Parts["day"])
	if month == 0 {
		month = 1
	}
	if day == 0 {
		day = 1
	}
	d := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)

	layout := ""
	switch f.InputType() {
	case "date":
		layout = "2006-01-02"
	case "month":
		layout = "2006-01"
	default:
		ph := strings.ToUpper(f.Attr("placeholder"))
		for _, pl := range placeholderLayouts {
			if strings.Contains(ph, pl.pattern) {
				layout = pl.layout
				break
			}
		}
	}

	out := t
	if layout != "" {
		out.Value = d.Format(layout)
	}
	return out.withAliases(r.Parts["year"], d.Format("January 2006"), d.Format("Jan 2006"), t.Value)
}

// PhoneTransformer reduces phone numbers to digits for tel inputs with a
// length limit, keeping the trailing digits when the limit is short.
type PhoneTransformer struct{}

func (PhoneTransformer) Name() string { return "phone" }

func (PhoneTransformer) CanTransform(f model.FieldContext, a model.AnswerValue) bool {
	return a.Type == model.TaxonomyPhone && f.Attr("maxlength") != ""
}

func (PhoneTransformer) Transform(f model.FieldContext, _ model.AnswerValue, t Target) Target {
	limit, err := strconv.Atoi(f.Attr("maxlength"))
	if err != nil || limit <= 0 {
		return t
	}
	var b strings.Builder
	for _, r := range t.Value {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) > limit {
		digits = digits[len(digits)-limit:]
	}
	if digits == "" {
		return t
	}
	out := t
	out.Value = digits
	return out.withAliases(t.Value)
}

// BooleanTransformer maps yes/no answers onto checkbox state or onto the
// wording a choice control uses.
type BooleanTransformer struct{}

func (BooleanTransformer) Name() string { return "boolean" }

func (BooleanTransformer) CanTransform(_ model.FieldContext, a model.AnswerValue) bool {
	return normalize.KindFor(a.Type) == normalize.KindBoolean
}

func (BooleanTransformer) Transform(f model.FieldContext, _ model.AnswerValue, t Target) Target {
	r := normalize.Local(normalize.KindBoolean, t.Value)
	if !r.OK() {
		return t
	}
	yes := r.Value == "Yes"
	out := t
	if f.Widget.Kind == model.WidgetCheckbox {
		out.Value = strconv.FormatBool(yes)
		return out
	}
	out.Value = r.Value
	if yes {
		return out.withAliases("Y", "True", "I am", "I do", t.Value)
	}
	return out.withAliases("N", "False", "I am not", "I do not", t.Value)
}

// RegionTransformer converts between state or country names and codes.
type RegionTransformer struct{}

func (RegionTransformer) Name() string { return "region" }

func (RegionTransformer) CanTransform(_ model.FieldContext, a model.AnswerValue) bool {
	return a.Type == model.TaxonomyState || a.Type == model.TaxonomyCountry
}

func (RegionTransformer) Transform(f model.FieldContext, a model.AnswerValue, t Target) Target {
	table, aliases := usStates, map[string]string(nil)
	if a.Type == model.TaxonomyCountry {
		table, aliases = countries, countryAliases
	}
	forms := regionForms(table, aliases, t.Value)
	if len(forms) == 0 {
		return t
	}
	out := t
	if f.Attr("maxlength") == "2" {
		out.Value = forms[0]
	}
	return out.withAliases(forms...)
}
