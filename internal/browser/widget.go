package browser

import (
	"strings"

	"github.com/sells-group/formpilot/internal/model"
)

// rawField is one control as reported by the scan script.
type rawField struct {
	Path       []model.PathStep  `json:"path"`
	Selector   string            `json:"selector"`
	Tag        string            `json:"tag"`
	Type       string            `json:"type"`
	Role       string            `json:"role"`
	Editable   bool              `json:"editable"`
	Attributes map[string]string `json:"attributes"`
	Label      string            `json:"label"`
	Section    string            `json:"section"`
	Options    []string          `json:"options"`
	Value      string            `json:"value"`
	FormID     string            `json:"form_id"`
	Listbox    string            `json:"listbox"`
}

var skippedInputTypes = map[string]bool{
	"hidden": true, "submit": true, "button": true, "reset": true, "image": true,
}

// fillable reports whether the scan should emit the control at all.
func (r rawField) fillable() bool {
	return !(r.Tag == "input" && skippedInputTypes[strings.ToLower(r.Type)])
}

// signature derives the interaction mechanics of a control.
func signature(r rawField) model.WidgetSignature {
	sig := model.WidgetSignature{Role: r.Role, Attributes: r.Attributes}
	typ := strings.ToLower(r.Type)
	autocomplete := strings.ToLower(r.Attributes["aria-autocomplete"])
	popup := strings.ToLower(r.Attributes["aria-haspopup"])

	if r.Listbox != "" {
		sig.OptionLocator = r.Listbox + ` [role="option"]`
	}

	switch {
	case r.Tag == "select":
		sig.Kind = model.WidgetSelect
		sig.InteractionPlan = model.PlanDirectSet
	case r.Role == "combobox" || autocomplete == "list" || autocomplete == "both" || popup == "listbox":
		sig.Kind = model.WidgetCombobox
		if r.Tag == "input" || r.Editable {
			sig.InteractionPlan = model.PlanTypeToSearchEnter
			sig.PartialInputSensitive = autocomplete == "list" || autocomplete == "both"
		} else {
			sig.InteractionPlan = model.PlanOpenDropdownClickOption
		}
	case r.Tag == "textarea":
		sig.Kind = model.WidgetTextarea
		sig.InteractionPlan = model.PlanNativeSetterWithEvents
	case r.Tag == "input" && typ == "checkbox":
		sig.Kind = model.WidgetCheckbox
		sig.InteractionPlan = model.PlanNativeSetterWithEvents
	case r.Tag == "input" && typ == "radio":
		sig.Kind = model.WidgetRadio
		sig.InteractionPlan = model.PlanNativeSetterWithEvents
	case r.Tag == "input" && typ == "file":
		sig.Kind = model.WidgetFile
	case r.Tag == "input" && (typ == "date" || typ == "month"):
		sig.Kind = model.WidgetDate
		sig.InteractionPlan = model.PlanNativeSetterWithEvents
	case r.Tag == "input":
		sig.Kind = model.WidgetText
		sig.InteractionPlan = model.PlanNativeSetterWithEvents
	case r.Editable:
		sig.Kind = model.WidgetEditable
		sig.InteractionPlan = model.PlanNativeSetterWithEvents
	default:
		sig.Kind = model.WidgetUnsupported
	}
	return sig
}

// toFieldContexts converts scan output into snapshots in document order.
func toFieldContexts(raws []rawField) []model.FieldContext {
	out := make([]model.FieldContext, 0, len(raws))
	for _, r := range raws {
		if !r.fillable() {
			continue
		}
		attrs := make(map[string]string, len(r.Attributes)+1)
		for k, v := range r.Attributes {
			attrs[strings.ToLower(k)] = v
		}
		if r.Type != "" {
			attrs["type"] = strings.ToLower(r.Type)
		}
		loc := model.Locator{Path: r.Path, Selector: r.Selector}
		f := model.FieldContext{
			ID:            loc.Key(),
			FormID:        r.FormID,
			LabelText:     strings.TrimSpace(r.Label),
			SectionTitle:  strings.TrimSpace(r.Section),
			Attributes:    attrs,
			Options:       r.Options,
			Locator:       loc,
			Widget:        signature(r),
			DocumentIndex: len(out),
			CurrentValue:  r.Value,
		}
		out = append(out, f)
	}
	return out
}
