package model

import (
	"strings"
)

// InteractionPlan names the strategy used to write a value into a widget.
type InteractionPlan string

const (
	PlanDirectSet               InteractionPlan = "directSet"
	PlanNativeSetterWithEvents  InteractionPlan = "nativeSetterWithEvents"
	PlanOpenDropdownClickOption InteractionPlan = "openDropdownClickOption"
	PlanTypeToSearchEnter       InteractionPlan = "typeToSearchEnter"
)

// AllInteractionPlans returns the four supported strategies.
func AllInteractionPlans() []InteractionPlan {
	return []InteractionPlan{
		PlanDirectSet,
		PlanNativeSetterWithEvents,
		PlanOpenDropdownClickOption,
		PlanTypeToSearchEnter,
	}
}

// WidgetKind is the broad control family of a field.
type WidgetKind string

const (
	WidgetText        WidgetKind = "text"
	WidgetTextarea    WidgetKind = "textarea"
	WidgetSelect      WidgetKind = "select"
	WidgetCheckbox    WidgetKind = "checkbox"
	WidgetRadio       WidgetKind = "radio"
	WidgetDate        WidgetKind = "date"
	WidgetCombobox    WidgetKind = "combobox"
	WidgetFile        WidgetKind = "file"
	WidgetEditable    WidgetKind = "contenteditable"
	WidgetUnsupported WidgetKind = "unsupported"
)

// WidgetSignature describes how to interact with a field, independent of
// what the field means.
type WidgetSignature struct {
	Kind            WidgetKind        `json:"kind"`
	Role            string            `json:"role,omitempty"`
	Attributes      map[string]string `json:"attributes,omitempty"`
	InteractionPlan InteractionPlan   `json:"interaction_plan"`
	OptionLocator   string            `json:"option_locator,omitempty"`
	// PartialInputSensitive marks search widgets that react badly to one-shot
	// assignment and need per-character typing.
	PartialInputSensitive bool `json:"partial_input_sensitive,omitempty"`
}

// PathStepKind distinguishes frame hops from shadow-root hops.
type PathStepKind string

const (
	StepFrame  PathStepKind = "frame"
	StepShadow PathStepKind = "shadow"
)

// PathStep enters one nested frame or shadow root on the way to a field.
type PathStep struct {
	Kind     PathStepKind `json:"kind"`
	Selector string       `json:"selector"`
}

// Locator is an opaque, re-resolvable address of a field: the path through
// nested frames and shadow roots plus a selector inside the last scope.
type Locator struct {
	Path     []PathStep `json:"path,omitempty"`
	Selector string     `json:"selector"`
}

// Key renders the locator as a stable string, usable as a field identifier.
func (l Locator) Key() string {
	var b strings.Builder
	for _, s := range l.Path {
		b.WriteString(string(s.Kind))
		b.WriteByte(':')
		b.WriteString(s.Selector)
		b.WriteString(" >> ")
	}
	b.WriteString(l.Selector)
	return b.String()
}

// FieldContext is a scan-time snapshot of one field. It holds no handle to
// the live element; Locator is re-resolved when the field is filled.
type FieldContext struct {
	ID            string            `json:"id"`
	FormID        string            `json:"form_id,omitempty"`
	LabelText     string            `json:"label_text"`
	SectionTitle  string            `json:"section_title,omitempty"`
	Attributes    map[string]string `json:"attributes,omitempty"`
	Options       []string          `json:"options,omitempty"`
	Locator       Locator           `json:"locator"`
	Widget        WidgetSignature   `json:"widget"`
	DocumentIndex int               `json:"document_index"`
	CurrentValue  string            `json:"current_value,omitempty"`
}

// Key returns ID when set, otherwise the locator key.
func (f FieldContext) Key() string {
	if f.ID != "" {
		return f.ID
	}
	return f.Locator.Key()
}

// Attr returns the lowercase-named attribute value, or "".
func (f FieldContext) Attr(name string) string {
	if f.Attributes == nil {
		return ""
	}
	return f.Attributes[strings.ToLower(name)]
}

// InputType returns the lowercase input type attribute.
func (f FieldContext) InputType() string {
	return strings.ToLower(f.Attr("type"))
}

// CandidateType is one parser's vote for a field's taxonomy.
type CandidateType struct {
	Type    Taxonomy `json:"type"`
	Score   float64  `json:"score"`
	Reasons []string `json:"reasons,omitempty"`
	Parser  string   `json:"parser,omitempty"`
	// Priority of the producing parser, used for tie-breaks.
	Priority int `json:"priority,omitempty"`
}

// Classification is the merged outcome for one field.
type Classification struct {
	FieldID    string          `json:"field_id"`
	Type       Taxonomy        `json:"type"`
	Score      float64         `json:"score"`
	Reasons    []string        `json:"reasons,omitempty"`
	Candidates []CandidateType `json:"candidates,omitempty"`
}

// Known reports whether the field resolved to something other than UNKNOWN.
func (c Classification) Known() bool {
	return c.Type != "" && c.Type != TaxonomyUnknown
}
