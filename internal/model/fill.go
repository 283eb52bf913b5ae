package model

// PlanSource records how a plan's answer was found.
type PlanSource string

const (
	SourceObservation    PlanSource = "observation"
	SourceClassification PlanSource = "classification"
)

// FillPlan is the resolved intent to place Answer into Field.
type FillPlan struct {
	Field      FieldContext `json:"field"`
	Answer     AnswerValue  `json:"answer"`
	Confidence float64      `json:"confidence"`
	Source     PlanSource   `json:"source"`
	// Value is the answer text after widget-specific transformation. Empty
	// means Answer.Value is used as-is.
	Value string `json:"value,omitempty"`
}

// TargetValue is the text the executor writes.
func (p FillPlan) TargetValue() string {
	if p.Value != "" {
		return p.Value
	}
	return p.Answer.Value
}

// FillResult is the outcome of filling one field. PreviousValue is captured
// before any mutation so the fill can be undone even after partial failure.
type FillResult struct {
	FieldID       string          `json:"field_id"`
	AnswerID      string          `json:"answer_id,omitempty"`
	Success       bool            `json:"success"`
	Element       Locator         `json:"element"`
	Strategy      InteractionPlan `json:"strategy"`
	PreviousValue string          `json:"previous_value"`
	NewValue      string          `json:"new_value"`
	// Mutated is set once the control may have been written to. Undo
	// restores PreviousValue only for mutated results.
	Mutated bool   `json:"mutated"`
	Error   string `json:"error,omitempty"`
}

// BatchResult is the ordered outcome of one fill invocation.
type BatchResult struct {
	Results []FillResult `json:"results"`
	Filled  int          `json:"filled"`
}
