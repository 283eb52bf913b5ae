// Package badge tracks the per-field indicator state shown next to form
// controls and the undo history of fill invocations.
package badge

import (
	"sync"

	"github.com/rotisserie/eris"

	"github.com/sells-group/formpilot/internal/model"
)

// State is the indicator shown for a field.
type State string

const (
	StateNone      State = ""
	StateFilled    State = "filled"
	StateSuggest   State = "suggest"
	StateSensitive State = "sensitive"
	StatePending   State = "pending"
)

// ErrNothingToUndo means the field or batch has no reversible fill.
var ErrNothingToUndo = eris.New("badge: nothing to undo")

// Badge is the current state of one field.
type Badge struct {
	FieldID    string              `json:"field_id"`
	State      State               `json:"state"`
	AnswerID   string              `json:"answer_id,omitempty"`
	CanUndo    bool                `json:"can_undo"`
	Candidates []model.AnswerValue `json:"candidates,omitempty"`
	Value      string              `json:"value,omitempty"`
	// Result is the fill that produced a filled badge.
	Result *model.FillResult `json:"result,omitempty"`
}

// Undoer reverts fill results against the live page.
type Undoer interface {
	Undo(r model.FillResult) model.FillResult
}

// UndoerFunc adapts a function to Undoer.
type UndoerFunc func(r model.FillResult) model.FillResult

// Undo calls f.
func (f UndoerFunc) Undo(r model.FillResult) model.FillResult { return f(r) }

// Board holds the badges of one page. It is safe for concurrent use.
type Board struct {
	mu      sync.Mutex
	badges  map[string]*Badge
	batches [][]model.FillResult
}

// NewBoard returns an empty board.
func NewBoard() *Board {
	return &Board{badges: make(map[string]*Badge)}
}

// Get returns a copy of a field's badge.
func (b *Board) Get(fieldID string) Badge {
	b.mu.Lock()
	defer b.mu.Unlock()
	if bg, ok := b.badges[fieldID]; ok {
		return *bg
	}
	return Badge{FieldID: fieldID}
}

// All returns copies of every badge.
func (b *Board) All() []Badge {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Badge, 0, len(b.badges))
	for _, bg := range b.badges {
		out = append(out, *bg)
	}
	return out
}

// ApplyBatch records one fill invocation. Successful results become
// filled badges; the batch becomes the newest entry of the undo stack.
func (b *Board) ApplyBatch(results []model.FillResult) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var batch []model.FillResult
	for i := range results {
		r := results[i]
		if r.Success {
			b.badges[r.FieldID] = &Badge{
				FieldID:  r.FieldID,
				State:    StateFilled,
				AnswerID: r.AnswerID,
				CanUndo:  true,
				Result:   &r,
			}
		}
		if r.Mutated {
			batch = append(batch, r)
		}
	}
	if len(batch) > 0 {
		b.batches = append(b.batches, batch)
	}
}

// Suggest marks a recognized field that was not filled.
func (b *Board) Suggest(fieldID string, candidates []model.AnswerValue) {
	b.set(&Badge{FieldID: fieldID, State: StateSuggest, Candidates: candidates})
}

// Sensitive marks a sensitive field awaiting confirmation.
func (b *Board) Sensitive(fieldID string, candidates []model.AnswerValue) {
	b.set(&Badge{FieldID: fieldID, State: StateSensitive, Candidates: candidates})
}

// Pending marks a field the user edited whose value is not yet committed.
func (b *Board) Pending(fieldID, value string) {
	b.set(&Badge{FieldID: fieldID, State: StatePending, Value: value})
}

// Clear removes a field's badge.
func (b *Board) Clear(fieldID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.badges, fieldID)
}

func (b *Board) set(bg *Badge) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.badges[bg.FieldID] = bg
}

// UndoField reverts one filled field. On success the badge stays filled
// but can no longer be undone.
func (b *Board) UndoField(fieldID string, u Undoer) (model.FillResult, error) {
	b.mu.Lock()
	bg, ok := b.badges[fieldID]
	if !ok || bg.State != StateFilled || !bg.CanUndo || bg.Result == nil {
		b.mu.Unlock()
		return model.FillResult{}, eris.Wrapf(ErrNothingToUndo, "badge: field %s", fieldID)
	}
	r := *bg.Result
	b.mu.Unlock()

	out := u.Undo(r)
	if out.Success {
		b.mu.Lock()
		if cur, ok := b.badges[fieldID]; ok && cur.Result != nil && cur.Result.AnswerID == r.AnswerID {
			cur.CanUndo = false
		}
		b.mu.Unlock()
	}
	return out, nil
}

// UndoLastBatch reverts every written field of the most recent fill
// invocation in reverse order, whatever per-field undo already did, and
// drops that batch from the stack.
func (b *Board) UndoLastBatch(u Undoer) ([]model.FillResult, error) {
	b.mu.Lock()
	if len(b.batches) == 0 {
		b.mu.Unlock()
		return nil, ErrNothingToUndo
	}
	todo := b.batches[len(b.batches)-1]
	b.batches = b.batches[:len(b.batches)-1]
	b.mu.Unlock()

	out := make([]model.FillResult, 0, len(todo))
	for i := len(todo) - 1; i >= 0; i-- {
		res := u.Undo(todo[i])
		out = append(out, res)
		if res.Success {
			b.mu.Lock()
			if bg, ok := b.badges[todo[i].FieldID]; ok && bg.State == StateFilled {
				delete(b.badges, todo[i].FieldID)
			}
			b.mu.Unlock()
		}
	}
	return out, nil
}

// Batches returns the depth of the undo stack.
func (b *Board) Batches() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.batches)
}
