package fill

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/formpilot/internal/model"
)

// ErrNoOption means no offered option matched the target value.
var ErrNoOption = eris.New("fill: no matching option")

// Timing tunes strategies that wait on the page.
type Timing struct {
	OptionWait time.Duration
	PollEvery  time.Duration
	TypeDelay  time.Duration
}

func (t Timing) withDefaults() Timing {
	if t.OptionWait <= 0 {
		t.OptionWait = 1500 * time.Millisecond
	}
	if t.PollEvery <= 0 {
		t.PollEvery = 50 * time.Millisecond
	}
	if t.TypeDelay < 0 {
		t.TypeDelay = 0
	}
	return t
}

// Filler is one interaction strategy.
type Filler interface {
	Plan() model.InteractionPlan
	CanFill(f model.FieldContext) bool
	Fill(ctx context.Context, el Element, f model.FieldContext, t Target) (string, error)
}

// Registry dispatches a field to the filler named by its interaction plan,
// falling back to the first filler able to handle the widget.
type Registry struct {
	mu      sync.RWMutex
	fillers []Filler
}

// NewRegistry returns a registry holding fs in order.
func NewRegistry(fs ...Filler) *Registry {
	return &Registry{fillers: fs}
}

// DefaultRegistry holds the four built-in strategies.
func DefaultRegistry(timing Timing) *Registry {
	timing = timing.withDefaults()
	return NewRegistry(
		&DirectSetFiller{},
		&NativeSetterFiller{},
		&DropdownFiller{timing: timing},
		&TypeToSearchFiller{timing: timing},
	)
}

// Register appends f.
func (r *Registry) Register(f Filler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fillers = append(r.fillers, f)
}

// For returns the filler for f.
func (r *Registry) For(f model.FieldContext) (Filler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if plan := f.Widget.InteractionPlan; plan != "" {
		for _, fl := range r.fillers {
			if fl.Plan() == plan && fl.CanFill(f) {
				return fl, nil
			}
		}
	}
	for _, fl := range r.fillers {
		if fl.CanFill(f) {
			return fl, nil
		}
	}
	return nil, eris.Errorf("fill: no strategy for widget %q", f.Widget.Kind)
}

// DirectSetFiller assigns the value property. Native selects choose the
// matching option first.
type DirectSetFiller struct{}

func (*DirectSetFiller) Plan() model.InteractionPlan { return model.PlanDirectSet }

func (*DirectSetFiller) CanFill(f model.FieldContext) bool {
	switch f.Widget.Kind {
	case model.WidgetText, model.WidgetTextarea, model.WidgetDate, model.WidgetSelect, "":
		return true
	}
	return false
}

func (*DirectSetFiller) Fill(ctx context.Context, el Element, f model.FieldContext, t Target) (string, error) {
	if f.Widget.Kind == model.WidgetSelect {
		opts, err := el.Options(ctx, "")
		if err != nil {
			return "", eris.Wrap(err, "fill: list select options")
		}
		m, ok := MatchOption(opts, t.Value, t.Aliases)
		if !ok {
			return "", ErrNoOption
		}
		if err := el.SelectOption(ctx, m.Option); err != nil {
			return "", eris.Wrap(err, "fill: select option")
		}
		return readBack(ctx, el, m.Option.Text)
	}
	if err := el.SetValue(ctx, t.Value); err != nil {
		return "", eris.Wrap(err, "fill: set value")
	}
	return readBack(ctx, el, t.Value)
}

// NativeSetterFiller writes through the platform setter and dispatches
// events so framework-managed inputs observe the change.
type NativeSetterFiller struct{}

func (*NativeSetterFiller) Plan() model.InteractionPlan { return model.PlanNativeSetterWithEvents }

func (*NativeSetterFiller) CanFill(f model.FieldContext) bool {
	switch f.Widget.Kind {
	case model.WidgetText, model.WidgetTextarea, model.WidgetDate, model.WidgetEditable,
		model.WidgetCheckbox, model.WidgetRadio, "":
		return true
	}
	return false
}

func (*NativeSetterFiller) Fill(ctx context.Context, el Element, f model.FieldContext, t Target) (string, error) {
	switch f.Widget.Kind {
	case model.WidgetCheckbox:
		checked, err := strconv.ParseBool(t.Value)
		if err != nil {
			return "", eris.Wrapf(err, "fill: checkbox value %q", t.Value)
		}
		if err := el.SetChecked(ctx, checked); err != nil {
			return "", eris.Wrap(err, "fill: set checked")
		}
		return readBack(ctx, el, t.Value)
	case model.WidgetRadio:
		opts, err := el.Options(ctx, f.Widget.OptionLocator)
		if err != nil {
			return "", eris.Wrap(err, "fill: list radio options")
		}
		m, ok := MatchOption(opts, t.Value, t.Aliases)
		if !ok {
			return "", ErrNoOption
		}
		if err := el.SelectOption(ctx, m.Option); err != nil {
			return "", eris.Wrap(err, "fill: choose radio")
		}
		return readBack(ctx, el, m.Option.Text)
	}
	if err := el.SetValueNative(ctx, t.Value, true); err != nil {
		return "", eris.Wrap(err, "fill: native set")
	}
	return readBack(ctx, el, t.Value)
}

// DropdownFiller opens a custom dropdown and clicks the matching option.
// When nothing matches it closes the popup and fails.
type DropdownFiller struct {
	timing Timing
}

func (*DropdownFiller) Plan() model.InteractionPlan { return model.PlanOpenDropdownClickOption }

func (*DropdownFiller) CanFill(f model.FieldContext) bool {
	switch f.Widget.Kind {
	case model.WidgetSelect, model.WidgetCombobox:
		return true
	}
	return false
}

func (d *DropdownFiller) Fill(ctx context.Context, el Element, f model.FieldContext, t Target) (string, error) {
	if err := el.Click(ctx); err != nil {
		return "", eris.Wrap(err, "fill: open dropdown")
	}
	opts := waitOptions(ctx, el, f.Widget.OptionLocator, d.timing)
	m, ok := MatchOption(opts, t.Value, t.Aliases)
	if !ok {
		if err := el.Dismiss(ctx); err != nil {
			zap.L().Debug("fill: dismiss dropdown failed", zap.String("field", f.Key()), zap.Error(err))
		}
		return "", ErrNoOption
	}
	if err := el.SelectOption(ctx, m.Option); err != nil {
		return "", eris.Wrap(err, "fill: click option")
	}
	return readBack(ctx, el, m.Option.Text)
}

// TypeToSearchFiller types into a filtering input, waits for options and
// picks the match, or presses Enter when the widget shows none.
type TypeToSearchFiller struct {
	timing Timing
}

func (*TypeToSearchFiller) Plan() model.InteractionPlan { return model.PlanTypeToSearchEnter }

func (*TypeToSearchFiller) CanFill(f model.FieldContext) bool {
	return f.Widget.Kind == model.WidgetCombobox
}

func (s *TypeToSearchFiller) Fill(ctx context.Context, el Element, f model.FieldContext, t Target) (string, error) {
	if err := el.SetValueNative(ctx, "", false); err != nil {
		return "", eris.Wrap(err, "fill: clear search")
	}
	if err := el.Type(ctx, t.Value, f.Widget.PartialInputSensitive, s.timing.TypeDelay); err != nil {
		return "", eris.Wrap(err, "fill: type search")
	}
	opts := waitOptions(ctx, el, f.Widget.OptionLocator, s.timing)
	if m, ok := MatchOption(opts, t.Value, t.Aliases); ok {
		if err := el.SelectOption(ctx, m.Option); err != nil {
			return "", eris.Wrap(err, "fill: pick filtered option")
		}
		return readBack(ctx, el, m.Option.Text)
	}
	if len(opts) > 0 {
		return "", ErrNoOption
	}
	if err := el.PressEnter(ctx); err != nil {
		return "", eris.Wrap(err, "fill: submit search")
	}
	return readBack(ctx, el, t.Value)
}

// waitOptions polls until options appear or the wait elapses.
func waitOptions(ctx context.Context, el Element, selector string, timing Timing) []Option {
	deadline := time.Now().Add(timing.OptionWait)
	for {
		opts, err := el.Options(ctx, selector)
		if err == nil && len(opts) > 0 {
			return opts
		}
		if time.Now().After(deadline) {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(timing.PollEvery):
		}
	}
}

// readBack returns the control's value after a write, or fallback when it
// cannot be read.
func readBack(ctx context.Context, el Element, fallback string) (string, error) {
	v, err := el.Value(ctx)
	if err != nil {
		return fallback, nil
	}
	return v, nil
}
