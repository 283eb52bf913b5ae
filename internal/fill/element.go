// Package fill writes planned answers into live form controls and undoes
// those writes. Controls are reached through the Page and Element
// contracts, re-resolved from a Locator for every operation.
package fill

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/formpilot/internal/model"
)

// ErrNotFound means a locator no longer resolves to a control.
var ErrNotFound = eris.New("fill: element not found")

// Option is one selectable entry of a native select, custom dropdown or
// radio group.
type Option struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
	Value string `json:"value,omitempty"`
}

// Element is a live handle to one control. It is only valid for the
// operation that resolved it.
type Element interface {
	// Value returns the current value. Checkboxes report "true" or "false";
	// radio groups and dropdowns report the selected option text.
	Value(ctx context.Context) (string, error)
	// SetValue assigns the value property directly.
	SetValue(ctx context.Context, v string) error
	// SetValueNative writes through the platform value setter and then
	// dispatches input and change events, plus blur when requested.
	SetValueNative(ctx context.Context, v string, blur bool) error
	SetChecked(ctx context.Context, checked bool) error
	Click(ctx context.Context) error
	// Options lists the currently visible options. optionSelector narrows
	// the search for custom widgets and may be empty.
	Options(ctx context.Context, optionSelector string) ([]Option, error)
	SelectOption(ctx context.Context, o Option) error
	// Type enters text through key events, one character at a time when
	// perChar is set.
	Type(ctx context.Context, text string, perChar bool, delay time.Duration) error
	PressEnter(ctx context.Context) error
	// Dismiss closes an opened popup without selecting anything.
	Dismiss(ctx context.Context) error
}

// Page resolves locators against the current document.
type Page interface {
	Resolve(ctx context.Context, loc model.Locator) (Element, error)
}

// writeTracker records whether a filler issued any call that can change
// the control. Opening and dismissing popups do not count.
type writeTracker struct {
	Element
	wrote bool
}

func (w *writeTracker) SetValue(ctx context.Context, v string) error {
	w.wrote = true
	return w.Element.SetValue(ctx, v)
}

func (w *writeTracker) SetValueNative(ctx context.Context, v string, blur bool) error {
	w.wrote = true
	return w.Element.SetValueNative(ctx, v, blur)
}

func (w *writeTracker) SetChecked(ctx context.Context, checked bool) error {
	w.wrote = true
	return w.Element.SetChecked(ctx, checked)
}

func (w *writeTracker) SelectOption(ctx context.Context, o Option) error {
	w.wrote = true
	return w.Element.SelectOption(ctx, o)
}

func (w *writeTracker) Type(ctx context.Context, text string, perChar bool, delay time.Duration) error {
	w.wrote = true
	return w.Element.Type(ctx, text, perChar, delay)
}

func (w *writeTracker) PressEnter(ctx context.Context) error {
	w.wrote = true
	return w.Element.PressEnter(ctx)
}
