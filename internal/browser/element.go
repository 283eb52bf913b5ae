package browser

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rotisserie/eris"

	"github.com/sells-group/formpilot/internal/fill"
)

const valueJS = `function () {
  if (this.type === 'checkbox') return String(this.checked);
  if (this.type === 'radio') {
    const root = this.getRootNode();
    const group = this.name ? root.querySelectorAll('input[type="radio"][name="' + CSS.escape(this.name) + '"]') : [this];
    const on = Array.from(group).find(r => r.checked);
    if (!on) return '';
    if (on.labels && on.labels.length) return on.labels[0].innerText.trim();
    return on.value;
  }
  if (this.tagName === 'SELECT') { const o = this.options[this.selectedIndex]; return o ? o.text.trim() : ''; }
  if (this.isContentEditable) return this.innerText.trim();
  if ('value' in this) return this.value;
  return (this.innerText || '').trim();
}`

const setValueJS = `function (v) { this.value = v; }`

const nativeSetJS = `function (v, blur) {
  if (this.isContentEditable) {
    this.focus();
    this.innerText = v;
  } else {
    const proto = this instanceof HTMLTextAreaElement ? HTMLTextAreaElement.prototype
      : this instanceof HTMLSelectElement ? HTMLSelectElement.prototype
      : HTMLInputElement.prototype;
    const desc = Object.getOwnPropertyDescriptor(proto, 'value');
    if (desc && desc.set) desc.set.call(this, v); else this.value = v;
  }
  this.dispatchEvent(new Event('input', {bubbles: true}));
  this.dispatchEvent(new Event('change', {bubbles: true}));
  if (blur) {
    this.dispatchEvent(new Event('blur'));
    if (this.blur) this.blur();
  }
}`

const setCheckedJS = `function (c) {
  if (this.type !== 'checkbox' && this.type !== 'radio') throw new Error('not a checkbox');
  if (this.checked !== c) this.click();
  if (this.checked !== c) {
    this.checked = c;
    this.dispatchEvent(new Event('change', {bubbles: true}));
  }
}`

// optionNodesJS is shared by listing and selection so both see the same
// ordering.
const optionNodesJS = `
  const root = this.getRootNode();
  let nodes;
  if (this.tagName === 'SELECT') {
    nodes = Array.from(this.options);
  } else if (this.type === 'radio') {
    nodes = this.name ? Array.from(root.querySelectorAll('input[type="radio"][name="' + CSS.escape(this.name) + '"]')) : [this];
  } else {
    let sel = optionSelector;
    if (!sel) {
      const owns = this.getAttribute('aria-controls') || this.getAttribute('aria-owns');
      sel = owns ? '#' + CSS.escape(owns.split(/\s+/)[0]) + ' [role="option"]' : '[role="option"], [role="listbox"] li';
    }
    nodes = Array.from(root.querySelectorAll(sel)).concat(root === document ? [] : Array.from(document.querySelectorAll(sel)));
    nodes = nodes.filter(n => n.offsetParent !== null || n.getClientRects().length > 0);
  }
  const label = (n) => {
    if (n.tagName === 'OPTION') return n.text.trim();
    if (n.labels && n.labels.length) return n.labels[0].innerText.trim();
    return (n.innerText || n.textContent || n.value || '').replace(/\s+/g, ' ').trim();
  };
`

const optionsJS = `function (optionSelector) {` + optionNodesJS + `
  return JSON.stringify(nodes.map((n, i) => ({index: i, text: label(n), value: n.value || n.getAttribute('data-value') || ''})));
}`

const selectOptionJS = `function (optionSelector, index) {` + optionNodesJS + `
  const n = nodes[index];
  if (!n) throw new Error('option vanished');
  if (this.tagName === 'SELECT') {
    this.selectedIndex = index;
    this.dispatchEvent(new Event('input', {bubbles: true}));
    this.dispatchEvent(new Event('change', {bubbles: true}));
    return;
  }
  if (n.scrollIntoView) n.scrollIntoView({block: 'nearest'});
  n.dispatchEvent(new MouseEvent('mousedown', {bubbles: true}));
  n.click();
  n.dispatchEvent(new MouseEvent('mouseup', {bubbles: true}));
}`

const blurJS = `function () {
  this.dispatchEvent(new KeyboardEvent('keydown', {key: 'Escape', bubbles: true}));
  if (this.blur) this.blur();
}`

// Element adapts a rod element to fill.Element.
type Element struct {
	el *rod.Element
	// optionSelector is remembered from the last Options call so that
	// SelectOption indexes the same node list.
	optionSelector string
}

var _ fill.Element = (*Element)(nil)

func (e *Element) on(ctx context.Context) *rod.Element { return e.el.Context(ctx) }

// Value implements fill.Element.
func (e *Element) Value(ctx context.Context) (string, error) {
	res, err := e.on(ctx).Eval(valueJS)
	if err != nil {
		return "", eris.Wrap(err, "browser: read value")
	}
	return res.Value.Str(), nil
}

// SetValue implements fill.Element.
func (e *Element) SetValue(ctx context.Context, v string) error {
	_, err := e.on(ctx).Eval(setValueJS, v)
	return eris.Wrap(err, "browser: set value")
}

// SetValueNative implements fill.Element.
func (e *Element) SetValueNative(ctx context.Context, v string, blur bool) error {
	_, err := e.on(ctx).Eval(nativeSetJS, v, blur)
	return eris.Wrap(err, "browser: native set")
}

// SetChecked implements fill.Element.
func (e *Element) SetChecked(ctx context.Context, checked bool) error {
	_, err := e.on(ctx).Eval(setCheckedJS, checked)
	return eris.Wrap(err, "browser: set checked")
}

// Click implements fill.Element.
func (e *Element) Click(ctx context.Context) error {
	return eris.Wrap(e.on(ctx).Click(proto.InputMouseButtonLeft, 1), "browser: click")
}

// Options implements fill.Element.
func (e *Element) Options(ctx context.Context, optionSelector string) ([]fill.Option, error) {
	e.optionSelector = optionSelector
	res, err := e.on(ctx).Eval(optionsJS, optionSelector)
	if err != nil {
		return nil, eris.Wrap(err, "browser: list options")
	}
	var opts []fill.Option
	if err := json.Unmarshal([]byte(res.Value.Str()), &opts); err != nil {
		return nil, eris.Wrap(err, "browser: decode options")
	}
	return opts, nil
}

// SelectOption implements fill.Element.
func (e *Element) SelectOption(ctx context.Context, o fill.Option) error {
	_, err := e.on(ctx).Eval(selectOptionJS, e.optionSelector, o.Index)
	return eris.Wrapf(err, "browser: select option %q", o.Text)
}

// Type implements fill.Element.
func (e *Element) Type(ctx context.Context, text string, perChar bool, delay time.Duration) error {
	el := e.on(ctx)
	if err := el.Focus(); err != nil {
		return eris.Wrap(err, "browser: focus")
	}
	if !perChar {
		return eris.Wrap(el.Input(text), "browser: input")
	}
	for _, r := range text {
		if err := el.Input(string(r)); err != nil {
			return eris.Wrap(err, "browser: input")
		}
		if delay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return nil
}

// PressEnter implements fill.Element.
func (e *Element) PressEnter(ctx context.Context) error {
	return eris.Wrap(e.on(ctx).Type(input.Enter), "browser: press enter")
}

// Dismiss implements fill.Element.
func (e *Element) Dismiss(ctx context.Context) error {
	el := e.on(ctx)
	if err := el.Page().Keyboard.Type(input.Escape); err != nil {
		return eris.Wrap(err, "browser: escape")
	}
	_, err := el.Eval(blurJS)
	return eris.Wrap(err, "browser: blur")
}
