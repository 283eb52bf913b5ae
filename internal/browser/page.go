package browser

import (
	"context"
	"encoding/json"

	"github.com/go-rod/rod"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/formpilot/internal/fill"
	"github.com/sells-group/formpilot/internal/model"
)

// scanJS walks the document, same-origin frames and open shadow roots and
// returns every form control with its path, label and section.
const scanJS = `() => {
  const out = [];
  const esc = (s) => (window.CSS && CSS.escape) ? CSS.escape(s) : s.replace(/[^\w-]/g, '\\$&');
  const text = (n) => (n ? (n.innerText || n.textContent || '') : '').replace(/\s+/g, ' ').trim();

  const selectorIn = (el, root) => {
    if (el.id && root.querySelectorAll('#' + esc(el.id)).length === 1) return '#' + esc(el.id);
    const parts = [];
    let n = el;
    while (n && n.nodeType === 1 && n !== root && n !== root.host) {
      let part = n.tagName.toLowerCase();
      const parent = n.parentNode;
      if (parent && parent.children) {
        const same = Array.from(parent.children).filter(c => c.tagName === n.tagName);
        if (same.length > 1) part += ':nth-of-type(' + (same.indexOf(n) + 1) + ')';
      }
      parts.unshift(part);
      if (parent && parent.nodeType === 1 && parent.id && root.querySelectorAll('#' + esc(parent.id)).length === 1) {
        parts.unshift('#' + esc(parent.id));
        break;
      }
      n = parent;
    }
    return parts.join(' > ');
  };

  const labelFor = (el, root) => {
    const by = el.getAttribute('aria-labelledby');
    if (by) {
      const t = by.split(/\s+/).map(id => text(root.getElementById ? root.getElementById(id) : root.querySelector('#' + esc(id)))).join(' ').trim();
      if (t) return t;
    }
    if (el.labels && el.labels.length) return text(el.labels[0]);
    if (el.id) {
      const l = root.querySelector('label[for="' + esc(el.id) + '"]');
      if (l) return text(l);
    }
    const wrap = el.closest('label');
    if (wrap) return text(wrap);
    if (el.getAttribute('aria-label')) return el.getAttribute('aria-label');
    let n = el.parentElement;
    for (let i = 0; n && i < 3; i++, n = n.parentElement) {
      const cand = n.querySelector('label, legend, [class*="label" i], [class*="question" i]');
      if (cand && !cand.contains(el)) return text(cand);
    }
    return el.getAttribute('placeholder') || '';
  };

  const sectionFor = (el) => {
    const fs = el.closest('fieldset');
    if (fs) {
      const lg = fs.querySelector('legend');
      if (lg) return text(lg);
    }
    let n = el;
    while (n) {
      let p = n.previousElementSibling;
      while (p) {
        if (/^H[1-4]$/.test(p.tagName)) return text(p);
        const h = p.querySelector && p.querySelector('h1, h2, h3, h4');
        if (h) return text(h);
        p = p.previousElementSibling;
      }
      n = n.parentElement;
    }
    return '';
  };

  const attrs = (el) => {
    const a = {};
    for (const at of el.attributes) {
      if (at.name === 'style' || at.name === 'class' || at.name.startsWith('on')) continue;
      a[at.name.toLowerCase()] = String(at.value).slice(0, 200);
    }
    return a;
  };

  const valueOf = (el) => {
    if (el.type === 'checkbox') return String(el.checked);
    if (el.tagName === 'SELECT') { const o = el.options[el.selectedIndex]; return o ? o.text.trim() : ''; }
    if (el.isContentEditable) return text(el);
    return el.value || '';
  };

  const seenRadio = new Set();
  const visit = (root, path) => {
    const controls = root.querySelectorAll('input, select, textarea, [contenteditable="true"], [role="combobox"], [role="textbox"]');
    for (const el of controls) {
      const tag = el.tagName.toLowerCase();
      const type = (el.getAttribute('type') || '').toLowerCase();
      let options = [];
      if (tag === 'select') {
        options = Array.from(el.options).map(o => o.text.trim());
      } else if (type === 'radio') {
        const key = (el.form ? el.form.id : '') + '|' + el.name;
        if (el.name && seenRadio.has(key)) continue;
        seenRadio.add(key);
        const group = el.name ? root.querySelectorAll('input[type="radio"][name="' + esc(el.name) + '"]') : [el];
        options = Array.from(group).map(r => labelFor(r, root));
      }
      let listbox = '';
      const owns = el.getAttribute('aria-controls') || el.getAttribute('aria-owns');
      if (owns) listbox = '#' + esc(owns.split(/\s+/)[0]);
      let label = labelFor(el, root);
      if (type === 'radio') {
        const fs = el.closest('fieldset');
        const lg = fs && fs.querySelector('legend');
        const rg = el.closest('[role="radiogroup"]');
        label = lg ? text(lg) : (rg ? labelFor(rg, root) : label);
      }
      out.push({
        path, selector: selectorIn(el, root), tag, type,
        role: el.getAttribute('role') || '',
        editable: el.isContentEditable,
        attributes: attrs(el), label, section: sectionFor(el), options,
        value: valueOf(el), form_id: el.form ? (el.form.id || el.form.getAttribute('name') || '') : '',
        listbox,
      });
    }
    for (const host of root.querySelectorAll('*')) {
      if (host.shadowRoot) visit(host.shadowRoot, path.concat([{kind: 'shadow', selector: selectorIn(host, root)}]));
    }
    for (const fr of root.querySelectorAll('iframe, frame')) {
      let doc = null;
      try { doc = fr.contentDocument; } catch (e) { doc = null; }
      if (doc) visit(doc, path.concat([{kind: 'frame', selector: selectorIn(fr, root)}]));
    }
  };
  visit(document, []);
  return JSON.stringify(out);
}`

// Page adapts a rod page.
type Page struct {
	page *rod.Page
}

func newPage(p *rod.Page) *Page { return &Page{page: p} }

// URL returns the current document URL.
func (p *Page) URL() string {
	info, err := p.page.Info()
	if err != nil {
		zap.L().Debug("browser: page info", zap.Error(err))
		return ""
	}
	return info.URL
}

// Scan snapshots every form control of the page in document order.
func (p *Page) Scan(ctx context.Context) ([]model.FieldContext, error) {
	res, err := p.page.Context(ctx).Eval(scanJS)
	if err != nil {
		return nil, eris.Wrap(err, "browser: scan")
	}
	var raws []rawField
	if err := json.Unmarshal([]byte(res.Value.Str()), &raws); err != nil {
		return nil, eris.Wrap(err, "browser: decode scan")
	}
	fields := toFieldContexts(raws)
	zap.L().Debug("browser: scanned page", zap.Int("controls", len(raws)), zap.Int("fields", len(fields)))
	return fields, nil
}

type scope interface {
	Elements(selector string) (rod.Elements, error)
}

// Resolve walks the locator's frame and shadow path and returns the
// control it addresses now.
func (p *Page) Resolve(ctx context.Context, loc model.Locator) (fill.Element, error) {
	var cur scope = p.page.Context(ctx)
	for _, step := range loc.Path {
		host, err := first(cur, step.Selector)
		if err != nil {
			return nil, err
		}
		switch step.Kind {
		case model.StepFrame:
			frame, err := host.Frame()
			if err != nil {
				return nil, eris.Wrapf(fill.ErrNotFound, "frame %s: %v", step.Selector, err)
			}
			cur = frame.Context(ctx)
		case model.StepShadow:
			root, err := host.ShadowRoot()
			if err != nil {
				return nil, eris.Wrapf(fill.ErrNotFound, "shadow root %s: %v", step.Selector, err)
			}
			cur = root
		default:
			return nil, eris.Errorf("browser: unknown path step %q", step.Kind)
		}
	}
	el, err := first(cur, loc.Selector)
	if err != nil {
		return nil, err
	}
	return &Element{el: el}, nil
}

func first(s scope, selector string) (*rod.Element, error) {
	els, err := s.Elements(selector)
	if err != nil {
		return nil, eris.Wrapf(err, "browser: query %s", selector)
	}
	if len(els) == 0 {
		return nil, eris.Wrap(fill.ErrNotFound, selector)
	}
	return els.First(), nil
}
