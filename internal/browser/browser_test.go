package browser

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/formpilot/internal/config"
	"github.com/sells-group/formpilot/internal/fill"
	"github.com/sells-group/formpilot/internal/model"
)

const formHTML = `<!doctype html>
<html><body>
<form id="apply">
  <h2>Personal</h2>
  <label for="first">First Name</label><input id="first" name="first_name" autocomplete="given-name">
  <label for="state">State</label>
  <select id="state"><option>Select...</option><option value="TX">Texas</option></select>
  <fieldset><legend>Gender</legend>
    <label><input type="radio" name="g" value="m">Male</label>
    <label><input type="radio" name="g" value="f">Female</label>
  </fieldset>
  <input type="hidden" name="csrf" value="x">
  <x-city></x-city>
</form>
<script>
  customElements.define('x-city', class extends HTMLElement {
    constructor() {
      super();
      const root = this.attachShadow({mode: 'open'});
      root.innerHTML = '<label for="city">City</label><input id="city">';
    }
  });
</script>
</body></html>`

func openTestBrowser(t *testing.T) (*Browser, int) {
	t.Helper()
	if os.Getenv("FORMPILOT_BROWSER_TESTS") != "1" {
		t.Skip("set FORMPILOT_BROWSER_TESTS=1 to run browser tests")
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(formHTML))
	}))
	t.Cleanup(srv.Close)

	ctx := context.Background()
	b, err := Open(ctx, config.BrowserConfig{Headless: true, NavigationTimeoutSecs: 20})
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() }) //nolint:errcheck

	tab, err := b.NewTab(ctx, srv.URL)
	require.NoError(t, err)
	return b, tab
}

func fieldByLabel(fields []model.FieldContext, label string) (model.FieldContext, bool) {
	for _, f := range fields {
		if f.LabelText == label {
			return f, true
		}
	}
	return model.FieldContext{}, false
}

func TestBrowser_ScanAndFill(t *testing.T) {
	b, tab := openTestBrowser(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	page, err := b.Page(ctx, tab)
	require.NoError(t, err)
	fields, err := page.Scan(ctx)
	require.NoError(t, err)

	first, ok := fieldByLabel(fields, "First Name")
	require.True(t, ok)
	assert.Equal(t, "Personal", first.SectionTitle)
	assert.Equal(t, "apply", first.FormID)

	gender, ok := fieldByLabel(fields, "Gender")
	require.True(t, ok)
	assert.Equal(t, model.WidgetRadio, gender.Widget.Kind)
	assert.Equal(t, []string{"Male", "Female"}, gender.Options)

	city, ok := fieldByLabel(fields, "City")
	require.True(t, ok)
	require.Len(t, city.Locator.Path, 1)
	assert.Equal(t, model.StepShadow, city.Locator.Path[0].Kind)

	ex := fill.NewExecutor(fill.Options{Timing: fill.DefaultTiming(500, 0)})
	state, ok := fieldByLabel(fields, "State")
	require.True(t, ok)

	plans := []model.FillPlan{
		{Field: first, Answer: model.NewAnswerValue("a1", model.TaxonomyFirstName, "Jane", time.Now()), Confidence: 0.9},
		{Field: state, Answer: model.NewAnswerValue("a2", model.TaxonomyState, "TX", time.Now()), Confidence: 0.9},
		{Field: city, Answer: model.NewAnswerValue("a3", model.TaxonomyCity, "Austin", time.Now()), Confidence: 0.9},
		{Field: gender, Answer: model.NewAnswerValue("a4", model.TaxonomyEEOGender, "Female", time.Now()), Confidence: 0.9},
	}
	batch := ex.ApplyAll(ctx, page, plans)
	for _, r := range batch.Results {
		assert.True(t, r.Success, "%s: %s", r.FieldID, r.Error)
	}
	assert.Equal(t, 4, batch.Filled)

	el, err := page.Resolve(ctx, city.Locator)
	require.NoError(t, err)
	v, err := el.Value(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Austin", v)

	undone := ex.UndoAll(ctx, page, batch.Results)
	for _, r := range undone {
		assert.True(t, r.Success, "%s: %s", r.FieldID, r.Error)
	}
	el, err = page.Resolve(ctx, first.Locator)
	require.NoError(t, err)
	v, err = el.Value(ctx)
	require.NoError(t, err)
	assert.Equal(t, "", v)
}

func TestBrowser_ResolveMissing(t *testing.T) {
	b, tab := openTestBrowser(t)
	ctx := context.Background()

	page, err := b.Page(ctx, tab)
	require.NoError(t, err)
	_, err = page.Resolve(ctx, model.Locator{Selector: "#nope"})
	assert.True(t, eris.Is(err, fill.ErrNotFound))

	_, err = b.Page(ctx, tab+100)
	assert.True(t, eris.Is(err, ErrUnknownTab))
}
