// Package engine wires the knowledge store, classification, planning,
// filling and learning components into the operations the bridge and CLI
// expose.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/formpilot/internal/badge"
	"github.com/sells-group/formpilot/internal/classify"
	"github.com/sells-group/formpilot/internal/config"
	"github.com/sells-group/formpilot/internal/fetcher"
	"github.com/sells-group/formpilot/internal/fill"
	"github.com/sells-group/formpilot/internal/knowledge"
	"github.com/sells-group/formpilot/internal/learn"
	"github.com/sells-group/formpilot/internal/llm"
	"github.com/sells-group/formpilot/internal/model"
	"github.com/sells-group/formpilot/internal/normalize"
	"github.com/sells-group/formpilot/internal/planner"
	"github.com/sells-group/formpilot/internal/remote"
	"github.com/sells-group/formpilot/internal/secure"
	"github.com/sells-group/formpilot/internal/session"
	"github.com/sells-group/formpilot/internal/store"
)

// ErrNoPages means the engine has no page source for DOM operations.
var ErrNoPages = eris.New("engine: no page source configured")

// Page is a live document the engine can scan and fill.
type Page interface {
	fill.Page
	URL() string
	Scan(ctx context.Context) ([]model.FieldContext, error)
}

// Pages hands out the live page shown in a tab.
type Pages interface {
	Page(ctx context.Context, tabID int) (Page, error)
}

// Deps are the collaborators an Engine is built from.
type Deps struct {
	Config *config.Config
	Store  store.Store
	State  *session.State
	// Fetcher defaults to an HTTP fetcher.
	Fetcher fetcher.Fetcher
	// Completer overrides the model built from the stored llmConfig.
	Completer llm.Completer
	// Pages is required for Fill and Undo.
	Pages Pages
}

// Engine is the application core.
type Engine struct {
	cfg       *config.Config
	kb        *knowledge.Store
	consent   *secure.ConsentGate
	vault     *secure.Vault
	state     *session.State
	fetcher   fetcher.Fetcher
	completer llm.Completer
	pages     Pages

	pipeline *classify.Pipeline
	remote   *remote.Classifier
	norm     *normalize.Normalizer
	planner  *planner.Planner
	executor *fill.Executor
	recorder *learn.Recorder
}

// New builds an engine. A sealed llmConfig that cannot be decrypted is a
// hard error.
func New(ctx context.Context, d Deps) (*Engine, error) {
	if d.Config == nil || d.Store == nil || d.State == nil {
		return nil, eris.New("engine: config, store and state are required")
	}
	cfg := d.Config

	e := &Engine{
		cfg:       cfg,
		kb:        knowledge.New(d.Store),
		consent:   secure.NewConsentGate(d.Store),
		vault:     secure.NewVault(d.Store, d.State.Keys()),
		state:     d.State,
		fetcher:   d.Fetcher,
		completer: d.Completer,
		pages:     d.Pages,
	}
	if e.fetcher == nil {
		e.fetcher = fetcher.NewHTTPFetcher(fetcher.HTTPOptions{})
	}
	if e.completer == nil {
		c, err := buildCompleter(ctx, cfg, e.vault, e.fetcher)
		if err != nil {
			return nil, err
		}
		if c != nil {
			e.completer = c
		}
	}

	merge, err := classify.ParseMergeStrategy(cfg.Classify.MergeStrategy)
	if err != nil {
		return nil, err
	}
	e.pipeline, err = classify.NewDefault(cfg.Classify.RulesPath,
		classify.WithThreshold(cfg.Classify.AcceptanceThreshold),
		classify.WithMergeStrategy(merge),
	)
	if err != nil {
		return nil, eris.Wrap(err, "engine: load classification rules")
	}

	e.remote = remote.NewClassifier(e.completer, e.consent, remote.Options{
		Enabled:       cfg.Classify.RemoteEnabled,
		Timeout:       cfg.Classify.RemoteTimeout(),
		MaxFields:     cfg.Classify.MaxRemoteFields,
		MaxFieldChars: cfg.Classify.MaxFieldChars,
	})
	e.norm = normalize.New(e.completer, e.consent, cfg.Classify.RemoteTimeout())
	e.planner = planner.New(e.kb, e.pipeline, e.remote, planner.Options{MinConfidence: cfg.Fill.MinConfidence})
	e.executor = fill.NewExecutor(fill.Options{
		Timing:    fill.DefaultTiming(cfg.Fill.OptionWaitMs, cfg.Fill.TypeDelayMs),
		MaxFanout: cfg.Fill.MaxFanout,
	})
	e.recorder = learn.New(e.kb, e.pipeline, e.consent, e.norm)

	zap.L().Info("engine: ready",
		zap.Bool("remote", e.completer != nil && cfg.Classify.RemoteEnabled),
		zap.String("merge", merge.Name()),
		zap.Float64("threshold", e.pipeline.Threshold()),
	)
	return e, nil
}

func buildCompleter(ctx context.Context, cfg *config.Config, vault *secure.Vault, f fetcher.Fetcher) (llm.Completer, error) {
	settings, found, err := llm.LoadSettings(ctx, vault)
	if err != nil {
		return nil, eris.Wrap(err, "engine: read llm settings")
	}
	if !found {
		return nil, nil
	}
	g, err := llm.New(cfg.LLM, settings, f, cfg.Classify.RemoteTimeout())
	if eris.Is(err, llm.ErrDisabled) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return g, nil
}

// Knowledge returns the knowledge store.
func (e *Engine) Knowledge() *knowledge.Store { return e.kb }

// Consent returns the consent gate.
func (e *Engine) Consent() *secure.ConsentGate { return e.consent }

// Vault returns the sealed document store.
func (e *Engine) Vault() *secure.Vault { return e.vault }

// State returns the lifecycle state.
func (e *Engine) State() *session.State { return e.state }

// Normalizer returns the value normalizer.
func (e *Engine) Normalizer() *normalize.Normalizer { return e.norm }

// Pipeline returns the local classification pipeline.
func (e *Engine) Pipeline() *classify.Pipeline { return e.pipeline }

// RemoteEnabled reports whether a remote model is configured.
func (e *Engine) RemoteEnabled() bool { return e.completer != nil && e.cfg.Classify.RemoteEnabled }

// Classify classifies fields locally, then asks the remote model about the
// ones left unknown.
func (e *Engine) Classify(ctx context.Context, fields []model.FieldContext) []model.Classification {
	out := e.pipeline.ClassifyAll(fields)
	var unknown []model.FieldContext
	var idx []int
	for i, c := range out {
		if !c.Known() {
			unknown = append(unknown, fields[i])
			idx = append(idx, i)
		}
	}
	if len(unknown) == 0 {
		return out
	}
	verdicts := e.remote.ClassifyBatch(ctx, unknown)
	if len(verdicts) == 0 {
		return out
	}
	withRemote := e.pipeline.WithParsers(classify.NewRemoteParser(verdicts))
	for _, i := range idx {
		out[i] = withRemote.Classify(fields[i])
	}
	return out
}

// Plan decides every field of a page without touching it.
func (e *Engine) Plan(ctx context.Context, url string, fields []model.FieldContext, mode planner.Mode) planner.Result {
	return e.planner.Plan(ctx, model.SiteKeyFromURL(url), fields, mode)
}

// FillOutcome is the result of one fill invocation.
type FillOutcome struct {
	Plan  planner.Result    `json:"plan"`
	Batch model.BatchResult `json:"batch"`
}

// Fill scans the page in a tab, plans it and fills the planned fields.
// Work is abandoned if the tab navigates while it runs.
func (e *Engine) Fill(ctx context.Context, tabID int, mode planner.Mode) (FillOutcome, error) {
	page, tab, err := e.page(ctx, tabID, true)
	if err != nil {
		return FillOutcome{}, err
	}
	ctx, stop := bind(ctx, tab)
	defer stop()

	fields, err := page.Scan(ctx)
	if err != nil {
		return FillOutcome{}, eris.Wrap(err, "engine: scan page")
	}
	return e.FillFields(ctx, tab, page, fields, mode)
}

// FillFields fills a page whose fields were already scanned.
func (e *Engine) FillFields(ctx context.Context, tab *session.Tab, page fill.Page, fields []model.FieldContext, mode planner.Mode) (FillOutcome, error) {
	ctx, stop := bind(ctx, tab)
	defer stop()

	plan := e.planner.Plan(ctx, model.SiteKeyFromURL(tab.URL), fields, mode)
	batch := e.executor.ApplyAll(ctx, page, plan.Plans)
	if err := ctx.Err(); err != nil {
		return FillOutcome{Plan: plan, Batch: batch}, eris.Wrap(err, "engine: fill abandoned")
	}

	tab.Board.ApplyBatch(batch.Results)
	for _, d := range plan.Decisions {
		switch d.Decision {
		case planner.DecisionSuggest:
			tab.Board.Suggest(d.Field.Key(), d.Candidates)
		case planner.DecisionSensitive:
			tab.Board.Sensitive(d.Field.Key(), d.Candidates)
		}
	}
	e.kb.Log(ctx, plan.SiteKey, model.ActivityFill,
		fmt.Sprintf("filled %d of %d fields", batch.Filled, len(plan.Plans)))
	return FillOutcome{Plan: plan, Batch: batch}, nil
}

// Undo reverts one field, or the most recent fill invocation when fieldID
// is empty.
func (e *Engine) Undo(ctx context.Context, tabID int, fieldID string) ([]model.FillResult, error) {
	page, tab, err := e.page(ctx, tabID, false)
	if err != nil {
		return nil, err
	}
	ctx, stop := bind(ctx, tab)
	defer stop()
	return e.UndoOn(ctx, tab, page, fieldID)
}

// UndoOn is Undo against an explicit page.
func (e *Engine) UndoOn(ctx context.Context, tab *session.Tab, page fill.Page, fieldID string) ([]model.FillResult, error) {
	undoer := badge.UndoerFunc(func(r model.FillResult) model.FillResult {
		return e.executor.Undo(ctx, page, r)
	})
	siteKey := model.SiteKeyFromURL(tab.URL)
	if fieldID != "" {
		r, err := tab.Board.UndoField(fieldID, undoer)
		if err != nil {
			return nil, err
		}
		e.kb.Log(ctx, siteKey, model.ActivityUndo, "undid 1 field")
		return []model.FillResult{r}, nil
	}
	out, err := tab.Board.UndoLastBatch(undoer)
	if err != nil {
		return nil, err
	}
	e.kb.Log(ctx, siteKey, model.ActivityUndo, fmt.Sprintf("undid %d fields", len(out)))
	return out, nil
}

// Observe stages a manual edit made in a tab and marks the field pending.
func (e *Engine) Observe(ctx context.Context, tabID int, ed learn.Edit) (*model.PendingObservation, error) {
	p, err := e.recorder.Observe(ctx, ed)
	if err != nil || p == nil {
		return p, err
	}
	if tab, err := e.state.Tab(tabID); err == nil {
		tab.Board.Pending(ed.Field.Key(), p.RawValue)
	}
	return p, nil
}

// Pending lists staged observations.
func (e *Engine) Pending(ctx context.Context) []model.PendingObservation {
	return e.recorder.Pending(ctx)
}

// Commit confirms a staged observation.
func (e *Engine) Commit(ctx context.Context, id string, typeOverride model.Taxonomy) (model.AnswerValue, error) {
	return e.recorder.Commit(ctx, id, typeOverride)
}

// Discard drops a staged observation.
func (e *Engine) Discard(ctx context.Context, id string) error {
	return e.recorder.Discard(ctx, id)
}

// SetConsent records consent and logs the change.
func (e *Engine) SetConsent(ctx context.Context, llmDataSharing, dataCollection bool) (model.UserConsent, error) {
	c, err := e.consent.Set(ctx, llmDataSharing, dataCollection)
	if err != nil {
		return c, err
	}
	e.kb.Log(ctx, "", model.ActivityConsent,
		fmt.Sprintf("llm data sharing %s, data collection %s", onOff(llmDataSharing), onOff(dataCollection)))
	return c, nil
}

// Fetch performs a proxied request with the configured request timeout.
func (e *Engine) Fetch(ctx context.Context, req fetcher.Request) (fetcher.Response, error) {
	if secs := e.cfg.Server.RequestTimeoutSecs; secs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(secs)*time.Second)
		defer cancel()
	}
	return e.fetcher.Fetch(ctx, req)
}

// Badges returns the badge state of a tab.
func (e *Engine) Badges(tabID int) ([]badge.Badge, error) {
	tab, err := e.state.Tab(tabID)
	if err != nil {
		return nil, err
	}
	return tab.Board.All(), nil
}

func (e *Engine) page(ctx context.Context, tabID int, navigate bool) (Page, *session.Tab, error) {
	if e.pages == nil {
		return nil, nil, ErrNoPages
	}
	page, err := e.pages.Page(ctx, tabID)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "engine: page for tab %d", tabID)
	}
	var tab *session.Tab
	if navigate {
		tab, err = e.state.Navigate(tabID, page.URL())
	} else {
		tab, err = e.state.Tab(tabID)
	}
	if err != nil {
		return nil, nil, err
	}
	return page, tab, nil
}

// bind derives a context that is also cancelled when the tab navigates.
func bind(ctx context.Context, tab *session.Tab) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)
	if tab.Context().Err() != nil {
		cancel()
	}
	stop := context.AfterFunc(tab.Context(), cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
