// Package remote classifies fields the local parsers could not resolve by
// asking the remote model, in one sanitized batch per page.
package remote

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/formpilot/internal/classify"
	"github.com/sells-group/formpilot/internal/llm"
	"github.com/sells-group/formpilot/internal/model"
	"github.com/sells-group/formpilot/internal/sanitize"
	"github.com/sells-group/formpilot/internal/textnorm"
)

// Batch limits of the remote classification contract.
const (
	MaxBatchFields = 50
	MaxFieldChars  = 200
	maxOptions     = 20
)

// ConsentChecker reports whether field metadata may leave the device.
type ConsentChecker interface {
	LLMDataSharing(ctx context.Context) bool
}

// Options tunes a Classifier.
type Options struct {
	Enabled       bool
	Timeout       time.Duration
	MaxFields     int
	MaxFieldChars int
}

// Classifier sends unresolved fields to the remote model. Results are
// cached per session by field fingerprint, and a fingerprint already in
// flight for one caller is awaited by the others instead of re-sent.
type Classifier struct {
	completer llm.Completer
	consent   ConsentChecker
	opts      Options
	sanitizer *sanitize.Sanitizer

	mu       sync.RWMutex
	cache    map[string]classify.RemoteResult
	inflight map[string]*flight
}

// flight is one fingerprint awaiting a remote verdict. res and err are
// set before done is closed.
type flight struct {
	done chan struct{}
	res  classify.RemoteResult
	err  error
}

// NewClassifier builds a classifier. A nil completer disables remote calls.
func NewClassifier(completer llm.Completer, consent ConsentChecker, opts Options) *Classifier {
	if opts.MaxFields <= 0 || opts.MaxFields > MaxBatchFields {
		opts.MaxFields = MaxBatchFields
	}
	if opts.MaxFieldChars <= 0 || opts.MaxFieldChars > MaxFieldChars {
		opts.MaxFieldChars = MaxFieldChars
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 8 * time.Second
	}
	return &Classifier{
		completer: completer,
		consent:   consent,
		opts:      opts,
		sanitizer: sanitize.New(opts.MaxFieldChars),
		cache:     make(map[string]classify.RemoteResult),
		inflight:  make(map[string]*flight),
	}
}

// Field is one sanitized entry of the remote request.
type Field struct {
	Index       int      `json:"index"`
	Label       string   `json:"label,omitempty"`
	Section     string   `json:"section,omitempty"`
	Name        string   `json:"name,omitempty"`
	Placeholder string   `json:"placeholder,omitempty"`
	InputType   string   `json:"input_type,omitempty"`
	Options     []string `json:"options,omitempty"`
}

// Result is one entry of the remote response.
type Result struct {
	Index      int     `json:"index"`
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
}

type batchRequest struct {
	Fields []Field `json:"fields"`
}

type batchResponse struct {
	Results []Result `json:"results"`
}

// ClassifyBatch returns remote verdicts keyed by field key. Without consent
// it returns nothing; a failed call keeps only cached verdicts and the
// caller relies on local rules for the rest.
func (c *Classifier) ClassifyBatch(ctx context.Context, fields []model.FieldContext) map[string]classify.RemoteResult {
	out := make(map[string]classify.RemoteResult)
	if c == nil || c.completer == nil || !c.opts.Enabled || len(fields) == 0 {
		return out
	}
	if c.consent == nil || !c.consent.LLMDataSharing(ctx) {
		zap.L().Debug("remote: llm data sharing not granted, skipping")
		return out
	}

	type wait struct {
		fp string
		f  *flight
	}
	var (
		pending []model.FieldContext
		prints  []string
		owned   []*flight
		waits   []wait
	)
	byPrint := make(map[string][]string)
	c.mu.Lock()
	for _, f := range fields {
		fp := Fingerprint(f)
		if r, ok := c.cache[fp]; ok {
			out[f.Key()] = r
			continue
		}
		byPrint[fp] = append(byPrint[fp], f.Key())
		if len(byPrint[fp]) > 1 {
			continue
		}
		fl, ok := c.inflight[fp]
		if !ok {
			fl = &flight{done: make(chan struct{})}
			c.inflight[fp] = fl
			pending = append(pending, f)
			prints = append(prints, fp)
			owned = append(owned, fl)
		}
		waits = append(waits, wait{fp: fp, f: fl})
	}
	c.mu.Unlock()

	if len(pending) > 0 {
		go c.run(context.WithoutCancel(ctx), pending, prints, owned)
	}

	for _, w := range waits {
		select {
		case <-ctx.Done():
			zap.L().Debug("remote: caller cancelled, using local rules", zap.Error(ctx.Err()))
			return out
		case <-w.f.done:
		}
		if w.f.err != nil {
			continue
		}
		for _, key := range byPrint[w.fp] {
			out[key] = w.f.res
		}
	}
	return out
}

// run sends the fields this caller owns in chunks, one after another, and
// settles their flights. It is detached from the caller's cancellation so
// other callers waiting on the same fingerprints still get an answer; each
// chunk is bounded by the configured timeout instead. After a failed chunk
// the remaining fields are settled with the same error.
func (c *Classifier) run(ctx context.Context, fields []model.FieldContext, prints []string, flights []*flight) {
	next := 0
	defer func() {
		if p := recover(); p != nil {
			zap.L().Error("remote: classification panicked", zap.Any("panic", p))
			c.settle(prints[next:], flights[next:], nil, eris.Errorf("remote: classification panicked: %v", p))
		}
	}()
	for start := 0; start < len(fields); start += c.opts.MaxFields {
		end := min(start+c.opts.MaxFields, len(fields))
		callCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
		results, err := c.request(callCtx, fields[start:end], prints[start:end])
		cancel()
		if err != nil {
			zap.L().Warn("remote: classification failed, using local rules",
				zap.Int("fields", len(fields)-start),
				zap.Error(err),
			)
			next = len(fields)
			c.settle(prints[start:], flights[start:], nil, err)
			return
		}
		next = end
		c.settle(prints[start:end], flights[start:end], results, nil)
	}
}

// settle records verdicts in the cache and releases the waiters in one
// critical section, so a later caller finds either the flight or the
// cached verdict.
func (c *Classifier) settle(prints []string, flights []*flight, results map[string]classify.RemoteResult, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, fp := range prints {
		fl := flights[i]
		if err != nil {
			fl.err = err
		} else {
			fl.res = results[fp]
			c.cache[fp] = fl.res
		}
		if c.inflight[fp] == fl {
			delete(c.inflight, fp)
		}
		close(fl.done)
	}
}

func (c *Classifier) request(ctx context.Context, fields []model.FieldContext, prints []string) (map[string]classify.RemoteResult, error) {
	payload := batchRequest{Fields: make([]Field, len(fields))}
	for i, f := range fields {
		payload.Fields[i] = c.toField(i, f)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, eris.Wrap(err, "remote: marshal request")
	}

	start := time.Now()
	text, err := c.completer.Complete(ctx, llm.Request{
		System: systemPrompt,
		Prompt: string(body),
	})
	if err != nil {
		return nil, eris.Wrap(err, "remote: complete")
	}

	var resp batchResponse
	if err := llm.Decode(text, &resp); err != nil {
		return nil, eris.Wrap(err, "remote: decode response")
	}

	results := make(map[string]classify.RemoteResult, len(fields))
	for _, r := range resp.Results {
		if r.Index < 0 || r.Index >= len(fields) {
			continue
		}
		t, ok := model.ParseTaxonomy(r.Type)
		if !ok {
			t = model.TaxonomyUnknown
		}
		conf := clamp(r.Confidence)
		if t == model.TaxonomyUnknown {
			conf = 0
		}
		results[prints[r.Index]] = classify.RemoteResult{Type: t, Confidence: conf}
	}
	// Fields the model skipped are cached as unknown so they are not re-sent.
	for _, fp := range prints {
		if _, ok := results[fp]; !ok {
			results[fp] = classify.RemoteResult{Type: model.TaxonomyUnknown}
		}
	}

	zap.L().Debug("remote: classified batch",
		zap.String("provider", c.completer.Name()),
		zap.Int("fields", len(fields)),
		zap.Int("answered", len(resp.Results)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return results, nil
}

func (c *Classifier) toField(i int, f model.FieldContext) Field {
	out := Field{
		Index:       i,
		Label:       c.sanitizer.Clean(f.LabelText),
		Section:     c.sanitizer.Clean(f.SectionTitle),
		Name:        c.sanitizer.Clean(f.Attr("name")),
		Placeholder: c.sanitizer.Clean(f.Attr("placeholder")),
		InputType:   c.sanitizer.Clean(f.InputType()),
	}
	for j, o := range f.Options {
		if j >= maxOptions {
			break
		}
		if s := c.sanitizer.Clean(o); s != "" {
			out.Options = append(out.Options, s)
		}
	}
	return out
}

// Reset drops cached verdicts, typically when the session ends.
func (c *Classifier) Reset() {
	c.mu.Lock()
	c.cache = make(map[string]classify.RemoteResult)
	c.mu.Unlock()
}

// CacheLen returns the number of cached verdicts.
func (c *Classifier) CacheLen() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cache)
}

// Fingerprint identifies a field by what the remote model would see, so
// the same question on another page reuses the verdict.
func Fingerprint(f model.FieldContext) string {
	return strings.Join([]string{
		textnorm.Fold(f.LabelText),
		textnorm.Fold(f.SectionTitle),
		textnorm.Fold(f.Attr("name")),
		textnorm.Fold(f.Attr("placeholder")),
		f.InputType(),
		textnorm.ChoiceSetHash(f.Options),
	}, "\x1f")
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
