package fill

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/formpilot/internal/model"
)

// Options configures an Executor.
type Options struct {
	Timing    Timing
	MaxFanout int
}

// Executor applies fill plans one field at a time. A failure on one field
// never affects the result of another.
type Executor struct {
	fillers      *Registry
	transformers []Transformer
	maxFanout    int
}

// NewExecutor returns an executor with the default strategies and
// transformers.
func NewExecutor(opts Options) *Executor {
	return NewExecutorWith(DefaultRegistry(opts.Timing), DefaultTransformers(), opts.MaxFanout)
}

// NewExecutorWith returns an executor over explicit strategies.
func NewExecutorWith(fillers *Registry, transformers []Transformer, maxFanout int) *Executor {
	if maxFanout < 1 {
		maxFanout = 1
	}
	return &Executor{fillers: fillers, transformers: transformers, maxFanout: maxFanout}
}

// Apply fills one field. The previous value is read before any write so
// the result can be undone whatever happens afterwards; Mutated is set only
// when the strategy issued a write.
func (e *Executor) Apply(ctx context.Context, page Page, plan model.FillPlan) (res model.FillResult) {
	res = model.FillResult{
		FieldID:  plan.Field.Key(),
		AnswerID: plan.Answer.ID,
		Element:  plan.Field.Locator,
		Strategy: plan.Field.Widget.InteractionPlan,
	}
	var tracked *writeTracker
	defer func() {
		if r := recover(); r != nil {
			res.Success = false
			res.Mutated = tracked != nil && tracked.wrote
			res.Error = fmt.Sprintf("fill: panic: %v", r)
			zap.L().Warn("fill: strategy panicked", zap.String("field", res.FieldID), zap.Any("panic", r))
		}
	}()

	if err := ctx.Err(); err != nil {
		res.Error = eris.Wrap(err, "fill: cancelled").Error()
		return res
	}

	filler, err := e.fillers.For(plan.Field)
	if err != nil {
		return fail(res, err)
	}
	res.Strategy = filler.Plan()

	el, err := page.Resolve(ctx, plan.Field.Locator)
	if err != nil {
		return fail(res, eris.Wrap(err, "fill: resolve"))
	}
	prev, err := el.Value(ctx)
	if err != nil {
		return fail(res, eris.Wrap(err, "fill: read previous value"))
	}
	res.PreviousValue = prev

	target := TargetFor(e.transformers, plan)
	tracked = &writeTracker{Element: el}
	nv, err := filler.Fill(ctx, tracked, plan.Field, target)
	res.Mutated = tracked.wrote
	if err != nil {
		return fail(res, err)
	}
	res.NewValue = nv
	res.Success = true
	zap.L().Debug("fill: filled field",
		zap.String("field", res.FieldID),
		zap.String("strategy", string(res.Strategy)),
		zap.String("type", string(plan.Answer.Type)),
	)
	return res
}

// ApplyAll fills plans with bounded fan-out and returns results in plan
// order.
func (e *Executor) ApplyAll(ctx context.Context, page Page, plans []model.FillPlan) model.BatchResult {
	results := make([]model.FillResult, len(plans))
	g := new(errgroup.Group)
	g.SetLimit(e.maxFanout)
	for i, p := range plans {
		g.Go(func() error {
			results[i] = e.Apply(ctx, page, p)
			return nil
		})
	}
	_ = g.Wait()

	out := model.BatchResult{Results: results}
	for _, r := range results {
		if r.Success {
			out.Filled++
		}
	}
	zap.L().Info("fill: batch complete",
		zap.Int("fields", len(plans)),
		zap.Int("filled", out.Filled),
	)
	return out
}

// Undo restores the pre-fill value of one result. It returns the inverse
// result: PreviousValue is what was removed, NewValue what was restored.
func (e *Executor) Undo(ctx context.Context, page Page, r model.FillResult) model.FillResult {
	out := model.FillResult{
		FieldID:       r.FieldID,
		AnswerID:      r.AnswerID,
		Element:       r.Element,
		Strategy:      r.Strategy,
		PreviousValue: r.NewValue,
	}
	if !r.Mutated {
		out.Success = true
		out.NewValue = r.PreviousValue
		return out
	}
	el, err := page.Resolve(ctx, r.Element)
	if err != nil {
		return fail(out, eris.Wrap(err, "fill: resolve for undo"))
	}
	if cur, err := el.Value(ctx); err == nil {
		out.PreviousValue = cur
	}
	out.Mutated = true
	if err := restore(ctx, el, r); err != nil {
		return fail(out, err)
	}
	nv, _ := readBack(ctx, el, r.PreviousValue)
	out.NewValue = nv
	out.Success = true
	return out
}

// UndoAll reverts results in reverse order.
func (e *Executor) UndoAll(ctx context.Context, page Page, results []model.FillResult) []model.FillResult {
	out := make([]model.FillResult, 0, len(results))
	for i := len(results) - 1; i >= 0; i-- {
		out = append(out, e.Undo(ctx, page, results[i]))
	}
	return out
}

func restore(ctx context.Context, el Element, r model.FillResult) error {
	if r.PreviousValue == "true" || r.PreviousValue == "false" {
		if err := el.SetChecked(ctx, r.PreviousValue == "true"); err == nil {
			return nil
		}
	}
	if r.PreviousValue != "" {
		if opts, err := el.Options(ctx, ""); err == nil && len(opts) > 0 {
			if m, ok := MatchOption(opts, r.PreviousValue, nil); ok {
				return eris.Wrap(el.SelectOption(ctx, m.Option), "fill: restore option")
			}
		}
	}
	if r.Strategy == model.PlanDirectSet {
		return eris.Wrap(el.SetValue(ctx, r.PreviousValue), "fill: restore value")
	}
	return eris.Wrap(el.SetValueNative(ctx, r.PreviousValue, true), "fill: restore value")
}

func fail(res model.FillResult, err error) model.FillResult {
	res.Success = false
	res.Error = err.Error()
	zap.L().Warn("fill: field failed",
		zap.String("field", res.FieldID),
		zap.String("strategy", string(res.Strategy)),
		zap.Error(err),
	)
	return res
}

// DefaultTiming converts millisecond settings into Timing.
func DefaultTiming(optionWaitMs, typeDelayMs int) Timing {
	return Timing{
		OptionWait: time.Duration(optionWaitMs) * time.Millisecond,
		TypeDelay:  time.Duration(typeDelayMs) * time.Millisecond,
	}.withDefaults()
}
