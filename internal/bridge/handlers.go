package bridge

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/formpilot/internal/badge"
	"github.com/sells-group/formpilot/internal/engine"
	"github.com/sells-group/formpilot/internal/fetcher"
	"github.com/sells-group/formpilot/internal/learn"
	"github.com/sells-group/formpilot/internal/model"
	"github.com/sells-group/formpilot/internal/planner"
	"github.com/sells-group/formpilot/internal/session"
)

// Core is the subset of the engine the bridge exposes.
type Core interface {
	Fill(ctx context.Context, tabID int, mode planner.Mode) (engine.FillOutcome, error)
	Undo(ctx context.Context, tabID int, fieldID string) ([]model.FillResult, error)
	Fetch(ctx context.Context, req fetcher.Request) (fetcher.Response, error)
	Classify(ctx context.Context, fields []model.FieldContext) []model.Classification
	Observe(ctx context.Context, tabID int, ed learn.Edit) (*model.PendingObservation, error)
	Pending(ctx context.Context) []model.PendingObservation
	Commit(ctx context.Context, id string, typeOverride model.Taxonomy) (model.AnswerValue, error)
	Discard(ctx context.Context, id string) error
	Badges(tabID int) ([]badge.Badge, error)
	State() *session.State
}

var _ Core = (*engine.Engine)(nil)

type fillRequest struct {
	Mode planner.Mode `json:"mode,omitempty"`
}

type fillReply struct {
	Filled    int                `json:"filled"`
	Suggested int                `json:"suggested"`
	Sensitive int                `json:"sensitive"`
	Results   []model.FillResult `json:"results"`
}

func (f fillReply) flatten(r *Reply) any {
	filled := f.Filled
	r.Filled = &filled
	return f
}

// fetchReply puts the proxied response at the top level of the reply.
type fetchReply fetcher.Response

func (f fetchReply) flatten(r *Reply) any {
	ok := f.OK
	r.OK, r.Status, r.Body = &ok, f.Status, f.Body
	return nil
}

type undoRequest struct {
	FieldID string `json:"field_id,omitempty"`
}

type undoReply struct {
	Results []model.FillResult `json:"results"`
}

type panelReply struct {
	Open bool `json:"open"`
}

type classifyRequest struct {
	Fields []model.FieldContext `json:"fields"`
}

type observeRequest struct {
	URL    string             `json:"url"`
	FormID string             `json:"form_id,omitempty"`
	Field  model.FieldContext `json:"field"`
	Value  string             `json:"value"`
}

type commitRequest struct {
	ID   string `json:"id"`
	Type string `json:"type,omitempty"`
}

// Register installs handlers for every action on r.
func Register(r *Router, core Core) {
	st := core.State()

	r.Handle(ActionFill, func(ctx context.Context, m Message) (any, error) {
		var req fillRequest
		if err := m.Decode(&req); err != nil {
			return nil, err
		}
		mode := planner.ModeManual
		if req.Mode == planner.ModeAuto {
			mode = planner.ModeAuto
		}
		out, err := core.Fill(ctx, m.TabID, mode)
		if err != nil {
			return nil, err
		}
		return fillReply{
			Filled:    out.Batch.Filled,
			Suggested: out.Plan.Count(planner.DecisionSuggest),
			Sensitive: out.Plan.Count(planner.DecisionSensitive),
			Results:   out.Batch.Results,
		}, nil
	})

	r.Handle(ActionUndo, func(ctx context.Context, m Message) (any, error) {
		var req undoRequest
		if err := m.Decode(&req); err != nil {
			return nil, err
		}
		res, err := core.Undo(ctx, m.TabID, req.FieldID)
		if err != nil {
			return nil, err
		}
		for _, x := range res {
			if !x.Success {
				return undoReply{Results: res}, eris.Errorf("bridge: undo of %s failed: %s", x.FieldID, x.Error)
			}
		}
		return undoReply{Results: res}, nil
	})

	r.Handle(ActionFetchProxy, func(ctx context.Context, m Message) (any, error) {
		var req fetcher.Request
		if err := m.Decode(&req); err != nil {
			return nil, err
		}
		if req.URL == "" {
			return nil, eris.Wrap(ErrBadPayload, "fetchProxy: url is required")
		}
		resp, err := core.Fetch(ctx, req)
		if err != nil {
			return nil, err
		}
		return fetchReply(resp), nil
	})

	setPanel := func(open bool) Handler {
		return func(_ context.Context, m Message) (any, error) {
			if err := st.SetPanelOpen(m.TabID, open); err != nil {
				return nil, err
			}
			return panelReply{Open: open}, nil
		}
	}
	r.Handle(ActionOpenSidePanel, setPanel(true))
	r.Handle(ActionSidePanelOpened, setPanel(true))
	r.Handle(ActionSidePanelClosed, setPanel(false))
	r.Handle(ActionGetSidePanelState, func(_ context.Context, m Message) (any, error) {
		return panelReply{Open: st.PanelOpen(m.TabID)}, nil
	})
	r.Handle(ActionTabClosed, func(_ context.Context, m Message) (any, error) {
		st.CloseTab(m.TabID)
		return nil, nil
	})

	r.Handle(ActionClassify, func(ctx context.Context, m Message) (any, error) {
		var req classifyRequest
		if err := m.Decode(&req); err != nil {
			return nil, err
		}
		return core.Classify(ctx, req.Fields), nil
	})

	r.Handle(ActionObserve, func(ctx context.Context, m Message) (any, error) {
		var req observeRequest
		if err := m.Decode(&req); err != nil {
			return nil, err
		}
		return core.Observe(ctx, m.TabID, learn.Edit{URL: req.URL, FormID: req.FormID, Field: req.Field, Value: req.Value})
	})

	r.Handle(ActionPending, func(ctx context.Context, _ Message) (any, error) {
		return core.Pending(ctx), nil
	})

	r.Handle(ActionCommit, func(ctx context.Context, m Message) (any, error) {
		var req commitRequest
		if err := m.Decode(&req); err != nil {
			return nil, err
		}
		var t model.Taxonomy
		if req.Type != "" {
			var ok bool
			if t, ok = model.ParseTaxonomy(req.Type); !ok {
				return nil, eris.Wrapf(ErrBadPayload, "commit: unknown type %q", req.Type)
			}
		}
		return core.Commit(ctx, req.ID, t)
	})

	r.Handle(ActionDiscard, func(ctx context.Context, m Message) (any, error) {
		var req commitRequest
		if err := m.Decode(&req); err != nil {
			return nil, err
		}
		return nil, core.Discard(ctx, req.ID)
	})

	r.Handle(ActionBadges, func(_ context.Context, m Message) (any, error) {
		return core.Badges(m.TabID)
	})
}
