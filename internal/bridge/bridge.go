// Package bridge carries action-tagged request/response messages between
// the extension collaborator and the core.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Actions understood by the core.
const (
	ActionFill              = "fill"
	ActionUndo              = "undo"
	ActionFetchProxy        = "fetchProxy"
	ActionOpenSidePanel     = "openSidePanel"
	ActionGetSidePanelState = "getSidePanelState"
	ActionSidePanelOpened   = "sidePanelOpened"
	ActionSidePanelClosed   = "sidePanelClosed"
	ActionClassify          = "classify"
	ActionObserve           = "observe"
	ActionPending           = "pending"
	ActionCommit            = "commit"
	ActionDiscard           = "discard"
	ActionBadges            = "badges"
	ActionTabClosed         = "tabClosed"
)

// Sentinel errors.
var (
	ErrUnknownAction = eris.New("bridge: unknown action")
	ErrBadPayload    = eris.New("bridge: malformed payload")
	ErrTimeout       = eris.New("bridge: request timed out")
	ErrClosed        = eris.New("bridge: channel closed")
)

// Message is one request.
type Message struct {
	ID      string          `json:"id,omitempty"`
	Action  string          `json:"action"`
	TabID   int             `json:"tab_id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Decode unmarshals the payload into v. An empty payload leaves v as is.
func (m Message) Decode(v any) error {
	if len(m.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return eris.Wrapf(ErrBadPayload, "%s: %v", m.Action, err)
	}
	return nil
}

// Reply answers one Message.
type Reply struct {
	ID      string          `json:"id,omitempty"`
	Action  string          `json:"action"`
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`

	// Top-level fields of the fill and fetchProxy replies.
	Filled *int   `json:"filled,omitempty"`
	OK     *bool  `json:"ok,omitempty"`
	Status int    `json:"status,omitempty"`
	Body   string `json:"body,omitempty"`
}

// flatReply is implemented by handler results whose fields sit beside
// success and error. flatten sets them on r and returns what, if
// anything, still belongs under data.
type flatReply interface {
	flatten(r *Reply) any
}

// Handler serves one action.
type Handler func(ctx context.Context, msg Message) (any, error)

// Router dispatches messages to handlers by action tag.
type Router struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRouter returns an empty router.
func NewRouter() *Router {
	return &Router{handlers: make(map[string]Handler)}
}

// Handle registers h for action, replacing any previous handler.
func (r *Router) Handle(action string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[action] = h
}

// Actions lists registered actions, sorted.
func (r *Router) Actions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.handlers))
	for a := range r.handlers {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// Dispatch runs the handler for msg. Handler errors and panics become
// failed replies; Dispatch itself never fails.
func (r *Router) Dispatch(ctx context.Context, msg Message) (reply Reply) {
	reply = Reply{ID: msg.ID, Action: msg.Action}

	r.mu.RLock()
	h, ok := r.handlers[msg.Action]
	r.mu.RUnlock()
	if !ok {
		reply.Error = eris.Wrap(ErrUnknownAction, msg.Action).Error()
		return reply
	}

	defer func() {
		if p := recover(); p != nil {
			zap.L().Error("bridge: handler panicked", zap.String("action", msg.Action), zap.Any("panic", p))
			reply.Success = false
			reply.Data = nil
			reply.Error = fmt.Sprintf("bridge: %s panicked", msg.Action)
		}
	}()

	data, err := h(ctx, msg)
	if err != nil {
		zap.L().Debug("bridge: action failed", zap.String("action", msg.Action), zap.Error(err))
		reply.Error = err.Error()
		if data == nil {
			return reply
		}
	} else {
		reply.Success = true
	}
	if fr, ok := data.(flatReply); ok {
		data = fr.flatten(&reply)
	}
	if data != nil {
		raw, mErr := json.Marshal(data)
		if mErr != nil {
			reply.Success = false
			reply.Error = eris.Wrap(mErr, "bridge: encode reply").Error()
			return reply
		}
		reply.Data = raw
	}
	return reply
}
