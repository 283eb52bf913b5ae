// Package session holds the process-lifetime state shared by request
// handlers: side-panel visibility per tab, per-tab badge boards and the
// cached data key. It is created once at startup and torn down by Close.
package session

import (
	"context"
	"sort"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/formpilot/internal/badge"
	"github.com/sells-group/formpilot/internal/secure"
)

// ErrClosed is returned once the state has been torn down.
var ErrClosed = eris.New("session: closed")

// Tab is the per-page state of one browser tab. Its context is cancelled
// when the tab navigates away or closes, abandoning in-flight work.
type Tab struct {
	ID    int
	URL   string
	Board *badge.Board

	ctx    context.Context
	cancel context.CancelFunc
}

// Context is cancelled when the tab navigates or closes.
func (t *Tab) Context() context.Context { return t.ctx }

// State is the lifecycle-scoped state object.
type State struct {
	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	keys   *secure.KeyProvider
	panels map[int]bool
	tabs   map[int]*Tab
	closed bool
}

// New returns state bound to parent. keys may be nil when no sealed
// documents are used.
func New(parent context.Context, keys *secure.KeyProvider) *State {
	ctx, cancel := context.WithCancel(parent)
	return &State{
		ctx:    ctx,
		cancel: cancel,
		keys:   keys,
		panels: make(map[int]bool),
		tabs:   make(map[int]*Tab),
	}
}

// Context is cancelled by Close.
func (s *State) Context() context.Context { return s.ctx }

// Keys returns the data key provider.
func (s *State) Keys() *secure.KeyProvider { return s.keys }

// SetPanelOpen records the side panel visibility for a tab.
func (s *State) SetPanelOpen(tab int, open bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if open {
		s.panels[tab] = true
	} else {
		delete(s.panels, tab)
	}
	return nil
}

// PanelOpen reports the side panel visibility for a tab.
func (s *State) PanelOpen(tab int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.panels[tab]
}

// OpenPanels lists tabs with a visible side panel, ascending.
func (s *State) OpenPanels() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int, 0, len(s.panels))
	for id := range s.panels {
		out = append(out, id)
	}
	sort.Ints(out)
	return out
}

// Tab returns the state of a tab, creating it on first use.
func (s *State) Tab(id int) (*Tab, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if t, ok := s.tabs[id]; ok {
		return t, nil
	}
	t := s.newTabLocked(id, "")
	return t, nil
}

// Navigate starts a new page in a tab. Work bound to the previous page is
// cancelled and its badges and undo history are dropped.
func (s *State) Navigate(id int, url string) (*Tab, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if t, ok := s.tabs[id]; ok {
		if t.URL == url {
			return t, nil
		}
		t.cancel()
	}
	t := s.newTabLocked(id, url)
	zap.L().Debug("session: tab navigated", zap.Int("tab", id))
	return t, nil
}

// CloseTab cancels and forgets a tab, including its panel flag.
func (s *State) CloseTab(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tabs[id]; ok {
		t.cancel()
		delete(s.tabs, id)
	}
	delete(s.panels, id)
}

// Tabs returns the number of tracked tabs.
func (s *State) Tabs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tabs)
}

func (s *State) newTabLocked(id int, url string) *Tab {
	ctx, cancel := context.WithCancel(s.ctx)
	t := &Tab{ID: id, URL: url, Board: badge.NewBoard(), ctx: ctx, cancel: cancel}
	s.tabs[id] = t
	return t
}

// Close cancels every tab, forgets the cached key and rejects further
// use. It is safe to call more than once.
func (s *State) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	for _, t := range s.tabs {
		t.cancel()
	}
	s.tabs = make(map[int]*Tab)
	s.panels = make(map[int]bool)
	s.cancel()
	if s.keys != nil {
		s.keys.Forget()
	}
	zap.L().Debug("session: state closed")
	return nil
}
