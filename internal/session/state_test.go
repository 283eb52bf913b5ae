package session

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/formpilot/internal/secure"
)

type staticID string

func (s staticID) InstallID(context.Context) (string, error) { return string(s), nil }

func TestPanels(t *testing.T) {
	t.Parallel()

	s := New(context.Background(), nil)
	defer s.Close() //nolint:errcheck

	require.NoError(t, s.SetPanelOpen(7, true))
	require.NoError(t, s.SetPanelOpen(3, true))
	assert.True(t, s.PanelOpen(7))
	assert.False(t, s.PanelOpen(9))
	assert.Equal(t, []int{3, 7}, s.OpenPanels())

	require.NoError(t, s.SetPanelOpen(7, false))
	assert.False(t, s.PanelOpen(7))
	assert.Equal(t, []int{3}, s.OpenPanels())
}

func TestNavigate_CancelsPreviousPage(t *testing.T) {
	t.Parallel()

	s := New(context.Background(), nil)
	defer s.Close() //nolint:errcheck

	first, err := s.Navigate(1, "https://a.example/apply")
	require.NoError(t, err)
	same, err := s.Navigate(1, "https://a.example/apply")
	require.NoError(t, err)
	assert.Same(t, first, same)
	assert.NoError(t, first.Context().Err())

	next, err := s.Navigate(1, "https://a.example/thanks")
	require.NoError(t, err)
	assert.NotSame(t, first.Board, next.Board)
	assert.ErrorIs(t, first.Context().Err(), context.Canceled)
	assert.NoError(t, next.Context().Err())

	got, err := s.Tab(1)
	require.NoError(t, err)
	assert.Same(t, next, got)
}

func TestCloseTab(t *testing.T) {
	t.Parallel()

	s := New(context.Background(), nil)
	defer s.Close() //nolint:errcheck

	tab, err := s.Tab(4)
	require.NoError(t, err)
	require.NoError(t, s.SetPanelOpen(4, true))

	s.CloseTab(4)
	assert.Error(t, tab.Context().Err())
	assert.False(t, s.PanelOpen(4))
	assert.Zero(t, s.Tabs())
}

func TestClose_TearsDown(t *testing.T) {
	t.Parallel()

	keys := secure.NewKeyProvider(staticID("install-1"), 1000)
	s := New(context.Background(), keys)

	k1, err := s.Keys().Key(context.Background())
	require.NoError(t, err)
	require.Len(t, k1, 32)
	k1 = append([]byte(nil), k1...)

	tab, err := s.Tab(1)
	require.NoError(t, err)
	require.NoError(t, s.SetPanelOpen(1, true))

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	assert.Error(t, s.Context().Err())
	assert.Error(t, tab.Context().Err())
	assert.Empty(t, s.OpenPanels())

	_, err = s.Tab(2)
	assert.True(t, eris.Is(err, ErrClosed))
	assert.True(t, eris.Is(s.SetPanelOpen(2, true), ErrClosed))

	// Re-derivation after Forget yields the same key.
	k2, err := keys.Key(context.Background())
	require.NoError(t, err)
	assert.Equal(t, k1, k2)
}
