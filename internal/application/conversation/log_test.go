package conversation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"z-genstudio-api/internal/domain/entity"
)

func TestLog_AppendAndCopyOut(t *testing.T) {
	l := NewLog()
	turn := entity.NewTurn(entity.RoleUser, "hello")
	l.Append(turn)

	turn.Content = "mutated by caller"
	got, ok := l.Get(turn.ID)
	require.True(t, ok)
	assert.Equal(t, "hello", got.Content)

	got.Content = "mutated copy"
	again, _ := l.Get(turn.ID)
	assert.Equal(t, "hello", again.Content)
}

func TestLog_UpdateOnlyWhileNotTerminal(t *testing.T) {
	l := NewLog()
	pending := entity.NewLoadingTurn("")
	l.Append(pending)

	require.NoError(t, l.Update(pending.ID, func(t *entity.Turn) {
		t.IsLoading = false
		t.Error = "boom"
	}))

	err := l.Update(pending.ID, func(t *entity.Turn) { t.Error = "" })
	assert.ErrorIs(t, err, ErrTurnTerminal)

	assert.ErrorIs(t, l.Update("missing", func(*entity.Turn) {}), ErrTurnNotFound)
}

func TestLog_History(t *testing.T) {
	l := NewLog()
	l.Append(entity.NewTurn(entity.RoleUser, "one"))
	l.Append(entity.NewTurn(entity.RoleAssistant, "two"))
	l.Append(entity.NewTurn(entity.RoleSystem, "Action cancelled."))
	l.Append(entity.NewTurn(entity.RoleUser, "three"))
	l.Append(entity.NewLoadingTurn(""))

	h := l.History(2)
	require.Len(t, h, 2)
	assert.Equal(t, "two", h[0].Content)
	assert.Equal(t, "three", h[1].Content)
	assert.Len(t, l.History(0), 3)
	assert.Equal(t, 5, l.Len())
}

func TestHub_DropsStaleAndKeepsLatest(t *testing.T) {
	h := NewHub()
	ch, cancel := h.Subscribe(1)

	h.Publish(State{Version: 2, Balance: 2})
	h.Publish(State{Version: 1, Balance: 1})
	h.Publish(State{Version: 3, Balance: 3})

	s := <-ch
	assert.Equal(t, uint64(3), s.Version)

	cancel()
	cancel()
	_, open := <-ch
	assert.False(t, open)

	h.Close()
	late, _ := h.Subscribe(1)
	_, open = <-late
	assert.False(t, open)
}
