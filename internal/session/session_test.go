package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suPer8Hu/gopherchat-bot/internal/imagegen"
)

func TestMemoryStore_DefaultsWhenAbsent(t *testing.T) {
	st := NewMemoryStore()

	s, err := st.Load(context.Background(), 1)
	require.NoError(t, err)
	assert.Empty(t, s.ActiveChatID)
	assert.Equal(t, "standard", s.Quality("standard"))
	assert.False(t, s.Image.Active())
}

func TestMemoryStore_RoundTripIsolated(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()

	s, _ := st.Load(ctx, 1)
	s.ActiveChatID = "chat-1"
	s.ImageQuality = "hd"
	s.Image.Start(1, false)
	require.NoError(t, st.Save(ctx, 1, s))

	// mutating after save must not leak into the store
	s.ActiveChatID = "changed"

	got, _ := st.Load(ctx, 1)
	assert.Equal(t, "chat-1", got.ActiveChatID)
	assert.Equal(t, "hd", got.Quality("standard"))
	assert.Equal(t, imagegen.StateAwaitingPrompt, got.Image.State)

	other, _ := st.Load(ctx, 2)
	assert.Empty(t, other.ActiveChatID)
}
