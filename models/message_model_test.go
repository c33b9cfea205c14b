package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestHasContent(t *testing.T) {
	req := require.New(t)

	empty := ""
	body := "hello"

	req.False((&Message{}).HasContent())
	req.False((&Message{Body: &empty}).HasContent())
	req.True((&Message{Body: &body}).HasContent())
	req.True((&Message{Attachments: []Attachment{{Type: "image", URL: "https://cdn/x.png"}}}).HasContent())
}

func TestWithinEditWindow(t *testing.T) {
	req := require.New(t)

	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m := &Message{CreatedAt: created}

	req.True(m.WithinEditWindow(created))
	req.True(m.WithinEditWindow(created.Add(EditWindow)))
	req.False(m.WithinEditWindow(created.Add(EditWindow+time.Second)))
}

func TestApplyReaction(t *testing.T) {
	alice := uuid.New()
	bob := uuid.New()
	now := time.Now()

	t.Run("first reaction appends", func(t *testing.T) {
		req := require.New(t)
		m := &Message{}
		m.ApplyReaction(alice, "👍", now)
		req.Len(m.Reactions, 1)
		req.Equal("👍", m.Reactions[0].Reaction)
		req.Equal(alice, m.Reactions[0].UserID)
	})

	t.Run("same symbol toggles off", func(t *testing.T) {
		req := require.New(t)
		m := &Message{}
		m.ApplyReaction(alice, "❤️", now)
		m.ApplyReaction(alice, "❤️", now.Add(time.Second))
		req.Empty(m.Reactions)
	})

	t.Run("different symbol replaces", func(t *testing.T) {
		req := require.New(t)
		m := &Message{}
		m.ApplyReaction(alice, "👍", now)
		m.ApplyReaction(alice, "😂", now.Add(time.Second))
		req.Len(m.Reactions, 1)
		req.Equal("😂", m.Reactions[0].Reaction)
	})

	t.Run("one slot per user", func(t *testing.T) {
		req := require.New(t)
		m := &Message{}
		m.ApplyReaction(alice, "👍", now)
		m.ApplyReaction(bob, "👎", now)
		m.ApplyReaction(alice, "❤️", now.Add(time.Second))
		req.Len(m.Reactions, 2)
	})

	t.Run("toggling one user leaves the other intact", func(t *testing.T) {
		req := require.New(t)
		m := &Message{}
		m.ApplyReaction(alice, "👍", now)
		m.ApplyReaction(bob, "👍", now)
		m.ApplyReaction(alice, "👍", now.Add(time.Second))
		req.Len(m.Reactions, 1)
		req.Equal(bob, m.Reactions[0].UserID)
	})
}
