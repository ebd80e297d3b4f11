package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/chitragupt/chitragupt/pkg/telegram"
)

func TestResolve(t *testing.T) {
	t.Run("sender_chat wins over from", func(t *testing.T) {
		msg := &telegram.Message{
			From:       &telegram.User{ID: 1087968824},
			SenderChat: &telegram.Chat{ID: -100123, Title: "the group"},
		}

		p, ok := Resolve(msg)
		assert.True(t, ok)
		assert.Equal(t, int64(-100123), p.ID)
		assert.True(t, p.Special)
	})

	t.Run("plain user message", func(t *testing.T) {
		msg := &telegram.Message{From: &telegram.User{ID: 42}}

		p, ok := Resolve(msg)
		assert.True(t, ok)
		assert.Equal(t, int64(42), p.ID)
		assert.False(t, p.Special)
	})

	t.Run("no attributable sender", func(t *testing.T) {
		_, ok := Resolve(&telegram.Message{Text: "service message"})
		assert.False(t, ok)
	})

	t.Run("nil message", func(t *testing.T) {
		_, ok := Resolve(nil)
		assert.False(t, ok)
	})
}

func TestFromUpdate(t *testing.T) {
	t.Run("uses the effective message", func(t *testing.T) {
		u := &telegram.Update{
			EditedMessage: &telegram.Message{From: &telegram.User{ID: 7}},
		}

		p, ok := FromUpdate(u)
		assert.True(t, ok)
		assert.Equal(t, int64(7), p.ID)
	})

	t.Run("message beats edited message", func(t *testing.T) {
		u := &telegram.Update{
			Message:       &telegram.Message{From: &telegram.User{ID: 1}},
			EditedMessage: &telegram.Message{From: &telegram.User{ID: 2}},
		}

		p, _ := FromUpdate(u)
		assert.Equal(t, int64(1), p.ID)
	})

	t.Run("empty update", func(t *testing.T) {
		_, ok := FromUpdate(&telegram.Update{})
		assert.False(t, ok)
	})
}
