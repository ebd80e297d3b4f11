// Package identity derives the acting principal from inbound updates.
package identity

import (
	"github.com/chitragupt/chitragupt/pkg/telegram"
)

// Principal is a resolved acting identity. Special marks group, channel,
// and anonymous-admin actors, which carry negative ids.
type Principal struct {
	ID      int64
	Special bool
}

// Resolve extracts the acting principal from a message. The group or
// channel acting entity (sender_chat) wins over the regular actor (from);
// anonymous admins post as the group itself. ok is false when neither is
// present, in which case the caller must silently ignore the update.
func Resolve(msg *telegram.Message) (p Principal, ok bool) {
	if msg == nil {
		return Principal{}, false
	}

	if msg.SenderChat != nil {
		return Principal{ID: msg.SenderChat.ID, Special: true}, true
	}

	if msg.From != nil {
		return Principal{ID: msg.From.ID}, true
	}

	return Principal{}, false
}

// FromUpdate resolves the principal of an update envelope using the fixed
// message-extraction priority order.
func FromUpdate(u *telegram.Update) (Principal, bool) {
	return Resolve(u.EffectiveMessage())
}
