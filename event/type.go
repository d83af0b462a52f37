// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package event

// Room state event types.
const (
	StateAliases     = "m.room.aliases"
	StateCreate      = "m.room.create"
	StateJoinRules   = "m.room.join_rules"
	StateMember      = "m.room.member"
	StatePowerLevels = "m.room.power_levels"
	StateRoomName    = "m.room.name"
	StateTopic       = "m.room.topic"
	StateConfig      = "m.room.config"
)

// Timeline event types.
const (
	EventMessage = "m.room.message"
)

// Ephemeral event types delivered through the event feed.
const (
	EphemeralTyping   = "m.typing"
	EphemeralPresence = "m.presence"
)

// Message types within m.room.message content.
const (
	MsgText = "m.text"
)

// FormatHTML is the only defined value for the format field of message content.
const FormatHTML = "org.matrix.custom.html"

// IsChatMessage reports whether an event type belongs in the visible room
// timeline. Everything else is state bookkeeping or ephemeral.
func IsChatMessage(eventType string) bool {
	switch eventType {
	case StateCreate, StateMember, EventMessage:
		return true
	default:
		return false
	}
}
