// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package perch

import (
	"github.com/perch-im/perch/event"
	"github.com/perch-im/perch/id"
)

// RespLogin is the JSON response for the login endpoint.
type RespLogin struct {
	UserID      id.UserID `json:"user_id"`
	AccessToken string    `json:"access_token"`
	HomeServer  string    `json:"home_server"`
}

// RespInitialSync is the JSON response for the initialSync endpoint: the full
// current state of the session. The per-room initialSync endpoint returns a
// bare room object instead; RoomInitialSync wraps it into this same shape so
// downstream consumers only deal with one.
type RespInitialSync struct {
	Rooms    []*SyncRoom      `json:"rooms"`
	Presence []*event.Message `json:"presence"`
	End      string           `json:"end,omitempty"`
}

// SyncRoom is a single room block within an initial sync.
type SyncRoom struct {
	RoomID     id.RoomID    `json:"room_id"`
	Membership string       `json:"membership,omitempty"`
	Messages   MessageChunk `json:"messages"`
	State      []*event.State `json:"state"`
}

// MessageChunk is a paginated slice of timeline events.
type MessageChunk struct {
	Chunk []*event.Message `json:"chunk"`
	Start string           `json:"start,omitempty"`
	End   string           `json:"end,omitempty"`
}

// Aliases flattens all m.room.aliases state entries of the room into one
// list, in state array order.
func (room *SyncRoom) Aliases() []string {
	var aliases []string
	for _, state := range room.State {
		if state.Type == event.StateAliases {
			aliases = append(aliases, state.Content.Aliases()...)
		}
	}
	return aliases
}

// ChatMessages returns the chat-relevant subset of the room's timeline:
// room creation, membership changes and actual messages.
func (room *SyncRoom) ChatMessages() []*event.Message {
	messages := make([]*event.Message, 0, len(room.Messages.Chunk))
	for _, msg := range room.Messages.Chunk {
		if event.IsChatMessage(msg.Type) {
			messages = append(messages, msg)
		}
	}
	return messages
}

// RespEvents is the JSON response for the events long-poll endpoint. End is
// the cursor to resume from on the next poll.
type RespEvents struct {
	Chunk []*event.Message `json:"chunk"`
	Start string           `json:"start,omitempty"`
	End   string           `json:"end"`
}

// RespSendEvent is the JSON response for event send endpoints.
type RespSendEvent struct {
	EventID id.EventID `json:"event_id"`
}

// RespCreateRoom is the JSON response for the createRoom endpoint.
type RespCreateRoom struct {
	RoomID    id.RoomID    `json:"room_id"`
	RoomAlias id.RoomAlias `json:"room_alias"`
}

// RespJoinRoom is the JSON response for the join endpoint.
type RespJoinRoom struct {
	RoomID id.RoomID `json:"room_id"`
}

// RespRoomDirectory is the JSON response for the room directory lookup.
type RespRoomDirectory struct {
	RoomID  id.RoomID `json:"room_id"`
	Servers []string  `json:"servers,omitempty"`
}

// RespInviteUser is the JSON response for the room invite endpoint.
type RespInviteUser struct{}

// RespBanUser is the JSON response for the membership state PUT used to ban.
type RespBanUser struct {
	EventID id.EventID `json:"event_id,omitempty"`
}

// RespLeaveRoom is the JSON response for the room leave endpoint.
type RespLeaveRoom struct{}
