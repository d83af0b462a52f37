// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package state

import (
	"github.com/perch-im/perch/event"
	"github.com/perch-im/perch/id"
)

// Change notifications handed to Store.EventHandler. All payloads are
// snapshots; handlers never see live store internals.

// RoomListChanged fires when rooms appear in or disappear from the store.
type RoomListChanged struct {
	Rooms []RoomState
}

// MessagesAppended fires when timeline messages are appended to a room
// outside of a full sync.
type MessagesAppended struct {
	RoomID   id.RoomID
	Messages []*event.Message
}

// RosterChanged fires when a room's member list or ranking changed.
type RosterChanged struct {
	RoomID id.RoomID
}

// RoomRemoved fires when the logged-in user left a room and it was dropped
// from the store.
type RoomRemoved struct {
	RoomID id.RoomID
}

// SyncComplete fires after a full sync result has been applied.
type SyncComplete struct{}
