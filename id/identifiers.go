// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package id

// A UserID is a string starting with @ that identifies a user on a homeserver.
type UserID string

// A RoomID is a string starting with ! that references a specific room.
type RoomID string

// A RoomAlias is a string starting with # that can be resolved into a room ID
// through the room directory.
type RoomAlias string

// An EventID is a string starting with $ that references a specific event.
type EventID string

func (userID UserID) String() string {
	return string(userID)
}

func (roomID RoomID) String() string {
	return string(roomID)
}

func (roomAlias RoomAlias) String() string {
	return string(roomAlias)
}

func (eventID EventID) String() string {
	return string(eventID)
}
