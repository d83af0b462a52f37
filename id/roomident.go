// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package id

import (
	"errors"
	"fmt"
)

var ErrInvalidRoomIdentifier = errors.New("invalid room identifier: must start with ! or #")

// RoomIdentifier is a user-entered room reference: either a literal room ID
// or a room alias that still needs to be resolved through the directory.
type RoomIdentifier interface {
	fmt.Stringer
	roomIdentifier()
}

func (RoomID) roomIdentifier()    {}
func (RoomAlias) roomIdentifier() {}

// ParseRoomIdentifier classifies a user-entered room reference by its sigil.
// Anything that is neither a room ID nor an alias is rejected here, before
// any network request is made.
func ParseRoomIdentifier(input string) (RoomIdentifier, error) {
	if len(input) < 2 {
		return nil, ErrInvalidRoomIdentifier
	}
	switch input[0] {
	case '!':
		return RoomID(input), nil
	case '#':
		return RoomAlias(input), nil
	default:
		return nil, ErrInvalidRoomIdentifier
	}
}
