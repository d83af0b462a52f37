// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package state

import (
	"math"

	"github.com/perch-im/perch/id"
)

// UnknownLastActive is the sentinel for a member whose last activity has
// never been reported. It is effectively infinite: after the decade clamp in
// the weight formula it produces the minimum base weight.
const UnknownLastActive int64 = math.MaxInt64

const secondsPerDecade int64 = 10 * 365 * 24 * 60 * 60

// UserState is one room's view of a member. Rosters are per-room by design:
// the same user in two rooms has two independent entries.
type UserState struct {
	UserID      id.UserID
	DisplayName string
	AvatarURL   string

	Typing        bool
	Present       bool
	LastActiveAgo int64 // milliseconds; UnknownLastActive when never reported

	// Weight ranks the member within the roster. Derived; recomputed by the
	// store whenever Typing, Present or LastActiveAgo change.
	Weight int64
}

func newUserState(userID id.UserID, displayName, avatarURL string) *UserState {
	us := &UserState{
		UserID:        userID,
		DisplayName:   displayName,
		AvatarURL:     avatarURL,
		LastActiveAgo: UnknownLastActive,
	}
	us.Weight = us.computeWeight()
	return us
}

// computeWeight derives the ranking weight: recent activity raises it, and
// typing and presence each double it independently.
func (us *UserState) computeWeight() int64 {
	laSec := us.LastActiveAgo / 1000
	if laSec > secondsPerDecade {
		laSec = secondsPerDecade
	}
	weight := 1 + (secondsPerDecade - laSec)
	if us.Typing {
		weight *= 2
	}
	if us.Present {
		weight *= 2
	}
	return weight
}
