// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewUserState(t *testing.T) {
	us := newUserState("@alice:example.org", "Alice", "")
	assert.Equal(t, UnknownLastActive, us.LastActiveAgo)
	// Unknown activity clamps to the decade cap, leaving the minimum weight.
	assert.Equal(t, int64(1), us.Weight)
}

func TestComputeWeight(t *testing.T) {
	us := &UserState{UserID: "@alice:example.org", LastActiveAgo: 5000}
	assert.Equal(t, int64(315359996), us.computeWeight())

	us.Typing = true
	assert.Equal(t, int64(630719992), us.computeWeight())

	us.Present = true
	assert.Equal(t, int64(1261439984), us.computeWeight())

	us.Typing = false
	assert.Equal(t, int64(630719992), us.computeWeight())
}

func TestComputeWeight_Clamp(t *testing.T) {
	us := &UserState{LastActiveAgo: UnknownLastActive}
	assert.Equal(t, int64(1), us.computeWeight())

	// Anything past a decade of inactivity is equivalent to unknown.
	us.LastActiveAgo = (secondsPerDecade + 1000000) * 1000
	assert.Equal(t, int64(1), us.computeWeight())

	us.LastActiveAgo = 0
	assert.Equal(t, secondsPerDecade+1, us.computeWeight())
}
