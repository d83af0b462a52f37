// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package event_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perch-im/perch/event"
	"github.com/perch-im/perch/id"
)

func TestParseChunk(t *testing.T) {
	messages, err := event.ParseChunk([]byte(`[
		{"event_id": "$a", "origin_server_ts": 1000, "room_id": "!r:example.org", "type": "m.room.message", "user_id": "@alice:example.org", "content": {"msgtype": "m.text", "body": "hi"}},
		{"type": "m.typing", "content": {"user_ids": ["@bob:example.org"]}}
	]`))
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, id.EventID("$a"), messages[0].ID)
	assert.Equal(t, int64(1000), messages[0].Timestamp)
	assert.Equal(t, id.RoomID("!r:example.org"), messages[0].RoomID)
	assert.Equal(t, "hi", messages[0].Content.Body())
	// Missing fields stay at their zero values.
	assert.Equal(t, id.EventID(""), messages[1].ID)
	assert.Equal(t, id.RoomID(""), messages[1].RoomID)
	assert.Equal(t, id.UserID(""), messages[1].Sender)
}

func TestParseChunk_Malformed(t *testing.T) {
	_, err := event.ParseChunk([]byte(`{"not": "an array"}`))
	assert.Error(t, err)
	_, err = event.ParseChunk([]byte(`[{]`))
	assert.Error(t, err)
}

func TestParseStates(t *testing.T) {
	states, err := event.ParseStates([]byte(`[
		{"type": "m.room.member", "user_id": "@alice:example.org", "state_key": "@bob:example.org", "content": {"membership": "join"}}
	]`))
	require.NoError(t, err)
	require.Len(t, states, 1)
	assert.Equal(t, "@bob:example.org", states[0].StateKey)
	assert.Equal(t, event.MembershipJoin, states[0].Content.Membership())
}

func TestIsChatMessage(t *testing.T) {
	assert.True(t, event.IsChatMessage(event.StateCreate))
	assert.True(t, event.IsChatMessage(event.StateMember))
	assert.True(t, event.IsChatMessage(event.EventMessage))
	assert.False(t, event.IsChatMessage(event.StateTopic))
	assert.False(t, event.IsChatMessage(event.StateAliases))
	assert.False(t, event.IsChatMessage(event.EphemeralTyping))
}
