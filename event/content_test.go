// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package event_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/perch-im/perch/event"
	"github.com/perch-im/perch/id"
)

func TestContent_Displayname(t *testing.T) {
	assert.Equal(t, "Alice", event.Content(`{"displayname": "Alice"}`).Displayname("@alice:example.org"))
	// Absent or mistyped fields fall back.
	assert.Equal(t, "@alice:example.org", event.Content(`{}`).Displayname("@alice:example.org"))
	assert.Equal(t, "@alice:example.org", event.Content(`{"displayname": null}`).Displayname("@alice:example.org"))
	assert.Equal(t, "@alice:example.org", event.Content(`{"displayname": 42}`).Displayname("@alice:example.org"))
}

func TestContent_FormattedBody(t *testing.T) {
	html := event.Content(`{"body": "hi", "format": "org.matrix.custom.html", "formatted_body": "<b>hi</b>"}`)
	assert.Equal(t, "<b>hi</b>", html.FormattedBody())
	// Formatted body is only honored with the right format field.
	noFormat := event.Content(`{"body": "hi", "formatted_body": "<b>hi</b>"}`)
	assert.Equal(t, "", noFormat.FormattedBody())
	assert.Equal(t, "hi", noFormat.Body())
}

func TestContent_TypingUserIDs(t *testing.T) {
	content := event.Content(`{"user_ids": ["@a:example.org", "@b:example.org"]}`)
	assert.Equal(t, []id.UserID{"@a:example.org", "@b:example.org"}, content.TypingUserIDs())
	assert.Empty(t, event.Content(`{}`).TypingUserIDs())
}

func TestContent_Presence(t *testing.T) {
	content := event.Content(`{"user_id": "@a:example.org", "presence": "online", "last_active_ago": 5000}`)
	assert.Equal(t, id.UserID("@a:example.org"), content.PresenceUserID())
	assert.Equal(t, "online", content.Presence())
	ago, ok := content.LastActiveAgo()
	assert.True(t, ok)
	assert.Equal(t, int64(5000), ago)

	_, ok = event.Content(`{"user_id": "@a:example.org", "presence": "offline"}`).LastActiveAgo()
	assert.False(t, ok)
}

func TestContent_Aliases(t *testing.T) {
	content := event.Content(`{"aliases": ["#a:example.org", 42, null]}`)
	// Non-string elements are stringified, not dropped.
	assert.Equal(t, []string{"#a:example.org", "42", ""}, content.Aliases())
}

func TestContent_Membership(t *testing.T) {
	assert.Equal(t, event.MembershipBan, event.Content(`{"membership": "ban"}`).Membership())
	assert.Equal(t, event.Membership(""), event.Content(`{}`).Membership())
	assert.True(t, event.MembershipJoin.IsInviteOrJoin())
	assert.True(t, event.MembershipBan.IsLeaveOrBan())
	assert.False(t, event.MembershipInvite.IsLeaveOrBan())
}
