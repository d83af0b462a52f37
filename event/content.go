// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package event

import (
	"github.com/tidwall/gjson"

	"github.com/perch-im/perch/id"
)

// Content accessors peek into the opaque payload with gjson. They never fail:
// missing or mistyped fields come back as zero values, matching how lenient
// the rest of the normalizer is about partial events.

func (content Content) get(path string) gjson.Result {
	return gjson.GetBytes([]byte(content), path)
}

// Membership returns the membership field of an m.room.member content.
func (content Content) Membership() Membership {
	return Membership(content.get("membership").Str)
}

// Displayname returns the displayname field, or the given fallback when the
// field is absent or not a string.
func (content Content) Displayname(fallback string) string {
	if res := content.get("displayname"); res.Type == gjson.String {
		return res.Str
	}
	return fallback
}

// AvatarURL returns the avatar_url field (an unresolved mxc reference).
func (content Content) AvatarURL() string {
	return content.get("avatar_url").Str
}

// Body returns the plaintext body of an m.room.message content.
func (content Content) Body() string {
	return content.get("body").Str
}

// FormattedBody returns the HTML body of an m.room.message content, or an
// empty string if the content isn't HTML-formatted.
func (content Content) FormattedBody() string {
	if content.get("format").Str != FormatHTML {
		return ""
	}
	return content.get("formatted_body").Str
}

// Creator returns the creator field of an m.room.create content.
func (content Content) Creator() id.UserID {
	return id.UserID(content.get("creator").Str)
}

// TypingUserIDs returns the authoritative list of currently typing users
// from an m.typing content.
func (content Content) TypingUserIDs() []id.UserID {
	results := content.get("user_ids").Array()
	typing := make([]id.UserID, len(results))
	for i, res := range results {
		typing[i] = id.UserID(res.String())
	}
	return typing
}

// PresenceUserID returns the user the presence update is about.
func (content Content) PresenceUserID() id.UserID {
	return id.UserID(content.get("user_id").Str)
}

// Presence returns the presence state string ("online", "offline", ...).
func (content Content) Presence() string {
	return content.get("presence").Str
}

// LastActiveAgo returns the last_active_ago field in milliseconds. The second
// return value is false when the field is absent.
func (content Content) LastActiveAgo() (int64, bool) {
	res := content.get("last_active_ago")
	if !res.Exists() {
		return 0, false
	}
	return res.Int(), true
}

// Aliases returns the aliases array of an m.room.aliases content. Non-string
// elements are stringified rather than dropped.
func (content Content) Aliases() []string {
	results := content.get("aliases").Array()
	aliases := make([]string, len(results))
	for i, res := range results {
		aliases[i] = res.String()
	}
	return aliases
}
