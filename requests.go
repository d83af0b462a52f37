// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package perch

import (
	"github.com/perch-im/perch/id"
)

// ReqLogin is the JSON request for the login endpoint.
type ReqLogin struct {
	Type     string `json:"type"`
	User     string `json:"user"`
	Password string `json:"password"`
}

// AuthTypePassword is the only login flow this client speaks.
const AuthTypePassword = "m.login.password"

// ReqCreateRoom is the JSON request for the createRoom endpoint.
type ReqCreateRoom struct {
	RoomAliasName string `json:"room_alias_name"`
	Visibility    string `json:"visibility"`
}

// ReqInviteUser is the JSON request for the room invite endpoint.
type ReqInviteUser struct {
	UserID id.UserID `json:"user_id"`
}

// ReqSendMessage is the JSON content of an outgoing m.room.message event.
type ReqSendMessage struct {
	MsgType       string `json:"msgtype"`
	Body          string `json:"body"`
	Format        string `json:"format,omitempty"`
	FormattedBody string `json:"formatted_body,omitempty"`
}

// ReqMemberState is the JSON content for a membership state PUT. Banning a
// member rewrites their member state with membership=ban while carrying the
// profile fields over.
type ReqMemberState struct {
	Membership  string `json:"membership"`
	Displayname string `json:"displayname,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}
