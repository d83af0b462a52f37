// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package event defines the wire shapes of timeline and state events and the
// normalization from raw payloads into them.
package event

import (
	"encoding/json"

	"github.com/perch-im/perch/id"
)

// Message is a single normalized event from a timeline chunk or the event
// feed. Messages are immutable after parsing; Content is kept verbatim and
// interpreted downstream based on Type.
//
// All fields other than the raw payload itself are optional on the wire and
// default to their zero values, so normalization never fails on missing
// fields.
type Message struct {
	ID        id.EventID `json:"event_id,omitempty"`
	Timestamp int64      `json:"origin_server_ts"`
	RoomID    id.RoomID  `json:"room_id,omitempty"`
	Type      string     `json:"type"`
	Sender    id.UserID  `json:"user_id"`
	Content   Content    `json:"content"`
}

// State is a room state event from an initial sync. StateKey disambiguates
// multiple events of the same type within a room (for membership events it is
// the affected member's user ID).
type State struct {
	Type      string    `json:"type"`
	Timestamp int64     `json:"origin_server_ts"`
	Sender    id.UserID `json:"user_id"`
	StateKey  string    `json:"state_key"`
	Content   Content   `json:"content"`
}

// Content is the opaque content object of an event, kept as raw JSON.
type Content json.RawMessage

func (content Content) MarshalJSON() ([]byte, error) {
	if len(content) == 0 {
		return []byte("null"), nil
	}
	return content, nil
}

func (content *Content) UnmarshalJSON(data []byte) error {
	*content = append((*content)[0:0], data...)
	return nil
}

// ParseChunk normalizes a raw JSON array of heterogeneous event objects into
// an ordered list of messages. It only fails if the payload is not a
// well-formed array; missing fields inside individual events are fine.
func ParseChunk(data []byte) ([]*Message, error) {
	var messages []*Message
	if err := json.Unmarshal(data, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

// ParseStates normalizes a raw JSON array of state events.
func ParseStates(data []byte) ([]*State, error) {
	var states []*State
	if err := json.Unmarshal(data, &states); err != nil {
		return nil, err
	}
	return states, nil
}
