// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package state implements the reconciliation store: it merges initial sync
// snapshots with the incremental event feed into one consistent view of
// rooms, timelines and per-room member rosters.
package state

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"go.mau.fi/util/exzerolog"
	"golang.org/x/exp/slices"
	"golang.org/x/sync/singleflight"

	"github.com/perch-im/perch"
	"github.com/perch-im/perch/event"
	"github.com/perch-im/perch/id"
)

// RoomSyncer fetches the full state of a single room. Implemented by
// perch.Client; used to materialize rooms the logged-in user just joined.
type RoomSyncer interface {
	RoomInitialSync(ctx context.Context, roomID id.RoomID) (*perch.RespInitialSync, error)
}

// RoomState is a room's ambient descriptor. Aliases only ever grow, and
// repeated full syncs append duplicates; consumers that care should look at
// AliasOrID.
type RoomState struct {
	ID      id.RoomID
	Aliases []string
}

// AliasOrID returns the room's first alias, falling back to the room ID.
func (rs RoomState) AliasOrID() string {
	if len(rs.Aliases) > 0 {
		return rs.Aliases[0]
	}
	return rs.ID.String()
}

type room struct {
	state    RoomState
	messages []*event.Message
	users    []*UserState
}

// Store is the mutable client-side view of the session. The two mutation
// entry points (ProcessSyncResult, ProcessEventsResult) are serialized by a
// single mutex; reads return copied snapshots and may run concurrently with
// mutation.
type Store struct {
	// SelfUserID is the logged-in user; their join/leave events get special
	// treatment (room materialization and removal).
	SelfUserID id.UserID
	Log        zerolog.Logger

	// AvatarResolver turns mxc avatar references into displayable URLs.
	// Typically (*perch.Client).AvatarThumbnailURL. Nil keeps references as-is.
	AvatarResolver func(mxc string) string
	// Syncer performs the room-scoped sync triggered by a self-join event.
	Syncer RoomSyncer
	// EventHandler, if set, receives change notifications (the types in
	// events.go) after each batch is applied, outside the store lock.
	EventHandler func(evt any)

	mu    sync.Mutex
	rooms map[id.RoomID]*room
	order []id.RoomID

	resync singleflight.Group
}

// NewStore creates an empty store for the given logged-in user.
func NewStore(selfUserID id.UserID) *Store {
	return &Store{
		SelfUserID: selfUserID,
		Log:        zerolog.Nop(),
		rooms:      make(map[id.RoomID]*room),
	}
}

func (s *Store) resolveAvatar(mxc string) string {
	if s.AvatarResolver == nil {
		return mxc
	}
	return s.AvatarResolver(mxc)
}

func (s *Store) dispatch(events []any) {
	if s.EventHandler == nil {
		return
	}
	for _, evt := range events {
		s.EventHandler(evt)
	}
}

// ProcessSyncResult merges a full (or room-scoped) sync result into the
// store. Rooms are upserted, their timelines replaced with the chat-relevant
// subset, rosters rebuilt from membership state in array order, and presence
// applied last. Aliases are appended without deduplication.
func (s *Store) ProcessSyncResult(ctx context.Context, result *perch.RespInitialSync) {
	if result == nil {
		return
	}
	s.mu.Lock()
	roomListChanged := false
	for _, syncRoom := range result.Rooms {
		if syncRoom == nil || syncRoom.RoomID == "" {
			s.Log.Warn().Msg("Sync result contained a room without an ID, skipping")
			continue
		}
		r, ok := s.rooms[syncRoom.RoomID]
		if !ok {
			r = &room{state: RoomState{ID: syncRoom.RoomID}}
			s.rooms[syncRoom.RoomID] = r
			s.order = append(s.order, syncRoom.RoomID)
			roomListChanged = true
		}
		r.state.Aliases = append(r.state.Aliases, syncRoom.Aliases()...)
		r.messages = syncRoom.ChatMessages()
		for _, st := range syncRoom.State {
			s.applyStateLocked(r, st)
		}
	}
	for _, msg := range result.Presence {
		if msg.Type == event.EphemeralPresence {
			s.applyPresenceLocked(msg, func(id.RoomID) {})
		}
	}
	s.sortRostersLocked()
	notifications := make([]any, 0, 2)
	if roomListChanged {
		notifications = append(notifications, RoomListChanged{Rooms: s.roomStatesLocked()})
	}
	notifications = append(notifications, SyncComplete{})
	s.mu.Unlock()
	s.dispatch(notifications)
}

func (s *Store) applyStateLocked(r *room, st *event.State) {
	switch st.Type {
	case event.StateMember:
		switch membership := st.Content.Membership(); membership {
		case event.MembershipJoin:
			// Joins key the roster entry by the event's state key and
			// overwrite any existing entry outright.
			target := id.UserID(st.StateKey)
			us := newUserState(target, st.Content.Displayname(st.StateKey), s.resolveAvatar(st.Content.AvatarURL()))
			if idx := indexOfUser(r.users, func(u *UserState) bool { return u.UserID == target }); idx >= 0 {
				r.users[idx] = us
			} else {
				r.users = append(r.users, us)
			}
		case event.MembershipLeave:
			// Leaves remove by the event's sender, not the state key.
			removeFirstUser(r, func(u *UserState) bool { return u.UserID == st.Sender })
		default:
			s.Log.Warn().
				Stringer("room_id", r.state.ID).
				Str("membership", string(membership)).
				Str("state_key", st.StateKey).
				Msg("Unhandled membership in state event")
		}
	case event.StateAliases, event.StateCreate, event.StateJoinRules, event.StatePowerLevels,
		event.StateTopic, event.StateRoomName, event.StateConfig:
		// Recognized, no state to track yet.
	default:
		s.Log.Warn().
			Stringer("room_id", r.state.ID).
			Str("state_type", st.Type).
			Msg("Unhandled state event type")
	}
}

// ProcessEventsResult applies an incremental batch from the event feed, in
// array order, then re-sorts every roster by weight. It implements
// perch.EventProcessor.
func (s *Store) ProcessEventsResult(ctx context.Context, resp *perch.RespEvents) {
	if resp == nil {
		return
	}
	s.mu.Lock()
	appended := make(map[id.RoomID][]*event.Message)
	var appendOrder []id.RoomID
	removedRooms := make([]any, 0)
	roomListChanged := false
	appendMessage := func(roomID id.RoomID, msg *event.Message) {
		if _, ok := appended[roomID]; !ok {
			appendOrder = append(appendOrder, roomID)
		}
		appended[roomID] = append(appended[roomID], msg)
	}
	rosterChanged := make(map[id.RoomID]struct{})
	markRoster := func(roomID id.RoomID) {
		rosterChanged[roomID] = struct{}{}
	}
	for _, msg := range resp.Chunk {
		switch msg.Type {
		case event.EphemeralTyping:
			s.applyTypingLocked(msg, markRoster)
		case event.EphemeralPresence:
			s.applyPresenceLocked(msg, markRoster)
		case event.EventMessage:
			if msg.RoomID == "" {
				continue
			}
			r, ok := s.rooms[msg.RoomID]
			if !ok {
				s.Log.Debug().Stringer("room_id", msg.RoomID).Msg("Dropping message for unknown room")
				continue
			}
			r.messages = append(r.messages, msg)
			appendMessage(msg.RoomID, msg)
		case event.StateMember:
			if msg.RoomID == "" {
				continue
			}
			r, known := s.rooms[msg.RoomID]
			if known {
				r.messages = append(r.messages, msg)
				appendMessage(msg.RoomID, msg)
			}
			switch membership := msg.Content.Membership(); membership {
			case event.MembershipJoin:
				if msg.Sender == s.SelfUserID && !known {
					// We just joined a room the store has never seen; pull
					// its full state in the background.
					s.triggerRoomSync(ctx, msg.RoomID)
					continue
				}
				if !known {
					continue
				}
				// Incremental joins key by the sender and update the profile
				// fields of an existing entry in place.
				if idx := indexOfUser(r.users, func(u *UserState) bool { return u.UserID == msg.Sender }); idx >= 0 {
					r.users[idx].DisplayName = msg.Content.Displayname(msg.Sender.String())
					r.users[idx].AvatarURL = s.resolveAvatar(msg.Content.AvatarURL())
				} else {
					r.users = append(r.users, newUserState(msg.Sender,
						msg.Content.Displayname(msg.Sender.String()),
						s.resolveAvatar(msg.Content.AvatarURL())))
				}
				markRoster(msg.RoomID)
			case event.MembershipLeave:
				if msg.Sender == s.SelfUserID {
					if known {
						s.removeRoomLocked(msg.RoomID)
						removedRooms = append(removedRooms, RoomRemoved{RoomID: msg.RoomID})
						delete(appended, msg.RoomID)
						roomListChanged = true
					}
					continue
				}
				if known && removeFirstUser(r, func(u *UserState) bool { return u.UserID == msg.Sender }) {
					markRoster(msg.RoomID)
				}
			case event.MembershipBan:
				// Bans match by display name. Fragile, but it is what the
				// membership rewrite on the sending side produces.
				if known {
					banned := msg.Content.Displayname("")
					if removeFirstUser(r, func(u *UserState) bool { return u.DisplayName == banned }) {
						markRoster(msg.RoomID)
					}
				}
			default:
				s.Log.Warn().
					Stringer("room_id", msg.RoomID).
					Str("membership", string(membership)).
					Msg("Unhandled membership in feed event")
			}
		case event.StateAliases:
			if msg.RoomID == "" {
				continue
			}
			if r, ok := s.rooms[msg.RoomID]; ok {
				r.state.Aliases = append(r.state.Aliases, msg.Content.Aliases()...)
			}
		default:
			s.Log.Warn().
				Str("type", msg.Type).
				Stringer("sender", msg.Sender).
				Msg("Unhandled event in feed")
		}
	}
	s.sortRostersLocked()
	notifications := make([]any, 0, len(appendOrder)+len(removedRooms)+1)
	for _, roomID := range appendOrder {
		if msgs, ok := appended[roomID]; ok {
			notifications = append(notifications, MessagesAppended{RoomID: roomID, Messages: msgs})
		}
	}
	for _, roomID := range s.order {
		if _, ok := rosterChanged[roomID]; ok {
			notifications = append(notifications, RosterChanged{RoomID: roomID})
		}
	}
	notifications = append(notifications, removedRooms...)
	if roomListChanged {
		notifications = append(notifications, RoomListChanged{Rooms: s.roomStatesLocked()})
	}
	s.mu.Unlock()
	s.dispatch(notifications)
}

func (s *Store) applyTypingLocked(msg *event.Message, markRoster func(id.RoomID)) {
	typingIDs := msg.Content.TypingUserIDs()
	s.Log.Trace().
		Array("user_ids", exzerolog.ArrayOfStringers(typingIDs)).
		Msg("Applying typing update to all rosters")
	typing := make(map[id.UserID]struct{}, len(typingIDs))
	for _, userID := range typingIDs {
		typing[userID] = struct{}{}
	}
	// The feed's typing event carries no room ID in this protocol version,
	// so the set is applied to every roster.
	for roomID, r := range s.rooms {
		for _, us := range r.users {
			_, isTyping := typing[us.UserID]
			if us.Typing != isTyping {
				us.Typing = isTyping
				us.Weight = us.computeWeight()
				markRoster(roomID)
			}
		}
	}
}

func (s *Store) applyPresenceLocked(msg *event.Message, markRoster func(id.RoomID)) {
	userID := msg.Content.PresenceUserID()
	if userID == "" {
		return
	}
	present := msg.Content.Presence() == "online"
	lastActive, ok := msg.Content.LastActiveAgo()
	if !ok {
		lastActive = UnknownLastActive
	}
	// Presence is likewise not room-scoped: update the user's entry in every
	// roster that has one.
	for roomID, r := range s.rooms {
		if idx := indexOfUser(r.users, func(u *UserState) bool { return u.UserID == userID }); idx >= 0 {
			us := r.users[idx]
			if us.Present != present || us.LastActiveAgo != lastActive {
				us.Present = present
				us.LastActiveAgo = lastActive
				us.Weight = us.computeWeight()
				markRoster(roomID)
			}
		}
	}
}

func (s *Store) triggerRoomSync(ctx context.Context, roomID id.RoomID) {
	if s.Syncer == nil {
		s.Log.Warn().Stringer("room_id", roomID).Msg("Self-join for unknown room but no room syncer configured")
		return
	}
	bgCtx := context.WithoutCancel(ctx)
	go func() {
		resp, err, _ := s.resync.Do(roomID.String(), func() (any, error) {
			return s.Syncer.RoomInitialSync(bgCtx, roomID)
		})
		if err != nil {
			// No retry here: the room stays absent until the next full sync.
			s.Log.Warn().Err(err).Stringer("room_id", roomID).Msg("Room sync after self-join failed")
			return
		}
		s.ProcessSyncResult(bgCtx, resp.(*perch.RespInitialSync))
	}()
}

func (s *Store) removeRoomLocked(roomID id.RoomID) {
	delete(s.rooms, roomID)
	if idx := slices.Index(s.order, roomID); idx >= 0 {
		s.order = slices.Delete(s.order, idx, idx+1)
	}
}

func (s *Store) sortRostersLocked() {
	for _, r := range s.rooms {
		slices.SortFunc(r.users, func(a, b *UserState) int {
			switch {
			case a.Weight > b.Weight:
				return -1
			case a.Weight < b.Weight:
				return 1
			default:
				return 0
			}
		})
	}
}

func indexOfUser(users []*UserState, match func(*UserState) bool) int {
	for i, us := range users {
		if match(us) {
			return i
		}
	}
	return -1
}

func removeFirstUser(r *room, match func(*UserState) bool) bool {
	if idx := indexOfUser(r.users, match); idx >= 0 {
		r.users = slices.Delete(r.users, idx, idx+1)
		return true
	}
	return false
}

func (s *Store) roomStatesLocked() []RoomState {
	rooms := make([]RoomState, 0, len(s.order))
	for _, roomID := range s.order {
		if r, ok := s.rooms[roomID]; ok {
			rooms = append(rooms, RoomState{ID: r.state.ID, Aliases: slices.Clone(r.state.Aliases)})
		}
	}
	return rooms
}

// Rooms returns a snapshot of all known rooms in first-seen order.
func (s *Store) Rooms() []RoomState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roomStatesLocked()
}

// Room returns a snapshot of a single room's descriptor.
func (s *Store) Room(roomID id.RoomID) (RoomState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[roomID]
	if !ok {
		return RoomState{}, false
	}
	return RoomState{ID: r.state.ID, Aliases: slices.Clone(r.state.Aliases)}, true
}

// Messages returns a snapshot of a room's timeline. The messages themselves
// are immutable and shared.
func (s *Store) Messages(roomID id.RoomID) []*event.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[roomID]
	if !ok {
		return nil
	}
	return slices.Clone(r.messages)
}

// Users returns a snapshot of a room's roster, sorted descending by weight.
func (s *Store) Users(roomID id.RoomID) []UserState {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[roomID]
	if !ok {
		return nil
	}
	users := make([]UserState, len(r.users))
	for i, us := range r.users {
		users[i] = *us
	}
	return users
}
