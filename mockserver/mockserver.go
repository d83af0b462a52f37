// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package mockserver provides an in-process fake homeserver for tests.
package mockserver

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/sjson"
	"go.mau.fi/util/random"

	"github.com/perch-im/perch"
	"github.com/perch-im/perch/id"
)

const DefaultUserID = id.UserID("@tester:example.org")

// MockServer implements the slice of the client-server API that the client
// under test speaks. All mutable fields are guarded by mu; handlers record
// what they saw so tests can assert on it.
type MockServer struct {
	Router *mux.Router
	Server *httptest.Server

	UserID      id.UserID
	AccessToken string

	mu              sync.Mutex
	initialSync     json.RawMessage
	roomSyncs       map[id.RoomID]json.RawMessage
	aliasDirectory  map[id.RoomAlias]id.RoomID
	eventQueue      []json.RawMessage
	eventCounter    int
	failEventPolls  int
	EventPollFroms  []string
	SentMessages    []SentMessage
	MemberStatePuts []MemberStatePut
	LeftRooms       []id.RoomID
	InvitedUsers    []id.UserID
}

// SentMessage records one send-message request.
type SentMessage struct {
	RoomID id.RoomID
	TxnID  string
	Body   json.RawMessage
}

// MemberStatePut records one membership state PUT (the ban path).
type MemberStatePut struct {
	RoomID  id.RoomID
	UserID  id.UserID
	Content json.RawMessage
}

// Create starts a mock server that is shut down with the test.
func Create(t *testing.T) *MockServer {
	t.Helper()
	ms := &MockServer{
		UserID:         DefaultUserID,
		AccessToken:    random.String(32),
		roomSyncs:      map[id.RoomID]json.RawMessage{},
		aliasDirectory: map[id.RoomAlias]id.RoomID{},
		initialSync:    json.RawMessage(`{"rooms": [], "presence": [], "end": "s0"}`),
	}

	router := mux.NewRouter()
	api := router.PathPrefix("/_matrix/client/api/v1").Subrouter()
	api.HandleFunc("/login", ms.postLogin).Methods(http.MethodPost)
	api.HandleFunc("/initialSync", ms.getInitialSync).Methods(http.MethodGet)
	api.HandleFunc("/rooms/{roomID}/initialSync", ms.getRoomInitialSync).Methods(http.MethodGet)
	api.HandleFunc("/events", ms.getEvents).Methods(http.MethodGet)
	api.HandleFunc("/rooms/{roomID}/send/m.room.message", ms.postSendMessage).Methods(http.MethodPost)
	api.HandleFunc("/createRoom", ms.postCreateRoom).Methods(http.MethodPost)
	api.HandleFunc("/join/{roomID}", ms.postJoin).Methods(http.MethodPost)
	api.HandleFunc("/rooms/{roomID}/invite", ms.postInvite).Methods(http.MethodPost)
	api.HandleFunc("/rooms/{roomID}/leave", ms.postLeave).Methods(http.MethodPost)
	api.HandleFunc("/rooms/{roomID}/state/m.room.member/{userID}", ms.putMemberState).Methods(http.MethodPut)
	api.HandleFunc("/directory/room/{alias}", ms.getDirectoryRoom).Methods(http.MethodGet)

	ms.Router = router
	ms.Server = httptest.NewServer(router)
	t.Cleanup(ms.Server.Close)
	return ms
}

// Client returns a protocol client pointed at the mock server with
// credentials already stored.
func (ms *MockServer) Client(t *testing.T) *perch.Client {
	t.Helper()
	cli, err := perch.NewClient(ms.Server.URL, ms.UserID, ms.AccessToken)
	require.NoError(t, err)
	return cli
}

// SetInitialSync replaces the canned initialSync response body.
func (ms *MockServer) SetInitialSync(body string) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.initialSync = json.RawMessage(body)
}

// SetRoomSync sets the canned per-room initialSync response body.
func (ms *MockServer) SetRoomSync(roomID id.RoomID, body string) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.roomSyncs[roomID] = json.RawMessage(body)
}

// SetAlias maps an alias in the room directory.
func (ms *MockServer) SetAlias(alias id.RoomAlias, roomID id.RoomID) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.aliasDirectory[alias] = roomID
}

// QueueEvents appends one event feed batch (a raw JSON array of events) to
// be returned by the next successful poll.
func (ms *MockServer) QueueEvents(chunk string) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.eventQueue = append(ms.eventQueue, json.RawMessage(chunk))
}

// WithLock runs fn while holding the server's mutex so tests can inspect
// the recorded requests safely.
func (ms *MockServer) WithLock(fn func()) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	fn()
}

// FailEventPolls makes the next n event polls fail with HTTP 500.
func (ms *MockServer) FailEventPolls(n int) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.failEventPolls = n
}

func (ms *MockServer) checkAuth(w http.ResponseWriter, r *http.Request) bool {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if token != ms.AccessToken {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"errcode": "M_UNKNOWN_TOKEN", "error": "Unrecognised access token"}`))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(body))
}

func (ms *MockServer) postLogin(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	var req perch.ReqLogin
	if err := json.Unmarshal(body, &req); err != nil || req.User == "" || req.Password == "" {
		w.WriteHeader(http.StatusForbidden)
		writeJSON(w, `{"errcode": "M_FORBIDDEN", "error": "Invalid password"}`)
		return
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	resp, _ := sjson.Set(`{"home_server": "example.org"}`, "user_id", ms.UserID.String())
	resp, _ = sjson.Set(resp, "access_token", ms.AccessToken)
	writeJSON(w, resp)
}

func (ms *MockServer) getInitialSync(w http.ResponseWriter, r *http.Request) {
	if !ms.checkAuth(w, r) {
		return
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	writeJSON(w, string(ms.initialSync))
}

func (ms *MockServer) getRoomInitialSync(w http.ResponseWriter, r *http.Request) {
	if !ms.checkAuth(w, r) {
		return
	}
	roomID := id.RoomID(mux.Vars(r)["roomID"])
	ms.mu.Lock()
	defer ms.mu.Unlock()
	body, ok := ms.roomSyncs[roomID]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		writeJSON(w, `{"errcode": "M_NOT_FOUND", "error": "Room not found"}`)
		return
	}
	writeJSON(w, string(body))
}

func (ms *MockServer) getEvents(w http.ResponseWriter, r *http.Request) {
	if !ms.checkAuth(w, r) {
		return
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.EventPollFroms = append(ms.EventPollFroms, r.URL.Query().Get("from"))
	if ms.failEventPolls > 0 {
		ms.failEventPolls--
		w.WriteHeader(http.StatusInternalServerError)
		writeJSON(w, `{"errcode": "M_UNKNOWN", "error": "Internal server error"}`)
		return
	}
	chunk := json.RawMessage(`[]`)
	if len(ms.eventQueue) > 0 {
		chunk = ms.eventQueue[0]
		ms.eventQueue = ms.eventQueue[1:]
	}
	ms.eventCounter++
	resp, _ := sjson.SetRaw(`{}`, "chunk", string(chunk))
	resp, _ = sjson.Set(resp, "end", fmt.Sprintf("e%d", ms.eventCounter))
	writeJSON(w, resp)
}

func (ms *MockServer) postSendMessage(w http.ResponseWriter, r *http.Request) {
	if !ms.checkAuth(w, r) {
		return
	}
	body, _ := io.ReadAll(r.Body)
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.SentMessages = append(ms.SentMessages, SentMessage{
		RoomID: id.RoomID(mux.Vars(r)["roomID"]),
		TxnID:  r.URL.Query().Get("txn_id"),
		Body:   body,
	})
	resp, _ := sjson.Set(`{}`, "event_id", "$"+random.String(16))
	writeJSON(w, resp)
}

func (ms *MockServer) postCreateRoom(w http.ResponseWriter, r *http.Request) {
	if !ms.checkAuth(w, r) {
		return
	}
	body, _ := io.ReadAll(r.Body)
	var req perch.ReqCreateRoom
	_ = json.Unmarshal(body, &req)
	roomID := id.RoomID("!" + random.String(12) + ":example.org")
	alias := id.RoomAlias("#" + req.RoomAliasName + ":example.org")
	ms.mu.Lock()
	ms.aliasDirectory[alias] = roomID
	ms.mu.Unlock()
	resp, _ := sjson.Set(`{}`, "room_id", roomID.String())
	resp, _ = sjson.Set(resp, "room_alias", alias.String())
	writeJSON(w, resp)
}

func (ms *MockServer) postJoin(w http.ResponseWriter, r *http.Request) {
	if !ms.checkAuth(w, r) {
		return
	}
	resp, _ := sjson.Set(`{}`, "room_id", mux.Vars(r)["roomID"])
	writeJSON(w, resp)
}

func (ms *MockServer) postInvite(w http.ResponseWriter, r *http.Request) {
	if !ms.checkAuth(w, r) {
		return
	}
	body, _ := io.ReadAll(r.Body)
	var req perch.ReqInviteUser
	_ = json.Unmarshal(body, &req)
	ms.mu.Lock()
	ms.InvitedUsers = append(ms.InvitedUsers, req.UserID)
	ms.mu.Unlock()
	writeJSON(w, `{}`)
}

func (ms *MockServer) postLeave(w http.ResponseWriter, r *http.Request) {
	if !ms.checkAuth(w, r) {
		return
	}
	ms.mu.Lock()
	ms.LeftRooms = append(ms.LeftRooms, id.RoomID(mux.Vars(r)["roomID"]))
	ms.mu.Unlock()
	writeJSON(w, `{}`)
}

func (ms *MockServer) putMemberState(w http.ResponseWriter, r *http.Request) {
	if !ms.checkAuth(w, r) {
		return
	}
	body, _ := io.ReadAll(r.Body)
	vars := mux.Vars(r)
	ms.mu.Lock()
	ms.MemberStatePuts = append(ms.MemberStatePuts, MemberStatePut{
		RoomID:  id.RoomID(vars["roomID"]),
		UserID:  id.UserID(vars["userID"]),
		Content: body,
	})
	ms.mu.Unlock()
	resp, _ := sjson.Set(`{}`, "event_id", "$"+random.String(16))
	writeJSON(w, resp)
}

func (ms *MockServer) getDirectoryRoom(w http.ResponseWriter, r *http.Request) {
	if !ms.checkAuth(w, r) {
		return
	}
	alias := id.RoomAlias(mux.Vars(r)["alias"])
	ms.mu.Lock()
	roomID, ok := ms.aliasDirectory[alias]
	ms.mu.Unlock()
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		writeJSON(w, `{"errcode": "M_NOT_FOUND", "error": "Room alias not found"}`)
		return
	}
	resp, _ := sjson.Set(`{"servers": ["example.org"]}`, "room_id", roomID.String())
	writeJSON(w, resp)
}
