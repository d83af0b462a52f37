// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package perch implements the client side of a room-based messaging
// protocol: a stateless HTTP protocol client plus the long-poll driver that
// feeds the reconciliation store in the state package.
package perch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/xid"
	"github.com/rs/zerolog"
	"go.mau.fi/util/retryafter"

	"github.com/perch-im/perch/event"
	"github.com/perch-im/perch/format"
	"github.com/perch-im/perch/id"
)

const DefaultUserAgent = "perch/0.1 (+https://github.com/perch-im/perch)"

// Client talks to the homeserver. It is pure request/response: the only
// things it retains are the credentials stored by Login.
type Client struct {
	HomeserverURL *url.URL     // The base homeserver URL
	UserID        id.UserID    // The user ID of the logged-in user
	AccessToken   string       // The access token for the logged-in user
	UserAgent     string       // The value for the User-Agent header
	Client        *http.Client // The underlying HTTP client used for requests

	Log zerolog.Logger

	// Number of times a failed request is retried on transport errors and
	// HTTP gateway errors (502-504). Does not apply to the event long-poll,
	// which has its own retry policy in Poller.
	DefaultHTTPRetries int
	// Set to true to disable automatically sleeping on 429 errors.
	IgnoreRateLimit bool
}

// NewClient creates a new protocol client. Access token may be empty; it is
// filled in by Login.
func NewClient(homeserverURL string, userID id.UserID, accessToken string) (*Client, error) {
	hsURL, err := parseAndNormalizeBaseURL(homeserverURL)
	if err != nil {
		return nil, err
	}
	return &Client{
		HomeserverURL: hsURL,
		UserID:        userID,
		AccessToken:   accessToken,
		UserAgent:     DefaultUserAgent,
		Client:        &http.Client{Timeout: 180 * time.Second},
		Log:           zerolog.Nop(),
	}, nil
}

// TxnID returns a fresh transaction ID for send endpoints.
func (cli *Client) TxnID() string {
	return "perch-" + xid.New().String()
}

type FullRequest struct {
	Method           string
	URL              string
	RequestJSON      any
	ResponseJSON     any
	MaxAttempts      int
	SensitiveContent bool
}

func (params *FullRequest) compileRequest(ctx context.Context, log *zerolog.Logger) (*http.Request, error) {
	var reqBody io.Reader
	var logBody any
	if params.RequestJSON != nil {
		jsonStr, err := json.Marshal(params.RequestJSON)
		if err != nil {
			return nil, HTTPError{Message: "failed to marshal JSON", WrappedError: err}
		}
		if params.SensitiveContent {
			logBody = "<sensitive content omitted>"
		} else {
			logBody = params.RequestJSON
		}
		reqBody = bytes.NewReader(jsonStr)
	} else if params.Method != http.MethodGet && params.Method != http.MethodHead {
		reqBody = bytes.NewReader([]byte("{}"))
	}
	ctx = log.With().
		Str("req_id", xid.New().String()).
		Interface("req_body", logBody).
		Logger().WithContext(ctx)
	req, err := http.NewRequestWithContext(ctx, params.Method, params.URL, reqBody)
	if err != nil {
		return nil, HTTPError{Message: "failed to create request", WrappedError: err}
	}
	if params.RequestJSON != nil || reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// MakeRequest makes a JSON HTTP request to the given URL. If resBody is not
// nil, the response body is unmarshaled into it.
func (cli *Client) MakeRequest(ctx context.Context, method string, httpURL string, reqBody, resBody any) ([]byte, error) {
	return cli.MakeFullRequest(ctx, FullRequest{Method: method, URL: httpURL, RequestJSON: reqBody, ResponseJSON: resBody})
}

// MakeFullRequest executes a request, returning the raw body bytes on 2xx.
// Non-2xx responses and transport failures come back as HTTPError.
func (cli *Client) MakeFullRequest(ctx context.Context, params FullRequest) ([]byte, error) {
	if params.MaxAttempts == 0 {
		params.MaxAttempts = 1 + cli.DefaultHTTPRetries
	}
	req, err := params.compileRequest(ctx, &cli.Log)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", cli.UserAgent)
	if len(cli.AccessToken) > 0 {
		req.Header.Set("Authorization", "Bearer "+cli.AccessToken)
	}
	return cli.executeCompiledRequest(req, params.MaxAttempts-1, 4*time.Second, params.ResponseJSON)
}

func (cli *Client) doRetry(req *http.Request, cause error, retries int, backoff time.Duration, responseJSON any) ([]byte, error) {
	log := zerolog.Ctx(req.Context())
	if req.Body != nil {
		if req.GetBody == nil {
			log.Warn().Msg("Failed to get new body to retry request: GetBody is nil")
			return nil, cause
		}
		var err error
		req.Body, err = req.GetBody()
		if err != nil {
			log.Warn().Err(err).Msg("Failed to get new body to retry request")
			return nil, cause
		}
	}
	log.Warn().Err(cause).
		Int("retry_in_seconds", int(backoff.Seconds())).
		Msg("Request failed, retrying")
	time.Sleep(backoff)
	return cli.executeCompiledRequest(req, retries-1, backoff*2, responseJSON)
}

func (cli *Client) executeCompiledRequest(req *http.Request, retries int, backoff time.Duration, responseJSON any) ([]byte, error) {
	startTime := time.Now()
	res, err := cli.Client.Do(req)
	duration := time.Since(startTime)
	if res != nil {
		defer res.Body.Close()
	}
	if err != nil {
		if retries > 0 {
			return cli.doRetry(req, err, retries, backoff, responseJSON)
		}
		err = HTTPError{
			Request:  req,
			Response: res,

			Message:      "request error",
			WrappedError: err,
		}
		cli.logRequestDone(req, res, err, nil, 0, duration)
		return nil, err
	}

	if retries > 0 && retryafter.Should(res.StatusCode, !cli.IgnoreRateLimit) {
		backoff = retryafter.Parse(res.Header.Get("Retry-After"), backoff)
		return cli.doRetry(req, fmt.Errorf("HTTP %d", res.StatusCode), retries, backoff, responseJSON)
	}

	var body []byte
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, err = parseErrorResponse(req, res)
		cli.logRequestDone(req, res, nil, nil, len(body), duration)
	} else {
		var handlerErr error
		body, handlerErr = handleNormalResponse(req, res, responseJSON)
		cli.logRequestDone(req, res, nil, handlerErr, len(body), duration)
		err = handlerErr
	}
	return body, err
}

func handleNormalResponse(req *http.Request, res *http.Response, responseJSON any) ([]byte, error) {
	contents, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, HTTPError{
			Request:  req,
			Response: res,

			Message:      "failed to read response body",
			WrappedError: err,
		}
	}
	if responseJSON == nil {
		return contents, nil
	}
	if err = json.Unmarshal(contents, &responseJSON); err != nil {
		return nil, HTTPError{
			Request:  req,
			Response: res,

			Message:      "failed to unmarshal response body",
			ResponseBody: string(contents),
			WrappedError: err,
		}
	}
	return contents, nil
}

func parseErrorResponse(req *http.Request, res *http.Response) ([]byte, error) {
	contents, err := io.ReadAll(res.Body)
	if err != nil {
		return contents, HTTPError{
			Request:  req,
			Response: res,

			Message:      "failed to read response body",
			WrappedError: err,
		}
	}
	respErr := &RespError{}
	if _ = json.Unmarshal(contents, respErr); respErr.ErrCode == "" {
		respErr = nil
	}
	return contents, HTTPError{
		Request:   req,
		Response:  res,
		RespError: respErr,
	}
}

func (cli *Client) logRequestDone(req *http.Request, res *http.Response, err, handlerErr error, contentLength int, duration time.Duration) {
	var evt *zerolog.Event
	if err != nil {
		evt = zerolog.Ctx(req.Context()).Err(err)
	} else if handlerErr != nil {
		evt = zerolog.Ctx(req.Context()).Warn().AnErr("body_parse_err", handlerErr)
	} else {
		evt = zerolog.Ctx(req.Context()).Debug()
	}
	evt = evt.
		Str("method", req.Method).
		Str("url", req.URL.String()).
		Dur("duration", duration)
	if res != nil {
		evt = evt.Int("status_code", res.StatusCode).Int("response_length", contentLength)
	}
	if err != nil {
		evt.Msg("Request failed")
	} else if handlerErr != nil {
		evt.Msg("Request parsing failed")
	} else {
		evt.Msg("Request completed")
	}
}

// Login authenticates with username and password and stores the returned
// credentials on the client.
func (cli *Client) Login(ctx context.Context, username, password string) (resp *RespLogin, err error) {
	_, err = cli.MakeFullRequest(ctx, FullRequest{
		Method:           http.MethodPost,
		URL:              cli.BuildClientURL("login"),
		RequestJSON:      &ReqLogin{Type: AuthTypePassword, User: username, Password: password},
		ResponseJSON:     &resp,
		SensitiveContent: true,
	})
	if err == nil {
		cli.UserID = resp.UserID
		cli.AccessToken = resp.AccessToken
		cli.Log.Debug().Str("user_id", cli.UserID.String()).Msg("Stored credentials after login")
	}
	return
}

// InitialSync fetches the complete current state of the session: all rooms
// with their recent timelines and state, plus global presence.
func (cli *Client) InitialSync(ctx context.Context) (resp *RespInitialSync, err error) {
	_, err = cli.MakeRequest(ctx, http.MethodGet, cli.BuildClientURL("initialSync"), nil, &resp)
	return
}

// RoomInitialSync fetches the full state of a single room and wraps it into
// the same response shape as InitialSync.
func (cli *Client) RoomInitialSync(ctx context.Context, roomID id.RoomID) (*RespInitialSync, error) {
	var room struct {
		SyncRoom
		Presence []*event.Message `json:"presence"`
	}
	_, err := cli.MakeRequest(ctx, http.MethodGet, cli.BuildClientURL("rooms", roomID, "initialSync"), nil, &room)
	if err != nil {
		return nil, err
	}
	if room.RoomID == "" {
		room.RoomID = roomID
	}
	return &RespInitialSync{
		Rooms:    []*SyncRoom{&room.SyncRoom},
		Presence: room.Presence,
	}, nil
}

// Events polls the event feed. An empty cursor fetches from "now"; a
// non-empty one resumes after the previous response's End token.
func (cli *Client) Events(ctx context.Context, from string) (resp *RespEvents, err error) {
	query := map[string]string{}
	if from != "" {
		query["from"] = from
	}
	_, err = cli.MakeFullRequest(ctx, FullRequest{
		Method:       http.MethodGet,
		URL:          cli.BuildURLWithQuery(ClientURLPath{"events"}, query),
		ResponseJSON: &resp,
		// The Poller wrapper owns retries for the event feed.
		MaxAttempts: 1,
	})
	return
}

// SendText sends a plaintext message to a room.
func (cli *Client) SendText(ctx context.Context, roomID id.RoomID, text string) (*RespSendEvent, error) {
	return cli.sendMessage(ctx, roomID, &ReqSendMessage{MsgType: event.MsgText, Body: text})
}

// SendMarkdown renders the text as markdown and sends it with an HTML
// formatted body. Text without any markup is sent as plaintext.
func (cli *Client) SendMarkdown(ctx context.Context, roomID id.RoomID, text string) (*RespSendEvent, error) {
	rendered := format.RenderMarkdown(text)
	if rendered == text {
		return cli.SendText(ctx, roomID, text)
	}
	return cli.sendMessage(ctx, roomID, &ReqSendMessage{
		MsgType:       event.MsgText,
		Body:          text,
		Format:        event.FormatHTML,
		FormattedBody: rendered,
	})
}

func (cli *Client) sendMessage(ctx context.Context, roomID id.RoomID, content *ReqSendMessage) (resp *RespSendEvent, err error) {
	urlPath := cli.BuildURLWithQuery(ClientURLPath{"rooms", roomID, "send", event.EventMessage}, map[string]string{
		"txn_id": cli.TxnID(),
	})
	_, err = cli.MakeRequest(ctx, http.MethodPost, urlPath, content, &resp)
	return
}

// CreateRoom creates a room with the given alias localpart and visibility
// ("public" or "private").
func (cli *Client) CreateRoom(ctx context.Context, aliasName, visibility string) (resp *RespCreateRoom, err error) {
	_, err = cli.MakeRequest(ctx, http.MethodPost, cli.BuildClientURL("createRoom"),
		&ReqCreateRoom{RoomAliasName: aliasName, Visibility: visibility}, &resp)
	return
}

// ResolveRoomID resolves a user-entered room identifier to a canonical room
// ID, hitting the directory for aliases.
func (cli *Client) ResolveRoomID(ctx context.Context, ident id.RoomIdentifier) (id.RoomID, error) {
	switch room := ident.(type) {
	case id.RoomID:
		return room, nil
	case id.RoomAlias:
		var resp RespRoomDirectory
		_, err := cli.MakeRequest(ctx, http.MethodGet, cli.BuildClientURL("directory", "room", room), nil, &resp)
		if err != nil {
			return "", err
		}
		if resp.RoomID == "" {
			return "", fmt.Errorf("directory lookup for %s returned no room ID", room)
		}
		return resp.RoomID, nil
	default:
		return "", id.ErrInvalidRoomIdentifier
	}
}

// JoinRoom joins the room referenced by the given identifier.
func (cli *Client) JoinRoom(ctx context.Context, ident id.RoomIdentifier) (resp *RespJoinRoom, err error) {
	roomID, err := cli.ResolveRoomID(ctx, ident)
	if err != nil {
		return nil, err
	}
	_, err = cli.MakeRequest(ctx, http.MethodPost, cli.BuildClientURL("join", roomID), nil, &resp)
	return
}

// InviteUser invites a user to the room referenced by the given identifier.
func (cli *Client) InviteUser(ctx context.Context, ident id.RoomIdentifier, userID id.UserID) (resp *RespInviteUser, err error) {
	roomID, err := cli.ResolveRoomID(ctx, ident)
	if err != nil {
		return nil, err
	}
	_, err = cli.MakeRequest(ctx, http.MethodPost, cli.BuildClientURL("rooms", roomID, "invite"),
		&ReqInviteUser{UserID: userID}, &resp)
	return
}

// BanUser bans a member by rewriting their membership state. The profile
// fields come from the caller's roster snapshot; a thumbnail avatar URL is
// converted back to its mxc reference before sending.
func (cli *Client) BanUser(ctx context.Context, ident id.RoomIdentifier, userID id.UserID, displayname, avatarURL string) (resp *RespBanUser, err error) {
	roomID, err := cli.ResolveRoomID(ctx, ident)
	if err != nil {
		return nil, err
	}
	_, err = cli.MakeRequest(ctx, http.MethodPut,
		cli.BuildClientURL("rooms", roomID, "state", event.StateMember, userID),
		&ReqMemberState{
			Membership:  string(event.MembershipBan),
			Displayname: displayname,
			AvatarURL:   cli.ThumbnailToContentURI(avatarURL),
		}, &resp)
	return
}

// LeaveRoom leaves the room referenced by the given identifier.
func (cli *Client) LeaveRoom(ctx context.Context, ident id.RoomIdentifier) (resp *RespLeaveRoom, err error) {
	roomID, err := cli.ResolveRoomID(ctx, ident)
	if err != nil {
		return nil, err
	}
	_, err = cli.MakeRequest(ctx, http.MethodPost, cli.BuildClientURL("rooms", roomID, "leave"), nil, &resp)
	return
}

// AvatarThumbnailURL turns an mxc avatar reference into a displayable
// thumbnail URL on this homeserver. Malformed references yield an empty
// string; the transform is pure and idempotent.
func (cli *Client) AvatarThumbnailURL(mxc string) string {
	uri, err := id.ParseContentURI(mxc)
	if err != nil {
		return ""
	}
	return cli.BuildMediaURL(ClientURLPath{"thumbnail", uri.Homeserver, uri.FileID}, map[string]string{
		"width":  "24",
		"height": "24",
	})
}

// ThumbnailToContentURI reverses AvatarThumbnailURL: given one of this
// homeserver's thumbnail URLs it reconstructs the mxc reference. Anything
// else is passed through unchanged (it may already be an mxc reference or
// empty).
func (cli *Client) ThumbnailToContentURI(thumbURL string) string {
	parsed, err := url.Parse(thumbURL)
	if err != nil {
		return thumbURL
	}
	prefix := BuildURL(cli.HomeserverURL, "_matrix", "media", "v1", "thumbnail").Path + "/"
	if parsed.Host != cli.HomeserverURL.Host || !strings.HasPrefix(parsed.Path, prefix) {
		return thumbURL
	}
	rest := parsed.Path[len(prefix):]
	idx := strings.IndexRune(rest, '/')
	if idx == -1 {
		return thumbURL
	}
	uri := id.ContentURI{Homeserver: rest[:idx], FileID: rest[idx+1:]}
	if uri.IsEmpty() {
		return thumbURL
	}
	return uri.String()
}
