// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// perch is a terminal chat client. It logs in, performs an initial sync,
// then keeps the room view current from the event feed while reading
// commands and messages from a readline prompt.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/chzyer/readline"
	"go.mau.fi/util/exerrors"
	"go.mau.fi/util/exzerolog"
	"go.mau.fi/zeroconfig"
	"gopkg.in/yaml.v3"
	flag "maunium.net/go/mauflag"

	"github.com/perch-im/perch"
	"github.com/perch-im/perch/event"
	"github.com/perch-im/perch/format"
	"github.com/perch-im/perch/id"
	"github.com/perch-im/perch/state"
)

var homeserver = flag.MakeFull("s", "homeserver", "Homeserver URL", "").String()
var username = flag.MakeFull("u", "username", "Username to log in as", "").String()
var password = flag.MakeFull("p", "password", "Password (prompted if not given)", "").String()
var logConfigPath = flag.MakeFull("l", "log-config", "Path to a YAML log config", "").String()
var wantHelp, _ = flag.MakeHelpFlag()

var writerTypeReadline zeroconfig.WriterType = "perch_readline"

func main() {
	err := flag.Parse()
	if err != nil || *wantHelp || *homeserver == "" || *username == "" {
		if err != nil {
			_, _ = fmt.Fprintln(os.Stderr, err)
		}
		flag.PrintHelp()
		os.Exit(1)
	}

	rl := exerrors.Must(readline.New("[no room]> "))
	defer func() {
		_ = rl.Close()
	}()
	zeroconfig.RegisterWriter(writerTypeReadline, func(config *zeroconfig.WriterConfig) (io.Writer, error) {
		return rl.Stdout(), nil
	})
	log := exerrors.Must(loadLogConfig(*logConfigPath).Compile())
	exzerolog.SetupDefaults(log)

	cli := exerrors.Must(perch.NewClient(*homeserver, "", ""))
	cli.Log = *log

	pw := *password
	if pw == "" {
		pw = string(exerrors.Must(rl.ReadPassword("Password: ")))
	}
	ctx := log.WithContext(context.Background())
	login := exerrors.Must(cli.Login(ctx, *username, pw))
	log.Info().Str("user_id", login.UserID.String()).Msg("Logged in")

	stdout := rl.Stdout()

	// The notification handler runs on the poller goroutine, the REPL loop
	// on this one; both touch the current room selection.
	var roomLock sync.Mutex
	var currentRoom id.RoomID
	getRoom := func() id.RoomID {
		roomLock.Lock()
		defer roomLock.Unlock()
		return currentRoom
	}
	setRoom := func(roomID id.RoomID) {
		roomLock.Lock()
		defer roomLock.Unlock()
		currentRoom = roomID
	}

	store := state.NewStore(login.UserID)
	store.Log = log.With().Str("component", "state").Logger()
	store.Syncer = cli
	store.AvatarResolver = cli.AvatarThumbnailURL
	store.EventHandler = func(evt any) {
		switch evt := evt.(type) {
		case state.MessagesAppended:
			for _, msg := range evt.Messages {
				printMessage(stdout, evt.RoomID, msg)
			}
		case state.RoomRemoved:
			_, _ = fmt.Fprintf(stdout, "Left room %s\n", evt.RoomID)
			if evt.RoomID == getRoom() {
				setRoom("")
				rl.SetPrompt("[no room]> ")
			}
		}
	}

	initial := exerrors.Must(cli.InitialSync(ctx))
	store.ProcessSyncResult(ctx, initial)
	for _, room := range store.Rooms() {
		_, _ = fmt.Fprintf(stdout, "Room: %s\n", room.AliasOrID())
	}

	poller := &perch.Poller{
		Client:    cli,
		Processor: store,
		Log:       log.With().Str("component", "poller").Logger(),
	}
	pollCtx, cancelPoll := context.WithCancel(ctx)
	var pollDone sync.WaitGroup
	pollDone.Add(1)
	go func() {
		defer pollDone.Done()
		_ = poller.Poll(pollCtx)
	}()

	for {
		line, err := rl.Readline()
		if err != nil { // io.EOF on ^D
			break
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			roomID := runCommand(ctx, stdout, cli, store, getRoom(), line)
			setRoom(roomID)
			if roomID != "" {
				if room, ok := store.Room(roomID); ok {
					rl.SetPrompt(room.AliasOrID() + "> ")
				} else {
					rl.SetPrompt(roomID.String() + "> ")
				}
			} else {
				rl.SetPrompt("[no room]> ")
			}
			continue
		}
		roomID := getRoom()
		if roomID == "" {
			_, _ = fmt.Fprintln(stdout, "Select a room with /room first")
			continue
		}
		if _, err = cli.SendText(ctx, roomID, line); err != nil {
			_, _ = fmt.Fprintln(stdout, "Failed to send:", err)
		}
	}
	cancelPoll()
	pollDone.Wait()
}

func loadLogConfig(path string) *zeroconfig.Config {
	if path != "" {
		var cfg zeroconfig.Config
		exerrors.PanicIfNotNil(yaml.Unmarshal(exerrors.Must(os.ReadFile(path)), &cfg))
		return &cfg
	}
	return &zeroconfig.Config{
		Writers: []zeroconfig.WriterConfig{{
			Type:   writerTypeReadline,
			Format: zeroconfig.LogFormatPrettyColored,
		}},
	}
}

func printMessage(stdout io.Writer, roomID id.RoomID, msg *event.Message) {
	body := msg.Content.Body()
	if formatted := msg.Content.FormattedBody(); formatted != "" {
		body = format.HTMLToText(formatted)
	}
	if msg.Type == event.StateMember {
		body = string(msg.Content.Membership())
	}
	_, _ = fmt.Fprintf(stdout, "[%s] <%s> %s\n", roomID, msg.Sender, body)
}

func runCommand(ctx context.Context, stdout io.Writer, cli *perch.Client, store *state.Store, currentRoom id.RoomID, line string) id.RoomID {
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch cmd {
	case "/rooms":
		for _, room := range store.Rooms() {
			_, _ = fmt.Fprintf(stdout, "%s\n", room.AliasOrID())
		}
	case "/members":
		if currentRoom == "" {
			_, _ = fmt.Fprintln(stdout, "Select a room with /room first")
			break
		}
		for _, user := range store.Users(currentRoom) {
			marker := ""
			if user.Typing {
				marker += " (typing)"
			}
			if user.Present {
				marker += " (online)"
			}
			_, _ = fmt.Fprintf(stdout, "%s (%s)%s\n", user.DisplayName, user.UserID, marker)
		}
	case "/room":
		ident, err := id.ParseRoomIdentifier(arg)
		if err != nil {
			_, _ = fmt.Fprintln(stdout, "Invalid room identifier:", err)
			break
		}
		roomID, err := cli.ResolveRoomID(ctx, ident)
		if err != nil {
			_, _ = fmt.Fprintln(stdout, "Failed to resolve room:", err)
			break
		}
		for _, msg := range store.Messages(roomID) {
			printMessage(stdout, roomID, msg)
		}
		return roomID
	case "/join":
		ident, err := id.ParseRoomIdentifier(arg)
		if err != nil {
			_, _ = fmt.Fprintln(stdout, "Invalid room identifier:", err)
			break
		}
		resp, err := cli.JoinRoom(ctx, ident)
		if err != nil {
			_, _ = fmt.Fprintln(stdout, "Failed to join:", err)
			break
		}
		return resp.RoomID
	case "/leave":
		if currentRoom == "" {
			_, _ = fmt.Fprintln(stdout, "Select a room with /room first")
			break
		}
		if _, err := cli.LeaveRoom(ctx, currentRoom); err != nil {
			_, _ = fmt.Fprintln(stdout, "Failed to leave:", err)
			break
		}
		return ""
	case "/create":
		resp, err := cli.CreateRoom(ctx, arg, "public")
		if err != nil {
			_, _ = fmt.Fprintln(stdout, "Failed to create room:", err)
			break
		}
		_, _ = fmt.Fprintf(stdout, "Created %s (%s)\n", resp.RoomAlias, resp.RoomID)
		return resp.RoomID
	case "/invite":
		if currentRoom == "" {
			_, _ = fmt.Fprintln(stdout, "Select a room with /room first")
			break
		}
		if _, err := cli.InviteUser(ctx, currentRoom, id.UserID(arg)); err != nil {
			_, _ = fmt.Fprintln(stdout, "Failed to invite:", err)
		}
	case "/ban":
		if currentRoom == "" {
			_, _ = fmt.Fprintln(stdout, "Select a room with /room first")
			break
		}
		target := id.UserID(arg)
		var displayname, avatarURL string
		for _, user := range store.Users(currentRoom) {
			if user.UserID == target {
				displayname = user.DisplayName
				avatarURL = user.AvatarURL
				break
			}
		}
		if _, err := cli.BanUser(ctx, currentRoom, target, displayname, avatarURL); err != nil {
			_, _ = fmt.Fprintln(stdout, "Failed to ban:", err)
		}
	case "/md":
		if currentRoom == "" {
			_, _ = fmt.Fprintln(stdout, "Select a room with /room first")
			break
		}
		if _, err := cli.SendMarkdown(ctx, currentRoom, arg); err != nil {
			_, _ = fmt.Fprintln(stdout, "Failed to send:", err)
		}
	default:
		_, _ = fmt.Fprintln(stdout, "Unknown command", cmd)
	}
	return currentRoom
}
