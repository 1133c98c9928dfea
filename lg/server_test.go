package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/e-psi-lon/ParalyaBot-sub000/lg/config"
	"github.com/e-psi-lon/ParalyaBot-sub000/lg/coordinator"
	"github.com/e-psi-lon/ParalyaBot-sub000/lg/dispatch"
	"github.com/e-psi-lon/ParalyaBot-sub000/lg/game"
	"github.com/e-psi-lon/ParalyaBot-sub000/lg/platform"
	"github.com/e-psi-lon/ParalyaBot-sub000/lg/platform/local"
	"github.com/e-psi-lon/ParalyaBot-sub000/lg/store"
)

const (
	testAuthKey  = "village-key"
	testAdminKey = "gm-key"
)

type testServer struct {
	cfg    config.Config
	guild  *local.Guild
	coord  *coordinator.Coordinator
	router *CommandRouter
	srv    *httptest.Server
	ids    map[game.ChannelRole]string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()
	cfg := config.Defaults()
	cfg.Admins = []string{"gm"}
	cfg.HTTP.AuthKey = testAuthKey
	cfg.HTTP.AdminKey = testAdminKey

	guild := local.NewGuild(messages)
	if err := seedGuild(ctx, guild, cfg); err != nil {
		t.Fatal(err)
	}
	st := store.New(store.NewMemoryBackend())
	coord := coordinator.New(st, guild, guild, guild, cfg)
	if err := coord.Discover(ctx); err != nil {
		t.Fatalf("discover: %v", err)
	}
	if _, err := coord.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	state, err := coord.State(ctx)
	if err != nil {
		t.Fatal(err)
	}

	disp := dispatch.New(16)
	router := NewCommandRouter(coord, disp, messages)
	srv := httptest.NewServer(NewHTTPServer(coord, router, guild).Router())
	t.Cleanup(func() {
		srv.Close()
		disp.Close()
		_ = st.Close()
	})
	return &testServer{cfg: cfg, guild: guild, coord: coord, router: router, srv: srv, ids: state.Channels}
}

// dial connects as member with the player key, and with the admin key when
// member is an admin.
func (ts *testServer) dial(t *testing.T, member string) *websocket.Conn {
	t.Helper()
	h := http.Header{keyHeader: []string{testAuthKey}}
	if ts.cfg.IsAdmin(member) {
		h.Set(adminKeyHeader, testAdminKey)
	}
	conn, resp, err := ts.dialWith(member, h)
	if err != nil {
		t.Fatalf("dial as %s: %v (%v)", member, err, resp)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func (ts *testServer) dialWith(member string, h http.Header) (*websocket.Conn, *http.Response, error) {
	url := "ws" + strings.TrimPrefix(ts.srv.URL, "http") + "/ws?member=" + member
	return websocket.DefaultDialer.Dial(url, h)
}

// get fetches path from the server with the given headers.
func (ts *testServer) get(t *testing.T, path string, h http.Header) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, ts.srv.URL+path, nil)
	if err != nil {
		t.Fatal(err)
	}
	for k, v := range h {
		req.Header[k] = v
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

// await reads events until one matches or the deadline passes.
func await(t *testing.T, conn *websocket.Conn, match func(ServerEvent) bool) ServerEvent {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		_ = conn.SetReadDeadline(deadline)
		var ev ServerEvent
		if err := conn.ReadJSON(&ev); err != nil {
			t.Fatalf("no matching event: %v", err)
		}
		if match(ev) {
			return ev
		}
	}
}

func TestHandleRejections(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		member string
		msg    ClientMessage
		code   string
		body   string
	}{
		{
			name:   "privileged command from a player",
			member: "x",
			msg:    ClientMessage{Type: msgDay, Kill: true},
			code:   string(coordinator.CodeForbidden),
			body:   "Only the game master can do that.",
		},
		{
			name:   "vote in the day channel at night",
			member: "x",
			msg:    ClientMessage{Type: msgVote, Target: "y", Channel: ts.ids[game.ChannelVotes]},
			code:   string(coordinator.CodeWrongChannel),
			body:   "Votes are not taken in this channel right now.",
		},
		{
			name:   "unknown vote kind",
			member: "gm",
			msg:    ClientMessage{Type: msgResetVotes, Kind: "dusk"},
			code:   string(coordinator.CodeWrongPhase),
			body:   `Unknown vote kind "dusk".`,
		},
		{
			name:   "unknown command",
			member: "gm",
			msg:    ClientMessage{Type: "dance"},
			code:   "unknown",
			body:   `Unknown command "dance".`,
		},
		{
			name:   "advance to the current phase",
			member: "gm",
			msg:    ClientMessage{Type: msgNight},
			code:   string(coordinator.CodeWrongPhase),
			body:   "The game is already in that phase (night).",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := ts.router.Handle(ctx, tt.member, tt.msg)
			if ev.Type != evRejected || ev.Code != tt.code || ev.Body != tt.body {
				t.Fatalf("got %+v, want rejected %s %q", ev, tt.code, tt.body)
			}
		})
	}
}

func TestHandleStatus(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	alive := ts.cfg.Guild.AliveRole
	ts.guild.AddMember("w1", alive)
	ts.guild.AddMember("x", alive)
	if _, err := ts.coord.CastVote(ctx, "w1", "x", ts.ids[game.ChannelWolvesVote]); err != nil {
		t.Fatal(err)
	}

	nightOf := func(t *testing.T, member string) coordinator.SessionStatus {
		t.Helper()
		ev := ts.router.Handle(ctx, member, ClientMessage{Type: msgStatus})
		status, ok := ev.State.(coordinator.Status)
		if ev.Type != evOK || !ok {
			t.Fatalf("got %+v", ev)
		}
		if status.Phase != game.FirstPhase() {
			t.Fatalf("phase = %v", status.Phase)
		}
		for _, s := range status.Sessions {
			if s.Kind == game.Night {
				return s
			}
		}
		t.Fatalf("no night session in %+v", status)
		return coordinator.SessionStatus{}
	}

	if night := nightOf(t, "gm"); night.Ballots["w1"] != "x" || night.Tally["x"] != 1 {
		t.Fatalf("admin night session = %+v", night)
	}
	night := nightOf(t, "x")
	if len(night.Ballots) != 0 || len(night.Tally) != 0 || len(night.Leaders.Players) != 0 {
		t.Fatalf("player sees the wolves' ballots: %+v", night)
	}
}

func TestAPIState(t *testing.T) {
	ts := newTestServer(t)
	admin := http.Header{adminKeyHeader: []string{testAdminKey}}

	resp := ts.get(t, "/api/state", admin)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var status coordinator.Status
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatal(err)
	}
	if status.Phase != game.FirstPhase() || len(status.Sessions) != 2 {
		t.Fatalf("state = %+v", status)
	}

	resp = ts.get(t, "/api/votes", admin)
	var sessions []coordinator.SessionStatus
	if err := json.NewDecoder(resp.Body).Decode(&sessions); err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 2 {
		t.Fatalf("sessions = %+v", sessions)
	}

	if resp := ts.get(t, "/ws", nil); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("ws without member = %d", resp.StatusCode)
	}
}

func TestAuthRequired(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name string
		path string
		h    http.Header
		want int
	}{
		{"state without key", "/api/state", nil, http.StatusUnauthorized},
		{"votes with the player key", "/api/votes", http.Header{keyHeader: []string{testAuthKey}}, http.StatusUnauthorized},
		{"votes with a wrong admin key", "/api/votes", http.Header{adminKeyHeader: []string{"guess"}}, http.StatusUnauthorized},
		{"health is open", "/healthz", nil, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if resp := ts.get(t, tt.path, tt.h); resp.StatusCode != tt.want {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}

	sockets := []struct {
		name   string
		member string
		h      http.Header
		want   int
	}{
		{"player without key", "x", nil, http.StatusUnauthorized},
		{"player with a wrong key", "x", http.Header{keyHeader: []string{"guess"}}, http.StatusUnauthorized},
		{"admin name without admin key", "gm", http.Header{keyHeader: []string{testAuthKey}}, http.StatusForbidden},
	}
	for _, tt := range sockets {
		t.Run(tt.name, func(t *testing.T) {
			conn, resp, err := ts.dialWith(tt.member, tt.h)
			if err == nil {
				_ = conn.Close()
				t.Fatal("handshake succeeded")
			}
			if resp == nil || resp.StatusCode != tt.want {
				t.Fatalf("resp = %v, want status %d", resp, tt.want)
			}
		})
	}
	if !ts.guild.Join("x") {
		t.Fatal("a refused connection registered its member")
	}
}

func TestWebSocketNightKill(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	alive := ts.cfg.Guild.AliveRole
	ts.guild.AddMember("w1", alive)
	ts.guild.AddMember("x", alive)
	for _, role := range game.WolfChannels {
		if err := ts.guild.SetMemberPermissions(ctx, ts.ids[role], "w1", platform.Overwrite{Allow: platform.PermView | platform.PermSend}); err != nil {
			t.Fatal(err)
		}
	}

	wolf := ts.dial(t, "w1")
	victim := ts.dial(t, "x")
	gm := ts.dial(t, "gm")

	if err := wolf.WriteJSON(ClientMessage{Type: msgVote, Target: "x", Channel: ts.ids[game.ChannelWolvesVote]}); err != nil {
		t.Fatal(err)
	}
	if ev := await(t, wolf, func(ev ServerEvent) bool { return ev.Type != evNotice }); ev.Type != evOK || ev.Body != "cast" {
		t.Fatalf("vote reply = %+v", ev)
	}

	if err := gm.WriteJSON(ClientMessage{Type: msgDay, Kill: true}); err != nil {
		t.Fatal(err)
	}
	if ev := await(t, gm, func(ev ServerEvent) bool { return ev.Type != evNotice }); ev.Type != evOK || ev.Body != "killed" {
		t.Fatalf("day reply = %+v", ev)
	}

	ev := await(t, victim, func(ev ServerEvent) bool {
		return ev.Type == evNotice && strings.Contains(ev.Body, "found dead")
	})
	if ev.Body != "x was found dead this morning." {
		t.Fatalf("notice = %q", ev.Body)
	}
	if dead, _ := ts.guild.HasRole(ctx, "x", ts.cfg.Guild.DeadRole); !dead {
		t.Fatal("x is not dead")
	}
}
