package main

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Seednode/earwax/internal/playback"
	"github.com/Seednode/earwax/internal/remote"
	"github.com/Seednode/earwax/internal/round"
)

// testClient is a browser stand-in. When it holds the speaker role it
// answers device commands as a well-behaved speaker would.
type testClient struct {
	t       *testing.T
	conn    *websocket.Conn
	notices []string
	loads   int
	speaks  []string
}

func dial(t *testing.T, ts *testServer, game string) *testClient {
	t.Helper()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + gamePath + "/" + game + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	t.Cleanup(func() { _ = conn.Close() })

	return &testClient{t: t, conn: conn}
}

func (c *testClient) send(msg ClientMessage) {
	c.t.Helper()
	require.NoError(c.t, c.conn.WriteJSON(msg))
}

func (c *testClient) reply(r remote.Reply) {
	c.t.Helper()
	c.send(ClientMessage{Type: r.Type, Handle: r.Handle, Event: r.Event, Detail: r.Detail})
}

// next reads one message, answering device commands along the way, and
// returns its type with the raw payload.
func (c *testClient) next(deadline time.Time) (string, []byte) {
	c.t.Helper()

	require.NoError(c.t, c.conn.SetReadDeadline(deadline))

	_, data, err := c.conn.ReadMessage()
	require.NoError(c.t, err)

	var head struct {
		Type string `json:"type"`
	}
	require.NoError(c.t, json.Unmarshal(data, &head))

	switch head.Type {
	case remote.CommandLoad, remote.CommandPlay, remote.CommandSpeak:
		var cmd remote.Command
		require.NoError(c.t, json.Unmarshal(data, &cmd))
		c.device(cmd)
	case "notice":
		var n NoticeMessage
		require.NoError(c.t, json.Unmarshal(data, &n))
		c.notices = append(c.notices, n.Message)
	}

	return head.Type, data
}

func (c *testClient) device(cmd remote.Command) {
	switch cmd.Type {
	case remote.CommandLoad:
		c.loads++
		c.reply(remote.Reply{Type: remote.ReplyClip, Handle: cmd.Handle, Event: "ready"})
	case remote.CommandPlay:
		c.reply(remote.Reply{Type: remote.ReplyClip, Handle: cmd.Handle, Event: "playing"})
		c.reply(remote.Reply{Type: remote.ReplyClip, Handle: cmd.Handle, Event: "ended"})
	case remote.CommandSpeak:
		c.speaks = append(c.speaks, cmd.Text)
		c.reply(remote.Reply{Type: remote.ReplySpeech, Handle: cmd.Handle, Event: remote.SpeechEnded})
	}
}

// waitState reads until a state satisfying ok arrives.
func (c *testClient) waitState(ok func(StateMessage) bool) StateMessage {
	c.t.Helper()

	deadline := time.Now().Add(15 * time.Second)
	for {
		kind, data := c.next(deadline)
		if kind != "state" {
			continue
		}

		var s StateMessage
		require.NoError(c.t, json.Unmarshal(data, &s))
		if ok(s) {
			return s
		}
	}
}

// waitNotice reads until a notice arrives.
func (c *testClient) waitNotice() string {
	c.t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	seen := len(c.notices)
	for len(c.notices) == seen {
		c.next(deadline)
	}

	return c.notices[len(c.notices)-1]
}

func stageIs(stage round.Stage) func(StateMessage) bool {
	return func(s StateMessage) bool { return s.Stage == stage }
}

func TestFirstClientBecomesSpeaker(t *testing.T) {
	dir := t.TempDir()
	writeCatalog(t, dir)
	ts := newTestServer(t, dir)

	a := dial(t, ts, "speakers")
	s := a.waitState(stageIs(round.StageLobby))
	assert.True(t, s.Speaker)
	assert.True(t, s.HasSpeaker)
	assert.Equal(t, "speakers", s.Game)

	b := dial(t, ts, "speakers")
	s = b.waitState(stageIs(round.StageLobby))
	assert.False(t, s.Speaker)
	assert.True(t, s.HasSpeaker)

	b.send(ClientMessage{Type: "claim_speaker"})
	b.waitState(func(s StateMessage) bool { return s.Speaker })
	a.waitState(func(s StateMessage) bool { return !s.Speaker && s.HasSpeaker })

	require.NoError(t, b.conn.Close())
	a.waitState(func(s StateMessage) bool { return s.Speaker })
}

func TestRefusedActionsAreNotices(t *testing.T) {
	dir := t.TempDir()
	writeCatalog(t, dir)
	ts := newTestServer(t, dir)

	c := dial(t, ts, "notices")
	c.waitState(stageIs(round.StageLobby))

	c.send(ClientMessage{Type: "start"})
	assert.NotEmpty(t, c.waitNotice())

	c.send(ClientMessage{Type: "add_player", Name: "   "})
	assert.NotEmpty(t, c.waitNotice())

	c.send(ClientMessage{Type: "dance"})
	assert.Equal(t, errUnknownAction.Error(), c.waitNotice())

	c.send(ClientMessage{Type: "add_player", Name: "Ada"})
	s := c.waitState(func(s StateMessage) bool { return len(s.Players) == 1 })
	assert.Equal(t, []string{"Ada"}, s.Players)

	c.send(ClientMessage{Type: "add_player", Name: "Ada"})
	assert.NotEmpty(t, c.waitNotice())
}

func TestMissingCatalogShowsErrorStage(t *testing.T) {
	dir := t.TempDir()
	ts := newTestServer(t, dir)

	c := dial(t, ts, "broken")
	s := c.waitState(stageIs(stageError))
	assert.Contains(t, s.Error, "audio.json")

	c.send(ClientMessage{Type: "add_player", Name: "Ada"})
	assert.Equal(t, errCatalogUnavailable.Error(), c.waitNotice())

	writeCatalog(t, dir)
	c.send(ClientMessage{Type: "retry_load"})
	s = c.waitState(stageIs(round.StageLobby))
	assert.Empty(t, s.Error)
}

func TestFullRound(t *testing.T) {
	dir := t.TempDir()
	writeCatalog(t, dir)
	ts := newTestServer(t, dir)

	c := dial(t, ts, "fullround")
	c.waitState(stageIs(round.StageLobby))

	for _, name := range []string{"Ada", "Bo", "Cy"} {
		c.send(ClientMessage{Type: "add_player", Name: name})
	}
	c.waitState(func(s StateMessage) bool { return len(s.Players) == 3 })

	c.send(ClientMessage{Type: "start"})
	s := c.waitState(stageIs(round.StagePromptSelection))
	require.NotEmpty(t, s.PromptOptions)
	judge := s.Judge

	c.send(ClientMessage{Type: "choose_prompt", ID: s.PromptOptions[0].ID})
	s = c.waitState(stageIs(round.StageSubmissionLobby))
	assert.Empty(t, s.PromptOptions)
	require.Len(t, s.Pending, 2)
	assert.NotContains(t, s.Pending, judge)

	for _, player := range s.Pending {
		c.send(ClientMessage{Type: "begin_turn", Name: player})
		pick := c.waitState(stageIs(round.StageSoundPicking))
		assert.Equal(t, player, pick.ActivePlayer)
		require.Len(t, pick.SoundOptions, round.SoundsPerTurn)

		c.send(ClientMessage{Type: "toggle_sound", ID: pick.SoundOptions[0].ID})
		c.send(ClientMessage{Type: "toggle_sound", ID: pick.SoundOptions[1].ID})
		c.waitState(func(s StateMessage) bool { return len(s.Selection) == 2 })

		c.send(ClientMessage{Type: "submit"})
		c.waitState(func(s StateMessage) bool { return s.Stage != round.StageSoundPicking })
	}

	s = c.waitState(stageIs(round.StageJudging))
	require.Len(t, s.Queue, 2)
	require.NotNil(t, s.Report)
	assert.Equal(t, 2, s.Report.Played)
	assert.Zero(t, s.Report.Failed)
	assert.Equal(t, 4, c.loads)
	assert.Equal(t, []string{s.Prompt}, c.speaks)

	index := 1
	picked := time.Now()
	c.send(ClientMessage{Type: "select_combo", Index: &index})
	s = c.waitState(stageIs(round.StagePromptSelection))
	assert.GreaterOrEqual(t, time.Since(picked), playback.DefaultTiming.PlayerGap, "the point waits for the replay to ring out")
	require.NotNil(t, s.Outcome)
	assert.Equal(t, 1, s.Outcome.Score)
	assert.Equal(t, s.Outcome.Winner, s.LastWinner)
	assert.Equal(t, 2, s.Round)
	assert.NotEqual(t, judge, s.Judge)
	assert.Equal(t, 6, c.loads)
}

func TestGameManagerReap(t *testing.T) {
	ts := newTestServer(t, t.TempDir())

	ts.gm.getHub("stale")
	ts.gm.getHub("other")
	assert.Same(t, ts.gm.getHub("stale"), ts.gm.getHub("stale"))

	assert.Zero(t, ts.gm.reap(time.Now().Add(-time.Hour)))
	assert.Equal(t, 2, ts.gm.reap(time.Now().Add(time.Minute)))

	ts.gm.mu.Lock()
	defer ts.gm.mu.Unlock()
	assert.Empty(t, ts.gm.hubs)
}

func TestNewGameID(t *testing.T) {
	ts := newTestServer(t, t.TempDir())

	seen := make(map[string]bool)
	for range 50 {
		id := ts.gm.newGameID()
		assert.Regexp(t, `^[A-Za-z0-9]{8}$`, id)
		assert.False(t, seen[id])
		seen[id] = true
	}
}
