package pushchannel

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/fastround-platform/pkg/contracts/events"
)

// fakeAuthority registra os frames recebidos e expõe as conexões abertas
type fakeAuthority struct {
	upgrader websocket.Upgrader
	frames   chan events.Envelope
	conns    chan *websocket.Conn
	query    chan string
}

func newFakeAuthority(t *testing.T) (*fakeAuthority, string) {
	fa := &fakeAuthority{
		frames: make(chan events.Envelope, 32),
		conns:  make(chan *websocket.Conn, 4),
		query:  make(chan string, 4),
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := fa.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		fa.query <- r.URL.RawQuery
		fa.conns <- conn
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var env events.Envelope
			if json.Unmarshal(msg, &env) == nil {
				fa.frames <- env
			}
		}
	}))
	t.Cleanup(srv.Close)
	return fa, "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func (fa *fakeAuthority) nextConn(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case c := <-fa.conns:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for connection")
		return nil
	}
}

func (fa *fakeAuthority) nextFrame(t *testing.T) events.Envelope {
	t.Helper()
	select {
	case f := <-fa.frames:
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for frame")
		return events.Envelope{}
	}
}

type recorder struct {
	states chan State
	frames chan events.Envelope
}

func newRecorder() *recorder {
	return &recorder{states: make(chan State, 16), frames: make(chan events.Envelope, 16)}
}

func (r *recorder) waitState(t *testing.T, want State) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case s := <-r.states:
			if s == want {
				return
			}
		case <-deadline:
			t.Fatalf("timeout waiting for state %s", want)
		}
	}
}

func newTestClient(url string, rec *recorder) *Client {
	return New(Options{
		URL:        url,
		Game:       "wingo",
		UserID:     "u1",
		MinBackoff: 10 * time.Millisecond,
		MaxBackoff: 20 * time.Millisecond,
		OnFrame:    func(e events.Envelope) { rec.frames <- e },
		OnState:    func(s State) { rec.states <- s },
	}, zap.NewNop())
}

func TestPlaceBetBeforeConnectFailsLocally(t *testing.T) {
	rec := newRecorder()
	c := newTestClient("ws://127.0.0.1:1/ws", rec)

	err := c.PlaceBet(events.Wager{WagerID: "w1", Amount: decimal.NewFromInt(1)})
	require.ErrorIs(t, err, ErrNotConnected)

	// join sem conexão só registra interesse
	require.NoError(t, c.JoinMode(events.Mode30s))
	assert.False(t, c.Connected())
}

func TestConnectJoinsAndDeliversFrames(t *testing.T) {
	fa, url := newFakeAuthority(t)
	rec := newRecorder()
	c := newTestClient(url, rec)
	require.NoError(t, c.JoinMode(events.Mode1m))

	c.Connect(context.Background())
	defer c.Disconnect()

	conn := fa.nextConn(t)
	rec.waitState(t, Connected)

	q := <-fa.query
	assert.Contains(t, q, "game=wingo")
	assert.Contains(t, q, "user=u1")

	join := fa.nextFrame(t)
	assert.Equal(t, events.TypeJoinMode, join.Type)
	assert.JSONEq(t, `{"mode":"1m"}`, string(join.Data))

	tick, _ := events.Encode(events.TypeTimerTick, events.TimerTick{Game: "wingo", Mode: events.Mode1m, RoundID: "r1", TimeRemaining: 9})
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, tick))

	select {
	case f := <-rec.frames:
		assert.Equal(t, events.TypeTimerTick, f.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("frame not delivered")
	}

	require.NoError(t, c.PlaceBet(events.Wager{WagerID: "w1", Amount: decimal.NewFromInt(5)}))
	bet := fa.nextFrame(t)
	assert.Equal(t, events.TypePlaceBet, bet.Type)
}

func TestReconnectRejoinsModes(t *testing.T) {
	fa, url := newFakeAuthority(t)
	rec := newRecorder()
	c := newTestClient(url, rec)
	require.NoError(t, c.JoinMode(events.Mode30s))

	c.Connect(context.Background())
	defer c.Disconnect()

	first := fa.nextConn(t)
	rec.waitState(t, Connected)
	assert.Equal(t, events.TypeJoinMode, fa.nextFrame(t).Type)

	_ = first.Close()
	rec.waitState(t, Disconnected)

	fa.nextConn(t)
	rec.waitState(t, Connected)
	rejoin := fa.nextFrame(t)
	assert.Equal(t, events.TypeJoinMode, rejoin.Type)
	assert.JSONEq(t, `{"mode":"30s"}`, string(rejoin.Data))
}

func TestLeaveModeIsNotReplayed(t *testing.T) {
	fa, url := newFakeAuthority(t)
	rec := newRecorder()
	c := newTestClient(url, rec)
	require.NoError(t, c.JoinMode(events.Mode30s))
	require.NoError(t, c.LeaveMode(events.Mode30s))

	c.Connect(context.Background())
	defer c.Disconnect()
	fa.nextConn(t)
	rec.waitState(t, Connected)

	require.NoError(t, c.PlaceBet(events.Wager{WagerID: "w2"}))
	// o primeiro frame visto é a aposta, sem joinMode antes
	assert.Equal(t, events.TypePlaceBet, fa.nextFrame(t).Type)
}
