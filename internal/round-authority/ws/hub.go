package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/radieske/fastround-platform/internal/games"
	"github.com/radieske/fastround-platform/internal/round-authority/rounds"
	"github.com/radieske/fastround-platform/pkg/contracts/events"
)

const (
	sendBuffer   = 64
	writeWait    = 2 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = pongWait * 9 / 10
	maxFrameSize = 64 << 10
)

// TableSource resolve a mesa de um (jogo, modo)
type TableSource interface {
	Table(game string, mode events.Mode) (*rounds.Table, bool)
}

// Hooks para métricas; campos nil são ignorados
type Hooks struct {
	OnConnect    func()
	OnDisconnect func()
	OnSent       func()
	OnDropped    func()
}

type subKey struct {
	game string
	mode events.Mode
}

// client é uma conexão de um jogador em um jogo
type client struct {
	id     string
	game   string
	userID string
	conn   *websocket.Conn
	send   chan []byte
	modes  map[events.Mode]struct{} // protegido por Hub.mu
}

// Hub gerencia as conexões de jogadores e as inscrições por (jogo, modo).
// Escritas passam pela fila send de cada cliente; só o writePump escreve no socket.
type Hub struct {
	upgrader websocket.Upgrader
	hooks    Hooks
	log      *zap.Logger

	mu      sync.RWMutex
	subs    map[subKey]map[*client]struct{}
	clients map[string]*client
}

// NewHub cria o hub com política customizada de origem
func NewHub(allowOrigin func(r *http.Request) bool, hooks Hooks, log *zap.Logger) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     allowOrigin,
		},
		hooks:   hooks,
		log:     log,
		subs:    make(map[subKey]map[*client]struct{}),
		clients: make(map[string]*client),
	}
}

// Handler atende /ws?game=<jogo>&user=<id>
func (h *Hub) Handler(tables TableSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		game, user := r.URL.Query().Get("game"), r.URL.Query().Get("user")
		if _, err := games.Lookup(game); err != nil || user == "" {
			http.Error(w, "game and user are required", http.StatusBadRequest)
			return
		}
		conn, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.log.Warn("ws upgrade failed", zap.Error(err))
			return
		}
		c := &client{
			id:     uuid.NewString(),
			game:   game,
			userID: user,
			conn:   conn,
			send:   make(chan []byte, sendBuffer),
			modes:  make(map[events.Mode]struct{}),
		}
		h.add(c)
		go h.writePump(c)
		h.readPump(r.Context(), c, tables)
		h.remove(c)
	}
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
	if h.hooks.OnConnect != nil {
		h.hooks.OnConnect()
	}
	h.log.Info("ws client connected",
		zap.String("client_id", c.id), zap.String("game", c.game), zap.String("user_id", c.userID))
}

// remove tira o cliente de todas as inscrições e encerra o writePump
func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c.id]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c.id)
	for m := range c.modes {
		h.unsubscribeLocked(c, m)
	}
	close(c.send)
	h.mu.Unlock()

	if h.hooks.OnDisconnect != nil {
		h.hooks.OnDisconnect()
	}
	h.log.Info("ws client disconnected", zap.String("client_id", c.id))
}

func (h *Hub) subscribe(c *client, m events.Mode) {
	h.mu.Lock()
	defer h.mu.Unlock()
	k := subKey{c.game, m}
	if _, ok := h.subs[k]; !ok {
		h.subs[k] = make(map[*client]struct{})
	}
	h.subs[k][c] = struct{}{}
	c.modes[m] = struct{}{}
}

func (h *Hub) unsubscribe(c *client, m events.Mode) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unsubscribeLocked(c, m)
}

func (h *Hub) unsubscribeLocked(c *client, m events.Mode) {
	k := subKey{c.game, m}
	if set, ok := h.subs[k]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.subs, k)
		}
	}
	delete(c.modes, m)
}

// Subscribers retorna quantas conexões acompanham o (jogo, modo)
func (h *Hub) Subscribers(game string, mode events.Mode) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[subKey{game, mode}])
}

// Publish entrega um frame por inscrito, montado para o usuário da conexão,
// e retorna os usuários alcançados
func (h *Hub) Publish(game string, mode events.Mode, frame func(userID string) []byte) map[string]struct{} {
	h.mu.RLock()
	defer h.mu.RUnlock()
	set := h.subs[subKey{game, mode}]
	reached := make(map[string]struct{}, len(set))
	for c := range set {
		h.enqueue(c, frame(c.userID))
		reached[c.userID] = struct{}{}
	}
	return reached
}

// SendUser entrega o frame a todas as conexões abertas do usuário no jogo
func (h *Hub) SendUser(game, userID string, frame []byte) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, c := range h.clients {
		if c.game == game && c.userID == userID && h.enqueue(c, frame) {
			n++
		}
	}
	return n
}

// enqueue não bloqueia; exige h.mu ou ser chamado pelo readPump do próprio cliente
func (h *Hub) enqueue(c *client, b []byte) bool {
	select {
	case c.send <- b:
		return true
	default:
		if h.hooks.OnDropped != nil {
			h.hooks.OnDropped()
		}
		h.log.Warn("ws send buffer full, dropping frame", zap.String("client_id", c.id))
		return false
	}
}

func (h *Hub) reply(c *client, t events.Type, v any) {
	b, err := events.Encode(t, v)
	if err != nil {
		h.log.Error("encode frame failed", zap.String("type", string(t)), zap.Error(err))
		return
	}
	h.enqueue(c, b)
}

func (h *Hub) readPump(ctx context.Context, c *client, tables TableSource) {
	c.conn.SetReadLimit(maxFrameSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

		var env events.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			h.log.Warn("invalid client frame", zap.String("client_id", c.id), zap.Error(err))
			continue
		}
		msg, err := env.Decode()
		if err != nil {
			h.log.Warn("invalid client payload", zap.String("client_id", c.id), zap.Error(err))
			continue
		}

		switch m := msg.(type) {
		case *events.JoinMode:
			t, ok := tables.Table(c.game, m.Mode)
			if !ok {
				h.log.Warn("join unknown mode", zap.String("client_id", c.id), zap.String("mode", string(m.Mode)))
				continue
			}
			h.subscribe(c, m.Mode)
			h.reply(c, events.TypeRoundSnapshot, t.Snapshot(c.userID))
		case *events.LeaveMode:
			h.unsubscribe(c, m.Mode)
		case *events.PlaceBet:
			h.placeBet(ctx, c, tables, m.Wager)
		default:
			if env.Type == events.TypePing {
				h.reply(c, events.TypePong, nil)
			}
		}
	}
}

func (h *Hub) placeBet(ctx context.Context, c *client, tables TableSource, w events.Wager) {
	reason := rounds.ReasonRoundClosed
	if t, ok := tables.Table(c.game, w.Mode); ok {
		err := t.PlaceBet(ctx, c.userID, w)
		if err == nil {
			return
		}
		var rej *rounds.Rejection
		if !errors.As(err, &rej) {
			h.log.Error("place bet failed", zap.String("wager_id", w.WagerID), zap.Error(err))
			return
		}
		reason = rej.Reason
	}
	h.reply(c, events.TypeBetRejected, events.BetRejected{
		WagerID: w.WagerID,
		Mode:    w.Mode,
		RoundID: w.RoundID,
		Reason:  reason,
	})
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.log.Warn("ws write failed", zap.String("client_id", c.id), zap.Error(err))
				return
			}
			if h.hooks.OnSent != nil {
				h.hooks.OnSent()
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
