package pushchannel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/radieske/fastround-platform/pkg/contracts/events"
)

var (
	ErrNotConnected   = errors.New("push channel not connected")
	ErrSendBufferFull = errors.New("push channel send buffer full")
)

const (
	writeWait      = 5 * time.Second
	pongWait       = 30 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	sendBufferSize = 64
)

// State é o estado da conexão entregue ao consumidor
type State int

const (
	Disconnected State = iota
	Connected
)

func (s State) String() string {
	if s == Connected {
		return "connected"
	}
	return "disconnected"
}

// Options configura o cliente de um namespace de jogo
type Options struct {
	URL    string // ex: ws://localhost:8081/ws
	Game   string
	UserID string

	MinBackoff time.Duration
	MaxBackoff time.Duration

	// OnFrame e OnState rodam na goroutine de leitura; não devem bloquear
	OnFrame func(events.Envelope)
	OnState func(State)
}

// Client mantém uma conexão WebSocket de longa duração com a autoridade de rodadas.
// Só conecta depois de Connect; reconecta com backoff e reentra nos modos assinados.
type Client struct {
	opts Options
	log  *zap.Logger

	mu      sync.Mutex
	send    chan []byte // nil enquanto desconectado
	joined  map[events.Mode]struct{}
	cancel  context.CancelFunc
	running sync.WaitGroup
}

func New(opts Options, log *zap.Logger) *Client {
	if opts.MinBackoff <= 0 {
		opts.MinBackoff = 500 * time.Millisecond
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = 5 * time.Second
	}
	if opts.OnFrame == nil {
		opts.OnFrame = func(events.Envelope) {}
	}
	if opts.OnState == nil {
		opts.OnState = func(State) {}
	}
	return &Client{
		opts:   opts,
		log:    log.With(zap.String("game", opts.Game)),
		joined: make(map[events.Mode]struct{}),
	}
}

// Connect inicia o loop de conexão em background. Chamadas repetidas são ignoradas.
func (c *Client) Connect(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return
	}
	ctx, c.cancel = context.WithCancel(ctx)
	c.running.Add(1)
	go func() {
		defer c.running.Done()
		c.start(ctx)
	}()
}

// Disconnect encerra a conexão e o loop de reconexão
func (c *Client) Disconnect() {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	c.running.Wait()
}

// Connected informa se há conexão ativa
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.send != nil
}

// JoinMode registra interesse no modo; é reenviado a cada reconexão
func (c *Client) JoinMode(mode events.Mode) error {
	c.mu.Lock()
	c.joined[mode] = struct{}{}
	c.mu.Unlock()
	err := c.emit(events.TypeJoinMode, events.JoinMode{Mode: mode})
	if errors.Is(err, ErrNotConnected) {
		return nil
	}
	return err
}

func (c *Client) LeaveMode(mode events.Mode) error {
	c.mu.Lock()
	delete(c.joined, mode)
	c.mu.Unlock()
	err := c.emit(events.TypeLeaveMode, events.LeaveMode{Mode: mode})
	if errors.Is(err, ErrNotConnected) {
		return nil
	}
	return err
}

// PlaceBet enfileira a aposta; falha localmente com ErrNotConnected sem conexão
func (c *Client) PlaceBet(w events.Wager) error {
	return c.emit(events.TypePlaceBet, events.PlaceBet{Wager: w})
}

func (c *Client) emit(t events.Type, v any) error {
	b, err := events.Encode(t, v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.send == nil {
		return ErrNotConnected
	}
	select {
	case c.send <- b:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// start mantém o loop de conexão até o contexto ser cancelado
func (c *Client) start(ctx context.Context) {
	backoff := c.opts.MinBackoff
	for {
		err := c.connectAndListen(ctx)
		if ctx.Err() != nil {
			c.log.Info("context canceled, stopping push channel")
			return
		}
		if err != nil {
			c.log.Warn("connection closed", zap.Error(err), zap.Duration("retry_in", backoff))
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff *= 2; backoff > c.opts.MaxBackoff {
			backoff = c.opts.MaxBackoff
		}
	}
}

func (c *Client) dialURL() (string, error) {
	u, err := url.Parse(c.opts.URL)
	if err != nil {
		return "", fmt.Errorf("parse push url: %w", err)
	}
	q := u.Query()
	q.Set("game", c.opts.Game)
	q.Set("user", c.opts.UserID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// connectAndListen estabelece a conexão, reentra nos modos e repassa os frames recebidos
func (c *Client) connectAndListen(ctx context.Context) error {
	target, err := c.dialURL()
	if err != nil {
		return err
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, target, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	send := make(chan []byte, sendBufferSize)
	c.mu.Lock()
	for m := range c.joined {
		b, _ := events.Encode(events.TypeJoinMode, events.JoinMode{Mode: m})
		send <- b
	}
	c.send = send
	c.mu.Unlock()

	c.log.Info("connected to round authority", zap.String("url", c.opts.URL))
	c.opts.OnState(Connected)

	done := make(chan struct{})
	go c.writePump(conn, send, done)

	// fecha a conexão quando o contexto for cancelado para destravar a leitura
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	err = c.readPump(conn)

	c.mu.Lock()
	c.send = nil
	c.mu.Unlock()
	close(done)
	c.opts.OnState(Disconnected)
	return err
}

func (c *Client) readPump(conn *websocket.Conn) error {
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		var env events.Envelope
		if err := json.Unmarshal(message, &env); err != nil || env.Type == "" {
			c.log.Warn("invalid frame", zap.Error(err), zap.ByteString("frame", message))
			continue
		}
		if env.Type == events.TypePong {
			continue
		}
		c.opts.OnFrame(env)
	}
}

func (c *Client) writePump(conn *websocket.Conn, send <-chan []byte, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case b := <-send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
				c.log.Warn("write frame failed", zap.Error(err))
				_ = conn.Close()
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = conn.Close()
				return
			}
		}
	}
}
