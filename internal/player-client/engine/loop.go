package engine

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/fastround-platform/internal/player-client/balance"
	"github.com/radieske/fastround-platform/internal/player-client/composer"
	"github.com/radieske/fastround-platform/internal/player-client/pushchannel"
	"github.com/radieske/fastround-platform/pkg/contracts/events"
)

var ErrLoopClosed = errors.New("engine loop closed")

// HistoryInvalidator descarta páginas de histórico em cache depois de uma liquidação
type HistoryInvalidator interface {
	Invalidate(ctx context.Context, userID, game string) error
}

// mensagens da inbox
type msg interface{ isLoopMsg() }

type frameMsg struct{ env events.Envelope }

type connMsg struct{ state pushchannel.State }

type refreshDone struct {
	value   decimal.Decimal
	applied bool
	err     error
}

type enterMsg struct {
	mode  events.Mode
	leave bool
	reply chan error
}

type selectMsg struct {
	mode  events.Mode
	sel   composer.Selection
	reply chan error
}

type amountMsg struct {
	mode   events.Mode
	amount decimal.Decimal
	reply  chan error
}

type submitReply struct {
	wager composer.Wager
	err   error
}

type submitMsg struct {
	mode  events.Mode
	reply chan submitReply
}

type viewMsg struct {
	mode  events.Mode
	reply chan View
}

type subscribeMsg struct{ reply chan (<-chan Notice) }

func (frameMsg) isLoopMsg() {}
func (connMsg) isLoopMsg() {}
func (refreshDone) isLoopMsg() {}
func (enterMsg) isLoopMsg() {}
func (selectMsg) isLoopMsg() {}
func (amountMsg) isLoopMsg() {}
func (submitMsg) isLoopMsg() {}
func (viewMsg) isLoopMsg() {}
func (subscribeMsg) isLoopMsg() {}

type LoopOptions struct {
	UserID         string
	Fetcher        balance.Fetcher    // nil desliga o refresh
	History        HistoryInvalidator // opcional
	RefreshTimeout time.Duration
}

// Loop serializa frames, mudanças de conexão, ações do usuário e
// conclusões de refresh numa única goroutine dona do Engine.
type Loop struct {
	eng   *Engine
	opts  LoopOptions
	log   *zap.Logger
	inbox chan msg

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewLoop assume o Engine; depois disso ele só deve ser usado via Loop
func NewLoop(parent context.Context, eng *Engine, opts LoopOptions, log *zap.Logger) *Loop {
	if opts.RefreshTimeout <= 0 {
		opts.RefreshTimeout = 2 * time.Second
	}
	ctx, cancel := context.WithCancel(parent)
	l := &Loop{
		eng:    eng,
		opts:   opts,
		log:    log,
		inbox:  make(chan msg, 256),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	eng.opts.OnTerminal = l.requestRefresh
	go l.run()
	return l
}

func (l *Loop) run() {
	defer close(l.done)
	for {
		select {
		case <-l.ctx.Done():
			return
		case m := <-l.inbox:
			l.dispatch(m)
		}
	}
}

func (l *Loop) dispatch(m msg) {
	// um handler com defeito não derruba o loop; a próxima rodada segue normal
	defer func() {
		if r := recover(); r != nil {
			l.log.Error("engine handler panic", zap.Any("panic", r))
		}
	}()

	switch m := m.(type) {
	case frameMsg:
		l.eng.Handle(m.env)
	case connMsg:
		l.eng.OnConnection(m.state)
	case refreshDone:
		if m.err != nil {
			l.log.Warn("balance refresh failed", zap.Error(m.err))
			return
		}
		l.log.Debug("balance refreshed", zap.String("balance", m.value.String()), zap.Bool("applied", m.applied))
	case enterMsg:
		if m.leave {
			m.reply <- l.eng.LeaveMode(m.mode)
		} else {
			m.reply <- l.eng.EnterMode(m.mode)
		}
	case selectMsg:
		m.reply <- l.eng.Select(m.mode, m.sel)
	case amountMsg:
		m.reply <- l.eng.SetAmount(m.mode, m.amount)
	case submitMsg:
		w, err := l.eng.Submit(m.mode)
		m.reply <- submitReply{wager: w, err: err}
	case viewMsg:
		m.reply <- l.eng.View(m.mode)
	case subscribeMsg:
		m.reply <- l.eng.Subscribe()
	}
}

// requestRefresh roda dentro do loop; a busca acontece fora e o resultado volta pela inbox
func (l *Loop) requestRefresh() {
	if l.opts.Fetcher == nil && l.opts.History == nil {
		return
	}
	game := l.eng.Game()
	go func() {
		ctx, cancel := context.WithTimeout(l.ctx, l.opts.RefreshTimeout)
		defer cancel()

		if l.opts.History != nil {
			if err := l.opts.History.Invalidate(ctx, l.opts.UserID, game); err != nil {
				l.log.Warn("history invalidate failed", zap.Error(err))
			}
		}
		if l.opts.Fetcher == nil {
			return
		}
		v, applied, err := l.eng.balance.Refresh(ctx, l.opts.Fetcher, l.opts.UserID)
		l.post(refreshDone{value: v, applied: applied, err: err})
	}()
}

func (l *Loop) post(m msg) bool {
	select {
	case l.inbox <- m:
		return true
	case <-l.ctx.Done():
		return false
	}
}

// Frame entrega um frame do canal de push; usado como OnFrame do pushchannel
func (l *Loop) Frame(env events.Envelope) { l.post(frameMsg{env: env}) }

// ConnectionChanged é usado como OnState do pushchannel
func (l *Loop) ConnectionChanged(s pushchannel.State) { l.post(connMsg{state: s}) }

func (l *Loop) EnterMode(ctx context.Context, mode events.Mode) error {
	return call(ctx, l, func(reply chan error) msg { return enterMsg{mode: mode, reply: reply} })
}

func (l *Loop) LeaveMode(ctx context.Context, mode events.Mode) error {
	return call(ctx, l, func(reply chan error) msg { return enterMsg{mode: mode, leave: true, reply: reply} })
}

func (l *Loop) Select(ctx context.Context, mode events.Mode, s composer.Selection) error {
	return call(ctx, l, func(reply chan error) msg { return selectMsg{mode: mode, sel: s, reply: reply} })
}

func (l *Loop) SetAmount(ctx context.Context, mode events.Mode, n decimal.Decimal) error {
	return call(ctx, l, func(reply chan error) msg { return amountMsg{mode: mode, amount: n, reply: reply} })
}

func (l *Loop) Submit(ctx context.Context, mode events.Mode) (composer.Wager, error) {
	r, err := ask(ctx, l, func(reply chan submitReply) msg { return submitMsg{mode: mode, reply: reply} })
	if err != nil {
		return composer.Wager{}, err
	}
	return r.wager, r.err
}

func (l *Loop) View(ctx context.Context, mode events.Mode) (View, error) {
	return ask(ctx, l, func(reply chan View) msg { return viewMsg{mode: mode, reply: reply} })
}

func (l *Loop) Subscribe(ctx context.Context) (<-chan Notice, error) {
	return ask(ctx, l, func(reply chan (<-chan Notice)) msg { return subscribeMsg{reply: reply} })
}

// Close para o loop e espera a goroutine terminar
func (l *Loop) Close() {
	l.cancel()
	<-l.done
}

func call(ctx context.Context, l *Loop, build func(chan error) msg) error {
	res, err := ask(ctx, l, build)
	if err != nil {
		return err
	}
	return res
}

// ask posta a mensagem e espera a resposta do loop
func ask[T any](ctx context.Context, l *Loop, build func(chan T) msg) (T, error) {
	var zero T
	reply := make(chan T, 1)
	select {
	case l.inbox <- build(reply):
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-l.ctx.Done():
		return zero, ErrLoopClosed
	}
	select {
	case r := <-reply:
		return r, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-l.ctx.Done():
		return zero, ErrLoopClosed
	}
}
