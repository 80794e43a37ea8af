package bot

import (
	"context"
	"errors"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/fastround-platform/internal/player-client/composer"
	"github.com/radieske/fastround-platform/internal/player-client/engine"
	"github.com/radieske/fastround-platform/internal/player-client/roundclock"
	"github.com/radieske/fastround-platform/pkg/contracts/events"
)

// Session é o subconjunto do engine.Loop usado pelo bot
type Session interface {
	EnterMode(ctx context.Context, mode events.Mode) error
	Select(ctx context.Context, mode events.Mode, s composer.Selection) error
	SetAmount(ctx context.Context, mode events.Mode, n decimal.Decimal) error
	Submit(ctx context.Context, mode events.Mode) (composer.Wager, error)
	View(ctx context.Context, mode events.Mode) (engine.View, error)
}

type Options struct {
	Modes      []events.Mode
	Selections []composer.Selection
	Amount     decimal.Decimal
	Interval   time.Duration // padrão 1s
	Clock      clockwork.Clock
}

// Bot joga uma aposta fixa por rodada em cada modo enquanto a janela estiver aberta
type Bot struct {
	s    Session
	opts Options
	log  *zap.Logger

	placed map[events.Mode]string // última rodada apostada
	phase  map[events.Mode]roundclock.Phase
}

func New(s Session, opts Options, log *zap.Logger) *Bot {
	if opts.Interval <= 0 {
		opts.Interval = time.Second
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	return &Bot{
		s:      s,
		opts:   opts,
		log:    log,
		placed: make(map[events.Mode]string),
		phase:  make(map[events.Mode]roundclock.Phase),
	}
}

// Start entra em todos os modos configurados
func (b *Bot) Start(ctx context.Context) error {
	for _, m := range b.opts.Modes {
		if err := b.s.EnterMode(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

// Run chama Step a cada intervalo até o contexto ser cancelado
func (b *Bot) Run(ctx context.Context) {
	ticker := b.opts.Clock.NewTicker(b.opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			b.Step(ctx)
		}
	}
}

// Step registra mudanças de fase e aposta uma vez por rodada
func (b *Bot) Step(ctx context.Context) {
	for _, m := range b.opts.Modes {
		v, err := b.s.View(ctx, m)
		if err != nil {
			return
		}
		if v.Phase != b.phase[m] {
			b.phase[m] = v.Phase
			b.log.Info("round phase",
				zap.String("mode", string(m)),
				zap.String("round", v.RoundID),
				zap.String("phase", v.Phase.String()),
				zap.Int("countdown", v.Countdown),
				zap.String("balance", v.Balance.String()))
		}
		if v.CanSubmit && v.RoundID != "" && b.placed[m] != v.RoundID {
			b.place(ctx, m, v)
		}
	}
}

func (b *Bot) place(ctx context.Context, m events.Mode, v engine.View) {
	// um composer preenchido sobra de um envio que falhou; reaproveita
	if len(v.Selections) == 0 {
		for _, sel := range b.opts.Selections {
			if err := b.s.Select(ctx, m, sel); err != nil {
				b.log.Warn("select failed", zap.String("mode", string(m)), zap.Error(err))
				return
			}
		}
	}
	if err := b.s.SetAmount(ctx, m, b.opts.Amount); err != nil {
		if errors.Is(err, composer.ErrInsufficientBalance) {
			b.placed[m] = v.RoundID
		}
		b.log.Warn("set amount failed", zap.String("mode", string(m)), zap.Error(err))
		return
	}
	w, err := b.s.Submit(ctx, m)
	if err != nil {
		b.log.Warn("submit failed", zap.String("mode", string(m)), zap.String("round", v.RoundID), zap.Error(err))
		return
	}
	b.placed[m] = v.RoundID
	b.log.Info("bet placed",
		zap.String("mode", string(m)),
		zap.String("round", w.RoundID),
		zap.String("wager_id", w.ID),
		zap.String("amount", w.Amount.String()))
}

// Watch registra os avisos do engine até o canal fechar ou o contexto acabar
func Watch(ctx context.Context, notices <-chan engine.Notice, log *zap.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-notices:
			if !ok {
				return
			}
			fields := []zap.Field{
				zap.String("kind", n.Kind.String()),
				zap.String("mode", string(n.Mode)),
				zap.String("round", n.RoundID),
				zap.String("wager_id", n.WagerID),
			}
			switch n.Kind {
			case engine.NoticeOutcome:
				log.Info("bet settled", append(fields, zap.Bool("won", n.Won), zap.String("payout", n.Payout.String()))...)
			default:
				log.Warn("bet not accepted", append(fields, zap.String("reason", n.Reason))...)
			}
		}
	}
}
