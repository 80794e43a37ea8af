package rounds

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/fastround-platform/internal/games"
	"github.com/radieske/fastround-platform/internal/round-authority/store"
	"github.com/radieske/fastround-platform/pkg/contracts/events"
)

// Motivos de rejeição enviados no betRejected
const (
	ReasonRoundClosed       = "round_closed"
	ReasonWindowClosed      = "window_closed"
	ReasonInvalidSelection  = "invalid_selection"
	ReasonInvalidAmount     = "invalid_amount"
	ReasonInsufficientFunds = "insufficient_funds"
	ReasonInternal          = "internal_error"
)

// Rejection é a recusa de uma aposta pelo servidor
type Rejection struct{ Reason string }

func (r *Rejection) Error() string { return "bet rejected: " + r.Reason }

func reject(reason string) error { return &Rejection{Reason: reason} }

// Broadcaster entrega frames às conexões inscritas no (jogo, modo)
type Broadcaster interface {
	// Publish monta o frame por usuário inscrito e retorna os usuários alcançados
	Publish(game string, mode events.Mode, frame func(userID string) []byte) map[string]struct{}
	// SendUser entrega a todas as conexões abertas do usuário no jogo
	SendUser(game, userID string, frame []byte) int
}

// Auditor recebe os eventos de auditoria (stream Kafka)
type Auditor interface {
	BetPlaced(e events.BetPlaced)
	BetRejected(e events.BetRejected)
	RoundSettled(e events.RoundSettled)
}

type Deps struct {
	Store store.Store
	Out   Broadcaster
	Audit Auditor
	Clock clockwork.Clock
	Rand  *rand.Rand
	Log   *zap.Logger
	Hooks Hooks
}

// Hooks para métricas; campos nil são ignorados
type Hooks struct {
	OnBetAccepted func(game string)
	OnBetRejected func(game, reason string)
	OnSettled     func(game string, mode events.Mode, bets int)
}

// Table roda as rodadas de um (jogo, modo): tick por segundo, trava na
// margem, sorteia em zero, liquida e abre a próxima rodada.
type Table struct {
	variant games.Variant
	mode    events.Mode
	margin  int
	deps    Deps
	log     *zap.Logger

	mu      sync.Mutex
	day     time.Time
	seq     int64
	roundID string
	left    int
	tickSeq int64
	bets    map[string]events.Wager
	last    *events.RoundResult
	// resultados da última rodada por usuário, para o snapshot do rejoin
	lastBets map[string][]events.BetOutcome
}

func NewTable(v games.Variant, mode events.Mode, margin int, deps Deps) *Table {
	t := &Table{
		variant: v,
		mode:    mode,
		margin:  margin,
		deps:    deps,
		log:     deps.Log.With(zap.String("game", v.Name()), zap.String("mode", string(mode))),
	}
	t.open()
	return t
}

func (t *Table) Game() string      { return t.variant.Name() }
func (t *Table) Mode() events.Mode { return t.mode }

// open inicia a próxima rodada; exige t.mu (ou construção)
func (t *Table) open() {
	now := t.deps.Clock.Now().UTC()
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if !day.Equal(t.day) {
		t.day, t.seq = day, 0
	}
	t.seq++
	t.roundID = t.variant.RoundID(t.mode, t.day, t.seq)
	t.left = t.mode.Seconds()
	t.tickSeq = 0
	t.bets = make(map[string]events.Wager)
}

// Run avança a mesa a cada segundo até o contexto ser cancelado
func (t *Table) Run(ctx context.Context) {
	ticker := t.deps.Clock.NewTicker(time.Second)
	defer ticker.Stop()

	t.broadcastTick()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			t.Step(ctx)
		}
	}
}

// Step avança um segundo; em zero liquida e abre a próxima rodada
func (t *Table) Step(ctx context.Context) {
	t.mu.Lock()
	t.left--
	if t.left > 0 {
		t.mu.Unlock()
		t.broadcastTick()
		return
	}
	t.left = 0
	t.mu.Unlock()
	t.broadcastTick()

	t.mu.Lock()
	t.settle(ctx)
	t.open()
	t.mu.Unlock()
	t.broadcastTick()
}

func (t *Table) broadcastTick() {
	t.mu.Lock()
	t.tickSeq++
	tick := events.TimerTick{
		Game:          t.variant.Name(),
		Mode:          t.mode,
		RoundID:       t.roundID,
		Seq:           t.tickSeq,
		TimeRemaining: t.left,
	}
	t.mu.Unlock()

	b, _ := events.Encode(events.TypeTimerTick, tick)
	t.deps.Out.Publish(tick.Game, tick.Mode, func(string) []byte { return b })
}

// Snapshot é enviado a quem entra no modo; o último resultado leva só as apostas do usuário
func (t *Table) Snapshot(userID string) events.RoundSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	snap := events.RoundSnapshot{
		Game:          t.variant.Name(),
		Mode:          t.mode,
		RoundID:       t.roundID,
		Seq:           t.tickSeq,
		TimeRemaining: t.left,
	}
	if t.last != nil {
		r := *t.last
		r.Bets = t.lastBets[userID]
		snap.LastResult = &r
	}
	return snap
}

// PlaceBet aceita a aposta na rodada corrente. Retorna *Rejection quando recusada;
// reenvio do mesmo wagerId é ignorado.
func (t *Table) PlaceBet(ctx context.Context, userID string, w events.Wager) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, dup := t.bets[w.WagerID]; dup {
		return nil
	}
	w.UserID = userID
	if err := t.validate(w); err != nil {
		t.rejected(w, err)
		return err
	}

	if _, err := t.deps.Store.Debit(ctx, userID, w.Amount, "stake:"+w.WagerID); err != nil {
		rej := reject(ReasonInternal)
		if errors.Is(err, store.ErrInsufficientFunds) {
			rej = reject(ReasonInsufficientFunds)
		} else {
			t.log.Error("debit stake failed", zap.String("wager_id", w.WagerID), zap.Error(err))
		}
		t.rejected(w, rej)
		return rej
	}

	now := t.deps.Clock.Now().UTC()
	if err := t.deps.Store.SaveBet(ctx, events.BetRecord{
		WagerID:    w.WagerID,
		UserID:     userID,
		Game:       w.Game,
		Mode:       w.Mode,
		RoundID:    w.RoundID,
		Selections: w.Selections,
		Amount:     w.Amount,
		Status:     events.BetPending,
		Payout:     decimal.Zero,
		PlacedAt:   now,
	}); err != nil {
		t.log.Warn("save bet failed", zap.String("wager_id", w.WagerID), zap.Error(err))
	}

	t.bets[w.WagerID] = w
	t.deps.Audit.BetPlaced(events.BetPlaced{
		WagerID:    w.WagerID,
		UserID:     userID,
		Game:       w.Game,
		Mode:       w.Mode,
		RoundID:    w.RoundID,
		Selections: w.Selections,
		Amount:     w.Amount,
		TsUnixMs:   now.UnixMilli(),
	})
	if t.deps.Hooks.OnBetAccepted != nil {
		t.deps.Hooks.OnBetAccepted(w.Game)
	}
	return nil
}

// validate aplica a trava do servidor: a margem do modo com um segundo de tolerância
// para apostas enviadas no último instante permitido pelo cliente
func (t *Table) validate(w events.Wager) error {
	if w.Game != t.variant.Name() || w.Mode != t.mode || w.RoundID != t.roundID {
		return reject(ReasonRoundClosed)
	}
	if t.left < t.margin {
		return reject(ReasonWindowClosed)
	}
	if !w.Amount.IsPositive() {
		return reject(ReasonInvalidAmount)
	}
	if len(w.Selections) == 0 {
		return reject(ReasonInvalidSelection)
	}
	primaries := 0
	for _, s := range w.Selections {
		var err error
		switch s.Kind {
		case events.SelectionPrimary:
			primaries++
			err = t.variant.ValidatePrimary(s.Position, s.Value)
		case events.SelectionOverlay:
			err = t.variant.ValidateOverlay(s.Category, s.Value)
		default:
			err = games.ErrInvalidSelection
		}
		if err != nil || primaries > 1 {
			return reject(ReasonInvalidSelection)
		}
	}
	return nil
}

func (t *Table) rejected(w events.Wager, err error) {
	var rej *Rejection
	if !errors.As(err, &rej) {
		return
	}
	t.deps.Audit.BetRejected(events.BetRejected{WagerID: w.WagerID, Mode: w.Mode, RoundID: w.RoundID, Reason: rej.Reason})
	if t.deps.Hooks.OnBetRejected != nil {
		t.deps.Hooks.OnBetRejected(t.variant.Name(), rej.Reason)
	}
}

// settle sorteia, paga cada perna vencedora e publica o resultado; exige t.mu
func (t *Table) settle(ctx context.Context) {
	outcome := t.variant.Draw(t.deps.Rand)
	now := t.deps.Clock.Now().UTC()

	public := events.RoundResult{
		Game:      t.variant.Name(),
		Mode:      t.mode,
		RoundID:   t.roundID,
		Outcome:   outcome,
		SettledAt: now,
	}

	perUser := make(map[string][]events.BetOutcome)
	totalStake, totalPayout := decimal.Zero, decimal.Zero
	for id, w := range t.bets {
		payout := games.Payout(t.variant, outcome, w)
		status := events.BetLost
		if payout.IsPositive() {
			status = events.BetWon
			if _, err := t.deps.Store.Credit(ctx, w.UserID, payout, "settle:"+id); err != nil {
				t.log.Error("credit payout failed", zap.String("wager_id", id), zap.Error(err))
			}
		}
		if err := t.deps.Store.SettleBet(ctx, id, status, payout); err != nil {
			t.log.Warn("settle bet failed", zap.String("wager_id", id), zap.Error(err))
		}
		perUser[w.UserID] = append(perUser[w.UserID], events.BetOutcome{WagerID: id, Won: payout.IsPositive(), Payout: payout})
		totalStake = totalStake.Add(w.Amount)
		totalPayout = totalPayout.Add(payout)
	}

	if err := t.deps.Store.SaveRound(ctx, events.RoundRecord{
		Game: public.Game, Mode: public.Mode, RoundID: public.RoundID, Outcome: outcome, SettledAt: now,
	}); err != nil {
		t.log.Warn("save round failed", zap.String("round", public.RoundID), zap.Error(err))
	}

	frame := func(userID string) []byte {
		r := public
		r.Bets = perUser[userID]
		b, _ := events.Encode(events.TypeRoundResult, r)
		return b
	}
	reached := t.deps.Out.Publish(public.Game, public.Mode, frame)
	// apostadores fora do modo, inclusive em outra conexão, ainda recebem a liquidação
	for userID := range perUser {
		if _, ok := reached[userID]; !ok {
			t.deps.Out.SendUser(public.Game, userID, frame(userID))
		}
	}

	t.last = &public
	t.lastBets = perUser
	t.deps.Audit.RoundSettled(events.RoundSettled{
		Game:        public.Game,
		Mode:        public.Mode,
		RoundID:     public.RoundID,
		Outcome:     outcome,
		Bets:        len(t.bets),
		TotalStake:  totalStake,
		TotalPayout: totalPayout,
		Ts:          now,
	})
	if t.deps.Hooks.OnSettled != nil {
		t.deps.Hooks.OnSettled(public.Game, public.Mode, len(t.bets))
	}
	t.log.Debug("round settled",
		zap.String("round", public.RoundID),
		zap.Int("reference", outcome.Reference),
		zap.Int("bets", len(t.bets)))
}
