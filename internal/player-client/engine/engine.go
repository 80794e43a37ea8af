package engine

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/fastround-platform/internal/games"
	"github.com/radieske/fastround-platform/internal/player-client/admission"
	"github.com/radieske/fastround-platform/internal/player-client/balance"
	"github.com/radieske/fastround-platform/internal/player-client/composer"
	"github.com/radieske/fastround-platform/internal/player-client/pushchannel"
	"github.com/radieske/fastround-platform/internal/player-client/roundclock"
	"github.com/radieske/fastround-platform/internal/player-client/settlement"
	"github.com/radieske/fastround-platform/internal/shared/config"
	"github.com/radieske/fastround-platform/pkg/contracts/events"
)

var ErrEditsLocked = errors.New("bet edits locked")

// Transport é o lado de saída do canal de push
type Transport interface {
	JoinMode(mode events.Mode) error
	LeaveMode(mode events.Mode) error
	PlaceBet(w events.Wager) error
}

type Options struct {
	UserID     string
	Catalogue  config.Catalogue
	Clock      clockwork.Clock
	NewID      func() string
	Hooks      Hooks
	NoticeSize int

	// chamado após cada estado terminal de aposta; o Loop usa para o refresh assíncrono
	OnTerminal func()
}

// Engine é a máquina de estados de um jogo: relógio, gate, composição,
// liquidação e saldo. Não é seguro para uso concorrente; use Loop.
type Engine struct {
	variant   games.Variant
	opts      Options
	log       *zap.Logger
	transport Transport

	rounds    *roundclock.Clock
	gate      *admission.Gate
	recon     *settlement.Reconciler
	balance   *balance.Cache
	composers map[events.Mode]*composer.Composer

	lastResult map[events.Mode]events.RoundResult
	notices    []chan Notice
}

func New(v games.Variant, transport Transport, cache *balance.Cache, opts Options, log *zap.Logger) *Engine {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.NoticeSize <= 0 {
		opts.NoticeSize = 32
	}
	if len(opts.Catalogue.Games) == 0 {
		opts.Catalogue = config.DefaultCatalogue()
	}

	rounds := roundclock.New(opts.Clock, roundclock.Options{
		StaleAfter: opts.Catalogue.StaleAfter,
		RoundSeq:   v.RoundSeq,
	})
	return &Engine{
		variant:    v,
		opts:       opts,
		log:        log.With(zap.String("game", v.Name())),
		transport:  transport,
		rounds:     rounds,
		gate:       admission.New(rounds),
		recon:      settlement.New(cache),
		balance:    cache,
		composers:  make(map[events.Mode]*composer.Composer),
		lastResult: make(map[events.Mode]events.RoundResult),
	}
}

func (e *Engine) Game() string { return e.variant.Name() }

// Subscribe registra um consumidor de avisos; avisos com o canal cheio são descartados
func (e *Engine) Subscribe() <-chan Notice {
	ch := make(chan Notice, e.opts.NoticeSize)
	e.notices = append(e.notices, ch)
	return ch
}

// EnterMode abre a sessão do modo: passa a receber ticks e pode apostar
func (e *Engine) EnterMode(mode events.Mode) error {
	mc, err := e.opts.Catalogue.Mode(e.variant.Name(), mode)
	if err != nil {
		return err
	}
	e.rounds.Configure(mode, mc.ClosingThreshold)
	e.gate.Join(mode, mc.AdmissionMargin)
	if _, ok := e.composers[mode]; !ok {
		e.composers[mode] = composer.New(e.variant)
	}
	return e.transport.JoinMode(mode)
}

// LeaveMode encerra a sessão; apostas pendentes continuam e são liquidadas em silêncio
func (e *Engine) LeaveMode(mode events.Mode) error {
	if !e.gate.Joined(mode) {
		return nil
	}
	e.gate.Leave(mode)
	e.rounds.Reset(mode)
	delete(e.composers, mode)
	delete(e.lastResult, mode)
	return e.transport.LeaveMode(mode)
}

func (e *Engine) Joined(mode events.Mode) bool { return e.gate.Joined(mode) }

// OnConnection recebe as mudanças de estado do canal de push
func (e *Engine) OnConnection(s pushchannel.State) {
	if s == pushchannel.Disconnected {
		e.rounds.MarkStale()
	}
	e.log.Info("push channel state", zap.Stringer("state", s))
}

// Handle processa um frame recebido do servidor
func (e *Engine) Handle(env events.Envelope) {
	payload, err := env.Decode()
	if err != nil {
		e.log.Warn("drop malformed frame", zap.String("type", string(env.Type)), zap.Error(err))
		if e.opts.Hooks.OnDecodeError != nil {
			e.opts.Hooks.OnDecodeError()
		}
		return
	}

	switch p := payload.(type) {
	case *events.TimerTick:
		e.onTick(*p)
	case *events.RoundSnapshot:
		e.onSnapshot(*p)
	case *events.RoundResult:
		e.onResult(*p)
	case *events.BetRejected:
		e.onRejected(*p)
	}
}

func (e *Engine) forThisGame(game string) bool {
	return game == "" || game == e.variant.Name()
}

func (e *Engine) onTick(t events.TimerTick) {
	if !e.forThisGame(t.Game) || !e.gate.Joined(t.Mode) {
		return
	}
	res := e.rounds.OnTick(t)
	if !res.Applied {
		return
	}
	if e.opts.Hooks.OnTick != nil {
		e.opts.Hooks.OnTick(t.Mode)
	}
	if res.Rollover {
		e.log.Debug("round rollover",
			zap.String("mode", string(t.Mode)),
			zap.String("previous", res.PreviousRound),
			zap.String("round", t.RoundID),
			zap.Int("pending", e.recon.PendingCount()))
		if e.opts.Hooks.OnRollover != nil {
			e.opts.Hooks.OnRollover(t.Mode)
		}
	}
}

func (e *Engine) onSnapshot(s events.RoundSnapshot) {
	if !e.forThisGame(s.Game) || !e.gate.Joined(s.Mode) {
		return
	}
	// o último resultado cobre o que se perdeu durante a desconexão
	if last := s.LastResult; last != nil {
		if e.recon.Settled(last.RoundID) {
			e.lastResult[s.Mode] = *last
		} else {
			e.onResult(*last)
		}
	}
	e.rounds.OnSnapshot(s)
}

func (e *Engine) onResult(res events.RoundResult) {
	if !e.forThisGame(res.Game) {
		return
	}
	visible := e.gate.Joined(res.Mode)
	if visible {
		e.rounds.OnResult(res.Mode, res.RoundID)
		e.lastResult[res.Mode] = res
	}

	out, status := e.recon.OnResult(res)
	switch status {
	case settlement.Duplicate:
		if e.opts.Hooks.OnDuplicate != nil {
			e.opts.Hooks.OnDuplicate("result")
		}
		return
	case settlement.Unmatched:
		if n := len(e.recon.Pending(res.RoundID)); n > 0 {
			e.log.Warn("round result without outcome for pending wagers",
				zap.String("round", res.RoundID),
				zap.Int("pending", n))
		}
		return
	}

	for _, o := range out {
		e.log.Info("wager settled",
			zap.String("wager_id", o.WagerID),
			zap.String("round", o.RoundID),
			zap.Bool("won", o.Won),
			zap.String("payout", o.Payout.String()))
		if e.opts.Hooks.OnSettled != nil {
			e.opts.Hooks.OnSettled(o.Won)
		}
		if visible {
			e.notify(Notice{
				Kind:    NoticeOutcome,
				Mode:    o.Mode,
				RoundID: o.RoundID,
				WagerID: o.WagerID,
				Won:     o.Won,
				Stake:   o.Stake,
				Payout:  o.Payout,
			})
		}
	}
	e.terminal()
}

func (e *Engine) onRejected(r events.BetRejected) {
	rej, ok := e.recon.OnRejected(r)
	if !ok {
		if e.recon.Terminal(r.WagerID) && e.opts.Hooks.OnDuplicate != nil {
			e.opts.Hooks.OnDuplicate("rejection")
		}
		return
	}
	e.log.Warn("wager rejected by server",
		zap.String("wager_id", rej.WagerID),
		zap.String("round", rej.RoundID),
		zap.String("reason", rej.Reason))
	if e.opts.Hooks.OnServerRejected != nil {
		e.opts.Hooks.OnServerRejected()
	}
	if e.gate.Joined(rej.Mode) {
		e.notify(Notice{
			Kind:    NoticeRejected,
			Mode:    rej.Mode,
			RoundID: rej.RoundID,
			WagerID: rej.WagerID,
			Stake:   rej.Refunded,
			Reason:  rej.Reason,
		})
	}
	e.terminal()
}

func (e *Engine) terminal() {
	if e.opts.OnTerminal != nil {
		e.opts.OnTerminal()
	}
}

// Select alterna uma seleção no composer do modo
func (e *Engine) Select(mode events.Mode, s composer.Selection) error {
	c, err := e.editable(mode)
	if err != nil {
		return e.localReject(mode, err)
	}
	if err := c.Select(s); err != nil {
		return e.localReject(mode, err)
	}
	return nil
}

func (e *Engine) SetAmount(mode events.Mode, n decimal.Decimal) error {
	c, err := e.editable(mode)
	if err != nil {
		return e.localReject(mode, err)
	}
	if err := c.SetAmount(n, e.balance.Value()); err != nil {
		return e.localReject(mode, err)
	}
	return nil
}

func (e *Engine) editable(mode events.Mode) (*composer.Composer, error) {
	c, ok := e.composers[mode]
	if !ok {
		return nil, fmt.Errorf("%w: %s", admission.ErrModeNotJoined, mode)
	}
	if e.gate.EditsLocked(mode) {
		return nil, ErrEditsLocked
	}
	return c, nil
}

// Submit envia a aposta composta: gate, seleção, valor contra o saldo,
// emissão, débito otimista e limpeza do composer. Recusa local acontece
// antes da rede e descarta a composição; falha de transporte a preserva.
func (e *Engine) Submit(mode events.Mode) (composer.Wager, error) {
	if err := e.gate.Check(mode); err != nil {
		return composer.Wager{}, e.rejectSubmit(mode, err)
	}
	c := e.composers[mode]
	if c.Empty() {
		return composer.Wager{}, e.rejectSubmit(mode, composer.ErrNoSelection)
	}
	if err := composer.ValidateAmount(c.Amount(), e.balance.Value()); err != nil {
		return composer.Wager{}, e.rejectSubmit(mode, err)
	}

	st, _ := e.rounds.State(mode)
	w, err := c.Build(e.opts.NewID(), mode, st.RoundID)
	if err != nil {
		return composer.Wager{}, e.rejectSubmit(mode, err)
	}
	if err := e.transport.PlaceBet(w.Contract(e.opts.UserID, e.opts.Clock.Now())); err != nil {
		return composer.Wager{}, e.localReject(mode, err)
	}

	e.balance.Debit(balance.StakeKey(w.ID), w.Amount)
	e.recon.Track(w)
	c.Clear()

	e.log.Info("wager submitted",
		zap.String("wager_id", w.ID),
		zap.String("mode", string(mode)),
		zap.String("round", w.RoundID),
		zap.String("amount", w.Amount.String()))
	if e.opts.Hooks.OnSubmitted != nil {
		e.opts.Hooks.OnSubmitted(mode)
	}
	return w, nil
}

// rejectSubmit limpa o composer do modo, se houver, e notifica a recusa
func (e *Engine) rejectSubmit(mode events.Mode, err error) error {
	if c, ok := e.composers[mode]; ok {
		c.Clear()
	}
	return e.localReject(mode, err)
}

func (e *Engine) localReject(mode events.Mode, err error) error {
	reason := rejectionReason(err)
	if e.opts.Hooks.OnLocalRejection != nil {
		e.opts.Hooks.OnLocalRejection(reason)
	}
	e.notify(Notice{Kind: NoticeLocalRejection, Mode: mode, Reason: reason, Err: err})
	return err
}

// rejectionReason reduz o erro a um rótulo estável para métricas e UI
func rejectionReason(err error) string {
	switch {
	case errors.Is(err, admission.ErrWindowClosed):
		return "window_closed"
	case errors.Is(err, admission.ErrClockStale):
		return "clock_stale"
	case errors.Is(err, admission.ErrModeNotJoined):
		return "mode_not_joined"
	case errors.Is(err, ErrEditsLocked):
		return "edits_locked"
	case errors.Is(err, composer.ErrNoSelection):
		return "no_selection"
	case errors.Is(err, composer.ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, composer.ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, games.ErrInvalidSelection):
		return "invalid_selection"
	case errors.Is(err, pushchannel.ErrNotConnected), errors.Is(err, pushchannel.ErrSendBufferFull):
		return "not_connected"
	default:
		return "error"
	}
}

func (e *Engine) notify(n Notice) {
	for _, ch := range e.notices {
		select {
		case ch <- n:
		default:
			e.log.Warn("notice dropped, subscriber full", zap.Stringer("kind", n.Kind))
		}
	}
}

// consultas de estado para a UI

func (e *Engine) Phase(mode events.Mode) roundclock.Phase { return e.rounds.Phase(mode) }

func (e *Engine) TimeRemaining(mode events.Mode) int { return e.rounds.TimeRemaining(mode) }

func (e *Engine) Countdown(mode events.Mode) int { return e.rounds.Countdown(mode) }

func (e *Engine) CanSubmit(mode events.Mode) bool { return e.gate.CanSubmit(mode) }

func (e *Engine) EditsLocked(mode events.Mode) bool { return e.gate.EditsLocked(mode) }

func (e *Engine) Balance() decimal.Decimal { return e.balance.Value() }

func (e *Engine) PendingCount() int { return e.recon.PendingCount() }

// View é o retrato de um modo para renderização
type View struct {
	Mode          events.Mode
	Joined        bool
	RoundID       string
	Phase         roundclock.Phase
	TimeRemaining int
	Countdown     int
	Stale         bool
	CanSubmit     bool
	EditsLocked   bool
	Selections    []composer.Selection
	Amount        decimal.Decimal
	Balance       decimal.Decimal
	Pending       int
	LastResult    *events.RoundResult
}

func (e *Engine) View(mode events.Mode) View {
	v := View{
		Mode:          mode,
		Joined:        e.gate.Joined(mode),
		Phase:         e.rounds.Phase(mode),
		TimeRemaining: e.rounds.TimeRemaining(mode),
		Countdown:     e.rounds.Countdown(mode),
		Stale:         e.rounds.Stale(mode),
		CanSubmit:     e.gate.CanSubmit(mode),
		EditsLocked:   e.gate.EditsLocked(mode),
		Balance:       e.balance.Value(),
		Pending:       e.recon.PendingCount(),
	}
	if st, ok := e.rounds.State(mode); ok {
		v.RoundID = st.RoundID
	}
	if c, ok := e.composers[mode]; ok {
		v.Selections = c.Selections()
		v.Amount = c.Amount()
	}
	if r, ok := e.lastResult[mode]; ok {
		v.LastResult = &r
	}
	return v
}
