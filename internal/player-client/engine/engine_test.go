package engine

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/fastround-platform/internal/games"
	"github.com/radieske/fastround-platform/internal/player-client/admission"
	"github.com/radieske/fastround-platform/internal/player-client/balance"
	"github.com/radieske/fastround-platform/internal/player-client/composer"
	"github.com/radieske/fastround-platform/internal/player-client/pushchannel"
	"github.com/radieske/fastround-platform/internal/player-client/roundclock"
	"github.com/radieske/fastround-platform/internal/shared/config"
	"github.com/radieske/fastround-platform/pkg/contracts/events"
)

const (
	r1 = "wingo-30s-20260101-000001"
	r2 = "wingo-30s-20260101-000002"
)

type fakeTransport struct {
	bets   []events.Wager
	joins  []events.Mode
	leaves []events.Mode
	err    error
}

func (f *fakeTransport) JoinMode(m events.Mode) error {
	f.joins = append(f.joins, m)
	return nil
}

func (f *fakeTransport) LeaveMode(m events.Mode) error {
	f.leaves = append(f.leaves, m)
	return nil
}

func (f *fakeTransport) PlaceBet(w events.Wager) error {
	if f.err != nil {
		return f.err
	}
	f.bets = append(f.bets, w)
	return nil
}

type harness struct {
	eng       *Engine
	transport *fakeTransport
	cache     *balance.Cache
	clock     *clockwork.FakeClock
	notices   <-chan Notice
	seq       int64
	terminals int
	dups      []string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		transport: &fakeTransport{},
		cache:     balance.New(decimal.NewFromInt(100)),
		clock:     clockwork.NewFakeClock(),
	}
	ids := 0
	h.eng = New(games.NewWingo(), h.transport, h.cache, Options{
		UserID:    "u1",
		Catalogue: config.DefaultCatalogue(),
		Clock:     h.clock,
		NewID: func() string {
			ids++
			return fmt.Sprintf("w%d", ids)
		},
		Hooks: Hooks{
			OnDuplicate: func(kind string) { h.dups = append(h.dups, kind) },
		},
		OnTerminal: func() { h.terminals++ },
	}, zap.NewNop())
	h.notices = h.eng.Subscribe()
	require.NoError(t, h.eng.EnterMode(events.Mode30s))
	return h
}

func (h *harness) tick(t *testing.T, round string, left int) {
	t.Helper()
	h.seq++
	env := mustEnvelope(t, events.TypeTimerTick, events.TimerTick{Game: "wingo", Mode: events.Mode30s, RoundID: round, Seq: h.seq, TimeRemaining: left})
	h.eng.Handle(env)
}

func (h *harness) compose(t *testing.T) {
	t.Helper()
	require.NoError(t, h.eng.Select(events.Mode30s, composer.Primary{Value: "7"}))
	require.NoError(t, h.eng.Select(events.Mode30s, composer.Overlay{Category: games.CategorySize, Value: games.Big}))
	require.NoError(t, h.eng.SetAmount(events.Mode30s, decimal.NewFromInt(10)))
}

func (h *harness) drain() []Notice {
	var out []Notice
	for {
		select {
		case n := <-h.notices:
			out = append(out, n)
		default:
			return out
		}
	}
}

func mustEnvelope(t *testing.T, typ events.Type, v any) events.Envelope {
	t.Helper()
	b, err := events.Encode(typ, v)
	require.NoError(t, err)
	return mustEnvelopeBytes(t, b)
}

func mustEnvelopeBytes(t *testing.T, b []byte) events.Envelope {
	t.Helper()
	var env events.Envelope
	require.NoError(t, json.Unmarshal(b, &env))
	return env
}

func settled(round string, bets ...events.BetOutcome) events.RoundResult {
	return events.RoundResult{Game: "wingo", Mode: events.Mode30s, RoundID: round, Bets: bets}
}

func balanceIs(t *testing.T, h *harness, want int64) {
	t.Helper()
	assert.True(t, decimal.NewFromInt(want).Equal(h.eng.Balance()), "balance %s, want %d", h.eng.Balance(), want)
}

func TestAdmissionBoundaryScenario(t *testing.T) {
	h := newHarness(t)

	h.tick(t, r1, 8)
	assert.True(t, h.eng.CanSubmit(events.Mode30s))
	h.compose(t)

	h.tick(t, r1, 6)
	assert.True(t, h.eng.CanSubmit(events.Mode30s))
	w, err := h.eng.Submit(events.Mode30s)
	require.NoError(t, err)
	assert.Equal(t, r1, w.RoundID)
	balanceIs(t, h, 90)
	require.Len(t, h.transport.bets, 1)
	assert.Equal(t, "u1", h.transport.bets[0].UserID)

	for _, left := range []int{4, 2, 0} {
		h.tick(t, r1, left)
		assert.False(t, h.eng.CanSubmit(events.Mode30s), "timeRemaining=%d", left)
	}

	_, err = h.eng.Submit(events.Mode30s)
	require.ErrorIs(t, err, admission.ErrWindowClosed)
	balanceIs(t, h, 90)
	assert.Len(t, h.transport.bets, 1, "blocked submit must not reach the network")

	notices := h.drain()
	require.Len(t, notices, 1)
	assert.Equal(t, NoticeLocalRejection, notices[0].Kind)
	assert.Equal(t, "window_closed", notices[0].Reason)

	// Settled(roundId, payout=0) em nível de rodada
	h.eng.Handle(mustEnvelope(t, events.TypeRoundResult, settled(r1, events.BetOutcome{Payout: decimal.Zero})))
	h.eng.Handle(mustEnvelope(t, events.TypeRoundResult, settled(r1, events.BetOutcome{Payout: decimal.Zero})))
	balanceIs(t, h, 90)
	assert.Zero(t, h.eng.PendingCount())
	assert.Equal(t, roundclock.Resolved, h.eng.Phase(events.Mode30s))

	notices = h.drain()
	require.Len(t, notices, 1, "lost surfaced exactly once")
	assert.Equal(t, NoticeOutcome, notices[0].Kind)
	assert.False(t, notices[0].Won)
	assert.Equal(t, []string{"result"}, h.dups)
}

func TestWinCreditedOnceDespiteRedelivery(t *testing.T) {
	h := newHarness(t)
	h.tick(t, r1, 20)
	h.compose(t)
	w, err := h.eng.Submit(events.Mode30s)
	require.NoError(t, err)
	balanceIs(t, h, 90)

	res := mustEnvelope(t, events.TypeRoundResult, settled(r1, events.BetOutcome{WagerID: w.ID, Won: true, Payout: decimal.NewFromInt(19)}))
	for i := 0; i < 3; i++ {
		h.eng.Handle(res)
	}
	balanceIs(t, h, 109)
	assert.Equal(t, 1, h.terminals)

	notices := h.drain()
	require.Len(t, notices, 1)
	assert.True(t, notices[0].Won)
	assert.True(t, decimal.NewFromInt(19).Equal(notices[0].Payout))
}

func TestRejectionReversalIdempotent(t *testing.T) {
	h := newHarness(t)
	h.tick(t, r1, 20)
	h.compose(t)
	w, err := h.eng.Submit(events.Mode30s)
	require.NoError(t, err)

	rej := mustEnvelope(t, events.TypeBetRejected, events.BetRejected{WagerID: w.ID, Mode: events.Mode30s, RoundID: r1, Reason: "late"})
	h.eng.Handle(rej)
	h.eng.Handle(rej)
	balanceIs(t, h, 100)

	// resultado depois da rejeição não credita
	h.eng.Handle(mustEnvelope(t, events.TypeRoundResult, settled(r1, events.BetOutcome{WagerID: w.ID, Payout: decimal.NewFromInt(90)})))
	balanceIs(t, h, 100)

	notices := h.drain()
	require.Len(t, notices, 1)
	assert.Equal(t, NoticeRejected, notices[0].Kind)
	assert.Equal(t, "late", notices[0].Reason)
	assert.Equal(t, []string{"rejection"}, h.dups)
}

func TestRolloverKeepsPendingSettlement(t *testing.T) {
	h := newHarness(t)
	h.tick(t, r1, 20)
	h.compose(t)
	w, err := h.eng.Submit(events.Mode30s)
	require.NoError(t, err)

	h.tick(t, r1, 0)
	// próxima rodada começa antes do resultado da anterior
	h.tick(t, r2, 30)
	assert.Equal(t, roundclock.Open, h.eng.Phase(events.Mode30s))
	assert.Equal(t, 1, h.eng.PendingCount())

	h.eng.Handle(mustEnvelope(t, events.TypeRoundResult, settled(r1, events.BetOutcome{WagerID: w.ID, Won: true, Payout: decimal.NewFromInt(19)})))
	balanceIs(t, h, 109)
	// resultado antigo não resolve a rodada corrente
	assert.Equal(t, roundclock.Open, h.eng.Phase(events.Mode30s))
}

func TestTransportFailureFailsBeforeDebit(t *testing.T) {
	h := newHarness(t)
	h.tick(t, r1, 20)
	h.compose(t)
	h.transport.err = pushchannel.ErrNotConnected

	_, err := h.eng.Submit(events.Mode30s)
	require.ErrorIs(t, err, pushchannel.ErrNotConnected)
	balanceIs(t, h, 100)
	assert.Zero(t, h.eng.PendingCount())
	// composer mantém a aposta para nova tentativa
	assert.Len(t, h.eng.View(events.Mode30s).Selections, 2)
}

func TestLocalValidation(t *testing.T) {
	h := newHarness(t)
	h.tick(t, r1, 20)

	_, err := h.eng.Submit(events.Mode30s)
	assert.ErrorIs(t, err, composer.ErrNoSelection)

	require.NoError(t, h.eng.Select(events.Mode30s, composer.Primary{Value: "7"}))
	_, err = h.eng.Submit(events.Mode30s)
	assert.ErrorIs(t, err, composer.ErrInvalidAmount)

	assert.ErrorIs(t, h.eng.SetAmount(events.Mode30s, decimal.NewFromInt(500)), composer.ErrInsufficientBalance)
	assert.ErrorIs(t, h.eng.Select(events.Mode30s, composer.Primary{Value: "12"}), games.ErrInvalidSelection)
	assert.ErrorIs(t, h.eng.Select(events.Mode1m, composer.Primary{Value: "1"}), admission.ErrModeNotJoined)

	// saldo cai depois de SetAmount: Submit revalida contra o saldo atual
	require.NoError(t, h.eng.Select(events.Mode30s, composer.Primary{Value: "7"}))
	require.NoError(t, h.eng.SetAmount(events.Mode30s, decimal.NewFromInt(50)))
	h.cache.Debit("external:1", decimal.NewFromInt(80))
	_, err = h.eng.Submit(events.Mode30s)
	assert.ErrorIs(t, err, composer.ErrInsufficientBalance)

	assert.Empty(t, h.transport.bets)
	assert.Len(t, h.drain(), 6)
}

func TestEditsLockedInClosingWindow(t *testing.T) {
	h := newHarness(t)
	h.tick(t, r1, 5)
	err := h.eng.Select(events.Mode30s, composer.Primary{Value: "7"})
	assert.ErrorIs(t, err, ErrEditsLocked)
}

func TestStaleClockBlocksSubmit(t *testing.T) {
	h := newHarness(t)
	h.tick(t, r1, 20)
	h.compose(t)

	h.eng.OnConnection(pushchannel.Disconnected)
	_, err := h.eng.Submit(events.Mode30s)
	require.ErrorIs(t, err, admission.ErrClockStale)

	h.tick(t, r1, 18)
	h.clock.Advance(4 * time.Second)
	_, err = h.eng.Submit(events.Mode30s)
	require.ErrorIs(t, err, admission.ErrClockStale)

	// recusa local descartou a composição
	assert.Empty(t, h.eng.View(events.Mode30s).Selections)
	h.tick(t, r1, 14)
	h.compose(t)
	_, err = h.eng.Submit(events.Mode30s)
	require.NoError(t, err)
}

func TestLocalRejectionClearsComposer(t *testing.T) {
	h := newHarness(t)
	h.tick(t, r1, 8)
	h.compose(t)
	h.tick(t, r1, 5)

	_, err := h.eng.Submit(events.Mode30s)
	require.ErrorIs(t, err, admission.ErrWindowClosed)

	v := h.eng.View(events.Mode30s)
	assert.Empty(t, v.Selections)
	assert.True(t, v.Amount.IsZero())
	assert.Empty(t, h.transport.bets)
	balanceIs(t, h, 100)
}

func TestUnknownRoundIDBlocksSubmit(t *testing.T) {
	h := newHarness(t)
	h.tick(t, r1, 2)
	// virada sem roundId: a rodada nova ainda não foi identificada
	h.tick(t, "", 30)
	require.False(t, h.eng.View(events.Mode30s).Stale)
	h.compose(t)

	_, err := h.eng.Submit(events.Mode30s)
	require.ErrorIs(t, err, admission.ErrClockStale)
	assert.Empty(t, h.transport.bets)
	assert.Zero(t, h.eng.PendingCount())
	balanceIs(t, h, 100)
}

func TestLeaveModeStopsUIButSettlesQuietly(t *testing.T) {
	h := newHarness(t)
	h.tick(t, r1, 20)
	h.compose(t)
	w, err := h.eng.Submit(events.Mode30s)
	require.NoError(t, err)

	require.NoError(t, h.eng.LeaveMode(events.Mode30s))
	assert.Equal(t, []events.Mode{events.Mode30s}, h.transport.leaves)

	h.tick(t, r1, 10)
	assert.Equal(t, roundclock.Unknown, h.eng.Phase(events.Mode30s))

	h.eng.Handle(mustEnvelope(t, events.TypeRoundResult, settled(r1, events.BetOutcome{WagerID: w.ID, Won: true, Payout: decimal.NewFromInt(19)})))
	balanceIs(t, h, 109)
	assert.Empty(t, h.drain())
	assert.Nil(t, h.eng.View(events.Mode30s).LastResult)
}

func TestSnapshotLastResultSettlesMissedRound(t *testing.T) {
	h := newHarness(t)
	h.tick(t, r1, 20)
	h.compose(t)
	w, err := h.eng.Submit(events.Mode30s)
	require.NoError(t, err)

	h.eng.OnConnection(pushchannel.Disconnected)
	last := settled(r1, events.BetOutcome{WagerID: w.ID, Won: true, Payout: decimal.NewFromInt(19)})
	h.eng.Handle(mustEnvelope(t, events.TypeRoundSnapshot, events.RoundSnapshot{
		Game: "wingo", Mode: events.Mode30s, RoundID: r2, Seq: 1, TimeRemaining: 25, LastResult: &last,
	}))
	balanceIs(t, h, 109)
	assert.Equal(t, roundclock.Open, h.eng.Phase(events.Mode30s))
	assert.False(t, h.eng.View(events.Mode30s).Stale)
}

func TestOtherGameFramesIgnored(t *testing.T) {
	h := newHarness(t)
	h.eng.Handle(mustEnvelope(t, events.TypeTimerTick, events.TimerTick{Game: "k3", Mode: events.Mode30s, RoundID: "k3-30s-20260101-000001", TimeRemaining: 20}))
	assert.Equal(t, roundclock.Unknown, h.eng.Phase(events.Mode30s))
}

func TestMalformedFrameDropped(t *testing.T) {
	h := newHarness(t)
	h.eng.Handle(events.Envelope{Type: events.TypeTimerTick, Data: []byte(`{"timeRemaining":"soon"}`)})
	h.eng.Handle(events.Envelope{Type: "mystery"})
	assert.Equal(t, roundclock.Unknown, h.eng.Phase(events.Mode30s))
}

func TestRejoinSnapshotRepeatingSettledRoundIsQuiet(t *testing.T) {
	h := newHarness(t)
	h.tick(t, r1, 20)
	h.compose(t)
	w, err := h.eng.Submit(events.Mode30s)
	require.NoError(t, err)

	last := settled(r1, events.BetOutcome{WagerID: w.ID, Won: true, Payout: decimal.NewFromInt(19)})
	h.eng.Handle(mustEnvelope(t, events.TypeRoundResult, last))
	balanceIs(t, h, 109)
	h.drain()

	h.eng.OnConnection(pushchannel.Disconnected)
	h.eng.Handle(mustEnvelope(t, events.TypeRoundSnapshot, events.RoundSnapshot{
		Game: "wingo", Mode: events.Mode30s, RoundID: r2, Seq: 1, TimeRemaining: 25, LastResult: &last,
	}))
	assert.Empty(t, h.dups)
	balanceIs(t, h, 109)
	require.NotNil(t, h.eng.View(events.Mode30s).LastResult)
	assert.Equal(t, r1, h.eng.View(events.Mode30s).LastResult.RoundID)

	// reentrega direta do mesmo resultado segue contada como duplicata
	h.eng.Handle(mustEnvelope(t, events.TypeRoundResult, last))
	assert.Equal(t, []string{"result"}, h.dups)
}

func TestResultWithoutOwnOutcomeKeepsWagerPending(t *testing.T) {
	h := newHarness(t)
	h.tick(t, r1, 20)
	h.compose(t)
	w, err := h.eng.Submit(events.Mode30s)
	require.NoError(t, err)
	h.drain()

	res := settled(r1)
	res.Outcome = events.Outcome{Values: []int{7}, Reference: 7, Big: true, Odd: true}
	h.eng.Handle(mustEnvelope(t, events.TypeRoundResult, res))
	balanceIs(t, h, 90)
	assert.Equal(t, 1, h.eng.PendingCount())
	assert.Empty(t, h.dups)

	// o snapshot do rejoin traz o resultado com a aposta do usuário
	last := settled(r1, events.BetOutcome{WagerID: w.ID, Won: true, Payout: decimal.NewFromInt(19)})
	h.eng.Handle(mustEnvelope(t, events.TypeRoundSnapshot, events.RoundSnapshot{
		Game: "wingo", Mode: events.Mode30s, RoundID: r2, Seq: 1, TimeRemaining: 25, LastResult: &last,
	}))
	balanceIs(t, h, 109)
	assert.Zero(t, h.eng.PendingCount())
}
