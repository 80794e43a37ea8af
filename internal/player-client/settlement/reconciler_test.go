package settlement

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radieske/fastround-platform/internal/games"
	"github.com/radieske/fastround-platform/internal/player-client/balance"
	"github.com/radieske/fastround-platform/internal/player-client/composer"
	"github.com/radieske/fastround-platform/pkg/contracts/events"
)

const (
	r1 = "wingo-30s-20260101-000001"
	r2 = "wingo-30s-20260101-000002"
)

func d(n int64) decimal.Decimal { return decimal.NewFromInt(n) }

func submitted(t *testing.T, cache *balance.Cache, rec *Reconciler, id, round string, amount int64, sel ...composer.Selection) composer.Wager {
	t.Helper()
	w := composer.Wager{ID: id, Game: "wingo", Mode: events.Mode30s, RoundID: round, Selections: sel, Amount: d(amount)}
	require.True(t, cache.Debit(balance.StakeKey(id), w.Amount))
	rec.Track(w)
	return w
}

func TestResultSettlesExactlyOnce(t *testing.T) {
	cache := balance.New(d(100))
	rec := New(cache)
	submitted(t, cache, rec, "w1", r1, 10, composer.Primary{Value: "7"})

	res := events.RoundResult{Mode: events.Mode30s, RoundID: r1, Bets: []events.BetOutcome{{WagerID: "w1", Won: true, Payout: d(19)}}}

	out, status := rec.OnResult(res)
	require.Equal(t, Applied, status)
	require.Len(t, out, 1)
	assert.True(t, out[0].Won)
	assert.True(t, d(109).Equal(cache.Value()))

	for i := 0; i < 3; i++ {
		out, status = rec.OnResult(res)
		assert.Equal(t, Duplicate, status)
		assert.Empty(t, out)
	}
	assert.True(t, d(109).Equal(cache.Value()))
	assert.Zero(t, rec.PendingCount())
}

func TestLostWagerCreditsNothing(t *testing.T) {
	cache := balance.New(d(100))
	rec := New(cache)
	submitted(t, cache, rec, "w1", r1, 10, composer.Primary{Value: "7"})

	out, _ := rec.OnResult(events.RoundResult{RoundID: r1, Bets: []events.BetOutcome{{WagerID: "w1", Payout: decimal.Zero}}})
	require.Len(t, out, 1)
	assert.False(t, out[0].Won)
	assert.True(t, d(90).Equal(cache.Value()))
}

func TestRoundLevelOutcomeAppliesToAllPending(t *testing.T) {
	cache := balance.New(d(100))
	rec := New(cache)
	submitted(t, cache, rec, "w1", r1, 10, composer.Primary{Value: "7"})
	submitted(t, cache, rec, "w2", r1, 10, composer.Primary{Value: "3"})

	out, _ := rec.OnResult(events.RoundResult{RoundID: r1, Bets: []events.BetOutcome{{Won: true, Payout: d(5)}}})
	assert.Len(t, out, 2)
	assert.True(t, d(90).Equal(cache.Value()))
}

func TestResultWithoutOutcomeLeavesWagerPending(t *testing.T) {
	cache := balance.New(d(100))
	rec := New(cache)
	submitted(t, cache, rec, "w1", r1, 10,
		composer.Primary{Value: "7"},
		composer.Overlay{Category: games.CategorySize, Value: games.Big})
	submitted(t, cache, rec, "w2", r1, 10, composer.Primary{Value: "3"})

	// sorteio vencedor para w1, mas sem resultado por aposta nem da rodada
	res := events.RoundResult{RoundID: r1, Outcome: events.Outcome{Values: []int{7}, Reference: 7, Big: true, Odd: true}}
	out, status := rec.OnResult(res)
	assert.Equal(t, Unmatched, status)
	assert.Empty(t, out)
	assert.True(t, d(80).Equal(cache.Value()))
	assert.Equal(t, 2, rec.PendingCount())
	assert.False(t, rec.Terminal("w1"))
	assert.False(t, rec.Settled(r1))

	// resultado parcial liquida só a aposta citada
	res.Bets = []events.BetOutcome{{WagerID: "w2", Payout: decimal.Zero}}
	out, status = rec.OnResult(res)
	require.Equal(t, Applied, status)
	require.Len(t, out, 1)
	assert.Equal(t, "w2", out[0].WagerID)
	assert.Len(t, rec.Pending(r1), 1)
	assert.False(t, rec.Settled(r1))

	res.Bets = []events.BetOutcome{{WagerID: "w1", Won: true, Payout: d(109)}}
	out, status = rec.OnResult(res)
	require.Equal(t, Applied, status)
	require.Len(t, out, 1)
	assert.True(t, d(189).Equal(cache.Value()))
	assert.Zero(t, rec.PendingCount())
	assert.True(t, rec.Settled(r1))

	_, status = rec.OnResult(res)
	assert.Equal(t, Duplicate, status)
}

func TestRejectionRefundsOnce(t *testing.T) {
	cache := balance.New(d(100))
	rec := New(cache)
	submitted(t, cache, rec, "w1", r1, 10, composer.Primary{Value: "7"})

	rej, ok := rec.OnRejected(events.BetRejected{WagerID: "w1", Reason: "window closed"})
	require.True(t, ok)
	assert.True(t, d(10).Equal(rej.Refunded))
	assert.Equal(t, r1, rej.RoundID)

	_, ok = rec.OnRejected(events.BetRejected{WagerID: "w1"})
	assert.False(t, ok)
	_, ok = rec.OnRejected(events.BetRejected{WagerID: "ghost"})
	assert.False(t, ok)

	// resultado depois da rejeição não credita
	_, status := rec.OnResult(events.RoundResult{RoundID: r1, Bets: []events.BetOutcome{{WagerID: "w1", Payout: d(90)}}})
	assert.Equal(t, Unmatched, status)
	assert.True(t, rec.Terminal("w1"))
	assert.True(t, d(100).Equal(cache.Value()))
}

func TestRejectionAfterSettlementIsNoop(t *testing.T) {
	cache := balance.New(d(100))
	rec := New(cache)
	submitted(t, cache, rec, "w1", r1, 10, composer.Primary{Value: "7"})
	rec.OnResult(events.RoundResult{RoundID: r1, Bets: []events.BetOutcome{{WagerID: "w1"}}})

	_, ok := rec.OnRejected(events.BetRejected{WagerID: "w1"})
	assert.False(t, ok)
	assert.True(t, rec.Terminal("w1"))
	assert.True(t, d(90).Equal(cache.Value()))
}

func TestResultsMatchByRoundNotCurrentRound(t *testing.T) {
	cache := balance.New(d(100))
	rec := New(cache)
	submitted(t, cache, rec, "w1", r1, 10, composer.Primary{Value: "7"})
	submitted(t, cache, rec, "w2", r2, 10, composer.Primary{Value: "7"})

	out, _ := rec.OnResult(events.RoundResult{RoundID: r1, Bets: []events.BetOutcome{{WagerID: "w1", Won: true, Payout: d(90)}}})
	require.Len(t, out, 1)
	assert.Equal(t, "w1", out[0].WagerID)
	assert.Len(t, rec.Pending(r2), 1)
}
