package settlement

import (
	"github.com/shopspring/decimal"

	"github.com/radieske/fastround-platform/internal/player-client/balance"
	"github.com/radieske/fastround-platform/internal/player-client/composer"
	"github.com/radieske/fastround-platform/pkg/contracts/events"
)

// Ledger é o que o reconciliador precisa do cache de saldo
type Ledger interface {
	Credit(key string, amount decimal.Decimal) bool
}

// Outcome é o resultado terminal de uma aposta liquidada
type Outcome struct {
	WagerID string
	RoundID string
	Mode    events.Mode
	Stake   decimal.Decimal
	Won     bool
	Payout  decimal.Decimal
}

// Rejection é a reversão de uma aposta recusada pelo servidor
type Rejection struct {
	WagerID  string
	RoundID  string
	Mode     events.Mode
	Reason   string
	Refunded decimal.Decimal
}

type pending struct {
	wager composer.Wager
}

// ResultStatus classifica um roundResult recebido
type ResultStatus int

const (
	Applied   ResultStatus = iota // liquidou apostas pendentes
	Duplicate                     // rodada já liquidada antes
	Unmatched                     // nada liquidado: rodada sem apostas nossas ou sem resultado para elas
)

// quantas rodadas liquidadas lembrar para reconhecer reentregas
const settledMemory = 256

// Reconciler casa resultados e rejeições com as apostas pendentes por roundId/wagerId.
// Cada aposta chega a um estado terminal uma única vez. Não é seguro para uso concorrente.
type Reconciler struct {
	ledger  Ledger
	rounds  map[string]map[string]*pending // roundId -> wagerId -> aposta
	byWager map[string]string              // wagerId -> roundId

	terminal map[string]struct{} // wagerIds liquidados ou rejeitados
	settled  map[string]struct{}
	settledQ []string
}

func New(ledger Ledger) *Reconciler {
	return &Reconciler{
		ledger:   ledger,
		rounds:   make(map[string]map[string]*pending),
		byWager:  make(map[string]string),
		terminal: make(map[string]struct{}),
		settled:  make(map[string]struct{}),
	}
}

// Track registra uma aposta enviada (estado Submitted)
func (r *Reconciler) Track(w composer.Wager) {
	slot, ok := r.rounds[w.RoundID]
	if !ok {
		slot = make(map[string]*pending)
		r.rounds[w.RoundID] = slot
	}
	slot[w.ID] = &pending{wager: w}
	r.byWager[w.ID] = w.RoundID
}

// OnResult liquida as apostas pendentes da rodada que têm resultado do servidor.
// Aposta sem resultado continua pendente; reentregas não têm efeito.
func (r *Reconciler) OnResult(res events.RoundResult) ([]Outcome, ResultStatus) {
	slot, ok := r.rounds[res.RoundID]
	if !ok {
		if _, dup := r.settled[res.RoundID]; dup {
			return nil, Duplicate
		}
		return nil, Unmatched
	}

	var roundLevel *events.BetOutcome
	perWager := make(map[string]events.BetOutcome, len(res.Bets))
	for i := range res.Bets {
		b := res.Bets[i]
		if b.WagerID == "" {
			roundLevel = &b
			continue
		}
		perWager[b.WagerID] = b
	}

	var out []Outcome
	for id, p := range slot {
		b, ok := perWager[id]
		if !ok {
			if roundLevel == nil {
				continue
			}
			b = *roundLevel
		}
		r.ledger.Credit(balance.SettleKey(id), b.Payout)
		out = append(out, Outcome{
			WagerID: id,
			RoundID: res.RoundID,
			Mode:    p.wager.Mode,
			Stake:   p.wager.Amount,
			Won:     b.Won || b.Payout.IsPositive(),
			Payout:  b.Payout,
		})
		delete(slot, id)
		delete(r.byWager, id)
		r.terminal[id] = struct{}{}
	}
	if len(slot) == 0 {
		delete(r.rounds, res.RoundID)
	}
	if len(out) == 0 {
		if _, dup := r.settled[res.RoundID]; dup {
			return nil, Duplicate
		}
		return nil, Unmatched
	}
	r.markSettled(res.RoundID)
	return out, Applied
}

// Settled informa se a rodada já foi liquidada e não resta aposta pendente nela
func (r *Reconciler) Settled(roundID string) bool {
	if _, pending := r.rounds[roundID]; pending {
		return false
	}
	_, ok := r.settled[roundID]
	return ok
}

func (r *Reconciler) markSettled(roundID string) {
	if _, ok := r.settled[roundID]; ok {
		return
	}
	r.settled[roundID] = struct{}{}
	r.settledQ = append(r.settledQ, roundID)
	if len(r.settledQ) > settledMemory {
		delete(r.settled, r.settledQ[0])
		r.settledQ = r.settledQ[1:]
	}
}

// OnRejected devolve o stake uma única vez; ok=false se a aposta já é terminal ou desconhecida
func (r *Reconciler) OnRejected(rej events.BetRejected) (Rejection, bool) {
	roundID, ok := r.byWager[rej.WagerID]
	if !ok {
		return Rejection{}, false
	}
	p := r.rounds[roundID][rej.WagerID]
	delete(r.byWager, rej.WagerID)
	delete(r.rounds[roundID], rej.WagerID)
	r.terminal[rej.WagerID] = struct{}{}
	if len(r.rounds[roundID]) == 0 {
		delete(r.rounds, roundID)
	}

	r.ledger.Credit(balance.RefundKey(rej.WagerID), p.wager.Amount)
	return Rejection{
		WagerID:  rej.WagerID,
		RoundID:  roundID,
		Mode:     p.wager.Mode,
		Reason:   rej.Reason,
		Refunded: p.wager.Amount,
	}, true
}

// Pending lista as apostas ainda sem estado terminal de uma rodada
func (r *Reconciler) Pending(roundID string) []composer.Wager {
	var out []composer.Wager
	for _, p := range r.rounds[roundID] {
		out = append(out, p.wager)
	}
	return out
}

func (r *Reconciler) PendingCount() int { return len(r.byWager) }

// Terminal informa se a aposta já foi liquidada ou rejeitada
func (r *Reconciler) Terminal(wagerID string) bool {
	_, ok := r.terminal[wagerID]
	return ok
}
