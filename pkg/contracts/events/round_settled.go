package events

import (
	"time"

	"github.com/shopspring/decimal"
)

// RoundSettled é o evento de auditoria publicado pela autoridade após liquidar uma rodada.
type RoundSettled struct {
	Game        string          `json:"game"`
	Mode        Mode            `json:"mode"`
	RoundID     string          `json:"round_id"`
	Outcome     Outcome         `json:"outcome"`
	Bets        int             `json:"bets"`
	TotalStake  decimal.Decimal `json:"total_stake"`
	TotalPayout decimal.Decimal `json:"total_payout"`
	Ts          time.Time       `json:"ts"`
}
