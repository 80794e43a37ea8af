package events

import (
	"time"

	"github.com/shopspring/decimal"
)

// TimerTick é o tick periódico e autoritativo do relógio de um modo.
// Seq é monotônico por modo; zero significa "não informado".
type TimerTick struct {
	Game          string `json:"game"`
	Mode          Mode   `json:"mode"`
	RoundID       string `json:"roundId"`
	Seq           int64  `json:"seq,omitempty"`
	TimeRemaining int    `json:"timeRemaining"`
}

// Outcome é o resultado sorteado de uma rodada.
// Values depende do jogo: número sorteado, faces dos dados, ordem de chegada dos carros, dígitos.
type Outcome struct {
	Values    []int  `json:"values"`
	Reference int    `json:"reference"` // valor usado pelas apostas grande/pequeno e par/ímpar
	Big       bool   `json:"big"`
	Odd       bool   `json:"odd"`
	Color     string `json:"color,omitempty"`
}

// BetOutcome é o resultado de uma aposta do próprio jogador.
// WagerID vazio aplica o resultado a todas as apostas pendentes da rodada.
type BetOutcome struct {
	WagerID string          `json:"wagerId,omitempty"`
	Won     bool            `json:"won"`
	Payout  decimal.Decimal `json:"payout"`
}

// RoundResult é publicado uma vez por rodada; o cliente deve tolerar duplicatas
type RoundResult struct {
	Game      string       `json:"game"`
	Mode      Mode         `json:"mode"`
	RoundID   string       `json:"roundId"`
	Outcome   Outcome      `json:"outcome"`
	Bets      []BetOutcome `json:"bets,omitempty"`
	SettledAt time.Time    `json:"settledAt"`
}

// RoundSnapshot é enviado ao entrar (ou reentrar) num modo, para quem chega no meio da rodada
type RoundSnapshot struct {
	Game          string       `json:"game"`
	Mode          Mode         `json:"mode"`
	RoundID       string       `json:"roundId"`
	Seq           int64        `json:"seq,omitempty"`
	TimeRemaining int          `json:"timeRemaining"`
	LastResult    *RoundResult `json:"lastResult,omitempty"`
}
