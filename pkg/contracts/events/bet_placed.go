package events

import "github.com/shopspring/decimal"

// SelectionKind diferencia a seleção principal das seleções sobrepostas
type SelectionKind string

const (
	SelectionPrimary SelectionKind = "primary"
	SelectionOverlay SelectionKind = "overlay"
)

// Selection é o formato de fio de uma perna da aposta
type Selection struct {
	Kind     SelectionKind `json:"kind"`
	Position int           `json:"position,omitempty"` // só no jogo posicional
	Category string        `json:"category,omitempty"` // só em overlay: size | parity
	Value    string        `json:"value"`
}

// Wager é a aposta enviada pelo cliente; imutável depois de emitida
type Wager struct {
	WagerID    string          `json:"wagerId"`
	UserID     string          `json:"userId"`
	Game       string          `json:"game"`
	Mode       Mode            `json:"mode"`
	RoundID    string          `json:"roundId"`
	Selections []Selection     `json:"selections"`
	Amount     decimal.Decimal `json:"amount"`
	PlacedAtMs int64           `json:"placedAtMs"`
}

// JoinMode / LeaveMode delimitam quais modos recebem push
type JoinMode struct {
	Mode Mode `json:"mode"`
}

type LeaveMode struct {
	Mode Mode `json:"mode"`
}

// PlaceBet carrega a aposta do cliente para a autoridade
type PlaceBet struct {
	Wager Wager `json:"wager"`
}

// BetRejected é a rejeição explícita da autoridade (diferente de um resultado)
type BetRejected struct {
	WagerID string `json:"wagerId"`
	Mode    Mode   `json:"mode"`
	RoundID string `json:"roundId"`
	Reason  string `json:"reason"`
}

// BetPlaced é o evento de auditoria publicado no tópico bet_placed
type BetPlaced struct {
	WagerID    string          `json:"wager_id"`
	UserID     string          `json:"user_id"`
	Game       string          `json:"game"`
	Mode       Mode            `json:"mode"`
	RoundID    string          `json:"round_id"`
	Selections []Selection     `json:"selections"`
	Amount     decimal.Decimal `json:"amount"`
	TsUnixMs   int64           `json:"ts_unix_ms"`
}
