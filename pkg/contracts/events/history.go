package events

import (
	"time"

	"github.com/shopspring/decimal"
)

// Payloads REST de histórico e carteira

type BetStatus string

const (
	BetPending        BetStatus = "PENDING"
	BetWon            BetStatus = "WON"
	BetLost           BetStatus = "LOST"
	BetStatusRejected BetStatus = "REJECTED"
)

type RoundRecord struct {
	Game      string    `json:"game"`
	Mode      Mode      `json:"mode"`
	RoundID   string    `json:"roundId"`
	Outcome   Outcome   `json:"outcome"`
	SettledAt time.Time `json:"settledAt"`
}

type BetRecord struct {
	WagerID    string          `json:"wagerId"`
	UserID     string          `json:"userId"`
	Game       string          `json:"game"`
	Mode       Mode            `json:"mode"`
	RoundID    string          `json:"roundId"`
	Selections []Selection     `json:"selections"`
	Amount     decimal.Decimal `json:"amount"`
	Status     BetStatus       `json:"status"`
	Payout     decimal.Decimal `json:"payout"`
	PlacedAt   time.Time       `json:"placedAt"`
}

// Page é uma página de resultados; páginas começam em 1
type Page[T any] struct {
	Items    []T  `json:"items"`
	Page     int  `json:"page"`
	PageSize int  `json:"pageSize"`
	HasMore  bool `json:"hasMore"`
}

type WalletBalance struct {
	UserID  string          `json:"userId"`
	Balance decimal.Decimal `json:"balance"`
}

type DepositRequest struct {
	UserID string          `json:"userId"`
	Amount decimal.Decimal `json:"amount"`
}
