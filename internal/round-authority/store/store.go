package store

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/radieske/fastround-platform/pkg/contracts/events"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrNotFound          = errors.New("not found")
)

const DefaultPageSize = 20

// Store persiste carteiras, rodadas e apostas da autoridade.
// Débitos e créditos são idempotentes por referência externa.
type Store interface {
	Balance(ctx context.Context, userID string) (decimal.Decimal, error)
	Deposit(ctx context.Context, userID string, amount decimal.Decimal) (decimal.Decimal, error)
	Debit(ctx context.Context, userID string, amount decimal.Decimal, ref string) (decimal.Decimal, error)
	Credit(ctx context.Context, userID string, amount decimal.Decimal, ref string) (decimal.Decimal, error)

	SaveBet(ctx context.Context, b events.BetRecord) error
	SettleBet(ctx context.Context, wagerID string, status events.BetStatus, payout decimal.Decimal) error
	SaveRound(ctx context.Context, r events.RoundRecord) error

	ListRounds(ctx context.Context, game string, mode events.Mode, page, size int) (events.Page[events.RoundRecord], error)
	ListBets(ctx context.Context, userID string, page, size int) (events.Page[events.BetRecord], error)

	Ping(ctx context.Context) error
}

// normalizePage garante página >= 1 e tamanho entre 1 e 100
func normalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 100 {
		size = DefaultPageSize
	}
	return page, size
}
