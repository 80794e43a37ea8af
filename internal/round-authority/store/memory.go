package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/radieske/fastround-platform/pkg/contracts/events"
)

// Memory é o store em memória usado em desenvolvimento e testes
type Memory struct {
	mu      sync.Mutex
	initial decimal.Decimal
	wallets map[string]decimal.Decimal
	refs    map[string]struct{}
	rounds  []events.RoundRecord
	bets    []*events.BetRecord
	betByID map[string]*events.BetRecord
}

func NewMemory(initial decimal.Decimal) *Memory {
	return &Memory{
		initial: initial,
		wallets: make(map[string]decimal.Decimal),
		refs:    make(map[string]struct{}),
		betByID: make(map[string]*events.BetRecord),
	}
}

// wallet cria a carteira com o saldo inicial no primeiro acesso; exige m.mu
func (m *Memory) wallet(userID string) decimal.Decimal {
	bal, ok := m.wallets[userID]
	if !ok {
		bal = m.initial
		m.wallets[userID] = bal
	}
	return bal
}

func (m *Memory) Balance(_ context.Context, userID string) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.wallet(userID), nil
}

func (m *Memory) Deposit(_ context.Context, userID string, amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	bal := m.wallet(userID).Add(amount)
	m.wallets[userID] = bal
	return bal, nil
}

func (m *Memory) Debit(_ context.Context, userID string, amount decimal.Decimal, ref string) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	bal := m.wallet(userID)
	if _, dup := m.refs[ref]; dup {
		return bal, nil
	}
	if bal.LessThan(amount) {
		return bal, ErrInsufficientFunds
	}
	bal = bal.Sub(amount)
	m.wallets[userID] = bal
	m.refs[ref] = struct{}{}
	return bal, nil
}

func (m *Memory) Credit(_ context.Context, userID string, amount decimal.Decimal, ref string) (decimal.Decimal, error) {
	if amount.IsNegative() {
		return decimal.Zero, ErrInvalidAmount
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	bal := m.wallet(userID)
	if _, dup := m.refs[ref]; dup {
		return bal, nil
	}
	bal = bal.Add(amount)
	m.wallets[userID] = bal
	m.refs[ref] = struct{}{}
	return bal, nil
}

func (m *Memory) SaveBet(_ context.Context, b events.BetRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.betByID[b.WagerID]; ok {
		return nil
	}
	rec := b
	m.bets = append(m.bets, &rec)
	m.betByID[b.WagerID] = &rec
	return nil
}

func (m *Memory) SettleBet(_ context.Context, wagerID string, status events.BetStatus, payout decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.betByID[wagerID]
	if !ok {
		return fmt.Errorf("bet %s: %w", wagerID, ErrNotFound)
	}
	b.Status = status
	b.Payout = payout
	return nil
}

func (m *Memory) SaveRound(_ context.Context, r events.RoundRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rounds = append(m.rounds, r)
	return nil
}

// ListRounds retorna as rodadas mais recentes primeiro
func (m *Memory) ListRounds(_ context.Context, game string, mode events.Mode, page, size int) (events.Page[events.RoundRecord], error) {
	page, size = normalizePage(page, size)
	m.mu.Lock()
	defer m.mu.Unlock()

	var filtered []events.RoundRecord
	for i := len(m.rounds) - 1; i >= 0; i-- {
		r := m.rounds[i]
		if r.Game == game && (mode == "" || r.Mode == mode) {
			filtered = append(filtered, r)
		}
	}
	items, more := slicePage(filtered, page, size)
	return events.Page[events.RoundRecord]{Items: items, Page: page, PageSize: size, HasMore: more}, nil
}

func (m *Memory) ListBets(_ context.Context, userID string, page, size int) (events.Page[events.BetRecord], error) {
	page, size = normalizePage(page, size)
	m.mu.Lock()
	defer m.mu.Unlock()

	var filtered []events.BetRecord
	for i := len(m.bets) - 1; i >= 0; i-- {
		if m.bets[i].UserID == userID {
			filtered = append(filtered, *m.bets[i])
		}
	}
	items, more := slicePage(filtered, page, size)
	return events.Page[events.BetRecord]{Items: items, Page: page, PageSize: size, HasMore: more}, nil
}

func (m *Memory) Ping(context.Context) error { return nil }

func slicePage[T any](all []T, page, size int) ([]T, bool) {
	start := (page - 1) * size
	if start >= len(all) {
		return []T{}, false
	}
	end := min(start+size, len(all))
	return all[start:end], end < len(all)
}
