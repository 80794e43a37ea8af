package balance

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"
)

// Fetcher lê o saldo autoritativo (endpoint de carteira)
type Fetcher interface {
	Balance(ctx context.Context, userID string) (decimal.Decimal, error)
}

// Chaves de idempotência por aposta
func StakeKey(wagerID string) string { return "stake:" + wagerID }
func SettleKey(wagerID string) string { return "settle:" + wagerID }
func RefundKey(wagerID string) string { return "refund:" + wagerID }

// Cache é o saldo local compartilhado pelos engines de todos os jogos.
// Cada mutação é aplicada no máximo uma vez por chave.
type Cache struct {
	mu      sync.Mutex
	value   decimal.Decimal
	applied map[string]struct{}
	gen     uint64
}

func New(initial decimal.Decimal) *Cache {
	return &Cache{value: initial, applied: make(map[string]struct{})}
}

func (c *Cache) Value() decimal.Decimal {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

// Debit retira amount uma única vez para a chave; retorna false se já aplicado
func (c *Cache) Debit(key string, amount decimal.Decimal) bool {
	return c.apply(key, amount.Neg())
}

// Credit soma amount uma única vez para a chave
func (c *Cache) Credit(key string, amount decimal.Decimal) bool {
	return c.apply(key, amount)
}

func (c *Cache) apply(key string, delta decimal.Decimal) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, dup := c.applied[key]; dup {
		return false
	}
	c.applied[key] = struct{}{}
	c.value = c.value.Add(delta)
	c.gen++
	return true
}

func (c *Cache) Applied(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.applied[key]
	return ok
}

// Generation identifica o estado atual; usado para descartar refresh obsoleto
func (c *Cache) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// Reconcile substitui o saldo pelo valor do servidor se nenhuma mutação
// local aconteceu desde gen. Retorna false quando o valor é descartado.
func (c *Cache) Reconcile(gen uint64, server decimal.Decimal) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return false
	}
	c.value = server
	return true
}

// Refresh busca o saldo e reconcilia. Bloqueia; o engine chama fora do loop.
func (c *Cache) Refresh(ctx context.Context, f Fetcher, userID string) (decimal.Decimal, bool, error) {
	gen := c.Generation()
	v, err := f.Balance(ctx, userID)
	if err != nil {
		return decimal.Zero, false, err
	}
	return v, c.Reconcile(gen, v), nil
}
