package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/radieske/fastround-platform/pkg/contracts/events"
)

// Cached envolve um Reader com cache read-through no Redis.
// O saldo nunca é cacheado.
type Cached struct {
	Next   Reader
	Client *redis.Client
	TTL    time.Duration
}

func NewCached(next Reader, c *redis.Client, ttl time.Duration) *Cached {
	return &Cached{Next: next, Client: c, TTL: ttl}
}

func roundsKey(game string, mode events.Mode, page int) string {
	return fmt.Sprintf("history:rounds:%s:%s:%d", game, mode, page)
}

func betsKey(userID string, page int) string {
	return fmt.Sprintf("history:bets:%s:%d", userID, page)
}

func (c *Cached) Rounds(ctx context.Context, game string, mode events.Mode, page int) (events.Page[events.RoundRecord], error) {
	var out events.Page[events.RoundRecord]
	key := roundsKey(game, mode, page)
	if ok, err := c.get(ctx, key, &out); err == nil && ok {
		return out, nil
	}
	out, err := c.Next.Rounds(ctx, game, mode, page)
	if err != nil {
		return out, err
	}
	_ = c.set(ctx, key, out)
	return out, nil
}

func (c *Cached) Bets(ctx context.Context, userID string, page int) (events.Page[events.BetRecord], error) {
	var out events.Page[events.BetRecord]
	key := betsKey(userID, page)
	if ok, err := c.get(ctx, key, &out); err == nil && ok {
		return out, nil
	}
	out, err := c.Next.Bets(ctx, userID, page)
	if err != nil {
		return out, err
	}
	_ = c.set(ctx, key, out)
	return out, nil
}

func (c *Cached) Balance(ctx context.Context, userID string) (decimal.Decimal, error) {
	return c.Next.Balance(ctx, userID)
}

// Invalidate remove as páginas de apostas do usuário e de rodadas do jogo
func (c *Cached) Invalidate(ctx context.Context, userID, game string) error {
	for _, pattern := range []string{
		"history:bets:" + userID + ":*",
		"history:rounds:" + game + ":*",
	} {
		iter := c.Client.Scan(ctx, 0, pattern, 100).Iterator()
		var keys []string
		for iter.Next(ctx) {
			keys = append(keys, iter.Val())
		}
		if err := iter.Err(); err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := c.Client.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}
	}
	return nil
}

// get reporta hit só quando a entrada existe e decodifica; qualquer erro vale como miss
func (c *Cached) get(ctx context.Context, key string, dst any) (bool, error) {
	b, err := c.Client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return false, err
	}
	return true, nil
}

func (c *Cached) set(ctx context.Context, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.Client.Set(ctx, key, b, c.TTL).Err()
}
