package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/radieske/fastround-platform/pkg/contracts/events"
)

var ErrNotFound = errors.New("not found")

// Reader é a leitura paginada de histórico e do saldo
type Reader interface {
	Rounds(ctx context.Context, game string, mode events.Mode, page int) (events.Page[events.RoundRecord], error)
	Bets(ctx context.Context, userID string, page int) (events.Page[events.BetRecord], error)
	Balance(ctx context.Context, userID string) (decimal.Decimal, error)
}

// Client fala com a API REST da autoridade de rodadas
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func New(base string) *Client {
	return &Client{
		BaseURL: base,
		HTTP:    &http.Client{Timeout: 2 * time.Second},
	}
}

func (c *Client) Rounds(ctx context.Context, game string, mode events.Mode, page int) (events.Page[events.RoundRecord], error) {
	q := url.Values{"game": {game}, "mode": {string(mode)}, "page": {strconv.Itoa(page)}}
	var out events.Page[events.RoundRecord]
	err := c.get(ctx, "/v1/rounds", q, &out)
	return out, err
}

func (c *Client) Bets(ctx context.Context, userID string, page int) (events.Page[events.BetRecord], error) {
	q := url.Values{"userId": {userID}, "page": {strconv.Itoa(page)}}
	var out events.Page[events.BetRecord]
	err := c.get(ctx, "/v1/bets", q, &out)
	return out, err
}

func (c *Client) Balance(ctx context.Context, userID string) (decimal.Decimal, error) {
	var out events.WalletBalance
	if err := c.get(ctx, "/v1/wallet", url.Values{"userId": {userID}}, &out); err != nil {
		return decimal.Zero, err
	}
	return out.Balance, nil
}

func (c *Client) get(ctx context.Context, path string, q url.Values, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	res, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	if res.StatusCode >= 300 {
		return fmt.Errorf("%s http %d", path, res.StatusCode)
	}
	return json.NewDecoder(res.Body).Decode(dst)
}
