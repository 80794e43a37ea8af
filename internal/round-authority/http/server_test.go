package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/fastround-platform/internal/player-client/history"
	"github.com/radieske/fastround-platform/internal/round-authority/store"
	"github.com/radieske/fastround-platform/pkg/contracts/events"
)

func newTestServer(t *testing.T) (*httptest.Server, *store.Memory) {
	t.Helper()
	st := store.NewMemory(decimal.NewFromInt(50))
	srv := httptest.NewServer(NewServer(zap.NewNop(), st, nil).Router())
	t.Cleanup(srv.Close)
	return srv, st
}

func TestServer_WalletAndDeposit(t *testing.T) {
	srv, _ := newTestServer(t)
	client := history.New(srv.URL)
	ctx := context.Background()

	bal, err := client.Balance(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, bal.Equal(decimal.NewFromInt(50)))

	resp, err := http.Post(srv.URL+"/v1/wallet/deposit", "application/json",
		strings.NewReader(`{"userId":"u1","amount":"25.5"}`))
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	bal, err = client.Balance(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, bal.Equal(decimal.RequireFromString("75.5")))

	for _, body := range []string{`{"userId":"u1","amount":"0"}`, `{"amount":"10"}`, `not json`} {
		resp, err := http.Post(srv.URL+"/v1/wallet/deposit", "application/json", strings.NewReader(body))
		require.NoError(t, err)
		_ = resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, body)
	}
}

func TestServer_HistoryPages(t *testing.T) {
	srv, st := newTestServer(t)
	client := history.New(srv.URL)
	ctx := context.Background()
	base := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)

	for i := 1; i <= 25; i++ {
		require.NoError(t, st.SaveRound(ctx, events.RoundRecord{
			Game:      "k3",
			Mode:      events.Mode1m,
			RoundID:   fmt.Sprintf("k3-1m-20261016-%06d", i),
			Outcome:   events.Outcome{Values: []int{1, 2, 3}, Reference: 6},
			SettledAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, st.SaveBet(ctx, events.BetRecord{
		WagerID: "w1", UserID: "u1", Game: "k3", Mode: events.Mode1m,
		Amount: decimal.NewFromInt(5), Status: events.BetPending, PlacedAt: base,
	}))

	p1, err := client.Rounds(ctx, "k3", events.Mode1m, 1)
	require.NoError(t, err)
	assert.Len(t, p1.Items, store.DefaultPageSize)
	assert.True(t, p1.HasMore)
	assert.Equal(t, "k3-1m-20261016-000025", p1.Items[0].RoundID)

	p2, err := client.Rounds(ctx, "k3", events.Mode1m, 2)
	require.NoError(t, err)
	assert.Len(t, p2.Items, 5)
	assert.False(t, p2.HasMore)

	bets, err := client.Bets(ctx, "u1", 1)
	require.NoError(t, err)
	require.Len(t, bets.Items, 1)
	assert.Equal(t, events.BetPending, bets.Items[0].Status)
}

func TestServer_BadQueries(t *testing.T) {
	srv, _ := newTestServer(t)
	for _, path := range []string{
		"/v1/rounds?game=poker&mode=1m",
		"/v1/rounds?game=k3&mode=2m",
		"/v1/rounds?game=k3&mode=1m&page=0",
		"/v1/bets",
		"/v1/bets?userId=u1&pageSize=x",
		"/v1/wallet",
	} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		_ = resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, path)
	}
}
