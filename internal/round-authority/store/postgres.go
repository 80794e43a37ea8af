package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/radieske/fastround-platform/pkg/contracts/events"
)

const schema = `
CREATE TABLE IF NOT EXISTS wallets (
	user_id    TEXT PRIMARY KEY,
	balance    NUMERIC(18,2) NOT NULL,
	version    BIGINT NOT NULL DEFAULT 1,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS wallet_ledger (
	external_ref   TEXT PRIMARY KEY,
	user_id        TEXT NOT NULL,
	operation_type TEXT NOT NULL,
	amount         NUMERIC(18,2) NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS rounds (
	round_id   TEXT PRIMARY KEY,
	game       TEXT NOT NULL,
	mode       TEXT NOT NULL,
	outcome    JSONB NOT NULL,
	settled_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS rounds_game_mode_idx ON rounds (game, mode, settled_at DESC);
CREATE TABLE IF NOT EXISTS bets (
	wager_id   TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	game       TEXT NOT NULL,
	mode       TEXT NOT NULL,
	round_id   TEXT NOT NULL,
	selections JSONB NOT NULL,
	amount     NUMERIC(18,2) NOT NULL,
	status     TEXT NOT NULL,
	payout     NUMERIC(18,2) NOT NULL DEFAULT 0,
	placed_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS bets_user_idx ON bets (user_id, placed_at DESC);
`

// Postgres implementa o Store sobre database/sql + lib/pq
type Postgres struct {
	db      *sql.DB
	initial decimal.Decimal
}

func NewPostgres(db *sql.DB, initial decimal.Decimal) *Postgres {
	return &Postgres{db: db, initial: initial}
}

// Migrate cria as tabelas se não existirem
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

// lockWallet garante a carteira e trava a linha dentro da transação
func (p *Postgres) lockWallet(ctx context.Context, tx *sql.Tx, userID string) (decimal.Decimal, error) {
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO wallets(user_id, balance) VALUES($1,$2) ON CONFLICT (user_id) DO NOTHING`,
		userID, p.initial); err != nil {
		return decimal.Zero, err
	}
	var bal decimal.Decimal
	err := tx.QueryRowContext(ctx, `SELECT balance FROM wallets WHERE user_id=$1 FOR UPDATE`, userID).Scan(&bal)
	return bal, err
}

func (p *Postgres) Balance(ctx context.Context, userID string) (decimal.Decimal, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return decimal.Zero, err
	}
	defer tx.Rollback()

	bal, err := p.lockWallet(ctx, tx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	return bal, tx.Commit()
}

func (p *Postgres) Deposit(ctx context.Context, userID string, amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return decimal.Zero, err
	}
	defer tx.Rollback()

	bal, err := p.lockWallet(ctx, tx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	bal = bal.Add(amount)
	if _, err = tx.ExecContext(ctx,
		`UPDATE wallets SET balance=$1, version=version+1, updated_at=now() WHERE user_id=$2`, bal, userID); err != nil {
		return decimal.Zero, err
	}
	return bal, tx.Commit()
}

func (p *Postgres) Debit(ctx context.Context, userID string, amount decimal.Decimal, ref string) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	return p.move(ctx, userID, amount.Neg(), ref, "DEBIT")
}

func (p *Postgres) Credit(ctx context.Context, userID string, amount decimal.Decimal, ref string) (decimal.Decimal, error) {
	if amount.IsNegative() {
		return decimal.Zero, ErrInvalidAmount
	}
	return p.move(ctx, userID, amount, ref, "CREDIT")
}

// move aplica delta uma única vez por ref, registrando no ledger
func (p *Postgres) move(ctx context.Context, userID string, delta decimal.Decimal, ref, op string) (decimal.Decimal, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return decimal.Zero, err
	}
	defer tx.Rollback()

	bal, err := p.lockWallet(ctx, tx, userID)
	if err != nil {
		return decimal.Zero, err
	}

	// Idempotência: ref já aplicada não move saldo
	var exists string
	err = tx.QueryRowContext(ctx, `SELECT external_ref FROM wallet_ledger WHERE external_ref=$1`, ref).Scan(&exists)
	if err == nil {
		return bal, tx.Commit()
	} else if !errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, err
	}

	next := bal.Add(delta)
	if next.IsNegative() {
		return bal, ErrInsufficientFunds
	}
	if _, err = tx.ExecContext(ctx,
		`UPDATE wallets SET balance=$1, version=version+1, updated_at=now() WHERE user_id=$2`, next, userID); err != nil {
		return decimal.Zero, err
	}
	if _, err = tx.ExecContext(ctx,
		`INSERT INTO wallet_ledger(external_ref, user_id, operation_type, amount) VALUES($1,$2,$3,$4)`,
		ref, userID, op, delta.Abs()); err != nil {
		return decimal.Zero, err
	}
	return next, tx.Commit()
}

func (p *Postgres) SaveBet(ctx context.Context, b events.BetRecord) error {
	sel, err := json.Marshal(b.Selections)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO bets(wager_id, user_id, game, mode, round_id, selections, amount, status, payout, placed_at)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (wager_id) DO NOTHING`,
		b.WagerID, b.UserID, b.Game, string(b.Mode), b.RoundID, sel, b.Amount, string(b.Status), b.Payout, b.PlacedAt)
	return err
}

func (p *Postgres) SettleBet(ctx context.Context, wagerID string, status events.BetStatus, payout decimal.Decimal) error {
	res, err := p.db.ExecContext(ctx, `UPDATE bets SET status=$1, payout=$2 WHERE wager_id=$3`, string(status), payout, wagerID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("bet %s: %w", wagerID, ErrNotFound)
	}
	return nil
}

func (p *Postgres) SaveRound(ctx context.Context, r events.RoundRecord) error {
	out, err := json.Marshal(r.Outcome)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO rounds(round_id, game, mode, outcome, settled_at) VALUES($1,$2,$3,$4,$5)
		ON CONFLICT (round_id) DO NOTHING`,
		r.RoundID, r.Game, string(r.Mode), out, r.SettledAt)
	return err
}

func (p *Postgres) ListRounds(ctx context.Context, game string, mode events.Mode, page, size int) (events.Page[events.RoundRecord], error) {
	page, size = normalizePage(page, size)
	rows, err := p.db.QueryContext(ctx, `
		SELECT round_id, game, mode, outcome, settled_at
		FROM rounds
		WHERE game=$1 AND ($2='' OR mode=$2)
		ORDER BY settled_at DESC
		LIMIT $3 OFFSET $4`,
		game, string(mode), size+1, (page-1)*size)
	if err != nil {
		return events.Page[events.RoundRecord]{}, err
	}
	defer rows.Close()

	items := []events.RoundRecord{}
	for rows.Next() {
		var r events.RoundRecord
		var m string
		var out []byte
		if err := rows.Scan(&r.RoundID, &r.Game, &m, &out, &r.SettledAt); err != nil {
			return events.Page[events.RoundRecord]{}, err
		}
		r.Mode = events.Mode(m)
		if err := json.Unmarshal(out, &r.Outcome); err != nil {
			return events.Page[events.RoundRecord]{}, err
		}
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return events.Page[events.RoundRecord]{}, err
	}
	more := len(items) > size
	if more {
		items = items[:size]
	}
	return events.Page[events.RoundRecord]{Items: items, Page: page, PageSize: size, HasMore: more}, nil
}

func (p *Postgres) ListBets(ctx context.Context, userID string, page, size int) (events.Page[events.BetRecord], error) {
	page, size = normalizePage(page, size)
	rows, err := p.db.QueryContext(ctx, `
		SELECT wager_id, user_id, game, mode, round_id, selections, amount, status, payout, placed_at
		FROM bets
		WHERE user_id=$1
		ORDER BY placed_at DESC
		LIMIT $2 OFFSET $3`,
		userID, size+1, (page-1)*size)
	if err != nil {
		return events.Page[events.BetRecord]{}, err
	}
	defer rows.Close()

	items := []events.BetRecord{}
	for rows.Next() {
		var b events.BetRecord
		var m, status string
		var sel []byte
		if err := rows.Scan(&b.WagerID, &b.UserID, &b.Game, &m, &b.RoundID, &sel, &b.Amount, &status, &b.Payout, &b.PlacedAt); err != nil {
			return events.Page[events.BetRecord]{}, err
		}
		b.Mode, b.Status = events.Mode(m), events.BetStatus(status)
		if err := json.Unmarshal(sel, &b.Selections); err != nil {
			return events.Page[events.BetRecord]{}, err
		}
		items = append(items, b)
	}
	if err := rows.Err(); err != nil {
		return events.Page[events.BetRecord]{}, err
	}
	more := len(items) > size
	if more {
		items = items[:size]
	}
	return events.Page[events.BetRecord]{Items: items, Page: page, PageSize: size, HasMore: more}, nil
}
