package games

import (
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/radieske/fastround-platform/pkg/contracts/events"
)

var (
	ErrUnknownGame      = errors.New("unknown game")
	ErrInvalidSelection = errors.New("invalid selection")
)

// Categorias e valores das seleções sobrepostas, comuns a todos os jogos
const (
	CategorySize   = "size"
	CategoryParity = "parity"

	Big   = "big"
	Small = "small"
	Odd   = "odd"
	Even  = "even"
)

// OverlayMultiplier é o multiplicador fixo das pernas grande/pequeno e par/ímpar
var OverlayMultiplier = decimal.RequireFromString("1.9")

// Variant é a estratégia de cada jogo: formato da seleção principal,
// formato do roundId e, do lado da autoridade, sorteio e tabela de pagamento.
type Variant interface {
	Name() string
	ValidatePrimary(position int, value string) error
	ValidateOverlay(category, value string) error
	RoundID(mode events.Mode, day time.Time, seq int64) string
	RoundSeq(roundID string) (int64, bool)

	Draw(r *rand.Rand) events.Outcome
	PrimaryWins(o events.Outcome, position int, value string) bool
	PrimaryMultiplier(position int, value string) decimal.Decimal
}

// base implementa as partes comuns aos quatro jogos
type base struct {
	name    string
	bigFrom int // referência >= bigFrom é "grande"
}

func (b base) Name() string { return b.name }

func (b base) ValidateOverlay(category, value string) error {
	switch category {
	case CategorySize:
		if value == Big || value == Small {
			return nil
		}
	case CategoryParity:
		if value == Odd || value == Even {
			return nil
		}
	}
	return fmt.Errorf("%w: overlay %s=%s", ErrInvalidSelection, category, value)
}

// RoundID segue o formato <jogo>-<modo>-<AAAAMMDD>-<seq:06d>
func (b base) RoundID(mode events.Mode, day time.Time, seq int64) string {
	return fmt.Sprintf("%s-%s-%s-%06d", b.name, mode, day.UTC().Format("20060102"), seq)
}

// RoundSeq extrai um número comparável (dia*1e6 + seq) de um roundId deste jogo
func (b base) RoundSeq(roundID string) (int64, bool) {
	parts := strings.Split(roundID, "-")
	if len(parts) != 4 || parts[0] != b.name {
		return 0, false
	}
	day, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return 0, false
	}
	seq, err := strconv.ParseInt(parts[3], 10, 64)
	if err != nil || seq >= 1_000_000 {
		return 0, false
	}
	return day*1_000_000 + seq, true
}

func (b base) outcome(values []int, reference int) events.Outcome {
	return events.Outcome{
		Values:    values,
		Reference: reference,
		Big:       reference >= b.bigFrom,
		Odd:       reference%2 != 0,
	}
}

// Payout calcula o pagamento total de uma aposta: cada perna vencedora paga amount × multiplicador.
func Payout(v Variant, o events.Outcome, w events.Wager) decimal.Decimal {
	total := decimal.Zero
	for _, s := range w.Selections {
		switch s.Kind {
		case events.SelectionPrimary:
			if v.PrimaryWins(o, s.Position, s.Value) {
				total = total.Add(w.Amount.Mul(v.PrimaryMultiplier(s.Position, s.Value)))
			}
		case events.SelectionOverlay:
			if OverlayWins(o, s.Category, s.Value) {
				total = total.Add(w.Amount.Mul(OverlayMultiplier))
			}
		}
	}
	return total
}

// OverlayWins avalia uma perna grande/pequeno ou par/ímpar contra o resultado
func OverlayWins(o events.Outcome, category, value string) bool {
	switch category {
	case CategorySize:
		return (value == Big) == o.Big
	case CategoryParity:
		return (value == Odd) == o.Odd
	}
	return false
}

func parseInt(value string, min, max int) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil || n < min || n > max {
		return 0, fmt.Errorf("%w: %q not in [%d,%d]", ErrInvalidSelection, value, min, max)
	}
	return n, nil
}
