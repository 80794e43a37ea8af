package composer

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/radieske/fastround-platform/internal/games"
	"github.com/radieske/fastround-platform/pkg/contracts/events"
)

var (
	ErrNoSelection         = errors.New("no selection")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInsufficientBalance = errors.New("insufficient balance")
)

// Selection é a união Primary | Overlay
type Selection interface {
	contract() events.Selection
}

// Primary é a escolha principal do jogo (número, cor, soma, carro ou posição+dígito)
type Primary struct {
	Position int
	Value    string
}

// Overlay é uma escolha independente (grande/pequeno, par/ímpar)
type Overlay struct {
	Category string
	Value    string
}

func (p Primary) contract() events.Selection {
	return events.Selection{Kind: events.SelectionPrimary, Position: p.Position, Value: p.Value}
}

func (o Overlay) contract() events.Selection {
	return events.Selection{Kind: events.SelectionOverlay, Category: o.Category, Value: o.Value}
}

// Wager é a aposta montada; não muda depois de construída
type Wager struct {
	ID         string
	Game       string
	Mode       events.Mode
	RoundID    string
	Selections []Selection
	Amount     decimal.Decimal
}

// Contract converte para o payload do placeBet
func (w Wager) Contract(userID string, placedAt time.Time) events.Wager {
	sel := make([]events.Selection, 0, len(w.Selections))
	for _, s := range w.Selections {
		sel = append(sel, s.contract())
	}
	return events.Wager{
		WagerID:    w.ID,
		UserID:     userID,
		Game:       w.Game,
		Mode:       w.Mode,
		RoundID:    w.RoundID,
		Selections: sel,
		Amount:     w.Amount,
		PlacedAtMs: placedAt.UnixMilli(),
	}
}

// Composer acumula as seleções de um modo até o envio
type Composer struct {
	variant  games.Variant
	primary  *Primary
	overlays map[string]Overlay
	amount   decimal.Decimal
}

func New(v games.Variant) *Composer {
	return &Composer{variant: v, overlays: make(map[string]Overlay)}
}

// Select alterna uma seleção. Uma nova principal substitui a anterior;
// cada categoria de overlay guarda no máximo um valor.
func (c *Composer) Select(s Selection) error {
	switch s := s.(type) {
	case Primary:
		if err := c.variant.ValidatePrimary(s.Position, s.Value); err != nil {
			return err
		}
		if c.primary != nil && *c.primary == s {
			c.primary = nil
			return nil
		}
		c.primary = &s
	case Overlay:
		if err := c.variant.ValidateOverlay(s.Category, s.Value); err != nil {
			return err
		}
		if cur, ok := c.overlays[s.Category]; ok && cur == s {
			delete(c.overlays, s.Category)
			return nil
		}
		c.overlays[s.Category] = s
	default:
		return fmt.Errorf("%w: %T", games.ErrInvalidSelection, s)
	}
	return nil
}

// SetAmount valida n contra o saldo atual antes de gravar
func (c *Composer) SetAmount(n, balance decimal.Decimal) error {
	if err := ValidateAmount(n, balance); err != nil {
		return err
	}
	c.amount = n
	return nil
}

func ValidateAmount(n, balance decimal.Decimal) error {
	if !n.IsPositive() {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, n)
	}
	if n.GreaterThan(balance) {
		return fmt.Errorf("%w: %s > %s", ErrInsufficientBalance, n, balance)
	}
	return nil
}

func (c *Composer) Amount() decimal.Decimal { return c.amount }

func (c *Composer) Empty() bool { return c.primary == nil && len(c.overlays) == 0 }

// Selections retorna a principal primeiro e os overlays por categoria
func (c *Composer) Selections() []Selection {
	var out []Selection
	if c.primary != nil {
		out = append(out, *c.primary)
	}
	cats := make([]string, 0, len(c.overlays))
	for k := range c.overlays {
		cats = append(cats, k)
	}
	sort.Strings(cats)
	for _, k := range cats {
		out = append(out, c.overlays[k])
	}
	return out
}

// Build monta a aposta para a rodada informada
func (c *Composer) Build(id string, mode events.Mode, roundID string) (Wager, error) {
	if c.Empty() {
		return Wager{}, ErrNoSelection
	}
	if !c.amount.IsPositive() {
		return Wager{}, fmt.Errorf("%w: %s", ErrInvalidAmount, c.amount)
	}
	return Wager{
		ID:         id,
		Game:       c.variant.Name(),
		Mode:       mode,
		RoundID:    roundID,
		Selections: c.Selections(),
		Amount:     c.amount,
	}, nil
}

// Clear limpa seleções e valor
func (c *Composer) Clear() {
	c.primary = nil
	c.overlays = make(map[string]Overlay)
	c.amount = decimal.Zero
}

// ParseSelection lê "primary:<posição>:<valor>" ou "overlay:<categoria>:<valor>"
func ParseSelection(s string) (Selection, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 3 {
		return nil, fmt.Errorf("%w: %q", games.ErrInvalidSelection, s)
	}
	switch parts[0] {
	case string(events.SelectionPrimary):
		pos, err := strconv.Atoi(parts[1])
		if err != nil {
			return nil, fmt.Errorf("%w: position %q", games.ErrInvalidSelection, parts[1])
		}
		return Primary{Position: pos, Value: parts[2]}, nil
	case string(events.SelectionOverlay):
		return Overlay{Category: parts[1], Value: parts[2]}, nil
	}
	return nil, fmt.Errorf("%w: %q", games.ErrInvalidSelection, s)
}
