package games

import (
	"fmt"
	"math/rand"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/radieske/fastround-platform/pkg/contracts/events"
)

const (
	ColorRed    = "red"
	ColorGreen  = "green"
	ColorViolet = "violet"
)

// Wingo é o sorteio numérico: um número de 0 a 9 com cor.
// A seleção principal é um número ou uma cor.
type Wingo struct{ base }

func NewWingo() Wingo { return Wingo{base{name: "wingo", bigFrom: 5}} }

func (Wingo) ValidatePrimary(position int, value string) error {
	if position != 0 {
		return fmt.Errorf("%w: wingo has no positions", ErrInvalidSelection)
	}
	switch value {
	case ColorRed, ColorGreen, ColorViolet:
		return nil
	}
	_, err := parseInt(value, 0, 9)
	return err
}

func (w Wingo) Draw(r *rand.Rand) events.Outcome {
	n := r.Intn(10)
	o := w.outcome([]int{n}, n)
	o.Color = colorOf(n)
	return o
}

func colorOf(n int) string {
	switch {
	case n == 0 || n == 5:
		return ColorViolet
	case n%2 == 0:
		return ColorRed
	default:
		return ColorGreen
	}
}

func (Wingo) PrimaryWins(o events.Outcome, _ int, value string) bool {
	if len(o.Values) == 0 {
		return false
	}
	n := o.Values[0]
	switch value {
	case ColorRed:
		return n%2 == 0
	case ColorGreen:
		return n%2 != 0
	case ColorViolet:
		return n == 0 || n == 5
	}
	return value == strconv.Itoa(n)
}

func (Wingo) PrimaryMultiplier(_ int, value string) decimal.Decimal {
	switch value {
	case ColorRed, ColorGreen:
		return decimal.NewFromInt(2)
	case ColorViolet:
		return decimal.RequireFromString("4.5")
	}
	return decimal.NewFromInt(9)
}
