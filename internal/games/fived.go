package games

import (
	"fmt"
	"math/rand"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/radieske/fastround-platform/pkg/contracts/events"
)

const fiveDPositions = 5

// FiveD é o jogo posicional de cinco dígitos (posições 1..5 = A..E).
// A seleção principal é (posição, dígito); grande/pequeno e par/ímpar usam a soma.
type FiveD struct{ base }

func NewFiveD() FiveD { return FiveD{base{name: "5d", bigFrom: 23}} }

func (FiveD) ValidatePrimary(position int, value string) error {
	if position < 1 || position > fiveDPositions {
		return fmt.Errorf("%w: 5d position %d", ErrInvalidSelection, position)
	}
	_, err := parseInt(value, 0, 9)
	return err
}

func (f FiveD) Draw(r *rand.Rand) events.Outcome {
	digits := make([]int, fiveDPositions)
	sum := 0
	for i := range digits {
		digits[i] = r.Intn(10)
		sum += digits[i]
	}
	return f.outcome(digits, sum)
}

func (FiveD) PrimaryWins(o events.Outcome, position int, value string) bool {
	if position < 1 || position > len(o.Values) {
		return false
	}
	return value == strconv.Itoa(o.Values[position-1])
}

func (FiveD) PrimaryMultiplier(int, string) decimal.Decimal {
	return decimal.NewFromInt(9)
}
