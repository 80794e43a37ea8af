package games

import (
	"fmt"
	"math/rand"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/radieske/fastround-platform/pkg/contracts/events"
)

const racingCars = 10

// Racing é a corrida de 10 carros. Values traz a ordem de chegada;
// a seleção principal é o carro numa colocação (posição 0 ou 1 = campeão).
type Racing struct{ base }

func NewRacing() Racing { return Racing{base{name: "racing", bigFrom: 6}} }

func (Racing) ValidatePrimary(position int, value string) error {
	if position < 0 || position > racingCars {
		return fmt.Errorf("%w: racing position %d", ErrInvalidSelection, position)
	}
	_, err := parseInt(value, 1, racingCars)
	return err
}

func (r Racing) Draw(rng *rand.Rand) events.Outcome {
	order := rng.Perm(racingCars)
	for i := range order {
		order[i]++
	}
	return r.outcome(order, order[0])
}

func (Racing) PrimaryWins(o events.Outcome, position int, value string) bool {
	if position == 0 {
		position = 1
	}
	if position > len(o.Values) {
		return false
	}
	return value == strconv.Itoa(o.Values[position-1])
}

func (Racing) PrimaryMultiplier(int, string) decimal.Decimal {
	return decimal.RequireFromString("9.5")
}
