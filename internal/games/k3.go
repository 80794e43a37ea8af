package games

import (
	"fmt"
	"math/rand"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/radieske/fastround-platform/pkg/contracts/events"
)

// multiplicadores por soma dos três dados
var k3SumMultipliers = map[int]int64{
	3: 200, 4: 60, 5: 30, 6: 20, 7: 12, 8: 8, 9: 7, 10: 6,
	11: 6, 12: 7, 13: 8, 14: 12, 15: 20, 16: 30, 17: 60, 18: 200,
}

// K3 é o jogo de combinação de dados: três dados, aposta principal na soma.
type K3 struct{ base }

func NewK3() K3 { return K3{base{name: "k3", bigFrom: 11}} }

func (K3) ValidatePrimary(position int, value string) error {
	if position != 0 {
		return fmt.Errorf("%w: k3 has no positions", ErrInvalidSelection)
	}
	_, err := parseInt(value, 3, 18)
	return err
}

func (k K3) Draw(r *rand.Rand) events.Outcome {
	faces := []int{r.Intn(6) + 1, r.Intn(6) + 1, r.Intn(6) + 1}
	return k.outcome(faces, faces[0]+faces[1]+faces[2])
}

func (K3) PrimaryWins(o events.Outcome, _ int, value string) bool {
	return value == strconv.Itoa(o.Reference)
}

func (K3) PrimaryMultiplier(_ int, value string) decimal.Decimal {
	n, _ := strconv.Atoi(value)
	return decimal.NewFromInt(k3SumMultipliers[n])
}
