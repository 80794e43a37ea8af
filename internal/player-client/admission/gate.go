package admission

import (
	"errors"
	"fmt"

	"github.com/radieske/fastround-platform/internal/player-client/roundclock"
	"github.com/radieske/fastround-platform/pkg/contracts/events"
)

var (
	ErrWindowClosed  = errors.New("betting window closed")
	ErrClockStale    = errors.New("round clock out of sync")
	ErrModeNotJoined = errors.New("mode not joined")
)

// Clock é a parte do relógio de rodadas que o gate consulta
type Clock interface {
	Phase(mode events.Mode) roundclock.Phase
	Countdown(mode events.Mode) int
	Stale(mode events.Mode) bool
	RoundID(mode events.Mode) string
}

// Gate decide se uma aposta pode sair para a rede. A margem de admissão
// é configurada por modo e só vale para modos em que o jogador entrou.
type Gate struct {
	clock   Clock
	margins map[events.Mode]int
}

func New(clock Clock) *Gate {
	return &Gate{clock: clock, margins: make(map[events.Mode]int)}
}

func (g *Gate) Join(mode events.Mode, margin int) { g.margins[mode] = margin }

func (g *Gate) Leave(mode events.Mode) { delete(g.margins, mode) }

func (g *Gate) Joined(mode events.Mode) bool {
	_, ok := g.margins[mode]
	return ok
}

func (g *Gate) Margin(mode events.Mode) int { return g.margins[mode] }

// Check retorna o motivo da recusa local, ou nil se a aposta pode ser enviada
func (g *Gate) Check(mode events.Mode) error {
	margin, ok := g.margins[mode]
	if !ok {
		return fmt.Errorf("%w: %s", ErrModeNotJoined, mode)
	}
	if g.clock.Stale(mode) {
		return ErrClockStale
	}
	// sem rodada identificada a aposta não tem a que se vincular
	if g.clock.RoundID(mode) == "" {
		return fmt.Errorf("%w: round unknown", ErrClockStale)
	}
	switch p := g.clock.Phase(mode); p {
	case roundclock.Open, roundclock.ClosingSoon:
	default:
		return fmt.Errorf("%w: round %s", ErrWindowClosed, p)
	}
	if left := g.clock.Countdown(mode); left <= margin {
		return fmt.Errorf("%w: %ds left, margin %ds", ErrWindowClosed, left, margin)
	}
	return nil
}

func (g *Gate) CanSubmit(mode events.Mode) bool { return g.Check(mode) == nil }

// EditsLocked trava a composição da aposta a partir do aviso de fechamento
func (g *Gate) EditsLocked(mode events.Mode) bool {
	p := g.clock.Phase(mode)
	return p == roundclock.ClosingSoon || p == roundclock.Closed
}
