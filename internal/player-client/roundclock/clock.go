package roundclock

import (
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/radieske/fastround-platform/pkg/contracts/events"
)

// Phase é derivada do tempo restante e do resultado da rodada corrente
type Phase int

const (
	Unknown Phase = iota
	Open
	ClosingSoon
	Closed
	Resolved
)

func (p Phase) String() string {
	switch p {
	case Open:
		return "open"
	case ClosingSoon:
		return "closing_soon"
	case Closed:
		return "closed"
	case Resolved:
		return "resolved"
	default:
		return "unknown"
	}
}

// quantos roundIds antigos lembrar por modo para descartar ticks atrasados
const retiredMemory = 16

type Options struct {
	StaleAfter time.Duration
	// salto para cima (em segundos) tolerado antes de considerar virada de rodada
	RolloverTolerance int
	// extrai sequência comparável do roundId; nil desliga a comparação
	RoundSeq func(roundID string) (int64, bool)
}

// State é a visão local de uma rodada de um modo
type State struct {
	RoundID       string
	Seq           int64
	TimeRemaining int
	ReceivedAt    time.Time
	Resolved      bool
}

// TickResult descreve o efeito de um tick aplicado
type TickResult struct {
	Applied       bool
	Rollover      bool
	PreviousRound string
}

type modeClock struct {
	closing  int
	ticked   bool
	resync   bool
	state    State
	retired  map[string]struct{}
	retiredQ []string
}

// Clock mantém o relógio de cada modo a partir dos ticks autoritativos.
// Não é seguro para uso concorrente; o engine serializa o acesso.
type Clock struct {
	clock clockwork.Clock
	opts  Options
	modes map[events.Mode]*modeClock
}

func New(clock clockwork.Clock, opts Options) *Clock {
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = 3 * time.Second
	}
	if opts.RolloverTolerance <= 0 {
		opts.RolloverTolerance = 2
	}
	return &Clock{clock: clock, opts: opts, modes: make(map[events.Mode]*modeClock)}
}

// Configure define o limiar de "fechando" do modo, em segundos
func (c *Clock) Configure(mode events.Mode, closingThreshold int) {
	c.mode(mode).closing = closingThreshold
}

func (c *Clock) mode(m events.Mode) *modeClock {
	mc, ok := c.modes[m]
	if !ok {
		mc = &modeClock{retired: make(map[string]struct{})}
		c.modes[m] = mc
	}
	return mc
}

// OnTick aplica um tick. O servidor sempre vence, exceto ticks fora de ordem
// (seq menor ou igual na mesma rodada) e ticks de rodadas já substituídas.
func (c *Clock) OnTick(t events.TimerTick) TickResult {
	mc := c.mode(t.Mode)

	if t.RoundID != "" {
		if _, old := mc.retired[t.RoundID]; old {
			return TickResult{}
		}
	}

	cur := &mc.state
	sameRound := mc.ticked && (t.RoundID == cur.RoundID || t.RoundID == "")
	res := TickResult{Applied: true}

	switch {
	case !mc.ticked:
		// primeiro tick da sessão
	case sameRound:
		if t.Seq > 0 && t.Seq <= cur.Seq {
			return TickResult{}
		}
		// tick sem roundId: virada detectada pelo salto do tempo restante
		if t.RoundID == "" && t.TimeRemaining > cur.TimeRemaining+c.opts.RolloverTolerance {
			res.Rollover, res.PreviousRound = true, cur.RoundID
		}
	default:
		if c.older(t.RoundID, cur.RoundID) {
			return TickResult{}
		}
		res.Rollover, res.PreviousRound = true, cur.RoundID
	}

	if res.Rollover {
		mc.retire(cur.RoundID)
		*cur = State{}
	}
	if t.RoundID != "" {
		cur.RoundID = t.RoundID
	}
	if t.Seq > 0 || res.Rollover || !mc.ticked {
		cur.Seq = t.Seq
	}
	cur.TimeRemaining = max(t.TimeRemaining, 0)
	cur.ReceivedAt = c.clock.Now()
	mc.ticked = true
	mc.resync = false
	return res
}

// OnSnapshot inicializa o modo no (re)join; mesma regra de ordenação dos ticks
func (c *Clock) OnSnapshot(s events.RoundSnapshot) TickResult {
	// snapshot da mesma rodada no mesmo seq reconfirma o relógio após reconexão
	if mc, ok := c.modes[s.Mode]; ok && mc.ticked && s.RoundID != "" &&
		s.RoundID == mc.state.RoundID && s.Seq > 0 && s.Seq == mc.state.Seq {
		mc.state.TimeRemaining = max(s.TimeRemaining, 0)
		mc.state.ReceivedAt = c.clock.Now()
		mc.resync = false
		return TickResult{Applied: true}
	}
	return c.OnTick(events.TimerTick{
		Game:          s.Game,
		Mode:          s.Mode,
		RoundID:       s.RoundID,
		Seq:           s.Seq,
		TimeRemaining: s.TimeRemaining,
	})
}

// OnResult marca a rodada como resolvida se for a corrente
func (c *Clock) OnResult(mode events.Mode, roundID string) bool {
	mc, ok := c.modes[mode]
	if !ok || !mc.ticked || mc.state.RoundID != roundID {
		return false
	}
	mc.state.Resolved = true
	return true
}

// MarkStale é chamado na desconexão; cada modo volta a confiar no relógio só depois do próximo tick
func (c *Clock) MarkStale() {
	for _, mc := range c.modes {
		mc.resync = true
	}
}

// Reset descarta o estado do modo (ao sair do modo)
func (c *Clock) Reset(mode events.Mode) {
	mc, ok := c.modes[mode]
	if !ok {
		return
	}
	closing := mc.closing
	*mc = modeClock{closing: closing, retired: make(map[string]struct{})}
}

func (c *Clock) Stale(mode events.Mode) bool {
	mc, ok := c.modes[mode]
	if !ok || !mc.ticked || mc.resync {
		return true
	}
	return c.clock.Since(mc.state.ReceivedAt) > c.opts.StaleAfter
}

// Countdown extrapola o tempo restante desde o último tick, sem passar de zero
// nem avançar além da janela de staleness.
func (c *Clock) Countdown(mode events.Mode) int {
	mc, ok := c.modes[mode]
	if !ok || !mc.ticked {
		return 0
	}
	elapsed := min(c.clock.Since(mc.state.ReceivedAt), c.opts.StaleAfter)
	return max(mc.state.TimeRemaining-int(elapsed/time.Second), 0)
}

// TimeRemaining é o último valor autoritativo recebido
func (c *Clock) TimeRemaining(mode events.Mode) int {
	if mc, ok := c.modes[mode]; ok {
		return mc.state.TimeRemaining
	}
	return 0
}

func (c *Clock) Phase(mode events.Mode) Phase {
	mc, ok := c.modes[mode]
	if !ok || !mc.ticked {
		return Unknown
	}
	if mc.state.Resolved {
		return Resolved
	}
	left := c.Countdown(mode)
	switch {
	case left <= 0:
		return Closed
	case left <= mc.closing:
		return ClosingSoon
	default:
		return Open
	}
}

// RoundID é a rodada corrente do modo; vazio enquanto nenhuma foi identificada
func (c *Clock) RoundID(mode events.Mode) string {
	if mc, ok := c.modes[mode]; ok {
		return mc.state.RoundID
	}
	return ""
}

// State retorna uma cópia do estado do modo
func (c *Clock) State(mode events.Mode) (State, bool) {
	mc, ok := c.modes[mode]
	if !ok || !mc.ticked {
		return State{}, false
	}
	return mc.state, true
}

func (c *Clock) older(candidate, current string) bool {
	if c.opts.RoundSeq == nil || current == "" {
		return false
	}
	a, okA := c.opts.RoundSeq(candidate)
	b, okB := c.opts.RoundSeq(current)
	return okA && okB && a < b
}

func (mc *modeClock) retire(roundID string) {
	if roundID == "" {
		return
	}
	if _, ok := mc.retired[roundID]; ok {
		return
	}
	mc.retired[roundID] = struct{}{}
	mc.retiredQ = append(mc.retiredQ, roundID)
	if len(mc.retiredQ) > retiredMemory {
		delete(mc.retired, mc.retiredQ[0])
		mc.retiredQ = mc.retiredQ[1:]
	}
}
