package rounds

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"go.uber.org/zap"

	"github.com/radieske/fastround-platform/internal/games"
	"github.com/radieske/fastround-platform/internal/shared/config"
	"github.com/radieske/fastround-platform/pkg/contracts/events"
)

type tableKey struct {
	game string
	mode events.Mode
}

// Authority agrupa uma Table por (jogo, modo) configurado no catálogo
type Authority struct {
	tables map[tableKey]*Table
	order  []*Table
}

func NewAuthority(cat config.Catalogue, deps Deps) (*Authority, error) {
	a := &Authority{tables: make(map[tableKey]*Table)}
	for _, gc := range cat.Games {
		v, err := games.Lookup(gc.Name)
		if err != nil {
			return nil, err
		}
		for _, mc := range gc.Modes {
			// *rand.Rand não é seguro entre goroutines: uma fonte por mesa
			d := deps
			d.Rand = rand.New(rand.NewSource(deps.Rand.Int63()))
			t := NewTable(v, mc.Mode, mc.AdmissionMargin, d)
			a.tables[tableKey{gc.Name, mc.Mode}] = t
			a.order = append(a.order, t)
		}
	}
	if len(a.order) == 0 {
		return nil, fmt.Errorf("catalogue has no playable modes")
	}
	deps.Log.Info("round tables ready", zap.Int("tables", len(a.order)))
	return a, nil
}

// Table retorna a mesa de um (jogo, modo)
func (a *Authority) Table(game string, mode events.Mode) (*Table, bool) {
	t, ok := a.tables[tableKey{game, mode}]
	return t, ok
}

// Tables lista as mesas na ordem do catálogo
func (a *Authority) Tables() []*Table { return a.order }

// Run roda todas as mesas até o contexto ser cancelado
func (a *Authority) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, t := range a.order {
		wg.Add(1)
		go func(t *Table) {
			defer wg.Done()
			t.Run(ctx)
		}(t)
	}
	wg.Wait()
}
