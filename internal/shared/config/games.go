package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/radieske/fastround-platform/pkg/contracts/events"
)

var ErrModeNotConfigured = errors.New("mode not configured")

// limites aceitos para a margem de admissão, em segundos
const (
	MinAdmissionMargin = 3
	MaxAdmissionMargin = 10
)

// ModeConfig define o ciclo de um modo e suas janelas
type ModeConfig struct {
	Mode             events.Mode `yaml:"mode"`
	AdmissionMargin  int         `yaml:"admission_margin"`
	ClosingThreshold int         `yaml:"closing_threshold"`
}

type GameConfig struct {
	Name  string       `yaml:"name"`
	Modes []ModeConfig `yaml:"modes"`
}

// Catalogue é o conteúdo de configs/games.yaml
type Catalogue struct {
	StaleAfter time.Duration `yaml:"stale_after"`
	Games      []GameConfig  `yaml:"games"`
}

// LoadCatalogue lê e valida o catálogo YAML
func LoadCatalogue(path string) (Catalogue, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Catalogue{}, fmt.Errorf("read games file: %w", err)
	}
	return ParseCatalogue(b)
}

func ParseCatalogue(b []byte) (Catalogue, error) {
	var c Catalogue
	if err := yaml.Unmarshal(b, &c); err != nil {
		return Catalogue{}, fmt.Errorf("parse games file: %w", err)
	}
	if err := c.normalize(); err != nil {
		return Catalogue{}, err
	}
	return c, nil
}

// DefaultCatalogue cobre os quatro jogos em todos os modos com margem de 5s
func DefaultCatalogue() Catalogue {
	c := Catalogue{StaleAfter: 3 * time.Second}
	for _, g := range []string{"wingo", "k3", "racing", "5d"} {
		gc := GameConfig{Name: g}
		for _, m := range events.Modes() {
			gc.Modes = append(gc.Modes, ModeConfig{Mode: m, AdmissionMargin: 5, ClosingThreshold: 5})
		}
		c.Games = append(c.Games, gc)
	}
	return c
}

func (c *Catalogue) normalize() error {
	if c.StaleAfter <= 0 {
		c.StaleAfter = 3 * time.Second
	}
	for gi := range c.Games {
		g := &c.Games[gi]
		for mi := range g.Modes {
			m := &g.Modes[mi]
			if _, err := events.ParseMode(string(m.Mode)); err != nil {
				return fmt.Errorf("game %s: %w", g.Name, err)
			}
			if m.AdmissionMargin < MinAdmissionMargin || m.AdmissionMargin > MaxAdmissionMargin {
				return fmt.Errorf("game %s mode %s: admission_margin %d outside [%d,%d]",
					g.Name, m.Mode, m.AdmissionMargin, MinAdmissionMargin, MaxAdmissionMargin)
			}
			if m.AdmissionMargin >= m.Mode.Seconds() {
				return fmt.Errorf("game %s mode %s: admission_margin must be shorter than the cycle", g.Name, m.Mode)
			}
			if m.ClosingThreshold == 0 {
				m.ClosingThreshold = m.AdmissionMargin
			}
		}
	}
	return nil
}

// Mode retorna a configuração de (jogo, modo)
func (c Catalogue) Mode(game string, mode events.Mode) (ModeConfig, error) {
	for _, g := range c.Games {
		if g.Name != game {
			continue
		}
		for _, m := range g.Modes {
			if m.Mode == mode {
				return m, nil
			}
		}
	}
	return ModeConfig{}, fmt.Errorf("%w: %s/%s", ErrModeNotConfigured, game, mode)
}

// Game retorna todos os modos configurados de um jogo
func (c Catalogue) Game(game string) (GameConfig, error) {
	for _, g := range c.Games {
		if g.Name == game {
			return g, nil
		}
	}
	return GameConfig{}, fmt.Errorf("%w: %s", ErrModeNotConfigured, game)
}
