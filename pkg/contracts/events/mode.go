package events

import (
	"fmt"
	"time"
)

// Mode é a duração do ciclo de um jogo; cada modo roda um relógio independente
type Mode string

const (
	Mode30s Mode = "30s"
	Mode1m  Mode = "1m"
	Mode3m  Mode = "3m"
	Mode5m  Mode = "5m"
)

var modeDurations = map[Mode]time.Duration{
	Mode30s: 30 * time.Second,
	Mode1m:  time.Minute,
	Mode3m:  3 * time.Minute,
	Mode5m:  5 * time.Minute,
}

// Modes lista os modos suportados em ordem crescente de duração
func Modes() []Mode { return []Mode{Mode30s, Mode1m, Mode3m, Mode5m} }

// ParseMode valida uma string vinda de config, query string ou frame
func ParseMode(s string) (Mode, error) {
	m := Mode(s)
	if _, ok := modeDurations[m]; !ok {
		return "", fmt.Errorf("unknown mode %q", s)
	}
	return m, nil
}

// Duration retorna a duração do ciclo (0 para modo inválido)
func (m Mode) Duration() time.Duration { return modeDurations[m] }

// Seconds retorna a duração do ciclo em segundos inteiros
func (m Mode) Seconds() int { return int(modeDurations[m] / time.Second) }
