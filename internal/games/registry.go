package games

import "fmt"

var registry = map[string]Variant{}

func init() {
	for _, v := range []Variant{NewWingo(), NewK3(), NewRacing(), NewFiveD()} {
		registry[v.Name()] = v
	}
}

// Lookup retorna a estratégia registrada para o nome do jogo
func Lookup(name string) (Variant, error) {
	v, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownGame, name)
	}
	return v, nil
}

// Names lista os jogos registrados
func Names() []string {
	return []string{"wingo", "k3", "racing", "5d"}
}
