package events

import (
	"encoding/json"
	"fmt"
)

// Type identifica o tipo de mensagem trafegada no canal de push
type Type string

const (
	// servidor -> cliente
	TypeTimerTick     Type = "timerTick"
	TypeRoundResult   Type = "roundResult"
	TypeBetRejected   Type = "betRejected"
	TypeRoundSnapshot Type = "currentRoundSnapshot"
	TypePong          Type = "pong"

	// cliente -> servidor
	TypeJoinMode  Type = "joinMode"
	TypeLeaveMode Type = "leaveMode"
	TypePlaceBet  Type = "placeBet"
	TypePing      Type = "ping"
)

// Envelope é o formato de todas as mensagens do websocket: {"type": ..., "data": {...}}
type Envelope struct {
	Type Type            `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Encode serializa o payload dentro de um envelope
func Encode(t Type, v any) ([]byte, error) {
	var raw json.RawMessage
	if v != nil {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("marshal %s: %w", t, err)
		}
		raw = b
	}
	return json.Marshal(Envelope{Type: t, Data: raw})
}

// Decode converte o Data do envelope no struct correspondente ao Type.
// Tipos desconhecidos retornam (nil, nil).
func (e Envelope) Decode() (any, error) {
	var dst any
	switch e.Type {
	case TypeTimerTick:
		dst = &TimerTick{}
	case TypeRoundResult:
		dst = &RoundResult{}
	case TypeBetRejected:
		dst = &BetRejected{}
	case TypeRoundSnapshot:
		dst = &RoundSnapshot{}
	case TypeJoinMode:
		dst = &JoinMode{}
	case TypeLeaveMode:
		dst = &LeaveMode{}
	case TypePlaceBet:
		dst = &PlaceBet{}
	case TypePing, TypePong:
		return nil, nil
	default:
		return nil, nil
	}
	if len(e.Data) == 0 {
		return nil, fmt.Errorf("%s: empty data", e.Type)
	}
	if err := json.Unmarshal(e.Data, dst); err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", e.Type, err)
	}
	return dst, nil
}
