package engine

import (
	"github.com/shopspring/decimal"

	"github.com/radieske/fastround-platform/pkg/contracts/events"
)

type NoticeKind int

const (
	NoticeOutcome NoticeKind = iota
	NoticeRejected
	NoticeLocalRejection
)

func (k NoticeKind) String() string {
	switch k {
	case NoticeOutcome:
		return "outcome"
	case NoticeRejected:
		return "rejected"
	default:
		return "local_rejection"
	}
}

// Notice é o aviso entregue à UI (toasts): resultado, rejeição do servidor ou recusa local
type Notice struct {
	Kind    NoticeKind
	Mode    events.Mode
	RoundID string
	WagerID string
	Won     bool
	Stake   decimal.Decimal
	Payout  decimal.Decimal
	Reason  string
	Err     error
}

// Hooks recebe callbacks de métricas; campos nil são ignorados
type Hooks struct {
	OnTick           func(mode events.Mode)
	OnRollover       func(mode events.Mode)
	OnSubmitted      func(mode events.Mode)
	OnLocalRejection func(reason string)
	OnServerRejected func()
	OnSettled        func(won bool)
	OnDuplicate      func(kind string) // "result" | "rejection"
	OnDecodeError    func()
}
