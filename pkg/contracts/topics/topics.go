package topics

const (
	// Apostas
	BetPlaced   = "bet_placed"
	BetRejected = "bet_rejected"

	// Rodadas
	RoundSettled = "round_settled"

	// DLQ
	RoundSettledDLQ = "round_settled_dlq"
)
