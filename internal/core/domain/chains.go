package domain

// Pairing names the protocol deployment a chain context belongs to.
type Pairing string

const (
	PairingOld Pairing = "old"
	PairingNew Pairing = "new"
)
