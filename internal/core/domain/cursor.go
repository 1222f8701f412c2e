package domain

import "time"

// Cursor is the detector's position in the anchor chain.
// LastProcessed is nil until the first poll derives it from the chain head.
type Cursor struct {
	LastProcessed *uint64
	UpdatedAt     time.Time
	State         CursorState
}

type CursorState string

const (
	CursorStateUninitialized CursorState = "uninitialized"
	CursorStateInitializing  CursorState = "initializing"
	CursorStatePolling       CursorState = "polling"
	CursorStateCatchingUp    CursorState = "catching_up"
	CursorStateShuttingDown  CursorState = "shutting_down"
)
