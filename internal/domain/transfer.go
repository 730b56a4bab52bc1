package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Direction is the sign of a tracked-token balance change.
type Direction string

const (
	DirectionReceive Direction = "receive"
	DirectionSend    Direction = "send"

	// DirectionNone marks a signature that was examined without producing a transfer.
	DirectionNone Direction = ""
)

// String returns the string representation of Direction.
func (d Direction) String() string {
	return string(d)
}

// IsValid checks if the direction is receive or send.
func (d Direction) IsValid() bool {
	return d == DirectionReceive || d == DirectionSend
}

// TransferEvent is a single balance change of the tracked token for one account index
// of a transaction. It is never persisted as its own row in PostgreSQL.
type TransferEvent struct {
	WalletAddress string          // tracked wallet whose signature list produced the event
	Signature     string          // transaction signature
	AccountIndex  int             // account index inside the transaction
	Owner         string          // token account owner, empty if the ledger did not report it
	Direction     Direction       // receive | send
	Amount        decimal.Decimal // absolute balance delta, >= dust threshold
	Slot          int64           // Solana slot number
	BlockTime     int64           // Unix timestamp in seconds, 0 if unknown
}

// ProcessedSignature is the append-only record of a signature the engine has examined.
// Corresponds to transactions table in PostgreSQL. Signature is unique.
type ProcessedSignature struct {
	Signature     string
	WalletAddress string
	Direction     Direction       // DirectionNone when the signature produced no transfer
	Amount        decimal.Decimal // zero when Direction is DirectionNone
	ObservedAt    time.Time
}

// HasTransfer reports whether the signature produced at least one transfer event.
func (p *ProcessedSignature) HasTransfer() bool {
	return p.Direction.IsValid()
}

// TransferSummary aggregates archived transfers of one wallet.
type TransferSummary struct {
	WalletAddress string
	Received      decimal.Decimal
	Sent          decimal.Decimal
	ReceiveCount  int
	SendCount     int
}

// Net returns received minus sent.
func (s *TransferSummary) Net() decimal.Decimal {
	return s.Received.Sub(s.Sent)
}
