// Package domain defines the core interfaces and types for Shikra.
package domain

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrInvalidTransaction indicates a candidate transaction that fails boundary
// validation. Scoring never runs on invalid input.
var ErrInvalidTransaction = errors.New("invalid transaction input")

// TransactionType identifies the direction of a transaction.
type TransactionType string

const (
	TypeCredit TransactionType = "CREDIT"
	TypeDebit  TransactionType = "DEBIT"
)

// Transaction is a candidate transaction submitted for risk assessment.
// It has not been committed to any ledger; the caller decides whether to
// proceed based on the returned assessment.
type Transaction struct {
	Type TransactionType `json:"type"`

	// Amount in base currency units. Must be positive and finite.
	Amount float64 `json:"amount"`

	// Recipient is an opaque identifier, empty for self-service
	// transactions (e.g. airtime top-up).
	Recipient string `json:"recipient,omitempty"`

	Description string `json:"description,omitempty"`
	Platform    string `json:"platform,omitempty"`
}

// Validate rejects malformed input before it reaches the scorers.
// All failures wrap ErrInvalidTransaction.
func (t *Transaction) Validate() error {
	if t.Type != TypeCredit && t.Type != TypeDebit {
		return fmt.Errorf("%w: type must be CREDIT or DEBIT, got %q", ErrInvalidTransaction, t.Type)
	}
	if math.IsNaN(t.Amount) || math.IsInf(t.Amount, 0) {
		return fmt.Errorf("%w: amount must be a finite number", ErrInvalidTransaction)
	}
	if t.Amount <= 0 {
		return fmt.Errorf("%w: amount must be positive, got %g", ErrInvalidTransaction, t.Amount)
	}
	return nil
}

// HistoricalTransaction is a committed entry in a user's risk history,
// recorded after the transaction has been assessed.
type HistoricalTransaction struct {
	Amount    float64         `json:"amount"`
	Type      TransactionType `json:"type"`
	Recipient string          `json:"recipient,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	RiskScore int             `json:"riskScore"`
}
