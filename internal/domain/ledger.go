// Package domain — payment ledger types.
// Every payment operation creates matched DEBIT/CREDIT entries.
// SUM(debits) == SUM(credits) is an invariant.
package domain

import "time"

// TxType categorizes a ledger transaction.
type TxType string

const (
	TxPay     TxType = "PAY"     // Requester side: paying for an accepted result
	TxCollect TxType = "COLLECT" // Computing side: collecting an awarded reward
)

// EntryType marks which side of the double entry a row is.
type EntryType string

const (
	EntryDebit  EntryType = "DEBIT"
	EntryCredit EntryType = "CREDIT"
)

// LedgerEntry is a single row of the double-entry payment ledger.
type LedgerEntry struct {
	ID          int64     `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	Type        TxType    `json:"type"`
	EntryType   EntryType `json:"entry_type"`
	Account     string    `json:"account"`
	Amount      int64     `json:"amount"`
	SubtaskID   string    `json:"subtask_id,omitempty"`
	PeerID      string    `json:"peer_id,omitempty"`
	Description string    `json:"description,omitempty"`
	Balance     int64     `json:"balance"`
}
