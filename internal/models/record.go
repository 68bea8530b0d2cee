package models

import (
	"fmt"
	"time"
)

// DateLayout is the wire and storage format of a record date.
const DateLayout = "2006-01-02"

// RecordType distinguishes income from expense entries.
type RecordType string

const (
	Income  RecordType = "income"
	Expense RecordType = "expense"
)

// ParseRecordType validates a form value.
func ParseRecordType(s string) (RecordType, error) {
	switch RecordType(s) {
	case Income, Expense:
		return RecordType(s), nil
	}
	return "", fmt.Errorf("invalid record type %q", s)
}

// Record is a single income or expense ledger entry owned by one user.
type Record struct {
	ID       int64      `json:"id"`
	UserID   int64      `json:"user_id"`
	Date     time.Time  `json:"date"`
	Category string     `json:"category"`
	Amount   int64      `json:"amount"`
	Type     RecordType `json:"type"`
}

// User represents a user account.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}
