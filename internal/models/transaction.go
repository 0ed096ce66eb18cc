package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType represents the type of transaction
type TransactionType string

const (
	TransactionTypeIncome   TransactionType = "income"
	TransactionTypeExpense  TransactionType = "expense"
	TransactionTypeTransfer TransactionType = "transfer"
)

// Valid reports whether t is a known transaction type.
func (t TransactionType) Valid() bool {
	switch t {
	case TransactionTypeIncome, TransactionTypeExpense, TransactionTypeTransfer:
		return true
	}
	return false
}

// Transaction represents a financial transaction. Creating one posts its
// amount to one account (income/expense) or two accounts (transfer).
type Transaction struct {
	Base
	UserID              string          `gorm:"type:uuid;not null;index:idx_transactions_user_date;index:idx_transactions_user_type;index:idx_transactions_user_category" json:"user_id"`
	AccountID           string          `gorm:"type:uuid;not null;index" json:"account_id"`
	CategoryID          *string         `gorm:"type:uuid;index:idx_transactions_user_category" json:"category_id,omitempty"`
	TransferToAccountID *string         `gorm:"type:uuid" json:"transfer_to_account_id,omitempty"`
	Type                TransactionType `gorm:"size:10;not null;index:idx_transactions_user_type" json:"type"`
	Amount              decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"amount"`
	Description         string          `gorm:"size:255;not null" json:"description"`
	Date                time.Time       `gorm:"not null;index:idx_transactions_user_date" json:"date"`
	Notes               string          `json:"notes"`
	Tags                string          `gorm:"size:255" json:"tags"`

	Account           *Account  `gorm:"foreignKey:AccountID" json:"account,omitempty"`
	TransferToAccount *Account  `gorm:"foreignKey:TransferToAccountID" json:"transfer_to_account,omitempty"`
	Category          *Category `gorm:"foreignKey:CategoryID" json:"category,omitempty"`
}
