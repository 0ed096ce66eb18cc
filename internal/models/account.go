package models

import "github.com/shopspring/decimal"

// AccountType represents the type of account
type AccountType string

const (
	AccountTypeChecking   AccountType = "checking"
	AccountTypeSavings    AccountType = "savings"
	AccountTypeCredit     AccountType = "credit"
	AccountTypeCash       AccountType = "cash"
	AccountTypeInvestment AccountType = "investment"
)

// Valid reports whether t is a known account type.
func (t AccountType) Valid() bool {
	switch t {
	case AccountTypeChecking, AccountTypeSavings, AccountTypeCredit, AccountTypeCash, AccountTypeInvestment:
		return true
	}
	return false
}

// Account represents a financial account. Balance is derived state: it only
// moves through transaction posting or an explicit balance adjustment.
type Account struct {
	Base
	UserID   string          `gorm:"type:uuid;not null;uniqueIndex:idx_accounts_user_name" json:"user_id"`
	Name     string          `gorm:"size:100;not null;uniqueIndex:idx_accounts_user_name" json:"name"`
	Type     AccountType     `gorm:"size:20;not null" json:"type"`
	Balance  decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"balance"`
	IsActive bool            `gorm:"not null;default:true" json:"is_active"`

	// Populated by list queries only.
	TransactionCount int64 `gorm:"-" json:"transaction_count"`
}
