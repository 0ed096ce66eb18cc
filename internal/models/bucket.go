package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// BudgetBucket is a named savings/spending target holding a running balance
// that is separate from account balances.
type BudgetBucket struct {
	Base
	UserID             string          `gorm:"type:uuid;not null;index" json:"user_id"`
	Name               string          `gorm:"size:64;not null" json:"name"`
	MonthlyTarget      decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"monthly_target"`
	CurrentBalance     decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"current_balance"`
	UnallocatedBalance decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"unallocated_balance"`
	Color              string          `gorm:"size:16;not null;default:'#3b82f6'" json:"color"`
}

// Paycheck is an amount of income to be split across buckets.
type Paycheck struct {
	Base
	UserID      string          `gorm:"type:uuid;not null;index" json:"user_id"`
	Amount      decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"amount"`
	Date        time.Time       `gorm:"type:date;not null" json:"date"`
	Memo        string          `gorm:"size:128" json:"memo"`
	Allocations []Allocation    `gorm:"foreignKey:PaycheckID;constraint:OnDelete:CASCADE" json:"allocations"`
}

// Allocation links a portion of one paycheck to one bucket. Rows are only
// written by the allocate operation and never updated.
type Allocation struct {
	Base
	PaycheckID string          `gorm:"type:uuid;not null;index" json:"paycheck_id"`
	BucketID   string          `gorm:"type:uuid;not null;index" json:"bucket_id"`
	Amount     decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"amount"`

	Bucket *BudgetBucket `gorm:"foreignKey:BucketID;constraint:OnDelete:CASCADE" json:"bucket,omitempty"`
}
