package models

// CategoryType represents the type of category
type CategoryType string

const (
	CategoryTypeIncome  CategoryType = "income"
	CategoryTypeExpense CategoryType = "expense"
)

// Valid reports whether t is a known category type.
func (t CategoryType) Valid() bool {
	return t == CategoryTypeIncome || t == CategoryTypeExpense
}

// Category represents a transaction category. (user, name, type) is unique.
type Category struct {
	Base
	UserID    string       `gorm:"type:uuid;not null;uniqueIndex:idx_categories_user_name_type" json:"user_id"`
	Name      string       `gorm:"size:100;not null;uniqueIndex:idx_categories_user_name_type" json:"name"`
	Type      CategoryType `gorm:"size:10;not null;uniqueIndex:idx_categories_user_name_type" json:"type"`
	Color     string       `gorm:"size:7;not null;default:'#3B82F6'" json:"color"`
	Icon      string       `gorm:"size:50;not null;default:'circle'" json:"icon"`
	IsDefault bool         `gorm:"not null;default:false" json:"is_default"`

	TransactionCount int64 `gorm:"-" json:"transaction_count"`
}
