package services

import (
	"time"

	"github.com/shopspring/decimal"

	"tally/internal/models"
	"tally/internal/pagination"
)

// UserServicer defines the contract for user-related business logic.
type UserServicer interface {
	CreateUser(in CreateUserInput) (*models.User, error)
	GetUserByEmail(email string) (*models.User, error)
	GetUserByID(id string) (*models.User, error)
	VerifyPassword(user *models.User, password string) bool
	AttemptLogin(email, password string) (*models.User, error)
	StoreRefreshTokenHash(userID, tokenHash string) error
	GetRefreshTokenHash(userID string) (string, error)
	UpdateProfile(userID string, fields ProfileUpdateFields) (*models.User, error)
	DeleteUser(userID string) error
}

// CreateUserInput carries the registration fields.
type CreateUserInput struct {
	Email     string
	Password  string
	Username  string
	FirstName string
	LastName  string
	Currency  string
	Timezone  string
}

// ProfileUpdateFields holds the optional profile fields. Nil means unchanged.
type ProfileUpdateFields struct {
	FirstName *string
	LastName  *string
	Currency  *string
	Timezone  *string
}

// AccountFilter holds optional filters for listing accounts.
type AccountFilter struct {
	Type     *models.AccountType
	IsActive *bool
	Search   string
}

// AccountUpdateFields holds the optional account fields. Balance is never updatable.
type AccountUpdateFields struct {
	Name     *string
	Type     *models.AccountType
	IsActive *bool
}

// BalanceAdjustment is the result of adjusting an account balance.
type BalanceAdjustment struct {
	Message     string              `json:"message"`
	NewBalance  decimal.Decimal     `json:"new_balance"`
	Transaction *models.Transaction `json:"transaction"`
}

// AccountServicer defines the contract for account-related business logic.
type AccountServicer interface {
	CreateAccount(userID, name string, accountType models.AccountType, initialBalance decimal.Decimal) (*models.Account, error)
	GetUserAccounts(userID string, page pagination.PageRequest, filter AccountFilter) (*pagination.PageResponse[models.Account], error)
	GetAccountByID(userID, accountID string) (*models.Account, error)
	UpdateAccount(userID, accountID string, fields AccountUpdateFields) (*models.Account, error)
	DeleteAccount(userID, accountID string) error
	AdjustBalance(userID, accountID string, amount decimal.Decimal, reason string) (*BalanceAdjustment, error)
}

// CategoryFilter holds optional filters for listing categories.
type CategoryFilter struct {
	Type   *models.CategoryType
	Search string
}

// CategoryUpdateFields holds the optional category fields.
type CategoryUpdateFields struct {
	Name  *string
	Type  *models.CategoryType
	Color *string
	Icon  *string
}

// CategoriesByType groups a user's categories by type.
type CategoriesByType struct {
	Income  []models.Category `json:"income"`
	Expense []models.Category `json:"expense"`
}

// CategoryServicer defines the contract for category-related business logic.
type CategoryServicer interface {
	CreateDefaultCategories(userID string) error
	CreateCategory(userID, name string, categoryType models.CategoryType, color, icon string) (*models.Category, error)
	GetUserCategories(userID string, page pagination.PageRequest, filter CategoryFilter) (*pagination.PageResponse[models.Category], error)
	GetCategoriesByType(userID string) (*CategoriesByType, error)
	GetCategoryByID(userID, categoryID string) (*models.Category, error)
	UpdateCategory(userID, categoryID string, fields CategoryUpdateFields) (*models.Category, error)
	DeleteCategory(userID, categoryID string) error
}

// TransactionFilter holds optional filter parameters for listing transactions.
type TransactionFilter struct {
	FromDate   *time.Time
	ToDate     *time.Time
	Type       *models.TransactionType
	CategoryID *string
	AccountID  *string
	Search     string
	Ordering   string
}

// TransactionInput carries the fields of a new or replacement transaction.
type TransactionInput struct {
	AccountID           string
	CategoryID          *string
	TransferToAccountID *string
	Type                models.TransactionType
	Amount              decimal.Decimal
	Description         string
	Date                time.Time
	Notes               string
	Tags                string
}

// CategoryTotal is one row of a per-category spending breakdown.
type CategoryTotal struct {
	CategoryName  string          `json:"category_name"`
	CategoryColor string          `json:"category_color"`
	Total         decimal.Decimal `json:"total"`
	Count         int64           `json:"count"`
}

// TransactionSummary reports the current month in the user's timezone.
type TransactionSummary struct {
	TotalIncome        decimal.Decimal      `json:"total_income"`
	TotalExpenses      decimal.Decimal      `json:"total_expenses"`
	NetAmount          decimal.Decimal      `json:"net_amount"`
	TransactionCount   int64                `json:"transaction_count"`
	TopCategories      []CategoryTotal      `json:"top_categories"`
	RecentTransactions []models.Transaction `json:"recent_transactions"`
}

// MonthlyTrend is one month of income and expense totals.
type MonthlyTrend struct {
	Month    string          `json:"month"`
	Income   decimal.Decimal `json:"income"`
	Expenses decimal.Decimal `json:"expenses"`
	Net      decimal.Decimal `json:"net"`
}

// TransactionAnalytics holds the yearly trend and category breakdown.
type TransactionAnalytics struct {
	MonthlyTrends     []MonthlyTrend  `json:"monthly_trends"`
	CategoryBreakdown []CategoryTotal `json:"category_breakdown"`
}

// BulkError reports why one bulk item was rejected.
type BulkError struct {
	Index int    `json:"index"`
	Error string `json:"error"`
}

// BulkResult is the outcome of a bulk create.
type BulkResult struct {
	Created      []models.Transaction `json:"created"`
	Errors       []BulkError          `json:"errors"`
	SuccessCount int                  `json:"success_count"`
	ErrorCount   int                  `json:"error_count"`
}

// TransactionServicer defines the contract for transaction-related business logic.
type TransactionServicer interface {
	CreateTransaction(userID string, in TransactionInput) (*models.Transaction, error)
	GetUserTransactions(userID string, page pagination.PageRequest, filter TransactionFilter) (*pagination.PageResponse[models.Transaction], error)
	GetAccountTransactions(userID, accountID string, page pagination.PageRequest, filter TransactionFilter) (*pagination.PageResponse[models.Transaction], error)
	GetTransactionByID(userID, transactionID string) (*models.Transaction, error)
	UpdateTransaction(userID, transactionID string, in TransactionInput) (*models.Transaction, error)
	DeleteTransaction(userID, transactionID string) error
	GetSummary(userID string) (*TransactionSummary, error)
	GetAnalytics(userID string) (*TransactionAnalytics, error)
	BulkCreate(userID string, items []TransactionInput) *BulkResult
}

// BucketUpdateFields holds the optional bucket fields. CurrentBalance is never updatable.
type BucketUpdateFields struct {
	Name          *string
	MonthlyTarget *decimal.Decimal
	Color         *string
}

// BucketDirection selects whether AllocateMoney adds to or removes from a bucket.
type BucketDirection string

const (
	BucketDirectionAdd    BucketDirection = "add"
	BucketDirectionRemove BucketDirection = "remove"
)

// BucketMovement is the result of moving money in or out of a bucket.
type BucketMovement struct {
	Message    string          `json:"message"`
	NewBalance decimal.Decimal `json:"new_balance"`
}

// BucketDeletion is the result of deleting a bucket.
type BucketDeletion struct {
	Message        string          `json:"message"`
	ReturnedAmount decimal.Decimal `json:"returned_amount"`
}

// BucketSummary describes the user's unallocated pool.
type BucketSummary struct {
	TotalIncome    decimal.Decimal `json:"total_income"`
	TotalAllocated decimal.Decimal `json:"total_allocated"`
	Unallocated    decimal.Decimal `json:"unallocated"`
}

// BucketServicer defines the contract for bucket lifecycle operations.
type BucketServicer interface {
	CreateBucket(userID, name string, monthlyTarget decimal.Decimal, color string) (*models.BudgetBucket, error)
	GetUserBuckets(userID string, page pagination.PageRequest) (*pagination.PageResponse[models.BudgetBucket], error)
	GetBucketByID(userID, bucketID string) (*models.BudgetBucket, error)
	UpdateBucket(userID, bucketID string, fields BucketUpdateFields) (*models.BudgetBucket, error)
	AllocateMoney(userID, bucketID string, amount decimal.Decimal, direction BucketDirection) (*BucketMovement, error)
	DeleteBucket(userID, bucketID string) (*BucketDeletion, error)
	GetSummary(userID string) (*BucketSummary, error)
	GetIncomeTransactions(userID string, page pagination.PageRequest) (*pagination.PageResponse[models.Transaction], error)
}

// AllocationEntry asks for part of a paycheck to go to one bucket.
type AllocationEntry struct {
	BucketID string          `json:"bucket_id"`
	Amount   decimal.Decimal `json:"amount"`
}

// AllocationResult lists the entries that were applied, in input order.
type AllocationResult struct {
	OK      bool              `json:"ok"`
	Applied []AllocationEntry `json:"applied"`
}

// PaycheckDetail is a paycheck with its allocation totals.
type PaycheckDetail struct {
	models.Paycheck
	Allocated decimal.Decimal `json:"allocated"`
	Remaining decimal.Decimal `json:"remaining"`
}

// PaycheckUpdateFields holds the optional paycheck fields.
type PaycheckUpdateFields struct {
	Amount *decimal.Decimal
	Date   *time.Time
	Memo   *string
}

// PaycheckServicer defines the contract for paychecks and the budget allocator.
type PaycheckServicer interface {
	CreatePaycheck(userID string, amount decimal.Decimal, date time.Time, memo string) (*models.Paycheck, error)
	GetUserPaychecks(userID string, page pagination.PageRequest) (*pagination.PageResponse[models.Paycheck], error)
	GetPaycheckByID(userID, paycheckID string) (*PaycheckDetail, error)
	UpdatePaycheck(userID, paycheckID string, fields PaycheckUpdateFields) (*models.Paycheck, error)
	DeletePaycheck(userID, paycheckID string) error
	Allocate(userID, paycheckID string, entries []AllocationEntry) (*AllocationResult, error)
}

// AuditServicer defines the contract for audit logging.
type AuditServicer interface {
	Log(userID, action, resourceType, resourceID, ipAddress string, changes map[string]interface{})
}
