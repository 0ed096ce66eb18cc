package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"tally/internal/models"
)

// counter provides unique values across fixtures within a test run.
var counter atomic.Int64

func nextID() int64 {
	return counter.Add(1)
}

// TestPassword is the plain-text password of every fixture user.
const TestPassword = "password123"

// CreateTestUser creates a user with a hashed password and unique email.
func CreateTestUser(t *testing.T, db *gorm.DB) *models.User {
	t.Helper()
	email := fmt.Sprintf("user%d@test.com", nextID())
	return CreateTestUserWithEmail(t, db, email)
}

// CreateTestUserWithEmail creates a user with the given email.
func CreateTestUserWithEmail(t *testing.T, db *gorm.DB, email string) *models.User {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(TestPassword), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}

	user := &models.User{
		Email:    email,
		Password: string(hash),
		Currency: "USD",
		Timezone: "UTC",
		IsActive: true,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	return user
}

// CreateTestAccount creates a checking account with zero balance.
func CreateTestAccount(t *testing.T, db *gorm.DB, userID string) *models.Account {
	t.Helper()
	return CreateTestAccountWithBalance(t, db, userID, "0")
}

// CreateTestAccountWithBalance creates a checking account with the given
// balance. No transaction backs the balance.
func CreateTestAccountWithBalance(t *testing.T, db *gorm.DB, userID, balance string) *models.Account {
	t.Helper()

	account := &models.Account{
		UserID:   userID,
		Name:     fmt.Sprintf("Test Account %d", nextID()),
		Type:     models.AccountTypeChecking,
		Balance:  Dec(balance),
		IsActive: true,
	}
	if err := db.Create(account).Error; err != nil {
		t.Fatalf("failed to create test account: %v", err)
	}
	return account
}

// CreateTestCategory creates a category of the given type.
func CreateTestCategory(t *testing.T, db *gorm.DB, userID string, categoryType models.CategoryType) *models.Category {
	t.Helper()

	category := &models.Category{
		UserID: userID,
		Name:   fmt.Sprintf("Test Category %d", nextID()),
		Type:   categoryType,
		Color:  "#3B82F6",
		Icon:   "circle",
	}
	if err := db.Create(category).Error; err != nil {
		t.Fatalf("failed to create test category: %v", err)
	}
	return category
}

// CreateTestTransaction inserts a transaction row without touching any
// account balance.
func CreateTestTransaction(t *testing.T, db *gorm.DB, userID, accountID string, categoryID *string, txType models.TransactionType, amount string) *models.Transaction {
	t.Helper()

	tx := &models.Transaction{
		UserID:      userID,
		AccountID:   accountID,
		CategoryID:  categoryID,
		Type:        txType,
		Amount:      Dec(amount),
		Description: fmt.Sprintf("Test Transaction %d", nextID()),
		Date:        time.Now().UTC(),
	}
	if err := db.Create(tx).Error; err != nil {
		t.Fatalf("failed to create test transaction: %v", err)
	}
	return tx
}

// CreateTestBucket creates a bucket holding the given balance.
func CreateTestBucket(t *testing.T, db *gorm.DB, userID, balance string) *models.BudgetBucket {
	t.Helper()

	bucket := &models.BudgetBucket{
		UserID:         userID,
		Name:           fmt.Sprintf("Test Bucket %d", nextID()),
		MonthlyTarget:  Dec("100"),
		CurrentBalance: Dec(balance),
		Color:          "#3b82f6",
	}
	if err := db.Create(bucket).Error; err != nil {
		t.Fatalf("failed to create test bucket: %v", err)
	}
	return bucket
}

// CreateTestPaycheck creates a paycheck dated today.
func CreateTestPaycheck(t *testing.T, db *gorm.DB, userID, amount string) *models.Paycheck {
	t.Helper()

	now := time.Now().UTC()
	paycheck := &models.Paycheck{
		UserID: userID,
		Amount: Dec(amount),
		Date:   time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC),
		Memo:   fmt.Sprintf("Test Paycheck %d", nextID()),
	}
	if err := db.Create(paycheck).Error; err != nil {
		t.Fatalf("failed to create test paycheck: %v", err)
	}
	return paycheck
}

// ReloadAccount reads an account's current state.
func ReloadAccount(t *testing.T, db *gorm.DB, id string) *models.Account {
	t.Helper()

	var account models.Account
	if err := db.Where("id = ?", id).First(&account).Error; err != nil {
		t.Fatalf("failed to reload account: %v", err)
	}
	return &account
}

// ReloadBucket reads a bucket's current state.
func ReloadBucket(t *testing.T, db *gorm.DB, id string) *models.BudgetBucket {
	t.Helper()

	var bucket models.BudgetBucket
	if err := db.Where("id = ?", id).First(&bucket).Error; err != nil {
		t.Fatalf("failed to reload bucket: %v", err)
	}
	return &bucket
}
