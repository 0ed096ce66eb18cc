package services

import (
	"testing"
	"time"

	"tally/internal/models"
	"tally/internal/pagination"
	"tally/internal/testutil"
)

func TestCreateAccount(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewAccountService(db)
		user := testutil.CreateTestUser(t, db)

		account, err := svc.CreateAccount(user.ID, "Everyday", models.AccountTypeChecking, testutil.Dec("0"))
		testutil.AssertNoError(t, err)

		if account.ID == "" {
			t.Fatal("expected account ID to be set")
		}
		if account.Type != models.AccountTypeChecking {
			t.Errorf("expected type checking, got %s", account.Type)
		}
		testutil.AssertDecimal(t, "balance", account.Balance, "0")
		if !account.IsActive {
			t.Error("expected account to be active")
		}

		var txCount int64
		db.Model(&models.Transaction{}).Where("account_id = ?", account.ID).Count(&txCount)
		if txCount != 0 {
			t.Errorf("expected no transactions, got %d", txCount)
		}
	})

	t.Run("with_initial_balance", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewAccountService(db)
		user := testutil.CreateTestUser(t, db)

		account, err := svc.CreateAccount(user.ID, "Savings", models.AccountTypeSavings, testutil.Dec("250.75"))
		testutil.AssertNoError(t, err)
		testutil.AssertDecimal(t, "balance", account.Balance, "250.75")

		var tx models.Transaction
		if err := db.Where("account_id = ?", account.ID).First(&tx).Error; err != nil {
			t.Fatalf("expected initial balance transaction: %v", err)
		}
		if tx.Type != models.TransactionTypeIncome || tx.Description != "Initial balance" {
			t.Errorf("unexpected initial transaction: %s %q", tx.Type, tx.Description)
		}
	})

	t.Run("negative_initial_balance", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewAccountService(db)
		user := testutil.CreateTestUser(t, db)

		account, err := svc.CreateAccount(user.ID, "Card", models.AccountTypeCredit, testutil.Dec("-40"))
		testutil.AssertNoError(t, err)
		testutil.AssertDecimal(t, "balance", account.Balance, "-40")
	})

	t.Run("duplicate_name", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewAccountService(db)
		user := testutil.CreateTestUser(t, db)

		_, err := svc.CreateAccount(user.ID, "Wallet", models.AccountTypeCash, testutil.Dec("0"))
		testutil.AssertNoError(t, err)
		_, err = svc.CreateAccount(user.ID, "Wallet", models.AccountTypeCash, testutil.Dec("0"))
		testutil.AssertAppError(t, err, "DUPLICATE_ACCOUNT_NAME")
	})

	t.Run("invalid_input", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewAccountService(db)
		user := testutil.CreateTestUser(t, db)

		_, err := svc.CreateAccount(user.ID, "", models.AccountTypeCash, testutil.Dec("0"))
		testutil.AssertAppError(t, err, "INVALID_INPUT")

		_, err = svc.CreateAccount(user.ID, "Bad", models.AccountType("debt"), testutil.Dec("0"))
		testutil.AssertAppError(t, err, "INVALID_INPUT")

		_, err = svc.CreateAccount(user.ID, "Precise", models.AccountTypeCash, testutil.Dec("1.005"))
		testutil.AssertAppError(t, err, "INVALID_INPUT")
	})
}

func TestGetUserAccounts(t *testing.T) {
	t.Run("returns_user_accounts_only", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewAccountService(db)

		user1 := testutil.CreateTestUser(t, db)
		user2 := testutil.CreateTestUser(t, db)

		testutil.CreateTestAccount(t, db, user1.ID)
		testutil.CreateTestAccount(t, db, user1.ID)
		testutil.CreateTestAccount(t, db, user2.ID)

		result, err := svc.GetUserAccounts(user1.ID, pagination.PageRequest{Page: 1, PageSize: 20}, AccountFilter{})
		testutil.AssertNoError(t, err)

		if result.TotalItems != 2 {
			t.Errorf("expected 2 accounts for user1, got %d", result.TotalItems)
		}
	})

	t.Run("filters", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewAccountService(db)
		user := testutil.CreateTestUser(t, db)

		_, err := svc.CreateAccount(user.ID, "Main Checking", models.AccountTypeChecking, testutil.Dec("0"))
		testutil.AssertNoError(t, err)
		savings, err := svc.CreateAccount(user.ID, "Rainy Day", models.AccountTypeSavings, testutil.Dec("0"))
		testutil.AssertNoError(t, err)
		inactive := false
		_, err = svc.UpdateAccount(user.ID, savings.ID, AccountUpdateFields{IsActive: &inactive})
		testutil.AssertNoError(t, err)

		savingsType := models.AccountTypeSavings
		byType, err := svc.GetUserAccounts(user.ID, pagination.PageRequest{}, AccountFilter{Type: &savingsType})
		testutil.AssertNoError(t, err)
		if byType.TotalItems != 1 {
			t.Errorf("expected 1 savings account, got %d", byType.TotalItems)
		}

		active := true
		byActive, err := svc.GetUserAccounts(user.ID, pagination.PageRequest{}, AccountFilter{IsActive: &active})
		testutil.AssertNoError(t, err)
		if byActive.TotalItems != 1 || byActive.Data[0].Name != "Main Checking" {
			t.Errorf("expected only the active account, got %+v", byActive.Data)
		}

		bySearch, err := svc.GetUserAccounts(user.ID, pagination.PageRequest{}, AccountFilter{Search: "rainy"})
		testutil.AssertNoError(t, err)
		if bySearch.TotalItems != 1 {
			t.Errorf("expected 1 search hit, got %d", bySearch.TotalItems)
		}
	})

	t.Run("transaction_count", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewAccountService(db)
		user := testutil.CreateTestUser(t, db)
		account := testutil.CreateTestAccount(t, db, user.ID)
		category := testutil.CreateTestCategory(t, db, user.ID, models.CategoryTypeExpense)
		testutil.CreateTestTransaction(t, db, user.ID, account.ID, &category.ID, models.TransactionTypeExpense, "1")
		testutil.CreateTestTransaction(t, db, user.ID, account.ID, &category.ID, models.TransactionTypeExpense, "2")
		testutil.CreateTestTransaction(t, db, user.ID, account.ID, &category.ID, models.TransactionTypeExpense, "3")

		result, err := svc.GetUserAccounts(user.ID, pagination.PageRequest{}, AccountFilter{})
		testutil.AssertNoError(t, err)
		if result.Data[0].TransactionCount != 3 {
			t.Errorf("expected 3 transactions, got %d", result.Data[0].TransactionCount)
		}
	})
}

func TestGetAccountByID(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewAccountService(db)
		user := testutil.CreateTestUser(t, db)
		account := testutil.CreateTestAccount(t, db, user.ID)

		got, err := svc.GetAccountByID(user.ID, account.ID)
		testutil.AssertNoError(t, err)
		if got.ID != account.ID {
			t.Errorf("expected account %s, got %s", account.ID, got.ID)
		}
	})

	t.Run("other_users_account", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewAccountService(db)
		owner := testutil.CreateTestUser(t, db)
		intruder := testutil.CreateTestUser(t, db)
		account := testutil.CreateTestAccount(t, db, owner.ID)

		_, err := svc.GetAccountByID(intruder.ID, account.ID)
		testutil.AssertAppError(t, err, "ACCOUNT_NOT_FOUND")
	})
}

func TestUpdateAccount(t *testing.T) {
	t.Run("name_and_type", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewAccountService(db)
		user := testutil.CreateTestUser(t, db)
		account := testutil.CreateTestAccountWithBalance(t, db, user.ID, "10")

		name := "Renamed"
		accountType := models.AccountTypeSavings
		updated, err := svc.UpdateAccount(user.ID, account.ID, AccountUpdateFields{Name: &name, Type: &accountType})
		testutil.AssertNoError(t, err)

		if updated.Name != "Renamed" || updated.Type != models.AccountTypeSavings {
			t.Errorf("unexpected account after update: %+v", updated)
		}
		testutil.AssertDecimal(t, "balance", updated.Balance, "10")
	})

	t.Run("duplicate_name", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewAccountService(db)
		user := testutil.CreateTestUser(t, db)
		first := testutil.CreateTestAccount(t, db, user.ID)
		second := testutil.CreateTestAccount(t, db, user.ID)

		_, err := svc.UpdateAccount(user.ID, second.ID, AccountUpdateFields{Name: &first.Name})
		testutil.AssertAppError(t, err, "DUPLICATE_ACCOUNT_NAME")
	})

	t.Run("not_found", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewAccountService(db)
		user := testutil.CreateTestUser(t, db)

		name := "x"
		_, err := svc.UpdateAccount(user.ID, "0190f0a4-6b5e-7c3d-8e9f-0a1b2c3d4e5f", AccountUpdateFields{Name: &name})
		testutil.AssertAppError(t, err, "ACCOUNT_NOT_FOUND")
	})
}

func TestDeleteAccount(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)
	svc := NewAccountService(db)
	txSvc := NewTransactionService(db, svc, NewUserService(db))
	user := testutil.CreateTestUser(t, db)
	source := testutil.CreateTestAccountWithBalance(t, db, user.ID, "100")
	target := testutil.CreateTestAccount(t, db, user.ID)
	category := testutil.CreateTestCategory(t, db, user.ID, models.CategoryTypeExpense)

	_, err := txSvc.CreateTransaction(user.ID, TransactionInput{
		AccountID: target.ID, CategoryID: &category.ID, Type: models.TransactionTypeExpense,
		Amount: testutil.Dec("5"), Description: "coffee",
	})
	testutil.AssertNoError(t, err)
	transfer, err := txSvc.CreateTransaction(user.ID, TransactionInput{
		AccountID: source.ID, TransferToAccountID: &target.ID, Type: models.TransactionTypeTransfer,
		Amount: testutil.Dec("30"), Description: "move",
	})
	testutil.AssertNoError(t, err)

	testutil.AssertNoError(t, svc.DeleteAccount(user.ID, target.ID))

	var remaining int64
	db.Model(&models.Transaction{}).Where("account_id = ?", target.ID).Count(&remaining)
	if remaining != 0 {
		t.Errorf("expected the account's transactions to be deleted, %d left", remaining)
	}

	var kept models.Transaction
	if err := db.Where("id = ?", transfer.ID).First(&kept).Error; err != nil {
		t.Fatalf("transfer from the other account should remain: %v", err)
	}
	if kept.TransferToAccountID != nil {
		t.Errorf("expected transfer target to be cleared, got %v", *kept.TransferToAccountID)
	}
	testutil.AssertDecimal(t, "source balance", testutil.ReloadAccount(t, db, source.ID).Balance, "70")
}

func TestDeleteAccount_ReversesOutgoingTransfers(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)
	svc := NewAccountService(db)
	txSvc := NewTransactionService(db, svc, NewUserService(db))
	user := testutil.CreateTestUser(t, db)
	checking := testutil.CreateTestAccountWithBalance(t, db, user.ID, "500")
	savings := testutil.CreateTestAccountWithBalance(t, db, user.ID, "20")
	category := testutil.CreateTestCategory(t, db, user.ID, models.CategoryTypeIncome)

	_, err := txSvc.CreateTransaction(user.ID, TransactionInput{
		AccountID: checking.ID, TransferToAccountID: &savings.ID, Type: models.TransactionTypeTransfer,
		Amount: testutil.Dec("100"), Description: "to savings",
	})
	testutil.AssertNoError(t, err)
	_, err = txSvc.CreateTransaction(user.ID, TransactionInput{
		AccountID: checking.ID, CategoryID: &category.ID, Type: models.TransactionTypeIncome,
		Amount: testutil.Dec("40"), Description: "refund",
	})
	testutil.AssertNoError(t, err)
	testutil.AssertDecimal(t, "savings before", testutil.ReloadAccount(t, db, savings.ID).Balance, "120")

	testutil.AssertNoError(t, svc.DeleteAccount(user.ID, checking.ID))

	testutil.AssertDecimal(t, "savings after", testutil.ReloadAccount(t, db, savings.ID).Balance, "20")

	var touching int64
	db.Model(&models.Transaction{}).
		Where("account_id = ? OR transfer_to_account_id = ?", savings.ID, savings.ID).
		Count(&touching)
	if touching != 0 {
		t.Errorf("expected no transactions touching savings, got %d", touching)
	}
}

func TestAdjustBalance(t *testing.T) {
	t.Run("positive_creates_income", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewAccountService(db)
		user := testutil.CreateTestUser(t, db)
		account := testutil.CreateTestAccountWithBalance(t, db, user.ID, "100")

		result, err := svc.AdjustBalance(user.ID, account.ID, testutil.Dec("25.50"), "Found cash")
		testutil.AssertNoError(t, err)

		testutil.AssertDecimal(t, "new balance", result.NewBalance, "125.50")
		testutil.AssertDecimal(t, "stored balance", testutil.ReloadAccount(t, db, account.ID).Balance, "125.50")
		if result.Message != "Balance adjusted successfully" {
			t.Errorf("unexpected message %q", result.Message)
		}
		if result.Transaction.Type != models.TransactionTypeIncome {
			t.Errorf("expected income transaction, got %s", result.Transaction.Type)
		}
		testutil.AssertDecimal(t, "transaction amount", result.Transaction.Amount, "25.50")
		if result.Transaction.Date.Location() != time.UTC {
			t.Errorf("expected UTC transaction date, got %s", result.Transaction.Date.Location())
		}

		var category models.Category
		db.Where("id = ?", *result.Transaction.CategoryID).First(&category)
		if category.Name != "Balance Adjustment" || category.Type != models.CategoryTypeIncome {
			t.Errorf("unexpected adjustment category: %s/%s", category.Name, category.Type)
		}
	})

	t.Run("negative_creates_expense", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewAccountService(db)
		user := testutil.CreateTestUser(t, db)
		account := testutil.CreateTestAccountWithBalance(t, db, user.ID, "10")

		result, err := svc.AdjustBalance(user.ID, account.ID, testutil.Dec("-30"), "Bank fee")
		testutil.AssertNoError(t, err)

		testutil.AssertDecimal(t, "new balance", result.NewBalance, "-20")
		if result.Transaction.Type != models.TransactionTypeExpense {
			t.Errorf("expected expense transaction, got %s", result.Transaction.Type)
		}
		testutil.AssertDecimal(t, "transaction amount", result.Transaction.Amount, "30")
	})

	t.Run("reuses_adjustment_category", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewAccountService(db)
		user := testutil.CreateTestUser(t, db)
		account := testutil.CreateTestAccount(t, db, user.ID)

		_, err := svc.AdjustBalance(user.ID, account.ID, testutil.Dec("1"), "a")
		testutil.AssertNoError(t, err)
		_, err = svc.AdjustBalance(user.ID, account.ID, testutil.Dec("2"), "b")
		testutil.AssertNoError(t, err)

		var count int64
		db.Model(&models.Category{}).Where("user_id = ? AND name = ?", user.ID, "Balance Adjustment").Count(&count)
		if count != 1 {
			t.Errorf("expected one adjustment category, got %d", count)
		}
		testutil.AssertDecimal(t, "balance", testutil.ReloadAccount(t, db, account.ID).Balance, "3")
	})

	t.Run("zero_amount", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewAccountService(db)
		user := testutil.CreateTestUser(t, db)
		account := testutil.CreateTestAccount(t, db, user.ID)

		_, err := svc.AdjustBalance(user.ID, account.ID, testutil.Dec("0"), "nothing")
		testutil.AssertAppError(t, err, "INVALID_INPUT")
	})

	t.Run("other_users_account", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewAccountService(db)
		owner := testutil.CreateTestUser(t, db)
		intruder := testutil.CreateTestUser(t, db)
		account := testutil.CreateTestAccountWithBalance(t, db, owner.ID, "10")

		_, err := svc.AdjustBalance(intruder.ID, account.ID, testutil.Dec("5"), "steal")
		testutil.AssertAppError(t, err, "ACCOUNT_NOT_FOUND")

		testutil.AssertDecimal(t, "balance", testutil.ReloadAccount(t, db, account.ID).Balance, "10")
		var count int64
		db.Model(&models.Category{}).Where("user_id = ?", intruder.ID).Count(&count)
		if count != 0 {
			t.Errorf("no category should be created for the intruder, got %d", count)
		}
	})
}
