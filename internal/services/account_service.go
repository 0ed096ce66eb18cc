package services

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	apperrors "tally/internal/errors"
	"tally/internal/models"
	"tally/internal/money"
	"tally/internal/pagination"
)

const (
	initialBalanceReason = "Initial balance"
	adjustmentNotes      = "Manual balance adjustment"
)

// accountService handles account-related business logic.
type accountService struct {
	db *gorm.DB
}

// NewAccountService creates a new AccountServicer.
func NewAccountService(db *gorm.DB) AccountServicer {
	return &accountService{db: db}
}

// CreateAccount creates an account with a zero balance. A non-zero initial
// balance is booked as a balance adjustment so that it shows up in the
// transaction history.
func (s *accountService) CreateAccount(userID, name string, accountType models.AccountType, initialBalance decimal.Decimal) (*models.Account, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "account name is required")
	}
	if !accountType.Valid() {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "unsupported account type")
	}
	if money.HasSubCentPrecision(initialBalance) {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "initial balance must have at most 2 decimal places")
	}

	account := &models.Account{
		UserID:   userID,
		Name:     name,
		Type:     accountType,
		Balance:  decimal.Zero,
		IsActive: true,
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		taken, err := accountNameTaken(tx, userID, name, "")
		if err != nil {
			return err
		}
		if taken {
			return apperrors.ErrDuplicateAccountName
		}

		if err := tx.Create(account).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}

		if !initialBalance.IsZero() {
			if _, err := adjustBalanceWithDB(tx, userID, account.ID, initialBalance, initialBalanceReason); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.GetAccountByID(userID, account.ID)
}

func accountNameTaken(tx *gorm.DB, userID, name, excludeID string) (bool, error) {
	q := tx.Model(&models.Account{}).Where("user_id = ? AND name = ?", userID, name)
	if excludeID != "" {
		q = q.Where("id <> ?", excludeID)
	}
	var count int64
	if err := q.Count(&count).Error; err != nil {
		return false, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return count > 0, nil
}

// GetUserAccounts retrieves a paginated list of accounts for a user.
func (s *accountService) GetUserAccounts(userID string, page pagination.PageRequest, filter AccountFilter) (*pagination.PageResponse[models.Account], error) {
	page.Defaults()

	base := s.db.Model(&models.Account{}).Where("user_id = ?", userID)
	if filter.Type != nil {
		base = base.Where("type = ?", *filter.Type)
	}
	if filter.IsActive != nil {
		base = base.Where("is_active = ?", *filter.IsActive)
	}
	if filter.Search != "" {
		base = base.Where("LOWER(name) LIKE ?", "%"+strings.ToLower(filter.Search)+"%")
	}

	var totalItems int64
	if err := base.Count(&totalItems).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var accounts []models.Account
	if err := base.Order("name").Scopes(pagination.Paginate(page)).Find(&accounts).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	if err := s.attachTransactionCounts(accounts); err != nil {
		return nil, err
	}

	result := pagination.NewPageResponse(accounts, page.Page, page.PageSize, totalItems)
	return &result, nil
}

func (s *accountService) attachTransactionCounts(accounts []models.Account) error {
	if len(accounts) == 0 {
		return nil
	}
	ids := make([]string, len(accounts))
	for i := range accounts {
		ids[i] = accounts[i].ID
	}

	type row struct {
		AccountID string
		Count     int64
	}
	var rows []row
	if err := s.db.Model(&models.Transaction{}).
		Select("account_id, COUNT(*) AS count").
		Where("account_id IN ?", ids).
		Group("account_id").
		Scan(&rows).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		counts[r.AccountID] = r.Count
	}
	for i := range accounts {
		accounts[i].TransactionCount = counts[accounts[i].ID]
	}
	return nil
}

// GetAccountByID retrieves an account by ID for a specific user
func (s *accountService) GetAccountByID(userID, accountID string) (*models.Account, error) {
	var account models.Account
	if err := s.db.Where("id = ? AND user_id = ?", accountID, userID).First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrAccountNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &account, nil
}

// UpdateAccount updates the descriptive fields of an account. The balance is
// not writable here.
func (s *accountService) UpdateAccount(userID, accountID string, fields AccountUpdateFields) (*models.Account, error) {
	account, err := s.GetAccountByID(userID, accountID)
	if err != nil {
		return nil, err
	}

	updates := make(map[string]interface{})
	if fields.Name != nil {
		name := strings.TrimSpace(*fields.Name)
		if name == "" {
			return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "account name cannot be empty")
		}
		if name != account.Name {
			taken, err := accountNameTaken(s.db, userID, name, accountID)
			if err != nil {
				return nil, err
			}
			if taken {
				return nil, apperrors.ErrDuplicateAccountName
			}
		}
		updates["name"] = name
	}
	if fields.Type != nil {
		if !fields.Type.Valid() {
			return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "unsupported account type")
		}
		updates["type"] = *fields.Type
	}
	if fields.IsActive != nil {
		updates["is_active"] = *fields.IsActive
	}

	if len(updates) > 0 {
		if err := s.db.Model(account).Updates(updates).Error; err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
	}

	return s.GetAccountByID(userID, accountID)
}

// DeleteAccount removes an account together with its transactions. Outgoing
// transfers are reversed on their destination accounts before the rows go.
// Transfers from other accounts into this one keep their source-side effect
// and lose the destination reference.
func (s *accountService) DeleteAccount(userID, accountID string) error {
	account, err := s.GetAccountByID(userID, accountID)
	if err != nil {
		return err
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		var owned []models.Transaction
		if err := tx.Where("user_id = ? AND account_id = ?", userID, accountID).
			Find(&owned).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		deltas := balanceDeltas{}
		for i := range owned {
			deltas.post(&owned[i], -1)
		}
		delete(deltas, accountID)
		if err := deltas.apply(tx, userID); err != nil {
			return err
		}

		if err := tx.Model(&models.Transaction{}).
			Where("user_id = ? AND transfer_to_account_id = ?", userID, accountID).
			Update("transfer_to_account_id", nil).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		if err := tx.Where("user_id = ? AND account_id = ?", userID, accountID).
			Delete(&models.Transaction{}).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		if err := tx.Delete(account).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		return nil
	})
}

// AdjustBalance books a signed correction against an account. Positive
// amounts become income and negative amounts become expense, both under the
// user's "Balance Adjustment" category of the matching type.
func (s *accountService) AdjustBalance(userID, accountID string, amount decimal.Decimal, reason string) (*BalanceAdjustment, error) {
	var result *BalanceAdjustment
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var txErr error
		result, txErr = adjustBalanceWithDB(tx, userID, accountID, amount, reason)
		return txErr
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func adjustBalanceWithDB(tx *gorm.DB, userID, accountID string, amount decimal.Decimal, reason string) (*BalanceAdjustment, error) {
	if amount.IsZero() {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "Amount is required")
	}
	if money.HasSubCentPrecision(amount) {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "amount must have at most 2 decimal places")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "Balance adjustment"
	}

	// Verifies ownership before the category is created.
	if _, err := lockAccount(tx, userID, accountID); err != nil {
		return nil, err
	}

	txType := models.TransactionTypeIncome
	categoryType := models.CategoryTypeIncome
	if amount.IsNegative() {
		txType = models.TransactionTypeExpense
		categoryType = models.CategoryTypeExpense
	}

	category, err := getOrCreateCategory(tx, userID, balanceAdjustmentCategory, categoryType, balanceAdjustmentColor, balanceAdjustmentIcon, false)
	if err != nil {
		return nil, err
	}

	transaction := &models.Transaction{
		UserID:      userID,
		AccountID:   accountID,
		CategoryID:  &category.ID,
		Type:        txType,
		Amount:      amount.Abs(),
		Description: truncate(reason, 255),
		Date:        time.Now().UTC(),
		Notes:       adjustmentNotes,
	}
	if err := tx.Create(transaction).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	deltas := balanceDeltas{}
	deltas.post(transaction, 1)
	if err := deltas.apply(tx, userID); err != nil {
		return nil, err
	}

	account, err := lockAccount(tx, userID, accountID)
	if err != nil {
		return nil, err
	}

	return &BalanceAdjustment{
		Message:     "Balance adjusted successfully",
		NewBalance:  account.Balance,
		Transaction: transaction,
	}, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
