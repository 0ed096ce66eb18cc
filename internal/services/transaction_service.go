package services

import (
	"errors"
	"sort"
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
	summaryTopCategories = 5
	summaryRecentCount   = 10
	analyticsMonths      = 12
)

// orderings maps the accepted ordering parameter values to SQL.
var orderings = map[string]string{
	"date":        "date ASC, created_at ASC",
	"-date":       "date DESC, created_at DESC",
	"amount":      "amount ASC",
	"-amount":     "amount DESC",
	"created_at":  "created_at ASC",
	"-created_at": "created_at DESC",
}

// transactionService handles transaction-related business logic.
type transactionService struct {
	db             *gorm.DB
	accountService AccountServicer
	userService    UserServicer
}

// NewTransactionService creates a new TransactionServicer.
func NewTransactionService(db *gorm.DB, accountService AccountServicer, userService UserServicer) TransactionServicer {
	return &transactionService{
		db:             db,
		accountService: accountService,
		userService:    userService,
	}
}

// CreateTransaction validates the input, stores the transaction and posts its
// balance effect in one database transaction.
func (s *transactionService) CreateTransaction(userID string, in TransactionInput) (*models.Transaction, error) {
	var result *models.Transaction
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var txErr error
		result, txErr = createTransactionWithDB(tx, userID, in)
		return txErr
	})
	if err != nil {
		return nil, err
	}
	return s.GetTransactionByID(userID, result.ID)
}

func createTransactionWithDB(tx *gorm.DB, userID string, in TransactionInput) (*models.Transaction, error) {
	transaction, err := buildTransaction(tx, userID, in)
	if err != nil {
		return nil, err
	}

	if err := tx.Create(transaction).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	deltas := balanceDeltas{}
	deltas.post(transaction, 1)
	if err := deltas.apply(tx, userID); err != nil {
		return nil, err
	}
	return transaction, nil
}

// buildTransaction checks every business rule and returns the unsaved row.
// All referenced rows must belong to userID.
func buildTransaction(tx *gorm.DB, userID string, in TransactionInput) (*models.Transaction, error) {
	if in.Amount.LessThan(money.MinAmount) {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "amount must be at least 0.01")
	}
	if money.HasSubCentPrecision(in.Amount) {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "amount must have at most 2 decimal places")
	}
	description := strings.TrimSpace(in.Description)
	if description == "" {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "description is required")
	}
	if len([]rune(description)) > 255 {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "description must be at most 255 characters")
	}
	if in.AccountID == "" {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "account ID is required")
	}

	switch in.Type {
	case models.TransactionTypeIncome, models.TransactionTypeExpense, models.TransactionTypeTransfer:
	default:
		return nil, apperrors.ErrInvalidTransactionType
	}

	if err := requireAccount(tx, userID, in.AccountID); err != nil {
		return nil, err
	}

	var transferTo *string
	if in.Type == models.TransactionTypeTransfer {
		if in.TransferToAccountID == nil || *in.TransferToAccountID == "" {
			return nil, apperrors.ErrTransferTargetRequired
		}
		if *in.TransferToAccountID == in.AccountID {
			return nil, apperrors.ErrSameAccountTransfer
		}
		if err := requireAccount(tx, userID, *in.TransferToAccountID); err != nil {
			return nil, err
		}
		target := *in.TransferToAccountID
		transferTo = &target
	}

	var categoryID *string
	if in.CategoryID != nil && *in.CategoryID != "" {
		var category models.Category
		if err := tx.Where("id = ? AND user_id = ?", *in.CategoryID, userID).First(&category).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, apperrors.ErrCategoryNotFound
			}
			return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		if in.Type != models.TransactionTypeTransfer && string(category.Type) != string(in.Type) {
			return nil, apperrors.ErrCategoryTypeMismatch
		}
		id := category.ID
		categoryID = &id
	} else if in.Type != models.TransactionTypeTransfer {
		return nil, apperrors.ErrCategoryRequired
	}

	date := in.Date
	if date.IsZero() {
		date = time.Now()
	}

	return &models.Transaction{
		UserID:              userID,
		AccountID:           in.AccountID,
		CategoryID:          categoryID,
		TransferToAccountID: transferTo,
		Type:                in.Type,
		Amount:              in.Amount,
		Description:         description,
		Date:                date.UTC(),
		Notes:               in.Notes,
		Tags:                normalizeTags(in.Tags),
	}, nil
}

func requireAccount(tx *gorm.DB, userID, accountID string) error {
	var count int64
	if err := tx.Model(&models.Account{}).Where("id = ? AND user_id = ?", accountID, userID).Count(&count).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if count == 0 {
		return apperrors.ErrAccountNotFound
	}
	return nil
}

// normalizeTags trims each comma-separated tag and drops empty ones.
func normalizeTags(tags string) string {
	if tags == "" {
		return ""
	}
	parts := strings.Split(tags, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, ",")
}

// GetUserTransactions retrieves a paginated, filtered list of the user's transactions.
func (s *transactionService) GetUserTransactions(userID string, page pagination.PageRequest, filter TransactionFilter) (*pagination.PageResponse[models.Transaction], error) {
	page.Defaults()

	base := s.db.Model(&models.Transaction{}).Where("user_id = ?", userID)
	base = applyTransactionFilters(base, filter)

	var totalItems int64
	if err := base.Count(&totalItems).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var transactions []models.Transaction
	if err := base.Preload("Category").Preload("Account").Preload("TransferToAccount").
		Order(orderClause(filter.Ordering)).
		Scopes(pagination.Paginate(page)).
		Find(&transactions).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	result := pagination.NewPageResponse(transactions, page.Page, page.PageSize, totalItems)
	return &result, nil
}

// GetAccountTransactions lists transactions that touch the given account,
// including transfers into it.
func (s *transactionService) GetAccountTransactions(userID, accountID string, page pagination.PageRequest, filter TransactionFilter) (*pagination.PageResponse[models.Transaction], error) {
	if _, err := s.accountService.GetAccountByID(userID, accountID); err != nil {
		return nil, err
	}

	page.Defaults()

	filter.AccountID = nil
	base := s.db.Model(&models.Transaction{}).
		Where("user_id = ? AND (account_id = ? OR transfer_to_account_id = ?)", userID, accountID, accountID)
	base = applyTransactionFilters(base, filter)

	var totalItems int64
	if err := base.Count(&totalItems).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var transactions []models.Transaction
	if err := base.Preload("Category").
		Order(orderClause(filter.Ordering)).
		Scopes(pagination.Paginate(page)).
		Find(&transactions).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	result := pagination.NewPageResponse(transactions, page.Page, page.PageSize, totalItems)
	return &result, nil
}

func orderClause(ordering string) string {
	if clause, ok := orderings[ordering]; ok {
		return clause
	}
	return orderings["-date"]
}

func applyTransactionFilters(q *gorm.DB, f TransactionFilter) *gorm.DB {
	if f.FromDate != nil {
		q = q.Where("date >= ?", f.FromDate.UTC())
	}
	if f.ToDate != nil {
		q = q.Where("date <= ?", f.ToDate.UTC())
	}
	if f.Type != nil {
		q = q.Where("type = ?", *f.Type)
	}
	if f.CategoryID != nil {
		q = q.Where("category_id = ?", *f.CategoryID)
	}
	if f.AccountID != nil {
		q = q.Where("account_id = ?", *f.AccountID)
	}
	if f.Search != "" {
		like := "%" + strings.ToLower(f.Search) + "%"
		q = q.Where("(LOWER(description) LIKE ? OR LOWER(notes) LIKE ?)", like, like)
	}
	return q
}

// GetTransactionByID retrieves a transaction by ID for a specific user
func (s *transactionService) GetTransactionByID(userID, transactionID string) (*models.Transaction, error) {
	var transaction models.Transaction
	if err := s.db.Preload("Category").Preload("Account").Preload("TransferToAccount").
		Where("id = ? AND user_id = ?", transactionID, userID).
		First(&transaction).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrTransactionNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &transaction, nil
}

func findTransaction(tx *gorm.DB, userID, transactionID string) (*models.Transaction, error) {
	var transaction models.Transaction
	if err := tx.Where("id = ? AND user_id = ?", transactionID, userID).First(&transaction).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrTransactionNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &transaction, nil
}

// UpdateTransaction replaces a transaction's fields. The old balance effect
// is reversed and the new one applied in the same database transaction.
func (s *transactionService) UpdateTransaction(userID, transactionID string, in TransactionInput) (*models.Transaction, error) {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		existing, err := findTransaction(tx, userID, transactionID)
		if err != nil {
			return err
		}

		if in.Date.IsZero() {
			in.Date = existing.Date
		}
		updated, err := buildTransaction(tx, userID, in)
		if err != nil {
			return err
		}

		deltas := balanceDeltas{}
		deltas.post(existing, -1)
		deltas.post(updated, 1)

		if err := tx.Model(existing).Select(
			"account_id", "category_id", "transfer_to_account_id", "type",
			"amount", "description", "date", "notes", "tags",
		).Updates(map[string]interface{}{
			"account_id":             updated.AccountID,
			"category_id":            updated.CategoryID,
			"transfer_to_account_id": updated.TransferToAccountID,
			"type":                   updated.Type,
			"amount":                 updated.Amount,
			"description":            updated.Description,
			"date":                   updated.Date,
			"notes":                  updated.Notes,
			"tags":                   updated.Tags,
		}).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}

		return deltas.apply(tx, userID)
	})
	if err != nil {
		return nil, err
	}
	return s.GetTransactionByID(userID, transactionID)
}

// DeleteTransaction deletes a transaction and reverses its balance effect.
func (s *transactionService) DeleteTransaction(userID, transactionID string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		transaction, err := findTransaction(tx, userID, transactionID)
		if err != nil {
			return err
		}

		if err := tx.Delete(transaction).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}

		deltas := balanceDeltas{}
		deltas.post(transaction, -1)
		return deltas.apply(tx, userID)
	})
}

// GetSummary reports totals for the current calendar month in the user's
// timezone, the top expense categories and the most recent transactions.
func (s *transactionService) GetSummary(userID string) (*TransactionSummary, error) {
	user, err := s.userService.GetUserByID(userID)
	if err != nil {
		return nil, err
	}
	now := time.Now().In(user.Location())
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()).UTC()
	end := time.Date(now.Year(), now.Month()+1, 1, 0, 0, 0, 0, now.Location()).UTC()

	monthScope := func(db *gorm.DB) *gorm.DB {
		return db.Model(&models.Transaction{}).Where("user_id = ? AND date >= ? AND date < ?", userID, start, end)
	}

	income, err := sumColumn(s.db.Scopes(monthScope).Where("type = ?", models.TransactionTypeIncome), "amount")
	if err != nil {
		return nil, err
	}
	expenses, err := sumColumn(s.db.Scopes(monthScope).Where("type = ?", models.TransactionTypeExpense), "amount")
	if err != nil {
		return nil, err
	}

	var count int64
	if err := s.db.Scopes(monthScope).Count(&count).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	top, err := s.categoryTotals(userID, &start, &end, summaryTopCategories)
	if err != nil {
		return nil, err
	}

	var recent []models.Transaction
	if err := s.db.Preload("Category").Preload("Account").
		Where("user_id = ?", userID).
		Order(orderings["-date"]).
		Limit(summaryRecentCount).
		Find(&recent).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if recent == nil {
		recent = []models.Transaction{}
	}

	return &TransactionSummary{
		TotalIncome:        income,
		TotalExpenses:      expenses,
		NetAmount:          income.Sub(expenses),
		TransactionCount:   count,
		TopCategories:      top,
		RecentTransactions: recent,
	}, nil
}

// categoryTotals groups expense transactions by category, largest total
// first. Bounds and limit are optional.
func (s *transactionService) categoryTotals(userID string, from, to *time.Time, limit int) ([]CategoryTotal, error) {
	type row struct {
		CategoryName  string
		CategoryColor string
		Total         decimal.Decimal
		Count         int64
	}

	q := s.db.Table("transactions").
		Select("categories.name AS category_name, categories.color AS category_color, SUM(transactions.amount) AS total, COUNT(*) AS count").
		Joins("JOIN categories ON categories.id = transactions.category_id").
		Where("transactions.user_id = ? AND transactions.type = ?", userID, models.TransactionTypeExpense)
	if from != nil {
		q = q.Where("transactions.date >= ?", *from)
	}
	if to != nil {
		q = q.Where("transactions.date < ?", *to)
	}

	var rows []row
	if err := q.Group("categories.id, categories.name, categories.color").Scan(&rows).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	totals := make([]CategoryTotal, 0, len(rows))
	for _, r := range rows {
		totals = append(totals, CategoryTotal{
			CategoryName:  r.CategoryName,
			CategoryColor: r.CategoryColor,
			Total:         money.Round(r.Total),
			Count:         r.Count,
		})
	}
	sort.SliceStable(totals, func(i, j int) bool {
		return totals[i].Total.GreaterThan(totals[j].Total)
	})
	if limit > 0 && len(totals) > limit {
		totals = totals[:limit]
	}
	return totals, nil
}

// GetAnalytics returns income and expense totals for each of the last twelve
// calendar months, oldest first, and the all-time expense breakdown by category.
func (s *transactionService) GetAnalytics(userID string) (*TransactionAnalytics, error) {
	user, err := s.userService.GetUserByID(userID)
	if err != nil {
		return nil, err
	}
	now := time.Now().In(user.Location())
	current := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	first := current.AddDate(0, -(analyticsMonths - 1), 0)

	var rows []struct {
		Type   models.TransactionType
		Amount decimal.Decimal
		Date   time.Time
	}
	if err := s.db.Model(&models.Transaction{}).
		Select("type, amount, date").
		Where("user_id = ? AND type IN ? AND date >= ? AND date < ?", userID,
			[]models.TransactionType{models.TransactionTypeIncome, models.TransactionTypeExpense},
			first.UTC(), current.AddDate(0, 1, 0).UTC()).
		Scan(&rows).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	trends := make([]MonthlyTrend, analyticsMonths)
	index := make(map[string]int, analyticsMonths)
	for i := 0; i < analyticsMonths; i++ {
		key := first.AddDate(0, i, 0).Format("2006-01")
		trends[i] = MonthlyTrend{Month: key, Income: decimal.Zero, Expenses: decimal.Zero, Net: decimal.Zero}
		index[key] = i
	}
	for _, r := range rows {
		i, ok := index[r.Date.In(now.Location()).Format("2006-01")]
		if !ok {
			continue
		}
		if r.Type == models.TransactionTypeIncome {
			trends[i].Income = trends[i].Income.Add(r.Amount)
		} else {
			trends[i].Expenses = trends[i].Expenses.Add(r.Amount)
		}
	}
	for i := range trends {
		trends[i].Income = money.Round(trends[i].Income)
		trends[i].Expenses = money.Round(trends[i].Expenses)
		trends[i].Net = trends[i].Income.Sub(trends[i].Expenses)
	}

	breakdown, err := s.categoryTotals(userID, nil, nil, 0)
	if err != nil {
		return nil, err
	}

	return &TransactionAnalytics{MonthlyTrends: trends, CategoryBreakdown: breakdown}, nil
}

// BulkCreate creates each item in its own database transaction. A failing
// item is reported by index and does not affect the others.
func (s *transactionService) BulkCreate(userID string, items []TransactionInput) *BulkResult {
	result := &BulkResult{
		Created: []models.Transaction{},
		Errors:  []BulkError{},
	}

	for i, item := range items {
		created, err := s.CreateTransaction(userID, item)
		if err != nil {
			result.Errors = append(result.Errors, BulkError{Index: i, Error: bulkErrorMessage(err)})
			continue
		}
		result.Created = append(result.Created, *created)
	}

	result.SuccessCount = len(result.Created)
	result.ErrorCount = len(result.Errors)
	return result
}

func bulkErrorMessage(err error) string {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return apperrors.ErrInternalServer.Message
}
