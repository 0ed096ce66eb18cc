package services

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	apperrors "tally/internal/errors"
	"tally/internal/models"
	"tally/internal/money"
	"tally/internal/pagination"
)

// paycheckService handles paychecks and their allocation to buckets.
type paycheckService struct {
	db           *gorm.DB
	auditService AuditServicer
}

// NewPaycheckService creates a new PaycheckServicer.
func NewPaycheckService(db *gorm.DB, auditService AuditServicer) PaycheckServicer {
	return &paycheckService{db: db, auditService: auditService}
}

// CreatePaycheck records a paycheck. A zero date means today.
func (s *paycheckService) CreatePaycheck(userID string, amount decimal.Decimal, date time.Time, memo string) (*models.Paycheck, error) {
	if !money.IsPositive(amount) {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "amount must be greater than zero")
	}
	if money.HasSubCentPrecision(amount) {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "amount must have at most 2 decimal places")
	}
	memo = strings.TrimSpace(memo)
	if len([]rune(memo)) > 128 {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "memo must be at most 128 characters")
	}
	if date.IsZero() {
		date = time.Now()
	}

	paycheck := &models.Paycheck{
		UserID: userID,
		Amount: amount,
		Date:   truncateToDay(date),
		Memo:   memo,
	}

	if err := s.db.Create(paycheck).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	return paycheck, nil
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// GetUserPaychecks lists paychecks newest first, with their allocations.
func (s *paycheckService) GetUserPaychecks(userID string, page pagination.PageRequest) (*pagination.PageResponse[models.Paycheck], error) {
	page.Defaults()

	base := s.db.Model(&models.Paycheck{}).Where("user_id = ?", userID)

	var totalItems int64
	if err := base.Count(&totalItems).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var paychecks []models.Paycheck
	if err := base.Preload("Allocations", func(db *gorm.DB) *gorm.DB {
		return db.Order("created_at ASC")
	}).Order("date DESC, created_at DESC").
		Scopes(pagination.Paginate(page)).
		Find(&paychecks).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	result := pagination.NewPageResponse(paychecks, page.Page, page.PageSize, totalItems)
	return &result, nil
}

func findPaycheck(tx *gorm.DB, userID, paycheckID string, forUpdate bool) (*models.Paycheck, error) {
	q := tx
	if forUpdate {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var paycheck models.Paycheck
	if err := q.Where("id = ? AND user_id = ?", paycheckID, userID).First(&paycheck).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrPaycheckNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &paycheck, nil
}

func allocatedTotal(tx *gorm.DB, paycheckID string) (decimal.Decimal, error) {
	return sumColumn(tx.Model(&models.Allocation{}).Where("paycheck_id = ?", paycheckID), "amount")
}

// GetPaycheckByID returns a paycheck with its allocations, their buckets and
// the allocated and remaining totals.
func (s *paycheckService) GetPaycheckByID(userID, paycheckID string) (*PaycheckDetail, error) {
	var paycheck models.Paycheck
	if err := s.db.Preload("Allocations", func(db *gorm.DB) *gorm.DB {
		return db.Order("created_at ASC")
	}).Preload("Allocations.Bucket").
		Where("id = ? AND user_id = ?", paycheckID, userID).
		First(&paycheck).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrPaycheckNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	allocated := decimal.Zero
	for _, a := range paycheck.Allocations {
		allocated = allocated.Add(a.Amount)
	}
	allocated = money.Round(allocated)

	return &PaycheckDetail{
		Paycheck:  paycheck,
		Allocated: allocated,
		Remaining: paycheck.Amount.Sub(allocated),
	}, nil
}

// UpdatePaycheck changes a paycheck. The amount cannot drop below what has
// already been allocated from it.
func (s *paycheckService) UpdatePaycheck(userID, paycheckID string, fields PaycheckUpdateFields) (*models.Paycheck, error) {
	var paycheck *models.Paycheck
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		paycheck, err = findPaycheck(tx, userID, paycheckID, true)
		if err != nil {
			return err
		}

		updates := make(map[string]interface{})
		if fields.Amount != nil {
			if !money.IsPositive(*fields.Amount) {
				return apperrors.WithMessage(apperrors.ErrInvalidInput, "amount must be greater than zero")
			}
			if money.HasSubCentPrecision(*fields.Amount) {
				return apperrors.WithMessage(apperrors.ErrInvalidInput, "amount must have at most 2 decimal places")
			}
			allocated, err := allocatedTotal(tx, paycheck.ID)
			if err != nil {
				return err
			}
			if fields.Amount.LessThan(allocated) {
				return apperrors.ErrPaycheckBelowAllocated
			}
			updates["amount"] = *fields.Amount
		}
		if fields.Date != nil && !fields.Date.IsZero() {
			updates["date"] = truncateToDay(*fields.Date)
		}
		if fields.Memo != nil {
			memo := strings.TrimSpace(*fields.Memo)
			if len([]rune(memo)) > 128 {
				return apperrors.WithMessage(apperrors.ErrInvalidInput, "memo must be at most 128 characters")
			}
			updates["memo"] = memo
		}

		if len(updates) == 0 {
			return nil
		}
		if err := tx.Model(paycheck).Updates(updates).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return findPaycheck(s.db, userID, paycheckID, false)
}

// DeletePaycheck removes a paycheck and its allocation rows. Bucket balances
// keep the money that was allocated to them.
func (s *paycheckService) DeletePaycheck(userID, paycheckID string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		paycheck, err := findPaycheck(tx, userID, paycheckID, true)
		if err != nil {
			return err
		}
		if err := tx.Where("paycheck_id = ?", paycheck.ID).Delete(&models.Allocation{}).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		if err := tx.Delete(paycheck).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		return nil
	})
}

// Allocate splits a paycheck across buckets. Entries with a non-positive
// amount are skipped. The request is rejected as a whole when its positive
// entries add up to more than the paycheck amount; earlier requests against
// the same paycheck are not counted. Entries apply in input order and repeated
// buckets accumulate. Everything happens in one database transaction with the
// paycheck and buckets locked.
func (s *paycheckService) Allocate(userID, paycheckID string, entries []AllocationEntry) (*AllocationResult, error) {
	applied := make([]AllocationEntry, 0, len(entries))
	for _, e := range entries {
		if !money.IsPositive(e.Amount) {
			continue
		}
		if money.HasSubCentPrecision(e.Amount) {
			return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "amount must have at most 2 decimal places")
		}
		if e.BucketID == "" {
			return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "bucket_id is required")
		}
		applied = append(applied, e)
	}

	requested := decimal.Zero
	for _, e := range applied {
		requested = requested.Add(e.Amount)
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		paycheck, err := findPaycheck(tx, userID, paycheckID, true)
		if err != nil {
			return err
		}

		if requested.GreaterThan(paycheck.Amount) {
			return apperrors.ErrAllocationExceedsPaycheck
		}
		if len(applied) == 0 {
			return nil
		}

		buckets, err := lockBuckets(tx, userID, applied)
		if err != nil {
			return err
		}

		for _, e := range applied {
			bucket := buckets[e.BucketID]
			row := &models.Allocation{
				PaycheckID: paycheck.ID,
				BucketID:   bucket.ID,
				Amount:     e.Amount,
			}
			if err := tx.Create(row).Error; err != nil {
				return apperrors.Wrap(apperrors.ErrInternalServer, err)
			}
			bucket.CurrentBalance = money.Round(bucket.CurrentBalance.Add(e.Amount))
		}

		for _, bucket := range buckets {
			if err := tx.Model(bucket).Update("current_balance", bucket.CurrentBalance).Error; err != nil {
				return apperrors.Wrap(apperrors.ErrInternalServer, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(applied) > 0 {
		s.auditService.Log(userID, "ALLOCATE_PAYCHECK", "paycheck", paycheckID, "", map[string]interface{}{
			"allocated": requested.StringFixed(money.Scale),
			"entries":   len(applied),
		})
	}
	return &AllocationResult{OK: true, Applied: applied}, nil
}

// lockBuckets fetches every referenced bucket in one query, scoped to the
// user. A bucket that is missing or owned by someone else fails the request.
func lockBuckets(tx *gorm.DB, userID string, entries []AllocationEntry) (map[string]*models.BudgetBucket, error) {
	ids := make([]string, 0, len(entries))
	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		if !seen[e.BucketID] {
			seen[e.BucketID] = true
			ids = append(ids, e.BucketID)
		}
	}

	var rows []models.BudgetBucket
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ? AND id IN ?", userID, ids).
		Order("id").
		Find(&rows).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	buckets := make(map[string]*models.BudgetBucket, len(rows))
	for i := range rows {
		buckets[rows[i].ID] = &rows[i]
	}
	for _, id := range ids {
		if _, ok := buckets[id]; !ok {
			return nil, apperrors.ErrBucketNotFound
		}
	}
	return buckets, nil
}
