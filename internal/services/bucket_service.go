package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	apperrors "tally/internal/errors"
	"tally/internal/models"
	"tally/internal/money"
	"tally/internal/pagination"
)

const defaultBucketColor = "#3b82f6"

// bucketService handles budget bucket lifecycle operations.
type bucketService struct {
	db           *gorm.DB
	auditService AuditServicer
}

// NewBucketService creates a new BucketServicer.
func NewBucketService(db *gorm.DB, auditService AuditServicer) BucketServicer {
	return &bucketService{db: db, auditService: auditService}
}

// CreateBucket creates an empty bucket.
func (s *bucketService) CreateBucket(userID, name string, monthlyTarget decimal.Decimal, color string) (*models.BudgetBucket, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "bucket name is required")
	}
	if len([]rune(name)) > 64 {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "bucket name must be at most 64 characters")
	}
	if monthlyTarget.IsNegative() {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "monthly target cannot be negative")
	}
	if money.HasSubCentPrecision(monthlyTarget) {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "monthly target must have at most 2 decimal places")
	}

	bucket := &models.BudgetBucket{
		UserID:             userID,
		Name:               name,
		MonthlyTarget:      monthlyTarget,
		CurrentBalance:     decimal.Zero,
		UnallocatedBalance: decimal.Zero,
		Color:              defaultString(color, defaultBucketColor),
	}

	if err := s.db.Create(bucket).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	return bucket, nil
}

// GetUserBuckets lists the user's buckets in creation order.
func (s *bucketService) GetUserBuckets(userID string, page pagination.PageRequest) (*pagination.PageResponse[models.BudgetBucket], error) {
	page.Defaults()

	base := s.db.Model(&models.BudgetBucket{}).Where("user_id = ?", userID)

	var totalItems int64
	if err := base.Count(&totalItems).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var buckets []models.BudgetBucket
	if err := base.Order("created_at ASC").Scopes(pagination.Paginate(page)).Find(&buckets).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	result := pagination.NewPageResponse(buckets, page.Page, page.PageSize, totalItems)
	return &result, nil
}

// GetBucketByID returns a bucket if it belongs to the user.
func (s *bucketService) GetBucketByID(userID, bucketID string) (*models.BudgetBucket, error) {
	return findBucket(s.db, userID, bucketID, false)
}

func findBucket(tx *gorm.DB, userID, bucketID string, forUpdate bool) (*models.BudgetBucket, error) {
	q := tx
	if forUpdate {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var bucket models.BudgetBucket
	if err := q.Where("id = ? AND user_id = ?", bucketID, userID).First(&bucket).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrBucketNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &bucket, nil
}

// UpdateBucket changes the descriptive fields of a bucket. The balance only
// moves through AllocateMoney and paycheck allocation.
func (s *bucketService) UpdateBucket(userID, bucketID string, fields BucketUpdateFields) (*models.BudgetBucket, error) {
	bucket, err := s.GetBucketByID(userID, bucketID)
	if err != nil {
		return nil, err
	}

	updates := make(map[string]interface{})
	if fields.Name != nil {
		name := strings.TrimSpace(*fields.Name)
		if name == "" {
			return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "bucket name cannot be empty")
		}
		if len([]rune(name)) > 64 {
			return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "bucket name must be at most 64 characters")
		}
		updates["name"] = name
	}
	if fields.MonthlyTarget != nil {
		if fields.MonthlyTarget.IsNegative() {
			return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "monthly target cannot be negative")
		}
		if money.HasSubCentPrecision(*fields.MonthlyTarget) {
			return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "monthly target must have at most 2 decimal places")
		}
		updates["monthly_target"] = *fields.MonthlyTarget
	}
	if fields.Color != nil && *fields.Color != "" {
		updates["color"] = *fields.Color
	}

	if len(updates) > 0 {
		if err := s.db.Model(bucket).Updates(updates).Error; err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
	}

	return s.GetBucketByID(userID, bucketID)
}

// AllocateMoney moves money into or out of a bucket. Removing more than the
// current balance is rejected.
func (s *bucketService) AllocateMoney(userID, bucketID string, amount decimal.Decimal, direction BucketDirection) (*BucketMovement, error) {
	if !money.IsPositive(amount) {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "amount must be greater than zero")
	}
	if money.HasSubCentPrecision(amount) {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "amount must have at most 2 decimal places")
	}
	if direction != BucketDirectionAdd && direction != BucketDirectionRemove {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "action must be 'add' or 'remove'")
	}

	var result *BucketMovement
	err := s.db.Transaction(func(tx *gorm.DB) error {
		bucket, err := findBucket(tx, userID, bucketID, true)
		if err != nil {
			return err
		}

		var newBalance decimal.Decimal
		var message string
		if direction == BucketDirectionAdd {
			newBalance = bucket.CurrentBalance.Add(amount)
			message = fmt.Sprintf("Added %s to %s", money.Format(amount), bucket.Name)
		} else {
			if amount.GreaterThan(bucket.CurrentBalance) {
				return apperrors.WithMessage(apperrors.ErrInsufficientBucketBalance,
					fmt.Sprintf("Insufficient funds in bucket. Available: %s", money.Format(bucket.CurrentBalance)))
			}
			newBalance = bucket.CurrentBalance.Sub(amount)
			message = fmt.Sprintf("Removed %s from %s", money.Format(amount), bucket.Name)
		}
		newBalance = money.Round(newBalance)

		if err := tx.Model(bucket).Update("current_balance", newBalance).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}

		result = &BucketMovement{Message: message, NewBalance: newBalance}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// DeleteBucket removes a bucket and its allocation rows. Its balance goes
// back to the unallocated pool reported by GetSummary.
func (s *bucketService) DeleteBucket(userID, bucketID string) (*BucketDeletion, error) {
	var result *BucketDeletion
	err := s.db.Transaction(func(tx *gorm.DB) error {
		bucket, err := findBucket(tx, userID, bucketID, true)
		if err != nil {
			return err
		}
		returned := bucket.CurrentBalance

		if err := tx.Where("bucket_id = ?", bucket.ID).Delete(&models.Allocation{}).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		if err := tx.Delete(bucket).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}

		result = &BucketDeletion{
			Message: fmt.Sprintf("Bucket '%s' deleted. %s returned to unallocated money.",
				bucket.Name, money.Format(returned)),
			ReturnedAmount: returned,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.auditService.Log(userID, "DELETE_BUCKET", "budget_bucket", bucketID, "", map[string]interface{}{
		"returned_amount": result.ReturnedAmount.StringFixed(money.Scale),
	})
	return result, nil
}

// GetSummary computes the unallocated pool as total income minus the money
// currently held in buckets.
func (s *bucketService) GetSummary(userID string) (*BucketSummary, error) {
	income, err := sumColumn(s.db.Model(&models.Transaction{}).
		Where("user_id = ? AND type = ?", userID, models.TransactionTypeIncome), "amount")
	if err != nil {
		return nil, err
	}
	allocated, err := sumColumn(s.db.Model(&models.BudgetBucket{}).Where("user_id = ?", userID), "current_balance")
	if err != nil {
		return nil, err
	}
	return &BucketSummary{
		TotalIncome:    income,
		TotalAllocated: allocated,
		Unallocated:    income.Sub(allocated),
	}, nil
}

// GetIncomeTransactions lists the user's income transactions, newest first.
func (s *bucketService) GetIncomeTransactions(userID string, page pagination.PageRequest) (*pagination.PageResponse[models.Transaction], error) {
	page.Defaults()

	base := s.db.Model(&models.Transaction{}).Where("user_id = ? AND type = ?", userID, models.TransactionTypeIncome)

	var totalItems int64
	if err := base.Count(&totalItems).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var transactions []models.Transaction
	if err := base.Preload("Category").Preload("Account").
		Order(orderings["-date"]).
		Scopes(pagination.Paginate(page)).
		Find(&transactions).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	result := pagination.NewPageResponse(transactions, page.Page, page.PageSize, totalItems)
	return &result, nil
}
