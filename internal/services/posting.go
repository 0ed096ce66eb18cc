package services

import (
	"errors"
	"sort"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	apperrors "tally/internal/errors"
	"tally/internal/models"
	"tally/internal/money"
)

// balanceDeltas accumulates signed balance changes per account ID.
type balanceDeltas map[string]decimal.Decimal

// post adds the balance effect of t to d. A sign of -1 reverses it.
func (d balanceDeltas) post(t *models.Transaction, sign int64) {
	amount := t.Amount.Mul(decimal.NewFromInt(sign))
	switch t.Type {
	case models.TransactionTypeIncome:
		d[t.AccountID] = d[t.AccountID].Add(amount)
	case models.TransactionTypeExpense:
		d[t.AccountID] = d[t.AccountID].Sub(amount)
	case models.TransactionTypeTransfer:
		d[t.AccountID] = d[t.AccountID].Sub(amount)
		if t.TransferToAccountID != nil {
			to := *t.TransferToAccountID
			d[to] = d[to].Add(amount)
		}
	}
}

// apply writes every non-zero delta to its account. Accounts are locked in ID
// order so that two postings touching the same pair cannot deadlock.
func (d balanceDeltas) apply(tx *gorm.DB, userID string) error {
	ids := make([]string, 0, len(d))
	for id, delta := range d {
		if !delta.IsZero() {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	for _, id := range ids {
		account, err := lockAccount(tx, userID, id)
		if err != nil {
			return err
		}
		newBalance := money.Round(account.Balance.Add(d[id]))
		if err := tx.Model(account).Update("balance", newBalance).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
	}
	return nil
}

// lockAccount reads an account row for update, scoped to the owning user.
func lockAccount(tx *gorm.DB, userID, accountID string) (*models.Account, error) {
	var account models.Account
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ? AND user_id = ?", accountID, userID).
		First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrAccountNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &account, nil
}

// sumColumn runs COALESCE(SUM(column), 0) over q and rounds the result.
func sumColumn(q *gorm.DB, column string) (decimal.Decimal, error) {
	var total decimal.NullDecimal
	if err := q.Select("COALESCE(SUM(" + column + "), 0)").Scan(&total).Error; err != nil {
		return decimal.Zero, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if !total.Valid {
		return decimal.Zero, nil
	}
	return money.Round(total.Decimal), nil
}
