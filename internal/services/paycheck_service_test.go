package services

import (
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"tally/internal/models"
	"tally/internal/pagination"
	"tally/internal/testutil"
)

func newTestPaycheckService(db *gorm.DB) PaycheckServicer {
	return NewPaycheckService(db, NewAuditService(db))
}

func countAllocations(t *testing.T, db *gorm.DB, paycheckID string) int64 {
	t.Helper()
	var count int64
	if err := db.Model(&models.Allocation{}).Where("paycheck_id = ?", paycheckID).Count(&count).Error; err != nil {
		t.Fatalf("failed to count allocations: %v", err)
	}
	return count
}

func TestCreatePaycheck(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := newTestPaycheckService(db)
		user := testutil.CreateTestUser(t, db)

		date := time.Date(2025, 3, 14, 17, 45, 0, 0, time.UTC)
		paycheck, err := svc.CreatePaycheck(user.ID, testutil.Dec("2500"), date, " March ")
		testutil.AssertNoError(t, err)

		if paycheck.Memo != "March" {
			t.Errorf("expected trimmed memo, got %q", paycheck.Memo)
		}
		if !paycheck.Date.Equal(time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)) {
			t.Errorf("expected date truncated to the day, got %s", paycheck.Date)
		}
	})

	t.Run("defaults_to_today", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := newTestPaycheckService(db)
		user := testutil.CreateTestUser(t, db)

		paycheck, err := svc.CreatePaycheck(user.ID, testutil.Dec("10"), time.Time{}, "")
		testutil.AssertNoError(t, err)

		if paycheck.Date.IsZero() {
			t.Error("expected a default date")
		}
	})

	t.Run("invalid", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := newTestPaycheckService(db)
		user := testutil.CreateTestUser(t, db)

		for _, amount := range []string{"0", "-5", "1.234"} {
			_, err := svc.CreatePaycheck(user.ID, testutil.Dec(amount), time.Now(), "")
			testutil.AssertAppError(t, err, "INVALID_INPUT")
		}
	})
}

func TestGetUserPaychecks(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)
	svc := newTestPaycheckService(db)
	user := testutil.CreateTestUser(t, db)
	other := testutil.CreateTestUser(t, db)

	older, err := svc.CreatePaycheck(user.ID, testutil.Dec("100"), time.Now().AddDate(0, 0, -14), "older")
	testutil.AssertNoError(t, err)
	newer, err := svc.CreatePaycheck(user.ID, testutil.Dec("200"), time.Now(), "newer")
	testutil.AssertNoError(t, err)
	testutil.CreateTestPaycheck(t, db, other.ID, "999")

	bucket := testutil.CreateTestBucket(t, db, user.ID, "0")
	_, err = svc.Allocate(user.ID, older.ID, []AllocationEntry{{BucketID: bucket.ID, Amount: testutil.Dec("25")}})
	testutil.AssertNoError(t, err)

	result, err := svc.GetUserPaychecks(user.ID, pagination.PageRequest{})
	testutil.AssertNoError(t, err)

	if result.TotalItems != 2 {
		t.Fatalf("expected 2 paychecks, got %d", result.TotalItems)
	}
	if result.Data[0].ID != newer.ID {
		t.Errorf("expected newest first, got %s", result.Data[0].Memo)
	}
	if len(result.Data[1].Allocations) != 1 {
		t.Errorf("expected allocations to be loaded, got %d", len(result.Data[1].Allocations))
	}
}

func TestGetPaycheckByID(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)
	svc := newTestPaycheckService(db)
	user := testutil.CreateTestUser(t, db)
	other := testutil.CreateTestUser(t, db)
	paycheck := testutil.CreateTestPaycheck(t, db, user.ID, "1000")
	bucket := testutil.CreateTestBucket(t, db, user.ID, "0")

	_, err := svc.Allocate(user.ID, paycheck.ID, []AllocationEntry{{BucketID: bucket.ID, Amount: testutil.Dec("333.33")}})
	testutil.AssertNoError(t, err)

	detail, err := svc.GetPaycheckByID(user.ID, paycheck.ID)
	testutil.AssertNoError(t, err)

	testutil.AssertDecimal(t, "allocated", detail.Allocated, "333.33")
	testutil.AssertDecimal(t, "remaining", detail.Remaining, "666.67")
	if len(detail.Allocations) != 1 || detail.Allocations[0].Bucket == nil || detail.Allocations[0].Bucket.ID != bucket.ID {
		t.Errorf("expected allocation with its bucket, got %+v", detail.Allocations)
	}

	_, err = svc.GetPaycheckByID(other.ID, paycheck.ID)
	testutil.AssertAppError(t, err, "PAYCHECK_NOT_FOUND")
}

func TestUpdatePaycheck(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)
	svc := newTestPaycheckService(db)
	user := testutil.CreateTestUser(t, db)
	paycheck := testutil.CreateTestPaycheck(t, db, user.ID, "1000")
	bucket := testutil.CreateTestBucket(t, db, user.ID, "0")

	_, err := svc.Allocate(user.ID, paycheck.ID, []AllocationEntry{{BucketID: bucket.ID, Amount: testutil.Dec("600")}})
	testutil.AssertNoError(t, err)

	t.Run("below_allocated", func(t *testing.T) {
		amount := testutil.Dec("599.99")
		_, err := svc.UpdatePaycheck(user.ID, paycheck.ID, PaycheckUpdateFields{Amount: &amount})
		appErr := testutil.AssertAppError(t, err, "PAYCHECK_BELOW_ALLOCATED")
		if appErr.StatusCode != 409 {
			t.Errorf("expected 409, got %d", appErr.StatusCode)
		}
	})

	t.Run("equal_to_allocated", func(t *testing.T) {
		amount := testutil.Dec("600")
		memo := "trimmed"
		updated, err := svc.UpdatePaycheck(user.ID, paycheck.ID, PaycheckUpdateFields{Amount: &amount, Memo: &memo})
		testutil.AssertNoError(t, err)

		testutil.AssertDecimal(t, "amount", updated.Amount, "600")
		if updated.Memo != "trimmed" {
			t.Errorf("expected memo to change, got %q", updated.Memo)
		}
	})

	t.Run("not_found", func(t *testing.T) {
		other := testutil.CreateTestUser(t, db)
		memo := "x"
		_, err := svc.UpdatePaycheck(other.ID, paycheck.ID, PaycheckUpdateFields{Memo: &memo})
		testutil.AssertAppError(t, err, "PAYCHECK_NOT_FOUND")
	})
}

func TestDeletePaycheck(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)
	svc := newTestPaycheckService(db)
	user := testutil.CreateTestUser(t, db)
	paycheck := testutil.CreateTestPaycheck(t, db, user.ID, "500")
	bucket := testutil.CreateTestBucket(t, db, user.ID, "10")

	_, err := svc.Allocate(user.ID, paycheck.ID, []AllocationEntry{{BucketID: bucket.ID, Amount: testutil.Dec("200")}})
	testutil.AssertNoError(t, err)

	testutil.AssertNoError(t, svc.DeletePaycheck(user.ID, paycheck.ID))

	if n := countAllocations(t, db, paycheck.ID); n != 0 {
		t.Errorf("expected allocations to be removed, got %d", n)
	}
	testutil.AssertDecimal(t, "bucket keeps money", testutil.ReloadBucket(t, db, bucket.ID).CurrentBalance, "210")

	_, err = svc.GetPaycheckByID(user.ID, paycheck.ID)
	testutil.AssertAppError(t, err, "PAYCHECK_NOT_FOUND")
}

func TestAllocate(t *testing.T) {
	t.Run("exact_split", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := newTestPaycheckService(db)
		user := testutil.CreateTestUser(t, db)
		paycheck := testutil.CreateTestPaycheck(t, db, user.ID, "1000")
		rent := testutil.CreateTestBucket(t, db, user.ID, "50")
		food := testutil.CreateTestBucket(t, db, user.ID, "0")

		result, err := svc.Allocate(user.ID, paycheck.ID, []AllocationEntry{
			{BucketID: rent.ID, Amount: testutil.Dec("600")},
			{BucketID: food.ID, Amount: testutil.Dec("400")},
		})
		testutil.AssertNoError(t, err)

		if !result.OK || len(result.Applied) != 2 {
			t.Errorf("unexpected result: %+v", result)
		}
		testutil.AssertDecimal(t, "rent", testutil.ReloadBucket(t, db, rent.ID).CurrentBalance, "650")
		testutil.AssertDecimal(t, "food", testutil.ReloadBucket(t, db, food.ID).CurrentBalance, "400")
		if n := countAllocations(t, db, paycheck.ID); n != 2 {
			t.Errorf("expected 2 allocation rows, got %d", n)
		}

		var entry models.AuditLog
		if err := db.Where("action = ? AND resource_id = ?", "ALLOCATE_PAYCHECK", paycheck.ID).First(&entry).Error; err != nil {
			t.Errorf("expected audit entry: %v", err)
		}
	})

	t.Run("exceeds_paycheck_writes_nothing", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := newTestPaycheckService(db)
		user := testutil.CreateTestUser(t, db)
		paycheck := testutil.CreateTestPaycheck(t, db, user.ID, "1000")
		rent := testutil.CreateTestBucket(t, db, user.ID, "0")
		food := testutil.CreateTestBucket(t, db, user.ID, "0")

		_, err := svc.Allocate(user.ID, paycheck.ID, []AllocationEntry{
			{BucketID: rent.ID, Amount: testutil.Dec("600")},
			{BucketID: food.ID, Amount: testutil.Dec("500")},
		})
		appErr := testutil.AssertAppError(t, err, "ALLOCATION_EXCEEDS_PAYCHECK")
		if appErr.StatusCode != 400 {
			t.Errorf("expected 400, got %d", appErr.StatusCode)
		}

		testutil.AssertDecimal(t, "rent", testutil.ReloadBucket(t, db, rent.ID).CurrentBalance, "0")
		testutil.AssertDecimal(t, "food", testutil.ReloadBucket(t, db, food.ID).CurrentBalance, "0")
		if n := countAllocations(t, db, paycheck.ID); n != 0 {
			t.Errorf("expected no allocation rows, got %d", n)
		}
	})

	t.Run("non_positive_entries_skipped", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := newTestPaycheckService(db)
		user := testutil.CreateTestUser(t, db)
		paycheck := testutil.CreateTestPaycheck(t, db, user.ID, "100")
		bucket := testutil.CreateTestBucket(t, db, user.ID, "0")

		result, err := svc.Allocate(user.ID, paycheck.ID, []AllocationEntry{
			{BucketID: bucket.ID, Amount: testutil.Dec("0")},
			{BucketID: bucket.ID, Amount: testutil.Dec("-50")},
			{BucketID: "", Amount: testutil.Dec("0")},
			{BucketID: bucket.ID, Amount: testutil.Dec("30")},
		})
		testutil.AssertNoError(t, err)

		if len(result.Applied) != 1 {
			t.Errorf("expected 1 applied entry, got %d", len(result.Applied))
		}
		testutil.AssertDecimal(t, "balance", testutil.ReloadBucket(t, db, bucket.ID).CurrentBalance, "30")
	})

	t.Run("empty_request", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := newTestPaycheckService(db)
		user := testutil.CreateTestUser(t, db)
		paycheck := testutil.CreateTestPaycheck(t, db, user.ID, "100")

		result, err := svc.Allocate(user.ID, paycheck.ID, nil)
		testutil.AssertNoError(t, err)

		if !result.OK || len(result.Applied) != 0 {
			t.Errorf("unexpected result: %+v", result)
		}
	})

	t.Run("repeated_bucket_accumulates", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := newTestPaycheckService(db)
		user := testutil.CreateTestUser(t, db)
		paycheck := testutil.CreateTestPaycheck(t, db, user.ID, "100")
		bucket := testutil.CreateTestBucket(t, db, user.ID, "5")

		_, err := svc.Allocate(user.ID, paycheck.ID, []AllocationEntry{
			{BucketID: bucket.ID, Amount: testutil.Dec("10.10")},
			{BucketID: bucket.ID, Amount: testutil.Dec("20.20")},
		})
		testutil.AssertNoError(t, err)

		testutil.AssertDecimal(t, "balance", testutil.ReloadBucket(t, db, bucket.ID).CurrentBalance, "35.30")
		if n := countAllocations(t, db, paycheck.ID); n != 2 {
			t.Errorf("expected 2 allocation rows, got %d", n)
		}
	})

	t.Run("each_request_checked_against_paycheck", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := newTestPaycheckService(db)
		user := testutil.CreateTestUser(t, db)
		paycheck := testutil.CreateTestPaycheck(t, db, user.ID, "1000")
		bucket := testutil.CreateTestBucket(t, db, user.ID, "0")

		_, err := svc.Allocate(user.ID, paycheck.ID, []AllocationEntry{{BucketID: bucket.ID, Amount: testutil.Dec("600")}})
		testutil.AssertNoError(t, err)

		_, err = svc.Allocate(user.ID, paycheck.ID, []AllocationEntry{{BucketID: bucket.ID, Amount: testutil.Dec("600")}})
		testutil.AssertNoError(t, err)

		_, err = svc.Allocate(user.ID, paycheck.ID, []AllocationEntry{{BucketID: bucket.ID, Amount: testutil.Dec("1000.01")}})
		testutil.AssertAppError(t, err, "ALLOCATION_EXCEEDS_PAYCHECK")

		testutil.AssertDecimal(t, "balance", testutil.ReloadBucket(t, db, bucket.ID).CurrentBalance, "1200")
		if n := countAllocations(t, db, paycheck.ID); n != 2 {
			t.Errorf("expected 2 allocation rows, got %d", n)
		}

		detail, err := svc.GetPaycheckByID(user.ID, paycheck.ID)
		testutil.AssertNoError(t, err)
		testutil.AssertDecimal(t, "allocated", detail.Allocated, "1200")
		testutil.AssertDecimal(t, "remaining", detail.Remaining, "-200")
	})

	t.Run("foreign_bucket_rolls_back", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := newTestPaycheckService(db)
		user := testutil.CreateTestUser(t, db)
		other := testutil.CreateTestUser(t, db)
		paycheck := testutil.CreateTestPaycheck(t, db, user.ID, "1000")
		mine := testutil.CreateTestBucket(t, db, user.ID, "0")
		theirs := testutil.CreateTestBucket(t, db, other.ID, "0")

		_, err := svc.Allocate(user.ID, paycheck.ID, []AllocationEntry{
			{BucketID: mine.ID, Amount: testutil.Dec("100")},
			{BucketID: theirs.ID, Amount: testutil.Dec("100")},
		})
		testutil.AssertAppError(t, err, "BUCKET_NOT_FOUND")

		testutil.AssertDecimal(t, "mine", testutil.ReloadBucket(t, db, mine.ID).CurrentBalance, "0")
		testutil.AssertDecimal(t, "theirs", testutil.ReloadBucket(t, db, theirs.ID).CurrentBalance, "0")
		if n := countAllocations(t, db, paycheck.ID); n != 0 {
			t.Errorf("expected no allocation rows, got %d", n)
		}
	})

	t.Run("foreign_paycheck", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := newTestPaycheckService(db)
		owner := testutil.CreateTestUser(t, db)
		intruder := testutil.CreateTestUser(t, db)
		paycheck := testutil.CreateTestPaycheck(t, db, owner.ID, "1000")
		bucket := testutil.CreateTestBucket(t, db, intruder.ID, "0")

		_, err := svc.Allocate(intruder.ID, paycheck.ID, []AllocationEntry{{BucketID: bucket.ID, Amount: testutil.Dec("1")}})
		testutil.AssertAppError(t, err, "PAYCHECK_NOT_FOUND")
	})

	t.Run("sub_cent_amount", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := newTestPaycheckService(db)
		user := testutil.CreateTestUser(t, db)
		paycheck := testutil.CreateTestPaycheck(t, db, user.ID, "1000")
		bucket := testutil.CreateTestBucket(t, db, user.ID, "0")

		_, err := svc.Allocate(user.ID, paycheck.ID, []AllocationEntry{{BucketID: bucket.ID, Amount: testutil.Dec("0.005")}})
		testutil.AssertAppError(t, err, "INVALID_INPUT")
	})
}

func TestAllocateConcurrent(t *testing.T) {
	db := testutil.SetupTestFileDB(t)
	defer testutil.TeardownTestDB(t, db)
	svc := newTestPaycheckService(db)
	user := testutil.CreateTestUser(t, db)
	paycheck := testutil.CreateTestPaycheck(t, db, user.ID, "1000")
	buckets := []*models.BudgetBucket{
		testutil.CreateTestBucket(t, db, user.ID, "0"),
		testutil.CreateTestBucket(t, db, user.ID, "0"),
	}

	const workers = 8
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// Failures here can only be lock contention; the invariants
			// below hold either way.
			_, _ = svc.Allocate(user.ID, paycheck.ID, []AllocationEntry{
				{BucketID: buckets[i%2].ID, Amount: testutil.Dec("150")},
				{BucketID: buckets[(i+1)%2].ID, Amount: testutil.Dec("150")},
			})
		}(i)
	}
	wg.Wait()

	var allocations []models.Allocation
	if err := db.Where("paycheck_id = ?", paycheck.ID).Find(&allocations).Error; err != nil {
		t.Fatalf("failed to load allocations: %v", err)
	}

	total := decimal.Zero
	perBucket := map[string]decimal.Decimal{}
	for _, a := range allocations {
		total = total.Add(a.Amount)
		perBucket[a.BucketID] = perBucket[a.BucketID].Add(a.Amount)
	}

	if len(allocations)%2 != 0 {
		t.Errorf("expected whole requests only, got %d rows", len(allocations))
	}
	testutil.AssertDecimal(t, "total", total, decimal.NewFromInt(int64(len(allocations))*150).String())
	for _, b := range buckets {
		testutil.AssertDecimal(t, "bucket "+b.ID, testutil.ReloadBucket(t, db, b.ID).CurrentBalance, perBucket[b.ID].String())
	}
}
