package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	apperrors "tally/internal/errors"
	"tally/internal/money"
	"tally/internal/pagination"
	"tally/internal/services"
)

// BucketHandler handles budget bucket requests.
type BucketHandler struct {
	bucketService services.BucketServicer
	auditService  services.AuditServicer
}

// NewBucketHandler creates a new BucketHandler.
func NewBucketHandler(bucketService services.BucketServicer, auditService services.AuditServicer) *BucketHandler {
	return &BucketHandler{bucketService: bucketService, auditService: auditService}
}

// CreateBucketRequest represents the request payload for creating a bucket.
type CreateBucketRequest struct {
	Name          string          `json:"name" binding:"required,min=1,max=64"`
	MonthlyTarget decimal.Decimal `json:"monthly_target" binding:"gte=0" swaggertype:"string"`
	Color         string          `json:"color" binding:"omitempty,hex_color"`
}

// UpdateBucketRequest represents the request payload for updating a bucket.
// current_balance only changes through allocations.
type UpdateBucketRequest struct {
	Name          *string          `json:"name" binding:"omitempty,min=1,max=64"`
	MonthlyTarget *decimal.Decimal `json:"monthly_target" binding:"omitempty,gte=0" swaggertype:"string"`
	Color         *string          `json:"color" binding:"omitempty,hex_color"`
}

// AllocateMoneyRequest moves money into or out of a bucket.
type AllocateMoneyRequest struct {
	Amount decimal.Decimal `json:"amount" binding:"gt=0" swaggertype:"string"`
	Action string          `json:"action" binding:"required,bucket_direction" enums:"add,remove"`
}

// CreateBucket handles the creation of a new bucket
// @Summary     Create a bucket
// @Description Create an empty budget bucket
// @Tags        buckets
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body CreateBucketRequest true "Bucket details"
// @Success     201 {object} models.BudgetBucket "Bucket created"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /buckets [post]
func (h *BucketHandler) CreateBucket(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req CreateBucketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	bucket, err := h.bucketService.CreateBucket(userID, req.Name, req.MonthlyTarget, req.Color)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, "CREATE_BUCKET", "budget_bucket", bucket.ID, c.ClientIP(),
		map[string]interface{}{"name": bucket.Name, "monthly_target": req.MonthlyTarget.StringFixed(money.Scale)})

	c.JSON(http.StatusCreated, gin.H{"bucket": bucket})
}

// GetUserBuckets handles listing the user's buckets
// @Summary     List buckets
// @Description Get the user's buckets in creation order
// @Tags        buckets
// @Produce     json
// @Security    BearerAuth
// @Param       page      query int false "Page number (default 1)"
// @Param       page_size query int false "Items per page (default 20, max 100)"
// @Success     200 {object} pagination.PageResponse[models.BudgetBucket] "Paginated buckets"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /buckets [get]
func (h *BucketHandler) GetUserBuckets(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var page pagination.PageRequest
	if err := c.ShouldBindQuery(&page); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	result, err := h.bucketService.GetUserBuckets(userID, page)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetBucketByID handles the retrieval of a specific bucket
// @Summary     Get bucket by ID
// @Tags        buckets
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Bucket ID"
// @Success     200 {object} models.BudgetBucket "Bucket details"
// @Failure     400 {object} ErrorResponse "Invalid bucket ID"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Bucket not found"
// @Router      /buckets/{id} [get]
func (h *BucketHandler) GetBucketByID(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	bucketID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	bucket, err := h.bucketService.GetBucketByID(userID, bucketID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"bucket": bucket})
}

// UpdateBucket handles updating a bucket
// @Summary     Update bucket
// @Description Update the name, monthly target or color of a bucket
// @Tags        buckets
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Bucket ID"
// @Param       request body UpdateBucketRequest true "Updated bucket details"
// @Success     200 {object} models.BudgetBucket "Updated bucket"
// @Failure     400 {object} ErrorResponse "Invalid input or bucket ID"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Bucket not found"
// @Router      /buckets/{id} [put]
func (h *BucketHandler) UpdateBucket(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	bucketID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req UpdateBucketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	bucket, err := h.bucketService.UpdateBucket(userID, bucketID, services.BucketUpdateFields{
		Name:          req.Name,
		MonthlyTarget: req.MonthlyTarget,
		Color:         req.Color,
	})
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, "UPDATE_BUCKET", "budget_bucket", bucketID, c.ClientIP(), nil)

	c.JSON(http.StatusOK, gin.H{"bucket": bucket})
}

// AllocateMoney handles moving money into or out of a bucket
// @Summary     Move money in or out of a bucket
// @Description Add to or remove from a bucket balance. Removing more than the balance is rejected.
// @Tags        buckets
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Bucket ID"
// @Param       request body AllocateMoneyRequest true "Amount and action"
// @Success     200 {object} services.BucketMovement "New balance"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Bucket not found"
// @Failure     409 {object} ErrorResponse "Insufficient funds in bucket"
// @Router      /buckets/{id}/allocate_money [post]
func (h *BucketHandler) AllocateMoney(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	bucketID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req AllocateMoneyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	result, err := h.bucketService.AllocateMoney(userID, bucketID, req.Amount, services.BucketDirection(req.Action))
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, "ALLOCATE_MONEY", "budget_bucket", bucketID, c.ClientIP(),
		map[string]interface{}{"action": req.Action, "amount": req.Amount.StringFixed(money.Scale)})

	c.JSON(http.StatusOK, result)
}

// DeleteBucket handles deleting a bucket
// @Summary     Delete bucket
// @Description Delete a bucket. Its balance returns to the unallocated pool.
// @Tags        buckets
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Bucket ID"
// @Success     200 {object} services.BucketDeletion "Bucket deleted"
// @Failure     400 {object} ErrorResponse "Invalid bucket ID"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Bucket not found"
// @Router      /buckets/{id} [delete]
func (h *BucketHandler) DeleteBucket(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	bucketID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	result, err := h.bucketService.DeleteBucket(userID, bucketID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetSummary handles the unallocated pool summary
// @Summary     Bucket summary
// @Description Total income, money held in buckets and the unallocated remainder
// @Tags        buckets
// @Produce     json
// @Security    BearerAuth
// @Success     200 {object} services.BucketSummary "Summary"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /buckets/summary [get]
func (h *BucketHandler) GetSummary(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	summary, err := h.bucketService.GetSummary(userID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

// GetIncomeTransactions lists income available for budgeting
// @Summary     Income transactions
// @Description The user's income transactions, newest first
// @Tags        buckets
// @Produce     json
// @Security    BearerAuth
// @Param       page      query int false "Page number (default 1)"
// @Param       page_size query int false "Items per page (default 20, max 100)"
// @Success     200 {object} pagination.PageResponse[models.Transaction] "Paginated income transactions"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /buckets/income_transactions [get]
func (h *BucketHandler) GetIncomeTransactions(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var page pagination.PageRequest
	if err := c.ShouldBindQuery(&page); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	result, err := h.bucketService.GetIncomeTransactions(userID, page)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
