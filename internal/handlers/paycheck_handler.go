package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	apperrors "tally/internal/errors"
	"tally/internal/money"
	"tally/internal/pagination"
	"tally/internal/services"
	"tally/internal/uuid"
)

// PaycheckHandler handles paychecks and their allocation to buckets.
type PaycheckHandler struct {
	paycheckService services.PaycheckServicer
	auditService    services.AuditServicer
}

// NewPaycheckHandler creates a new PaycheckHandler.
func NewPaycheckHandler(paycheckService services.PaycheckServicer, auditService services.AuditServicer) *PaycheckHandler {
	return &PaycheckHandler{paycheckService: paycheckService, auditService: auditService}
}

// CreatePaycheckRequest represents the request payload for recording a paycheck.
type CreatePaycheckRequest struct {
	Amount decimal.Decimal `json:"amount" binding:"gt=0" swaggertype:"string"`
	Date   string          `json:"date"`
	Memo   string          `json:"memo" binding:"max=128"`
}

// UpdatePaycheckRequest represents the request payload for updating a paycheck.
type UpdatePaycheckRequest struct {
	Amount *decimal.Decimal `json:"amount" binding:"omitempty,gt=0" swaggertype:"string"`
	Date   *string          `json:"date"`
	Memo   *string          `json:"memo" binding:"omitempty,max=128"`
}

// AllocationRequestEntry asks for part of the paycheck to go to one bucket.
// Entries with a non-positive amount are ignored.
type AllocationRequestEntry struct {
	BucketID string          `json:"bucket_id"`
	Amount   decimal.Decimal `json:"amount" swaggertype:"string"`
}

// AllocateRequest splits a paycheck across buckets.
type AllocateRequest struct {
	Allocations []AllocationRequestEntry `json:"allocations"`
}

// AllocationExceededResponse is returned when the allocations do not fit in the paycheck.
type AllocationExceededResponse struct {
	Detail string      `json:"detail"`
	Error  ErrorDetail `json:"error"`
}

func parseOptionalDate(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := parseFlexibleTime(value)
	if err != nil {
		return time.Time{}, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error())
	}
	return t, nil
}

// CreatePaycheck handles recording a paycheck
// @Summary     Record a paycheck
// @Description Record a paycheck to split across buckets. The date defaults to today.
// @Tags        paychecks
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body CreatePaycheckRequest true "Paycheck details"
// @Success     201 {object} models.Paycheck "Paycheck created"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /paychecks [post]
func (h *PaycheckHandler) CreatePaycheck(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req CreatePaycheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	date, err := parseOptionalDate(req.Date)
	if err != nil {
		respondWithError(c, err)
		return
	}

	paycheck, err := h.paycheckService.CreatePaycheck(userID, req.Amount, date, req.Memo)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, "CREATE_PAYCHECK", "paycheck", paycheck.ID, c.ClientIP(),
		map[string]interface{}{"amount": req.Amount.StringFixed(money.Scale)})

	c.JSON(http.StatusCreated, gin.H{"paycheck": paycheck})
}

// GetUserPaychecks handles listing the user's paychecks
// @Summary     List paychecks
// @Description Get the user's paychecks newest first, with their allocations
// @Tags        paychecks
// @Produce     json
// @Security    BearerAuth
// @Param       page      query int false "Page number (default 1)"
// @Param       page_size query int false "Items per page (default 20, max 100)"
// @Success     200 {object} pagination.PageResponse[models.Paycheck] "Paginated paychecks"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /paychecks [get]
func (h *PaycheckHandler) GetUserPaychecks(c *gin.Context) {
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

	result, err := h.paycheckService.GetUserPaychecks(userID, page)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetPaycheckByID handles the retrieval of a paycheck
// @Summary     Get paycheck by ID
// @Description Get a paycheck with its allocations and the allocated and remaining totals
// @Tags        paychecks
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Paycheck ID"
// @Success     200 {object} services.PaycheckDetail "Paycheck details"
// @Failure     400 {object} ErrorResponse "Invalid paycheck ID"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Paycheck not found"
// @Router      /paychecks/{id} [get]
func (h *PaycheckHandler) GetPaycheckByID(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	paycheckID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	paycheck, err := h.paycheckService.GetPaycheckByID(userID, paycheckID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"paycheck": paycheck})
}

// UpdatePaycheck handles updating a paycheck
// @Summary     Update paycheck
// @Description Update amount, date or memo. The amount cannot drop below what is already allocated.
// @Tags        paychecks
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Paycheck ID"
// @Param       request body UpdatePaycheckRequest true "Updated paycheck details"
// @Success     200 {object} models.Paycheck "Updated paycheck"
// @Failure     400 {object} ErrorResponse "Invalid input or paycheck ID"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Paycheck not found"
// @Failure     409 {object} ErrorResponse "Amount below allocated total"
// @Router      /paychecks/{id} [put]
func (h *PaycheckHandler) UpdatePaycheck(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	paycheckID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req UpdatePaycheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	fields := services.PaycheckUpdateFields{Amount: req.Amount, Memo: req.Memo}
	if req.Date != nil {
		date, err := parseOptionalDate(*req.Date)
		if err != nil {
			respondWithError(c, err)
			return
		}
		fields.Date = &date
	}

	paycheck, err := h.paycheckService.UpdatePaycheck(userID, paycheckID, fields)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, "UPDATE_PAYCHECK", "paycheck", paycheckID, c.ClientIP(), nil)

	c.JSON(http.StatusOK, gin.H{"paycheck": paycheck})
}

// DeletePaycheck handles deleting a paycheck
// @Summary     Delete paycheck
// @Description Delete a paycheck and its allocation rows. Bucket balances keep the allocated money.
// @Tags        paychecks
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Paycheck ID"
// @Success     200 {object} MessageResponse "Paycheck deleted"
// @Failure     400 {object} ErrorResponse "Invalid paycheck ID"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Paycheck not found"
// @Router      /paychecks/{id} [delete]
func (h *PaycheckHandler) DeletePaycheck(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	paycheckID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	if err := h.paycheckService.DeletePaycheck(userID, paycheckID); err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, "DELETE_PAYCHECK", "paycheck", paycheckID, c.ClientIP(), nil)

	c.JSON(http.StatusOK, gin.H{"message": "Paycheck deleted successfully"})
}

// Allocate handles splitting a paycheck across buckets
// @Summary     Allocate a paycheck
// @Description Split a paycheck across buckets. The whole request is rejected when its positive entries add up to more than the paycheck amount.
// @Tags        paychecks
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Paycheck ID"
// @Param       request body AllocateRequest true "Allocations"
// @Success     200 {object} services.AllocationResult "Applied allocations"
// @Failure     400 {object} AllocationExceededResponse "Allocations exceed paycheck amount"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Paycheck or bucket not found"
// @Router      /paychecks/{id}/allocate [post]
func (h *PaycheckHandler) Allocate(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	paycheckID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req AllocateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	entries := make([]services.AllocationEntry, 0, len(req.Allocations))
	for _, a := range req.Allocations {
		entry := services.AllocationEntry{BucketID: a.BucketID, Amount: a.Amount}
		if money.IsPositive(a.Amount) {
			id, err := uuid.Parse(a.BucketID)
			if err != nil {
				respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, "invalid bucket_id"))
				return
			}
			entry.BucketID = id
		}
		entries = append(entries, entry)
	}

	result, err := h.paycheckService.Allocate(userID, paycheckID, entries)
	if err != nil {
		if errors.Is(err, apperrors.ErrAllocationExceedsPaycheck) {
			c.JSON(http.StatusBadRequest, AllocationExceededResponse{
				Detail: apperrors.ErrAllocationExceedsPaycheck.Message,
				Error: ErrorDetail{
					Code:    apperrors.ErrAllocationExceedsPaycheck.Code,
					Message: apperrors.ErrAllocationExceedsPaycheck.Message,
				},
			})
			return
		}
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
