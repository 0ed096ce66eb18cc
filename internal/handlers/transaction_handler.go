package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/shopspring/decimal"

	apperrors "tally/internal/errors"
	"tally/internal/models"
	"tally/internal/money"
	"tally/internal/pagination"
	"tally/internal/services"
)

const maxBulkTransactions = 100

// TransactionHandler handles transaction-related requests.
type TransactionHandler struct {
	transactionService services.TransactionServicer
	auditService       services.AuditServicer
}

// NewTransactionHandler creates a new TransactionHandler.
func NewTransactionHandler(transactionService services.TransactionServicer, auditService services.AuditServicer) *TransactionHandler {
	return &TransactionHandler{transactionService: transactionService, auditService: auditService}
}

// TransactionRequest represents the payload for creating or replacing a transaction
type TransactionRequest struct {
	AccountID           string                 `json:"account_id" binding:"required,uuid"`
	CategoryID          *string                `json:"category_id" binding:"omitempty,uuid"`
	TransferToAccountID *string                `json:"transfer_to_account_id" binding:"omitempty,uuid"`
	Type                models.TransactionType `json:"type" binding:"required,transaction_type"`
	Amount              decimal.Decimal        `json:"amount" binding:"gt=0" swaggertype:"string"`
	Description         string                 `json:"description" binding:"required,max=255"`
	Date                *string                `json:"date"`
	Notes               string                 `json:"notes" binding:"max=2000"`
	Tags                string                 `json:"tags" binding:"max=255"`
}

// BulkCreateRequest wraps a list of transactions created independently.
type BulkCreateRequest struct {
	Transactions []TransactionRequest `json:"transactions"`
}

// toInput converts the request into service input. An empty date means now.
func (r TransactionRequest) toInput() (services.TransactionInput, error) {
	in := services.TransactionInput{
		AccountID:           r.AccountID,
		CategoryID:          r.CategoryID,
		TransferToAccountID: r.TransferToAccountID,
		Type:                r.Type,
		Amount:              r.Amount,
		Description:         r.Description,
		Notes:               r.Notes,
		Tags:                r.Tags,
	}
	if r.Date != nil && *r.Date != "" {
		parsed, err := parseFlexibleTime(*r.Date)
		if err != nil {
			return in, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error())
		}
		in.Date = parsed
	}
	return in, nil
}

// CreateTransaction handles the creation of a new transaction
// @Summary     Create a transaction
// @Description Create an income, expense or transfer and post it to the account balances
// @Tags        transactions
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body TransactionRequest true "Transaction details"
// @Success     201 {object} models.Transaction "Transaction created"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Account or category not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /transactions [post]
func (h *TransactionHandler) CreateTransaction(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req TransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	in, err := req.toInput()
	if err != nil {
		respondWithError(c, err)
		return
	}

	transaction, err := h.transactionService.CreateTransaction(userID, in)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, "CREATE_TRANSACTION", "transaction", transaction.ID, c.ClientIP(),
		map[string]interface{}{"type": req.Type, "amount": req.Amount.StringFixed(money.Scale), "account_id": req.AccountID})

	c.JSON(http.StatusCreated, gin.H{"transaction": transaction})
}

// BulkCreate handles creating several transactions in one request
// @Summary     Bulk create transactions
// @Description Validate and create each transaction independently. Failed items are reported by index.
// @Tags        transactions
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body BulkCreateRequest true "Transactions"
// @Success     201 {object} services.BulkResult "At least one transaction created"
// @Failure     400 {object} services.BulkResult "Nothing created"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Router      /transactions/bulk_create [post]
func (h *TransactionHandler) BulkCreate(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req BulkCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}
	if len(req.Transactions) == 0 {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, "No transactions provided"))
		return
	}
	if len(req.Transactions) > maxBulkTransactions {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, "Too many transactions, at most 100 per request"))
		return
	}

	// Items that fail binding rules never reach the service; positions maps
	// the service's indexes back to request indexes.
	var inputs []services.TransactionInput
	var positions []int
	var rejected []services.BulkError
	for i, item := range req.Transactions {
		if err := binding.Validator.ValidateStruct(item); err != nil {
			rejected = append(rejected, services.BulkError{Index: i, Error: err.Error()})
			continue
		}
		in, err := item.toInput()
		if err != nil {
			rejected = append(rejected, services.BulkError{Index: i, Error: err.Error()})
			continue
		}
		inputs = append(inputs, in)
		positions = append(positions, i)
	}

	result := h.transactionService.BulkCreate(userID, inputs)
	for i := range result.Errors {
		result.Errors[i].Index = positions[result.Errors[i].Index]
	}
	result.Errors = mergeBulkErrors(rejected, result.Errors)
	result.ErrorCount = len(result.Errors)

	status := http.StatusBadRequest
	if result.SuccessCount > 0 {
		status = http.StatusCreated
		h.auditService.Log(userID, "BULK_CREATE_TRANSACTIONS", "transaction", "", c.ClientIP(),
			map[string]interface{}{"success_count": result.SuccessCount, "error_count": result.ErrorCount})
	}
	c.JSON(status, result)
}

// mergeBulkErrors merges two index-sorted error lists into one.
func mergeBulkErrors(a, b []services.BulkError) []services.BulkError {
	out := make([]services.BulkError, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if a[i].Index < b[j].Index {
			out = append(out, a[i])
			i++
		} else {
			out = append(out, b[j])
			j++
		}
	}
	out = append(out, a[i:]...)
	return append(out, b[j:]...)
}

// GetUserTransactions handles the retrieval of the user's transactions
// @Summary     List transactions
// @Description Get a paginated, filtered list of the user's transactions
// @Tags        transactions
// @Produce     json
// @Security    BearerAuth
// @Param       page        query int    false "Page number (default 1)"
// @Param       page_size   query int    false "Items per page (default 20, max 100)"
// @Param       type        query string false "income, expense or transfer"
// @Param       account_id  query string false "Account ID"
// @Param       category_id query string false "Category ID"
// @Param       start_date  query string false "Earliest date (RFC3339 or YYYY-MM-DD)"
// @Param       end_date    query string false "Latest date, inclusive (RFC3339 or YYYY-MM-DD)"
// @Param       search      query string false "Substring of description or notes"
// @Param       ordering    query string false "date, -date, amount, -amount, created_at, -created_at"
// @Success     200 {object} pagination.PageResponse[models.Transaction] "Paginated transactions"
// @Failure     400 {object} ErrorResponse "Invalid filter"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /transactions [get]
func (h *TransactionHandler) GetUserTransactions(c *gin.Context) {
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

	filter, err := parseTransactionFilter(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	if filter.AccountID, err = parseOptionalID(c.Query("account_id"), "account_id"); err != nil {
		respondWithError(c, err)
		return
	}

	result, err := h.transactionService.GetUserTransactions(userID, page, filter)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetAccountTransactions handles the retrieval of transactions for an account
// @Summary     List account transactions
// @Description Get transactions that touch an account, including transfers into it
// @Tags        accounts
// @Produce     json
// @Security    BearerAuth
// @Param       id        path  string true  "Account ID"
// @Param       page      query int    false "Page number (default 1)"
// @Param       page_size query int    false "Items per page (default 20, max 100)"
// @Success     200 {object} pagination.PageResponse[models.Transaction] "Paginated transactions"
// @Failure     400 {object} ErrorResponse "Invalid account ID"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Account not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /accounts/{id}/transactions [get]
func (h *TransactionHandler) GetAccountTransactions(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	accountID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	var page pagination.PageRequest
	if err := c.ShouldBindQuery(&page); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	filter, err := parseTransactionFilter(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	result, err := h.transactionService.GetAccountTransactions(userID, accountID, page, filter)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func parseTransactionFilter(c *gin.Context) (services.TransactionFilter, error) {
	filter := services.TransactionFilter{
		Search:   c.Query("search"),
		Ordering: c.Query("ordering"),
	}

	if v := c.Query("start_date"); v != "" {
		t, err := parseFlexibleTime(v)
		if err != nil {
			return filter, apperrors.WithMessage(apperrors.ErrInvalidInput, "invalid start_date format, use RFC3339 or YYYY-MM-DD")
		}
		filter.FromDate = &t
	}

	if v := c.Query("end_date"); v != "" {
		t, err := parseFlexibleTime(v)
		if err != nil {
			return filter, apperrors.WithMessage(apperrors.ErrInvalidInput, "invalid end_date format, use RFC3339 or YYYY-MM-DD")
		}
		// A bare date covers the whole day.
		if len(v) == len("2006-01-02") {
			t = t.Add(24*time.Hour - time.Nanosecond)
		}
		filter.ToDate = &t
	}

	if v := c.Query("type"); v != "" {
		txType := models.TransactionType(v)
		if !txType.Valid() {
			return filter, apperrors.WithMessage(apperrors.ErrInvalidInput, "invalid type, must be income, expense, or transfer")
		}
		filter.Type = &txType
	}

	categoryID, err := parseOptionalID(c.Query("category_id"), "category_id")
	if err != nil {
		return filter, err
	}
	filter.CategoryID = categoryID

	return filter, nil
}

// GetTransactionByID handles the retrieval of a specific transaction
// @Summary     Get transaction by ID
// @Description Get a specific transaction by ID
// @Tags        transactions
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Transaction ID"
// @Success     200 {object} models.Transaction "Transaction details"
// @Failure     400 {object} ErrorResponse "Invalid transaction ID"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Transaction not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /transactions/{id} [get]
func (h *TransactionHandler) GetTransactionByID(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	transactionID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	transaction, err := h.transactionService.GetTransactionByID(userID, transactionID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"transaction": transaction})
}

// UpdateTransaction handles replacing a transaction
// @Summary     Update transaction
// @Description Replace a transaction. The old balance effect is reversed and the new one applied.
// @Tags        transactions
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Transaction ID"
// @Param       request body TransactionRequest true "Transaction details"
// @Success     200 {object} models.Transaction "Updated transaction"
// @Failure     400 {object} ErrorResponse "Invalid input or transaction ID"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Transaction not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /transactions/{id} [put]
func (h *TransactionHandler) UpdateTransaction(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	transactionID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req TransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	in, err := req.toInput()
	if err != nil {
		respondWithError(c, err)
		return
	}

	transaction, err := h.transactionService.UpdateTransaction(userID, transactionID, in)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, "UPDATE_TRANSACTION", "transaction", transactionID, c.ClientIP(),
		map[string]interface{}{"type": req.Type, "amount": req.Amount.StringFixed(money.Scale)})

	c.JSON(http.StatusOK, gin.H{"transaction": transaction})
}

// DeleteTransaction handles deleting a transaction
// @Summary     Delete transaction
// @Description Delete a transaction and reverse its balance effect
// @Tags        transactions
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Transaction ID"
// @Success     200 {object} MessageResponse "Transaction deleted"
// @Failure     400 {object} ErrorResponse "Invalid transaction ID"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Transaction not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /transactions/{id} [delete]
func (h *TransactionHandler) DeleteTransaction(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	transactionID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	if err := h.transactionService.DeleteTransaction(userID, transactionID); err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, "DELETE_TRANSACTION", "transaction", transactionID, c.ClientIP(), nil)

	c.JSON(http.StatusOK, gin.H{"message": "Transaction deleted successfully"})
}

// GetSummary handles the current month summary
// @Summary     Monthly summary
// @Description Income, expenses and top expense categories for the current month in the user's timezone, plus the latest transactions
// @Tags        transactions
// @Produce     json
// @Security    BearerAuth
// @Success     200 {object} services.TransactionSummary "Summary"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /transactions/summary [get]
func (h *TransactionHandler) GetSummary(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	summary, err := h.transactionService.GetSummary(userID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

// GetAnalytics handles the yearly trend report
// @Summary     Analytics
// @Description Twelve months of income and expense totals and the expense breakdown by category
// @Tags        transactions
// @Produce     json
// @Security    BearerAuth
// @Success     200 {object} services.TransactionAnalytics "Analytics"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /transactions/analytics [get]
func (h *TransactionHandler) GetAnalytics(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	analytics, err := h.transactionService.GetAnalytics(userID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, analytics)
}
