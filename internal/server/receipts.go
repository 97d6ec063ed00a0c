package server

import (
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lahirugmg/business-cost-tracker/constants"
	"github.com/lahirugmg/business-cost-tracker/internal/async"
	"github.com/lahirugmg/business-cost-tracker/internal/common"
	"github.com/lahirugmg/business-cost-tracker/internal/entity"
	"github.com/lahirugmg/business-cost-tracker/internal/receipts"
)

// pathID parses the :id route parameter, answering 400 itself on junk.
func pathID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil || id == uuid.Nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return uuid.Nil, false
	}
	return id, true
}

// readUpload pulls the multipart file out of the request, enforcing the size
// cap and the extension whitelist before anything touches the pipeline. It
// answers the request itself when the upload is rejected.
func (h *Handler) readUpload(c *gin.Context) (string, []byte, bool) {
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return "", nil, false
	}
	if file.Size > h.maxUpload {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
		return "", nil, false
	}
	if !constants.IsAllowedExt(filepath.Ext(file.Filename)) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid file format. Only PDF, JPG, JPEG, and PNG are supported."})
		return "", nil, false
	}
	f, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "open uploaded file failed"})
		return "", nil, false
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, h.maxUpload+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "read uploaded file failed"})
		return "", nil, false
	}
	if int64(len(data)) > h.maxUpload {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
		return "", nil, false
	}
	return filepath.Base(file.Filename), data, true
}

// uploadReceipt runs the extraction pipeline inline and answers with the
// finished receipt and its transactions.
func (h *Handler) uploadReceipt(c *gin.Context) {
	filename, data, ok := h.readUpload(c)
	if !ok {
		return
	}
	result, err := h.receipts.Submit(c.Request.Context(), receipts.SubmitRequest{
		UserID:   currentUser(c),
		Filename: filename,
		Data:     data,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"receipt":      result.Receipt,
		"transactions": nonNilTransactions(result.Transactions),
		"deduplicated": result.Deduplicated,
	})
}

// uploadReceiptAsync queues the document and answers 202 with the initial
// processing status.
func (h *Handler) uploadReceiptAsync(c *gin.Context) {
	filename, data, ok := h.readUpload(c)
	if !ok {
		return
	}
	userID := currentUser(c)
	result, err := h.receipts.Submit(c.Request.Context(), receipts.SubmitRequest{
		UserID:   userID,
		Filename: filename,
		Data:     data,
		Async:    true,
	})
	if err != nil {
		if errors.Is(err, async.ErrQueueFull) {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "processing queue is full, please retry"})
			return
		}
		writeError(c, err)
		return
	}
	status, err := h.receipts.Status(c.Request.Context(), userID, result.Receipt.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, status)
}

func (h *Handler) processingStatus(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	status, err := h.receipts.Status(c.Request.Context(), currentUser(c), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (h *Handler) listReceipts(c *gin.Context) {
	skip, limit, ok := pagination(c)
	if !ok {
		return
	}
	recs, err := h.receipts.List(c.Request.Context(), currentUser(c), skip, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	if recs == nil {
		recs = make([]*entity.Receipt, 0)
	}
	c.JSON(http.StatusOK, recs)
}

func (h *Handler) getReceipt(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	rec, txs, err := h.receipts.Get(c.Request.Context(), currentUser(c), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"receipt":      rec,
		"transactions": nonNilTransactions(txs),
	})
}

type updateReceiptRequest struct {
	MerchantName *string          `json:"merchant_name"`
	ReceiptDate  *string          `json:"receipt_date"`
	ReceiptTotal *decimal.Decimal `json:"receipt_total"`
	Verified     *bool            `json:"verified"`
}

func (h *Handler) updateReceipt(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req updateReceiptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	upd := entity.ReceiptUpdate{
		MerchantName: req.MerchantName,
		ReceiptTotal: req.ReceiptTotal,
		Verified:     req.Verified,
	}
	if req.ReceiptDate != nil {
		d, err := parseDate(*req.ReceiptDate)
		if err != nil {
			writeError(c, common.InvalidInputErrorf("receipt_date %q is not a YYYY-MM-DD date", *req.ReceiptDate))
			return
		}
		upd.ReceiptDate = &d
	}
	rec, err := h.receipts.Update(c.Request.Context(), currentUser(c), id, upd)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *Handler) deleteReceipt(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.receipts.Delete(c.Request.Context(), currentUser(c), id); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"detail": "Receipt deleted successfully"})
}

type updateTransactionRequest struct {
	Description *string          `json:"description"`
	Amount      *decimal.Decimal `json:"amount"`
	Date        *string          `json:"date"`
	Category    *string          `json:"category"`
	Verified    *bool            `json:"verified"`
}

func (h *Handler) updateTransaction(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req updateTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	upd := entity.TransactionUpdate{
		Description: req.Description,
		Amount:      req.Amount,
		Category:    req.Category,
		Verified:    req.Verified,
	}
	if req.Date != nil {
		d, err := parseDate(*req.Date)
		if err != nil {
			writeError(c, common.InvalidInputErrorf("date %q is not a YYYY-MM-DD date", *req.Date))
			return
		}
		upd.Date = &d
	}
	tx, err := h.receipts.UpdateTransaction(c.Request.Context(), currentUser(c), id, upd)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, tx)
}

func (h *Handler) addTransactionToExpenses(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	exp, _, err := h.receipts.AddToExpenses(c.Request.Context(), currentUser(c), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"detail":     "Transaction added to expenses",
		"expense_id": exp.ID,
	})
}

func (h *Handler) receiptFeedback(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var fb map[string]any
	if err := c.ShouldBindJSON(&fb); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if _, err := h.feedback.RecordReceiptFeedback(c.Request.Context(), currentUser(c), id, fb); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "Feedback recorded"})
}

type transactionFeedbackRequest struct {
	Feedback entity.TransactionCorrection `json:"feedback"`
}

func (h *Handler) transactionFeedback(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req transactionFeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	tx, err := h.feedback.RecordTransactionFeedback(c.Request.Context(), currentUser(c), id, req.Feedback)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":      "success",
		"message":     "Feedback recorded successfully",
		"transaction": tx,
	})
}

type merchantInsightsRequest struct {
	MerchantName string `json:"merchant_name"`
}

func (h *Handler) merchantInsights(c *gin.Context) {
	var req merchantInsightsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	insights, err := h.receipts.InsightsFor(c.Request.Context(), currentUser(c), req.MerchantName)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, insights)
}

// pagination reads skip/limit query parameters with the listing defaults.
func pagination(c *gin.Context) (skip, limit int, ok bool) {
	var err error
	if skip, err = strconv.Atoi(c.DefaultQuery("skip", "0")); err != nil || skip < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid skip"})
		return 0, 0, false
	}
	if limit, err = strconv.Atoi(c.DefaultQuery("limit", "100")); err != nil || limit < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return 0, 0, false
	}
	return skip, limit, true
}

func parseDate(s string) (time.Time, error) {
	return time.Parse("2006-01-02", strings.TrimSpace(s))
}

func nonNilTransactions(txs []*entity.Transaction) []*entity.Transaction {
	if txs == nil {
		return make([]*entity.Transaction, 0)
	}
	return txs
}
