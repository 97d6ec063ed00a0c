// Package server is the HTTP surface: gin routes over the receipt, feedback,
// export and ledger services. Authentication is owned by the fronting proxy;
// this layer resolves the acting user from the X-User-ID header and enforces
// per-user ownership through the services underneath.
package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lahirugmg/business-cost-tracker/internal/common"
	"github.com/lahirugmg/business-cost-tracker/internal/export"
	"github.com/lahirugmg/business-cost-tracker/internal/feedback"
	"github.com/lahirugmg/business-cost-tracker/internal/receipts"
	"github.com/lahirugmg/business-cost-tracker/internal/repository"
)

const defaultMaxUploadBytes = 20 << 20 // 20 MB

// HealthFunc reports readiness of the backing store.
type HealthFunc func(ctx context.Context) error

// Handler wires HTTP routes to the extraction pipeline and the ledger.
type Handler struct {
	receipts  *receipts.Service
	feedback  *feedback.Service
	exports   *export.Service
	expenses  repository.ExpenseRepository
	incomes   repository.IncomeRepository
	health    HealthFunc
	maxUpload int64
	logger    *slog.Logger
}

// NewHandler constructs a Handler instance. maxUpload caps the accepted upload
// size in bytes; zero applies the default.
func NewHandler(receiptsSvc *receipts.Service, feedbackSvc *feedback.Service, exportSvc *export.Service,
	expenses repository.ExpenseRepository, incomes repository.IncomeRepository,
	health HealthFunc, maxUpload int64, logger *slog.Logger) *Handler {
	if maxUpload <= 0 {
		maxUpload = defaultMaxUploadBytes
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		receipts:  receiptsSvc,
		feedback:  feedbackSvc,
		exports:   exportSvc,
		expenses:  expenses,
		incomes:   incomes,
		health:    health,
		maxUpload: maxUpload,
		logger:    logger,
	}
}

// NewEngine builds the gin engine with recovery, request tagging and access
// logging, and attaches all routes.
func NewEngine(h *Handler, logger *slog.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestID(), accessLog(logger))
	h.RegisterRoutes(router)
	return router
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/healthz", h.healthz)

	authed := router.Group("/", requireUser())

	rg := authed.Group("/receipts")
	rg.POST("/", h.uploadReceipt)
	rg.POST("/async", h.uploadReceiptAsync)
	rg.GET("/status/:id", h.processingStatus)
	rg.POST("/feedback/:id", h.receiptFeedback)
	rg.POST("/transaction/:id/feedback", h.transactionFeedback)
	rg.POST("/merchant/insights", h.merchantInsights)
	rg.GET("/", h.listReceipts)
	rg.GET("/:id", h.getReceipt)
	rg.PUT("/:id", h.updateReceipt)
	rg.DELETE("/:id", h.deleteReceipt)
	rg.PUT("/transactions/:id", h.updateTransaction)
	rg.POST("/transactions/:id/add-to-expenses", h.addTransactionToExpenses)

	eg := authed.Group("/expenses")
	eg.GET("/", h.listExpenses)
	eg.POST("/", h.createExpense)

	ig := authed.Group("/incomes")
	ig.GET("/", h.listIncomes)
	ig.POST("/", h.createIncome)

	xg := authed.Group("/export")
	xg.GET("/expenses.xlsx", h.exportExpensesXLSX)
	xg.GET("/expenses.csv", h.exportExpensesCSV)
}

func (h *Handler) healthz(c *gin.Context) {
	if h.health != nil {
		if err := h.health(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// writeError maps service errors onto HTTP statuses with the shared error
// envelope.
func writeError(c *gin.Context, err error) {
	c.JSON(common.HTTPStatus(err), gin.H{"error": err.Error()})
}
