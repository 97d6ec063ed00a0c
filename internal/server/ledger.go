package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/lahirugmg/business-cost-tracker/internal/common"
	"github.com/lahirugmg/business-cost-tracker/internal/entity"
	"github.com/lahirugmg/business-cost-tracker/internal/repository"
)

const contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (h *Handler) listExpenses(c *gin.Context) {
	skip, limit, ok := pagination(c)
	if !ok {
		return
	}
	rows, err := h.expenses.List(c.Request.Context(), currentUser(c), skip, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	if rows == nil {
		rows = make([]*entity.Expense, 0)
	}
	c.JSON(http.StatusOK, rows)
}

type createExpenseRequest struct {
	Amount        decimal.Decimal `json:"amount"`
	Description   string          `json:"description"`
	Date          string          `json:"date"`
	Category      string          `json:"category"`
	TaxDeductible bool            `json:"tax_deductible"`
	PropertyType  *string         `json:"property_type"`
}

func (h *Handler) createExpense(c *gin.Context) {
	var req createExpenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	date, ok := optionalDate(c, "date", req.Date)
	if !ok {
		return
	}
	exp, err := h.expenses.Create(c.Request.Context(), &repository.CreateExpenseRequest{
		UserID:        currentUser(c),
		Amount:        req.Amount,
		Description:   req.Description,
		Date:          date,
		Category:      req.Category,
		TaxDeductible: req.TaxDeductible,
		PropertyType:  req.PropertyType,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, exp)
}

func (h *Handler) listIncomes(c *gin.Context) {
	skip, limit, ok := pagination(c)
	if !ok {
		return
	}
	rows, err := h.incomes.List(c.Request.Context(), currentUser(c), skip, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	if rows == nil {
		rows = make([]*entity.Income, 0)
	}
	c.JSON(http.StatusOK, rows)
}

type createIncomeRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	Date        string          `json:"date"`
	Category    string          `json:"category"`
}

func (h *Handler) createIncome(c *gin.Context) {
	var req createIncomeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	date, ok := optionalDate(c, "date", req.Date)
	if !ok {
		return
	}
	inc, err := h.incomes.Create(c.Request.Context(), &repository.CreateIncomeRequest{
		UserID:      currentUser(c),
		Amount:      req.Amount,
		Description: req.Description,
		Date:        date,
		Category:    req.Category,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, inc)
}

func (h *Handler) exportExpensesXLSX(c *gin.Context) {
	from, ok := queryDate(c, "from")
	if !ok {
		return
	}
	to, ok := queryDate(c, "to")
	if !ok {
		return
	}
	b, err := h.exports.ExportExpensesXLSX(c.Request.Context(), currentUser(c), from, to)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="expenses.xlsx"`)
	c.Data(http.StatusOK, contentTypeXLSX, b)
}

func (h *Handler) exportExpensesCSV(c *gin.Context) {
	from, ok := queryDate(c, "from")
	if !ok {
		return
	}
	to, ok := queryDate(c, "to")
	if !ok {
		return
	}
	b, err := h.exports.ExportExpensesCSV(c.Request.Context(), currentUser(c), from, to)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="expenses.csv"`)
	c.Data(http.StatusOK, "text/csv; charset=utf-8", b)
}

// optionalDate parses a request-body date, treating empty as unset so the
// store applies its default. Answers 400 itself on junk.
func optionalDate(c *gin.Context, name, raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, true
	}
	d, err := parseDate(raw)
	if err != nil {
		writeError(c, common.InvalidInputErrorf("%s %q is not a YYYY-MM-DD date", name, raw))
		return time.Time{}, false
	}
	return d, true
}

// queryDate parses an optional YYYY-MM-DD query parameter.
func queryDate(c *gin.Context, name string) (*time.Time, bool) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil, true
	}
	d, err := parseDate(raw)
	if err != nil {
		writeError(c, common.InvalidInputErrorf("%s %q is not a YYYY-MM-DD date", name, raw))
		return nil, false
	}
	return &d, true
}
