package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/lahirugmg/business-cost-tracker/internal/entity"
	"github.com/lahirugmg/business-cost-tracker/internal/repository"
)

// Service produces spreadsheet exports of a user's expense ledger.
type Service struct {
	expenses repository.ExpenseRepository
	logger   *slog.Logger
}

func NewService(expenses repository.ExpenseRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{expenses: expenses, logger: logger}
}

var exportHeaders = []string{
	"Date",
	"Category",
	"Description",
	"Amount",
	"Deductible Amount",
	"Property Type",
	"Attachment",
}

// expenseRow is the flat CSV projection of one ledger expense.
type expenseRow struct {
	Date             string `csv:"Date"`
	Category         string `csv:"Category"`
	Description      string `csv:"Description"`
	Amount           string `csv:"Amount"`
	DeductibleAmount string `csv:"DeductibleAmount"`
	PropertyType     string `csv:"PropertyType"`
	Attachment       string `csv:"Attachment"`
}

// ExportExpensesXLSX returns an XLSX workbook (as bytes) for the given user and date window.
// If only from is provided -> from..today (inclusive).
// If only to is provided   -> beginning..to (inclusive).
// If neither is provided   -> all expenses for the user.
func (s *Service) ExportExpensesXLSX(ctx context.Context, userID uuid.UUID, from, to *time.Time) ([]byte, error) {
	start := time.Now()

	rows, err := s.expensesInWindow(ctx, userID, from, to)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	const sheet = "Expenses"
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)

	for i, h := range exportHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	rowNum := 2
	for _, e := range rows {
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, rowNum)
			_ = f.SetCellValue(sheet, cell, v)
		}
		write(1, e.Date.Format("2006-01-02"))
		write(2, e.Category)
		write(3, truncate(e.Description, 140))
		write(4, e.Amount.StringFixed(2))
		write(5, deductibleAmount(e))
		write(6, strVal(e.PropertyType))
		write(7, strVal(e.AttachmentPath))
		rowNum++
	}

	// Widen a few columns
	_ = f.SetColWidth(sheet, "A", "A", 14) // date
	_ = f.SetColWidth(sheet, "B", "B", 22) // category
	_ = f.SetColWidth(sheet, "C", "C", 48) // description
	_ = f.SetColWidth(sheet, "D", "E", 14) // amounts
	_ = f.SetColWidth(sheet, "F", "F", 18) // property type
	_ = f.SetColWidth(sheet, "G", "G", 60) // attachment path

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"user_id", userID.String(),
		"rows", len(rows),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

// ExportExpensesCSV returns the same projection as the XLSX export, written as
// CSV. Window semantics match ExportExpensesXLSX.
func (s *Service) ExportExpensesCSV(ctx context.Context, userID uuid.UUID, from, to *time.Time) ([]byte, error) {
	start := time.Now()

	rows, err := s.expensesInWindow(ctx, userID, from, to)
	if err != nil {
		return nil, err
	}

	out := make([]*expenseRow, 0, len(rows))
	for _, e := range rows {
		out = append(out, &expenseRow{
			Date:             e.Date.Format("2006-01-02"),
			Category:         e.Category,
			Description:      e.Description,
			Amount:           e.Amount.StringFixed(2),
			DeductibleAmount: deductibleAmount(e),
			PropertyType:     strVal(e.PropertyType),
			Attachment:       strVal(e.AttachmentPath),
		})
	}

	var buf bytes.Buffer
	if err := gocsv.MarshalCSV(out, gocsv.NewSafeCSVWriter(csv.NewWriter(&buf))); err != nil {
		return nil, fmt.Errorf("csv write: %w", err)
	}

	s.logger.Info("export.csv.ok",
		"user_id", userID.String(),
		"rows", len(rows),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

// expensesInWindow normalizes the window to date-only UTC bounds and queries
// the ledger. A from without a to closes the window at today.
func (s *Service) expensesInWindow(ctx context.Context, userID uuid.UUID, from, to *time.Time) ([]*entity.Expense, error) {
	var fromDate, toDate *time.Time
	if from != nil {
		f := dateOnly(*from)
		fromDate = &f
	}
	if to != nil {
		t := dateOnly(*to)
		toDate = &t
	}
	if fromDate != nil && toDate == nil {
		t := dateOnly(time.Now().UTC())
		toDate = &t
	}
	rows, err := s.expenses.ListByDateRange(ctx, userID, fromDate, toDate)
	if err != nil {
		return nil, fmt.Errorf("query expenses: %w", err)
	}
	return rows, nil
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func deductibleAmount(e *entity.Expense) string {
	if e.TaxDeductible {
		return e.Amount.StringFixed(2)
	}
	return "0.00"
}

func strVal(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 1 {
		return s[:n]
	}
	return s[:n-1] + "…"
}
