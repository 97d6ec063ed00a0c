package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/lahirugmg/business-cost-tracker/internal/common"
	"github.com/lahirugmg/business-cost-tracker/internal/entity"
	"github.com/lahirugmg/business-cost-tracker/internal/repository"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubExpenses struct {
	rows    []*entity.Expense
	gotFrom *time.Time
	gotTo   *time.Time
}

func (s *stubExpenses) Create(context.Context, *repository.CreateExpenseRequest) (*entity.Expense, error) {
	return nil, common.ErrInternal
}

func (s *stubExpenses) GetByID(context.Context, uuid.UUID) (*entity.Expense, error) {
	return nil, common.NotFoundError("expense")
}

func (s *stubExpenses) List(context.Context, uuid.UUID, int, int) ([]*entity.Expense, error) {
	return s.rows, nil
}

func (s *stubExpenses) ListByDateRange(_ context.Context, _ uuid.UUID, from, to *time.Time) ([]*entity.Expense, error) {
	s.gotFrom = from
	s.gotTo = to
	return s.rows, nil
}

func (s *stubExpenses) Delete(context.Context, uuid.UUID, uuid.UUID) error {
	return nil
}

func seedExpenses(userID uuid.UUID) []*entity.Expense {
	office := "Home Office"
	attPath := "/var/lib/costtracker/uploads/receipt-1.pdf"
	return []*entity.Expense{
		{
			ID:             uuid.New(),
			UserID:         userID,
			Amount:         decimal.RequireFromString("129.99"),
			Description:    "Standing desk, small",
			Date:           time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC),
			Category:       "Office Supplies",
			PropertyType:   &office,
			TaxDeductible:  true,
			AttachmentPath: &attPath,
		},
		{
			ID:            uuid.New(),
			UserID:        userID,
			Amount:        decimal.RequireFromString("42.5"),
			Description:   "Team lunch",
			Date:          time.Date(2026, 7, 3, 0, 0, 0, 0, time.UTC),
			Category:      "Food",
			TaxDeductible: false,
		},
	}
}

func TestExportExpensesXLSX(t *testing.T) {
	userID := uuid.New()
	store := &stubExpenses{rows: seedExpenses(userID)}
	svc := NewService(store, testLogger())

	b, err := svc.ExportExpensesXLSX(context.Background(), userID, nil, nil)
	require.NoError(t, err)
	require.NotEmpty(t, b)

	f, err := excelize.OpenReader(bytes.NewReader(b))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Expenses")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, exportHeaders, rows[0])

	cell := func(ref string) string {
		v, err := f.GetCellValue("Expenses", ref)
		require.NoError(t, err)
		return v
	}
	assert.Equal(t, "2026-07-01", cell("A2"))
	assert.Equal(t, "Office Supplies", cell("B2"))
	assert.Equal(t, "Standing desk, small", cell("C2"))
	assert.Equal(t, "129.99", cell("D2"))
	assert.Equal(t, "129.99", cell("E2"))
	assert.Equal(t, "Home Office", cell("F2"))
	assert.Equal(t, "/var/lib/costtracker/uploads/receipt-1.pdf", cell("G2"))

	assert.Equal(t, "42.50", cell("D3"))
	assert.Equal(t, "0.00", cell("E3"))
	assert.Equal(t, "", cell("F3"))
	assert.Equal(t, "", cell("G3"))
}

func TestExportExpensesCSV(t *testing.T) {
	userID := uuid.New()
	store := &stubExpenses{rows: seedExpenses(userID)}
	svc := NewService(store, testLogger())

	b, err := svc.ExportExpensesCSV(context.Background(), userID, nil, nil)
	require.NoError(t, err)

	records, err := csv.NewReader(bytes.NewReader(b)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, []string{
		"Date", "Category", "Description", "Amount",
		"DeductibleAmount", "PropertyType", "Attachment",
	}, records[0])
	assert.Equal(t, []string{
		"2026-07-01", "Office Supplies", "Standing desk, small",
		"129.99", "129.99", "Home Office",
		"/var/lib/costtracker/uploads/receipt-1.pdf",
	}, records[1])
	assert.Equal(t, []string{
		"2026-07-03", "Food", "Team lunch", "42.50", "0.00", "", "",
	}, records[2])
}

func TestExportWindowNormalization(t *testing.T) {
	userID := uuid.New()
	store := &stubExpenses{}
	svc := NewService(store, testLogger())

	from := time.Date(2026, 7, 15, 13, 45, 12, 0, time.UTC)
	to := time.Date(2026, 7, 20, 8, 1, 0, 0, time.UTC)
	_, err := svc.ExportExpensesCSV(context.Background(), userID, &from, &to)
	require.NoError(t, err)
	require.NotNil(t, store.gotFrom)
	require.NotNil(t, store.gotTo)
	assert.Equal(t, time.Date(2026, 7, 15, 0, 0, 0, 0, time.UTC), *store.gotFrom)
	assert.Equal(t, time.Date(2026, 7, 20, 0, 0, 0, 0, time.UTC), *store.gotTo)

	// Open-ended from snaps the upper bound to today.
	_, err = svc.ExportExpensesXLSX(context.Background(), userID, &from, nil)
	require.NoError(t, err)
	require.NotNil(t, store.gotTo)
	assert.Equal(t, dateOnly(time.Now().UTC()), *store.gotTo)

	// No bounds at all stay open.
	_, err = svc.ExportExpensesXLSX(context.Background(), userID, nil, nil)
	require.NoError(t, err)
	assert.Nil(t, store.gotFrom)
	assert.Nil(t, store.gotTo)
}

func TestExportEmptyLedger(t *testing.T) {
	userID := uuid.New()
	svc := NewService(&stubExpenses{}, testLogger())

	b, err := svc.ExportExpensesCSV(context.Background(), userID, nil, nil)
	require.NoError(t, err)
	records, err := csv.NewReader(bytes.NewReader(b)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 1)

	xb, err := svc.ExportExpensesXLSX(context.Background(), userID, nil, nil)
	require.NoError(t, err)
	f, err := excelize.OpenReader(bytes.NewReader(xb))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Expenses")
	require.NoError(t, err)
	require.Len(t, rows, 1)
}
