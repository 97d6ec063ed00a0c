package feedback

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lahirugmg/business-cost-tracker/internal/common"
	"github.com/lahirugmg/business-cost-tracker/internal/entity"
	"github.com/lahirugmg/business-cost-tracker/internal/hints"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubTxStore struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*entity.Transaction
}

func newStubTxStore() *stubTxStore {
	return &stubTxStore{rows: make(map[uuid.UUID]*entity.Transaction)}
}

func (s *stubTxStore) put(tx *entity.Transaction) {
	s.mu.Lock()
	s.rows[tx.ID] = tx
	s.mu.Unlock()
}

func (s *stubTxStore) GetByID(_ context.Context, id uuid.UUID) (*entity.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.rows[id]
	if !ok {
		return nil, common.NotFoundError("transaction")
	}
	c := *tx
	return &c, nil
}

func (s *stubTxStore) Update(_ context.Context, id uuid.UUID, upd entity.TransactionUpdate) (*entity.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.rows[id]
	if !ok {
		return nil, common.NotFoundError("transaction")
	}
	if upd.Description != nil {
		tx.Description = *upd.Description
	}
	if upd.Amount != nil {
		tx.Amount = *upd.Amount
	}
	if upd.Date != nil {
		tx.Date = *upd.Date
	}
	if upd.Category != nil {
		tx.Category = *upd.Category
	}
	if upd.Verified != nil {
		tx.Verified = *upd.Verified
	}
	if upd.UserVerified != nil {
		tx.UserVerified = *upd.UserVerified
	}
	if upd.CorrectionHistory != nil {
		tx.CorrectionHistory = upd.CorrectionHistory
	}
	tx.UpdatedAt = time.Now().UTC()
	c := *tx
	return &c, nil
}

type stubReceiptStore struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*entity.Receipt
}

func newStubReceiptStore() *stubReceiptStore {
	return &stubReceiptStore{rows: make(map[uuid.UUID]*entity.Receipt)}
}

func (s *stubReceiptStore) put(rec *entity.Receipt) {
	s.mu.Lock()
	s.rows[rec.ID] = rec
	s.mu.Unlock()
}

func (s *stubReceiptStore) GetByID(_ context.Context, id uuid.UUID) (*entity.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.rows[id]
	if !ok {
		return nil, common.NotFoundError("receipt")
	}
	c := *rec
	return &c, nil
}

func (s *stubReceiptStore) Update(_ context.Context, id, userID uuid.UUID, upd entity.ReceiptUpdate) (*entity.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.rows[id]
	if !ok || rec.UserID != userID {
		return nil, common.NotFoundError("receipt")
	}
	if upd.Feedback != nil {
		rec.Feedback = upd.Feedback
	}
	if upd.MerchantName != nil {
		rec.MerchantName = upd.MerchantName
	}
	rec.UpdatedAt = time.Now().UTC()
	c := *rec
	return &c, nil
}

type feedbackFixture struct {
	svc   *Service
	txs   *stubTxStore
	recs  *stubReceiptStore
	table *hints.Table
}

func newFeedbackFixture(t *testing.T) *feedbackFixture {
	t.Helper()
	txs := newStubTxStore()
	recs := newStubReceiptStore()
	table := hints.NewTable(context.Background(), nil, testLogger())
	svc := NewService(txs, recs, table, testLogger())
	return &feedbackFixture{svc: svc, txs: txs, recs: recs, table: table}
}

func (fx *feedbackFixture) seed(t *testing.T, userID uuid.UUID) *entity.Transaction {
	t.Helper()
	rec := &entity.Receipt{ID: uuid.New(), UserID: userID, Filename: "r.pdf"}
	fx.recs.put(rec)
	tx := &entity.Transaction{
		ID:          uuid.New(),
		ReceiptID:   rec.ID,
		Description: "Coffe",
		Amount:      decimal.RequireFromString("3.50"),
		Date:        time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
		Category:    "Miscellaneous",
	}
	fx.txs.put(tx)
	return tx
}

func strp(s string) *string { return &s }

func TestRecordTransactionFeedbackAppliesCorrections(t *testing.T) {
	fx := newFeedbackFixture(t)
	userID := uuid.New()
	tx := fx.seed(t, userID)

	amount := decimal.RequireFromString("4.00")
	corr := entity.TransactionCorrection{
		Description:         strp("Coffee"),
		Amount:              &amount,
		Date:                strp("2026-05-02"),
		Category:            strp("Food"),
		OriginalDescription: strp("Coffe"),
	}
	updated, err := fx.svc.RecordTransactionFeedback(context.Background(), userID, tx.ID, corr)
	require.NoError(t, err)

	assert.Equal(t, "Coffee", updated.Description)
	assert.True(t, updated.Amount.Equal(amount))
	assert.Equal(t, "2026-05-02", updated.Date.Format("2006-01-02"))
	assert.Equal(t, "Food", updated.Category)
	assert.True(t, updated.Verified)
	assert.True(t, updated.UserVerified)

	require.Len(t, updated.CorrectionHistory, 1)
	for _, entry := range updated.CorrectionHistory {
		assert.Equal(t, "Coffe", entry.Previous.Description)
		assert.True(t, entry.Previous.Amount.Equal(decimal.RequireFromString("3.50")))
		require.NotNil(t, entry.Previous.Date)
		assert.Equal(t, "2026-05-01", *entry.Previous.Date)
		assert.Equal(t, "Miscellaneous", entry.Previous.Category)
		assert.Equal(t, corr, entry.Corrections)
	}

	// The misspelling now routes straight to the corrected category.
	cat, ok := fx.table.Suggest("Coffe", "")
	require.True(t, ok)
	assert.Equal(t, "Food", cat)
}

func TestRecordTransactionFeedbackPartialUpdate(t *testing.T) {
	fx := newFeedbackFixture(t)
	userID := uuid.New()
	tx := fx.seed(t, userID)

	updated, err := fx.svc.RecordTransactionFeedback(context.Background(), userID, tx.ID, entity.TransactionCorrection{
		Category: strp("Food"),
	})
	require.NoError(t, err)

	assert.Equal(t, "Coffe", updated.Description)
	assert.True(t, updated.Amount.Equal(decimal.RequireFromString("3.50")))
	assert.Equal(t, "2026-05-01", updated.Date.Format("2006-01-02"))
	assert.Equal(t, "Food", updated.Category)
	assert.True(t, updated.Verified)
	assert.True(t, updated.UserVerified)
}

func TestRecordTransactionFeedbackHistoryAccumulates(t *testing.T) {
	fx := newFeedbackFixture(t)
	userID := uuid.New()
	tx := fx.seed(t, userID)

	base := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	step := 0
	fx.svc.now = func() time.Time {
		step++
		return base.Add(time.Duration(step) * time.Second)
	}

	_, err := fx.svc.RecordTransactionFeedback(context.Background(), userID, tx.ID, entity.TransactionCorrection{
		Description: strp("Coffee"),
	})
	require.NoError(t, err)
	updated, err := fx.svc.RecordTransactionFeedback(context.Background(), userID, tx.ID, entity.TransactionCorrection{
		Category: strp("Food"),
	})
	require.NoError(t, err)

	require.Len(t, updated.CorrectionHistory, 2)
	second, ok := updated.CorrectionHistory[base.Add(2*time.Second).Format(time.RFC3339Nano)]
	require.True(t, ok)
	// The second entry's snapshot reflects the first correction.
	assert.Equal(t, "Coffee", second.Previous.Description)
}

func TestRecordTransactionFeedbackRejectsBadDate(t *testing.T) {
	fx := newFeedbackFixture(t)
	userID := uuid.New()
	tx := fx.seed(t, userID)

	_, err := fx.svc.RecordTransactionFeedback(context.Background(), userID, tx.ID, entity.TransactionCorrection{
		Date: strp("05/02/2026"),
	})
	assert.ErrorIs(t, err, common.ErrInvalidInput)

	// Nothing was applied.
	row, err := fx.txs.GetByID(context.Background(), tx.ID)
	require.NoError(t, err)
	assert.False(t, row.Verified)
	assert.Empty(t, row.CorrectionHistory)
}

func TestRecordTransactionFeedbackOwnership(t *testing.T) {
	fx := newFeedbackFixture(t)
	tx := fx.seed(t, uuid.New())

	_, err := fx.svc.RecordTransactionFeedback(context.Background(), uuid.New(), tx.ID, entity.TransactionCorrection{})
	assert.ErrorIs(t, err, common.ErrForbidden)

	_, err = fx.svc.RecordTransactionFeedback(context.Background(), uuid.New(), uuid.New(), entity.TransactionCorrection{})
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestRecordTransactionFeedbackSeedsNewCategory(t *testing.T) {
	fx := newFeedbackFixture(t)
	userID := uuid.New()
	tx := fx.seed(t, userID)

	_, err := fx.svc.RecordTransactionFeedback(context.Background(), userID, tx.ID, entity.TransactionCorrection{
		Category:            strp("Pet Supplies"),
		OriginalDescription: strp("Premium dog food bag"),
	})
	require.NoError(t, err)

	cat, ok := fx.table.Suggest("premium", "")
	require.True(t, ok)
	assert.Equal(t, "Pet Supplies", cat)
}

func TestRecordTransactionFeedbackWithoutOriginalDoesNotLearn(t *testing.T) {
	fx := newFeedbackFixture(t)
	userID := uuid.New()
	tx := fx.seed(t, userID)
	before := len(fx.table.Snapshot())

	_, err := fx.svc.RecordTransactionFeedback(context.Background(), userID, tx.ID, entity.TransactionCorrection{
		Category: strp("Stationery"),
	})
	require.NoError(t, err)
	assert.Len(t, fx.table.Snapshot(), before)
}

func TestRecordReceiptFeedbackMerges(t *testing.T) {
	fx := newFeedbackFixture(t)
	userID := uuid.New()
	rec := &entity.Receipt{
		ID:       uuid.New(),
		UserID:   userID,
		Feedback: map[string]any{"rating": 3, "note": "ok"},
	}
	fx.recs.put(rec)

	updated, err := fx.svc.RecordReceiptFeedback(context.Background(), userID, rec.ID, map[string]any{
		"note":    "great",
		"flagged": true,
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"rating": 3, "note": "great", "flagged": true}, updated.Feedback)

	_, err = fx.svc.RecordReceiptFeedback(context.Background(), uuid.New(), rec.ID, map[string]any{})
	assert.ErrorIs(t, err, common.ErrForbidden)

	_, err = fx.svc.RecordReceiptFeedback(context.Background(), userID, uuid.New(), map[string]any{})
	assert.ErrorIs(t, err, common.ErrNotFound)
}
