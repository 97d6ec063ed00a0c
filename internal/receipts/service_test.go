package receipts

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lahirugmg/business-cost-tracker/constants"
	"github.com/lahirugmg/business-cost-tracker/internal/async"
	"github.com/lahirugmg/business-cost-tracker/internal/common"
	"github.com/lahirugmg/business-cost-tracker/internal/entity"
	"github.com/lahirugmg/business-cost-tracker/internal/ingest"
	"github.com/lahirugmg/business-cost-tracker/internal/repository"
)

type stubExpenses struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*entity.Expense
}

func newStubExpenses() *stubExpenses {
	return &stubExpenses{rows: make(map[uuid.UUID]*entity.Expense)}
}

func (s *stubExpenses) Create(_ context.Context, req *repository.CreateExpenseRequest) (*entity.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	exp := &entity.Expense{
		ID:                 uuid.New(),
		UserID:             req.UserID,
		Amount:             req.Amount,
		Description:        req.Description,
		Date:               req.Date,
		Category:           req.Category,
		PropertyType:       req.PropertyType,
		TaxDeductible:      req.TaxDeductible,
		AttachmentFilename: req.AttachmentFilename,
		AttachmentPath:     req.AttachmentPath,
		CreatedAt:          now,
	}
	if exp.Date.IsZero() {
		exp.Date = now
	}
	s.rows[exp.ID] = exp
	c := *exp
	return &c, nil
}

func (s *stubExpenses) GetByID(_ context.Context, id uuid.UUID) (*entity.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.rows[id]
	if !ok {
		return nil, common.NotFoundError("expense")
	}
	c := *exp
	return &c, nil
}

func (s *stubExpenses) List(_ context.Context, userID uuid.UUID, _, _ int) ([]*entity.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*entity.Expense
	for _, exp := range s.rows {
		if exp.UserID == userID {
			c := *exp
			out = append(out, &c)
		}
	}
	return out, nil
}

func (s *stubExpenses) Delete(_ context.Context, id, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.rows[id]
	if !ok || exp.UserID != userID {
		return common.NotFoundError("expense")
	}
	delete(s.rows, id)
	return nil
}

type stubQueue struct {
	mu   sync.Mutex
	jobs []async.Job
	err  error
}

func (q *stubQueue) Enqueue(_ context.Context, job async.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *stubQueue) Shutdown(context.Context) error { return nil }

func (s *stubReceipts) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

type fixture struct {
	svc    *Service
	proc   *Processor
	recs   *stubReceipts
	txs    *stubTxs
	exps   *stubExpenses
	queue  *stubQueue
	store  *ingest.Store
	ext    *fakeExtractor
	parser *fakeParser
	events *eventLog
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	events := &eventLog{}
	recs := newStubReceipts(events)
	txs := newStubTxs(events)
	store, err := ingest.NewStore(t.TempDir(), testLogger())
	require.NoError(t, err)
	ext := &fakeExtractor{text: "CORNER CAFE 12.00"}
	parser := &fakeParser{draft: entity.ReceiptDraft{
		MerchantName: strp("Corner Cafe"),
		ReceiptDate:  strp("2026-04-02"),
		ReceiptTotal: decp("12.00"),
		Transactions: []entity.TransactionDraft{
			{Description: "Lunch special", Amount: decimal.RequireFromString("12.00"), Category: "Food"},
		},
	}}
	proc := newTestProcessor(t, recs, txs, ext, parser)
	queue := &stubQueue{}
	exps := newStubExpenses()
	svc := NewService(recs, txs, exps, store, proc, queue, testLogger())
	return &fixture{
		svc: svc, proc: proc, recs: recs, txs: txs, exps: exps,
		queue: queue, store: store, ext: ext, parser: parser, events: events,
	}
}

func (fx *fixture) submitSync(t *testing.T, userID uuid.UUID) SubmitResult {
	t.Helper()
	res, err := fx.svc.Submit(context.Background(), SubmitRequest{
		UserID:   userID,
		Filename: "lunch.png",
		Data:     []byte("fake image bytes"),
	})
	require.NoError(t, err)
	return res
}

func TestSubmitSyncProcessesInline(t *testing.T) {
	fx := newFixture(t)
	userID := uuid.New()

	res := fx.submitSync(t, userID)
	assert.False(t, res.Deduplicated)

	rec := res.Receipt
	assert.Equal(t, string(constants.JobStatusCompleted), rec.Status)
	assert.Equal(t, 1.0, rec.Progress)
	assert.Equal(t, "lunch.png", rec.Filename)
	assert.Equal(t, "png", rec.FileExt)
	require.NotNil(t, rec.MerchantName)
	assert.Equal(t, "Corner Cafe", *rec.MerchantName)

	require.Len(t, res.Transactions, 1)
	assert.Equal(t, "Lunch special", res.Transactions[0].Description)
	assert.Equal(t, "Food", res.Transactions[0].Category)
	assert.Equal(t, "2026-04-02", res.Transactions[0].Date.Format("2006-01-02"))

	_, err := os.Stat(rec.FilePath)
	require.NoError(t, err)

	st, err := fx.svc.Status(context.Background(), userID, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, string(constants.JobStatusCompleted), st.Status)
	assert.Equal(t, 1.0, st.Progress)
}

func TestSubmitRejectsUnsupportedFormat(t *testing.T) {
	fx := newFixture(t)
	for _, name := range []string{"notes.txt", "receipt", "archive.zip"} {
		_, err := fx.svc.Submit(context.Background(), SubmitRequest{
			UserID:   uuid.New(),
			Filename: name,
			Data:     []byte("payload"),
		})
		assert.ErrorIs(t, err, common.ErrInvalidInput, "filename %q", name)
	}
	assert.Equal(t, 0, fx.recs.count())
}

func TestSubmitValidatesInput(t *testing.T) {
	fx := newFixture(t)

	_, err := fx.svc.Submit(context.Background(), SubmitRequest{Filename: "a.png", Data: []byte("x")})
	assert.ErrorIs(t, err, common.ErrInvalidInput)

	_, err = fx.svc.Submit(context.Background(), SubmitRequest{UserID: uuid.New(), Filename: "a.png"})
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestSubmitDeduplicatesContent(t *testing.T) {
	fx := newFixture(t)
	userID := uuid.New()

	first := fx.submitSync(t, userID)

	again, err := fx.svc.Submit(context.Background(), SubmitRequest{
		UserID:   userID,
		Filename: "same-receipt-renamed.png",
		Data:     []byte("fake image bytes"),
	})
	require.NoError(t, err)
	assert.True(t, again.Deduplicated)
	assert.Equal(t, first.Receipt.ID, again.Receipt.ID)
	require.Len(t, again.Transactions, 1)
	assert.Equal(t, 1, fx.recs.count())

	// The duplicate copy written by SaveUpload is removed again.
	files, err := os.ReadDir(fx.store.Dir())
	require.NoError(t, err)
	assert.Len(t, files, 1)

	// Same bytes from a different user are not a duplicate.
	other, err := fx.svc.Submit(context.Background(), SubmitRequest{
		UserID:   uuid.New(),
		Filename: "lunch.png",
		Data:     []byte("fake image bytes"),
	})
	require.NoError(t, err)
	assert.False(t, other.Deduplicated)
	assert.Equal(t, 2, fx.recs.count())
}

func TestSubmitAsyncQueuesJob(t *testing.T) {
	fx := newFixture(t)
	userID := uuid.New()

	res, err := fx.svc.Submit(context.Background(), SubmitRequest{
		UserID:   userID,
		Filename: "lunch.png",
		Data:     []byte("fake image bytes"),
		Async:    true,
	})
	require.NoError(t, err)
	assert.Equal(t, string(constants.JobStatusProcessing), res.Receipt.Status)
	assert.Empty(t, res.Transactions)
	assert.Equal(t, 0, fx.ext.callCount())

	require.Len(t, fx.queue.jobs, 1)
	assert.Equal(t, res.Receipt.ID, fx.queue.jobs[0].ReceiptID)
	assert.Equal(t, userID, fx.queue.jobs[0].UserID)

	// A poll immediately after submit already sees the queued state.
	st, err := fx.svc.Status(context.Background(), userID, res.Receipt.ID)
	require.NoError(t, err)
	assert.Equal(t, string(constants.JobStatusProcessing), st.Status)
	assert.Equal(t, progressQueued, st.Progress)
	assert.Equal(t, "Receipt uploaded, queued for processing", st.Message)

	// Drain the job the way a worker would and poll again.
	require.NoError(t, fx.proc.Process(context.Background(), fx.queue.jobs[0]))
	st, err = fx.svc.Status(context.Background(), userID, res.Receipt.ID)
	require.NoError(t, err)
	assert.Equal(t, string(constants.JobStatusCompleted), st.Status)
	assert.Equal(t, 1.0, st.Progress)
}

func TestSubmitAsyncEnqueueFailureMarksJobFailed(t *testing.T) {
	fx := newFixture(t)
	fx.queue.err = async.ErrQueueFull
	userID := uuid.New()

	_, err := fx.svc.Submit(context.Background(), SubmitRequest{
		UserID:   userID,
		Filename: "lunch.png",
		Data:     []byte("fake image bytes"),
		Async:    true,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, async.ErrQueueFull)

	// The job row survives in failed state and stays queryable.
	recs, listErr := fx.svc.List(context.Background(), userID, 0, 10)
	require.NoError(t, listErr)
	require.Len(t, recs, 1)
	assert.Equal(t, string(constants.JobStatusFailed), recs[0].Status)

	st, stErr := fx.svc.Status(context.Background(), userID, recs[0].ID)
	require.NoError(t, stErr)
	assert.Equal(t, string(constants.JobStatusFailed), st.Status)
	assert.Contains(t, st.Message, "queue processing job")
}

func TestStatusHidesForeignReceipts(t *testing.T) {
	fx := newFixture(t)
	owner := uuid.New()
	res := fx.submitSync(t, owner)

	_, err := fx.svc.Status(context.Background(), uuid.New(), res.Receipt.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)

	_, err = fx.svc.Status(context.Background(), owner, uuid.New())
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestStatusFallsBackToRow(t *testing.T) {
	fx := newFixture(t)
	userID := uuid.New()

	// Rows that predate this process have no cache entry; the status view is
	// derived from the columns alone.
	done := &entity.Receipt{ID: uuid.New(), UserID: userID, Status: string(constants.JobStatusCompleted), Processed: true}
	msg := "text extraction failed"
	failed := &entity.Receipt{ID: uuid.New(), UserID: userID, Status: string(constants.JobStatusFailed), Progress: 0.25, ErrorMessage: &msg}
	legacy := &entity.Receipt{ID: uuid.New(), UserID: userID}
	fx.recs.put(done)
	fx.recs.put(failed)
	fx.recs.put(legacy)

	st, err := fx.svc.Status(context.Background(), userID, done.ID)
	require.NoError(t, err)
	assert.Equal(t, string(constants.JobStatusCompleted), st.Status)
	assert.Equal(t, 1.0, st.Progress)
	assert.Equal(t, "Processing completed", st.Message)

	st, err = fx.svc.Status(context.Background(), userID, failed.ID)
	require.NoError(t, err)
	assert.Equal(t, string(constants.JobStatusFailed), st.Status)
	assert.Equal(t, 0.25, st.Progress)
	assert.Equal(t, "text extraction failed", st.Message)

	st, err = fx.svc.Status(context.Background(), userID, legacy.ID)
	require.NoError(t, err)
	assert.Equal(t, "unknown", st.Status)
	assert.Equal(t, 0.0, st.Progress)
	assert.Equal(t, "Processing unknown", st.Message)
}

func TestGetEnforcesOwnership(t *testing.T) {
	fx := newFixture(t)
	owner := uuid.New()
	res := fx.submitSync(t, owner)

	rec, txs, err := fx.svc.Get(context.Background(), owner, res.Receipt.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Receipt.ID, rec.ID)
	require.Len(t, txs, 1)

	_, _, err = fx.svc.Get(context.Background(), uuid.New(), res.Receipt.ID)
	assert.ErrorIs(t, err, common.ErrForbidden)

	_, _, err = fx.svc.Get(context.Background(), owner, uuid.New())
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestUpdateReceiptFields(t *testing.T) {
	fx := newFixture(t)
	owner := uuid.New()
	res := fx.submitSync(t, owner)

	verified := true
	updated, err := fx.svc.Update(context.Background(), owner, res.Receipt.ID, entity.ReceiptUpdate{
		MerchantName: strp("Corner Cafe Downtown"),
		Verified:     &verified,
	})
	require.NoError(t, err)
	assert.Equal(t, "Corner Cafe Downtown", *updated.MerchantName)
	assert.True(t, updated.Verified)

	_, err = fx.svc.Update(context.Background(), uuid.New(), res.Receipt.ID, entity.ReceiptUpdate{})
	assert.ErrorIs(t, err, common.ErrForbidden)
}

func TestDeleteRemovesReceiptAndCache(t *testing.T) {
	fx := newFixture(t)
	owner := uuid.New()
	res := fx.submitSync(t, owner)

	err := fx.svc.Delete(context.Background(), uuid.New(), res.Receipt.ID)
	assert.ErrorIs(t, err, common.ErrForbidden)

	require.NoError(t, fx.svc.Delete(context.Background(), owner, res.Receipt.ID))
	assert.Equal(t, 0, fx.recs.count())
	_, ok := fx.proc.tracker.get(res.Receipt.ID)
	assert.False(t, ok)

	_, err = fx.svc.Status(context.Background(), owner, res.Receipt.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestUpdateTransactionEnforcesOwnership(t *testing.T) {
	fx := newFixture(t)
	owner := uuid.New()
	res := fx.submitSync(t, owner)
	txID := res.Transactions[0].ID

	updated, err := fx.svc.UpdateTransaction(context.Background(), owner, txID, entity.TransactionUpdate{
		Description: strp("Team lunch"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Team lunch", updated.Description)
	assert.Equal(t, "Food", updated.Category)

	_, err = fx.svc.UpdateTransaction(context.Background(), uuid.New(), txID, entity.TransactionUpdate{})
	assert.ErrorIs(t, err, common.ErrForbidden)

	_, err = fx.svc.UpdateTransaction(context.Background(), owner, uuid.New(), entity.TransactionUpdate{})
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestAddToExpensesLifecycle(t *testing.T) {
	fx := newFixture(t)
	owner := uuid.New()
	res := fx.submitSync(t, owner)
	txID := res.Transactions[0].ID

	exp, tx, err := fx.svc.AddToExpenses(context.Background(), owner, txID)
	require.NoError(t, err)
	assert.True(t, exp.Amount.Equal(decimal.RequireFromString("12.00")))
	assert.Equal(t, "Lunch special", exp.Description)
	assert.Equal(t, "Food", exp.Category)
	require.NotNil(t, exp.AttachmentFilename)
	assert.Equal(t, "lunch.png", *exp.AttachmentFilename)
	require.NotNil(t, exp.AttachmentPath)
	assert.Equal(t, res.Receipt.FilePath, *exp.AttachmentPath)

	assert.True(t, tx.AddedToExpenses)
	require.NotNil(t, tx.ExpenseID)
	assert.Equal(t, exp.ID, *tx.ExpenseID)

	_, _, err = fx.svc.AddToExpenses(context.Background(), owner, txID)
	assert.ErrorIs(t, err, common.ErrInvalidInput)

	_, _, err = fx.svc.AddToExpenses(context.Background(), uuid.New(), txID)
	assert.ErrorIs(t, err, common.ErrForbidden)

	_, _, err = fx.svc.AddToExpenses(context.Background(), owner, uuid.New())
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestMerchantInsights(t *testing.T) {
	fx := newFixture(t)
	userID := uuid.New()
	now := time.Now().UTC()

	seed := func(total *decimal.Decimal, age time.Duration, categories ...string) {
		rec := &entity.Receipt{
			ID:           uuid.New(),
			UserID:       userID,
			MerchantName: strp("Costco"),
			ReceiptTotal: total,
			Status:       string(constants.JobStatusCompleted),
			Processed:    true,
			CreatedAt:    now.Add(-age),
		}
		fx.recs.put(rec)
		for _, cat := range categories {
			_, err := fx.txs.Create(context.Background(), &repository.CreateTransactionRequest{
				ReceiptID:   rec.ID,
				Description: cat + " purchase",
				Amount:      decimal.RequireFromString("10.00"),
				Category:    cat,
			})
			require.NoError(t, err)
		}
	}

	seed(decp("100.00"), 0, "Food", "Food")
	seed(decp("50.00"), time.Minute, "Travel", "Travel")
	seed(nil, 2*time.Minute, "Office Supplies", "Miscellaneous")

	insights, err := fx.svc.InsightsFor(context.Background(), userID, "Costco")
	require.NoError(t, err)
	require.NotNil(t, insights)
	assert.Equal(t, "Costco", insights.MerchantName)
	assert.Equal(t, 3, insights.ReceiptCount)
	// Only the two non-null totals participate in the average.
	assert.True(t, insights.AverageSpend.Equal(decimal.RequireFromString("75.00")),
		"average spend = %s", insights.AverageSpend)
	// Food and Travel tie on count; the earlier first appearance wins.
	assert.Equal(t, []string{"Food", "Travel", "Office Supplies"}, insights.TopCategories)

	none, err := fx.svc.InsightsFor(context.Background(), userID, "Nowhere Mart")
	require.NoError(t, err)
	assert.Nil(t, none)

	_, err = fx.svc.InsightsFor(context.Background(), userID, "   ")
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}
