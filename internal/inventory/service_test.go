package inventory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/redcell/bloodlink/internal/blood"
	"github.com/redcell/bloodlink/internal/clock"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *memStore) {
	t.Helper()
	store := newMemStore()
	svc := NewService(store, store, clock.NewFixed(testNow), zap.NewNop())
	return svc, store
}

func TestCreateBatchDefaults(t *testing.T) {
	svc, store := newTestService(t)
	hospital := uuid.New()

	batch, err := svc.CreateBatch(context.Background(), CreateBatchInput{
		HospitalID: hospital,
		BloodGroup: blood.APos,
		Units:      6,
	})
	require.NoError(t, err)

	assert.Equal(t, testNow, batch.CollectedDate)
	assert.Equal(t, testNow.Add(35*24*time.Hour), batch.ExpiryDate)
	assert.Equal(t, SourceDonation, batch.SourceType)

	counts, err := store.Get(context.Background(), hospital)
	require.NoError(t, err)
	assert.Equal(t, 6, counts[blood.APos])
}

func TestCreateBatchRejectsNonPositiveUnits(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.CreateBatch(context.Background(), CreateBatchInput{
		HospitalID: uuid.New(),
		BloodGroup: blood.APos,
		Units:      0,
	})
	assert.Error(t, err)
}

func TestGetInventoryListsAllGroups(t *testing.T) {
	svc, _ := newTestService(t)
	hospital := uuid.New()

	_, err := svc.CreateBatch(context.Background(), CreateBatchInput{
		HospitalID: hospital, BloodGroup: blood.OPos, Units: 12,
	})
	require.NoError(t, err)
	_, err = svc.CreateBatch(context.Background(), CreateBatchInput{
		HospitalID: hospital, BloodGroup: blood.ABNeg, Units: 7,
	})
	require.NoError(t, err)

	items, err := svc.GetInventory(context.Background(), hospital)
	require.NoError(t, err)
	require.Len(t, items, len(blood.AllGroups))

	byGroup := make(map[blood.Group]Item)
	for _, it := range items {
		byGroup[it.BloodGroup] = it
	}
	assert.Equal(t, 12, byGroup[blood.OPos].Units)
	assert.Equal(t, StockGood, byGroup[blood.OPos].Status)
	assert.Equal(t, 7, byGroup[blood.ABNeg].Units)
	assert.Equal(t, StockLow, byGroup[blood.ABNeg].Status)
	assert.Equal(t, 0, byGroup[blood.BNeg].Units)
	assert.Equal(t, StockCritical, byGroup[blood.BNeg].Status)
}

func TestThresholdsClassify(t *testing.T) {
	cases := []struct {
		units int
		want  StockStatus
	}{
		{0, StockCritical},
		{4, StockCritical},
		{5, StockLow},
		{9, StockLow},
		{10, StockGood},
		{40, StockGood},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, DefaultThresholds.Classify(tc.units), "units=%d", tc.units)
	}
}

func TestReserveConsumesOldestFirst(t *testing.T) {
	svc, store := newTestService(t)
	hospital := uuid.New()

	older, err := svc.CreateBatch(context.Background(), CreateBatchInput{
		HospitalID: hospital, BloodGroup: blood.OPos, Units: 3,
		CollectedDate: testNow.AddDate(0, 0, -20),
	})
	require.NoError(t, err)
	newer, err := svc.CreateBatch(context.Background(), CreateBatchInput{
		HospitalID: hospital, BloodGroup: blood.OPos, Units: 5,
		CollectedDate: testNow.AddDate(0, 0, -2),
	})
	require.NoError(t, err)

	require.NoError(t, svc.Reserve(context.Background(), hospital, blood.OPos, 4))

	// The older batch drains fully before the newer one is touched.
	b, err := store.GetBatchByID(context.Background(), older.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, b.Units)
	assert.Equal(t, BatchDepleted, b.Status)

	b, err = store.GetBatchByID(context.Background(), newer.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, b.Units)

	counts, err := store.Get(context.Background(), hospital)
	require.NoError(t, err)
	assert.Equal(t, 4, counts[blood.OPos])
}

func TestReserveInsufficientStock(t *testing.T) {
	svc, store := newTestService(t)
	hospital := uuid.New()

	_, err := svc.CreateBatch(context.Background(), CreateBatchInput{
		HospitalID: hospital, BloodGroup: blood.OPos, Units: 3,
	})
	require.NoError(t, err)

	err = svc.Reserve(context.Background(), hospital, blood.OPos, 5)
	require.ErrorIs(t, err, ErrInsufficientStock)

	// A failed reserve must not touch the counter.
	counts, err := store.Get(context.Background(), hospital)
	require.NoError(t, err)
	assert.Equal(t, 3, counts[blood.OPos])
}

func TestRefundCreatesRestockBatch(t *testing.T) {
	svc, store := newTestService(t)
	hospital := uuid.New()

	_, err := svc.CreateBatch(context.Background(), CreateBatchInput{
		HospitalID: hospital, BloodGroup: blood.BPos, Units: 8,
	})
	require.NoError(t, err)
	require.NoError(t, svc.Reserve(context.Background(), hospital, blood.BPos, 8))

	require.NoError(t, svc.Refund(context.Background(), hospital, blood.BPos, 8, "cancelled request"))

	counts, err := store.Get(context.Background(), hospital)
	require.NoError(t, err)
	assert.Equal(t, 8, counts[blood.BPos])

	// Batches are never topped up: the refund arrives as a new batch,
	// keeping the aggregate equal to the sum of live batch units.
	batches, err := store.ListBatches(context.Background(), hospital)
	require.NoError(t, err)
	require.Len(t, batches, 2)
	live := 0
	for _, b := range batches {
		live += b.Units
	}
	assert.Equal(t, counts[blood.BPos], live)
}

func TestUseBatchUnits(t *testing.T) {
	svc, store := newTestService(t)
	hospital := uuid.New()

	batch, err := svc.CreateBatch(context.Background(), CreateBatchInput{
		HospitalID: hospital, BloodGroup: blood.APos, Units: 5,
	})
	require.NoError(t, err)

	t.Run("deducts batch and aggregate", func(t *testing.T) {
		remaining, err := svc.UseBatchUnits(context.Background(), batch.ID, hospital, 2, ActionUse)
		require.NoError(t, err)
		assert.Equal(t, 3, remaining)

		counts, err := store.Get(context.Background(), hospital)
		require.NoError(t, err)
		assert.Equal(t, 3, counts[blood.APos])
	})

	t.Run("over-deduction fails atomically", func(t *testing.T) {
		_, err := svc.UseBatchUnits(context.Background(), batch.ID, hospital, 99, ActionDiscard)
		require.ErrorIs(t, err, ErrInsufficientUnits)

		b, err := store.GetBatchByID(context.Background(), batch.ID)
		require.NoError(t, err)
		assert.Equal(t, 3, b.Units)
	})

	t.Run("wrong hospital cannot touch the batch", func(t *testing.T) {
		_, err := svc.UseBatchUnits(context.Background(), batch.ID, uuid.New(), 1, ActionUse)
		assert.ErrorIs(t, err, ErrBatchNotFound)
	})

	t.Run("unknown action rejected", func(t *testing.T) {
		_, err := svc.UseBatchUnits(context.Background(), batch.ID, hospital, 1, BatchAction("give away"))
		assert.Error(t, err)
	})
}

func TestReapRetiresExpiredBatches(t *testing.T) {
	svc, store := newTestService(t)
	hospital := uuid.New()

	_, err := svc.CreateBatch(context.Background(), CreateBatchInput{
		HospitalID: hospital, BloodGroup: blood.OPos, Units: 4,
		CollectedDate: testNow.AddDate(0, 0, -40),
		ExpiryDate:    testNow.AddDate(0, 0, -5),
	})
	require.NoError(t, err)
	fresh, err := svc.CreateBatch(context.Background(), CreateBatchInput{
		HospitalID: hospital, BloodGroup: blood.OPos, Units: 6,
	})
	require.NoError(t, err)

	require.NoError(t, svc.Reap(context.Background(), hospital))

	counts, err := store.Get(context.Background(), hospital)
	require.NoError(t, err)
	assert.Equal(t, 6, counts[blood.OPos])

	b, err := store.GetBatchByID(context.Background(), fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, 6, b.Units)

	t.Run("idempotent", func(t *testing.T) {
		require.NoError(t, svc.Reap(context.Background(), hospital))
		counts, err := store.Get(context.Background(), hospital)
		require.NoError(t, err)
		assert.Equal(t, 6, counts[blood.OPos])
	})
}

func TestGetInventoryReapsFirst(t *testing.T) {
	svc, _ := newTestService(t)
	hospital := uuid.New()

	_, err := svc.CreateBatch(context.Background(), CreateBatchInput{
		HospitalID: hospital, BloodGroup: blood.ABPos, Units: 9,
		CollectedDate: testNow.AddDate(0, 0, -40),
		ExpiryDate:    testNow.AddDate(0, 0, -1),
	})
	require.NoError(t, err)

	items, err := svc.GetInventory(context.Background(), hospital)
	require.NoError(t, err)

	for _, it := range items {
		if it.BloodGroup == blood.ABPos {
			assert.Equal(t, 0, it.Units, "expired stock must not be counted")
		}
	}
}

func TestReapAll(t *testing.T) {
	svc, store := newTestService(t)
	h1 := uuid.New()
	h2 := uuid.New()

	for _, h := range []uuid.UUID{h1, h2} {
		_, err := svc.CreateBatch(context.Background(), CreateBatchInput{
			HospitalID: h, BloodGroup: blood.OPos, Units: 5,
			CollectedDate: testNow.AddDate(0, 0, -40),
			ExpiryDate:    testNow.AddDate(0, 0, -2),
		})
		require.NoError(t, err)
	}

	require.NoError(t, svc.ReapAll(context.Background()))

	for _, h := range []uuid.UUID{h1, h2} {
		counts, err := store.Get(context.Background(), h)
		require.NoError(t, err)
		assert.Equal(t, 0, counts[blood.OPos])
	}
}

func TestReport(t *testing.T) {
	svc, _ := newTestService(t)
	hospital := uuid.New()

	_, err := svc.CreateBatch(context.Background(), CreateBatchInput{
		HospitalID: hospital, BloodGroup: blood.OPos, Units: 10,
	})
	require.NoError(t, err)
	_, err = svc.CreateBatch(context.Background(), CreateBatchInput{
		HospitalID: hospital, BloodGroup: blood.APos, Units: 5,
		CollectedDate: testNow.AddDate(0, 0, -32),
	})
	require.NoError(t, err)

	report, err := svc.Report(context.Background(), hospital)
	require.NoError(t, err)

	assert.Equal(t, 15, report.TotalUnitsCollected)
	// Only the 32-day-old batch expires inside the 7-day lookahead.
	assert.Equal(t, 1, report.BatchesExpiringSoon)
}
