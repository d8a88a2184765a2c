package ledger

import (
	"context"
	"testing"
	"time"

	"noircafe-backend/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPackagesCatalog(t *testing.T) {
	pkgs := Packages()
	require.Len(t, pkgs, 36)
	assert.Equal(t, 10, pkgs[0].Points)
	assert.Equal(t, 1000, pkgs[len(pkgs)-1].Points)

	bySize := map[int]Package{}
	for _, p := range pkgs {
		bySize[p.Points] = p
	}

	five := bySize[500]
	assert.Equal(t, 50, five.Bonus)
	assert.Equal(t, 550, five.TotalPoints)
	assert.Equal(t, "10%", five.Savings)
	assert.Equal(t, "most_popular", five.Tag)
	assert.True(t, five.Popular)
	assert.InDelta(t, 0.91, five.PricePerPoint, 0.001)

	plain := bySize[250]
	assert.Zero(t, plain.Bonus)
	assert.False(t, plain.Popular)
	assert.Empty(t, plain.Savings)
	assert.InDelta(t, 1.0, plain.PricePerPoint, 0.001)

	_, ok := bySize[260]
	assert.False(t, ok)
}

func TestPackageBonusTable(t *testing.T) {
	cases := map[int]int{10: 0, 100: 20, 250: 0, 300: 35, 500: 50, 550: 0, 1000: 100}
	for size, want := range cases {
		assert.Equal(t, want, PackageBonus(size), "size %d", size)
	}
	assert.True(t, ValidPackageSize(10))
	assert.True(t, ValidPackageSize(1000))
	assert.False(t, ValidPackageSize(9))
	assert.Equal(t, "BONUS_300", PromotionCode(300))
}

func TestSummaryIncludesRecentAndNextTier(t *testing.T) {
	svc, db := newTestService(t)
	seedUser(t, db, "u1", 0, 0, 0)
	ctx := context.Background()

	for i := 0; i < 12; i++ {
		_, err := svc.AddPoints(ctx, Entry{UserUID: "u1", Type: models.TransactionBonus, Amount: 10})
		require.NoError(t, err)
	}

	summary, err := svc.Summary(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 120, summary.Balance.Current)
	assert.Len(t, summary.RecentTransactions, 10)
	assert.Equal(t, 380, summary.NextTierPoints)
}

func TestHistoryPaginationAndTypeFilter(t *testing.T) {
	svc, db := newTestService(t)
	seedUser(t, db, "u1", 0, 0, 0)
	seedUser(t, db, "u2", 0, 0, 0)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := svc.AddPoints(ctx, Entry{UserUID: "u1", Type: models.TransactionBonus, Amount: 10})
		require.NoError(t, err)
	}
	_, err := svc.Redeem(ctx, Entry{UserUID: "u1", Amount: 15})
	require.NoError(t, err)
	_, err = svc.AddPoints(ctx, Entry{UserUID: "u2", Type: models.TransactionBonus, Amount: 10})
	require.NoError(t, err)

	page, err := svc.History(ctx, HistoryQuery{UserUID: "u1", Page: 2, Limit: 4})
	require.NoError(t, err)
	assert.Len(t, page.Transactions, 2)
	assert.Equal(t, int64(6), page.Pagination.TotalTransactions)
	assert.Equal(t, 2, page.Pagination.TotalPages)
	assert.False(t, page.Pagination.HasNext)
	assert.True(t, page.Pagination.HasPrev)

	filtered, err := svc.History(ctx, HistoryQuery{UserUID: "u1", Type: models.TransactionRedemption})
	require.NoError(t, err)
	require.Len(t, filtered.Transactions, 1)
	assert.Equal(t, int64(1), filtered.Pagination.TotalTransactions)
	assert.Equal(t, -15, filtered.Transactions[0].Amount)
	assert.Equal(t, DefaultPageSize, filtered.Pagination.Limit)

	clamped, err := svc.History(ctx, HistoryQuery{UserUID: "u1", Page: -1, Limit: 500})
	require.NoError(t, err)
	assert.Equal(t, 1, clamped.Pagination.CurrentPage)
	assert.Equal(t, MaxPageSize, clamped.Pagination.Limit)
}

func TestStatsAggregates(t *testing.T) {
	svc, db := newTestService(t)
	seedUser(t, db, "u1", 0, 0, 0)
	seedUser(t, db, "u2", 0, 0, 0)
	ctx := context.Background()

	_, err := svc.Purchase(ctx, "u1", 100, 100, "card", Metadata{})
	require.NoError(t, err)
	_, err = svc.AddPoints(ctx, Entry{UserUID: "u2", Type: models.TransactionBonus, Amount: 10, BonusReason: "welcome"})
	require.NoError(t, err)
	_, err = svc.Redeem(ctx, Entry{UserUID: "u1", Amount: 30})
	require.NoError(t, err)

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)

	assert.Equal(t, int64(2), stats.Overview.TotalUsers)
	assert.Equal(t, int64(130), stats.Overview.TotalPointsIssued)
	assert.Equal(t, int64(30), stats.Overview.TotalPointsRedeemed)
	assert.Equal(t, int64(100), stats.Overview.PointsInCirculation)
	assert.Equal(t, 30, stats.PeriodDays)

	require.Len(t, stats.TransactionStats, 3)
	bonus := stats.TransactionStats[0]
	assert.Equal(t, "bonus", bonus.Type)
	assert.Equal(t, int64(2), bonus.TotalTransactions)
	assert.Equal(t, int64(30), bonus.TotalPoints)
	assert.Equal(t, int64(2), bonus.UniqueUsers)
	assert.InDelta(t, 15.0, bonus.AveragePoints, 0.001)

	require.Len(t, stats.TopUsers, 2)
	assert.Equal(t, "u1", stats.TopUsers[0].UserUID)
	assert.Equal(t, int64(120), stats.TopUsers[0].TotalPoints)
	assert.Equal(t, int64(2), stats.TopUsers[0].TransactionCount)

	require.Len(t, stats.DailyStats, 3)
	today := time.Now().Format("2006-01-02")
	assert.Equal(t, DailyStats{Date: today, Type: "bonus", Count: 2, TotalPoints: 30}, stats.DailyStats[0])
	assert.Equal(t, DailyStats{Date: today, Type: "purchase", Count: 1, TotalPoints: 100}, stats.DailyStats[1])
	assert.Equal(t, DailyStats{Date: today, Type: "redemption", Count: 1, TotalPoints: -30}, stats.DailyStats[2])
}

func TestDailyStatsGroupsByDay(t *testing.T) {
	svc, db := newTestService(t)
	seedUser(t, db, "u1", 0, 0, 0)
	ctx := context.Background()

	for _, amount := range []int{10, 5} {
		_, err := svc.AddPoints(ctx, Entry{UserUID: "u1", Type: models.TransactionBonus, Amount: amount})
		require.NoError(t, err)
	}
	yesterday := time.Now().Add(-24 * time.Hour)
	require.NoError(t, db.Model(&models.PointsTransaction{}).
		Where("amount = ?", 5).
		UpdateColumn("created_at", yesterday).Error)

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	require.Len(t, stats.DailyStats, 2)
	assert.Equal(t, time.Now().Format("2006-01-02"), stats.DailyStats[0].Date)
	assert.Equal(t, int64(10), stats.DailyStats[0].TotalPoints)
	assert.Equal(t, yesterday.Format("2006-01-02"), stats.DailyStats[1].Date)
	assert.Equal(t, int64(5), stats.DailyStats[1].TotalPoints)
}

func TestReverseOnlyFromCompleted(t *testing.T) {
	svc, db := newTestService(t)
	seedUser(t, db, "u1", 0, 0, 0)
	ctx := context.Background()

	res, err := svc.AddPoints(ctx, Entry{UserUID: "u1", Type: models.TransactionBonus, Amount: 25})
	require.NoError(t, err)
	id := res.Transactions[0].TransactionID

	rec, err := svc.Reverse(ctx, id, "duplicate", "admin-1")
	require.NoError(t, err)
	assert.Equal(t, models.TransactionReversed, rec.Status)
	assert.Equal(t, "Reversed: duplicate", rec.SystemNote)
	assert.Equal(t, "admin-1", rec.AdminUID)

	// balances are untouched
	assert.Equal(t, 25, reloadUser(t, db, "u1").Points.Current)

	_, err = svc.Reverse(ctx, id, "again", "admin-1")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = svc.Reverse(ctx, "PT000000MISSING", "x", "admin-1")
	assert.ErrorIs(t, err, ErrTransactionNotFound)
}

func TestFailAndRetryLifecycle(t *testing.T) {
	svc, db := newTestService(t)
	seedUser(t, db, "u1", 0, 0, 0)
	ctx := context.Background()

	res, err := svc.AddPoints(ctx, Entry{UserUID: "u1", Type: models.TransactionBonus, Amount: 5})
	require.NoError(t, err)
	id := res.Transactions[0].TransactionID

	_, err = svc.Flag(ctx, id, "gateway callback missing", 30)
	require.NoError(t, err)

	for i := 1; i <= models.MaxTransactionRetries; i++ {
		rec, err := svc.MarkFailed(ctx, id, "gateway timeout")
		require.NoError(t, err)
		assert.Equal(t, models.TransactionFailed, rec.Status)
		assert.Equal(t, "gateway timeout", rec.ErrorMessage)

		rec, err = svc.Retry(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.TransactionPending, rec.Status)
		assert.Equal(t, i, rec.RetryCount)
	}

	_, err = svc.MarkFailed(ctx, id, "still down")
	require.NoError(t, err)
	_, err = svc.Retry(ctx, id)
	assert.ErrorIs(t, err, ErrRetryLimitReached)

	stored, err := svc.FindTransaction(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionFailed, stored.Status)
	assert.Equal(t, models.MaxTransactionRetries, stored.RetryCount)
}

func TestFlagAndReview(t *testing.T) {
	svc, db := newTestService(t)
	seedUser(t, db, "u1", 0, 0, 0)
	ctx := context.Background()

	first, err := svc.AddPoints(ctx, Entry{UserUID: "u1", Type: models.TransactionBonus, Amount: 40})
	require.NoError(t, err)
	second, err := svc.AddPoints(ctx, Entry{UserUID: "u1", Type: models.TransactionBonus, Amount: 15})
	require.NoError(t, err)
	firstID := first.Transactions[0].TransactionID
	secondID := second.Transactions[0].TransactionID

	rec, err := svc.Flag(ctx, firstID, "unusual volume", 80)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionPending, rec.Status)
	assert.True(t, rec.Security.Flagged)
	assert.Equal(t, 80, rec.Security.FraudScore)
	_, err = svc.Flag(ctx, secondID, "same device", 0)
	require.NoError(t, err)

	// balances are untouched while under review
	assert.Equal(t, 55, reloadUser(t, db, "u1").Points.Current)

	flagged, err := svc.Flagged(ctx)
	require.NoError(t, err)
	require.Len(t, flagged, 2)

	rec, err = svc.Review(ctx, firstID, "admin-1", true, "")
	require.NoError(t, err)
	assert.Equal(t, models.TransactionCompleted, rec.Status)
	assert.Equal(t, "admin-1", rec.Security.ReviewedBy)

	rec, err = svc.Review(ctx, secondID, "admin-1", false, "confirmed fraud")
	require.NoError(t, err)
	assert.Equal(t, models.TransactionFailed, rec.Status)
	assert.Equal(t, "confirmed fraud", rec.ErrorMessage)

	flagged, err = svc.Flagged(ctx)
	require.NoError(t, err)
	assert.Empty(t, flagged)

	_, err = svc.Review(ctx, firstID, "admin-2", false, "")
	assert.ErrorIs(t, err, ErrNotFlagged)
	_, err = svc.Flag(ctx, "PT000000MISSING", "x", 0)
	assert.ErrorIs(t, err, ErrTransactionNotFound)
}

func TestRetryRequiresFailed(t *testing.T) {
	svc, db := newTestService(t)
	seedUser(t, db, "u1", 0, 0, 0)
	ctx := context.Background()

	res, err := svc.AddPoints(ctx, Entry{UserUID: "u1", Type: models.TransactionBonus, Amount: 5})
	require.NoError(t, err)

	_, err = svc.Retry(ctx, res.Transactions[0].TransactionID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = svc.MarkFailed(ctx, res.Transactions[0].TransactionID, "late")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestReconcileReportsDrift(t *testing.T) {
	svc, db := newTestService(t)
	seedUser(t, db, "clean", 0, 0, 0)
	seedUser(t, db, "imported", 40, 40, 0)
	seedUser(t, db, "reversed", 0, 0, 0)
	ctx := context.Background()

	_, err := svc.AddPoints(ctx, Entry{UserUID: "clean", Type: models.TransactionBonus, Amount: 10})
	require.NoError(t, err)
	res, err := svc.AddPoints(ctx, Entry{UserUID: "reversed", Type: models.TransactionBonus, Amount: 25})
	require.NoError(t, err)
	_, err = svc.Reverse(ctx, res.Transactions[0].TransactionID, "fraud", "admin-1")
	require.NoError(t, err)

	drifts, err := svc.Reconcile(ctx)
	require.NoError(t, err)
	require.Len(t, drifts, 2)

	assert.Equal(t, "imported", drifts[0].UserUID)
	assert.Equal(t, 40, drifts[0].Difference())
	assert.Equal(t, "reversed", drifts[1].UserUID)
	assert.Equal(t, 25, drifts[1].StoredCurrent)
	assert.Equal(t, 0, drifts[1].LedgerSum)
}
