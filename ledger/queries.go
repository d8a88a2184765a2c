package ledger

import (
	"context"
	"errors"
	"sort"
	"time"

	"noircafe-backend/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
	recentEntries   = 10
	statsWindow     = 30 * 24 * time.Hour
	topUsersLimit   = 5
)

// Summary is the balance view shown to a user.
type Summary struct {
	User               models.User
	Balance            models.PointsBalance
	RecentTransactions []models.PointsTransaction
	NextTierPoints     int
}

func (s *Service) Summary(ctx context.Context, uid string) (*Summary, error) {
	user, err := s.findUser(ctx, uid)
	if err != nil {
		return nil, err
	}
	var recent []models.PointsTransaction
	if err := s.db.WithContext(ctx).
		Where("user_uid = ?", uid).
		Order("created_at DESC").
		Limit(recentEntries).
		Find(&recent).Error; err != nil {
		return nil, err
	}
	return &Summary{
		User:               *user,
		Balance:            user.Points,
		RecentTransactions: recent,
		NextTierPoints:     user.PointsToNextTier(),
	}, nil
}

type HistoryQuery struct {
	UserUID string
	Type    models.TransactionType
	Page    int
	Limit   int
}

type Pagination struct {
	CurrentPage       int   `json:"current_page"`
	TotalPages        int   `json:"total_pages"`
	TotalTransactions int64 `json:"total_transactions"`
	Limit             int   `json:"limit"`
	HasNext           bool  `json:"has_next"`
	HasPrev           bool  `json:"has_prev"`
}

type HistoryPage struct {
	Transactions []models.PointsTransaction `json:"transactions"`
	Pagination   Pagination                 `json:"pagination"`
}

// History pages through a user's transactions, newest first.
func (s *Service) History(ctx context.Context, q HistoryQuery) (*HistoryPage, error) {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 {
		q.Limit = DefaultPageSize
	}
	if q.Limit > MaxPageSize {
		q.Limit = MaxPageSize
	}

	query := s.db.WithContext(ctx).Model(&models.PointsTransaction{}).Where("user_uid = ?", q.UserUID)
	if q.Type != "" {
		query = query.Where("type = ?", q.Type)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, err
	}

	var txs []models.PointsTransaction
	if err := query.Order("created_at DESC").
		Offset((q.Page - 1) * q.Limit).
		Limit(q.Limit).
		Find(&txs).Error; err != nil {
		return nil, err
	}

	totalPages := int((total + int64(q.Limit) - 1) / int64(q.Limit))
	return &HistoryPage{
		Transactions: txs,
		Pagination: Pagination{
			CurrentPage:       q.Page,
			TotalPages:        totalPages,
			TotalTransactions: total,
			Limit:             q.Limit,
			HasNext:           q.Page < totalPages,
			HasPrev:           q.Page > 1,
		},
	}, nil
}

type TypeStats struct {
	Type              string  `json:"type"`
	TotalTransactions int64   `json:"total_transactions"`
	TotalPoints       int64   `json:"total_points"`
	AveragePoints     float64 `json:"average_points"`
	UniqueUsers       int64   `json:"unique_users"`
}

type TopUser struct {
	UserUID          string `json:"user_uid"`
	UserName         string `json:"user_name"`
	TotalPoints      int64  `json:"total_points"`
	TransactionCount int64  `json:"transaction_count"`
}

type Overview struct {
	TotalUsers          int64 `json:"total_users"`
	TotalPointsIssued   int64 `json:"total_points_issued"`
	TotalPointsRedeemed int64 `json:"total_points_redeemed"`
	PointsInCirculation int64 `json:"points_in_circulation"`
}

// DailyStats is one day's completed activity for one transaction type.
type DailyStats struct {
	Date        string `json:"date"`
	Type        string `json:"type"`
	Count       int64  `json:"count"`
	TotalPoints int64  `json:"total_points"`
}

type Stats struct {
	Overview         Overview     `json:"overview"`
	TransactionStats []TypeStats  `json:"transaction_stats"`
	TopUsers         []TopUser    `json:"top_users"`
	DailyStats       []DailyStats `json:"daily_stats"`
	PeriodDays       int          `json:"period_days"`
}

// Stats aggregates completed ledger activity. Issued counts purchases and
// bonuses; redeemed counts redemptions only.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	db := s.db.WithContext(ctx)
	since := s.now().Add(-statsWindow)
	var stats Stats
	stats.PeriodDays = int(statsWindow / (24 * time.Hour))

	if err := db.Model(&models.User{}).Where("status = ?", models.StatusActive).Count(&stats.Overview.TotalUsers).Error; err != nil {
		return nil, err
	}

	var issued struct{ Total int64 }
	if err := db.Model(&models.PointsTransaction{}).
		Select("COALESCE(SUM(amount), 0) AS total").
		Where("type IN ? AND status = ?", []models.TransactionType{models.TransactionPurchase, models.TransactionBonus}, models.TransactionCompleted).
		Scan(&issued).Error; err != nil {
		return nil, err
	}

	var redeemed struct{ Total int64 }
	if err := db.Model(&models.PointsTransaction{}).
		Select("COALESCE(SUM(ABS(amount)), 0) AS total").
		Where("type = ? AND status = ?", models.TransactionRedemption, models.TransactionCompleted).
		Scan(&redeemed).Error; err != nil {
		return nil, err
	}

	stats.Overview.TotalPointsIssued = issued.Total
	stats.Overview.TotalPointsRedeemed = redeemed.Total
	stats.Overview.PointsInCirculation = issued.Total - redeemed.Total

	if err := db.Model(&models.PointsTransaction{}).
		Select("type, COUNT(*) AS total_transactions, COALESCE(SUM(amount), 0) AS total_points, AVG(amount) AS average_points, COUNT(DISTINCT user_uid) AS unique_users").
		Where("status = ? AND created_at >= ?", models.TransactionCompleted, since).
		Group("type").
		Order("type").
		Scan(&stats.TransactionStats).Error; err != nil {
		return nil, err
	}

	if err := db.Model(&models.PointsTransaction{}).
		Select("user_uid, MAX(user_name) AS user_name, SUM(amount) AS total_points, COUNT(*) AS transaction_count").
		Where("type IN ? AND status = ? AND created_at >= ?",
			[]models.TransactionType{models.TransactionPurchase, models.TransactionBonus}, models.TransactionCompleted, since).
		Group("user_uid").
		Order("total_points DESC").
		Limit(topUsersLimit).
		Scan(&stats.TopUsers).Error; err != nil {
		return nil, err
	}

	daily, err := s.dailyStats(db, since)
	if err != nil {
		return nil, err
	}
	stats.DailyStats = daily

	return &stats, nil
}

// dailyStats buckets completed entries by calendar day in the service clock's
// location, newest day first and types alphabetical within a day.
func (s *Service) dailyStats(db *gorm.DB, since time.Time) ([]DailyStats, error) {
	var rows []struct {
		Type      string
		Amount    int
		CreatedAt time.Time
	}
	if err := db.Model(&models.PointsTransaction{}).
		Select("type, amount, created_at").
		Where("status = ? AND created_at >= ?", models.TransactionCompleted, since).
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	loc := s.now().Location()
	daily := []DailyStats{}
	index := map[[2]string]int{}
	for _, row := range rows {
		key := [2]string{row.CreatedAt.In(loc).Format("2006-01-02"), row.Type}
		i, ok := index[key]
		if !ok {
			i = len(daily)
			index[key] = i
			daily = append(daily, DailyStats{Date: key[0], Type: key[1]})
		}
		daily[i].Count++
		daily[i].TotalPoints += int64(row.Amount)
	}
	sort.Slice(daily, func(i, j int) bool {
		if daily[i].Date != daily[j].Date {
			return daily[i].Date > daily[j].Date
		}
		return daily[i].Type < daily[j].Type
	})
	return daily, nil
}

// FindTransaction looks a transaction up by its public id.
func (s *Service) FindTransaction(ctx context.Context, transactionID string) (*models.PointsTransaction, error) {
	var rec models.PointsTransaction
	err := s.db.WithContext(ctx).Where("transaction_id = ?", transactionID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Reverse flags a completed transaction as reversed. Balances are left as
// they are; correcting them is a separate admin adjustment.
func (s *Service) Reverse(ctx context.Context, transactionID, reason, adminUID string) (*models.PointsTransaction, error) {
	return s.transition(ctx, "reverse", transactionID, func(rec *models.PointsTransaction) error {
		if err := rec.Reverse(reason); err != nil {
			return err
		}
		rec.AdminUID = adminUID
		return nil
	})
}

// Retry re-queues a failed transaction, at most MaxTransactionRetries times.
func (s *Service) Retry(ctx context.Context, transactionID string) (*models.PointsTransaction, error) {
	return s.transition(ctx, "retry", transactionID, func(rec *models.PointsTransaction) error {
		return rec.Retry()
	})
}

// MarkFailed records a processing failure on a pending transaction.
func (s *Service) MarkFailed(ctx context.Context, transactionID, message string) (*models.PointsTransaction, error) {
	return s.transition(ctx, "fail", transactionID, func(rec *models.PointsTransaction) error {
		return rec.MarkFailed(message, s.now())
	})
}

// Flag holds a transaction for manual review and moves it back to pending.
func (s *Service) Flag(ctx context.Context, transactionID, reason string, fraudScore int) (*models.PointsTransaction, error) {
	return s.transition(ctx, "flag", transactionID, func(rec *models.PointsTransaction) error {
		return rec.FlagForReview(reason, fraudScore)
	})
}

// Review resolves an open flag: approve completes the transaction, otherwise
// it is marked failed with note.
func (s *Service) Review(ctx context.Context, transactionID, reviewerUID string, approve bool, note string) (*models.PointsTransaction, error) {
	return s.transition(ctx, "review", transactionID, func(rec *models.PointsTransaction) error {
		return rec.Review(reviewerUID, approve, note, s.now())
	})
}

// Flagged lists transactions with an open review flag, newest first.
func (s *Service) Flagged(ctx context.Context) ([]models.PointsTransaction, error) {
	var txs []models.PointsTransaction
	err := s.db.WithContext(ctx).
		Where("security_flagged = ? AND security_reviewed_at IS NULL", true).
		Order("created_at DESC").
		Find(&txs).Error
	return txs, err
}

func (s *Service) transition(ctx context.Context, operation, transactionID string, fn func(*models.PointsTransaction) error) (*models.PointsTransaction, error) {
	rec, err := s.FindTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	from := rec.Status
	if err := fn(rec); err != nil {
		s.metrics.LedgerOperation(operation, "rejected")
		return nil, err
	}
	if err := s.db.WithContext(ctx).Save(rec).Error; err != nil {
		s.metrics.LedgerOperation(operation, "error")
		return nil, err
	}
	s.metrics.LedgerOperation(operation, "success")
	s.logger.Info("transaction status changed",
		zap.String("transaction_id", transactionID),
		zap.String("from", string(from)),
		zap.String("to", string(rec.Status)),
	)
	return rec, nil
}

// Drift is a user whose stored balance disagrees with the transaction log.
type Drift struct {
	UserUID       string `json:"user_uid"`
	StoredCurrent int    `json:"stored_current"`
	LedgerSum     int    `json:"ledger_sum"`
}

func (d Drift) Difference() int {
	return d.StoredCurrent - d.LedgerSum
}

// Reconcile compares every user's current balance with the sum of their
// completed transactions. It only reports; nothing is corrected.
func (s *Service) Reconcile(ctx context.Context) ([]Drift, error) {
	var rows []Drift
	err := s.db.WithContext(ctx).
		Table("users").
		Select("users.uid AS user_uid, users.points_current AS stored_current, COALESCE(SUM(pt.amount), 0) AS ledger_sum").
		Joins("LEFT JOIN points_transactions pt ON pt.user_uid = users.uid AND pt.status = ?", models.TransactionCompleted).
		Group("users.uid, users.points_current").
		Order("users.uid").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	drifts := rows[:0]
	for _, row := range rows {
		if row.Difference() != 0 {
			drifts = append(drifts, row)
		}
	}
	return drifts, nil
}
