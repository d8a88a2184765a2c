package ledger

import (
	"context"
	"errors"
	"time"

	"noircafe-backend/metrics"
	"noircafe-backend/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BalanceCache is a read-through projection of user balances. The service
// invalidates on every committed write. Version returns a counter that every
// Invalidate bumps; Set must store the balance only while the counter still
// equals version, and a negative version never matches.
type BalanceCache interface {
	Get(ctx context.Context, uid string) (models.PointsBalance, bool)
	Version(ctx context.Context, uid string) int64
	Set(ctx context.Context, uid string, version int64, balance models.PointsBalance)
	Invalidate(ctx context.Context, uid string)
}

// Service owns every mutation of user point balances and the transaction log.
type Service struct {
	db      *gorm.DB
	cache   BalanceCache
	metrics *metrics.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

type Option func(*Service)

func WithCache(cache BalanceCache) Option {
	return func(s *Service) { s.cache = cache }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(db *gorm.DB, opts ...Option) *Service {
	s := &Service{db: db, logger: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Metadata records where a ledger request came from.
type Metadata struct {
	Source      string
	IPAddress   string
	UserAgent   string
	InitiatedBy string
}

// Entry describes one ledger movement. Amount is a positive magnitude; the
// writer applies the sign implied by the operation.
type Entry struct {
	UserUID         string
	Type            models.TransactionType
	Amount          int
	Description     string
	OrderNumber     string
	OrderTotal      float64
	PackageSize     int
	PackagePrice    float64
	PaymentMethod   string
	BonusReason     string
	PromotionCode   string
	RedemptionItems []models.RedemptionItem
	AdminUID        string
	AdminNote       string
	Metadata        Metadata
}

// Result is the user's ledger state after a committed operation.
type Result struct {
	User         models.User
	Transactions []models.PointsTransaction
}

// Writer mutates one locked user row inside an open database transaction.
type Writer struct {
	tx      *gorm.DB
	user    *models.User
	now     func() time.Time
	records []models.PointsTransaction
}

// Tx exposes the enclosing database transaction so callers can persist
// related rows atomically with the ledger entries.
func (w *Writer) Tx() *gorm.DB {
	return w.tx
}

// User returns the locked user as currently mutated.
func (w *Writer) User() *models.User {
	return w.user
}

// Credit adds points to the spendable balance and the lifetime total.
func (w *Writer) Credit(e Entry) (*models.PointsTransaction, error) {
	if e.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if e.Type == "" {
		e.Type = models.TransactionAdjustment
	}
	if !e.Type.IsCredit() && e.Type != models.TransactionAdjustment {
		return nil, ErrInvalidTransactionType
	}
	return w.write(e, e.Amount, func(p *models.PointsBalance) {
		p.Current += e.Amount
		p.Total += e.Amount
	})
}

// Debit spends points. It fails without writing anything when the balance
// does not cover the amount.
func (w *Writer) Debit(e Entry) (*models.PointsTransaction, error) {
	if e.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if e.Type == "" {
		e.Type = models.TransactionAdjustment
	}
	if !e.Type.IsDebit() && e.Type != models.TransactionAdjustment {
		return nil, ErrInvalidTransactionType
	}
	if w.user.Points.Current < e.Amount {
		return nil, &InsufficientPointsError{Required: e.Amount, Available: w.user.Points.Current}
	}
	return w.write(e, -e.Amount, func(p *models.PointsBalance) {
		p.Current -= e.Amount
		p.Used += e.Amount
	})
}

// RestoreSpent returns previously spent points, undoing the used counter
// instead of inflating the lifetime total.
func (w *Writer) RestoreSpent(e Entry) (*models.PointsTransaction, error) {
	if e.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	e.Type = models.TransactionRefund
	return w.write(e, e.Amount, func(p *models.PointsBalance) {
		p.Current += e.Amount
		p.Used -= e.Amount
		if p.Used < 0 {
			p.Used = 0
		}
	})
}

// write logs the entry as pending, applies the balance change, persists the
// user (recomputing the tier) and then completes the entry.
func (w *Writer) write(e Entry, signed int, mutate func(*models.PointsBalance)) (*models.PointsTransaction, error) {
	before := w.user.Points.Current
	rec := models.PointsTransaction{
		UserUID:         w.user.UID,
		UserName:        w.user.DisplayName,
		UserEmail:       w.user.Email,
		Type:            e.Type,
		Amount:          signed,
		BalanceBefore:   before,
		BalanceAfter:    before + signed,
		Description:     e.Description,
		Status:          models.TransactionPending,
		OrderNumber:     e.OrderNumber,
		OrderTotal:      e.OrderTotal,
		PackageSize:     e.PackageSize,
		PackagePrice:    e.PackagePrice,
		PaymentMethod:   e.PaymentMethod,
		BonusReason:     e.BonusReason,
		PromotionCode:   e.PromotionCode,
		RedemptionItems: e.RedemptionItems,
		AdminUID:        e.AdminUID,
		AdminNote:       e.AdminNote,
		Source:          e.Metadata.Source,
		IPAddress:       e.Metadata.IPAddress,
		UserAgent:       e.Metadata.UserAgent,
		InitiatedBy:     e.Metadata.InitiatedBy,
	}
	if e.PackageSize > 0 {
		rec.Currency = "SAR"
	}
	if rec.Source == "" {
		rec.Source = models.SourceWebsite
	}
	if err := w.tx.Create(&rec).Error; err != nil {
		return nil, err
	}

	mutate(&w.user.Points)
	if err := w.tx.Save(w.user).Error; err != nil {
		return nil, err
	}

	if err := rec.MarkCompleted(w.now()); err != nil {
		return nil, err
	}
	if err := w.tx.Save(&rec).Error; err != nil {
		return nil, err
	}
	w.records = append(w.records, rec)
	return &rec, nil
}

// Apply locks the user row and runs fn inside one database transaction. Any
// error from fn rolls back every ledger entry and related row it wrote.
func (s *Service) Apply(ctx context.Context, operation, uid string, fn func(w *Writer) error) (*Result, error) {
	var result Result
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, err := lockUser(tx, uid)
		if err != nil {
			return err
		}
		w := &Writer{tx: tx, user: user, now: s.now}
		if err := fn(w); err != nil {
			return err
		}
		result = Result{User: *w.user, Transactions: w.records}
		return nil
	})
	s.metrics.LedgerOperation(operation, outcome(err))
	if err != nil {
		return nil, wrapError(operation, uid, err)
	}

	if s.cache != nil {
		s.cache.Invalidate(ctx, uid)
	}
	for _, rec := range result.Transactions {
		s.metrics.PointsMoved(string(rec.Type), rec.Amount)
	}
	s.logger.Info("ledger operation committed",
		zap.String("operation", operation),
		zap.String("uid", uid),
		zap.Int("entries", len(result.Transactions)),
		zap.Int("current", result.User.Points.Current),
	)
	return &result, nil
}

// AddPoints credits a user. Type defaults to adjustment.
func (s *Service) AddPoints(ctx context.Context, e Entry) (*Result, error) {
	return s.Apply(ctx, "add", e.UserUID, func(w *Writer) error {
		_, err := w.Credit(e)
		return err
	})
}

// DeductPoints debits a user. Type defaults to adjustment.
func (s *Service) DeductPoints(ctx context.Context, e Entry) (*Result, error) {
	return s.Apply(ctx, "deduct", e.UserUID, func(w *Writer) error {
		_, err := w.Debit(e)
		return err
	})
}

// Redeem spends points on itemized products.
func (s *Service) Redeem(ctx context.Context, e Entry) (*Result, error) {
	e.Type = models.TransactionRedemption
	return s.Apply(ctx, "redeem", e.UserUID, func(w *Writer) error {
		_, err := w.Debit(e)
		return err
	})
}

// Purchase credits a points package and its bonus, if any, as two entries.
func (s *Service) Purchase(ctx context.Context, uid string, size int, price float64, paymentMethod string, meta Metadata) (*Result, error) {
	if !ValidPackageSize(size) {
		return nil, ErrInvalidPackage
	}
	if price < 1 {
		return nil, ErrInvalidPrice
	}
	bonus := PackageBonus(size)

	return s.Apply(ctx, "purchase", uid, func(w *Writer) error {
		if _, err := w.Credit(Entry{
			Type:          models.TransactionPurchase,
			Amount:        size,
			Description:   "Points package purchase",
			PackageSize:   size,
			PackagePrice:  price,
			PaymentMethod: paymentMethod,
			Metadata:      meta,
		}); err != nil {
			return err
		}
		if bonus == 0 {
			return nil
		}
		_, err := w.Credit(Entry{
			Type:          models.TransactionBonus,
			Amount:        bonus,
			Description:   "Package purchase bonus",
			BonusReason:   "promotion",
			PromotionCode: PromotionCode(size),
			Metadata:      meta,
		})
		return err
	})
}

// Refund returns points spent on an order.
func (s *Service) Refund(ctx context.Context, e Entry) (*Result, error) {
	return s.Apply(ctx, "refund", e.UserUID, func(w *Writer) error {
		_, err := w.RestoreSpent(e)
		return err
	})
}

// Balance returns the user's counters, served from the cache when possible.
func (s *Service) Balance(ctx context.Context, uid string) (models.PointsBalance, error) {
	var version int64
	if s.cache != nil {
		if balance, ok := s.cache.Get(ctx, uid); ok {
			s.metrics.CacheLookup(true)
			return balance, nil
		}
		s.metrics.CacheLookup(false)
		version = s.cache.Version(ctx, uid)
	}

	user, err := s.findUser(ctx, uid)
	if err != nil {
		return models.PointsBalance{}, err
	}
	if s.cache != nil {
		s.cache.Set(ctx, uid, version, user.Points)
	}
	return user.Points, nil
}

func (s *Service) findUser(ctx context.Context, uid string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("uid = ?", uid).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func lockUser(tx *gorm.DB, uid string) (*models.User, error) {
	var user models.User
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("uid = ?", uid).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func outcome(err error) string {
	var insufficient *InsufficientPointsError
	switch {
	case err == nil:
		return "success"
	case errors.As(err, &insufficient):
		return "insufficient"
	case errors.Is(err, ErrUserNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrInvalidTransactionType):
		return "invalid"
	default:
		return "error"
	}
}
