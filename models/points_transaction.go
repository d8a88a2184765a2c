package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type TransactionType string

const (
	TransactionPurchase   TransactionType = "purchase"
	TransactionRedemption TransactionType = "redemption"
	TransactionBonus      TransactionType = "bonus"
	TransactionRefund     TransactionType = "refund"
	TransactionAdjustment TransactionType = "adjustment"
	TransactionExpiry     TransactionType = "expiry"
)

type TransactionStatus string

const (
	TransactionPending    TransactionStatus = "pending"
	TransactionProcessing TransactionStatus = "processing"
	TransactionCompleted  TransactionStatus = "completed"
	TransactionFailed     TransactionStatus = "failed"
	TransactionCancelled  TransactionStatus = "cancelled"
	TransactionReversed   TransactionStatus = "reversed"
)

// MaxTransactionRetries caps how many times a failed transaction may be re-queued.
const MaxTransactionRetries = 3

// DefaultFraudScore is used when a transaction is flagged without a score.
const DefaultFraudScore = 50

const (
	SourceWebsite    = "website"
	SourceMobileApp  = "mobile_app"
	SourcePOS        = "pos"
	SourceAdminPanel = "admin_panel"
	SourceAPI        = "api"
)

var (
	ErrZeroAmount        = errors.New("transaction amount must be non-zero")
	ErrAmountSign        = errors.New("transaction amount sign does not match its type")
	ErrInvalidTransition = errors.New("transaction status transition not allowed")
	ErrRetryLimitReached = errors.New("transaction retry limit reached")
	ErrNotFlagged        = errors.New("transaction is not awaiting review")
)

var validBonusReasons = map[string]bool{
	"welcome":      true,
	"birthday":     true,
	"loyalty":      true,
	"promotion":    true,
	"referral":     true,
	"review":       true,
	"social_share": true,
	"anniversary":  true,
}

func IsValidBonusReason(reason string) bool {
	return validBonusReasons[reason]
}

func IsValidTransactionType(t TransactionType) bool {
	switch t {
	case TransactionPurchase, TransactionRedemption, TransactionBonus,
		TransactionRefund, TransactionAdjustment, TransactionExpiry:
		return true
	}
	return false
}

// IsCredit reports whether entries of this type must carry a positive amount.
func (t TransactionType) IsCredit() bool {
	return t == TransactionPurchase || t == TransactionBonus || t == TransactionRefund
}

// IsDebit reports whether entries of this type must carry a negative amount.
// Adjustments may go either way.
func (t TransactionType) IsDebit() bool {
	return t == TransactionRedemption || t == TransactionExpiry
}

type RedemptionItem struct {
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
	PointsValue int    `json:"points_value"`
}

// ReviewFlag is the fraud-review state of a transaction. An open flag has
// Flagged set and no ReviewedAt.
type ReviewFlag struct {
	FraudScore int        `gorm:"default:0" json:"fraud_score"`
	Flagged    bool       `gorm:"default:false;index" json:"flagged"`
	FlagReason string     `json:"flag_reason,omitempty"`
	ReviewedBy string     `gorm:"size:128" json:"reviewed_by,omitempty"`
	ReviewedAt *time.Time `json:"reviewed_at,omitempty"`
}

type PointsTransaction struct {
	ID              uuid.UUID                           `gorm:"type:char(36);primaryKey" json:"id"`
	TransactionID   string                              `gorm:"size:32;uniqueIndex;not null" json:"transaction_id"`
	UserUID         string                              `gorm:"size:128;not null;index" json:"user_uid"`
	UserName        string                              `json:"user_name"`
	UserEmail       string                              `json:"user_email"`
	Type            TransactionType                     `gorm:"size:20;not null;index" json:"type"`
	Amount          int                                 `gorm:"not null" json:"amount"`
	BalanceBefore   int                                 `gorm:"not null" json:"balance_before"`
	BalanceAfter    int                                 `gorm:"not null" json:"balance_after"`
	Description     string                              `gorm:"size:200" json:"description"`
	Status          TransactionStatus                   `gorm:"size:20;default:pending;index" json:"status"`
	OrderNumber     string                              `gorm:"size:32;index" json:"order_number,omitempty"`
	OrderTotal      float64                             `json:"order_total,omitempty"`
	PackageSize     int                                 `json:"package_size,omitempty"`
	PackagePrice    float64                             `json:"package_price,omitempty"`
	Currency        string                              `gorm:"size:3" json:"currency,omitempty"`
	PaymentMethod   string                              `gorm:"size:10" json:"payment_method,omitempty"`
	BonusReason     string                              `gorm:"size:20" json:"bonus_reason,omitempty"`
	PromotionCode   string                              `gorm:"size:32" json:"promotion_code,omitempty"`
	RedemptionItems datatypes.JSONSlice[RedemptionItem] `json:"redemption_items,omitempty"`
	AdminUID        string                              `gorm:"size:128" json:"admin_uid,omitempty"`
	AdminNote       string                              `json:"admin_note,omitempty"`
	Source          string                              `gorm:"size:20;default:website" json:"source"`
	IPAddress       string                              `gorm:"size:64" json:"-"`
	UserAgent       string                              `json:"-"`
	InitiatedBy     string                              `gorm:"size:128" json:"initiated_by,omitempty"`
	ProcessedAt     *time.Time                          `json:"processed_at,omitempty"`
	Attempts        int                                 `gorm:"default:0" json:"attempts"`
	RetryCount      int                                 `gorm:"default:0" json:"retry_count"`
	LastAttemptAt   *time.Time                          `json:"last_attempt_at,omitempty"`
	ErrorMessage    string                              `json:"error_message,omitempty"`
	SystemNote      string                              `json:"system_note,omitempty"`
	Security        ReviewFlag                          `gorm:"embedded;embeddedPrefix:security_" json:"security"`
	CreatedAt       time.Time                           `gorm:"index" json:"created_at"`
	UpdatedAt       time.Time                           `json:"updated_at"`
}

// NewTransactionID returns "PT" + yyMMdd + 16 characters of ULID entropy.
func NewTransactionID(now time.Time) string {
	id := ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String()
	return "PT" + now.Format("060102") + id[10:]
}

func (t *PointsTransaction) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.TransactionID == "" {
		t.TransactionID = NewTransactionID(time.Now())
	}
	if t.Status == "" {
		t.Status = TransactionPending
	}
	return t.validateAmount()
}

func (t *PointsTransaction) validateAmount() error {
	if t.Amount == 0 {
		return ErrZeroAmount
	}
	if (t.Type.IsCredit() && t.Amount < 0) || (t.Type.IsDebit() && t.Amount > 0) {
		return ErrAmountSign
	}
	return nil
}

func (t *PointsTransaction) MarkCompleted(now time.Time) error {
	if t.Status != TransactionPending && t.Status != TransactionProcessing {
		return ErrInvalidTransition
	}
	t.Status = TransactionCompleted
	t.ProcessedAt = &now
	t.Attempts++
	t.LastAttemptAt = &now
	return nil
}

func (t *PointsTransaction) MarkFailed(message string, now time.Time) error {
	if t.Status != TransactionPending && t.Status != TransactionProcessing {
		return ErrInvalidTransition
	}
	t.Status = TransactionFailed
	t.ErrorMessage = message
	t.Attempts++
	t.LastAttemptAt = &now
	return nil
}

// Retry re-queues a failed transaction.
func (t *PointsTransaction) Retry() error {
	if t.Status != TransactionFailed {
		return ErrInvalidTransition
	}
	if t.RetryCount >= MaxTransactionRetries {
		return ErrRetryLimitReached
	}
	t.Status = TransactionPending
	t.RetryCount++
	return nil
}

// Reverse flags a completed transaction as reversed. Balances are not touched
// and no compensating entry is written.
func (t *PointsTransaction) Reverse(reason string) error {
	if t.Status != TransactionCompleted {
		return ErrInvalidTransition
	}
	t.Status = TransactionReversed
	t.SystemNote = "Reversed: " + reason
	return nil
}

// FlagForReview puts a transaction on hold for manual review. It returns to
// pending until Review resolves it; balances are not touched.
func (t *PointsTransaction) FlagForReview(reason string, score int) error {
	if t.Status == TransactionReversed || t.Status == TransactionCancelled {
		return ErrInvalidTransition
	}
	if score <= 0 {
		score = DefaultFraudScore
	}
	if score > 100 {
		score = 100
	}
	t.Security = ReviewFlag{Flagged: true, FlagReason: reason, FraudScore: score}
	t.Status = TransactionPending
	return nil
}

// Review closes an open flag. Approval completes the transaction and
// rejection fails it with note.
func (t *PointsTransaction) Review(reviewer string, approve bool, note string, now time.Time) error {
	if !t.Security.Flagged || t.Security.ReviewedAt != nil {
		return ErrNotFlagged
	}
	var err error
	if approve {
		err = t.MarkCompleted(now)
	} else {
		if note == "" {
			note = "Rejected on review"
		}
		err = t.MarkFailed(note, now)
	}
	if err != nil {
		return err
	}
	t.Security.ReviewedBy = reviewer
	t.Security.ReviewedAt = &now
	return nil
}
