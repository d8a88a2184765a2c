package models

import (
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"gorm.io/gorm"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusPreparing OrderStatus = "preparing"
	OrderStatusReady     OrderStatus = "ready"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

const (
	OrderTypeDineIn   = "dine_in"
	OrderTypeTakeaway = "takeaway"
	OrderTypeDelivery = "delivery"
)

const (
	PaymentPoints = "points"
	PaymentCash   = "cash"
	PaymentCard   = "card"
	PaymentMixed  = "mixed"
)

const (
	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "completed"
	PaymentStatusRefunded  = "refunded"
)

// VATRate is the Saudi VAT applied to every order subtotal.
const VATRate = 0.15

type Order struct {
	ID              uuid.UUID   `gorm:"type:char(36);primaryKey" json:"id"`
	OrderNumber     string      `gorm:"size:32;uniqueIndex;not null" json:"order_number"`
	CustomerUID     string      `gorm:"size:128;not null;index" json:"customer_uid"`
	CustomerName    string      `json:"customer_name"`
	CustomerEmail   string      `json:"customer_email"`
	CustomerPhone   string      `json:"customer_phone,omitempty"`
	Items           []OrderItem `gorm:"foreignKey:OrderID" json:"items"`
	OrderType       string      `gorm:"size:10;not null" json:"order_type"`
	Subtotal        float64     `gorm:"not null" json:"subtotal"`
	Tax             float64     `gorm:"default:0" json:"tax"`
	DeliveryFee     float64     `gorm:"default:0" json:"delivery_fee"`
	Discount        float64     `gorm:"default:0" json:"discount"`
	Total           float64     `gorm:"not null" json:"total"`
	PaymentMethod   string      `gorm:"size:10;not null" json:"payment_method"`
	PaymentStatus   string      `gorm:"size:10;default:pending" json:"payment_status"`
	PointsUsed      int         `gorm:"default:0" json:"points_used"`
	PointsEarned    int         `gorm:"default:0" json:"points_earned"`
	Status          OrderStatus `gorm:"size:10;default:pending;index" json:"status"`
	DeliveryAddress string      `json:"delivery_address,omitempty"`
	Notes           string      `gorm:"size:500" json:"notes,omitempty"`
	ConfirmedAt     *time.Time  `json:"confirmed_at,omitempty"`
	PreparingAt     *time.Time  `json:"preparing_at,omitempty"`
	ReadyAt         *time.Time  `json:"ready_at,omitempty"`
	CompletedAt     *time.Time  `json:"completed_at,omitempty"`
	CancelledAt     *time.Time  `json:"cancelled_at,omitempty"`
	CancelledBy     string      `json:"cancelled_by,omitempty"`
	CancelReason    string      `json:"cancel_reason,omitempty"`
	RefundIssued    bool        `gorm:"default:false" json:"refund_issued"`
	FeedbackRating  int         `gorm:"default:0" json:"feedback_rating,omitempty"`
	FeedbackComment string      `gorm:"size:500" json:"feedback_comment,omitempty"`
	FeedbackAt      *time.Time  `json:"feedback_at,omitempty"`
	CreatedAt       time.Time   `gorm:"index" json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

type OrderItem struct {
	ID          uuid.UUID  `gorm:"type:char(36);primaryKey" json:"id"`
	OrderID     uuid.UUID  `gorm:"type:char(36);not null;index" json:"order_id"`
	ProductID   *uuid.UUID `gorm:"type:char(36);index" json:"product_id,omitempty"`
	Name        string     `gorm:"not null" json:"name"`
	Category    string     `json:"category,omitempty"`
	Price       float64    `gorm:"default:0" json:"price"`
	PointsPrice int        `gorm:"default:0" json:"points_price"`
	Quantity    int        `gorm:"not null" json:"quantity"`
	Subtotal    float64    `gorm:"not null" json:"subtotal"`
	CreatedAt   time.Time  `json:"created_at"`
}

// NewOrderNumber returns "NC" + yyMMdd + 6 characters of ULID entropy.
func NewOrderNumber(now time.Time) string {
	id := ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String()
	return "NC" + now.Format("060102") + id[20:]
}

func (o *Order) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	if o.OrderNumber == "" {
		o.OrderNumber = NewOrderNumber(time.Now())
	}
	return nil
}

func (i *OrderItem) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}

// CalculateTotals prices each line at its currency price, falling back to its
// points price, then applies VAT. Points are earned at one per whole SAR
// unless the order is paid with points.
func (o *Order) CalculateTotals() {
	subtotal := 0.0
	for i := range o.Items {
		unit := o.Items[i].Price
		if unit == 0 {
			unit = float64(o.Items[i].PointsPrice)
		}
		o.Items[i].Subtotal = unit * float64(o.Items[i].Quantity)
		subtotal += o.Items[i].Subtotal
	}
	o.Subtotal = subtotal
	o.Tax = math.Round(subtotal*VATRate*100) / 100
	o.Total = o.Subtotal + o.Tax + o.DeliveryFee - o.Discount
	if o.PaymentMethod != PaymentPoints {
		o.PointsEarned = int(math.Floor(o.Total))
	} else {
		o.PointsEarned = 0
	}
}

// SetStatus moves the order along its lifecycle and stamps the first time each
// state is reached.
func (o *Order) SetStatus(status OrderStatus, now time.Time) {
	o.Status = status
	stamp := func(t **time.Time) {
		if *t == nil {
			*t = &now
		}
	}
	switch status {
	case OrderStatusConfirmed:
		stamp(&o.ConfirmedAt)
	case OrderStatusPreparing:
		stamp(&o.PreparingAt)
	case OrderStatusReady:
		stamp(&o.ReadyAt)
	case OrderStatusCompleted:
		stamp(&o.CompletedAt)
	case OrderStatusCancelled:
		stamp(&o.CancelledAt)
	}
}

// AllowedTransitions defines the valid order status state machine.
var AllowedTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:   {OrderStatusConfirmed, OrderStatusCancelled},
	OrderStatusConfirmed: {OrderStatusPreparing, OrderStatusCancelled},
	OrderStatusPreparing: {OrderStatusReady, OrderStatusCancelled},
	OrderStatusReady:     {OrderStatusCompleted, OrderStatusCancelled},
	OrderStatusCompleted: {},
	OrderStatusCancelled: {},
}

// IsValidTransition checks if a status transition is allowed.
func IsValidTransition(from, to OrderStatus) bool {
	for _, s := range AllowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
