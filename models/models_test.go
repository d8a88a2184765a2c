package models

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatal(err)
	}
	if err := db.AutoMigrate(&User{}, &PointsTransaction{}, &Product{}, &Order{}, &OrderItem{}); err != nil {
		t.Fatal(err)
	}
	return db
}

func TestClassifyTierBoundaries(t *testing.T) {
	tests := []struct {
		total    int
		expected string
	}{
		{0, TierBronze},
		{499, TierBronze},
		{500, TierSilver},
		{1499, TierSilver},
		{1500, TierGold},
		{4999, TierGold},
		{5000, TierPlatinum},
		{120000, TierPlatinum},
	}
	for _, tc := range tests {
		if got := ClassifyTier(tc.total); got != tc.expected {
			t.Errorf("ClassifyTier(%d) = %s, want %s", tc.total, got, tc.expected)
		}
	}
}

func TestPointsToNextTier(t *testing.T) {
	tests := []struct {
		tier     string
		total    int
		expected int
	}{
		{TierBronze, 0, 500},
		{TierBronze, 450, 50},
		{TierSilver, 500, 1000},
		{TierGold, 4000, 1000},
		{TierPlatinum, 9000, 0},
		{TierBronze, 700, 0},
	}
	for _, tc := range tests {
		if got := PointsToNextTier(tc.tier, tc.total); got != tc.expected {
			t.Errorf("PointsToNextTier(%s, %d) = %d, want %d", tc.tier, tc.total, got, tc.expected)
		}
	}
}

func TestUserBeforeCreateGeneratesUUID(t *testing.T) {
	db := setupTestDB(t)
	user := User{UID: "uid-1", Email: "gen@test.com", DisplayName: "Gen"}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if user.ID == uuid.Nil {
		t.Error("expected UUID to be generated")
	}
}

func TestUserBeforeSaveNormalizesEmailAndTier(t *testing.T) {
	db := setupTestDB(t)
	user := User{UID: "uid-2", Email: "  Mixed@Case.COM ", DisplayName: "Mixed"}
	user.Points.Total = 1500
	user.Points.Current = 1500
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if user.Email != "mixed@case.com" {
		t.Errorf("expected lowercased email, got %s", user.Email)
	}
	if user.Tier != TierGold {
		t.Errorf("expected tier gold, got %s", user.Tier)
	}

	user.Points.Total = 5000
	db.Save(&user)

	var reloaded User
	db.Where("uid = ?", "uid-2").First(&reloaded)
	if reloaded.Tier != TierPlatinum {
		t.Errorf("expected tier platinum after save, got %s", reloaded.Tier)
	}
}

func TestUserBeforeSaveRejectsNegativePoints(t *testing.T) {
	db := setupTestDB(t)
	user := User{UID: "uid-3", Email: "neg@test.com", DisplayName: "Neg"}
	user.Points.Current = -1
	if err := db.Create(&user).Error; err == nil {
		t.Error("expected error for negative current points")
	}
}

func TestUserIsStaff(t *testing.T) {
	for _, role := range []string{RoleAdmin, RoleManager, RoleStaff} {
		u := User{Role: role}
		if !u.IsStaff() {
			t.Errorf("expected %s to be staff", role)
		}
	}
	if (&User{Role: RoleCustomer}).IsStaff() {
		t.Error("customer should not be staff")
	}
}

func TestNewTransactionIDFormat(t *testing.T) {
	now := time.Date(2024, 3, 7, 10, 0, 0, 0, time.UTC)
	id := NewTransactionID(now)
	if !strings.HasPrefix(id, "PT240307") {
		t.Errorf("expected PT240307 prefix, got %s", id)
	}
	if len(id) != 24 {
		t.Errorf("expected 24 chars, got %d (%s)", len(id), id)
	}
	if NewTransactionID(now) == id {
		t.Error("expected distinct transaction IDs")
	}
}

func TestPointsTransactionBeforeCreate(t *testing.T) {
	db := setupTestDB(t)
	tx := PointsTransaction{UserUID: "uid-1", Type: TransactionBonus, Amount: 20, BalanceAfter: 20}
	if err := db.Create(&tx).Error; err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if tx.ID == uuid.Nil {
		t.Error("expected UUID to be generated")
	}
	if !strings.HasPrefix(tx.TransactionID, "PT") {
		t.Errorf("expected generated transaction id, got %q", tx.TransactionID)
	}
	if tx.Status != TransactionPending {
		t.Errorf("expected pending status, got %s", tx.Status)
	}
}

func TestPointsTransactionRejectsBadAmounts(t *testing.T) {
	db := setupTestDB(t)
	cases := []PointsTransaction{
		{UserUID: "u", Type: TransactionPurchase, Amount: 0},
		{UserUID: "u", Type: TransactionPurchase, Amount: -5},
		{UserUID: "u", Type: TransactionRedemption, Amount: 5},
		{UserUID: "u", Type: TransactionExpiry, Amount: 1},
	}
	for _, c := range cases {
		c := c
		if err := db.Create(&c).Error; err == nil {
			t.Errorf("expected error for %s amount %d", c.Type, c.Amount)
		}
	}

	adj := PointsTransaction{UserUID: "u", Type: TransactionAdjustment, Amount: -5}
	if err := db.Create(&adj).Error; err != nil {
		t.Errorf("negative adjustment should be allowed: %v", err)
	}
}

func TestPointsTransactionStateMachine(t *testing.T) {
	now := time.Now()
	tx := PointsTransaction{Status: TransactionPending}

	if err := tx.MarkFailed("gateway timeout", now); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	for i := 0; i < MaxTransactionRetries; i++ {
		if err := tx.Retry(); err != nil {
			t.Fatalf("retry %d: %v", i+1, err)
		}
		if err := tx.MarkFailed("again", now); err != nil {
			t.Fatalf("mark failed: %v", err)
		}
	}
	if err := tx.Retry(); err != ErrRetryLimitReached {
		t.Errorf("expected ErrRetryLimitReached, got %v", err)
	}
	if tx.Attempts != MaxTransactionRetries+1 {
		t.Errorf("expected %d attempts, got %d", MaxTransactionRetries+1, tx.Attempts)
	}

	if err := tx.Reverse("oops"); err != ErrInvalidTransition {
		t.Errorf("reverse of failed should be invalid, got %v", err)
	}

	done := PointsTransaction{Status: TransactionPending}
	done.MarkCompleted(now)
	if done.ProcessedAt == nil {
		t.Error("expected processed_at to be set")
	}
	if err := done.Retry(); err != ErrInvalidTransition {
		t.Errorf("retry of completed should be invalid, got %v", err)
	}
	if err := done.Reverse("duplicate charge"); err != nil {
		t.Fatalf("reverse: %v", err)
	}
	if done.Status != TransactionReversed {
		t.Errorf("expected reversed, got %s", done.Status)
	}
}

func TestPointsTransactionFlagAndReview(t *testing.T) {
	now := time.Now()
	tx := PointsTransaction{Status: TransactionPending}
	tx.MarkCompleted(now)

	if err := tx.Review("admin-1", true, "", now); err != ErrNotFlagged {
		t.Errorf("review without flag should fail, got %v", err)
	}
	if err := tx.FlagForReview("velocity", 0); err != nil {
		t.Fatalf("flag: %v", err)
	}
	if tx.Status != TransactionPending || !tx.Security.Flagged || tx.Security.FraudScore != DefaultFraudScore {
		t.Errorf("unexpected flagged state %+v", tx)
	}

	if err := tx.Review("admin-1", false, "", now); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if tx.Status != TransactionFailed || tx.ErrorMessage != "Rejected on review" {
		t.Errorf("expected failed with default note, got %s / %q", tx.Status, tx.ErrorMessage)
	}
	if tx.Security.ReviewedBy != "admin-1" || tx.Security.ReviewedAt == nil {
		t.Error("expected reviewer to be recorded")
	}
	if err := tx.Review("admin-2", true, "", now); err != ErrNotFlagged {
		t.Errorf("second review should fail, got %v", err)
	}

	if err := tx.FlagForReview("again", 250); err != nil {
		t.Fatalf("re-flag: %v", err)
	}
	if tx.Security.FraudScore != 100 || tx.Security.ReviewedAt != nil {
		t.Errorf("expected a fresh flag capped at 100, got %+v", tx.Security)
	}
	if err := tx.Review("admin-2", true, "", now); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if tx.Status != TransactionCompleted {
		t.Errorf("expected completed, got %s", tx.Status)
	}

	tx.Reverse("chargeback")
	if err := tx.FlagForReview("late", 10); err != ErrInvalidTransition {
		t.Errorf("flagging a reversed transaction should fail, got %v", err)
	}
}

func TestProductRatingAndSale(t *testing.T) {
	p := Product{Price: 12.5, Stock: 3, IsAvailable: true}
	p.AddRating(5)
	p.AddRating(4)
	if p.RatingCount != 2 || p.RatingAverage != 4.5 {
		t.Errorf("expected 2 ratings averaging 4.5, got %d / %.1f", p.RatingCount, p.RatingAverage)
	}

	p.RecordSale(2)
	if p.SalesCount != 2 || p.Revenue != 25 || p.Stock != 1 {
		t.Errorf("unexpected counters after sale: %+v", p)
	}
	p.RecordSale(5)
	if p.Stock != 0 || p.InStock() {
		t.Errorf("expected stock exhausted, got %d", p.Stock)
	}

	untracked := Product{Price: 10, Stock: UntrackedStock, IsAvailable: true}
	untracked.RecordSale(100)
	if untracked.Stock != UntrackedStock || !untracked.InStock() {
		t.Error("untracked stock should never change")
	}
}

func TestOrderBeforeCreate(t *testing.T) {
	db := setupTestDB(t)
	order := Order{CustomerUID: "uid-1", OrderType: OrderTypeTakeaway, PaymentMethod: PaymentCash}
	if err := db.Create(&order).Error; err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if order.ID == uuid.Nil {
		t.Error("expected UUID to be generated")
	}
	if !strings.HasPrefix(order.OrderNumber, "NC") || len(order.OrderNumber) != 14 {
		t.Errorf("unexpected order number %q", order.OrderNumber)
	}
}

func TestOrderCalculateTotals(t *testing.T) {
	order := Order{
		PaymentMethod: PaymentCard,
		Items: []OrderItem{
			{Name: "Latte", Price: 18, Quantity: 2},
			{Name: "Cookie", PointsPrice: 7, Quantity: 1},
		},
	}
	order.CalculateTotals()

	if order.Subtotal != 43 {
		t.Errorf("expected subtotal 43, got %.2f", order.Subtotal)
	}
	if math.Abs(order.Tax-6.45) > 0.001 {
		t.Errorf("expected tax 6.45, got %.2f", order.Tax)
	}
	if math.Abs(order.Total-49.45) > 0.001 {
		t.Errorf("expected total 49.45, got %.2f", order.Total)
	}
	if order.PointsEarned != 49 {
		t.Errorf("expected 49 points earned, got %d", order.PointsEarned)
	}

	order.PaymentMethod = PaymentPoints
	order.CalculateTotals()
	if order.PointsEarned != 0 {
		t.Errorf("points-paid orders earn nothing, got %d", order.PointsEarned)
	}
}

func TestOrderSetStatusStampsOnce(t *testing.T) {
	first := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	later := first.Add(time.Hour)
	o := Order{Status: OrderStatusPending}

	o.SetStatus(OrderStatusConfirmed, first)
	o.SetStatus(OrderStatusConfirmed, later)
	if o.ConfirmedAt == nil || !o.ConfirmedAt.Equal(first) {
		t.Errorf("expected confirmed_at to stay at first stamp, got %v", o.ConfirmedAt)
	}
}

func TestIsValidTransition(t *testing.T) {
	if !IsValidTransition(OrderStatusPending, OrderStatusConfirmed) {
		t.Error("pending -> confirmed should be valid")
	}
	if !IsValidTransition(OrderStatusReady, OrderStatusCompleted) {
		t.Error("ready -> completed should be valid")
	}
	if IsValidTransition(OrderStatusCompleted, OrderStatusCancelled) {
		t.Error("completed -> cancelled should be invalid")
	}
	if IsValidTransition(OrderStatusPending, OrderStatusReady) {
		t.Error("pending -> ready should be invalid")
	}
}
