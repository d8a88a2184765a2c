package handlers

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"sort"
	"strconv"
	"time"

	"noircafe-backend/dtos"
	"noircafe-backend/ledger"
	"noircafe-backend/middleware"
	"noircafe-backend/models"
	"noircafe-backend/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// CancelWindow is how long a customer may cancel their own order.
const CancelWindow = 10 * time.Minute

const (
	defaultOrderPage   = 20
	maxOrderPage       = 100
	defaultStatsPeriod = 30
	orderStatsTopN     = 10
)

type OrderHandler struct {
	DB     *gorm.DB
	Ledger *ledger.Service
	Logger *zap.Logger
}

func (h *OrderHandler) findOrder(c *gin.Context) (*models.Order, bool) {
	var order models.Order
	err := h.DB.WithContext(c.Request.Context()).Preload("Items").
		Where("order_number = ?", c.Param("orderNumber")).First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		utils.Error(c, http.StatusNotFound, "Order not found", nil)
		return nil, false
	}
	if err != nil {
		serverError(c, h.Logger, "Failed to fetch order", err)
		return nil, false
	}
	return &order, true
}

func (h *OrderHandler) CreateOrder(c *gin.Context) {
	var req dtos.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if req.OrderType == models.OrderTypeDelivery && req.DeliveryAddress == "" {
		utils.Error(c, http.StatusBadRequest, "delivery_address is required for delivery orders", nil)
		return
	}

	ctx := c.Request.Context()
	uid := middleware.CurrentUID(c)
	var user models.User
	if err := h.DB.WithContext(ctx).Where("uid = ?", uid).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(c, http.StatusNotFound, "User not found", nil)
			return
		}
		serverError(c, h.Logger, "Failed to create order", err)
		return
	}

	order := models.Order{
		CustomerUID:     user.UID,
		CustomerName:    user.DisplayName,
		CustomerEmail:   user.Email,
		CustomerPhone:   req.CustomerPhone,
		OrderType:       req.OrderType,
		DeliveryFee:     req.DeliveryFee,
		Discount:        req.Discount,
		PaymentMethod:   req.PaymentMethod,
		PaymentStatus:   models.PaymentStatusPending,
		Status:          models.OrderStatusPending,
		DeliveryAddress: req.DeliveryAddress,
		Notes:           req.Notes,
	}
	if order.CustomerPhone == "" {
		order.CustomerPhone = user.Phone
	}

	for _, item := range req.Items {
		line := models.OrderItem{
			Name:        item.Name,
			Category:    item.Category,
			Price:       item.Price,
			PointsPrice: item.PointsPrice,
			Quantity:    item.Quantity,
		}
		if item.ProductID != "" {
			productID := uuid.MustParse(item.ProductID)
			var product models.Product
			if err := h.DB.WithContext(ctx).Where("id = ?", productID).First(&product).Error; err != nil {
				utils.Error(c, http.StatusBadRequest, fmt.Sprintf("Product %s not found", item.ProductID), nil)
				return
			}
			if !product.InStock() {
				utils.Error(c, http.StatusBadRequest, fmt.Sprintf("%s is currently unavailable", product.Name), nil)
				return
			}
			line.ProductID = &productID
		}
		order.Items = append(order.Items, line)
	}
	order.CalculateTotals()

	pointsToUse := req.PointsUsed
	if pointsToUse == 0 && req.PaymentMethod == models.PaymentPoints {
		pointsToUse = int(math.Ceil(order.Subtotal))
	}

	if pointsToUse == 0 {
		if err := h.DB.WithContext(ctx).Create(&order).Error; err != nil {
			serverError(c, h.Logger, "Failed to create order", err)
			return
		}
		utils.SendOrderConfirmation(user.Email, user.DisplayName, order.OrderNumber, order.Total)
		utils.Success(c, http.StatusCreated, "Order created", gin.H{
			"order":        order,
			"user_balance": user.Points,
		})
		return
	}

	order.PointsUsed = pointsToUse
	result, err := h.Ledger.Apply(ctx, "order", uid, func(w *ledger.Writer) error {
		if err := w.Tx().Create(&order).Error; err != nil {
			return err
		}
		redeemed := make([]models.RedemptionItem, 0, len(order.Items))
		for _, item := range order.Items {
			redeemed = append(redeemed, models.RedemptionItem{
				ProductName: item.Name,
				Quantity:    item.Quantity,
				PointsValue: item.PointsPrice,
			})
		}
		if _, err := w.Debit(ledger.Entry{
			Type:            models.TransactionRedemption,
			Amount:          pointsToUse,
			Description:     fmt.Sprintf("Order %s", order.OrderNumber),
			OrderNumber:     order.OrderNumber,
			OrderTotal:      order.Total,
			RedemptionItems: redeemed,
			Metadata:        requestMetadata(c, models.SourceWebsite, uid),
		}); err != nil {
			return err
		}
		order.PaymentStatus = models.PaymentStatusCompleted
		return w.Tx().Model(&order).Update("payment_status", order.PaymentStatus).Error
	})
	if err != nil {
		ledgerError(c, h.Logger, "Failed to create order", err)
		return
	}

	utils.SendOrderConfirmation(user.Email, user.DisplayName, order.OrderNumber, order.Total)
	utils.Success(c, http.StatusCreated, "Order created", gin.H{
		"order":        order,
		"user_balance": result.User.Points,
	})
}

func (h *OrderHandler) GetUserOrders(c *gin.Context) {
	uid := c.Param("uid")
	if uid != middleware.CurrentUID(c) && !models.IsStaffRole(middleware.CurrentRole(c)) {
		utils.Error(c, http.StatusForbidden, "You may only view your own orders", nil)
		return
	}

	limit, err := strconv.Atoi(c.Query("limit"))
	if err != nil || limit < 1 || limit > maxOrderPage {
		limit = defaultOrderPage
	}
	query := h.DB.WithContext(c.Request.Context()).Preload("Items").Where("customer_uid = ?", uid)
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var orders []models.Order
	if err := query.Order("created_at DESC").Limit(limit).Find(&orders).Error; err != nil {
		serverError(c, h.Logger, "Failed to fetch orders", err)
		return
	}
	utils.Success(c, http.StatusOK, "", gin.H{"orders": orders})
}

func (h *OrderHandler) GetOrder(c *gin.Context) {
	order, ok := h.findOrder(c)
	if !ok {
		return
	}
	if order.CustomerUID != middleware.CurrentUID(c) && !models.IsStaffRole(middleware.CurrentRole(c)) {
		utils.Error(c, http.StatusForbidden, "You may only view your own orders", nil)
		return
	}
	utils.Success(c, http.StatusOK, "", gin.H{"order": order})
}

func (h *OrderHandler) UpdateOrderStatus(c *gin.Context) {
	var req dtos.UpdateOrderStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	order, ok := h.findOrder(c)
	if !ok {
		return
	}

	next := models.OrderStatus(req.Status)
	if !models.IsValidTransition(order.Status, next) {
		utils.Error(c, http.StatusBadRequest,
			fmt.Sprintf("Invalid status transition from '%s' to '%s'", order.Status, next), nil)
		return
	}

	staffUID := middleware.CurrentUID(c)
	var err error
	switch next {
	case models.OrderStatusCompleted:
		err = h.completeOrder(c.Request.Context(), order, requestMetadata(c, models.SourcePOS, staffUID))
	case models.OrderStatusCancelled:
		err = h.cancelOrder(c.Request.Context(), order, staffUID, "Cancelled by staff", requestMetadata(c, models.SourcePOS, staffUID))
	default:
		order.SetStatus(next, time.Now())
		err = h.DB.WithContext(c.Request.Context()).Omit("Items").Save(order).Error
	}
	if err != nil {
		ledgerError(c, h.Logger, "Failed to update order status", err)
		return
	}

	loggerOrGlobal(h.Logger).Info("order status changed",
		zap.String("order_number", order.OrderNumber),
		zap.String("status", string(order.Status)),
		zap.String("staff_uid", staffUID),
	)
	utils.Success(c, http.StatusOK, "Order status updated", gin.H{"order": order})
}

// completeOrder closes the order, books product sales, bumps the customer's
// order counters and credits the loyalty points it earned, atomically.
func (h *OrderHandler) completeOrder(ctx context.Context, order *models.Order, meta ledger.Metadata) error {
	_, err := h.Ledger.Apply(ctx, "order_complete", order.CustomerUID, func(w *ledger.Writer) error {
		tx := w.Tx()
		order.SetStatus(models.OrderStatusCompleted, time.Now())
		if order.PaymentStatus == models.PaymentStatusPending {
			order.PaymentStatus = models.PaymentStatusCompleted
		}
		if err := tx.Omit("Items").Save(order).Error; err != nil {
			return err
		}

		for _, item := range order.Items {
			if item.ProductID == nil {
				continue
			}
			var product models.Product
			if err := tx.Where("id = ?", *item.ProductID).First(&product).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					continue
				}
				return err
			}
			product.RecordSale(item.Quantity)
			if err := tx.Model(&product).Select("sales_count", "revenue", "stock").Updates(&product).Error; err != nil {
				return err
			}
		}

		user := w.User()
		user.OrderCount++
		user.TotalSpent += order.Total
		if err := tx.Model(user).Select("order_count", "total_spent").Updates(user).Error; err != nil {
			return err
		}

		if order.PointsEarned <= 0 {
			return nil
		}
		_, err := w.Credit(ledger.Entry{
			Type:        models.TransactionBonus,
			Amount:      order.PointsEarned,
			Description: fmt.Sprintf("Loyalty points for order %s", order.OrderNumber),
			OrderNumber: order.OrderNumber,
			OrderTotal:  order.Total,
			BonusReason: "loyalty",
			Metadata:    meta,
		})
		return err
	})
	return err
}

// cancelOrder marks the order cancelled and returns any points spent on it.
func (h *OrderHandler) cancelOrder(ctx context.Context, order *models.Order, by, reason string, meta ledger.Metadata) error {
	now := time.Now()
	order.CancelledBy = by
	order.CancelReason = reason

	if order.PointsUsed == 0 {
		order.SetStatus(models.OrderStatusCancelled, now)
		return h.DB.WithContext(ctx).Omit("Items").Save(order).Error
	}

	_, err := h.Ledger.Apply(ctx, "order_cancel", order.CustomerUID, func(w *ledger.Writer) error {
		if _, err := w.RestoreSpent(ledger.Entry{
			Amount:      order.PointsUsed,
			Description: fmt.Sprintf("Refund for cancelled order %s", order.OrderNumber),
			OrderNumber: order.OrderNumber,
			OrderTotal:  order.Total,
			Metadata:    meta,
		}); err != nil {
			return err
		}
		order.SetStatus(models.OrderStatusCancelled, now)
		order.RefundIssued = true
		order.PaymentStatus = models.PaymentStatusRefunded
		return w.Tx().Omit("Items").Save(order).Error
	})
	return err
}

func (h *OrderHandler) AddFeedback(c *gin.Context) {
	var req dtos.OrderFeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	order, ok := h.findOrder(c)
	if !ok {
		return
	}
	if order.CustomerUID != middleware.CurrentUID(c) {
		utils.Error(c, http.StatusForbidden, "You may only rate your own orders", nil)
		return
	}
	if order.Status != models.OrderStatusCompleted {
		utils.Error(c, http.StatusBadRequest, "Orders can only be rated once completed", nil)
		return
	}
	if order.FeedbackRating > 0 {
		utils.Error(c, http.StatusBadRequest, "Feedback already submitted", nil)
		return
	}

	now := time.Now()
	order.FeedbackRating = req.Rating
	order.FeedbackComment = req.Comment
	order.FeedbackAt = &now
	if err := h.DB.WithContext(c.Request.Context()).Model(order).
		Select("feedback_rating", "feedback_comment", "feedback_at").
		Updates(order).Error; err != nil {
		serverError(c, h.Logger, "Failed to save feedback", err)
		return
	}

	utils.Success(c, http.StatusOK, "Feedback added", gin.H{"feedback": gin.H{
		"rating":     order.FeedbackRating,
		"comment":    order.FeedbackComment,
		"created_at": order.FeedbackAt,
	}})
}

// CancelOrder lets the owner cancel within CancelWindow, or an admin at any
// point before the order is already cancelled.
func (h *OrderHandler) CancelOrder(c *gin.Context) {
	var req dtos.CancelOrderRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}

	order, ok := h.findOrder(c)
	if !ok {
		return
	}

	uid := middleware.CurrentUID(c)
	isAdmin := middleware.IsAdmin(c)
	if !isAdmin && order.CustomerUID != uid {
		utils.Error(c, http.StatusForbidden, "You may not cancel this order", nil)
		return
	}
	if order.Status == models.OrderStatusCancelled {
		utils.Error(c, http.StatusBadRequest, "Order is already cancelled", nil)
		return
	}
	if !isAdmin {
		if order.Status == models.OrderStatusCompleted {
			utils.Error(c, http.StatusBadRequest, "Order can no longer be cancelled", nil)
			return
		}
		if time.Since(order.CreatedAt) > CancelWindow {
			utils.Error(c, http.StatusBadRequest, "Orders can only be cancelled within 10 minutes", nil)
			return
		}
	}

	reason := req.Reason
	if reason == "" {
		reason = "Cancelled by customer"
	}
	if err := h.cancelOrder(c.Request.Context(), order, uid, reason, requestMetadata(c, models.SourceWebsite, uid)); err != nil {
		ledgerError(c, h.Logger, "Failed to cancel order", err)
		return
	}

	utils.Success(c, http.StatusOK, "Order cancelled", gin.H{
		"order":           order,
		"points_refunded": refundedPoints(order),
	})
}

func refundedPoints(order *models.Order) int {
	if order.RefundIssued {
		return order.PointsUsed
	}
	return 0
}

func (h *OrderHandler) ListOrders(c *gin.Context) {
	page, limit, ok := pageParams(c, defaultOrderPage, maxOrderPage)
	if !ok {
		return
	}

	query := h.DB.WithContext(c.Request.Context()).Model(&models.Order{})
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if orderType := c.Query("order_type"); orderType != "" {
		query = query.Where("order_type = ?", orderType)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		serverError(c, h.Logger, "Failed to fetch orders", err)
		return
	}

	var orders []models.Order
	if err := query.Preload("Items").Order("created_at DESC").
		Offset((page - 1) * limit).Limit(limit).Find(&orders).Error; err != nil {
		serverError(c, h.Logger, "Failed to fetch orders", err)
		return
	}

	utils.Success(c, http.StatusOK, "", gin.H{
		"orders":     orders,
		"pagination": newPagination(page, limit, total),
	})
}

// GetTodayOrders is the counter view: every order since local midnight.
func (h *OrderHandler) GetTodayOrders(c *gin.Context) {
	now := time.Now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	query := h.DB.WithContext(c.Request.Context()).Preload("Items").Where("created_at >= ?", midnight)
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var orders []models.Order
	if err := query.Order("created_at ASC").Find(&orders).Error; err != nil {
		serverError(c, h.Logger, "Failed to fetch today's orders", err)
		return
	}

	byStatus := map[models.OrderStatus]int{}
	revenue := 0.0
	for _, o := range orders {
		byStatus[o.Status]++
		if o.Status != models.OrderStatusCancelled {
			revenue += o.Total
		}
	}

	utils.Success(c, http.StatusOK, "", gin.H{
		"orders": orders,
		"summary": gin.H{
			"total":     len(orders),
			"by_status": byStatus,
			"revenue":   math.Round(revenue*100) / 100,
		},
	})
}

type dailyOrderStats struct {
	Date       string  `json:"date"`
	Orders     int     `json:"orders"`
	Revenue    float64 `json:"revenue"`
	PointsUsed int     `json:"points_used"`
}

type popularItem struct {
	Name         string  `json:"name"`
	TotalOrdered int64   `json:"total_ordered"`
	TotalRevenue float64 `json:"total_revenue"`
}

type topCustomer struct {
	CustomerUID     string  `json:"customer_uid"`
	CustomerName    string  `json:"customer_name"`
	TotalOrders     int64   `json:"total_orders"`
	TotalSpent      float64 `json:"total_spent"`
	TotalPointsUsed int64   `json:"total_points_used"`
}

func (h *OrderHandler) GetOrderStats(c *gin.Context) {
	period, err := strconv.Atoi(c.Query("period"))
	if err != nil || period < 1 || period > 365 {
		period = defaultStatsPeriod
	}
	since := time.Now().AddDate(0, 0, -period)
	db := h.DB.WithContext(c.Request.Context())

	var orders []models.Order
	if err := db.Select("id", "status", "total", "points_used", "created_at").
		Where("created_at >= ?", since).Find(&orders).Error; err != nil {
		serverError(c, h.Logger, "Failed to fetch order statistics", err)
		return
	}

	// Day buckets are built in Go; date functions differ across the supported databases.
	days := map[string]*dailyOrderStats{}
	byStatus := map[models.OrderStatus]int{}
	revenue := 0.0
	pointsUsed := 0
	for _, o := range orders {
		byStatus[o.Status]++
		revenue += o.Total
		pointsUsed += o.PointsUsed
		key := o.CreatedAt.Format("2006-01-02")
		day, ok := days[key]
		if !ok {
			day = &dailyOrderStats{Date: key}
			days[key] = day
		}
		day.Orders++
		day.Revenue += o.Total
		day.PointsUsed += o.PointsUsed
	}
	daily := make([]dailyOrderStats, 0, len(days))
	for _, d := range days {
		d.Revenue = math.Round(d.Revenue*100) / 100
		daily = append(daily, *d)
	}
	sort.Slice(daily, func(i, j int) bool { return daily[i].Date < daily[j].Date })

	average := 0.0
	if len(orders) > 0 {
		average = math.Round(revenue/float64(len(orders))*100) / 100
	}

	var popular []popularItem
	if err := db.Table("order_items").
		Select("order_items.name AS name, SUM(order_items.quantity) AS total_ordered, SUM(order_items.subtotal) AS total_revenue").
		Joins("JOIN orders ON orders.id = order_items.order_id").
		Where("orders.created_at >= ?", since).
		Group("order_items.name").
		Order("total_ordered DESC").
		Limit(orderStatsTopN).
		Scan(&popular).Error; err != nil {
		serverError(c, h.Logger, "Failed to fetch order statistics", err)
		return
	}

	var customers []topCustomer
	if err := db.Model(&models.Order{}).
		Select("customer_uid, MAX(customer_name) AS customer_name, COUNT(*) AS total_orders, SUM(total) AS total_spent, SUM(points_used) AS total_points_used").
		Where("created_at >= ?", since).
		Group("customer_uid").
		Order("total_spent DESC").
		Limit(orderStatsTopN).
		Scan(&customers).Error; err != nil {
		serverError(c, h.Logger, "Failed to fetch order statistics", err)
		return
	}

	utils.Success(c, http.StatusOK, "", gin.H{
		"overview": gin.H{
			"total_orders":        len(orders),
			"total_revenue":       math.Round(revenue*100) / 100,
			"total_points_used":   pointsUsed,
			"average_order_value": average,
			"orders_by_status":    byStatus,
		},
		"daily_breakdown": daily,
		"popular_items":   popular,
		"top_customers":   customers,
		"period_days":     period,
		"generated_at":    time.Now().UTC().Format(time.RFC3339),
	})
}
