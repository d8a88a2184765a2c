package handlers

import (
	"fmt"
	"net/http"

	"noircafe-backend/dtos"
	"noircafe-backend/ledger"
	"noircafe-backend/middleware"
	"noircafe-backend/models"
	"noircafe-backend/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// MaxSelfCredit caps how many points a non-admin may credit to themselves in
// one request.
const MaxSelfCredit = 1000

type PointsHandler struct {
	Ledger *ledger.Service
	Logger *zap.Logger
}

func (h *PointsHandler) GetPackages(c *gin.Context) {
	utils.Success(c, http.StatusOK, "", gin.H{"packages": ledger.Packages()})
}

// GetBalance returns the balance summary. With compact=true only the counters
// are returned, served from the balance cache when one is configured.
func (h *PointsHandler) GetBalance(c *gin.Context) {
	uid := c.Param("id")
	if !middleware.CanAccessUser(c, uid) {
		utils.Error(c, http.StatusForbidden, "You may only view your own points", nil)
		return
	}

	if c.Query("compact") == "true" {
		balance, err := h.Ledger.Balance(c.Request.Context(), uid)
		if err != nil {
			ledgerError(c, h.Logger, "Failed to fetch balance", err)
			return
		}
		utils.Success(c, http.StatusOK, "", gin.H{"balance": balance})
		return
	}

	summary, err := h.Ledger.Summary(c.Request.Context(), uid)
	if err != nil {
		ledgerError(c, h.Logger, "Failed to fetch balance", err)
		return
	}
	utils.Success(c, http.StatusOK, "", gin.H{
		"balance": summary.Balance,
		"user": gin.H{
			"uid":          summary.User.UID,
			"display_name": summary.User.DisplayName,
			"tier":         summary.User.Tier,
		},
		"recent_transactions": summary.RecentTransactions,
		"next_tier_points":    summary.NextTierPoints,
	})
}

func (h *PointsHandler) Purchase(c *gin.Context) {
	var req dtos.PurchasePointsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	uid := middleware.CurrentUID(c)
	result, err := h.Ledger.Purchase(c.Request.Context(), uid, req.PackagePoints, req.PackagePrice,
		req.PaymentMethod, requestMetadata(c, models.SourceWebsite, uid))
	if err != nil {
		ledgerError(c, h.Logger, "Failed to purchase points", err)
		return
	}

	purchase := result.Transactions[0]
	var bonus *models.PointsTransaction
	bonusPoints := 0
	if len(result.Transactions) > 1 {
		bonus = &result.Transactions[1]
		bonusPoints = bonus.Amount
	}
	utils.SendPointsReceipt(result.User.Email, result.User.DisplayName, purchase.Amount, bonusPoints, result.User.Points.Current)

	utils.Success(c, http.StatusOK, "Points purchased", gin.H{
		"purchase_transaction": purchase,
		"bonus_transaction":    bonus,
		"new_balance":          result.User.Points,
		"points_added":         purchase.Amount + bonusPoints,
		"bonus_received":       bonusPoints,
	})
}

func (h *PointsHandler) Redeem(c *gin.Context) {
	var req dtos.RedeemPointsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	items := make([]models.RedemptionItem, 0, len(req.Items))
	for _, item := range req.Items {
		qty := item.Quantity
		if qty == 0 {
			qty = 1
		}
		items = append(items, models.RedemptionItem{ProductName: item.Name, Quantity: qty, PointsValue: item.PointsPrice})
	}

	uid := middleware.CurrentUID(c)
	description := "Points redemption"
	if req.OrderNumber != "" {
		description = fmt.Sprintf("Redemption for order %s", req.OrderNumber)
	}
	result, err := h.Ledger.Redeem(c.Request.Context(), ledger.Entry{
		UserUID:         uid,
		Amount:          req.PointsToRedeem,
		Description:     description,
		OrderNumber:     req.OrderNumber,
		RedemptionItems: items,
		Metadata:        requestMetadata(c, models.SourceWebsite, uid),
	})
	if err != nil {
		ledgerError(c, h.Logger, "Failed to redeem points", err)
		return
	}

	utils.Success(c, http.StatusOK, "Points redeemed", gin.H{
		"transaction":      result.Transactions[0],
		"new_balance":      result.User.Points,
		"points_used":      req.PointsToRedeem,
		"remaining_points": result.User.Points.Current,
	})
}

func (h *PointsHandler) GetTransactions(c *gin.Context) {
	uid := c.Param("id")
	if !middleware.CanAccessUser(c, uid) {
		utils.Error(c, http.StatusForbidden, "You may only view your own transactions", nil)
		return
	}

	txType := models.TransactionType(c.Query("type"))
	if txType != "" && !models.IsValidTransactionType(txType) {
		utils.Error(c, http.StatusBadRequest, "Invalid transaction type", nil)
		return
	}

	page, limit, ok := pageParams(c, ledger.DefaultPageSize, ledger.MaxPageSize)
	if !ok {
		return
	}
	history, err := h.Ledger.History(c.Request.Context(), ledger.HistoryQuery{
		UserUID: uid,
		Type:    txType,
		Page:    page,
		Limit:   limit,
	})
	if err != nil {
		ledgerError(c, h.Logger, "Failed to fetch transactions", err)
		return
	}
	utils.Success(c, http.StatusOK, "", history)
}

func (h *PointsHandler) GetStats(c *gin.Context) {
	stats, err := h.Ledger.Stats(c.Request.Context())
	if err != nil {
		ledgerError(c, h.Logger, "Failed to fetch points statistics", err)
		return
	}
	utils.Success(c, http.StatusOK, "", stats)
}

// sourceTypes maps the public add-points sources onto ledger entry types.
var sourceTypes = map[string]models.TransactionType{
	"purchase":  models.TransactionPurchase,
	"bonus":     models.TransactionBonus,
	"promotion": models.TransactionBonus,
	"refund":    models.TransactionRefund,
	"admin":     models.TransactionAdjustment,
}

func (h *PointsHandler) AddPoints(c *gin.Context) {
	var req dtos.AddPointsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if req.Source == "" {
		req.Source = "admin"
	}

	callerUID := middleware.CurrentUID(c)
	isAdmin := middleware.IsAdmin(c)
	if !isAdmin {
		if req.UserUID != callerUID {
			utils.Error(c, http.StatusForbidden, "You may only add points to your own account", nil)
			return
		}
		if req.Source != "purchase" && req.Source != "bonus" {
			utils.Error(c, http.StatusForbidden, "Only purchase or bonus points may be self-credited", nil)
			return
		}
		if req.Points > MaxSelfCredit {
			utils.Error(c, http.StatusBadRequest, fmt.Sprintf("At most %d points may be added per request", MaxSelfCredit), nil)
			return
		}
	}

	entry := ledger.Entry{
		UserUID:     req.UserUID,
		Type:        sourceTypes[req.Source],
		Amount:      req.Points,
		Description: req.Reason,
		OrderNumber: req.RelatedOrder,
		AdminNote:   req.AdminNote,
		Metadata:    requestMetadata(c, models.SourceWebsite, callerUID),
	}
	switch req.Source {
	case "bonus":
		entry.BonusReason = "loyalty"
	case "promotion":
		entry.BonusReason = "promotion"
	}
	if isAdmin {
		entry.AdminUID = callerUID
		entry.Metadata.Source = models.SourceAdminPanel
	}

	result, err := h.Ledger.AddPoints(c.Request.Context(), entry)
	if err != nil {
		ledgerError(c, h.Logger, "Failed to add points", err)
		return
	}

	utils.Success(c, http.StatusOK, "Points added", gin.H{
		"transaction": result.Transactions[0],
		"target_user": gin.H{
			"uid":          result.User.UID,
			"display_name": result.User.DisplayName,
			"new_balance":  result.User.Points,
		},
		"points_added": req.Points,
		"source":       req.Source,
		"initiated_by": gin.H{"uid": callerUID, "is_admin": isAdmin},
	})
}

func (h *PointsHandler) DeductPoints(c *gin.Context) {
	var req dtos.DeductPointsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	adminUID := middleware.CurrentUID(c)
	result, err := h.Ledger.DeductPoints(c.Request.Context(), ledger.Entry{
		UserUID:     req.UserUID,
		Type:        models.TransactionAdjustment,
		Amount:      req.Points,
		Description: req.Reason,
		AdminUID:    adminUID,
		AdminNote:   req.AdminNote,
		Metadata:    requestMetadata(c, models.SourceAdminPanel, adminUID),
	})
	if err != nil {
		ledgerError(c, h.Logger, "Failed to deduct points", err)
		return
	}

	utils.Success(c, http.StatusOK, "Points deducted", gin.H{
		"transaction": result.Transactions[0],
		"target_user": gin.H{
			"uid":          result.User.UID,
			"display_name": result.User.DisplayName,
			"new_balance":  result.User.Points,
		},
		"points_deducted": req.Points,
		"admin":           gin.H{"uid": adminUID},
	})
}

func (h *PointsHandler) ReverseTransaction(c *gin.Context) {
	var req dtos.ReverseTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	rec, err := h.Ledger.Reverse(c.Request.Context(), c.Param("id"), req.Reason, middleware.CurrentUID(c))
	if err != nil {
		ledgerError(c, h.Logger, "Failed to reverse transaction", err)
		return
	}
	utils.Success(c, http.StatusOK, "Transaction reversed", gin.H{"transaction": rec})
}

func (h *PointsHandler) RetryTransaction(c *gin.Context) {
	rec, err := h.Ledger.Retry(c.Request.Context(), c.Param("id"))
	if err != nil {
		ledgerError(c, h.Logger, "Failed to retry transaction", err)
		return
	}
	utils.Success(c, http.StatusOK, "Transaction queued for retry", gin.H{"transaction": rec})
}

func (h *PointsHandler) FailTransaction(c *gin.Context) {
	var req dtos.FailTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	rec, err := h.Ledger.MarkFailed(c.Request.Context(), c.Param("id"), req.Message)
	if err != nil {
		ledgerError(c, h.Logger, "Failed to update transaction", err)
		return
	}
	utils.Success(c, http.StatusOK, "Transaction marked as failed", gin.H{"transaction": rec})
}

// FlagTransaction holds a transaction for fraud review.
func (h *PointsHandler) FlagTransaction(c *gin.Context) {
	var req dtos.FlagTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	rec, err := h.Ledger.Flag(c.Request.Context(), c.Param("id"), req.Reason, req.FraudScore)
	if err != nil {
		ledgerError(c, h.Logger, "Failed to flag transaction", err)
		return
	}
	utils.Success(c, http.StatusOK, "Transaction flagged for review", gin.H{"transaction": rec})
}

func (h *PointsHandler) ReviewTransaction(c *gin.Context) {
	var req dtos.ReviewTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	rec, err := h.Ledger.Review(c.Request.Context(), c.Param("id"), middleware.CurrentUID(c), *req.Approve, req.Note)
	if err != nil {
		ledgerError(c, h.Logger, "Failed to review transaction", err)
		return
	}
	message := "Transaction approved"
	if !*req.Approve {
		message = "Transaction rejected"
	}
	utils.Success(c, http.StatusOK, message, gin.H{"transaction": rec})
}

func (h *PointsHandler) GetFlaggedTransactions(c *gin.Context) {
	txs, err := h.Ledger.Flagged(c.Request.Context())
	if err != nil {
		ledgerError(c, h.Logger, "Failed to fetch flagged transactions", err)
		return
	}
	utils.Success(c, http.StatusOK, "", gin.H{"transactions": txs, "count": len(txs)})
}
