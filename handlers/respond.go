package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"noircafe-backend/ledger"
	"noircafe-backend/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func badRequest(c *gin.Context, err error) {
	utils.Error(c, http.StatusBadRequest, "Invalid request data", utils.FieldErrors(err))
}

// ledgerError maps a ledger failure onto the response envelope. Anything the
// ledger does not name is logged and reported as a 500.
func ledgerError(c *gin.Context, logger *zap.Logger, fallback string, err error) {
	var insufficient *ledger.InsufficientPointsError
	switch {
	case errors.As(err, &insufficient):
		c.JSON(http.StatusBadRequest, utils.Envelope{
			Status:  "error",
			Message: "Insufficient points",
			Data: gin.H{
				"required":  insufficient.Required,
				"available": insufficient.Available,
				"shortage":  insufficient.Shortage(),
			},
		})
	case errors.Is(err, ledger.ErrUserNotFound):
		utils.Error(c, http.StatusNotFound, "User not found", nil)
	case errors.Is(err, ledger.ErrTransactionNotFound):
		utils.Error(c, http.StatusNotFound, "Transaction not found", nil)
	case errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, ledger.ErrInvalidTransactionType),
		errors.Is(err, ledger.ErrInvalidPackage),
		errors.Is(err, ledger.ErrInvalidPrice):
		utils.Error(c, http.StatusBadRequest, err.Error(), nil)
	case errors.Is(err, ledger.ErrInvalidTransition), errors.Is(err, ledger.ErrNotFlagged):
		utils.Error(c, http.StatusConflict, err.Error(), nil)
	case errors.Is(err, ledger.ErrRetryLimitReached):
		utils.Error(c, http.StatusBadRequest, err.Error(), nil)
	default:
		serverError(c, logger, fallback, err)
	}
}

func loggerOrGlobal(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return zap.L()
	}
	return logger
}

func serverError(c *gin.Context, logger *zap.Logger, message string, err error) {
	loggerOrGlobal(logger).Error(message,
		zap.Error(err),
		zap.String("path", c.FullPath()),
		zap.String("request_method", c.Request.Method),
	)
	utils.Error(c, http.StatusInternalServerError, message, nil)
}

// pageParams reads the page and limit query values. When either is present
// but not an integer in range it writes a 400 and returns false.
func pageParams(c *gin.Context, defaultLimit, max int) (int, int, bool) {
	page, limit := 1, defaultLimit
	var err error
	if raw := c.Query("page"); raw != "" {
		if page, err = strconv.Atoi(raw); err != nil || page < 1 {
			utils.Error(c, http.StatusBadRequest, "page must be a positive integer", nil)
			return 0, 0, false
		}
	}
	if raw := c.Query("limit"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil || limit < 1 || limit > max {
			utils.Error(c, http.StatusBadRequest, fmt.Sprintf("limit must be between 1 and %d", max), nil)
			return 0, 0, false
		}
	}
	return page, limit, true
}

type pagination struct {
	CurrentPage int   `json:"current_page"`
	TotalPages  int   `json:"total_pages"`
	Total       int64 `json:"total"`
	Limit       int   `json:"limit"`
	HasNext     bool  `json:"has_next"`
	HasPrev     bool  `json:"has_prev"`
}

func newPagination(page, limit int, total int64) pagination {
	pages := int((total + int64(limit) - 1) / int64(limit))
	return pagination{
		CurrentPage: page,
		TotalPages:  pages,
		Total:       total,
		Limit:       limit,
		HasNext:     page < pages,
		HasPrev:     page > 1,
	}
}

func requestMetadata(c *gin.Context, source, initiatedBy string) ledger.Metadata {
	return ledger.Metadata{
		Source:      source,
		IPAddress:   c.ClientIP(),
		UserAgent:   c.Request.UserAgent(),
		InitiatedBy: initiatedBy,
	}
}
