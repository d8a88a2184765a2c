package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"noircafe-backend/dtos"
	"noircafe-backend/middleware"
	"noircafe-backend/models"
	"noircafe-backend/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultLeaderboardSize = 10
	maxLeaderboardSize     = 50
)

type UserHandler struct {
	DB     *gorm.DB
	Logger *zap.Logger
}

func (h *UserHandler) findUser(c *gin.Context, uid string) (*models.User, bool) {
	var user models.User
	err := h.DB.WithContext(c.Request.Context()).Where("uid = ?", uid).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		utils.Error(c, http.StatusNotFound, "User not found", nil)
		return nil, false
	}
	if err != nil {
		serverError(c, h.Logger, "Failed to fetch user", err)
		return nil, false
	}
	return &user, true
}

func (h *UserHandler) GetProfile(c *gin.Context) {
	uid := c.Param("uid")
	if !middleware.CanAccessUser(c, uid) {
		utils.Error(c, http.StatusForbidden, "You may only view your own profile", nil)
		return
	}
	user, ok := h.findUser(c, uid)
	if !ok {
		return
	}
	utils.Success(c, http.StatusOK, "", gin.H{"user": user})
}

func (h *UserHandler) UpdateProfile(c *gin.Context) {
	uid := c.Param("uid")
	if !middleware.CanAccessUser(c, uid) {
		utils.Error(c, http.StatusForbidden, "You may only update your own profile", nil)
		return
	}

	var req dtos.UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	user, ok := h.findUser(c, uid)
	if !ok {
		return
	}
	if req.DisplayName != nil {
		user.DisplayName = *req.DisplayName
	}
	if req.Phone != nil {
		user.Phone = *req.Phone
	}
	if req.Language != nil {
		user.Language = *req.Language
	}

	// Select keeps the points counters out of the write; they belong to the ledger.
	if err := h.DB.WithContext(c.Request.Context()).Model(user).
		Select("display_name", "phone", "language").
		Updates(user).Error; err != nil {
		serverError(c, h.Logger, "Failed to update profile", err)
		return
	}
	utils.Success(c, http.StatusOK, "Profile updated", gin.H{"user": user})
}

type leaderboardEntry struct {
	UID         string `json:"uid"`
	DisplayName string `json:"display_name"`
	PhotoURL    string `json:"photo_url"`
	Tier        string `json:"tier"`
	TotalPoints int    `json:"total_points"`
}

// GetLeaderboard ranks active users by lifetime points.
func (h *UserHandler) GetLeaderboard(c *gin.Context) {
	limit, err := strconv.Atoi(c.Query("limit"))
	if err != nil || limit < 1 {
		limit = defaultLeaderboardSize
	}
	if limit > maxLeaderboardSize {
		limit = maxLeaderboardSize
	}

	var users []models.User
	if err := h.DB.WithContext(c.Request.Context()).
		Where("status = ?", models.StatusActive).
		Order("points_total DESC").
		Limit(limit).
		Find(&users).Error; err != nil {
		serverError(c, h.Logger, "Failed to fetch leaderboard", err)
		return
	}

	entries := make([]leaderboardEntry, 0, len(users))
	for _, u := range users {
		entries = append(entries, leaderboardEntry{
			UID:         u.UID,
			DisplayName: u.DisplayName,
			PhotoURL:    u.PhotoURL,
			Tier:        u.Tier,
			TotalPoints: u.Points.Total,
		})
	}
	utils.Success(c, http.StatusOK, "", gin.H{"leaderboard": entries, "limit": limit})
}

func (h *UserHandler) ListUsers(c *gin.Context) {
	page, limit, ok := pageParams(c, 20, 100)
	if !ok {
		return
	}

	query := h.DB.WithContext(c.Request.Context()).Model(&models.User{})
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if role := c.Query("role"); role != "" {
		query = query.Where("role = ?", role)
	}
	if search := c.Query("search"); search != "" {
		like := "%" + search + "%"
		query = query.Where("display_name LIKE ? OR email LIKE ?", like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		serverError(c, h.Logger, "Failed to fetch users", err)
		return
	}

	var users []models.User
	if err := query.Order("created_at DESC").Offset((page - 1) * limit).Limit(limit).Find(&users).Error; err != nil {
		serverError(c, h.Logger, "Failed to fetch users", err)
		return
	}

	utils.Success(c, http.StatusOK, "", gin.H{
		"users":      users,
		"pagination": newPagination(page, limit, total),
	})
}

func (h *UserHandler) GetUser(c *gin.Context) {
	uid := c.Param("uid")
	if !middleware.CanAccessUser(c, uid) {
		utils.Error(c, http.StatusForbidden, "Access denied", nil)
		return
	}
	user, ok := h.findUser(c, uid)
	if !ok {
		return
	}
	utils.Success(c, http.StatusOK, "", gin.H{"user": user})
}

// UpdateUser lets an admin change a user's status or role. Balances are only
// changed through the points endpoints.
func (h *UserHandler) UpdateUser(c *gin.Context) {
	var req dtos.AdminUpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	uid := c.Param("uid")
	if uid == middleware.CurrentUID(c) && req.Role != nil && *req.Role != models.RoleAdmin {
		utils.Error(c, http.StatusBadRequest, "You cannot remove your own admin role", nil)
		return
	}

	user, ok := h.findUser(c, uid)
	if !ok {
		return
	}

	var fields []string
	if req.Status != nil {
		user.Status = *req.Status
		fields = append(fields, "status")
	}
	if req.Role != nil {
		user.Role = *req.Role
		fields = append(fields, "role")
	}
	if len(fields) == 0 {
		utils.Error(c, http.StatusBadRequest, "Nothing to update", nil)
		return
	}

	if err := h.DB.WithContext(c.Request.Context()).Model(user).Select(fields).Updates(user).Error; err != nil {
		serverError(c, h.Logger, "Failed to update user", err)
		return
	}

	loggerOrGlobal(h.Logger).Info("user updated by admin",
		zap.String("uid", uid),
		zap.String("admin_uid", middleware.CurrentUID(c)),
		zap.Strings("fields", fields),
	)
	utils.Success(c, http.StatusOK, "User updated", gin.H{"user": user})
}

// DeleteUser bans the account instead of removing it so its ledger stays intact.
func (h *UserHandler) DeleteUser(c *gin.Context) {
	uid := c.Param("uid")
	if uid == middleware.CurrentUID(c) {
		utils.Error(c, http.StatusBadRequest, "You cannot delete your own account", nil)
		return
	}

	res := h.DB.WithContext(c.Request.Context()).Model(&models.User{}).
		Where("uid = ?", uid).Update("status", models.StatusBanned)
	if res.Error != nil {
		serverError(c, h.Logger, "Failed to delete user", res.Error)
		return
	}
	if res.RowsAffected == 0 {
		utils.Error(c, http.StatusNotFound, "User not found", nil)
		return
	}
	utils.Success(c, http.StatusOK, "User deactivated", nil)
}
