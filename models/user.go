package models

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	RoleCustomer = "customer"
	RoleAdmin    = "admin"
	RoleManager  = "manager"
	RoleStaff    = "staff"
)

const (
	StatusActive    = "active"
	StatusSuspended = "suspended"
	StatusBanned    = "banned"
	StatusPending   = "pending"
)

const (
	ProviderGoogle  = "google.com"
	ProviderTwitter = "twitter.com"
	ProviderEmail   = "email"
)

var ErrNegativePoints = errors.New("points counters cannot be negative")

// PointsBalance holds the three per-user ledger counters. Total is lifetime
// earned and is never reduced by spending.
type PointsBalance struct {
	Current int `gorm:"not null;default:0" json:"current"`
	Total   int `gorm:"not null;default:0" json:"total"`
	Used    int `gorm:"not null;default:0" json:"used"`
}

type User struct {
	ID              uuid.UUID     `gorm:"type:char(36);primaryKey" json:"id"`
	UID             string        `gorm:"size:128;uniqueIndex;not null" json:"uid"`
	Email           string        `gorm:"size:255;uniqueIndex;not null" json:"email"`
	Password        string        `json:"-"`
	DisplayName     string        `gorm:"size:50;not null" json:"display_name"`
	PhotoURL        string        `json:"photo_url"`
	Provider        string        `gorm:"size:20;default:email" json:"provider"`
	IsEmailVerified bool          `gorm:"default:false" json:"is_email_verified"`
	Points          PointsBalance `gorm:"embedded;embeddedPrefix:points_" json:"points"`
	Tier            string        `gorm:"size:10;default:bronze;index" json:"tier"`
	TotalSpent      float64       `gorm:"default:0" json:"total_spent"`
	OrderCount      int           `gorm:"default:0" json:"order_count"`
	Phone           string        `gorm:"size:20" json:"phone"`
	Language        string        `gorm:"size:2;default:ar" json:"language"`
	Status          string        `gorm:"size:10;default:active;index" json:"status"`
	Role            string        `gorm:"size:10;default:customer" json:"role"`
	LastLoginAt     *time.Time    `json:"last_login_at,omitempty"`
	LoginCount      int           `gorm:"default:0" json:"login_count"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// BeforeSave normalizes the email and recomputes the tier from the persisted
// lifetime total on every write.
func (u *User) BeforeSave(tx *gorm.DB) error {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	if u.Points.Current < 0 || u.Points.Total < 0 || u.Points.Used < 0 {
		return ErrNegativePoints
	}
	u.Tier = ClassifyTier(u.Points.Total)
	return nil
}

func (u *User) PointsToNextTier() int {
	return PointsToNextTier(ClassifyTier(u.Points.Total), u.Points.Total)
}

func (u *User) IsActive() bool {
	return u.Status == "" || u.Status == StatusActive
}

// IsStaff reports whether the user may operate the counter (orders, catalog).
func (u *User) IsStaff() bool {
	return IsStaffRole(u.Role)
}

func IsStaffRole(role string) bool {
	return role == RoleAdmin || role == RoleManager || role == RoleStaff
}

func IsValidRole(role string) bool {
	switch role {
	case RoleCustomer, RoleAdmin, RoleManager, RoleStaff:
		return true
	}
	return false
}

func IsValidStatus(status string) bool {
	switch status {
	case StatusActive, StatusSuspended, StatusBanned, StatusPending:
		return true
	}
	return false
}

func IsValidProvider(provider string) bool {
	switch provider {
	case ProviderGoogle, ProviderTwitter, ProviderEmail:
		return true
	}
	return false
}
