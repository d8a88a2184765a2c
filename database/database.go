package database

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"time"

	"noircafe-backend/models"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Connect opens the store named by dbType. Postgres is the production
// target; mysql matches the legacy deployment and sqlite is for local runs.
func Connect(dbType, dsn string, debug bool) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch dbType {
	case "", "postgres":
		if dsn == "" {
			dsn = "host=localhost user=postgres password=postgres dbname=noircafe port=5432 sslmode=disable"
		}
		dialector = postgres.Open(dsn)
	case "mysql":
		dialector = mysql.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database type %q", dbType)
	}

	level := gormlogger.Warn
	if debug {
		level = gormlogger.Info
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         gormlogger.Default.LogMode(level),
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if dbType == "sqlite" {
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(25)
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}

	return db, nil
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.PointsTransaction{},
		&models.Product{},
		&models.Order{},
		&models.OrderItem{},
	)
}

// CreateDefaultAdmin makes sure one admin account exists. Without
// ADMIN_PASSWORD a random password is generated and logged once.
func CreateDefaultAdmin(db *gorm.DB) error {
	adminEmail := os.Getenv("ADMIN_EMAIL")
	adminPassword := os.Getenv("ADMIN_PASSWORD")

	if adminEmail == "" {
		adminEmail = "admin@noircafe.com"
	}
	generated := false
	if adminPassword == "" {
		var err error
		adminPassword, err = randomPassword()
		if err != nil {
			return err
		}
		generated = true
	}

	var existingUser models.User
	err := db.Where("email = ?", adminEmail).First(&existingUser).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(adminPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	admin := models.User{
		UID:             fmt.Sprintf("admin_%d", time.Now().UnixMilli()),
		Email:           adminEmail,
		Password:        string(hashedPassword),
		DisplayName:     "Noir Admin",
		Provider:        models.ProviderEmail,
		IsEmailVerified: true,
		Role:            models.RoleAdmin,
		Status:          models.StatusActive,
	}

	if err := db.Create(&admin).Error; err != nil {
		return err
	}

	fields := []zap.Field{zap.String("email", adminEmail)}
	if generated {
		fields = append(fields, zap.String("password", adminPassword))
	}
	zap.L().Info("default admin created", fields...)
	return nil
}

func randomPassword() (string, error) {
	b := make([]byte, 12)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
