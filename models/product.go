package models

import (
	"math"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	CategoryHotDrinks  = "hot_drinks"
	CategoryColdDrinks = "cold_drinks"
	CategoryDesserts   = "desserts"
	CategoryFood       = "food"
	CategoryOther      = "other"
)

// UntrackedStock marks a product whose stock is not counted.
const UntrackedStock = -1

func IsValidCategory(category string) bool {
	switch category {
	case CategoryHotDrinks, CategoryColdDrinks, CategoryDesserts, CategoryFood, CategoryOther:
		return true
	}
	return false
}

type Product struct {
	ID            uuid.UUID      `gorm:"type:char(36);primaryKey" json:"id"`
	Name          string         `gorm:"size:100;not null;index" json:"name"`
	NameEn        string         `gorm:"size:100" json:"name_en"`
	Description   string         `gorm:"size:500" json:"description"`
	Category      string         `gorm:"size:20;not null;index" json:"category"`
	Subcategory   string         `gorm:"size:50" json:"subcategory"`
	Price         float64        `gorm:"not null" json:"price"`
	PointsPrice   int            `gorm:"default:0" json:"points_price"`
	ImageURL      string         `json:"image_url"`
	IsAvailable   bool           `json:"is_available"`
	IsFeatured    bool           `gorm:"default:false" json:"is_featured"`
	Stock         int            `json:"stock"`
	RatingAverage float64        `gorm:"default:0" json:"rating_average"`
	RatingCount   int            `gorm:"default:0" json:"rating_count"`
	SalesCount    int            `gorm:"default:0" json:"sales_count"`
	Revenue       float64        `gorm:"default:0" json:"revenue"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
}

func (p *Product) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// AddRating folds a 1-5 star rating into the running average.
func (p *Product) AddRating(rating int) {
	sum := p.RatingAverage*float64(p.RatingCount) + float64(rating)
	p.RatingCount++
	p.RatingAverage = math.Round(sum/float64(p.RatingCount)*10) / 10
}

// RecordSale bumps the sales counters and draws down tracked stock.
func (p *Product) RecordSale(quantity int) {
	p.SalesCount += quantity
	p.Revenue += p.Price * float64(quantity)
	if p.Stock != UntrackedStock {
		p.Stock -= quantity
		if p.Stock < 0 {
			p.Stock = 0
		}
	}
}

func (p *Product) InStock() bool {
	return p.IsAvailable && (p.Stock == UntrackedStock || p.Stock > 0)
}
