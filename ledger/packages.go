package ledger

import (
	"fmt"
	"math"
)

const (
	MinPackageSize = 10
	MaxPackageSize = 1000
)

var packageBonuses = map[int]int{
	100:  20,
	300:  35,
	500:  50,
	1000: 100,
}

var packageTags = map[int]string{
	100:  "special_offer",
	300:  "save_more",
	500:  "most_popular",
	1000: "best_value",
}

// Package is one purchasable points bundle priced at 1 SAR per base point.
type Package struct {
	Points        int     `json:"points"`
	Price         float64 `json:"price"`
	Bonus         int     `json:"bonus"`
	Popular       bool    `json:"popular"`
	Tag           string  `json:"tag,omitempty"`
	TotalPoints   int     `json:"total_points"`
	Savings       string  `json:"savings,omitempty"`
	PricePerPoint float64 `json:"price_per_point"`
}

// PackageBonus returns the bonus points attached to an exact package size.
func PackageBonus(size int) int {
	return packageBonuses[size]
}

func ValidPackageSize(size int) bool {
	return size >= MinPackageSize && size <= MaxPackageSize
}

// PromotionCode tags the bonus entry written alongside a package purchase.
func PromotionCode(size int) string {
	return fmt.Sprintf("BONUS_%d", size)
}

// Packages lists the catalog: every 10 points up to 200, then 250, then every
// 50 points up to 1000.
func Packages() []Package {
	var sizes []int
	for p := 10; p <= 200; p += 10 {
		sizes = append(sizes, p)
	}
	sizes = append(sizes, 250)
	for p := 300; p <= MaxPackageSize; p += 50 {
		sizes = append(sizes, p)
	}

	packages := make([]Package, 0, len(sizes))
	for _, size := range sizes {
		bonus := PackageBonus(size)
		total := size + bonus
		pkg := Package{
			Points:        size,
			Price:         float64(size),
			Bonus:         bonus,
			Popular:       bonus > 0,
			Tag:           packageTags[size],
			TotalPoints:   total,
			PricePerPoint: math.Round(float64(size)/float64(total)*100) / 100,
		}
		if bonus > 0 {
			pkg.Savings = fmt.Sprintf("%.0f%%", float64(bonus)/float64(size)*100)
		}
		packages = append(packages, pkg)
	}
	return packages
}
