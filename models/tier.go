package models

const (
	TierBronze   = "bronze"
	TierSilver   = "silver"
	TierGold     = "gold"
	TierPlatinum = "platinum"
)

// Minimum lifetime points for each tier above bronze.
const (
	SilverThreshold   = 500
	GoldThreshold     = 1500
	PlatinumThreshold = 5000
)

// ClassifyTier maps lifetime earned points to a loyalty tier.
func ClassifyTier(total int) string {
	switch {
	case total >= PlatinumThreshold:
		return TierPlatinum
	case total >= GoldThreshold:
		return TierGold
	case total >= SilverThreshold:
		return TierSilver
	default:
		return TierBronze
	}
}

// PointsToNextTier returns how many more lifetime points the holder of tier
// needs to be promoted. Platinum has no next tier.
func PointsToNextTier(tier string, total int) int {
	var next int
	switch tier {
	case TierBronze:
		next = SilverThreshold
	case TierSilver:
		next = GoldThreshold
	case TierGold:
		next = PlatinumThreshold
	default:
		return 0
	}
	if remaining := next - total; remaining > 0 {
		return remaining
	}
	return 0
}
