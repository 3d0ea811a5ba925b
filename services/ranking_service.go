package services

import (
	"math"

	"github.com/runbattle/runbattle-server/models"
)

// DefaultKFactor controls rating volatility; higher means bigger swings.
const DefaultKFactor = 32

// tierBand is an inclusive ELO range for a league tier. Bands are contiguous
// and cover all non-negative ratings.
type tierBand struct {
	tier models.LeagueTier
	min  int
	max  int
}

var tierBands = []tierBand{
	{models.TierBronze, 0, 1299},
	{models.TierSilver, 1300, 1499},
	{models.TierGold, 1500, 1699},
	{models.TierPlatinum, 1700, 1899},
	{models.TierDiamond, 1900, math.MaxInt32},
}

// CalculateEloChange returns the new ratings after a battle, winner first.
// Expected score follows the logistic model 1/(1+10^((other-self)/400));
// winner scores 1, loser 0. Pure and deterministic.
func CalculateEloChange(winnerRating, loserRating, kFactor int) (int, int) {
	expectedWinner := 1 / (1 + math.Pow(10, float64(loserRating-winnerRating)/400))
	expectedLoser := 1 / (1 + math.Pow(10, float64(winnerRating-loserRating)/400))

	newWinner := int(math.Round(float64(winnerRating) + float64(kFactor)*(1-expectedWinner)))
	newLoser := int(math.Round(float64(loserRating) + float64(kFactor)*(0-expectedLoser)))

	return newWinner, newLoser
}

// TierFromElo maps a rating to its league tier. Out-of-band ratings fall back
// to Bronze; with contiguous bands that only covers negatives.
func TierFromElo(rating int) models.LeagueTier {
	for _, band := range tierBands {
		if rating >= band.min && rating <= band.max {
			return band.tier
		}
	}
	return models.TierBronze
}

// LeaguePointsForChange converts a rating delta into league points.
func LeaguePointsForChange(eloChange int) int {
	return eloChange * 2
}
