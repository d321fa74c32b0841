package valuation

import (
	"math"

	"github.com/jstittsworth/auction-copilot/internal/models"
)

// basisFor returns the opportunity column backing a rate category.
func basisFor(basis models.RateBasis) string {
	switch basis {
	case models.RateBasisPlateAppearances:
		return models.StatPlateAppearances
	case models.RateBasisInningsPitched:
		return models.StatInningsPitched
	}
	return ""
}

// computeZScores fills each player's per-category z-scores and weighted-z
// total for one pool. Rate categories use opportunity-weighted moments and
// scale the resulting z by the player's share of average opportunity, so a
// 10-inning reliever cannot leverage a 0.50 ERA.
func computeZScores(pool []*models.Player, categories []models.Category) {
	for _, p := range pool {
		if p.ZScores == nil {
			p.ZScores = make(map[string]float64, len(categories))
		}
		p.WeightedZ = 0
	}

	for _, cat := range categories {
		mean, stddev, avgBasis := poolMoments(pool, cat)

		for _, p := range pool {
			x := p.Stats[cat.ID]
			var z float64
			if stddev > 0 {
				z = (x - mean) / stddev
			}
			if cat.Direction == models.LowerBetter {
				z = -z
			}
			if cat.Kind == models.CategoryRate && avgBasis > 0 {
				z *= p.Stats[basisFor(cat.RateBasis)] / avgBasis
			}
			z *= cat.Weight

			p.ZScores[cat.ID] = z
			p.WeightedZ += z
		}
	}
}

// poolMoments returns mean and standard deviation for a category across the
// pool. Rate categories weight each observation by its opportunity basis.
func poolMoments(pool []*models.Player, cat models.Category) (mean, stddev, avgBasis float64) {
	if len(pool) == 0 {
		return 0, 0, 0
	}

	if cat.Kind == models.CategoryRate {
		basisKey := basisFor(cat.RateBasis)
		var sum, weight, basisSum float64
		for _, p := range pool {
			w := p.Stats[basisKey]
			sum += p.Stats[cat.ID] * w
			weight += w
			basisSum += w
		}
		avgBasis = basisSum / float64(len(pool))
		if weight == 0 {
			return 0, 0, avgBasis
		}
		mean = sum / weight

		var varSum float64
		for _, p := range pool {
			d := p.Stats[cat.ID] - mean
			varSum += p.Stats[basisKey] * d * d
		}
		stddev = math.Sqrt(varSum / weight)
		return mean, stddev, avgBasis
	}

	var sum float64
	for _, p := range pool {
		sum += p.Stats[cat.ID]
	}
	mean = sum / float64(len(pool))

	var varSum float64
	for _, p := range pool {
		d := p.Stats[cat.ID] - mean
		varSum += d * d
	}
	stddev = math.Sqrt(varSum / float64(len(pool)))
	return mean, stddev, 0
}
