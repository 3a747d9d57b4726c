package fraud

import (
	"math"
	"time"
)

// scoreSaturation is the weighted alert mass at which a category reaches
// 1 - 1/e.
const scoreSaturation = 2.0

var levelWeights = map[RiskLevel]float64{
	RiskLow:      0.25,
	RiskMedium:   0.5,
	RiskHigh:     0.75,
	RiskCritical: 1.0,
}

var categoryWeights = map[Category]float64{
	CategoryVelocity:   0.30,
	CategoryPattern:    0.25,
	CategoryQuantity:   0.25,
	CategoryBehavioral: 0.20,
}

// applyAlerts recomputes the category and overall components of s from the
// alerts raised since the start of the scoring window. False positives do not
// count. Each component grows with every counted alert and stays below 1.
func applyAlerts(s *Score, alerts []*Alert, since time.Time) {
	mass := make(map[Category]float64, len(categoryWeights))
	for _, a := range alerts {
		if a.Status == StatusFalsePositive || a.CreatedAt.Before(since) {
			continue
		}
		mass[a.Type.Category()] += levelWeights[a.RiskLevel] * clamp01(a.Confidence)
	}

	component := func(c Category) float64 {
		return 1 - math.Exp(-mass[c]/scoreSaturation)
	}
	s.Velocity = component(CategoryVelocity)
	s.Pattern = component(CategoryPattern)
	s.Quantity = component(CategoryQuantity)
	s.Behavioral = component(CategoryBehavioral)

	s.Overall = clamp01(categoryWeights[CategoryVelocity]*s.Velocity +
		categoryWeights[CategoryPattern]*s.Pattern +
		categoryWeights[CategoryQuantity]*s.Quantity +
		categoryWeights[CategoryBehavioral]*s.Behavioral)
}
