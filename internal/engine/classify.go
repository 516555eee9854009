package engine

import "github.com/lazypower/rapport/internal/config"

// RelationshipType is the categorical strength of a relationship.
type RelationshipType string

const (
	RelationshipNone     RelationshipType = "none"
	RelationshipWeak     RelationshipType = "weak"
	RelationshipModerate RelationshipType = "moderate"
	RelationshipStrong   RelationshipType = "strong"
)

// Classifier maps a mutual score to a RelationshipType using inclusive
// lower-bound thresholds.
type Classifier struct {
	Thresholds config.Thresholds
}

// Classify returns the highest band whose threshold mutual reaches.
func (c Classifier) Classify(mutual float64) RelationshipType {
	switch {
	case mutual >= c.Thresholds.Strong:
		return RelationshipStrong
	case mutual >= c.Thresholds.Moderate:
		return RelationshipModerate
	case mutual >= c.Thresholds.Weak:
		return RelationshipWeak
	default:
		return RelationshipNone
	}
}
