package search

import "github.com/fyrsmithlabs/quizd/internal/config"

// Quality is the discrete classification of a search score.
type Quality string

const (
	QualityNone       Quality = "none"
	QualityPoor       Quality = "poor"
	QualityAcceptable Quality = "acceptable"
	QualityGood       Quality = "good"
	QualityExcellent  Quality = "excellent"
)

// classify derives the quality band from a score. The thresholds are
// calibration constants carried in config.
func classify(score int, t config.QualityThresholds) Quality {
	switch {
	case score <= 0:
		return QualityNone
	case score < t.Poor:
		return QualityPoor
	case score < t.Acceptable:
		return QualityAcceptable
	case score < t.Good:
		return QualityGood
	default:
		return QualityExcellent
	}
}

// shouldReject reports whether a quality band is too weak to act on.
func shouldReject(q Quality) bool {
	return q == QualityNone || q == QualityPoor
}
