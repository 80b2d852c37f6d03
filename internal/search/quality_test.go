package search

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fyrsmithlabs/quizd/internal/config"
)

func TestClassify(t *testing.T) {
	thresholds := config.QualityThresholds{Poor: 30, Acceptable: 80, Good: 160, EarlyExit: 200}

	tests := []struct {
		score int
		want  Quality
	}{
		{-5, QualityNone},
		{0, QualityNone},
		{1, QualityPoor},
		{29, QualityPoor},
		{30, QualityAcceptable},
		{79, QualityAcceptable},
		{80, QualityGood},
		{159, QualityGood},
		{160, QualityExcellent},
		{5000, QualityExcellent},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, classify(tt.score, thresholds), "score %d", tt.score)
	}
}

func TestShouldReject(t *testing.T) {
	assert.True(t, shouldReject(QualityNone))
	assert.True(t, shouldReject(QualityPoor))
	assert.False(t, shouldReject(QualityAcceptable))
	assert.False(t, shouldReject(QualityGood))
	assert.False(t, shouldReject(QualityExcellent))
}
