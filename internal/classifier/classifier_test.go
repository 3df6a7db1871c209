package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seismonet/pipeline/internal/apperr"
	"github.com/seismonet/pipeline/internal/domain"
	"github.com/seismonet/pipeline/internal/modelartifact"
)

func testArtifact() *modelartifact.ClassifierArtifact {
	return &modelartifact.ClassifierArtifact{
		SchemaID: "v1",
		Labels:   []string{"earthquake", "noise"},
		Weights: map[string][]float64{
			"earthquake": {1.0, 0.0},
			"noise":      {0.0, 1.0},
		},
		Bias: map[string]float64{"earthquake": 0, "noise": 0},
		Calibration: map[string][2]float64{
			"earthquake": {1, 0},
			"noise":      {1, 0},
		},
	}
}

func TestClassify_PicksHigherScoringLabel(t *testing.T) {
	c := New(testArtifact())
	fv := domain.FeatureVector{SchemaID: "v1", Values: []float64{5, 0}}
	result, err := c.Classify(fv)
	require.NoError(t, err)
	assert.Equal(t, "earthquake", result.Label)
	assert.Greater(t, result.Confidence, 0.5)
}

func TestClassify_SchemaMismatchErrors(t *testing.T) {
	c := New(testArtifact())
	fv := domain.FeatureVector{SchemaID: "v2", Values: []float64{5, 0}}
	_, err := c.Classify(fv)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.SchemaMismatch))
}

func TestClassify_ConfidenceIsBounded(t *testing.T) {
	c := New(testArtifact())
	fv := domain.FeatureVector{SchemaID: "v1", Values: []float64{0, 0}}
	result, err := c.Classify(fv)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, result.Confidence, 0.0)
	assert.LessOrEqual(t, result.Confidence, 1.0)
}
