// Package classifier assigns a calibrated label to a Feature Vector
// (spec.md C7): a softmax over per-label linear scores followed by Platt
// scaling, grounded on
// _examples/original_source/src/seismic_classifier/ml_models/classification.py's
// sklearn classifier + predict_proba calibration, re-implemented over a
// JSON-loaded weight artifact (internal/modelartifact) since no pack
// example ships an ML inference library.
package classifier

import (
	"math"
	"sort"

	"github.com/seismonet/pipeline/internal/apperr"
	"github.com/seismonet/pipeline/internal/domain"
	"github.com/seismonet/pipeline/internal/modelartifact"
)

// Classifier scores a Feature Vector against a loaded model artifact.
type Classifier struct {
	artifact *modelartifact.ClassifierArtifact
}

// New builds a Classifier from a loaded artifact.
func New(artifact *modelartifact.ClassifierArtifact) *Classifier {
	return &Classifier{artifact: artifact}
}

// Classify returns the winning label and its calibrated confidence.
func (c *Classifier) Classify(fv domain.FeatureVector) (domain.ClassificationResult, error) {
	if fv.SchemaID != c.artifact.SchemaID {
		return domain.ClassificationResult{}, apperr.New(apperr.SchemaMismatch,
			"feature vector schema "+fv.SchemaID+" does not match classifier artifact "+c.artifact.SchemaID)
	}

	scores := make(map[string]float64, len(c.artifact.Labels))
	for _, label := range c.artifact.Labels {
		w, ok := c.artifact.Weights[label]
		if !ok || len(w) != len(fv.Values) {
			return domain.ClassificationResult{}, apperr.New(apperr.SchemaMismatch,
				"classifier weight vector width mismatch for label "+label)
		}
		var dot float64
		for i, v := range fv.Values {
			dot += w[i] * v
		}
		scores[label] = dot + c.artifact.Bias[label]
	}

	probs := softmax(scores)

	winner := ""
	best := -1.0
	for _, label := range c.artifact.Labels {
		if probs[label] > best {
			best = probs[label]
			winner = label
		}
	}

	confidence := best
	if cal, ok := c.artifact.Calibration[winner]; ok {
		confidence = plattScale(best, cal[0], cal[1])
	}

	return domain.ClassificationResult{Label: winner, Confidence: confidence}, nil
}

func softmax(scores map[string]float64) map[string]float64 {
	labels := make([]string, 0, len(scores))
	for l := range scores {
		labels = append(labels, l)
	}
	sort.Strings(labels) // deterministic iteration for reproducible ties

	maxScore := math.Inf(-1)
	for _, l := range labels {
		if scores[l] > maxScore {
			maxScore = scores[l]
		}
	}

	var sum float64
	exp := make(map[string]float64, len(labels))
	for _, l := range labels {
		e := math.Exp(scores[l] - maxScore)
		exp[l] = e
		sum += e
	}

	probs := make(map[string]float64, len(labels))
	for _, l := range labels {
		if sum > 0 {
			probs[l] = exp[l] / sum
		}
	}
	return probs
}

// plattScale applies sigmoid(a*score + b), the standard Platt-scaling
// calibration transform.
func plattScale(score, a, b float64) float64 {
	return 1 / (1 + math.Exp(-(a*score + b)))
}
