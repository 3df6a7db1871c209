// Package modelartifact loads the JSON-encoded model weights the
// Classifier (C7) and Magnitude Estimator (C8) depend on, grounded on the
// original Python pipeline's sklearn joblib artifacts
// (_examples/original_source/src/seismic_classifier/ml_models/classification.py),
// re-expressed as a plain JSON weight file since shipping a joblib/pickle
// loader is not idiomatic Go.
package modelartifact

import (
	"encoding/json"
	"os"

	"github.com/seismonet/pipeline/internal/apperr"
)

// ClassifierArtifact is a one-vs-rest linear classifier: one weight row
// (plus bias) per label, scored as a softmax over Weights[i].X + Bias[i].
type ClassifierArtifact struct {
	SchemaID string               `json:"schema_id"`
	Labels   []string             `json:"labels"`
	Weights  map[string][]float64 `json:"weights"`
	Bias     map[string]float64   `json:"bias"`
	// Calibration holds a per-label Platt-scaling (a, b) pair applied to the
	// raw softmax score before it is reported as Confidence.
	Calibration map[string][2]float64 `json:"calibration"`
}

// MagnitudeArtifact holds the linear combination coefficients the
// Magnitude Estimator blends with the amplitude-based traditional
// estimate.
type MagnitudeArtifact struct {
	SchemaID        string    `json:"schema_id"`
	Weights         []float64 `json:"weights"`
	Bias            float64   `json:"bias"`
	TraditionalBlend float64  `json:"traditional_blend"` // weight given to amplitude-based estimate, [0,1]
}

// LoadClassifier reads and parses a ClassifierArtifact from path, rejecting
// artifacts whose SchemaID doesn't match expectedSchemaID.
func LoadClassifier(path, expectedSchemaID string) (*ClassifierArtifact, error) {
	var art ClassifierArtifact
	if err := loadJSON(path, &art); err != nil {
		return nil, err
	}
	if art.SchemaID != expectedSchemaID {
		return nil, apperr.New(apperr.SchemaMismatch, "classifier artifact schema_id "+art.SchemaID+" != expected "+expectedSchemaID)
	}
	return &art, nil
}

// LoadMagnitude reads and parses a MagnitudeArtifact from path.
func LoadMagnitude(path, expectedSchemaID string) (*MagnitudeArtifact, error) {
	var art MagnitudeArtifact
	if err := loadJSON(path, &art); err != nil {
		return nil, err
	}
	if art.SchemaID != expectedSchemaID {
		return nil, apperr.New(apperr.SchemaMismatch, "magnitude artifact schema_id "+art.SchemaID+" != expected "+expectedSchemaID)
	}
	return &art, nil
}

func loadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return apperr.Wrap(apperr.Unavailable, "read model artifact", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return apperr.Wrap(apperr.SchemaMismatch, "parse model artifact", err)
	}
	return nil
}
