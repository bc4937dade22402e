package model

import (
	"encoding/json"
	"fmt"
	"os"
)

// Artifact is the on-disk model artifact: the fitted linear regressor, the
// fitted scaler parameters and the ordered feature schema, exported by the
// training pipeline as a single JSON document.
type Artifact struct {
	Version        string             `json:"version"`
	FeatureColumns []string           `json:"feature_columns"`
	Coefficients   []float64          `json:"coefficients"`
	Intercept      float64            `json:"intercept"`
	ScalerMean     []float64          `json:"scaler_mean"`
	ScalerScale    []float64          `json:"scaler_scale"`
	Defaults       map[string]float64 `json:"defaults,omitempty"`
}

// LoadArtifact reads and validates a model artifact file.
func LoadArtifact(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model artifact: %w", err)
	}

	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("failed to parse model artifact: %w", err)
	}

	if err := a.Validate(); err != nil {
		return nil, fmt.Errorf("invalid model artifact: %w", err)
	}

	return &a, nil
}

// Validate performs basic structural validation.
func (a *Artifact) Validate() error {
	n := len(a.FeatureColumns)
	if n == 0 {
		return fmt.Errorf("feature_columns is empty")
	}
	if len(a.Coefficients) != 0 && len(a.Coefficients) != n {
		return fmt.Errorf("coefficients length %d does not match %d features", len(a.Coefficients), n)
	}
	if len(a.ScalerMean) != n || len(a.ScalerScale) != n {
		return fmt.Errorf("scaler parameters do not match %d features", n)
	}

	seen := make(map[string]bool, n)
	for _, f := range a.FeatureColumns {
		if seen[f] {
			return fmt.Errorf("duplicate feature column %q", f)
		}
		seen[f] = true
	}
	return nil
}

// Build assembles the runtime component bundle from the artifact. Resolved
// once at process start and injected into every explanation service.
func (a *Artifact) Build() (*Components, error) {
	scaler, err := NewStandardScaler(a.ScalerMean, a.ScalerScale)
	if err != nil {
		return nil, err
	}

	schema := FeatureSchema(a.FeatureColumns)
	version := a.Version
	if version == "" {
		version = "absenteeism-lr"
	}

	return &Components{
		Model:  NewLinearRegressionModel(a.Coefficients, a.Intercept, version),
		Scaler: scaler,
		Pre:    NewSchemaPreprocessor(schema, a.Defaults),
		Schema: schema,
	}, nil
}
