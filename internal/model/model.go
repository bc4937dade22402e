package model

import "fmt"

// Model is the external prediction collaborator: one scaled feature vector in,
// one predicted absenteeism-hours scalar out.
type Model interface {
	Predict(x []float64) (float64, error)
	Version() string
}

// LinearModel is implemented by models that expose linear coefficients.
// Only such models support the exact linear attribution method.
type LinearModel interface {
	Model
	Coefficients() []float64
	Intercept() float64
}

// Scaler maps preprocessed rows into the model's scaled feature space.
type Scaler interface {
	Transform(rows [][]float64) ([][]float64, error)
}

// Preprocessor converts a raw input map into a numeric row aligned to the
// feature schema. Missing keys must be tolerated (defaults supplied).
type Preprocessor interface {
	Process(raw map[string]float64) ([]float64, error)
}

// FeatureSchema is the ordered feature name list; order defines vector
// positions. Immutable once loaded from the model artifact.
type FeatureSchema []string

// Index returns the position of name in the schema, or -1 if absent.
func (s FeatureSchema) Index(name string) int {
	for i, f := range s {
		if f == name {
			return i
		}
	}
	return -1
}

// Components bundles the external collaborators. All explanation services
// take this bundle by injection; it is resolved once at process start.
type Components struct {
	Model  Model
	Scaler Scaler
	Pre    Preprocessor
	Schema FeatureSchema
}

// Ready reports whether all collaborators are loaded.
func (c *Components) Ready() bool {
	return c != nil && c.Model != nil && c.Scaler != nil && c.Pre != nil && len(c.Schema) > 0
}

// LinearAttribution reports whether the loaded model supports the exact
// linear attribution method. Checked once at startup and consulted before
// any attribution call.
func (c *Components) LinearAttribution() bool {
	if c == nil || c.Model == nil {
		return false
	}
	lm, ok := c.Model.(LinearModel)
	return ok && len(lm.Coefficients()) > 0
}

// ScaleInput runs one raw input through preprocessing and scaling, returning
// the scaled feature vector aligned to the schema.
func (c *Components) ScaleInput(raw map[string]float64) ([]float64, error) {
	row, err := c.Pre.Process(raw)
	if err != nil {
		return nil, fmt.Errorf("preprocess failed: %w", err)
	}

	scaled, err := c.Scaler.Transform([][]float64{row})
	if err != nil {
		return nil, fmt.Errorf("scaling failed: %w", err)
	}

	return scaled[0], nil
}
