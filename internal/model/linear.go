package model

import "fmt"

// LinearRegressionModel implements LinearModel from fitted coefficients.
type LinearRegressionModel struct {
	coef      []float64
	intercept float64
	version   string
}

// NewLinearRegressionModel creates a model from fitted parameters.
func NewLinearRegressionModel(coef []float64, intercept float64, version string) *LinearRegressionModel {
	c := make([]float64, len(coef))
	copy(c, coef)
	return &LinearRegressionModel{coef: c, intercept: intercept, version: version}
}

// Predict computes w·x + b.
func (m *LinearRegressionModel) Predict(x []float64) (float64, error) {
	if len(x) != len(m.coef) {
		return 0, fmt.Errorf("feature dimension mismatch: got %d, want %d", len(x), len(m.coef))
	}

	y := m.intercept
	for i, w := range m.coef {
		y += w * x[i]
	}
	return y, nil
}

func (m *LinearRegressionModel) Coefficients() []float64 {
	return m.coef
}

func (m *LinearRegressionModel) Intercept() float64 {
	return m.intercept
}

func (m *LinearRegressionModel) Version() string {
	return m.version
}

// StandardScaler implements Scaler with per-feature centering and scaling,
// matching the fitted scaler consumed from the model artifact.
type StandardScaler struct {
	mean  []float64
	scale []float64
}

// NewStandardScaler creates a scaler from fitted mean and scale vectors.
func NewStandardScaler(mean, scale []float64) (*StandardScaler, error) {
	if len(mean) != len(scale) {
		return nil, fmt.Errorf("scaler parameter length mismatch: mean %d, scale %d", len(mean), len(scale))
	}
	m := make([]float64, len(mean))
	s := make([]float64, len(scale))
	copy(m, mean)
	copy(s, scale)
	return &StandardScaler{mean: m, scale: s}, nil
}

// Transform applies (x - mean) / scale column-wise to every row.
func (sc *StandardScaler) Transform(rows [][]float64) ([][]float64, error) {
	out := make([][]float64, len(rows))
	for i, row := range rows {
		if len(row) != len(sc.mean) {
			return nil, fmt.Errorf("row %d dimension mismatch: got %d, want %d", i, len(row), len(sc.mean))
		}
		scaled := make([]float64, len(row))
		for j, v := range row {
			s := sc.scale[j]
			if s == 0 {
				s = 1
			}
			scaled[j] = (v - sc.mean[j]) / s
		}
		out[i] = scaled
	}
	return out, nil
}

// SchemaPreprocessor implements Preprocessor by aligning a raw input map to
// the feature schema. Missing keys take the artifact's per-feature default
// (zero when none is configured).
type SchemaPreprocessor struct {
	schema   FeatureSchema
	defaults map[string]float64
}

// NewSchemaPreprocessor creates a preprocessor for the given schema.
func NewSchemaPreprocessor(schema FeatureSchema, defaults map[string]float64) *SchemaPreprocessor {
	d := make(map[string]float64, len(defaults))
	for k, v := range defaults {
		d[k] = v
	}
	return &SchemaPreprocessor{schema: schema, defaults: d}
}

// Process builds the aligned numeric row for one raw input.
func (p *SchemaPreprocessor) Process(raw map[string]float64) ([]float64, error) {
	if len(p.schema) == 0 {
		return nil, fmt.Errorf("feature schema is empty")
	}

	row := make([]float64, len(p.schema))
	for i, name := range p.schema {
		if v, ok := raw[name]; ok {
			row[i] = v
			continue
		}
		row[i] = p.defaults[name]
	}
	return row, nil
}
