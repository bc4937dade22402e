// Package background synthesizes representative input populations for the
// attribution methods. Samples are drawn from fixed plausible ranges observed
// in the absenteeism dataset, preprocessed one row at a time and scaled into
// the model's feature space.
package background

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"

	"github.com/hranalytics/explaind/internal/model"
)

// ErrUnavailable signals that background data cannot be generated because the
// feature schema is empty or the scaler is missing. Callers treat this as a
// degraded capability, never as a crash.
var ErrUnavailable = errors.New("Failed to generate background data")

// numericRanges holds uniform sampling bounds for the numeric features.
var numericRanges = map[string][2]float64{
	"Age":                             {25, 60},
	"Service time":                    {1, 20},
	"Work load Average/day ":          {200, 350},
	"Transportation expense":          {100, 400},
	"Distance from Residence to Work": {1, 50},
}

// categoricalValues holds the discrete value sets for the categorical features.
var categoricalValues = map[string][]float64{
	"Education":            {1, 2, 3},
	"Son":                  {0, 1, 2, 3},
	"Month of absence":     {1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12},
	"Day of the week":      {2, 3, 4, 5, 6},
	"Seasons":              {1, 2, 3, 4},
	"Hit target":           {0, 1},
	"Disciplinary failure": {0, 1},
	"Social drinker":       {0, 1},
	"Social smoker":        {0, 1},
	"Pet":                  {0, 1},
	"Reason for absence":   {0, 5, 10, 15, 20, 25},
}

// Sampler generates scaled background matrices from the fixed feature ranges.
type Sampler struct {
	mu    sync.Mutex
	comps *model.Components
	rng   *rand.Rand
}

// NewSampler creates a sampler over the injected components. The seed makes
// generation reproducible in tests; pass a time-derived seed in production.
func NewSampler(comps *model.Components, seed int64) *Sampler {
	return &Sampler{
		comps: comps,
		rng:   rand.New(rand.NewSource(seed)),
	}
}

// Generate returns an n×F scaled background matrix, F = schema length.
// Rows are synthesized and preprocessed one at a time to mirror per-sample
// preprocessing semantics, then scaled as a single matrix. Returns
// ErrUnavailable when the schema is empty or the scaler is missing.
func (s *Sampler) Generate(n int) ([][]float64, error) {
	if s.comps == nil || len(s.comps.Schema) == 0 || s.comps.Scaler == nil || s.comps.Pre == nil {
		return nil, ErrUnavailable
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rows := make([][]float64, 0, n)
	for i := 0; i < n; i++ {
		raw := s.sampleRaw()
		row, err := s.comps.Pre.Process(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		rows = append(rows, row)
	}

	scaled, err := s.comps.Scaler.Transform(rows)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return scaled, nil
}

// sampleRaw draws one synthetic raw input. Features outside the known range
// and category sets are left absent; the preprocessor supplies defaults.
func (s *Sampler) sampleRaw() map[string]float64 {
	raw := make(map[string]float64)

	for feat, bounds := range numericRanges {
		if s.comps.Schema.Index(feat) < 0 {
			continue
		}
		raw[feat] = bounds[0] + s.rng.Float64()*(bounds[1]-bounds[0])
	}

	for feat, values := range categoricalValues {
		if s.comps.Schema.Index(feat) < 0 {
			continue
		}
		raw[feat] = values[s.rng.Intn(len(values))]
	}

	return raw
}

// ColumnStats returns the mean and population standard deviation of column j.
func ColumnStats(matrix [][]float64, j int) (mean, std float64) {
	if len(matrix) == 0 {
		return 0, 0
	}

	for _, row := range matrix {
		mean += row[j]
	}
	mean /= float64(len(matrix))

	for _, row := range matrix {
		d := row[j] - mean
		std += d * d
	}
	std = math.Sqrt(std / float64(len(matrix)))

	return mean, std
}

// ColumnMeans returns per-column means of the matrix.
func ColumnMeans(matrix [][]float64) []float64 {
	if len(matrix) == 0 {
		return nil
	}

	means := make([]float64, len(matrix[0]))
	for _, row := range matrix {
		for j, v := range row {
			means[j] += v
		}
	}
	for j := range means {
		means[j] /= float64(len(matrix))
	}
	return means
}
