package explain

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strconv"
	"sync"

	"github.com/hranalytics/explaind/internal/api"
	"github.com/hranalytics/explaind/internal/background"
	"github.com/hranalytics/explaind/internal/model"
)

const (
	// surrogateSamples is the perturbation count for one surrogate fit.
	surrogateSamples = 500

	// surrogateTopN is how many weighted features are reported.
	surrogateTopN = 10

	// ridgeLambda regularizes the weighted least-squares fit.
	ridgeLambda = 1.0
)

// SurrogateService computes a second, independent local explanation by
// fitting an interpretable linear surrogate around one instance, with the
// real model as the oracle. Regression mode, continuous features kept
// continuous. The fit is stochastic: repeated calls give no deterministic
// magnitude ordering guarantee.
type SurrogateService struct {
	mu      sync.Mutex
	comps   *model.Components
	sampler *background.Sampler
	rng     *rand.Rand
}

// NewSurrogateService creates the alternative attribution service.
func NewSurrogateService(comps *model.Components, sampler *background.Sampler, seed int64) *SurrogateService {
	return &SurrogateService{
		comps:   comps,
		sampler: sampler,
		rng:     rand.New(rand.NewSource(seed)),
	}
}

// Explain fits the surrogate in the instance's neighborhood and reports the
// top contributing features as signed weights plus the fit's R² fidelity.
func (s *SurrogateService) Explain(ctx context.Context, input map[string]float64) (*api.LimeExplanation, error) {
	if !s.comps.Ready() {
		return nil, api.ErrModelUnavailable
	}

	instance, err := s.comps.ScaleInput(input)
	if err != nil {
		return nil, err
	}

	prediction, err := s.comps.Model.Predict(instance)
	if err != nil {
		return nil, fmt.Errorf("prediction failed: %w", err)
	}

	bg, err := s.sampler.Generate(backgroundSize)
	if err != nil {
		return nil, err
	}

	weights, score, err := s.fitSurrogate(instance, bg)
	if err != nil {
		return nil, err
	}

	top := s.topFeatures(weights, surrogateTopN)

	return &api.LimeExplanation{
		Prediction:       prediction,
		TopFeatures:      top,
		ExplanationScore: score,
	}, nil
}

// fitSurrogate perturbs the instance using per-feature spreads estimated from
// the background, queries the model on each perturbation, and solves a
// kernel-weighted ridge regression. Returns per-feature surrogate weights and
// the weighted R² of the fit.
func (s *SurrogateService) fitSurrogate(instance []float64, bg [][]float64) ([]float64, float64, error) {
	nf := len(instance)

	stds := make([]float64, nf)
	for j := 0; j < nf; j++ {
		_, std := background.ColumnStats(bg, j)
		if std < 1e-9 {
			std = 1e-9
		}
		stds[j] = std
	}

	// Exponential kernel over normalized Euclidean distance, width 0.75*sqrt(F).
	kernelWidth := 0.75 * math.Sqrt(float64(nf))

	samples := make([][]float64, 0, surrogateSamples+1)
	samples = append(samples, instance)

	s.mu.Lock()
	for i := 0; i < surrogateSamples; i++ {
		row := make([]float64, nf)
		for j := 0; j < nf; j++ {
			row[j] = instance[j] + s.rng.NormFloat64()*stds[j]
		}
		samples = append(samples, row)
	}
	s.mu.Unlock()

	targets := make([]float64, len(samples))
	kernel := make([]float64, len(samples))
	for i, row := range samples {
		y, err := s.comps.Model.Predict(row)
		if err != nil {
			return nil, 0, fmt.Errorf("surrogate oracle query failed: %w", err)
		}
		targets[i] = y

		var d2 float64
		for j := 0; j < nf; j++ {
			z := (row[j] - instance[j]) / stds[j]
			d2 += z * z
		}
		kernel[i] = math.Exp(-d2 / (kernelWidth * kernelWidth))
	}

	beta, err := weightedRidge(samples, targets, kernel, ridgeLambda)
	if err != nil {
		return nil, 0, err
	}

	score := weightedR2(samples, targets, kernel, beta)
	return beta[1:], score, nil
}

// topFeatures maps the largest-magnitude surrogate weights back to feature
// names, sorted by absolute weight descending.
func (s *SurrogateService) topFeatures(weights []float64, n int) []api.WeightedFeature {
	idx := make([]int, len(weights))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return math.Abs(weights[idx[a]]) > math.Abs(weights[idx[b]])
	})

	if n > len(idx) {
		n = len(idx)
	}

	top := make([]api.WeightedFeature, 0, n)
	for _, j := range idx[:n] {
		top = append(top, api.WeightedFeature{
			Feature: ResolveFeatureName(strconv.Itoa(j), s.comps.Schema),
			Weight:  weights[j],
		})
	}
	return top
}

// ResolveFeatureName maps a surrogate feature identifier to a human-readable
// name. Identifiers may be an already-resolved name or a positional index;
// resolution is best-effort with the raw identifier as guaranteed fallback.
func ResolveFeatureName(id string, schema model.FeatureSchema) string {
	if schema.Index(id) >= 0 {
		return id
	}
	if j, err := strconv.Atoi(id); err == nil && j >= 0 && j < len(schema) {
		return schema[j]
	}
	return id
}

// weightedRidge solves (X'WX + lambda*I)beta = X'Wy for X with a leading
// intercept column. The intercept term is not penalized.
func weightedRidge(rows [][]float64, y, w []float64, lambda float64) ([]float64, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("no samples for surrogate fit")
	}
	p := len(rows[0]) + 1 // intercept + features

	// Normal equations.
	a := make([][]float64, p)
	for i := range a {
		a[i] = make([]float64, p+1)
	}

	for i, row := range rows {
		x := make([]float64, p)
		x[0] = 1
		copy(x[1:], row)

		wi := w[i]
		for r := 0; r < p; r++ {
			for c := 0; c < p; c++ {
				a[r][c] += wi * x[r] * x[c]
			}
			a[r][p] += wi * x[r] * y[i]
		}
	}

	for r := 1; r < p; r++ {
		a[r][r] += lambda
	}

	return solveLinearSystem(a)
}

// solveLinearSystem runs Gaussian elimination with partial pivoting on an
// augmented matrix [A|b].
func solveLinearSystem(a [][]float64) ([]float64, error) {
	n := len(a)

	for col := 0; col < n; col++ {
		pivot := col
		for r := col + 1; r < n; r++ {
			if math.Abs(a[r][col]) > math.Abs(a[pivot][col]) {
				pivot = r
			}
		}
		if math.Abs(a[pivot][col]) < 1e-12 {
			return nil, fmt.Errorf("surrogate system is singular at column %d", col)
		}
		a[col], a[pivot] = a[pivot], a[col]

		for r := 0; r < n; r++ {
			if r == col {
				continue
			}
			factor := a[r][col] / a[col][col]
			for c := col; c <= n; c++ {
				a[r][c] -= factor * a[col][c]
			}
		}
	}

	beta := make([]float64, n)
	for i := 0; i < n; i++ {
		beta[i] = a[i][n] / a[i][i]
	}
	return beta, nil
}

// weightedR2 computes the kernel-weighted coefficient of determination of the
// surrogate against the oracle targets.
func weightedR2(rows [][]float64, y, w []float64, beta []float64) float64 {
	var wSum, yMean float64
	for i := range y {
		wSum += w[i]
		yMean += w[i] * y[i]
	}
	if wSum < 1e-12 {
		return 0
	}
	yMean /= wSum

	var ssRes, ssTot float64
	for i, row := range rows {
		pred := beta[0]
		for j, v := range row {
			pred += beta[j+1] * v
		}
		ssRes += w[i] * (y[i] - pred) * (y[i] - pred)
		ssTot += w[i] * (y[i] - yMean) * (y[i] - yMean)
	}

	if ssTot < 1e-12 {
		return 1
	}
	return 1 - ssRes/ssTot
}
