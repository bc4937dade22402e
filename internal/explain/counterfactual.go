package explain

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/hranalytics/explaind/internal/api"
	"github.com/hranalytics/explaind/internal/background"
	"github.com/hranalytics/explaind/internal/model"
)

// DefaultTargetFactor is the relative reduction target when the request
// supplies none: aim 20% below the original prediction.
const DefaultTargetFactor = 0.8

// maxCandidates caps the ranked candidate list.
const maxCandidates = 5

// actionableFeatures are the numeric features believed controllable. Only
// these are perturbed during the search.
var actionableFeatures = []string{
	"Age",
	"Service time",
	"Work load Average/day ",
	"Transportation expense",
	"Distance from Residence to Work",
}

// deltaMultipliers are the fixed standard-deviation multipliers tried per
// actionable feature.
var deltaMultipliers = []float64{-0.5, -1.0, -2.0, 0.5, 1.0, 2.0}

// CounterfactualService searches single-feature perturbations around one
// instance for changes that lower the prediction. No multi-feature joint
// optimization: candidates are independent one-feature shifts.
type CounterfactualService struct {
	comps   *model.Components
	sampler *background.Sampler
}

// NewCounterfactualService creates the counterfactual search service.
func NewCounterfactualService(comps *model.Components, sampler *background.Sampler) *CounterfactualService {
	return &CounterfactualService{comps: comps, sampler: sampler}
}

// Explain runs the search. targetFactor scales the original prediction into
// an informational target; the search always looks strictly downward and
// never enforces hitting the target.
func (s *CounterfactualService) Explain(ctx context.Context, input map[string]float64, targetFactor float64) (*api.CounterfactualResult, error) {
	if !s.comps.Ready() {
		return nil, api.ErrModelUnavailable
	}

	scaled, err := s.comps.ScaleInput(input)
	if err != nil {
		return nil, err
	}

	original, err := s.comps.Model.Predict(scaled)
	if err != nil {
		return nil, fmt.Errorf("prediction failed: %w", err)
	}

	bg, err := s.sampler.Generate(backgroundSize)
	if err != nil {
		return nil, err
	}

	candidates := s.search(scaled, original, bg)

	// Rank: biggest reduction first, smaller change wins ties.
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].ReductionPercent != candidates[j].ReductionPercent {
			return candidates[i].ReductionPercent > candidates[j].ReductionPercent
		}
		return candidates[i].Distance < candidates[j].Distance
	})
	if len(candidates) > maxCandidates {
		candidates = candidates[:maxCandidates]
	}

	return &api.CounterfactualResult{
		OriginalPrediction: original,
		TargetPrediction:   original * targetFactor,
		Candidates:         candidates,
	}, nil
}

// search tries every sigma multiplier on every actionable feature present in
// the schema, keeping only perturbations that strictly lower the prediction.
func (s *CounterfactualService) search(scaled []float64, original float64, bg [][]float64) []api.Candidate {
	candidates := make([]api.Candidate, 0)

	for _, feat := range actionableFeatures {
		idx := s.comps.Schema.Index(feat)
		if idx < 0 || idx >= len(scaled) {
			continue
		}

		_, std := background.ColumnStats(bg, idx)
		current := scaled[idx]

		for _, mult := range deltaMultipliers {
			delta := mult * std
			modified := cloneVector(scaled)
			modified[idx] = current + delta

			newPred, err := s.comps.Model.Predict(modified)
			if err != nil {
				continue
			}

			// Only strictly-lower predictions qualify.
			if newPred >= original {
				continue
			}

			candidates = append(candidates, api.Candidate{
				Feature:          feat,
				OriginalValue:    current,
				SuggestedValue:   current + delta,
				Change:           delta,
				NewPrediction:    newPred,
				ReductionPercent: (original - newPred) / original * 100,
				Distance:         vectorDistance(modified, scaled),
			})
		}
	}

	return candidates
}

func cloneVector(v []float64) []float64 {
	out := make([]float64, len(v))
	copy(out, v)
	return out
}

// vectorDistance is the Euclidean norm of the full feature-vector change,
// so the candidate reflects total perturbation cost.
func vectorDistance(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}
