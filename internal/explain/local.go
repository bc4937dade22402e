package explain

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/hranalytics/explaind/internal/api"
	"github.com/hranalytics/explaind/internal/background"
	"github.com/hranalytics/explaind/internal/model"
)

// LocalService computes per-instance attributions with a natural-language
// summary. The explainer is instantiated fresh per call over a new background
// population; simplicity over cost, matching the single-model service scope.
type LocalService struct {
	comps   *model.Components
	sampler *background.Sampler
}

// NewLocalService creates the local attribution service.
func NewLocalService(comps *model.Components, sampler *background.Sampler) *LocalService {
	return &LocalService{comps: comps, sampler: sampler}
}

// Explain preprocesses and scales one raw input, predicts, and attributes
// the prediction to each feature. Contributions are sorted by absolute
// attribution descending.
func (s *LocalService) Explain(ctx context.Context, input map[string]float64) (*api.LocalExplanation, error) {
	if !s.comps.Ready() {
		return nil, api.ErrModelUnavailable
	}

	scaled, err := s.comps.ScaleInput(input)
	if err != nil {
		return nil, err
	}

	prediction, err := s.comps.Model.Predict(scaled)
	if err != nil {
		return nil, fmt.Errorf("prediction failed: %w", err)
	}

	bg, err := s.sampler.Generate(backgroundSize)
	if err != nil {
		return nil, err
	}

	explainer, err := NewLinearExplainer(s.comps.Model, bg)
	if err != nil {
		return nil, err
	}

	attrs, err := explainer.Attributions(scaled)
	if err != nil {
		return nil, err
	}

	contributions := make([]api.Contribution, len(s.comps.Schema))
	for j, name := range s.comps.Schema {
		contributions[j] = api.Contribution{Feature: name, Shap: attrs[j], Value: scaled[j]}
	}
	sort.SliceStable(contributions, func(i, j int) bool {
		return math.Abs(contributions[i].Shap) > math.Abs(contributions[j].Shap)
	})

	return &api.LocalExplanation{
		Prediction:    prediction,
		Contributions: contributions,
		TextSummary:   summarize(prediction, contributions),
	}, nil
}

// summarize renders the template sentence naming the top 3 contributors and
// their direction of influence.
func summarize(prediction float64, contributions []api.Contribution) string {
	top := contributions
	if len(top) > 3 {
		top = top[:3]
	}

	parts := make([]string, 0, len(top))
	for _, c := range top {
		direction := "decreases"
		if c.Shap > 0 {
			direction = "increases"
		}
		parts = append(parts, fmt.Sprintf("%s %s prediction by %.2f hours", c.Feature, direction, math.Abs(c.Shap)))
	}

	return fmt.Sprintf("Predicted %.2f hours. Top factors: %s.", prediction, strings.Join(parts, ", "))
}
