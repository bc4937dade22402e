// Package explain implements the attribution and counterfactual services for
// the absenteeism regression model. The linear attribution method is exact
// for models exposing coefficients; the surrogate method approximates local
// behavior for cross-validation.
package explain

import (
	"fmt"

	"github.com/hranalytics/explaind/internal/api"
	"github.com/hranalytics/explaind/internal/background"
	"github.com/hranalytics/explaind/internal/model"
)

// LinearExplainer computes exact attributions for a linear model against the
// mean of a background population: shap_j(x) = w_j * (x_j - mu_j). The
// attributions sum to prediction - E[prediction] over the background.
type LinearExplainer struct {
	coef  []float64
	means []float64
}

// NewLinearExplainer builds the explainer. It fails when the model does not
// expose linear coefficients or the background is empty; callers surface this
// as api.ErrAttributionUnavailable.
func NewLinearExplainer(m model.Model, bg [][]float64) (*LinearExplainer, error) {
	lm, ok := m.(model.LinearModel)
	if !ok || len(lm.Coefficients()) == 0 {
		return nil, fmt.Errorf("%w: model does not expose linear coefficients", api.ErrAttributionUnavailable)
	}
	if len(bg) == 0 {
		return nil, fmt.Errorf("%w: empty background population", api.ErrAttributionUnavailable)
	}

	coef := lm.Coefficients()
	means := background.ColumnMeans(bg)
	if len(means) != len(coef) {
		return nil, fmt.Errorf("%w: background has %d columns, model has %d coefficients",
			api.ErrAttributionUnavailable, len(means), len(coef))
	}

	return &LinearExplainer{coef: coef, means: means}, nil
}

// Attributions returns the per-feature attribution vector for one instance.
func (e *LinearExplainer) Attributions(x []float64) ([]float64, error) {
	if len(x) != len(e.coef) {
		return nil, fmt.Errorf("instance has %d features, model has %d", len(x), len(e.coef))
	}

	attrs := make([]float64, len(x))
	for j, w := range e.coef {
		attrs[j] = w * (x[j] - e.means[j])
	}
	return attrs, nil
}
