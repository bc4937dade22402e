package explain

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/hranalytics/explaind/internal/api"
	"github.com/hranalytics/explaind/internal/background"
	"github.com/hranalytics/explaind/internal/model"
)

func TestSurrogateExplain(t *testing.T) {
	comps := testComponents(t)
	svc := NewSurrogateService(comps, background.NewSampler(comps, 9), 9)

	result, err := svc.Explain(context.Background(), midRangeInput())
	if err != nil {
		t.Fatalf("Explain failed: %v", err)
	}

	if len(result.TopFeatures) != 7 {
		// 7 features in the schema, all below the top-10 cap.
		t.Errorf("Expected 7 weighted features, got %d", len(result.TopFeatures))
	}

	// The oracle is linear, so the surrogate should fit almost perfectly.
	if result.ExplanationScore < 0.9 {
		t.Errorf("Expected fidelity near 1 for a linear oracle, got %f", result.ExplanationScore)
	}

	if math.Abs(result.Prediction-4.0) > 1e-9 {
		t.Errorf("Expected prediction 4.0, got %f", result.Prediction)
	}

	// Every identifier must resolve to a schema name.
	for _, wf := range result.TopFeatures {
		if comps.Schema.Index(wf.Feature) < 0 {
			t.Errorf("Feature %q not resolved to a schema name", wf.Feature)
		}
	}
}

func TestSurrogateRecoversLinearWeights(t *testing.T) {
	comps := testComponents(t)
	svc := NewSurrogateService(comps, background.NewSampler(comps, 3), 3)

	result, err := svc.Explain(context.Background(), midRangeInput())
	if err != nil {
		t.Fatalf("Explain failed: %v", err)
	}

	// The largest-magnitude surrogate weight should belong to the feature
	// with the largest model coefficient.
	if result.TopFeatures[0].Feature != "Work load Average/day " {
		t.Errorf("Expected workload first, got %q", result.TopFeatures[0].Feature)
	}
	if result.TopFeatures[0].Weight <= 0 {
		t.Errorf("Expected positive weight for workload, got %f", result.TopFeatures[0].Weight)
	}
}

func TestSurrogateNotReady(t *testing.T) {
	svc := NewSurrogateService(nil, background.NewSampler(nil, 1), 1)

	_, err := svc.Explain(context.Background(), midRangeInput())
	if !errors.Is(err, api.ErrModelUnavailable) {
		t.Errorf("Expected ErrModelUnavailable, got %v", err)
	}
}

func TestResolveFeatureName(t *testing.T) {
	schema := model.FeatureSchema{"Age", "Service time", "Education"}

	tests := []struct {
		id   string
		want string
	}{
		{"Age", "Age"},               // already-resolved name
		{"1", "Service time"},        // positional index
		{"2", "Education"},           // positional index
		{"99", "99"},                 // out of range: raw fallback
		{"not-a-feature", "not-a-feature"}, // unknown: raw fallback
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			if got := ResolveFeatureName(tt.id, schema); got != tt.want {
				t.Errorf("ResolveFeatureName(%q) = %q, want %q", tt.id, got, tt.want)
			}
		})
	}
}

func TestWeightedRidgeRecoversLine(t *testing.T) {
	// y = 3 + 2x fit with uniform weights.
	rows := [][]float64{{0}, {1}, {2}, {3}}
	y := []float64{3, 5, 7, 9}
	w := []float64{1, 1, 1, 1}

	beta, err := weightedRidge(rows, y, w, 1e-9)
	if err != nil {
		t.Fatalf("weightedRidge failed: %v", err)
	}

	if math.Abs(beta[0]-3) > 1e-3 || math.Abs(beta[1]-2) > 1e-3 {
		t.Errorf("Expected [3 2], got %v", beta)
	}

	if r2 := weightedR2(rows, y, w, beta); r2 < 0.999 {
		t.Errorf("Expected R² near 1, got %f", r2)
	}
}
