package explain

import (
	"math"
	"testing"

	"github.com/hranalytics/explaind/internal/model"
)

// testComponents builds a small linear model over the real feature schema so
// the sampler and the counterfactual search both have work to do.
func testComponents(t *testing.T) *model.Components {
	t.Helper()

	a := &model.Artifact{
		Version: "absenteeism-lr-test",
		FeatureColumns: []string{
			"Age", "Service time", "Work load Average/day ",
			"Transportation expense", "Distance from Residence to Work",
			"Education", "Son",
		},
		Coefficients: []float64{0.5, -0.3, 0.8, 0.2, 0.4, -0.1, 0.25},
		Intercept:    4.0,
		ScalerMean:   []float64{40, 10, 275, 250, 25, 2, 1},
		ScalerScale:  []float64{10, 5, 40, 80, 14, 0.8, 1},
	}

	comps, err := a.Build()
	if err != nil {
		t.Fatalf("Failed to build components: %v", err)
	}
	return comps
}

// midRangeInput has every feature at its scaler mean, so the scaled vector is
// zero and the prediction equals the intercept.
func midRangeInput() map[string]float64 {
	return map[string]float64{
		"Age":                             40,
		"Service time":                    10,
		"Work load Average/day ":          275,
		"Transportation expense":          250,
		"Distance from Residence to Work": 25,
		"Education":                       2,
		"Son":                             1,
	}
}

// opaqueModel exposes no coefficients, standing in for a non-linear model.
type opaqueModel struct{}

func (opaqueModel) Predict(x []float64) (float64, error) {
	var sum float64
	for _, v := range x {
		sum += v * v
	}
	return math.Sqrt(sum), nil
}

func (opaqueModel) Version() string { return "gbr-test" }
