package api

// FeatureImportance is one entry of the global importance ranking.
type FeatureImportance struct {
	Feature     string  `json:"feature"`
	MeanAbsShap float64 `json:"mean_abs_shap"`
}

// GlobalExplanation is the payload of GET /explain/global.
// FeatureImportance is sorted by MeanAbsShap descending.
type GlobalExplanation struct {
	FeatureImportance []FeatureImportance `json:"feature_importance"`
	ExplainerType     string              `json:"explainer_type"`
	SampleSize        int                 `json:"sample_size"`
	Cached            bool                `json:"cached"`
}

// Contribution is one per-feature attribution for a single instance.
// Value is the instance's scaled feature value.
type Contribution struct {
	Feature string  `json:"feature"`
	Shap    float64 `json:"shap"`
	Value   float64 `json:"value"`
}

// LocalExplanation is the payload of POST /explain/local.
// Contributions are sorted by |Shap| descending.
type LocalExplanation struct {
	Prediction    float64        `json:"prediction"`
	Contributions []Contribution `json:"contributions"`
	TextSummary   string         `json:"text_summary"`
}

// WeightedFeature is one surrogate-model weight from POST /explain/lime.
type WeightedFeature struct {
	Feature string  `json:"feature"`
	Weight  float64 `json:"weight"`
}

// LimeExplanation is the payload of POST /explain/lime. ExplanationScore is
// the surrogate's local fidelity (R²). The weight magnitudes are not
// deterministic across calls because the surrogate fit is stochastic.
type LimeExplanation struct {
	Prediction       float64           `json:"prediction"`
	TopFeatures      []WeightedFeature `json:"top_features"`
	ExplanationScore float64           `json:"explanation_score"`
}

// Candidate is a single-feature counterfactual perturbation whose
// re-prediction came out strictly below the original prediction. Distance is
// the L2 norm of the full vector change in scaled-feature units.
type Candidate struct {
	Feature          string  `json:"feature"`
	OriginalValue    float64 `json:"original_value"`
	SuggestedValue   float64 `json:"suggested_value"`
	Change           float64 `json:"change"`
	NewPrediction    float64 `json:"new_prediction"`
	ReductionPercent float64 `json:"reduction_percent"`
	Distance         float64 `json:"distance"`
}

// CounterfactualResult is the payload of POST /explain/cf. Candidates are
// ranked by ReductionPercent descending, ties broken by Distance ascending,
// truncated to the top 5. TargetPrediction is informational only: the search
// never enforces reaching it.
type CounterfactualResult struct {
	OriginalPrediction float64     `json:"original_prediction"`
	TargetPrediction   float64     `json:"target_prediction"`
	Candidates         []Candidate `json:"candidates"`
}

// ModelInfo is the payload of GET /model/info.
type ModelInfo struct {
	ModelVersion      string `json:"model_version"`
	FeatureCount      int    `json:"feature_count"`
	LinearAttribution bool   `json:"linear_attribution"`
}

// ErrorResponse is the body of every failure response.
type ErrorResponse struct {
	Error string `json:"error"`
}
