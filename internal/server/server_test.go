package server

import (
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"golang.org/x/time/rate"

	"github.com/hranalytics/explaind/internal/api"
	"github.com/hranalytics/explaind/internal/background"
	"github.com/hranalytics/explaind/internal/cachestore"
	"github.com/hranalytics/explaind/internal/explain"
	"github.com/hranalytics/explaind/internal/metrics"
	"github.com/hranalytics/explaind/internal/model"
)

// Prometheus collectors register globally, so the whole package shares one
// Metrics instance across tests.
var testMetrics = metrics.New()

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

func testServer(t *testing.T, comps *model.Components) *Server {
	t.Helper()

	sampler := background.NewSampler(comps, 42)
	store, err := cachestore.NewMemoryStore()
	if err != nil {
		t.Fatalf("Failed to create memory store: %v", err)
	}

	global := explain.NewGlobalService(comps, sampler, store, testMetrics)
	local := explain.NewLocalService(comps, sampler)
	surrogate := explain.NewSurrogateService(comps, sampler, 42)
	cf := explain.NewCounterfactualService(comps, sampler)

	return New(comps, global, local, surrogate, cf, testMetrics, nil)
}

func doRequest(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}

	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()

	var resp api.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode error body %q: %v", rec.Body.String(), err)
	}
	return resp.Error
}

func TestGlobalExplanation(t *testing.T) {
	srv := testServer(t, testComponents(t))

	rec := doRequest(t, srv, http.MethodGet, "/explain/global", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Status = %d, want 200 (body: %s)", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	var resp api.GlobalExplanation
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if resp.ExplainerType != "LinearExplainer" {
		t.Errorf("ExplainerType = %q, want LinearExplainer", resp.ExplainerType)
	}
	if resp.SampleSize != 100 {
		t.Errorf("SampleSize = %d, want 100", resp.SampleSize)
	}
	if resp.Cached {
		t.Error("First call should not be served from cache")
	}
	if len(resp.FeatureImportance) != 7 {
		t.Fatalf("FeatureImportance has %d entries, want 7", len(resp.FeatureImportance))
	}
	for i := 1; i < len(resp.FeatureImportance); i++ {
		if resp.FeatureImportance[i].MeanAbsShap > resp.FeatureImportance[i-1].MeanAbsShap {
			t.Errorf("FeatureImportance not sorted descending at index %d", i)
		}
	}
}

func TestGlobalExplanationCached(t *testing.T) {
	srv := testServer(t, testComponents(t))

	first := doRequest(t, srv, http.MethodGet, "/explain/global", "")
	if first.Code != http.StatusOK {
		t.Fatalf("First call status = %d, want 200", first.Code)
	}

	second := doRequest(t, srv, http.MethodGet, "/explain/global", "")
	if second.Code != http.StatusOK {
		t.Fatalf("Second call status = %d, want 200", second.Code)
	}

	var a, b api.GlobalExplanation
	if err := json.Unmarshal(first.Body.Bytes(), &a); err != nil {
		t.Fatalf("Failed to decode first response: %v", err)
	}
	if err := json.Unmarshal(second.Body.Bytes(), &b); err != nil {
		t.Fatalf("Failed to decode second response: %v", err)
	}

	if !b.Cached {
		t.Error("Second call should be served from cache")
	}
	if len(a.FeatureImportance) != len(b.FeatureImportance) {
		t.Fatal("Cached ranking differs in length from fresh ranking")
	}
	for i := range a.FeatureImportance {
		if a.FeatureImportance[i] != b.FeatureImportance[i] {
			t.Errorf("Cached entry %d = %+v, want %+v", i, b.FeatureImportance[i], a.FeatureImportance[i])
		}
	}
}

func TestGlobalExplanationNonLinearModel(t *testing.T) {
	comps := testComponents(t)
	comps.Model = opaqueModel{}
	srv := testServer(t, comps)

	rec := doRequest(t, srv, http.MethodGet, "/explain/global", "")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("Status = %d, want 500", rec.Code)
	}
	if msg := decodeError(t, rec); !strings.Contains(msg, "Failed to create SHAP explainer") {
		t.Errorf("Error = %q, want it to contain %q", msg, "Failed to create SHAP explainer")
	}
}

func TestGlobalExplanationMethodNotAllowed(t *testing.T) {
	srv := testServer(t, testComponents(t))

	rec := doRequest(t, srv, http.MethodPost, "/explain/global", "{}")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("Status = %d, want 405", rec.Code)
	}
}

func TestLocalExplanation(t *testing.T) {
	srv := testServer(t, testComponents(t))

	body := `{"input": {"Age": 40, "Service time": 10, "Work load Average/day ": 275,
		"Transportation expense": 250, "Distance from Residence to Work": 25,
		"Education": 2, "Son": 1}}`

	rec := doRequest(t, srv, http.MethodPost, "/explain/local", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("Status = %d, want 200 (body: %s)", rec.Code, rec.Body.String())
	}

	var resp api.LocalExplanation
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	// Mid-range input scales to the zero vector; the prediction is the intercept.
	if math.Abs(resp.Prediction-4.0) > 1e-9 {
		t.Errorf("Prediction = %f, want 4.0", resp.Prediction)
	}
	if len(resp.Contributions) != 7 {
		t.Errorf("Contributions has %d entries, want 7", len(resp.Contributions))
	}
	if !strings.HasPrefix(resp.TextSummary, "Predicted 4.00 hours.") {
		t.Errorf("TextSummary = %q, want it to start with the prediction", resp.TextSummary)
	}
}

func TestLocalExplanationMissingInput(t *testing.T) {
	srv := testServer(t, testComponents(t))

	rec := doRequest(t, srv, http.MethodPost, "/explain/local", `{"other": 1}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Status = %d, want 400", rec.Code)
	}
	if msg := decodeError(t, rec); msg != `Missing "input" field in request` {
		t.Errorf("Error = %q, want %q", msg, `Missing "input" field in request`)
	}
}

func TestLocalExplanationInvalidJSON(t *testing.T) {
	srv := testServer(t, testComponents(t))

	rec := doRequest(t, srv, http.MethodPost, "/explain/local", `{not json`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Status = %d, want 400", rec.Code)
	}
	if msg := decodeError(t, rec); msg != "Invalid JSON" {
		t.Errorf("Error = %q, want %q", msg, "Invalid JSON")
	}
}

func TestLimeExplanation(t *testing.T) {
	srv := testServer(t, testComponents(t))

	body := `{"input": {"Age": 45, "Service time": 12, "Work load Average/day ": 300,
		"Transportation expense": 260, "Distance from Residence to Work": 30,
		"Education": 1, "Son": 2}}`

	rec := doRequest(t, srv, http.MethodPost, "/explain/lime", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("Status = %d, want 200 (body: %s)", rec.Code, rec.Body.String())
	}

	var resp api.LimeExplanation
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if len(resp.TopFeatures) == 0 || len(resp.TopFeatures) > 10 {
		t.Errorf("TopFeatures has %d entries, want 1..10", len(resp.TopFeatures))
	}
	// The underlying model is linear, so the surrogate fit should be near exact.
	if resp.ExplanationScore < 0.9 {
		t.Errorf("ExplanationScore = %f, want >= 0.9 for a linear model", resp.ExplanationScore)
	}
}

func TestLimeExplanationMissingInput(t *testing.T) {
	srv := testServer(t, testComponents(t))

	rec := doRequest(t, srv, http.MethodPost, "/explain/lime", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Status = %d, want 400", rec.Code)
	}
	if msg := decodeError(t, rec); msg != `Missing "input" field in request` {
		t.Errorf("Error = %q, want %q", msg, `Missing "input" field in request`)
	}
}

func TestCounterfactualExplanation(t *testing.T) {
	srv := testServer(t, testComponents(t))

	body := `{"input": {"Age": 40, "Service time": 10, "Work load Average/day ": 275,
		"Transportation expense": 250, "Distance from Residence to Work": 25,
		"Education": 2, "Son": 1}}`

	rec := doRequest(t, srv, http.MethodPost, "/explain/cf", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("Status = %d, want 200 (body: %s)", rec.Code, rec.Body.String())
	}

	var resp api.CounterfactualResult
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if math.Abs(resp.OriginalPrediction-4.0) > 1e-9 {
		t.Errorf("OriginalPrediction = %f, want 4.0", resp.OriginalPrediction)
	}
	// Default target factor is 0.8.
	if math.Abs(resp.TargetPrediction-3.2) > 1e-9 {
		t.Errorf("TargetPrediction = %f, want 3.2", resp.TargetPrediction)
	}
	if len(resp.Candidates) > 5 {
		t.Errorf("Candidates has %d entries, want at most 5", len(resp.Candidates))
	}
	for i, c := range resp.Candidates {
		if c.NewPrediction >= resp.OriginalPrediction {
			t.Errorf("Candidate %d prediction %f does not lower the original %f",
				i, c.NewPrediction, resp.OriginalPrediction)
		}
	}
}

func TestCounterfactualCustomTarget(t *testing.T) {
	srv := testServer(t, testComponents(t))

	body := `{"input": {"Age": 40, "Service time": 10, "Work load Average/day ": 275,
		"Transportation expense": 250, "Distance from Residence to Work": 25,
		"Education": 2, "Son": 1}, "target": 0.5}`

	rec := doRequest(t, srv, http.MethodPost, "/explain/cf", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("Status = %d, want 200 (body: %s)", rec.Code, rec.Body.String())
	}

	var resp api.CounterfactualResult
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if math.Abs(resp.TargetPrediction-2.0) > 1e-9 {
		t.Errorf("TargetPrediction = %f, want 2.0", resp.TargetPrediction)
	}
}

func TestModelInfo(t *testing.T) {
	srv := testServer(t, testComponents(t))

	rec := doRequest(t, srv, http.MethodGet, "/model/info", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Status = %d, want 200", rec.Code)
	}

	var resp api.ModelInfo
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if resp.ModelVersion != "absenteeism-lr-test" {
		t.Errorf("ModelVersion = %q, want absenteeism-lr-test", resp.ModelVersion)
	}
	if resp.FeatureCount != 7 {
		t.Errorf("FeatureCount = %d, want 7", resp.FeatureCount)
	}
	if !resp.LinearAttribution {
		t.Error("LinearAttribution = false, want true for a linear model")
	}
}

func TestHealth(t *testing.T) {
	srv := testServer(t, testComponents(t))

	rec := doRequest(t, srv, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Errorf("Status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != "OK" {
		t.Errorf("Body = %q, want OK", rec.Body.String())
	}
}

func TestPostEndpointsRejectGet(t *testing.T) {
	srv := testServer(t, testComponents(t))

	for _, path := range []string{"/explain/local", "/explain/lime", "/explain/cf"} {
		rec := doRequest(t, srv, http.MethodGet, path, "")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("GET %s status = %d, want 400", path, rec.Code)
		}
	}
}

func TestRateLimit(t *testing.T) {
	comps := testComponents(t)
	srv := testServer(t, comps)
	srv.limiter = rate.NewLimiter(rate.Limit(0), 0) // reject everything

	rec := doRequest(t, srv, http.MethodGet, "/explain/global", "")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("Status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("Retry-After header missing on 429")
	}
}
