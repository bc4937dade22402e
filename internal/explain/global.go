package explain

import (
	"context"
	"log"
	"math"
	"sort"

	"github.com/hranalytics/explaind/internal/api"
	"github.com/hranalytics/explaind/internal/background"
	"github.com/hranalytics/explaind/internal/cachestore"
	"github.com/hranalytics/explaind/internal/metrics"
	"github.com/hranalytics/explaind/internal/model"
)

// backgroundSize is the population size used by every attribution method.
const backgroundSize = 100

// GlobalService computes population-level feature importance: mean absolute
// attribution per feature over a synthetic background, ranked descending.
// Results persist in the cache store for the configured TTL.
type GlobalService struct {
	comps   *model.Components
	sampler *background.Sampler
	store   cachestore.Store
	metrics *metrics.Metrics
}

// NewGlobalService creates the global explanation service.
func NewGlobalService(comps *model.Components, sampler *background.Sampler, store cachestore.Store, m *metrics.Metrics) *GlobalService {
	return &GlobalService{comps: comps, sampler: sampler, store: store, metrics: m}
}

// Explain returns the cached global explanation when present and fresh,
// otherwise recomputes, persists and returns it with Cached=false.
func (g *GlobalService) Explain(ctx context.Context) (*api.GlobalExplanation, error) {
	if !g.comps.Ready() {
		return nil, api.ErrModelUnavailable
	}

	if cached := g.loadCached(ctx); cached != nil {
		g.metrics.CacheHits.Inc()
		cached.Cached = true
		return cached, nil
	}
	g.metrics.CacheMisses.Inc()

	bg, err := g.sampler.Generate(backgroundSize)
	if err != nil {
		return nil, err
	}

	explainer, err := NewLinearExplainer(g.comps.Model, bg)
	if err != nil {
		return nil, err
	}

	// Mean absolute attribution per feature across the background population.
	meanAbs := make([]float64, len(g.comps.Schema))
	for _, row := range bg {
		attrs, err := explainer.Attributions(row)
		if err != nil {
			return nil, err
		}
		for j, a := range attrs {
			meanAbs[j] += math.Abs(a)
		}
	}
	for j := range meanAbs {
		meanAbs[j] /= float64(len(bg))
	}

	importance := make([]api.FeatureImportance, len(g.comps.Schema))
	for j, name := range g.comps.Schema {
		importance[j] = api.FeatureImportance{Feature: name, MeanAbsShap: meanAbs[j]}
	}
	sort.SliceStable(importance, func(i, j int) bool {
		return importance[i].MeanAbsShap > importance[j].MeanAbsShap
	})

	explanation := &api.GlobalExplanation{
		FeatureImportance: importance,
		ExplainerType:     "LinearExplainer",
		SampleSize:        len(bg),
		Cached:            false,
	}

	// Best-effort persistence. A save failure must never block the response.
	if err := g.store.Save(ctx, explanation); err != nil {
		g.metrics.CacheSaveErr.Inc()
		log.Printf("Failed to save global explanation cache: %v", err)
	}

	return explanation, nil
}

// loadCached returns the stored explanation or nil. Store errors degrade
// silently to a cache miss.
func (g *GlobalService) loadCached(ctx context.Context) *api.GlobalExplanation {
	cached, err := g.store.Load(ctx)
	if err != nil {
		log.Printf("Global explanation cache read error: %v", err)
		return nil
	}
	return cached
}
