package terrain

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/yegors/co-flight/internal/geo"
	"github.com/yegors/co-flight/internal/metrics"
	"github.com/yegors/co-flight/pkg/logger"
)

// Sampler wraps a Provider for per-tick use. A failed, slow or non-finite
// sample never blocks the tick: the last known height is returned instead,
// or 0 when nothing has been sampled yet.
type Sampler struct {
	provider Provider
	timeout  time.Duration
	logger   *logger.Logger

	mu        sync.Mutex
	lastKnown float64
	failures  int
}

// NewSampler creates a sampler; timeout bounds every sample (0 means no bound)
func NewSampler(provider Provider, timeout time.Duration, logger *logger.Logger) *Sampler {
	return &Sampler{
		provider: provider,
		timeout:  timeout,
		logger:   logger.Named("terrain"),
	}
}

// HeightAt returns the terrain height under c, falling back on failure
func (s *Sampler) HeightAt(ctx context.Context, c geo.Cartographic) float64 {
	h, err := s.sample(ctx, c)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.failures++
		metrics.TerrainSampleFailed()
		s.logger.Warn("Terrain sample failed, using last known height",
			logger.Error(err),
			logger.Float64("lon", c.Longitude),
			logger.Float64("lat", c.Latitude),
			logger.Float64("fallback", s.lastKnown),
			logger.Int("failures", s.failures))
		return s.lastKnown
	}

	s.lastKnown = h
	return h
}

// SampleHeights samples a batch without touching the fallback state. It
// satisfies Provider so consumers can share one configured sampler.
func (s *Sampler) SampleHeights(ctx context.Context, points []geo.Cartographic) ([]float64, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	return s.provider.SampleHeights(ctx, points)
}

// Failures returns the number of failed samples so far
func (s *Sampler) Failures() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failures
}

func (s *Sampler) sample(ctx context.Context, c geo.Cartographic) (float64, error) {
	heights, err := s.SampleHeights(ctx, []geo.Cartographic{c})
	if err != nil {
		return 0, err
	}
	if len(heights) != 1 {
		return 0, fmt.Errorf("terrain provider returned %d heights for 1 point", len(heights))
	}
	if math.IsNaN(heights[0]) || math.IsInf(heights[0], 0) {
		return 0, fmt.Errorf("terrain provider returned non-finite height %v", heights[0])
	}
	return heights[0], nil
}
