package terrain

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/yegors/co-flight/internal/geo"
)

// cellKey identifies a quantized lat/lon grid cell
type cellKey struct {
	lat, lon int64
}

// Cached memoizes heights of an underlying provider on a lat/lon grid.
// Points falling in the same cell share one sample.
type Cached struct {
	next       Provider
	resolution float64 // cell size in degrees
	cache      *expirable.LRU[cellKey, float64]
}

// NewCached wraps next with an LRU of size entries that expire after ttl.
// resolution is the grid cell size in degrees.
func NewCached(next Provider, size int, ttl time.Duration, resolution float64) (*Cached, error) {
	if size <= 0 {
		return nil, fmt.Errorf("cache size must be positive, got %d", size)
	}
	if resolution <= 0 {
		return nil, fmt.Errorf("cache resolution must be positive, got %v", resolution)
	}
	return &Cached{
		next:       next,
		resolution: resolution,
		cache:      expirable.NewLRU[cellKey, float64](size, nil, ttl),
	}, nil
}

func (c *Cached) key(p geo.Cartographic) cellKey {
	return cellKey{
		lat: int64(math.Floor(p.Latitude / c.resolution)),
		lon: int64(math.Floor(p.Longitude / c.resolution)),
	}
}

// SampleHeights serves cached cells and fetches the rest in one batch
func (c *Cached) SampleHeights(ctx context.Context, points []geo.Cartographic) ([]float64, error) {
	heights := make([]float64, len(points))
	var missing []geo.Cartographic
	var missingIdx []int

	for i, p := range points {
		if h, ok := c.cache.Get(c.key(p)); ok {
			heights[i] = h
			continue
		}
		missing = append(missing, p)
		missingIdx = append(missingIdx, i)
	}

	if len(missing) == 0 {
		return heights, nil
	}

	fetched, err := c.next.SampleHeights(ctx, missing)
	if err != nil {
		return nil, err
	}
	if len(fetched) != len(missing) {
		return nil, fmt.Errorf("terrain provider returned %d heights for %d points", len(fetched), len(missing))
	}

	for j, h := range fetched {
		heights[missingIdx[j]] = h
		c.cache.Add(c.key(missing[j]), h)
	}
	return heights, nil
}

// Len returns the number of cached cells
func (c *Cached) Len() int {
	return c.cache.Len()
}
