package terrain

import (
	"context"
	"math"

	"github.com/yegors/co-flight/internal/geo"
)

// Provider samples terrain heights in meters above the ellipsoid. The result
// has the same length and order as points.
type Provider interface {
	SampleHeights(ctx context.Context, points []geo.Cartographic) ([]float64, error)
}

// ProviderFunc adapts a function to Provider
type ProviderFunc func(ctx context.Context, points []geo.Cartographic) ([]float64, error)

// SampleHeights calls f
func (f ProviderFunc) SampleHeights(ctx context.Context, points []geo.Cartographic) ([]float64, error) {
	return f(ctx, points)
}

// Flat is a constant-height world
type Flat struct {
	Height float64
}

// SampleHeights returns Height for every point
func (f Flat) SampleHeights(ctx context.Context, points []geo.Cartographic) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	heights := make([]float64, len(points))
	for i := range heights {
		heights[i] = f.Height
	}
	return heights, nil
}

// Synthetic is a deterministic rolling-hills terrain for offline use. It can
// be replaced with real elevation data.
type Synthetic struct {
	BaseHeight float64 // mean ground height (m)
	Amplitude  float64 // hill height (m)
	Wavelength float64 // hill spacing in degrees
}

// SampleHeights evaluates the hill function at each point
func (s Synthetic) SampleHeights(ctx context.Context, points []geo.Cartographic) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	wl := s.Wavelength
	if wl <= 0 {
		wl = 0.05
	}
	heights := make([]float64, len(points))
	for i, p := range points {
		wave1 := math.Sin(p.Longitude*2*math.Pi/wl) * s.Amplitude
		wave2 := math.Sin((p.Longitude+p.Latitude)*math.Pi/wl) * s.Amplitude / 2
		heights[i] = math.Max(0, s.BaseHeight+wave1+wave2)
	}
	return heights, nil
}
