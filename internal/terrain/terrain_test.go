package terrain

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/yegors/co-flight/internal/geo"
	"github.com/yegors/co-flight/pkg/logger"
)

var samplePoints = []geo.Cartographic{
	{Longitude: 2.2945, Latitude: 48.8584},
	{Longitude: -74.0445, Latitude: 40.6892},
}

func TestFlat(t *testing.T) {
	got, err := Flat{Height: 35}.SampleHeights(context.Background(), samplePoints)
	if err != nil {
		t.Fatalf("SampleHeights error = %v", err)
	}
	if diff := cmp.Diff([]float64{35, 35}, got); diff != "" {
		t.Errorf("heights mismatch (-want +got):\n%s", diff)
	}
}

func TestSyntheticDeterministicAndNonNegative(t *testing.T) {
	s := Synthetic{BaseHeight: 50, Amplitude: 200, Wavelength: 0.1}
	a, _ := s.SampleHeights(context.Background(), samplePoints)
	b, _ := s.SampleHeights(context.Background(), samplePoints)
	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("synthetic terrain not deterministic:\n%s", diff)
	}
	for _, h := range a {
		if h < 0 {
			t.Errorf("negative height %v", h)
		}
	}
}

func TestSamplerFallback(t *testing.T) {
	fail := false
	provider := ProviderFunc(func(ctx context.Context, points []geo.Cartographic) ([]float64, error) {
		if fail {
			return nil, errors.New("service unavailable")
		}
		return []float64{812}, nil
	})
	s := NewSampler(provider, 0, logger.NewNop())
	ctx := context.Background()

	fail = true
	if got := s.HeightAt(ctx, samplePoints[0]); got != 0 {
		t.Errorf("first failure height = %v, want 0", got)
	}

	fail = false
	if got := s.HeightAt(ctx, samplePoints[0]); got != 812 {
		t.Errorf("height = %v, want 812", got)
	}

	fail = true
	if got := s.HeightAt(ctx, samplePoints[0]); got != 812 {
		t.Errorf("fallback height = %v, want last known 812", got)
	}
	if got := s.Failures(); got != 2 {
		t.Errorf("Failures() = %d, want 2", got)
	}
}

func TestSamplerRejectsNonFinite(t *testing.T) {
	provider := ProviderFunc(func(ctx context.Context, points []geo.Cartographic) ([]float64, error) {
		return []float64{math.NaN()}, nil
	})
	s := NewSampler(provider, 0, logger.NewNop())
	if got := s.HeightAt(context.Background(), samplePoints[0]); got != 0 {
		t.Errorf("height = %v, want 0", got)
	}
}

func TestSamplerTimeout(t *testing.T) {
	provider := ProviderFunc(func(ctx context.Context, points []geo.Cartographic) ([]float64, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	s := NewSampler(provider, 20*time.Millisecond, logger.NewNop())

	start := time.Now()
	s.HeightAt(context.Background(), samplePoints[0])
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("sample blocked for %v", elapsed)
	}
}

func TestCachedServesRepeatedCells(t *testing.T) {
	var calls, sampled int
	provider := ProviderFunc(func(ctx context.Context, points []geo.Cartographic) ([]float64, error) {
		calls++
		sampled += len(points)
		out := make([]float64, len(points))
		for i, p := range points {
			out[i] = p.Latitude
		}
		return out, nil
	})

	c, err := NewCached(provider, 16, time.Minute, 0.01)
	if err != nil {
		t.Fatalf("NewCached error = %v", err)
	}
	ctx := context.Background()

	first, _ := c.SampleHeights(ctx, samplePoints)
	second, _ := c.SampleHeights(ctx, samplePoints)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("cached heights differ:\n%s", diff)
	}
	if calls != 1 || sampled != 2 {
		t.Errorf("provider called %d times for %d points, want 1 and 2", calls, sampled)
	}

	// a nearby point inside the same cell reuses the sample
	near := geo.Cartographic{Longitude: 2.2946, Latitude: 48.8585}
	got, _ := c.SampleHeights(ctx, []geo.Cartographic{near, {Longitude: 10, Latitude: 10}})
	if got[0] != first[0] {
		t.Errorf("same-cell height = %v, want %v", got[0], first[0])
	}
	if sampled != 3 {
		t.Errorf("sampled %d points, want 3", sampled)
	}
	if c.Len() != 3 {
		t.Errorf("Len() = %d, want 3", c.Len())
	}
}

func TestNewCachedValidation(t *testing.T) {
	if _, err := NewCached(Flat{}, 0, time.Minute, 0.01); err == nil {
		t.Error("expected error for zero size")
	}
	if _, err := NewCached(Flat{}, 8, time.Minute, 0); err == nil {
		t.Error("expected error for zero resolution")
	}
}

func TestClientRetriesThenSucceeds(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if attempts.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		var req lookupRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		results := []map[string]float64{}
		for _, l := range req.Locations {
			results = append(results, map[string]float64{"latitude": l.Latitude, "longitude": l.Longitude, "elevation": l.Latitude * 10})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"results": results})
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{URL: srv.URL, RequestTimeout: time.Second, MaxRetries: 2, RetryBackoff: time.Millisecond}, logger.NewNop())
	got, err := c.SampleHeights(context.Background(), samplePoints)
	if err != nil {
		t.Fatalf("SampleHeights error = %v", err)
	}
	want := []float64{488.584, 406.892}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-9 {
			t.Errorf("height[%d] = %v, want %v", i, got[i], want[i])
		}
	}
	if attempts.Load() != 2 {
		t.Errorf("attempts = %d, want 2", attempts.Load())
	}
}

func TestClientGivesUp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{URL: srv.URL, RequestTimeout: time.Second, MaxRetries: 1, RetryBackoff: time.Millisecond}, logger.NewNop())
	if _, err := c.SampleHeights(context.Background(), samplePoints); err == nil {
		t.Fatal("expected error after exhausting retries")
	}
}
