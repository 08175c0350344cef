package terrain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/yegors/co-flight/internal/geo"
	"github.com/yegors/co-flight/pkg/logger"
)

// ClientConfig configures the elevation API client
type ClientConfig struct {
	URL            string        // lookup endpoint, e.g. https://api.open-elevation.com/api/v1/lookup
	RequestTimeout time.Duration // per-request timeout
	MaxRetries     int           // retries after the first attempt
	RetryBackoff   time.Duration // first backoff, doubled on each retry
}

// lookupRequest is the Open-Elevation style request body
type lookupRequest struct {
	Locations []lookupLocation `json:"locations"`
}

type lookupLocation struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// lookupResponse is the Open-Elevation style response body
type lookupResponse struct {
	Results []struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
		Elevation float64 `json:"elevation"`
	} `json:"results"`
}

// Client fetches terrain heights from an HTTP elevation service
type Client struct {
	config     ClientConfig
	httpClient *http.Client
	logger     *logger.Logger
}

// NewClient creates a new elevation API client
func NewClient(config ClientConfig, logger *logger.Logger) *Client {
	if config.RetryBackoff <= 0 {
		config.RetryBackoff = 500 * time.Millisecond
	}
	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.RequestTimeout,
		},
		logger: logger.Named("terrain-client"),
	}
}

// SampleHeights posts every point in one lookup request
func (c *Client) SampleHeights(ctx context.Context, points []geo.Cartographic) ([]float64, error) {
	if len(points) == 0 {
		return []float64{}, nil
	}

	req := lookupRequest{Locations: make([]lookupLocation, len(points))}
	for i, p := range points {
		req.Locations[i] = lookupLocation{Latitude: p.Latitude, Longitude: p.Longitude}
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode lookup request: %w", err)
	}

	var resp lookupResponse
	if err := c.fetchWithRetry(ctx, body, &resp); err != nil {
		return nil, err
	}

	if len(resp.Results) != len(points) {
		return nil, fmt.Errorf("elevation service returned %d results for %d points", len(resp.Results), len(points))
	}

	heights := make([]float64, len(points))
	for i, r := range resp.Results {
		heights[i] = r.Elevation
	}
	return heights, nil
}

// fetchWithRetry performs the lookup with retry logic and exponential backoff
func (c *Client) fetchWithRetry(ctx context.Context, body []byte, target any) error {
	var lastErr error

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := c.config.RetryBackoff * time.Duration(1<<uint(attempt-1))
			c.logger.Debug("Retrying terrain lookup",
				logger.Int("attempt", attempt),
				logger.Duration("backoff", backoff))

			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		lastErr = c.fetchOnce(ctx, body, target)
		if lastErr == nil {
			if attempt > 0 {
				c.logger.Info("Terrain lookup succeeded after retries",
					logger.Int("attempts_needed", attempt+1))
			}
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		c.logger.Warn("Terrain lookup failed, may retry",
			logger.Error(lastErr),
			logger.Int("attempt", attempt+1),
			logger.Int("max_attempts", c.config.MaxRetries+1))
	}

	return lastErr
}

func (c *Client) fetchOnce(ctx context.Context, body []byte, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("error making request to elevation API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("error decoding elevation data: %w", err)
	}
	return nil
}
