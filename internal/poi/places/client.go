// Package places provides a client for the places nearby-search API.
package places

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/roadtripper/roadtripper/internal/geo"
	"github.com/roadtripper/roadtripper/internal/poi"
	"github.com/roadtripper/roadtripper/internal/provider/resilience"
)

const (
	// ProviderName identifies this place lookup provider.
	ProviderName = "places"

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 10 * time.Second
)

// HTTPDoer is an interface for executing HTTP requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig holds configuration for the places client.
type ClientConfig struct {
	// BaseURL is the API base URL (required).
	BaseURL string

	// APIKey authenticates requests (optional, sent as a bearer token).
	APIKey string

	// HTTPClient is the HTTP client to use (optional).
	// If nil, uses a resilient client with defaults.
	HTTPClient HTTPDoer

	// Timeout is the request timeout (optional, defaults to 10s).
	Timeout time.Duration

	// Registry is the provider registry for health tracking (optional).
	Registry *resilience.Registry

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client is a places API client. It implements poi.Lookup.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient HTTPDoer
	logger     zerolog.Logger
}

var _ poi.Lookup = (*Client)(nil)

// NewClient creates a new places client.
func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		clientCfg := resilience.DefaultConfig(ProviderName)
		clientCfg.Timeout = timeout
		if cfg.Registry != nil {
			clientCfg.Registry = cfg.Registry
		}
		httpClient = resilience.NewClient(clientCfg)
	}

	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
		logger:     cfg.Logger,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// SearchNearby searches for places around a center point within the given
// radius, restricted to the given categories.
func (c *Client) SearchNearby(ctx context.Context, center geo.Point, radiusMeters int, categories []poi.Category) ([]poi.POI, error) {
	if err := center.Validate(); err != nil {
		return nil, &poi.Error{
			Lookup:  ProviderName,
			Code:    "INVALID_CENTER",
			Message: "invalid search center coordinates",
			Err:     err,
		}
	}

	types := make([]string, 0, len(categories))
	for _, cat := range categories {
		types = append(types, string(cat))
	}

	body, err := json.Marshal(placesNearbyRequest{
		Latitude:  center.Lat,
		Longitude: center.Lng,
		Radius:    radiusMeters,
		Types:     types,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	url := c.baseURL + "/api/places/nearby"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	c.setHeaders(httpReq)

	c.logger.Debug().
		Float64("lat", center.Lat).
		Float64("lng", center.Lng).
		Int("radius_m", radiusMeters).
		Strs("types", types).
		Msg("searching nearby places")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &poi.Error{
			Lookup:  ProviderName,
			Code:    "REQUEST_FAILED",
			Message: "failed to reach places provider",
			Err:     poi.ErrLookupUnavailable,
		}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, c.handleErrorResponse(resp.StatusCode, respBody)
	}

	var nearby placesNearbyResponse
	if err := json.Unmarshal(respBody, &nearby); err != nil {
		return nil, &poi.Error{
			Lookup:  ProviderName,
			Code:    "MALFORMED_RESPONSE",
			Message: "places provider returned an unparseable response",
			Err:     poi.ErrMalformedResponse,
		}
	}

	pois := make([]poi.POI, 0, len(nearby.Places))
	for i := range nearby.Places {
		pois = append(pois, toPOI(&nearby.Places[i]))
	}

	c.logger.Debug().
		Int("place_count", len(pois)).
		Msg("received nearby places")

	return pois, nil
}

// GetPlace retrieves a single place by its provider ID.
func (c *Client) GetPlace(ctx context.Context, id string) (*poi.POI, error) {
	if id == "" {
		return nil, &poi.Error{
			Lookup:  ProviderName,
			Code:    "INVALID_PLACE_ID",
			Message: "place id is required",
			Err:     poi.ErrPlaceNotFound,
		}
	}

	url := fmt.Sprintf("%s/api/places/%s", c.baseURL, id)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &poi.Error{
			Lookup:  ProviderName,
			Code:    "REQUEST_FAILED",
			Message: "failed to reach places provider",
			Err:     poi.ErrLookupUnavailable,
		}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, c.handleErrorResponse(resp.StatusCode, respBody)
	}

	var record placeRecord
	if err := json.Unmarshal(respBody, &record); err != nil {
		return nil, &poi.Error{
			Lookup:  ProviderName,
			Code:    "MALFORMED_RESPONSE",
			Message: "places provider returned an unparseable response",
			Err:     poi.ErrMalformedResponse,
		}
	}

	result := toPOI(&record)
	return &result, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

// handleErrorResponse maps provider error responses to domain errors.
func (c *Client) handleErrorResponse(statusCode int, body []byte) error {
	var provErr placesErrorResponse
	message := fmt.Sprintf("places provider returned status %d", statusCode)
	if err := json.Unmarshal(body, &provErr); err == nil && provErr.Error != "" {
		message = provErr.Error
	}

	switch statusCode {
	case http.StatusNotFound:
		return &poi.Error{
			Lookup:  ProviderName,
			Code:    "PLACE_NOT_FOUND",
			Message: message,
			Err:     poi.ErrPlaceNotFound,
		}
	case http.StatusTooManyRequests:
		return &poi.Error{
			Lookup:  ProviderName,
			Code:    "RATE_LIMIT",
			Message: "places API rate limit exceeded, please try again later",
			Err:     poi.ErrLookupUnavailable,
		}
	case http.StatusUnauthorized, http.StatusForbidden:
		return &poi.Error{
			Lookup:  ProviderName,
			Code:    "FORBIDDEN",
			Message: "places API access denied - check API key configuration",
			Err:     poi.ErrLookupUnavailable,
		}
	default:
		if statusCode >= 500 {
			return &poi.Error{
				Lookup:  ProviderName,
				Code:    fmt.Sprintf("SERVER_%d", statusCode),
				Message: "places provider is temporarily unavailable",
				Err:     poi.ErrLookupUnavailable,
			}
		}
		return &poi.Error{
			Lookup:  ProviderName,
			Code:    fmt.Sprintf("HTTP_%d", statusCode),
			Message: message,
			Err:     poi.ErrLookupUnavailable,
		}
	}
}

// toPOI converts a wire place record to the domain model. Unknown place
// types fall back to the restaurant category.
func toPOI(rec *placeRecord) poi.POI {
	return poi.POI{
		ID:       rec.ID,
		Name:     rec.Name,
		Category: poi.ParseCategory(rec.Type),
		Location: geo.Point{
			Lat: rec.Location.Latitude,
			Lng: rec.Location.Longitude,
		},
		Rating:      rec.Rating,
		RatingCount: rec.RatingCount,
		PriceLevel:  rec.PriceLevel,
		IsOpen:      rec.IsOpen,
		Address:     rec.Address,
		PhotoURL:    rec.PhotoURL,
	}
}
