package maps

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	pkgerrors "github.com/angelmondragon/crewplanner-backend/pkg/errors"
	"github.com/angelmondragon/crewplanner-backend/pkg/types"
)

const (
	defaultBaseURL   = "https://places.googleapis.com/v1"
	defaultTimeout   = 10 * time.Second
	searchTextPath   = "places:searchText"
	searchFieldMask  = "places.id,places.formattedAddress,places.location"
	errorBodyMaxRead = 1024
)

// Client geocodes job addresses through the Places text search API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	region     string
}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/"); trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// WithRegion biases lookups toward a CLDR region code such as "US".
func WithRegion(region string) Option {
	return func(c *Client) {
		c.region = strings.ToUpper(strings.TrimSpace(region))
	}
}

func NewClient(apiKey string, opts ...Option) (*Client, error) {
	key := strings.TrimSpace(apiKey)
	if key == "" {
		return nil, errors.New("google maps api key required")
	}
	c := &Client{
		apiKey:     key,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// Place is the best match for a free-text address.
type Place struct {
	PlaceID          string
	FormattedAddress string
	Location         types.GeographyPoint
}

type searchTextRequest struct {
	TextQuery    string `json:"textQuery"`
	RegionCode   string `json:"regionCode,omitempty"`
	PageSize     int    `json:"pageSize"`
	LanguageCode string `json:"languageCode,omitempty"`
}

type searchTextResponse struct {
	Places []struct {
		ID               string `json:"id"`
		FormattedAddress string `json:"formattedAddress"`
		Location         *struct {
			Latitude  float64 `json:"latitude"`
			Longitude float64 `json:"longitude"`
		} `json:"location"`
	} `json:"places"`
}

// Geocode returns the first located match for address. No match is CodeNotFound; transport
// and upstream failures are CodeDependency.
func (c *Client) Geocode(ctx context.Context, address string) (*Place, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "google maps client not configured")
	}
	query := strings.TrimSpace(address)
	if query == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "address is required")
	}

	var resp searchTextResponse
	req := searchTextRequest{TextQuery: query, RegionCode: c.region, PageSize: 1, LanguageCode: "en"}
	if err := c.post(ctx, searchTextPath, searchFieldMask, req, &resp); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "geocode request failed")
	}

	for _, p := range resp.Places {
		if p.Location == nil {
			continue
		}
		loc := types.GeographyPoint{Lat: p.Location.Latitude, Lng: p.Location.Longitude}
		if !loc.Valid() {
			continue
		}
		return &Place{PlaceID: p.ID, FormattedAddress: p.FormattedAddress, Location: loc}, nil
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "address could not be geocoded")
}

func (c *Client) post(ctx context.Context, path, fieldMask string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Goog-Api-Key", c.apiKey)
	req.Header.Set("X-Goog-FieldMask", fieldMask)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyMaxRead))
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
