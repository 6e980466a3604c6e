package onemap

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/couchcryptid/hdb-property-etl/internal/adapter/apiclient"
	"github.com/couchcryptid/hdb-property-etl/internal/domain"
	"github.com/couchcryptid/hdb-property-etl/internal/observability"
)

const searchPath = "/api/common/elastic/search"

// Client implements domain.Geocoder using the OneMap search API.
type Client struct {
	api     *apiclient.Client
	baseURL string
	limiter *rate.Limiter
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewClient creates a OneMap search client. ratePerMinute caps outbound
// searches; zero or less disables the throttle.
func NewClient(api *apiclient.Client, baseURL string, ratePerMinute int, logger *slog.Logger, metrics *observability.Metrics) *Client {
	limiter := rate.NewLimiter(rate.Inf, 0)
	if ratePerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(ratePerMinute)), 1)
	}
	return &Client{
		api:     api,
		baseURL: baseURL,
		limiter: limiter,
		logger:  logger,
		metrics: metrics,
	}
}

// Geocode returns the coordinates of the best match for address, or nil when
// the search finds nothing.
func (c *Client) Geocode(ctx context.Context, address, token string) (*domain.Coordinates, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("geocode throttle: %w", err)
	}

	params := url.Values{
		"searchVal":      {address},
		"returnGeom":     {"Y"},
		"getAddrDetails": {"Y"},
		"pageNum":        {"1"},
	}
	var resp searchResponse
	err := c.api.DoJSON(ctx, apiclient.Request{
		Method: http.MethodGet,
		URL:    c.baseURL + searchPath + "?" + params.Encode(),
		Header: http.Header{"Authorization": {"Bearer " + token}},
	}, &resp)
	if err != nil {
		c.metrics.GeocodeRequests.WithLabelValues("error").Inc()
		return nil, err
	}

	if resp.Found == 0 || len(resp.Results) == 0 {
		c.metrics.GeocodeRequests.WithLabelValues("empty").Inc()
		c.logger.Debug("no geocode match", "address", address)
		return nil, nil
	}

	loc, err := resp.Results[0].coordinates()
	if err != nil {
		c.metrics.GeocodeRequests.WithLabelValues("error").Inc()
		return nil, err
	}
	c.metrics.GeocodeRequests.WithLabelValues("match").Inc()
	return loc, nil
}

// OneMap search response types.

type searchResponse struct {
	Found      int            `json:"found"`
	TotalPages int            `json:"totalNumPages"`
	PageNum    int            `json:"pageNum"`
	Results    []searchResult `json:"results"`
}

type searchResult struct {
	SearchValue string `json:"SEARCHVAL"`
	BlockNumber string `json:"BLK_NO"`
	RoadName    string `json:"ROAD_NAME"`
	Postal      string `json:"POSTAL"`
	Latitude    string `json:"LATITUDE"`
	Longitude   string `json:"LONGITUDE"`
}

func (r searchResult) coordinates() (*domain.Coordinates, error) {
	lat, err := strconv.ParseFloat(r.Latitude, 64)
	if err != nil {
		return nil, fmt.Errorf("parse LATITUDE %q: %w", r.Latitude, err)
	}
	lon, err := strconv.ParseFloat(r.Longitude, 64)
	if err != nil {
		return nil, fmt.Errorf("parse LONGITUDE %q: %w", r.Longitude, err)
	}
	return &domain.Coordinates{Lat: lat, Lon: lon}, nil
}
