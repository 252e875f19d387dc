// Package land talks to the mobile real-estate site: region search, map cluster counts
// and the paginated article list.
package land

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"landscout/httputil"
	"landscout/ratelimit"
)

const (
	// PropertyTypes selects every residential and commercial property type.
	PropertyTypes = "OR:APT:JGC:OPST:ABYG:OBYG:VL:YR:DSD:JWJT:SGJT:DDDGG"
	// TradeTypes selects monthly rent, jeonse and short-term lease.
	TradeTypes = "B1:B2:B3"

	DefaultPageSize = 20
	DefaultZoom     = 12
	DefaultDelay    = 800 * time.Millisecond
	// DefaultMaxPages caps a single pagination when the server never clears its more flag.
	DefaultMaxPages = 500

	maxBodyBytes = 8 << 20
)

// Endpoints are the site URLs. Search takes the escaped keyword as a path suffix.
type Endpoints struct {
	Search   string
	Cluster  string
	Articles string
}

var DefaultEndpoints = Endpoints{
	Search:   "https://m.land.naver.com/search/result/",
	Cluster:  "https://m.land.naver.com/cluster/clusterList",
	Articles: "https://m.land.naver.com/cluster/ajax/articleList",
}

// EndpointsFrom applies site-config overrides on top of DefaultEndpoints.
func EndpointsFrom(overrides map[string]string) Endpoints {
	e := DefaultEndpoints
	if v := overrides["search"]; v != "" {
		e.Search = v
	}
	if v := overrides["cluster"]; v != "" {
		e.Cluster = v
	}
	if v := overrides["articles"]; v != "" {
		e.Articles = v
	}
	return e
}

// Options tune a Client. Zero fields take the defaults.
type Options struct {
	Endpoints     Endpoints
	PageSize      int
	Zoom          int
	Deltas        Deltas
	Delay         time.Duration // politeness sleep before each cluster and page call
	MaxPages      int
	PropertyTypes string
	TradeTypes    string
}

// Client issues cluster and article-list requests. One limiter is shared by every
// call the client makes.
type Client struct {
	http    *http.Client
	limiter *ratelimit.Limiter
	opts    Options
}

// NewClient builds a client. A negative Delay disables the politeness sleep.
func NewClient(httpClient *http.Client, limiter *ratelimit.Limiter, opts Options) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	if opts.Endpoints.Search == "" {
		opts.Endpoints.Search = DefaultEndpoints.Search
	}
	if opts.Endpoints.Cluster == "" {
		opts.Endpoints.Cluster = DefaultEndpoints.Cluster
	}
	if opts.Endpoints.Articles == "" {
		opts.Endpoints.Articles = DefaultEndpoints.Articles
	}
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.Zoom <= 0 {
		opts.Zoom = DefaultZoom
	}
	if opts.Deltas.Lat <= 0 || opts.Deltas.Lon <= 0 {
		opts.Deltas = DefaultDeltas
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = DefaultMaxPages
	}
	if opts.Delay == 0 {
		opts.Delay = DefaultDelay
	}
	if opts.PropertyTypes == "" {
		opts.PropertyTypes = PropertyTypes
	}
	if opts.TradeTypes == "" {
		opts.TradeTypes = TradeTypes
	}
	return &Client{http: httpClient, limiter: limiter, opts: opts}
}

// Options returns the effective options after defaults were applied.
func (c *Client) Options() Options {
	return c.opts
}

// pause sleeps for the politeness delay, then waits on the shared limiter.
func (c *Client) pause(ctx context.Context) error {
	if c.opts.Delay > 0 {
		timer := time.NewTimer(c.opts.Delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	if c.limiter != nil {
		return c.limiter.AcquireContext(ctx)
	}
	return nil
}

// get performs a GET and returns the body of a 2xx response.
func (c *Client) get(ctx context.Context, op, endpoint, accept string) (*http.Response, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return nil, nil, &NetworkError{Op: op, Err: err}
	}
	httputil.SetMobileHeaders(req, accept)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, &NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp, nil, &NetworkError{Op: op, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return resp, nil, &NetworkError{Op: op, Err: fmt.Errorf("read body: %w", err)}
	}
	return resp, body, nil
}

// getJSON decodes a 2xx JSON body into v. Undecodable bodies are UpstreamErrors.
func (c *Client) getJSON(ctx context.Context, op, endpoint string, params url.Values, v any) error {
	_, body, err := c.get(ctx, op, endpoint+"?"+params.Encode(), "application/json")
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return &UpstreamError{Op: op, Err: err}
	}
	return nil
}

// areaParams are the filter and window parameters shared by cluster and article calls.
func (c *Client) areaParams(regionID string, lat, lon float64, zoom int) url.Values {
	box := c.opts.Deltas.Bounds(lat, lon, zoom)
	params := url.Values{}
	params.Set("rletTpCd", c.opts.PropertyTypes)
	params.Set("tradTpCd", c.opts.TradeTypes)
	params.Set("z", fmt.Sprint(zoom))
	params.Set("lat", formatFloat(lat))
	params.Set("lon", formatFloat(lon))
	params.Set("btm", formatFloat(box.South))
	params.Set("lft", formatFloat(box.West))
	params.Set("top", formatFloat(box.North))
	params.Set("rgt", formatFloat(box.East))
	params.Set("cortarNo", regionID)
	return params
}
