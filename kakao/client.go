// Package kakao wraps the Kakao Local API for amenity counts and address geocoding.
// Every call is best effort: failures come back as zero counts or no coordinates.
package kakao

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"landscout/ratelimit"
)

const (
	DefaultBaseURL = "https://dapi.kakao.com/v2/local"
	DefaultRadiusM = 2000
)

// Category is one amenity kind. GroupCode is Kakao's category_group_code; when empty
// the Keyword is searched instead.
type Category struct {
	Key       string
	Keyword   string
	GroupCode string
	Weight    int
}

// Place is where amenities are counted. Name is used for keyword searches; coordinates,
// when set, scope the search to a radius around them.
type Place struct {
	Name string
	Lat  float64
	Lon  float64
}

func (p Place) HasCoords() bool {
	return p.Lat != 0 || p.Lon != 0
}

type Options struct {
	BaseURL string
	RadiusM int
}

type Client struct {
	http    *http.Client
	limiter *ratelimit.Limiter
	apiKey  string
	baseURL string
	radius  int
}

// NewClient builds a client. Without an API key every call returns the empty answer
// without touching the network.
func NewClient(httpClient *http.Client, limiter *ratelimit.Limiter, apiKey string, opts Options) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Second}
	}
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.RadiusM <= 0 {
		opts.RadiusM = DefaultRadiusM
	}
	return &Client{
		http:    httpClient,
		limiter: limiter,
		apiKey:  apiKey,
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		radius:  opts.RadiusM,
	}
}

func (c *Client) Enabled() bool {
	return c.apiKey != ""
}

type searchResponse struct {
	Meta struct {
		TotalCount int `json:"total_count"`
	} `json:"meta"`
	Documents []struct {
		X string `json:"x"`
		Y string `json:"y"`
	} `json:"documents"`
}

// CountNearby returns how many places of the category exist at place. With coordinates
// and a group code it uses the category search within the radius; with coordinates only
// it searches the keyword within the radius; otherwise it searches "{place} {keyword}".
func (c *Client) CountNearby(ctx context.Context, cat Category, place Place) int {
	if !c.Enabled() {
		return 0
	}

	params := url.Values{}
	params.Set("size", "1")
	endpoint := "/search/keyword.json"
	switch {
	case place.HasCoords() && cat.GroupCode != "":
		endpoint = "/search/category.json"
		params.Set("category_group_code", cat.GroupCode)
		c.setArea(params, place)
	case place.HasCoords():
		params.Set("query", cat.Keyword)
		c.setArea(params, place)
	default:
		params.Set("query", strings.TrimSpace(place.Name+" "+cat.Keyword))
	}

	var resp searchResponse
	if err := c.get(ctx, endpoint, params, &resp); err != nil {
		log.Printf("Kakao: count %s at %s failed: %v", cat.Key, place.Name, err)
		return 0
	}
	return resp.Meta.TotalCount
}

// Geocode returns the coordinates of the best match for address.
func (c *Client) Geocode(ctx context.Context, address string) (lat, lon float64, ok bool) {
	address = strings.TrimSpace(address)
	if !c.Enabled() || address == "" {
		return 0, 0, false
	}

	params := url.Values{}
	params.Set("query", address)

	var resp searchResponse
	if err := c.get(ctx, "/search/address.json", params, &resp); err != nil {
		log.Printf("Kakao: geocode %s failed: %v", address, err)
		return 0, 0, false
	}
	if len(resp.Documents) == 0 {
		return 0, 0, false
	}

	doc := resp.Documents[0]
	lat, errLat := strconv.ParseFloat(doc.Y, 64)
	lon, errLon := strconv.ParseFloat(doc.X, 64)
	if errLat != nil || errLon != nil {
		return 0, 0, false
	}
	return lat, lon, true
}

func (c *Client) setArea(params url.Values, place Place) {
	params.Set("x", strconv.FormatFloat(place.Lon, 'f', -1, 64))
	params.Set("y", strconv.FormatFloat(place.Lat, 'f', -1, 64))
	params.Set("radius", strconv.Itoa(c.radius))
}

func (c *Client) get(ctx context.Context, endpoint string, params url.Values, v any) error {
	if c.limiter != nil {
		if err := c.limiter.AcquireContext(ctx); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "KakaoAK "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}
