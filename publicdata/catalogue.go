// Package publicdata fetches the national administrative region code catalogue from
// the public data portal.
package publicdata

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"landscout/models"
	"landscout/ratelimit"
)

const (
	DefaultEndpoint = "http://apis.data.go.kr/1741000/StanReginCd/getStanReginCdList"
	DefaultPageSize = 1000

	// maxPages caps the walk; the whole catalogue is ~50 pages at 1000 rows.
	maxPages = 200
)

// Row is one catalogue entry.
type Row struct {
	RegionCode string `json:"region_cd"`
	Name       string `json:"locatadd_nm"`
	Flag       string `json:"flag"`
	SidoCode   string `json:"sido_cd"`
	SggCode    string `json:"sgg_cd"`
}

type catalogueResponse struct {
	StanReginCd []struct {
		Row []Row `json:"row"`
	} `json:"StanReginCd"`
}

type Client struct {
	http       *http.Client
	limiter    *ratelimit.Limiter
	serviceKey string
	endpoint   string
	pageSize   int
}

func NewClient(httpClient *http.Client, limiter *ratelimit.Limiter, serviceKey string) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		http:       httpClient,
		limiter:    limiter,
		serviceKey: serviceKey,
		endpoint:   DefaultEndpoint,
		pageSize:   DefaultPageSize,
	}
}

// SetEndpoint points the client at another catalogue URL.
func (c *Client) SetEndpoint(endpoint string) {
	c.endpoint = endpoint
}

// FetchAll walks the catalogue page by page until a page comes back empty.
func (c *Client) FetchAll(ctx context.Context) ([]Row, error) {
	if c.serviceKey == "" {
		return nil, fmt.Errorf("service key not configured")
	}

	var all []Row
	for page := 1; page <= maxPages; page++ {
		rows, err := c.fetchPage(ctx, page)
		if err != nil {
			if len(all) == 0 {
				return nil, err
			}
			log.Printf("PublicData: stopping at page %d: %v", page, err)
			break
		}
		if len(rows) == 0 {
			break
		}
		all = append(all, rows...)
	}
	return all, nil
}

// BasicRegions returns the active city/county/district level regions: codes ending in
// 00000 that are not province codes (ending in 00000000).
func (c *Client) BasicRegions(ctx context.Context) ([]models.AdminRegion, error) {
	rows, err := c.FetchAll(ctx)
	if err != nil {
		return nil, err
	}
	regions := FilterBasic(rows)
	log.Printf("PublicData: %d basic regions out of %d rows", len(regions), len(rows))
	return regions, nil
}

// FilterBasic keeps active basic local government rows.
func FilterBasic(rows []Row) []models.AdminRegion {
	var out []models.AdminRegion
	for _, r := range rows {
		if r.Flag != "Y" {
			continue
		}
		code := strings.TrimSpace(r.RegionCode)
		if !strings.HasSuffix(code, "00000") || strings.HasSuffix(code, "00000000") {
			continue
		}
		out = append(out, models.AdminRegion{Code: code, Name: strings.TrimSpace(r.Name)})
	}
	return out
}

func (c *Client) fetchPage(ctx context.Context, page int) ([]Row, error) {
	if c.limiter != nil {
		if err := c.limiter.AcquireContext(ctx); err != nil {
			return nil, err
		}
	}

	params := url.Values{}
	params.Set("serviceKey", c.serviceKey)
	params.Set("pageNo", strconv.Itoa(page))
	params.Set("numOfRows", strconv.Itoa(c.pageSize))
	params.Set("type", "json")

	req, err := http.NewRequestWithContext(ctx, "GET", c.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch page %d: %w", page, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch page %d: unexpected status %d", page, resp.StatusCode)
	}

	var body catalogueResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode page %d: %w", page, err)
	}
	if len(body.StanReginCd) < 2 {
		return nil, nil
	}
	return body.StanReginCd[1].Row, nil
}
