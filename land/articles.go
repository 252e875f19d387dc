package land

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"strings"

	"landscout/images"
	"landscout/models"
)

// Unlimited asks Paginate for everything the server will enumerate.
const Unlimited = math.MaxInt

// ArticlePage is one page of the article list.
type ArticlePage struct {
	Listings []models.Listing
	More     bool
	Page     int
}

type articleResponse struct {
	Code string            `json:"code"`
	Body []json.RawMessage `json:"body"`
	More bool              `json:"more"`
	Page int               `json:"page"`
}

type rawArticle struct {
	AtclNo       flexString `json:"atclNo"`
	AtclNm       flexString `json:"atclNm"`
	BildNm       flexString `json:"bildNm"`
	RletTpNm     flexString `json:"rletTpNm"`
	TradTpNm     flexString `json:"tradTpNm"`
	RletTpCd     flexString `json:"rletTpCd"`
	TradTpCd     flexString `json:"tradTpCd"`
	HanPrc       flexString `json:"hanPrc"`
	Spc2         flexString `json:"spc2"`
	FlrInfo      flexString `json:"flrInfo"`
	Direction    flexString `json:"direction"`
	RltrNm       flexString `json:"rltrNm"`
	DirectTradYn flexString `json:"directTradYn"`
	AtclCfmYmd   flexString `json:"atclCfmYmd"`
	AtclFetrDesc flexString `json:"atclFetrDesc"`
	TagList      []string   `json:"tagList"`
	Lat          flexFloat  `json:"lat"`
	Lng          flexFloat  `json:"lng"`
	RepImgURL    flexString `json:"repImgUrl"`
}

func (a rawArticle) listing(raw json.RawMessage) models.Listing {
	features := string(a.AtclFetrDesc)
	if features == "" && len(a.TagList) > 0 {
		features = strings.Join(a.TagList, ", ")
	}
	var image string
	if a.RepImgURL != "" {
		image = images.Clean(string(a.RepImgURL))
	}
	return models.Listing{
		ID:           string(a.AtclNo),
		BuildingName: string(a.AtclNm),
		Unit:         string(a.BildNm),
		PropertyType: string(a.RletTpNm),
		TradeType:    string(a.TradTpNm),
		PropertyCode: string(a.RletTpCd),
		TradeCode:    string(a.TradTpCd),
		Price:        string(a.HanPrc),
		Area:         string(a.Spc2),
		Floor:        string(a.FlrInfo),
		Direction:    string(a.Direction),
		Broker:       string(a.RltrNm),
		DirectTrade:  strings.EqualFold(string(a.DirectTradYn), "Y"),
		ConfirmedAt:  string(a.AtclCfmYmd),
		Features:     features,
		Lat:          float64(a.Lat),
		Lon:          float64(a.Lng),
		ImageURL:     image,
		Raw:          raw,
	}
}

// ParseArticles converts the article-list body into listings, keeping each record's
// original JSON.
func ParseArticles(body []json.RawMessage) ([]models.Listing, error) {
	listings := make([]models.Listing, 0, len(body))
	for i, raw := range body {
		var a rawArticle
		if err := json.Unmarshal(raw, &a); err != nil {
			return nil, fmt.Errorf("article %d: %w", i, err)
		}
		listings = append(listings, a.listing(raw))
	}
	return listings, nil
}

// FetchArticles requests one page of the article list for the window around (lat, lon).
// total is the cluster estimate, which the endpoint expects echoed back.
func (c *Client) FetchArticles(ctx context.Context, regionID string, lat, lon float64, total, page int) (ArticlePage, error) {
	if err := c.pause(ctx); err != nil {
		return ArticlePage{}, err
	}

	params := c.areaParams(regionID, lat, lon, c.opts.Zoom)
	params.Set("showR0", "")
	params.Set("totCnt", fmt.Sprint(total))
	params.Set("page", fmt.Sprint(page))

	op := fmt.Sprintf("article list page %d", page)
	var resp articleResponse
	if err := c.getJSON(ctx, op, c.opts.Endpoints.Articles, params, &resp); err != nil {
		return ArticlePage{}, err
	}
	if resp.Code != "success" {
		return ArticlePage{}, &UpstreamError{Op: op, Code: resp.Code}
	}

	listings, err := ParseArticles(resp.Body)
	if err != nil {
		return ArticlePage{}, &UpstreamError{Op: op, Err: err}
	}
	if resp.Page == 0 {
		resp.Page = page
	}
	return ArticlePage{Listings: listings, More: resp.More, Page: resp.Page}, nil
}

// PaginateOptions carries the optional caller hooks.
type PaginateOptions struct {
	// OnProgress receives (collected, expected, message) after the cluster count and
	// after every page.
	OnProgress func(current, total int, message string)
	// ShouldCancel is checked once before every page. Returning true ends pagination
	// with the listings collected so far.
	ShouldCancel func() bool
	// OnCluster receives the cluster summary before any page is requested.
	OnCluster func(models.ClusterSummary)
}

// Paginate collects up to limit listings for the region around (lat, lon).
//
// The server's more flag decides when the region is exhausted; the cluster total is
// only an estimate used for progress. The loop also stops at the limit, on an empty
// page, and after Options.MaxPages pages. Any failed request aborts the call and
// discards what was collected.
func (c *Client) Paginate(ctx context.Context, regionID string, lat, lon float64, limit int, opts PaginateOptions) ([]models.Listing, error) {
	if limit < 0 {
		return nil, &ValidationError{Field: "limit", Message: "must not be negative"}
	}
	if strings.TrimSpace(regionID) == "" {
		return nil, &ValidationError{Field: "regionID", Message: "must not be empty"}
	}
	if limit == 0 {
		return []models.Listing{}, nil
	}

	summary, err := c.CountClusters(ctx, regionID, lat, lon, c.opts.Zoom)
	if err != nil {
		return nil, err
	}
	if opts.OnCluster != nil {
		opts.OnCluster(summary)
	}

	total := summary.TotalCount
	expected := min(total, limit)
	report := func(current int, message string) {
		if opts.OnProgress != nil {
			opts.OnProgress(current, expected, message)
		}
	}
	report(0, "매물 목록 조회 중...")

	if total == 0 {
		return []models.Listing{}, nil
	}

	collected := make([]models.Listing, 0, min(expected, 1000))

	for page := 1; page <= c.opts.MaxPages; page++ {
		if opts.ShouldCancel != nil && opts.ShouldCancel() {
			log.Printf("Land: pagination of %s cancelled after %d listings", regionID, len(collected))
			return collected, nil
		}

		result, err := c.FetchArticles(ctx, regionID, lat, lon, total, page)
		if err != nil {
			return nil, err
		}

		collected = append(collected, result.Listings...)
		if len(collected) > limit {
			collected = collected[:limit]
		}
		report(len(collected), fmt.Sprintf("수집 중... (%d/%d)", len(collected), expected))

		if len(collected) >= limit || !result.More {
			return collected, nil
		}
		if len(result.Listings) == 0 {
			log.Printf("Land: %s page %d empty but more=true, stopping", regionID, page)
			return collected, nil
		}
	}

	log.Printf("Land: %s stopped at the %d page cap with %d listings", regionID, c.opts.MaxPages, len(collected))
	return collected, nil
}
