// Package images resolves listing photo URLs through a cascade of sources of
// decreasing reliability.
package images

import (
	"context"
	"log"
	"net/http"
	"strings"

	"landscout/models"
	"landscout/ratelimit"
)

// Request identifies the listing whose photos are wanted. The type codes are optional
// but enable the basic-info source; Thumbnail, when known, is placed first.
type Request struct {
	ArticleNo    string
	PropertyCode string
	TradeCode    string
	Thumbnail    string
}

// Tier is one image source. Fetch returns nil, nil when the source does not apply
// to the request.
type Tier struct {
	Name  string
	Fetch func(ctx context.Context, req Request) ([]string, error)
}

// FirstNonEmpty runs the tiers in order and returns the first non-empty result along
// with the name of the tier that produced it. Tier errors are logged and skipped.
func FirstNonEmpty(ctx context.Context, req Request, tiers []Tier) (string, []string) {
	for _, tier := range tiers {
		if ctx.Err() != nil {
			return "", nil
		}
		urls, err := tier.Fetch(ctx, req)
		if err != nil {
			log.Printf("Images: %s failed for %s: %v", tier.Name, req.ArticleNo, err)
			continue
		}
		if len(urls) > 0 {
			return tier.Name, urls
		}
	}
	return "", nil
}

// PageFetcher returns the HTML of a page. The default fetches over plain HTTP.
type PageFetcher interface {
	FetchPage(ctx context.Context, pageURL string) (string, error)
}

// Endpoints are URL templates; {id}, {rlet} and {trad} are substituted.
type Endpoints struct {
	Gallery    []string
	BasicInfo  string
	LegacyInfo string
	DetailPage string
}

var DefaultEndpoints = Endpoints{
	Gallery: []string{
		"https://fin.land.naver.com/front-api/v1/article/galleryImages?articleNumber={id}",
		"https://m.land.naver.com/article/galleryImages?articleNo={id}",
	},
	BasicInfo:  "https://fin.land.naver.com/front-api/v1/article/basicInfo?articleId={id}&realEstateType={rlet}&tradeType={trad}",
	LegacyInfo: "https://m.land.naver.com/article/getArticleInfo?atclNo={id}",
	DetailPage: "https://m.land.naver.com/article/info/{id}",
}

// EndpointsFrom applies site-config overrides on top of DefaultEndpoints.
func EndpointsFrom(overrides map[string]string) Endpoints {
	e := DefaultEndpoints
	e.Gallery = append([]string(nil), DefaultEndpoints.Gallery...)
	if v := overrides["gallery"]; v != "" {
		e.Gallery[0] = v
	}
	if v := overrides["gallery_alt"]; v != "" {
		e.Gallery[1] = v
	}
	if v := overrides["basic_info"]; v != "" {
		e.BasicInfo = v
	}
	if v := overrides["legacy_info"]; v != "" {
		e.LegacyInfo = v
	}
	if v := overrides["detail_page"]; v != "" {
		e.DetailPage = v
	}
	return e
}

// Resolver finds photo URLs for a listing. Calls run sequentially; no tier is retried.
type Resolver struct {
	client    *http.Client
	limiter   *ratelimit.Limiter
	endpoints Endpoints
	pages     PageFetcher
	tiers     []Tier
}

// NewResolver builds a resolver with the default cascade: gallery, basic info,
// legacy AJAX, detail page HTML. limiter may be nil.
func NewResolver(client *http.Client, limiter *ratelimit.Limiter, endpoints Endpoints) *Resolver {
	r := &Resolver{
		client:    client,
		limiter:   limiter,
		endpoints: endpoints,
	}
	r.pages = &httpPageFetcher{r: r}
	r.tiers = []Tier{
		{Name: "gallery", Fetch: r.fromGallery},
		{Name: "basic_info", Fetch: r.fromBasicInfo},
		{Name: "legacy_ajax", Fetch: r.fromLegacyInfo},
		{Name: "detail_html", Fetch: r.fromDetailPage},
	}
	return r
}

// SetPageFetcher swaps how the detail page is fetched, e.g. through a headless browser.
func (r *Resolver) SetPageFetcher(f PageFetcher) {
	r.pages = f
}

// Tiers returns the cascade in order.
func (r *Resolver) Tiers() []Tier {
	return r.tiers
}

// SetTiers replaces the cascade.
func (r *Resolver) SetTiers(tiers []Tier) {
	r.tiers = tiers
}

// Resolve returns the listing's photo URLs, de-duplicated and in source priority order.
// An empty result means nothing was found; source failures are never returned.
func (r *Resolver) Resolve(ctx context.Context, req Request) models.ImageURLSet {
	req.ArticleNo = strings.TrimSpace(req.ArticleNo)
	if req.ArticleNo == "" {
		return nil
	}

	tier, found := FirstNonEmpty(ctx, req, r.tiers)

	set := newURLSet()
	if req.Thumbnail != "" {
		set.add(req.Thumbnail)
	}
	for _, u := range found {
		set.add(u)
	}

	if tier != "" {
		log.Printf("Images: %s -> %d urls via %s", req.ArticleNo, len(set.list()), tier)
	}
	return models.ImageURLSet(set.list())
}

func (r *Resolver) expand(tmpl string, req Request) string {
	return strings.NewReplacer(
		"{id}", escape(req.ArticleNo),
		"{rlet}", escape(req.PropertyCode),
		"{trad}", escape(req.TradeCode),
	).Replace(tmpl)
}
