package land

import (
	"context"
	"log"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"landscout/config"
	"landscout/models"
)

var (
	regionIDPattern = regexp.MustCompile(`cortarNo["']?\s*[:=]\s*["']?(\d+)`)
	latPattern      = regexp.MustCompile(`lat["']?\s*[:=]\s*["']?([0-9.]+)`)
	lonPattern      = regexp.MustCompile(`lon["']?\s*[:=]\s*["']?([0-9.]+)`)
)

// KnownRegions is a static region table consulted before searching.
type KnownRegions interface {
	Lookup(keyword string) (config.Region, bool)
}

// RegionResolver turns free text or a region code into a RegionQuery.
type RegionResolver struct {
	client *Client
	known  KnownRegions
}

// NewRegionResolver builds a resolver. known may be nil.
func NewRegionResolver(client *Client, known KnownRegions) *RegionResolver {
	return &RegionResolver{client: client, known: known}
}

// Resolve looks the keyword up in the known-region table, then falls back to the site
// search: the redirect target's query parameters first, the page markup second.
func (r *RegionResolver) Resolve(ctx context.Context, keyword string) (models.RegionQuery, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return models.RegionQuery{}, &ValidationError{Field: "keyword", Message: "must not be empty"}
	}

	if r.known != nil {
		if region, ok := r.known.Lookup(keyword); ok && region.Code != "" && (region.Lat != 0 || region.Lon != 0) {
			name := region.Label
			if name == "" {
				name = keyword
			}
			return models.RegionQuery{RegionID: region.Code, Lat: region.Lat, Lon: region.Lon, DisplayName: name}, nil
		}
	}

	if r.client.limiter != nil {
		if err := r.client.limiter.AcquireContext(ctx); err != nil {
			return models.RegionQuery{}, err
		}
	}

	endpoint := r.client.opts.Endpoints.Search + url.PathEscape(keyword)
	resp, body, err := r.client.get(ctx, "region search", endpoint, "text/html,application/json")
	if err != nil {
		return models.RegionQuery{}, err
	}

	if q, ok := fromQuery(resp.Request.URL); ok {
		q.DisplayName = keyword
		return q, nil
	}
	if q, ok := fromMarkup(string(body)); ok {
		q.DisplayName = keyword
		log.Printf("Land: resolved %q from page markup", keyword)
		return q, nil
	}
	return models.RegionQuery{}, &ResolutionError{Keyword: keyword}
}

func fromQuery(u *url.URL) (models.RegionQuery, bool) {
	if u == nil {
		return models.RegionQuery{}, false
	}
	q := u.Query()
	return buildQuery(q.Get("cortarNo"), q.Get("lat"), q.Get("lon"))
}

func fromMarkup(body string) (models.RegionQuery, bool) {
	return buildQuery(firstGroup(regionIDPattern, body), firstGroup(latPattern, body), firstGroup(lonPattern, body))
}

func firstGroup(re *regexp.Regexp, s string) string {
	if m := re.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return ""
}

func buildQuery(regionID, lat, lon string) (models.RegionQuery, bool) {
	if regionID == "" || lat == "" || lon == "" {
		return models.RegionQuery{}, false
	}
	la, err := strconv.ParseFloat(lat, 64)
	if err != nil {
		return models.RegionQuery{}, false
	}
	lo, err := strconv.ParseFloat(lon, 64)
	if err != nil {
		return models.RegionQuery{}, false
	}
	return models.RegionQuery{RegionID: regionID, Lat: la, Lon: lo}, true
}
