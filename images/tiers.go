package images

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"landscout/httputil"
)

const maxBodyBytes = 4 << 20

var (
	legacyArrayKeys = []string{"imageList", "imgList", "images", "photoList", "atclImgList"}

	// hostedURLPattern finds absolute or protocol-relative URLs on the image hosts.
	hostedURLPattern = regexp.MustCompile(`(?i)(?:https?:)?//[a-z0-9.-]*(?:pstatic\.net|phinf\.naver\.net)/[^\s"'<>()\\]+`)

	// uploadPathPattern finds root-relative upload paths embedded in markup or scripts.
	uploadPathPattern = regexp.MustCompile(`(?i)["'(](/\d{8}_\d+/[^\s"'<>()\\]+)`)
)

func escape(s string) string {
	return url.QueryEscape(s)
}

func (r *Resolver) fromGallery(ctx context.Context, req Request) ([]string, error) {
	var lastErr error
	variants := r.endpoints.Gallery
	if len(variants) > 2 {
		variants = variants[:2]
	}
	for _, tmpl := range variants {
		if tmpl == "" {
			continue
		}
		var resp struct {
			Result []json.RawMessage `json:"result"`
		}
		if err := r.getJSON(ctx, r.expand(tmpl, req), &resp); err != nil {
			lastErr = err
			continue
		}

		set := newURLSet()
		for _, raw := range resp.Result {
			var item struct {
				ImageURL string `json:"imageUrl"`
				URL      string `json:"url"`
			}
			if err := json.Unmarshal(raw, &item); err != nil {
				var s string
				if json.Unmarshal(raw, &s) == nil {
					set.add(s)
				}
				continue
			}
			set.add(item.ImageURL)
			set.add(item.URL)
		}
		if urls := set.list(); len(urls) > 0 {
			return urls, nil
		}
	}
	return nil, lastErr
}

func (r *Resolver) fromBasicInfo(ctx context.Context, req Request) ([]string, error) {
	if req.PropertyCode == "" || req.TradeCode == "" || r.endpoints.BasicInfo == "" {
		return nil, nil
	}
	var root any
	if err := r.getJSON(ctx, r.expand(r.endpoints.BasicInfo, req), &root); err != nil {
		return nil, err
	}
	if obj, ok := root.(map[string]any); ok {
		if result, ok := obj["result"]; ok {
			root = result
		}
	}
	return CollectImageURLs(root), nil
}

func (r *Resolver) fromLegacyInfo(ctx context.Context, req Request) ([]string, error) {
	if r.endpoints.LegacyInfo == "" {
		return nil, nil
	}
	var root any
	if err := r.getJSON(ctx, r.expand(r.endpoints.LegacyInfo, req), &root); err != nil {
		return nil, err
	}

	if arr := findArray(root, legacyArrayKeys); arr != nil {
		// Every string inside a known image list is a candidate, whatever its key.
		set := newURLSet()
		for _, item := range arr {
			WalkStrings(item, func(_, value string) {
				set.add(value)
			})
		}
		if urls := set.list(); len(urls) > 0 {
			return urls, nil
		}
	}

	if urls := CollectImageURLs(root); len(urls) > 0 {
		return urls, nil
	}

	set := newURLSet()
	WalkStrings(root, func(_, value string) {
		if strings.Contains(value, "<img") || strings.Contains(value, "src=") {
			for _, u := range ExtractFromHTML(value) {
				set.add(u)
			}
		}
	})
	return set.list(), nil
}

func (r *Resolver) fromDetailPage(ctx context.Context, req Request) ([]string, error) {
	if r.endpoints.DetailPage == "" || r.pages == nil {
		return nil, nil
	}
	html, err := r.pages.FetchPage(ctx, r.expand(r.endpoints.DetailPage, req))
	if err != nil {
		return nil, err
	}
	return ExtractFromHTML(html), nil
}

// ExtractFromHTML pulls photo URLs out of markup: img src/data-src attributes, og:image,
// and any URL on the image hosts or matching the upload naming found in the raw text.
func ExtractFromHTML(html string) []string {
	set := newURLSet()
	html = strings.ReplaceAll(html, `\/`, "/")

	if doc, err := goquery.NewDocumentFromReader(strings.NewReader(html)); err == nil {
		doc.Find("img").Each(func(_ int, s *goquery.Selection) {
			for _, attr := range []string{"src", "data-src", "data-lazy-src", "data-original"} {
				if v, ok := s.Attr(attr); ok {
					set.add(v)
				}
			}
		})
		doc.Find("[data-src]").Each(func(_ int, s *goquery.Selection) {
			if v, ok := s.Attr("data-src"); ok {
				set.add(v)
			}
		})
		doc.Find(`meta[property="og:image"]`).Each(func(_ int, s *goquery.Selection) {
			if v, ok := s.Attr("content"); ok {
				set.add(v)
			}
		})
	}

	for _, m := range hostedURLPattern.FindAllString(html, -1) {
		set.add(m)
	}
	for _, m := range uploadPathPattern.FindAllStringSubmatch(html, -1) {
		set.add(m[1])
	}

	return set.list()
}

func (r *Resolver) getJSON(ctx context.Context, endpoint string, v any) error {
	body, err := r.get(ctx, endpoint, "application/json")
	if err != nil {
		return err
	}
	defer body.Close()

	if err := json.NewDecoder(io.LimitReader(body, maxBodyBytes)).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", endpoint, err)
	}
	return nil
}

func (r *Resolver) get(ctx context.Context, endpoint, accept string) (io.ReadCloser, error) {
	if r.limiter != nil {
		if err := r.limiter.AcquireContext(ctx); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httputil.SetMobileHeaders(req, accept)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
	return resp.Body, nil
}

type httpPageFetcher struct {
	r *Resolver
}

func (f *httpPageFetcher) FetchPage(ctx context.Context, pageURL string) (string, error) {
	body, err := f.r.get(ctx, pageURL, "text/html,application/xhtml+xml")
	if err != nil {
		return "", err
	}
	defer body.Close()

	data, err := io.ReadAll(io.LimitReader(body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	return string(data), nil
}
