package httputil

import (
	"crypto/tls"
	"net/http"
	"net/url"
	"time"

	"landscout/config"
)

const (
	MobileUserAgent = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1"
	LandReferer     = "https://m.land.naver.com/"
)

type Clients struct {
	Land  *http.Client // optionally proxied, follows redirects, for the listing site
	API   *http.Client // direct, for Kakao and the public data portal
	Media *http.Client // direct, long timeout for photo downloads
}

func NewClients(cfg *config.Config) *Clients {
	transport := &http.Transport{
		Proxy:             http.ProxyFromEnvironment,
		ForceAttemptHTTP2: false,
		TLSNextProto:      make(map[string]func(string, *tls.Conn) http.RoundTripper),
	}
	if cfg.Proxy.URL != "" {
		if proxyURL, err := url.Parse(cfg.Proxy.URL); err == nil {
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}

	land := &http.Client{
		Timeout:   cfg.Land.Timeout,
		Transport: transport,
	}

	return &Clients{
		Land:  land,
		API:   &http.Client{Timeout: cfg.Kakao.Timeout},
		Media: &http.Client{Timeout: 60 * time.Second},
	}
}

// SetMobileHeaders makes req look like the mobile web client.
func SetMobileHeaders(req *http.Request, accept string) {
	req.Header.Set("User-Agent", MobileUserAgent)
	req.Header.Set("Referer", LandReferer)
	req.Header.Set("Accept-Language", "ko-KR,ko;q=0.9,en-US;q=0.8")
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
}
