package images

import (
	"net/url"
	"path"
	"regexp"
	"strings"
)

// DefaultImageHost is prefixed to root-relative image paths.
const DefaultImageHost = "https://landthumb-phinf.pstatic.net"

var (
	// chromeMarkers identify UI images (sprites, icons, placeholders) rather than photos.
	chromeMarkers = []string{"sprite", "icon", "logo", "loading", "openhand", "sp_2x"}

	staticHosts = []string{
		"landthumb-phinf.pstatic.net",
		"ldb-phinf.pstatic.net",
		"land-phinf.pstatic.net",
		"phinf.pstatic.net",
		"phinf.naver.net",
	}

	// thumbnailHosts serve resized renditions selected by the type/udate parameters.
	thumbnailHosts = []string{
		"landthumb-phinf.pstatic.net",
		"ldb-phinf.pstatic.net",
	}

	imageExts = []string{".jpg", ".jpeg", ".png", ".gif", ".webp", ".bmp"}

	// uploadFilePattern matches the upload naming used by listing photos,
	// e.g. /20240105_12/1704441234567abcD_JPEG/ or .../upload/...
	uploadFilePattern = regexp.MustCompile(`(?i)/\d{8}_\d+/|/upload/|_(?:JPEG|PNG|GIF)(?:/|$)`)
)

// IsPhoto reports whether an absolute or relative URL looks like a listing photo
// rather than page chrome.
func IsPhoto(raw string) bool {
	if raw == "" {
		return false
	}
	lower := strings.ToLower(raw)
	for _, marker := range chromeMarkers {
		if strings.Contains(lower, marker) {
			return false
		}
	}
	if isStaticHost(hostOf(raw)) {
		return true
	}
	if uploadFilePattern.MatchString(raw) {
		return true
	}
	return hasImageExt(raw)
}

// Normalize makes protocol-relative and root-relative URLs absolute.
func Normalize(raw string) string {
	raw = strings.TrimSpace(raw)
	raw = strings.ReplaceAll(raw, `\/`, "/")
	switch {
	case raw == "":
		return ""
	case strings.HasPrefix(raw, "//"):
		return "https:" + raw
	case strings.HasPrefix(raw, "/"):
		return DefaultImageHost + raw
	}
	return raw
}

// FullSize strips the thumbnail size and cache-bust parameters (type, udate) from
// thumbnail-host URLs, keeping the rest of the query in its original order.
// Applying it twice gives the same result as applying it once.
func FullSize(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.RawQuery == "" || !isThumbnailHost(u.Hostname()) {
		return raw
	}

	var kept []string
	for _, pair := range strings.Split(u.RawQuery, "&") {
		if pair == "" {
			continue
		}
		key := pair
		if i := strings.IndexByte(pair, '='); i >= 0 {
			key = pair[:i]
		}
		if key == "type" || key == "udate" {
			continue
		}
		kept = append(kept, pair)
	}
	u.RawQuery = strings.Join(kept, "&")
	u.ForceQuery = false
	return u.String()
}

// Clean is Normalize followed by FullSize.
func Clean(raw string) string {
	return FullSize(Normalize(raw))
}

func hostOf(raw string) string {
	u, err := url.Parse(Normalize(raw))
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

func isStaticHost(host string) bool {
	for _, h := range staticHosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

func isThumbnailHost(host string) bool {
	host = strings.ToLower(host)
	for _, h := range thumbnailHosts {
		if host == h {
			return true
		}
	}
	return false
}

func hasImageExt(raw string) bool {
	p := raw
	if u, err := url.Parse(raw); err == nil {
		p = u.Path
	}
	ext := strings.ToLower(path.Ext(p))
	for _, e := range imageExts {
		if ext == e {
			return true
		}
	}
	return false
}

// urlSet is an ordered set of cleaned photo URLs.
type urlSet struct {
	seen map[string]struct{}
	urls []string
}

func newURLSet() *urlSet {
	return &urlSet{seen: make(map[string]struct{})}
}

// isAbsolute reports whether raw is an http(s) URL with a host.
func isAbsolute(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

// add cleans raw and keeps it if it is an absolute photo URL not seen before.
// Bare file names cannot be resolved against any host and are dropped.
func (s *urlSet) add(raw string) bool {
	cleaned := Clean(raw)
	if cleaned == "" || !isAbsolute(cleaned) || !IsPhoto(cleaned) {
		return false
	}
	if _, ok := s.seen[cleaned]; ok {
		return false
	}
	s.seen[cleaned] = struct{}{}
	s.urls = append(s.urls, cleaned)
	return true
}

func (s *urlSet) list() []string {
	return s.urls
}
