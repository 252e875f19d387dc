package kakao

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"landscout/ratelimit"
)

func loadFixture(t *testing.T, name string) []byte {
	t.Helper()
	path := filepath.Join("testdata", name)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read fixture %s: %v", name, err)
	}
	return data
}

type recorded struct {
	path  string
	query url.Values
	auth  string
}

func newKakao(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) (*httptest.Server, *[]recorded) {
	t.Helper()
	var mu sync.Mutex
	var calls []recorded
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls = append(calls, recorded{path: r.URL.Path, query: r.URL.Query(), auth: r.Header.Get("Authorization")})
		mu.Unlock()
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestCountNearbyCategoryForm(t *testing.T) {
	srv, calls := newKakao(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write(loadFixture(t, "category.json"))
	})
	c := NewClient(srv.Client(), nil, "secret", Options{BaseURL: srv.URL})

	got := c.CountNearby(context.Background(), Category{Key: "subway", Keyword: "지하철역", GroupCode: "SW8"}, Place{Name: "잠실동", Lat: 37.5135, Lon: 127.0863})

	if got != 17 {
		t.Fatalf("expected 17, got %d", got)
	}
	call := (*calls)[0]
	if call.path != "/search/category.json" {
		t.Fatalf("expected category search, got %s", call.path)
	}
	if call.query.Get("category_group_code") != "SW8" || call.query.Get("x") != "127.0863" || call.query.Get("y") != "37.5135" {
		t.Fatalf("unexpected query %v", call.query)
	}
	if call.query.Get("radius") != "2000" || call.query.Get("size") != "1" {
		t.Fatalf("unexpected radius/size %v", call.query)
	}
	if call.auth != "KakaoAK secret" {
		t.Fatalf("unexpected auth header %q", call.auth)
	}
}

func TestCountNearbyKeywordForm(t *testing.T) {
	srv, calls := newKakao(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"documents":[],"meta":{"total_count":42}}`))
	})
	c := NewClient(srv.Client(), nil, "secret", Options{BaseURL: srv.URL})

	got := c.CountNearby(context.Background(), Category{Key: "park", Keyword: "공원"}, Place{Name: "서울특별시 송파구"})

	if got != 42 {
		t.Fatalf("expected 42, got %d", got)
	}
	call := (*calls)[0]
	if call.path != "/search/keyword.json" || call.query.Get("query") != "서울특별시 송파구 공원" {
		t.Fatalf("unexpected keyword call %s %v", call.path, call.query)
	}
	if call.query.Get("x") != "" {
		t.Fatalf("keyword form without coordinates must not send x")
	}
}

func TestCountNearbyKeywordWithCoords(t *testing.T) {
	srv, calls := newKakao(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"meta":{"total_count":3}}`))
	})
	c := NewClient(srv.Client(), nil, "secret", Options{BaseURL: srv.URL, RadiusM: 500})

	got := c.CountNearby(context.Background(), Category{Key: "park", Keyword: "공원"}, Place{Name: "잠실동", Lat: 37.5, Lon: 127.1})

	if got != 3 {
		t.Fatalf("expected 3, got %d", got)
	}
	call := (*calls)[0]
	if call.query.Get("query") != "공원" || call.query.Get("radius") != "500" {
		t.Fatalf("unexpected query %v", call.query)
	}
}

func TestCountNearbyFailuresAreZero(t *testing.T) {
	cases := map[string]func(w http.ResponseWriter, r *http.Request){
		"status": func(w http.ResponseWriter, r *http.Request) { http.Error(w, "quota", http.StatusTooManyRequests) },
		"decode": func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(`<html>`)) },
	}
	for name, h := range cases {
		srv, _ := newKakao(t, h)
		c := NewClient(srv.Client(), nil, "secret", Options{BaseURL: srv.URL})
		if got := c.CountNearby(context.Background(), Category{Keyword: "카페", GroupCode: "CE7"}, Place{Name: "x", Lat: 1, Lon: 1}); got != 0 {
			t.Fatalf("%s: expected 0, got %d", name, got)
		}
	}

	c := NewClient(nil, nil, "secret", Options{BaseURL: "http://127.0.0.1:1"})
	if got := c.CountNearby(context.Background(), Category{Keyword: "카페"}, Place{Name: "x"}); got != 0 {
		t.Fatalf("transport failure: expected 0, got %d", got)
	}
}

func TestNoAPIKeySkipsNetwork(t *testing.T) {
	srv, calls := newKakao(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write(loadFixture(t, "address.json"))
	})
	c := NewClient(srv.Client(), nil, "", Options{BaseURL: srv.URL})

	if c.CountNearby(context.Background(), Category{Keyword: "카페"}, Place{Name: "x"}) != 0 {
		t.Fatalf("expected 0 without key")
	}
	if _, _, ok := c.Geocode(context.Background(), "잠실동"); ok {
		t.Fatalf("expected no coordinates without key")
	}
	if len(*calls) != 0 {
		t.Fatalf("no request expected without key")
	}
}

func TestGeocode(t *testing.T) {
	srv, calls := newKakao(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write(loadFixture(t, "address.json"))
	})
	c := NewClient(srv.Client(), nil, "secret", Options{BaseURL: srv.URL})

	lat, lon, ok := c.Geocode(context.Background(), "서울 송파구 잠실동")
	if !ok || lat != 37.5135 || lon != 127.0863 {
		t.Fatalf("unexpected result %v %v %v", lat, lon, ok)
	}
	if (*calls)[0].path != "/search/address.json" || (*calls)[0].query.Get("query") != "서울 송파구 잠실동" {
		t.Fatalf("unexpected call %+v", (*calls)[0])
	}
}

func TestGeocodeNoMatch(t *testing.T) {
	srv, _ := newKakao(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"documents":[],"meta":{"total_count":0}}`))
	})
	c := NewClient(srv.Client(), nil, "secret", Options{BaseURL: srv.URL})

	if _, _, ok := c.Geocode(context.Background(), "없는주소"); ok {
		t.Fatalf("expected no match")
	}
}

func TestCallsShareLimiter(t *testing.T) {
	srv, _ := newKakao(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"meta":{"total_count":1}}`))
	})
	limiter := ratelimit.New(20 * time.Millisecond)
	c := NewClient(srv.Client(), limiter, "secret", Options{BaseURL: srv.URL})

	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.CountNearby(context.Background(), Category{Keyword: "카페"}, Place{Name: "x"})
		}()
	}
	wg.Wait()

	if elapsed := time.Since(start); elapsed < 60*time.Millisecond {
		t.Fatalf("4 calls at 20ms spacing finished in %v", elapsed)
	}
}
