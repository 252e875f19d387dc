package land

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
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

func clusterJSON(counts ...int) string {
	entries := make([]string, len(counts))
	for i, c := range counts {
		if c < 0 {
			entries[i] = `{"lgeo":"x"}`
			continue
		}
		entries[i] = fmt.Sprintf(`{"count":%d}`, c)
	}
	return `{"code":"success","data":{"ARTICLE":[` + strings.Join(entries, ",") + `]}}`
}

// fakeSite stands in for the listing site. Articles are numbered 1..available and
// served pageSize at a time.
type fakeSite struct {
	mu         sync.Mutex
	cluster    string
	available  int
	pageSize   int
	alwaysMore bool
	failPage   int
	maxPages   int
	emptyFrom  int
	pages      []int
	hits       map[string]int
	queries    map[string][]string
	search     http.HandlerFunc
	srv        *httptest.Server
}

func newFakeSite(t *testing.T, cluster string, available int) *fakeSite {
	t.Helper()
	f := &fakeSite{
		cluster:   cluster,
		available: available,
		pageSize:  DefaultPageSize,
		hits:      make(map[string]int),
		queries:   make(map[string][]string),
	}
	f.srv = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeSite) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := r.URL.Path
	if strings.HasPrefix(path, "/search/result/") {
		f.hits["/search"]++
		if f.search != nil {
			f.search(w, r)
			return
		}
		http.NotFound(w, r)
		return
	}

	f.hits[path]++
	f.queries[path] = append(f.queries[path], r.URL.RawQuery)

	switch path {
	case "/cluster":
		w.Write([]byte(f.cluster))
	case "/map":
		w.Write([]byte(`<html><body>map</body></html>`))
	case "/articles":
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		f.pages = append(f.pages, page)
		if page == f.failPage {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		w.Write([]byte(f.articlePage(page)))
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeSite) articlePage(page int) string {
	if f.emptyFrom > 0 && page >= f.emptyFrom {
		return fmt.Sprintf(`{"code":"success","body":[],"more":true,"page":%d}`, page)
	}
	start := (page - 1) * f.pageSize
	end := min(start+f.pageSize, f.available)
	var items []string
	for i := start; i < end; i++ {
		items = append(items, fmt.Sprintf(`{"atclNo":"%d","atclNm":"건물%d","lat":37.5,"lng":127.0}`, i+1, i+1))
	}
	more := end < f.available || f.alwaysMore
	return fmt.Sprintf(`{"code":"success","body":[%s],"more":%t,"page":%d}`, strings.Join(items, ","), more, page)
}

func (f *fakeSite) count(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[path]
}

func (f *fakeSite) requestedPages() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.pages...)
}

func (f *fakeSite) client() *Client {
	return NewClient(f.srv.Client(), nil, Options{
		Endpoints: Endpoints{
			Search:   f.srv.URL + "/search/result/",
			Cluster:  f.srv.URL + "/cluster",
			Articles: f.srv.URL + "/articles",
		},
		Delay:    -1,
		MaxPages: f.maxPages,
	})
}
