package enrichment

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"landscout/kakao"
	"landscout/models"
)

type fakePlaces struct {
	mu       sync.Mutex
	counts   map[string]int
	coords   map[string][2]float64
	places   []kakao.Place
	inFlight atomic.Int32
	peak     atomic.Int32
	delay    time.Duration
}

func (f *fakePlaces) CountNearby(_ context.Context, cat kakao.Category, place kakao.Place) int {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(f.delay)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.places = append(f.places, place)
	return f.counts[cat.Key]
}

func (f *fakePlaces) Geocode(_ context.Context, address string) (float64, float64, bool) {
	c, ok := f.coords[address]
	return c[0], c[1], ok
}

func TestScoreSumsWeightedCounts(t *testing.T) {
	places := &fakePlaces{
		counts: map[string]int{"school": 3, "subway": 2, "cafe": 10},
		coords: map[string][2]float64{"서울특별시 송파구": {37.5145, 127.1059}},
	}
	cats := []kakao.Category{
		{Key: "school", Keyword: "초등학교", Weight: 2},
		{Key: "subway", Keyword: "지하철역", Weight: 3},
		{Key: "cafe", Keyword: "카페"},
	}

	score := NewScorer(places, cats).Score(context.Background(), models.AdminRegion{Code: "1171000000", Name: "서울특별시 송파구"})

	if score.Total != 3*2+2*3+10 {
		t.Fatalf("expected total 22, got %d", score.Total)
	}
	if score.Counts["cafe"] != 10 || len(score.Counts) != 3 {
		t.Fatalf("unexpected counts %v", score.Counts)
	}
	if score.Lat == nil || *score.Lat != 37.5145 {
		t.Fatalf("expected geocoded latitude, got %v", score.Lat)
	}
	if !places.places[0].HasCoords() {
		t.Fatalf("counts should use coordinates when geocoding succeeds")
	}
}

func TestScoreWithoutCoordinates(t *testing.T) {
	places := &fakePlaces{counts: map[string]int{"park": 4}}

	score := NewScorer(places, nil).Score(context.Background(), models.AdminRegion{Code: "1", Name: "어딘가"})

	if score.Lat != nil || score.Lon != nil {
		t.Fatalf("expected no coordinates")
	}
	if len(score.Counts) != len(Categories) {
		t.Fatalf("expected every default category counted, got %v", score.Counts)
	}
	if score.Total != 4 {
		t.Fatalf("expected total 4, got %d", score.Total)
	}
	if places.places[0].HasCoords() || places.places[0].Name != "어딘가" {
		t.Fatalf("expected keyword form with region name, got %+v", places.places[0])
	}
}

func TestScoreAllBoundedPool(t *testing.T) {
	places := &fakePlaces{counts: map[string]int{"a": 1}, delay: 5 * time.Millisecond}
	scorer := NewScorer(places, []kakao.Category{{Key: "a", Keyword: "a"}})

	var regions []models.AdminRegion
	for i := 0; i < 20; i++ {
		regions = append(regions, models.AdminRegion{Code: string(rune('A' + i)), Name: "r"})
	}

	results := scorer.ScoreAll(context.Background(), regions, 3)

	if len(results) != 20 {
		t.Fatalf("expected 20 results, got %d", len(results))
	}
	if peak := places.peak.Load(); peak > 3 {
		t.Fatalf("pool exceeded 3 workers: peak %d", peak)
	}
	seen := make(map[string]bool)
	for _, r := range results {
		seen[r.RegionCode] = true
	}
	if len(seen) != 20 {
		t.Fatalf("expected every region once, got %d distinct", len(seen))
	}
}

func TestScoreAllCancelled(t *testing.T) {
	places := &fakePlaces{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := NewScorer(places, nil).ScoreAll(ctx, []models.AdminRegion{{Code: "1", Name: "x"}}, 2)
	if len(results) != 0 {
		t.Fatalf("expected no results after cancellation, got %d", len(results))
	}
}
