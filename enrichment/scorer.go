// Package enrichment scores regions by the amenities around them.
package enrichment

import (
	"context"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"landscout/kakao"
	"landscout/models"
)

// Categories are the amenities counted for every region, each weighted equally.
var Categories = []kakao.Category{
	{Key: "school", Keyword: "초등학교", GroupCode: "SC4", Weight: 1},
	{Key: "subway", Keyword: "지하철역", GroupCode: "SW8", Weight: 1},
	{Key: "hospital", Keyword: "병원", GroupCode: "HP8", Weight: 1},
	{Key: "cafe", Keyword: "카페", GroupCode: "CE7", Weight: 1},
	{Key: "academy", Keyword: "학원", GroupCode: "AC5", Weight: 1},
	{Key: "department", Keyword: "백화점", Weight: 1},
	{Key: "convenience", Keyword: "편의점", GroupCode: "CS2", Weight: 1},
	{Key: "park", Keyword: "공원", Weight: 1},
}

const DefaultWorkers = 5

// Places is the part of the Kakao client the scorer needs.
type Places interface {
	CountNearby(ctx context.Context, cat kakao.Category, place kakao.Place) int
	Geocode(ctx context.Context, address string) (lat, lon float64, ok bool)
}

type Scorer struct {
	places     Places
	categories []kakao.Category
	now        func() time.Time
}

// NewScorer builds a scorer over categories, or Categories when none are given.
func NewScorer(places Places, categories []kakao.Category) *Scorer {
	if len(categories) == 0 {
		categories = Categories
	}
	return &Scorer{places: places, categories: categories, now: time.Now}
}

// Score geocodes the region and counts every category around it. Counts fall back to
// a keyword search on the region name when geocoding finds nothing.
func (s *Scorer) Score(ctx context.Context, region models.AdminRegion) models.RegionScore {
	score := models.RegionScore{
		RegionCode: region.Code,
		RegionName: region.Name,
		Counts:     make(map[string]int, len(s.categories)),
	}

	place := kakao.Place{Name: region.Name}
	if lat, lon, ok := s.places.Geocode(ctx, region.Name); ok {
		place.Lat, place.Lon = lat, lon
		score.Lat, score.Lon = &lat, &lon
	}

	for _, cat := range s.categories {
		if ctx.Err() != nil {
			break
		}
		n := s.places.CountNearby(ctx, cat, place)
		score.Counts[cat.Key] = n
		weight := cat.Weight
		if weight == 0 {
			weight = 1
		}
		score.Total += n * weight
	}

	score.ScoredAt = s.now()
	return score
}

// ScoreAll scores regions on up to workers goroutines. Results arrive in completion
// order; regions not started before ctx is cancelled are skipped.
func (s *Scorer) ScoreAll(ctx context.Context, regions []models.AdminRegion, workers int) []models.RegionScore {
	if workers <= 0 {
		workers = DefaultWorkers
	}

	var (
		mu      sync.Mutex
		results = make([]models.RegionScore, 0, len(regions))
		g       errgroup.Group
	)
	g.SetLimit(workers)

	for _, region := range regions {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			score := s.Score(ctx, region)
			mu.Lock()
			results = append(results, score)
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	log.Printf("Scoring: scored %d/%d regions", len(results), len(regions))
	return results
}
