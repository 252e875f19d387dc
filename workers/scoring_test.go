package workers

import (
	"context"
	"errors"
	"testing"

	"landscout/enrichment"
	"landscout/kakao"
	"landscout/models"
)

type fixedPlaces struct{ n int }

func (p fixedPlaces) CountNearby(context.Context, kakao.Category, kakao.Place) int { return p.n }

func (p fixedPlaces) Geocode(context.Context, string) (float64, float64, bool) {
	return 37.5, 127.0, true
}

type fakeSource struct {
	regions []models.AdminRegion
	err     error
}

func (s fakeSource) BasicRegions(context.Context) ([]models.AdminRegion, error) {
	return s.regions, s.err
}

type fakeScoreMirror struct{ got []string }

func (m *fakeScoreMirror) UpsertRegionScore(_ context.Context, s *models.RegionScore) error {
	m.got = append(m.got, s.RegionCode)
	return nil
}

func TestScoringWorkerScoresCatalogue(t *testing.T) {
	store := newStore(t)
	source := fakeSource{regions: []models.AdminRegion{
		{Code: "1168000000", Name: "서울특별시 강남구"},
		{Code: "1171000000", Name: "서울특별시 송파구"},
	}}
	scorer := enrichment.NewScorer(fixedPlaces{n: 2}, []kakao.Category{{Key: "school", Keyword: "초등학교"}, {Key: "cafe", Keyword: "카페"}})
	mirror := &fakeScoreMirror{}

	w := NewScoringWorker(scorer, source, store, 2)
	w.SetMirror(mirror)
	n, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if n != 2 || len(mirror.got) != 2 {
		t.Fatalf("stored=%d mirrored=%v", n, mirror.got)
	}

	scores, _ := store.GetRegionScores()
	if len(scores) != 2 || scores[0].Total != 4 {
		t.Fatalf("scores = %+v", scores)
	}
	regions, _ := store.GetAdminRegions()
	if len(regions) != 2 {
		t.Fatalf("catalogue not stored: %v", regions)
	}
}

func TestScoringWorkerFallsBackToStoredRegions(t *testing.T) {
	store := newStore(t)
	store.ReplaceAdminRegions([]models.AdminRegion{{Code: "4113500000", Name: "경기도 성남시 분당구"}})

	scorer := enrichment.NewScorer(fixedPlaces{n: 1}, []kakao.Category{{Key: "park", Keyword: "공원"}})
	w := NewScoringWorker(scorer, fakeSource{err: errors.New("portal down")}, store, 0)

	n, err := w.RunOnce(context.Background())
	if err != nil || n != 1 {
		t.Fatalf("n=%d err=%v", n, err)
	}
}

func TestScoringWorkerNoRegions(t *testing.T) {
	scorer := enrichment.NewScorer(fixedPlaces{}, nil)
	w := NewScoringWorker(scorer, nil, newStore(t), 1)
	if _, err := w.RunOnce(context.Background()); err == nil {
		t.Fatalf("expected error without regions")
	}
}
