package land

import (
	"context"
	"encoding/json"
	"strconv"

	"landscout/models"
)

type clusterResponse struct {
	Code string `json:"code"`
	Data struct {
		Article []clusterEntry `json:"ARTICLE"`
		Cortar  struct {
			Detail struct {
				RegionName string `json:"regionName"`
			} `json:"detail"`
		} `json:"cortar"`
	} `json:"data"`
}

type clusterEntry struct {
	Count *int `json:"count"`
}

// CountClusters sums the listing counts of every map cluster in the window around
// (lat, lon). A cluster without a count represents one listing. The total is an
// estimate; the article list's more flag is authoritative for enumeration.
func (c *Client) CountClusters(ctx context.Context, regionID string, lat, lon float64, zoom int) (models.ClusterSummary, error) {
	if regionID == "" {
		return models.ClusterSummary{}, &ValidationError{Field: "regionID", Message: "must not be empty"}
	}
	if zoom <= 0 {
		zoom = c.opts.Zoom
	}
	if err := c.pause(ctx); err != nil {
		return models.ClusterSummary{}, err
	}

	params := c.areaParams(regionID, lat, lon, zoom)
	params.Set("view", "atcl")
	params.Set("pCortarNo", "")

	var resp clusterResponse
	if err := c.getJSON(ctx, "cluster list", c.opts.Endpoints.Cluster, params, &resp); err != nil {
		return models.ClusterSummary{}, err
	}
	if resp.Code != "success" {
		return models.ClusterSummary{}, &UpstreamError{Op: "cluster list", Code: resp.Code}
	}

	return models.ClusterSummary{
		TotalCount: sumClusters(resp.Data.Article),
		RegionName: resp.Data.Cortar.Detail.RegionName,
		BBox:       c.opts.Deltas.Bounds(lat, lon, zoom),
	}, nil
}

func sumClusters(entries []clusterEntry) int {
	total := 0
	for _, e := range entries {
		if e.Count == nil {
			total++
			continue
		}
		total += *e.Count
	}
	return total
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// flexString accepts a JSON string or number.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// flexFloat accepts a JSON number or a numeric string.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err == nil {
		*f = flexFloat(v)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*f = flexFloat(v)
	return nil
}
