package models

import (
	"encoding/json"
	"strconv"
)

// Listing is one unit for sale or lease as returned by the article list endpoint.
// Price and area stay as the upstream text; numeric interpretation happens downstream.
type Listing struct {
	ID           string          `json:"id" db:"id"`
	BuildingName string          `json:"building_name" db:"building_name"`
	Unit         string          `json:"unit" db:"unit"`
	PropertyType string          `json:"property_type" db:"property_type"`
	TradeType    string          `json:"trade_type" db:"trade_type"`
	PropertyCode string          `json:"property_code" db:"property_code"` // rletTpCd
	TradeCode    string          `json:"trade_code" db:"trade_code"`       // tradTpCd
	Price        string          `json:"price" db:"price"`
	Area         string          `json:"area" db:"area"` // square meters
	Floor        string          `json:"floor" db:"floor"`
	Direction    string          `json:"direction" db:"direction"`
	Broker       string          `json:"broker" db:"broker"`
	DirectTrade  bool            `json:"direct_trade" db:"direct_trade"`
	ConfirmedAt  string          `json:"confirmed_at" db:"confirmed_at"`
	Features     string          `json:"features" db:"features"`
	Lat          float64         `json:"lat" db:"lat"`
	Lon          float64         `json:"lon" db:"lon"`
	ImageURL     string          `json:"image_url" db:"image_url"`
	Raw          json.RawMessage `json:"raw,omitempty" db:"raw"`
}

// Column pairs an upstream article key with its table header.
type Column struct {
	Key    string
	Header string
}

// ListingColumns is the fixed column mapping used when listings are turned into a table.
var ListingColumns = []Column{
	{"atclNo", "매물ID"},
	{"atclNm", "단지/건물명"},
	{"bildNm", "동/호"},
	{"rletTpNm", "매물유형"},
	{"tradTpNm", "거래유형"},
	{"hanPrc", "가격"},
	{"spc2", "면적(㎡)"},
	{"flrInfo", "층"},
	{"direction", "방향"},
	{"rltrNm", "중개사"},
	{"directTradYn", "직거래"},
	{"atclCfmYmd", "확인일"},
	{"atclFetrDesc", "특징"},
	{"lat", "lat"},
	{"lng", "lng"},
}

// Headers returns the table headers in column order.
func Headers() []string {
	headers := make([]string, len(ListingColumns))
	for i, c := range ListingColumns {
		headers[i] = c.Header
	}
	return headers
}

// Row renders the listing as strings in ListingColumns order.
func (l Listing) Row() []string {
	direct := "N"
	if l.DirectTrade {
		direct = "Y"
	}
	return []string{
		l.ID,
		l.BuildingName,
		l.Unit,
		l.PropertyType,
		l.TradeType,
		l.Price,
		l.Area,
		l.Floor,
		l.Direction,
		l.Broker,
		direct,
		l.ConfirmedAt,
		l.Features,
		formatCoord(l.Lat),
		formatCoord(l.Lon),
	}
}

func formatCoord(v float64) string {
	if v == 0 {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
