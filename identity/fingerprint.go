package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"landscout/models"
)

var (
	// Applied in order; longer forms first so 주상복합아파트 doesn't become 주상복합apt.
	buildingReplacements = []struct{ full, abbrev string }{
		{"주상복합아파트", "mixed"},
		{"주상복합", "mixed"},
		{"아파트", "apt"},
		{"오피스텔", "ofst"},
		{"빌라", "villa"},
		{"맨션", "mansion"},
		{"apartment", "apt"},
		{"officetel", "ofst"},
		{"tower", "twr"},
		{"타워", "twr"},
		{"단지", ""},
	}
	multiSpaceRegex = regexp.MustCompile(`\s+`)
	nonWordRegex    = regexp.MustCompile(`[^\p{L}\p{N}\s]`)
	digitsRegex     = regexp.MustCompile(`\d+`)
)

// Fingerprint identifies the physical unit behind a listing. Broker, price and listing id are
// left out so the same unit advertised by several brokers shares a fingerprint.
func Fingerprint(l *models.Listing) string {
	input := fmt.Sprintf("%s|%s|%s|%s|%s|%s",
		NormalizeBuilding(l.BuildingName),
		NormalizeUnit(l.Unit),
		NormalizeFloor(l.Floor),
		NormalizeArea(l.Area),
		strings.ToUpper(strings.TrimSpace(l.PropertyCode)),
		strings.ToUpper(strings.TrimSpace(l.TradeCode)),
	)
	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:16])
}

func NormalizeBuilding(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = nonWordRegex.ReplaceAllString(name, " ")
	for _, r := range buildingReplacements {
		name = strings.ReplaceAll(name, r.full, r.abbrev)
	}
	name = multiSpaceRegex.ReplaceAllString(name, "")
	return name
}

// NormalizeUnit reduces "101동 1203호" and "101-1203" to the same digit path.
func NormalizeUnit(unit string) string {
	return strings.Join(digitsRegex.FindAllString(unit, -1), "-")
}

// NormalizeFloor keeps the unit's own floor from "12/25"-style values.
func NormalizeFloor(floor string) string {
	floor = strings.TrimSpace(floor)
	if i := strings.Index(floor, "/"); i >= 0 {
		floor = floor[:i]
	}
	floor = strings.TrimSuffix(strings.TrimSpace(floor), "층")
	return strings.ToLower(floor)
}

// NormalizeArea rounds a square-meter value to one decimal; non-numeric text is kept trimmed.
func NormalizeArea(area string) string {
	area = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(area), "㎡"))
	if v, err := strconv.ParseFloat(area, 64); err == nil {
		return strconv.FormatFloat(v, 'f', 1, 64)
	}
	return area
}
