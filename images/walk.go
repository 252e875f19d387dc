package images

import (
	"sort"
	"strings"
)

// imageKeys are the object keys whose string values are treated as image URLs.
var imageKeys = map[string]bool{
	"url":      true,
	"src":      true,
	"imageurl": true,
	"imgurl":   true,
	"imgsrc":   true,
	"path":     true,
}

// Visit is called for every string leaf of a decoded JSON value with the key of the
// nearest enclosing object field ("" at the root).
type Visit func(key, value string)

// WalkStrings visits every string leaf of v, a value produced by encoding/json
// decoding into any. Object keys are visited in sorted order so results are stable.
func WalkStrings(v any, visit Visit) {
	walk("", v, visit)
}

func walk(key string, v any, visit Visit) {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			walk(k, t[k], visit)
		}
	case []any:
		for _, item := range t {
			walk(key, item, visit)
		}
	case string:
		visit(key, t)
	}
}

// CollectImageURLs walks v and returns every photo URL found under an image-like key,
// plus bare strings that are themselves absolute image URLs.
func CollectImageURLs(v any) []string {
	set := newURLSet()
	WalkStrings(v, func(key, value string) {
		if looksLikeImageValue(key, value) {
			set.add(value)
		}
	})
	return set.list()
}

func looksLikeImageValue(key, value string) bool {
	value = strings.TrimSpace(value)
	if value == "" {
		return false
	}
	if imageKeys[strings.ToLower(key)] {
		return true
	}
	lower := strings.ToLower(value)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") || strings.HasPrefix(lower, "//") {
		return hasImageExt(Normalize(value)) || isStaticHost(hostOf(value))
	}
	return false
}

// findArray returns the first array found under any of the given keys, searching
// depth-first through nested objects.
func findArray(v any, names []string) []any {
	switch t := v.(type) {
	case map[string]any:
		for _, name := range names {
			if arr, ok := t[name].([]any); ok && len(arr) > 0 {
				return arr
			}
		}
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if arr := findArray(t[k], names); arr != nil {
				return arr
			}
		}
	case []any:
		for _, item := range t {
			if arr := findArray(item, names); arr != nil {
				return arr
			}
		}
	}
	return nil
}
