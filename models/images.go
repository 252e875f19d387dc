package models

// ImageURLSet is an ordered, duplicate-free list of absolute photo URLs for one listing,
// best candidate first.
type ImageURLSet []string

// Add appends u unless it is empty or already present.
func (s *ImageURLSet) Add(u string) bool {
	if u == "" || s.Contains(u) {
		return false
	}
	*s = append(*s, u)
	return true
}

func (s ImageURLSet) Contains(u string) bool {
	for _, v := range s {
		if v == u {
			return true
		}
	}
	return false
}

// First returns the representative image, "" when empty.
func (s ImageURLSet) First() string {
	if len(s) == 0 {
		return ""
	}
	return s[0]
}
