package encviewfs

import (
	"regexp"
	"strconv"
)

var segmentPattern = regexp.MustCompile(`^(.*?)(\.([0-9]+))?$`)

// SplitSegment splits a trailing ".N" suffix off name. ok is false when name
// has no numeric suffix.
func SplitSegment(name string) (base string, n int, ok bool) {
	m := segmentPattern.FindStringSubmatch(name)
	if m == nil || m[3] == "" {
		return name, 0, false
	}
	n, err := strconv.Atoi(m[3])
	if err != nil {
		// too many digits for an int; treat as part of the name
		return name, 0, false
	}
	return m[1], n, true
}

// JoinSegment is the inverse of SplitSegment
func JoinSegment(base string, n int, ok bool) string {
	if !ok {
		return base
	}
	return base + "." + strconv.Itoa(n)
}
