// Package util holds small helpers shared by the compiler packages:
// mounting-path parsing, property access on nested record maps, and
// reserved-symbol detection.
package util

import "strings"

// A mounting path addresses a position inside a nested record:
// segments are joined with dots, a trailing "[0]" marks a segment
// whose value is an element of an array, and a trailing "{n}" suffix
// disambiguates sibling joins onto the same path.
//
//	"invoices[0].amount" -> ["invoices[0]", "amount"]

// SplitPath splits a dotted mounting path into its segments. Array
// and disambiguation markers stay attached to their segment.
func SplitPath(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, ".")
}

// JoinPath joins path segments with dots, skipping empty ones.
func JoinPath(segments ...string) string {
	parts := segments[:0:0]
	for _, s := range segments {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ".")
}

// SegmentInfo describes one parsed path segment.
type SegmentInfo struct {
	// Key is the segment with markers stripped.
	Key string
	// Array is set when the segment carried an "[0]" marker.
	Array bool
}

// ParseSegment strips the "[0]" array marker and any "{n}" join
// disambiguator from a path segment. A disambiguated array segment
// reads "key{n}[0]".
func ParseSegment(segment string) SegmentInfo {
	info := SegmentInfo{Key: segment}
	if strings.HasSuffix(info.Key, "[0]") {
		info.Key = strings.TrimSuffix(info.Key, "[0]")
		info.Array = true
	}
	if i := strings.Index(info.Key, "{"); i >= 0 && strings.HasSuffix(info.Key, "}") {
		info.Key = info.Key[:i]
	}
	return info
}

// StripMarkers removes every "[0]" and "{n}" marker from a path.
func StripMarkers(path string) string {
	segments := SplitPath(path)
	for i, s := range segments {
		segments[i] = ParseSegment(s).Key
	}
	return strings.Join(segments, ".")
}
