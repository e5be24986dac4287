package util

// Property access on nested map[string]any records. Paths follow the
// mounting-path grammar of paths.go: "a.b" descends into nested maps,
// "a[0].b" descends into the first element of an array at "a",
// creating intermediate containers as needed.

// SetProperty writes value at path inside obj, creating intermediate
// maps (and single-element arrays for "[0]" segments) along the way.
func SetProperty(obj map[string]any, path string, value any) {
	segments := SplitPath(path)
	current := obj
	for i, segment := range segments {
		info := ParseSegment(segment)
		last := i == len(segments)-1

		if last && !info.Array {
			current[info.Key] = value
			return
		}

		var next map[string]any
		if info.Array {
			arr, ok := current[info.Key].([]any)
			if !ok || len(arr) == 0 {
				next = map[string]any{}
				current[info.Key] = []any{next}
			} else if m, ok := arr[0].(map[string]any); ok {
				next = m
			} else {
				next = map[string]any{}
				arr[0] = next
			}
			if last {
				// A terminal "[0]" segment replaces the element.
				arr, _ := current[info.Key].([]any)
				arr[0] = value
				return
			}
		} else {
			m, ok := current[info.Key].(map[string]any)
			if !ok {
				m = map[string]any{}
				current[info.Key] = m
			}
			next = m
		}
		current = next
	}
}

// GetProperty reads the value at path inside obj. The second return
// is false when any intermediate container is missing.
func GetProperty(obj map[string]any, path string) (any, bool) {
	segments := SplitPath(path)
	var current any = obj
	for _, segment := range segments {
		info := ParseSegment(segment)
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[info.Key]
		if !ok {
			return nil, false
		}
		if info.Array {
			arr, ok := current.([]any)
			if !ok || len(arr) == 0 {
				return nil, false
			}
			current = arr[0]
		}
	}
	return current, true
}

// DeleteProperty removes the value at path inside obj, pruning empty
// parent maps left behind.
func DeleteProperty(obj map[string]any, path string) {
	segments := SplitPath(path)
	deleteAt(obj, segments)
}

func deleteAt(obj map[string]any, segments []string) bool {
	if len(segments) == 0 {
		return false
	}
	info := ParseSegment(segments[0])
	if len(segments) == 1 {
		delete(obj, info.Key)
		return len(obj) == 0
	}

	child := obj[info.Key]
	if info.Array {
		if arr, ok := child.([]any); ok {
			for _, el := range arr {
				if m, ok := el.(map[string]any); ok {
					deleteAt(m, segments[1:])
				}
			}
		}
		return false
	}
	if m, ok := child.(map[string]any); ok {
		if deleteAt(m, segments[1:]) {
			delete(obj, info.Key)
			return len(obj) == 0
		}
	}
	return false
}
