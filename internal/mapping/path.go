package mapping

import (
	"fmt"
	"strconv"
	"strings"
)

// segment is one dotted component of a source path, e.g. "plaintiffs[*]".
type segment struct {
	key      string
	index    int
	indexed  bool
	wildcard bool
}

func parsePath(path string) ([]segment, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("empty source path")
	}
	parts := strings.Split(path, ".")
	segs := make([]segment, 0, len(parts))
	for _, part := range parts {
		seg := segment{key: part}
		if open := strings.IndexByte(part, '['); open >= 0 {
			if !strings.HasSuffix(part, "]") || open == 0 {
				return nil, fmt.Errorf("malformed segment %q in %q", part, path)
			}
			seg.key = part[:open]
			inner := part[open+1 : len(part)-1]
			switch inner {
			case "*":
				seg.wildcard = true
			default:
				n, err := strconv.Atoi(inner)
				if err != nil || n < 0 {
					return nil, fmt.Errorf("bad index %q in %q", inner, path)
				}
				seg.index = n
				seg.indexed = true
			}
		}
		if seg.key == "" {
			return nil, fmt.Errorf("malformed segment %q in %q", part, path)
		}
		segs = append(segs, seg)
	}
	return segs, nil
}

// resolve walks tree along path and returns every leaf reached. Missing keys,
// out-of-range indexes and nulls contribute nothing. A wildcard fans out over
// every element of the array at that step.
func resolve(tree map[string]any, path string) ([]any, error) {
	segs, err := parsePath(path)
	if err != nil {
		return nil, err
	}

	current := []any{tree}
	for _, seg := range segs {
		next := make([]any, 0, len(current))
		for _, node := range current {
			obj, ok := node.(map[string]any)
			if !ok {
				continue
			}
			child, ok := obj[seg.key]
			if !ok || child == nil {
				continue
			}
			switch {
			case seg.wildcard:
				arr, ok := child.([]any)
				if !ok {
					continue
				}
				for _, el := range arr {
					if el != nil {
						next = append(next, el)
					}
				}
			case seg.indexed:
				arr, ok := child.([]any)
				if !ok || seg.index >= len(arr) || arr[seg.index] == nil {
					continue
				}
				next = append(next, arr[seg.index])
			default:
				next = append(next, child)
			}
		}
		current = next
		if len(current) == 0 {
			break
		}
	}
	return current, nil
}
