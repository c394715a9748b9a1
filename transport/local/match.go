package local

import "strings"

// matchKeyExpr reports whether key matches pattern using Zenoh-style key
// expression wildcards: "*" matches exactly one "/"-separated segment, "**"
// matches zero or more segments.
func matchKeyExpr(pattern, key string) bool {
	return matchSegments(strings.Split(pattern, "/"), strings.Split(key, "/"))
}

func matchSegments(pattern, key []string) bool {
	if len(pattern) == 0 {
		return len(key) == 0
	}

	head := pattern[0]
	switch head {
	case "**":
		if matchSegments(pattern[1:], key) {
			return true
		}
		if len(key) == 0 {
			return false
		}
		return matchSegments(pattern, key[1:])
	case "*":
		if len(key) == 0 {
			return false
		}
		return matchSegments(pattern[1:], key[1:])
	default:
		if len(key) == 0 || key[0] != head {
			return false
		}
		return matchSegments(pattern[1:], key[1:])
	}
}
