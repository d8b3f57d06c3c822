// Package wbs implements dotted-numeric work breakdown structure keys:
// ordering, hierarchy by key prefix, and subtree renumbering.
package wbs

import (
	"strconv"
	"strings"
)

// Compare orders two WBS keys segment by segment, numerically: "1.2" sorts
// before "1.10" where a lexical sort would not. Missing and non-numeric
// segments count as 0, so a key sorts before its own extensions ("1" < "1.1").
func Compare(a, b string) int {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	n := len(as)
	if len(bs) > n {
		n = len(bs)
	}
	for i := 0; i < n; i++ {
		ai := segment(as, i)
		bi := segment(bs, i)
		if ai != bi {
			if ai < bi {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(as) < len(bs):
		return -1
	case len(as) > len(bs):
		return 1
	}
	return 0
}

func segment(parts []string, i int) int {
	if i >= len(parts) {
		return 0
	}
	v, err := strconv.Atoi(parts[i])
	if err != nil {
		return 0
	}
	return v
}

// Parent returns the parent key of a WBS key, or "" for a top-level key.
func Parent(key string) string {
	i := strings.LastIndex(key, ".")
	if i < 0 {
		return ""
	}
	return key[:i]
}

// Level is the zero-based depth of a key: "1" -> 0, "1.2.3" -> 2.
func Level(key string) int {
	return strings.Count(key, ".")
}

// IsDescendant reports whether key sits strictly below ancestor in the
// hierarchy ("1.2" and "1.2.5" are descendants of "1"; "12" is not).
func IsDescendant(key, ancestor string) bool {
	return strings.HasPrefix(key, ancestor+".")
}

// Rebase rewrites a descendant key from one subtree root to another:
// Rebase("1.2.3", "1", "4") == "4.2.3". The key itself maps to the new root.
func Rebase(key, oldRoot, newRoot string) string {
	if key == oldRoot {
		return newRoot
	}
	if !IsDescendant(key, oldRoot) {
		return key
	}
	return newRoot + key[len(oldRoot):]
}
