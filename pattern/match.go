package pattern

import "strings"

// Matches reports whether s matches the given glob, case-insensitively.
// The only metacharacter is '*', which matches any run of characters
// including none. An empty glob matches everything.
//
// [path.Match] is deliberately not used here: it treats '/' and
// character classes specially, while globs in integration files and
// list requests carry bare '*' only.
func Matches(s, glob string) bool {
	if glob == "" {
		return true
	}

	s = strings.ToLower(s)
	glob = strings.ToLower(glob)

	return matchGlob(s, glob)
}

func matchGlob(s, glob string) bool {
	for {
		i := strings.IndexByte(glob, '*')
		if i < 0 {
			return s == glob
		}

		if !strings.HasPrefix(s, glob[:i]) {
			return false
		}
		s = s[i:]
		glob = glob[i+1:]

		if glob == "" {
			return true
		}

		// try every start position for the remainder
		for j := 0; j <= len(s); j++ {
			if matchGlob(s[j:], glob) {
				return true
			}
		}

		return false
	}
}
