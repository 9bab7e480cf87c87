package cdn

import (
	"regexp"
	"sort"
	"strings"

	"github.com/pubgate/gateway/common/models"
)

// ResolveURI applies alias substitutions to uri until no alias
// matches. The longest matching src wins each round; an alias is
// skipped when one of its exclude patterns matches the remainder of
// the path.
func ResolveURI(uri string, aliases []models.Alias) string {
	ordered := make([]models.Alias, len(aliases))
	copy(ordered, aliases)
	sort.SliceStable(ordered, func(i, j int) bool {
		return len(ordered[i].Src) > len(ordered[j].Src)
	})

	// Guard against alias cycles: never revisit a resolved uri.
	seen := map[string]bool{uri: true}

	for {
		next := resolveOnce(uri, ordered)
		if next == uri || seen[next] {
			return next
		}
		seen[next] = true
		uri = next
	}
}

func resolveOnce(uri string, ordered []models.Alias) string {
	for _, a := range ordered {
		if uri != a.Src && !strings.HasPrefix(uri, a.Src+"/") {
			continue
		}
		remainder := uri[len(a.Src):]
		if matchesAny(remainder, a.ExcludePaths) {
			continue
		}
		return a.Dest + remainder
	}
	return uri
}

// matchesAny reports whether any pattern matches s as an unanchored
// regex. Invalid patterns never match.
func matchesAny(s string, patterns []string) bool {
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			continue
		}
		if re.MatchString(s) {
			return true
		}
	}
	return false
}
