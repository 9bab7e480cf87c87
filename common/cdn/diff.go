package cdn

import (
	"context"
	"sort"
	"strings"

	"github.com/pubgate/gateway/common/models"
)

// PathLister answers "which paths are currently published under this
// subtree" for an environment.
type PathLister interface {
	ListPrefix(ctx context.Context, env, prefix string) ([]string, error)
}

// FlushPaths computes the minimal set of CDN-relative paths requiring
// cache invalidation when next replaces prev as the deployed config
// for env. The result is sorted and de-duplicated.
//
// Only published paths reachable through a changed alias are
// considered, so unrelated trees are never touched. Listing paths
// derived from the new config are always included (when enabled)
// because a config change can alter which listing values are valid
// without any single alias changing.
func FlushPaths(ctx context.Context, prev, next *models.CDNConfig, env string, paths PathLister, includeListings bool) ([]string, error) {
	flush := map[string]struct{}{}

	// With no previously deployed config there is nothing to diff
	// against and no alias counts as changed.
	if prev != nil {
		prefixes := changedPrefixes(prev, next)

		for prefix, excludes := range prefixes {
			published, err := paths.ListPrefix(ctx, env, prefix)
			if err != nil {
				return nil, err
			}
			for _, p := range published {
				// A path excluded under the previous config was never
				// resolved through the alias at the edge; the alias
				// change cannot have moved its content.
				remainder := strings.TrimPrefix(p, prefix)
				if matchesAny(remainder, excludes) {
					continue
				}
				flush[p] = struct{}{}
			}
		}
	}

	if includeListings {
		for _, p := range ListingPaths(next) {
			flush[p] = struct{}{}
		}
	}

	out := make([]string, 0, len(flush))
	for p := range flush {
		out = append(out, p)
	}
	sort.Strings(out)
	return out, nil
}

// ListingPaths derives the listing resource paths declared by a
// config: one per listing entry, plus one per declared variable value.
func ListingPaths(cfg *models.CDNConfig) []string {
	var out []string
	for base, item := range cfg.Listing {
		out = append(out, base+"/listing")
		for _, v := range item.Values {
			out = append(out, base+"/"+v+"/listing")
		}
	}
	sort.Strings(out)
	return out
}

// changedPrefixes returns the path prefixes affected by the alias
// differences between two configs, mapped to the exclude patterns
// active under the previous config for the changed alias.
//
// An alias counts as changed when it exists in only one snapshot or
// when its dest or exclude set differs. Prefixes are then chased
// through the remaining alias tables in both directions, so a path
// published under an unchanged alias still flushes when its resolution
// passes through a changed one.
func changedPrefixes(prev, next *models.CDNConfig) map[string][]string {
	prevBySrc := aliasesBySrc(prev)
	nextBySrc := aliasesBySrc(next)

	changed := map[string][]string{}

	for src, pa := range prevBySrc {
		na, ok := nextBySrc[src]
		if !ok || na.Dest != pa.Dest || !sameExcludes(pa.ExcludePaths, na.ExcludePaths) {
			changed[src] = pa.ExcludePaths
		}
	}
	for src := range nextBySrc {
		if _, ok := prevBySrc[src]; !ok {
			changed[src] = nil
		}
	}

	// Chase alias chains until no new prefix appears.
	all := append(prev.AllAliases(), next.AllAliases()...)
	queue := make([]string, 0, len(changed))
	for src := range changed {
		queue = append(queue, src)
	}
	for len(queue) > 0 {
		prefix := queue[0]
		queue = queue[1:]

		for _, a := range all {
			var derived string
			switch {
			case prefix == a.Dest || strings.HasPrefix(prefix, a.Dest+"/"):
				// The changed subtree sits below this alias's dest:
				// the mirrored subtree under its src resolves into it.
				derived = a.Src + strings.TrimPrefix(prefix, a.Dest)
			case strings.HasPrefix(a.Dest, prefix+"/"):
				// This alias resolves into the changed subtree.
				derived = a.Src
			default:
				continue
			}
			if _, ok := changed[derived]; !ok {
				changed[derived] = changed[prefix]
				queue = append(queue, derived)
			}
		}
	}

	return changed
}

func aliasesBySrc(cfg *models.CDNConfig) map[string]models.Alias {
	out := map[string]models.Alias{}
	for _, a := range cfg.AllAliases() {
		out[a.Src] = a
	}
	return out
}

func sameExcludes(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	as := append([]string(nil), a...)
	bs := append([]string(nil), b...)
	sort.Strings(as)
	sort.Strings(bs)
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}
