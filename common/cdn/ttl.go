package cdn

import (
	"regexp"
	"strings"
)

var ostreeRefPattern = regexp.MustCompile(`.*/ostree/repo/refs/heads/.*/(base|standard)$`)

// EdgeTTL returns the TTL class configured at the CDN edge for a path.
//
// This mapping is a contract with the edge configuration and must not
// drift from it. Short TTLs cover repository entry points that must
// refresh quickly; medium TTLs cover manifests, listings and metadata
// subdirectories; everything else holds the default.
func EdgeTTL(path string) string {
	if strings.HasSuffix(path, "/repodata/repomd.xml") || strings.HasSuffix(path, "/") {
		return "4h"
	}
	if strings.HasSuffix(path, "/PULP_MANIFEST") ||
		strings.HasSuffix(path, "/listing") ||
		strings.Contains(path, "/repodata/") ||
		ostreeRefPattern.MatchString(path) {
		return "10m"
	}
	return "30d"
}
