package cdn

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pubgate/gateway/common/models"
)

func TestResolveURI_NoAliases(t *testing.T) {
	assert.Equal(t, "/content/dist/rhel/file.rpm",
		ResolveURI("/content/dist/rhel/file.rpm", nil))
}

func TestResolveURI_SimpleAlias(t *testing.T) {
	aliases := []models.Alias{
		{Src: "/content/dist/rhel8/8", Dest: "/content/dist/rhel8/8.5"},
	}

	assert.Equal(t, "/content/dist/rhel8/8.5/x86_64/baseos/os/repodata/repomd.xml",
		ResolveURI("/content/dist/rhel8/8/x86_64/baseos/os/repodata/repomd.xml", aliases))

	// Exact match on the src resolves too
	assert.Equal(t, "/content/dist/rhel8/8.5",
		ResolveURI("/content/dist/rhel8/8", aliases))

	// A src matching only as a string prefix, not a path prefix, does not
	assert.Equal(t, "/content/dist/rhel8/80/file.rpm",
		ResolveURI("/content/dist/rhel8/80/file.rpm", aliases))
}

func TestResolveURI_ChainedAliases(t *testing.T) {
	aliases := []models.Alias{
		{Src: "/content/dist/rhel8/8", Dest: "/content/dist/rhel8/8.5"},
		{Src: "/content/dist/rhel8/rhui", Dest: "/content/dist/rhel8/8"},
	}

	// rhui resolves through both aliases
	assert.Equal(t, "/content/dist/rhel8/8.5/file.rpm",
		ResolveURI("/content/dist/rhel8/rhui/file.rpm", aliases))
}

func TestResolveURI_LongestSrcWins(t *testing.T) {
	aliases := []models.Alias{
		{Src: "/content", Dest: "/short"},
		{Src: "/content/dist", Dest: "/long"},
	}

	assert.Equal(t, "/long/file.rpm", ResolveURI("/content/dist/file.rpm", aliases))
}

func TestResolveURI_ExcludePaths(t *testing.T) {
	aliases := []models.Alias{
		{Src: "/content/dist/rhel8/8", Dest: "/content/dist/rhel8/8.5", ExcludePaths: []string{"/iso/"}},
	}

	// Excluded remainders skip the alias
	assert.Equal(t, "/content/dist/rhel8/8/iso/image.iso",
		ResolveURI("/content/dist/rhel8/8/iso/image.iso", aliases))

	// Everything else still resolves
	assert.Equal(t, "/content/dist/rhel8/8.5/x86_64/file.rpm",
		ResolveURI("/content/dist/rhel8/8/x86_64/file.rpm", aliases))
}

func TestResolveURI_CycleTerminates(t *testing.T) {
	aliases := []models.Alias{
		{Src: "/a", Dest: "/b"},
		{Src: "/b", Dest: "/a"},
	}

	// Must terminate; the result is one of the two cycle members.
	out := ResolveURI("/a/file", aliases)
	assert.Contains(t, []string{"/a/file", "/b/file"}, out)
}

func TestEdgeTTL(t *testing.T) {
	cases := map[string]string{
		"dist/rhel8/8/x86_64/baseos/os/repodata/repomd.xml": "4h",
		"dist/rhel8/8/x86_64/baseos/os/":                    "4h",
		"content/origin/files/PULP_MANIFEST":                "10m",
		"content/dist/rhel/server/listing":                  "10m",
		"dist/rhel8/8/x86_64/baseos/os/repodata/abc-primary.xml.gz":   "10m",
		"content/dist/rhel8/ostree/repo/refs/heads/rhel/8/x86_64/edge/standard": "10m",
		"content/dist/rhel8/ostree/repo/refs/heads/rhel/8/x86_64/edge/base":     "10m",
		"dist/rhel8/8/x86_64/baseos/os/Packages/p/pkg.rpm": "30d",
	}

	for path, want := range cases {
		assert.Equal(t, want, EdgeTTL(path), "path %s", path)
	}
}
