package cdn

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pubgate/gateway/common/models"
)

// fakePathLister serves ListPrefix from a fixed set of published paths
type fakePathLister struct {
	paths []string
}

func (f *fakePathLister) ListPrefix(ctx context.Context, env, prefix string) ([]string, error) {
	var out []string
	for _, p := range f.paths {
		if p == prefix || strings.HasPrefix(p, prefix+"/") {
			out = append(out, p)
		}
	}
	return out, nil
}

func testConfig() *models.CDNConfig {
	return &models.CDNConfig{
		Listing: map[string]models.ListingItem{
			"/content/dist/rhel8": {Var: "releasever", Values: []string{"8"}},
		},
		ReleaseverAlias: []models.Alias{
			{Src: "/content/dist/rhel8/8", Dest: "/content/dist/rhel8/8.4", ExcludePaths: []string{"/iso/"}},
		},
		RhuiAlias: []models.Alias{
			{Src: "/content/dist/rhel8/rhui", Dest: "/content/dist/rhel8/8", ExcludePaths: []string{"/iso/"}},
		},
	}
}

func TestFlushPaths_NoPreviousConfig(t *testing.T) {
	ctx := context.Background()
	lister := &fakePathLister{paths: []string{
		"/content/dist/rhel8/8/x86_64/baseos/os/repodata/repomd.xml",
	}}

	// With nothing deployed yet there is nothing to diff against; only
	// the listing paths of the new config come out.
	out, err := FlushPaths(ctx, nil, testConfig(), "live", lister, true)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"/content/dist/rhel8/8/listing",
		"/content/dist/rhel8/listing",
	}, out)

	out, err = FlushPaths(ctx, nil, testConfig(), "live", lister, false)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestFlushPaths_UnchangedConfig(t *testing.T) {
	ctx := context.Background()
	lister := &fakePathLister{paths: []string{
		"/content/dist/rhel8/8/x86_64/baseos/os/repodata/repomd.xml",
	}}

	out, err := FlushPaths(ctx, testConfig(), testConfig(), "live", lister, false)
	require.NoError(t, err)
	assert.Empty(t, out, "identical configs must not flush anything")
}

func TestFlushPaths_ChangedReleasever(t *testing.T) {
	ctx := context.Background()
	lister := &fakePathLister{paths: []string{
		"/content/dist/rhel8/8/x86_64/baseos/os/repodata/repomd.xml",
		"/content/dist/rhel8/rhui/x86_64/baseos/os/repodata/repomd.xml",
		"/content/dist/rhel8/8/iso/image.iso",
		"/content/dist/rhel9/9/x86_64/baseos/os/repodata/repomd.xml",
	}}

	prev := testConfig()
	next := testConfig()
	next.ReleaseverAlias[0].Dest = "/content/dist/rhel8/8.5"

	out, err := FlushPaths(ctx, prev, next, "live", lister, true)
	require.NoError(t, err)

	// The published path under the changed alias flushes as published,
	// not resolved.
	assert.Contains(t, out, "/content/dist/rhel8/8/x86_64/baseos/os/repodata/repomd.xml")

	// The rhui mirror resolves through the changed alias, so its
	// published paths flush too.
	assert.Contains(t, out, "/content/dist/rhel8/rhui/x86_64/baseos/os/repodata/repomd.xml")

	// Listing paths of the new config are always included.
	assert.Contains(t, out, "/content/dist/rhel8/listing")
	assert.Contains(t, out, "/content/dist/rhel8/8/listing")

	// Paths excluded under the previous config never resolved through
	// the alias, so they do not flush.
	assert.NotContains(t, out, "/content/dist/rhel8/8/iso/image.iso")

	// Unrelated trees are untouched.
	assert.NotContains(t, out, "/content/dist/rhel9/9/x86_64/baseos/os/repodata/repomd.xml")
}

func TestFlushPaths_NewExclusionStillFlushes(t *testing.T) {
	ctx := context.Background()
	lister := &fakePathLister{paths: []string{
		"/content/dist/rhel8/8/files/archive.tar",
	}}

	prev := testConfig()
	next := testConfig()
	next.ReleaseverAlias[0].ExcludePaths = []string{"/iso/", "/files/"}

	// A newly introduced exclusion changes where the path resolves, so
	// it must flush one final time; only the old exclude set filters.
	out, err := FlushPaths(ctx, prev, next, "live", lister, false)
	require.NoError(t, err)
	assert.Contains(t, out, "/content/dist/rhel8/8/files/archive.tar")
}

func TestFlushPaths_ChangedDestAndNewExclusion(t *testing.T) {
	ctx := context.Background()
	lister := &fakePathLister{paths: []string{
		"/content/testproduct/1/file1",
		"/content/testproduct/1/file2",
		"/content/testproduct/1/newExclusion/file5",
	}}

	prev := &models.CDNConfig{
		Listing: map[string]models.ListingItem{
			"/content/testproduct": {Var: "releasever", Values: []string{"1"}},
		},
		ReleaseverAlias: []models.Alias{
			{Src: "/content/testproduct/1", Dest: "/content/testproduct/1.1.0"},
		},
	}
	next := &models.CDNConfig{
		Listing: map[string]models.ListingItem{
			"/content/testproduct": {Var: "releasever", Values: []string{"1"}},
		},
		ReleaseverAlias: []models.Alias{
			{Src: "/content/testproduct/1", Dest: "/content/testproduct/1.2.0", ExcludePaths: []string{"/newExclusion/"}},
		},
	}

	out, err := FlushPaths(ctx, prev, next, "live", lister, true)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"/content/testproduct/1/file1",
		"/content/testproduct/1/file2",
		"/content/testproduct/1/listing",
		"/content/testproduct/1/newExclusion/file5",
		"/content/testproduct/listing",
	}, out)
}

func TestFlushPaths_RemovedAlias(t *testing.T) {
	ctx := context.Background()
	lister := &fakePathLister{paths: []string{
		"/content/dist/rhel8/8/x86_64/file.rpm",
	}}

	prev := testConfig()
	next := testConfig()
	next.ReleaseverAlias = nil

	out, err := FlushPaths(ctx, prev, next, "live", lister, false)
	require.NoError(t, err)
	assert.Contains(t, out, "/content/dist/rhel8/8/x86_64/file.rpm")
}

func TestListingPaths(t *testing.T) {
	cfg := &models.CDNConfig{
		Listing: map[string]models.ListingItem{
			"/content/dist/rhel/server": {Var: "releasever", Values: []string{"7", "8"}},
		},
	}

	assert.Equal(t, []string{
		"/content/dist/rhel/server/7/listing",
		"/content/dist/rhel/server/8/listing",
		"/content/dist/rhel/server/listing",
	}, ListingPaths(cfg))
}
