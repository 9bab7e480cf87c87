package cdn

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pubgate/gateway/common/clients"
	"github.com/pubgate/gateway/common/config"
	"github.com/pubgate/gateway/common/logger"
	"github.com/pubgate/gateway/common/models"
)

// fakePurge records every batch submitted to it
type fakePurge struct {
	batches [][]string
	err     error
}

func (f *fakePurge) PurgeByURL(ctx context.Context, urls []string) ([]clients.PurgeResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.batches = append(f.batches, urls)
	return []clients.PurgeResponse{{HTTPStatus: 201, PurgeID: "test-purge"}}, nil
}

func testEnv() *config.Environment {
	return &config.Environment{
		Name:           "live",
		FlushEnabled:   true,
		CacheFlushURLs: []string{"https://cdn.example.com/"},
		CacheFlushARLTemplates: []string{
			"S/=/123/45678/{ttl}/cdn.example.com/{path}",
		},
	}
}

func testLogger() *logger.Logger {
	return logger.NewWithWriter(io.Discard, "info", "json")
}

func TestFlusherURLs(t *testing.T) {
	f := NewFlusher(
		[]string{"/content/dist/rhel8/8/x86_64/baseos/os/repodata/repomd.xml"},
		testEnv(), nil, &fakePurge{}, testLogger())

	assert.Equal(t, []string{
		"https://cdn.example.com/content/dist/rhel8/8/x86_64/baseos/os/repodata/repomd.xml",
		"S/=/123/45678/4h/cdn.example.com/content/dist/rhel8/8/x86_64/baseos/os/repodata/repomd.xml",
	}, f.URLs())
}

func TestFlusherURLs_ResolvesAliases(t *testing.T) {
	aliases := []models.Alias{
		{Src: "/content/dist/rhel8/8", Dest: "/content/dist/rhel8/8.5"},
	}
	env := testEnv()
	env.CacheFlushARLTemplates = nil

	f := NewFlusher([]string{"/content/dist/rhel8/8/file.rpm"}, env, aliases, &fakePurge{}, testLogger())

	// Both the original and the resolved location get purged.
	assert.Equal(t, []string{
		"https://cdn.example.com/content/dist/rhel8/8.5/file.rpm",
		"https://cdn.example.com/content/dist/rhel8/8/file.rpm",
	}, f.URLs())
}

func TestFlusherURLs_TTLClassPerPath(t *testing.T) {
	env := testEnv()
	env.CacheFlushURLs = nil

	f := NewFlusher([]string{
		"/content/dist/rhel8/8/x86_64/baseos/os/Packages/p/pkg.rpm",
		"/content/dist/rhel8/8/x86_64/baseos/os/repodata/repomd.xml",
	}, env, nil, &fakePurge{}, testLogger())

	assert.Equal(t, []string{
		"S/=/123/45678/30d/cdn.example.com/content/dist/rhel8/8/x86_64/baseos/os/Packages/p/pkg.rpm",
		"S/=/123/45678/4h/cdn.example.com/content/dist/rhel8/8/x86_64/baseos/os/repodata/repomd.xml",
	}, f.URLs())
}

func TestFlusherRun_SubmitsBatch(t *testing.T) {
	purge := &fakePurge{}
	f := NewFlusher([]string{"/content/file.rpm"}, testEnv(), nil, purge, testLogger())

	require.NoError(t, f.Run(context.Background()))
	require.Len(t, purge.batches, 1)
	assert.Len(t, purge.batches[0], 2)
}

func TestFlusherRun_DisabledEnvironment(t *testing.T) {
	env := testEnv()
	env.FlushEnabled = false

	purge := &fakePurge{}
	f := NewFlusher([]string{"/content/file.rpm"}, env, nil, purge, testLogger())

	require.NoError(t, f.Run(context.Background()))
	assert.Empty(t, purge.batches, "a disabled environment must not call the purge API")
}

func TestFlusherRun_PurgeError(t *testing.T) {
	purge := &fakePurge{err: assert.AnError}
	f := NewFlusher([]string{"/content/file.rpm"}, testEnv(), nil, purge, testLogger())

	assert.Error(t, f.Run(context.Background()))
}
