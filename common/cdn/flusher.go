package cdn

import (
	"context"
	"sort"
	"strings"

	"github.com/pubgate/gateway/common/clients"
	"github.com/pubgate/gateway/common/config"
	"github.com/pubgate/gateway/common/logger"
	"github.com/pubgate/gateway/common/models"
)

// PurgeAPI submits one batch of absolute URLs for edge invalidation.
type PurgeAPI interface {
	PurgeByURL(ctx context.Context, urls []string) ([]clients.PurgeResponse, error)
}

// Flusher turns a list of logical CDN paths into the full set of
// edge-purge URLs and submits them to the purge API.
type Flusher struct {
	paths   []string
	env     *config.Environment
	aliases []models.Alias
	purge   PurgeAPI
	log     *logger.Logger
}

// NewFlusher creates a flusher for one batch of paths in one
// environment. aliases may be empty when the paths were already
// resolved by the caller.
func NewFlusher(paths []string, env *config.Environment, aliases []models.Alias, purge PurgeAPI, log *logger.Logger) *Flusher {
	return &Flusher{
		paths:   paths,
		env:     env,
		aliases: aliases,
		purge:   purge,
		log:     log,
	}
}

// URLs computes the full purge URL set: every path and its
// alias-resolved counterpart, joined with each flush base URL and
// instantiated into each ARL template with its TTL class.
func (f *Flusher) URLs() []string {
	paths := map[string]struct{}{}

	for _, p := range f.paths {
		// Accept paths both with and without a leading '/'.
		p = strings.TrimPrefix(p, "/")

		// The path itself always goes into the working set.
		paths[p] = struct{}{}

		// So does its alias-resolved counterpart: a config that moves
		// where a path resolves must purge both the old and the new
		// location. Resolution needs the leading '/'.
		resolved := ResolveURI("/"+p, f.aliases)
		paths[strings.TrimPrefix(resolved, "/")] = struct{}{}
	}

	pathList := make([]string, 0, len(paths))
	for p := range paths {
		pathList = append(pathList, p)
	}
	sort.Strings(pathList)

	var out []string
	for _, base := range f.env.CacheFlushURLs {
		for _, p := range pathList {
			out = append(out, strings.TrimSuffix(base, "/")+"/"+p)
		}
	}
	for _, tmpl := range f.env.CacheFlushARLTemplates {
		for _, p := range pathList {
			r := strings.NewReplacer("{path}", p, "{ttl}", EdgeTTL(p))
			out = append(out, r.Replace(tmpl))
		}
	}

	return out
}

// Run computes the purge URL set and submits it. Submission failures
// propagate to the caller; retry belongs to queue redelivery.
func (f *Flusher) Run(ctx context.Context) error {
	urls := f.URLs()

	if err := f.flush(ctx, urls); err != nil {
		return err
	}

	outcome := "Completed"
	if !f.env.FlushEnabled {
		outcome = "Skipped"
	}
	first := "<empty>"
	if len(urls) > 0 {
		first = urls[0]
	}
	f.log.Info("cache flush finished",
		"outcome", outcome,
		"url_count", len(urls),
		"first", first,
	)
	return nil
}

func (f *Flusher) flush(ctx context.Context, urls []string) error {
	if !f.env.FlushEnabled || len(urls) == 0 {
		f.log.Info("purge is not enabled for environment", "env", f.env.Name)
		return nil
	}

	for _, url := range urls {
		f.log.Info("flushing cache", "url", url)
	}

	responses, err := f.purge.PurgeByURL(ctx, urls)
	if err != nil {
		return err
	}

	for _, r := range responses {
		f.log.Info("purge response",
			"status", r.HTTPStatus,
			"purge_id", r.PurgeID,
			"detail", r.Detail,
		)
	}

	return nil
}
