package service

import (
	"context"
	"time"

	"github.com/vocdoni/maci-voter/artifacts"
	"github.com/vocdoni/maci-voter/log"
	"github.com/vocdoni/maci-voter/voter"
	"golang.org/x/sync/errgroup"
)

// DownloadArtifacts fetches the artifact sets of reqs concurrently so the
// first join does not wait for them.
func DownloadArtifacts(ctx context.Context, fetcher voter.ArtifactFetcher, timeout time.Duration, reqs ...artifacts.Request) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	for _, req := range reqs {
		g.Go(func() error {
			_, err := fetcher.Fetch(ctx, req)
			return err
		})
	}
	log.Infow("preparing zkSNARK circuit artifacts", "timeout", timeout.String(), "sets", len(reqs))
	return g.Wait()
}
