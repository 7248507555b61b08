package model

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// PrepareAll acquires every distinct descriptor concurrently and returns
// their paths in input order. The first failure cancels the rest.
func PrepareAll(ctx context.Context, dl *Downloader, descriptors ...Descriptor) ([]string, error) {
	paths := make([]string, len(descriptors))
	seen := make(map[string]int, len(descriptors))
	g, ctx := errgroup.WithContext(ctx)

	for i, d := range descriptors {
		if _, ok := seen[d.ID]; ok {
			continue
		}
		seen[d.ID] = i
		g.Go(func() error {
			p, err := dl.EnsureAvailable(ctx, d)
			if err != nil {
				return err
			}
			paths[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for i, d := range descriptors {
		paths[i] = paths[seen[d.ID]]
	}
	return paths, nil
}
