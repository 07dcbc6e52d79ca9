package ingest

import "context"

// StaticAssets is a fixed list from configuration.
type StaticAssets []string

func (s StaticAssets) TrackedAssets(ctx context.Context) ([]string, error) {
	return append([]string(nil), s...), nil
}

type ActiveMintLister interface {
	ActiveMints(ctx context.Context) ([]string, error)
}

// AlertAssets tracks every mint watched by an active alert rule.
type AlertAssets struct {
	Store ActiveMintLister
}

func (a AlertAssets) TrackedAssets(ctx context.Context) ([]string, error) {
	return a.Store.ActiveMints(ctx)
}

// UnionAssets concatenates its sources in order. Dispatch de-duplicates.
type UnionAssets []TrackedAssetSource

func (u UnionAssets) TrackedAssets(ctx context.Context) ([]string, error) {
	var all []string
	for _, src := range u {
		mints, err := src.TrackedAssets(ctx)
		if err != nil {
			return nil, err
		}
		all = append(all, mints...)
	}
	return all, nil
}
