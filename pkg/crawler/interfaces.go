package crawler

import (
	"context"

	"cafenote/pkg/checkpoint"
	"cafenote/pkg/models"
	"cafenote/pkg/naver"
)

// ArticleFetcher fetches one page of a cafe menu, newest first
type ArticleFetcher interface {
	FetchArticlePage(ctx context.Context, cafeID, categoryID string, page int) (naver.PageResult, error)
}

// SourceLister supplies the sources to visit
type SourceLister interface {
	ActiveSources(ctx context.Context) ([]models.Source, error)
}

// Ledger supplies the member keys a crawl must not collect
type Ledger interface {
	LedgerKeys(ctx context.Context) (map[string]struct{}, error)
}

// AuthChecker reports whether the session carries the auth cookie
type AuthChecker interface {
	IsAuthenticated() bool
}

// SnapshotSaver persists the outcome of a run
type SnapshotSaver interface {
	Save(s *checkpoint.Snapshot) error
}
