package sender

import (
	"context"

	"cafenote/pkg/models"
	"cafenote/pkg/naver"
)

// FormPreparer fetches a single-use compose form for one recipient
type FormPreparer interface {
	PrepareForm(ctx context.Context, memberKey string) (*naver.FormInfo, error)
}

// Dispatcher sends one note using a fresh form
type Dispatcher interface {
	SendNote(ctx context.Context, memberKey, content string, form *naver.FormInfo) (*naver.DispatchResult, error)
}

// Preflighter runs the optional pre-send check
type Preflighter interface {
	Preflight(ctx context.Context, memberKey string) error
}

// Ledger records recipients after a confirmed send
type Ledger interface {
	CreateLedgerEntry(ctx context.Context, entry models.LedgerEntry) (*models.LedgerEntry, error)
}

// AuthChecker reports whether the session carries the auth cookie
type AuthChecker interface {
	IsAuthenticated() bool
}
