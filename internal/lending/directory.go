package lending

import (
	"context"

	"LIBCAT-backend/internal/disposals"
	"LIBCAT-backend/internal/platform/db"
)

//go:generate mockgen -source=directory.go -destination=mocks/directory_mock.go -package=mocks

// BookDirectory answers whether a catalog book exists.
type BookDirectory interface {
	BookExists(ctx context.Context, bookID int64) (bool, error)
}

// UserDirectory answers whether a user account exists.
type UserDirectory interface {
	UserExists(ctx context.Context, userID int64) (bool, error)
}

// DisposalRecorder writes the removal log inside the caller's transaction.
type DisposalRecorder interface {
	RecordTx(ctx context.Context, tx db.DBTX, r disposals.Record) (*disposals.Disposal, error)
}
