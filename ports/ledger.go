package ports

import (
	"context"

	"gouncertain/domain/core"
	"gouncertain/domain/run"
)

// LedgerWriterPort provides append-only write access to finished runs
type LedgerWriterPort interface {
	StoreRun(ctx context.Context, result *run.Result) error
}

// LedgerReaderPort provides read-only access to stored runs
type LedgerReaderPort interface {
	GetRun(ctx context.Context, runID core.RunID) (*run.Result, error)
	// ListRuns returns manifests newest first, at most limit of them (0 means all)
	ListRuns(ctx context.Context, limit int) ([]*run.Manifest, error)
}

// LedgerPort combines read and write access
type LedgerPort interface {
	LedgerWriterPort
	LedgerReaderPort
}
