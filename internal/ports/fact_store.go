package ports

import (
	"context"

	"branch-distance-service/internal/domain"
)

// Port: a boundary for reading and writing branch distance/transit facts.
//
// GetFacts is a single batched point read keyed by (destinationZip,
// branchNumbers); branches without a row are simply absent from the result.
// The write side has two shapes: UpsertFact for ad-hoc single-row saves,
// and the staged bulk sequence BulkStageInsert -> MergeStaged ->
// TruncateStaged for multi-row loads. The staged steps are independent:
// a failed merge leaves staged rows in place for a later run.
type FactStore interface {
	GetFacts(ctx context.Context, destinationZip string, branchNumbers []string) ([]domain.BranchFact, error)
	UpsertFact(ctx context.Context, fact domain.BranchFact) error
	BulkStageInsert(ctx context.Context, facts []domain.BranchFact) error
	MergeStaged(ctx context.Context) error
	TruncateStaged(ctx context.Context) error
}
