package job

import (
	"context"
)

type Sweeper interface {
	Sweep(ctx context.Context) error
}

// EmbeddingSweepJob periodically re-embeds documents that have no chunks,
// catching uploads whose queue task was lost.
type EmbeddingSweepJob struct {
	sweeper Sweeper
}

func NewEmbeddingSweepJob(sweeper Sweeper) *EmbeddingSweepJob {
	return &EmbeddingSweepJob{sweeper: sweeper}
}

func (j *EmbeddingSweepJob) Name() string {
	return "embedding_sweep"
}

func (j *EmbeddingSweepJob) Run(ctx context.Context) error {
	return j.sweeper.Sweep(ctx)
}
