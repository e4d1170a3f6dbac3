package repopg

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"pipelineengine/internal/pipeline/repository"
)

// UnitOfWork runs transactional callbacks against a pgxpool.Pool, following
// the identity module's BeginTx/defer Rollback/Commit pattern.
type UnitOfWork struct {
	pool *pgxpool.Pool
}

func NewUnitOfWork(pool *pgxpool.Pool) *UnitOfWork {
	return &UnitOfWork{pool: pool}
}

// WithinTx begins a transaction, builds a Repositories bundle bound to it,
// and runs fn. fn's error (or a panic, re-thrown after rollback) rolls the
// transaction back; a nil return commits.
func (u *UnitOfWork) WithinTx(ctx context.Context, fn func(ctx context.Context, repos *repository.Repositories) error) error {
	tx, err := u.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	repos := newRepositories(tx)
	if err := fn(ctx, repos); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// Repositories returns a non-transactional Repositories bundle bound
// directly to the pool, for read paths that don't need a transaction.
func (u *UnitOfWork) Repositories() *repository.Repositories {
	return newRepositories(u.pool)
}

func newRepositories(db dbtx) *repository.Repositories {
	return &repository.Repositories{
		Projects:    NewProjectRepository(db),
		Tasks:       NewTaskRepository(db),
		Pipelines:   NewPipelineRunRepository(db),
		Steps:       NewStepRepository(db),
		AgentRuns:   NewAgentRunRepository(db),
		Artifacts:   NewArtifactRepository(db),
		RetryJobs:   NewRetryJobRepository(db),
		DeadLetters: NewDeadLetterRepository(db),
		Exports:     NewExportJobRepository(db),
		GitSyncs:    NewGitSyncJobRepository(db),
	}
}
