package model

import (
	"context"
	"database/sql"
	"fmt"
	"github.com/lib/pq"
	"resume-scheduler/internal/model/sqlquery"
	"time"
)

type sqlJobStorage struct {
	database *sql.DB
}

// OpenDatabase opens and pings a database and makes sure the schema exists.
func OpenDatabase(ctx context.Context, driverName, dataSourceName string) (*sql.DB, error) {
	database, err := sql.Open(driverName, dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed opening database: %w", err)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, sqlquery.DatabaseOperationTimeout)
	defer cancel()
	if err = database.PingContext(timeoutCtx); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed checking database availability: %w", err)
	}
	if _, err = database.ExecContext(timeoutCtx, sqlquery.CreateSchema); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed creating schema: %w", err)
	}
	return database, nil
}

// NewSQLJobStorage wraps an open database. Claims left behind by a
// previous process are released.
func NewSQLJobStorage(ctx context.Context, database *sql.DB) (*sqlJobStorage, error) {
	storage := sqlJobStorage{database}
	if err := storage.init(ctx); err != nil {
		return nil, fmt.Errorf("failed initializing storage: %w", err)
	}
	return &storage, nil
}

func (st *sqlJobStorage) CreateJobs(ctx context.Context, jobs []Job) ([]JobId, error) {
	ids := make([]JobId, 0, len(jobs))
	transactionFunc := func(ctx context.Context, tx *sql.Tx) error {
		for _, job := range jobs {
			var id JobId
			err := tx.QueryRowContext(
				ctx,
				sqlquery.NewJob,
				job.Kind,
				job.Owner,
				job.Target,
				job.NextFireAt,
				job.Interval,
			).Scan(&id)
			if err != nil {
				return fmt.Errorf("failed inserting job for target %s: %w", job.Target, err)
			}
			ids = append(ids, id)
		}
		return nil
	}

	if err := st.transact(ctx, transactionFunc); err != nil {
		return nil, fmt.Errorf("failed creating jobs: %w", err)
	}
	return ids, nil
}

func (st *sqlJobStorage) FindJobs(ctx context.Context, kind Kind, owner, target string) ([]Job, error) {
	jobs, err := st.queryJobs(ctx, sqlquery.FindJobs, kind, owner, target)
	if err != nil {
		return nil, fmt.Errorf("failed finding jobs of owner %s for target %s: %w", owner, target, err)
	}
	return jobs, nil
}

func (st *sqlJobStorage) FindTargetJobs(ctx context.Context, kind Kind, target string) ([]Job, error) {
	jobs, err := st.queryJobs(ctx, sqlquery.FindTargetJobs, kind, target)
	if err != nil {
		return nil, fmt.Errorf("failed finding jobs for target %s: %w", target, err)
	}
	return jobs, nil
}

func (st *sqlJobStorage) DeleteJobs(ctx context.Context, ids []JobId) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	rawIds := make([]int64, len(ids))
	for i, id := range ids {
		rawIds[i] = int64(id)
	}

	result, err := st.database.ExecContext(ctx, sqlquery.DeleteJobs, pq.Array(rawIds))
	if err != nil {
		return 0, fmt.Errorf("failed deleting jobs %v: %w", ids, err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed counting deleted jobs: %w", err)
	}
	return deleted, nil
}

func (st *sqlJobStorage) ClaimDueJobs(ctx context.Context, now time.Time, limit int) ([]Job, error) {
	if limit <= 0 {
		return nil, nil
	}
	var jobs []Job
	transactionFunc := func(ctx context.Context, tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, sqlquery.ClaimDueJobs, now, limit)
		if err != nil {
			return fmt.Errorf("failed claim due jobs query: %w", err)
		}
		defer rows.Close()

		jobs, err = scanJobs(rows)
		return err
	}

	if err := st.transact(ctx, transactionFunc); err != nil {
		return nil, fmt.Errorf("failed claiming due jobs: %w", err)
	}
	return jobs, nil
}

func (st *sqlJobStorage) ReleaseJob(ctx context.Context, job Job, result RunResult) error {
	next, failReason, failCount := releasedFields(job, result)
	_, err := st.database.ExecContext(
		ctx,
		sqlquery.ReleaseJob,
		next,
		result.StartedAt,
		result.FinishedAt,
		failReason,
		failCount,
		job.Id,
	)
	if err != nil {
		return fmt.Errorf("failed releasing job with id %d: %w", job.Id, err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(sc scanner, job *Job) error {
	var lastRunAt, lastFinishedAt sql.NullTime
	err := sc.Scan(
		&job.Id,
		&job.Kind,
		&job.Owner,
		&job.Target,
		&job.NextFireAt,
		&job.Interval,
		&lastRunAt,
		&lastFinishedAt,
		&job.FailReason,
		&job.FailCount,
	)
	if err != nil {
		return err
	}
	if lastRunAt.Valid {
		job.LastRunAt = &lastRunAt.Time
	}
	if lastFinishedAt.Valid {
		job.LastFinishedAt = &lastFinishedAt.Time
	}
	return nil
}

func scanJobs(rows *sql.Rows) ([]Job, error) {
	jobs := make([]Job, 0)
	for rows.Next() {
		job := Job{}
		if err := scanJob(rows, &job); err != nil {
			return nil, fmt.Errorf("failed scanning job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return jobs, rows.Close()
}

func (st *sqlJobStorage) queryJobs(ctx context.Context, query string, params ...any) ([]Job, error) {
	rows, err := st.database.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanJobs(rows)
}

func (st *sqlJobStorage) transact(ctx context.Context, transactionFunc func(context.Context, *sql.Tx) error) error {
	tx, err := st.database.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	err = transactionFunc(ctx, tx)
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (st *sqlJobStorage) init(ctx context.Context) error {
	timeoutCtx, cancel := context.WithTimeout(ctx, sqlquery.DatabaseOperationTimeout)
	defer cancel()
	if _, err := st.database.ExecContext(timeoutCtx, sqlquery.ResetClaims); err != nil {
		return fmt.Errorf("error resetting job claims: %w", err)
	}
	return nil
}
