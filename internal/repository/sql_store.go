package repository

import (
	"context"
	stdsql "database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/packing-tracker/constants"
	"github.com/joseph-ayodele/packing-tracker/internal/common"
	"github.com/joseph-ayodele/packing-tracker/internal/entity"
	"github.com/joseph-ayodele/packing-tracker/internal/feed"
)

const (
	tableJobs      = "jobs"
	tableAuditLogs = "job_audit_logs"
)

var jobColumns = []string{
	"id", "version", "customer", "product", "priority", "si_qty", "job_qty", "remark",
	"status", "current_phase",
	"progress_picking", "progress_packing", "progress_process_data", "progress_storage",
	"start_date", "due_date", "jobsheet_no", "reference_no",
	"is_deleted", "created_by", "created_at", "updated_at",
}

var auditColumns = []string{
	"seq", "id", "job_id", "action", "old_value", "new_value", "performed_by", "details", "created_at",
}

// sqlStore implements JobStore over database/sql for Postgres and SQLite.
type sqlStore struct {
	db      *stdsql.DB
	dialect string
	bus     feed.Bus
	now     Clock
	logger  *slog.Logger
	closers []func()
}

func newSQLStore(db *stdsql.DB, dialectName string, bus feed.Bus, logger *slog.Logger) *sqlStore {
	if logger == nil {
		logger = slog.Default()
	}
	if bus == nil {
		bus = feed.NewLocalBus()
	}
	return &sqlStore{db: db, dialect: dialectName, bus: bus, now: defaultClock, logger: logger}
}

func (s *sqlStore) builder() *entsql.DialectBuilder {
	return entsql.Dialect(s.dialect)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*entity.Job, error) {
	var (
		j        entity.Job
		priority string
		status   string
		phase    stdsql.NullString
	)
	err := row.Scan(
		&j.ID, &j.Version, &j.Customer, &j.Product, &priority, &j.SIQty, &j.JobQty, &j.Remark,
		&status, &phase,
		&j.PhaseProgress.Picking, &j.PhaseProgress.Packing, &j.PhaseProgress.ProcessData, &j.PhaseProgress.Storage,
		&j.StartDate, &j.DueDate, &j.JobsheetNo, &j.ReferenceNo,
		&j.IsDeleted, &j.CreatedBy, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	j.Priority = constants.Priority(priority)
	j.Status = constants.JobStatus(status)
	if phase.Valid {
		j.SetPhase(constants.Phase(phase.String))
	}
	return &j, nil
}

func phaseValue(j *entity.Job) any {
	if p, ok := j.Phase(); ok {
		return string(p)
	}
	return nil
}

func (s *sqlStore) Get(ctx context.Context, id uuid.UUID) (*entity.Job, error) {
	q, args := s.builder().Select(jobColumns...).
		From(entsql.Table(tableJobs)).
		Where(entsql.EQ("id", id)).
		Query()
	job, err := scanJob(s.db.QueryRowContext(ctx, q, args...))
	if errors.Is(err, stdsql.ErrNoRows) {
		return nil, common.NewNotFound("job %s not found", id)
	}
	if err != nil {
		s.logger.Error("failed to get job", "job_id", id, "error", err)
		return nil, common.NewAppError(common.CodeDatabase, "get job", errors.Join(common.ErrDatabase, err))
	}
	return job, nil
}

func (s *sqlStore) Insert(ctx context.Context, job *entity.Job) (*entity.Job, error) {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if err := checkDocument(job); err != nil {
		return nil, err
	}
	stored := job.Clone()
	now := s.now()
	stored.Version = 1
	stored.CreatedAt = now
	stored.UpdatedAt = now

	q, args := s.builder().Insert(tableJobs).
		Columns(jobColumns...).
		Values(
			stored.ID, stored.Version, stored.Customer, stored.Product, string(stored.Priority),
			stored.SIQty, stored.JobQty, stored.Remark,
			string(stored.Status), phaseValue(stored),
			stored.PhaseProgress.Picking, stored.PhaseProgress.Packing,
			stored.PhaseProgress.ProcessData, stored.PhaseProgress.Storage,
			stored.StartDate.UTC(), stored.DueDate.UTC(), stored.JobsheetNo, stored.ReferenceNo,
			stored.IsDeleted, stored.CreatedBy, stored.CreatedAt, stored.UpdatedAt,
		).
		Query()
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		s.logger.Error("failed to insert job", "job_id", stored.ID, "error", err)
		return nil, common.NewAppError(common.CodeDatabase, "insert job", errors.Join(common.ErrDatabase, err))
	}
	publishChange(ctx, s.bus, stored, s.logger)
	return stored.Clone(), nil
}

func (s *sqlStore) Update(ctx context.Context, id uuid.UUID, expectVersion int64, fn UpdateFunc) (*entity.Job, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, common.NewAppError(common.CodeDatabase, "begin transaction", errors.Join(common.ErrDatabase, err))
	}
	defer func() { _ = tx.Rollback() }()

	sel := s.builder().Select(jobColumns...).
		From(entsql.Table(tableJobs)).
		Where(entsql.EQ("id", id))
	if s.dialect == dialect.Postgres {
		sel = sel.ForUpdate()
	}
	q, args := sel.Query()
	cur, err := scanJob(tx.QueryRowContext(ctx, q, args...))
	if errors.Is(err, stdsql.ErrNoRows) {
		return nil, common.NewNotFound("job %s not found", id)
	}
	if err != nil {
		return nil, common.NewAppError(common.CodeDatabase, "read job", errors.Join(common.ErrDatabase, err))
	}

	next, err := applyUpdate(cur, expectVersion, fn, s.now())
	if err != nil {
		return nil, err
	}

	upd := s.builder().Update(tableJobs).
		Set("version", next.Version).
		Set("customer", next.Customer).
		Set("product", next.Product).
		Set("priority", string(next.Priority)).
		Set("si_qty", next.SIQty).
		Set("job_qty", next.JobQty).
		Set("remark", next.Remark).
		Set("status", string(next.Status)).
		Set("progress_picking", next.PhaseProgress.Picking).
		Set("progress_packing", next.PhaseProgress.Packing).
		Set("progress_process_data", next.PhaseProgress.ProcessData).
		Set("progress_storage", next.PhaseProgress.Storage).
		Set("start_date", next.StartDate.UTC()).
		Set("due_date", next.DueDate.UTC()).
		Set("jobsheet_no", next.JobsheetNo).
		Set("reference_no", next.ReferenceNo).
		Set("is_deleted", next.IsDeleted).
		Set("updated_at", next.UpdatedAt)
	if p, ok := next.Phase(); ok {
		upd = upd.Set("current_phase", string(p))
	} else {
		// absence of the phase is the status discriminant, so remove it
		upd = upd.SetNull("current_phase")
	}
	q, args = upd.Where(entsql.And(entsql.EQ("id", id), entsql.EQ("version", cur.Version))).Query()
	res, err := tx.ExecContext(ctx, q, args...)
	if err != nil {
		s.logger.Error("failed to update job", "job_id", id, "error", err)
		return nil, common.NewAppError(common.CodeDatabase, "update job", errors.Join(common.ErrDatabase, err))
	}
	if n, err := res.RowsAffected(); err == nil && n != 1 {
		return nil, common.NewConflict("job %s changed during update", id)
	}
	if err := tx.Commit(); err != nil {
		return nil, common.NewAppError(common.CodeDatabase, "commit job update", errors.Join(common.ErrDatabase, err))
	}

	publishChange(ctx, s.bus, next, s.logger)
	return next, nil
}

func (s *sqlStore) AppendAudit(ctx context.Context, jobID uuid.UUID, entry *entity.AuditLog) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	entry.JobID = jobID
	entry.Timestamp = s.now()
	q, args := s.builder().Insert(tableAuditLogs).
		Columns("id", "job_id", "action", "old_value", "new_value", "performed_by", "details", "created_at").
		Values(entry.ID, jobID, string(entry.Action), rawOrNil(entry.OldValue), rawOrNil(entry.NewValue),
			entry.PerformedBy, entry.Details, entry.Timestamp).
		Query()
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return common.NewAppError(common.CodeDatabase, "append audit log", errors.Join(common.ErrDatabase, err))
	}
	return nil
}

func (s *sqlStore) ListAudit(ctx context.Context, jobID uuid.UUID) ([]*entity.AuditLog, error) {
	if _, err := s.Get(ctx, jobID); err != nil {
		return nil, err
	}
	q, args := s.builder().Select(auditColumns...).
		From(entsql.Table(tableAuditLogs)).
		Where(entsql.EQ("job_id", jobID)).
		OrderBy("created_at", "seq").
		Query()
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, common.NewAppError(common.CodeDatabase, "list audit logs", errors.Join(common.ErrDatabase, err))
	}
	defer rows.Close()

	var out []*entity.AuditLog
	for rows.Next() {
		var (
			e              entity.AuditLog
			action         string
			oldVal, newVal stdsql.NullString
		)
		if err := rows.Scan(&e.Seq, &e.ID, &e.JobID, &action, &oldVal, &newVal, &e.PerformedBy, &e.Details, &e.Timestamp); err != nil {
			return nil, common.NewAppError(common.CodeDatabase, "scan audit log", errors.Join(common.ErrDatabase, err))
		}
		e.Action = constants.AuditAction(action)
		if oldVal.Valid {
			e.OldValue = json.RawMessage(oldVal.String)
		}
		if newVal.Valid {
			e.NewValue = json.RawMessage(newVal.String)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

func (s *sqlStore) List(ctx context.Context, filter entity.JobFilter) ([]*entity.Job, error) {
	var preds []*entsql.Predicate
	if !filter.IncludeDeleted {
		preds = append(preds, entsql.EQ("is_deleted", false))
	}
	if filter.Customer != "" {
		preds = append(preds, entsql.EQ("customer", filter.Customer))
	}
	if len(filter.Statuses) > 0 {
		vals := make([]any, len(filter.Statuses))
		for i, st := range filter.Statuses {
			vals[i] = string(st)
		}
		preds = append(preds, entsql.In("status", vals...))
	}
	sel := s.builder().Select(jobColumns...).From(entsql.Table(tableJobs))
	if len(preds) > 0 {
		sel = sel.Where(entsql.And(preds...))
	}
	q, args := sel.OrderBy("created_at", "id").Query()
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, common.NewAppError(common.CodeDatabase, "list jobs", errors.Join(common.ErrDatabase, err))
	}
	defer rows.Close()

	var out []*entity.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, common.NewAppError(common.CodeDatabase, "scan job", errors.Join(common.ErrDatabase, err))
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func (s *sqlStore) Subscribe(ctx context.Context, filter entity.JobFilter) (<-chan []*entity.Job, error) {
	return watch(ctx, s.bus, filter, s.List, s.logger)
}

func (s *sqlStore) Close() error {
	err := s.db.Close()
	for _, c := range s.closers {
		c()
	}
	return err
}

// migrate applies every embedded migration not yet recorded in schema_migrations.
func (s *sqlStore) migrate(ctx context.Context, files fs.FS) error {
	createTable := `CREATE TABLE IF NOT EXISTS schema_migrations (version TEXT PRIMARY KEY, applied_at TIMESTAMP NOT NULL)`
	if _, err := s.db.ExecContext(ctx, createTable); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}
	names, err := fs.Glob(files, "*/*.sql")
	if err != nil {
		return err
	}
	sort.Strings(names)
	for _, name := range names {
		version := strings.TrimSuffix(name[strings.LastIndex(name, "/")+1:], ".sql")
		q, args := s.builder().Select("version").
			From(entsql.Table("schema_migrations")).
			Where(entsql.EQ("version", version)).
			Query()
		var found string
		err := s.db.QueryRowContext(ctx, q, args...).Scan(&found)
		if err == nil {
			continue
		}
		if !errors.Is(err, stdsql.ErrNoRows) {
			return fmt.Errorf("check migration %s: %w", version, err)
		}
		body, err := fs.ReadFile(files, name)
		if err != nil {
			return err
		}
		if err := s.applyMigration(ctx, version, string(body)); err != nil {
			return err
		}
		s.logger.Info("applied migration", "version", version, "dialect", s.dialect)
	}
	return nil
}

func (s *sqlStore) applyMigration(ctx context.Context, version, body string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, body); err != nil {
		return fmt.Errorf("apply migration %s: %w", version, err)
	}
	q, args := s.builder().Insert("schema_migrations").
		Columns("version", "applied_at").
		Values(version, s.now()).
		Query()
	if _, err := tx.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("record migration %s: %w", version, err)
	}
	return tx.Commit()
}

func rawOrNil(b json.RawMessage) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
