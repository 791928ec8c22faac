package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"caseTasks/internal/config"
	"caseTasks/internal/logger"
	"caseTasks/internal/models/task"
	repo "caseTasks/internal/repository"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const uniqueViolation = "23505"

const taskColumns = `uuid,
	title,
	description,
	instruction,
	category,
	priority,
	status,
	start_date,
	due_date,
	assignees,
	case_reference,
	recurrence,
	series_id,
	cancellation_reason,
	completion_comment,
	is_template,
	template_name,
	reference_documents,
	created_at,
	updated_at,
	completed_at,
	version`

type Storage struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, cfg config.DatabaseConfig) (*Storage, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		logger.Error("Repository: parsing database config", err)
		return nil, fmt.Errorf("parsing database config: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MinConns = int32(cfg.MinConnections)
	poolConfig.MaxConnIdleTime = cfg.IdleTimeout

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Error("Repository: creating pool", err)
		return nil, fmt.Errorf("creating pool: %w", err)
	}

	if err = pool.Ping(ctx); err != nil {
		pool.Close()
		logger.Error("Repository: ping failed", err)
		return nil, fmt.Errorf("ping: %w", err)
	}

	logger.Info("Repository: connected to PostgreSQL",
		zap.Int32("max_conns", poolConfig.MaxConns),
		zap.Int32("min_conns", poolConfig.MinConns))
	return &Storage{pool: pool}, nil
}

// Pool is shared with the user directory so both use one set of connections.
func (s *Storage) Pool() *pgxpool.Pool {
	return s.pool
}

func (s *Storage) Close() {
	s.pool.Close()
	logger.Info("Repository: PostgreSQL connections closed")
}

func (s *Storage) HealthCheck(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		logger.Error("Repository: ping failed", err)
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// querier is satisfied by both the pool and a transaction.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (s *Storage) Create(ctx context.Context, taskToCreate *task.Task) error {
	return s.insert(ctx, s.pool, taskToCreate, "")
}

// insert adds taskToCreate. With a conflict clause that skips the row, a row
// that already exists is reported as ErrAlreadyExists without aborting a transaction.
func (s *Storage) insert(ctx context.Context, q querier, taskToCreate *task.Task, onConflict string) error {
	start := time.Now()

	enc, err := encode(taskToCreate)
	if err != nil {
		return err
	}
	if taskToCreate.CreatedAt.IsZero() {
		taskToCreate.CreatedAt = time.Now()
	}

	query := `INSERT INTO tasks
				(uuid, title, description, instruction, category, priority, status,
				 start_date, due_date, assignees, created_by, case_reference, recurrence,
				 series_id, cancellation_reason, completion_comment, is_template,
				 template_name, reference_documents, created_at, completed_at, version)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
				        $15, $16, $17, $18, $19, $20, $21, 1)
				` + onConflict + `
				RETURNING created_at, version`

	err = q.QueryRow(ctx, query,
		taskToCreate.UUID,
		taskToCreate.Title,
		taskToCreate.Description,
		taskToCreate.Instruction,
		taskToCreate.Category,
		taskToCreate.Priority,
		taskToCreate.Status,
		taskToCreate.StartDate,
		taskToCreate.DueDate,
		enc.assignees,
		taskToCreate.CreatedBy(),
		enc.caseReference,
		enc.recurrence,
		taskToCreate.SeriesID,
		taskToCreate.CancellationReason,
		taskToCreate.CompletionComment,
		taskToCreate.IsTemplate,
		taskToCreate.TemplateName,
		docs(taskToCreate.ReferenceDocuments),
		taskToCreate.CreatedAt,
		taskToCreate.CompletedAt,
	).Scan(&taskToCreate.CreatedAt, &taskToCreate.Version)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.Is(err, pgx.ErrNoRows) || (errors.As(err, &pgErr) && pgErr.Code == uniqueViolation) {
			logger.Info("Repository: task already exists", zap.String("task_id", taskToCreate.UUID.String()))
			return repo.ErrAlreadyExists
		}
		logger.Error("Repository: inserting task", err, zap.Duration("ms", time.Since(start)))
		return fmt.Errorf("inserting task: %w", err)
	}

	slowQuery("create", start, 50*time.Millisecond)
	return nil
}

// Update writes taskToUpdate if the stored version still equals taskToUpdate.Version.
func (s *Storage) Update(ctx context.Context, taskToUpdate *task.Task) error {
	return s.update(ctx, s.pool, taskToUpdate)
}

func (s *Storage) update(ctx context.Context, q querier, taskToUpdate *task.Task) error {
	start := time.Now()

	enc, err := encode(taskToUpdate)
	if err != nil {
		return err
	}

	query := `UPDATE tasks
			SET title = $1,
				description = $2,
				instruction = $3,
				category = $4,
				priority = $5,
				status = $6,
				start_date = $7,
				due_date = $8,
				assignees = $9,
				case_reference = $10,
				recurrence = $11,
				cancellation_reason = $12,
				completion_comment = $13,
				template_name = $14,
				reference_documents = $15,
				completed_at = $16,
				version = version + 1,
				updated_at = NOW()
			WHERE uuid = $17 AND version = $18
			RETURNING updated_at, version`

	err = q.QueryRow(ctx, query,
		taskToUpdate.Title,
		taskToUpdate.Description,
		taskToUpdate.Instruction,
		taskToUpdate.Category,
		taskToUpdate.Priority,
		taskToUpdate.Status,
		taskToUpdate.StartDate,
		taskToUpdate.DueDate,
		enc.assignees,
		enc.caseReference,
		enc.recurrence,
		taskToUpdate.CancellationReason,
		taskToUpdate.CompletionComment,
		taskToUpdate.TemplateName,
		docs(taskToUpdate.ReferenceDocuments),
		taskToUpdate.CompletedAt,
		taskToUpdate.UUID,
		taskToUpdate.Version,
	).Scan(&taskToUpdate.UpdatedAt, &taskToUpdate.Version)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return missOrConflict(ctx, q, taskToUpdate)
		}
		logger.Error("Repository: updating task", err, zap.Duration("ms", time.Since(start)))
		return fmt.Errorf("updating task: %w", err)
	}

	slowQuery("update", start, 100*time.Millisecond)
	return nil
}

// missOrConflict tells a vanished row apart from a stale version after an update matched nothing.
func missOrConflict(ctx context.Context, q querier, t *task.Task) error {
	var exists bool
	if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM tasks WHERE uuid = $1)`, t.UUID).Scan(&exists); err != nil {
		return fmt.Errorf("checking task: %w", err)
	}
	if !exists {
		return repo.ErrNotFound
	}
	logger.Warn("Repository: version conflict on update",
		zap.String("task_id", t.UUID.String()),
		zap.Int("expected_version", t.Version))
	return repo.ErrVersionConflict
}

// UpdateWithSuccessor writes done and inserts next in one transaction. A
// successor that is already stored is kept and does not fail the write.
func (s *Storage) UpdateWithSuccessor(ctx context.Context, done, next *task.Task) error {
	start := time.Now()

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		logger.Error("Repository: beginning transaction", err)
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			logger.Warn("Repository: rollback failed", zap.Error(rbErr))
		}
	}()

	if err := s.update(ctx, tx, done); err != nil {
		return err
	}
	if err := s.insert(ctx, tx, next, "ON CONFLICT (uuid) DO NOTHING"); err != nil && !errors.Is(err, repo.ErrAlreadyExists) {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		logger.Error("Repository: committing completion", err, zap.String("task_id", done.UUID.String()))
		return fmt.Errorf("committing completion: %w", err)
	}

	slowQuery("update_with_successor", start, 150*time.Millisecond)
	return nil
}

func (s *Storage) GetByID(ctx context.Context, id uuid.UUID) (*task.Task, error) {
	start := time.Now()

	query := `SELECT ` + taskColumns + ` FROM tasks WHERE uuid = $1`

	t, err := scanTask(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repo.ErrNotFound
		}
		logger.Error("Repository: reading task", err, zap.Duration("ms", time.Since(start)))
		return nil, fmt.Errorf("reading task: %w", err)
	}

	slowQuery("get", start, 100*time.Millisecond)
	return t, nil
}

func (s *Storage) List(ctx context.Context, filter repo.ListFilter) ([]*task.Task, error) {
	start := time.Now()
	filter = filter.Normalize()

	where, args := listConditions(filter)
	args = append(args, filter.Limit, filter.Offset())
	query := `SELECT ` + taskColumns + ` FROM tasks
				WHERE ` + strings.Join(where, " AND ") + `
				ORDER BY created_at, uuid
				LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))

	tasks, err := s.queryTasks(ctx, query, args...)
	if err != nil {
		logger.Error("Repository: listing tasks", err, zap.Duration("ms", time.Since(start)))
		return nil, fmt.Errorf("listing tasks: %w", err)
	}

	slowQuery("list", start, 50*time.Millisecond+10*time.Millisecond*time.Duration(filter.Limit))
	return tasks, nil
}

// listConditions builds the WHERE clause with the visibility predicate first.
func listConditions(f repo.ListFilter) ([]string, []any) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if p := f.Participant; p != nil {
		if p.IsClient {
			where = append(where, `(jsonb_array_length(assignees) = 1 AND assignees @> jsonb_build_array(jsonb_build_object('userId', `+arg(p.UserID.String())+`::text, 'isClient', true)))`)
		} else {
			member := arg(p.UserID.String())
			creator := arg(p.UserID)
			where = append(where, `(assignees @> jsonb_build_array(jsonb_build_object('userId', `+member+`::text)) OR created_by = `+creator+`)`)
		}
	}

	where = append(where, `is_template = `+arg(f.Templates))
	if f.Status != nil {
		where = append(where, `status = `+arg(string(*f.Status)))
	}
	if f.Priority != nil {
		where = append(where, `priority = `+arg(string(*f.Priority)))
	}
	if f.DueBefore != nil {
		where = append(where, `status NOT IN ('completed', 'cancelled') AND due_date < `+arg(*f.DueBefore))
	}
	if f.Search != "" {
		q := arg("%" + escapeLike(f.Search) + "%")
		where = append(where, `(title ILIKE `+q+` OR description ILIKE `+q+` OR instruction ILIKE `+q+
			` OR template_name ILIKE `+q+` OR COALESCE(case_reference->>'label', '') ILIKE `+q+`)`)
	}
	return where, args
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// ListDueBefore returns open, non-template tasks due before deadline, ordered by
// due date then id. With after set, the page starts behind that cursor.
func (s *Storage) ListDueBefore(ctx context.Context, deadline time.Time, after *repo.DueCursor, limit int) ([]*task.Task, error) {
	start := time.Now()

	args := []any{deadline, limit}
	keyset := ""
	if after != nil {
		args = append(args, after.DueDate, after.UUID)
		keyset = `AND (due_date, uuid) > ($3, $4)`
	}

	query := `SELECT ` + taskColumns + ` FROM tasks
              WHERE NOT is_template
                AND status NOT IN ('completed', 'cancelled')
                AND due_date < $1
                ` + keyset + `
              ORDER BY due_date, uuid
              LIMIT $2`

	tasks, err := s.queryTasks(ctx, query, args...)
	if err != nil {
		logger.Error("Repository: listing due tasks", err, zap.Duration("ms", time.Since(start)))
		return nil, fmt.Errorf("listing due tasks: %w", err)
	}

	slowQuery("due_before", start, 50*time.Millisecond+10*time.Millisecond*time.Duration(limit))
	return tasks, nil
}

func (s *Storage) queryTasks(ctx context.Context, query string, args ...any) ([]*task.Task, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tasks := []*task.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning task: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}
	return tasks, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*task.Task, error) {
	var (
		t                              task.Task
		assignees, caseRef, recurrence []byte
	)
	err := row.Scan(
		&t.UUID,
		&t.Title,
		&t.Description,
		&t.Instruction,
		&t.Category,
		&t.Priority,
		&t.Status,
		&t.StartDate,
		&t.DueDate,
		&assignees,
		&caseRef,
		&recurrence,
		&t.SeriesID,
		&t.CancellationReason,
		&t.CompletionComment,
		&t.IsTemplate,
		&t.TemplateName,
		&t.ReferenceDocuments,
		&t.CreatedAt,
		&t.UpdatedAt,
		&t.CompletedAt,
		&t.Version,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(assignees, &t.Assignees); err != nil {
		return nil, fmt.Errorf("decoding assignees of %s: %w", t.UUID, err)
	}
	if len(caseRef) > 0 {
		t.CaseReference = &task.CaseReference{}
		if err := json.Unmarshal(caseRef, t.CaseReference); err != nil {
			return nil, fmt.Errorf("decoding case reference of %s: %w", t.UUID, err)
		}
	}
	if len(recurrence) > 0 {
		t.Recurrence = &task.Recurrence{}
		if err := json.Unmarshal(recurrence, t.Recurrence); err != nil {
			return nil, fmt.Errorf("decoding recurrence of %s: %w", t.UUID, err)
		}
	}
	if len(t.ReferenceDocuments) == 0 {
		t.ReferenceDocuments = nil
	}
	return &t, nil
}

type encoded struct {
	assignees     []byte
	caseReference []byte
	recurrence    []byte
}

func encode(t *task.Task) (encoded, error) {
	var (
		enc encoded
		err error
	)
	if enc.assignees, err = json.Marshal(t.Assignees); err != nil {
		return enc, fmt.Errorf("encoding assignees: %w", err)
	}
	if t.CaseReference != nil {
		if enc.caseReference, err = json.Marshal(t.CaseReference); err != nil {
			return enc, fmt.Errorf("encoding case reference: %w", err)
		}
	}
	if t.Recurrence != nil {
		if enc.recurrence, err = json.Marshal(t.Recurrence); err != nil {
			return enc, fmt.Errorf("encoding recurrence: %w", err)
		}
	}
	return enc, nil
}

func docs(d []string) []string {
	if d == nil {
		return []string{}
	}
	return d
}

func slowQuery(op string, start time.Time, threshold time.Duration) {
	if elapsed := time.Since(start); elapsed > threshold {
		logger.Warn("Repository: slow query", zap.String("op", op), zap.Duration("ms", elapsed))
	}
}
