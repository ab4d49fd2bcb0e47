package captcha

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/titanscrape/titan/internal/model"
)

// PostgresStore is the durable TaskStore backed by PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to connString and ensures the schema exists.
func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("captcha: connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("captcha: ping postgres: %w", err)
	}

	store := &PostgresStore{pool: pool}
	if err := store.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS captcha_tasks (
		id             BIGSERIAL PRIMARY KEY,
		uuid           TEXT NOT NULL UNIQUE,
		url            TEXT NOT NULL,
		domain         TEXT NOT NULL,
		status         TEXT NOT NULL,
		priority       INTEGER NOT NULL,
		challenge_type TEXT NOT NULL,
		assigned_to    TEXT,
		proxy_url      TEXT,
		user_agent     TEXT,
		attempts       INTEGER NOT NULL DEFAULT 0,
		solver_result  JSONB,
		extra          JSONB,
		created_at     TIMESTAMPTZ NOT NULL,
		updated_at     TIMESTAMPTZ NOT NULL,
		solved_at      TIMESTAMPTZ,
		expires_at     TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_captcha_tasks_status ON captcha_tasks(status);
	CREATE INDEX IF NOT EXISTS idx_captcha_tasks_domain ON captcha_tasks(domain);
	CREATE INDEX IF NOT EXISTS idx_captcha_tasks_priority_created ON captcha_tasks(priority DESC, created_at ASC);
	`
	_, err := s.pool.Exec(ctx, schema)
	if err != nil {
		return fmt.Errorf("captcha: migrate postgres schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Create(ctx context.Context, task *model.CaptchaTask) error {
	solverJSON, err := json.Marshal(task.SolverResult)
	if err != nil {
		return fmt.Errorf("captcha: marshal solver_result: %w", err)
	}
	extraJSON, err := json.Marshal(task.Extra)
	if err != nil {
		return fmt.Errorf("captcha: marshal extra: %w", err)
	}

	const query = `
		INSERT INTO captcha_tasks (
			uuid, url, domain, status, priority, challenge_type, proxy_url,
			user_agent, attempts, solver_result, extra, created_at, updated_at,
			expires_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		RETURNING id
	`
	err = s.pool.QueryRow(ctx, query,
		task.UUID, task.URL, task.Domain, task.Status, task.Priority,
		task.ChallengeType, task.ProxyURL, task.UserAgent, task.Attempts,
		solverJSON, extraJSON, task.CreatedAt, task.UpdatedAt, task.ExpiresAt,
	).Scan(&task.ID)
	if err != nil {
		return fmt.Errorf("captcha: insert task: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, uuid string) (*model.CaptchaTask, error) {
	const query = `
		SELECT id, uuid, url, domain, status, priority, challenge_type,
		       assigned_to, proxy_url, user_agent, attempts, solver_result,
		       extra, created_at, updated_at, solved_at, expires_at
		FROM captcha_tasks WHERE uuid = $1
	`
	row := s.pool.QueryRow(ctx, query, uuid)
	task, err := scanTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("captcha: get task: %w", err)
	}
	return task, nil
}

func (s *PostgresStore) List(ctx context.Context, filter ListFilter) ([]model.CaptchaTask, error) {
	query := `
		SELECT id, uuid, url, domain, status, priority, challenge_type,
		       assigned_to, proxy_url, user_agent, attempts, solver_result,
		       extra, created_at, updated_at, solved_at, expires_at
		FROM captcha_tasks
		WHERE ($1 = '' OR status = $1) AND ($2 = '' OR domain = $2)
		ORDER BY priority DESC, created_at ASC
		LIMIT $3 OFFSET $4
	`
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, query, string(filter.Status), filter.Domain, limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("captcha: list tasks: %w", err)
	}
	defer rows.Close()

	var out []model.CaptchaTask
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("captcha: scan task: %w", err)
		}
		out = append(out, *task)
	}
	return out, rows.Err()
}

// Assign relies on Postgres row locking (not a Redis lock) since a single
// durable store already serializes writers through its transaction log.
func (s *PostgresStore) Assign(ctx context.Context, uuid, operatorID string, now time.Time) (*model.CaptchaTask, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("captcha: begin assign tx: %w", err)
	}
	defer tx.Rollback(ctx)

	const selectForUpdate = `
		SELECT id, uuid, url, domain, status, priority, challenge_type,
		       assigned_to, proxy_url, user_agent, attempts, solver_result,
		       extra, created_at, updated_at, solved_at, expires_at
		FROM captcha_tasks WHERE uuid = $1 FOR UPDATE
	`
	row := tx.QueryRow(ctx, selectForUpdate, uuid)
	task, err := scanTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("captcha: lock task: %w", err)
	}
	if !task.IsAssignable(now) {
		return nil, ErrAlreadyAssigned
	}

	task.Status = model.CaptchaAssigned
	task.AssignedTo = operatorID
	task.UpdatedAt = now

	const update = `UPDATE captcha_tasks SET status=$1, assigned_to=$2, updated_at=$3 WHERE uuid=$4`
	if _, err := tx.Exec(ctx, update, task.Status, task.AssignedTo, task.UpdatedAt, uuid); err != nil {
		return nil, fmt.Errorf("captcha: persist assignment: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("captcha: commit assign tx: %w", err)
	}
	return task, nil
}

func (s *PostgresStore) Update(ctx context.Context, task *model.CaptchaTask) error {
	solverJSON, err := json.Marshal(task.SolverResult)
	if err != nil {
		return fmt.Errorf("captcha: marshal solver_result: %w", err)
	}
	extraJSON, err := json.Marshal(task.Extra)
	if err != nil {
		return fmt.Errorf("captcha: marshal extra: %w", err)
	}

	const query = `
		UPDATE captcha_tasks SET
			status=$1, assigned_to=$2, attempts=$3, solver_result=$4, extra=$5,
			updated_at=$6, solved_at=$7
		WHERE uuid=$8
	`
	tag, err := s.pool.Exec(ctx, query,
		task.Status, task.AssignedTo, task.Attempts, solverJSON, extraJSON,
		task.UpdatedAt, task.SolvedAt, task.UUID,
	)
	if err != nil {
		return fmt.Errorf("captcha: update task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListExpirable(ctx context.Context, now time.Time) ([]model.CaptchaTask, error) {
	const query = `
		SELECT id, uuid, url, domain, status, priority, challenge_type,
		       assigned_to, proxy_url, user_agent, attempts, solver_result,
		       extra, created_at, updated_at, solved_at, expires_at
		FROM captcha_tasks
		WHERE status NOT IN ('solved','failed','unsolvable','expired') AND expires_at <= $1
	`
	rows, err := s.pool.Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("captcha: list expirable: %w", err)
	}
	defer rows.Close()

	var out []model.CaptchaTask
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("captcha: scan expirable: %w", err)
		}
		out = append(out, *task)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*model.CaptchaTask, error) {
	var task model.CaptchaTask
	var solverJSON, extraJSON []byte
	if err := row.Scan(
		&task.ID, &task.UUID, &task.URL, &task.Domain, &task.Status,
		&task.Priority, &task.ChallengeType, &task.AssignedTo, &task.ProxyURL,
		&task.UserAgent, &task.Attempts, &solverJSON, &extraJSON,
		&task.CreatedAt, &task.UpdatedAt, &task.SolvedAt, &task.ExpiresAt,
	); err != nil {
		return nil, err
	}
	if len(solverJSON) > 0 {
		if err := json.Unmarshal(solverJSON, &task.SolverResult); err != nil {
			return nil, fmt.Errorf("unmarshal solver_result: %w", err)
		}
	}
	if len(extraJSON) > 0 {
		if err := json.Unmarshal(extraJSON, &task.Extra); err != nil {
			return nil, fmt.Errorf("unmarshal extra: %w", err)
		}
	}
	return &task, nil
}
