package captcha

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/titanscrape/titan/internal/model"
)

// SQLiteStore is the pure-Go TaskStore used for local and dev deployments
// that don't run a Postgres instance.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens dbPath and ensures the schema exists.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("captcha: open sqlite: %w", err)
	}

	const schema = `
	CREATE TABLE IF NOT EXISTS captcha_tasks (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
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
		solver_result  TEXT,
		extra          TEXT,
		created_at     DATETIME NOT NULL,
		updated_at     DATETIME NOT NULL,
		solved_at      DATETIME,
		expires_at     DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_captcha_tasks_status ON captcha_tasks(status);
	CREATE INDEX IF NOT EXISTS idx_captcha_tasks_domain ON captcha_tasks(domain);
	CREATE INDEX IF NOT EXISTS idx_captcha_tasks_priority_created ON captcha_tasks(priority DESC, created_at ASC);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("captcha: migrate sqlite schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Create(ctx context.Context, task *model.CaptchaTask) error {
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
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)
	`
	result, err := s.db.ExecContext(ctx, query,
		task.UUID, task.URL, task.Domain, task.Status, task.Priority,
		task.ChallengeType, task.ProxyURL, task.UserAgent, task.Attempts,
		string(solverJSON), string(extraJSON), task.CreatedAt, task.UpdatedAt,
		task.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("captcha: insert task: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("captcha: read insert id: %w", err)
	}
	task.ID = id
	return nil
}

const sqliteSelectColumns = `
	id, uuid, url, domain, status, priority, challenge_type,
	assigned_to, proxy_url, user_agent, attempts, solver_result,
	extra, created_at, updated_at, solved_at, expires_at
`

func (s *SQLiteStore) Get(ctx context.Context, uuid string) (*model.CaptchaTask, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+sqliteSelectColumns+" FROM captcha_tasks WHERE uuid = ?", uuid)
	task, err := scanSQLiteTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("captcha: get task: %w", err)
	}
	return task, nil
}

func (s *SQLiteStore) List(ctx context.Context, filter ListFilter) ([]model.CaptchaTask, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT ` + sqliteSelectColumns + `
		FROM captcha_tasks
		WHERE (? = '' OR status = ?) AND (? = '' OR domain = ?)
		ORDER BY priority DESC, created_at ASC
		LIMIT ? OFFSET ?
	`
	rows, err := s.db.QueryContext(ctx, query,
		string(filter.Status), string(filter.Status), filter.Domain, filter.Domain,
		limit, filter.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("captcha: list tasks: %w", err)
	}
	defer rows.Close()

	var out []model.CaptchaTask
	for rows.Next() {
		task, err := scanSQLiteTask(rows)
		if err != nil {
			return nil, fmt.Errorf("captcha: scan task: %w", err)
		}
		out = append(out, *task)
	}
	return out, rows.Err()
}

// Assign reads and updates the task inside one transaction opened with
// default options, so SQLite takes its write lock at the UPDATE; its
// single-writer lock keeps two concurrent assignments from both committing,
// the guarantee the Postgres store gets from row locking.
func (s *SQLiteStore) Assign(ctx context.Context, uuid, operatorID string, now time.Time) (*model.CaptchaTask, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("captcha: begin assign tx: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, "SELECT "+sqliteSelectColumns+" FROM captcha_tasks WHERE uuid = ?", uuid)
	task, err := scanSQLiteTask(row)
	if errors.Is(err, sql.ErrNoRows) {
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

	if _, err := tx.ExecContext(ctx,
		"UPDATE captcha_tasks SET status=?, assigned_to=?, updated_at=? WHERE uuid=?",
		task.Status, task.AssignedTo, task.UpdatedAt, uuid,
	); err != nil {
		return nil, fmt.Errorf("captcha: persist assignment: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("captcha: commit assign tx: %w", err)
	}
	return task, nil
}

func (s *SQLiteStore) Update(ctx context.Context, task *model.CaptchaTask) error {
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
			status=?, assigned_to=?, attempts=?, solver_result=?, extra=?,
			updated_at=?, solved_at=?
		WHERE uuid=?
	`
	result, err := s.db.ExecContext(ctx, query,
		task.Status, task.AssignedTo, task.Attempts, string(solverJSON), string(extraJSON),
		task.UpdatedAt, task.SolvedAt, task.UUID,
	)
	if err != nil {
		return fmt.Errorf("captcha: update task: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("captcha: read rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) ListExpirable(ctx context.Context, now time.Time) ([]model.CaptchaTask, error) {
	query := `
		SELECT ` + sqliteSelectColumns + `
		FROM captcha_tasks
		WHERE status NOT IN ('solved','failed','unsolvable','expired') AND expires_at <= ?
	`
	rows, err := s.db.QueryContext(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("captcha: list expirable: %w", err)
	}
	defer rows.Close()

	var out []model.CaptchaTask
	for rows.Next() {
		task, err := scanSQLiteTask(rows)
		if err != nil {
			return nil, fmt.Errorf("captcha: scan expirable: %w", err)
		}
		out = append(out, *task)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func scanSQLiteTask(row rowScanner) (*model.CaptchaTask, error) {
	var task model.CaptchaTask
	var solverJSON, extraJSON sql.NullString
	if err := row.Scan(
		&task.ID, &task.UUID, &task.URL, &task.Domain, &task.Status,
		&task.Priority, &task.ChallengeType, &task.AssignedTo, &task.ProxyURL,
		&task.UserAgent, &task.Attempts, &solverJSON, &extraJSON,
		&task.CreatedAt, &task.UpdatedAt, &task.SolvedAt, &task.ExpiresAt,
	); err != nil {
		return nil, err
	}
	if solverJSON.Valid && solverJSON.String != "" {
		if err := json.Unmarshal([]byte(solverJSON.String), &task.SolverResult); err != nil {
			return nil, fmt.Errorf("unmarshal solver_result: %w", err)
		}
	}
	if extraJSON.Valid && extraJSON.String != "" {
		if err := json.Unmarshal([]byte(extraJSON.String), &task.Extra); err != nil {
			return nil, fmt.Errorf("unmarshal extra: %w", err)
		}
	}
	return &task, nil
}
