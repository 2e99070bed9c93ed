package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/browserteacher/browserteacher/internal/domain"
	"github.com/browserteacher/browserteacher/internal/shared"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
	// planMu serializes lesson plan read-modify-write cycles. Step toggles
	// rewrite the whole step array; without this, concurrent toggles on
	// different steps of the same plan could silently drop one change.
	planMu sync.Mutex
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		room_id TEXT NOT NULL UNIQUE,
		provider_session_id TEXT NOT NULL,
		live_view_url TEXT NOT NULL,
		control_endpoint TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		ended_at INTEGER
	);

	CREATE TABLE IF NOT EXISTS lesson_plans (
		session_id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT NOT NULL,
		goal TEXT NOT NULL,
		objective TEXT NOT NULL,
		user_objective TEXT NOT NULL DEFAULT '',
		steps_json TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS chat_messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chat_by_session_time ON chat_messages(session_id, created_at);

	CREATE TABLE IF NOT EXISTS agent_messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		room_id TEXT NOT NULL,
		payload TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_agent_by_room_time ON agent_messages(room_id, created_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// StartSession creates or overwrites the session bound to roomID.
func (s *SQLiteStore) StartSession(ctx context.Context, roomID, providerSessionID, liveViewURL, controlEndpoint string) (*domain.Session, error) {
	query := `
	INSERT INTO sessions (id, room_id, provider_session_id, live_view_url, control_endpoint, status, created_at, ended_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, NULL)
	ON CONFLICT(room_id) DO UPDATE SET
		provider_session_id = excluded.provider_session_id,
		live_view_url = excluded.live_view_url,
		control_endpoint = excluded.control_endpoint,
		status = excluded.status,
		created_at = excluded.created_at,
		ended_at = NULL`

	_, err := s.db.ExecContext(ctx, query,
		uuid.NewString(), roomID, providerSessionID, liveViewURL, controlEndpoint,
		domain.SessionStatusActive, time.Now().UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("upsert session: %w", err)
	}

	session, err := s.GetSessionByRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, fmt.Errorf("read back session for room %s: not found", roomID)
	}
	return session, nil
}

const sessionColumns = `id, room_id, provider_session_id, live_view_url, control_endpoint, status, created_at, ended_at`

// GetSessionByID retrieves a session by its store-assigned identity.
func (s *SQLiteStore) GetSessionByID(ctx context.Context, id string) (*domain.Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	return scanSession(row)
}

// GetSessionByRoom retrieves the session bound to a room.
func (s *SQLiteStore) GetSessionByRoom(ctx context.Context, roomID string) (*domain.Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE room_id = ?`, roomID)
	return scanSession(row)
}

func scanSession(row *sql.Row) (*domain.Session, error) {
	var session domain.Session
	var createdAt int64
	var endedAt sql.NullInt64

	err := row.Scan(
		&session.ID, &session.RoomID, &session.ProviderSessionID,
		&session.LiveViewURL, &session.ControlEndpoint, &session.Status,
		&createdAt, &endedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}

	session.CreatedAt = time.UnixMilli(createdAt)
	if endedAt.Valid {
		ts := time.UnixMilli(endedAt.Int64)
		session.EndedAt = &ts
	}

	return &session, nil
}

// UpsertLessonPlan inserts or fully replaces the plan for a session.
func (s *SQLiteStore) UpsertLessonPlan(ctx context.Context, sessionID string, plan *domain.LessonPlan) (*domain.LessonPlan, error) {
	s.planMu.Lock()
	defer s.planMu.Unlock()

	return s.writeLessonPlan(ctx, sessionID, plan)
}

// writeLessonPlan performs the upsert and reads the stored plan back.
// Callers must hold planMu.
func (s *SQLiteStore) writeLessonPlan(ctx context.Context, sessionID string, plan *domain.LessonPlan) (*domain.LessonPlan, error) {
	steps := plan.Steps
	if steps == nil {
		steps = []domain.LessonStep{}
	}
	stepsJSON, err := json.Marshal(steps)
	if err != nil {
		return nil, fmt.Errorf("marshal lesson steps: %w", err)
	}

	query := `
	INSERT INTO lesson_plans (session_id, title, description, goal, objective, user_objective, steps_json, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(session_id) DO UPDATE SET
		title = excluded.title,
		description = excluded.description,
		goal = excluded.goal,
		objective = excluded.objective,
		user_objective = excluded.user_objective,
		steps_json = excluded.steps_json,
		updated_at = excluded.updated_at`

	_, err = s.db.ExecContext(ctx, query,
		sessionID, plan.Title, plan.Description, plan.Goal, plan.Objective,
		plan.UserObjective, string(stepsJSON), time.Now().UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("upsert lesson plan: %w", err)
	}

	stored, err := s.getLessonPlan(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, fmt.Errorf("read back lesson plan for session %s: not found", sessionID)
	}
	return stored, nil
}

// GetLessonPlan retrieves the plan for a session.
func (s *SQLiteStore) GetLessonPlan(ctx context.Context, sessionID string) (*domain.LessonPlan, error) {
	s.planMu.Lock()
	defer s.planMu.Unlock()

	return s.getLessonPlan(ctx, sessionID)
}

func (s *SQLiteStore) getLessonPlan(ctx context.Context, sessionID string) (*domain.LessonPlan, error) {
	query := `
		SELECT session_id, title, description, goal, objective, user_objective, steps_json, updated_at
		FROM lesson_plans WHERE session_id = ?`

	row := s.db.QueryRowContext(ctx, query, sessionID)

	var plan domain.LessonPlan
	var stepsJSON string
	var updatedAt int64

	err := row.Scan(
		&plan.SessionID, &plan.Title, &plan.Description, &plan.Goal,
		&plan.Objective, &plan.UserObjective, &stepsJSON, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan lesson plan row: %w", err)
	}

	if err := json.Unmarshal([]byte(stepsJSON), &plan.Steps); err != nil {
		return nil, fmt.Errorf("unmarshal lesson steps: %w", err)
	}
	plan.UpdatedAt = time.UnixMilli(updatedAt)

	return &plan, nil
}

// ToggleLessonStep sets or flips the done flag on one step of a plan.
// Retries with exponential backoff on SQLite concurrency errors, since the
// read-modify-write cycle competes with plan upserts for the same row.
func (s *SQLiteStore) ToggleLessonStep(ctx context.Context, sessionID, stepID string, done *bool) (*domain.LessonPlan, error) {
	maxRetries := 3
	baseDelay := 100 * time.Millisecond

	var lastErr error
	for i := 0; i < maxRetries; i++ {
		plan, err := s.toggleLessonStepOnce(ctx, sessionID, stepID, done)
		if err == nil {
			return plan, nil
		}
		lastErr = err

		if shared.IsSQLiteConflictError(err) && i < maxRetries-1 {
			delay := baseDelay * time.Duration(1<<i)
			slog.Debug("toggle step hit locked database, retrying",
				"session_id", sessionID,
				"step_id", stepID,
				"attempt", i+1,
				"delay", delay)
			time.Sleep(delay)
			continue
		}
		break
	}

	return nil, fmt.Errorf("toggle step %s for session %s: %w", stepID, sessionID, lastErr)
}

func (s *SQLiteStore) toggleLessonStepOnce(ctx context.Context, sessionID, stepID string, done *bool) (*domain.LessonPlan, error) {
	s.planMu.Lock()
	defer s.planMu.Unlock()

	plan, err := s.getLessonPlan(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, nil
	}

	// A stepID matching nothing leaves the collection unchanged; the plan is
	// still rewritten and returned, never a "step not found" error.
	for i := range plan.Steps {
		if plan.Steps[i].ID != stepID {
			continue
		}
		if done != nil {
			plan.Steps[i].Done = *done
		} else {
			plan.Steps[i].Done = !plan.Steps[i].Done
		}
		break
	}

	return s.writeLessonPlan(ctx, sessionID, plan)
}

// AppendChatMessage appends one immutable transcript entry.
func (s *SQLiteStore) AppendChatMessage(ctx context.Context, sessionID, role, content string) (*domain.ChatMessage, error) {
	now := time.Now().UnixMilli()
	query := `INSERT INTO chat_messages (session_id, role, content, created_at) VALUES (?, ?, ?, ?)`
	res, err := s.db.ExecContext(ctx, query, sessionID, role, content, now)
	if err != nil {
		return nil, fmt.Errorf("append chat message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("chat message insert id: %w", err)
	}

	return &domain.ChatMessage{
		ID:        id,
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		CreatedAt: time.UnixMilli(now),
	}, nil
}

// RecentChatMessages returns the newest limit messages in ascending order.
// The log may be unbounded, so the newest suffix is taken by a descending
// index scan and reversed.
func (s *SQLiteStore) RecentChatMessages(ctx context.Context, sessionID string, limit int) ([]*domain.ChatMessage, error) {
	if limit <= 0 {
		return nil, nil
	}

	query := `
		SELECT id, session_id, role, content, created_at
		FROM chat_messages WHERE session_id = ?
		ORDER BY created_at DESC, id DESC LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("query chat messages: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close chat message rows", "error", closeErr)
		}
	}()

	var messages []*domain.ChatMessage
	for rows.Next() {
		var msg domain.ChatMessage
		var createdAt int64
		if err := rows.Scan(&msg.ID, &msg.SessionID, &msg.Role, &msg.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("scan chat message row: %w", err)
		}
		msg.CreatedAt = time.UnixMilli(createdAt)
		messages = append(messages, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chat messages: %w", err)
	}

	reverseInPlace(messages)
	return messages, nil
}

// AppendAgentMessages appends a batch of opaque payloads for a room.
// All entries share one batch timestamp; insertion order within the batch is
// preserved by the table's rowid.
func (s *SQLiteStore) AppendAgentMessages(ctx context.Context, roomID string, payloads []json.RawMessage) error {
	if len(payloads) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin agent message batch: %w", err)
	}
	defer func() {
		// Rollback is a no-op after commit.
		_ = tx.Rollback()
	}()

	now := time.Now().UnixMilli()
	query := `INSERT INTO agent_messages (room_id, payload, created_at) VALUES (?, ?, ?)`
	for _, payload := range payloads {
		if _, err := tx.ExecContext(ctx, query, roomID, string(payload), now); err != nil {
			return fmt.Errorf("append agent message: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit agent message batch: %w", err)
	}
	return nil
}

// RecentAgentMessages returns the newest limit payloads in ascending order.
func (s *SQLiteStore) RecentAgentMessages(ctx context.Context, roomID string, limit int) ([]json.RawMessage, error) {
	if limit <= 0 {
		return nil, nil
	}

	query := `
		SELECT payload
		FROM agent_messages WHERE room_id = ?
		ORDER BY created_at DESC, id DESC LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("query agent messages: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close agent message rows", "error", closeErr)
		}
	}()

	var payloads []json.RawMessage
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan agent message row: %w", err)
		}
		payloads = append(payloads, json.RawMessage(payload))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate agent messages: %w", err)
	}

	reverseInPlace(payloads)
	return payloads, nil
}

func reverseInPlace[T any](s []T) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
