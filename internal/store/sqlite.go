package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ashureev/agentdesk/internal/domain"
	"github.com/ashureev/agentdesk/internal/shared"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const (
	writeRetries   = 3
	writeBaseDelay = 100 * time.Millisecond
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB

	clockMu  sync.Mutex // guards lastTurn
	lastTurn int64
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// modernc applies _pragma parameters to every new pooled connection.
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"
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
	CREATE TABLE IF NOT EXISTS users (
		user_id TEXT PRIMARY KEY,
		username TEXT NOT NULL,
		authenticated INTEGER NOT NULL DEFAULT 0,
		last_seen_at INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS turns (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		owner_id TEXT NOT NULL,
		agent_id TEXT NOT NULL,
		role TEXT NOT NULL CHECK (role IN ('user', 'assistant')),
		content TEXT NOT NULL,
		extracted_text TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_turns_owner_agent ON turns(owner_id, agent_id, created_at, seq);
	CREATE INDEX IF NOT EXISTS idx_turns_created ON turns(created_at);
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

// GetUser retrieves a user by their user ID.
func (s *SQLiteStore) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	query := `
		SELECT user_id, username, authenticated, last_seen_at, created_at, updated_at
		FROM users WHERE user_id = ?`

	row := s.db.QueryRowContext(ctx, query, userID)

	var user domain.User
	var lastSeen, createdAt, updatedAt int64

	err := row.Scan(&user.UserID, &user.Username, &user.Authenticated, &lastSeen, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}

	user.LastSeenAt = time.Unix(lastSeen, 0)
	user.CreatedAt = time.Unix(createdAt, 0)
	user.UpdatedAt = time.Unix(updatedAt, 0)

	return &user, nil
}

// UpsertUser creates or updates a user record.
// An authenticated flag, once set, is never cleared by a later anonymous upsert.
func (s *SQLiteStore) UpsertUser(ctx context.Context, user *domain.User) error {
	query := `
	INSERT INTO users (user_id, username, authenticated, last_seen_at, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		username = excluded.username,
		authenticated = MAX(users.authenticated, excluded.authenticated),
		last_seen_at = excluded.last_seen_at,
		updated_at = excluded.updated_at`

	return shared.RetryOnConflict(ctx, "upsert user", writeRetries, writeBaseDelay, func() error {
		_, err := s.db.ExecContext(ctx, query,
			user.UserID, user.Username, user.Authenticated,
			user.LastSeenAt.Unix(), user.CreatedAt.Unix(), user.UpdatedAt.Unix(),
		)
		return err
	})
}

// UpdateLastSeen updates the last_seen_at timestamp for a user.
func (s *SQLiteStore) UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error {
	query := `UPDATE users SET last_seen_at = ?, updated_at = ? WHERE user_id = ?`
	result, err := s.db.ExecContext(ctx, query, lastSeen.Unix(), time.Now().Unix(), userID)
	if err != nil {
		return fmt.Errorf("update last_seen: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		slog.Warn("UpdateLastSeen affected 0 rows", "user_id", userID)
	}

	return nil
}

// nextTurnTime returns a strictly increasing timestamp in nanoseconds.
func (s *SQLiteStore) nextTurnTime() int64 {
	s.clockMu.Lock()
	defer s.clockMu.Unlock()

	now := time.Now().UnixNano()
	if now <= s.lastTurn {
		now = s.lastTurn + 1
	}
	s.lastTurn = now
	return now
}

// InsertTurn appends a turn, retrying on SQLITE_BUSY with exponential backoff.
func (s *SQLiteStore) InsertTurn(ctx context.Context, turn *domain.Turn) error {
	if turn == nil {
		return fmt.Errorf("insert turn: nil turn")
	}
	if !turn.Role.Valid() {
		return fmt.Errorf("insert turn: invalid role %q", turn.Role)
	}
	if turn.ID == "" {
		turn.ID = uuid.NewString()
	}

	createdAt := s.nextTurnTime()

	var extracted any
	if turn.ExtractedText != "" {
		extracted = turn.ExtractedText
	}

	query := `
	INSERT INTO turns (id, owner_id, agent_id, role, content, extracted_text, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`

	err := shared.RetryOnConflict(ctx, "insert turn", writeRetries, writeBaseDelay, func() error {
		_, err := s.db.ExecContext(ctx, query,
			turn.ID, turn.OwnerID, turn.AgentID, string(turn.Role),
			turn.Content, extracted, createdAt,
		)
		return err
	})
	if err != nil {
		return err
	}

	turn.CreatedAt = time.Unix(0, createdAt).UTC()
	return nil
}

// ListTurns returns the most recent limit turns for an owner and agent, oldest first.
func (s *SQLiteStore) ListTurns(ctx context.Context, ownerID, agentID string, limit int) ([]domain.Turn, error) {
	if limit <= 0 {
		return []domain.Turn{}, nil
	}

	query := `
		SELECT id, owner_id, agent_id, role, content, extracted_text, created_at FROM (
			SELECT seq, id, owner_id, agent_id, role, content, extracted_text, created_at
			FROM turns
			WHERE owner_id = ? AND (? = '' OR agent_id = ?)
			ORDER BY created_at DESC, seq DESC
			LIMIT ?
		) ORDER BY created_at ASC, seq ASC`

	rows, err := s.db.QueryContext(ctx, query, ownerID, agentID, agentID, limit)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close turn rows", "error", closeErr)
		}
	}()

	turns := []domain.Turn{}
	for rows.Next() {
		var turn domain.Turn
		var role string
		var extracted sql.NullString
		var createdAt int64

		if err := rows.Scan(
			&turn.ID, &turn.OwnerID, &turn.AgentID, &role,
			&turn.Content, &extracted, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan turn row: %w", err)
		}

		turn.Role = domain.Role(role)
		turn.ExtractedText = extracted.String
		turn.CreatedAt = time.Unix(0, createdAt).UTC()
		turns = append(turns, turn)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate turns: %w", err)
	}

	return turns, nil
}

// PruneTurns deletes turns created before cutoff.
func (s *SQLiteStore) PruneTurns(ctx context.Context, cutoff time.Time) (int64, error) {
	var deleted int64
	err := shared.RetryOnConflict(ctx, "prune turns", writeRetries, writeBaseDelay, func() error {
		result, err := s.db.ExecContext(ctx, `DELETE FROM turns WHERE created_at < ?`, cutoff.UnixNano())
		if err != nil {
			return err
		}
		deleted, err = result.RowsAffected()
		return err
	})
	return deleted, err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
