package conversation

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nviv/nviv/db"
	"github.com/nviv/nviv/internal/log"
)

// Store persists per-thread conversation history in a single SQLite file.
//
// Store is safe for concurrent use. Appends to the same thread id are
// serialized through a per-thread mutex so two in-flight turns of one
// conversation can never interleave their writes; appends to different
// threads only contend on the underlying database.
type Store struct {
	db     *sql.DB
	logger log.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Open opens (creating and migrating if needed) the store at path.
func Open(path string, logger log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.NewNop()
	}

	database, err := db.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening conversation store: %w", err)
	}

	if err := db.Migrate(database); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("migrating conversation store: %w", err)
	}

	return &Store{
		db:     database,
		logger: logger,
		locks:  make(map[string]*sync.Mutex),
	}, nil
}

// Close releases the database handle. Safe to call more than once.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	if err != nil {
		return fmt.Errorf("closing conversation store: %w", err)
	}
	return nil
}

// threadLock returns the append lock for a thread id, creating it on first
// use. Locks are never removed; the set of live threads is small and the
// mutexes are cheap.
func (s *Store) threadLock(threadID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[threadID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[threadID] = l
	}
	return l
}

// Load returns the persisted messages for a thread in append order.
// An unknown thread id yields an empty slice and no error.
func (s *Store) Load(ctx context.Context, threadID string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, role, content, tool_call_id, tool_name
		 FROM messages WHERE thread_id = ? ORDER BY seq`, threadID)
	if err != nil {
		return nil, fmt.Errorf("loading messages for thread %s: %w", threadID, err)
	}
	defer rows.Close()

	var msgs []Message
	var ids []string
	for rows.Next() {
		var id string
		var m Message
		if err := rows.Scan(&id, &m.Role, &m.Content, &m.ToolCallID, &m.ToolName); err != nil {
			return nil, fmt.Errorf("scanning message row: %w", err)
		}
		msgs = append(msgs, m)
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating message rows: %w", err)
	}
	if len(msgs) == 0 {
		return []Message{}, nil
	}

	calls, err := s.loadToolCalls(ctx, threadID)
	if err != nil {
		return nil, err
	}
	for i := range msgs {
		if msgs[i].Role == RoleAssistant {
			msgs[i].ToolCalls = calls[ids[i]]
		}
	}

	return msgs, nil
}

// loadToolCalls returns the tool calls of a thread keyed by message id,
// ordered by position within each message.
func (s *Store) loadToolCalls(ctx context.Context, threadID string) (map[string][]ToolCall, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT message_id, call_id, tool_name, arguments
		 FROM tool_calls WHERE thread_id = ? ORDER BY message_id, position`, threadID)
	if err != nil {
		return nil, fmt.Errorf("loading tool calls for thread %s: %w", threadID, err)
	}
	defer rows.Close()

	calls := make(map[string][]ToolCall)
	for rows.Next() {
		var msgID, callID, name, rawArgs string
		if err := rows.Scan(&msgID, &callID, &name, &rawArgs); err != nil {
			return nil, fmt.Errorf("scanning tool call row: %w", err)
		}
		args := map[string]string{}
		if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
			s.logger.Warn("skipping malformed tool call arguments",
				"thread_id", threadID, "call_id", callID, "error", err)
			continue
		}
		calls[msgID] = append(calls[msgID], ToolCall{ID: callID, Name: name, Arguments: args})
	}
	return calls, rows.Err()
}

// Append atomically extends a thread's message sequence. All messages land
// in one transaction; a failure rolls back the whole batch.
func (s *Store) Append(ctx context.Context, threadID string, msgs []Message) error {
	if len(msgs) == 0 {
		return nil
	}

	l := s.threadLock(threadID)
	l.Lock()
	defer l.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning append transaction: %w", err)
	}
	defer func() {
		// No-op after commit.
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO threads (id) VALUES (?) ON CONFLICT (id) DO NOTHING`, threadID); err != nil {
		return fmt.Errorf("ensuring thread row: %w", err)
	}

	var maxSeq int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM messages WHERE thread_id = ?`, threadID).Scan(&maxSeq); err != nil {
		return fmt.Errorf("reading max sequence: %w", err)
	}

	for i, m := range msgs {
		msgID := uuid.NewString()
		seq := maxSeq + int64(i) + 1

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO messages (id, thread_id, seq, role, content, tool_call_id, tool_name)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			msgID, threadID, seq, string(m.Role), m.Content, m.ToolCallID, m.ToolName); err != nil {
			return fmt.Errorf("inserting message %d: %w", i, err)
		}

		for pos, tc := range m.ToolCalls {
			args, err := json.Marshal(tc.Arguments)
			if err != nil {
				return fmt.Errorf("marshaling tool call arguments: %w", err)
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO tool_calls (message_id, thread_id, position, call_id, tool_name, arguments)
				 VALUES (?, ?, ?, ?, ?, ?)`,
				msgID, threadID, pos, tc.ID, tc.Name, string(args)); err != nil {
				return fmt.Errorf("inserting tool call %d of message %d: %w", pos, i, err)
			}
		}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE threads SET updated_at = ?, message_count = message_count + ? WHERE id = ?`,
		time.Now().UTC(), len(msgs), threadID); err != nil {
		return fmt.Errorf("updating thread metadata: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing append: %w", err)
	}

	s.logger.Debug("appended messages", "thread_id", threadID, "count", len(msgs))
	return nil
}

// Reset deletes every persisted row for a thread across all three tables.
// Unknown thread ids are a no-op. Failures are logged, never returned: a
// failed reset must not break the caller's user-facing acknowledgement.
func (s *Store) Reset(ctx context.Context, threadID string) {
	l := s.threadLock(threadID)
	l.Lock()
	defer l.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		s.logger.Error("reset failed to begin transaction", "thread_id", threadID, "error", err)
		return
	}
	defer func() { _ = tx.Rollback() }()

	// tool_calls and messages cascade from threads, but delete explicitly so
	// a thread that lost its parent row (partial old data) still clears.
	for _, stmt := range []string{
		`DELETE FROM tool_calls WHERE thread_id = ?`,
		`DELETE FROM messages WHERE thread_id = ?`,
		`DELETE FROM threads WHERE id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, threadID); err != nil {
			s.logger.Error("reset delete failed", "thread_id", threadID, "error", err)
			return
		}
	}

	if err := tx.Commit(); err != nil {
		s.logger.Error("reset failed to commit", "thread_id", threadID, "error", err)
		return
	}

	s.logger.Info("thread history reset", "thread_id", threadID)
}
