package usage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite" // Pure-Go SQLite driver
)

const ledgerSchema = `
CREATE TABLE IF NOT EXISTS llm_usage (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	conversation_id TEXT,
	provider TEXT NOT NULL,
	model TEXT NOT NULL,
	prompt_tokens INTEGER NOT NULL DEFAULT 0,
	completion_tokens INTEGER NOT NULL DEFAULT 0,
	cost_usd REAL NOT NULL DEFAULT 0,
	metadata TEXT,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_llm_usage_user ON llm_usage (user_id, created_at);
`

// SQLiteLedger is a Ledger backed by a local SQLite database.
type SQLiteLedger struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewSQLiteLedger opens (or creates) the ledger database at path and
// applies the schema. Use ":memory:" for tests.
func NewSQLiteLedger(path string, logger zerolog.Logger) (*SQLiteLedger, error) {
	if path == "" {
		path = "usage.db"
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open ledger database: %w", err)
	}

	if _, err := db.Exec(ledgerSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply ledger schema: %w", err)
	}

	logger.Info().Str("path", path).Msg("Usage ledger opened")

	return &SQLiteLedger{db: db, logger: logger}, nil
}

// Append implements Ledger.Append.
func (l *SQLiteLedger) Append(ctx context.Context, rec Record) error {
	metadata, err := json.Marshal(rec.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	_, err = l.db.ExecContext(ctx, `
		INSERT INTO llm_usage (id, user_id, conversation_id, provider, model, prompt_tokens, completion_tokens, cost_usd, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.UserID, rec.ConversationID, rec.Provider, rec.Model,
		rec.PromptTokens, rec.CompletionTokens, rec.CostUSD, string(metadata), rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append usage record: %w", err)
	}
	return nil
}

// Ping implements Ledger.Ping.
func (l *SQLiteLedger) Ping(ctx context.Context) error {
	return l.db.PingContext(ctx)
}

// Close releases the underlying database handle.
func (l *SQLiteLedger) Close() error {
	return l.db.Close()
}
