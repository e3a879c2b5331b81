package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/Conecta2Tel/WispFlow/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the default permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore persists conversations in a SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a SQLite-backed store. The DSN is a file path; the
// parent directory is created when missing.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(cfg.DSN)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("sqlite ping failed: %w", err)
	}
	if _, err := db.Exec(sqliteMigrations); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLiteStore ready", "dir", dir)
	return &SQLiteStore{db: db}, nil
}

const sqliteConversationColumns = `phone_number, user_name, current_flow, current_step,
	has_accepted_privacy, accepted_privacy_at, user_data, messages,
	last_activity, is_handed_over, handover_timestamp, ended_at, created_at, updated_at`

func (s *SQLiteStore) GetConversation(phoneNumber string) (*models.Conversation, error) {
	row := s.db.QueryRow(`SELECT `+sqliteConversationColumns+` FROM conversations WHERE phone_number = ?`, phoneNumber)
	conv, err := scanConversation(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetConversation failed", "error", err, "phone", phoneNumber)
		return nil, fmt.Errorf("failed to load conversation %s: %w", phoneNumber, err)
	}
	return conv, nil
}

func (s *SQLiteStore) SaveConversation(conv *models.Conversation) error {
	if conv.PhoneNumber == "" {
		return models.ErrEmptyPhoneNumber
	}
	userData, messages, err := encodeConversation(conv)
	if err != nil {
		return err
	}
	conv.UpdatedAt = time.Now()
	_, err = s.db.Exec(`INSERT INTO conversations (`+sqliteConversationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(phone_number) DO UPDATE SET
			user_name = excluded.user_name,
			current_flow = excluded.current_flow,
			current_step = excluded.current_step,
			has_accepted_privacy = excluded.has_accepted_privacy,
			accepted_privacy_at = excluded.accepted_privacy_at,
			user_data = excluded.user_data,
			messages = excluded.messages,
			last_activity = excluded.last_activity,
			is_handed_over = excluded.is_handed_over,
			handover_timestamp = excluded.handover_timestamp,
			ended_at = excluded.ended_at,
			updated_at = excluded.updated_at`,
		conv.PhoneNumber, conv.UserName, string(conv.CurrentFlow), conv.CurrentStep,
		conv.HasAcceptedPrivacy, nilIfZeroTime(conv.AcceptedPrivacyAt), userData, messages,
		conv.LastActivity, conv.IsHandedOverToHuman, nilIfZeroTime(conv.HandoverTimestamp), nilIfZeroTime(conv.EndedAt),
		conv.CreatedAt, conv.UpdatedAt,
	)
	if err != nil {
		slog.Error("SQLiteStore SaveConversation failed", "error", err, "phone", conv.PhoneNumber)
		return fmt.Errorf("failed to save conversation %s: %w", conv.PhoneNumber, err)
	}
	slog.Debug("SQLiteStore conversation saved", "phone", conv.PhoneNumber, "flow", conv.CurrentFlow, "step", conv.CurrentStep)
	return nil
}

// ExpireIdleSessions runs as a single UPDATE so a message processed between
// the sweep's read and write cannot be overwritten by a stale copy. Only the
// auth fields move; flow state, message log and activity stay untouched for
// rows the sweep does not match.
func (s *SQLiteStore) ExpireIdleSessions(cutoff time.Time) (int, error) {
	res, err := s.db.Exec(`UPDATE conversations SET
			user_data = json_object('authenticated', json('false'),
				'nombre_completo', json_extract(user_data, '$.nombre_completo')),
			current_flow = ?,
			current_step = '',
			updated_at = ?
		WHERE last_activity < ? AND json_extract(user_data, '$.authenticated') = 1`,
		string(models.FlowAuth), time.Now(), cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to expire idle sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count expired sessions: %w", err)
	}
	return int(n), nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
