package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/Conecta2Tel/WispFlow/internal/models"
	_ "github.com/lib/pq"
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore persists conversations in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed store from a connection string.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}
	if _, err := db.Exec(postgresMigrations); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("PostgresStore ready")
	return &PostgresStore{db: db}, nil
}

const postgresConversationColumns = `phone_number, user_name, current_flow, current_step,
	has_accepted_privacy, accepted_privacy_at, user_data, messages,
	last_activity, is_handed_over, handover_timestamp, ended_at, created_at, updated_at`

func (s *PostgresStore) GetConversation(phoneNumber string) (*models.Conversation, error) {
	row := s.db.QueryRow(`SELECT `+postgresConversationColumns+` FROM conversations WHERE phone_number = $1`, phoneNumber)
	conv, err := scanConversation(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetConversation failed", "error", err, "phone", phoneNumber)
		return nil, fmt.Errorf("failed to load conversation %s: %w", phoneNumber, err)
	}
	return conv, nil
}

func (s *PostgresStore) SaveConversation(conv *models.Conversation) error {
	if conv.PhoneNumber == "" {
		return models.ErrEmptyPhoneNumber
	}
	userData, messages, err := encodeConversation(conv)
	if err != nil {
		return err
	}
	conv.UpdatedAt = time.Now()
	_, err = s.db.Exec(`INSERT INTO conversations (`+postgresConversationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (phone_number) DO UPDATE SET
			user_name = EXCLUDED.user_name,
			current_flow = EXCLUDED.current_flow,
			current_step = EXCLUDED.current_step,
			has_accepted_privacy = EXCLUDED.has_accepted_privacy,
			accepted_privacy_at = EXCLUDED.accepted_privacy_at,
			user_data = EXCLUDED.user_data,
			messages = EXCLUDED.messages,
			last_activity = EXCLUDED.last_activity,
			is_handed_over = EXCLUDED.is_handed_over,
			handover_timestamp = EXCLUDED.handover_timestamp,
			ended_at = EXCLUDED.ended_at,
			updated_at = EXCLUDED.updated_at`,
		conv.PhoneNumber, conv.UserName, string(conv.CurrentFlow), conv.CurrentStep,
		conv.HasAcceptedPrivacy, nilIfZeroTime(conv.AcceptedPrivacyAt), userData, messages,
		conv.LastActivity, conv.IsHandedOverToHuman, nilIfZeroTime(conv.HandoverTimestamp), nilIfZeroTime(conv.EndedAt),
		conv.CreatedAt, conv.UpdatedAt,
	)
	if err != nil {
		slog.Error("PostgresStore SaveConversation failed", "error", err, "phone", conv.PhoneNumber)
		return fmt.Errorf("failed to save conversation %s: %w", conv.PhoneNumber, err)
	}
	slog.Debug("PostgresStore conversation saved", "phone", conv.PhoneNumber, "flow", conv.CurrentFlow, "step", conv.CurrentStep)
	return nil
}

// ExpireIdleSessions runs as a single UPDATE so a message processed between
// the sweep's read and write cannot be overwritten by a stale copy.
func (s *PostgresStore) ExpireIdleSessions(cutoff time.Time) (int, error) {
	res, err := s.db.Exec(`UPDATE conversations SET
			user_data = jsonb_build_object('authenticated', false,
				'nombre_completo', user_data->'nombre_completo'),
			current_flow = $1,
			current_step = '',
			updated_at = $2
		WHERE last_activity < $3 AND (user_data->>'authenticated')::boolean IS TRUE`,
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

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
