package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Conecta2Tel/WispFlow/internal/models"
)

// conversationRow is the flattened column set shared by the SQL backends.
type conversationRow struct {
	userName          sql.NullString
	acceptedPrivacyAt sql.NullTime
	handoverTimestamp sql.NullTime
	endedAt           sql.NullTime
	userDataJSON      string
	messagesJSON      string
}

// encodeConversation serializes the JSON document columns.
func encodeConversation(conv *models.Conversation) (userData, messages string, err error) {
	ud, err := json.Marshal(conv.UserData)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode user data: %w", err)
	}
	msgs := conv.Messages
	if msgs == nil {
		msgs = []models.Message{}
	}
	ms, err := json.Marshal(msgs)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode message log: %w", err)
	}
	return string(ud), string(ms), nil
}

// scanConversation reads one row into a Conversation. The scan argument order
// must match the column order used by both backends' SELECT statements.
func scanConversation(scan func(dest ...any) error) (*models.Conversation, error) {
	var conv models.Conversation
	var row conversationRow
	err := scan(
		&conv.PhoneNumber, &row.userName, &conv.CurrentFlow, &conv.CurrentStep,
		&conv.HasAcceptedPrivacy, &row.acceptedPrivacyAt, &row.userDataJSON, &row.messagesJSON,
		&conv.LastActivity, &conv.IsHandedOverToHuman, &row.handoverTimestamp, &row.endedAt,
		&conv.CreatedAt, &conv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	conv.UserName = row.userName.String
	if row.acceptedPrivacyAt.Valid {
		t := row.acceptedPrivacyAt.Time
		conv.AcceptedPrivacyAt = &t
	}
	if row.handoverTimestamp.Valid {
		t := row.handoverTimestamp.Time
		conv.HandoverTimestamp = &t
	}
	if row.endedAt.Valid {
		t := row.endedAt.Time
		conv.EndedAt = &t
	}
	if err := json.Unmarshal([]byte(row.userDataJSON), &conv.UserData); err != nil {
		return nil, fmt.Errorf("failed to decode user data for %s: %w", conv.PhoneNumber, err)
	}
	if err := json.Unmarshal([]byte(row.messagesJSON), &conv.Messages); err != nil {
		return nil, fmt.Errorf("failed to decode message log for %s: %w", conv.PhoneNumber, err)
	}
	return &conv, nil
}

// nilIfZeroTime returns nil for zero/unset optional timestamps.
func nilIfZeroTime(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return *t
}
