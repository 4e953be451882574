package repository

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/seyyidi/ravenchat/internal/domain"
)

// SessionRepository handles transcript persistence
type SessionRepository struct {
	db *DB
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(db *DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create creates a new session
func (r *SessionRepository) Create(session *domain.Session) error {
	if session.ID == "" {
		session.ID = uuid.New().String()
	}
	now := time.Now()
	session.CreatedAt = now
	session.UpdatedAt = now

	_, err := r.db.Exec(`
		INSERT INTO sessions (id, created_at, updated_at)
		VALUES (?, ?, ?)
	`, session.ID, session.CreatedAt, session.UpdatedAt)

	return err
}

// Get retrieves a session by ID
func (r *SessionRepository) Get(id string) (*domain.Session, error) {
	session := &domain.Session{}

	err := r.db.QueryRow(`
		SELECT id, created_at, updated_at
		FROM sessions WHERE id = ?
	`, id).Scan(&session.ID, &session.CreatedAt, &session.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return session, nil
}

// Touch updates a session's updated_at timestamp
func (r *SessionRepository) Touch(id string) error {
	_, err := r.db.Exec(`UPDATE sessions SET updated_at = ? WHERE id = ?`, time.Now(), id)
	return err
}

// CreateMessage appends a message to a session's transcript
func (r *SessionRepository) CreateMessage(message *domain.Message) error {
	if message.ID == "" {
		message.ID = uuid.New().String()
	}
	message.CreatedAt = time.Now()

	citationsJSON, _ := json.Marshal(message.Citations)

	_, err := r.db.Exec(`
		INSERT INTO messages (id, session_id, role, content, citations, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, message.ID, message.SessionID, message.Role, message.Content,
		string(citationsJSON), message.CreatedAt)

	return err
}

// GetMessages retrieves all messages for a session in turn order
func (r *SessionRepository) GetMessages(sessionID string) ([]*domain.Message, error) {
	rows, err := r.db.Query(`
		SELECT id, session_id, role, content, citations, created_at
		FROM messages WHERE session_id = ?
		ORDER BY created_at ASC, id ASC
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*domain.Message
	for rows.Next() {
		message := &domain.Message{}
		var citationsJSON sql.NullString

		if err := rows.Scan(&message.ID, &message.SessionID, &message.Role,
			&message.Content, &citationsJSON, &message.CreatedAt); err != nil {
			return nil, err
		}

		if citationsJSON.Valid && citationsJSON.String != "" {
			json.Unmarshal([]byte(citationsJSON.String), &message.Citations)
		}
		messages = append(messages, message)
	}

	return messages, rows.Err()
}

// DeleteMessages clears a session's transcript, leaving the session itself.
func (r *SessionRepository) DeleteMessages(sessionID string) error {
	_, err := r.db.Exec(`DELETE FROM messages WHERE session_id = ?`, sessionID)
	return err
}
