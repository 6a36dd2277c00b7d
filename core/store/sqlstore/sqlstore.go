// Package sqlstore persists conversation state through sqlx on postgres or sqlite.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/leadbot/core/conversation"
)

// Store implements the conversation stores and the CRM deal index on one database.
type Store struct {
	db *sqlx.DB
}

// New wraps an open connection. The schema must already be migrated.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

type sessionRow struct {
	ID          string    `db:"id"`
	Channel     string    `db:"channel"`
	Stage       string    `db:"stage"`
	Segment     string    `db:"segment"`
	Step        int       `db:"step"`
	Answers     string    `db:"answers"`
	CRMRecordID string    `db:"crm_record_id"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

type messageRow struct {
	SessionID string    `db:"session_id"`
	Direction string    `db:"direction"`
	Text      string    `db:"text"`
	CreatedAt time.Time `db:"created_at"`
}

// GetSession loads a session by id.
func (s *Store) GetSession(ctx context.Context, id string) (conversation.Session, bool, error) {
	var row sessionRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(`
		SELECT id, channel, stage, segment, step, answers, crm_record_id, created_at, updated_at
		FROM sessions WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return conversation.Session{}, false, nil
	}
	if err != nil {
		return conversation.Session{}, false, fmt.Errorf("select session: %w", err)
	}
	sess, err := row.toSession()
	if err != nil {
		return conversation.Session{}, false, err
	}
	return sess, true, nil
}

func (r sessionRow) toSession() (conversation.Session, error) {
	stage, err := conversation.ParseStage(r.Stage)
	if err != nil {
		return conversation.Session{}, fmt.Errorf("session %s: %w", r.ID, err)
	}
	segment, err := conversation.ParseSegment(r.Segment)
	if err != nil {
		return conversation.Session{}, fmt.Errorf("session %s: %w", r.ID, err)
	}
	answers := map[conversation.FieldKey]string{}
	if r.Answers != "" {
		if err := json.Unmarshal([]byte(r.Answers), &answers); err != nil {
			return conversation.Session{}, fmt.Errorf("session %s: decode answers: %w", r.ID, err)
		}
	}
	return conversation.Session{
		ID:          r.ID,
		Channel:     conversation.Channel(r.Channel),
		Stage:       stage,
		Segment:     segment,
		Step:        r.Step,
		Answers:     answers,
		CRMRecordID: r.CRMRecordID,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}, nil
}

// PutSession inserts or replaces the session snapshot. created_at is kept from the first insert.
func (s *Store) PutSession(ctx context.Context, sess conversation.Session) error {
	answers := sess.Answers
	if answers == nil {
		answers = map[conversation.FieldKey]string{}
	}
	blob, err := json.Marshal(answers)
	if err != nil {
		return fmt.Errorf("encode answers: %w", err)
	}
	now := time.Now().UTC()
	created, updated := sess.CreatedAt, sess.UpdatedAt
	if created.IsZero() {
		created = now
	}
	if updated.IsZero() {
		updated = now
	}

	_, err = s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO sessions (id, channel, stage, segment, step, answers, crm_record_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			stage = excluded.stage,
			segment = excluded.segment,
			step = excluded.step,
			answers = excluded.answers,
			crm_record_id = excluded.crm_record_id,
			updated_at = excluded.updated_at`),
		sess.ID, string(sess.Channel), sess.Stage.String(), sess.Segment.String(), sess.Step,
		string(blob), sess.CRMRecordID, created.UTC(), updated.UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

// AppendMessage adds a message to the log.
func (s *Store) AppendMessage(ctx context.Context, m conversation.Message) error {
	ts := m.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO messages (session_id, direction, text, created_at) VALUES (?, ?, ?, ?)`),
		m.SessionID, string(m.Direction), m.Text, ts.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// RecentMessages returns up to limit latest messages, oldest first.
func (s *Store) RecentMessages(ctx context.Context, sessionID string, limit int) ([]conversation.Message, error) {
	if limit <= 0 {
		limit = 10
	}
	var rows []messageRow
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(`
		SELECT session_id, direction, text, created_at FROM (
			SELECT id, session_id, direction, text, created_at
			FROM messages WHERE session_id = ?
			ORDER BY id DESC LIMIT ?
		) recent ORDER BY id ASC`), sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("select messages: %w", err)
	}
	out := make([]conversation.Message, 0, len(rows))
	for _, r := range rows {
		out = append(out, conversation.Message{
			SessionID: r.SessionID,
			Direction: conversation.Direction(r.Direction),
			Text:      r.Text,
			Timestamp: r.CreatedAt,
		})
	}
	return out, nil
}

// SaveAnswer records one survey answer row.
func (s *Store) SaveAnswer(ctx context.Context, sessionID string, q conversation.Question, value string) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO survey_answers (session_id, field_key, question, answer, created_at) VALUES (?, ?, ?, ?, ?)`),
		sessionID, string(q.Key), q.Prompt, value, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert survey answer: %w", err)
	}
	return nil
}

// LookupDeal returns the CRM deal linked to an external id.
func (s *Store) LookupDeal(ctx context.Context, externalID string) (string, bool, error) {
	var dealID string
	err := s.db.GetContext(ctx, &dealID, s.db.Rebind(`SELECT deal_id FROM crm_deals WHERE external_id = ?`), externalID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("select crm deal: %w", err)
	}
	return dealID, true, nil
}

// SaveDeal links an external id to a CRM deal. An existing link is kept.
func (s *Store) SaveDeal(ctx context.Context, externalID, dealID string) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO crm_deals (external_id, deal_id, created_at) VALUES (?, ?, ?)
		ON CONFLICT (external_id) DO NOTHING`),
		externalID, dealID, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert crm deal: %w", err)
	}
	return nil
}
