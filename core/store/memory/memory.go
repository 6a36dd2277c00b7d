package memory

import (
	"context"
	"sync"
	"time"

	"github.com/m3rciful/leadbot/core/conversation"
)

type answer struct {
	key    conversation.FieldKey
	prompt string
	value  string
}

// Store keeps sessions, messages, answers and deal links in process memory.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]conversation.Session
	messages map[string][]conversation.Message
	answers  map[string][]answer
	deals    map[string]string
}

// New constructs an empty in-memory Store for tests and development.
func New() *Store {
	return &Store{
		sessions: make(map[string]conversation.Session),
		messages: make(map[string][]conversation.Message),
		answers:  make(map[string][]answer),
		deals:    make(map[string]string),
	}
}

// GetSession returns a copy of the stored session.
func (s *Store) GetSession(_ context.Context, id string) (conversation.Session, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return conversation.Session{}, false, nil
	}
	return sess.Clone(), true, nil
}

// PutSession stores a copy of the session, replacing any previous snapshot.
func (s *Store) PutSession(_ context.Context, sess conversation.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.sessions[sess.ID]; ok && !prev.CreatedAt.IsZero() {
		sess.CreatedAt = prev.CreatedAt
	}
	if sess.UpdatedAt.IsZero() {
		sess.UpdatedAt = time.Now()
	}
	s.sessions[sess.ID] = sess.Clone()
	return nil
}

// AppendMessage adds a message to the session log.
func (s *Store) AppendMessage(_ context.Context, m conversation.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now()
	}
	s.messages[m.SessionID] = append(s.messages[m.SessionID], m)
	return nil
}

// RecentMessages returns up to limit latest messages, oldest first.
func (s *Store) RecentMessages(_ context.Context, sessionID string, limit int) ([]conversation.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.messages[sessionID]
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	out := make([]conversation.Message, len(all))
	copy(out, all)
	return out, nil
}

// SaveAnswer records one survey answer.
func (s *Store) SaveAnswer(_ context.Context, sessionID string, q conversation.Question, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.answers[sessionID] = append(s.answers[sessionID], answer{key: q.Key, prompt: q.Prompt, value: value})
	return nil
}

// LookupDeal returns the CRM deal linked to an external id.
func (s *Store) LookupDeal(_ context.Context, externalID string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.deals[externalID]
	return id, ok, nil
}

// SaveDeal links an external id to a CRM deal. An existing link is kept.
func (s *Store) SaveDeal(_ context.Context, externalID, dealID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.deals[externalID]; !ok {
		s.deals[externalID] = dealID
	}
	return nil
}
