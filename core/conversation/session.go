package conversation

import "time"

// Session is the canonical per-user conversation state shared by all delivery adapters.
type Session struct {
	ID      string
	Channel Channel
	Stage   Stage
	Segment Segment
	// Step is 0 before the survey, i while question i is pending.
	Step    int
	Answers map[FieldKey]string
	// CRMRecordID is empty until a deal has been created.
	CRMRecordID string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewSession returns a session in the start stage.
func NewSession(id string, channel Channel, now time.Time) Session {
	return Session{
		ID:        id,
		Channel:   channel,
		Stage:     StageStart,
		Answers:   map[FieldKey]string{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a copy whose Answers map can be mutated independently.
func (s Session) Clone() Session {
	out := s
	out.Answers = make(map[FieldKey]string, len(s.Answers))
	for k, v := range s.Answers {
		out.Answers[k] = v
	}
	return out
}

// Message is one entry of the append-only conversation log.
type Message struct {
	SessionID string
	Text      string
	Direction Direction
	Timestamp time.Time
}
