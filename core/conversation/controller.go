package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/m3rciful/leadbot/core/logger"
)

const component = "conversation"

// SessionStore persists Session snapshots.
type SessionStore interface {
	GetSession(ctx context.Context, id string) (Session, bool, error)
	PutSession(ctx context.Context, s Session) error
}

// MessageLog is the append-only conversation log.
type MessageLog interface {
	AppendMessage(ctx context.Context, m Message) error
	// RecentMessages returns up to limit latest messages, oldest first.
	RecentMessages(ctx context.Context, sessionID string, limit int) ([]Message, error)
}

// AnswerLog records each survey answer as a standalone row.
type AnswerLog interface {
	SaveAnswer(ctx context.Context, sessionID string, q Question, value string) error
}

// Responder produces the assistant reply for the free dialog stage.
type Responder interface {
	Complete(ctx context.Context, systemPrompt, conversation string) (string, error)
}

// CRM mirrors the conversation into a deal.
type CRM interface {
	CreateOrUpdate(ctx context.Context, externalID string, d DealDraft) (string, error)
	UpdateComments(ctx context.Context, recordID, text string) error
	ChangeStage(ctx context.Context, recordID, stage, comment string) error
}

// Notifier alerts a human manager about a session.
type Notifier interface {
	NotifyManager(ctx context.Context, s Session) error
}

// Inbound is one event delivered by an adapter.
type Inbound struct {
	SessionID string
	Channel   Channel
	Input     Input
}

// Reply is what an adapter renders back to the user.
type Reply struct {
	Text     string
	VideoURL string
	LinkURL  string
	Keyboard Keyboard
	Stage    Stage
}

// Deps wires the Controller. Answers, CRM and Notifier are optional.
type Deps struct {
	Sessions  SessionStore
	Messages  MessageLog
	Answers   AnswerLog
	Responder Responder
	CRM       CRM
	Notifier  Notifier
	Machine   *Machine

	HistoryLimit    int
	TranscriptLimit int
	AITimeout       time.Duration
	CRMTimeout      time.Duration

	Now func() time.Time
}

// Controller loads sessions, runs transitions and executes the resulting intents.
type Controller struct {
	deps  Deps
	locks *Locker
}

// NewController fills defaults and returns a ready Controller.
func NewController(deps Deps) *Controller {
	if deps.Machine == nil {
		deps.Machine = NewMachine("")
	}
	if deps.HistoryLimit <= 0 {
		deps.HistoryLimit = 10
	}
	if deps.TranscriptLimit <= 0 {
		deps.TranscriptLimit = 5
	}
	if deps.AITimeout <= 0 {
		deps.AITimeout = 30 * time.Second
	}
	if deps.CRMTimeout <= 0 {
		deps.CRMTimeout = 10 * time.Second
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Controller{deps: deps, locks: NewLocker()}
}

// Handle processes one inbound event end to end. Malformed input, a session
// id owned by another channel and store failures are returned as errors; AI,
// CRM and notifier failures degrade to logged warnings.
func (c *Controller) Handle(ctx context.Context, in Inbound) (Reply, error) {
	if err := validate(in); err != nil {
		return Reply{}, err
	}
	ctx = logger.WithSession(ctx, in.SessionID, string(in.Channel))

	unlock := c.locks.Lock(in.SessionID)
	defer unlock()

	start := time.Now()
	now := c.deps.Now()

	sess, found, err := c.deps.Sessions.GetSession(ctx, in.SessionID)
	if err != nil {
		return Reply{}, fmt.Errorf("%w: load session: %w", ErrStoreUnavailable, err)
	}
	switch {
	case !found:
		sess = NewSession(in.SessionID, in.Channel, now)
		logger.Info(ctx, component, "session.created")
	case sess.Channel != in.Channel:
		logger.Warn(ctx, component, "session.channel_mismatch",
			slog.String("session_channel", string(sess.Channel)),
		)
		return Reply{}, fmt.Errorf("%w: session belongs to %s", ErrChannelMismatch, sess.Channel)
	}

	next, intents := c.deps.Machine.Transition(sess, in.Input)
	next.UpdatedAt = now
	if err := c.deps.Sessions.PutSession(ctx, next); err != nil {
		return Reply{}, fmt.Errorf("%w: save session: %w", ErrStoreUnavailable, err)
	}
	// The session is already advanced, so a lost log line must not fail the turn.
	if err := c.appendMessage(ctx, sess.ID, in.Input.logText(), DirectionIncoming); err != nil {
		logger.Error(ctx, component, "message.append",
			slog.String("status", "fail"),
			slog.String("direction", string(DirectionIncoming)),
			slog.String("err", err.Error()),
		)
	}
	if sess.Stage != next.Stage || sess.Step != next.Step {
		logger.Info(ctx, component, "conversation.transition",
			slog.String("stage_from", sess.Stage.String()),
			slog.String("stage", next.Stage.String()),
			slog.String("segment", next.Segment.String()),
			slog.Int("step", next.Step),
		)
	}

	out, err := c.execute(ctx, &next, intents)
	if err != nil {
		return Reply{}, err
	}
	out.Stage = next.Stage

	logger.Debug(ctx, component, "conversation.handled",
		slog.String("stage", next.Stage.String()),
		slog.Int("count", len(intents)),
		slog.Duration("duration", logger.Took(start)),
	)
	return out, nil
}

func validate(in Inbound) error {
	if strings.TrimSpace(in.SessionID) == "" {
		return fmt.Errorf("%w: empty session id", ErrMalformedInbound)
	}
	switch in.Input.Kind {
	case InputText:
		if strings.TrimSpace(in.Input.Text) == "" {
			return fmt.Errorf("%w: empty text", ErrMalformedInbound)
		}
	case InputAction:
		if _, ok := ParseAction(string(in.Input.Action)); !ok {
			return fmt.Errorf("%w: unknown action %q", ErrMalformedInbound, in.Input.Action)
		}
	case InputStart:
	default:
		return fmt.Errorf("%w: unknown input kind %d", ErrMalformedInbound, in.Input.Kind)
	}
	return nil
}

func (c *Controller) execute(ctx context.Context, sess *Session, intents []Intent) (Reply, error) {
	var out Reply
	aiFailed := false
	for _, it := range intents {
		switch it.Kind {
		case IntentReply:
			out.Text, out.Keyboard = it.Text, it.Keyboard
			c.logOutgoing(ctx, sess.ID, it.Text)

		case IntentPersistAnswer:
			if c.deps.Answers == nil {
				continue
			}
			if err := c.deps.Answers.SaveAnswer(ctx, sess.ID, it.Question, it.Text); err != nil {
				logger.Error(ctx, component, "answer.save",
					slog.String("status", "fail"),
					slog.String("field", string(it.Question.Key)),
					slog.String("err", err.Error()),
				)
			}

		case IntentCreateDeal:
			c.syncDeal(ctx, sess)

		case IntentInvokeAI:
			content, err := c.respond(ctx, *sess)
			if errors.Is(err, ErrStoreUnavailable) {
				return Reply{}, err
			}
			out.Keyboard = KeyboardActions
			if err != nil {
				aiFailed = true
				out.Text = TextAIApology
				logger.Warn(ctx, component, "ai.reply",
					slog.String("status", "fail"),
					slog.String("err", err.Error()),
				)
				continue
			}
			out.Text, out.VideoURL, out.LinkURL = content.Text, content.VideoURL, content.LinkURL
			c.logOutgoing(ctx, sess.ID, content.Text)

		case IntentUpdateDeal:
			if aiFailed {
				continue
			}
			c.updateDealTranscript(ctx, *sess)

		case IntentDealStage:
			c.changeDealStage(ctx, *sess, it.Stage, it.Text)

		case IntentSystemMessage:
			if err := c.appendMessage(ctx, sess.ID, it.Text, DirectionSystem); err != nil {
				logger.Error(ctx, component, "message.append",
					slog.String("status", "fail"),
					slog.String("direction", string(DirectionSystem)),
					slog.String("err", err.Error()),
				)
			}

		case IntentNotifyManager:
			c.notifyManager(ctx, *sess)
		}
	}
	return out, nil
}

func (c *Controller) appendMessage(ctx context.Context, sessionID, text string, dir Direction) error {
	return c.deps.Messages.AppendMessage(ctx, Message{
		SessionID: sessionID,
		Text:      text,
		Direction: dir,
		Timestamp: c.deps.Now(),
	})
}

func (c *Controller) logOutgoing(ctx context.Context, sessionID, text string) {
	if text == "" {
		return
	}
	if err := c.appendMessage(ctx, sessionID, text, DirectionOutgoing); err != nil {
		logger.Error(ctx, component, "message.append",
			slog.String("status", "fail"),
			slog.String("direction", string(DirectionOutgoing)),
			slog.String("err", err.Error()),
		)
	}
}

func (c *Controller) respond(ctx context.Context, sess Session) (Content, error) {
	if c.deps.Responder == nil {
		return Content{}, fmt.Errorf("%w: no responder configured", ErrResponder)
	}
	history, err := c.deps.Messages.RecentMessages(ctx, sess.ID, c.deps.HistoryLimit)
	if err != nil {
		return Content{}, fmt.Errorf("%w: load history: %w", ErrStoreUnavailable, err)
	}

	aiCtx, cancel := context.WithTimeout(ctx, c.deps.AITimeout)
	defer cancel()

	start := time.Now()
	text, err := c.deps.Responder.Complete(aiCtx, SystemPrompt(sess), ConversationText(history))
	if err != nil {
		return Content{}, fmt.Errorf("%w: %w", ErrResponder, err)
	}
	logger.Info(ctx, component, "ai.reply",
		slog.String("status", "ok"),
		slog.Int("messages", len(history)),
		slog.Duration("duration", logger.Took(start)),
	)
	return ExtractContent(text), nil
}

func (c *Controller) syncDeal(ctx context.Context, sess *Session) {
	if c.deps.CRM == nil {
		return
	}
	crmCtx, cancel := context.WithTimeout(ctx, c.deps.CRMTimeout)
	defer cancel()

	id, err := c.deps.CRM.CreateOrUpdate(crmCtx, sess.ID, BuildDealDraft(*sess))
	if err != nil {
		c.warnCRM(ctx, "crm.deal_upsert", err)
		return
	}
	if id == "" || id == sess.CRMRecordID {
		return
	}
	sess.CRMRecordID = id
	if err := c.deps.Sessions.PutSession(ctx, *sess); err != nil {
		logger.Error(ctx, component, "session.save",
			slog.String("status", "fail"),
			slog.String("deal_id", id),
			slog.String("err", err.Error()),
		)
		return
	}
	logger.Info(ctx, component, "crm.deal_linked", slog.String("deal_id", id))
}

func (c *Controller) updateDealTranscript(ctx context.Context, sess Session) {
	if c.deps.CRM == nil || sess.CRMRecordID == "" {
		return
	}
	history, err := c.deps.Messages.RecentMessages(ctx, sess.ID, c.deps.TranscriptLimit)
	if err != nil {
		c.warnCRM(ctx, "crm.deal_comments", fmt.Errorf("%w: %w", ErrStoreUnavailable, err))
		return
	}
	crmCtx, cancel := context.WithTimeout(ctx, c.deps.CRMTimeout)
	defer cancel()
	if err := c.deps.CRM.UpdateComments(crmCtx, sess.CRMRecordID, Transcript(history)); err != nil {
		c.warnCRM(ctx, "crm.deal_comments", err)
	}
}

func (c *Controller) changeDealStage(ctx context.Context, sess Session, stage, comment string) {
	if c.deps.CRM == nil {
		return
	}
	if sess.CRMRecordID == "" {
		logger.Debug(ctx, component, "crm.deal_stage",
			slog.String("status", "skip"),
			slog.String("crm_stage", stage),
		)
		return
	}
	crmCtx, cancel := context.WithTimeout(ctx, c.deps.CRMTimeout)
	defer cancel()
	if err := c.deps.CRM.ChangeStage(crmCtx, sess.CRMRecordID, stage, comment); err != nil {
		c.warnCRM(ctx, "crm.deal_stage", err)
	}
}

func (c *Controller) notifyManager(ctx context.Context, sess Session) {
	if c.deps.Notifier == nil {
		logger.Info(ctx, component, "manager.requested", slog.String("deal_id", sess.CRMRecordID))
		return
	}
	if err := c.deps.Notifier.NotifyManager(ctx, sess); err != nil {
		logger.Warn(ctx, component, "manager.notify",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
	}
}

func (c *Controller) warnCRM(ctx context.Context, event string, err error) {
	status := "fail"
	if errors.Is(err, context.DeadlineExceeded) {
		status = "cancelled"
	}
	logger.Warn(ctx, component, event,
		slog.String("status", status),
		slog.Bool("crm_error", errors.Is(err, ErrCRMSync)),
		slog.String("err", err.Error()),
	)
}
