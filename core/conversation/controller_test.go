package conversation_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/leadbot/core/conversation"
	"github.com/m3rciful/leadbot/core/store/memory"
)

type fakeResponder struct {
	mu     sync.Mutex
	reply  string
	err    error
	system []string
	convo  []string
}

func (f *fakeResponder) Complete(_ context.Context, system, convo string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.system = append(f.system, system)
	f.convo = append(f.convo, convo)
	return f.reply, f.err
}

type stageCall struct {
	recordID, stage, comment string
}

type fakeCRM struct {
	mu       sync.Mutex
	err      error
	upserts  []conversation.DealDraft
	comments []string
	stages   []stageCall
}

func (f *fakeCRM) CreateOrUpdate(_ context.Context, externalID string, d conversation.DealDraft) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.upserts = append(f.upserts, d)
	return "D-" + externalID, nil
}

func (f *fakeCRM) UpdateComments(_ context.Context, _ string, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.comments = append(f.comments, text)
	return nil
}

func (f *fakeCRM) ChangeStage(_ context.Context, recordID, stage, comment string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.stages = append(f.stages, stageCall{recordID, stage, comment})
	return nil
}

type fakeNotifier struct {
	mu       sync.Mutex
	sessions []string
}

func (f *fakeNotifier) NotifyManager(_ context.Context, s conversation.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions = append(f.sessions, s.ID)
	return nil
}

type fakeAnswers struct {
	mu   sync.Mutex
	keys []conversation.FieldKey
}

func (f *fakeAnswers) SaveAnswer(_ context.Context, _ string, q conversation.Question, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, q.Key)
	return nil
}

type failingStore struct {
	*memory.Store
}

func (failingStore) GetSession(context.Context, string) (conversation.Session, bool, error) {
	return conversation.Session{}, false, errors.New("connection refused")
}

type harness struct {
	ctrl      *conversation.Controller
	store     *memory.Store
	answers   *fakeAnswers
	responder *fakeResponder
	crm       *fakeCRM
	notifier  *fakeNotifier
}

func newHarness() *harness {
	h := &harness{
		store:     memory.New(),
		answers:   &fakeAnswers{},
		responder: &fakeResponder{reply: "Ответ [LINK:https://acme.io/docs]"},
		crm:       &fakeCRM{},
		notifier:  &fakeNotifier{},
	}
	h.ctrl = conversation.NewController(conversation.Deps{
		Sessions:  h.store,
		Messages:  h.store,
		Answers:   h.answers,
		Responder: h.responder,
		CRM:       h.crm,
		Notifier:  h.notifier,
		Machine:   conversation.NewMachine("https://pay.example/checkout"),
	})
	return h
}

func (h *harness) send(t *testing.T, id string, in conversation.Input) conversation.Reply {
	t.Helper()
	r, err := h.ctrl.Handle(context.Background(), conversation.Inbound{
		SessionID: id,
		Channel:   conversation.ChannelWeb,
		Input:     in,
	})
	require.NoError(t, err)
	return r
}

func (h *harness) completeCompanySurvey(t *testing.T, id string) {
	t.Helper()
	h.send(t, id, conversation.StartInput())
	h.send(t, id, conversation.ActionInput(conversation.ActionSegmentCompany))
	for _, a := range []string{"Acme", "IT", "50", "a@acme.io", "+100"} {
		h.send(t, id, conversation.TextInput(a))
	}
}

func TestHandleRejectsMalformedInbound(t *testing.T) {
	h := newHarness()
	_, err := h.ctrl.Handle(context.Background(), conversation.Inbound{Input: conversation.StartInput()})
	assert.ErrorIs(t, err, conversation.ErrMalformedInbound)

	_, err = h.ctrl.Handle(context.Background(), conversation.Inbound{SessionID: "s", Input: conversation.TextInput("  ")})
	assert.ErrorIs(t, err, conversation.ErrMalformedInbound)

	_, err = h.ctrl.Handle(context.Background(), conversation.Inbound{SessionID: "s", Input: conversation.ActionInput("dance")})
	assert.ErrorIs(t, err, conversation.ErrMalformedInbound)
}

func TestHandleStoreFailure(t *testing.T) {
	ctrl := conversation.NewController(conversation.Deps{
		Sessions: failingStore{memory.New()},
		Messages: memory.New(),
	})
	_, err := ctrl.Handle(context.Background(), conversation.Inbound{SessionID: "s", Input: conversation.StartInput()})
	assert.ErrorIs(t, err, conversation.ErrStoreUnavailable)
}

func TestHandleFullCompanyFlow(t *testing.T) {
	h := newHarness()

	r := h.send(t, "s1", conversation.StartInput())
	assert.Equal(t, conversation.TextSegmentationPrompt, r.Text)
	assert.Equal(t, conversation.KeyboardSegment, r.Keyboard)
	assert.Equal(t, conversation.StageSegmentation, r.Stage)

	r = h.send(t, "s1", conversation.TextInput("Компания"))
	assert.Equal(t, "Название вашей компании?", r.Text)
	assert.Equal(t, conversation.StageSurvey, r.Stage)

	for _, a := range []string{"Acme", "IT", "50", "a@acme.io"} {
		h.send(t, "s1", conversation.TextInput(a))
	}
	r = h.send(t, "s1", conversation.TextInput("+100"))
	assert.Equal(t, conversation.TextSurveyComplete, r.Text)
	assert.Equal(t, conversation.KeyboardActions, r.Keyboard)
	assert.Equal(t, conversation.StageAIDialog, r.Stage)

	sess, ok, err := h.store.GetSession(context.Background(), "s1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "D-s1", sess.CRMRecordID)
	assert.Equal(t, 0, sess.Step)
	assert.Equal(t, []conversation.FieldKey{
		conversation.FieldCompanyName, conversation.FieldIndustry, conversation.FieldEmployeeCount,
		conversation.FieldEmail, conversation.FieldPhone,
	}, h.answers.keys)

	require.Len(t, h.crm.upserts, 1)
	assert.Equal(t, "Сделка с компанией Acme", h.crm.upserts[0].Title)
	assert.Equal(t, conversation.ChannelWeb, h.crm.upserts[0].Source)
}

func TestHandleAIDialog(t *testing.T) {
	h := newHarness()
	h.completeCompanySurvey(t, "s1")

	r := h.send(t, "s1", conversation.TextInput("Сколько стоит?"))
	assert.Equal(t, "Ответ", r.Text)
	assert.Equal(t, "https://acme.io/docs", r.LinkURL)
	assert.Equal(t, conversation.KeyboardActions, r.Keyboard)
	assert.Equal(t, conversation.StageAIDialog, r.Stage)

	require.Len(t, h.responder.convo, 1)
	convo := h.responder.convo[0]
	assert.True(t, strings.HasSuffix(convo, "User: Сколько стоит?\nAssistant:"), convo)
	assert.Equal(t, 1, strings.Count(convo, "Сколько стоит?"))
	assert.Contains(t, h.responder.system[0], "Компания: Acme")

	require.Len(t, h.crm.comments, 1)
	assert.True(t, strings.HasPrefix(h.crm.comments[0], "Последняя переписка:\n\n"))
	assert.True(t, strings.HasSuffix(h.crm.comments[0], "Бот: Ответ"))

	msgs, err := h.store.RecentMessages(context.Background(), "s1", 2)
	require.NoError(t, err)
	assert.Equal(t, conversation.DirectionIncoming, msgs[0].Direction)
	assert.Equal(t, "Ответ", msgs[1].Text)
}

func TestHandleAIFailureApologizes(t *testing.T) {
	h := newHarness()
	h.completeCompanySurvey(t, "s1")
	h.responder.err = context.DeadlineExceeded

	r := h.send(t, "s1", conversation.TextInput("вопрос"))
	assert.Equal(t, conversation.TextAIApology, r.Text)
	assert.Equal(t, conversation.StageAIDialog, r.Stage)
	assert.Empty(t, h.crm.comments)
}

func TestHandleHistoryLimit(t *testing.T) {
	h := newHarness()
	h.completeCompanySurvey(t, "s1")
	for i := 0; i < 8; i++ {
		h.send(t, "s1", conversation.TextInput(fmt.Sprintf("q%d", i)))
	}
	last := h.responder.convo[len(h.responder.convo)-1]
	assert.Equal(t, 10, strings.Count(last, "\n"))
	assert.NotContains(t, last, "q2\n")
}

func TestHandleContactManager(t *testing.T) {
	h := newHarness()
	h.completeCompanySurvey(t, "s1")

	r := h.send(t, "s1", conversation.ActionInput(conversation.ActionContactManager))
	assert.Equal(t, conversation.TextManagerAck, r.Text)
	assert.Equal(t, conversation.StageAIDialog, r.Stage)

	require.Len(t, h.crm.stages, 1)
	assert.Equal(t, stageCall{"D-s1", conversation.DealStageContactRequested, conversation.TextManagerRequested}, h.crm.stages[0])
	assert.Equal(t, []string{"s1"}, h.notifier.sessions)

	msgs, err := h.store.RecentMessages(context.Background(), "s1", 1)
	require.NoError(t, err)
	assert.Equal(t, conversation.DirectionSystem, msgs[0].Direction)
}

func TestHandlePayment(t *testing.T) {
	h := newHarness()
	h.completeCompanySurvey(t, "s1")

	r := h.send(t, "s1", conversation.ActionInput(conversation.ActionPayment))
	assert.Equal(t, "Вот ссылка для оплаты: https://pay.example/checkout", r.Text)
	require.Len(t, h.crm.stages, 1)
	assert.Equal(t, conversation.DealStagePaymentRequested, h.crm.stages[0].stage)
}

func TestHandleCRMFailureIsSwallowed(t *testing.T) {
	h := newHarness()
	h.crm.err = fmt.Errorf("%w: http 503", conversation.ErrCRMSync)
	h.completeCompanySurvey(t, "s1")

	sess, _, err := h.store.GetSession(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, conversation.StageAIDialog, sess.Stage)
	assert.Empty(t, sess.CRMRecordID)

	r := h.send(t, "s1", conversation.ActionInput(conversation.ActionContactManager))
	assert.Equal(t, conversation.TextManagerAck, r.Text)
	assert.Equal(t, []string{"s1"}, h.notifier.sessions)
}

func TestHandleSerializesSameSession(t *testing.T) {
	h := newHarness()
	h.send(t, "s1", conversation.StartInput())
	h.send(t, "s1", conversation.ActionInput(conversation.ActionSegmentIndividual))

	var wg sync.WaitGroup
	for _, a := range []string{"Иван", "30"} {
		wg.Add(1)
		go func(text string) {
			defer wg.Done()
			_, err := h.ctrl.Handle(context.Background(), conversation.Inbound{
				SessionID: "s1",
				Channel:   conversation.ChannelWeb,
				Input:     conversation.TextInput(text),
			})
			assert.NoError(t, err)
		}(a)
	}
	wg.Wait()

	sess, _, err := h.store.GetSession(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, 3, sess.Step)
	assert.Len(t, sess.Answers, 2)
}

func TestHandleIndependentSessions(t *testing.T) {
	h := newHarness()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			h.completeCompanySurvey(t, id)
		}(fmt.Sprintf("s%d", i))
	}
	wg.Wait()
	assert.Len(t, h.crm.upserts, 20)
}

func TestHandleUsesInjectedClock(t *testing.T) {
	fixed := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	store := memory.New()
	ctrl := conversation.NewController(conversation.Deps{
		Sessions: store,
		Messages: store,
		Now:      func() time.Time { return fixed },
	})
	_, err := ctrl.Handle(context.Background(), conversation.Inbound{SessionID: "s", Channel: conversation.ChannelTelegram, Input: conversation.StartInput()})
	require.NoError(t, err)
	sess, _, err := store.GetSession(context.Background(), "s")
	require.NoError(t, err)
	assert.Equal(t, fixed, sess.CreatedAt)
	assert.Equal(t, conversation.ChannelTelegram, sess.Channel)
}

func TestHandleRejectsSessionOfOtherChannel(t *testing.T) {
	h := newHarness()
	tg := func(in conversation.Input) conversation.Inbound {
		return conversation.Inbound{SessionID: "424242", Channel: conversation.ChannelTelegram, Input: in}
	}
	ctx := context.Background()
	_, err := h.ctrl.Handle(ctx, tg(conversation.StartInput()))
	require.NoError(t, err)
	_, err = h.ctrl.Handle(ctx, tg(conversation.ActionInput(conversation.ActionSegmentIndividual)))
	require.NoError(t, err)
	for _, a := range []string{"Анна Смирнова", "30", "anna@example.com", "+79990001122"} {
		_, err = h.ctrl.Handle(ctx, tg(conversation.TextInput(a)))
		require.NoError(t, err)
	}

	_, err = h.ctrl.Handle(ctx, conversation.Inbound{
		SessionID: "424242",
		Channel:   conversation.ChannelWeb,
		Input:     conversation.TextInput("что вы обо мне знаете?"),
	})
	require.ErrorIs(t, err, conversation.ErrChannelMismatch)
	assert.Empty(t, h.responder.system)

	sess, _, err := h.store.GetSession(ctx, "424242")
	require.NoError(t, err)
	assert.Equal(t, conversation.ChannelTelegram, sess.Channel)
	msgs, err := h.store.RecentMessages(ctx, "424242", 1)
	require.NoError(t, err)
	assert.NotContains(t, msgs[0].Text, "что вы обо мне знаете?")
}

type flakyLog struct {
	*memory.Store
	failAppend  bool
	failHistory bool
}

func (f *flakyLog) AppendMessage(ctx context.Context, m conversation.Message) error {
	if f.failAppend {
		return errors.New("disk full")
	}
	return f.Store.AppendMessage(ctx, m)
}

func (f *flakyLog) RecentMessages(ctx context.Context, id string, limit int) ([]conversation.Message, error) {
	if f.failHistory {
		return nil, errors.New("connection reset")
	}
	return f.Store.RecentMessages(ctx, id, limit)
}

func newFlakyController(log *flakyLog, responder *fakeResponder) *conversation.Controller {
	return conversation.NewController(conversation.Deps{
		Sessions:  log.Store,
		Messages:  log,
		Responder: responder,
	})
}

func TestHandleHistoryFailureIsStoreError(t *testing.T) {
	log := &flakyLog{Store: memory.New()}
	responder := &fakeResponder{reply: "Ответ"}
	ctrl := newFlakyController(log, responder)
	in := func(input conversation.Input) conversation.Inbound {
		return conversation.Inbound{SessionID: "s1", Channel: conversation.ChannelWeb, Input: input}
	}
	ctx := context.Background()
	for _, input := range []conversation.Input{
		conversation.StartInput(),
		conversation.ActionInput(conversation.ActionSegmentIndividual),
		conversation.TextInput("Анна"), conversation.TextInput("30"),
		conversation.TextInput("a@b.c"), conversation.TextInput("+1"),
	} {
		_, err := ctrl.Handle(ctx, in(input))
		require.NoError(t, err)
	}

	log.failHistory = true
	_, err := ctrl.Handle(ctx, in(conversation.TextInput("вопрос")))
	require.ErrorIs(t, err, conversation.ErrStoreUnavailable)
	assert.Empty(t, responder.system)
}

func TestHandleIncomingLogFailureKeepsTurn(t *testing.T) {
	log := &flakyLog{Store: memory.New(), failAppend: true}
	ctrl := newFlakyController(log, &fakeResponder{})

	r, err := ctrl.Handle(context.Background(), conversation.Inbound{
		SessionID: "s1", Channel: conversation.ChannelWeb, Input: conversation.StartInput(),
	})
	require.NoError(t, err)
	assert.Equal(t, conversation.StageSegmentation, r.Stage)

	sess, ok, err := log.Store.GetSession(context.Background(), "s1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, conversation.StageSegmentation, sess.Stage)
}
