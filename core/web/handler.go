// Package web serves the chat widget JSON API over chi.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/m3rciful/leadbot/core/conversation"
	"github.com/m3rciful/leadbot/core/logger"
)

const maxBodyBytes = 64 << 10

// Conversation handles one inbound chat event.
type Conversation interface {
	Handle(ctx context.Context, in conversation.Inbound) (conversation.Reply, error)
}

// ChatHandler exposes the conversation controller to the widget.
type ChatHandler struct {
	conv  Conversation
	newID func() string
}

// NewChatHandler creates a ChatHandler. Session ids are random UUIDs.
func NewChatHandler(conv Conversation) *ChatHandler {
	return &ChatHandler{conv: conv, newID: uuid.NewString}
}

// RegisterRoutes mounts the chat endpoints.
func (h *ChatHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/chat", func(r chi.Router) {
		r.Post("/session", h.CreateSession)
		r.Post("/message", h.SendMessage)
		r.Post("/action", h.SendAction)
	})
}

type messageRequest struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
}

type actionRequest struct {
	SessionID string `json:"sessionId"`
	Action    string `json:"action"`
}

type actionButton struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

type chatResponse struct {
	SessionID string         `json:"sessionId,omitempty"`
	Text      string         `json:"text"`
	VideoURL  string         `json:"videoUrl,omitempty"`
	LinkURL   string         `json:"linkUrl,omitempty"`
	Stage     string         `json:"stage"`
	Actions   []actionButton `json:"actions,omitempty"`
}

// CreateSession opens a new web session and returns the greeting.
func (h *ChatHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	id := h.newID()
	h.dispatch(w, r, conversation.Inbound{
		SessionID: id,
		Channel:   conversation.ChannelWeb,
		Input:     conversation.StartInput(),
	}, id)
}

// SendMessage forwards free text typed in the widget.
func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		Error(w, http.StatusBadRequest, "sessionId and message are required")
		return
	}
	if !validSessionID(w, req.SessionID) {
		return
	}
	h.dispatch(w, r, conversation.Inbound{
		SessionID: req.SessionID,
		Channel:   conversation.ChannelWeb,
		Input:     conversation.TextInput(req.Message),
	}, "")
}

// SendAction forwards a button press.
func (h *ChatHandler) SendAction(w http.ResponseWriter, r *http.Request) {
	var req actionRequest
	if !decode(w, r, &req) {
		return
	}
	action, ok := conversation.ParseAction(req.Action)
	if !ok {
		Error(w, http.StatusBadRequest, "sessionId and a known action are required")
		return
	}
	if !validSessionID(w, req.SessionID) {
		return
	}
	h.dispatch(w, r, conversation.Inbound{
		SessionID: req.SessionID,
		Channel:   conversation.ChannelWeb,
		Input:     conversation.ActionInput(action),
	}, "")
}

// validSessionID accepts only ids minted by CreateSession, which keeps the
// widget out of Telegram's chat-id sessions.
func validSessionID(w http.ResponseWriter, id string) bool {
	if _, err := uuid.Parse(id); err != nil {
		Error(w, http.StatusBadRequest, "sessionId must be a UUID issued by /api/chat/session")
		return false
	}
	return true
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		Error(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func (h *ChatHandler) dispatch(w http.ResponseWriter, r *http.Request, in conversation.Inbound, newSessionID string) {
	ctx := r.Context()
	reply, err := h.conv.Handle(ctx, in)
	switch {
	case err == nil:
	case errors.Is(err, conversation.ErrMalformedInbound):
		Error(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, conversation.ErrChannelMismatch):
		Error(w, http.StatusBadRequest, "unknown sessionId")
		return
	default:
		logger.Error(logger.WithSession(ctx, in.SessionID, string(in.Channel)), "http", "chat.handle",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
		JSON(w, http.StatusInternalServerError, map[string]string{
			"error": "internal error",
			"text":  conversation.TextGenericFailure,
		})
		return
	}

	JSON(w, http.StatusOK, toResponse(reply, newSessionID))
}

func toResponse(reply conversation.Reply, sessionID string) chatResponse {
	resp := chatResponse{
		SessionID: sessionID,
		Text:      reply.Text,
		VideoURL:  reply.VideoURL,
		LinkURL:   reply.LinkURL,
		Stage:     reply.Stage.String(),
	}
	for _, a := range reply.Keyboard.Actions() {
		resp.Actions = append(resp.Actions, actionButton{ID: string(a), Label: a.Label()})
	}
	return resp
}
