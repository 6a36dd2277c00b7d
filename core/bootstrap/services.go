package bootstrap

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/leadbot/core/ai"
	coreconfig "github.com/m3rciful/leadbot/core/config"
	"github.com/m3rciful/leadbot/core/conversation"
	"github.com/m3rciful/leadbot/core/crm"
	"github.com/m3rciful/leadbot/core/store/sqlstore"
)

// ServiceOptions wires the conversation graph. Responder and CRM are built
// from Config when nil; Notifier stays optional.
type ServiceOptions struct {
	Config *coreconfig.Config
	DB     *sqlx.DB

	Responder conversation.Responder
	CRM       conversation.CRM
	Notifier  conversation.Notifier
}

// Services is the application graph shared by the web and Telegram adapters.
type Services struct {
	Store      *sqlstore.Store
	Controller *conversation.Controller
}

// BuildServices creates the store, the AI responder, the CRM client and the controller.
func BuildServices(opts ServiceOptions) (*Services, error) {
	if opts.Config == nil || opts.DB == nil {
		return nil, fmt.Errorf("bootstrap: config and db are required")
	}
	cfg := opts.Config
	st := sqlstore.New(opts.DB)

	responder := opts.Responder
	if responder == nil {
		r, err := ai.NewResponder(cfg.AI)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: ai responder: %w", err)
		}
		responder = r
	}

	deps := conversation.Deps{
		Sessions:        st,
		Messages:        st,
		Answers:         st,
		Responder:       responder,
		CRM:             opts.CRM,
		Notifier:        opts.Notifier,
		Machine:         conversation.NewMachine(cfg.Conversation.PaymentURL),
		HistoryLimit:    cfg.Conversation.HistoryLimit,
		TranscriptLimit: cfg.Conversation.TranscriptLimit,
		AITimeout:       time.Duration(cfg.AI.TimeoutSeconds) * time.Second,
		CRMTimeout:      time.Duration(cfg.CRM.TimeoutSeconds) * time.Second,
	}
	if deps.CRM == nil && cfg.CRMEnabled() {
		deps.CRM = crm.New(cfg.CRM, st)
	}

	return &Services{
		Store:      st,
		Controller: conversation.NewController(deps),
	}, nil
}
