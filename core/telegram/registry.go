package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/m3rciful/leadbot/core/logger"
	"github.com/m3rciful/leadbot/core/telegram/commands"

	tele "gopkg.in/telebot.v4"
)

const textActionExpired = "Действие недоступно"

// Registry maps commands and button actions to handlers before the bot starts.
type Registry struct {
	mu           sync.RWMutex
	commands     map[string]commands.Command
	callbacks    map[string]tele.HandlerFunc
	textFallback tele.HandlerFunc
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		commands:  make(map[string]commands.Command),
		callbacks: make(map[string]tele.HandlerFunc),
	}
}

// RegisterCommand adds a slash command such as "/start".
func (r *Registry) RegisterCommand(name string, cmd commands.Command) error {
	switch {
	case !strings.HasPrefix(name, "/") || len(name) < 2:
		return fmt.Errorf("command %q must start with '/'", name)
	case cmd.Handler == nil || cmd.Description == "":
		return fmt.Errorf("command %s needs a handler and a description", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.commands[name]; dup {
		return fmt.Errorf("command already registered: %s", name)
	}
	r.commands[name] = cmd
	return nil
}

// Commands returns a copy of the registered commands keyed by name.
func (r *Registry) Commands() map[string]commands.Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]commands.Command, len(r.commands))
	for k, v := range r.commands {
		out[k] = v
	}
	return out
}

// LookupCommand resolves text like "start" or "/start", or an alias, to its
// registered command.
func (r *Registry) LookupCommand(text string) (string, commands.Command, bool) {
	name := "/" + strings.TrimPrefix(strings.TrimSpace(text), "/")
	r.mu.RLock()
	defer r.mu.RUnlock()
	if cmd, ok := r.commands[name]; ok {
		return name, cmd, true
	}
	for key, cmd := range r.commands {
		for _, alias := range cmd.Aliases {
			if "/"+strings.TrimPrefix(alias, "/") == name {
				return key, cmd, true
			}
		}
	}
	return "", commands.Command{}, false
}

// MenuCommands lists the visible commands for the Telegram menu, sorted.
func (r *Registry) MenuCommands() []tele.Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var menu []tele.Command
	for name, cmd := range r.commands {
		if !cmd.Hidden {
			menu = append(menu, tele.Command{Text: name, Description: cmd.Description})
		}
	}
	slices.SortFunc(menu, func(a, b tele.Command) int { return strings.Compare(a.Text, b.Text) })
	return menu
}

// RegisterCallback binds a button's unique key to h.
func (r *Registry) RegisterCallback(key string, h tele.HandlerFunc) error {
	if key == "" || h == nil {
		return fmt.Errorf("callback %q needs a key and a handler", key)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.callbacks[key]; dup {
		return fmt.Errorf("callback already registered: %s", key)
	}
	r.callbacks[key] = h
	return nil
}

// GetCallback returns the handler bound to key.
func (r *Registry) GetCallback(key string) (tele.HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.callbacks[key]
	return h, ok
}

// ListCallbacks returns the registered callback keys, sorted.
func (r *Registry) ListCallbacks() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.callbacks))
	for k := range r.callbacks {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// CallbackNotFound answers presses of buttons the bot no longer serves,
// typically keyboards left over from an older deployment.
func (r *Registry) CallbackNotFound() tele.HandlerFunc {
	return func(c tele.Context) error {
		return c.Respond(&tele.CallbackResponse{Text: textActionExpired})
	}
}

// SetTextFallback sets the handler for text that is not a command.
func (r *Registry) SetTextFallback(h tele.HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.textFallback = h
}

// TextFallback returns the handler set by SetTextFallback.
func (r *Registry) TextFallback() tele.HandlerFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.textFallback
}

// SetupCommands publishes the registry's menu commands to Telegram.
func SetupCommands(bot *tele.Bot, reg *Registry) {
	if bot == nil || reg == nil {
		return
	}
	menu := reg.MenuCommands()
	if len(menu) == 0 {
		return
	}
	if err := bot.SetCommands(menu); err != nil {
		logger.Error(context.Background(), "tg.wire", "commands.publish",
			slog.Int("commands", len(menu)),
			slog.Any("err", err),
		)
	}
}
